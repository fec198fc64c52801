// Package control 实现控制节点：校验密码、管理持久化存储并驱动执行序列。
package control

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/wfunc/door-lock/internal/actuator"
	"github.com/wfunc/door-lock/internal/errors"
	"github.com/wfunc/door-lock/internal/keystore"
	"github.com/wfunc/door-lock/internal/models"
	"github.com/wfunc/door-lock/internal/protocol"
	"github.com/wfunc/door-lock/internal/repository"
	"github.com/wfunc/door-lock/internal/sequencer"
	"github.com/wfunc/door-lock/internal/tick"
	"go.uber.org/zap"
)

// signalQueueSize 序列信号队列容量，每条序列最多产生 3 个信号
const signalQueueSize = 16

// Hardware 控制节点驱动的硬件
type Hardware struct {
	Tick   tick.Source
	Motor  actuator.Motor
	Buzzer actuator.Buzzer
}

// Status 节点状态快照
type Status struct {
	Node        string          `json:"node"`
	State       State           `json:"state"`
	SessionID   string          `json:"session_id"`
	FirstUse    bool            `json:"first_use"`     // 握手时存储是否未初始化
	FirstUseRaw byte            `json:"first_use_raw"` // 握手时读到的原始标志
	Sequence    sequencer.State `json:"sequence"`
	StartedAt   time.Time       `json:"started_at"`
}

// Node 控制节点
type Node struct {
	name   string
	codec  *protocol.Codec
	store  keystore.Store
	layout keystore.Layout
	seq    *sequencer.Sequencer
	logger *zap.Logger

	timing    sequencer.Timing
	events    repository.AccessEventRepository
	listeners []func(*models.AccessEvent)

	signals chan protocol.Command

	mu          sync.RWMutex
	state       State
	sessionID   string
	firstUseRaw byte
	startedAt   time.Time
}

// Option 节点选项
type Option func(*Node)

// WithName 节点名称
func WithName(name string) Option {
	return func(n *Node) {
		n.name = name
	}
}

// WithLayout 存储地址布局
func WithLayout(l keystore.Layout) Option {
	return func(n *Node) {
		n.layout = l
	}
}

// WithTiming 序列周期
func WithTiming(t sequencer.Timing) Option {
	return func(n *Node) {
		n.timing = t
	}
}

// WithLogger 设置日志器
func WithLogger(l *zap.Logger) Option {
	return func(n *Node) {
		n.logger = l
	}
}

// WithEventRepository 访问事件持久化
func WithEventRepository(repo repository.AccessEventRepository) Option {
	return func(n *Node) {
		n.events = repo
	}
}

// WithListener 订阅访问事件，回调不能阻塞
func WithListener(fn func(*models.AccessEvent)) Option {
	return func(n *Node) {
		n.listeners = append(n.listeners, fn)
	}
}

// New 创建控制节点
func New(codec *protocol.Codec, store keystore.Store, hw Hardware, opts ...Option) *Node {
	n := &Node{
		name:    "control",
		codec:   codec,
		store:   store,
		layout:  keystore.DefaultLayout(),
		logger:  zap.NewNop(),
		timing:  sequencer.DefaultTiming(),
		signals: make(chan protocol.Command, signalQueueSize),
		state:   StateAwaitHandshake,
	}
	for _, opt := range opts {
		opt(n)
	}

	n.seq = sequencer.New(hw.Tick, hw.Motor, hw.Buzzer, n.post,
		sequencer.WithTiming(n.timing),
		sequencer.WithLogger(n.logger.Named("sequencer")),
	)
	return n
}

// Sequencer 执行序列
func (n *Node) Sequencer() *sequencer.Sequencer {
	return n.seq
}

// Status 当前状态
func (n *Node) Status() Status {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return Status{
		Node:        n.name,
		State:       n.state,
		SessionID:   n.sessionID,
		FirstUse:    n.state != StateAwaitHandshake && n.firstUseRaw != protocol.FirstUseMark,
		FirstUseRaw: n.firstUseRaw,
		Sequence:    n.seq.State(),
		StartedAt:   n.startedAt,
	}
}

// State 当前状态
func (n *Node) State() State {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.state
}

func (n *Node) setState(to State) {
	n.mu.Lock()
	from := n.state
	n.state = to
	n.mu.Unlock()

	if from != to {
		n.logger.Debug("状态转换",
			zap.String("from", string(from)),
			zap.String("to", string(to)))
	}
}

// Serve 完成握手后循环处理命令，直到 ctx 取消或通道出错
func (n *Node) Serve(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		n.writeSignals(ctx)
	}()

	defer func() {
		n.seq.Stop()
		cancel()
		wg.Wait()
		n.setState(StateStopped)
	}()

	if err := n.Handshake(ctx); err != nil {
		return err
	}

	for {
		cmd, err := n.codec.Wait(ctx)
		if err != nil {
			return err
		}

		err = n.dispatch(ctx, cmd)
		n.setState(StateReady)
		if err == nil {
			continue
		}
		// 交换中途超时或写入失败时回到空闲状态重新同步
		if errors.IsRetryable(err) {
			n.logger.Warn("命令交换失败，回到空闲状态",
				zap.Stringer("command", cmd),
				zap.Error(err))
			continue
		}
		return err
	}
}

// Handshake 等待界面节点初始化完成，上报首次使用标志的原始值并持久化已初始化标志
func (n *Node) Handshake(ctx context.Context) error {
	n.setState(StateAwaitHandshake)

	if err := n.codec.Await(ctx, protocol.CmdInitDone); err != nil {
		return err
	}

	flag, err := n.store.ReadCell(ctx, n.layout.FirstUseAddress)
	if err != nil {
		return err
	}

	if flag != protocol.FirstUseMark {
		if err := n.store.WriteCell(ctx, n.layout.FirstUseAddress, protocol.FirstUseMark); err != nil {
			n.logger.Error("写入首次使用标志失败", zap.Error(err))
		}
	}

	n.mu.Lock()
	n.sessionID = uuid.NewString()
	n.firstUseRaw = flag
	n.startedAt = time.Now()
	n.mu.Unlock()

	if err := n.codec.Send(ctx, protocol.CmdFlagFollows); err != nil {
		return err
	}
	if err := n.codec.SendRaw(ctx, flag); err != nil {
		return err
	}

	n.logger.Info("握手完成",
		zap.Bool("first_use", flag != protocol.FirstUseMark),
		zap.Uint8("flag", flag))
	n.record(&models.AccessEvent{
		Kind:    models.AccessEventHandshake,
		Command: protocol.CmdInitDone.String(),
		Result:  models.AccessResultOK,
		Detail:  protocol.Command(flag).String(),
	})

	n.setState(StateReady)
	return nil
}

func (n *Node) dispatch(ctx context.Context, cmd protocol.Command) error {
	switch cmd {
	case protocol.CmdSetPassword:
		return n.handleSetPassword(ctx)
	case protocol.CmdVerify:
		return n.handleVerify(ctx)
	case protocol.CmdAlarm:
		n.handleAlarm()
	case protocol.CmdUnlock:
		n.handleUnlock()
	default:
		n.logger.Debug("忽略未知命令", zap.Stringer("command", cmd))
	}
	return nil
}

// receivePassword 超长的密码按不匹配处理，其他错误中止交换
func (n *Node) receivePassword(ctx context.Context) (protocol.Password, bool, error) {
	p, err := n.codec.ReceivePassword(ctx)
	if err != nil {
		if errors.Is(err, errors.ErrPasswordTooLong) {
			n.logger.Warn("密码超长", zap.Error(err))
			return nil, false, nil
		}
		return nil, false, err
	}
	return p, true, nil
}

func (n *Node) handleSetPassword(ctx context.Context) error {
	start := time.Now()

	n.setState(StateSetPassword1)
	first, okFirst, err := n.receivePassword(ctx)
	if err != nil {
		return err
	}
	if err := n.codec.Send(ctx, protocol.CmdSetPassword); err != nil {
		return err
	}

	n.setState(StateSetPassword2)
	second, okSecond, err := n.receivePassword(ctx)
	if err != nil {
		return err
	}
	if err := n.codec.Send(ctx, protocol.CmdSetPassword); err != nil {
		return err
	}

	matched := okFirst && okSecond && protocol.Matches(first, second)
	var commitErr error
	if matched {
		commitErr = n.commitPassword(ctx, first)
		if commitErr != nil {
			n.logger.Error("保存密码失败", zap.Error(commitErr))
			matched = false
		}
	}

	if err := n.codec.Send(ctx, protocol.Result(matched)); err != nil {
		return err
	}

	event := &models.AccessEvent{
		Kind:     models.AccessEventSetPassword,
		Command:  protocol.CmdSetPassword.String(),
		Result:   resultOf(matched),
		Duration: time.Since(start).Milliseconds(),
	}
	if commitErr != nil {
		event.Result = models.AccessResultError
		event.ErrorMsg = commitErr.Error()
	}
	n.record(event)
	return nil
}

// commitPassword 写入完整的密码字段，不足部分补 0
func (n *Node) commitPassword(ctx context.Context, p protocol.Password) error {
	field := make([]byte, protocol.MaxPasswordLen)
	copy(field, p)
	return n.store.Write(ctx, n.layout.PasswordAddress, field)
}

func (n *Node) handleVerify(ctx context.Context) error {
	start := time.Now()
	n.setState(StateVerify)

	candidate, ok, err := n.receivePassword(ctx)
	if err != nil {
		return err
	}

	event := &models.AccessEvent{
		Kind:    models.AccessEventVerify,
		Command: protocol.CmdVerify.String(),
	}

	matched := false
	if ok {
		stored, err := n.store.Read(ctx, n.layout.PasswordAddress, protocol.MaxPasswordLen)
		if err != nil {
			n.logger.Error("读取密码失败", zap.Error(err))
			event.ErrorMsg = err.Error()
		} else {
			matched = protocol.Matches(candidate, stored)
		}
	}

	if err := n.codec.Send(ctx, protocol.CmdVerifyResult); err != nil {
		return err
	}
	if err := n.codec.Send(ctx, protocol.Result(matched)); err != nil {
		return err
	}

	event.Result = resultOf(matched)
	event.Duration = time.Since(start).Milliseconds()
	n.record(event)
	return nil
}

func (n *Node) handleAlarm() {
	n.setState(StateAlarmSequence)
	n.arm(models.AccessEventAlarm, protocol.CmdAlarm, n.seq.StartAlarm)
}

func (n *Node) handleUnlock() {
	n.setState(StateDoorSequence)
	n.arm(models.AccessEventDoor, protocol.CmdUnlock, n.seq.StartDoor)
}

// arm 启动序列；已有序列运行时先抢占再启动
func (n *Node) arm(kind models.AccessEventKind, cmd protocol.Command, start func() error) {
	err := start()
	if errors.Is(err, errors.ErrSequenceActive) {
		prev := n.seq.Preempt()
		n.record(&models.AccessEvent{
			Kind:    models.AccessEventPreempted,
			Command: cmd.String(),
			Result:  models.AccessResultOK,
			Detail:  prev.Chain.String() + "/" + prev.Phase.String(),
		})
		err = start()
	}

	event := &models.AccessEvent{
		Kind:    kind,
		Command: cmd.String(),
		Result:  models.AccessResultOK,
	}
	if err != nil {
		n.logger.Error("启动序列失败", zap.Stringer("command", cmd), zap.Error(err))
		event.Result = models.AccessResultError
		event.ErrorMsg = err.Error()
	}
	n.record(event)
}

// post 由定时源协程调用，只入队不做 I/O
func (n *Node) post(sig protocol.Command) {
	select {
	case n.signals <- sig:
	default:
		n.logger.Error("序列信号队列已满，丢弃信号", zap.Stringer("signal", sig))
	}
}

// writeSignals 把序列信号发送给界面节点
func (n *Node) writeSignals(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case sig := <-n.signals:
			event := &models.AccessEvent{
				Kind:    models.AccessEventDoorPhase,
				Command: sig.String(),
				Result:  models.AccessResultOK,
			}
			if sig == protocol.CmdAlarmCleared {
				event.Kind = models.AccessEventAlarmCleared
			}

			if err := n.codec.Send(ctx, sig); err != nil {
				if ctx.Err() != nil {
					return
				}
				n.logger.Error("发送序列信号失败", zap.Stringer("signal", sig), zap.Error(err))
				event.Result = models.AccessResultError
				event.ErrorMsg = err.Error()
			}
			n.record(event)
		}
	}
}

func resultOf(matched bool) string {
	if matched {
		return models.AccessResultMatch
	}
	return models.AccessResultMismatch
}
