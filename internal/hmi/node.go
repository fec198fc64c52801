// Package hmi 实现界面节点：采集密码、显示状态并与控制节点交换命令。
package hmi

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/wfunc/door-lock/internal/errors"
	"github.com/wfunc/door-lock/internal/protocol"
	"go.uber.org/zap"
)

// 默认参数
const (
	DefaultMaxAttempts = 3
	DefaultMessageHold = time.Second
)

// State 界面节点状态
type State string

const (
	StateStartupHandshake State = "startup_handshake"
	StateMainMenu         State = "main_menu"
	StateSetPassword      State = "set_password"
	StateAuth             State = "auth"
	StateLockout          State = "lockout"
	StateDoor             State = "door"
)

// Node 界面节点
type Node struct {
	codec   *protocol.Codec
	keypad  Keypad
	display Display
	logger  *zap.Logger

	hold        time.Duration
	maxAttempts int

	onStateChange func(from, to State)

	mu       sync.RWMutex
	state    State
	attempts int
}

// Option 节点选项
type Option func(*Node)

// WithLogger 设置日志器
func WithLogger(l *zap.Logger) Option {
	return func(n *Node) {
		n.logger = l
	}
}

// WithMessageHold 提示信息停留时间，0 表示不停留
func WithMessageHold(d time.Duration) Option {
	return func(n *Node) {
		if d >= 0 {
			n.hold = d
		}
	}
}

// WithMaxAttempts 触发报警的连续错误次数
func WithMaxAttempts(max int) Option {
	return func(n *Node) {
		if max > 0 {
			n.maxAttempts = max
		}
	}
}

// WithStateChange 状态变化回调
func WithStateChange(fn func(from, to State)) Option {
	return func(n *Node) {
		n.onStateChange = fn
	}
}

// New 创建界面节点
func New(codec *protocol.Codec, keypad Keypad, display Display, opts ...Option) *Node {
	n := &Node{
		codec:       codec,
		keypad:      keypad,
		display:     display,
		logger:      zap.NewNop(),
		hold:        DefaultMessageHold,
		maxAttempts: DefaultMaxAttempts,
		state:       StateStartupHandshake,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// State 当前状态
func (n *Node) State() State {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.state
}

// Attempts 当前连续错误次数
func (n *Node) Attempts() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.attempts
}

func (n *Node) setState(to State) {
	n.mu.Lock()
	from := n.state
	n.state = to
	n.mu.Unlock()

	if from == to {
		return
	}
	n.logger.Debug("状态转换",
		zap.String("from", string(from)),
		zap.String("to", string(to)))
	if n.onStateChange != nil {
		n.onStateChange(from, to)
	}
}

// Run 握手，首次使用时先设置密码，然后循环处理主菜单
func (n *Node) Run(ctx context.Context) error {
	firstUse, err := n.Handshake(ctx)
	if err != nil {
		return err
	}
	if firstUse {
		if err := n.SetPassword(ctx); err != nil {
			return err
		}
	}

	for {
		choice, err := n.menu(ctx)
		if err != nil {
			return err
		}

		ok, err := n.Authenticate(ctx)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}

		switch choice {
		case KeyOpen:
			err = n.OpenDoor(ctx)
		case KeyReset:
			err = n.SetPassword(ctx)
		}
		if err != nil {
			return err
		}
	}
}

// Handshake 通知控制节点初始化完成，返回是否首次使用
func (n *Node) Handshake(ctx context.Context) (bool, error) {
	n.setState(StateStartupHandshake)
	n.display.Show(msgWaitHandshak, "")

	if err := n.codec.Send(ctx, protocol.CmdInitDone); err != nil {
		return false, err
	}
	if err := n.codec.Await(ctx, protocol.CmdFlagFollows); err != nil {
		return false, err
	}
	flag, err := n.codec.Receive(ctx)
	if err != nil {
		return false, err
	}

	firstUse := byte(flag) != protocol.FirstUseMark
	n.logger.Info("握手完成", zap.Bool("first_use", firstUse))
	return firstUse, nil
}

// menu 显示主菜单，只接受开门和修改密码两个键
func (n *Node) menu(ctx context.Context) (Key, error) {
	n.setState(StateMainMenu)
	for {
		n.display.Show(msgMenuOpen, msgMenuChange)
		k, err := n.keypad.ReadKey(ctx)
		if err != nil {
			return 0, err
		}
		if k == KeyOpen || k == KeyReset {
			return k, nil
		}
	}
}

// readPassword 读取最多 5 位数字直到回车，多余的数字被忽略
func (n *Node) readPassword(ctx context.Context, top, bottom string) (protocol.Password, error) {
	p := make(protocol.Password, 0, protocol.MaxPasswordLen)
	n.display.Show(top, bottom)

	for {
		k, err := n.keypad.ReadKey(ctx)
		if err != nil {
			return nil, err
		}
		switch {
		case k == KeyEnter:
			return p, nil
		case k.IsDigit() && len(p) < protocol.MaxPasswordLen:
			p = append(p, byte(k))
			n.display.Show(top, bottom+strings.Repeat("*", len(p)))
		}
	}
}

// SetPassword 两次输入新密码并提交，直到控制节点确认一致
func (n *Node) SetPassword(ctx context.Context) error {
	n.setState(StateSetPassword)

	for {
		first, err := n.readPassword(ctx, msgEnterPass, "")
		if err != nil {
			return err
		}
		second, err := n.readPassword(ctx, msgReenterTop, msgReenterBot)
		if err != nil {
			return err
		}

		result, err := n.exchangeSet(ctx, first, second)
		if err != nil {
			return err
		}
		if result == protocol.CmdMatch {
			n.logger.Info("密码已保存")
			n.display.Show(msgSavedTop, msgSavedBot)
			return n.pause(ctx)
		}
		n.logger.Info("两次输入不一致")
	}
}

func (n *Node) exchangeSet(ctx context.Context, first, second protocol.Password) (protocol.Command, error) {
	if err := n.codec.Send(ctx, protocol.CmdSetPassword); err != nil {
		return 0, err
	}
	if err := n.codec.SendPassword(ctx, first); err != nil {
		return 0, err
	}
	if err := n.codec.Expect(ctx, protocol.CmdSetPassword); err != nil {
		return 0, err
	}
	if err := n.codec.SendPassword(ctx, second); err != nil {
		return 0, err
	}
	if err := n.codec.Expect(ctx, protocol.CmdSetPassword); err != nil {
		return 0, err
	}
	return n.codec.Receive(ctx)
}

// Authenticate 读取密码并校验。连续错误达到上限时触发报警，
// 等报警结束后返回 false；校验通过返回 true。
func (n *Node) Authenticate(ctx context.Context) (bool, error) {
	n.setState(StateAuth)

	for {
		candidate, err := n.readPassword(ctx, msgEnterPass, "")
		if err != nil {
			return false, err
		}

		result, err := n.exchangeVerify(ctx, candidate)
		if err != nil {
			return false, err
		}

		if result == protocol.CmdMatch {
			n.mu.Lock()
			n.attempts = 0
			n.mu.Unlock()

			n.display.Show(msgTruePass, "")
			return true, n.pause(ctx)
		}

		n.mu.Lock()
		n.attempts++
		attempts := n.attempts
		lockout := attempts >= n.maxAttempts
		if lockout {
			n.attempts = 0
		}
		n.mu.Unlock()

		n.logger.Warn("密码错误", zap.Int("attempts", attempts))
		if lockout {
			return false, n.lockout(ctx)
		}

		n.display.Show(msgWrongPass, "")
		if err := n.pause(ctx); err != nil {
			return false, err
		}
	}
}

func (n *Node) exchangeVerify(ctx context.Context, candidate protocol.Password) (protocol.Command, error) {
	if err := n.codec.Send(ctx, protocol.CmdVerify); err != nil {
		return 0, err
	}
	if err := n.codec.SendPassword(ctx, candidate); err != nil {
		return 0, err
	}
	if err := n.codec.Expect(ctx, protocol.CmdVerifyResult); err != nil {
		return 0, err
	}
	return n.codec.Receive(ctx)
}

// lockout 通知控制节点报警并等待报警结束
func (n *Node) lockout(ctx context.Context) error {
	n.setState(StateLockout)
	n.logger.Warn("连续输错密码，触发报警")

	if err := n.codec.Send(ctx, protocol.CmdAlarm); err != nil {
		return err
	}
	n.display.Show(msgErrorTop, msgErrorBot)

	if err := n.codec.Await(ctx, protocol.CmdAlarmCleared); err != nil {
		return err
	}
	n.logger.Info("报警结束")
	return nil
}

// OpenDoor 请求开门并依次等待开门、关门、上锁信号
func (n *Node) OpenDoor(ctx context.Context) error {
	n.setState(StateDoor)

	if err := n.codec.Send(ctx, protocol.CmdUnlock); err != nil {
		return err
	}

	steps := []struct {
		signal      protocol.Command
		top, bottom string
	}{
		{protocol.CmdDoorOpen, msgWelcome, ""},
		{protocol.CmdDoorClosing, msgDoorIs, msgLocking},
		{protocol.CmdDoorLocked, "", ""},
	}

	n.display.Show(msgDoorIs, msgUnlocking)
	for _, step := range steps {
		if err := n.codec.Await(ctx, step.signal); err != nil {
			return err
		}
		n.logger.Info("门状态", zap.Stringer("signal", step.signal))
		if step.signal != protocol.CmdDoorLocked {
			n.display.Show(step.top, step.bottom)
		}
	}
	return nil
}

// pause 保持当前提示
func (n *Node) pause(ctx context.Context) error {
	if n.hold <= 0 {
		return nil
	}
	t := time.NewTimer(n.hold)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), errors.ErrCanceled)
	case <-t.C:
		return nil
	}
}
