// Package sequencer 实现按节拍计数的执行序列。
//
// 报警序列：蜂鸣器响满 6 个长周期后关闭并发出 'D'。
// 开门序列：第 2 拍电机停止并发出 'U'，切换为短周期；第 3 拍电机反转并发出 'H'，
// 恢复长周期；第 5 拍电机停止并发出 'L'。节拍计数在周期切换时不清零。
package sequencer

import (
	"sync"
	"time"

	"github.com/wfunc/door-lock/internal/actuator"
	"github.com/wfunc/door-lock/internal/errors"
	"github.com/wfunc/door-lock/internal/protocol"
	"github.com/wfunc/door-lock/internal/tick"
	"go.uber.org/zap"
)

// 序列节拍
const (
	AlarmTicks       = 6
	DoorOpenTick     = 2
	DoorClosingTick  = 3
	DoorLockedTick   = 5
	DefaultLongTick  = 7500 * time.Millisecond
	DefaultShortTick = 3 * time.Second
)

// Chain 序列类型
type Chain int

const (
	ChainNone Chain = iota
	ChainAlarm
	ChainDoor
)

func (c Chain) String() string {
	switch c {
	case ChainAlarm:
		return "alarm"
	case ChainDoor:
		return "door"
	default:
		return "none"
	}
}

// MarshalText 以名称输出到 JSON
func (c Chain) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// Phase 序列阶段
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseAlarmOn
	PhaseSilence
	PhaseUnlocking
	PhaseHoldOpen
	PhaseLocking
	PhaseLocked
)

var phaseNames = map[Phase]string{
	PhaseIdle:      "IDLE",
	PhaseAlarmOn:   "ALARM_ON",
	PhaseSilence:   "SILENCE",
	PhaseUnlocking: "UNLOCKING",
	PhaseHoldOpen:  "HOLD_OPEN",
	PhaseLocking:   "LOCKING",
	PhaseLocked:    "LOCKED",
}

func (p Phase) String() string {
	if name, ok := phaseNames[p]; ok {
		return name
	}
	return "UNKNOWN"
}

// MarshalText 以名称输出到 JSON
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// State 序列状态快照
type State struct {
	ElapsedTicks int           `json:"elapsed_ticks"`
	Period       time.Duration `json:"period"`
	Phase        Phase         `json:"phase"`
	Active       bool          `json:"active"`
	Chain        Chain         `json:"chain"`
}

// Timing 长短周期
type Timing struct {
	Long  time.Duration
	Short time.Duration
}

// DefaultTiming 参考设备的周期
func DefaultTiming() Timing {
	return Timing{Long: DefaultLongTick, Short: DefaultShortTick}
}

// Sequencer 执行序列
type Sequencer struct {
	mu     sync.Mutex
	source tick.Source
	motor  actuator.Motor
	buzzer actuator.Buzzer
	timing Timing
	notify func(protocol.Command)
	logger *zap.Logger

	observers []func(State)

	state State
	// 每次启动或结束序列都会递增，过期的回调据此忽略自己
	gen uint64
}

// Option 序列选项
type Option func(*Sequencer)

// WithTiming 设置周期
func WithTiming(t Timing) Option {
	return func(s *Sequencer) {
		if t.Long > 0 {
			s.timing.Long = t.Long
		}
		if t.Short > 0 {
			s.timing.Short = t.Short
		}
	}
}

// WithLogger 设置日志器
func WithLogger(l *zap.Logger) Option {
	return func(s *Sequencer) {
		s.logger = l
	}
}

// WithObserver 每次状态变化后回调，回调中不能再调用序列方法
func WithObserver(fn func(State)) Option {
	return func(s *Sequencer) {
		s.observers = append(s.observers, fn)
	}
}

// New 创建执行序列。notify 在定时源协程中调用，不能阻塞。
func New(source tick.Source, motor actuator.Motor, buzzer actuator.Buzzer, notify func(protocol.Command), opts ...Option) *Sequencer {
	s := &Sequencer{
		source: source,
		motor:  motor,
		buzzer: buzzer,
		timing: DefaultTiming(),
		notify: notify,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.state.Period = s.timing.Long
	return s
}

// Timing 当前周期配置
func (s *Sequencer) Timing() Timing {
	return s.timing
}

// State 当前状态
func (s *Sequencer) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// StartAlarm 蜂鸣器开启并启动报警序列
func (s *Sequencer) StartAlarm() error {
	return s.start(ChainAlarm, PhaseAlarmOn, func() error {
		return s.buzzer.On()
	})
}

// StartDoor 电机正转开锁并启动开门序列
func (s *Sequencer) StartDoor() error {
	return s.start(ChainDoor, PhaseUnlocking, func() error {
		return s.motor.Rotate(actuator.Clockwise, actuator.FullDuty)
	})
}

func (s *Sequencer) start(chain Chain, phase Phase, actuate func() error) error {
	s.mu.Lock()

	if s.state.Active {
		current := s.state.Chain
		s.mu.Unlock()
		return errors.Newf(errors.ErrSequenceActive, "%s 序列运行中", current)
	}

	s.gen++
	gen := s.gen
	if err := s.source.Start(s.timing.Long, func() { s.onTick(gen) }); err != nil {
		s.mu.Unlock()
		return errors.Wrapf(err, errors.ErrTickSource, "启动 %s 序列", chain)
	}

	if err := actuate(); err != nil {
		s.logger.Error("执行器动作失败",
			zap.Stringer("chain", chain),
			zap.Error(errors.Wrap(err, errors.ErrActuator)))
	}

	s.state = State{
		Period: s.timing.Long,
		Phase:  phase,
		Active: true,
		Chain:  chain,
	}
	snapshot := s.state
	s.mu.Unlock()

	s.logger.Info("序列启动",
		zap.Stringer("chain", chain),
		zap.Duration("period", snapshot.Period))
	s.observe(snapshot)
	return nil
}

// Preempt 丢弃正在运行的序列并让执行器回到安全状态，返回被丢弃的状态
func (s *Sequencer) Preempt() State {
	s.mu.Lock()
	prev := s.state
	if !prev.Active {
		s.mu.Unlock()
		return prev
	}
	s.halt()
	snapshot := s.state
	s.mu.Unlock()

	s.logger.Warn("序列被抢占",
		zap.Stringer("chain", prev.Chain),
		zap.Stringer("phase", prev.Phase),
		zap.Int("elapsed_ticks", prev.ElapsedTicks))
	s.observe(snapshot)
	return prev
}

// Stop 停止定时源并关闭执行器，用于退出
func (s *Sequencer) Stop() {
	s.mu.Lock()
	active := s.state.Active
	if active {
		s.halt()
	}
	s.mu.Unlock()

	if active {
		s.logger.Info("序列已停止")
	}
}

// halt 调用方持有锁
func (s *Sequencer) halt() {
	s.source.Stop()
	s.gen++
	if err := s.motor.Stop(); err != nil {
		s.logger.Error("电机停止失败", zap.Error(errors.Wrap(err, errors.ErrActuator)))
	}
	if err := s.buzzer.Off(); err != nil {
		s.logger.Error("蜂鸣器关闭失败", zap.Error(errors.Wrap(err, errors.ErrActuator)))
	}
	s.state = State{Period: s.state.Period}
}

func (s *Sequencer) onTick(gen uint64) {
	s.mu.Lock()
	if gen != s.gen || !s.state.Active {
		s.mu.Unlock()
		return
	}

	s.state.ElapsedTicks++
	var signal protocol.Command
	switch s.state.Chain {
	case ChainAlarm:
		signal = s.alarmStep()
	case ChainDoor:
		signal = s.doorStep()
	}
	snapshot := s.state
	s.mu.Unlock()

	if signal != 0 {
		s.logger.Info("序列信号",
			zap.Stringer("signal", signal),
			zap.Stringer("phase", snapshot.Phase))
		s.notify(signal)
	}
	s.observe(snapshot)
}

// alarmStep 调用方持有锁
func (s *Sequencer) alarmStep() protocol.Command {
	if s.state.ElapsedTicks < AlarmTicks {
		return 0
	}
	s.actuate("蜂鸣器关闭", s.buzzer.Off)
	s.state.Phase = PhaseSilence
	s.finish()
	return protocol.CmdAlarmCleared
}

// doorStep 调用方持有锁
func (s *Sequencer) doorStep() protocol.Command {
	switch s.state.ElapsedTicks {
	case DoorOpenTick:
		s.actuate("电机停止", s.motor.Stop)
		s.state.Phase = PhaseHoldOpen
		s.setPeriod(s.timing.Short)
		return protocol.CmdDoorOpen
	case DoorClosingTick:
		s.actuate("电机反转", func() error {
			return s.motor.Rotate(actuator.CounterClockwise, actuator.FullDuty)
		})
		s.state.Phase = PhaseLocking
		s.setPeriod(s.timing.Long)
		return protocol.CmdDoorClosing
	case DoorLockedTick:
		s.actuate("电机停止", s.motor.Stop)
		s.state.Phase = PhaseLocked
		s.finish()
		return protocol.CmdDoorLocked
	}
	return 0
}

func (s *Sequencer) setPeriod(d time.Duration) {
	s.state.Period = d
	s.source.Reset(d)
}

// finish 序列结束：停止定时源并清零计数，保留最终阶段
func (s *Sequencer) finish() {
	s.source.Stop()
	s.gen++
	s.state = State{Period: s.state.Period, Phase: s.state.Phase}
}

func (s *Sequencer) actuate(action string, fn func() error) {
	if err := fn(); err != nil {
		s.logger.Error("执行器动作失败",
			zap.String("action", action),
			zap.Error(errors.Wrap(err, errors.ErrActuator)))
	}
}

func (s *Sequencer) observe(st State) {
	for _, fn := range s.observers {
		fn(st)
	}
}
