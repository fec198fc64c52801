// Package actuator 定义门锁电机和报警蜂鸣器。
package actuator

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Direction 电机转向
type Direction int

const (
	Clockwise        Direction = iota // 开锁
	CounterClockwise                  // 上锁
)

func (d Direction) String() string {
	switch d {
	case Clockwise:
		return "CW"
	case CounterClockwise:
		return "CCW"
	default:
		return fmt.Sprintf("Direction(%d)", int(d))
	}
}

// FullDuty 满占空比
const FullDuty uint8 = 100

// Motor 门锁电机
type Motor interface {
	Rotate(dir Direction, duty uint8) error
	Stop() error
}

// Buzzer 报警蜂鸣器
type Buzzer interface {
	On() error
	Off() error
}

// MotorState 电机状态
type MotorState struct {
	Running   bool      `json:"running"`
	Direction Direction `json:"direction"`
	Duty      uint8     `json:"duty"`
}

// LogMotor 只记录日志的电机，用于没有驱动板的环境
type LogMotor struct {
	mu     sync.Mutex
	state  MotorState
	logger *zap.Logger
}

// NewLogMotor 创建日志电机
func NewLogMotor(log *zap.Logger) *LogMotor {
	return &LogMotor{logger: log}
}

// Rotate 转动
func (m *LogMotor) Rotate(dir Direction, duty uint8) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = MotorState{Running: true, Direction: dir, Duty: duty}
	m.logger.Info("电机转动", zap.Stringer("direction", dir), zap.Uint8("duty", duty))
	return nil
}

// Stop 停止
func (m *LogMotor) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = MotorState{Direction: m.state.Direction}
	m.logger.Info("电机停止")
	return nil
}

// State 当前状态
func (m *LogMotor) State() MotorState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// LogBuzzer 只记录日志的蜂鸣器
type LogBuzzer struct {
	mu     sync.Mutex
	on     bool
	logger *zap.Logger
}

// NewLogBuzzer 创建日志蜂鸣器
func NewLogBuzzer(log *zap.Logger) *LogBuzzer {
	return &LogBuzzer{logger: log}
}

// On 开启
func (b *LogBuzzer) On() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.on = true
	b.logger.Warn("蜂鸣器开启")
	return nil
}

// Off 关闭
func (b *LogBuzzer) Off() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.on = false
	b.logger.Info("蜂鸣器关闭")
	return nil
}

// IsOn 是否鸣响
func (b *LogBuzzer) IsOn() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.on
}
