package tick

import (
	"sync"
	"time"

	"github.com/wfunc/door-lock/internal/errors"
)

// Manual 手动触发的定时源（用于测试）。
// 每次 Fire 按当前周期推进虚拟时间并同步调用回调。
type Manual struct {
	mu      sync.Mutex
	fn      func()
	period  time.Duration
	armed   bool
	elapsed time.Duration
	fired   int
	periods []time.Duration
}

// NewManual 创建手动定时源
func NewManual() *Manual {
	return &Manual{}
}

// Start 启动
func (m *Manual) Start(period time.Duration, fn func()) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.armed {
		return errors.New(errors.ErrTickSource, "定时源已启动")
	}
	m.fn = fn
	m.period = period
	m.armed = true
	return nil
}

// Reset 修改周期
func (m *Manual) Reset(period time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.armed {
		m.period = period
	}
}

// Stop 停止
func (m *Manual) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.armed = false
	m.fn = nil
}

// Fire 触发一次，未启动时返回 false
func (m *Manual) Fire() bool {
	m.mu.Lock()
	if !m.armed {
		m.mu.Unlock()
		return false
	}
	fn := m.fn
	m.elapsed += m.period
	m.fired++
	m.periods = append(m.periods, m.period)
	m.mu.Unlock()

	fn()
	return true
}

// FireUntilStopped 一直触发到定时源被停止，max 防止死循环
func (m *Manual) FireUntilStopped(max int) int {
	n := 0
	for n < max && m.Fire() {
		n++
	}
	return n
}

// Armed 是否正在运行
func (m *Manual) Armed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.armed
}

// Period 当前周期
func (m *Manual) Period() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.period
}

// Elapsed 累计虚拟时间
func (m *Manual) Elapsed() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.elapsed
}

// Periods 每次触发时所用的周期
func (m *Manual) Periods() []time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]time.Duration, len(m.periods))
	copy(out, m.periods)
	return out
}

// Fired 累计触发次数
func (m *Manual) Fired() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fired
}

// ResetClock 清零虚拟时间和触发记录
func (m *Manual) ResetClock() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.elapsed = 0
	m.fired = 0
	m.periods = nil
}
