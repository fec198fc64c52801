// Package tick 提供周期定时源。
//
// 定时源启动后每个周期调用一次回调，直到停止；运行中可以修改周期。
// 回调在定时源自己的协程中执行，可以在回调里调用 Reset 和 Stop。
package tick

import (
	"sync"
	"time"

	"github.com/wfunc/door-lock/internal/errors"
)

// Source 周期定时源
type Source interface {
	Start(period time.Duration, fn func()) error
	Reset(period time.Duration)
	Stop()
}

// Ticker 基于 time.Ticker 的定时源
type Ticker struct {
	mu     sync.Mutex
	ticker *time.Ticker
	stopCh chan struct{}
}

// NewTicker 创建定时源
func NewTicker() *Ticker {
	return &Ticker{}
}

// Start 启动定时源
func (t *Ticker) Start(period time.Duration, fn func()) error {
	if period <= 0 {
		return errors.Newf(errors.ErrTickSource, "无效周期 %s", period)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.ticker != nil {
		return errors.New(errors.ErrTickSource, "定时源已启动")
	}

	ticker := time.NewTicker(period)
	stopCh := make(chan struct{})
	t.ticker = ticker
	t.stopCh = stopCh

	go func() {
		for {
			select {
			case <-stopCh:
				return
			case <-ticker.C:
				// Stop 与到期可能同时就绪
				select {
				case <-stopCh:
					return
				default:
				}
				fn()
			}
		}
	}()

	return nil
}

// Reset 修改周期，从现在开始计时
func (t *Ticker) Reset(period time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.ticker != nil && period > 0 {
		t.ticker.Reset(period)
	}
}

// Stop 停止定时源，不等待正在执行的回调
func (t *Ticker) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.ticker == nil {
		return
	}
	t.ticker.Stop()
	close(t.stopCh)
	t.ticker = nil
	t.stopCh = nil
}

// Armed 是否正在运行
func (t *Ticker) Armed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.ticker != nil
}
