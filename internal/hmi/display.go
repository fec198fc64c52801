package hmi

import (
	"sync"

	"go.uber.org/zap"
)

// Screen 一帧屏幕内容
type Screen struct {
	Top    string
	Bottom string
}

// DisplayRecorder 记录每次显示的内容
type DisplayRecorder struct {
	mu      sync.Mutex
	screens []Screen
}

// NewDisplayRecorder 创建显示记录器
func NewDisplayRecorder() *DisplayRecorder {
	return &DisplayRecorder{}
}

// Show 实现 Display
func (r *DisplayRecorder) Show(top, bottom string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.screens = append(r.screens, Screen{Top: top, Bottom: bottom})
}

// Screens 返回记录的副本
func (r *DisplayRecorder) Screens() []Screen {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Screen, len(r.screens))
	copy(out, r.screens)
	return out
}

// Last 返回最后一帧
func (r *DisplayRecorder) Last() Screen {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.screens) == 0 {
		return Screen{}
	}
	return r.screens[len(r.screens)-1]
}

// Contains 是否显示过指定的第一行
func (r *DisplayRecorder) Contains(top string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.screens {
		if s.Top == top {
			return true
		}
	}
	return false
}

// LogDisplay 把屏幕内容写入日志，用于没有终端的部署
type LogDisplay struct {
	log *zap.Logger
}

// NewLogDisplay 创建日志显示
func NewLogDisplay(log *zap.Logger) *LogDisplay {
	return &LogDisplay{log: log}
}

// Show 实现 Display
func (d *LogDisplay) Show(top, bottom string) {
	d.log.Info("lcd", zap.String("top", top), zap.String("bottom", bottom))
}
