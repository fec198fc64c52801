package actuator

import (
	"fmt"
	"sync"
)

// Recorder 记录所有动作的执行器（用于测试）
type Recorder struct {
	mu      sync.Mutex
	actions []string
}

// NewRecorder 创建记录器
func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) record(action string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.actions = append(r.actions, action)
}

// Rotate 记录 "rotate CW 100"
func (r *Recorder) Rotate(dir Direction, duty uint8) error {
	r.record(fmt.Sprintf("rotate %s %d", dir, duty))
	return nil
}

// Stop 记录 "stop"
func (r *Recorder) Stop() error {
	r.record("stop")
	return nil
}

// On 记录 "buzzer on"
func (r *Recorder) On() error {
	r.record("buzzer on")
	return nil
}

// Off 记录 "buzzer off"
func (r *Recorder) Off() error {
	r.record("buzzer off")
	return nil
}

// Actions 已记录的动作
func (r *Recorder) Actions() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.actions))
	copy(out, r.actions)
	return out
}

// Clear 清空记录
func (r *Recorder) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.actions = nil
}
