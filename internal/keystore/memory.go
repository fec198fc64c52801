package keystore

import (
	"context"
	"sync"
)

// Memory 内存存储，进程退出后内容丢失
type Memory struct {
	mu    sync.RWMutex
	cells []byte
}

// NewMemory 创建擦除状态的内存存储
func NewMemory(size int) *Memory {
	cells := make([]byte, size)
	for i := range cells {
		cells[i] = Erased
	}
	return &Memory{cells: cells}
}

// ReadCell 读取单个字节
func (m *Memory) ReadCell(ctx context.Context, addr uint16) (byte, error) {
	if err := checkRange(len(m.cells), addr, 1); err != nil {
		return 0, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cells[addr], nil
}

// WriteCell 写入单个字节
func (m *Memory) WriteCell(ctx context.Context, addr uint16, b byte) error {
	if err := checkRange(len(m.cells), addr, 1); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cells[addr] = b
	return nil
}

// Read 读取连续字节
func (m *Memory) Read(ctx context.Context, addr uint16, n int) ([]byte, error) {
	if err := checkRange(len(m.cells), addr, n); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]byte, n)
	copy(out, m.cells[addr:])
	return out, nil
}

// Write 写入连续字节
func (m *Memory) Write(ctx context.Context, addr uint16, data []byte) error {
	if err := checkRange(len(m.cells), addr, len(data)); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	copy(m.cells[addr:], data)
	return nil
}
