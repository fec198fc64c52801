package repository

import (
	"context"
	"sync"

	"gorm.io/gorm"
)

// Manager 仓储管理器，提供所有仓储的统一访问接口
type Manager struct {
	db *gorm.DB

	keyCellOnce sync.Once
	keyCell     KeyCellRepository

	accessEventOnce sync.Once
	accessEvent     AccessEventRepository
}

// NewManager 创建仓储管理器
func NewManager(db *gorm.DB) *Manager {
	return &Manager{db: db}
}

// DB 底层连接
func (m *Manager) DB() *gorm.DB {
	return m.db
}

// KeyCells 密钥存储单元仓储
func (m *Manager) KeyCells() KeyCellRepository {
	m.keyCellOnce.Do(func() {
		m.keyCell = NewKeyCellRepository(m.db)
	})
	return m.keyCell
}

// AccessEvents 访问事件仓储
func (m *Manager) AccessEvents() AccessEventRepository {
	m.accessEventOnce.Do(func() {
		m.accessEvent = NewAccessEventRepository(m.db)
	})
	return m.accessEvent
}

// WithTx 在事务中执行，fn 收到绑定到事务的管理器
func (m *Manager) WithTx(ctx context.Context, fn func(tx *Manager) error) error {
	return m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(NewManager(tx))
	})
}
