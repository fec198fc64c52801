package repository

import (
	"context"
	"time"

	"github.com/wfunc/door-lock/internal/models"
	"gorm.io/gorm"
)

// AccessEventRepository 访问事件仓储接口
type AccessEventRepository interface {
	BaseRepository
	Create(ctx context.Context, event *models.AccessEvent) error
	GetBySessionID(ctx context.Context, sessionID string) ([]*models.AccessEvent, error)
	Query(ctx context.Context, query *models.AccessEventQuery) ([]*models.AccessEvent, int64, error)
	GetStats(ctx context.Context, since *time.Time) (*models.AccessEventStats, error)
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

type accessEventRepo struct {
	*BaseRepo
}

// NewAccessEventRepository 创建访问事件仓储
func NewAccessEventRepository(db *gorm.DB) AccessEventRepository {
	return &accessEventRepo{BaseRepo: NewBaseRepo(db)}
}

// Create 记录事件
func (r *accessEventRepo) Create(ctx context.Context, event *models.AccessEvent) error {
	return r.db.WithContext(ctx).Create(event).Error
}

// GetBySessionID 根据会话ID获取事件
func (r *accessEventRepo) GetBySessionID(ctx context.Context, sessionID string) ([]*models.AccessEvent, error) {
	var events []*models.AccessEvent
	err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("id ASC").
		Find(&events).Error
	return events, err
}

// Query 查询事件
func (r *accessEventRepo) Query(ctx context.Context, query *models.AccessEventQuery) ([]*models.AccessEvent, int64, error) {
	db := r.db.WithContext(ctx).Model(&models.AccessEvent{})

	if query.Kind != "" {
		db = db.Where("kind = ?", query.Kind)
	}
	if query.Result != "" {
		db = db.Where("result = ?", query.Result)
	}
	if query.SessionID != "" {
		db = db.Where("session_id = ?", query.SessionID)
	}
	if query.StartTime != nil {
		db = db.Where("created_at >= ?", *query.StartTime)
	}
	if query.EndTime != nil {
		db = db.Where("created_at <= ?", *query.EndTime)
	}

	var total int64
	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	db = db.Order("id DESC")
	if query.Limit > 0 {
		db = db.Limit(query.Limit)
	}
	if query.Offset > 0 {
		db = db.Offset(query.Offset)
	}

	var events []*models.AccessEvent
	if err := db.Find(&events).Error; err != nil {
		return nil, 0, err
	}
	return events, total, nil
}

// GetStats 获取统计信息
func (r *accessEventRepo) GetStats(ctx context.Context, since *time.Time) (*models.AccessEventStats, error) {
	stats := &models.AccessEventStats{}
	base := func() *gorm.DB {
		db := r.db.WithContext(ctx).Model(&models.AccessEvent{})
		if since != nil {
			db = db.Where("created_at >= ?", *since)
		}
		return db
	}

	if err := base().Count(&stats.TotalCount).Error; err != nil {
		return nil, err
	}
	if err := base().Where("kind = ?", models.AccessEventVerify).Count(&stats.TotalVerify).Error; err != nil {
		return nil, err
	}
	if err := base().Where("result = ?", models.AccessResultMismatch).Count(&stats.TotalMismatch).Error; err != nil {
		return nil, err
	}
	if err := base().Where("kind = ?", models.AccessEventAlarm).Count(&stats.TotalAlarms).Error; err != nil {
		return nil, err
	}
	if err := base().Where("kind = ?", models.AccessEventDoor).Count(&stats.TotalOpens).Error; err != nil {
		return nil, err
	}
	return stats, nil
}

// DeleteBefore 清理过期事件
func (r *accessEventRepo) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("created_at < ?", before).
		Delete(&models.AccessEvent{})
	return result.RowsAffected, result.Error
}
