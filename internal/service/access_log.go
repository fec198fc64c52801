package service

import (
	"context"
	"time"

	"github.com/wfunc/door-lock/internal/errors"
	"github.com/wfunc/door-lock/internal/models"
	"github.com/wfunc/door-lock/internal/repository"
	"go.uber.org/zap"
)

// AccessLogService 访问日志服务
type AccessLogService struct {
	repo   repository.AccessEventRepository
	logger *zap.Logger
}

// NewAccessLogService 创建访问日志服务
func NewAccessLogService(repo repository.AccessEventRepository, log *zap.Logger) *AccessLogService {
	return &AccessLogService{repo: repo, logger: log}
}

// Query 分页查询，limit 超出范围时取默认值
func (s *AccessLogService) Query(ctx context.Context, query *models.AccessEventQuery) ([]*models.AccessEvent, int64, error) {
	if query.Limit <= 0 || query.Limit > repository.MaxPageSize {
		query.Limit = repository.DefaultPageSize
	}
	if query.Offset < 0 {
		query.Offset = 0
	}
	if query.StartTime != nil && query.EndTime != nil && query.EndTime.Before(*query.StartTime) {
		return nil, 0, errors.New(errors.ErrInvalidParam, "结束时间早于开始时间")
	}

	events, total, err := s.repo.Query(ctx, query)
	if err != nil {
		return nil, 0, errors.Wrap(err, errors.ErrDatabaseQuery, "查询访问事件")
	}
	return events, total, nil
}

// Latest 最近的 n 条事件
func (s *AccessLogService) Latest(ctx context.Context, n int) ([]*models.AccessEvent, error) {
	events, _, err := s.Query(ctx, &models.AccessEventQuery{Limit: n})
	return events, err
}

// Session 某次运行的全部事件
func (s *AccessLogService) Session(ctx context.Context, sessionID string) ([]*models.AccessEvent, error) {
	if sessionID == "" {
		return nil, errors.New(errors.ErrInvalidParam, "会话ID为空")
	}
	events, err := s.repo.GetBySessionID(ctx, sessionID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrDatabaseQuery, "查询会话事件")
	}
	return events, nil
}

// Stats 统计 since 之后的事件，since 为 nil 时统计全部
func (s *AccessLogService) Stats(ctx context.Context, since *time.Time) (*models.AccessEventStats, error) {
	stats, err := s.repo.GetStats(ctx, since)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrDatabaseQuery, "统计访问事件")
	}
	return stats, nil
}

// Cleanup 删除早于保留期的事件
func (s *AccessLogService) Cleanup(ctx context.Context, retention time.Duration) (int64, error) {
	if retention <= 0 {
		return 0, errors.New(errors.ErrInvalidParam, "保留期必须大于0")
	}

	before := time.Now().Add(-retention)
	n, err := s.repo.DeleteBefore(ctx, before)
	if err != nil {
		return 0, errors.Wrap(err, errors.ErrDatabaseQuery, "清理访问事件")
	}
	s.logger.Info("清理访问事件",
		zap.Time("before", before),
		zap.Int64("deleted", n))
	return n, nil
}
