// Package service 为维护接口提供业务服务。
package service

import (
	"github.com/wfunc/door-lock/internal/repository"
	"go.uber.org/zap"
)

// Services 服务集合
type Services struct {
	AccessLog *AccessLogService
}

// NewServices 创建服务集合
func NewServices(repos *repository.Manager, log *zap.Logger) *Services {
	return &Services{
		AccessLog: NewAccessLogService(repos.AccessEvents(), log),
	}
}
