// Package api 控制节点的维护接口。
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/wfunc/door-lock/internal/config"
	"github.com/wfunc/door-lock/internal/control"
	"github.com/wfunc/door-lock/internal/middleware"
	"github.com/wfunc/door-lock/internal/service"
	ws "github.com/wfunc/door-lock/internal/websocket"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const shutdownTimeout = 5 * time.Second

// StatusProvider 提供节点状态
type StatusProvider interface {
	Status() control.Status
}

// Deps 路由依赖，DB 和 Services 为空时访问日志接口返回 503
type Deps struct {
	DB       *gorm.DB
	Node     StatusProvider
	Services *service.Services
	Hub      *ws.Hub
}

// Router API路由器
type Router struct {
	engine *gin.Engine
	addr   string
	deps   Deps
	log    *zap.Logger
}

// NewRouter 创建路由器
func NewRouter(cfg *config.APIConfig, deps Deps, log *zap.Logger) *Router {
	if cfg.Mode != "" {
		gin.SetMode(cfg.Mode)
	}

	engine := gin.New()
	engine.Use(middleware.Recovery(log))
	engine.Use(middleware.RequestLogger(log))

	router := &Router{
		engine: engine,
		addr:   cfg.Addr(),
		deps:   deps,
		log:    log,
	}
	router.setupRoutes()
	return router
}

// setupRoutes 设置路由
func (r *Router) setupRoutes() {
	r.engine.GET("/health", r.healthCheck)

	v1 := r.engine.Group("/api/v1")
	{
		v1.GET("/status", r.getStatus)

		var logs *service.AccessLogService
		if r.deps.Services != nil {
			logs = r.deps.Services.AccessLog
		}
		NewAccessLogAPI(logs).RegisterRoutes(v1)
	}

	if r.deps.Hub != nil {
		r.engine.GET("/ws/events", NewWebSocketHandler(r.deps.Hub, r.log).EventStream)
	}

	r.engine.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{
			"code":    "NOT_FOUND",
			"message": "接口不存在",
		})
	})
}

// healthCheck 健康检查
func (r *Router) healthCheck(c *gin.Context) {
	if r.deps.DB != nil {
		sqlDB, err := r.deps.DB.DB()
		if err != nil || sqlDB.PingContext(c.Request.Context()) != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":  "unhealthy",
				"message": "数据库连接失败",
			})
			return
		}
	}

	body := gin.H{"status": "healthy"}
	if r.deps.Node != nil {
		body["state"] = r.deps.Node.Status().State
	}
	c.JSON(http.StatusOK, body)
}

// getStatus 节点状态
func (r *Router) getStatus(c *gin.Context) {
	if r.deps.Node == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"message": "节点未启动"})
		return
	}
	c.JSON(http.StatusOK, r.deps.Node.Status())
}

// Run 运行服务器直到 ctx 结束
func (r *Router) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:    r.addr,
		Handler: r.engine,
	}

	errCh := make(chan error, 1)
	go func() {
		r.log.Info("维护接口启动", zap.String("address", r.addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		r.log.Warn("维护接口关闭失败", zap.Error(err))
		return err
	}
	r.log.Info("维护接口已关闭")
	return nil
}

// GetEngine 获取Gin引擎（用于测试）
func (r *Router) GetEngine() *gin.Engine {
	return r.engine
}
