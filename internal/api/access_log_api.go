package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/wfunc/door-lock/internal/errors"
	"github.com/wfunc/door-lock/internal/models"
	"github.com/wfunc/door-lock/internal/service"
)

// AccessLogAPI 访问日志API
type AccessLogAPI struct {
	service *service.AccessLogService
}

// NewAccessLogAPI 创建访问日志API，service 为空时接口返回 503
func NewAccessLogAPI(service *service.AccessLogService) *AccessLogAPI {
	return &AccessLogAPI{service: service}
}

// RegisterRoutes 注册路由
func (api *AccessLogAPI) RegisterRoutes(router *gin.RouterGroup) {
	events := router.Group("/events")
	events.Use(api.requireService)
	{
		events.GET("", api.QueryEvents)            // 查询事件列表
		events.GET("/stats", api.GetStats)         // 统计信息
		events.GET("/session/:id", api.GetSession) // 某次运行的事件
		events.POST("/cleanup", api.CleanupEvents) // 清理旧事件
	}
}

func (api *AccessLogAPI) requireService(c *gin.Context) {
	if api.service == nil {
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"message": "访问日志未启用"})
		return
	}
	c.Next()
}

// fail 按错误码返回
func fail(c *gin.Context, err error) {
	appErr, ok := err.(*errors.AppError)
	if !ok {
		appErr = errors.Wrap(err, errors.ErrUnknown)
	}
	c.JSON(appErr.HTTPStatus(), errors.NewErrorResponse(appErr))
}

// QueryEvents 查询事件列表
func (api *AccessLogAPI) QueryEvents(c *gin.Context) {
	query := &models.AccessEventQuery{}
	if err := c.ShouldBindQuery(query); err != nil {
		fail(c, errors.Wrap(err, errors.ErrInvalidParam, "查询参数"))
		return
	}

	events, total, err := api.service.Query(c.Request.Context(), query)
	if err != nil {
		fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":   events,
		"total":  total,
		"limit":  query.Limit,
		"offset": query.Offset,
	})
}

// GetStats 统计信息，hours 限定最近若干小时
func (api *AccessLogAPI) GetStats(c *gin.Context) {
	var since *time.Time
	if h := c.Query("hours"); h != "" {
		hours, err := strconv.Atoi(h)
		if err != nil || hours <= 0 {
			fail(c, errors.New(errors.ErrInvalidParam, "hours"))
			return
		}
		t := time.Now().Add(-time.Duration(hours) * time.Hour)
		since = &t
	}

	stats, err := api.service.Stats(c.Request.Context(), since)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// GetSession 某次运行的全部事件
func (api *AccessLogAPI) GetSession(c *gin.Context) {
	events, err := api.service.Session(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": events})
}

// CleanupEvents 删除 days 天之前的事件，默认 30 天
func (api *AccessLogAPI) CleanupEvents(c *gin.Context) {
	days, err := strconv.Atoi(c.DefaultQuery("days", "30"))
	if err != nil {
		fail(c, errors.New(errors.ErrInvalidParam, "days"))
		return
	}

	deleted, err := api.service.Cleanup(c.Request.Context(), time.Duration(days)*24*time.Hour)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": deleted})
}
