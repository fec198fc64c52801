package models

import (
	"time"

	"gorm.io/gorm"
)

// AccessEventKind 访问事件类型
type AccessEventKind string

const (
	AccessEventHandshake    AccessEventKind = "handshake"    // 启动握手
	AccessEventSetPassword  AccessEventKind = "set_password" // 设置密码
	AccessEventVerify       AccessEventKind = "verify"       // 校验密码
	AccessEventAlarm        AccessEventKind = "alarm"        // 报警开始
	AccessEventAlarmCleared AccessEventKind = "alarm_clear"  // 报警结束
	AccessEventDoor         AccessEventKind = "door"         // 开门请求
	AccessEventDoorPhase    AccessEventKind = "door_phase"   // 门状态变化
	AccessEventPreempted    AccessEventKind = "preempted"    // 序列被抢占
)

// 访问结果
const (
	AccessResultOK       = "ok"
	AccessResultMatch    = "match"
	AccessResultMismatch = "mismatch"
	AccessResultError    = "error"
)

// AccessEvent 控制节点记录的访问事件
type AccessEvent struct {
	ID        uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	CreatedAt time.Time `gorm:"index;not null" json:"created_at"`

	Node      string          `gorm:"type:varchar(50);index" json:"node"`
	SessionID string          `gorm:"type:varchar(64);index" json:"session_id"`
	Kind      AccessEventKind `gorm:"type:varchar(20);index;not null" json:"kind"`
	Command   string          `gorm:"type:varchar(20)" json:"command,omitempty"` // 线路上的命令名
	Result    string          `gorm:"type:varchar(20);index" json:"result,omitempty"`
	Detail    string          `gorm:"type:varchar(255)" json:"detail,omitempty"`
	ErrorMsg  string          `gorm:"type:text" json:"error_msg,omitempty"`

	Duration  int64 `gorm:"default:0" json:"duration,omitempty"` // 处理时长（毫秒）
	Timestamp int64 `gorm:"index" json:"timestamp"`              // Unix时间戳（毫秒）
}

// TableName 指定表名
func (AccessEvent) TableName() string {
	return "access_events"
}

// BeforeCreate 创建前的钩子
func (e *AccessEvent) BeforeCreate(tx *gorm.DB) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	if e.Timestamp == 0 {
		e.Timestamp = e.CreatedAt.UnixMilli()
	}
	return nil
}

// AccessEventQuery 查询参数
type AccessEventQuery struct {
	Kind      AccessEventKind `form:"kind" json:"kind,omitempty"`
	Result    string          `form:"result" json:"result,omitempty"`
	SessionID string          `form:"session_id" json:"session_id,omitempty"`
	StartTime *time.Time      `form:"start_time" time_format:"2006-01-02T15:04:05Z07:00" json:"start_time,omitempty"`
	EndTime   *time.Time      `form:"end_time" time_format:"2006-01-02T15:04:05Z07:00" json:"end_time,omitempty"`
	Limit     int             `form:"limit" json:"limit,omitempty"`
	Offset    int             `form:"offset" json:"offset,omitempty"`
}

// AccessEventStats 统计信息
type AccessEventStats struct {
	TotalCount    int64 `json:"total_count"`
	TotalVerify   int64 `json:"total_verify"`
	TotalMismatch int64 `json:"total_mismatch"`
	TotalAlarms   int64 `json:"total_alarms"`
	TotalOpens    int64 `json:"total_opens"`
}
