package control

import (
	"context"
	"time"

	"github.com/wfunc/door-lock/internal/models"
	"go.uber.org/zap"
)

const recordTimeout = 2 * time.Second

// record 记录访问事件：写日志、持久化并通知订阅者
func (n *Node) record(e *models.AccessEvent) {
	n.mu.RLock()
	e.Node = n.name
	e.SessionID = n.sessionID
	n.mu.RUnlock()

	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}

	n.logger.Info("access_event",
		zap.String("event", string(e.Kind)),
		zap.String("command", e.Command),
		zap.String("session_id", e.SessionID),
		zap.String("result", e.Result))

	if n.events != nil {
		// 与命令的 ctx 无关，退出过程中的事件也要落库
		ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
		err := n.events.Create(ctx, e)
		cancel()
		if err != nil {
			n.logger.Warn("保存访问事件失败",
				zap.String("kind", string(e.Kind)),
				zap.Error(err))
		}
	}

	for _, fn := range n.listeners {
		fn(e)
	}
}
