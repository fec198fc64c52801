package database

import (
	"fmt"

	"github.com/wfunc/door-lock/internal/errors"
	"github.com/wfunc/door-lock/internal/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// migrationModels 需要迁移的模型
var migrationModels = []interface{}{
	&models.KeyCell{},
	&models.AccessEvent{},
}

// AutoMigrate 自动迁移数据库表结构
func AutoMigrate(db *gorm.DB, log *zap.Logger) error {
	if db == nil {
		return errors.New(errors.ErrDatabaseConnect, "数据库未初始化")
	}

	// 控制节点和模拟器可能共用同一个 SQLite 文件
	if path := dbPath(db); path != "" {
		lock, err := acquireMigrationLock(path, log)
		if err != nil {
			return err
		}
		defer releaseMigrationLock(lock, log)
	}

	log.Info("开始数据库迁移...")
	for _, model := range migrationModels {
		if err := db.AutoMigrate(model); err != nil {
			log.Error("迁移失败",
				zap.String("model", fmt.Sprintf("%T", model)),
				zap.Error(err),
			)
			return errors.Wrapf(err, errors.ErrDatabaseQuery, "迁移 %T", model)
		}
		log.Debug("迁移成功", zap.String("model", fmt.Sprintf("%T", model)))
	}

	log.Info("数据库迁移完成")
	return nil
}
