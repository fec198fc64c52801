// Package keystore 提供按字节寻址的持久化存储。
//
// 未写入过的单元读出 0xFF，与擦除后的 EEPROM 一致。
package keystore

import (
	"context"

	"github.com/wfunc/door-lock/internal/config"
	"github.com/wfunc/door-lock/internal/errors"
	"github.com/wfunc/door-lock/internal/repository"
	"gorm.io/gorm"
)

// Erased 未写入单元的值
const Erased byte = 0xFF

// 默认地址
const (
	DefaultPasswordAddress uint16 = 0x0311
	DefaultFirstUseAddress uint16 = 0x0320
	DefaultSize                   = 2048
)

// Store 字节寻址存储
type Store interface {
	ReadCell(ctx context.Context, addr uint16) (byte, error)
	WriteCell(ctx context.Context, addr uint16, b byte) error
	Read(ctx context.Context, addr uint16, n int) ([]byte, error)
	Write(ctx context.Context, addr uint16, data []byte) error
}

// Layout 固定地址布局
type Layout struct {
	PasswordAddress uint16
	FirstUseAddress uint16
}

// DefaultLayout 参考设备的地址布局
func DefaultLayout() Layout {
	return Layout{
		PasswordAddress: DefaultPasswordAddress,
		FirstUseAddress: DefaultFirstUseAddress,
	}
}

// LayoutFromConfig 从配置读取地址布局
func LayoutFromConfig(cfg *config.KeyStoreConfig) Layout {
	l := DefaultLayout()
	if cfg.PasswordAddress != 0 {
		l.PasswordAddress = cfg.PasswordAddress
	}
	if cfg.FirstUseAddress != 0 {
		l.FirstUseAddress = cfg.FirstUseAddress
	}
	return l
}

// New 按配置创建存储，database 后端需要传入已迁移的 db
func New(cfg *config.KeyStoreConfig, db *gorm.DB) (Store, error) {
	size := cfg.Size
	if size <= 0 {
		size = DefaultSize
	}

	switch cfg.Backend {
	case "memory", "":
		return NewMemory(size), nil
	case "database":
		if db == nil {
			return nil, errors.New(errors.ErrDatabaseConnect, "database 后端需要数据库连接")
		}
		return NewDB(repository.NewKeyCellRepository(db), size), nil
	default:
		return nil, errors.Newf(errors.ErrConfigValidate, "未知的存储后端: %s", cfg.Backend)
	}
}

func checkRange(size int, addr uint16, n int) error {
	if n < 0 || int(addr)+n > size {
		return errors.Newf(errors.ErrAddressRange, "0x%04X+%d 超出容量 %d", addr, n, size)
	}
	return nil
}
