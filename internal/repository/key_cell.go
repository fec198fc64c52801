package repository

import (
	"context"
	"errors"

	"github.com/wfunc/door-lock/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// KeyCellRepository 存储单元仓储接口
type KeyCellRepository interface {
	BaseRepository
	// Get 读取单元，单元从未写过时 found 为 false
	Get(ctx context.Context, addr uint16) (value byte, found bool, err error)
	// GetRange 读取 [addr, addr+n) 范围内已写过的单元
	GetRange(ctx context.Context, addr uint16, n int) ([]*models.KeyCell, error)
	// Put 写入单元（存在则覆盖）
	Put(ctx context.Context, addr uint16, value byte) error
	// PutRange 在一个事务中写入连续单元
	PutRange(ctx context.Context, addr uint16, data []byte) error
	// Erase 删除全部单元，恢复出厂状态
	Erase(ctx context.Context) error
}

type keyCellRepo struct {
	*BaseRepo
}

// NewKeyCellRepository 创建存储单元仓储
func NewKeyCellRepository(db *gorm.DB) KeyCellRepository {
	return &keyCellRepo{BaseRepo: NewBaseRepo(db)}
}

// Get 读取单元
func (r *keyCellRepo) Get(ctx context.Context, addr uint16) (byte, bool, error) {
	var cell models.KeyCell
	err := r.db.WithContext(ctx).
		Where("address = ?", addr).
		First(&cell).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return cell.Value, true, nil
}

// GetRange 读取连续单元
func (r *keyCellRepo) GetRange(ctx context.Context, addr uint16, n int) ([]*models.KeyCell, error) {
	var cells []*models.KeyCell
	err := r.db.WithContext(ctx).
		Where("address >= ? AND address < ?", addr, int(addr)+n).
		Order("address ASC").
		Find(&cells).Error
	return cells, err
}

func upsert(tx *gorm.DB, cells []*models.KeyCell) error {
	return tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "address"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(cells).Error
}

// Put 写入单元
func (r *keyCellRepo) Put(ctx context.Context, addr uint16, value byte) error {
	return upsert(r.db.WithContext(ctx), []*models.KeyCell{{Address: addr, Value: value}})
}

// PutRange 写入连续单元
func (r *keyCellRepo) PutRange(ctx context.Context, addr uint16, data []byte) error {
	if len(data) == 0 {
		return nil
	}
	cells := make([]*models.KeyCell, len(data))
	for i, b := range data {
		cells[i] = &models.KeyCell{Address: addr + uint16(i), Value: b}
	}
	return r.Transaction(ctx, func(tx *gorm.DB) error {
		return upsert(tx, cells)
	})
}

// Erase 删除全部单元
func (r *keyCellRepo) Erase(ctx context.Context) error {
	return r.db.WithContext(ctx).Where("1 = 1").Delete(&models.KeyCell{}).Error
}
