package keystore

import (
	"context"

	"github.com/wfunc/door-lock/internal/errors"
	"github.com/wfunc/door-lock/internal/repository"
)

// DB 数据库存储，每个字节单元一行
type DB struct {
	repo repository.KeyCellRepository
	size int
}

// NewDB 创建数据库存储
func NewDB(repo repository.KeyCellRepository, size int) *DB {
	return &DB{repo: repo, size: size}
}

// ReadCell 读取单个字节，从未写过的单元返回 Erased
func (d *DB) ReadCell(ctx context.Context, addr uint16) (byte, error) {
	if err := checkRange(d.size, addr, 1); err != nil {
		return 0, err
	}
	v, found, err := d.repo.Get(ctx, addr)
	if err != nil {
		return 0, errors.Wrapf(err, errors.ErrKeyStoreRead, "0x%04X", addr)
	}
	if !found {
		return Erased, nil
	}
	return v, nil
}

// WriteCell 写入单个字节
func (d *DB) WriteCell(ctx context.Context, addr uint16, b byte) error {
	if err := checkRange(d.size, addr, 1); err != nil {
		return err
	}
	if err := d.repo.Put(ctx, addr, b); err != nil {
		return errors.Wrapf(err, errors.ErrKeyStoreWrite, "0x%04X", addr)
	}
	return nil
}

// Read 读取连续字节
func (d *DB) Read(ctx context.Context, addr uint16, n int) ([]byte, error) {
	if err := checkRange(d.size, addr, n); err != nil {
		return nil, err
	}
	cells, err := d.repo.GetRange(ctx, addr, n)
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrKeyStoreRead, "0x%04X+%d", addr, n)
	}

	out := make([]byte, n)
	for i := range out {
		out[i] = Erased
	}
	for _, c := range cells {
		out[c.Address-addr] = c.Value
	}
	return out, nil
}

// Write 写入连续字节
func (d *DB) Write(ctx context.Context, addr uint16, data []byte) error {
	if err := checkRange(d.size, addr, len(data)); err != nil {
		return err
	}
	if err := d.repo.PutRange(ctx, addr, data); err != nil {
		return errors.Wrapf(err, errors.ErrKeyStoreWrite, "0x%04X+%d", addr, len(data))
	}
	return nil
}
