package keystore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"github.com/wfunc/door-lock/internal/config"
	"github.com/wfunc/door-lock/internal/database"
	"github.com/wfunc/door-lock/internal/errors"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.Open(&config.DatabaseConfig{
		Driver:       "sqlite",
		DSN:          ":memory:",
		MaxIdleConns: 1,
		MaxOpenConns: 1,
		LogLevel:     "silent",
	}, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, database.AutoMigrate(db, zap.NewNop()))
	t.Cleanup(func() { database.Close(db) })
	return db
}

// StoreTestSuite 两种后端共用的行为测试
type StoreTestSuite struct {
	suite.Suite
	newStore func(t *testing.T) Store
	store    Store
	ctx      context.Context
}

func (s *StoreTestSuite) SetupTest() {
	s.store = s.newStore(s.T())
	s.ctx = context.Background()
}

func (s *StoreTestSuite) TestErasedByDefault() {
	v, err := s.store.ReadCell(s.ctx, DefaultFirstUseAddress)
	s.Require().NoError(err)
	s.Equal(Erased, v)

	data, err := s.store.Read(s.ctx, DefaultPasswordAddress, 5)
	s.Require().NoError(err)
	s.Equal([]byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF}, data)
}

func (s *StoreTestSuite) TestWriteReadCell() {
	s.Require().NoError(s.store.WriteCell(s.ctx, DefaultFirstUseAddress, 'F'))

	v, err := s.store.ReadCell(s.ctx, DefaultFirstUseAddress)
	s.Require().NoError(err)
	s.Equal(byte('F'), v)
}

func (s *StoreTestSuite) TestWriteReadRange() {
	s.Require().NoError(s.store.Write(s.ctx, DefaultPasswordAddress, []byte("123")))

	data, err := s.store.Read(s.ctx, DefaultPasswordAddress, 5)
	s.Require().NoError(err)
	s.Equal([]byte{'1', '2', '3', 0xFF, 0xFF}, data)

	// 覆盖写入
	s.Require().NoError(s.store.Write(s.ctx, DefaultPasswordAddress, []byte{'9', 0, 0, 0, 0}))
	data, err = s.store.Read(s.ctx, DefaultPasswordAddress, 5)
	s.Require().NoError(err)
	s.Equal([]byte{'9', 0, 0, 0, 0}, data)

	// 相邻单元不受影响
	v, err := s.store.ReadCell(s.ctx, DefaultPasswordAddress+5)
	s.Require().NoError(err)
	s.Equal(Erased, v)
}

func (s *StoreTestSuite) TestAddressRange() {
	_, err := s.store.ReadCell(s.ctx, DefaultSize)
	s.True(errors.Is(err, errors.ErrAddressRange))

	err = s.store.Write(s.ctx, DefaultSize-2, []byte("123"))
	s.True(errors.Is(err, errors.ErrAddressRange))

	_, err = s.store.Read(s.ctx, 0, -1)
	s.True(errors.Is(err, errors.ErrAddressRange))

	s.NoError(s.store.WriteCell(s.ctx, DefaultSize-1, 1))
}

func TestMemoryStore(t *testing.T) {
	suite.Run(t, &StoreTestSuite{newStore: func(t *testing.T) Store {
		return NewMemory(DefaultSize)
	}})
}

func TestDBStore(t *testing.T) {
	suite.Run(t, &StoreTestSuite{newStore: func(t *testing.T) Store {
		s, err := New(&config.KeyStoreConfig{Backend: "database"}, openTestDB(t))
		require.NoError(t, err)
		return s
	}})
}

func TestNew(t *testing.T) {
	s, err := New(&config.KeyStoreConfig{Backend: "memory", Size: 16}, nil)
	require.NoError(t, err)
	assert.IsType(t, &Memory{}, s)

	_, err = s.ReadCell(context.Background(), 16)
	assert.True(t, errors.Is(err, errors.ErrAddressRange))

	_, err = New(&config.KeyStoreConfig{Backend: "database"}, nil)
	assert.Error(t, err)

	_, err = New(&config.KeyStoreConfig{Backend: "flash"}, nil)
	assert.True(t, errors.Is(err, errors.ErrConfigValidate))
}

func TestLayoutFromConfig(t *testing.T) {
	assert.Equal(t, DefaultLayout(), LayoutFromConfig(&config.KeyStoreConfig{}))

	l := LayoutFromConfig(&config.KeyStoreConfig{PasswordAddress: 0x10, FirstUseAddress: 0x20})
	assert.Equal(t, uint16(0x10), l.PasswordAddress)
	assert.Equal(t, uint16(0x20), l.FirstUseAddress)
}
