package models

import "time"

// KeyCell 持久化存储中的一个字节单元
type KeyCell struct {
	Address   uint16    `gorm:"primaryKey;autoIncrement:false" json:"address"`
	Value     byte      `gorm:"not null" json:"value"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName 指定表名
func (KeyCell) TableName() string {
	return "key_cells"
}
