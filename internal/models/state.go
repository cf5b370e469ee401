package models

import "time"

// LedgerState 账本键值状态（迁移标记、最近拉取时间、钱包身份等）
type LedgerState struct {
	Key       string    `gorm:"primarykey;type:varchar(128)" json:"key"` // 状态键
	Value     string    `gorm:"type:text;not null" json:"value"`         // 状态值
	UpdatedAt time.Time `json:"updated_at"`                              // 更新时间
}

// TableName 指定表名
func (LedgerState) TableName() string {
	return "ledger_states"
}
