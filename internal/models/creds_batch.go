package models

import "time"

// CredsBatch 凭证批次（记录盲化/签名/去盲各阶段的持久化中间状态）
type CredsBatch struct {
	ID           string      `gorm:"primarykey;type:varchar(64)" json:"id"`                            // 批次ID
	TriggerID    string      `gorm:"type:varchar(64);index:idx_creds_batch_trigger;not null" json:"trigger_id"`   // 触发来源ID
	TriggerType  string      `gorm:"type:varchar(32);index:idx_creds_batch_trigger;not null" json:"trigger_type"` // 触发来源类型
	Size         int         `gorm:"not null;default:0" json:"size"`                                   // 代币数量
	Creds        StringArray `gorm:"type:json" json:"-"`                                               // 代币原像与盲化因子
	BlindedCreds StringArray `gorm:"type:json" json:"blinded_creds"`                                   // 盲化代币
	SignedCreds  StringArray `gorm:"type:json" json:"signed_creds"`                                    // 发行方签名代币
	BatchProof   string      `gorm:"type:text" json:"batch_proof"`                                     // 批量证明
	PublicKey    string      `gorm:"type:varchar(128)" json:"public_key"`                              // 发行方公钥
	ClaimID      string      `gorm:"type:varchar(64);index" json:"claim_id"`                           // 领取ID
	Status       string      `gorm:"type:varchar(16);index;not null" json:"status"`                    // 状态
	CreatedAt    time.Time   `gorm:"index" json:"created_at"`                                          // 创建时间
	UpdatedAt    time.Time   `gorm:"index" json:"updated_at"`                                          // 更新时间
}

// TableName 指定表名
func (CredsBatch) TableName() string {
	return "creds_batches"
}
