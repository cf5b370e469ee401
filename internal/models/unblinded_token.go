package models

import "time"

// UnblindedToken 去盲后的可消费代币
type UnblindedToken struct {
	ID          uint       `gorm:"primarykey" json:"id"`                                       // 主键
	TokenValue  string     `gorm:"type:varchar(256);uniqueIndex;not null" json:"-"`            // 代币值（原像+签名点）
	PublicKey   string     `gorm:"type:varchar(128);not null" json:"public_key"`               // 发行方公钥
	Value       Money      `gorm:"type:decimal(20,2);not null;default:0" json:"value"`         // 面值
	CredsID     string     `gorm:"type:varchar(64);index;not null" json:"creds_id"`            // 所属批次
	TriggerID   string     `gorm:"type:varchar(64);index;not null" json:"trigger_id"`          // 所属触发来源
	TriggerType string     `gorm:"type:varchar(32);index;not null" json:"trigger_type"`        // 触发来源类型
	ExpiresAt   int64      `gorm:"not null;default:0" json:"expires_at"`                       // 过期时间（秒）
	RedeemID    string     `gorm:"type:varchar(64);index;not null;default:''" json:"redeem_id"` // 预留/消费批次ID
	RedeemType  string     `gorm:"type:varchar(32)" json:"redeem_type"`                        // 消费类型
	ReservedAt  *time.Time `json:"reserved_at"`                                                // 预留时间
	Used        bool       `gorm:"index;not null;default:false" json:"used"`                   // 是否已消费
	RedeemedAt  *time.Time `json:"redeemed_at"`                                                // 消费时间
	CreatedAt   time.Time  `gorm:"index" json:"created_at"`                                    // 创建时间
}

// TableName 指定表名
func (UnblindedToken) TableName() string {
	return "unblinded_tokens"
}
