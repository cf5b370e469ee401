package models

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/rewards-ledger/internal/constants"

	"github.com/shopspring/decimal"
)

// Promotion 奖励活动（由发行服务下发，仅通过状态迁移演进，不做物理删除）
type Promotion struct {
	ID               string    `gorm:"primarykey;type:varchar(64)" json:"id"`                            // 活动ID
	Version          int       `gorm:"not null;default:0" json:"version"`                                // 版本
	Type             string    `gorm:"type:varchar(16);index;not null" json:"type"`                      // 类型（grant/ads）
	Status           string    `gorm:"type:varchar(16);index;not null" json:"status"`                    // 状态
	PublicKeys       string    `gorm:"type:text;not null;default:''" json:"public_keys"`                 // 发行方公钥列表（JSON 序列化）
	Suggestions      int       `gorm:"not null;default:0" json:"suggestions"`                            // 申请代币数量
	ApproximateValue Money     `gorm:"type:decimal(20,2);not null;default:0" json:"approximate_value"`   // 估算价值
	ExpiresAt        int64     `gorm:"index;not null;default:0" json:"expires_at"`                       // 过期时间（秒，0 表示永不过期）
	ClaimID          string    `gorm:"type:varchar(64);index" json:"claim_id"`                           // 领取ID
	ClaimedAt        int64     `gorm:"not null;default:0" json:"claimed_at"`                             // 领取时间（秒）
	LegacyClaimed    bool      `gorm:"not null;default:false" json:"legacy_claimed"`                     // 旧方案已领取
	CreatedAt        time.Time `gorm:"index" json:"created_at"`                                          // 创建时间
	UpdatedAt        time.Time `gorm:"index" json:"updated_at"`                                          // 更新时间
}

// TableName 指定表名
func (Promotion) TableName() string {
	return "promotions"
}

// PublicKeyList 解析公钥列表，解析失败时返回空列表
func (p Promotion) PublicKeyList() []string {
	raw := strings.TrimSpace(p.PublicKeys)
	if raw == "" {
		return nil
	}
	var keys []string
	if err := json.Unmarshal([]byte(raw), &keys); err != nil {
		return nil
	}
	return keys
}

// HasBlankPublicKeys 公钥列表为空（"" 或 "[]"）
func (p Promotion) HasBlankPublicKeys() bool {
	return len(p.PublicKeyList()) == 0
}

// HasPublicKey 判断公钥是否在列表中
func (p Promotion) HasPublicKey(key string) bool {
	key = strings.TrimSpace(key)
	if key == "" {
		return false
	}
	for _, item := range p.PublicKeyList() {
		if item == key {
			return true
		}
	}
	return false
}

// IsExpired 非广告类型且过期时间已到
func (p Promotion) IsExpired(now time.Time) bool {
	if p.Type == constants.PromotionTypeAds {
		return false
	}
	return p.ExpiresAt > 0 && p.ExpiresAt <= now.Unix()
}

// TokenValue 单个代币的价值
func (p Promotion) TokenValue() decimal.Decimal {
	if p.Suggestions <= 0 {
		return decimal.Zero
	}
	return p.ApproximateValue.Decimal.Div(decimal.NewFromInt(int64(p.Suggestions)))
}

// EncodePublicKeys 序列化公钥列表
func EncodePublicKeys(keys []string) string {
	if len(keys) == 0 {
		return "[]"
	}
	raw, err := json.Marshal(keys)
	if err != nil {
		return "[]"
	}
	return string(raw)
}
