package models

import "time"

// BalanceReport 月度奖励统计
type BalanceReport struct {
	ID          uint      `gorm:"primarykey" json:"id"`                                          // 主键
	Year        int       `gorm:"uniqueIndex:idx_balance_report_period;not null" json:"year"`    // 年
	Month       int       `gorm:"uniqueIndex:idx_balance_report_period;not null" json:"month"`   // 月
	GrantAmount Money     `gorm:"type:decimal(20,2);not null;default:0" json:"grant_amount"`     // 普通奖励
	AdsAmount   Money     `gorm:"type:decimal(20,2);not null;default:0" json:"ads_amount"`       // 广告奖励
	UpdatedAt   time.Time `json:"updated_at"`                                                    // 更新时间
}

// TableName 指定表名
func (BalanceReport) TableName() string {
	return "balance_reports"
}
