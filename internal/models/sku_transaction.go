package models

import "time"

// SKUTransaction SKU 订单支付交易
type SKUTransaction struct {
	TransactionID         string    `gorm:"primarykey;type:varchar(64)" json:"transaction_id"`        // 交易ID
	OrderID               string    `gorm:"type:varchar(64);index;not null" json:"order_id"`          // 订单ID
	ExternalTransactionID string    `gorm:"type:varchar(128)" json:"external_transaction_id"`         // 外部交易ID
	Type                  string    `gorm:"type:varchar(32);not null" json:"type"`                    // 交易类型
	Amount                Money     `gorm:"type:decimal(20,2);not null;default:0" json:"amount"`      // 金额
	Status                string    `gorm:"type:varchar(16);index;not null" json:"status"`            // 状态
	CreatedAt             time.Time `gorm:"index" json:"created_at"`                                  // 创建时间
	UpdatedAt             time.Time `gorm:"index" json:"updated_at"`                                  // 更新时间
}

// TableName 指定表名
func (SKUTransaction) TableName() string {
	return "sku_transactions"
}
