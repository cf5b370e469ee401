package models

import "time"

// SKUOrder SKU 订单
type SKUOrder struct {
	OrderID        string    `gorm:"primarykey;type:varchar(64)" json:"order_id"`               // 订单ID
	TotalAmount    Money     `gorm:"type:decimal(20,2);not null;default:0" json:"total_amount"` // 订单总额
	MerchantID     string    `gorm:"type:varchar(128);index" json:"merchant_id"`                // 商户ID
	Location       string    `gorm:"type:varchar(255)" json:"location"`                         // 下单位置
	Status         string    `gorm:"type:varchar(16);index;not null" json:"status"`             // 订单状态
	ContributionID string    `gorm:"type:varchar(64);index" json:"contribution_id,omitempty"`   // 关联贡献ID
	PaymentPath    string    `gorm:"type:varchar(16);not null" json:"payment_path"`             // 支付路径（创建时确定）
	CreatedAt      time.Time `gorm:"index" json:"created_at"`                                   // 创建时间
	UpdatedAt      time.Time `gorm:"index" json:"updated_at"`                                   // 更新时间

	Items []SKUOrderItem `gorm:"foreignKey:OrderID;references:OrderID" json:"items,omitempty"` // 订单项
}

// TableName 指定表名
func (SKUOrder) TableName() string {
	return "sku_orders"
}

// SKUOrderItem SKU 订单项
type SKUOrderItem struct {
	OrderItemID string    `gorm:"primarykey;type:varchar(64)" json:"order_item_id"`   // 订单项ID
	OrderID     string    `gorm:"type:varchar(64);index;not null" json:"order_id"`    // 订单ID
	SKU         string    `gorm:"type:varchar(255);not null" json:"sku"`              // SKU
	Quantity    int       `gorm:"not null;default:1" json:"quantity"`                 // 数量
	Price       Money     `gorm:"type:decimal(20,2);not null;default:0" json:"price"` // 单价
	Name        string    `gorm:"type:varchar(255)" json:"name"`                      // 名称
	Description string    `gorm:"type:text" json:"description"`                       // 描述
	Type        string    `gorm:"type:varchar(32)" json:"type"`                       // 类型
	ExpiresAt   int64     `gorm:"not null;default:0" json:"expires_at"`               // 过期时间（秒）
	CreatedAt   time.Time `json:"created_at"`                                         // 创建时间
}

// TableName 指定表名
func (SKUOrderItem) TableName() string {
	return "sku_order_items"
}
