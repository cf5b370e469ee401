package models

import "time"

// ServerPublisher 发布者（商户）信息缓存
type ServerPublisher struct {
	PublisherKey string    `gorm:"primarykey;type:varchar(128)" json:"publisher_key"` // 发布者标识
	Status       string    `gorm:"type:varchar(32);not null" json:"status"`           // 认证状态
	Address      string    `gorm:"type:varchar(255)" json:"address"`                  // 收款地址
	UpdatedAt    time.Time `gorm:"index" json:"updated_at"`                           // 更新时间
}

// TableName 指定表名
func (ServerPublisher) TableName() string {
	return "server_publishers"
}
