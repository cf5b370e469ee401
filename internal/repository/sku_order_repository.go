package repository

import (
	"errors"
	"time"

	"github.com/rewards-ledger/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SKUOrderRepository SKU 订单数据访问接口
type SKUOrderRepository interface {
	Transaction(fn func(tx *gorm.DB) error) error
	WithTx(tx *gorm.DB) SKUOrderRepository

	InsertOrUpdate(order *models.SKUOrder) error
	GetByID(orderID string) (*models.SKUOrder, error)
	GetByContributionID(contributionID string) (*models.SKUOrder, error)
	UpdateStatus(orderID, status string) error
	UpdateContributionID(orderID, contributionID string) error
}

// GormSKUOrderRepository GORM 实现
type GormSKUOrderRepository struct {
	db *gorm.DB
}

// NewSKUOrderRepository 创建 SKU 订单仓库
func NewSKUOrderRepository(db *gorm.DB) *GormSKUOrderRepository {
	return &GormSKUOrderRepository{db: db}
}

// WithTx 绑定事务
func (r *GormSKUOrderRepository) WithTx(tx *gorm.DB) SKUOrderRepository {
	if tx == nil {
		return r
	}
	return &GormSKUOrderRepository{db: tx}
}

// Transaction 执行事务
func (r *GormSKUOrderRepository) Transaction(fn func(tx *gorm.DB) error) error {
	if fn == nil {
		return nil
	}
	return r.db.Transaction(fn)
}

// InsertOrUpdate 写入订单及其订单项
func (r *GormSKUOrderRepository) InsertOrUpdate(order *models.SKUOrder) error {
	if order == nil {
		return nil
	}
	items := order.Items
	return r.db.Transaction(func(tx *gorm.DB) error {
		header := *order
		header.Items = nil
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "order_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"total_amount", "merchant_id", "location", "status", "contribution_id", "updated_at"}),
		}).Create(&header).Error; err != nil {
			return err
		}
		for i := range items {
			items[i].OrderID = order.OrderID
		}
		if len(items) == 0 {
			return nil
		}
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "order_item_id"}},
			UpdateAll: true,
		}).Create(&items).Error
	})
}

// GetByID 获取订单（含订单项）
func (r *GormSKUOrderRepository) GetByID(orderID string) (*models.SKUOrder, error) {
	if orderID == "" {
		return nil, nil
	}
	var order models.SKUOrder
	if err := r.db.Preload("Items").Where("order_id = ?", orderID).First(&order).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &order, nil
}

// GetByContributionID 按贡献ID获取订单
func (r *GormSKUOrderRepository) GetByContributionID(contributionID string) (*models.SKUOrder, error) {
	if contributionID == "" {
		return nil, nil
	}
	var order models.SKUOrder
	if err := r.db.Preload("Items").Where("contribution_id = ?", contributionID).First(&order).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &order, nil
}

// UpdateStatus 更新订单状态
func (r *GormSKUOrderRepository) UpdateStatus(orderID, status string) error {
	return r.db.Model(&models.SKUOrder{}).Where("order_id = ?", orderID).Updates(map[string]interface{}{
		"status":     status,
		"updated_at": time.Now(),
	}).Error
}

// UpdateContributionID 绑定贡献ID
func (r *GormSKUOrderRepository) UpdateContributionID(orderID, contributionID string) error {
	return r.db.Model(&models.SKUOrder{}).Where("order_id = ?", orderID).Updates(map[string]interface{}{
		"contribution_id": contributionID,
		"updated_at":      time.Now(),
	}).Error
}
