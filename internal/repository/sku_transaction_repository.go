package repository

import (
	"errors"
	"time"

	"github.com/rewards-ledger/internal/models"

	"gorm.io/gorm"
)

// SKUTransactionRepository SKU 交易数据访问接口
type SKUTransactionRepository interface {
	Create(transaction *models.SKUTransaction) error
	GetByOrderID(orderID string) (*models.SKUTransaction, error)
	UpdateStatus(transactionID, status string) error
	UpdateExternalID(transactionID, externalID string) error
}

// GormSKUTransactionRepository GORM 实现
type GormSKUTransactionRepository struct {
	db *gorm.DB
}

// NewSKUTransactionRepository 创建 SKU 交易仓库
func NewSKUTransactionRepository(db *gorm.DB) *GormSKUTransactionRepository {
	return &GormSKUTransactionRepository{db: db}
}

// Create 创建交易
func (r *GormSKUTransactionRepository) Create(transaction *models.SKUTransaction) error {
	return r.db.Create(transaction).Error
}

// GetByOrderID 获取订单最近一笔交易
func (r *GormSKUTransactionRepository) GetByOrderID(orderID string) (*models.SKUTransaction, error) {
	if orderID == "" {
		return nil, nil
	}
	var transaction models.SKUTransaction
	if err := r.db.Where("order_id = ?", orderID).Order("created_at desc").First(&transaction).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &transaction, nil
}

// UpdateStatus 更新交易状态
func (r *GormSKUTransactionRepository) UpdateStatus(transactionID, status string) error {
	return r.db.Model(&models.SKUTransaction{}).Where("transaction_id = ?", transactionID).Updates(map[string]interface{}{
		"status":     status,
		"updated_at": time.Now(),
	}).Error
}

// UpdateExternalID 记录外部交易ID
func (r *GormSKUTransactionRepository) UpdateExternalID(transactionID, externalID string) error {
	return r.db.Model(&models.SKUTransaction{}).Where("transaction_id = ?", transactionID).Updates(map[string]interface{}{
		"external_transaction_id": externalID,
		"updated_at":              time.Now(),
	}).Error
}
