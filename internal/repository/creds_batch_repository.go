package repository

import (
	"time"

	"github.com/rewards-ledger/internal/models"

	"gorm.io/gorm"
)

// CredsBatchRepository 凭证批次数据访问接口
type CredsBatchRepository interface {
	Transaction(fn func(tx *gorm.DB) error) error
	WithTx(tx *gorm.DB) CredsBatchRepository

	GetByTrigger(triggerID, triggerType string) (*models.CredsBatch, error)
	ListByStatus(statuses ...string) ([]models.CredsBatch, error)
	Create(batch *models.CredsBatch) error
	Save(batch *models.CredsBatch) error
	UpdateStatus(id, status string) error
	UpdateStatusByTriggers(triggerIDs []string, triggerType, status string) (int64, error)
}

// GormCredsBatchRepository GORM 实现
type GormCredsBatchRepository struct {
	db *gorm.DB
}

// NewCredsBatchRepository 创建凭证批次仓库
func NewCredsBatchRepository(db *gorm.DB) *GormCredsBatchRepository {
	return &GormCredsBatchRepository{db: db}
}

// WithTx 绑定事务
func (r *GormCredsBatchRepository) WithTx(tx *gorm.DB) CredsBatchRepository {
	if tx == nil {
		return r
	}
	return &GormCredsBatchRepository{db: tx}
}

// Transaction 执行事务
func (r *GormCredsBatchRepository) Transaction(fn func(tx *gorm.DB) error) error {
	if fn == nil {
		return nil
	}
	return r.db.Transaction(fn)
}

// GetByTrigger 按触发来源获取批次，多于一行时返回 ErrTooManyResults
func (r *GormCredsBatchRepository) GetByTrigger(triggerID, triggerType string) (*models.CredsBatch, error) {
	if triggerID == "" {
		return nil, nil
	}
	var batches []models.CredsBatch
	if err := r.db.Where("trigger_id = ? AND trigger_type = ?", triggerID, triggerType).
		Limit(2).
		Find(&batches).Error; err != nil {
		return nil, err
	}
	switch len(batches) {
	case 0:
		return nil, nil
	case 1:
		return &batches[0], nil
	default:
		return nil, ErrTooManyResults
	}
}

// ListByStatus 按状态获取批次
func (r *GormCredsBatchRepository) ListByStatus(statuses ...string) ([]models.CredsBatch, error) {
	var batches []models.CredsBatch
	query := r.db.Model(&models.CredsBatch{})
	if len(statuses) > 0 {
		query = query.Where("status IN ?", statuses)
	}
	if err := query.Order("created_at asc").Find(&batches).Error; err != nil {
		return nil, err
	}
	return batches, nil
}

// Create 创建批次
func (r *GormCredsBatchRepository) Create(batch *models.CredsBatch) error {
	return r.db.Create(batch).Error
}

// Save 保存批次
func (r *GormCredsBatchRepository) Save(batch *models.CredsBatch) error {
	return r.db.Save(batch).Error
}

// UpdateStatus 更新批次状态
func (r *GormCredsBatchRepository) UpdateStatus(id, status string) error {
	return r.db.Model(&models.CredsBatch{}).Where("id = ?", id).Updates(map[string]interface{}{
		"status":     status,
		"updated_at": time.Now(),
	}).Error
}

// UpdateStatusByTriggers 按触发来源批量更新状态
func (r *GormCredsBatchRepository) UpdateStatusByTriggers(triggerIDs []string, triggerType, status string) (int64, error) {
	if len(triggerIDs) == 0 {
		return 0, nil
	}
	result := r.db.Model(&models.CredsBatch{}).
		Where("trigger_id IN ? AND trigger_type = ?", triggerIDs, triggerType).
		Updates(map[string]interface{}{
			"status":     status,
			"updated_at": time.Now(),
		})
	return result.RowsAffected, result.Error
}
