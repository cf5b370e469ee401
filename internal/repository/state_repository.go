package repository

import (
	"errors"
	"time"

	"github.com/rewards-ledger/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// StateRepository 键值状态数据访问接口
type StateRepository interface {
	GetByKey(key string) (*models.LedgerState, error)
	Upsert(key, value string) error
}

// GormStateRepository GORM 实现
type GormStateRepository struct {
	db *gorm.DB
}

// NewStateRepository 创建状态仓库
func NewStateRepository(db *gorm.DB) *GormStateRepository {
	return &GormStateRepository{db: db}
}

// GetByKey 获取状态
func (r *GormStateRepository) GetByKey(key string) (*models.LedgerState, error) {
	var state models.LedgerState
	if err := r.db.Where("key = ?", key).First(&state).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &state, nil
}

// Upsert 更新或创建状态
func (r *GormStateRepository) Upsert(key, value string) error {
	state := &models.LedgerState{
		Key:       key,
		Value:     value,
		UpdatedAt: time.Now(),
	}
	return r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(state).Error
}
