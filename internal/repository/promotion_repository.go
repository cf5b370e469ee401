package repository

import (
	"errors"
	"time"

	"github.com/rewards-ledger/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PromotionRepository 奖励活动数据访问接口
type PromotionRepository interface {
	Transaction(fn func(tx *gorm.DB) error) error
	WithTx(tx *gorm.DB) PromotionRepository

	GetByID(id string) (*models.Promotion, error)
	ListByIDs(ids []string) ([]models.Promotion, error)
	ListByStatus(statuses ...string) ([]models.Promotion, error)
	ListAll() ([]models.Promotion, error)
	Save(promotion *models.Promotion) error
	UpdateStatus(id, status string) error
	UpdateStatusByIDs(ids []string, status string, excludeStatuses []string) (int64, error)
	UpdateClaimID(id, claimID string) error
	UpdatePublicKeys(id, publicKeys string) error
	UpdateBlankPublicKeys(ids []string) (int64, error)
}

// GormPromotionRepository GORM 实现
type GormPromotionRepository struct {
	db *gorm.DB
}

// NewPromotionRepository 创建奖励活动仓库
func NewPromotionRepository(db *gorm.DB) *GormPromotionRepository {
	return &GormPromotionRepository{db: db}
}

// WithTx 绑定事务
func (r *GormPromotionRepository) WithTx(tx *gorm.DB) PromotionRepository {
	if tx == nil {
		return r
	}
	return &GormPromotionRepository{db: tx}
}

// Transaction 执行事务
func (r *GormPromotionRepository) Transaction(fn func(tx *gorm.DB) error) error {
	if fn == nil {
		return nil
	}
	return r.db.Transaction(fn)
}

// GetByID 根据 ID 获取活动
func (r *GormPromotionRepository) GetByID(id string) (*models.Promotion, error) {
	if id == "" {
		return nil, nil
	}
	var promotion models.Promotion
	if err := r.db.Where("id = ?", id).First(&promotion).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &promotion, nil
}

// ListByIDs 批量获取活动
func (r *GormPromotionRepository) ListByIDs(ids []string) ([]models.Promotion, error) {
	if len(ids) == 0 {
		return []models.Promotion{}, nil
	}
	var promotions []models.Promotion
	if err := r.db.Where("id IN ?", ids).Order("id asc").Find(&promotions).Error; err != nil {
		return nil, err
	}
	return promotions, nil
}

// ListByStatus 按状态获取活动
func (r *GormPromotionRepository) ListByStatus(statuses ...string) ([]models.Promotion, error) {
	var promotions []models.Promotion
	query := r.db.Model(&models.Promotion{})
	if len(statuses) > 0 {
		query = query.Where("status IN ?", statuses)
	}
	if err := query.Order("id asc").Find(&promotions).Error; err != nil {
		return nil, err
	}
	return promotions, nil
}

// ListAll 获取全部活动
func (r *GormPromotionRepository) ListAll() ([]models.Promotion, error) {
	return r.ListByStatus()
}

// Save 新增或覆盖活动
func (r *GormPromotionRepository) Save(promotion *models.Promotion) error {
	if promotion == nil {
		return nil
	}
	return r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		UpdateAll: true,
	}).Create(promotion).Error
}

// UpdateStatus 更新活动状态
func (r *GormPromotionRepository) UpdateStatus(id, status string) error {
	return r.db.Model(&models.Promotion{}).Where("id = ?", id).Updates(map[string]interface{}{
		"status":     status,
		"updated_at": time.Now(),
	}).Error
}

// UpdateStatusByIDs 批量更新状态，跳过 excludeStatuses 中的状态
func (r *GormPromotionRepository) UpdateStatusByIDs(ids []string, status string, excludeStatuses []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	query := r.db.Model(&models.Promotion{}).Where("id IN ?", ids)
	if len(excludeStatuses) > 0 {
		query = query.Where("status NOT IN ?", excludeStatuses)
	}
	result := query.Updates(map[string]interface{}{
		"status":     status,
		"updated_at": time.Now(),
	})
	return result.RowsAffected, result.Error
}

// UpdateClaimID 记录领取ID
func (r *GormPromotionRepository) UpdateClaimID(id, claimID string) error {
	return r.db.Model(&models.Promotion{}).Where("id = ?", id).Updates(map[string]interface{}{
		"claim_id":   claimID,
		"claimed_at": time.Now().Unix(),
		"updated_at": time.Now(),
	}).Error
}

// UpdatePublicKeys 更新公钥列表
func (r *GormPromotionRepository) UpdatePublicKeys(id, publicKeys string) error {
	return r.db.Model(&models.Promotion{}).Where("id = ?", id).Updates(map[string]interface{}{
		"public_keys": publicKeys,
		"updated_at":  time.Now(),
	}).Error
}

// UpdateBlankPublicKeys 将公钥列表统一置为空列表
func (r *GormPromotionRepository) UpdateBlankPublicKeys(ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	result := r.db.Model(&models.Promotion{}).Where("id IN ?", ids).Updates(map[string]interface{}{
		"public_keys": models.EncodePublicKeys(nil),
		"updated_at":  time.Now(),
	})
	return result.RowsAffected, result.Error
}
