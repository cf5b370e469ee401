package repository

import (
	"errors"
	"time"

	"github.com/rewards-ledger/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ServerPublisherRepository 发布者信息数据访问接口
type ServerPublisherRepository interface {
	GetByKey(publisherKey string) (*models.ServerPublisher, error)
	Upsert(publisher *models.ServerPublisher) error
}

// GormServerPublisherRepository GORM 实现
type GormServerPublisherRepository struct {
	db *gorm.DB
}

// NewServerPublisherRepository 创建发布者仓库
func NewServerPublisherRepository(db *gorm.DB) *GormServerPublisherRepository {
	return &GormServerPublisherRepository{db: db}
}

// GetByKey 获取发布者信息
func (r *GormServerPublisherRepository) GetByKey(publisherKey string) (*models.ServerPublisher, error) {
	if publisherKey == "" {
		return nil, nil
	}
	var publisher models.ServerPublisher
	if err := r.db.Where("publisher_key = ?", publisherKey).First(&publisher).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &publisher, nil
}

// Upsert 写入或更新发布者信息
func (r *GormServerPublisherRepository) Upsert(publisher *models.ServerPublisher) error {
	if publisher == nil {
		return nil
	}
	publisher.UpdatedAt = time.Now()
	return r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "publisher_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"status", "address", "updated_at"}),
	}).Create(publisher).Error
}
