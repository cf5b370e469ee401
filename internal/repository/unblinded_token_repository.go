package repository

import (
	"errors"
	"time"

	"github.com/rewards-ledger/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrTokensUnavailable 预留时部分代币已被占用或消费
var ErrTokensUnavailable = errors.New("unblinded tokens unavailable")

// UnblindedTokenRepository 代币数据访问接口
type UnblindedTokenRepository interface {
	Transaction(fn func(tx *gorm.DB) error) error
	WithTx(tx *gorm.DB) UnblindedTokenRepository

	CreateBatch(tokens []models.UnblindedToken) (int64, error)
	CountByCredsID(credsID string) (int64, error)
	ListSpendable(triggerTypes []string, limit int) ([]models.UnblindedToken, error)
	ListReserved(redeemID string) ([]models.UnblindedToken, error)
	Reserve(ids []uint, redeemID, redeemType string, now time.Time) error
	MarkUsed(redeemID string, now time.Time) (int64, error)
	MarkUsedByIDs(ids []uint, now time.Time) (int64, error)
	Release(redeemID string) (int64, error)
	ReleaseByIDs(ids []uint) (int64, error)
}

// GormUnblindedTokenRepository GORM 实现
type GormUnblindedTokenRepository struct {
	db *gorm.DB
}

// NewUnblindedTokenRepository 创建代币仓库
func NewUnblindedTokenRepository(db *gorm.DB) *GormUnblindedTokenRepository {
	return &GormUnblindedTokenRepository{db: db}
}

// WithTx 绑定事务
func (r *GormUnblindedTokenRepository) WithTx(tx *gorm.DB) UnblindedTokenRepository {
	if tx == nil {
		return r
	}
	return &GormUnblindedTokenRepository{db: tx}
}

// Transaction 执行事务
func (r *GormUnblindedTokenRepository) Transaction(fn func(tx *gorm.DB) error) error {
	if fn == nil {
		return nil
	}
	return r.db.Transaction(fn)
}

// CreateBatch 批量写入代币，已存在的代币值会被忽略
func (r *GormUnblindedTokenRepository) CreateBatch(tokens []models.UnblindedToken) (int64, error) {
	if len(tokens) == 0 {
		return 0, nil
	}
	result := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "token_value"}},
		DoNothing: true,
	}).Create(&tokens)
	return result.RowsAffected, result.Error
}

// CountByCredsID 统计批次产出的代币数
func (r *GormUnblindedTokenRepository) CountByCredsID(credsID string) (int64, error) {
	var count int64
	if err := r.db.Model(&models.UnblindedToken{}).Where("creds_id = ?", credsID).Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// ListSpendable 获取未消费、未预留且未过期的代币，limit<=0 表示不限
func (r *GormUnblindedTokenRepository) ListSpendable(triggerTypes []string, limit int) ([]models.UnblindedToken, error) {
	query := r.db.Model(&models.UnblindedToken{}).
		Where("used = ? AND redeem_id = ?", false, "").
		Where("expires_at = 0 OR expires_at > ?", time.Now().Unix())
	if len(triggerTypes) > 0 {
		query = query.Where("trigger_type IN ?", triggerTypes)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	var tokens []models.UnblindedToken
	if err := query.Order("id asc").Find(&tokens).Error; err != nil {
		return nil, err
	}
	return tokens, nil
}

// ListReserved 获取指定批次已预留但未消费的代币
func (r *GormUnblindedTokenRepository) ListReserved(redeemID string) ([]models.UnblindedToken, error) {
	if redeemID == "" {
		return []models.UnblindedToken{}, nil
	}
	var tokens []models.UnblindedToken
	if err := r.db.Where("redeem_id = ? AND used = ?", redeemID, false).
		Order("id asc").
		Find(&tokens).Error; err != nil {
		return nil, err
	}
	return tokens, nil
}

// Reserve 预留代币，任一代币不可用时整体回滚
func (r *GormUnblindedTokenRepository) Reserve(ids []uint, redeemID, redeemType string, now time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	return r.db.Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.UnblindedToken{}).
			Where("id IN ? AND used = ? AND redeem_id = ?", ids, false, "").
			Updates(map[string]interface{}{
				"redeem_id":   redeemID,
				"redeem_type": redeemType,
				"reserved_at": now,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected != int64(len(ids)) {
			return ErrTokensUnavailable
		}
		return nil
	})
}

// MarkUsed 将预留代币标记为已消费
func (r *GormUnblindedTokenRepository) MarkUsed(redeemID string, now time.Time) (int64, error) {
	if redeemID == "" {
		return 0, nil
	}
	result := r.db.Model(&models.UnblindedToken{}).
		Where("redeem_id = ? AND used = ?", redeemID, false).
		Updates(map[string]interface{}{
			"used":        true,
			"redeemed_at": now,
		})
	return result.RowsAffected, result.Error
}

// MarkUsedByIDs 仅将指定的预留代币标记为已消费
func (r *GormUnblindedTokenRepository) MarkUsedByIDs(ids []uint, now time.Time) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	result := r.db.Model(&models.UnblindedToken{}).
		Where("id IN ? AND used = ?", ids, false).
		Updates(map[string]interface{}{
			"used":        true,
			"redeemed_at": now,
		})
	return result.RowsAffected, result.Error
}

// Release 释放未消费的预留代币
func (r *GormUnblindedTokenRepository) Release(redeemID string) (int64, error) {
	if redeemID == "" {
		return 0, nil
	}
	result := r.db.Model(&models.UnblindedToken{}).
		Where("redeem_id = ? AND used = ?", redeemID, false).
		Updates(map[string]interface{}{
			"redeem_id":   "",
			"redeem_type": "",
			"reserved_at": nil,
		})
	return result.RowsAffected, result.Error
}

// ReleaseByIDs 释放指定的未消费代币
func (r *GormUnblindedTokenRepository) ReleaseByIDs(ids []uint) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	result := r.db.Model(&models.UnblindedToken{}).
		Where("id IN ? AND used = ?", ids, false).
		Updates(map[string]interface{}{
			"redeem_id":   "",
			"redeem_type": "",
			"reserved_at": nil,
		})
	return result.RowsAffected, result.Error
}
