package repository

import (
	"errors"
	"time"

	"github.com/rewards-ledger/internal/constants"
	"github.com/rewards-ledger/internal/models"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// BalanceReportRepository 月度统计数据访问接口
type BalanceReportRepository interface {
	AddAmount(year, month int, promotionType string, amount decimal.Decimal) error
	Get(year, month int) (*models.BalanceReport, error)
	List(page, pageSize int) ([]models.BalanceReport, int64, error)
}

// GormBalanceReportRepository GORM 实现
type GormBalanceReportRepository struct {
	db *gorm.DB
}

// NewBalanceReportRepository 创建月度统计仓库
func NewBalanceReportRepository(db *gorm.DB) *GormBalanceReportRepository {
	return &GormBalanceReportRepository{db: db}
}

// AddAmount 累加指定月份的奖励金额
func (r *GormBalanceReportRepository) AddAmount(year, month int, promotionType string, amount decimal.Decimal) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		var report models.BalanceReport
		err := tx.Where("year = ? AND month = ?", year, month).First(&report).Error
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if errors.Is(err, gorm.ErrRecordNotFound) {
			report = models.BalanceReport{Year: year, Month: month}
		}
		switch promotionType {
		case constants.PromotionTypeAds:
			report.AdsAmount = models.NewMoneyFromDecimal(report.AdsAmount.Decimal.Add(amount))
		default:
			report.GrantAmount = models.NewMoneyFromDecimal(report.GrantAmount.Decimal.Add(amount))
		}
		report.UpdatedAt = time.Now()
		return tx.Save(&report).Error
	})
}

// Get 获取指定月份统计
func (r *GormBalanceReportRepository) Get(year, month int) (*models.BalanceReport, error) {
	var report models.BalanceReport
	if err := r.db.Where("year = ? AND month = ?", year, month).First(&report).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &report, nil
}

// List 分页获取月度统计，pageSize <= 0 时返回全部
func (r *GormBalanceReportRepository) List(page, pageSize int) ([]models.BalanceReport, int64, error) {
	query := r.db.Model(&models.BalanceReport{})
	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var reports []models.BalanceReport
	query = applyPagination(query.Order("year desc, month desc"), page, pageSize)
	if err := query.Find(&reports).Error; err != nil {
		return nil, 0, err
	}
	return reports, total, nil
}
