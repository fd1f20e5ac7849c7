package repository

import (
	"errors"
	"time"

	"github.com/partner-ledger/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// RevenueInputRepository 月度收入输入数据访问接口
type RevenueInputRepository interface {
	Upsert(input *models.PartnerRevenueInput) error
	Get(partnerID uint, month time.Time) (*models.PartnerRevenueInput, error)
	List(filter RevenueInputListFilter) ([]models.PartnerRevenueInput, int64, error)
}

// GormRevenueInputRepository GORM 月度收入输入仓储
type GormRevenueInputRepository struct {
	db *gorm.DB
}

// NewRevenueInputRepository 创建月度收入输入仓储
func NewRevenueInputRepository(db *gorm.DB) *GormRevenueInputRepository {
	return &GormRevenueInputRepository{db: db}
}

// Upsert 按 (partner_id, month) 写入或覆盖输入，空字段同样覆盖
func (r *GormRevenueInputRepository) Upsert(input *models.PartnerRevenueInput) error {
	if input == nil {
		return nil
	}
	return r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "partner_id"}, {Name: "month"}},
		DoUpdates: clause.AssignmentColumns([]string{"revenue_basis", "conversion_count", "source", "updated_at"}),
	}).Create(input).Error
}

// Get 查询单月输入
func (r *GormRevenueInputRepository) Get(partnerID uint, month time.Time) (*models.PartnerRevenueInput, error) {
	if partnerID == 0 {
		return nil, nil
	}
	var row models.PartnerRevenueInput
	if err := r.db.Where("partner_id = ? AND month = ?", partnerID, month).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}

// List 查询输入列表
func (r *GormRevenueInputRepository) List(filter RevenueInputListFilter) ([]models.PartnerRevenueInput, int64, error) {
	query := r.db.Model(&models.PartnerRevenueInput{})
	if filter.PartnerID != 0 {
		query = query.Where("partner_id = ?", filter.PartnerID)
	}
	query = applyMonthRange(query, "month", filter.MonthFrom, filter.MonthTo)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	query = applyPagination(query, filter.Page, filter.PageSize)

	var rows []models.PartnerRevenueInput
	if err := query.Order("month desc, partner_id asc").Find(&rows).Error; err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}
