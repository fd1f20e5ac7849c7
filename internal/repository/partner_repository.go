package repository

import (
	"errors"
	"strings"

	"github.com/partner-ledger/internal/models"

	"gorm.io/gorm"
)

// PartnerRepository 合作伙伴数据访问接口
type PartnerRepository interface {
	Create(partner *models.Partner) error
	Update(partner *models.Partner) error
	GetByID(id uint) (*models.Partner, error)
	GetByCode(code string) (*models.Partner, error)
	List(filter PartnerListFilter) ([]models.Partner, int64, error)
	ListIDs() ([]uint, error)
}

// GormPartnerRepository GORM 合作伙伴仓储
type GormPartnerRepository struct {
	db *gorm.DB
}

// NewPartnerRepository 创建合作伙伴仓储
func NewPartnerRepository(db *gorm.DB) *GormPartnerRepository {
	return &GormPartnerRepository{db: db}
}

// Create 创建合作伙伴
func (r *GormPartnerRepository) Create(partner *models.Partner) error {
	return r.db.Create(partner).Error
}

// Update 更新合作伙伴（含空值字段）
func (r *GormPartnerRepository) Update(partner *models.Partner) error {
	return r.db.Save(partner).Error
}

// GetByID 按ID获取合作伙伴
func (r *GormPartnerRepository) GetByID(id uint) (*models.Partner, error) {
	if id == 0 {
		return nil, nil
	}
	var partner models.Partner
	if err := r.db.First(&partner, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &partner, nil
}

// GetByCode 按编号获取合作伙伴
func (r *GormPartnerRepository) GetByCode(code string) (*models.Partner, error) {
	normalized := strings.ToUpper(strings.TrimSpace(code))
	if normalized == "" {
		return nil, nil
	}
	var partner models.Partner
	if err := r.db.Where("partner_code = ?", normalized).First(&partner).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &partner, nil
}

// List 查询合作伙伴列表
func (r *GormPartnerRepository) List(filter PartnerListFilter) ([]models.Partner, int64, error) {
	query := r.db.Model(&models.Partner{})
	if partnerType := strings.TrimSpace(filter.PartnerType); partnerType != "" {
		query = query.Where("partner_type = ?", partnerType)
	}
	if kind := strings.TrimSpace(filter.StructureKind); kind != "" {
		query = query.Where("structure_kind = ?", kind)
	}
	if status := strings.TrimSpace(filter.PayeeStatus); status != "" {
		query = query.Where("payee_status = ?", status)
	}
	if filter.IsActive != nil {
		query = query.Where("is_active = ?", *filter.IsActive)
	}
	if keyword := strings.TrimSpace(filter.Keyword); keyword != "" {
		condition, args := keywordCondition(r.db, keyword, "partner_code", "name", "email")
		query = query.Where(condition, args...)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	query = applyPagination(query, filter.Page, filter.PageSize)

	var rows []models.Partner
	if err := query.Order("id desc").Find(&rows).Error; err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

// ListIDs 按ID升序返回全部合作伙伴ID（批量计算使用）
func (r *GormPartnerRepository) ListIDs() ([]uint, error) {
	var ids []uint
	if err := r.db.Model(&models.Partner{}).Order("id asc").Pluck("id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}
