package repository

import (
	"errors"
	"strings"
	"time"

	"github.com/partner-ledger/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CommissionRepository 佣金台账数据访问接口
type CommissionRepository interface {
	Transaction(fn func(tx *gorm.DB) error) error
	WithTx(tx *gorm.DB) CommissionRepository

	GetByID(id uint) (*models.CommissionRecord, error)
	GetByIDForUpdate(id uint) (*models.CommissionRecord, error)
	GetByCommissionNo(commissionNo string) (*models.CommissionRecord, error)
	GetByPartnerMonthForUpdate(partnerID uint, month time.Time) (*models.CommissionRecord, error)
	GetByProcessorRef(provider, ref string) (*models.CommissionRecord, error)
	Create(record *models.CommissionRecord) error
	UpdateIfStatusIn(id uint, statuses []string, updates map[string]interface{}) (int64, error)
	List(filter CommissionListFilter) ([]models.CommissionRecord, int64, error)
	ListIDsByStatus(status string, before time.Time) ([]uint, error)

	CreateTransition(transition *models.CommissionTransition) error
	ListTransitions(recordID uint) ([]models.CommissionTransition, error)
}

// GormCommissionRepository GORM 佣金台账仓储
type GormCommissionRepository struct {
	db *gorm.DB
}

// NewCommissionRepository 创建佣金台账仓储
func NewCommissionRepository(db *gorm.DB) *GormCommissionRepository {
	return &GormCommissionRepository{db: db}
}

// WithTx 绑定事务
func (r *GormCommissionRepository) WithTx(tx *gorm.DB) CommissionRepository {
	if tx == nil {
		return r
	}
	return &GormCommissionRepository{db: tx}
}

// Transaction 执行事务
func (r *GormCommissionRepository) Transaction(fn func(tx *gorm.DB) error) error {
	if fn == nil {
		return nil
	}
	return r.db.Transaction(fn)
}

// GetByID 按ID获取台账记录
func (r *GormCommissionRepository) GetByID(id uint) (*models.CommissionRecord, error) {
	if id == 0 {
		return nil, nil
	}
	var record models.CommissionRecord
	if err := r.db.Preload("Partner").First(&record, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &record, nil
}

// GetByIDForUpdate 按ID锁定查询台账记录
func (r *GormCommissionRepository) GetByIDForUpdate(id uint) (*models.CommissionRecord, error) {
	if id == 0 {
		return nil, nil
	}
	var record models.CommissionRecord
	if err := r.db.Clauses(clause.Locking{Strength: "UPDATE"}).First(&record, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &record, nil
}

// GetByCommissionNo 按佣金编号查询
func (r *GormCommissionRepository) GetByCommissionNo(commissionNo string) (*models.CommissionRecord, error) {
	normalized := strings.TrimSpace(commissionNo)
	if normalized == "" {
		return nil, nil
	}
	var record models.CommissionRecord
	if err := r.db.Where("commission_no = ?", normalized).First(&record).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &record, nil
}

// GetByPartnerMonthForUpdate 按 (partner_id, month) 锁定查询
func (r *GormCommissionRepository) GetByPartnerMonthForUpdate(partnerID uint, month time.Time) (*models.CommissionRecord, error) {
	if partnerID == 0 {
		return nil, nil
	}
	var record models.CommissionRecord
	if err := r.db.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("partner_id = ? AND commission_month = ?", partnerID, month).
		First(&record).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &record, nil
}

// GetByProcessorRef 按打款渠道流水号查询
func (r *GormCommissionRepository) GetByProcessorRef(provider, ref string) (*models.CommissionRecord, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, nil
	}
	query := r.db.Where("processor_ref = ?", ref)
	if provider = strings.TrimSpace(provider); provider != "" {
		query = query.Where("payout_provider = ?", provider)
	}
	var record models.CommissionRecord
	if err := query.First(&record).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &record, nil
}

// Create 创建台账记录
func (r *GormCommissionRepository) Create(record *models.CommissionRecord) error {
	return r.db.Create(record).Error
}

// UpdateIfStatusIn 条件更新：仅当当前状态属于 statuses 时更新，返回影响行数
func (r *GormCommissionRepository) UpdateIfStatusIn(id uint, statuses []string, updates map[string]interface{}) (int64, error) {
	if id == 0 || len(statuses) == 0 || len(updates) == 0 {
		return 0, nil
	}
	result := r.db.Model(&models.CommissionRecord{}).
		Where("id = ? AND payment_status IN ?", id, statuses).
		Updates(updates)
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

// List 查询台账记录
func (r *GormCommissionRepository) List(filter CommissionListFilter) ([]models.CommissionRecord, int64, error) {
	query := r.db.Model(&models.CommissionRecord{})
	if filter.WithPartner {
		query = query.Preload("Partner")
	}
	if filter.PartnerID != 0 {
		query = query.Where("commission_records.partner_id = ?", filter.PartnerID)
	}
	if status := strings.TrimSpace(filter.Status); status != "" {
		query = query.Where("commission_records.payment_status = ?", status)
	}
	if method := strings.TrimSpace(filter.Method); method != "" {
		query = query.Where("commission_records.calculation_method = ?", method)
	}
	query = applyMonthRange(query, "commission_records.commission_month", filter.MonthFrom, filter.MonthTo)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	query = applyPagination(query, filter.Page, filter.PageSize)

	var rows []models.CommissionRecord
	if err := query.Order("commission_records.commission_month desc, commission_records.id desc").Find(&rows).Error; err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

// ListIDsByStatus 查询指定状态且更新时间早于 before 的记录ID
func (r *GormCommissionRepository) ListIDsByStatus(status string, before time.Time) ([]uint, error) {
	var ids []uint
	if err := r.db.Model(&models.CommissionRecord{}).
		Where("payment_status = ? AND updated_at <= ?", status, before).
		Order("id asc").
		Pluck("id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

// CreateTransition 追加台账流水
func (r *GormCommissionRepository) CreateTransition(transition *models.CommissionTransition) error {
	return r.db.Create(transition).Error
}

// ListTransitions 查询记录流水（按时间正序）
func (r *GormCommissionRepository) ListTransitions(recordID uint) ([]models.CommissionTransition, error) {
	if recordID == 0 {
		return []models.CommissionTransition{}, nil
	}
	var rows []models.CommissionTransition
	if err := r.db.Where("commission_record_id = ?", recordID).Order("id asc").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
