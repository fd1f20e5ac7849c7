package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/partner-ledger/internal/commission"
	"github.com/partner-ledger/internal/constants"
	"github.com/partner-ledger/internal/logger"
	"github.com/partner-ledger/internal/metrics"
	"github.com/partner-ledger/internal/models"
	"github.com/partner-ledger/internal/repository"

	"gorm.io/gorm"
)

const defaultUpsertMaxRetries = 3

// OperatorMeta 操作来源信息，写入台账流水
type OperatorMeta struct {
	Operator  string
	RequestID string
}

func (m OperatorMeta) operator() string {
	if m.Operator == "" {
		return constants.OperatorSystem
	}
	return m.Operator
}

// CommissionLedger 佣金台账：每个 (partner, month) 一条记录，负责幂等写入与付款后不可变
type CommissionLedger struct {
	repo       repository.CommissionRepository
	metrics    *metrics.Metrics
	maxRetries int
	now        func() time.Time
}

// NewCommissionLedger 创建佣金台账
func NewCommissionLedger(repo repository.CommissionRepository, m *metrics.Metrics, maxRetries int) *CommissionLedger {
	if maxRetries <= 0 {
		maxRetries = defaultUpsertMaxRetries
	}
	return &CommissionLedger{repo: repo, metrics: m, maxRetries: maxRetries, now: time.Now}
}

// Upsert 写入计算结果
// 新记录以 pending 创建；pending/failed 记录原位覆盖，保留编号与状态；processing/paid 返回 ErrRecordLocked
// 唯一键竞争时重新读取后重试，超过次数返回 ErrDuplicateKeyRace
func (l *CommissionLedger) Upsert(partnerID uint, month time.Time, result *commission.Result, meta OperatorMeta) (*models.CommissionRecord, bool, error) {
	if partnerID == 0 || result == nil {
		return nil, false, ErrNotFound
	}
	if result.Skip {
		return nil, false, fmt.Errorf("%w: skipped result must not be written", commission.ErrStructureInvalid)
	}
	month = commission.NormalizeMonth(month)

	for attempt := 0; attempt <= l.maxRetries; attempt++ {
		record, created, err := l.upsertOnce(partnerID, month, result, meta)
		if errors.Is(err, ErrDuplicateKeyRace) {
			l.metrics.RecordUpsertRetry()
			logger.Warnw("commission_upsert_duplicate_key_race",
				"partner_id", partnerID,
				"month", commission.MonthKey(month),
				"attempt", attempt+1,
			)
			continue
		}
		return record, created, err
	}
	return nil, false, ErrDuplicateKeyRace
}

func (l *CommissionLedger) upsertOnce(partnerID uint, month time.Time, result *commission.Result, meta OperatorMeta) (*models.CommissionRecord, bool, error) {
	var (
		recordID uint
		created  bool
	)
	now := l.now()
	amount, err := models.NewCommissionAmount(result.Amount)
	if err != nil {
		return nil, false, fmt.Errorf("%w: %v", commission.ErrNegativeInput, err)
	}

	err = l.repo.Transaction(func(tx *gorm.DB) error {
		repoTx := l.repo.WithTx(tx)
		existing, err := repoTx.GetByPartnerMonthForUpdate(partnerID, month)
		if err != nil {
			return err
		}

		if existing == nil {
			record := &models.CommissionRecord{
				CommissionNo:       models.BuildCommissionNo(partnerID, month),
				PartnerID:          partnerID,
				CommissionMonth:    month,
				CalculationMethod:  result.Method,
				MethodSnapshot:     models.JSON(result.Snapshot),
				RevenueBasis:       result.RevenueBasis,
				ConversionCount:    result.ConversionCount,
				CommissionAmount:   amount,
				CalculationDetails: result.Details,
				PaymentStatus:      constants.CommissionStatusPending,
				CalculatedAt:       now,
			}
			if err := repoTx.Create(record); err != nil {
				if isUniqueViolation(err) {
					return ErrDuplicateKeyRace
				}
				return err
			}
			recordID = record.ID
			created = true
			return repoTx.CreateTransition(&models.CommissionTransition{
				CommissionRecordID: record.ID,
				CommissionNo:       record.CommissionNo,
				Event:              constants.CommissionEventCreated,
				ToStatus:           record.PaymentStatus,
				Amount:             amount,
				Reason:             result.Details,
				Operator:           meta.operator(),
				RequestID:          meta.RequestID,
			})
		}

		if !commission.IsEditable(existing.PaymentStatus) {
			return ErrRecordLocked
		}
		affected, err := repoTx.UpdateIfStatusIn(existing.ID, commission.EditableStatuses(), map[string]interface{}{
			"calculation_method":  result.Method,
			"method_snapshot":     models.JSON(result.Snapshot),
			"revenue_basis":       nullableDecimal(result),
			"conversion_count":    nullableCount(result),
			"commission_amount":   amount,
			"calculation_details": result.Details,
			"calculated_at":       now,
			"updated_at":          now,
		})
		if err != nil {
			return err
		}
		if affected == 0 {
			return ErrRecordLocked
		}
		recordID = existing.ID
		return repoTx.CreateTransition(&models.CommissionTransition{
			CommissionRecordID: existing.ID,
			CommissionNo:       existing.CommissionNo,
			Event:              constants.CommissionEventRecalculated,
			FromStatus:         existing.PaymentStatus,
			ToStatus:           existing.PaymentStatus,
			Amount:             amount,
			Reason:             result.Details,
			Operator:           meta.operator(),
			RequestID:          meta.RequestID,
		})
	})
	if err != nil {
		return nil, false, err
	}

	record, err := l.repo.GetByID(recordID)
	if err != nil {
		return nil, false, err
	}
	if record == nil {
		return nil, false, ErrCommissionNotFound
	}
	return record, created, nil
}

func nullableDecimal(result *commission.Result) interface{} {
	if result.RevenueBasis == nil {
		return nil
	}
	return *result.RevenueBasis
}

func nullableCount(result *commission.Result) interface{} {
	if result.ConversionCount == nil {
		return nil
	}
	return *result.ConversionCount
}
