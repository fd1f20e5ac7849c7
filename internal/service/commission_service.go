package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/partner-ledger/internal/commission"
	"github.com/partner-ledger/internal/constants"
	"github.com/partner-ledger/internal/logger"
	"github.com/partner-ledger/internal/metrics"
	"github.com/partner-ledger/internal/models"
	"github.com/partner-ledger/internal/payout"
	"github.com/partner-ledger/internal/queue"
	"github.com/partner-ledger/internal/repository"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

const (
	defaultBatchConcurrency = 4
	defaultBatchUniqueTTL   = time.Hour
)

// CommissionServiceOptions 佣金服务选项
type CommissionServiceOptions struct {
	Currency          string
	BatchConcurrency  int
	AutoRequeueFailed bool
	RequeueDelay      time.Duration
	BatchUniqueTTL    time.Duration
	ExportMaxRows     int
}

// CommissionService 佣金计算与结算服务
type CommissionService struct {
	partnerRepo    repository.PartnerRepository
	commissionRepo repository.CommissionRepository
	ledger         *CommissionLedger
	revenue        RevenueSource
	payouts        *payout.Registry
	queueClient    *queue.Client
	metrics        *metrics.Metrics
	opts           CommissionServiceOptions
	now            func() time.Time
}

// NewCommissionService 创建佣金服务
func NewCommissionService(
	partnerRepo repository.PartnerRepository,
	commissionRepo repository.CommissionRepository,
	ledger *CommissionLedger,
	revenue RevenueSource,
	payouts *payout.Registry,
	queueClient *queue.Client,
	m *metrics.Metrics,
	opts CommissionServiceOptions,
) *CommissionService {
	if opts.BatchConcurrency <= 0 {
		opts.BatchConcurrency = defaultBatchConcurrency
	}
	if opts.BatchUniqueTTL <= 0 {
		opts.BatchUniqueTTL = defaultBatchUniqueTTL
	}
	if opts.Currency == "" {
		opts.Currency = "USD"
	}
	return &CommissionService{
		partnerRepo:    partnerRepo,
		commissionRepo: commissionRepo,
		ledger:         ledger,
		revenue:        revenue,
		payouts:        payouts,
		queueClient:    queueClient,
		metrics:        m,
		opts:           opts,
		now:            time.Now,
	}
}

// CalculationOutcome 单个合作伙伴的计算结果
type CalculationOutcome struct {
	Outcome   string                   `json:"outcome"` // succeeded / skipped
	PartnerID uint                     `json:"partner_id"`
	Month     string                   `json:"month"`
	Details   string                   `json:"details"`
	Created   bool                     `json:"created"`
	Record    *models.CommissionRecord `json:"record,omitempty"`
}

// Skipped 是否因未配置佣金结构而跳过
func (o *CalculationOutcome) Skipped() bool {
	return o != nil && o.Outcome == constants.BatchOutcomeSkipped
}

// CalculateOne 计算单个合作伙伴单月佣金并写入台账
// 未配置结构时不写台账，返回 skipped；计算错误与台账错误原样返回
func (s *CommissionService) CalculateOne(ctx context.Context, partnerID uint, month time.Time, meta OperatorMeta) (*CalculationOutcome, error) {
	month = commission.NormalizeMonth(month)
	monthKey := commission.MonthKey(month)

	partner, err := s.partnerRepo.GetByID(partnerID)
	if err != nil {
		return nil, err
	}
	if partner == nil {
		s.metrics.RecordCalculation(constants.BatchOutcomeFailed, decimal.Zero)
		return nil, ErrPartnerNotFound
	}
	structure, err := partner.Structure()
	if err != nil {
		s.metrics.RecordCalculation(constants.BatchOutcomeFailed, decimal.Zero)
		return nil, err
	}

	figures, err := s.revenue.Fetch(ctx, partnerID, month)
	if err != nil {
		s.metrics.RecordCalculation(constants.BatchOutcomeFailed, decimal.Zero)
		return nil, err
	}

	result, err := commission.Calculate(structure, commission.Input{
		Month:           month,
		ActiveFullMonth: partner.IsActive,
		RevenueBasis:    figures.RevenueBasis,
		ConversionCount: figures.ConversionCount,
	})
	if err != nil {
		s.metrics.RecordCalculation(constants.BatchOutcomeFailed, decimal.Zero)
		logger.Warnw("commission_calculate_failed",
			"partner_id", partnerID,
			"month", monthKey,
			"code", ErrorCode(err),
			"error", err,
		)
		return nil, err
	}
	if result.Skip {
		s.metrics.RecordCalculation(constants.BatchOutcomeSkipped, result.Amount)
		logger.Debugw("commission_calculate_skipped", "partner_id", partnerID, "month", monthKey)
		return &CalculationOutcome{
			Outcome:   constants.BatchOutcomeSkipped,
			PartnerID: partnerID,
			Month:     monthKey,
			Details:   result.Details,
		}, nil
	}

	record, created, err := s.ledger.Upsert(partnerID, month, result, meta)
	if err != nil {
		s.metrics.RecordCalculation(constants.BatchOutcomeFailed, decimal.Zero)
		if errors.Is(err, ErrRecordLocked) {
			logger.Warnw("commission_upsert_locked", "partner_id", partnerID, "month", monthKey)
		} else {
			logger.Errorw("commission_upsert_failed", "partner_id", partnerID, "month", monthKey, "error", err)
		}
		return nil, err
	}
	s.metrics.RecordCalculation(constants.BatchOutcomeSucceeded, result.Amount)
	logger.Infow("commission_calculated",
		"partner_id", partnerID,
		"month", monthKey,
		"commission_no", record.CommissionNo,
		"amount", record.CommissionAmount.String(),
		"created", created,
	)
	return &CalculationOutcome{
		Outcome:   constants.BatchOutcomeSucceeded,
		PartnerID: partnerID,
		Month:     monthKey,
		Details:   result.Details,
		Created:   created,
		Record:    record,
	}, nil
}

// BatchItem 批量计算中成功或跳过的合作伙伴
type BatchItem struct {
	PartnerID    uint         `json:"partner_id"`
	CommissionNo string       `json:"commission_no,omitempty"`
	Amount       models.Money `json:"amount"`
	Details      string       `json:"details"`
}

// BatchFailure 批量计算中失败的合作伙伴
type BatchFailure struct {
	PartnerID uint   `json:"partner_id"`
	Code      string `json:"code"`
	Error     string `json:"error"`
}

// BatchResult 批量计算结果
// Unprocessed 为取消时尚未开始计算的合作伙伴，已写入的记录保留
type BatchResult struct {
	Month       string         `json:"month"`
	Succeeded   []BatchItem    `json:"succeeded"`
	Skipped     []BatchItem    `json:"skipped"`
	Failed      []BatchFailure `json:"failed"`
	Unprocessed []uint         `json:"unprocessed,omitempty"`
	Cancelled   bool           `json:"cancelled"`
	DurationMs  int64          `json:"duration_ms"`
}

// CalculateBatch 计算所有合作伙伴单月佣金
// 各合作伙伴相互独立，单个失败不影响其他；ctx 取消后不再开始新的合作伙伴
func (s *CommissionService) CalculateBatch(ctx context.Context, month time.Time, meta OperatorMeta) (*BatchResult, error) {
	started := s.now()
	month = commission.NormalizeMonth(month)
	result := &BatchResult{
		Month:     commission.MonthKey(month),
		Succeeded: []BatchItem{},
		Skipped:   []BatchItem{},
		Failed:    []BatchFailure{},
	}
	if meta.Operator == "" {
		meta.Operator = constants.OperatorBatch
	}

	ids, err := s.partnerRepo.ListIDs()
	if err != nil {
		return nil, err
	}

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(s.opts.BatchConcurrency)
	// 已开始的合作伙伴不受取消影响，保证单条记录写入完整
	workCtx := context.WithoutCancel(ctx)

	for idx, id := range ids {
		if ctx.Err() != nil {
			mu.Lock()
			result.Cancelled = true
			result.Unprocessed = append(result.Unprocessed, ids[idx:]...)
			mu.Unlock()
			break
		}
		partnerID := id
		g.Go(func() error {
			if ctx.Err() != nil {
				mu.Lock()
				result.Cancelled = true
				result.Unprocessed = append(result.Unprocessed, partnerID)
				mu.Unlock()
				return nil
			}
			outcome, err := s.CalculateOne(workCtx, partnerID, month, meta)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				result.Failed = append(result.Failed, BatchFailure{
					PartnerID: partnerID,
					Code:      ErrorCode(err),
					Error:     err.Error(),
				})
			case outcome.Skipped():
				result.Skipped = append(result.Skipped, BatchItem{PartnerID: partnerID, Details: outcome.Details})
			default:
				result.Succeeded = append(result.Succeeded, BatchItem{
					PartnerID:    partnerID,
					CommissionNo: outcome.Record.CommissionNo,
					Amount:       outcome.Record.CommissionAmount,
					Details:      outcome.Details,
				})
			}
			return nil
		})
	}
	_ = g.Wait()

	sort.Slice(result.Succeeded, func(i, j int) bool { return result.Succeeded[i].PartnerID < result.Succeeded[j].PartnerID })
	sort.Slice(result.Skipped, func(i, j int) bool { return result.Skipped[i].PartnerID < result.Skipped[j].PartnerID })
	sort.Slice(result.Failed, func(i, j int) bool { return result.Failed[i].PartnerID < result.Failed[j].PartnerID })
	sort.Slice(result.Unprocessed, func(i, j int) bool { return result.Unprocessed[i] < result.Unprocessed[j] })

	elapsed := s.now().Sub(started)
	result.DurationMs = elapsed.Milliseconds()
	s.metrics.ObserveBatch(elapsed)
	logger.Infow("commission_batch_finished",
		"month", result.Month,
		"succeeded", len(result.Succeeded),
		"skipped", len(result.Skipped),
		"failed", len(result.Failed),
		"cancelled", result.Cancelled,
		"duration_ms", result.DurationMs,
	)
	return result, nil
}

// EnqueueBatch 异步触发批量计算；队列未启用时返回 queue.ErrQueueDisabled，由调用方决定是否同步执行
func (s *CommissionService) EnqueueBatch(month time.Time, triggeredBy string) error {
	month = commission.NormalizeMonth(month)
	err := s.queueClient.EnqueueCommissionBatch(queue.CommissionBatchPayload{
		Month:       commission.MonthKey(month),
		TriggeredBy: triggeredBy,
	}, s.opts.BatchUniqueTTL)
	if err != nil {
		if !errors.Is(err, queue.ErrQueueDisabled) {
			logger.Errorw("commission_batch_enqueue_failed", "month", commission.MonthKey(month), "error", err)
		}
		return err
	}
	logger.Infow("commission_batch_enqueued", "month", commission.MonthKey(month), "triggered_by", triggeredBy)
	return nil
}

// GetRecord 获取台账记录
func (s *CommissionService) GetRecord(id uint) (*models.CommissionRecord, error) {
	record, err := s.commissionRepo.GetByID(id)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, ErrCommissionNotFound
	}
	return record, nil
}

// ListRecords 查询台账记录
func (s *CommissionService) ListRecords(filter repository.CommissionListFilter) ([]models.CommissionRecord, int64, error) {
	if filter.MonthFrom != nil {
		from := commission.NormalizeMonth(*filter.MonthFrom)
		filter.MonthFrom = &from
	}
	if filter.MonthTo != nil {
		to := commission.NormalizeMonth(*filter.MonthTo)
		filter.MonthTo = &to
	}
	return s.commissionRepo.List(filter)
}

// ListTransitions 查询台账记录的流水
func (s *CommissionService) ListTransitions(id uint) ([]models.CommissionTransition, error) {
	record, err := s.commissionRepo.GetByID(id)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, ErrCommissionNotFound
	}
	return s.commissionRepo.ListTransitions(id)
}
