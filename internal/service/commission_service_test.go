package service

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/partner-ledger/internal/commission"
	"github.com/partner-ledger/internal/constants"
	"github.com/partner-ledger/internal/models"
	"github.com/partner-ledger/internal/payout"
	"github.com/partner-ledger/internal/repository"

	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var march2025 = time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC)

type fakeProcessor struct {
	name      string
	payable   bool
	submitErr error
	result    payout.SubmitResult
	submits   int32
	keys      []string
	found     *payout.SubmitResult
	finds     int32
}

func (p *fakeProcessor) Name() string { return p.name }

func (p *fakeProcessor) IsPayable(_ context.Context, link payout.PayeeLink) (bool, error) {
	return p.payable && link.Status == constants.PayeeStatusActive, nil
}

func (p *fakeProcessor) Submit(_ context.Context, req payout.SubmitRequest) (*payout.SubmitResult, error) {
	atomic.AddInt32(&p.submits, 1)
	p.keys = append(p.keys, req.IdempotencyKey)
	if p.submitErr != nil {
		return nil, p.submitErr
	}
	result := p.result
	if result.ProcessorRef == "" && !result.Confirmed {
		result.ProcessorRef = "ref-" + req.CommissionNo
	}
	return &result, nil
}

func (p *fakeProcessor) FindSubmission(_ context.Context, _ string) (*payout.SubmitResult, error) {
	atomic.AddInt32(&p.finds, 1)
	return p.found, nil
}

type commissionTestEnv struct {
	db        *gorm.DB
	service   *CommissionService
	partners  *PartnerService
	revenue   *RevenueInputService
	repo      repository.CommissionRepository
	processor *fakeProcessor
}

func setupCommissionServiceTest(t *testing.T) *commissionTestEnv {
	t.Helper()
	dsn := fmt.Sprintf("file:commission_service_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	if err := models.Migrate(db); err != nil {
		t.Fatalf("auto migrate failed: %v", err)
	}

	partnerRepo := repository.NewPartnerRepository(db)
	revenueRepo := repository.NewRevenueInputRepository(db)
	commissionRepo := repository.NewCommissionRepository(db)
	processor := &fakeProcessor{name: "fake", payable: true}
	registry := payout.NewRegistry(processor, payout.NewManualProcessor())

	ledger := NewCommissionLedger(commissionRepo, nil, 3)
	source := NewCachedRevenueSource(NewDBRevenueSource(revenueRepo), 0, nil)
	svc := NewCommissionService(partnerRepo, commissionRepo, ledger, source, registry, nil, nil, CommissionServiceOptions{
		Currency:         "USD",
		BatchConcurrency: 1,
	})
	return &commissionTestEnv{
		db:        db,
		service:   svc,
		partners:  NewPartnerService(partnerRepo, registry),
		revenue:   NewRevenueInputService(revenueRepo, partnerRepo),
		repo:      commissionRepo,
		processor: processor,
	}
}

func testDecimal(t *testing.T, raw string) *decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(raw)
	if err != nil {
		t.Fatalf("parse decimal %s: %v", raw, err)
	}
	return &d
}

func testCount(n int64) *int64 {
	return &n
}

func (env *commissionTestEnv) createPartner(t *testing.T, code string, fields commission.StructureFields) *models.Partner {
	t.Helper()
	partner, err := env.partners.Create(PartnerInput{
		PartnerCode: code,
		Name:        "Partner " + code,
		PartnerType: constants.PartnerTypeReferral,
		Structure:   fields,
	})
	if err != nil {
		t.Fatalf("create partner %s failed: %v", code, err)
	}
	return partner
}

func (env *commissionTestEnv) setRevenue(t *testing.T, partnerID uint, month time.Time, basis *decimal.Decimal, count *int64) {
	t.Helper()
	if _, err := env.revenue.Upsert(context.Background(), RevenueInput{
		PartnerID:       partnerID,
		Month:           month,
		RevenueBasis:    basis,
		ConversionCount: count,
	}); err != nil {
		t.Fatalf("set revenue failed: %v", err)
	}
}

func (env *commissionTestEnv) activatePayee(t *testing.T, partnerID uint) {
	t.Helper()
	if _, err := env.partners.SetPayoutLink(partnerID, PayoutLinkInput{PayeeID: "acct_1", Status: constants.PayeeStatusActive}); err != nil {
		t.Fatalf("activate payee failed: %v", err)
	}
}

func percentageFields(t *testing.T, rate string) commission.StructureFields {
	return commission.StructureFields{Kind: constants.StructurePercentage, RatePercent: testDecimal(t, rate)}
}

func TestCalculateOneIsIdempotentAndRecalculatesInPlace(t *testing.T) {
	env := setupCommissionServiceTest(t)
	ctx := context.Background()
	partner := env.createPartner(t, "P-100", percentageFields(t, "5"))
	env.setRevenue(t, partner.ID, march2025, testDecimal(t, "20000"), nil)

	first, err := env.service.CalculateOne(ctx, partner.ID, time.Date(2025, time.March, 17, 9, 0, 0, 0, time.UTC), OperatorMeta{})
	if err != nil {
		t.Fatalf("calculate failed: %v", err)
	}
	if !first.Created || first.Record.PaymentStatus != constants.CommissionStatusPending {
		t.Fatalf("unexpected first outcome: %+v", first)
	}
	if first.Record.CommissionAmount.String() != "1000.00" {
		t.Fatalf("want 1000.00 got %s", first.Record.CommissionAmount.String())
	}
	if first.Record.CalculationDetails != "5% × $20,000.00 revenue = $1,000.00" {
		t.Fatalf("unexpected details: %s", first.Record.CalculationDetails)
	}
	if first.Record.ConversionCount != nil || first.Record.RevenueBasis == nil {
		t.Fatalf("nullability mismatch: %+v", first.Record)
	}

	again, err := env.service.CalculateOne(ctx, partner.ID, march2025, OperatorMeta{})
	if err != nil {
		t.Fatalf("recalculate failed: %v", err)
	}
	if again.Created || again.Record.ID != first.Record.ID || again.Record.CommissionNo != first.Record.CommissionNo {
		t.Fatalf("recalculation should reuse the record: %+v", again.Record)
	}
	if again.Record.CommissionAmount.String() != "1000.00" {
		t.Fatalf("idempotent recalculation changed amount: %s", again.Record.CommissionAmount.String())
	}

	env.setRevenue(t, partner.ID, march2025, testDecimal(t, "30000"), nil)
	updated, err := env.service.CalculateOne(ctx, partner.ID, march2025, OperatorMeta{})
	if err != nil {
		t.Fatalf("recalculate with new revenue failed: %v", err)
	}
	if updated.Record.CommissionAmount.String() != "1500.00" || updated.Record.CommissionNo != first.Record.CommissionNo {
		t.Fatalf("unexpected recalculated record: %+v", updated.Record)
	}

	var count int64
	env.db.Model(&models.CommissionRecord{}).Count(&count)
	if count != 1 {
		t.Fatalf("expected exactly one record, got %d", count)
	}
	transitions, err := env.service.ListTransitions(first.Record.ID)
	if err != nil {
		t.Fatalf("list transitions failed: %v", err)
	}
	if len(transitions) != 3 || transitions[0].Event != constants.CommissionEventCreated || transitions[2].Event != constants.CommissionEventRecalculated {
		t.Fatalf("unexpected transitions: %+v", transitions)
	}
}

func TestCalculateOneSkipsNoneAndReportsMissingInputs(t *testing.T) {
	env := setupCommissionServiceTest(t)
	ctx := context.Background()

	none := env.createPartner(t, "P-NONE", commission.StructureFields{})
	outcome, err := env.service.CalculateOne(ctx, none.ID, march2025, OperatorMeta{})
	if err != nil {
		t.Fatalf("none structure should not error: %v", err)
	}
	if !outcome.Skipped() || outcome.Record != nil {
		t.Fatalf("none structure should be skipped: %+v", outcome)
	}

	pct := env.createPartner(t, "P-PCT", percentageFields(t, "5"))
	if _, err := env.service.CalculateOne(ctx, pct.ID, march2025, OperatorMeta{}); !errors.Is(err, commission.ErrMissingRevenueBasis) {
		t.Fatalf("want missing revenue basis, got %v", err)
	}

	referral := env.createPartner(t, "P-REF", commission.StructureFields{
		Kind:                constants.StructurePerReferral,
		AmountPerConversion: testDecimal(t, "25"),
	})
	env.setRevenue(t, referral.ID, march2025, nil, testCount(0))
	zero, err := env.service.CalculateOne(ctx, referral.ID, march2025, OperatorMeta{})
	if err != nil {
		t.Fatalf("zero conversions should succeed: %v", err)
	}
	if zero.Skipped() || !zero.Record.CommissionAmount.IsZero() || zero.Record.ConversionCount == nil || *zero.Record.ConversionCount != 0 {
		t.Fatalf("zero commission must be recorded: %+v", zero.Record)
	}

	var count int64
	env.db.Model(&models.CommissionRecord{}).Count(&count)
	if count != 1 {
		t.Fatalf("only the zero commission should be recorded, got %d", count)
	}

	if _, err := env.service.CalculateOne(ctx, 9999, march2025, OperatorMeta{}); !errors.Is(err, ErrPartnerNotFound) {
		t.Fatalf("want partner not found, got %v", err)
	}
}

func TestPaidRecordIsImmutable(t *testing.T) {
	env := setupCommissionServiceTest(t)
	ctx := context.Background()
	partner := env.createPartner(t, "P-PAID", percentageFields(t, "5"))
	env.setRevenue(t, partner.ID, march2025, testDecimal(t, "20000"), nil)
	env.activatePayee(t, partner.ID)

	outcome, err := env.service.CalculateOne(ctx, partner.ID, march2025, OperatorMeta{})
	if err != nil {
		t.Fatalf("calculate failed: %v", err)
	}
	processing, err := env.service.MarkProcessing(ctx, outcome.Record.ID, OperatorMeta{Operator: constants.OperatorAdmin})
	if err != nil {
		t.Fatalf("mark processing failed: %v", err)
	}
	if processing.PaymentStatus != constants.CommissionStatusProcessing || processing.ProcessorRef == "" {
		t.Fatalf("unexpected processing record: %+v", processing)
	}

	env.setRevenue(t, partner.ID, march2025, testDecimal(t, "50000"), nil)
	if _, err := env.service.CalculateOne(ctx, partner.ID, march2025, OperatorMeta{}); !errors.Is(err, ErrRecordLocked) {
		t.Fatalf("processing record should be locked, got %v", err)
	}

	paidAt := time.Date(2025, time.April, 5, 12, 0, 0, 0, time.UTC)
	paid, err := env.service.MarkPaid(ctx, outcome.Record.ID, &paidAt, OperatorMeta{Operator: constants.OperatorAdmin})
	if err != nil {
		t.Fatalf("mark paid failed: %v", err)
	}
	if paid.PaymentStatus != constants.CommissionStatusPaid || paid.PaymentDate == nil || !paid.PaymentDate.Equal(paidAt) {
		t.Fatalf("unexpected paid record: %+v", paid)
	}

	if _, err := env.service.CalculateOne(ctx, partner.ID, march2025, OperatorMeta{}); !errors.Is(err, ErrRecordLocked) {
		t.Fatalf("paid record should be locked, got %v", err)
	}
	reloaded, err := env.service.GetRecord(outcome.Record.ID)
	if err != nil {
		t.Fatalf("get record failed: %v", err)
	}
	if reloaded.CommissionAmount.String() != "1000.00" {
		t.Fatalf("paid amount changed: %s", reloaded.CommissionAmount.String())
	}
	if _, err := env.service.MarkFailed(ctx, outcome.Record.ID, "late rejection", OperatorMeta{}); !errors.Is(err, commission.ErrInvalidTransition) {
		t.Fatalf("paid -> failed should be invalid, got %v", err)
	}
}

func TestMarkProcessingRequiresActivePayee(t *testing.T) {
	env := setupCommissionServiceTest(t)
	ctx := context.Background()
	partner := env.createPartner(t, "P-GATE", percentageFields(t, "5"))
	env.setRevenue(t, partner.ID, march2025, testDecimal(t, "1000"), nil)
	outcome, err := env.service.CalculateOne(ctx, partner.ID, march2025, OperatorMeta{})
	if err != nil {
		t.Fatalf("calculate failed: %v", err)
	}

	if _, err := env.partners.SetPayoutLink(partner.ID, PayoutLinkInput{PayeeID: "acct_1", Status: constants.PayeeStatusPending}); err != nil {
		t.Fatalf("set pending link failed: %v", err)
	}
	if _, err := env.service.MarkProcessing(ctx, outcome.Record.ID, OperatorMeta{}); !errors.Is(err, ErrPayeeNotPayable) {
		t.Fatalf("want payee not payable, got %v", err)
	}
	record, _ := env.service.GetRecord(outcome.Record.ID)
	if record.PaymentStatus != constants.CommissionStatusPending {
		t.Fatalf("record should stay pending, got %s", record.PaymentStatus)
	}
	if atomic.LoadInt32(&env.processor.submits) != 0 {
		t.Fatalf("gated record must not be submitted")
	}

	env.activatePayee(t, partner.ID)
	env.processor.payable = false
	if _, err := env.service.MarkProcessing(ctx, outcome.Record.ID, OperatorMeta{}); !errors.Is(err, ErrPayeeNotPayable) {
		t.Fatalf("processor veto should gate, got %v", err)
	}

	env.processor.payable = true
	processing, err := env.service.MarkProcessing(ctx, outcome.Record.ID, OperatorMeta{})
	if err != nil {
		t.Fatalf("mark processing failed: %v", err)
	}
	if processing.PaymentStatus != constants.CommissionStatusProcessing || processing.PayoutProvider != "fake" {
		t.Fatalf("unexpected processing record: %+v", processing)
	}
}

func TestFailedRecordCycle(t *testing.T) {
	env := setupCommissionServiceTest(t)
	ctx := context.Background()
	partner := env.createPartner(t, "P-FAIL", percentageFields(t, "10"))
	env.setRevenue(t, partner.ID, march2025, testDecimal(t, "1000"), nil)
	env.activatePayee(t, partner.ID)
	outcome, err := env.service.CalculateOne(ctx, partner.ID, march2025, OperatorMeta{})
	if err != nil {
		t.Fatalf("calculate failed: %v", err)
	}
	id := outcome.Record.ID

	if _, err := env.service.MarkFailed(ctx, id, "bank rejected", OperatorMeta{}); !errors.Is(err, commission.ErrInvalidTransition) {
		t.Fatalf("pending -> failed should be invalid, got %v", err)
	}
	if _, err := env.service.MarkProcessing(ctx, id, OperatorMeta{}); err != nil {
		t.Fatalf("mark processing failed: %v", err)
	}
	if _, err := env.service.MarkFailed(ctx, id, "  ", OperatorMeta{}); !errors.Is(err, ErrFailureReasonRequired) {
		t.Fatalf("want failure reason required, got %v", err)
	}
	failed, err := env.service.MarkFailed(ctx, id, "bank rejected", OperatorMeta{Operator: constants.OperatorAdmin})
	if err != nil {
		t.Fatalf("mark failed failed: %v", err)
	}
	if failed.PaymentStatus != constants.CommissionStatusFailed || failed.FailureReason != "bank rejected" || failed.FailedAt == nil {
		t.Fatalf("unexpected failed record: %+v", failed)
	}

	env.setRevenue(t, partner.ID, march2025, testDecimal(t, "2000"), nil)
	recalculated, err := env.service.CalculateOne(ctx, partner.ID, march2025, OperatorMeta{})
	if err != nil {
		t.Fatalf("failed record should be recalculable: %v", err)
	}
	if recalculated.Record.PaymentStatus != constants.CommissionStatusFailed || recalculated.Record.CommissionAmount.String() != "200.00" {
		t.Fatalf("recalculation must keep status and update amount: %+v", recalculated.Record)
	}

	pending, err := env.service.RetryFailed(ctx, id, "", OperatorMeta{Operator: constants.OperatorAdmin})
	if err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	if pending.PaymentStatus != constants.CommissionStatusPending || pending.FailureReason != "" {
		t.Fatalf("unexpected pending record: %+v", pending)
	}
	if _, err := env.service.RetryFailed(ctx, id, "", OperatorMeta{}); !errors.Is(err, commission.ErrInvalidTransition) {
		t.Fatalf("pending -> pending should be invalid, got %v", err)
	}
}

func TestMarkProcessingSubmitFailureFailsRecord(t *testing.T) {
	env := setupCommissionServiceTest(t)
	ctx := context.Background()
	partner := env.createPartner(t, "P-SUBMIT", percentageFields(t, "10"))
	env.setRevenue(t, partner.ID, march2025, testDecimal(t, "1000"), nil)
	env.activatePayee(t, partner.ID)
	outcome, err := env.service.CalculateOne(ctx, partner.ID, march2025, OperatorMeta{})
	if err != nil {
		t.Fatalf("calculate failed: %v", err)
	}

	env.processor.submitErr = errors.New("insufficient platform balance")
	record, err := env.service.MarkProcessing(ctx, outcome.Record.ID, OperatorMeta{})
	if !errors.Is(err, ErrPayoutSubmitFailed) {
		t.Fatalf("want payout submit failed, got %v", err)
	}
	if record == nil || record.PaymentStatus != constants.CommissionStatusFailed {
		t.Fatalf("submit failure should fail the record: %+v", record)
	}
	if !strings.Contains(record.FailureReason, "insufficient platform balance") {
		t.Fatalf("failure reason should carry processor error: %s", record.FailureReason)
	}
}

func TestMarkProcessingConfirmedSynchronously(t *testing.T) {
	env := setupCommissionServiceTest(t)
	ctx := context.Background()
	partner := env.createPartner(t, "P-SYNC", percentageFields(t, "10"))
	env.setRevenue(t, partner.ID, march2025, testDecimal(t, "1000"), nil)
	env.activatePayee(t, partner.ID)
	outcome, err := env.service.CalculateOne(ctx, partner.ID, march2025, OperatorMeta{})
	if err != nil {
		t.Fatalf("calculate failed: %v", err)
	}
	env.processor.result = payout.SubmitResult{ProcessorRef: "sync-1", Confirmed: true}
	record, err := env.service.MarkProcessing(ctx, outcome.Record.ID, OperatorMeta{})
	if err != nil {
		t.Fatalf("mark processing failed: %v", err)
	}
	if record.PaymentStatus != constants.CommissionStatusPaid || record.PaymentDate == nil || record.ProcessorRef != "sync-1" {
		t.Fatalf("synchronous confirmation should mark paid: %+v", record)
	}
}

func TestHandleProcessorEventIsIdempotent(t *testing.T) {
	env := setupCommissionServiceTest(t)
	ctx := context.Background()
	partner := env.createPartner(t, "P-EVT", percentageFields(t, "10"))
	env.setRevenue(t, partner.ID, march2025, testDecimal(t, "1000"), nil)
	env.activatePayee(t, partner.ID)
	outcome, err := env.service.CalculateOne(ctx, partner.ID, march2025, OperatorMeta{})
	if err != nil {
		t.Fatalf("calculate failed: %v", err)
	}
	processing, err := env.service.MarkProcessing(ctx, outcome.Record.ID, OperatorMeta{})
	if err != nil {
		t.Fatalf("mark processing failed: %v", err)
	}

	occurred := time.Date(2025, time.April, 2, 8, 0, 0, 0, time.UTC)
	event := payout.Event{
		Provider:     "fake",
		EventID:      "evt_1",
		ProcessorRef: processing.ProcessorRef,
		Outcome:      constants.PayoutEventConfirmed,
		OccurredAt:   occurred,
	}
	paid, err := env.service.HandleProcessorEvent(ctx, event)
	if err != nil {
		t.Fatalf("handle confirmation failed: %v", err)
	}
	if paid.PaymentStatus != constants.CommissionStatusPaid || !paid.PaymentDate.Equal(occurred) {
		t.Fatalf("unexpected paid record: %+v", paid)
	}
	before, _ := env.service.ListTransitions(paid.ID)

	again, err := env.service.HandleProcessorEvent(ctx, event)
	if err != nil {
		t.Fatalf("duplicate confirmation should be a no-op: %v", err)
	}
	after, _ := env.service.ListTransitions(paid.ID)
	if again.PaymentStatus != constants.CommissionStatusPaid || len(after) != len(before) {
		t.Fatalf("duplicate delivery changed state: before=%d after=%d", len(before), len(after))
	}

	if _, err := env.service.HandleProcessorEvent(ctx, payout.Event{
		Provider:     "fake",
		CommissionNo: paid.CommissionNo,
		Outcome:      constants.PayoutEventRejected,
	}); !errors.Is(err, ErrStatusConflict) {
		t.Fatalf("rejection of paid record should conflict, got %v", err)
	}

	if _, err := env.service.HandleProcessorEvent(ctx, payout.Event{Provider: "fake", ProcessorRef: "unknown"}); !errors.Is(err, ErrCommissionNotFound) {
		t.Fatalf("unmatched event should be not found, got %v", err)
	}
}

func TestHandleProcessorRejectionFailsRecord(t *testing.T) {
	env := setupCommissionServiceTest(t)
	ctx := context.Background()
	partner := env.createPartner(t, "P-REJ", percentageFields(t, "10"))
	env.setRevenue(t, partner.ID, march2025, testDecimal(t, "1000"), nil)
	env.activatePayee(t, partner.ID)
	outcome, _ := env.service.CalculateOne(ctx, partner.ID, march2025, OperatorMeta{})
	if _, err := env.service.MarkProcessing(ctx, outcome.Record.ID, OperatorMeta{}); err != nil {
		t.Fatalf("mark processing failed: %v", err)
	}
	event := payout.Event{Provider: "fake", CommissionNo: outcome.Record.CommissionNo, Outcome: constants.PayoutEventRejected}
	failed, err := env.service.HandleProcessorEvent(ctx, event)
	if err != nil {
		t.Fatalf("handle rejection failed: %v", err)
	}
	if failed.PaymentStatus != constants.CommissionStatusFailed || failed.FailureReason != defaultRejectedReason {
		t.Fatalf("unexpected failed record: %+v", failed)
	}
	if _, err := env.service.HandleProcessorEvent(ctx, event); err != nil {
		t.Fatalf("duplicate rejection should be a no-op: %v", err)
	}

	count, err := env.service.RequeueFailedBefore(ctx, time.Now().Add(time.Minute))
	if err != nil || count != 1 {
		t.Fatalf("requeue failed records: count=%d err=%v", count, err)
	}
	record, _ := env.service.GetRecord(outcome.Record.ID)
	if record.PaymentStatus != constants.CommissionStatusPending {
		t.Fatalf("requeued record should be pending, got %s", record.PaymentStatus)
	}
}

func TestMarkProcessingChecksPayeeBeforeProvider(t *testing.T) {
	env := setupCommissionServiceTest(t)
	ctx := context.Background()
	partner := env.createPartner(t, "P-ORDER", percentageFields(t, "5"))
	env.setRevenue(t, partner.ID, march2025, testDecimal(t, "1000"), nil)
	outcome, err := env.service.CalculateOne(ctx, partner.ID, march2025, OperatorMeta{})
	if err != nil {
		t.Fatalf("calculate failed: %v", err)
	}
	// 渠道已从配置中移除
	if err := env.db.Model(&models.Partner{}).Where("id = ?", partner.ID).Update("payout_provider", "stripe").Error; err != nil {
		t.Fatalf("set provider failed: %v", err)
	}

	if _, err := env.service.MarkProcessing(ctx, outcome.Record.ID, OperatorMeta{}); !errors.Is(err, ErrPayeeNotPayable) {
		t.Fatalf("unlinked payee should be reported before provider lookup, got %v", err)
	}

	env.activatePayee(t, partner.ID)
	if err := env.db.Model(&models.Partner{}).Where("id = ?", partner.ID).Update("payout_provider", "stripe").Error; err != nil {
		t.Fatalf("set provider failed: %v", err)
	}
	if _, err := env.service.MarkProcessing(ctx, outcome.Record.ID, OperatorMeta{}); !errors.Is(err, ErrPayoutUnavailable) {
		t.Fatalf("active payee on missing provider should be unavailable, got %v", err)
	}
}

func TestHandleProcessorEventIgnoresStaleProcessorRef(t *testing.T) {
	env := setupCommissionServiceTest(t)
	ctx := context.Background()
	partner := env.createPartner(t, "P-STALE", percentageFields(t, "10"))
	env.setRevenue(t, partner.ID, march2025, testDecimal(t, "1000"), nil)
	env.activatePayee(t, partner.ID)
	outcome, err := env.service.CalculateOne(ctx, partner.ID, march2025, OperatorMeta{})
	if err != nil {
		t.Fatalf("calculate failed: %v", err)
	}
	id := outcome.Record.ID

	env.processor.result = payout.SubmitResult{ProcessorRef: "tr_1"}
	if _, err := env.service.MarkProcessing(ctx, id, OperatorMeta{}); err != nil {
		t.Fatalf("first submit failed: %v", err)
	}
	if _, err := env.service.MarkFailed(ctx, id, "bank timeout", OperatorMeta{}); err != nil {
		t.Fatalf("mark failed failed: %v", err)
	}
	if _, err := env.service.RetryFailed(ctx, id, "", OperatorMeta{}); err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	env.processor.result = payout.SubmitResult{ProcessorRef: "tr_2"}
	resubmitted, err := env.service.MarkProcessing(ctx, id, OperatorMeta{})
	if err != nil {
		t.Fatalf("second submit failed: %v", err)
	}
	if resubmitted.ProcessorRef != "tr_2" {
		t.Fatalf("want processor ref tr_2, got %s", resubmitted.ProcessorRef)
	}
	before, _ := env.service.ListTransitions(id)

	for _, kind := range []string{constants.PayoutEventRejected, constants.PayoutEventConfirmed} {
		_, err := env.service.HandleProcessorEvent(ctx, payout.Event{
			Provider:     "fake",
			EventID:      "evt_stale_" + kind,
			ProcessorRef: "tr_1",
			CommissionNo: resubmitted.CommissionNo,
			Outcome:      kind,
		})
		if !errors.Is(err, payout.ErrEventIgnored) {
			t.Fatalf("stale %s event should be ignored, got %v", kind, err)
		}
	}
	record, _ := env.service.GetRecord(id)
	after, _ := env.service.ListTransitions(id)
	if record.PaymentStatus != constants.CommissionStatusProcessing || record.ProcessorRef != "tr_2" || len(after) != len(before) {
		t.Fatalf("stale events changed the record: status=%s ref=%s transitions=%d->%d",
			record.PaymentStatus, record.ProcessorRef, len(before), len(after))
	}

	paid, err := env.service.HandleProcessorEvent(ctx, payout.Event{
		Provider:     "fake",
		EventID:      "evt_current",
		ProcessorRef: "tr_2",
		CommissionNo: resubmitted.CommissionNo,
		Outcome:      constants.PayoutEventConfirmed,
	})
	if err != nil {
		t.Fatalf("current confirmation failed: %v", err)
	}
	if paid.PaymentStatus != constants.CommissionStatusPaid {
		t.Fatalf("current ref should confirm, got %s", paid.PaymentStatus)
	}
}

func TestMarkProcessingUncertainSubmitKeepsProcessing(t *testing.T) {
	env := setupCommissionServiceTest(t)
	ctx := context.Background()
	partner := env.createPartner(t, "P-TIMEOUT", percentageFields(t, "10"))
	env.setRevenue(t, partner.ID, march2025, testDecimal(t, "1000"), nil)
	env.activatePayee(t, partner.ID)
	outcome, err := env.service.CalculateOne(ctx, partner.ID, march2025, OperatorMeta{})
	if err != nil {
		t.Fatalf("calculate failed: %v", err)
	}

	env.processor.submitErr = fmt.Errorf("%w: read tcp: i/o timeout", payout.ErrSubmitUncertain)
	record, err := env.service.MarkProcessing(ctx, outcome.Record.ID, OperatorMeta{})
	if !errors.Is(err, ErrPayoutOutcomeUnknown) {
		t.Fatalf("want payout outcome unknown, got %v", err)
	}
	if record == nil || record.PaymentStatus != constants.CommissionStatusProcessing || record.FailureReason != "" {
		t.Fatalf("uncertain submit should stay processing: %+v", record)
	}
	if record.PayoutAttempts != 1 {
		t.Fatalf("want one payout attempt, got %d", record.PayoutAttempts)
	}
	if ErrorCode(err) != "payout_outcome_unknown" {
		t.Fatalf("unexpected error code %s", ErrorCode(err))
	}

	paid, err := env.service.HandleProcessorEvent(ctx, payout.Event{
		Provider:     "fake",
		EventID:      "evt_late",
		ProcessorRef: "tr_late",
		CommissionNo: record.CommissionNo,
		Outcome:      constants.PayoutEventConfirmed,
	})
	if err != nil {
		t.Fatalf("late confirmation failed: %v", err)
	}
	if paid.PaymentStatus != constants.CommissionStatusPaid || paid.ProcessorRef != "tr_late" {
		t.Fatalf("late confirmation should settle the record: %+v", paid)
	}
}

func TestResubmitReusesExistingPayout(t *testing.T) {
	env := setupCommissionServiceTest(t)
	ctx := context.Background()
	partner := env.createPartner(t, "P-RESUBMIT", percentageFields(t, "10"))
	env.setRevenue(t, partner.ID, march2025, testDecimal(t, "1000"), nil)
	env.activatePayee(t, partner.ID)
	outcome, err := env.service.CalculateOne(ctx, partner.ID, march2025, OperatorMeta{})
	if err != nil {
		t.Fatalf("calculate failed: %v", err)
	}
	id := outcome.Record.ID
	no := outcome.Record.CommissionNo

	env.processor.submitErr = fmt.Errorf("%w: gateway timeout", payout.ErrSubmitUncertain)
	if _, err := env.service.MarkProcessing(ctx, id, OperatorMeta{}); !errors.Is(err, ErrPayoutOutcomeUnknown) {
		t.Fatalf("want payout outcome unknown, got %v", err)
	}
	if atomic.LoadInt32(&env.processor.finds) != 0 {
		t.Fatalf("first submission should not look up existing payouts")
	}
	if _, err := env.service.MarkFailed(ctx, id, "no confirmation received", OperatorMeta{Operator: constants.OperatorAdmin}); err != nil {
		t.Fatalf("mark failed failed: %v", err)
	}
	if _, err := env.service.RetryFailed(ctx, id, "", OperatorMeta{}); err != nil {
		t.Fatalf("retry failed: %v", err)
	}

	// 渠道侧已存在第一次提交的打款
	env.processor.submitErr = nil
	env.processor.found = &payout.SubmitResult{ProcessorRef: "tr_first", Confirmed: true}
	paid, err := env.service.MarkProcessing(ctx, id, OperatorMeta{})
	if err != nil {
		t.Fatalf("resubmit failed: %v", err)
	}
	if paid.PaymentStatus != constants.CommissionStatusPaid || paid.ProcessorRef != "tr_first" {
		t.Fatalf("existing payout should be adopted: %+v", paid)
	}
	if got := atomic.LoadInt32(&env.processor.submits); got != 1 {
		t.Fatalf("existing payout must not be submitted again, submits=%d", got)
	}
	if len(env.processor.keys) != 1 || env.processor.keys[0] != idempotencyKey(no, 1) {
		t.Fatalf("first submission key should derive from attempt 1: %v", env.processor.keys)
	}
}

func TestResubmitWithoutExistingPayoutUsesNextAttemptKey(t *testing.T) {
	env := setupCommissionServiceTest(t)
	ctx := context.Background()
	partner := env.createPartner(t, "P-ATTEMPT", percentageFields(t, "10"))
	env.setRevenue(t, partner.ID, march2025, testDecimal(t, "1000"), nil)
	env.activatePayee(t, partner.ID)
	outcome, err := env.service.CalculateOne(ctx, partner.ID, march2025, OperatorMeta{})
	if err != nil {
		t.Fatalf("calculate failed: %v", err)
	}
	id := outcome.Record.ID
	no := outcome.Record.CommissionNo

	env.processor.submitErr = errors.New("destination account closed")
	if _, err := env.service.MarkProcessing(ctx, id, OperatorMeta{}); !errors.Is(err, ErrPayoutSubmitFailed) {
		t.Fatalf("want payout submit failed, got %v", err)
	}
	if _, err := env.service.RetryFailed(ctx, id, "", OperatorMeta{}); err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	env.processor.submitErr = nil
	record, err := env.service.MarkProcessing(ctx, id, OperatorMeta{})
	if err != nil {
		t.Fatalf("resubmit failed: %v", err)
	}
	if record.PayoutAttempts != 2 || atomic.LoadInt32(&env.processor.finds) != 1 {
		t.Fatalf("resubmit should look up once on attempt 2: attempts=%d finds=%d", record.PayoutAttempts, env.processor.finds)
	}
	want := []string{idempotencyKey(no, 1), idempotencyKey(no, 2)}
	if len(env.processor.keys) != 2 || env.processor.keys[0] != want[0] || env.processor.keys[1] != want[1] {
		t.Fatalf("unexpected idempotency keys: %v", env.processor.keys)
	}
}

func TestIdempotencyKeyPerAttempt(t *testing.T) {
	key := idempotencyKey("CM-202503-P000001", 1)
	if key != idempotencyKey("CM-202503-P000001", 1) {
		t.Fatalf("same attempt should reuse the key")
	}
	if key == idempotencyKey("CM-202503-P000001", 2) || key == idempotencyKey("CM-202503-P000002", 1) {
		t.Fatalf("key should differ per attempt and commission")
	}
}

func TestMarkFailedTruncatesReasonOnRuneBoundary(t *testing.T) {
	env := setupCommissionServiceTest(t)
	ctx := context.Background()
	partner := env.createPartner(t, "P-RUNE", percentageFields(t, "10"))
	env.setRevenue(t, partner.ID, march2025, testDecimal(t, "1000"), nil)
	env.activatePayee(t, partner.ID)
	outcome, err := env.service.CalculateOne(ctx, partner.ID, march2025, OperatorMeta{})
	if err != nil {
		t.Fatalf("calculate failed: %v", err)
	}
	if _, err := env.service.MarkProcessing(ctx, outcome.Record.ID, OperatorMeta{}); err != nil {
		t.Fatalf("mark processing failed: %v", err)
	}

	failed, err := env.service.MarkFailed(ctx, outcome.Record.ID, "a"+strings.Repeat("收款账户被冻结", 100), OperatorMeta{})
	if err != nil {
		t.Fatalf("mark failed failed: %v", err)
	}
	if !utf8.ValidString(failed.FailureReason) || utf8.RuneCountInString(failed.FailureReason) != maxFailureReasonLen {
		t.Fatalf("reason should be cut to %d runes, got %d valid=%v",
			maxFailureReasonLen, utf8.RuneCountInString(failed.FailureReason), utf8.ValidString(failed.FailureReason))
	}
	if got := truncateRunes("佣金", 5); got != "佣金" {
		t.Fatalf("short value should be unchanged, got %q", got)
	}
}

func TestCalculateBatchCollectsPerPartnerFailures(t *testing.T) {
	env := setupCommissionServiceTest(t)
	ctx := context.Background()

	pct := env.createPartner(t, "B-PCT", percentageFields(t, "5"))
	env.setRevenue(t, pct.ID, march2025, testDecimal(t, "20000"), nil)
	referral := env.createPartner(t, "B-REF", commission.StructureFields{Kind: constants.StructurePerReferral, AmountPerConversion: testDecimal(t, "25")})
	env.setRevenue(t, referral.ID, march2025, nil, testCount(12))
	none := env.createPartner(t, "B-NONE", commission.StructureFields{})
	missing := env.createPartner(t, "B-MISS", percentageFields(t, "5"))
	hybrid := env.createPartner(t, "B-HYB", commission.StructureFields{
		Kind:          constants.StructureHybrid,
		MonthlyAmount: testDecimal(t, "133.333"),
		RatePercent:   testDecimal(t, "2.5"),
	})
	env.setRevenue(t, hybrid.ID, march2025, testDecimal(t, "10000.004"), nil)

	result, err := env.service.CalculateBatch(ctx, march2025, OperatorMeta{})
	if err != nil {
		t.Fatalf("batch failed: %v", err)
	}
	if result.Month != "2025-03" || result.Cancelled {
		t.Fatalf("unexpected batch header: %+v", result)
	}
	if len(result.Succeeded) != 3 || len(result.Skipped) != 1 || len(result.Failed) != 1 {
		t.Fatalf("unexpected batch split: %+v", result)
	}
	if result.Skipped[0].PartnerID != none.ID {
		t.Fatalf("expected none partner skipped, got %+v", result.Skipped)
	}
	if result.Failed[0].PartnerID != missing.ID || result.Failed[0].Code != "missing_revenue_basis" {
		t.Fatalf("unexpected failure: %+v", result.Failed[0])
	}
	amounts := map[uint]string{}
	for _, item := range result.Succeeded {
		amounts[item.PartnerID] = item.Amount.String()
	}
	if amounts[pct.ID] != "1000.00" || amounts[referral.ID] != "300.00" || amounts[hybrid.ID] != "383.33" {
		t.Fatalf("unexpected amounts: %+v", amounts)
	}

	transitions := make([]models.CommissionTransition, 0)
	env.db.Where("operator = ?", constants.OperatorBatch).Find(&transitions)
	if len(transitions) != 3 {
		t.Fatalf("batch writes should be attributed to batch operator, got %d", len(transitions))
	}
}

func TestCalculateBatchStopsWhenCancelled(t *testing.T) {
	env := setupCommissionServiceTest(t)
	first := env.createPartner(t, "C-1", percentageFields(t, "5"))
	second := env.createPartner(t, "C-2", percentageFields(t, "5"))
	env.setRevenue(t, first.ID, march2025, testDecimal(t, "100"), nil)
	env.setRevenue(t, second.ID, march2025, testDecimal(t, "100"), nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	result, err := env.service.CalculateBatch(ctx, march2025, OperatorMeta{})
	if err != nil {
		t.Fatalf("batch failed: %v", err)
	}
	if !result.Cancelled || len(result.Unprocessed) != 2 || len(result.Succeeded) != 0 {
		t.Fatalf("cancelled batch should not process partners: %+v", result)
	}
}

type staleReadCommissionRepo struct {
	repository.CommissionRepository
	staleReads *int32
}

func (r staleReadCommissionRepo) WithTx(tx *gorm.DB) repository.CommissionRepository {
	return staleReadCommissionRepo{CommissionRepository: r.CommissionRepository.WithTx(tx), staleReads: r.staleReads}
}

func (r staleReadCommissionRepo) GetByPartnerMonthForUpdate(partnerID uint, month time.Time) (*models.CommissionRecord, error) {
	if atomic.AddInt32(r.staleReads, -1) >= 0 {
		return nil, nil
	}
	return r.CommissionRepository.GetByPartnerMonthForUpdate(partnerID, month)
}

func TestLedgerRetriesDuplicateKeyRace(t *testing.T) {
	env := setupCommissionServiceTest(t)
	ctx := context.Background()
	partner := env.createPartner(t, "R-1", percentageFields(t, "5"))
	env.setRevenue(t, partner.ID, march2025, testDecimal(t, "20000"), nil)
	if _, err := env.service.CalculateOne(ctx, partner.ID, march2025, OperatorMeta{}); err != nil {
		t.Fatalf("calculate failed: %v", err)
	}

	result, err := commission.Calculate(commission.Percentage{RatePercent: decimal.NewFromInt(5)}, commission.Input{
		Month:        march2025,
		RevenueBasis: testDecimal(t, "40000"),
	})
	if err != nil {
		t.Fatalf("calculate result failed: %v", err)
	}

	stale := int32(1)
	ledger := NewCommissionLedger(staleReadCommissionRepo{CommissionRepository: env.repo, staleReads: &stale}, nil, 3)
	record, created, err := ledger.Upsert(partner.ID, march2025, result, OperatorMeta{})
	if err != nil {
		t.Fatalf("upsert after race should succeed: %v", err)
	}
	if created || record.CommissionAmount.String() != "2000.00" {
		t.Fatalf("race retry should overwrite in place: created=%v record=%+v", created, record)
	}

	stale = 10
	ledger = NewCommissionLedger(staleReadCommissionRepo{CommissionRepository: env.repo, staleReads: &stale}, nil, 2)
	if _, _, err := ledger.Upsert(partner.ID, march2025, result, OperatorMeta{}); !errors.Is(err, ErrDuplicateKeyRace) {
		t.Fatalf("want duplicate key race after retries, got %v", err)
	}
}

func TestExportRecordsCSV(t *testing.T) {
	env := setupCommissionServiceTest(t)
	ctx := context.Background()
	partner := env.createPartner(t, "E-1", percentageFields(t, "5"))
	env.setRevenue(t, partner.ID, march2025, testDecimal(t, "20000"), nil)
	if _, err := env.service.CalculateOne(ctx, partner.ID, march2025, OperatorMeta{}); err != nil {
		t.Fatalf("calculate failed: %v", err)
	}

	var buf bytes.Buffer
	if err := env.service.ExportRecords(repository.CommissionListFilter{}, "csv", &buf); err != nil {
		t.Fatalf("export failed: %v", err)
	}
	rows, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("read csv failed: %v", err)
	}
	if len(rows) != 2 || rows[0][0] != "commission_no" {
		t.Fatalf("unexpected csv rows: %+v", rows)
	}
	if rows[1][2] != "E-1" || rows[1][4] != "2025-03" || rows[1][8] != "1000.00" || rows[1][7] != "" {
		t.Fatalf("unexpected csv data row: %+v", rows[1])
	}

	if err := env.service.ExportRecords(repository.CommissionListFilter{}, "pdf", &buf); !errors.Is(err, ErrExportFormatInvalid) {
		t.Fatalf("want export format invalid, got %v", err)
	}
	var xlsx bytes.Buffer
	if err := env.service.ExportRecords(repository.CommissionListFilter{}, "xlsx", &xlsx); err != nil {
		t.Fatalf("xlsx export failed: %v", err)
	}
	if !bytes.HasPrefix(xlsx.Bytes(), []byte("PK")) {
		t.Fatalf("xlsx export should be a zip archive")
	}

	env.service.opts.ExportMaxRows = 1
	env.createPartner(t, "E-2", commission.StructureFields{Kind: constants.StructureFlatFee, MonthlyAmount: testDecimal(t, "10")})
	if _, err := env.service.CalculateBatch(ctx, march2025, OperatorMeta{}); err != nil {
		t.Fatalf("batch failed: %v", err)
	}
	if err := env.service.ExportRecords(repository.CommissionListFilter{}, "csv", &bytes.Buffer{}); !errors.Is(err, ErrExportTooLarge) {
		t.Fatalf("want export too large, got %v", err)
	}
}

func TestPartnerServiceValidation(t *testing.T) {
	env := setupCommissionServiceTest(t)
	if _, err := env.partners.Create(PartnerInput{PartnerCode: "X", Name: "X", PartnerType: "vendor"}); !errors.Is(err, ErrPartnerInvalid) {
		t.Fatalf("want partner invalid, got %v", err)
	}
	if _, err := env.partners.Create(PartnerInput{
		PartnerCode: "X",
		Name:        "X",
		PartnerType: constants.PartnerTypeChannel,
		Structure:   commission.StructureFields{Kind: constants.StructurePercentage, RatePercent: testDecimal(t, "120")},
	}); !errors.Is(err, commission.ErrStructureInvalid) {
		t.Fatalf("want structure invalid, got %v", err)
	}
	env.createPartner(t, "DUP", commission.StructureFields{})
	if _, err := env.partners.Create(PartnerInput{PartnerCode: "DUP", Name: "Again", PartnerType: constants.PartnerTypeReferral}); !errors.Is(err, ErrPartnerCodeExists) {
		t.Fatalf("want partner code exists, got %v", err)
	}

	partner := env.createPartner(t, "LINK", commission.StructureFields{})
	if _, err := env.partners.SetPayoutLink(partner.ID, PayoutLinkInput{Status: constants.PayeeStatusActive}); !errors.Is(err, ErrPayoutLinkInvalid) {
		t.Fatalf("active link without payee id should fail, got %v", err)
	}
	unlinked, err := env.partners.SetPayoutLink(partner.ID, PayoutLinkInput{PayeeID: "acct_x", Status: constants.PayeeStatusNotLinked})
	if err != nil {
		t.Fatalf("unlink failed: %v", err)
	}
	if unlinked.PayeeID != "" || unlinked.PayoutLinked() {
		t.Fatalf("not_linked should clear payee id: %+v", unlinked)
	}

	updated, err := env.partners.Update(partner.ID, PartnerInput{
		PartnerCode: "LINK",
		Name:        "Linked",
		PartnerType: constants.PartnerTypeLocation,
		Structure:   commission.StructureFields{Kind: constants.StructureFlatFee, MonthlyAmount: testDecimal(t, "150")},
	})
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if updated.StructureKind != constants.StructureFlatFee || updated.RatePercent != nil {
		t.Fatalf("unexpected updated partner: %+v", updated)
	}
}
