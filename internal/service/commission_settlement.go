package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/partner-ledger/internal/commission"
	"github.com/partner-ledger/internal/constants"
	"github.com/partner-ledger/internal/logger"
	"github.com/partner-ledger/internal/models"
	"github.com/partner-ledger/internal/payout"
	"github.com/partner-ledger/internal/queue"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	defaultRejectedReason = "payout rejected by processor"
	maxFailureReasonLen   = 500
)

// MarkProcessing 提交打款：pending -> processing
// 收款方未激活或渠道判定不可打款时返回 ErrPayeeNotPayable，记录保持 pending
// 渠道明确拒绝时记录转为 failed；结果未知时保持 processing 并返回 ErrPayoutOutcomeUnknown
// 渠道同步确认时直接转为 paid
func (s *CommissionService) MarkProcessing(ctx context.Context, id uint, meta OperatorMeta) (*models.CommissionRecord, error) {
	record, err := s.GetRecord(id)
	if err != nil {
		return nil, err
	}
	if err := commission.ValidateTransition(record.PaymentStatus, constants.CommissionStatusProcessing); err != nil {
		return nil, err
	}
	partner := record.Partner
	if partner == nil {
		partner, err = s.partnerRepo.GetByID(record.PartnerID)
		if err != nil {
			return nil, err
		}
		if partner == nil {
			return nil, ErrPartnerNotFound
		}
	}

	if partner.PayeeStatus != constants.PayeeStatusActive {
		logger.Warnw("commission_payee_not_payable",
			"commission_no", record.CommissionNo,
			"partner_id", partner.ID,
			"payee_status", partner.PayeeStatus,
		)
		return nil, ErrPayeeNotPayable
	}
	processor, err := s.payouts.Get(partner.PayoutProvider)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPayoutUnavailable, err)
	}
	payable, err := processor.IsPayable(ctx, payout.PayeeLink{
		Provider: processor.Name(),
		PayeeID:  partner.PayeeID,
		Status:   partner.PayeeStatus,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPayoutUnavailable, err)
	}
	if !payable {
		logger.Warnw("commission_payee_not_payable",
			"commission_no", record.CommissionNo,
			"partner_id", partner.ID,
			"provider", processor.Name(),
		)
		return nil, ErrPayeeNotPayable
	}

	now := s.now().UTC()
	resubmit := record.PayoutAttempts > 0
	record, err = s.transition(record.ID, constants.CommissionStatusProcessing, map[string]interface{}{
		"processing_at":   now,
		"payout_provider": processor.Name(),
		"processor_ref":   "",
		"failure_reason":  "",
		"payout_attempts": gorm.Expr("payout_attempts + ?", 1),
	}, "submitted to "+processor.Name(), meta)
	if err != nil {
		return nil, err
	}

	submitted, err := s.submitPayout(ctx, processor, resubmit, payout.SubmitRequest{
		CommissionNo:   record.CommissionNo,
		PartnerID:      record.PartnerID,
		PayeeID:        partner.PayeeID,
		Amount:         record.CommissionAmount.Decimal,
		Currency:       s.opts.Currency,
		IdempotencyKey: idempotencyKey(record.CommissionNo, record.PayoutAttempts),
	})
	if errors.Is(err, payout.ErrSubmitUncertain) {
		// 渠道可能已受理，保持 processing 等待回调或人工核对
		logger.Warnw("commission_payout_submit_uncertain",
			"commission_no", record.CommissionNo,
			"provider", processor.Name(),
			"attempt", record.PayoutAttempts,
			"error", err,
		)
		return record, fmt.Errorf("%w: %v", ErrPayoutOutcomeUnknown, err)
	}
	if err != nil {
		logger.Errorw("commission_payout_submit_failed",
			"commission_no", record.CommissionNo,
			"provider", processor.Name(),
			"error", err,
		)
		failed, failErr := s.fail(ctx, record.ID, "payout submit failed: "+err.Error(), OperatorMeta{
			Operator:  constants.OperatorProcessor,
			RequestID: meta.RequestID,
		})
		if failErr != nil {
			return nil, failErr
		}
		return failed, fmt.Errorf("%w: %v", ErrPayoutSubmitFailed, err)
	}

	if submitted.Confirmed {
		return s.transition(record.ID, constants.CommissionStatusPaid, map[string]interface{}{
			"payment_date":  now,
			"processor_ref": submitted.ProcessorRef,
		}, "confirmed synchronously by "+processor.Name(), OperatorMeta{
			Operator:  constants.OperatorProcessor,
			RequestID: meta.RequestID,
		})
	}

	if submitted.ProcessorRef != "" {
		if _, err := s.commissionRepo.UpdateIfStatusIn(record.ID, []string{constants.CommissionStatusProcessing}, map[string]interface{}{
			"processor_ref": submitted.ProcessorRef,
			"updated_at":    s.now(),
		}); err != nil {
			return nil, err
		}
		record.ProcessorRef = submitted.ProcessorRef
	}
	return record, nil
}

// submitPayout 重新提交前先查询渠道侧同一佣金编号的已有打款
func (s *CommissionService) submitPayout(ctx context.Context, processor payout.Processor, resubmit bool, req payout.SubmitRequest) (*payout.SubmitResult, error) {
	if finder, ok := processor.(payout.SubmissionFinder); ok && resubmit {
		existing, err := finder.FindSubmission(ctx, req.CommissionNo)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", payout.ErrSubmitUncertain, err)
		}
		if existing != nil {
			logger.Infow("commission_payout_existing_adopted",
				"commission_no", req.CommissionNo,
				"provider", processor.Name(),
				"processor_ref", existing.ProcessorRef,
			)
			return existing, nil
		}
	}
	return processor.Submit(ctx, req)
}

// MarkPaid 确认到账：processing -> paid，paymentDate 为空时取当前时间
func (s *CommissionService) MarkPaid(_ context.Context, id uint, paymentDate *time.Time, meta OperatorMeta) (*models.CommissionRecord, error) {
	paidAt := s.now().UTC()
	if paymentDate != nil && !paymentDate.IsZero() {
		paidAt = paymentDate.UTC()
	}
	return s.transition(id, constants.CommissionStatusPaid, map[string]interface{}{
		"payment_date": paidAt,
	}, "payment confirmed", meta)
}

// MarkFailed 打款失败：processing -> failed，必须提供原因
func (s *CommissionService) MarkFailed(ctx context.Context, id uint, reason string, meta OperatorMeta) (*models.CommissionRecord, error) {
	return s.fail(ctx, id, reason, meta)
}

// RetryFailed 失败记录回到待处理：failed -> pending
func (s *CommissionService) RetryFailed(_ context.Context, id uint, reason string, meta OperatorMeta) (*models.CommissionRecord, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "requeued for settlement"
	}
	return s.transition(id, constants.CommissionStatusPending, map[string]interface{}{
		"failure_reason": "",
		"processing_at":  nil,
	}, reason, meta)
}

// RequeueFailedBefore 将 before 之前失败的记录回到待处理，返回处理数量
func (s *CommissionService) RequeueFailedBefore(ctx context.Context, before time.Time) (int, error) {
	ids, err := s.commissionRepo.ListIDsByStatus(constants.CommissionStatusFailed, before)
	if err != nil {
		return 0, err
	}
	count := 0
	for _, id := range ids {
		if ctx.Err() != nil {
			break
		}
		if _, err := s.RetryFailed(ctx, id, "automatic requeue", OperatorMeta{Operator: constants.OperatorSystem}); err != nil {
			if errors.Is(err, commission.ErrInvalidTransition) || errors.Is(err, ErrStatusConflict) {
				continue
			}
			return count, err
		}
		count++
	}
	return count, nil
}

// ParsePayoutWebhook 校验并解析渠道回调
func (s *CommissionService) ParsePayoutWebhook(provider string, payload []byte, header http.Header) (*payout.Event, error) {
	processor, err := s.payouts.Get(provider)
	if err != nil {
		return nil, err
	}
	verifier, ok := processor.(payout.WebhookVerifier)
	if !ok {
		return nil, fmt.Errorf("%w: %s does not accept webhooks", ErrPayoutUnavailable, processor.Name())
	}
	return verifier.ParseWebhook(payload, header)
}

// DispatchProcessorEvent 投递渠道回调；队列未启用时同步处理
func (s *CommissionService) DispatchProcessorEvent(ctx context.Context, event *payout.Event) error {
	if event == nil {
		return nil
	}
	err := s.queueClient.EnqueueCommissionPayoutEvent(queue.CommissionPayoutEventPayload{
		Provider:     event.Provider,
		EventID:      event.EventID,
		ProcessorRef: event.ProcessorRef,
		CommissionNo: event.CommissionNo,
		Outcome:      event.Outcome,
		Reason:       event.Reason,
		OccurredAt:   event.OccurredAt.Unix(),
	})
	if err == nil {
		return nil
	}
	if !errors.Is(err, queue.ErrQueueDisabled) {
		logger.Warnw("commission_payout_event_enqueue_failed", "provider", event.Provider, "event_id", event.EventID, "error", err)
	}
	_, err = s.HandleProcessorEvent(ctx, *event)
	return err
}

// HandleProcessorEvent 处理渠道异步结果
// 确认 -> paid，拒绝 -> failed；重复投递为幂等空操作
func (s *CommissionService) HandleProcessorEvent(ctx context.Context, event payout.Event) (*models.CommissionRecord, error) {
	record, err := s.findEventRecord(event)
	if err != nil {
		return nil, err
	}
	if record == nil {
		logger.Warnw("commission_payout_event_unmatched",
			"provider", event.Provider,
			"event_id", event.EventID,
			"processor_ref", event.ProcessorRef,
			"commission_no", event.CommissionNo,
		)
		return nil, ErrCommissionNotFound
	}
	if ref := strings.TrimSpace(event.ProcessorRef); ref != "" && record.ProcessorRef != "" && ref != record.ProcessorRef {
		// 记录已换绑新的渠道流水，旧流水的回调不再生效
		logger.Warnw("commission_payout_event_stale",
			"provider", event.Provider,
			"event_id", event.EventID,
			"commission_no", record.CommissionNo,
			"event_ref", ref,
			"record_ref", record.ProcessorRef,
		)
		return nil, fmt.Errorf("%w: stale processor ref %s for %s", payout.ErrEventIgnored, ref, record.CommissionNo)
	}
	s.metrics.RecordPayoutEvent(event.Provider, event.Outcome)
	meta := OperatorMeta{Operator: constants.OperatorProcessor, RequestID: event.EventID}

	switch event.Outcome {
	case constants.PayoutEventConfirmed:
		if record.PaymentStatus == constants.CommissionStatusPaid {
			return record, nil
		}
		if record.PaymentStatus != constants.CommissionStatusProcessing {
			return nil, fmt.Errorf("%w: confirmation for %s record %s", ErrStatusConflict, record.PaymentStatus, record.CommissionNo)
		}
		paidAt := event.OccurredAt
		if paidAt.IsZero() {
			paidAt = s.now()
		}
		updates := map[string]interface{}{"payment_date": paidAt.UTC()}
		if record.ProcessorRef == "" && event.ProcessorRef != "" {
			updates["processor_ref"] = event.ProcessorRef
		}
		return s.transition(record.ID, constants.CommissionStatusPaid, updates, "confirmed by "+event.Provider, meta)
	case constants.PayoutEventRejected:
		switch record.PaymentStatus {
		case constants.CommissionStatusFailed, constants.CommissionStatusPending:
			return record, nil
		case constants.CommissionStatusPaid:
			logger.Warnw("commission_payout_rejected_after_paid",
				"commission_no", record.CommissionNo,
				"provider", event.Provider,
				"event_id", event.EventID,
			)
			return nil, fmt.Errorf("%w: rejection for paid record %s", ErrStatusConflict, record.CommissionNo)
		}
		reason := strings.TrimSpace(event.Reason)
		if reason == "" {
			reason = defaultRejectedReason
		}
		return s.fail(ctx, record.ID, reason, meta)
	default:
		return nil, fmt.Errorf("%w: unknown outcome %q", payout.ErrEventIgnored, event.Outcome)
	}
}

func (s *CommissionService) findEventRecord(event payout.Event) (*models.CommissionRecord, error) {
	if ref := strings.TrimSpace(event.ProcessorRef); ref != "" {
		record, err := s.commissionRepo.GetByProcessorRef(event.Provider, ref)
		if err != nil || record != nil {
			return record, err
		}
	}
	if no := strings.TrimSpace(event.CommissionNo); no != "" {
		return s.commissionRepo.GetByCommissionNo(no)
	}
	return nil, nil
}

// fail processing -> failed，并按配置投递延时回队任务
func (s *CommissionService) fail(_ context.Context, id uint, reason string, meta OperatorMeta) (*models.CommissionRecord, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, ErrFailureReasonRequired
	}
	reason = truncateRunes(reason, maxFailureReasonLen)
	record, err := s.transition(id, constants.CommissionStatusFailed, map[string]interface{}{
		"failure_reason": reason,
		"failed_at":      s.now().UTC(),
	}, reason, meta)
	if err != nil {
		return nil, err
	}
	if s.opts.AutoRequeueFailed {
		err := s.queueClient.EnqueueCommissionRequeue(queue.CommissionRequeuePayload{
			CommissionID: record.ID,
			Reason:       "automatic requeue after: " + reason,
		}, s.opts.RequeueDelay)
		if err != nil {
			logger.Warnw("commission_requeue_enqueue_failed", "commission_no", record.CommissionNo, "error", err)
		}
	}
	return record, nil
}

// transition 在事务内校验迁移合法性，条件更新状态并追加流水
func (s *CommissionService) transition(id uint, to string, updates map[string]interface{}, reason string, meta OperatorMeta) (*models.CommissionRecord, error) {
	var from, commissionNo string
	err := s.commissionRepo.Transaction(func(tx *gorm.DB) error {
		repoTx := s.commissionRepo.WithTx(tx)
		record, err := repoTx.GetByIDForUpdate(id)
		if err != nil {
			return err
		}
		if record == nil {
			return ErrCommissionNotFound
		}
		if err := commission.ValidateTransition(record.PaymentStatus, to); err != nil {
			return err
		}
		from = record.PaymentStatus
		commissionNo = record.CommissionNo

		values := make(map[string]interface{}, len(updates)+2)
		for k, v := range updates {
			values[k] = v
		}
		values["payment_status"] = to
		values["updated_at"] = s.now()
		affected, err := repoTx.UpdateIfStatusIn(record.ID, []string{from}, values)
		if err != nil {
			return err
		}
		if affected == 0 {
			return ErrStatusConflict
		}
		return repoTx.CreateTransition(&models.CommissionTransition{
			CommissionRecordID: record.ID,
			CommissionNo:       record.CommissionNo,
			Event:              constants.CommissionEventTransition,
			FromStatus:         from,
			ToStatus:           to,
			Amount:             record.CommissionAmount,
			Reason:             reason,
			Operator:           meta.operator(),
			RequestID:          meta.RequestID,
		})
	})
	if err != nil {
		return nil, err
	}
	s.metrics.RecordTransition(to)
	logger.Infow("commission_status_changed",
		"commission_no", commissionNo,
		"from", from,
		"to", to,
		"operator", meta.operator(),
	)
	return s.GetRecord(id)
}

// idempotencyKey 同一佣金编号的同一次提交得到相同的 key
func idempotencyKey(commissionNo string, attempt int) string {
	seed := fmt.Sprintf("%s:%d", commissionNo, attempt)
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(seed)).String()
}

// truncateRunes 按字符截断，不拆分多字节字符
func truncateRunes(value string, limit int) string {
	if utf8.RuneCountInString(value) <= limit {
		return value
	}
	return string([]rune(value)[:limit])
}
