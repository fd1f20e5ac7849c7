package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/partner-ledger/internal/commission"
	"github.com/partner-ledger/internal/constants"
	"github.com/partner-ledger/internal/logger"
	"github.com/partner-ledger/internal/payout"
	"github.com/partner-ledger/internal/provider"
	"github.com/partner-ledger/internal/queue"
	"github.com/partner-ledger/internal/service"

	"github.com/hibiken/asynq"
)

// Consumer 异步任务消费者
type Consumer struct {
	*provider.Container
}

// NewConsumer 创建消费者
func NewConsumer(c *provider.Container) *Consumer {
	return &Consumer{
		Container: c,
	}
}

// Register 注册消费者
func (c *Consumer) Register(mux *asynq.ServeMux) {
	if c == nil || mux == nil {
		logger.Debugw("worker_register_skip_nil", "consumer_nil", c == nil, "mux_nil", mux == nil)
		return
	}
	mux.HandleFunc(queue.TaskCommissionBatch, c.handleCommissionBatch)
	mux.HandleFunc(queue.TaskCommissionRequeue, c.handleCommissionRequeue)
	mux.HandleFunc(queue.TaskCommissionPayoutEvent, c.handleCommissionPayoutEvent)
}

func (c *Consumer) handleCommissionBatch(ctx context.Context, task *asynq.Task) error {
	if c == nil || task == nil || c.Container == nil || c.CommissionService == nil {
		logger.Debugw("worker_commission_batch_skip_nil", "consumer_nil", c == nil, "task_nil", task == nil)
		return nil
	}
	var payload queue.CommissionBatchPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		logger.Warnw("worker_commission_batch_unmarshal_failed", "error", err)
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}
	month, err := commission.ParseMonth(payload.Month)
	if err != nil {
		logger.Warnw("worker_commission_batch_skip_invalid_month", "month", payload.Month, "error", err)
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}
	requestID, _ := asynq.GetTaskID(ctx)
	result, err := c.CommissionService.CalculateBatch(ctx, month, service.OperatorMeta{
		Operator:  constants.OperatorBatch,
		RequestID: requestID,
	})
	if err != nil {
		logger.Warnw("worker_commission_batch_failed", "month", payload.Month, "error", err)
		return err
	}
	if result.Cancelled {
		logger.Warnw("worker_commission_batch_cancelled",
			"month", result.Month,
			"unprocessed", len(result.Unprocessed),
		)
		return fmt.Errorf("commission batch %s cancelled with %d partners unprocessed", result.Month, len(result.Unprocessed))
	}
	for _, failure := range result.Failed {
		logger.Warnw("worker_commission_batch_partner_failed",
			"month", result.Month,
			"partner_id", failure.PartnerID,
			"code", failure.Code,
			"error", failure.Error,
		)
	}
	logger.Infow("worker_commission_batch_done",
		"month", result.Month,
		"triggered_by", payload.TriggeredBy,
		"succeeded", len(result.Succeeded),
		"skipped", len(result.Skipped),
		"failed", len(result.Failed),
	)
	return nil
}

func (c *Consumer) handleCommissionRequeue(ctx context.Context, task *asynq.Task) error {
	if c == nil || task == nil || c.Container == nil || c.CommissionService == nil {
		logger.Debugw("worker_commission_requeue_skip_nil", "consumer_nil", c == nil, "task_nil", task == nil)
		return nil
	}
	var payload queue.CommissionRequeuePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		logger.Warnw("worker_commission_requeue_unmarshal_failed", "error", err)
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}
	if payload.CommissionID == 0 {
		logger.Debugw("worker_commission_requeue_skip_invalid_payload", "commission_id", payload.CommissionID)
		return nil
	}
	record, err := c.CommissionService.RetryFailed(ctx, payload.CommissionID, payload.Reason, service.OperatorMeta{
		Operator: constants.OperatorSystem,
	})
	if err != nil {
		switch {
		case errors.Is(err, service.ErrCommissionNotFound):
			logger.Debugw("worker_commission_requeue_skip_not_found", "commission_id", payload.CommissionID)
			return nil
		case errors.Is(err, commission.ErrInvalidTransition), errors.Is(err, service.ErrStatusConflict):
			logger.Debugw("worker_commission_requeue_skip_not_failed", "commission_id", payload.CommissionID)
			return nil
		default:
			logger.Warnw("worker_commission_requeue_failed", "commission_id", payload.CommissionID, "error", err)
			return err
		}
	}
	logger.Infow("worker_commission_requeued", "commission_id", record.ID, "commission_no", record.CommissionNo)
	return nil
}

func (c *Consumer) handleCommissionPayoutEvent(ctx context.Context, task *asynq.Task) error {
	if c == nil || task == nil || c.Container == nil || c.CommissionService == nil {
		logger.Debugw("worker_commission_payout_event_skip_nil", "consumer_nil", c == nil, "task_nil", task == nil)
		return nil
	}
	var payload queue.CommissionPayoutEventPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		logger.Warnw("worker_commission_payout_event_unmarshal_failed", "error", err)
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}
	event := payoutEventFromPayload(payload)
	if event.ProcessorRef == "" && event.CommissionNo == "" {
		logger.Debugw("worker_commission_payout_event_skip_invalid_payload", "event_id", event.EventID)
		return nil
	}
	record, err := c.CommissionService.HandleProcessorEvent(ctx, event)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrCommissionNotFound):
			logger.Warnw("worker_commission_payout_event_skip_not_found",
				"provider", event.Provider,
				"event_id", event.EventID,
				"processor_ref", event.ProcessorRef,
			)
			return nil
		case errors.Is(err, service.ErrStatusConflict), errors.Is(err, payout.ErrEventIgnored):
			logger.Warnw("worker_commission_payout_event_skip_conflict", "event_id", event.EventID, "error", err)
			return nil
		default:
			logger.Warnw("worker_commission_payout_event_failed", "event_id", event.EventID, "error", err)
			return err
		}
	}
	logger.Infow("worker_commission_payout_event_applied",
		"event_id", event.EventID,
		"commission_no", record.CommissionNo,
		"status", record.PaymentStatus,
	)
	return nil
}

func payoutEventFromPayload(payload queue.CommissionPayoutEventPayload) payout.Event {
	event := payout.Event{
		Provider:     strings.TrimSpace(payload.Provider),
		EventID:      strings.TrimSpace(payload.EventID),
		ProcessorRef: strings.TrimSpace(payload.ProcessorRef),
		CommissionNo: strings.TrimSpace(payload.CommissionNo),
		Outcome:      strings.TrimSpace(payload.Outcome),
		Reason:       payload.Reason,
	}
	if payload.OccurredAt > 0 {
		event.OccurredAt = time.Unix(payload.OccurredAt, 0).UTC()
	}
	return event
}
