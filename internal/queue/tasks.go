package queue

import (
	"encoding/json"

	"github.com/partner-ledger/internal/constants"

	"github.com/hibiken/asynq"
)

const (
	// TaskCommissionBatch 月度批量计算任务
	TaskCommissionBatch = constants.TaskCommissionBatch
	// TaskCommissionRequeue 失败记录回到待处理任务
	TaskCommissionRequeue = constants.TaskCommissionRequeue
	// TaskCommissionPayoutEvent 打款渠道回调处理任务
	TaskCommissionPayoutEvent = constants.TaskCommissionPayoutEvent
)

// CommissionBatchPayload 批量计算任务载荷
type CommissionBatchPayload struct {
	Month       string `json:"month"` // 2006-01
	TriggeredBy string `json:"triggered_by"`
}

// CommissionRequeuePayload 失败记录回队任务载荷
type CommissionRequeuePayload struct {
	CommissionID uint   `json:"commission_id"`
	Reason       string `json:"reason"`
}

// CommissionPayoutEventPayload 渠道回调任务载荷
type CommissionPayoutEventPayload struct {
	Provider     string `json:"provider"`
	EventID      string `json:"event_id"`
	ProcessorRef string `json:"processor_ref"`
	CommissionNo string `json:"commission_no"`
	Outcome      string `json:"outcome"`
	Reason       string `json:"reason"`
	OccurredAt   int64  `json:"occurred_at"`
}

// NewCommissionBatchTask 创建批量计算任务
func NewCommissionBatchTask(payload CommissionBatchPayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskCommissionBatch, body), nil
}

// NewCommissionRequeueTask 创建失败记录回队任务
func NewCommissionRequeueTask(payload CommissionRequeuePayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskCommissionRequeue, body), nil
}

// NewCommissionPayoutEventTask 创建渠道回调任务
func NewCommissionPayoutEventTask(payload CommissionPayoutEventPayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskCommissionPayoutEvent, body), nil
}
