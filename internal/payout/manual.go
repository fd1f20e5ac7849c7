package payout

import (
	"context"
	"strings"

	"github.com/partner-ledger/internal/constants"
)

// ManualProcessor 线下人工打款，到账由管理员确认
type ManualProcessor struct{}

// NewManualProcessor 创建人工打款渠道
func NewManualProcessor() *ManualProcessor {
	return &ManualProcessor{}
}

// Name 渠道名称
func (p *ManualProcessor) Name() string {
	return constants.PayoutProviderManual
}

// IsPayable 已关联且状态为 active 即可打款
func (p *ManualProcessor) IsPayable(_ context.Context, link PayeeLink) (bool, error) {
	return strings.TrimSpace(link.PayeeID) != "" && link.Status == constants.PayeeStatusActive, nil
}

// Submit 生成人工打款流水号
func (p *ManualProcessor) Submit(_ context.Context, req SubmitRequest) (*SubmitResult, error) {
	if strings.TrimSpace(req.CommissionNo) == "" {
		return nil, ErrSubmitFailed
	}
	return &SubmitResult{ProcessorRef: "manual-" + req.CommissionNo}, nil
}
