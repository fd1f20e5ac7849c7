package payout

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrProviderNotFound = errors.New("payout provider not found")
	ErrConfigInvalid    = errors.New("payout config invalid")
	ErrSubmitFailed     = errors.New("payout submit failed")
	ErrSubmitUncertain  = errors.New("payout submit outcome unknown")
	ErrSignatureInvalid = errors.New("payout webhook signature invalid")
	ErrEventIgnored     = errors.New("payout webhook event ignored")
)

// PayeeLink 合作伙伴与打款渠道的收款方关联
type PayeeLink struct {
	Provider string
	PayeeID  string
	Status   string
}

// SubmitRequest 打款提交请求
type SubmitRequest struct {
	CommissionNo   string
	PartnerID      uint
	PayeeID        string
	Amount         decimal.Decimal
	Currency       string
	IdempotencyKey string
}

// SubmitResult 打款提交结果
// Confirmed 为 true 表示渠道同步确认到账，无需等待回调
type SubmitResult struct {
	ProcessorRef string
	Confirmed    bool
}

// Event 渠道异步回调事件
type Event struct {
	Provider     string
	EventID      string
	ProcessorRef string
	CommissionNo string
	Outcome      string // confirmed / rejected
	Reason       string
	OccurredAt   time.Time
}

// Processor 打款渠道
// Submit 明确被拒时返回 ErrSubmitFailed，无法判断是否已受理时返回 ErrSubmitUncertain
type Processor interface {
	Name() string
	IsPayable(ctx context.Context, link PayeeLink) (bool, error)
	Submit(ctx context.Context, req SubmitRequest) (*SubmitResult, error)
}

// SubmissionFinder 可按佣金编号查询已有打款的渠道
// 未找到时返回 nil, nil
type SubmissionFinder interface {
	FindSubmission(ctx context.Context, commissionNo string) (*SubmitResult, error)
}

// WebhookVerifier 支持签名回调的打款渠道
type WebhookVerifier interface {
	ParseWebhook(payload []byte, header http.Header) (*Event, error)
}

// Registry 打款渠道注册表
type Registry struct {
	processors      map[string]Processor
	defaultProvider string
}

// NewRegistry 创建注册表，第一个渠道作为默认渠道
func NewRegistry(processors ...Processor) *Registry {
	r := &Registry{processors: make(map[string]Processor, len(processors))}
	for _, p := range processors {
		if p == nil {
			continue
		}
		name := normalizeProvider(p.Name())
		if r.defaultProvider == "" {
			r.defaultProvider = name
		}
		r.processors[name] = p
	}
	return r
}

// Get 按名称获取渠道，名称为空时返回默认渠道
func (r *Registry) Get(name string) (Processor, error) {
	if r == nil {
		return nil, ErrProviderNotFound
	}
	key := normalizeProvider(name)
	if key == "" {
		key = r.defaultProvider
	}
	p, ok := r.processors[key]
	if !ok {
		return nil, ErrProviderNotFound
	}
	return p, nil
}

// Default 默认渠道名称
func (r *Registry) Default() string {
	if r == nil {
		return ""
	}
	return r.defaultProvider
}

func normalizeProvider(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
