package payout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/partner-ledger/internal/constants"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"
)

const (
	stripeEventTransferCreated  = "transfer.created"
	stripeEventTransferReversed = "transfer.reversed"
	stripeMetadataCommissionNo  = "commission_no"
	stripeMetadataPartnerID     = "partner_id"
)

var zeroDecimalCurrencies = map[string]struct{}{
	"BIF": {},
	"CLP": {},
	"DJF": {},
	"GNF": {},
	"JPY": {},
	"KMF": {},
	"KRW": {},
	"MGA": {},
	"PYG": {},
	"RWF": {},
	"UGX": {},
	"VND": {},
	"VUV": {},
	"XAF": {},
	"XOF": {},
	"XPF": {},
}

// StripeConfig Stripe Connect 打款配置
type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
	APIBaseURL    string
	Currency      string
	Logger        stripe.LeveledLoggerInterface
}

// StripeProcessor 通过 Stripe Connect Transfer 向合作伙伴的 Connect 账户打款
type StripeProcessor struct {
	api           *client.API
	webhookSecret string
	currency      string
}

// NewStripeProcessor 创建 Stripe 打款渠道
func NewStripeProcessor(cfg StripeConfig) (*StripeProcessor, error) {
	if strings.TrimSpace(cfg.SecretKey) == "" {
		return nil, fmt.Errorf("%w: stripe secret key is required", ErrConfigInvalid)
	}
	backendConfig := &stripe.BackendConfig{
		MaxNetworkRetries: stripe.Int64(2),
	}
	if base := strings.TrimSpace(cfg.APIBaseURL); base != "" {
		backendConfig.URL = stripe.String(strings.TrimRight(base, "/"))
	}
	if cfg.Logger != nil {
		backendConfig.LeveledLogger = cfg.Logger
	}
	backend := stripe.GetBackendWithConfig(stripe.APIBackend, backendConfig)
	api := client.New(strings.TrimSpace(cfg.SecretKey), &stripe.Backends{
		API:     backend,
		Connect: backend,
		Uploads: backend,
	})
	currency := strings.ToLower(strings.TrimSpace(cfg.Currency))
	if currency == "" {
		currency = "usd"
	}
	return &StripeProcessor{
		api:           api,
		webhookSecret: strings.TrimSpace(cfg.WebhookSecret),
		currency:      currency,
	}, nil
}

// Name 渠道名称
func (p *StripeProcessor) Name() string {
	return constants.PayoutProviderStripe
}

// IsPayable 检查 Connect 账户是否已开通打款
func (p *StripeProcessor) IsPayable(ctx context.Context, link PayeeLink) (bool, error) {
	accountID := strings.TrimSpace(link.PayeeID)
	if accountID == "" || link.Status != constants.PayeeStatusActive {
		return false, nil
	}
	params := &stripe.AccountParams{}
	params.Context = ctx
	account, err := p.api.Accounts.GetByID(accountID, params)
	if err != nil {
		return false, fmt.Errorf("stripe get account: %w", err)
	}
	return account.PayoutsEnabled, nil
}

// Submit 创建 Transfer，金额为 0 时直接视为已确认
func (p *StripeProcessor) Submit(ctx context.Context, req SubmitRequest) (*SubmitResult, error) {
	if req.Amount.IsZero() {
		return &SubmitResult{Confirmed: true}, nil
	}
	currency := strings.ToLower(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = p.currency
	}
	amount, err := toMinorUnits(req.Amount, currency)
	if err != nil {
		return nil, err
	}
	params := &stripe.TransferParams{
		Amount:        stripe.Int64(amount),
		Currency:      stripe.String(currency),
		Destination:   stripe.String(strings.TrimSpace(req.PayeeID)),
		TransferGroup: stripe.String(req.CommissionNo),
		Description:   stripe.String("Partner commission " + req.CommissionNo),
	}
	params.Context = ctx
	params.AddMetadata(stripeMetadataCommissionNo, req.CommissionNo)
	params.AddMetadata(stripeMetadataPartnerID, fmt.Sprintf("%d", req.PartnerID))
	if key := strings.TrimSpace(req.IdempotencyKey); key != "" {
		params.SetIdempotencyKey(key)
	}
	transfer, err := p.api.Transfers.New(params)
	if err != nil {
		if isStripeRejection(err) {
			return nil, fmt.Errorf("%w: %v", ErrSubmitFailed, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrSubmitUncertain, err)
	}
	return &SubmitResult{ProcessorRef: transfer.ID}, nil
}

// FindSubmission 按 transfer_group 查找未被冲正的 Transfer
// Transfer 创建即到账，找到时按已确认返回
func (p *StripeProcessor) FindSubmission(ctx context.Context, commissionNo string) (*SubmitResult, error) {
	commissionNo = strings.TrimSpace(commissionNo)
	if commissionNo == "" {
		return nil, nil
	}
	params := &stripe.TransferListParams{TransferGroup: stripe.String(commissionNo)}
	params.Context = ctx
	iter := p.api.Transfers.List(params)
	for iter.Next() {
		transfer := iter.Transfer()
		if transfer == nil || transfer.Reversed {
			continue
		}
		return &SubmitResult{ProcessorRef: transfer.ID, Confirmed: true}, nil
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("stripe list transfers: %w", err)
	}
	return nil, nil
}

// ParseWebhook 校验签名并解析 Transfer 事件
func (p *StripeProcessor) ParseWebhook(payload []byte, header http.Header) (*Event, error) {
	if p.webhookSecret == "" {
		return nil, fmt.Errorf("%w: stripe webhook secret is required", ErrConfigInvalid)
	}
	event, err := webhook.ConstructEventWithOptions(payload, header.Get("Stripe-Signature"), p.webhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSignatureInvalid, err)
	}

	var outcome string
	switch string(event.Type) {
	case stripeEventTransferCreated:
		outcome = constants.PayoutEventConfirmed
	case stripeEventTransferReversed:
		outcome = constants.PayoutEventRejected
	default:
		return nil, fmt.Errorf("%w: %s", ErrEventIgnored, event.Type)
	}
	if event.Data == nil {
		return nil, fmt.Errorf("%w: empty event data", ErrEventIgnored)
	}

	var transfer stripe.Transfer
	if err := json.Unmarshal(event.Data.Raw, &transfer); err != nil {
		return nil, fmt.Errorf("%w: decode transfer: %v", ErrEventIgnored, err)
	}
	result := &Event{
		Provider:     p.Name(),
		EventID:      event.ID,
		ProcessorRef: transfer.ID,
		CommissionNo: transfer.Metadata[stripeMetadataCommissionNo],
		Outcome:      outcome,
		OccurredAt:   time.Unix(event.Created, 0).UTC(),
	}
	if outcome == constants.PayoutEventRejected {
		result.Reason = "stripe transfer reversed"
	}
	return result, nil
}

// isStripeRejection 4xx 为明确拒绝；409 幂等冲突与 429 限流不确定是否受理
func isStripeRejection(err error) bool {
	var stripeErr *stripe.Error
	if !errors.As(err, &stripeErr) {
		return false
	}
	code := stripeErr.HTTPStatusCode
	if code == http.StatusConflict || code == http.StatusTooManyRequests {
		return false
	}
	return code >= http.StatusBadRequest && code < http.StatusInternalServerError
}

func toMinorUnits(amount decimal.Decimal, currency string) (int64, error) {
	if amount.IsNegative() {
		return 0, fmt.Errorf("%w: negative amount", ErrSubmitFailed)
	}
	if _, ok := zeroDecimalCurrencies[strings.ToUpper(currency)]; ok {
		return amount.Round(0).IntPart(), nil
	}
	return amount.Mul(decimal.NewFromInt(100)).Round(0).IntPart(), nil
}
