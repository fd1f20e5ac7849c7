package shared

import (
	"errors"

	"github.com/partner-ledger/internal/commission"
	"github.com/partner-ledger/internal/http/response"
	"github.com/partner-ledger/internal/payout"
	"github.com/partner-ledger/internal/queue"
	"github.com/partner-ledger/internal/service"

	"github.com/gin-gonic/gin"
)

// MappedError 定义业务错误到接口错误响应的映射关系。
type MappedError struct {
	Target error
	Code   int
	Key    string
}

// CommissionErrorRules 佣金与合作伙伴接口共用的错误映射
var CommissionErrorRules = []MappedError{
	{Target: service.ErrPartnerNotFound, Code: response.CodeNotFound, Key: "error.partner_not_found"},
	{Target: service.ErrPartnerCodeExists, Code: response.CodeConflict, Key: "error.partner_code_exists"},
	{Target: service.ErrPartnerInvalid, Code: response.CodeBadRequest, Key: "error.partner_invalid"},
	{Target: service.ErrPayoutLinkInvalid, Code: response.CodeBadRequest, Key: "error.payout_link_invalid"},
	{Target: service.ErrCommissionNotFound, Code: response.CodeNotFound, Key: "error.commission_not_found"},
	{Target: service.ErrRecordLocked, Code: response.CodeConflict, Key: "error.record_locked"},
	{Target: service.ErrStatusConflict, Code: response.CodeConflict, Key: "error.status_conflict"},
	{Target: service.ErrPayeeNotPayable, Code: response.CodeUnprocessable, Key: "error.payee_not_payable"},
	{Target: service.ErrFailureReasonRequired, Code: response.CodeBadRequest, Key: "error.failure_reason_required"},
	{Target: service.ErrPayoutSubmitFailed, Code: response.CodeUnprocessable, Key: "error.payout_submit_failed"},
	{Target: service.ErrPayoutOutcomeUnknown, Code: response.CodeUnavailable, Key: "error.payout_outcome_unknown"},
	{Target: service.ErrPayoutUnavailable, Code: response.CodeUnavailable, Key: "error.payout_unavailable"},
	{Target: service.ErrRevenueInputInvalid, Code: response.CodeBadRequest, Key: "error.revenue_input_invalid"},
	{Target: service.ErrExportFormatInvalid, Code: response.CodeBadRequest, Key: "error.export_format_invalid"},
	{Target: service.ErrExportTooLarge, Code: response.CodeUnprocessable, Key: "error.export_too_large"},
	{Target: commission.ErrInvalidTransition, Code: response.CodeConflict, Key: "error.invalid_transition"},
	{Target: commission.ErrStructureInvalid, Code: response.CodeBadRequest, Key: "error.structure_invalid"},
	{Target: commission.ErrMonthInvalid, Code: response.CodeBadRequest, Key: "error.month_invalid"},
	{Target: commission.ErrNegativeInput, Code: response.CodeBadRequest, Key: "error.negative_input"},
	{Target: commission.ErrMissingRevenueBasis, Code: response.CodeUnprocessable, Key: "error.missing_revenue_basis"},
	{Target: commission.ErrMissingConversionCount, Code: response.CodeUnprocessable, Key: "error.missing_conversion_count"},
	{Target: payout.ErrProviderNotFound, Code: response.CodeBadRequest, Key: "error.payout_unavailable"},
	{Target: payout.ErrSignatureInvalid, Code: response.CodeUnauthorized, Key: "error.signature_invalid"},
	{Target: queue.ErrQueueDisabled, Code: response.CodeUnavailable, Key: "error.queue_disabled"},
}

// RespondWithMappedError 按映射规则返回错误，未命中时使用兜底响应并记录原始错误。
func RespondWithMappedError(c *gin.Context, err error, rules []MappedError, fallbackCode int, fallbackKey string) {
	for _, rule := range rules {
		if errors.Is(err, rule.Target) {
			response.Fail(c, response.NewKeyedError(rule.Code, rule.Key, Message(rule.Key), nil))
			return
		}
	}
	RespondError(c, fallbackCode, fallbackKey, err)
}
