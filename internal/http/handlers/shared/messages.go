package shared

import "fmt"

// messages 错误提示文案
var messages = map[string]string{
	"error.bad_request":              "invalid request",
	"error.unauthorized":             "unauthorized",
	"error.not_found":                "resource not found",
	"error.internal":                 "internal error",
	"error.rate_limited":             "too many requests, retry in %d seconds",
	"error.rate_limit_unavailable":   "rate limiter unavailable",
	"error.partner_not_found":        "partner not found",
	"error.partner_invalid":          "partner definition invalid",
	"error.partner_code_exists":      "partner code already exists",
	"error.payout_link_invalid":      "payout link invalid",
	"error.structure_invalid":        "commission structure invalid",
	"error.month_invalid":            "commission month must be formatted as YYYY-MM",
	"error.negative_input":           "revenue basis and conversion count must not be negative",
	"error.revenue_input_invalid":    "revenue input invalid",
	"error.missing_revenue_basis":    "revenue basis missing for this month",
	"error.missing_conversion_count": "conversion count missing for this month",
	"error.commission_not_found":     "commission record not found",
	"error.record_locked":            "commission record is no longer editable",
	"error.invalid_transition":       "payment status transition not allowed",
	"error.status_conflict":          "commission status changed concurrently, reload and retry",
	"error.payee_not_payable":        "payee account is not payable",
	"error.failure_reason_required":  "failure reason required",
	"error.payout_submit_failed":     "payout submission failed",
	"error.payout_outcome_unknown":   "payout submitted but outcome unknown, awaiting processor confirmation",
	"error.payout_unavailable":       "payout provider unavailable",
	"error.signature_invalid":        "webhook signature invalid",
	"error.queue_disabled":           "async queue disabled",
	"error.export_format_invalid":    "export format must be csv or xlsx",
	"error.export_too_large":         "export exceeds row limit, narrow the filter",
	"error.fetch_failed":             "query failed",
	"error.save_failed":              "save failed",
}

// Message 返回文案，未登记的 key 原样返回
func Message(key string, args ...interface{}) string {
	msg, ok := messages[key]
	if !ok {
		return key
	}
	if len(args) > 0 {
		return fmt.Sprintf(msg, args...)
	}
	return msg
}
