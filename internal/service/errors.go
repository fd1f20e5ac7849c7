package service

import (
	"errors"

	"github.com/partner-ledger/internal/commission"

	"gorm.io/gorm"
)

var (
	ErrNotFound              = errors.New("not found")
	ErrPartnerNotFound       = errors.New("partner not found")
	ErrPartnerInvalid        = errors.New("partner invalid")
	ErrPartnerCodeExists     = errors.New("partner code already exists")
	ErrPayoutLinkInvalid     = errors.New("payout link invalid")
	ErrCommissionNotFound    = errors.New("commission record not found")
	ErrRecordLocked          = errors.New("commission record locked")
	ErrPayeeNotPayable       = errors.New("payee not payable")
	ErrDuplicateKeyRace      = errors.New("commission ledger duplicate key race")
	ErrStatusConflict        = errors.New("commission status changed concurrently")
	ErrFailureReasonRequired = errors.New("failure reason required")
	ErrPayoutSubmitFailed    = errors.New("payout submit failed")
	ErrPayoutOutcomeUnknown  = errors.New("payout submit outcome unknown")
	ErrPayoutUnavailable     = errors.New("payout provider unavailable")
	ErrRevenueInputInvalid   = errors.New("revenue input invalid")
	ErrExportFormatInvalid   = errors.New("export format invalid")
	ErrExportTooLarge        = errors.New("export too large")
)

// ErrorCode 将错误映射为批量结果中的机器可读编码
func ErrorCode(err error) string {
	if err == nil {
		return ""
	}
	if code := commission.ErrorCode(err); code != "" {
		return code
	}
	switch {
	case errors.Is(err, ErrPartnerNotFound):
		return "partner_not_found"
	case errors.Is(err, ErrRecordLocked):
		return "record_locked"
	case errors.Is(err, ErrPayeeNotPayable):
		return "payee_not_payable"
	case errors.Is(err, ErrDuplicateKeyRace):
		return "duplicate_key_race"
	case errors.Is(err, ErrStatusConflict):
		return "status_conflict"
	case errors.Is(err, ErrPayoutOutcomeUnknown):
		return "payout_outcome_unknown"
	default:
		return "internal"
	}
}

// isUniqueViolation 依赖 gorm.Config.TranslateError 将驱动错误转换为 ErrDuplicatedKey
func isUniqueViolation(err error) bool {
	return errors.Is(err, gorm.ErrDuplicatedKey)
}
