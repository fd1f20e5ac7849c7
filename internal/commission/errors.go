package commission

import "errors"

var (
	ErrMissingRevenueBasis    = errors.New("revenue basis missing")
	ErrMissingConversionCount = errors.New("conversion count missing")
	ErrNegativeInput          = errors.New("negative commission input")
	ErrStructureInvalid       = errors.New("commission structure invalid")
	ErrMonthInvalid           = errors.New("commission month invalid")
	ErrInvalidTransition      = errors.New("commission status transition invalid")
)

// ErrorCode 将计算类错误映射为稳定的机器可读编码
func ErrorCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrMissingRevenueBasis):
		return "missing_revenue_basis"
	case errors.Is(err, ErrMissingConversionCount):
		return "missing_conversion_count"
	case errors.Is(err, ErrNegativeInput):
		return "negative_input"
	case errors.Is(err, ErrStructureInvalid):
		return "structure_invalid"
	case errors.Is(err, ErrMonthInvalid):
		return "month_invalid"
	case errors.Is(err, ErrInvalidTransition):
		return "invalid_transition"
	default:
		return ""
	}
}
