package commission

import (
	"strings"

	"github.com/shopspring/decimal"
)

// FormatMoney 以 $1,234.50 形式输出金额，超过两位小数时保留原始精度
func FormatMoney(d decimal.Decimal) string {
	return "$" + groupThousands(plainString(d))
}

// FormatRate 输出百分比，例如 3.5%
func FormatRate(rate decimal.Decimal) string {
	return rate.String() + "%"
}

func plainString(d decimal.Decimal) string {
	if d.Exponent() < -2 && !d.Equal(d.Round(2)) {
		return d.String()
	}
	return d.StringFixed(2)
}

func groupThousands(s string) string {
	sign := ""
	if strings.HasPrefix(s, "-") {
		sign = "-"
		s = s[1:]
	}
	intPart, fracPart := s, ""
	if idx := strings.IndexByte(s, '.'); idx >= 0 {
		intPart, fracPart = s[:idx], s[idx:]
	}
	if len(intPart) <= 3 {
		return sign + intPart + fracPart
	}
	var b strings.Builder
	head := len(intPart) % 3
	if head > 0 {
		b.WriteString(intPart[:head])
	}
	for i := head; i < len(intPart); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(intPart[i : i+3])
	}
	return sign + b.String() + fracPart
}
