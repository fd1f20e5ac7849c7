package commission

import (
	"fmt"
	"strings"
	"time"
)

// MonthLayout 佣金月份键格式
const MonthLayout = "2006-01"

// NormalizeMonth 归一化到当月 1 日 00:00 UTC
func NormalizeMonth(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// ParseMonth 解析 "2006-01" 或 "2006-01-02" 格式的月份
func ParseMonth(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, fmt.Errorf("%w: empty", ErrMonthInvalid)
	}
	for _, layout := range []string{MonthLayout, "2006-01-02"} {
		if t, err := time.ParseInLocation(layout, raw, time.UTC); err == nil {
			return NormalizeMonth(t), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrMonthInvalid, raw)
}

// MonthKey 返回月份键，例如 2025-03
func MonthKey(t time.Time) string {
	return NormalizeMonth(t).Format(MonthLayout)
}

// PreviousMonth 返回上一个自然月
func PreviousMonth(now time.Time) time.Time {
	return NormalizeMonth(now).AddDate(0, -1, 0)
}
