package shared

import (
	"strconv"
	"strings"
	"time"

	"github.com/partner-ledger/internal/commission"
	"github.com/partner-ledger/internal/http/response"

	"github.com/gin-gonic/gin"
)

// ParseIDParam 读取路径中的正整数 ID 并统一处理错误响应。
func ParseIDParam(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(strings.TrimSpace(c.Param(name)), 10, 64)
	if err != nil || id == 0 {
		RespondError(c, response.CodeBadRequest, "error.bad_request", nil)
		return 0, false
	}
	return uint(id), true
}

// QueryUint 读取可选的正整数查询参数，非法值视为未提供。
func QueryUint(c *gin.Context, name string) uint {
	value, err := strconv.ParseUint(strings.TrimSpace(c.Query(name)), 10, 64)
	if err != nil {
		return 0
	}
	return uint(value)
}

// QueryBool 读取可选的布尔查询参数。
func QueryBool(c *gin.Context, name string) *bool {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return nil
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return nil
	}
	return &value
}

// ParseMonthRange 读取 month_from / month_to（YYYY-MM），格式错误时直接响应。
func ParseMonthRange(c *gin.Context) (*time.Time, *time.Time, bool) {
	parse := func(name string) (*time.Time, bool) {
		raw := strings.TrimSpace(c.Query(name))
		if raw == "" {
			return nil, true
		}
		month, err := commission.ParseMonth(raw)
		if err != nil {
			RespondError(c, response.CodeBadRequest, "error.month_invalid", nil)
			return nil, false
		}
		return &month, true
	}
	from, ok := parse("month_from")
	if !ok {
		return nil, nil, false
	}
	to, ok := parse("month_to")
	if !ok {
		return nil, nil, false
	}
	return from, to, true
}
