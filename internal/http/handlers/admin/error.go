package admin

import (
	"strings"
	"time"

	handlershared "github.com/partner-ledger/internal/http/handlers/shared"
	"github.com/partner-ledger/internal/http/response"
	"github.com/partner-ledger/internal/service"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	operatorHeader     = "X-Operator"
	operatorNameMaxLen = 26
)

func requestLog(c *gin.Context) *zap.SugaredLogger {
	return handlershared.RequestLog(c)
}

func respondError(c *gin.Context, code int, key string, err error) {
	handlershared.RespondError(c, code, key, err)
}

func respondServiceError(c *gin.Context, err error, fallbackKey string) {
	handlershared.RespondWithMappedError(c, err, handlershared.CommissionErrorRules, response.CodeInternal, fallbackKey)
}

func parseIDParam(c *gin.Context) (uint, bool) {
	return handlershared.ParseIDParam(c, "id")
}

func parseMonthRange(c *gin.Context) (*time.Time, *time.Time, bool) {
	return handlershared.ParseMonthRange(c)
}

func pageParams(c *gin.Context) (int, int) {
	return handlershared.PageParams(c)
}

// operatorMeta 记录操作来源，X-Operator 仅作为审计标注
func operatorMeta(c *gin.Context) service.OperatorMeta {
	operator := "admin"
	if name := strings.TrimSpace(c.GetHeader(operatorHeader)); name != "" {
		if len(name) > operatorNameMaxLen {
			name = name[:operatorNameMaxLen]
		}
		operator = "admin:" + name
	}
	requestID := ""
	if value, ok := c.Get("request_id"); ok {
		requestID, _ = value.(string)
	}
	return service.OperatorMeta{Operator: operator, RequestID: requestID}
}
