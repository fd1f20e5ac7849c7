package public

import (
	handlershared "github.com/partner-ledger/internal/http/handlers/shared"
	"github.com/partner-ledger/internal/http/response"
	"github.com/partner-ledger/internal/provider"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Handler 公开接口处理器入口
// 说明：该处理器用于合作伙伴只读门户、打款渠道回调与健康检查。
type Handler struct {
	*provider.Container
}

// New 创建公开接口处理器
func New(c *provider.Container) *Handler {
	return &Handler{Container: c}
}

func requestLog(c *gin.Context) *zap.SugaredLogger {
	return handlershared.RequestLog(c)
}

func respondError(c *gin.Context, code int, key string, err error) {
	handlershared.RespondError(c, code, key, err)
}

func respondServiceError(c *gin.Context, err error, fallbackKey string) {
	handlershared.RespondWithMappedError(c, err, handlershared.CommissionErrorRules, response.CodeInternal, fallbackKey)
}
