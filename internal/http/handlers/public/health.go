package public

import (
	"net/http"

	"github.com/partner-ledger/internal/cache"
	"github.com/partner-ledger/internal/models"

	"github.com/gin-gonic/gin"
)

// Healthz 健康检查：数据库必须可用，Redis 仅作提示
func (h *Handler) Healthz(c *gin.Context) {
	status := gin.H{"database": "ok"}
	code := http.StatusOK
	if err := models.Ping(c.Request.Context()); err != nil {
		requestLog(c).Warnw("healthz_database_unavailable", "error", err)
		status["database"] = "unavailable"
		code = http.StatusServiceUnavailable
	}
	if cache.Enabled() {
		status["redis"] = "ok"
		if err := cache.Ping(c.Request.Context()); err != nil {
			status["redis"] = "unavailable"
		}
	}
	c.JSON(code, status)
}
