package router

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	requestIDKey    = "request_id"
	requestIDHeader = "X-Request-ID"
	operatorHeader  = "X-Operator"
	maxRequestIDLen = 64
)

// RequestIDMiddleware 请求 ID 中间件
// 请求 ID 会写入台账流水（varchar(64)），外部传入的值不合规时重新生成
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := strings.TrimSpace(c.GetHeader(requestIDHeader))
		if !validRequestID(requestID) {
			requestID = uuid.NewString()
		}
		c.Set(requestIDKey, requestID)
		c.Writer.Header().Set(requestIDHeader, requestID)
		c.Next()
	}
}

func validRequestID(id string) bool {
	if id == "" || len(id) > maxRequestIDLen {
		return false
	}
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '-' || r == '_' || r == '.' || r == ':':
		default:
			return false
		}
	}
	return true
}

// LoggerMiddleware 结构化请求日志中间件
// 记录路由模板而非原始路径，探活与指标抓取降为 debug
func LoggerMiddleware(logger *zap.Logger, quietPaths ...string) gin.HandlerFunc {
	if logger == nil {
		logger = zap.L()
	}
	sugar := logger.Sugar()
	quiet := make(map[string]struct{}, len(quietPaths))
	for _, p := range quietPaths {
		if p = strings.TrimSpace(p); p != "" {
			quiet[p] = struct{}{}
		}
	}
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		kv := []interface{}{
			"request_id", getRequestID(c),
			"method", c.Request.Method,
			"route", route,
			"status", c.Writer.Status(),
			"latency_ms", time.Since(start).Milliseconds(),
			"client_ip", c.ClientIP(),
		}
		if operator := strings.TrimSpace(c.GetHeader(operatorHeader)); operator != "" {
			kv = append(kv, "operator", operator)
		}
		log := sugar.With(kv...)
		if len(c.Errors) > 0 {
			log.Errorw("http_request", "errors", c.Errors.String())
			return
		}
		if _, ok := quiet[c.Request.URL.Path]; ok {
			log.Debugw("http_request")
			return
		}
		log.Infow("http_request")
	}
}

func getRequestID(c *gin.Context) string {
	value, ok := c.Get(requestIDKey)
	if !ok {
		return ""
	}
	if requestID, ok := value.(string); ok {
		return requestID
	}
	return ""
}
