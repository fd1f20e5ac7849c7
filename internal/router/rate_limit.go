package router

import (
	"strconv"
	"strings"

	"github.com/partner-ledger/internal/config"
	handlershared "github.com/partner-ledger/internal/http/handlers/shared"
	"github.com/partner-ledger/internal/http/response"
	"github.com/partner-ledger/internal/logger"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

const defaultRateLimitMsgKey = "error.rate_limited"

// RateLimitKeyFunc 生成限流 key 的函数
type RateLimitKeyFunc func(*gin.Context) string

// RateLimitRule 固定窗口限流规则，BlockSeconds > 0 时超限后整段时间持续拒绝
type RateLimitRule struct {
	Prefix        string
	WindowSeconds int
	MaxRequests   int
	BlockSeconds  int
	MessageKey    string
}

func (r RateLimitRule) enabled() bool {
	return r.WindowSeconds > 0 && r.MaxRequests > 0
}

// 返回 {计数, 剩余秒数}，计数为 -1 表示处于封禁期
var fixedWindowScript = redis.NewScript(`
local blocked = redis.call("TTL", KEYS[2])
if blocked > 0 then
	return {-1, blocked}
end
local current = redis.call("INCR", KEYS[1])
if current == 1 then
	redis.call("EXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("TTL", KEYS[1])
if current > tonumber(ARGV[2]) and tonumber(ARGV[3]) > 0 then
	redis.call("SET", KEYS[2], "1", "EX", ARGV[3])
	ttl = tonumber(ARGV[3])
end
return {current, ttl}
`)

// RateLimitMiddleware Redis 频率限制中间件，Redis 异常时放行并记录告警
func RateLimitMiddleware(client *redis.Client, rule RateLimitRule, keyFunc RateLimitKeyFunc) gin.HandlerFunc {
	msgKey := strings.TrimSpace(rule.MessageKey)
	if msgKey == "" {
		msgKey = defaultRateLimitMsgKey
	}
	return func(c *gin.Context) {
		if client == nil || !rule.enabled() {
			c.Next()
			return
		}

		key := rateLimitKey(c, rule.Prefix, keyFunc)
		values, err := fixedWindowScript.Run(
			c.Request.Context(),
			client,
			[]string{key, key + ":block"},
			rule.WindowSeconds,
			rule.MaxRequests,
			rule.BlockSeconds,
		).Int64Slice()
		if err != nil || len(values) < 2 {
			logger.Warnw("rate_limit_unavailable", "key", key, "error", err)
			c.Next()
			return
		}

		count, ttl := values[0], values[1]
		if count >= 0 && count <= int64(rule.MaxRequests) {
			c.Next()
			return
		}
		wait := retryAfterSeconds(ttl, rule.WindowSeconds)
		c.Header("Retry-After", strconv.Itoa(wait))
		response.Error(c, response.CodeTooManyRequests, handlershared.Message(msgKey, wait))
		c.Abort()
	}
}

func rateLimitKey(c *gin.Context, prefix string, keyFunc RateLimitKeyFunc) string {
	key := ""
	if keyFunc != nil {
		key = strings.TrimSpace(keyFunc(c))
	}
	if key == "" {
		key = c.ClientIP()
	}
	if prefix == "" {
		return key
	}
	return prefix + ":" + key
}

func retryAfterSeconds(ttl int64, window int) int {
	if ttl >= 1 {
		return int(ttl)
	}
	return max(window, 1)
}

func ruleFromConfig(prefix string, cfg config.RateLimitConfig) RateLimitRule {
	return RateLimitRule{
		Prefix:        prefix,
		WindowSeconds: cfg.WindowSeconds,
		MaxRequests:   cfg.MaxRequests,
		BlockSeconds:  cfg.BlockSeconds,
	}
}

// KeyByIP 使用 IP 作为限流 key
func KeyByIP(c *gin.Context) string {
	return c.ClientIP()
}

// KeyByParamAndIP 使用路径参数 + IP 作为限流 key
func KeyByParamAndIP(param string) RateLimitKeyFunc {
	return func(c *gin.Context) string {
		value := strings.ToLower(strings.TrimSpace(c.Param(param)))
		if value == "" {
			return c.ClientIP()
		}
		return value + "|" + c.ClientIP()
	}
}
