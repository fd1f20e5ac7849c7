package cache

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/partner-ledger/internal/config"

	"github.com/redis/go-redis/v9"
)

const (
	// DefaultPrefix 未配置前缀时使用的 key 前缀
	DefaultPrefix = "pl"

	defaultHost         = "127.0.0.1"
	defaultPort         = 6379
	redisDialTimeout    = 3 * time.Second
	redisCommandTimeout = 2 * time.Second
)

var (
	redisClient *redis.Client
	redisPrefix = DefaultPrefix
)

// InitRedis 初始化 Redis 客户端，未启用时所有缓存操作退化为空操作
func InitRedis(cfg *config.RedisConfig) error {
	if cfg == nil || !cfg.Enabled {
		SetClient(nil, "")
		return nil
	}
	host := strings.TrimSpace(cfg.Host)
	if host == "" {
		host = defaultHost
	}
	port := cfg.Port
	if port <= 0 {
		port = defaultPort
	}
	SetClient(redis.NewClient(&redis.Options{
		Addr:         net.JoinHostPort(host, strconv.Itoa(port)),
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  redisDialTimeout,
		ReadTimeout:  redisCommandTimeout,
		WriteTimeout: redisCommandTimeout,
	}), cfg.Prefix)
	return nil
}

// SetClient 直接注入客户端（测试或复用外部连接），nil 表示禁用
func SetClient(client *redis.Client, prefix string) {
	redisClient = client
	redisPrefix = normalizePrefix(prefix)
}

// Prefix 返回当前 key 前缀
func Prefix() string {
	return redisPrefix
}

// Ping 检查 Redis 连通性
func Ping(ctx context.Context) error {
	if !Enabled() {
		return nil
	}
	return redisClient.Ping(ctx).Err()
}

// Enabled 判断缓存是否启用
func Enabled() bool {
	return redisClient != nil
}

// Client 获取 Redis 客户端，未启用时为 nil
func Client() *redis.Client {
	return redisClient
}

// GetJSON 读取 JSON 缓存，未命中返回 false
func GetJSON(ctx context.Context, key string, dest interface{}) (bool, error) {
	if !Enabled() {
		return false, nil
	}
	raw, err := redisClient.Get(ctx, buildKey(key)).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		return false, nil
	case err != nil:
		return false, err
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return false, err
	}
	return true, nil
}

// SetJSON 写入 JSON 缓存
func SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if !Enabled() {
		return nil
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return redisClient.Set(ctx, buildKey(key), payload, ttl).Err()
}

// Del 删除缓存
func Del(ctx context.Context, key string) error {
	if !Enabled() {
		return nil
	}
	return redisClient.Del(ctx, buildKey(key)).Err()
}

// AcquireLock 尝试获取分布式锁；Redis 未启用时视为单实例，直接成功
func AcquireLock(ctx context.Context, key, owner string, ttl time.Duration) (bool, error) {
	if !Enabled() {
		return true, nil
	}
	return redisClient.SetNX(ctx, buildKey(key), owner, ttl).Result()
}

// 仅持有者可释放锁
var releaseLockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

// ReleaseLock 释放分布式锁
func ReleaseLock(ctx context.Context, key, owner string) error {
	if !Enabled() {
		return nil
	}
	return releaseLockScript.Run(ctx, redisClient, []string{buildKey(key)}, owner).Err()
}

func normalizePrefix(prefix string) string {
	if trimmed := strings.Trim(strings.TrimSpace(prefix), ":"); trimmed != "" {
		return trimmed
	}
	return DefaultPrefix
}

func buildKey(key string) string {
	if trimmed := strings.TrimSpace(key); trimmed != "" {
		return redisPrefix + ":" + trimmed
	}
	return redisPrefix
}
