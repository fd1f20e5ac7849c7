package queue

import (
	"errors"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/partner-ledger/internal/config"
	"github.com/partner-ledger/internal/constants"

	"github.com/hibiken/asynq"
)

const (
	// DefaultQueue 默认队列名称
	DefaultQueue  = constants.QueueDefault
	criticalQueue = constants.QueueCritical

	defaultRedisHost   = "127.0.0.1"
	defaultRedisPort   = 6379
	defaultConcurrency = 10
	batchMaxRetry      = 3
	payoutEventRetry   = 10
)

// ErrQueueDisabled 队列未启用
var ErrQueueDisabled = errors.New("queue disabled")

// Client 队列客户端封装，未启用时所有入队返回 ErrQueueDisabled
type Client struct {
	client *asynq.Client
}

// NewClient 创建队列客户端
func NewClient(cfg *config.QueueConfig) (*Client, error) {
	if cfg == nil || !cfg.Enabled {
		return &Client{}, nil
	}
	return &Client{client: asynq.NewClient(buildRedisOpt(cfg))}, nil
}

// Enabled 判断是否启用
func (c *Client) Enabled() bool {
	return c != nil && c.client != nil
}

// Close 关闭客户端
func (c *Client) Close() error {
	if !c.Enabled() {
		return nil
	}
	return c.client.Close()
}

// enqueue 入队，tolerated 中的错误视为已入队（去重命中）
func (c *Client) enqueue(task *asynq.Task, options []asynq.Option, tolerated ...error) error {
	if !c.Enabled() {
		return ErrQueueDisabled
	}
	_, err := c.client.Enqueue(task, options...)
	for _, target := range tolerated {
		if errors.Is(err, target) {
			return nil
		}
	}
	return err
}

// EnqueueCommissionBatch 推送月度批量计算任务，同一月份在 uniqueTTL 内只入队一次
func (c *Client) EnqueueCommissionBatch(payload CommissionBatchPayload, uniqueTTL time.Duration) error {
	if !c.Enabled() {
		return ErrQueueDisabled
	}
	task, err := NewCommissionBatchTask(payload)
	if err != nil {
		return err
	}
	options := []asynq.Option{asynq.Queue(DefaultQueue), asynq.MaxRetry(batchMaxRetry)}
	if uniqueTTL > 0 {
		options = append(options, asynq.Unique(uniqueTTL))
	}
	return c.enqueue(task, options, asynq.ErrDuplicateTask)
}

// EnqueueCommissionRequeue 推送失败记录延时回队任务
func (c *Client) EnqueueCommissionRequeue(payload CommissionRequeuePayload, delay time.Duration) error {
	if !c.Enabled() {
		return ErrQueueDisabled
	}
	task, err := NewCommissionRequeueTask(payload)
	if err != nil {
		return err
	}
	return c.enqueue(task, []asynq.Option{asynq.Queue(DefaultQueue), asynq.ProcessIn(max(delay, 0))})
}

// EnqueueCommissionPayoutEvent 推送渠道回调处理任务，按渠道事件 ID 去重
func (c *Client) EnqueueCommissionPayoutEvent(payload CommissionPayoutEventPayload) error {
	if !c.Enabled() {
		return ErrQueueDisabled
	}
	task, err := NewCommissionPayoutEventTask(payload)
	if err != nil {
		return err
	}
	options := []asynq.Option{asynq.Queue(criticalQueue), asynq.MaxRetry(payoutEventRetry)}
	if id := strings.TrimSpace(payload.EventID); id != "" {
		options = append(options, asynq.TaskID(payoutEventTaskID(payload.Provider, id)))
	}
	return c.enqueue(task, options, asynq.ErrTaskIDConflict)
}

func payoutEventTaskID(provider, eventID string) string {
	return "payout_event:" + provider + ":" + eventID
}

// BuildServerConfig 生成 worker 端的 Redis 连接与队列权重
func BuildServerConfig(cfg *config.QueueConfig) (asynq.RedisClientOpt, asynq.Config) {
	serverCfg := asynq.Config{
		Concurrency: defaultConcurrency,
		// 回调事件直接决定记录终态，权重高于批量计算
		Queues: map[string]int{criticalQueue: 6, DefaultQueue: 3},
	}
	if cfg != nil {
		if cfg.Concurrency > 0 {
			serverCfg.Concurrency = cfg.Concurrency
		}
		if len(cfg.Queues) > 0 {
			serverCfg.Queues = cfg.Queues
		}
	}
	return buildRedisOpt(cfg), serverCfg
}

func buildRedisOpt(cfg *config.QueueConfig) asynq.RedisClientOpt {
	host, port := defaultRedisHost, defaultRedisPort
	opt := asynq.RedisClientOpt{}
	if cfg != nil {
		if trimmed := strings.TrimSpace(cfg.Host); trimmed != "" {
			host = trimmed
		}
		if cfg.Port > 0 {
			port = cfg.Port
		}
		opt.Password = cfg.Password
		opt.DB = cfg.DB
	}
	opt.Addr = net.JoinHostPort(host, strconv.Itoa(port))
	return opt
}
