package worker

import (
	"context"
	"errors"
	"time"

	"github.com/partner-ledger/internal/cache"
	"github.com/partner-ledger/internal/commission"
	"github.com/partner-ledger/internal/logger"
	"github.com/partner-ledger/internal/queue"

	"github.com/google/uuid"
)

const (
	sweepLockPrefix      = "commission:sweep:"
	defaultSweepLockTTL  = time.Hour
	sweepTriggeredByCron = "cron"
)

// sweepTarget 定时巡检依赖的佣金服务能力
type sweepTarget interface {
	EnqueueBatch(month time.Time, triggeredBy string) error
	RequeueFailedBefore(ctx context.Context, before time.Time) (int, error)
}

// SweepResult 单次巡检结果
type SweepResult struct {
	Month    string
	Locked   bool
	Enqueued bool
	Requeued int
}

// Sweeper 月度批量计算与失败记录回队巡检
// 多实例部署时通过分布式锁保证同一月份只入队一次，锁到期自然释放
type Sweeper struct {
	target       sweepTarget
	lockTTL      time.Duration
	autoRequeue  bool
	requeueDelay time.Duration
}

// NewSweeper 创建巡检器
func NewSweeper(target sweepTarget, lockTTL time.Duration, autoRequeue bool, requeueDelay time.Duration) *Sweeper {
	if lockTTL <= 0 {
		lockTTL = defaultSweepLockTTL
	}
	return &Sweeper{
		target:       target,
		lockTTL:      lockTTL,
		autoRequeue:  autoRequeue,
		requeueDelay: requeueDelay,
	}
}

// RunOnce 执行一次巡检，now 决定目标月份（上一个自然月）
func (s *Sweeper) RunOnce(ctx context.Context, now time.Time) (SweepResult, error) {
	month := commission.PreviousMonth(now)
	result := SweepResult{Month: commission.MonthKey(month)}
	if s == nil || s.target == nil {
		return result, nil
	}

	owner := uuid.NewString()
	lockKey := sweepLockPrefix + result.Month
	locked, err := cache.AcquireLock(ctx, lockKey, owner, s.lockTTL)
	if err != nil {
		logger.Warnw("worker_sweep_lock_failed", "month", result.Month, "error", err)
		return result, err
	}
	result.Locked = locked
	if locked {
		if err := s.target.EnqueueBatch(month, sweepTriggeredByCron); err != nil {
			if errors.Is(err, queue.ErrQueueDisabled) {
				logger.Warnw("worker_sweep_skip_queue_disabled", "month", result.Month)
			} else {
				// 入队失败时释放锁，让其他实例或下一轮巡检重试
				if releaseErr := cache.ReleaseLock(ctx, lockKey, owner); releaseErr != nil {
					logger.Warnw("worker_sweep_unlock_failed", "month", result.Month, "error", releaseErr)
				}
				return result, err
			}
		} else {
			result.Enqueued = true
		}
	} else {
		logger.Debugw("worker_sweep_skip_locked", "month", result.Month)
	}

	if s.autoRequeue {
		count, err := s.target.RequeueFailedBefore(ctx, now.Add(-s.requeueDelay))
		if err != nil {
			logger.Warnw("worker_sweep_requeue_failed", "error", err)
			return result, err
		}
		result.Requeued = count
	}
	logger.Infow("worker_sweep_done",
		"month", result.Month,
		"locked", result.Locked,
		"enqueued", result.Enqueued,
		"requeued", result.Requeued,
	)
	return result, nil
}
