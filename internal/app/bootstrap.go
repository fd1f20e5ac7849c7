package app

import (
	"errors"
	"fmt"

	"github.com/partner-ledger/internal/config"
	"github.com/partner-ledger/internal/logger"
	"github.com/partner-ledger/internal/models"
	"github.com/partner-ledger/internal/provider"
	"github.com/partner-ledger/internal/router"
	"github.com/partner-ledger/internal/worker"
)

// InitStorage 初始化数据库连接并迁移台账表
func InitStorage(cfg *config.Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	if err := models.InitDB(cfg.Database.Driver, cfg.Database.DSN, models.DBPoolConfig{
		MaxOpenConns:           cfg.Database.Pool.MaxOpenConns,
		MaxIdleConns:           cfg.Database.Pool.MaxIdleConns,
		ConnMaxLifetimeSeconds: cfg.Database.Pool.ConnMaxLifetimeSeconds,
		ConnMaxIdleTimeSeconds: cfg.Database.Pool.ConnMaxIdleTimeSeconds,
	}); err != nil {
		return fmt.Errorf("init database: %w", err)
	}
	if err := models.AutoMigrate(); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}
	return nil
}

// BuildRunner 按启动模式组装 HTTP 与 worker 服务
func BuildRunner(cfg *config.Config, mode string) (*Runner, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	parsed, err := ParseMode(mode)
	if err != nil {
		return nil, err
	}
	opts := Options{Config: cfg, Mode: parsed}
	container := provider.NewContainer(cfg)

	var services []Service
	if opts.runsHTTP() {
		services = append(services, NewHTTPService(listenAddr(cfg), router.SetupRouter(cfg, container)))
	}
	if opts.runsWorker() {
		// all 模式下队列未启用时仅运行 HTTP，批量计算走同步路径
		if !cfg.Queue.Enabled && parsed == ModeAll {
			logger.Warnw("app_worker_skipped", "reason", "queue disabled")
		} else {
			workerService, err := worker.NewService(&cfg.Queue, worker.NewConsumer(container))
			if err != nil {
				return nil, fmt.Errorf("init worker: %w", err)
			}
			services = append(services, workerService)
		}
	}
	return NewRunner(services...), nil
}

// Run 应用启动入口
func Run(opts Options) error {
	if opts.Config == nil {
		return errors.New("config is nil")
	}
	mode, err := ParseMode(opts.Mode)
	if err != nil {
		return err
	}
	opts.Mode = mode
	opts = normalizeOptions(opts)

	runner, err := BuildRunner(opts.Config, opts.Mode)
	if err != nil {
		return err
	}
	opts.Logger.Infow("app_start",
		"addr", listenAddr(opts.Config),
		"mode", opts.Mode,
		"payout_provider", opts.Config.Payout.Provider,
		"queue_enabled", opts.Config.Queue.Enabled,
	)
	return RunWithOptions(runner, opts)
}
