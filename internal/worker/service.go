package worker

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/partner-ledger/internal/config"
	"github.com/partner-ledger/internal/logger"
	"github.com/partner-ledger/internal/queue"

	"github.com/hibiken/asynq"
	"github.com/robfig/cron/v3"
)

const (
	defaultSweepCron = "0 3 1 * *"
	sweepRunTimeout  = 10 * time.Minute
)

// Service 异步队列服务
type Service struct {
	name     string
	server   *asynq.Server
	mux      *asynq.ServeMux
	consumer *Consumer
	cron     *cron.Cron
	sweeper  *Sweeper
}

// NewService 创建异步队列服务
func NewService(cfg *config.QueueConfig, consumer *Consumer) (*Service, error) {
	if cfg == nil || !cfg.Enabled {
		return nil, errors.New("queue disabled")
	}
	if consumer == nil {
		return nil, errors.New("consumer is nil")
	}
	opt, serverCfg := queue.BuildServerConfig(cfg)
	server := asynq.NewServer(opt, serverCfg)
	mux := asynq.NewServeMux()
	consumer.Register(mux)
	svc := &Service{
		name:     "worker",
		server:   server,
		mux:      mux,
		consumer: consumer,
	}
	if err := svc.setupSweep(); err != nil {
		return nil, err
	}
	return svc, nil
}

// setupSweep 按配置注册月度巡检任务
func (s *Service) setupSweep() error {
	if s.consumer.Container == nil || s.consumer.Config == nil || s.consumer.CommissionService == nil {
		return nil
	}
	commissionCfg := s.consumer.Config.Commission
	if !commissionCfg.SweepEnabled {
		return nil
	}
	spec := strings.TrimSpace(commissionCfg.SweepCron)
	if spec == "" {
		spec = defaultSweepCron
	}
	s.sweeper = NewSweeper(
		s.consumer.CommissionService,
		time.Duration(commissionCfg.SweepLockSeconds)*time.Second,
		commissionCfg.AutoRequeueFailed,
		time.Duration(commissionCfg.RequeueDelaySeconds)*time.Second,
	)
	s.cron = cron.New(
		cron.WithLocation(time.UTC),
		cron.WithLogger(cron.PrintfLogger(logger.StdLogger())),
		cron.WithChain(cron.SkipIfStillRunning(cron.PrintfLogger(logger.StdLogger()))),
	)
	if _, err := s.cron.AddFunc(spec, s.runSweep); err != nil {
		return err
	}
	logger.Infow("worker_sweep_scheduled", "cron", spec)
	return nil
}

func (s *Service) runSweep() {
	ctx, cancel := context.WithTimeout(context.Background(), sweepRunTimeout)
	defer cancel()
	if _, err := s.sweeper.RunOnce(ctx, time.Now().UTC()); err != nil {
		logger.Warnw("worker_sweep_run_failed", "error", err)
	}
}

// Name 服务名称
func (s *Service) Name() string {
	if s == nil || s.name == "" {
		return "worker"
	}
	return s.name
}

// Start 启动服务
func (s *Service) Start(ctx context.Context) error {
	if s == nil || s.server == nil || s.mux == nil {
		return errors.New("worker not initialized")
	}
	_ = ctx
	if s.cron != nil {
		s.cron.Start()
	}
	return s.server.Run(s.mux)
}

// Stop 停止服务
func (s *Service) Stop(ctx context.Context) error {
	if s == nil || s.server == nil {
		return nil
	}
	if s.cron != nil {
		stopped := s.cron.Stop()
		select {
		case <-stopped.Done():
		case <-ctx.Done():
			logger.Warnw("worker_sweep_stop_timeout")
		}
	}
	s.server.Shutdown()
	return nil
}
