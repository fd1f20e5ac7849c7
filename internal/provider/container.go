package provider

import (
	"strings"
	"time"

	"github.com/partner-ledger/internal/cache"
	"github.com/partner-ledger/internal/config"
	"github.com/partner-ledger/internal/constants"
	"github.com/partner-ledger/internal/logger"
	"github.com/partner-ledger/internal/metrics"
	"github.com/partner-ledger/internal/models"
	"github.com/partner-ledger/internal/payout"
	"github.com/partner-ledger/internal/queue"
	"github.com/partner-ledger/internal/repository"
	"github.com/partner-ledger/internal/service"
)

// Container 依赖注入容器
type Container struct {
	Config      *config.Config
	QueueClient *queue.Client
	Metrics     *metrics.Metrics
	Payouts     *payout.Registry

	// Repositories
	PartnerRepo      repository.PartnerRepository
	RevenueInputRepo repository.RevenueInputRepository
	CommissionRepo   repository.CommissionRepository

	// Services
	RevenueSource       service.RevenueSource
	CommissionLedger    *service.CommissionLedger
	PartnerService      *service.PartnerService
	RevenueInputService *service.RevenueInputService
	CommissionService   *service.CommissionService
}

// NewContainer 初始化容器
func NewContainer(cfg *config.Config) *Container {
	// 初始化缓存
	if err := cache.InitRedis(&cfg.Redis); err != nil {
		logger.Warnw("provider_init_redis_failed", "error", err)
	}

	// 初始化队列客户端
	var queueClient *queue.Client
	if cfg.Queue.Enabled {
		qc, err := queue.NewClient(&cfg.Queue)
		if err != nil {
			logger.Errorw("provider_init_queue_client_failed", "error", err)
		} else {
			queueClient = qc
		}
	}

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
	}

	c := &Container{
		Config:      cfg,
		QueueClient: queueClient,
		Metrics:     m,
		Payouts:     BuildPayoutRegistry(&cfg.Payout),
	}

	// 1. 初始化 Repositories
	c.initRepositories()

	// 2. 初始化 Services
	c.initServices()

	return c
}

func (c *Container) initRepositories() {
	db := models.DB
	c.PartnerRepo = repository.NewPartnerRepository(db)
	c.RevenueInputRepo = repository.NewRevenueInputRepository(db)
	c.CommissionRepo = repository.NewCommissionRepository(db)
}

func (c *Container) initServices() {
	commissionCfg := c.Config.Commission
	c.RevenueSource = service.NewCachedRevenueSource(
		service.NewDBRevenueSource(c.RevenueInputRepo),
		time.Duration(commissionCfg.RevenueCacheTTLSeconds)*time.Second,
		c.Metrics,
	)
	c.CommissionLedger = service.NewCommissionLedger(c.CommissionRepo, c.Metrics, commissionCfg.UpsertMaxRetries)
	c.PartnerService = service.NewPartnerService(c.PartnerRepo, c.Payouts)
	c.RevenueInputService = service.NewRevenueInputService(c.RevenueInputRepo, c.PartnerRepo)
	c.CommissionService = service.NewCommissionService(
		c.PartnerRepo,
		c.CommissionRepo,
		c.CommissionLedger,
		c.RevenueSource,
		c.Payouts,
		c.QueueClient,
		c.Metrics,
		service.CommissionServiceOptions{
			Currency:          commissionCfg.Currency,
			BatchConcurrency:  commissionCfg.BatchConcurrency,
			AutoRequeueFailed: commissionCfg.AutoRequeueFailed,
			RequeueDelay:      time.Duration(commissionCfg.RequeueDelaySeconds) * time.Second,
			BatchUniqueTTL:    time.Duration(commissionCfg.SweepLockSeconds) * time.Second,
			ExportMaxRows:     commissionCfg.ExportMaxRows,
		},
	)
}

// BuildPayoutRegistry 按配置组装打款渠道，配置的渠道作为默认渠道，manual 始终可用
func BuildPayoutRegistry(cfg *config.PayoutConfig) *payout.Registry {
	manual := payout.NewManualProcessor()
	if cfg == nil {
		return payout.NewRegistry(manual)
	}
	var stripeProcessor payout.Processor
	if strings.TrimSpace(cfg.Stripe.SecretKey) != "" {
		processor, err := payout.NewStripeProcessor(payout.StripeConfig{
			SecretKey:     cfg.Stripe.SecretKey,
			WebhookSecret: cfg.Stripe.WebhookSecret,
			APIBaseURL:    cfg.Stripe.APIBaseURL,
			Currency:      cfg.Stripe.Currency,
			Logger:        logger.S(),
		})
		if err != nil {
			logger.Errorw("provider_init_stripe_payout_failed", "error", err)
		} else {
			stripeProcessor = processor
		}
	}

	if strings.EqualFold(strings.TrimSpace(cfg.Provider), constants.PayoutProviderStripe) {
		if stripeProcessor == nil {
			logger.Warnw("provider_payout_fallback_manual", "configured", cfg.Provider)
			return payout.NewRegistry(manual)
		}
		return payout.NewRegistry(stripeProcessor, manual)
	}
	if stripeProcessor != nil {
		return payout.NewRegistry(manual, stripeProcessor)
	}
	return payout.NewRegistry(manual)
}
