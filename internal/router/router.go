package router

import (
	"strings"

	"github.com/partner-ledger/internal/cache"
	"github.com/partner-ledger/internal/config"
	adminhandlers "github.com/partner-ledger/internal/http/handlers/admin"
	publichandlers "github.com/partner-ledger/internal/http/handlers/public"
	"github.com/partner-ledger/internal/logger"
	"github.com/partner-ledger/internal/provider"

	"github.com/gin-gonic/gin"
)

// SetupRouter 初始化路由
func SetupRouter(cfg *config.Config, c *provider.Container) *gin.Engine {
	log := logger.L
	if log == nil {
		log = logger.Init(cfg.Server.Mode, cfg.Log.ToLoggerOptions())
	}
	r := gin.New()

	// 初始化 Handler（按公开/后台分组）
	publicHandler := publichandlers.New(c)
	adminHandler := adminhandlers.New(c)
	redisPrefix := cache.Prefix()
	redisClient := cache.Client()
	webhookRule := ruleFromConfig(redisPrefix+":rate:payout_webhook", cfg.Security.WebhookRateLimit)
	portalRule := ruleFromConfig(redisPrefix+":rate:portal", cfg.Security.PortalRateLimit)

	// 中间件
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	metricsPath := strings.TrimSpace(cfg.Metrics.Path)
	if metricsPath == "" {
		metricsPath = "/metrics"
	}
	r.Use(LoggerMiddleware(log, "/healthz", metricsPath))
	r.Use(CORSMiddleware(cfg.CORS))
	if c.Metrics != nil {
		r.Use(c.Metrics.Middleware())
		r.GET(metricsPath, c.Metrics.Handler())
	}

	r.GET("/healthz", publicHandler.Healthz)

	// API 路由组
	apiV1 := r.Group("/api/v1")
	{
		// 打款渠道回调
		apiV1.POST("/payouts/webhook/:provider", RateLimitMiddleware(redisClient, webhookRule, KeyByParamAndIP("provider")), publicHandler.PayoutWebhook)

		// 合作伙伴只读门户
		portal := apiV1.Group("/portal/partners/:code", RateLimitMiddleware(redisClient, portalRule, KeyByIP))
		{
			portal.GET("", publicHandler.GetPortalPartner)
			portal.GET("/commissions", publicHandler.ListPortalCommissions)
		}

		// 后台管理接口
		admin := apiV1.Group("/admin")
		{
			admin.GET("/partners", adminHandler.ListPartners)
			admin.POST("/partners", adminHandler.CreatePartner)
			admin.GET("/partners/:id", adminHandler.GetPartner)
			admin.PUT("/partners/:id", adminHandler.UpdatePartner)
			admin.PUT("/partners/:id/payout-link", adminHandler.SetPartnerPayoutLink)
			admin.PUT("/partners/:id/active", adminHandler.SetPartnerActive)

			admin.GET("/revenue-inputs", adminHandler.ListRevenueInputs)
			admin.PUT("/revenue-inputs", adminHandler.UpsertRevenueInput)

			admin.POST("/commissions/calculate", adminHandler.CalculateCommission)
			admin.POST("/commissions/calculate-batch", adminHandler.CalculateCommissionBatch)
			admin.GET("/commissions", adminHandler.ListCommissions)
			admin.GET("/commissions/export", adminHandler.ExportCommissions)
			admin.GET("/commissions/:id", adminHandler.GetCommission)
			admin.GET("/commissions/:id/transitions", adminHandler.ListCommissionTransitions)
			admin.POST("/commissions/:id/processing", adminHandler.MarkCommissionProcessing)
			admin.POST("/commissions/:id/paid", adminHandler.MarkCommissionPaid)
			admin.POST("/commissions/:id/failed", adminHandler.MarkCommissionFailed)
			admin.POST("/commissions/:id/retry", adminHandler.RetryCommission)
		}
	}

	return r
}
