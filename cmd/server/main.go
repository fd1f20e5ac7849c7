package main

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"syscall"

	"github.com/partner-ledger/internal/app"
	"github.com/partner-ledger/internal/config"
	"github.com/partner-ledger/internal/constants"
	"github.com/partner-ledger/internal/logger"

	"github.com/gin-gonic/gin"
)

const (
	ansiReset = "\033[0m"
	ansiBold  = "\033[1m"
	ansiDim   = "\033[2m"
	ansiCyan  = "\033[36m"
)

func main() {
	// 解析命令行参数
	var mode string
	flag.StringVar(&mode, "mode", app.ModeAll, "启动模式: all (默认), api, worker")
	flag.Parse()

	printStartupBanner(mode)

	// 加载配置
	cfg := config.Load()
	logger.Init(cfg.Server.Mode, cfg.Log.ToLoggerOptions())
	stdLog := logger.StdLogger()

	if strings.EqualFold(cfg.Payout.Provider, constants.PayoutProviderStripe) {
		if strings.TrimSpace(cfg.Payout.Stripe.SecretKey) == "" {
			stdLog.Printf("警告: payout.provider=stripe 但未配置 secret_key，将回退为人工打款")
		} else if strings.TrimSpace(cfg.Payout.Stripe.WebhookSecret) == "" {
			stdLog.Printf("警告: 未配置 Stripe webhook_secret，打款回调将无法验签")
		}
	}

	// 初始化数据库并迁移
	if err := app.InitStorage(cfg); err != nil {
		stdLog.Fatalf("数据库初始化失败: %v", err)
	}

	// 设置 Gin 模式
	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := app.Run(app.Options{
		Config:  cfg,
		Logger:  logger.S(),
		Signals: []os.Signal{syscall.SIGINT, syscall.SIGTERM},
		Mode:    mode,
	}); err != nil {
		stdLog.Fatalf("服务运行失败: %v", err)
	}
}

func printStartupBanner(mode string) {
	fmt.Println(ansiCyan + ansiBold + "partner-ledger" + ansiReset + ansiDim + "  commission calculation & settlement" + ansiReset)
	fmt.Println(ansiDim + "mode: " + mode + ansiReset)
	fmt.Println(ansiDim + "--------------------------------------------------------------" + ansiReset)
}
