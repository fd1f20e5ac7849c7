package app

import (
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/partner-ledger/internal/config"
	"github.com/partner-ledger/internal/logger"

	"go.uber.org/zap"
)

// 启动模式：all 同时运行 HTTP 与 worker，api/worker 可分开部署
const (
	ModeAll    = "all"
	ModeAPI    = "api"
	ModeWorker = "worker"
)

// 批量计算与打款提交需要留出收尾时间
const defaultShutdownTimeout = 15 * time.Second

// Options 应用启动选项
type Options struct {
	Config          *config.Config
	Logger          *zap.SugaredLogger
	Signals         []os.Signal
	ShutdownTimeout time.Duration
	Mode            string
}

// ParseMode 校验并规范化启动模式，空值视为 all
func ParseMode(raw string) (string, error) {
	switch mode := strings.ToLower(strings.TrimSpace(raw)); mode {
	case "":
		return ModeAll, nil
	case ModeAll, ModeAPI, ModeWorker:
		return mode, nil
	default:
		return "", fmt.Errorf("unknown mode: %s", raw)
	}
}

func (o Options) runsHTTP() bool   { return o.Mode == ModeAll || o.Mode == ModeAPI }
func (o Options) runsWorker() bool { return o.Mode == ModeAll || o.Mode == ModeWorker }

func normalizeOptions(opts Options) Options {
	if opts.Logger == nil {
		opts.Logger = logger.S()
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = defaultShutdownTimeout
	}
	if mode, err := ParseMode(opts.Mode); err == nil {
		opts.Mode = mode
	}
	return opts
}

func listenAddr(cfg *config.Config) string {
	return net.JoinHostPort(strings.TrimSpace(cfg.Server.Host), strings.TrimSpace(cfg.Server.Port))
}
