package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
)

// Metrics Prometheus 指标集合，方法对 nil 接收者安全
type Metrics struct {
	registry prometheus.Gatherer

	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	CalculationsTotal  *prometheus.CounterVec
	TransitionsTotal   *prometheus.CounterVec
	BatchDuration      prometheus.Histogram
	CommissionAmount   prometheus.Counter
	UpsertRetries      prometheus.Counter
	PayoutEventsTotal  *prometheus.CounterVec
	RevenueCacheHits   prometheus.Counter
	RevenueCacheMisses prometheus.Counter
}

// New 在独立 Registry 上注册全部指标
func New() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path", "status"},
		),
		CalculationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "commission_calculations_total",
				Help: "Commission calculations by outcome",
			},
			[]string{"outcome"}, // succeeded, skipped, failed
		),
		TransitionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "commission_transitions_total",
				Help: "Settlement status transitions by target status",
			},
			[]string{"to"},
		),
		BatchDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "commission_batch_duration_seconds",
			Help:    "Duration of monthly batch calculations",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 300, 900},
		}),
		CommissionAmount: factory.NewCounter(prometheus.CounterOpts{
			Name: "commission_amount_total",
			Help: "Sum of commission amounts written to the ledger",
		}),
		UpsertRetries: factory.NewCounter(prometheus.CounterOpts{
			Name: "commission_upsert_retries_total",
			Help: "Ledger upserts retried after a duplicate key race",
		}),
		PayoutEventsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "commission_payout_events_total",
				Help: "Payout processor callbacks by provider and outcome",
			},
			[]string{"provider", "outcome"},
		),
		RevenueCacheHits: factory.NewCounter(prometheus.CounterOpts{
			Name: "commission_revenue_cache_hits_total",
			Help: "Revenue input cache hits",
		}),
		RevenueCacheMisses: factory.NewCounter(prometheus.CounterOpts{
			Name: "commission_revenue_cache_misses_total",
			Help: "Revenue input cache misses",
		}),
	}
}

// Handler 暴露 /metrics
func (m *Metrics) Handler() gin.HandlerFunc {
	if m == nil {
		return func(c *gin.Context) { c.Status(404) }
	}
	return gin.WrapH(promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
}

// Middleware HTTP 请求指标中间件
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if m == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()

		path := c.FullPath() // 使用路由模板，避免高基数
		if path == "" {
			path = "unmatched"
		}
		status := strconv.Itoa(c.Writer.Status())
		m.HTTPRequestsTotal.WithLabelValues(c.Request.Method, path, status).Inc()
		m.HTTPRequestDuration.WithLabelValues(c.Request.Method, path, status).Observe(time.Since(start).Seconds())
	}
}

// RecordCalculation 记录一次计算结果
func (m *Metrics) RecordCalculation(outcome string, amount decimal.Decimal) {
	if m == nil {
		return
	}
	m.CalculationsTotal.WithLabelValues(outcome).Inc()
	if amount.IsPositive() {
		m.CommissionAmount.Add(amount.InexactFloat64())
	}
}

// RecordTransition 记录一次状态迁移
func (m *Metrics) RecordTransition(to string) {
	if m == nil {
		return
	}
	m.TransitionsTotal.WithLabelValues(to).Inc()
}

// ObserveBatch 记录批量计算耗时
func (m *Metrics) ObserveBatch(duration time.Duration) {
	if m == nil {
		return
	}
	m.BatchDuration.Observe(duration.Seconds())
}

// RecordUpsertRetry 记录一次唯一键竞争重试
func (m *Metrics) RecordUpsertRetry() {
	if m == nil {
		return
	}
	m.UpsertRetries.Inc()
}

// RecordPayoutEvent 记录一次渠道回调
func (m *Metrics) RecordPayoutEvent(provider, outcome string) {
	if m == nil {
		return
	}
	m.PayoutEventsTotal.WithLabelValues(provider, outcome).Inc()
}

// RecordRevenueCache 记录收入缓存命中情况
func (m *Metrics) RecordRevenueCache(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.RevenueCacheHits.Inc()
		return
	}
	m.RevenueCacheMisses.Inc()
}
