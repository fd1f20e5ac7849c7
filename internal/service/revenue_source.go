package service

import (
	"context"
	"time"

	"github.com/partner-ledger/internal/cache"
	"github.com/partner-ledger/internal/commission"
	"github.com/partner-ledger/internal/logger"
	"github.com/partner-ledger/internal/metrics"
	"github.com/partner-ledger/internal/repository"

	"github.com/shopspring/decimal"
)

// RevenueFigures 单月收入与转化数据，nil 表示来源未提供
type RevenueFigures struct {
	RevenueBasis    *decimal.Decimal
	ConversionCount *int64
}

// RevenueSource 收入/转化数据来源
type RevenueSource interface {
	Fetch(ctx context.Context, partnerID uint, month time.Time) (RevenueFigures, error)
}

// DBRevenueSource 从 partner_revenue_inputs 表读取
type DBRevenueSource struct {
	repo repository.RevenueInputRepository
}

// NewDBRevenueSource 创建数据库收入来源
func NewDBRevenueSource(repo repository.RevenueInputRepository) *DBRevenueSource {
	return &DBRevenueSource{repo: repo}
}

// Fetch 读取单月输入，无记录时两项均为 nil
func (s *DBRevenueSource) Fetch(_ context.Context, partnerID uint, month time.Time) (RevenueFigures, error) {
	row, err := s.repo.Get(partnerID, commission.NormalizeMonth(month))
	if err != nil {
		return RevenueFigures{}, err
	}
	if row == nil {
		return RevenueFigures{}, nil
	}
	return RevenueFigures{RevenueBasis: row.RevenueBasis, ConversionCount: row.ConversionCount}, nil
}

// CachedRevenueSource Redis 读穿缓存
type CachedRevenueSource struct {
	next    RevenueSource
	ttl     time.Duration
	metrics *metrics.Metrics
}

// NewCachedRevenueSource 创建缓存装饰
func NewCachedRevenueSource(next RevenueSource, ttl time.Duration, m *metrics.Metrics) *CachedRevenueSource {
	return &CachedRevenueSource{next: next, ttl: ttl, metrics: m}
}

// Fetch 优先读缓存，缓存异常时回退到下游
func (s *CachedRevenueSource) Fetch(ctx context.Context, partnerID uint, month time.Time) (RevenueFigures, error) {
	key := commission.MonthKey(month)
	if s.ttl > 0 && cache.Enabled() {
		snapshot, hit, err := cache.GetRevenueInput(ctx, partnerID, key)
		if err != nil {
			logger.Warnw("revenue_cache_get_failed", "partner_id", partnerID, "month", key, "error", err)
		} else if hit {
			figures, decodeErr := figuresFromSnapshot(snapshot)
			if decodeErr == nil {
				s.metrics.RecordRevenueCache(true)
				return figures, nil
			}
			logger.Warnw("revenue_cache_decode_failed", "partner_id", partnerID, "month", key, "error", decodeErr)
		}
		s.metrics.RecordRevenueCache(false)
	}

	figures, err := s.next.Fetch(ctx, partnerID, month)
	if err != nil {
		return RevenueFigures{}, err
	}
	if s.ttl > 0 && cache.Enabled() {
		if err := cache.SetRevenueInput(ctx, snapshotFromFigures(partnerID, key, figures), s.ttl); err != nil {
			logger.Warnw("revenue_cache_set_failed", "partner_id", partnerID, "month", key, "error", err)
		}
	}
	return figures, nil
}

func snapshotFromFigures(partnerID uint, month string, figures RevenueFigures) *cache.RevenueInputSnapshot {
	snapshot := &cache.RevenueInputSnapshot{
		PartnerID:       partnerID,
		Month:           month,
		ConversionCount: figures.ConversionCount,
		Found:           figures.RevenueBasis != nil || figures.ConversionCount != nil,
	}
	if figures.RevenueBasis != nil {
		raw := figures.RevenueBasis.String()
		snapshot.RevenueBasis = &raw
	}
	return snapshot
}

func figuresFromSnapshot(snapshot *cache.RevenueInputSnapshot) (RevenueFigures, error) {
	figures := RevenueFigures{ConversionCount: snapshot.ConversionCount}
	if snapshot.RevenueBasis != nil {
		basis, err := decimal.NewFromString(*snapshot.RevenueBasis)
		if err != nil {
			return RevenueFigures{}, err
		}
		figures.RevenueBasis = &basis
	}
	return figures, nil
}
