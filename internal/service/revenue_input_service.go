package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/partner-ledger/internal/cache"
	"github.com/partner-ledger/internal/commission"
	"github.com/partner-ledger/internal/logger"
	"github.com/partner-ledger/internal/models"
	"github.com/partner-ledger/internal/repository"

	"github.com/shopspring/decimal"
)

// RevenueInputService 月度收入/转化输入维护
type RevenueInputService struct {
	repo        repository.RevenueInputRepository
	partnerRepo repository.PartnerRepository
}

// NewRevenueInputService 创建收入输入服务
func NewRevenueInputService(repo repository.RevenueInputRepository, partnerRepo repository.PartnerRepository) *RevenueInputService {
	return &RevenueInputService{repo: repo, partnerRepo: partnerRepo}
}

// RevenueInput 收入输入，nil 字段表示未提供
type RevenueInput struct {
	PartnerID       uint
	Month           time.Time
	RevenueBasis    *decimal.Decimal
	ConversionCount *int64
	Source          string
}

// Upsert 写入单月输入并清除缓存
// 负数在写入时即拒绝，避免计算阶段才发现
func (s *RevenueInputService) Upsert(ctx context.Context, input RevenueInput) (*models.PartnerRevenueInput, error) {
	partner, err := s.partnerRepo.GetByID(input.PartnerID)
	if err != nil {
		return nil, err
	}
	if partner == nil {
		return nil, ErrPartnerNotFound
	}
	if input.Month.IsZero() {
		return nil, commission.ErrMonthInvalid
	}
	if input.RevenueBasis != nil && input.RevenueBasis.IsNegative() {
		return nil, fmt.Errorf("%w: revenue basis must not be negative", commission.ErrNegativeInput)
	}
	if input.ConversionCount != nil && *input.ConversionCount < 0 {
		return nil, fmt.Errorf("%w: conversion count must not be negative", commission.ErrNegativeInput)
	}
	source := strings.TrimSpace(input.Source)
	if source == "" {
		source = "admin"
	}
	if len(source) > 64 {
		return nil, fmt.Errorf("%w: source too long", ErrRevenueInputInvalid)
	}

	month := commission.NormalizeMonth(input.Month)
	row := &models.PartnerRevenueInput{
		PartnerID:       input.PartnerID,
		Month:           month,
		RevenueBasis:    input.RevenueBasis,
		ConversionCount: input.ConversionCount,
		Source:          source,
	}
	if err := s.repo.Upsert(row); err != nil {
		return nil, err
	}
	if err := cache.DelRevenueInput(ctx, input.PartnerID, commission.MonthKey(month)); err != nil {
		logger.Warnw("revenue_cache_invalidate_failed", "partner_id", input.PartnerID, "month", commission.MonthKey(month), "error", err)
	}
	stored, err := s.repo.Get(input.PartnerID, month)
	if err != nil {
		return nil, err
	}
	if stored == nil {
		return row, nil
	}
	return stored, nil
}

// List 查询收入输入
func (s *RevenueInputService) List(filter repository.RevenueInputListFilter) ([]models.PartnerRevenueInput, int64, error) {
	return s.repo.List(filter)
}
