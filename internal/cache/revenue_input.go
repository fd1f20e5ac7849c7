package cache

import (
	"context"
	"fmt"
	"time"
)

// RevenueInputSnapshot 月度收入输入缓存快照
// 字段为 nil 表示来源未提供
type RevenueInputSnapshot struct {
	PartnerID       uint    `json:"partner_id"`
	Month           string  `json:"month"`
	RevenueBasis    *string `json:"revenue_basis,omitempty"`
	ConversionCount *int64  `json:"conversion_count,omitempty"`
	Found           bool    `json:"found"`
}

func revenueInputKey(partnerID uint, month string) string {
	return fmt.Sprintf("revenue:%d:%s", partnerID, month)
}

// GetRevenueInput 读取收入输入缓存
func GetRevenueInput(ctx context.Context, partnerID uint, month string) (*RevenueInputSnapshot, bool, error) {
	var snapshot RevenueInputSnapshot
	hit, err := GetJSON(ctx, revenueInputKey(partnerID, month), &snapshot)
	if err != nil || !hit {
		return nil, false, err
	}
	return &snapshot, true, nil
}

// SetRevenueInput 写入收入输入缓存
func SetRevenueInput(ctx context.Context, snapshot *RevenueInputSnapshot, ttl time.Duration) error {
	if snapshot == nil || ttl <= 0 {
		return nil
	}
	return SetJSON(ctx, revenueInputKey(snapshot.PartnerID, snapshot.Month), snapshot, ttl)
}

// DelRevenueInput 删除收入输入缓存
func DelRevenueInput(ctx context.Context, partnerID uint, month string) error {
	return Del(ctx, revenueInputKey(partnerID, month))
}
