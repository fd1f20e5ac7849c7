package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PartnerRevenueInput 合作伙伴月度收入/转化输入
// 字段为空表示来源未提供，不等于 0
type PartnerRevenueInput struct {
	ID              uint             `gorm:"primarykey" json:"id"`                                                    // 主键
	PartnerID       uint             `gorm:"not null;index:idx_revenue_input_partner_month,unique" json:"partner_id"` // 合作伙伴ID
	Month           time.Time        `gorm:"not null;index:idx_revenue_input_partner_month,unique" json:"month"`      // 所属月份（当月1日）
	RevenueBasis    *decimal.Decimal `gorm:"type:decimal(20,6)" json:"revenue_basis,omitempty"`                       // 收入基数
	ConversionCount *int64           `json:"conversion_count,omitempty"`                                              // 转化次数
	Source          string           `gorm:"type:varchar(64)" json:"source"`                                          // 数据来源
	CreatedAt       time.Time        `gorm:"index" json:"created_at"`                                                 // 创建时间
	UpdatedAt       time.Time        `gorm:"index" json:"updated_at"`                                                 // 更新时间
}

// TableName 指定表名
func (PartnerRevenueInput) TableName() string {
	return "partner_revenue_inputs"
}
