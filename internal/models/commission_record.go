package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// CommissionRecord 佣金台账记录
// 每个 (partner_id, commission_month) 仅一条，已付款记录不可再修改，记录不做物理删除
type CommissionRecord struct {
	ID                 uint             `gorm:"primarykey" json:"id"`                                                             // 主键
	CommissionNo       string           `gorm:"type:varchar(32);not null;uniqueIndex" json:"commission_no"`                       // 佣金编号
	PartnerID          uint             `gorm:"not null;index;index:idx_commission_partner_month,unique" json:"partner_id"`       // 合作伙伴ID
	CommissionMonth    time.Time        `gorm:"not null;index;index:idx_commission_partner_month,unique" json:"commission_month"` // 佣金月份（当月1日）
	CalculationMethod  string           `gorm:"type:varchar(20);not null" json:"calculation_method"`                              // 计算方式
	MethodSnapshot     JSON             `gorm:"type:json" json:"method_snapshot"`                                                 // 计算方式参数快照
	RevenueBasis       *decimal.Decimal `gorm:"type:decimal(20,6)" json:"revenue_basis"`                                          // 收入基数（仅比例部分存在时）
	ConversionCount    *int64           `json:"conversion_count"`                                                                 // 转化次数（仅按转化计费时）
	CommissionAmount   Money            `gorm:"type:decimal(20,2);not null;default:0" json:"commission_amount"`                   // 佣金金额
	CalculationDetails string           `gorm:"type:text" json:"calculation_details"`                                             // 计算明细
	PaymentStatus      string           `gorm:"type:varchar(20);not null;index" json:"payment_status"`                            // 支付状态
	PaymentDate        *time.Time       `gorm:"index" json:"payment_date"`                                                        // 付款日期
	PayoutProvider     string           `gorm:"type:varchar(20)" json:"payout_provider"`                                          // 打款渠道
	ProcessorRef       string           `gorm:"type:varchar(128);index" json:"processor_ref"`                                     // 打款渠道流水号
	PayoutAttempts     int              `gorm:"not null;default:0" json:"payout_attempts"`                                        // 提交打款次数
	FailureReason      string           `gorm:"type:varchar(500)" json:"failure_reason"`                                          // 失败原因
	ProcessingAt       *time.Time       `json:"processing_at,omitempty"`                                                          // 提交打款时间
	FailedAt           *time.Time       `json:"failed_at,omitempty"`                                                              // 失败时间
	CalculatedAt       time.Time        `gorm:"index" json:"calculated_at"`                                                       // 最近计算时间
	CreatedAt          time.Time        `gorm:"index" json:"created_at"`                                                          // 创建时间
	UpdatedAt          time.Time        `gorm:"index" json:"updated_at"`                                                          // 更新时间

	Partner *Partner `gorm:"foreignKey:PartnerID" json:"partner,omitempty"` // 合作伙伴
}

// TableName 指定表名
func (CommissionRecord) TableName() string {
	return "commission_records"
}

// BuildCommissionNo 生成佣金编号，同一合作伙伴同一月份编号固定
func BuildCommissionNo(partnerID uint, month time.Time) string {
	return fmt.Sprintf("CM-%s-P%06d", month.UTC().Format("200601"), partnerID)
}
