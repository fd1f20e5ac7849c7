package models

import (
	"strings"
	"time"

	"github.com/partner-ledger/internal/commission"
	"github.com/partner-ledger/internal/constants"

	"github.com/shopspring/decimal"
)

// Partner 合作伙伴
// 佣金结构以扁平列存储，读取时通过 Structure() 还原为变体
type Partner struct {
	ID                  uint             `gorm:"primarykey" json:"id"`                                               // 主键
	PartnerCode         string           `gorm:"type:varchar(32);not null;uniqueIndex" json:"partner_code"`          // 合作伙伴编号
	Name                string           `gorm:"type:varchar(255);not null" json:"name"`                             // 名称
	Email               string           `gorm:"type:varchar(255);index" json:"email"`                               // 联系邮箱
	PartnerType         string           `gorm:"type:varchar(20);not null;index" json:"partner_type"`                // 合作伙伴类型
	StructureKind       string           `gorm:"type:varchar(20);not null;default:'none'" json:"structure_kind"`     // 佣金结构类型
	MonthlyAmount       *decimal.Decimal `gorm:"type:decimal(20,6)" json:"monthly_amount,omitempty"`                 // 月固定金额
	RatePercent         *decimal.Decimal `gorm:"type:decimal(10,6)" json:"rate_percent,omitempty"`                   // 收入比例（百分比）
	AmountPerConversion *decimal.Decimal `gorm:"type:decimal(20,6)" json:"amount_per_conversion,omitempty"`          // 单次转化金额
	PayoutProvider      string           `gorm:"type:varchar(20);not null;default:'manual'" json:"payout_provider"`  // 打款渠道
	PayeeID             string           `gorm:"type:varchar(128);index" json:"payee_id"`                            // 收款方ID（如 Stripe Connect 账户）
	PayeeStatus         string           `gorm:"type:varchar(20);not null;default:'not_linked'" json:"payee_status"` // 收款方关联状态
	IsActive            bool             `gorm:"not null;default:true;index" json:"is_active"`                       // 是否整月有效
	CreatedAt           time.Time        `gorm:"index" json:"created_at"`                                            // 创建时间
	UpdatedAt           time.Time        `gorm:"index" json:"updated_at"`                                            // 更新时间
}

// TableName 指定表名
func (Partner) TableName() string {
	return "partners"
}

// Structure 还原佣金结构变体
func (p *Partner) Structure() (commission.Structure, error) {
	return commission.NewStructure(commission.StructureFields{
		Kind:                p.StructureKind,
		MonthlyAmount:       p.MonthlyAmount,
		RatePercent:         p.RatePercent,
		AmountPerConversion: p.AmountPerConversion,
	})
}

// ApplyStructure 将变体写回扁平列，清空其他变体的字段
func (p *Partner) ApplyStructure(structure commission.Structure) {
	fields := commission.Fields(structure)
	p.StructureKind = fields.Kind
	p.MonthlyAmount = fields.MonthlyAmount
	p.RatePercent = fields.RatePercent
	p.AmountPerConversion = fields.AmountPerConversion
}

// PayoutLinked 是否已关联收款方
func (p *Partner) PayoutLinked() bool {
	return strings.TrimSpace(p.PayeeID) != "" && p.PayeeStatus != constants.PayeeStatusNotLinked
}
