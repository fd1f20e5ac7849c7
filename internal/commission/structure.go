package commission

import (
	"fmt"
	"strings"

	"github.com/partner-ledger/internal/constants"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Structure 佣金结构（带标签的变体类型）
// 每个变体只携带自身有意义的字段
type Structure interface {
	Kind() string
	Validate() error
	isStructure()
}

// None 未配置佣金结构
type None struct{}

// FlatFee 每月固定金额
type FlatFee struct {
	MonthlyAmount decimal.Decimal
}

// Percentage 按收入基数比例
type Percentage struct {
	RatePercent decimal.Decimal
}

// PerReferral 按转化次数计费
type PerReferral struct {
	AmountPerConversion decimal.Decimal
}

// Hybrid 固定金额 + 收入比例
type Hybrid struct {
	MonthlyAmount decimal.Decimal
	RatePercent   decimal.Decimal
}

func (None) Kind() string        { return constants.StructureNone }
func (FlatFee) Kind() string     { return constants.StructureFlatFee }
func (Percentage) Kind() string  { return constants.StructurePercentage }
func (PerReferral) Kind() string { return constants.StructurePerReferral }
func (Hybrid) Kind() string      { return constants.StructureHybrid }

func (None) isStructure()        {}
func (FlatFee) isStructure()     {}
func (Percentage) isStructure()  {}
func (PerReferral) isStructure() {}
func (Hybrid) isStructure()      {}

// Validate 校验结构
func (None) Validate() error { return nil }

// Validate 校验结构
func (s FlatFee) Validate() error {
	return validateAmount("monthly_amount", s.MonthlyAmount)
}

// Validate 校验结构
func (s Percentage) Validate() error {
	return validateRate(s.RatePercent)
}

// Validate 校验结构
func (s PerReferral) Validate() error {
	return validateAmount("amount_per_conversion", s.AmountPerConversion)
}

// Validate 校验结构
func (s Hybrid) Validate() error {
	if err := validateAmount("monthly_amount", s.MonthlyAmount); err != nil {
		return err
	}
	return validateRate(s.RatePercent)
}

// StructureFields 结构的扁平存储形态（数据库列 / 请求体）
type StructureFields struct {
	Kind                string
	MonthlyAmount       *decimal.Decimal
	RatePercent         *decimal.Decimal
	AmountPerConversion *decimal.Decimal
}

// NewStructure 从扁平字段构建变体，拒绝与变体无关的多余字段
func NewStructure(fields StructureFields) (Structure, error) {
	kind := strings.ToLower(strings.TrimSpace(fields.Kind))
	var (
		structure Structure
		allowed   = map[string]bool{}
	)
	switch kind {
	case "", constants.StructureNone:
		structure = None{}
	case constants.StructureFlatFee:
		if fields.MonthlyAmount == nil {
			return nil, fmt.Errorf("%w: flat_fee requires monthly_amount", ErrStructureInvalid)
		}
		structure = FlatFee{MonthlyAmount: *fields.MonthlyAmount}
		allowed["monthly_amount"] = true
	case constants.StructurePercentage:
		if fields.RatePercent == nil {
			return nil, fmt.Errorf("%w: percentage requires rate_percent", ErrStructureInvalid)
		}
		structure = Percentage{RatePercent: *fields.RatePercent}
		allowed["rate_percent"] = true
	case constants.StructurePerReferral:
		if fields.AmountPerConversion == nil {
			return nil, fmt.Errorf("%w: per_referral requires amount_per_conversion", ErrStructureInvalid)
		}
		structure = PerReferral{AmountPerConversion: *fields.AmountPerConversion}
		allowed["amount_per_conversion"] = true
	case constants.StructureHybrid:
		if fields.MonthlyAmount == nil || fields.RatePercent == nil {
			return nil, fmt.Errorf("%w: hybrid requires monthly_amount and rate_percent", ErrStructureInvalid)
		}
		structure = Hybrid{MonthlyAmount: *fields.MonthlyAmount, RatePercent: *fields.RatePercent}
		allowed["monthly_amount"] = true
		allowed["rate_percent"] = true
	default:
		return nil, fmt.Errorf("%w: unknown kind %q", ErrStructureInvalid, fields.Kind)
	}

	if fields.MonthlyAmount != nil && !allowed["monthly_amount"] {
		return nil, fmt.Errorf("%w: %s does not accept monthly_amount", ErrStructureInvalid, structure.Kind())
	}
	if fields.RatePercent != nil && !allowed["rate_percent"] {
		return nil, fmt.Errorf("%w: %s does not accept rate_percent", ErrStructureInvalid, structure.Kind())
	}
	if fields.AmountPerConversion != nil && !allowed["amount_per_conversion"] {
		return nil, fmt.Errorf("%w: %s does not accept amount_per_conversion", ErrStructureInvalid, structure.Kind())
	}
	if err := structure.Validate(); err != nil {
		return nil, err
	}
	return structure, nil
}

// Fields 将变体还原为扁平字段
func Fields(structure Structure) StructureFields {
	switch s := structure.(type) {
	case FlatFee:
		return StructureFields{Kind: s.Kind(), MonthlyAmount: decimalPtr(s.MonthlyAmount)}
	case Percentage:
		return StructureFields{Kind: s.Kind(), RatePercent: decimalPtr(s.RatePercent)}
	case PerReferral:
		return StructureFields{Kind: s.Kind(), AmountPerConversion: decimalPtr(s.AmountPerConversion)}
	case Hybrid:
		return StructureFields{
			Kind:          s.Kind(),
			MonthlyAmount: decimalPtr(s.MonthlyAmount),
			RatePercent:   decimalPtr(s.RatePercent),
		}
	default:
		return StructureFields{Kind: constants.StructureNone}
	}
}

// Snapshot 生成计算方式快照，写入台账后不再随合作伙伴配置变化
func Snapshot(structure Structure) map[string]interface{} {
	fields := Fields(structure)
	snapshot := map[string]interface{}{"kind": fields.Kind}
	if fields.MonthlyAmount != nil {
		snapshot["monthly_amount"] = fields.MonthlyAmount.String()
	}
	if fields.RatePercent != nil {
		snapshot["rate_percent"] = fields.RatePercent.String()
	}
	if fields.AmountPerConversion != nil {
		snapshot["amount_per_conversion"] = fields.AmountPerConversion.String()
	}
	return snapshot
}

// UsesRevenueBasis 是否包含比例部分
func UsesRevenueBasis(structure Structure) bool {
	switch structure.(type) {
	case Percentage, Hybrid:
		return true
	default:
		return false
	}
}

// UsesConversionCount 是否包含按转化计费部分
func UsesConversionCount(structure Structure) bool {
	_, ok := structure.(PerReferral)
	return ok
}

func validateAmount(field string, amount decimal.Decimal) error {
	if amount.IsNegative() {
		return fmt.Errorf("%w: %s must not be negative", ErrNegativeInput, field)
	}
	return nil
}

func validateRate(rate decimal.Decimal) error {
	if rate.IsNegative() {
		return fmt.Errorf("%w: rate_percent must not be negative", ErrNegativeInput)
	}
	if rate.GreaterThan(hundred) {
		return fmt.Errorf("%w: rate_percent must be between 0 and 100", ErrStructureInvalid)
	}
	return nil
}

func decimalPtr(d decimal.Decimal) *decimal.Decimal {
	return &d
}
