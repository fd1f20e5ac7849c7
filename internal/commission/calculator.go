package commission

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// AmountPlaces 佣金金额保留小数位
const AmountPlaces = 2

// Input 单个合作伙伴单月的计算输入
// RevenueBasis / ConversionCount 为 nil 表示来源未提供，与 0 含义不同
type Input struct {
	Month           time.Time
	ActiveFullMonth bool
	RevenueBasis    *decimal.Decimal
	ConversionCount *int64
}

// Result 计算结果
// RevenueBasis / ConversionCount 仅在被结构实际使用时非 nil
type Result struct {
	Method          string
	Snapshot        map[string]interface{}
	Amount          decimal.Decimal
	Details         string
	RevenueBasis    *decimal.Decimal
	ConversionCount *int64
	Skip            bool
}

// Calculate 计算佣金，纯函数，不访问任何外部状态
// 各分项以全精度求和，最终只做一次两位小数舍入
func Calculate(structure Structure, in Input) (*Result, error) {
	if structure == nil {
		structure = None{}
	}
	if err := structure.Validate(); err != nil {
		return nil, err
	}
	month := MonthKey(in.Month)
	result := &Result{
		Method:   structure.Kind(),
		Snapshot: Snapshot(structure),
	}

	var (
		total decimal.Decimal
		parts []string
	)

	switch s := structure.(type) {
	case None:
		result.Skip = true
		result.Amount = decimal.Zero
		result.Details = fmt.Sprintf("no commission structure configured for %s", month)
		return result, nil

	case FlatFee:
		flat, part := flatComponent(s.MonthlyAmount, in.ActiveFullMonth, "flat fee")
		total = flat
		parts = append(parts, part)

	case Percentage:
		basis, err := requireRevenueBasis(in.RevenueBasis)
		if err != nil {
			return nil, err
		}
		total = basis.Mul(s.RatePercent).Div(hundred)
		parts = append(parts, fmt.Sprintf("%s × %s revenue", FormatRate(s.RatePercent), FormatMoney(basis)))
		result.RevenueBasis = &basis

	case PerReferral:
		count, err := requireConversionCount(in.ConversionCount)
		if err != nil {
			return nil, err
		}
		total = s.AmountPerConversion.Mul(decimal.NewFromInt(count))
		parts = append(parts, fmt.Sprintf("%d %s × %s", count, plural(count, "conversion"), FormatMoney(s.AmountPerConversion)))
		result.ConversionCount = &count

	case Hybrid:
		basis, err := requireRevenueBasis(in.RevenueBasis)
		if err != nil {
			return nil, err
		}
		flat, part := flatComponent(s.MonthlyAmount, in.ActiveFullMonth, "flat")
		pct := basis.Mul(s.RatePercent).Div(hundred)
		total = flat.Add(pct)
		parts = append(parts, part, fmt.Sprintf("%s × %s revenue", FormatRate(s.RatePercent), FormatMoney(basis)))
		result.RevenueBasis = &basis

	default:
		return nil, fmt.Errorf("%w: unsupported structure %T", ErrStructureInvalid, structure)
	}

	amount := total.Round(AmountPlaces)
	if amount.IsNegative() {
		return nil, fmt.Errorf("%w: computed amount %s", ErrNegativeInput, amount.String())
	}
	result.Amount = amount

	details := strings.Join(parts, " + ") + " = " + FormatMoney(amount)
	if notes := ignoredInputs(result, in); len(notes) > 0 {
		details += "; ignored " + strings.Join(notes, ", ")
	}
	result.Details = details
	return result, nil
}

func flatComponent(monthly decimal.Decimal, active bool, label string) (decimal.Decimal, string) {
	if !active {
		return decimal.Zero, fmt.Sprintf("%s %s not accrued (partner not active for the whole month)", label, FormatMoney(monthly))
	}
	return monthly, fmt.Sprintf("%s %s", label, FormatMoney(monthly))
}

func requireRevenueBasis(basis *decimal.Decimal) (decimal.Decimal, error) {
	if basis == nil {
		return decimal.Zero, ErrMissingRevenueBasis
	}
	if basis.IsNegative() {
		return decimal.Zero, fmt.Errorf("%w: revenue basis %s", ErrNegativeInput, basis.String())
	}
	return *basis, nil
}

func requireConversionCount(count *int64) (int64, error) {
	if count == nil {
		return 0, ErrMissingConversionCount
	}
	if *count < 0 {
		return 0, fmt.Errorf("%w: conversion count %d", ErrNegativeInput, *count)
	}
	return *count, nil
}

// 被提供但未被结构使用的输入在明细中注明
func ignoredInputs(result *Result, in Input) []string {
	var notes []string
	if in.RevenueBasis != nil && result.RevenueBasis == nil {
		notes = append(notes, fmt.Sprintf("revenue %s", FormatMoney(*in.RevenueBasis)))
	}
	if in.ConversionCount != nil && result.ConversionCount == nil {
		notes = append(notes, fmt.Sprintf("%d %s", *in.ConversionCount, plural(*in.ConversionCount, "conversion")))
	}
	return notes
}

func plural(n int64, word string) string {
	if n == 1 {
		return word
	}
	return word + "s"
}
