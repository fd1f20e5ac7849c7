package commission

import (
	"fmt"

	"github.com/partner-ledger/internal/constants"
)

var transitions = map[string][]string{
	constants.CommissionStatusPending:    {constants.CommissionStatusProcessing},
	constants.CommissionStatusProcessing: {constants.CommissionStatusPaid, constants.CommissionStatusFailed},
	constants.CommissionStatusFailed:     {constants.CommissionStatusPending},
	constants.CommissionStatusPaid:       nil,
}

// CanTransition 判断状态迁移是否合法
func CanTransition(from, to string) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// ValidateTransition 校验状态迁移
func ValidateTransition(from, to string) error {
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return nil
}

// IsEditable 台账记录是否允许重算覆盖
func IsEditable(status string) bool {
	return status == constants.CommissionStatusPending || status == constants.CommissionStatusFailed
}

// IsTerminal 是否终态
func IsTerminal(status string) bool {
	return status == constants.CommissionStatusPaid
}

// EditableStatuses 允许重算的状态集合
func EditableStatuses() []string {
	return []string{constants.CommissionStatusPending, constants.CommissionStatusFailed}
}

// IsValidStatus 是否为已知状态
func IsValidStatus(status string) bool {
	_, ok := transitions[status]
	return ok
}
