package models

import "time"

// CommissionTransition 佣金台账流水（计算写入与状态迁移）
type CommissionTransition struct {
	ID                 uint      `gorm:"primarykey" json:"id"`                                 // 主键
	CommissionRecordID uint      `gorm:"not null;index" json:"commission_record_id"`           // 台账记录ID
	CommissionNo       string    `gorm:"type:varchar(32);not null;index" json:"commission_no"` // 佣金编号
	Event              string    `gorm:"type:varchar(20);not null;index" json:"event"`         // 事件（created/recalculated/transition）
	FromStatus         string    `gorm:"type:varchar(20)" json:"from_status"`                  // 原状态
	ToStatus           string    `gorm:"type:varchar(20);not null" json:"to_status"`           // 新状态
	Amount             Money     `gorm:"type:decimal(20,2);not null;default:0" json:"amount"`  // 当时金额
	Reason             string    `gorm:"type:varchar(500)" json:"reason"`                      // 原因
	Operator           string    `gorm:"type:varchar(32);not null" json:"operator"`            // 操作来源
	RequestID          string    `gorm:"type:varchar(64);index" json:"request_id"`             // 请求追踪ID
	CreatedAt          time.Time `gorm:"index" json:"created_at"`                              // 发生时间
}

// TableName 指定表名
func (CommissionTransition) TableName() string {
	return "commission_transitions"
}
