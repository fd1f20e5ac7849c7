package constants

// 合作伙伴类型常量
const (
	PartnerTypeLocation     = "location"
	PartnerTypeReferral     = "referral"
	PartnerTypeChannel      = "channel"
	PartnerTypeRelationship = "relationship"
	PartnerTypeContractor   = "contractor"
)

// 佣金结构类型常量
const (
	StructureNone        = "none"
	StructureFlatFee     = "flat_fee"
	StructurePercentage  = "percentage"
	StructurePerReferral = "per_referral"
	StructureHybrid      = "hybrid"
)

// 收款方关联状态常量
const (
	PayeeStatusNotLinked = "not_linked"
	PayeeStatusPending   = "pending"
	PayeeStatusActive    = "active"
	PayeeStatusSuspended = "suspended"
)

// 佣金支付状态常量
const (
	CommissionStatusPending    = "pending"
	CommissionStatusProcessing = "processing"
	CommissionStatusPaid       = "paid"
	CommissionStatusFailed     = "failed"
)

// 佣金流水事件常量（非状态迁移的台账写入）
const (
	CommissionEventCreated      = "created"
	CommissionEventRecalculated = "recalculated"
	CommissionEventTransition   = "transition"
)

// 操作来源常量
const (
	OperatorAdmin     = "admin"
	OperatorBatch     = "batch"
	OperatorProcessor = "processor"
	OperatorSystem    = "system"
)

// 打款渠道常量
const (
	PayoutProviderManual = "manual"
	PayoutProviderStripe = "stripe"
)

// 打款回调事件结果常量
const (
	PayoutEventConfirmed = "confirmed"
	PayoutEventRejected  = "rejected"
)

// 异步队列名称
const (
	QueueDefault  = "default"
	QueueCritical = "critical"
)

// 异步任务类型
const (
	TaskCommissionBatch       = "commission:batch"
	TaskCommissionRequeue     = "commission:requeue"
	TaskCommissionPayoutEvent = "commission:payout_event"
)

// 批量计算结果分类
const (
	BatchOutcomeSucceeded = "succeeded"
	BatchOutcomeSkipped   = "skipped"
	BatchOutcomeFailed    = "failed"
)
