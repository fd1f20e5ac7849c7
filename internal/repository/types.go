package repository

import "time"

// PartnerListFilter 查询合作伙伴列表的过滤条件
type PartnerListFilter struct {
	Page          int
	PageSize      int
	PartnerType   string
	StructureKind string
	PayeeStatus   string
	IsActive      *bool
	Keyword       string
}

// RevenueInputListFilter 查询月度收入输入的过滤条件
type RevenueInputListFilter struct {
	Page      int
	PageSize  int
	PartnerID uint
	MonthFrom *time.Time
	MonthTo   *time.Time
}

// CommissionListFilter 查询佣金台账的过滤条件
type CommissionListFilter struct {
	Page        int
	PageSize    int
	PartnerID   uint
	Status      string
	Method      string
	MonthFrom   *time.Time
	MonthTo     *time.Time
	WithPartner bool
}
