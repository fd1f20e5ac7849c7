package repository

import (
	"time"

	"gorm.io/gorm"
)

// applyPagination 按页码截取结果，pageSize 非正时不分页（导出场景）
func applyPagination(query *gorm.DB, page, pageSize int) *gorm.DB {
	if query == nil || pageSize <= 0 {
		return query
	}
	if page < 1 {
		page = 1
	}
	return query.Limit(pageSize).Offset((page - 1) * pageSize)
}

// applyMonthRange 按月份闭区间过滤，月份均已归一化为当月 1 日
func applyMonthRange(query *gorm.DB, column string, from, to *time.Time) *gorm.DB {
	if from != nil {
		query = query.Where(column+" >= ?", from.UTC())
	}
	if to != nil {
		query = query.Where(column+" <= ?", to.UTC())
	}
	return query
}
