package repository

import (
	"fmt"
	"strings"

	"gorm.io/gorm"
)

const likeEscapeChar = `\`

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// dialectName 获取数据库方言名称，默认按 sqlite 处理
func dialectName(db *gorm.DB) string {
	if db == nil || db.Dialector == nil {
		return "sqlite"
	}
	if name := strings.ToLower(strings.TrimSpace(db.Dialector.Name())); name != "" {
		return name
	}
	return "sqlite"
}

// keywordCondition 构建多列模糊匹配条件，关键字中的通配符按字面匹配
func keywordCondition(db *gorm.DB, keyword string, columns ...string) (string, []interface{}) {
	return keywordConditionByDialect(dialectName(db), keyword, columns...)
}

func keywordConditionByDialect(dialect, keyword string, columns ...string) (string, []interface{}) {
	operator := "LIKE"
	if dialect == "postgres" || dialect == "postgresql" {
		operator = "ILIKE"
	}
	pattern := "%" + likeEscaper.Replace(keyword) + "%"

	parts := make([]string, 0, len(columns))
	args := make([]interface{}, 0, len(columns))
	for _, column := range columns {
		column = strings.TrimSpace(column)
		if column == "" {
			continue
		}
		parts = append(parts, fmt.Sprintf("%s %s ? ESCAPE '%s'", column, operator, likeEscapeChar))
		args = append(args, pattern)
	}
	if len(parts) == 0 {
		return "", nil
	}
	return "(" + strings.Join(parts, " OR ") + ")", args
}
