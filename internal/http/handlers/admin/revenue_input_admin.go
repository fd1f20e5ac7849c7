package admin

import (
	"github.com/partner-ledger/internal/commission"
	handlershared "github.com/partner-ledger/internal/http/handlers/shared"
	"github.com/partner-ledger/internal/http/response"
	"github.com/partner-ledger/internal/repository"
	"github.com/partner-ledger/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// RevenueInputRequest 月度收入输入请求，缺省字段表示来源未提供
type RevenueInputRequest struct {
	PartnerID       uint             `json:"partner_id" binding:"required"`
	Month           string           `json:"month" binding:"required"`
	RevenueBasis    *decimal.Decimal `json:"revenue_basis"`
	ConversionCount *int64           `json:"conversion_count"`
	Source          string           `json:"source"`
}

// UpsertRevenueInput 写入月度收入输入
func (h *Handler) UpsertRevenueInput(c *gin.Context) {
	var req RevenueInputRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "error.bad_request", err)
		return
	}
	month, err := commission.ParseMonth(req.Month)
	if err != nil {
		respondError(c, response.CodeBadRequest, "error.month_invalid", nil)
		return
	}
	row, err := h.RevenueInputService.Upsert(c.Request.Context(), service.RevenueInput{
		PartnerID:       req.PartnerID,
		Month:           month,
		RevenueBasis:    req.RevenueBasis,
		ConversionCount: req.ConversionCount,
		Source:          req.Source,
	})
	if err != nil {
		respondServiceError(c, err, "error.save_failed")
		return
	}
	response.Success(c, row)
}

// ListRevenueInputs 月度收入输入列表
func (h *Handler) ListRevenueInputs(c *gin.Context) {
	page, pageSize := pageParams(c)
	from, to, ok := parseMonthRange(c)
	if !ok {
		return
	}
	rows, total, err := h.RevenueInputService.List(repository.RevenueInputListFilter{
		Page:      page,
		PageSize:  pageSize,
		PartnerID: handlershared.QueryUint(c, "partner_id"),
		MonthFrom: from,
		MonthTo:   to,
	})
	if err != nil {
		respondError(c, response.CodeInternal, "error.fetch_failed", err)
		return
	}
	response.SuccessWithPage(c, rows, response.BuildPagination(page, pageSize, total))
}
