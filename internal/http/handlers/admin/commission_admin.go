package admin

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/partner-ledger/internal/commission"
	handlershared "github.com/partner-ledger/internal/http/handlers/shared"
	"github.com/partner-ledger/internal/http/response"
	"github.com/partner-ledger/internal/models"
	"github.com/partner-ledger/internal/repository"
	"github.com/partner-ledger/internal/service"

	"github.com/gin-gonic/gin"
)

// CalculateCommissionRequest 单个合作伙伴计算请求
type CalculateCommissionRequest struct {
	PartnerID uint   `json:"partner_id" binding:"required"`
	Month     string `json:"month" binding:"required"`
}

// CalculateBatchRequest 批量计算请求，async 为 true 时入队异步执行
type CalculateBatchRequest struct {
	Month string `json:"month" binding:"required"`
	Async bool   `json:"async"`
}

// CalculateCommission 计算单个合作伙伴单月佣金
func (h *Handler) CalculateCommission(c *gin.Context) {
	var req CalculateCommissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "error.bad_request", err)
		return
	}
	month, err := commission.ParseMonth(req.Month)
	if err != nil {
		respondError(c, response.CodeBadRequest, "error.month_invalid", nil)
		return
	}
	outcome, err := h.CommissionService.CalculateOne(c.Request.Context(), req.PartnerID, month, operatorMeta(c))
	if err != nil {
		respondServiceError(c, err, "error.save_failed")
		return
	}
	response.Success(c, outcome)
}

// CalculateCommissionBatch 批量计算某月全部合作伙伴佣金
func (h *Handler) CalculateCommissionBatch(c *gin.Context) {
	var req CalculateBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "error.bad_request", err)
		return
	}
	month, err := commission.ParseMonth(req.Month)
	if err != nil {
		respondError(c, response.CodeBadRequest, "error.month_invalid", nil)
		return
	}
	if req.Async {
		if err := h.CommissionService.EnqueueBatch(month, operatorMeta(c).Operator); err != nil {
			respondServiceError(c, err, "error.save_failed")
			return
		}
		response.Success(c, gin.H{
			"month":  commission.MonthKey(month),
			"queued": true,
		})
		return
	}
	result, err := h.CommissionService.CalculateBatch(c.Request.Context(), month, operatorMeta(c))
	if err != nil {
		respondServiceError(c, err, "error.save_failed")
		return
	}
	requestLog(c).Infow("admin_commission_batch_done",
		"month", result.Month,
		"succeeded", len(result.Succeeded),
		"skipped", len(result.Skipped),
		"failed", len(result.Failed),
		"cancelled", result.Cancelled,
	)
	response.Success(c, result)
}

// ListCommissions 佣金台账列表
func (h *Handler) ListCommissions(c *gin.Context) {
	filter, ok := commissionFilterFromQuery(c)
	if !ok {
		return
	}
	rows, total, err := h.CommissionService.ListRecords(filter)
	if err != nil {
		respondError(c, response.CodeInternal, "error.fetch_failed", err)
		return
	}
	response.SuccessWithPage(c, rows, response.BuildPagination(filter.Page, filter.PageSize, total))
}

// ExportCommissions 导出佣金台账（csv / xlsx）
func (h *Handler) ExportCommissions(c *gin.Context) {
	filter, ok := commissionFilterFromQuery(c)
	if !ok {
		return
	}
	format, err := service.NormalizeExportFormat(c.Query("format"))
	if err != nil {
		respondServiceError(c, err, "error.bad_request")
		return
	}
	// 先写入缓冲区，出错时仍可返回 JSON 错误
	var buf bytes.Buffer
	if err := h.CommissionService.ExportRecords(filter, format, &buf); err != nil {
		respondServiceError(c, err, "error.fetch_failed")
		return
	}
	filename := service.ExportFilename(format, time.Now())
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", filename))
	c.Data(http.StatusOK, service.ExportContentType(format), buf.Bytes())
}

// GetCommission 台账详情
func (h *Handler) GetCommission(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}
	record, err := h.CommissionService.GetRecord(id)
	if err != nil {
		respondServiceError(c, err, "error.fetch_failed")
		return
	}
	response.Success(c, record)
}

// ListCommissionTransitions 台账流水
func (h *Handler) ListCommissionTransitions(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}
	rows, err := h.CommissionService.ListTransitions(id)
	if err != nil {
		respondServiceError(c, err, "error.fetch_failed")
		return
	}
	response.Success(c, rows)
}

func commissionFilterFromQuery(c *gin.Context) (repository.CommissionListFilter, bool) {
	page, pageSize := pageParams(c)
	from, to, ok := parseMonthRange(c)
	if !ok {
		return repository.CommissionListFilter{}, false
	}
	if month := strings.TrimSpace(c.Query("month")); month != "" {
		parsed, err := commission.ParseMonth(month)
		if err != nil {
			respondError(c, response.CodeBadRequest, "error.month_invalid", nil)
			return repository.CommissionListFilter{}, false
		}
		from, to = &parsed, &parsed
	}
	return repository.CommissionListFilter{
		Page:        page,
		PageSize:    pageSize,
		PartnerID:   handlershared.QueryUint(c, "partner_id"),
		Status:      strings.TrimSpace(c.Query("status")),
		Method:      strings.TrimSpace(c.Query("method")),
		MonthFrom:   from,
		MonthTo:     to,
		WithPartner: true,
	}, true
}

// respondSettlementError 打款提交失败时记录已转为 failed，结果未知时记录保持 processing，均连同记录一起返回
func respondSettlementError(c *gin.Context, err error, record *models.CommissionRecord) {
	if errors.Is(err, service.ErrPayoutOutcomeUnknown) && record != nil {
		requestLog(c).Warnw("admin_commission_payout_outcome_unknown", "error", err)
		response.ErrorWithData(c, response.CodeUnavailable, handlershared.Message("error.payout_outcome_unknown"), gin.H{
			"record": record,
			"error":  err.Error(),
		})
		return
	}
	if errors.Is(err, service.ErrPayoutSubmitFailed) && record != nil {
		requestLog(c).Warnw("admin_commission_payout_submit_failed", "error", err)
		response.ErrorWithData(c, response.CodeUnprocessable, handlershared.Message("error.payout_submit_failed"), gin.H{
			"record": record,
			"error":  err.Error(),
		})
		return
	}
	respondServiceError(c, err, "error.save_failed")
}
