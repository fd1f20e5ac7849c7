package admin

import (
	"strings"
	"time"

	"github.com/partner-ledger/internal/http/response"

	"github.com/gin-gonic/gin"
)

// MarkPaidRequest 标记已付款请求，payment_date 缺省为当前时间
type MarkPaidRequest struct {
	PaymentDate *time.Time `json:"payment_date"`
}

// CommissionReasonRequest 带原因的状态变更请求
type CommissionReasonRequest struct {
	Reason string `json:"reason"`
}

// MarkCommissionProcessing 提交打款
func (h *Handler) MarkCommissionProcessing(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}
	record, err := h.CommissionService.MarkProcessing(c.Request.Context(), id, operatorMeta(c))
	if err != nil {
		respondSettlementError(c, err, record)
		return
	}
	requestLog(c).Infow("admin_commission_processing",
		"commission_id", record.ID,
		"commission_no", record.CommissionNo,
		"status", record.PaymentStatus,
	)
	response.Success(c, record)
}

// MarkCommissionPaid 标记已付款
func (h *Handler) MarkCommissionPaid(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}
	var req MarkPaidRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, response.CodeBadRequest, "error.bad_request", err)
			return
		}
	}
	record, err := h.CommissionService.MarkPaid(c.Request.Context(), id, req.PaymentDate, operatorMeta(c))
	if err != nil {
		respondSettlementError(c, err, nil)
		return
	}
	response.Success(c, record)
}

// MarkCommissionFailed 标记打款失败
func (h *Handler) MarkCommissionFailed(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}
	var req CommissionReasonRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "error.bad_request", err)
		return
	}
	record, err := h.CommissionService.MarkFailed(c.Request.Context(), id, strings.TrimSpace(req.Reason), operatorMeta(c))
	if err != nil {
		respondSettlementError(c, err, nil)
		return
	}
	response.Success(c, record)
}

// RetryCommission 失败记录回到待处理
func (h *Handler) RetryCommission(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}
	var req CommissionReasonRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, response.CodeBadRequest, "error.bad_request", err)
			return
		}
	}
	record, err := h.CommissionService.RetryFailed(c.Request.Context(), id, strings.TrimSpace(req.Reason), operatorMeta(c))
	if err != nil {
		respondSettlementError(c, err, nil)
		return
	}
	response.Success(c, record)
}
