package admin

import (
	"strings"

	"github.com/partner-ledger/internal/commission"
	handlershared "github.com/partner-ledger/internal/http/handlers/shared"
	"github.com/partner-ledger/internal/http/response"
	"github.com/partner-ledger/internal/repository"
	"github.com/partner-ledger/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// PartnerRequest 创建/更新合作伙伴请求
type PartnerRequest struct {
	PartnerCode         string           `json:"partner_code" binding:"required"`
	Name                string           `json:"name" binding:"required"`
	Email               string           `json:"email"`
	PartnerType         string           `json:"partner_type" binding:"required"`
	StructureKind       string           `json:"structure_kind"`
	MonthlyAmount       *decimal.Decimal `json:"monthly_amount"`
	RatePercent         *decimal.Decimal `json:"rate_percent"`
	AmountPerConversion *decimal.Decimal `json:"amount_per_conversion"`
	PayoutProvider      string           `json:"payout_provider"`
	IsActive            *bool            `json:"is_active"`
}

func (r PartnerRequest) toInput() service.PartnerInput {
	return service.PartnerInput{
		PartnerCode: r.PartnerCode,
		Name:        r.Name,
		Email:       r.Email,
		PartnerType: r.PartnerType,
		Structure: commission.StructureFields{
			Kind:                r.StructureKind,
			MonthlyAmount:       r.MonthlyAmount,
			RatePercent:         r.RatePercent,
			AmountPerConversion: r.AmountPerConversion,
		},
		PayoutProvider: r.PayoutProvider,
		IsActive:       r.IsActive,
	}
}

// PayoutLinkRequest 收款方关联请求
type PayoutLinkRequest struct {
	Provider string `json:"provider"`
	PayeeID  string `json:"payee_id"`
	Status   string `json:"status" binding:"required"`
}

// PartnerActiveRequest 启停请求
type PartnerActiveRequest struct {
	IsActive *bool `json:"is_active" binding:"required"`
}

// ListPartners 合作伙伴列表
func (h *Handler) ListPartners(c *gin.Context) {
	page, pageSize := pageParams(c)
	rows, total, err := h.PartnerService.List(repository.PartnerListFilter{
		Page:          page,
		PageSize:      pageSize,
		PartnerType:   strings.TrimSpace(c.Query("partner_type")),
		StructureKind: strings.TrimSpace(c.Query("structure_kind")),
		PayeeStatus:   strings.TrimSpace(c.Query("payee_status")),
		IsActive:      handlershared.QueryBool(c, "is_active"),
		Keyword:       strings.TrimSpace(c.Query("keyword")),
	})
	if err != nil {
		respondError(c, response.CodeInternal, "error.fetch_failed", err)
		return
	}
	response.SuccessWithPage(c, rows, response.BuildPagination(page, pageSize, total))
}

// GetPartner 合作伙伴详情
func (h *Handler) GetPartner(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}
	partner, err := h.PartnerService.Get(id)
	if err != nil {
		respondServiceError(c, err, "error.fetch_failed")
		return
	}
	response.Success(c, partner)
}

// CreatePartner 创建合作伙伴
func (h *Handler) CreatePartner(c *gin.Context) {
	var req PartnerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "error.bad_request", err)
		return
	}
	partner, err := h.PartnerService.Create(req.toInput())
	if err != nil {
		respondServiceError(c, err, "error.save_failed")
		return
	}
	requestLog(c).Infow("admin_partner_created", "partner_id", partner.ID, "partner_code", partner.PartnerCode)
	response.Success(c, partner)
}

// UpdatePartner 更新合作伙伴
func (h *Handler) UpdatePartner(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}
	var req PartnerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "error.bad_request", err)
		return
	}
	partner, err := h.PartnerService.Update(id, req.toInput())
	if err != nil {
		respondServiceError(c, err, "error.save_failed")
		return
	}
	response.Success(c, partner)
}

// SetPartnerPayoutLink 关联收款方
func (h *Handler) SetPartnerPayoutLink(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}
	var req PayoutLinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "error.bad_request", err)
		return
	}
	partner, err := h.PartnerService.SetPayoutLink(id, service.PayoutLinkInput{
		Provider: req.Provider,
		PayeeID:  req.PayeeID,
		Status:   req.Status,
	})
	if err != nil {
		respondServiceError(c, err, "error.save_failed")
		return
	}
	requestLog(c).Infow("admin_partner_payout_linked",
		"partner_id", partner.ID,
		"provider", partner.PayoutProvider,
		"payee_status", partner.PayeeStatus,
	)
	response.Success(c, partner)
}

// SetPartnerActive 启停合作伙伴
func (h *Handler) SetPartnerActive(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}
	var req PartnerActiveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "error.bad_request", err)
		return
	}
	partner, err := h.PartnerService.SetActive(id, *req.IsActive)
	if err != nil {
		respondServiceError(c, err, "error.save_failed")
		return
	}
	response.Success(c, partner)
}
