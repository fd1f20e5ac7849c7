package public

import (
	"strings"
	"time"

	"github.com/partner-ledger/internal/commission"
	handlershared "github.com/partner-ledger/internal/http/handlers/shared"
	"github.com/partner-ledger/internal/http/response"
	"github.com/partner-ledger/internal/models"
	"github.com/partner-ledger/internal/repository"

	"github.com/gin-gonic/gin"
)

// PortalCommission 合作伙伴门户可见的台账字段
type PortalCommission struct {
	CommissionNo       string       `json:"commission_no"`
	CommissionMonth    string       `json:"commission_month"`
	CalculationMethod  string       `json:"calculation_method"`
	CommissionAmount   models.Money `json:"commission_amount"`
	CalculationDetails string       `json:"calculation_details"`
	PaymentStatus      string       `json:"payment_status"`
	PaymentDate        *time.Time   `json:"payment_date"`
}

// PortalPartner 合作伙伴门户可见的基本信息
type PortalPartner struct {
	PartnerCode   string `json:"partner_code"`
	Name          string `json:"name"`
	PartnerType   string `json:"partner_type"`
	StructureKind string `json:"structure_kind"`
	PayeeStatus   string `json:"payee_status"`
}

// GetPortalPartner 合作伙伴门户基本信息
func (h *Handler) GetPortalPartner(c *gin.Context) {
	partner, err := h.PartnerService.GetByCode(c.Param("code"))
	if err != nil {
		respondServiceError(c, err, "error.fetch_failed")
		return
	}
	response.Success(c, PortalPartner{
		PartnerCode:   partner.PartnerCode,
		Name:          partner.Name,
		PartnerType:   partner.PartnerType,
		StructureKind: partner.StructureKind,
		PayeeStatus:   partner.PayeeStatus,
	})
}

// ListPortalCommissions 合作伙伴门户佣金记录（只读）
func (h *Handler) ListPortalCommissions(c *gin.Context) {
	partner, err := h.PartnerService.GetByCode(c.Param("code"))
	if err != nil {
		respondServiceError(c, err, "error.fetch_failed")
		return
	}
	page, pageSize := handlershared.PageParams(c)
	from, to, ok := handlershared.ParseMonthRange(c)
	if !ok {
		return
	}
	rows, total, err := h.CommissionService.ListRecords(repository.CommissionListFilter{
		Page:      page,
		PageSize:  pageSize,
		PartnerID: partner.ID,
		Status:    strings.TrimSpace(c.Query("status")),
		MonthFrom: from,
		MonthTo:   to,
	})
	if err != nil {
		respondError(c, response.CodeInternal, "error.fetch_failed", err)
		return
	}
	items := make([]PortalCommission, 0, len(rows))
	for i := range rows {
		items = append(items, toPortalCommission(&rows[i]))
	}
	response.SuccessWithPage(c, items, response.BuildPagination(page, pageSize, total))
}

func toPortalCommission(record *models.CommissionRecord) PortalCommission {
	return PortalCommission{
		CommissionNo:       record.CommissionNo,
		CommissionMonth:    commission.MonthKey(record.CommissionMonth),
		CalculationMethod:  record.CalculationMethod,
		CommissionAmount:   record.CommissionAmount,
		CalculationDetails: record.CalculationDetails,
		PaymentStatus:      record.PaymentStatus,
		PaymentDate:        record.PaymentDate,
	}
}
