package service

import (
	"fmt"
	"strings"

	"github.com/partner-ledger/internal/commission"
	"github.com/partner-ledger/internal/constants"
	"github.com/partner-ledger/internal/logger"
	"github.com/partner-ledger/internal/models"
	"github.com/partner-ledger/internal/payout"
	"github.com/partner-ledger/internal/repository"
)

var validPartnerTypes = map[string]struct{}{
	constants.PartnerTypeLocation:     {},
	constants.PartnerTypeReferral:     {},
	constants.PartnerTypeChannel:      {},
	constants.PartnerTypeRelationship: {},
	constants.PartnerTypeContractor:   {},
}

var validPayeeStatuses = map[string]struct{}{
	constants.PayeeStatusNotLinked: {},
	constants.PayeeStatusPending:   {},
	constants.PayeeStatusActive:    {},
	constants.PayeeStatusSuspended: {},
}

// PartnerService 合作伙伴登记服务
type PartnerService struct {
	repo    repository.PartnerRepository
	payouts *payout.Registry
}

// NewPartnerService 创建合作伙伴服务
func NewPartnerService(repo repository.PartnerRepository, payouts *payout.Registry) *PartnerService {
	return &PartnerService{repo: repo, payouts: payouts}
}

// PartnerInput 创建/更新合作伙伴输入
type PartnerInput struct {
	PartnerCode    string
	Name           string
	Email          string
	PartnerType    string
	Structure      commission.StructureFields
	PayoutProvider string
	IsActive       *bool
}

// PayoutLinkInput 收款方关联输入
type PayoutLinkInput struct {
	Provider string
	PayeeID  string
	Status   string
}

// Create 创建合作伙伴
func (s *PartnerService) Create(input PartnerInput) (*models.Partner, error) {
	partner := &models.Partner{
		PayeeStatus: constants.PayeeStatusNotLinked,
		IsActive:    true,
	}
	if err := s.apply(partner, input); err != nil {
		return nil, err
	}
	existing, err := s.repo.GetByCode(partner.PartnerCode)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrPartnerCodeExists
	}
	if err := s.repo.Create(partner); err != nil {
		if isUniqueViolation(err) {
			return nil, ErrPartnerCodeExists
		}
		return nil, err
	}
	logger.Infow("partner_created", "partner_id", partner.ID, "partner_code", partner.PartnerCode, "structure", partner.StructureKind)
	return partner, nil
}

// Update 更新合作伙伴资料与佣金结构
// 结构变更只影响之后的计算，已写入台账的记录保留当时的快照
func (s *PartnerService) Update(id uint, input PartnerInput) (*models.Partner, error) {
	partner, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	previousCode := partner.PartnerCode
	if err := s.apply(partner, input); err != nil {
		return nil, err
	}
	if partner.PartnerCode != previousCode {
		existing, err := s.repo.GetByCode(partner.PartnerCode)
		if err != nil {
			return nil, err
		}
		if existing != nil && existing.ID != partner.ID {
			return nil, ErrPartnerCodeExists
		}
	}
	if err := s.repo.Update(partner); err != nil {
		if isUniqueViolation(err) {
			return nil, ErrPartnerCodeExists
		}
		return nil, err
	}
	logger.Infow("partner_updated", "partner_id", partner.ID, "structure", partner.StructureKind)
	return partner, nil
}

// SetPayoutLink 设置收款方关联；not_linked 会清空收款方ID
func (s *PartnerService) SetPayoutLink(id uint, input PayoutLinkInput) (*models.Partner, error) {
	partner, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	status := strings.ToLower(strings.TrimSpace(input.Status))
	if _, ok := validPayeeStatuses[status]; !ok {
		return nil, fmt.Errorf("%w: unknown payee status %q", ErrPayoutLinkInvalid, input.Status)
	}
	payeeID := strings.TrimSpace(input.PayeeID)
	if status == constants.PayeeStatusNotLinked {
		payeeID = ""
	} else if payeeID == "" {
		return nil, fmt.Errorf("%w: payee id is required", ErrPayoutLinkInvalid)
	}
	if provider := strings.TrimSpace(input.Provider); provider != "" {
		resolved, err := s.resolveProvider(provider)
		if err != nil {
			return nil, err
		}
		partner.PayoutProvider = resolved
	}
	partner.PayeeID = payeeID
	partner.PayeeStatus = status
	if err := s.repo.Update(partner); err != nil {
		return nil, err
	}
	logger.Infow("partner_payout_link_updated",
		"partner_id", partner.ID,
		"provider", partner.PayoutProvider,
		"payee_status", partner.PayeeStatus,
	)
	return partner, nil
}

// SetActive 设置整月有效标记
func (s *PartnerService) SetActive(id uint, active bool) (*models.Partner, error) {
	partner, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	partner.IsActive = active
	if err := s.repo.Update(partner); err != nil {
		return nil, err
	}
	return partner, nil
}

// Get 获取合作伙伴
func (s *PartnerService) Get(id uint) (*models.Partner, error) {
	partner, err := s.repo.GetByID(id)
	if err != nil {
		return nil, err
	}
	if partner == nil {
		return nil, ErrPartnerNotFound
	}
	return partner, nil
}

// GetByCode 按编号获取合作伙伴
func (s *PartnerService) GetByCode(code string) (*models.Partner, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, ErrPartnerNotFound
	}
	partner, err := s.repo.GetByCode(code)
	if err != nil {
		return nil, err
	}
	if partner == nil {
		return nil, ErrPartnerNotFound
	}
	return partner, nil
}

// List 查询合作伙伴
func (s *PartnerService) List(filter repository.PartnerListFilter) ([]models.Partner, int64, error) {
	return s.repo.List(filter)
}

func (s *PartnerService) apply(partner *models.Partner, input PartnerInput) error {
	code := strings.TrimSpace(input.PartnerCode)
	name := strings.TrimSpace(input.Name)
	if code == "" || name == "" {
		return fmt.Errorf("%w: partner code and name are required", ErrPartnerInvalid)
	}
	partnerType := strings.ToLower(strings.TrimSpace(input.PartnerType))
	if _, ok := validPartnerTypes[partnerType]; !ok {
		return fmt.Errorf("%w: unknown partner type %q", ErrPartnerInvalid, input.PartnerType)
	}
	structure, err := commission.NewStructure(input.Structure)
	if err != nil {
		return err
	}
	provider, err := s.resolveProvider(input.PayoutProvider)
	if err != nil {
		return err
	}

	partner.PartnerCode = code
	partner.Name = name
	partner.Email = strings.TrimSpace(input.Email)
	partner.PartnerType = partnerType
	partner.ApplyStructure(structure)
	partner.PayoutProvider = provider
	if input.IsActive != nil {
		partner.IsActive = *input.IsActive
	}
	return nil
}

func (s *PartnerService) resolveProvider(name string) (string, error) {
	if s.payouts == nil {
		if strings.TrimSpace(name) == "" {
			return constants.PayoutProviderManual, nil
		}
		return strings.ToLower(strings.TrimSpace(name)), nil
	}
	processor, err := s.payouts.Get(name)
	if err != nil {
		return "", fmt.Errorf("%w: payout provider %q is not configured", ErrPayoutLinkInvalid, name)
	}
	return processor.Name(), nil
}
