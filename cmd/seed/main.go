package main

import (
	"context"
	"errors"
	"time"

	"github.com/partner-ledger/internal/app"
	"github.com/partner-ledger/internal/commission"
	"github.com/partner-ledger/internal/config"
	"github.com/partner-ledger/internal/constants"
	"github.com/partner-ledger/internal/logger"
	"github.com/partner-ledger/internal/models"
	"github.com/partner-ledger/internal/payout"
	"github.com/partner-ledger/internal/repository"
	"github.com/partner-ledger/internal/service"

	"github.com/shopspring/decimal"
)

type seedPartner struct {
	input   service.PartnerInput
	payeeID string
	basis   *decimal.Decimal
	count   *int64
}

func decimalPtr(v string) *decimal.Decimal {
	d := decimal.RequireFromString(v)
	return &d
}

func int64Ptr(v int64) *int64 {
	return &v
}

func main() {
	cfg := config.Load()
	logger.Init(cfg.Server.Mode, cfg.Log.ToLoggerOptions())
	stdLog := logger.StdLogger()
	if err := app.InitStorage(cfg); err != nil {
		stdLog.Fatalf("Failed to init database: %v", err)
	}

	registry := payout.NewRegistry(payout.NewManualProcessor())
	partnerRepo := repository.NewPartnerRepository(models.DB)
	partnerSvc := service.NewPartnerService(partnerRepo, registry)
	revenueSvc := service.NewRevenueInputService(repository.NewRevenueInputRepository(models.DB), partnerRepo)

	month := commission.PreviousMonth(time.Now().UTC())
	inactive := false
	partners := []seedPartner{
		{
			input: service.PartnerInput{
				PartnerCode: "LOC-001",
				Name:        "Downtown Kiosk",
				PartnerType: constants.PartnerTypeLocation,
				Structure: commission.StructureFields{
					Kind:          constants.StructureFlatFee,
					MonthlyAmount: decimalPtr("250"),
				},
			},
			payeeID: "manual-loc-001",
		},
		{
			input: service.PartnerInput{
				PartnerCode: "REF-001",
				Name:        "Harbor Referrals",
				PartnerType: constants.PartnerTypeReferral,
				Structure: commission.StructureFields{
					Kind:        constants.StructurePercentage,
					RatePercent: decimalPtr("5"),
				},
			},
			payeeID: "manual-ref-001",
			basis:   decimalPtr("10000"),
		},
		{
			input: service.PartnerInput{
				PartnerCode: "CHN-001",
				Name:        "Northwind Channel",
				PartnerType: constants.PartnerTypeChannel,
				Structure: commission.StructureFields{
					Kind:                constants.StructurePerReferral,
					AmountPerConversion: decimalPtr("12.50"),
				},
			},
			count: int64Ptr(18),
		},
		{
			input: service.PartnerInput{
				PartnerCode: "REL-001",
				Name:        "Summit Relationship",
				PartnerType: constants.PartnerTypeRelationship,
				Structure: commission.StructureFields{
					Kind:          constants.StructureHybrid,
					MonthlyAmount: decimalPtr("133.333"),
					RatePercent:   decimalPtr("2.5"),
				},
				IsActive: &inactive,
			},
			basis: decimalPtr("10000.004"),
		},
		{
			input: service.PartnerInput{
				PartnerCode: "CON-001",
				Name:        "Field Contractor",
				PartnerType: constants.PartnerTypeContractor,
				Structure:   commission.StructureFields{Kind: constants.StructureNone},
			},
		},
	}

	for _, sp := range partners {
		partner, err := partnerSvc.Create(sp.input)
		if errors.Is(err, service.ErrPartnerCodeExists) {
			stdLog.Printf("Partner already exists: %s", sp.input.PartnerCode)
			continue
		}
		if err != nil {
			stdLog.Printf("Failed to create partner %s: %v", sp.input.PartnerCode, err)
			continue
		}
		stdLog.Printf("Created partner: %s", partner.PartnerCode)

		if sp.payeeID != "" {
			if _, err := partnerSvc.SetPayoutLink(partner.ID, service.PayoutLinkInput{
				Provider: constants.PayoutProviderManual,
				PayeeID:  sp.payeeID,
				Status:   constants.PayeeStatusActive,
			}); err != nil {
				stdLog.Printf("Failed to link payee for %s: %v", partner.PartnerCode, err)
			}
		}
		if sp.basis == nil && sp.count == nil {
			continue
		}
		if _, err := revenueSvc.Upsert(context.Background(), service.RevenueInput{
			PartnerID:       partner.ID,
			Month:           month,
			RevenueBasis:    sp.basis,
			ConversionCount: sp.count,
			Source:          "seed",
		}); err != nil {
			stdLog.Printf("Failed to write revenue input for %s: %v", partner.PartnerCode, err)
		}
	}

	stdLog.Printf("Seed finished, revenue month %s", commission.MonthKey(month))
}
