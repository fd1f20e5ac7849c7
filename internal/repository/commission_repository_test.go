package repository

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/partner-ledger/internal/constants"
	"github.com/partner-ledger/internal/models"

	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

func setupLedgerRepositoryTest(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:ledger_repo_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	if err := models.Migrate(db); err != nil {
		t.Fatalf("auto migrate failed: %v", err)
	}
	return db
}

func createTestPartner(t *testing.T, db *gorm.DB, code string) *models.Partner {
	t.Helper()
	rate := decimal.NewFromInt(5)
	partner := &models.Partner{
		PartnerCode:   code,
		Name:          "Partner " + code,
		PartnerType:   constants.PartnerTypeReferral,
		StructureKind: constants.StructurePercentage,
		RatePercent:   &rate,
		PayeeStatus:   constants.PayeeStatusNotLinked,
		IsActive:      true,
	}
	if err := db.Create(partner).Error; err != nil {
		t.Fatalf("create partner failed: %v", err)
	}
	return partner
}

func newTestRecord(partnerID uint, month time.Time) *models.CommissionRecord {
	return &models.CommissionRecord{
		CommissionNo:       models.BuildCommissionNo(partnerID, month),
		PartnerID:          partnerID,
		CommissionMonth:    month,
		CalculationMethod:  constants.StructurePercentage,
		CommissionAmount:   models.NewMoneyFromDecimal(decimal.NewFromInt(1000)),
		CalculationDetails: "5% × $20,000.00 revenue = $1,000.00",
		PaymentStatus:      constants.CommissionStatusPending,
		CalculatedAt:       time.Now(),
	}
}

func TestCommissionRepositoryUniquePartnerMonth(t *testing.T) {
	db := setupLedgerRepositoryTest(t)
	repo := NewCommissionRepository(db)
	partner := createTestPartner(t, db, "P-UNIQ")
	month := time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC)

	if err := repo.Create(newTestRecord(partner.ID, month)); err != nil {
		t.Fatalf("create record failed: %v", err)
	}
	duplicate := newTestRecord(partner.ID, month)
	duplicate.CommissionNo = "CM-DUP"
	if err := repo.Create(duplicate); !errors.Is(err, gorm.ErrDuplicatedKey) {
		t.Fatalf("second record for same partner and month should violate unique index, got %v", err)
	}

	found, err := repo.GetByPartnerMonthForUpdate(partner.ID, month)
	if err != nil {
		t.Fatalf("get by partner month failed: %v", err)
	}
	if found == nil || found.CommissionNo != models.BuildCommissionNo(partner.ID, month) {
		t.Fatalf("unexpected record: %+v", found)
	}
	missing, err := repo.GetByPartnerMonthForUpdate(partner.ID, month.AddDate(0, 1, 0))
	if err != nil || missing != nil {
		t.Fatalf("missing month should return nil, nil; got %+v %v", missing, err)
	}
}

func TestCommissionRepositoryUpdateIfStatusIn(t *testing.T) {
	db := setupLedgerRepositoryTest(t)
	repo := NewCommissionRepository(db)
	partner := createTestPartner(t, db, "P-CAS")
	record := newTestRecord(partner.ID, time.Date(2025, time.April, 1, 0, 0, 0, 0, time.UTC))
	if err := repo.Create(record); err != nil {
		t.Fatalf("create record failed: %v", err)
	}

	affected, err := repo.UpdateIfStatusIn(record.ID,
		[]string{constants.CommissionStatusPending},
		map[string]interface{}{"payment_status": constants.CommissionStatusProcessing},
	)
	if err != nil || affected != 1 {
		t.Fatalf("first cas should win, affected=%d err=%v", affected, err)
	}
	affected, err = repo.UpdateIfStatusIn(record.ID,
		[]string{constants.CommissionStatusPending},
		map[string]interface{}{"payment_status": constants.CommissionStatusProcessing},
	)
	if err != nil || affected != 0 {
		t.Fatalf("second cas should lose, affected=%d err=%v", affected, err)
	}
}

func TestCommissionRepositoryListByMonthRange(t *testing.T) {
	db := setupLedgerRepositoryTest(t)
	repo := NewCommissionRepository(db)
	p1 := createTestPartner(t, db, "P-LIST1")
	p2 := createTestPartner(t, db, "P-LIST2")

	months := []time.Time{
		time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2025, time.February, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC),
	}
	for _, month := range months {
		if err := repo.Create(newTestRecord(p1.ID, month)); err != nil {
			t.Fatalf("create p1 record failed: %v", err)
		}
	}
	if err := repo.Create(newTestRecord(p2.ID, months[1])); err != nil {
		t.Fatalf("create p2 record failed: %v", err)
	}

	from, to := months[1], months[2]
	rows, total, err := repo.List(CommissionListFilter{PartnerID: p1.ID, MonthFrom: &from, MonthTo: &to, WithPartner: true})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if total != 2 || len(rows) != 2 {
		t.Fatalf("want 2 rows got total=%d len=%d", total, len(rows))
	}
	if !rows[0].CommissionMonth.Equal(months[2]) {
		t.Fatalf("rows should be ordered by month desc, got %s", rows[0].CommissionMonth)
	}
	if rows[0].Partner == nil || rows[0].Partner.ID != p1.ID {
		t.Fatalf("partner should be preloaded")
	}

	_, total, err = repo.List(CommissionListFilter{MonthFrom: &from, MonthTo: &from})
	if err != nil || total != 2 {
		t.Fatalf("february should hold two records across partners, total=%d err=%v", total, err)
	}
}

func TestCommissionRepositoryTransitions(t *testing.T) {
	db := setupLedgerRepositoryTest(t)
	repo := NewCommissionRepository(db)
	partner := createTestPartner(t, db, "P-TRANS")
	record := newTestRecord(partner.ID, time.Date(2025, time.May, 1, 0, 0, 0, 0, time.UTC))
	if err := repo.Create(record); err != nil {
		t.Fatalf("create record failed: %v", err)
	}
	for _, to := range []string{constants.CommissionStatusPending, constants.CommissionStatusProcessing} {
		if err := repo.CreateTransition(&models.CommissionTransition{
			CommissionRecordID: record.ID,
			CommissionNo:       record.CommissionNo,
			Event:              constants.CommissionEventTransition,
			ToStatus:           to,
			Operator:           constants.OperatorAdmin,
		}); err != nil {
			t.Fatalf("create transition failed: %v", err)
		}
	}
	rows, err := repo.ListTransitions(record.ID)
	if err != nil {
		t.Fatalf("list transitions failed: %v", err)
	}
	if len(rows) != 2 || rows[1].ToStatus != constants.CommissionStatusProcessing {
		t.Fatalf("unexpected transitions: %+v", rows)
	}
}

func TestRevenueInputRepositoryUpsertKeepsAbsence(t *testing.T) {
	db := setupLedgerRepositoryTest(t)
	repo := NewRevenueInputRepository(db)
	partner := createTestPartner(t, db, "P-REV")
	month := time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC)

	basis := decimal.RequireFromString("20000")
	if err := repo.Upsert(&models.PartnerRevenueInput{PartnerID: partner.ID, Month: month, RevenueBasis: &basis, Source: "manual"}); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}
	got, err := repo.Get(partner.ID, month)
	if err != nil || got == nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.RevenueBasis == nil || !got.RevenueBasis.Equal(basis) {
		t.Fatalf("revenue basis mismatch: %v", got.RevenueBasis)
	}
	if got.ConversionCount != nil {
		t.Fatalf("conversion count should stay absent")
	}

	count := int64(7)
	if err := repo.Upsert(&models.PartnerRevenueInput{PartnerID: partner.ID, Month: month, ConversionCount: &count, Source: "manual"}); err != nil {
		t.Fatalf("second upsert failed: %v", err)
	}
	got, err = repo.Get(partner.ID, month)
	if err != nil || got == nil {
		t.Fatalf("get after overwrite failed: %v", err)
	}
	if got.RevenueBasis != nil {
		t.Fatalf("overwrite should clear revenue basis, got %v", got.RevenueBasis)
	}
	if got.ConversionCount == nil || *got.ConversionCount != 7 {
		t.Fatalf("conversion count mismatch: %v", got.ConversionCount)
	}
}

func TestPartnerRepositoryListKeyword(t *testing.T) {
	db := setupLedgerRepositoryTest(t)
	repo := NewPartnerRepository(db)
	createTestPartner(t, db, "P-ALPHA")
	createTestPartner(t, db, "P-BETA")

	rows, total, err := repo.List(PartnerListFilter{Page: 1, PageSize: 10, Keyword: "ALPHA"})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if total != 1 || len(rows) != 1 || rows[0].PartnerCode != "P-ALPHA" {
		t.Fatalf("unexpected rows: total=%d rows=%+v", total, rows)
	}

	ids, err := repo.ListIDs()
	if err != nil || len(ids) != 2 || ids[0] > ids[1] {
		t.Fatalf("list ids should return ascending ids, got %v err=%v", ids, err)
	}
}
