package service

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/partner-ledger/internal/commission"
	"github.com/partner-ledger/internal/models"
	"github.com/partner-ledger/internal/repository"

	"github.com/xuri/excelize/v2"
)

const (
	ExportFormatCSV  = "csv"
	ExportFormatXLSX = "xlsx"

	exportBatchSize       = 500
	defaultExportMaxRows  = 10000
	exportSheetName       = "Commissions"
	exportDefaultSheet    = "Sheet1"
	exportColumnWidthChar = 18
)

var exportHeaders = []string{
	"commission_no",
	"partner_id",
	"partner_code",
	"partner_name",
	"commission_month",
	"calculation_method",
	"revenue_basis",
	"conversion_count",
	"commission_amount",
	"payment_status",
	"payment_date",
	"processor_ref",
	"calculation_details",
}

// NormalizeExportFormat 校验导出格式
func NormalizeExportFormat(format string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", ExportFormatCSV:
		return ExportFormatCSV, nil
	case ExportFormatXLSX, "excel":
		return ExportFormatXLSX, nil
	default:
		return "", ErrExportFormatInvalid
	}
}

// ExportContentType 导出文件的 Content-Type
func ExportContentType(format string) string {
	if format == ExportFormatXLSX {
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	return "text/csv; charset=utf-8"
}

// ExportFilename 导出文件名
func ExportFilename(format string, now time.Time) string {
	return fmt.Sprintf("commissions_%s.%s", now.Format("20060102_150405"), format)
}

// ExportRecords 按过滤条件导出台账记录
func (s *CommissionService) ExportRecords(filter repository.CommissionListFilter, format string, w io.Writer) error {
	format, err := NormalizeExportFormat(format)
	if err != nil {
		return err
	}
	maxRows := s.opts.ExportMaxRows
	if maxRows <= 0 {
		maxRows = defaultExportMaxRows
	}
	filter.WithPartner = true
	filter.Page = 1
	filter.PageSize = exportBatchSize

	rows, total, err := s.ListRecords(filter)
	if err != nil {
		return err
	}
	if total > int64(maxRows) {
		return fmt.Errorf("%w: %d rows exceed limit %d", ErrExportTooLarge, total, maxRows)
	}

	next := func() ([]models.CommissionRecord, error) {
		filter.Page++
		batch, _, err := s.ListRecords(filter)
		return batch, err
	}

	if format == ExportFormatXLSX {
		return writeCommissionXLSX(w, rows, next)
	}
	return writeCommissionCSV(w, rows, next)
}

func writeCommissionCSV(w io.Writer, first []models.CommissionRecord, next func() ([]models.CommissionRecord, error)) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(exportHeaders); err != nil {
		return err
	}
	batch := first
	for len(batch) > 0 {
		for i := range batch {
			if err := writer.Write(commissionExportRow(&batch[i])); err != nil {
				return err
			}
		}
		writer.Flush()
		if err := writer.Error(); err != nil {
			return err
		}
		if len(batch) < exportBatchSize {
			break
		}
		var err error
		if batch, err = next(); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func writeCommissionXLSX(w io.Writer, first []models.CommissionRecord, next func() ([]models.CommissionRecord, error)) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(exportDefaultSheet, exportSheetName); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E0E0E0"}, Pattern: 1},
	})
	if err != nil {
		return fmt.Errorf("create header style: %w", err)
	}

	header := make([]interface{}, 0, len(exportHeaders))
	for _, h := range exportHeaders {
		header = append(header, h)
	}
	if err := f.SetSheetRow(exportSheetName, "A1", &header); err != nil {
		return err
	}
	lastCol, err := excelize.ColumnNumberToName(len(exportHeaders))
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(exportSheetName, "A1", lastCol+"1", headerStyle); err != nil {
		return err
	}

	rowIdx := 2
	batch := first
	for len(batch) > 0 {
		for i := range batch {
			cell, err := excelize.CoordinatesToCellName(1, rowIdx)
			if err != nil {
				return err
			}
			values := commissionExportRow(&batch[i])
			row := make([]interface{}, 0, len(values))
			for _, v := range values {
				row = append(row, v)
			}
			if err := f.SetSheetRow(exportSheetName, cell, &row); err != nil {
				return err
			}
			rowIdx++
		}
		if len(batch) < exportBatchSize {
			break
		}
		if batch, err = next(); err != nil {
			return err
		}
	}

	if err := f.SetColWidth(exportSheetName, "A", lastCol, exportColumnWidthChar); err != nil {
		return err
	}
	_, err = f.WriteTo(w)
	return err
}

func commissionExportRow(record *models.CommissionRecord) []string {
	var partnerCode, partnerName string
	if record.Partner != nil {
		partnerCode = record.Partner.PartnerCode
		partnerName = record.Partner.Name
	}
	revenueBasis := ""
	if record.RevenueBasis != nil {
		revenueBasis = record.RevenueBasis.String()
	}
	conversionCount := ""
	if record.ConversionCount != nil {
		conversionCount = strconv.FormatInt(*record.ConversionCount, 10)
	}
	paymentDate := ""
	if record.PaymentDate != nil {
		paymentDate = record.PaymentDate.UTC().Format(time.RFC3339)
	}
	return []string{
		record.CommissionNo,
		strconv.FormatUint(uint64(record.PartnerID), 10),
		partnerCode,
		partnerName,
		commission.MonthKey(record.CommissionMonth),
		record.CalculationMethod,
		revenueBasis,
		conversionCount,
		record.CommissionAmount.String(),
		record.PaymentStatus,
		paymentDate,
		record.ProcessorRef,
		record.CalculationDetails,
	}
}
