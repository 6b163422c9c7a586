package export

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"pdvledger/backend/internal/domain"
)

const ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

const (
	SheetSummary  = "Summary"
	SheetSales    = "Sales"
	SheetItems    = "Items"
	SheetPayments = "Payments"
)

var (
	salesHeader    = []interface{}{"SaleID", "EmittedAt", "Model", "Series", "Number", "FiscalKey", "Total", "Discount", "Addition", "Cancelled", "CancellationKey"}
	itemsHeader    = []interface{}{"SaleID", "ItemID", "ProductCode", "Description", "Unit", "Quantity", "UnitPrice", "Discount", "Addition", "TotalPrice"}
	paymentsHeader = []interface{}{"SaleID", "PaymentID", "MethodCode", "MethodName", "Amount"}
)

// Filename is the attachment name for an interval workbook.
func Filename(report domain.IntervalReport) string {
	return fmt.Sprintf("sales_%s_%s.xlsx", report.Start, report.End)
}

// WriteIntervalReport renders the report as a workbook with one sheet each for
// the summary, sale headers, items and payments.
func WriteIntervalReport(w io.Writer, report domain.IntervalReport) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName("Sheet1", SheetSummary); err != nil {
		return err
	}
	for _, name := range []string{SheetSales, SheetItems, SheetPayments} {
		if _, err := f.NewSheet(name); err != nil {
			return err
		}
	}

	summaryRows := [][]interface{}{
		{"Start", report.Start},
		{"End", report.End},
		{"Count", report.Summary.Count},
		{"SumTotal", report.Summary.SumTotal.InexactFloat64()},
		{"SumDiscount", report.Summary.SumDiscount.InexactFloat64()},
		{"SumAddition", report.Summary.SumAddition.InexactFloat64()},
		{"CountCancelled", report.Summary.CountCancelled},
	}
	if err := writeRows(f, SheetSummary, summaryRows); err != nil {
		return err
	}

	sales := [][]interface{}{salesHeader}
	items := [][]interface{}{itemsHeader}
	payments := [][]interface{}{paymentsHeader}
	for _, sale := range report.Sales {
		sales = append(sales, []interface{}{
			sale.ID,
			sale.EmittedAt.Format("2006-01-02 15:04:05"),
			sale.DocModel,
			sale.Series,
			sale.Number,
			sale.FiscalKey,
			sale.Total.InexactFloat64(),
			sale.Discount.InexactFloat64(),
			sale.Addition.InexactFloat64(),
			sale.Cancelled,
			sale.CancellationKey,
		})
		for _, item := range sale.Items {
			items = append(items, []interface{}{
				sale.ID, item.ID, item.ProductCode, item.ProductDescription, item.UnitOfMeasure,
				item.Quantity.InexactFloat64(), item.UnitPrice.InexactFloat64(),
				item.Discount.InexactFloat64(), item.Addition.InexactFloat64(), item.TotalPrice.InexactFloat64(),
			})
		}
		for _, p := range sale.Payments {
			payments = append(payments, []interface{}{sale.ID, p.ID, p.MethodCode, p.MethodName, p.Amount.InexactFloat64()})
		}
	}
	if err := writeRows(f, SheetSales, sales); err != nil {
		return err
	}
	if err := writeRows(f, SheetItems, items); err != nil {
		return err
	}
	if err := writeRows(f, SheetPayments, payments); err != nil {
		return err
	}

	return f.Write(w)
}

func writeRows(f *excelize.File, sheet string, rows [][]interface{}) error {
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("write %s row %d: %w", sheet, i+1, err)
		}
	}
	return nil
}
