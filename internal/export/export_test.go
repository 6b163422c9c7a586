package export

import (
	"bytes"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"pdvledger/backend/internal/domain"
)

func TestWriteIntervalReport(t *testing.T) {
	report := domain.IntervalReport{
		Start: "2024-01-01",
		End:   "2024-01-31",
		Summary: domain.Summary{
			Count:          1,
			SumTotal:       decimal.RequireFromString("12.5"),
			SumDiscount:    decimal.Zero,
			SumAddition:    decimal.Zero,
			CountCancelled: 0,
		},
		Sales: []domain.SaleWithRelations{{
			Sale: domain.Sale{
				ID:        7,
				DocModel:  65,
				Series:    "1",
				Number:    42,
				EmittedAt: time.Date(2024, 1, 10, 14, 0, 0, 0, time.UTC),
				Total:     decimal.RequireFromString("12.5"),
				FiscalKey: "KEY",
			},
			Items: []domain.SaleItem{
				{ID: 1, SaleID: 7, ProductCode: "A", ProductDescription: "Coffee", Quantity: decimal.RequireFromString("2"), UnitPrice: decimal.RequireFromString("5"), TotalPrice: decimal.RequireFromString("10")},
				{ID: 2, SaleID: 7, ProductCode: "B", ProductDescription: "Bread", Quantity: decimal.RequireFromString("1"), UnitPrice: decimal.RequireFromString("2.5"), TotalPrice: decimal.RequireFromString("2.5")},
			},
			Payments: []domain.SalePayment{{ID: 3, SaleID: 7, MethodCode: "01", MethodName: "Dinheiro", Amount: decimal.RequireFromString("12.5")}},
		}},
	}

	var buf bytes.Buffer
	if err := WriteIntervalReport(&buf, report); err != nil {
		t.Fatalf("write report: %v", err)
	}

	f, err := excelize.OpenReader(&buf)
	if err != nil {
		t.Fatalf("open workbook: %v", err)
	}
	defer f.Close()

	summary, err := f.GetRows(SheetSummary)
	if err != nil {
		t.Fatalf("summary rows: %v", err)
	}
	if len(summary) != 7 || summary[3][0] != "SumTotal" || summary[3][1] != "12.5" {
		t.Fatalf("unexpected summary sheet: %v", summary)
	}

	items, err := f.GetRows(SheetItems)
	if err != nil {
		t.Fatalf("item rows: %v", err)
	}
	if len(items) != 3 || items[1][3] != "Coffee" || items[2][0] != "7" {
		t.Fatalf("unexpected items sheet: %v", items)
	}

	payments, err := f.GetRows(SheetPayments)
	if err != nil {
		t.Fatalf("payment rows: %v", err)
	}
	if len(payments) != 2 || payments[1][2] != "01" {
		t.Fatalf("unexpected payments sheet: %v", payments)
	}
}

func TestFilename(t *testing.T) {
	if got := Filename(domain.IntervalReport{Start: "2024-01-01", End: "2024-01-02"}); got != "sales_2024-01-01_2024-01-02.xlsx" {
		t.Fatalf("unexpected filename %q", got)
	}
}
