package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"pdvledger/backend/internal/domain"
	"pdvledger/backend/internal/store"
)

var _ store.Repository = (*Store)(nil)

func newIntegrationStore(t *testing.T) *Store {
	t.Helper()
	databaseURL := os.Getenv("PDVLEDGER_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set PDVLEDGER_TEST_DATABASE_URL to run postgres integration test")
	}

	s, err := New(context.Background(), databaseURL)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})
	return s
}

func TestCreateSaleIsAtomicAndQueryable(t *testing.T) {
	s := newIntegrationStore(t)
	ctx := context.Background()

	// a far-future emission day keeps this test's rows out of real data
	stamp := time.Now().UnixNano()
	day := time.Date(2099, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, int(stamp%300))
	dayText := day.Format(domain.DateLayout)
	rng, _ := domain.ParseDateRange(dayText, dayText)

	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM sale_item WHERE sale_id IN (SELECT id FROM sale WHERE emission_ts::date = $1::date)`, dayText)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM sale_payment WHERE sale_id IN (SELECT id FROM sale WHERE emission_ts::date = $1::date)`, dayText)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM sale WHERE emission_ts::date = $1::date`, dayText)
	})

	sale := domain.Sale{
		DocModel:  65,
		Series:    "1",
		Number:    int(stamp % 100000),
		EmittedAt: day.Add(10 * time.Hour),
		Total:     decimal.RequireFromString("10.50"),
		Discount:  decimal.Zero,
		Addition:  decimal.Zero,
		FiscalKey: fmt.Sprintf("KEY-%d", stamp),
	}
	items := []domain.SaleItem{{
		ProductCode:        "IT-1",
		ProductDescription: "Integration item",
		Quantity:           decimal.RequireFromString("1"),
		UnitPrice:          decimal.RequireFromString("10.50"),
		TotalPrice:         decimal.RequireFromString("10.50"),
	}}

	_, err := s.CreateSale(ctx, sale, items, []domain.SalePayment{
		{MethodCode: "01", Amount: decimal.RequireFromString("5")},
		{MethodCode: "", Amount: decimal.RequireFromString("5.50")},
	})
	if !errors.Is(err, store.ErrTransactionFailure) {
		t.Fatalf("expected ErrTransactionFailure, got %v", err)
	}
	if summary, err := s.SummarizeInterval(ctx, rng); err != nil || summary.Count != 0 {
		t.Fatalf("expected rollback to leave no sale, got %+v (%v)", summary, err)
	}

	id, err := s.CreateSale(ctx, sale, items, []domain.SalePayment{{MethodCode: "01", Amount: decimal.RequireFromString("10.50")}})
	if err != nil {
		t.Fatalf("create sale: %v", err)
	}

	sales, err := s.FindSalesByInterval(ctx, rng)
	if err != nil {
		t.Fatalf("find by interval: %v", err)
	}
	if len(sales) != 1 || sales[0].ID != id || len(sales[0].Items) != 1 || len(sales[0].Payments) != 1 {
		t.Fatalf("unexpected interval result: %+v", sales)
	}

	if err := s.CancelSale(ctx, id, domain.Cancellation{Key: "CANC", CancelledAt: day.Add(11 * time.Hour)}); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if err := s.CancelSale(ctx, id, domain.Cancellation{Key: "AGAIN", CancelledAt: day.Add(12 * time.Hour)}); !errors.Is(err, store.ErrAlreadyCancelled) {
		t.Fatalf("expected ErrAlreadyCancelled, got %v", err)
	}

	summary, err := s.SummarizeInterval(ctx, rng)
	if err != nil {
		t.Fatalf("summarize: %v", err)
	}
	if summary.Count != 1 || summary.CountCancelled != 1 || !summary.SumTotal.Equal(decimal.RequireFromString("10.5")) {
		t.Fatalf("unexpected summary: %+v", summary)
	}
}

func TestFindOrCreateResumeUnderContention(t *testing.T) {
	s := newIntegrationStore(t)
	ctx := context.Background()

	code := "99"
	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM daily_resume WHERE method_code = $1`, code)
	})

	var wg sync.WaitGroup
	ids := make(chan string, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resume, err := s.FindOrCreateResume(ctx, code)
			if err != nil {
				t.Errorf("find or create: %v", err)
				return
			}
			ids <- resume.ID
		}()
	}
	wg.Wait()
	close(ids)

	seen := map[string]struct{}{}
	for id := range ids {
		seen[id] = struct{}{}
	}
	if len(seen) != 1 {
		t.Fatalf("expected a single resume row, got %d ids", len(seen))
	}

	for id := range seen {
		if err := s.IncrementResume(ctx, id, decimal.RequireFromString("13"), decimal.RequireFromString("5")); err != nil {
			t.Fatalf("increment: %v", err)
		}
		got, err := s.FindResumeByID(ctx, id)
		if err != nil {
			t.Fatalf("find resume: %v", err)
		}
		if !got.AmountSettled.Equal(decimal.RequireFromString("13")) || !got.AmountUnsettled.Equal(decimal.RequireFromString("5")) {
			t.Fatalf("unexpected totals: %+v", got)
		}
	}
}

func TestProductCatalogRoundTrip(t *testing.T) {
	s := newIntegrationStore(t)
	ctx := context.Background()

	code := fmt.Sprintf("IT-%d", time.Now().UnixNano())
	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM product WHERE code = $1`, code)
	})

	created, err := s.CreateProduct(ctx, domain.Product{
		Code:          code,
		Description:   "Integration coffee",
		UnitOfMeasure: "UN",
		UnitPrice:     decimal.RequireFromString("4.99"),
		Balance:       decimal.Zero,
		Active:        true,
	})
	if err != nil {
		t.Fatalf("create product: %v", err)
	}
	if _, err := s.CreateProduct(ctx, *created); !errors.Is(err, store.ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}

	after, err := s.AdjustProductBalance(ctx, created.ID, decimal.RequireFromString("-1.5"))
	if err != nil {
		t.Fatalf("adjust: %v", err)
	}
	if !after.Balance.Equal(decimal.RequireFromString("-1.5")) {
		t.Fatalf("expected balance -1.5, got %s", after.Balance)
	}

	if err := s.DeactivateProduct(ctx, created.ID); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	active, err := s.ListProducts(ctx, true)
	if err != nil {
		t.Fatalf("list active: %v", err)
	}
	for _, p := range active {
		if p.ID == created.ID {
			t.Fatalf("deactivated product listed as active")
		}
	}
	if _, err := s.AdjustProductBalance(ctx, -1, decimal.NewFromInt(1)); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
