package sqlite

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"pdvledger/backend/internal/domain"
	"pdvledger/backend/internal/store"
)

var brt = time.FixedZone("BRT", -3*60*60)

func newTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	s, err := Open(context.Background(), MemoryPath, opts...)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func dec(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func sampleSale(emittedAt time.Time, total string) domain.Sale {
	return domain.Sale{
		DocType:   1,
		DocModel:  65,
		Series:    "1",
		Number:    100,
		TaxID:     "12345678000199",
		EmittedAt: emittedAt,
		Total:     dec(total),
		Discount:  dec("0"),
		Addition:  dec("0"),
		FiscalKey: "35240112345678000199650010000001001000000010",
	}
}

func sampleItems(n int) []domain.SaleItem {
	items := make([]domain.SaleItem, 0, n)
	for i := 0; i < n; i++ {
		items = append(items, domain.SaleItem{
			ProductCode:        "P" + string(rune('A'+i)),
			ProductDescription: "Product " + string(rune('A'+i)),
			UnitOfMeasure:      "UN",
			Quantity:           dec("1"),
			UnitPrice:          dec("5"),
			TotalPrice:         dec("5"),
		})
	}
	return items
}

func samplePayments(codes ...string) []domain.SalePayment {
	payments := make([]domain.SalePayment, 0, len(codes))
	for _, code := range codes {
		payments = append(payments, domain.SalePayment{MethodCode: code, MethodName: "test", Amount: dec("5")})
	}
	return payments
}

func countRows(t *testing.T, s *Store, table string) int {
	t.Helper()
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM ` + table).Scan(&n); err != nil {
		t.Fatalf("count %s: %v", table, err)
	}
	return n
}

// mutableClock lets a test move time across a day boundary.
type mutableClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *mutableClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *mutableClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func jan(day int, hour int) time.Time {
	return time.Date(2024, time.January, day, hour, 0, 0, 0, brt)
}
var _ store.Repository = (*Store)(nil)
