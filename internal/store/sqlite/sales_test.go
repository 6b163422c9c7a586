package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"pdvledger/backend/internal/clock"
	"pdvledger/backend/internal/domain"
	"pdvledger/backend/internal/store"
)

func TestCreateSaleRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sale := sampleSale(jan(10, 14), "12.5")
	sale.RecipientDoc = "12345678909"
	sale.Discount = dec("1.25")
	items := sampleItems(3)
	payments := samplePayments("01", "03")

	id, err := s.CreateSale(ctx, sale, items, payments)
	if err != nil {
		t.Fatalf("create sale: %v", err)
	}

	got, err := s.FindSaleByID(ctx, id)
	if err != nil {
		t.Fatalf("find sale: %v", err)
	}
	if !got.Total.Equal(dec("12.5")) || !got.Discount.Equal(dec("1.25")) {
		t.Fatalf("money did not round-trip: total=%s discount=%s", got.Total, got.Discount)
	}
	if !got.EmittedAt.Equal(sale.EmittedAt) {
		t.Fatalf("emission time did not round-trip: %v vs %v", got.EmittedAt, sale.EmittedAt)
	}
	if got.RecipientDoc != sale.RecipientDoc || got.Cancelled || got.CancelledAt != nil {
		t.Fatalf("unexpected header: %+v", got)
	}

	gotItems, err := s.FindItemsBySale(ctx, id)
	if err != nil {
		t.Fatalf("find items: %v", err)
	}
	if len(gotItems) != 3 {
		t.Fatalf("expected 3 items, got %d", len(gotItems))
	}
	for i, item := range gotItems {
		if item.SaleID != id || item.ProductCode != items[i].ProductCode {
			t.Fatalf("item %d out of order or unowned: %+v", i, item)
		}
	}

	gotPayments, err := s.FindPaymentsBySale(ctx, id)
	if err != nil {
		t.Fatalf("find payments: %v", err)
	}
	if len(gotPayments) != 2 || gotPayments[0].MethodCode != "01" || gotPayments[1].MethodCode != "03" {
		t.Fatalf("payments out of order: %+v", gotPayments)
	}
}

func TestCreateSaleRollsBackOnPaymentFailure(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.CreateSale(ctx, sampleSale(jan(1, 9), "5"), sampleItems(1), samplePayments("01")); err != nil {
		t.Fatalf("seed sale: %v", err)
	}
	before := map[string]int{
		"sale":         countRows(t, s, "sale"),
		"sale_item":    countRows(t, s, "sale_item"),
		"sale_payment": countRows(t, s, "sale_payment"),
	}

	// the second payment violates the method_code check after the header,
	// both items and the first payment were written
	payments := samplePayments("01", "")
	_, err := s.CreateSale(ctx, sampleSale(jan(1, 10), "10"), sampleItems(2), payments)
	if !errors.Is(err, store.ErrTransactionFailure) {
		t.Fatalf("expected ErrTransactionFailure, got %v", err)
	}
	if !errors.Is(err, store.ErrStorageFailure) {
		t.Fatalf("expected storage cause in chain, got %v", err)
	}

	for table, n := range before {
		if got := countRows(t, s, table); got != n {
			t.Fatalf("expected %d rows in %s after rollback, got %d", n, table, got)
		}
	}
}

func TestCreateSaleRollsBackOnCancelledContext(t *testing.T) {
	s := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := s.CreateSale(ctx, sampleSale(jan(1, 9), "5"), sampleItems(1), samplePayments("01")); err == nil {
		t.Fatalf("expected error with cancelled context")
	}
	if got := countRows(t, s, "sale"); got != 0 {
		t.Fatalf("expected no sale rows, got %d", got)
	}
}

func TestFindSaleByIDNotFound(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.FindSaleByID(context.Background(), 404); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestIntervalIncludesBothBounds(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	inside := []time.Time{
		time.Date(2024, 1, 1, 0, 0, 0, 0, brt),
		time.Date(2024, 1, 15, 12, 0, 0, 0, brt),
		time.Date(2024, 1, 31, 23, 59, 59, 0, brt),
	}
	outside := []time.Time{
		time.Date(2023, 12, 31, 23, 59, 59, 0, brt),
		time.Date(2024, 2, 1, 0, 0, 0, 0, brt),
	}
	for _, at := range append(append([]time.Time{}, inside...), outside...) {
		if _, err := s.CreateSale(ctx, sampleSale(at, "5"), sampleItems(1), samplePayments("01")); err != nil {
			t.Fatalf("create sale at %v: %v", at, err)
		}
	}

	rng, err := domain.ParseDateRange("2024-01-01", "2024-01-31")
	if err != nil {
		t.Fatalf("parse range: %v", err)
	}
	sales, err := s.FindSalesByInterval(ctx, rng)
	if err != nil {
		t.Fatalf("find by interval: %v", err)
	}
	if len(sales) != len(inside) {
		t.Fatalf("expected %d sales in range, got %d", len(inside), len(sales))
	}
	for i := 1; i < len(sales); i++ {
		if sales[i].EmittedAt.After(sales[i-1].EmittedAt) {
			t.Fatalf("sales not ordered by emission desc: %v then %v", sales[i-1].EmittedAt, sales[i].EmittedAt)
		}
	}
	for _, sale := range sales {
		if len(sale.Items) != 1 || sale.Items[0].SaleID != sale.ID {
			t.Fatalf("items attributed to wrong sale: %+v", sale)
		}
		if len(sale.Payments) != 1 || sale.Payments[0].SaleID != sale.ID {
			t.Fatalf("payments attributed to wrong sale: %+v", sale)
		}
	}
}

func TestIntervalFiltersOnEmissionNotCreation(t *testing.T) {
	s := newTestStore(t, WithClock(clock.Fixed(time.Date(2024, 3, 1, 9, 0, 0, 0, brt))))
	ctx := context.Background()

	// back-dated: created in March, emitted in January
	if _, err := s.CreateSale(ctx, sampleSale(jan(20, 8), "5"), sampleItems(1), samplePayments("01")); err != nil {
		t.Fatalf("create sale: %v", err)
	}

	emissionDay, _ := domain.ParseDateRange("2024-01-20", "2024-01-20")
	creationDay, _ := domain.ParseDateRange("2024-03-01", "2024-03-01")

	if sales, err := s.FindSalesByInterval(ctx, emissionDay); err != nil || len(sales) != 1 {
		t.Fatalf("expected back-dated sale in its emission day, got %d (%v)", len(sales), err)
	}
	if sales, err := s.FindSalesByInterval(ctx, creationDay); err != nil || len(sales) != 0 {
		t.Fatalf("expected no sale on creation day, got %d (%v)", len(sales), err)
	}
}

func TestFlattenedIntervalOrdering(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	older, err := s.CreateSale(ctx, sampleSale(jan(5, 9), "10"), sampleItems(2), samplePayments("01", "04"))
	if err != nil {
		t.Fatalf("create older sale: %v", err)
	}
	newer, err := s.CreateSale(ctx, sampleSale(jan(6, 9), "5"), sampleItems(1), samplePayments("03"))
	if err != nil {
		t.Fatalf("create newer sale: %v", err)
	}

	rng, _ := domain.ParseDateRange("2024-01-01", "2024-01-31")
	items, err := s.FindItemsByInterval(ctx, rng)
	if err != nil {
		t.Fatalf("items by interval: %v", err)
	}
	if len(items) != 3 || items[0].SaleID != newer || items[1].SaleID != older || items[2].SaleID != older {
		t.Fatalf("unexpected item order: %+v", items)
	}
	if items[1].ID > items[2].ID {
		t.Fatalf("items of one sale should be ordered by id: %d then %d", items[1].ID, items[2].ID)
	}

	payments, err := s.FindPaymentsByInterval(ctx, rng)
	if err != nil {
		t.Fatalf("payments by interval: %v", err)
	}
	if len(payments) != 3 || payments[0].MethodCode != "03" || payments[1].MethodCode != "01" || payments[2].MethodCode != "04" {
		t.Fatalf("unexpected payment order: %+v", payments)
	}
}

func TestCancelSaleKeepsChildren(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, err := s.CreateSale(ctx, sampleSale(jan(3, 9), "10"), sampleItems(2), samplePayments("01"))
	if err != nil {
		t.Fatalf("create sale: %v", err)
	}

	cancelledAt := time.Date(2024, 1, 3, 9, 30, 0, 0, brt)
	err = s.CancelSale(ctx, id, domain.Cancellation{Key: "CANC-1", CancelledAt: cancelledAt, ArtifactPath: "/tmp/canc.xml"})
	if err != nil {
		t.Fatalf("cancel sale: %v", err)
	}

	got, err := s.FindSaleByID(ctx, id)
	if err != nil {
		t.Fatalf("find sale: %v", err)
	}
	if !got.Cancelled || got.CancellationKey != "CANC-1" || got.CancellationArtifactPath != "/tmp/canc.xml" {
		t.Fatalf("cancellation not recorded: %+v", got)
	}
	if got.CancelledAt == nil || !got.CancelledAt.Equal(cancelledAt) {
		t.Fatalf("cancellation time not recorded: %v", got.CancelledAt)
	}
	if !got.Total.Equal(dec("10")) {
		t.Fatalf("cancellation must not touch totals, got %s", got.Total)
	}

	items, _ := s.FindItemsBySale(ctx, id)
	payments, _ := s.FindPaymentsBySale(ctx, id)
	if len(items) != 2 || len(payments) != 1 {
		t.Fatalf("children changed after cancel: %d items, %d payments", len(items), len(payments))
	}
}

func TestCancelSaleTwiceIsRejected(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, err := s.CreateSale(ctx, sampleSale(jan(3, 9), "10"), sampleItems(1), samplePayments("01"))
	if err != nil {
		t.Fatalf("create sale: %v", err)
	}
	if err := s.CancelSale(ctx, id, domain.Cancellation{Key: "FIRST", CancelledAt: jan(3, 10)}); err != nil {
		t.Fatalf("first cancel: %v", err)
	}
	err = s.CancelSale(ctx, id, domain.Cancellation{Key: "SECOND", CancelledAt: jan(3, 11)})
	if !errors.Is(err, store.ErrAlreadyCancelled) {
		t.Fatalf("expected ErrAlreadyCancelled, got %v", err)
	}

	got, _ := s.FindSaleByID(ctx, id)
	if got.CancellationKey != "FIRST" {
		t.Fatalf("second cancel overwrote the key: %s", got.CancellationKey)
	}
}

func TestCancelSaleNotFound(t *testing.T) {
	s := newTestStore(t)
	err := s.CancelSale(context.Background(), 99, domain.Cancellation{Key: "X", CancelledAt: time.Now()})
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
