package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"pdvledger/backend/internal/domain"
	"pdvledger/backend/internal/store"
)

const saleColumns = `
	s.id, s.doc_type, s.doc_model, s.origin_series, s.series, s.origin_number, s.doc_number,
	s.tax_id, COALESCE(s.recipient_doc, ''), s.emission_ts, s.cancellation_ts,
	s.total, s.addition, s.discount, s.fiscal_key, COALESCE(s.cancellation_key, ''),
	COALESCE(s.artifact_path, ''), COALESCE(s.cancellation_artifact_path, ''), COALESCE(s.protocol_ref, ''),
	s.cancelled, s.created_at, s.updated_at`

const itemColumns = `
	i.id, i.sale_id, i.product_code, i.product_description, i.unit_of_measure,
	i.quantity, i.unit_price, i.discount, i.discount_ratio, i.addition, i.addition_ratio,
	i.total_price, i.created_at, i.updated_at`

const paymentColumns = `
	p.id, p.sale_id, p.method_code, p.method_name, p.amount, p.created_at, p.updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

// CreateSale writes the header, items and payments in one transaction and
// returns the generated sale id. Nothing is persisted unless every insert
// succeeds.
func (s *Store) CreateSale(ctx context.Context, sale domain.Sale, items []domain.SaleItem, payments []domain.SalePayment) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, store.Transaction("create sale", store.Storage("begin", err))
	}
	defer func() { _ = tx.Rollback() }()

	now := s.clock.Now().UTC()
	res, err := tx.ExecContext(ctx, `
		INSERT INTO sale (
			doc_type, doc_model, origin_series, series, origin_number, doc_number,
			tax_id, recipient_doc, emission_ts, cancellation_ts, total, addition, discount,
			fiscal_key, cancellation_key, artifact_path, cancellation_artifact_path, protocol_ref,
			cancelled, created_at, updated_at
		)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
	`, sale.DocType, sale.DocModel, sale.OriginSeries, sale.Series, sale.OriginNumber, sale.Number,
		sale.TaxID, nullIfEmpty(sale.RecipientDoc), sale.EmittedAt, nullTime(sale.CancelledAt),
		sale.Total, sale.Addition, sale.Discount,
		sale.FiscalKey, nullIfEmpty(sale.CancellationKey), nullIfEmpty(sale.ArtifactPath),
		nullIfEmpty(sale.CancellationArtifactPath), nullIfEmpty(sale.ProtocolRef),
		sale.Cancelled, now, now)
	if err != nil {
		return 0, createSaleError("insert sale", err)
	}
	saleID, err := res.LastInsertId()
	if err != nil {
		return 0, createSaleError("sale id", err)
	}

	for _, item := range items {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO sale_item (
				sale_id, product_code, product_description, unit_of_measure, quantity, unit_price,
				discount, discount_ratio, addition, addition_ratio, total_price, created_at, updated_at
			)
			VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)
		`, saleID, item.ProductCode, item.ProductDescription, item.UnitOfMeasure, item.Quantity, item.UnitPrice,
			item.Discount, item.DiscountRatio, item.Addition, item.AdditionRatio, item.TotalPrice, now, now)
		if err != nil {
			return 0, createSaleError("insert sale item", err)
		}
	}

	for _, payment := range payments {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO sale_payment (sale_id, method_code, method_name, amount, created_at, updated_at)
			VALUES (?,?,?,?,?,?)
		`, saleID, payment.MethodCode, payment.MethodName, payment.Amount, now, now)
		if err != nil {
			return 0, createSaleError("insert sale payment", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, createSaleError("commit", err)
	}
	return saleID, nil
}

func createSaleError(op string, err error) error {
	wrapped := store.Transaction("create sale", store.Storage(op, err))
	if isConstraintViolation(err) {
		return fmt.Errorf("%w: %w", store.ErrInvalidInput, wrapped)
	}
	return wrapped
}

func (s *Store) FindSaleByID(ctx context.Context, id int64) (*domain.Sale, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+saleColumns+` FROM sale s WHERE s.id = ?`, id)
	sale, err := scanSale(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, store.Storage("select sale", err)
	}
	return &sale, nil
}

func (s *Store) FindItemsBySale(ctx context.Context, saleID int64) ([]domain.SaleItem, error) {
	return s.queryItems(ctx, "select sale items", `
		SELECT `+itemColumns+`
		FROM sale_item i
		WHERE i.sale_id = ?
		ORDER BY i.id
	`, saleID)
}

func (s *Store) FindPaymentsBySale(ctx context.Context, saleID int64) ([]domain.SalePayment, error) {
	return s.queryPayments(ctx, "select sale payments", `
		SELECT `+paymentColumns+`
		FROM sale_payment p
		WHERE p.sale_id = ?
		ORDER BY p.id
	`, saleID)
}

// FindSalesByInterval loads the matching headers first, then attaches each
// sale's own items and payments with a bounded number of concurrent lookups.
func (s *Store) FindSalesByInterval(ctx context.Context, rng domain.DateRange) ([]domain.SaleWithRelations, error) {
	start, end := rng.Bounds()
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+saleColumns+`
		FROM sale s
		WHERE `+emissionDateFilter+`
		ORDER BY s.emission_ts DESC, s.id DESC
	`, start, end)
	if err != nil {
		return nil, store.Storage("select sales by interval", err)
	}

	sales := make([]domain.SaleWithRelations, 0, 32)
	for rows.Next() {
		sale, err := scanSale(rows)
		if err != nil {
			_ = rows.Close()
			return nil, store.Storage("scan sale", err)
		}
		sales = append(sales, domain.SaleWithRelations{Sale: sale})
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, store.Storage("select sales by interval", err)
	}
	_ = rows.Close()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(childFetchJobs)
	for i := range sales {
		idx := i
		g.Go(func() error {
			items, err := s.FindItemsBySale(gctx, sales[idx].ID)
			if err != nil {
				return err
			}
			payments, err := s.FindPaymentsBySale(gctx, sales[idx].ID)
			if err != nil {
				return err
			}
			sales[idx].Items = items
			sales[idx].Payments = payments
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return sales, nil
}

func (s *Store) FindItemsByInterval(ctx context.Context, rng domain.DateRange) ([]domain.SaleItem, error) {
	start, end := rng.Bounds()
	return s.queryItems(ctx, "select items by interval", `
		SELECT `+itemColumns+`
		FROM sale_item i
		JOIN sale s ON s.id = i.sale_id
		WHERE `+emissionDateFilter+`
		ORDER BY s.emission_ts DESC, i.id
	`, start, end)
}

func (s *Store) FindPaymentsByInterval(ctx context.Context, rng domain.DateRange) ([]domain.SalePayment, error) {
	start, end := rng.Bounds()
	return s.queryPayments(ctx, "select payments by interval", `
		SELECT `+paymentColumns+`
		FROM sale_payment p
		JOIN sale s ON s.id = p.sale_id
		WHERE `+emissionDateFilter+`
		ORDER BY s.emission_ts DESC, p.id
	`, start, end)
}

// CancelSale marks the sale cancelled. Items and payments are left as they
// are, and an already cancelled sale keeps its first cancellation.
func (s *Store) CancelSale(ctx context.Context, id int64, cancellation domain.Cancellation) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE sale
		SET cancelled = 1, cancellation_key = ?, cancellation_ts = ?,
			cancellation_artifact_path = ?, updated_at = ?
		WHERE id = ? AND cancelled = 0
	`, cancellation.Key, cancellation.CancelledAt, nullIfEmpty(cancellation.ArtifactPath), s.clock.Now().UTC(), id)
	if err != nil {
		return store.Storage("cancel sale", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return store.Storage("cancel sale", err)
	}
	if affected == 1 {
		return nil
	}

	var exists int
	err = s.db.QueryRowContext(ctx, `SELECT 1 FROM sale WHERE id = ?`, id).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	if err != nil {
		return store.Storage("cancel sale", err)
	}
	return store.ErrAlreadyCancelled
}

func (s *Store) queryItems(ctx context.Context, op string, query string, args ...any) ([]domain.SaleItem, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, store.Storage(op, err)
	}
	defer rows.Close()

	items := make([]domain.SaleItem, 0, 8)
	for rows.Next() {
		var item domain.SaleItem
		if err := rows.Scan(
			&item.ID, &item.SaleID, &item.ProductCode, &item.ProductDescription, &item.UnitOfMeasure,
			&item.Quantity, &item.UnitPrice, &item.Discount, &item.DiscountRatio, &item.Addition, &item.AdditionRatio,
			&item.TotalPrice, &item.CreatedAt, &item.UpdatedAt,
		); err != nil {
			return nil, store.Storage(op, err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, store.Storage(op, err)
	}
	return items, nil
}

func (s *Store) queryPayments(ctx context.Context, op string, query string, args ...any) ([]domain.SalePayment, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, store.Storage(op, err)
	}
	defer rows.Close()

	payments := make([]domain.SalePayment, 0, 4)
	for rows.Next() {
		var p domain.SalePayment
		if err := rows.Scan(&p.ID, &p.SaleID, &p.MethodCode, &p.MethodName, &p.Amount, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, store.Storage(op, err)
		}
		payments = append(payments, p)
	}
	if err := rows.Err(); err != nil {
		return nil, store.Storage(op, err)
	}
	return payments, nil
}

func scanSale(row rowScanner) (domain.Sale, error) {
	var sale domain.Sale
	var cancelledAt sql.NullTime
	err := row.Scan(
		&sale.ID, &sale.DocType, &sale.DocModel, &sale.OriginSeries, &sale.Series, &sale.OriginNumber, &sale.Number,
		&sale.TaxID, &sale.RecipientDoc, &sale.EmittedAt, &cancelledAt,
		&sale.Total, &sale.Addition, &sale.Discount, &sale.FiscalKey, &sale.CancellationKey,
		&sale.ArtifactPath, &sale.CancellationArtifactPath, &sale.ProtocolRef,
		&sale.Cancelled, &sale.CreatedAt, &sale.UpdatedAt,
	)
	if err != nil {
		return domain.Sale{}, err
	}
	sale.CancelledAt = timePtr(cancelledAt)
	return sale, nil
}
