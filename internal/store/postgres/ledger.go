package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"pdvledger/backend/internal/clock"
	"pdvledger/backend/internal/domain"
	"pdvledger/backend/internal/store"
)

const childFetchJobs = 8

const emissionDateFilter = `s.emission_ts::date BETWEEN $1::date AND $2::date`

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

const paymentColumns = `p.id, p.sale_id, p.method_code, p.method_name, p.amount, p.created_at, p.updated_at`

const resumeColumns = `id, method_code, amount_settled, amount_unsettled, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *Store) CreateSale(ctx context.Context, sale domain.Sale, items []domain.SaleItem, payments []domain.SalePayment) (int64, error) {
	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return 0, store.Transaction("create sale", store.Storage("begin", err))
	}
	defer func() { _ = pgTx.Rollback() }()

	now := s.clock.Now().UTC()
	var saleID int64
	err = pgTx.QueryRowContext(ctx, `
		INSERT INTO sale (
			doc_type, doc_model, origin_series, series, origin_number, doc_number,
			tax_id, recipient_doc, emission_ts, cancellation_ts, total, addition, discount,
			fiscal_key, cancellation_key, artifact_path, cancellation_artifact_path, protocol_ref,
			cancelled, created_at, updated_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$20)
		RETURNING id
	`, sale.DocType, sale.DocModel, sale.OriginSeries, sale.Series, sale.OriginNumber, sale.Number,
		sale.TaxID, nullIfEmpty(sale.RecipientDoc), sale.EmittedAt, nullTime(sale.CancelledAt),
		sale.Total, sale.Addition, sale.Discount,
		sale.FiscalKey, nullIfEmpty(sale.CancellationKey), nullIfEmpty(sale.ArtifactPath),
		nullIfEmpty(sale.CancellationArtifactPath), nullIfEmpty(sale.ProtocolRef),
		sale.Cancelled, now).Scan(&saleID)
	if err != nil {
		return 0, createSaleError("insert sale", err)
	}

	for _, item := range items {
		_, err := pgTx.ExecContext(ctx, `
			INSERT INTO sale_item (
				sale_id, product_code, product_description, unit_of_measure, quantity, unit_price,
				discount, discount_ratio, addition, addition_ratio, total_price, created_at, updated_at
			)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$12)
		`, saleID, item.ProductCode, item.ProductDescription, item.UnitOfMeasure, item.Quantity, item.UnitPrice,
			item.Discount, item.DiscountRatio, item.Addition, item.AdditionRatio, item.TotalPrice, now)
		if err != nil {
			return 0, createSaleError("insert sale item", err)
		}
	}

	for _, payment := range payments {
		_, err := pgTx.ExecContext(ctx, `
			INSERT INTO sale_payment (sale_id, method_code, method_name, amount, created_at, updated_at)
			VALUES ($1,$2,$3,$4,$5,$5)
		`, saleID, payment.MethodCode, payment.MethodName, payment.Amount, now)
		if err != nil {
			return 0, createSaleError("insert sale payment", err)
		}
	}

	if err := pgTx.Commit(); err != nil {
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
	sale, err := scanSale(s.db.QueryRowContext(ctx, `SELECT `+saleColumns+` FROM sale s WHERE s.id = $1`, id))
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
		SELECT `+itemColumns+` FROM sale_item i WHERE i.sale_id = $1 ORDER BY i.id
	`, saleID)
}

func (s *Store) FindPaymentsBySale(ctx context.Context, saleID int64) ([]domain.SalePayment, error) {
	return s.queryPayments(ctx, "select sale payments", `
		SELECT `+paymentColumns+` FROM sale_payment p WHERE p.sale_id = $1 ORDER BY p.id
	`, saleID)
}

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

func (s *Store) CancelSale(ctx context.Context, id int64, cancellation domain.Cancellation) error {
	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return store.Storage("begin cancel sale", err)
	}
	defer func() { _ = pgTx.Rollback() }()

	var cancelled bool
	err = pgTx.QueryRowContext(ctx, `SELECT cancelled FROM sale WHERE id = $1 FOR UPDATE`, id).Scan(&cancelled)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.ErrNotFound
		}
		return store.Storage("select sale for cancel", err)
	}
	if cancelled {
		return store.ErrAlreadyCancelled
	}

	_, err = pgTx.ExecContext(ctx, `
		UPDATE sale
		SET cancelled = true, cancellation_key = $2, cancellation_ts = $3,
			cancellation_artifact_path = $4, updated_at = now()
		WHERE id = $1
	`, id, cancellation.Key, cancellation.CancelledAt, nullIfEmpty(cancellation.ArtifactPath))
	if err != nil {
		return store.Storage("cancel sale", err)
	}
	if err := pgTx.Commit(); err != nil {
		return store.Storage("commit cancel sale", err)
	}
	return nil
}

func (s *Store) SummarizeInterval(ctx context.Context, rng domain.DateRange) (domain.Summary, error) {
	start, end := rng.Bounds()
	var summary domain.Summary
	err := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COALESCE(SUM(s.total), 0),
			COALESCE(SUM(s.discount), 0),
			COALESCE(SUM(s.addition), 0),
			COUNT(*) FILTER (WHERE s.cancelled)
		FROM sale s
		WHERE `+emissionDateFilter,
		start, end,
	).Scan(&summary.Count, &summary.SumTotal, &summary.SumDiscount, &summary.SumAddition, &summary.CountCancelled)
	if err != nil {
		return domain.Summary{}, store.Storage("summarize interval", err)
	}
	return summary, nil
}

// FindOrCreateResume serializes callers on a transaction-scoped advisory lock
// keyed by method code and day, so at most one row exists per pair.
func (s *Store) FindOrCreateResume(ctx context.Context, methodCode string) (*domain.DailyResume, error) {
	now := s.clock.Now()
	dayStart := clock.StartOfDay(now)

	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, store.Storage("begin find or create resume", err)
	}
	defer func() { _ = pgTx.Rollback() }()

	lockKey := methodCode + "|" + dayStart.Format(domain.DateLayout)
	if _, err := pgTx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, lockKey); err != nil {
		return nil, store.Storage("lock resume", err)
	}

	resume, err := scanResume(pgTx.QueryRowContext(ctx, `
		SELECT `+resumeColumns+`
		FROM daily_resume
		WHERE method_code = $1 AND created_at >= $2
		ORDER BY created_at
		LIMIT 1
	`, methodCode, dayStart.UnixMilli()))
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, store.Storage("select today resume", err)
	}
	if errors.Is(err, sql.ErrNoRows) {
		nowMs := now.UnixMilli()
		resume = domain.DailyResume{
			ID:              uuid.NewString(),
			MethodCode:      methodCode,
			AmountSettled:   decimal.Zero,
			AmountUnsettled: decimal.Zero,
			CreatedAt:       time.UnixMilli(nowMs),
			UpdatedAt:       time.UnixMilli(nowMs),
		}
		_, err = pgTx.ExecContext(ctx, `
			INSERT INTO daily_resume (id, method_code, amount_settled, amount_unsettled, created_at, updated_at)
			VALUES ($1,$2,0,0,$3,$3)
		`, resume.ID, resume.MethodCode, nowMs)
		if err != nil {
			return nil, store.Storage("insert resume", err)
		}
	}

	if err := pgTx.Commit(); err != nil {
		return nil, store.Storage("commit find or create resume", err)
	}
	return &resume, nil
}

func (s *Store) FindResumeByID(ctx context.Context, id string) (*domain.DailyResume, error) {
	resume, err := scanResume(s.db.QueryRowContext(ctx, `SELECT `+resumeColumns+` FROM daily_resume WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, store.Storage("select resume", err)
	}
	return &resume, nil
}

func (s *Store) IncrementResume(ctx context.Context, id string, settled decimal.Decimal, unsettled decimal.Decimal) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE daily_resume
		SET amount_settled = amount_settled + $2,
			amount_unsettled = amount_unsettled + $3,
			updated_at = $4
		WHERE id = $1
	`, id, settled, unsettled, s.clock.Now().UnixMilli())
	if err != nil {
		return store.Storage("increment resume", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return store.Storage("increment resume", err)
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) ListTodayResumes(ctx context.Context) ([]domain.DailyResume, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+resumeColumns+`
		FROM daily_resume
		WHERE created_at >= $1
		ORDER BY method_code, created_at
	`, clock.StartOfDay(s.clock.Now()).UnixMilli())
	if err != nil {
		return nil, store.Storage("select today resumes", err)
	}
	defer rows.Close()

	resumes := make([]domain.DailyResume, 0, 8)
	for rows.Next() {
		resume, err := scanResume(rows)
		if err != nil {
			return nil, store.Storage("scan resume", err)
		}
		resumes = append(resumes, resume)
	}
	if err := rows.Err(); err != nil {
		return nil, store.Storage("select today resumes", err)
	}
	return resumes, nil
}

func (s *Store) PurgeResumesOlderThan(ctx context.Context, days int) (int64, error) {
	if days < 0 {
		return 0, store.ErrInvalidInput
	}
	cutoff := s.clock.Now().AddDate(0, 0, -days).UnixMilli()
	res, err := s.db.ExecContext(ctx, `DELETE FROM daily_resume WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, store.Storage("purge resumes", err)
	}
	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, store.Storage("purge resumes", err)
	}
	return deleted, nil
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

func scanResume(row rowScanner) (domain.DailyResume, error) {
	var r domain.DailyResume
	var createdMs, updatedMs int64
	if err := row.Scan(&r.ID, &r.MethodCode, &r.AmountSettled, &r.AmountUnsettled, &createdMs, &updatedMs); err != nil {
		return domain.DailyResume{}, err
	}
	r.CreatedAt = time.UnixMilli(createdMs)
	r.UpdatedAt = time.UnixMilli(updatedMs)
	return r, nil
}
