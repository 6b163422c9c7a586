package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"pdvledger/backend/internal/domain"
	"pdvledger/backend/internal/store"
)

const productColumns = `id, code, description, unit_of_measure, COALESCE(barcode, ''), unit_price, balance, active, created_at, updated_at`

// uniqueViolation is the SQLSTATE for unique_violation.
const uniqueViolation = "23505"

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	now := s.clock.Now().UTC()
	var id int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO product (code, description, unit_of_measure, barcode, unit_price, balance, active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$8)
		RETURNING id
	`, product.Code, product.Description, product.UnitOfMeasure, nullIfEmpty(product.Barcode),
		product.UnitPrice, product.Balance, product.Active, now).Scan(&id)
	if err != nil {
		return nil, productWriteError("insert product", err)
	}
	return s.FindProductByID(ctx, id)
}

func (s *Store) FindProductByID(ctx context.Context, id int64) (*domain.Product, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+productColumns+` FROM product WHERE id = $1`, id)
	return findProduct(row)
}

func (s *Store) FindProductByCode(ctx context.Context, code string) (*domain.Product, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+productColumns+` FROM product WHERE code = $1`, code)
	return findProduct(row)
}

func (s *Store) ListProducts(ctx context.Context, activeOnly bool) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+productColumns+`
		FROM product
		WHERE (NOT $1 OR active)
		ORDER BY description, id
	`, activeOnly)
	if err != nil {
		return nil, store.Storage("select products", err)
	}
	defer rows.Close()

	products := make([]domain.Product, 0)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, store.Storage("scan product", err)
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, store.Storage("select products", err)
	}
	return products, nil
}

func (s *Store) UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE product
		SET code = $2, description = $3, unit_of_measure = $4, barcode = $5,
			unit_price = $6, balance = $7, active = $8, updated_at = $9
		WHERE id = $1
	`, product.ID, product.Code, product.Description, product.UnitOfMeasure, nullIfEmpty(product.Barcode),
		product.UnitPrice, product.Balance, product.Active, s.clock.Now().UTC())
	if err != nil {
		return nil, productWriteError("update product", err)
	}
	if err := requireAffected(res, "update product"); err != nil {
		return nil, err
	}
	return s.FindProductByID(ctx, product.ID)
}

func (s *Store) DeactivateProduct(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `UPDATE product SET active = false, updated_at = $2 WHERE id = $1`, id, s.clock.Now().UTC())
	if err != nil {
		return store.Storage("deactivate product", err)
	}
	return requireAffected(res, "deactivate product")
}

func (s *Store) AdjustProductBalance(ctx context.Context, id int64, delta decimal.Decimal) (*domain.Product, error) {
	var p domain.Product
	err := s.db.QueryRowContext(ctx, `
		UPDATE product
		SET balance = balance + $2, updated_at = $3
		WHERE id = $1
		RETURNING `+productColumns,
		id, delta, s.clock.Now().UTC()).Scan(&p.ID, &p.Code, &p.Description, &p.UnitOfMeasure, &p.Barcode,
		&p.UnitPrice, &p.Balance, &p.Active, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, store.Storage("adjust product balance", err)
	}
	return &p, nil
}

func findProduct(row *sql.Row) (*domain.Product, error) {
	p, err := scanProduct(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, store.Storage("select product", err)
	}
	return &p, nil
}

func scanProduct(row rowScanner) (domain.Product, error) {
	var p domain.Product
	err := row.Scan(&p.ID, &p.Code, &p.Description, &p.UnitOfMeasure, &p.Barcode,
		&p.UnitPrice, &p.Balance, &p.Active, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func productWriteError(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("%w: product code: %w", store.ErrDuplicate, store.Storage(op, err))
	}
	return store.Storage(op, err)
}

func requireAffected(res sql.Result, op string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return store.Storage(op, err)
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}
