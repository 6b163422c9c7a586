package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"pdvledger/backend/internal/domain"
	"pdvledger/backend/internal/store"
)

const productColumns = `id, code, description, unit_of_measure, COALESCE(barcode, ''), unit_price, balance, active, created_at, updated_at`

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	now := s.clock.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO product (code, description, unit_of_measure, barcode, unit_price, balance, active, created_at, updated_at)
		VALUES (?,?,?,?,?,?,?,?,?)
	`, product.Code, product.Description, product.UnitOfMeasure, nullIfEmpty(product.Barcode),
		product.UnitPrice, product.Balance, product.Active, now, now)
	if err != nil {
		return nil, productWriteError("insert product", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, store.Storage("insert product id", err)
	}
	return s.FindProductByID(ctx, id)
}

func (s *Store) FindProductByID(ctx context.Context, id int64) (*domain.Product, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+productColumns+` FROM product WHERE id = ?`, id)
	return findProduct(row)
}

func (s *Store) FindProductByCode(ctx context.Context, code string) (*domain.Product, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+productColumns+` FROM product WHERE code = ?`, code)
	return findProduct(row)
}

// ListProducts orders by description, then id for equal descriptions.
func (s *Store) ListProducts(ctx context.Context, activeOnly bool) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+productColumns+`
		FROM product
		WHERE (? = 0 OR active = 1)
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

// UpdateProduct overwrites every mutable column of the row with product.ID.
func (s *Store) UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE product
		SET code = ?, description = ?, unit_of_measure = ?, barcode = ?,
			unit_price = ?, balance = ?, active = ?, updated_at = ?
		WHERE id = ?
	`, product.Code, product.Description, product.UnitOfMeasure, nullIfEmpty(product.Barcode),
		product.UnitPrice, product.Balance, product.Active, s.clock.Now().UTC(), product.ID)
	if err != nil {
		return nil, productWriteError("update product", err)
	}
	if err := requireAffected(res, "update product"); err != nil {
		return nil, err
	}
	return s.FindProductByID(ctx, product.ID)
}

func (s *Store) DeactivateProduct(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE product SET active = 0, updated_at = ? WHERE id = ?
	`, s.clock.Now().UTC(), id)
	if err != nil {
		return store.Storage("deactivate product", err)
	}
	return requireAffected(res, "deactivate product")
}

// AdjustProductBalance adds delta in place, so concurrent adjustments never
// overwrite each other.
func (s *Store) AdjustProductBalance(ctx context.Context, id int64, delta decimal.Decimal) (*domain.Product, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE product
		SET balance = ROUND(balance + ?, 4), updated_at = ?
		WHERE id = ?
	`, delta, s.clock.Now().UTC(), id)
	if err != nil {
		return nil, store.Storage("adjust product balance", err)
	}
	if err := requireAffected(res, "adjust product balance"); err != nil {
		return nil, err
	}
	return s.FindProductByID(ctx, id)
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
	if isUniqueViolation(err) {
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
