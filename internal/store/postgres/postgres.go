package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"pdvledger/backend/internal/clock"
	"pdvledger/backend/internal/domain"
	"pdvledger/backend/internal/store"
)

type Store struct {
	db    *sql.DB
	clock clock.Clock

	initMu      sync.Mutex
	initialized bool
}

type Option func(*Store)

func WithClock(c clock.Clock) Option {
	return func(s *Store) {
		if c != nil {
			s.clock = c
		}
	}
}

func New(ctx context.Context, databaseURL string, opts ...Option) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("%w: open: %w", store.ErrInitialization, err)
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: ping: %w", store.ErrInitialization, err)
	}

	s := &Store{db: db, clock: clock.System{}}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Ping(ctx context.Context) error {
	return store.Storage("ping", s.db.PingContext(ctx))
}

func (s *Store) Close() error {
	return s.db.Close()
}

// EnsureSchema applies the DDL once per Store; a failed attempt is retried
// by the next caller.
func (s *Store) EnsureSchema(ctx context.Context) error {
	s.initMu.Lock()
	defer s.initMu.Unlock()

	if s.initialized {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin schema: %w", store.ErrInitialization, err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, stmt := range schemaStatements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("%w: apply schema: %w", store.ErrInitialization, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit schema: %w", store.ErrInitialization, err)
	}

	s.initialized = true
	return nil
}

// emission_ts is a plain TIMESTAMP: pgx stores the emitter's wall clock, so
// the date cast matches the date printed on the fiscal document.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS sale (
		id BIGSERIAL PRIMARY KEY,
		doc_type INTEGER NOT NULL DEFAULT 0,
		doc_model INTEGER NOT NULL DEFAULT 0,
		origin_series TEXT NOT NULL DEFAULT '',
		series TEXT NOT NULL DEFAULT '',
		origin_number INTEGER NOT NULL DEFAULT 0,
		doc_number INTEGER NOT NULL DEFAULT 0,
		tax_id TEXT NOT NULL DEFAULT '',
		recipient_doc TEXT,
		emission_ts TIMESTAMP NOT NULL,
		cancellation_ts TIMESTAMP,
		total NUMERIC(14,4) NOT NULL DEFAULT 0,
		addition NUMERIC(14,4) NOT NULL DEFAULT 0,
		discount NUMERIC(14,4) NOT NULL DEFAULT 0,
		fiscal_key TEXT NOT NULL DEFAULT '',
		cancellation_key TEXT,
		artifact_path TEXT,
		cancellation_artifact_path TEXT,
		protocol_ref TEXT,
		cancelled BOOLEAN NOT NULL DEFAULT false,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS sale_item (
		id BIGSERIAL PRIMARY KEY,
		sale_id BIGINT NOT NULL REFERENCES sale(id),
		product_code TEXT NOT NULL,
		product_description TEXT NOT NULL,
		unit_of_measure TEXT NOT NULL DEFAULT '',
		quantity NUMERIC(14,4) NOT NULL DEFAULT 0,
		unit_price NUMERIC(14,4) NOT NULL DEFAULT 0,
		discount NUMERIC(14,4) NOT NULL DEFAULT 0,
		discount_ratio NUMERIC(14,4) NOT NULL DEFAULT 0,
		addition NUMERIC(14,4) NOT NULL DEFAULT 0,
		addition_ratio NUMERIC(14,4) NOT NULL DEFAULT 0,
		total_price NUMERIC(14,4) NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS sale_payment (
		id BIGSERIAL PRIMARY KEY,
		sale_id BIGINT NOT NULL REFERENCES sale(id),
		method_code TEXT NOT NULL CHECK (method_code <> ''),
		method_name TEXT NOT NULL DEFAULT '',
		amount NUMERIC(14,4) NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS daily_resume (
		id TEXT PRIMARY KEY,
		method_code TEXT NOT NULL,
		amount_settled NUMERIC(14,4) NOT NULL DEFAULT 0,
		amount_unsettled NUMERIC(14,4) NOT NULL DEFAULT 0,
		created_at BIGINT NOT NULL,
		updated_at BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS product (
		id BIGSERIAL PRIMARY KEY,
		code TEXT NOT NULL UNIQUE,
		description TEXT NOT NULL,
		unit_of_measure TEXT NOT NULL DEFAULT 'UN',
		barcode TEXT,
		unit_price NUMERIC(14,4) NOT NULL DEFAULT 0,
		balance NUMERIC(14,4) NOT NULL DEFAULT 0,
		active BOOLEAN NOT NULL DEFAULT true,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS settings (
		id TEXT PRIMARY KEY,
		company_name TEXT NOT NULL DEFAULT '',
		short_name TEXT NOT NULL DEFAULT '',
		tax_id TEXT NOT NULL DEFAULT '',
		state_register TEXT NOT NULL DEFAULT '',
		terminal_number INTEGER NOT NULL DEFAULT 0,
		settled_percent INTEGER NOT NULL DEFAULT 0,
		only_cash BOOLEAN NOT NULL DEFAULT false,
		payment_methods TEXT NOT NULL DEFAULT '[]',
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS history (
		id BIGSERIAL PRIMARY KEY,
		action TEXT NOT NULL,
		entity_type TEXT NOT NULL,
		entity_id BIGINT,
		details TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`ALTER TABLE product ADD COLUMN IF NOT EXISTS balance NUMERIC(14,4) NOT NULL DEFAULT 0`,
	`CREATE INDEX IF NOT EXISTS idx_sale_cancelled ON sale(cancelled)`,
	`CREATE INDEX IF NOT EXISTS idx_sale_item_sale_id ON sale_item(sale_id)`,
	`CREATE INDEX IF NOT EXISTS idx_sale_payment_sale_id ON sale_payment(sale_id)`,
	`CREATE INDEX IF NOT EXISTS idx_daily_resume_code_created ON daily_resume(method_code, created_at)`,
}

func (s *Store) GetSettings(ctx context.Context, id string) (*domain.Settings, error) {
	var st domain.Settings
	err := s.db.QueryRowContext(ctx, `
		SELECT id, company_name, short_name, tax_id, state_register, terminal_number,
			settled_percent, only_cash, payment_methods, created_at, updated_at
		FROM settings
		WHERE id = $1
	`, id).Scan(&st.ID, &st.CompanyName, &st.ShortName, &st.TaxID, &st.StateRegister, &st.TerminalNumber,
		&st.SettledPercent, &st.OnlyCash, &st.PaymentMethods, &st.CreatedAt, &st.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, store.Storage("select settings", err)
	}
	return &st, nil
}

func (s *Store) SaveSettings(ctx context.Context, settings domain.Settings) (*domain.Settings, error) {
	if settings.ID == "" {
		settings.ID = domain.DefaultSettingsID
	}
	if err := settings.PaymentMethods.Validate(); err != nil {
		return nil, errors.Join(store.ErrInvalidInput, err)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO settings (
			id, company_name, short_name, tax_id, state_register, terminal_number,
			settled_percent, only_cash, payment_methods, created_at, updated_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,now(),now())
		ON CONFLICT (id) DO UPDATE SET
			company_name = EXCLUDED.company_name,
			short_name = EXCLUDED.short_name,
			tax_id = EXCLUDED.tax_id,
			state_register = EXCLUDED.state_register,
			terminal_number = EXCLUDED.terminal_number,
			settled_percent = EXCLUDED.settled_percent,
			only_cash = EXCLUDED.only_cash,
			payment_methods = EXCLUDED.payment_methods,
			updated_at = now()
	`, settings.ID, settings.CompanyName, settings.ShortName, settings.TaxID, settings.StateRegister,
		settings.TerminalNumber, settings.SettledPercent, settings.OnlyCash, settings.PaymentMethods)
	if err != nil {
		return nil, store.Storage("upsert settings", err)
	}
	return s.GetSettings(ctx, settings.ID)
}

func (s *Store) CreateHistory(ctx context.Context, entry domain.HistoryEntry) error {
	createdAt := entry.CreatedAt
	if createdAt.IsZero() {
		createdAt = s.clock.Now()
	}
	var entityID any
	if entry.EntityID != 0 {
		entityID = entry.EntityID
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO history (action, entity_type, entity_id, details, created_at)
		VALUES ($1,$2,$3,$4,$5)
	`, entry.Action, entry.EntityType, entityID, nullIfEmpty(entry.Details), createdAt.UTC())
	return store.Storage("insert history", err)
}

func (s *Store) ListHistory(ctx context.Context, entityType string, entityID int64, limit int) ([]domain.HistoryEntry, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, action, entity_type, COALESCE(entity_id, 0), COALESCE(details, ''), created_at
		FROM history
		WHERE entity_type = $1 AND ($2::bigint = 0 OR entity_id = $2::bigint)
		ORDER BY id DESC
		LIMIT $3
	`, entityType, entityID, limit)
	if err != nil {
		return nil, store.Storage("select history", err)
	}
	defer rows.Close()

	entries := make([]domain.HistoryEntry, 0, limit)
	for rows.Next() {
		var e domain.HistoryEntry
		if err := rows.Scan(&e.ID, &e.Action, &e.EntityType, &e.EntityID, &e.Details, &e.CreatedAt); err != nil {
			return nil, store.Storage("scan history", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, store.Storage("select history", err)
	}
	return entries, nil
}

// isConstraintViolation reports integrity-constraint errors (SQLSTATE class 23).
func isConstraintViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return strings.HasPrefix(pgErr.Code, "23")
	}
	return false
}

func nullIfEmpty(val string) any {
	if val == "" {
		return nil
	}
	return val
}

func nullTime(val *time.Time) any {
	if val == nil {
		return nil
	}
	return *val
}

func timePtr(val sql.NullTime) *time.Time {
	if !val.Valid {
		return nil
	}
	t := val.Time
	return &t
}
