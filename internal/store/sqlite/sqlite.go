package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"

	"pdvledger/backend/internal/clock"
	"pdvledger/backend/internal/store"
)

const (
	PathEnv        = "SQLITE_PATH"
	appDirName     = "pdvledger"
	fallbackPath   = "db.sqlite"
	busyTimeoutMs  = 5000
	childFetchJobs = 4
)

// MemoryPath opens an isolated in-memory store.
const MemoryPath = ":memory:"

type Store struct {
	db    *sql.DB
	path  string
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

// ResolvePath picks the database file: SQLITE_PATH, then the per-user config
// directory, then db.sqlite in the working directory. Directories on the
// chosen path are created.
func ResolvePath() (string, error) {
	if override := strings.TrimSpace(os.Getenv(PathEnv)); override != "" {
		if err := ensureParentDir(override); err != nil {
			return "", err
		}
		return override, nil
	}

	base, err := os.UserConfigDir()
	if err != nil || base == "" {
		return fallbackPath, nil
	}
	dir := filepath.Join(base, appDirName, "sqlite")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("%w: create %s: %w", store.ErrInitialization, dir, err)
	}
	return filepath.Join(dir, "db.sqlite"), nil
}

func ensureParentDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("%w: create %s: %w", store.ErrInitialization, dir, err)
	}
	return nil
}

func isMemoryPath(path string) bool {
	return path == MemoryPath || strings.Contains(path, "mode=memory")
}

func dsn(path string) string {
	params := fmt.Sprintf("_foreign_keys=on&_busy_timeout=%d&_txlock=immediate", busyTimeoutMs)
	if !isMemoryPath(path) {
		params += "&_journal_mode=WAL"
	}
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + params
}

// Open connects to the database at path and applies the schema.
func Open(ctx context.Context, path string, opts ...Option) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("%w: empty database path", store.ErrInitialization)
	}
	if !isMemoryPath(path) {
		if err := ensureParentDir(path); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite3", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %w", store.ErrInitialization, path, err)
	}
	if isMemoryPath(path) {
		// every pooled connection would otherwise see its own empty database
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(8)
		db.SetMaxIdleConns(4)
	}
	db.SetConnMaxLifetime(0)

	s := &Store{db: db, path: path, clock: clock.System{}}
	for _, opt := range opts {
		opt(s)
	}

	if err := s.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Path() string {
	return s.path
}

func (s *Store) Ping(ctx context.Context) error {
	return store.Storage("ping", s.db.PingContext(ctx))
}

func (s *Store) Close() error {
	return s.db.Close()
}

// EnsureSchema applies the DDL once per Store. Concurrent callers block until
// the first attempt finishes; a failed attempt is retried by the next caller.
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
	if err := addMissingColumns(ctx, tx); err != nil {
		return fmt.Errorf("%w: add columns: %w", store.ErrInitialization, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit schema: %w", store.ErrInitialization, err)
	}

	s.initialized = true
	return nil
}

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS sale (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		doc_type INTEGER NOT NULL DEFAULT 0,
		doc_model INTEGER NOT NULL DEFAULT 0,
		origin_series TEXT NOT NULL DEFAULT '',
		series TEXT NOT NULL DEFAULT '',
		origin_number INTEGER NOT NULL DEFAULT 0,
		doc_number INTEGER NOT NULL DEFAULT 0,
		tax_id TEXT NOT NULL DEFAULT '',
		recipient_doc TEXT,
		emission_ts DATETIME NOT NULL,
		cancellation_ts DATETIME,
		total REAL NOT NULL DEFAULT 0,
		addition REAL NOT NULL DEFAULT 0,
		discount REAL NOT NULL DEFAULT 0,
		fiscal_key TEXT NOT NULL DEFAULT '',
		cancellation_key TEXT,
		artifact_path TEXT,
		cancellation_artifact_path TEXT,
		protocol_ref TEXT,
		cancelled INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS sale_item (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		sale_id INTEGER NOT NULL REFERENCES sale(id),
		product_code TEXT NOT NULL,
		product_description TEXT NOT NULL,
		unit_of_measure TEXT NOT NULL DEFAULT '',
		quantity REAL NOT NULL DEFAULT 0,
		unit_price REAL NOT NULL DEFAULT 0,
		discount REAL NOT NULL DEFAULT 0,
		discount_ratio REAL NOT NULL DEFAULT 0,
		addition REAL NOT NULL DEFAULT 0,
		addition_ratio REAL NOT NULL DEFAULT 0,
		total_price REAL NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS sale_payment (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		sale_id INTEGER NOT NULL REFERENCES sale(id),
		method_code TEXT NOT NULL CHECK (method_code <> ''),
		method_name TEXT NOT NULL DEFAULT '',
		amount REAL NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS daily_resume (
		id TEXT PRIMARY KEY,
		method_code TEXT NOT NULL,
		amount_settled REAL NOT NULL DEFAULT 0,
		amount_unsettled REAL NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS product (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		code TEXT NOT NULL UNIQUE,
		description TEXT NOT NULL,
		unit_of_measure TEXT NOT NULL DEFAULT 'UN',
		barcode TEXT,
		unit_price REAL NOT NULL DEFAULT 0,
		balance REAL NOT NULL DEFAULT 0,
		active INTEGER NOT NULL DEFAULT 1,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS settings (
		id TEXT PRIMARY KEY,
		company_name TEXT NOT NULL DEFAULT '',
		short_name TEXT NOT NULL DEFAULT '',
		tax_id TEXT NOT NULL DEFAULT '',
		state_register TEXT NOT NULL DEFAULT '',
		terminal_number INTEGER NOT NULL DEFAULT 0,
		settled_percent INTEGER NOT NULL DEFAULT 0,
		only_cash INTEGER NOT NULL DEFAULT 0,
		payment_methods TEXT NOT NULL DEFAULT '[]',
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		action TEXT NOT NULL,
		entity_type TEXT NOT NULL,
		entity_id INTEGER,
		details TEXT,
		created_at DATETIME NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_sale_cancelled ON sale(cancelled)`,
	`CREATE INDEX IF NOT EXISTS idx_sale_item_sale_id ON sale_item(sale_id)`,
	`CREATE INDEX IF NOT EXISTS idx_sale_payment_sale_id ON sale_payment(sale_id)`,
	`CREATE INDEX IF NOT EXISTS idx_daily_resume_code_created ON daily_resume(method_code, created_at)`,
}

// columnAdditions lists columns introduced after a table was first shipped.
// CREATE TABLE IF NOT EXISTS leaves older tables without them.
var columnAdditions = []struct {
	table      string
	column     string
	definition string
}{
	{table: "product", column: "balance", definition: "REAL NOT NULL DEFAULT 0"},
}

func addMissingColumns(ctx context.Context, tx *sql.Tx) error {
	for _, c := range columnAdditions {
		var found int
		err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?`, c.table, c.column).Scan(&found)
		if err != nil {
			return err
		}
		if found > 0 {
			continue
		}
		if _, err := tx.ExecContext(ctx, fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", c.table, c.column, c.definition)); err != nil {
			return err
		}
	}
	return nil
}

// emissionDateFilter matches the calendar date the emitter wrote, which is the
// first ten characters of the stored timestamp text.
const emissionDateFilter = `substr(s.emission_ts, 1, 10) BETWEEN ? AND ?`

func isConstraintViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrConstraint
	}
	return false
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
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
