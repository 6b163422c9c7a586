package sqlite

import (
	"context"
	"database/sql"
	"errors"

	"pdvledger/backend/internal/domain"
	"pdvledger/backend/internal/store"
)

func (s *Store) GetSettings(ctx context.Context, id string) (*domain.Settings, error) {
	var st domain.Settings
	err := s.db.QueryRowContext(ctx, `
		SELECT id, company_name, short_name, tax_id, state_register, terminal_number,
			settled_percent, only_cash, payment_methods, created_at, updated_at
		FROM settings
		WHERE id = ?
	`, id).Scan(&st.ID, &st.CompanyName, &st.ShortName, &st.TaxID, &st.StateRegister, &st.TerminalNumber,
		&st.SettledPercent, &st.OnlyCash, &st.PaymentMethods, &st.CreatedAt, &st.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		if errors.Is(err, domain.ErrInvalidPaymentMethods) {
			return nil, store.Storage("decode settings payment methods", err)
		}
		return nil, store.Storage("select settings", err)
	}
	return &st, nil
}

// SaveSettings inserts or replaces the row for settings.ID, keeping the
// original created_at.
func (s *Store) SaveSettings(ctx context.Context, settings domain.Settings) (*domain.Settings, error) {
	if settings.ID == "" {
		settings.ID = domain.DefaultSettingsID
	}
	if err := settings.PaymentMethods.Validate(); err != nil {
		return nil, errors.Join(store.ErrInvalidInput, err)
	}

	now := s.clock.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO settings (
			id, company_name, short_name, tax_id, state_register, terminal_number,
			settled_percent, only_cash, payment_methods, created_at, updated_at
		)
		VALUES (?,?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT (id) DO UPDATE SET
			company_name = excluded.company_name,
			short_name = excluded.short_name,
			tax_id = excluded.tax_id,
			state_register = excluded.state_register,
			terminal_number = excluded.terminal_number,
			settled_percent = excluded.settled_percent,
			only_cash = excluded.only_cash,
			payment_methods = excluded.payment_methods,
			updated_at = excluded.updated_at
	`, settings.ID, settings.CompanyName, settings.ShortName, settings.TaxID, settings.StateRegister,
		settings.TerminalNumber, settings.SettledPercent, settings.OnlyCash, settings.PaymentMethods, now, now)
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
		VALUES (?,?,?,?,?)
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
		WHERE entity_type = ? AND (? = 0 OR entity_id = ?)
		ORDER BY id DESC
		LIMIT ?
	`, entityType, entityID, entityID, limit)
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
