package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"pdvledger/backend/internal/clock"
	"pdvledger/backend/internal/domain"
	"pdvledger/backend/internal/store"
)

const resumeColumns = `id, method_code, amount_settled, amount_unsettled, created_at, updated_at`

// FindOrCreateResume returns today's resume for the method code, creating an
// empty one when none exists. The lookup and insert share one write
// transaction, so concurrent callers see a single row per code and day.
func (s *Store) FindOrCreateResume(ctx context.Context, methodCode string) (*domain.DailyResume, error) {
	now := s.clock.Now()
	dayStart := clock.StartOfDay(now).UnixMilli()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, store.Storage("begin find or create resume", err)
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx, `
		SELECT `+resumeColumns+`
		FROM daily_resume
		WHERE method_code = ? AND created_at >= ?
		ORDER BY created_at
		LIMIT 1
	`, methodCode, dayStart)
	resume, err := scanResume(row)
	if err == nil {
		if err := tx.Commit(); err != nil {
			return nil, store.Storage("commit find or create resume", err)
		}
		return &resume, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, store.Storage("select today resume", err)
	}

	nowMs := now.UnixMilli()
	resume = domain.DailyResume{
		ID:              uuid.NewString(),
		MethodCode:      methodCode,
		AmountSettled:   decimal.Zero,
		AmountUnsettled: decimal.Zero,
		CreatedAt:       time.UnixMilli(nowMs),
		UpdatedAt:       time.UnixMilli(nowMs),
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO daily_resume (id, method_code, amount_settled, amount_unsettled, created_at, updated_at)
		VALUES (?,?,0,0,?,?)
	`, resume.ID, resume.MethodCode, nowMs, nowMs)
	if err != nil {
		return nil, store.Storage("insert resume", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, store.Storage("commit find or create resume", err)
	}
	return &resume, nil
}

func (s *Store) FindResumeByID(ctx context.Context, id string) (*domain.DailyResume, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+resumeColumns+` FROM daily_resume WHERE id = ?`, id)
	resume, err := scanResume(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, store.Storage("select resume", err)
	}
	return &resume, nil
}

// IncrementResume adds both deltas to the accumulators. Negative deltas are
// applied as given.
func (s *Store) IncrementResume(ctx context.Context, id string, settled decimal.Decimal, unsettled decimal.Decimal) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE daily_resume
		SET amount_settled = ROUND(amount_settled + ?, 4),
			amount_unsettled = ROUND(amount_unsettled + ?, 4),
			updated_at = ?
		WHERE id = ?
	`, settled, unsettled, s.clock.Now().UnixMilli(), id)
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
	dayStart := clock.StartOfDay(s.clock.Now()).UnixMilli()
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+resumeColumns+`
		FROM daily_resume
		WHERE created_at >= ?
		ORDER BY method_code, created_at
	`, dayStart)
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
	res, err := s.db.ExecContext(ctx, `DELETE FROM daily_resume WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, store.Storage("purge resumes", err)
	}
	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, store.Storage("purge resumes", err)
	}
	return deleted, nil
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
