package sqlite

import (
	"context"

	"pdvledger/backend/internal/domain"
	"pdvledger/backend/internal/store"
)

func (s *Store) SummarizeInterval(ctx context.Context, rng domain.DateRange) (domain.Summary, error) {
	start, end := rng.Bounds()

	var summary domain.Summary
	err := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			ROUND(COALESCE(SUM(s.total), 0), 4),
			ROUND(COALESCE(SUM(s.discount), 0), 4),
			ROUND(COALESCE(SUM(s.addition), 0), 4),
			COALESCE(SUM(CASE WHEN s.cancelled = 1 THEN 1 ELSE 0 END), 0)
		FROM sale s
		WHERE `+emissionDateFilter,
		start, end,
	).Scan(&summary.Count, &summary.SumTotal, &summary.SumDiscount, &summary.SumAddition, &summary.CountCancelled)
	if err != nil {
		return domain.Summary{}, store.Storage("summarize interval", err)
	}
	return summary, nil
}
