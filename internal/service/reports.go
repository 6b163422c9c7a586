package service

import (
	"context"
	"io"

	"pdvledger/backend/internal/cache"
	"pdvledger/backend/internal/domain"
	"pdvledger/backend/internal/export"
)

// SummaryInInterval serves from the summary cache when it can; cache errors
// are logged and fall through to the store.
func (s *Service) SummaryInInterval(ctx context.Context, start string, end string) (domain.Summary, error) {
	rng, err := parseRange(start, end)
	if err != nil {
		return domain.Summary{}, err
	}

	key := cache.SummaryKey(rng)
	gen, err := s.cache.Generation(ctx)
	if err != nil {
		s.log.Warn("summary cache generation read failed", "key", key, "error", err)
		return s.repo.SummarizeInterval(ctx, rng)
	}
	cached, ok, err := s.cache.Get(ctx, gen, key)
	if err != nil {
		s.log.Warn("summary cache read failed", "key", key, "error", err)
	}
	if ok && cached != nil {
		return *cached, nil
	}

	summary, err := s.repo.SummarizeInterval(ctx, rng)
	if err != nil {
		return domain.Summary{}, err
	}
	// gen was read before the store; a write that invalidated in between
	// leaves this entry in a dead generation.
	if err := s.cache.Set(ctx, gen, key, &summary, s.summaryTTL); err != nil {
		s.log.Warn("summary cache write failed", "key", key, "error", err)
	}
	return summary, nil
}

func (s *Service) IntervalReport(ctx context.Context, start string, end string) (domain.IntervalReport, error) {
	rng, err := parseRange(start, end)
	if err != nil {
		return domain.IntervalReport{}, err
	}
	summary, err := s.SummaryInInterval(ctx, start, end)
	if err != nil {
		return domain.IntervalReport{}, err
	}
	sales, err := s.repo.FindSalesByInterval(ctx, rng)
	if err != nil {
		return domain.IntervalReport{}, err
	}
	startText, endText := rng.Bounds()
	return domain.IntervalReport{Start: startText, End: endText, Summary: summary, Sales: sales}, nil
}

// ExportInterval writes the interval report as an XLSX workbook and returns
// the suggested file name.
func (s *Service) ExportInterval(ctx context.Context, w io.Writer, start string, end string) (string, error) {
	report, err := s.IntervalReport(ctx, start, end)
	if err != nil {
		return "", err
	}
	if err := export.WriteIntervalReport(w, report); err != nil {
		return "", err
	}
	return export.Filename(report), nil
}
