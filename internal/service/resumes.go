package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"pdvledger/backend/internal/domain"
)

func (s *Service) TodayResumes(ctx context.Context) ([]domain.DailyResume, error) {
	return s.repo.ListTodayResumes(ctx)
}

// RecordResume credits today's resume for a method code directly, for
// corrections outside a sale. Negative amounts are accepted.
func (s *Service) RecordResume(ctx context.Context, req domain.RecordResumeRequest) (domain.DailyResume, error) {
	req.MethodCode = strings.TrimSpace(req.MethodCode)
	if err := s.validateStruct(req); err != nil {
		return domain.DailyResume{}, err
	}
	if _, ok := domain.LookupPaymentType(req.MethodCode); !ok {
		return domain.DailyResume{}, &ValidationError{Fields: map[string]string{"MethodCode": "payment_method"}}
	}
	return s.addToResume(ctx, req.MethodCode, req.Settled, req.Unsettled)
}

func (s *Service) addToResume(ctx context.Context, code string, settled decimal.Decimal, unsettled decimal.Decimal) (domain.DailyResume, error) {
	resume, err := s.repo.FindOrCreateResume(ctx, code)
	if err != nil {
		return domain.DailyResume{}, err
	}
	if err := s.repo.IncrementResume(ctx, resume.ID, settled, unsettled); err != nil {
		return domain.DailyResume{}, err
	}
	updated, err := s.repo.FindResumeByID(ctx, resume.ID)
	if err != nil {
		return domain.DailyResume{}, err
	}
	if updated.AmountSettled.IsNegative() || updated.AmountUnsettled.IsNegative() {
		s.log.Warn("resume total is negative", "resume_id", updated.ID, "method_code", code,
			"settled", updated.AmountSettled.String(), "unsettled", updated.AmountUnsettled.String())
	}
	return *updated, nil
}

func (s *Service) PurgeResumes(ctx context.Context, days int) (domain.PurgeResumesResponse, error) {
	if err := s.validateStruct(domain.PurgeResumesRequest{Days: days}); err != nil {
		return domain.PurgeResumesResponse{}, err
	}
	deleted, err := s.repo.PurgeResumesOlderThan(ctx, days)
	if err != nil {
		return domain.PurgeResumesResponse{}, err
	}
	s.logAudit(ctx, domain.HistoryActionResumePurge, domain.EntityDailyResume, 0, fmt.Sprintf("days=%d,deleted=%d", days, deleted))
	s.log.Info("resumes purged", "days", days, "deleted", deleted)
	return domain.PurgeResumesResponse{Deleted: deleted}, nil
}
