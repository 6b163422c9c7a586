package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"pdvledger/backend/internal/domain"
	"pdvledger/backend/internal/store"
)

// CreateSale validates and stores a sale with its items and payments. Once
// the sale is durable, today's resumes are credited per payment method; a
// failure there is logged and does not fail the sale.
func (s *Service) CreateSale(ctx context.Context, req domain.CreateSaleRequest) (domain.CreateSaleResponse, error) {
	req.Sale.FiscalKey = strings.TrimSpace(req.Sale.FiscalKey)
	for i := range req.Items {
		req.Items[i].ProductCode = strings.TrimSpace(req.Items[i].ProductCode)
		req.Items[i].ProductDescription = strings.TrimSpace(req.Items[i].ProductDescription)
	}
	for i := range req.Payments {
		req.Payments[i].MethodCode = strings.TrimSpace(req.Payments[i].MethodCode)
	}

	if err := s.validateStruct(req); err != nil {
		return domain.CreateSaleResponse{}, err
	}
	if err := checkSaleAmounts(req); err != nil {
		return domain.CreateSaleResponse{}, err
	}

	accepted, err := s.acceptedPaymentMethods(ctx)
	if err != nil {
		return domain.CreateSaleResponse{}, err
	}
	for i, p := range req.Payments {
		pt, ok := domain.LookupPaymentType(p.MethodCode)
		if !ok || !accepted.Accepts(p.MethodCode) {
			return domain.CreateSaleResponse{}, &ValidationError{Fields: map[string]string{
				fmt.Sprintf("Payments[%d].MethodCode", i): "payment_method",
			}}
		}
		if p.MethodName == "" {
			req.Payments[i].MethodName = pt.Name
		}
	}

	for i, item := range req.Items {
		if item.TotalPrice.IsZero() {
			req.Items[i].TotalPrice = item.ComputedTotal()
		}
	}
	req.Sale.Cancelled = false
	req.Sale.CancelledAt = nil
	req.Sale.CancellationKey = ""
	req.Sale.CancellationArtifactPath = ""

	saleID, err := s.repo.CreateSale(ctx, req.Sale, req.Items, req.Payments)
	if err != nil {
		return domain.CreateSaleResponse{}, err
	}

	s.invalidateSummaries(ctx)
	s.logAudit(ctx, domain.HistoryActionSaleCreate, domain.EntitySale, saleID,
		fmt.Sprintf("total=%s,items=%d,payments=%d", req.Sale.Total.String(), len(req.Items), len(req.Payments)))
	s.accumulateResumes(ctx, saleID, req.Sale, req.Payments)

	s.log.Info("sale created", "sale_id", saleID, "total", req.Sale.Total.String(), "tax_id", req.Sale.TaxID)
	return domain.CreateSaleResponse{SaleID: saleID}, nil
}

func checkSaleAmounts(req domain.CreateSaleRequest) error {
	var rules amountRules
	rules.nonNegative("Sale.Total", req.Sale.Total)
	rules.nonNegative("Sale.Discount", req.Sale.Discount)
	rules.nonNegative("Sale.Addition", req.Sale.Addition)
	for i, item := range req.Items {
		prefix := fmt.Sprintf("Items[%d].", i)
		rules.positive(prefix+"Quantity", item.Quantity)
		rules.nonNegative(prefix+"UnitPrice", item.UnitPrice)
		rules.nonNegative(prefix+"Discount", item.Discount)
		rules.nonNegative(prefix+"Addition", item.Addition)
		rules.nonNegative(prefix+"TotalPrice", item.TotalPrice)
	}
	for i, p := range req.Payments {
		rules.nonNegative(fmt.Sprintf("Payments[%d].Amount", i), p.Amount)
	}
	return rules.err()
}

// acceptedPaymentMethods returns the configured list, or an empty list
// (every catalog code) when no settings row exists yet.
func (s *Service) acceptedPaymentMethods(ctx context.Context) (domain.PaymentMethodList, error) {
	settings, err := s.repo.GetSettings(ctx, domain.DefaultSettingsID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return settings.PaymentMethods, nil
}

func (s *Service) accumulateResumes(ctx context.Context, saleID int64, sale domain.Sale, payments []domain.SalePayment) {
	settledSale := sale.FiscalKey != ""
	for _, p := range payments {
		settled, unsettled := decimal.Zero, p.Amount
		if settledSale {
			settled, unsettled = p.Amount, decimal.Zero
		}
		if _, err := s.addToResume(ctx, p.MethodCode, settled, unsettled); err != nil {
			s.log.Warn("failed to accumulate resume", "sale_id", saleID, "method_code", p.MethodCode, "error", err)
		}
	}
}

func (s *Service) GetSale(ctx context.Context, id int64) (domain.Sale, error) {
	sale, err := s.repo.FindSaleByID(ctx, id)
	if err != nil {
		return domain.Sale{}, err
	}
	return *sale, nil
}

func (s *Service) GetSaleItems(ctx context.Context, id int64) ([]domain.SaleItem, error) {
	return s.repo.FindItemsBySale(ctx, id)
}

func (s *Service) GetSalePayments(ctx context.Context, id int64) ([]domain.SalePayment, error) {
	return s.repo.FindPaymentsBySale(ctx, id)
}

func (s *Service) SalesInInterval(ctx context.Context, start string, end string) ([]domain.SaleWithRelations, error) {
	rng, err := parseRange(start, end)
	if err != nil {
		return nil, err
	}
	return s.repo.FindSalesByInterval(ctx, rng)
}

func (s *Service) ItemsInInterval(ctx context.Context, start string, end string) ([]domain.SaleItem, error) {
	rng, err := parseRange(start, end)
	if err != nil {
		return nil, err
	}
	return s.repo.FindItemsByInterval(ctx, rng)
}

func (s *Service) PaymentsInInterval(ctx context.Context, start string, end string) ([]domain.SalePayment, error) {
	rng, err := parseRange(start, end)
	if err != nil {
		return nil, err
	}
	return s.repo.FindPaymentsByInterval(ctx, rng)
}

// CancelSale records the cancellation on the sale header. Totals, items and
// payments are left untouched.
func (s *Service) CancelSale(ctx context.Context, id int64, req domain.CancelSaleRequest) (domain.Sale, error) {
	req.Key = strings.TrimSpace(req.Key)
	if err := s.validateStruct(req); err != nil {
		return domain.Sale{}, err
	}

	cancelledAt := s.clock.Now()
	if req.CancelledAt != nil {
		cancelledAt = *req.CancelledAt
	}
	err := s.repo.CancelSale(ctx, id, domain.Cancellation{
		Key:          req.Key,
		CancelledAt:  cancelledAt,
		ArtifactPath: strings.TrimSpace(req.ArtifactPath),
	})
	if err != nil {
		return domain.Sale{}, err
	}

	s.invalidateSummaries(ctx)
	s.logAudit(ctx, domain.HistoryActionSaleCancel, domain.EntitySale, id, "key="+req.Key)
	s.log.Info("sale cancelled", "sale_id", id)

	return s.GetSale(ctx, id)
}

func (s *Service) SaleHistory(ctx context.Context, id int64, limit int) ([]domain.HistoryEntry, error) {
	return s.repo.ListHistory(ctx, domain.EntitySale, id, limit)
}
