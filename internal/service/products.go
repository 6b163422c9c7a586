package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"pdvledger/backend/internal/domain"
)

func (s *Service) CreateProduct(ctx context.Context, req domain.CreateProductRequest) (domain.Product, error) {
	product := domain.Product{
		Code:          req.Code,
		Description:   req.Description,
		UnitOfMeasure: req.UnitOfMeasure,
		Barcode:       req.Barcode,
		UnitPrice:     req.UnitPrice,
		Balance:       decimal.Zero,
		Active:        true,
	}
	if err := s.checkProduct(&product); err != nil {
		return domain.Product{}, err
	}

	created, err := s.repo.CreateProduct(ctx, product)
	if err != nil {
		return domain.Product{}, err
	}
	s.logAudit(ctx, domain.HistoryActionProductCreate, domain.EntityProduct, created.ID, "code="+created.Code)
	s.log.Info("product created", "product_id", created.ID, "code", created.Code)
	return *created, nil
}

func (s *Service) GetProduct(ctx context.Context, id int64) (domain.Product, error) {
	product, err := s.repo.FindProductByID(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}
	return *product, nil
}

func (s *Service) GetProductByCode(ctx context.Context, code string) (domain.Product, error) {
	product, err := s.repo.FindProductByCode(ctx, strings.TrimSpace(code))
	if err != nil {
		return domain.Product{}, err
	}
	return *product, nil
}

func (s *Service) ListProducts(ctx context.Context, activeOnly bool) ([]domain.Product, error) {
	return s.repo.ListProducts(ctx, activeOnly)
}

// UpdateProduct applies the fields present in req over the stored product.
func (s *Service) UpdateProduct(ctx context.Context, id int64, req domain.UpdateProductRequest) (domain.Product, error) {
	current, err := s.repo.FindProductByID(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}
	product := *current
	if req.Code != nil {
		product.Code = *req.Code
	}
	if req.Description != nil {
		product.Description = *req.Description
	}
	if req.UnitOfMeasure != nil {
		product.UnitOfMeasure = *req.UnitOfMeasure
	}
	if req.Barcode != nil {
		product.Barcode = *req.Barcode
	}
	if req.UnitPrice != nil {
		product.UnitPrice = *req.UnitPrice
	}
	if req.Balance != nil {
		product.Balance = *req.Balance
	}
	if req.Active != nil {
		product.Active = *req.Active
	}
	if err := s.checkProduct(&product); err != nil {
		return domain.Product{}, err
	}

	updated, err := s.repo.UpdateProduct(ctx, product)
	if err != nil {
		return domain.Product{}, err
	}
	s.logAudit(ctx, domain.HistoryActionProductUpdate, domain.EntityProduct, id,
		fmt.Sprintf("code=%s,active=%t,balance=%s", updated.Code, updated.Active, updated.Balance.String()))
	return *updated, nil
}

func (s *Service) DeactivateProduct(ctx context.Context, id int64) error {
	if err := s.repo.DeactivateProduct(ctx, id); err != nil {
		return err
	}
	s.logAudit(ctx, domain.HistoryActionProductDeactivate, domain.EntityProduct, id, "active=false")
	return nil
}

func (s *Service) IncrementProductBalance(ctx context.Context, id int64, amount decimal.Decimal) (domain.Product, error) {
	return s.adjustBalance(ctx, id, amount)
}

// DecrementProductBalance lets the balance go below zero; the shortfall is
// logged.
func (s *Service) DecrementProductBalance(ctx context.Context, id int64, amount decimal.Decimal) (domain.Product, error) {
	return s.adjustBalance(ctx, id, amount.Neg())
}

func (s *Service) adjustBalance(ctx context.Context, id int64, delta decimal.Decimal) (domain.Product, error) {
	var rules amountRules
	rules.positive("Amount", delta.Abs())
	if err := rules.err(); err != nil {
		return domain.Product{}, err
	}

	product, err := s.repo.AdjustProductBalance(ctx, id, delta)
	if err != nil {
		return domain.Product{}, err
	}
	s.logAudit(ctx, domain.HistoryActionProductBalance, domain.EntityProduct, id,
		fmt.Sprintf("delta=%s,balance=%s", delta.String(), product.Balance.String()))
	if product.Balance.IsNegative() {
		s.log.Warn("product balance is negative", "product_id", id, "code", product.Code, "balance", product.Balance.String())
	}
	return *product, nil
}

func (s *Service) checkProduct(product *domain.Product) error {
	product.Code = strings.TrimSpace(product.Code)
	product.Description = strings.TrimSpace(product.Description)
	product.UnitOfMeasure = strings.ToUpper(strings.TrimSpace(product.UnitOfMeasure))
	product.Barcode = strings.TrimSpace(product.Barcode)
	if product.UnitOfMeasure == "" {
		product.UnitOfMeasure = domain.DefaultUnitOfMeasure
	}

	if err := s.validateStruct(*product); err != nil {
		return err
	}
	var rules amountRules
	rules.nonNegative("UnitPrice", product.UnitPrice)
	return rules.err()
}
