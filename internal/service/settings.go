package service

import (
	"context"
	"errors"
	"strings"

	"pdvledger/backend/internal/domain"
	"pdvledger/backend/internal/store"
)

func (s *Service) GetSettings(ctx context.Context) (domain.Settings, error) {
	settings, err := s.repo.GetSettings(ctx, domain.DefaultSettingsID)
	if err != nil {
		return domain.Settings{}, err
	}
	return *settings, nil
}

func (s *Service) SaveSettings(ctx context.Context, settings domain.Settings) (domain.Settings, error) {
	settings.ID = domain.DefaultSettingsID
	settings.CompanyName = strings.TrimSpace(settings.CompanyName)
	settings.TaxID = strings.TrimSpace(settings.TaxID)
	for i := range settings.PaymentMethods {
		settings.PaymentMethods[i].Code = strings.TrimSpace(settings.PaymentMethods[i].Code)
		if settings.PaymentMethods[i].Name == "" {
			if pt, ok := domain.LookupPaymentType(settings.PaymentMethods[i].Code); ok {
				settings.PaymentMethods[i].Name = pt.Name
			}
		}
	}

	if err := s.validateStruct(settings); err != nil {
		return domain.Settings{}, err
	}
	if err := settings.PaymentMethods.Validate(); err != nil {
		return domain.Settings{}, errors.Join(store.ErrInvalidInput, err)
	}

	saved, err := s.repo.SaveSettings(ctx, settings)
	if err != nil {
		return domain.Settings{}, err
	}
	return *saved, nil
}

func (s *Service) PaymentTypes() []domain.PaymentType {
	out := make([]domain.PaymentType, len(domain.PaymentTypes))
	copy(out, domain.PaymentTypes)
	return out
}
