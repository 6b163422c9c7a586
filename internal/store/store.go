package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"pdvledger/backend/internal/domain"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrStorageFailure     = errors.New("storage failure")
	ErrTransactionFailure = errors.New("transaction failure")
	ErrInitialization     = errors.New("store initialization failed")
	ErrAlreadyCancelled   = errors.New("sale already cancelled")
	ErrInvalidInput       = errors.New("invalid input")
	ErrDuplicate          = errors.New("already exists")
)

// StorageError carries the failing operation name alongside the driver error.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrStorageFailure, e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

func (e *StorageError) Is(target error) bool { return target == ErrStorageFailure }

func Storage(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StorageError{Op: op, Err: err}
}

func Transaction(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrTransactionFailure, op, err)
}

type SalesLedger interface {
	CreateSale(ctx context.Context, sale domain.Sale, items []domain.SaleItem, payments []domain.SalePayment) (int64, error)
	FindSaleByID(ctx context.Context, id int64) (*domain.Sale, error)
	FindItemsBySale(ctx context.Context, saleID int64) ([]domain.SaleItem, error)
	FindPaymentsBySale(ctx context.Context, saleID int64) ([]domain.SalePayment, error)
	FindSalesByInterval(ctx context.Context, rng domain.DateRange) ([]domain.SaleWithRelations, error)
	FindItemsByInterval(ctx context.Context, rng domain.DateRange) ([]domain.SaleItem, error)
	FindPaymentsByInterval(ctx context.Context, rng domain.DateRange) ([]domain.SalePayment, error)
	CancelSale(ctx context.Context, id int64, cancellation domain.Cancellation) error
}

type DailyResumeAggregator interface {
	FindOrCreateResume(ctx context.Context, methodCode string) (*domain.DailyResume, error)
	FindResumeByID(ctx context.Context, id string) (*domain.DailyResume, error)
	IncrementResume(ctx context.Context, id string, settled decimal.Decimal, unsettled decimal.Decimal) error
	ListTodayResumes(ctx context.Context) ([]domain.DailyResume, error)
	PurgeResumesOlderThan(ctx context.Context, days int) (int64, error)
}

type ReportAggregator interface {
	SummarizeInterval(ctx context.Context, rng domain.DateRange) (domain.Summary, error)
}

type SettingsStore interface {
	GetSettings(ctx context.Context, id string) (*domain.Settings, error)
	SaveSettings(ctx context.Context, settings domain.Settings) (*domain.Settings, error)
}

type HistoryStore interface {
	CreateHistory(ctx context.Context, entry domain.HistoryEntry) error
	ListHistory(ctx context.Context, entityType string, entityID int64, limit int) ([]domain.HistoryEntry, error)
}

// ProductStore keeps the product catalog. Products are never removed;
// DeactivateProduct hides them from the active listing.
type ProductStore interface {
	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	FindProductByID(ctx context.Context, id int64) (*domain.Product, error)
	FindProductByCode(ctx context.Context, code string) (*domain.Product, error)
	ListProducts(ctx context.Context, activeOnly bool) ([]domain.Product, error)
	UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	DeactivateProduct(ctx context.Context, id int64) error
	AdjustProductBalance(ctx context.Context, id int64, delta decimal.Decimal) (*domain.Product, error)
}

// Repository is everything a backing store provides to the service layer.
type Repository interface {
	SalesLedger
	DailyResumeAggregator
	ReportAggregator
	SettingsStore
	HistoryStore
	ProductStore
	EnsureSchema(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}
