package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Sale struct {
	ID                       int64           `json:"id"`
	DocType                  int             `json:"doc_type"`
	DocModel                 int             `json:"doc_model" validate:"gte=0"`
	OriginSeries             string          `json:"origin_series" validate:"max=10"`
	Series                   string          `json:"series" validate:"max=10"`
	OriginNumber             int             `json:"origin_number" validate:"gte=0"`
	Number                   int             `json:"number" validate:"gte=0"`
	TaxID                    string          `json:"tax_id" validate:"omitempty,max=18"`
	RecipientDoc             string          `json:"recipient_doc,omitempty" validate:"omitempty,max=18"`
	EmittedAt                time.Time       `json:"emitted_at" validate:"required"`
	CancelledAt              *time.Time      `json:"cancelled_at,omitempty"`
	Total                    decimal.Decimal `json:"total"`
	Addition                 decimal.Decimal `json:"addition"`
	Discount                 decimal.Decimal `json:"discount"`
	FiscalKey                string          `json:"fiscal_key" validate:"omitempty,max=64"`
	CancellationKey          string          `json:"cancellation_key,omitempty"`
	ArtifactPath             string          `json:"artifact_path,omitempty" validate:"omitempty,max=512"`
	CancellationArtifactPath string          `json:"cancellation_artifact_path,omitempty"`
	ProtocolRef              string          `json:"protocol_ref,omitempty" validate:"omitempty,max=64"`
	Cancelled                bool            `json:"cancelled"`
	CreatedAt                time.Time       `json:"created_at"`
	UpdatedAt                time.Time       `json:"updated_at"`
}

type SaleItem struct {
	ID                 int64           `json:"id"`
	SaleID             int64           `json:"sale_id"`
	ProductCode        string          `json:"product_code" validate:"required,max=60"`
	ProductDescription string          `json:"product_description" validate:"required,max=120"`
	UnitOfMeasure      string          `json:"unit_of_measure" validate:"max=6"`
	Quantity           decimal.Decimal `json:"quantity"`
	UnitPrice          decimal.Decimal `json:"unit_price"`
	Discount           decimal.Decimal `json:"discount"`
	DiscountRatio      decimal.Decimal `json:"discount_ratio"`
	Addition           decimal.Decimal `json:"addition"`
	AdditionRatio      decimal.Decimal `json:"addition_ratio"`
	TotalPrice         decimal.Decimal `json:"total_price"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

// ComputedTotal is quantity*unit price, less discount, plus addition.
func (i SaleItem) ComputedTotal() decimal.Decimal {
	return i.Quantity.Mul(i.UnitPrice).Sub(i.Discount).Add(i.Addition)
}

type SalePayment struct {
	ID         int64           `json:"id"`
	SaleID     int64           `json:"sale_id"`
	MethodCode string          `json:"method_code" validate:"required,len=2,numeric"`
	MethodName string          `json:"method_name" validate:"max=60"`
	Amount     decimal.Decimal `json:"amount"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// SaleWithRelations serializes flat: the sale fields plus its items and payments.
type SaleWithRelations struct {
	Sale
	Items    []SaleItem    `json:"items"`
	Payments []SalePayment `json:"payments"`
}

type Cancellation struct {
	Key          string
	CancelledAt  time.Time
	ArtifactPath string
}

type DailyResume struct {
	ID              string          `json:"id"`
	MethodCode      string          `json:"method_code"`
	AmountSettled   decimal.Decimal `json:"amount_settled"`
	AmountUnsettled decimal.Decimal `json:"amount_unsettled"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

type Summary struct {
	Count          int64           `json:"count"`
	SumTotal       decimal.Decimal `json:"sum_total"`
	SumDiscount    decimal.Decimal `json:"sum_discount"`
	SumAddition    decimal.Decimal `json:"sum_addition"`
	CountCancelled int64           `json:"count_cancelled"`
}

type HistoryEntry struct {
	ID         int64     `json:"id"`
	Action     string    `json:"action"`
	EntityType string    `json:"entity_type"`
	EntityID   int64     `json:"entity_id,omitempty"`
	Details    string    `json:"details,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

type Settings struct {
	ID             string            `json:"id"`
	CompanyName    string            `json:"company_name" validate:"max=120"`
	ShortName      string            `json:"short_name,omitempty" validate:"max=60"`
	TaxID          string            `json:"tax_id" validate:"omitempty,max=18"`
	StateRegister  string            `json:"state_register,omitempty" validate:"omitempty,max=20"`
	TerminalNumber int               `json:"terminal_number" validate:"gte=0"`
	SettledPercent int               `json:"settled_percent" validate:"gte=0,lte=100"`
	OnlyCash       bool              `json:"only_cash"`
	PaymentMethods PaymentMethodList `json:"payment_methods"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

// Product is a catalog entry. Balance is the stock on hand and may go
// negative when sales outrun restocking.
type Product struct {
	ID            int64           `json:"id"`
	Code          string          `json:"code" validate:"required,max=60"`
	Description   string          `json:"description" validate:"required,max=120"`
	UnitOfMeasure string          `json:"unit_of_measure" validate:"max=6"`
	Barcode       string          `json:"barcode,omitempty" validate:"omitempty,max=14,numeric"`
	UnitPrice     decimal.Decimal `json:"unit_price"`
	Balance       decimal.Decimal `json:"balance"`
	Active        bool            `json:"active"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

type CreateProductRequest struct {
	Code          string          `json:"code"`
	Description   string          `json:"description"`
	UnitOfMeasure string          `json:"unit_of_measure"`
	Barcode       string          `json:"barcode,omitempty"`
	UnitPrice     decimal.Decimal `json:"unit_price"`
}

// UpdateProductRequest changes only the fields that are present.
type UpdateProductRequest struct {
	Code          *string          `json:"code,omitempty"`
	Description   *string          `json:"description,omitempty"`
	UnitOfMeasure *string          `json:"unit_of_measure,omitempty"`
	Barcode       *string          `json:"barcode,omitempty"`
	UnitPrice     *decimal.Decimal `json:"unit_price,omitempty"`
	Balance       *decimal.Decimal `json:"balance,omitempty"`
	Active        *bool            `json:"active,omitempty"`
}

type AdjustBalanceRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

type Actor struct {
	Username string
	Role     string
}

type CreateSaleRequest struct {
	Sale     Sale          `json:"sale"`
	Items    []SaleItem    `json:"items" validate:"required,min=1,dive"`
	Payments []SalePayment `json:"payments" validate:"dive"`
}

type CreateSaleResponse struct {
	SaleID int64 `json:"sale_id"`
}

type CancelSaleRequest struct {
	Key          string     `json:"key" validate:"required,max=64"`
	CancelledAt  *time.Time `json:"cancelled_at,omitempty"`
	ArtifactPath string     `json:"artifact_path,omitempty" validate:"omitempty,max=512"`
	ManagerPIN   string     `json:"manager_pin,omitempty"`
}

type RecordResumeRequest struct {
	MethodCode string          `json:"method_code" validate:"required,len=2,numeric"`
	Settled    decimal.Decimal `json:"settled"`
	Unsettled  decimal.Decimal `json:"unsettled"`
}

type PurgeResumesRequest struct {
	Days int `json:"days" validate:"gte=0"`
}

type PurgeResumesResponse struct {
	Deleted int64 `json:"deleted"`
}

type IntervalReport struct {
	Start   string              `json:"start"`
	End     string              `json:"end"`
	Summary Summary             `json:"summary"`
	Sales   []SaleWithRelations `json:"sales"`
}

const (
	HistoryActionSaleCreate  = "sale_create"
	HistoryActionSaleCancel  = "sale_cancel"
	HistoryActionResumePurge = "resume_purge"

	HistoryActionProductCreate     = "product_create"
	HistoryActionProductUpdate     = "product_update"
	HistoryActionProductDeactivate = "product_deactivate"
	HistoryActionProductBalance    = "product_balance"
)

const (
	EntitySale        = "sale"
	EntityDailyResume = "daily_resume"
	EntityProduct     = "product"
)

const DefaultUnitOfMeasure = "UN"

const DefaultSettingsID = "default"
