package domain

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

type PaymentType struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

// PaymentTypes is the fiscal payment-method catalog, ordered by code.
var PaymentTypes = []PaymentType{
	{Code: "01", Name: "Dinheiro"},
	{Code: "02", Name: "Cheque"},
	{Code: "03", Name: "Cartao de Credito"},
	{Code: "04", Name: "Cartao de Debito"},
	{Code: "05", Name: "Credito Loja"},
	{Code: "10", Name: "Vale Alimentacao"},
	{Code: "11", Name: "Vale Refeicao"},
	{Code: "12", Name: "Vale Presente"},
	{Code: "13", Name: "Vale Combustivel"},
	{Code: "14", Name: "Duplicata Mercantil"},
	{Code: "15", Name: "Boleto Bancario"},
	{Code: "90", Name: "Sem Pagamento"},
	{Code: "99", Name: "Outros"},
}

func LookupPaymentType(code string) (PaymentType, bool) {
	code = strings.TrimSpace(code)
	for _, pt := range PaymentTypes {
		if pt.Code == code {
			return pt, true
		}
	}
	return PaymentType{}, false
}

// PaymentMethod is one entry of the terminal's enabled payment-method list.
type PaymentMethod struct {
	Code   string `json:"code"`
	Name   string `json:"name"`
	Active bool   `json:"active"`
}

var ErrInvalidPaymentMethods = errors.New("invalid payment method list")

// PaymentMethodList is persisted as a JSON array and checked against the
// catalog on both encode and decode.
type PaymentMethodList []PaymentMethod

func (l PaymentMethodList) Validate() error {
	seen := make(map[string]struct{}, len(l))
	for _, m := range l {
		if _, ok := LookupPaymentType(m.Code); !ok {
			return fmt.Errorf("%w: unknown code %q", ErrInvalidPaymentMethods, m.Code)
		}
		if _, dup := seen[m.Code]; dup {
			return fmt.Errorf("%w: duplicate code %q", ErrInvalidPaymentMethods, m.Code)
		}
		seen[m.Code] = struct{}{}
	}
	return nil
}

// Accepts reports whether code is active in the list. An empty list accepts
// every catalog code.
func (l PaymentMethodList) Accepts(code string) bool {
	if len(l) == 0 {
		_, ok := LookupPaymentType(code)
		return ok
	}
	for _, m := range l {
		if m.Code == code {
			return m.Active
		}
	}
	return false
}

func (l PaymentMethodList) Value() (driver.Value, error) {
	if err := l.Validate(); err != nil {
		return nil, err
	}
	if l == nil {
		return "[]", nil
	}
	payload, err := json.Marshal([]PaymentMethod(l))
	if err != nil {
		return nil, err
	}
	return string(payload), nil
}

func (l *PaymentMethodList) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*l = nil
		return nil
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return fmt.Errorf("%w: unsupported column type %T", ErrInvalidPaymentMethods, src)
	}
	if len(strings.TrimSpace(string(raw))) == 0 {
		*l = nil
		return nil
	}

	var decoded []PaymentMethod
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPaymentMethods, err)
	}
	list := PaymentMethodList(decoded)
	if err := list.Validate(); err != nil {
		return err
	}
	*l = list
	return nil
}
