package service

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"pdvledger/backend/internal/store"
)

// ValidationError maps field paths to the rule they broke. It matches
// store.ErrInvalidInput under errors.Is.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+e.Fields[k])
	}
	return fmt.Sprintf("%s: %s", store.ErrInvalidInput, strings.Join(parts, ", "))
}

func (e *ValidationError) Is(target error) bool {
	return target == store.ErrInvalidInput
}

func (s *Service) validateStruct(v interface{}) error {
	err := s.validate.Struct(v)
	if err == nil {
		return nil
	}
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return fmt.Errorf("%w: %v", store.ErrInvalidInput, err)
	}
	fields := make(map[string]string, len(validationErrors))
	for _, ve := range validationErrors {
		fields[fieldPath(ve.Namespace())] = ve.Tag()
	}
	return &ValidationError{Fields: fields}
}

// fieldPath drops the root struct name from a validator namespace.
func fieldPath(namespace string) string {
	if idx := strings.Index(namespace, "."); idx >= 0 {
		return namespace[idx+1:]
	}
	return namespace
}

// amountRules collects non-negative and positive checks on decimals, which
// struct tags cannot express.
type amountRules struct {
	fields map[string]string
}

func (r *amountRules) nonNegative(field string, v decimal.Decimal) {
	if v.IsNegative() {
		r.fail(field, "gte=0")
	}
}

func (r *amountRules) positive(field string, v decimal.Decimal) {
	if !v.IsPositive() {
		r.fail(field, "gt=0")
	}
}

func (r *amountRules) fail(field string, rule string) {
	if r.fields == nil {
		r.fields = make(map[string]string)
	}
	r.fields[field] = rule
}

func (r *amountRules) err() error {
	if len(r.fields) == 0 {
		return nil
	}
	return &ValidationError{Fields: r.fields}
}
