package validation

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/kirillkom/docflow/internal/core/domain"
)

// Rules declares the checks for one document type.
type Rules struct {
	Required []string `json:"required"`
	Dates    []string `json:"dates"`
	Numerics []string `json:"numerics"`
}

var defaultRules = map[domain.DocumentType]Rules{
	domain.TypeCMR: {
		Required: []string{"shipper_name", "consignee_name", "date_of_consignment"},
		Dates:    []string{"date_of_consignment"},
	},
	domain.TypeInvoice: {
		Required: []string{"invoice_number", "invoice_date", "total_amount"},
		Dates:    []string{"invoice_date"},
		Numerics: []string{"total_amount", "tax_amount"},
	},
	domain.TypeDeliveryNote: {
		Required: []string{"delivery_date", "recipient_name"},
		Dates:    []string{"delivery_date"},
	},
}

// Longer codes first so "EUR" is not left half-stripped by a shorter token.
var currencyTokens = []string{"EUR", "USD", "GBP", "CHF", "$", "€", "£", ","}

// Engine evaluates the immutable rule table. The zero value is not usable; call NewEngine.
type Engine struct {
	rules map[domain.DocumentType]Rules
}

func NewEngine() *Engine {
	return &Engine{rules: defaultRules}
}

// RulesFor reports the rule set for docType and whether one is configured.
func (e *Engine) RulesFor(docType domain.DocumentType) (Rules, bool) {
	r, ok := e.rules[docType]
	return r, ok
}

// Validate returns required errors in rule order, then date, then numeric errors.
// Types without rules produce none.
func (e *Engine) Validate(docType domain.DocumentType, data map[string]any) []domain.ValidationError {
	rules, ok := e.rules[docType]
	if !ok {
		return []domain.ValidationError{}
	}

	errs := make([]domain.ValidationError, 0)
	for _, field := range rules.Required {
		if isEmpty(data[field]) {
			errs = append(errs, fieldError(field, fmt.Sprintf("Required field '%s' is missing", field)))
		}
	}
	for _, field := range rules.Dates {
		value, present := data[field]
		if !present || value == nil {
			continue
		}
		if _, isString := value.(string); !isString {
			errs = append(errs, fieldError(field, "Date must be a valid string"))
		}
	}
	for _, field := range rules.Numerics {
		value := data[field]
		if isEmpty(value) {
			continue
		}
		if !isNumeric(value) {
			errs = append(errs, fieldError(field, fmt.Sprintf("Field '%s' must be a valid number", field)))
		}
	}
	return errs
}

// Status folds errors into PASSED, FAILED or WARNING.
func Status(errs []domain.ValidationError) domain.ValidationStatus {
	if len(errs) == 0 {
		return domain.ValidationPassed
	}
	for _, e := range errs {
		if e.Severity == domain.SeverityError {
			return domain.ValidationFailed
		}
	}
	return domain.ValidationWarning
}

func fieldError(field, message string) domain.ValidationError {
	return domain.ValidationError{Field: field, Message: message, Severity: domain.SeverityError}
}

func isEmpty(value any) bool {
	if value == nil {
		return true
	}
	if s, ok := value.(string); ok {
		return s == ""
	}
	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Slice, reflect.Map, reflect.Array:
		return rv.Len() == 0
	}
	return false
}

func isNumeric(value any) bool {
	switch v := value.(type) {
	case float64, float32, int, int32, int64, uint, uint32, uint64, json.Number:
		return true
	case string:
		return parseAmount(v)
	default:
		return false
	}
}

func parseAmount(raw string) bool {
	cleaned := strings.ToUpper(raw)
	for _, token := range currencyTokens {
		cleaned = strings.ReplaceAll(cleaned, token, "")
	}
	cleaned = strings.Join(strings.Fields(cleaned), "")
	if cleaned == "" {
		return false
	}
	_, err := strconv.ParseFloat(cleaned, 64)
	return err == nil
}
