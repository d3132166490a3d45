package domain

import (
	"regexp"
	"sort"
	"strings"
)

const (
	FieldName     = "name"
	FieldEmail    = "email"
	FieldAddress  = "address"
	FieldCity     = "city"
	FieldPostcode = "postcode"
)

// CheckoutFields lists the required fields in display order.
var CheckoutFields = []string{FieldName, FieldEmail, FieldAddress, FieldCity, FieldPostcode}

var fieldLabels = map[string]string{
	FieldName:     "Name",
	FieldEmail:    "Email",
	FieldAddress:  "Address",
	FieldCity:     "City",
	FieldPostcode: "Postcode",
}

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

type FieldErrorKind string

const (
	ErrorRequired      FieldErrorKind = "REQUIRED"
	ErrorInvalidFormat FieldErrorKind = "INVALID_FORMAT"
)

type FieldError struct {
	Field   string         `json:"field"`
	Kind    FieldErrorKind `json:"kind"`
	Message string         `json:"message"`
}

// ValidationErrors is keyed by field name. Empty means valid.
type ValidationErrors map[string]FieldError

// Messages lists the error texts, checkout fields first in display order and
// any other fields after them by name.
func (v ValidationErrors) Messages() []string {
	out := make([]string, 0, len(v))
	seen := make(map[string]bool, len(CheckoutFields))
	for _, f := range CheckoutFields {
		seen[f] = true
		if e, ok := v[f]; ok {
			out = append(out, e.Message)
		}
	}

	var rest []string
	for f := range v {
		if !seen[f] {
			rest = append(rest, f)
		}
	}
	sort.Strings(rest)
	for _, f := range rest {
		out = append(out, v[f].Message)
	}
	return out
}

type CheckoutForm struct {
	Values map[string]string `json:"values"`
}

func NewCheckoutForm() *CheckoutForm {
	return &CheckoutForm{Values: make(map[string]string, len(CheckoutFields))}
}

// SetField stores the raw value without validating it.
func (f *CheckoutForm) SetField(name, value string) {
	if f.Values == nil {
		f.Values = make(map[string]string, len(CheckoutFields))
	}
	f.Values[name] = value
}

func (f *CheckoutForm) Field(name string) string {
	return f.Values[name]
}

func (f *CheckoutForm) Validate() ValidationErrors {
	errs := ValidationErrors{}
	for _, name := range CheckoutFields {
		value := strings.TrimSpace(f.Values[name])
		if value == "" {
			errs[name] = FieldError{
				Field:   name,
				Kind:    ErrorRequired,
				Message: fieldLabels[name] + " is required",
			}
			continue
		}
		if name == FieldEmail && !emailPattern.MatchString(value) {
			errs[name] = FieldError{
				Field:   name,
				Kind:    ErrorInvalidFormat,
				Message: "Invalid email format",
			}
		}
	}
	return errs
}

func (f *CheckoutForm) IsSubmittable(cart *Cart) bool {
	if cart == nil || cart.IsEmpty() {
		return false
	}
	return len(f.Validate()) == 0
}

// Customer returns the trimmed values of the known fields.
func (f *CheckoutForm) Customer() Customer {
	get := func(name string) string { return strings.TrimSpace(f.Values[name]) }
	return Customer{
		Name:     get(FieldName),
		Email:    get(FieldEmail),
		Address:  get(FieldAddress),
		City:     get(FieldCity),
		Postcode: get(FieldPostcode),
	}
}
