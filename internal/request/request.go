// Package request holds the typed inputs of the uniform operations and the
// immutable gateway request they are mapped into.
package request

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

var maxMinorUnits = decimal.NewFromInt(math.MaxInt64)

// Money is an amount in major units together with its ISO 4217 currency.
type Money struct {
	Amount   decimal.Decimal
	Currency string
}

// NewMoney parses a decimal amount such as "10.00".
func NewMoney(amount, currency string) (Money, error) {
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return Money{}, fmt.Errorf("invalid amount %q: %w", amount, err)
	}
	m := Money{Amount: d, Currency: strings.ToUpper(currency)}
	if err := m.Validate(); err != nil {
		return Money{}, err
	}
	return m, nil
}

// Validate rejects negative amounts and malformed currency codes.
func (m Money) Validate() error {
	if m.Amount.IsNegative() {
		return fmt.Errorf("amount must not be negative, got %s", m.Amount)
	}
	if len(m.Currency) != 3 {
		return fmt.Errorf("currency must be a 3-letter code, got %q", m.Currency)
	}
	minor := m.Amount.Shift(2)
	if !minor.Equal(minor.Truncate(0)) {
		return fmt.Errorf("amount %s has more than 2 decimal places", m.Amount)
	}
	if minor.GreaterThan(maxMinorUnits) {
		return fmt.Errorf("amount %s is too large", m.Amount)
	}
	return nil
}

// MinorUnits returns the amount in cents. It is exact for amounts that pass
// Validate.
func (m Money) MinorUnits() int64 {
	return m.Amount.Shift(2).IntPart()
}

func (m Money) String() string {
	return m.Amount.StringFixed(2) + " " + m.Currency
}

// Request is the gateway-specific field set for one primitive call. It is
// built once by a field mapper and never modified.
type Request struct {
	fields map[string]any
}

// New deep-copies fields into a Request.
func New(fields map[string]any) Request {
	return Request{fields: copyMap(fields)}
}

// Fields returns a deep copy of the request fields.
func (r Request) Fields() map[string]any {
	return copyMap(r.fields)
}

// Get returns a copy of a top-level field.
func (r Request) Get(key string) (any, bool) {
	v, ok := r.fields[key]
	return copyValue(v), ok
}

// MarshalJSON encodes the request body.
func (r Request) MarshalJSON() ([]byte, error) {
	if r.fields == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(r.fields)
}

func copyMap(src map[string]any) map[string]any {
	dst := make(map[string]any, len(src))
	for k, v := range src {
		dst[k] = copyValue(v)
	}
	return dst
}

func copyValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return copyMap(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = copyValue(e)
		}
		return out
	default:
		return v
	}
}
