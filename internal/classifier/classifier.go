// Package classifier maps gateway-specific decline codes onto the shared
// response.ErrorKind taxonomy.
package classifier

import (
	"maps"
	"strconv"

	"github.com/yourorg/payment-gateway/internal/response"
)

// Table is a per-gateway mapping from decline code to error kind.
type Table map[string]response.ErrorKind

// Classifier is a stateless lookup over a Table. It is safe for concurrent use.
type Classifier struct {
	table Table
}

// New copies table so later changes by the caller have no effect.
func New(table Table) *Classifier {
	return &Classifier{table: maps.Clone(table)}
}

// Classify returns the error kind for code. A code without a mapping is not
// an error: the second return value is false and callers fall back to the
// gateway message.
func (c *Classifier) Classify(code string) (response.ErrorKind, bool) {
	if c == nil || code == "" {
		return "", false
	}
	kind, ok := c.table[code]
	return kind, ok
}

// Code renders a decline code taken from a parsed JSON body. Gateways send
// codes as strings or numbers; anything else has no code.
func Code(v any) string {
	switch c := v.(type) {
	case string:
		return c
	case float64:
		return strconv.FormatFloat(c, 'f', -1, 64)
	case int:
		return strconv.Itoa(c)
	case int64:
		return strconv.FormatInt(c, 10)
	default:
		return ""
	}
}
