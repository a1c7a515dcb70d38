// Package transport performs the network round trip to a payment gateway.
//
// The Transport interface is what the executor depends on. HTTPClient is the
// production implementation: it owns endpoint selection (test or live),
// authentication headers, idempotency keys, optional retries and a
// per-endpoint circuit breaker. Gateway declines are not transport failures:
// a non-2xx reply is returned together with a *StatusError that still carries
// the body, so callers can normalize the structured decline it contains.
package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// ErrCircuitOpen is wrapped in an *Error when the breaker rejects a call.
var ErrCircuitOpen = errors.New("circuit open")

// Reply is the raw outcome of one round trip.
type Reply struct {
	StatusCode int
	Body       []byte
}

// Transport sends one serialized request to a gateway endpoint.
type Transport interface {
	Post(ctx context.Context, endpoint string, body []byte) (*Reply, error)
}

// Error is a connectivity failure, timeout, open circuit or undecodable
// response body. It is the only error class the executor raises.
type Error struct {
	Endpoint string
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("transport: %s: %v", e.Endpoint, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Timeout reports whether the failure was a deadline or network timeout.
func (e *Error) Timeout() bool {
	if errors.Is(e.Err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(e.Err, &netErr) && netErr.Timeout()
}

// IsError reports whether err is, or wraps, a transport *Error.
func IsError(err error) bool {
	var te *Error
	return errors.As(err, &te)
}

// StatusError reports a non-2xx reply. Body holds whatever the gateway sent.
type StatusError struct {
	StatusCode int
	Body       []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("gateway responded with HTTP %d", e.StatusCode)
}
