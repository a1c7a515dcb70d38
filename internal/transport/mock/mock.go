// Package mock provides a scriptable transport.Transport for tests.
package mock

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/yourorg/payment-gateway/internal/transport"
)

// Call is one recorded Post.
type Call struct {
	Endpoint string
	Body     []byte
}

// Fields decodes the recorded body. It returns nil if the body is not a JSON object.
func (c Call) Fields() map[string]any {
	var out map[string]any
	if err := json.Unmarshal(c.Body, &out); err != nil {
		return nil
	}
	return out
}

// Transport records every call and delegates to PostFunc. With no PostFunc
// it replies 200 with an empty JSON object.
type Transport struct {
	PostFunc func(ctx context.Context, endpoint string, body []byte) (*transport.Reply, error)

	mu    sync.Mutex
	calls []Call
}

// New creates an empty Transport.
func New() *Transport {
	return &Transport{}
}

// Reply is a PostFunc that always answers with status and body.
func Reply(status int, body string) func(context.Context, string, []byte) (*transport.Reply, error) {
	return func(context.Context, string, []byte) (*transport.Reply, error) {
		r := &transport.Reply{StatusCode: status, Body: []byte(body)}
		if status < 200 || status > 299 {
			return r, &transport.StatusError{StatusCode: status, Body: r.Body}
		}
		return r, nil
	}
}

// Post implements transport.Transport.
func (m *Transport) Post(ctx context.Context, endpoint string, body []byte) (*transport.Reply, error) {
	m.mu.Lock()
	m.calls = append(m.calls, Call{Endpoint: endpoint, Body: append([]byte(nil), body...)})
	fn := m.PostFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, endpoint, body)
	}
	return &transport.Reply{StatusCode: 200, Body: []byte("{}")}, nil
}

// Calls returns a copy of the recorded calls in order.
func (m *Transport) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Call(nil), m.calls...)
}
