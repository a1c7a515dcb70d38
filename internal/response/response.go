// Package response defines the uniform result returned by every gateway
// operation, primitive or composed.
//
// A Response is built once by the executor from a parsed gateway body and is
// never modified afterwards. Callers read it through accessor methods; the
// raw parsed body is handed out as a copy.
package response

import (
	"encoding/json"
	"maps"
)

// Response is the normalized outcome of one gateway call.
type Response struct {
	success       bool
	message       string
	params        map[string]any
	authorization string
	hasAuth       bool
	test          bool
	errorKind     ErrorKind
}

// Option sets an optional attribute on a Response at construction time.
type Option func(*Response)

// WithAuthorization records the reference id returned by the gateway.
// An empty id is treated as absent.
func WithAuthorization(id string) Option {
	return func(r *Response) {
		if id == "" {
			return
		}
		r.authorization = id
		r.hasAuth = true
	}
}

// WithTest marks the response as coming from a sandbox endpoint.
func WithTest(test bool) Option {
	return func(r *Response) { r.test = test }
}

// WithErrorKind attaches a standardized error kind. It is ignored for
// successful responses.
func WithErrorKind(kind ErrorKind) Option {
	return func(r *Response) { r.errorKind = kind }
}

// New builds an immutable Response. params is copied; a nil map becomes an
// empty one.
func New(success bool, message string, params map[string]any, opts ...Option) *Response {
	r := &Response{
		success: success,
		message: message,
		params:  cloneParams(params),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.success {
		r.errorKind = ""
	}
	return r
}

// Success reports whether the gateway accepted the operation.
func (r *Response) Success() bool { return r.success }

// Message is the human-readable outcome. It may be empty.
func (r *Response) Message() string { return r.message }

// Test reports whether the call went to a sandbox endpoint.
func (r *Response) Test() bool { return r.test }

// Authorization returns the gateway reference id, if the response carried one.
func (r *Response) Authorization() (string, bool) {
	return r.authorization, r.hasAuth
}

// ErrorKind returns the standardized error kind of a failed response. It is
// absent on success and when the gateway code has no mapping.
func (r *Response) ErrorKind() (ErrorKind, bool) {
	return r.errorKind, r.errorKind != ""
}

// Params returns a copy of the parsed gateway body.
func (r *Response) Params() map[string]any {
	return cloneParams(r.params)
}

// Param looks up a single top-level field of the parsed gateway body.
func (r *Response) Param(key string) (any, bool) {
	v, ok := r.params[key]
	return v, ok
}

type responseJSON struct {
	Success       bool           `json:"success"`
	Message       string         `json:"message"`
	Authorization *string        `json:"authorization,omitempty"`
	Test          bool           `json:"test"`
	ErrorCode     *ErrorKind     `json:"error_code,omitempty"`
	Params        map[string]any `json:"params"`
}

// MarshalJSON renders the response for API clients.
func (r *Response) MarshalJSON() ([]byte, error) {
	out := responseJSON{
		Success: r.success,
		Message: r.message,
		Test:    r.test,
		Params:  r.params,
	}
	if r.hasAuth {
		auth := r.authorization
		out.Authorization = &auth
	}
	if r.errorKind != "" {
		kind := r.errorKind
		out.ErrorCode = &kind
	}
	return json.Marshal(out)
}

func cloneParams(params map[string]any) map[string]any {
	if params == nil {
		return map[string]any{}
	}
	return maps.Clone(params)
}
