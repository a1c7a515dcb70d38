package orchestrator

import "github.com/yourorg/payment-gateway/internal/response"

// Result is the outcome of one composed run: every executed step's response
// in order, plus the overall response.
type Result struct {
	responses []*response.Response
	overall   *response.Response
}

// Overall is the first failing step's response, or the last step's response
// when every step succeeded.
func (r *Result) Overall() *response.Response { return r.overall }

// Success reports whether every executed step succeeded.
func (r *Result) Success() bool { return r.overall != nil && r.overall.Success() }

// Responses returns the per-step responses in execution order.
func (r *Result) Responses() []*response.Response {
	return append([]*response.Response(nil), r.responses...)
}

// Authorization returns the first authorization handle among the executed
// steps, in step order.
func (r *Result) Authorization() (string, bool) {
	for _, resp := range r.responses {
		if id, ok := resp.Authorization(); ok {
			return id, true
		}
	}
	return "", false
}

func (r *Result) record(resp *response.Response) {
	r.responses = append(r.responses, resp)
	if r.overall == nil || r.overall.Success() {
		r.overall = resp
	}
}

func (r *Result) snapshot() *Result {
	return &Result{responses: r.Responses(), overall: r.overall}
}
