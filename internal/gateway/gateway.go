// Package gateway exposes the uniform payment operations. Primitive
// operations map onto one executor call each; purchase and verify are
// composed runs on the orchestrator.
package gateway

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/zoobzio/clockz"
	"go.uber.org/zap"

	"github.com/yourorg/payment-gateway/internal/action"
	"github.com/yourorg/payment-gateway/internal/audit"
	"github.com/yourorg/payment-gateway/internal/orchestrator"
	"github.com/yourorg/payment-gateway/internal/request"
	"github.com/yourorg/payment-gateway/internal/response"
	"github.com/yourorg/payment-gateway/internal/telemetry"
)

var (
	// ErrInvalidRequest wraps every input validation failure.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrMissingAuthorization is returned when a composed run reaches a step
	// that needs an authorization handle and no earlier step produced one.
	ErrMissingAuthorization = errors.New("no authorization handle to continue with")
)

// Executor performs one primitive gateway call.
type Executor interface {
	Execute(ctx context.Context, a action.Action, req request.Request) (*response.Response, error)
}

// FieldMapper builds gateway requests from typed inputs.
type FieldMapper interface {
	Authorize(money request.Money, inst request.Instrument, opts request.Options) (request.Request, error)
	Capture(money request.Money, authorization string, opts request.Options) (request.Request, error)
	Refund(money request.Money, authorization string, opts request.Options) (request.Request, error)
	Void(authorization string, opts request.Options) (request.Request, error)
}

// DanglingFunc is told about a verification authorization that could not be
// voided. void is the declined void response, or nil when err (a transport
// failure) prevented one.
type DanglingFunc func(ctx context.Context, authorization string, void *response.Response, err error)

// Config carries the gateway's collaborators. Mapper is required.
type Config struct {
	Mapper FieldMapper
	// VerifyAmount is authorized and voided by Verify. Defaults to 1.00 USD.
	VerifyAmount            request.Money
	Recorder                audit.Recorder
	OnDanglingAuthorization DanglingFunc
	Orchestrator            *orchestrator.Orchestrator
	Logger                  *zap.Logger
	Registerer              prometheus.Registerer
	Clock                   clockz.Clock
}

// Gateway is safe for concurrent use.
type Gateway struct {
	exec         Executor
	mapper       FieldMapper
	orch         *orchestrator.Orchestrator
	recorder     audit.Recorder
	verifyAmount request.Money
	onDangling   DanglingFunc
	logger       *zap.Logger
	clock        clockz.Clock
	voidFailures prometheus.Counter
}

// New validates cfg and fills in defaults.
func New(exec Executor, cfg Config) (*Gateway, error) {
	if exec == nil {
		return nil, errors.New("gateway: executor is required")
	}
	if cfg.Mapper == nil {
		return nil, errors.New("gateway: field mapper is required")
	}
	if cfg.VerifyAmount.Currency == "" {
		cfg.VerifyAmount = request.Money{Amount: decimal.New(1, 0), Currency: "USD"}
	}
	if err := cfg.VerifyAmount.Validate(); err != nil {
		return nil, fmt.Errorf("gateway: verify amount: %w", err)
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Registerer == nil {
		cfg.Registerer = prometheus.DefaultRegisterer
	}
	if cfg.Recorder == nil {
		cfg.Recorder = audit.Nop{}
	}
	if cfg.Clock == nil {
		cfg.Clock = clockz.RealClock
	}
	if cfg.Orchestrator == nil {
		cfg.Orchestrator = orchestrator.New(
			orchestrator.WithLogger(cfg.Logger),
			orchestrator.WithRegisterer(cfg.Registerer),
		)
	}

	return &Gateway{
		exec:         exec,
		mapper:       cfg.Mapper,
		orch:         cfg.Orchestrator,
		recorder:     cfg.Recorder,
		verifyAmount: cfg.VerifyAmount,
		onDangling:   cfg.OnDanglingAuthorization,
		logger:       cfg.Logger,
		clock:        cfg.Clock,
		voidFailures: telemetry.Register(cfg.Registerer, prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gateway_verify_void_failures_total",
			Help: "Verification authorizations whose void was declined or failed in transport.",
		})),
	}, nil
}

// Authorize holds money on the instrument.
func (g *Gateway) Authorize(ctx context.Context, money request.Money, inst request.Instrument, opts request.Options) (*response.Response, error) {
	req, err := g.mapper.Authorize(money, inst, opts)
	if err != nil {
		return nil, invalid(err)
	}
	return g.call(ctx, "authorize", action.Authorize, &money, opts.Reference, req)
}

// Capture settles money against an earlier authorization.
func (g *Gateway) Capture(ctx context.Context, money request.Money, authorization string, opts request.Options) (*response.Response, error) {
	req, err := g.mapper.Capture(money, authorization, opts)
	if err != nil {
		return nil, invalid(err)
	}
	return g.call(ctx, "capture", action.Capture, &money, opts.Reference, req)
}

// Refund returns money from a settled transaction.
func (g *Gateway) Refund(ctx context.Context, money request.Money, authorization string, opts request.Options) (*response.Response, error) {
	req, err := g.mapper.Refund(money, authorization, opts)
	if err != nil {
		return nil, invalid(err)
	}
	return g.call(ctx, "refund", action.Refund, &money, opts.Reference, req)
}

// Void cancels an authorization.
func (g *Gateway) Void(ctx context.Context, authorization string, opts request.Options) (*response.Response, error) {
	req, err := g.mapper.Void(authorization, opts)
	if err != nil {
		return nil, invalid(err)
	}
	return g.call(ctx, "void", action.Cancel, nil, opts.Reference, req)
}

// Purchase authorizes and then captures the same money against the new
// authorization. The overall response is the capture's, or the first
// decline. A declined capture leaves the authorization held; the handle is
// available from the result's Authorization.
func (g *Gateway) Purchase(ctx context.Context, money request.Money, inst request.Instrument, opts request.Options) (*orchestrator.Result, error) {
	authReq, err := g.mapper.Authorize(money, inst, opts)
	if err != nil {
		return nil, invalid(err)
	}

	authorize := func(ctx context.Context, _ *orchestrator.Result) (*response.Response, error) {
		return g.call(ctx, "purchase", action.Authorize, &money, opts.Reference, authReq)
	}
	capture := func(ctx context.Context, prior *orchestrator.Result) (*response.Response, error) {
		id, ok := prior.Authorization()
		if !ok {
			return nil, ErrMissingAuthorization
		}
		req, err := g.mapper.Capture(money, id, opts)
		if err != nil {
			return nil, invalid(err)
		}
		return g.call(ctx, "purchase", action.Capture, &money, opts.Reference, req)
	}
	return g.orch.Run(ctx, "purchase", authorize, capture)
}

// Verification is the outcome of Verify. It reads as the authorization
// response; the void that followed it is available separately.
type Verification struct {
	*response.Response
	steps *orchestrator.Result
}

// Steps returns the full composed result.
func (v *Verification) Steps() *orchestrator.Result { return v.steps }

// Void returns the void step's response if the void ran.
func (v *Verification) Void() (*response.Response, bool) {
	responses := v.steps.Responses()
	if len(responses) < 2 {
		return nil, false
	}
	return responses[1], true
}

// Verify checks the instrument by authorizing the verify amount and voiding
// that authorization straight away. The visible outcome is the
// authorization's. A void that is declined or fails in transport is logged,
// counted and passed to Config.OnDanglingAuthorization. A transport failure
// of either step is also returned.
func (g *Gateway) Verify(ctx context.Context, inst request.Instrument, opts request.Options) (*Verification, error) {
	money := g.verifyAmount
	authReq, err := g.mapper.Authorize(money, inst, opts)
	if err != nil {
		return nil, invalid(err)
	}

	var held string
	authorize := func(ctx context.Context, _ *orchestrator.Result) (*response.Response, error) {
		resp, err := g.call(ctx, "verify", action.Authorize, &money, opts.Reference, authReq)
		if err == nil && resp.Success() {
			held, _ = resp.Authorization()
		}
		return resp, err
	}
	void := func(ctx context.Context, prior *orchestrator.Result) (*response.Response, error) {
		id, ok := prior.Authorization()
		if !ok {
			return nil, ErrMissingAuthorization
		}
		req, err := g.mapper.Void(id, opts)
		if err != nil {
			return nil, invalid(err)
		}
		return g.call(ctx, "verify", action.Cancel, nil, opts.Reference, req)
	}

	result, err := g.orch.Run(ctx, "verify", authorize, void)
	if err != nil {
		if held != "" {
			g.dangling(ctx, held, nil, err)
		}
		return nil, err
	}

	v := &Verification{Response: result.Responses()[0], steps: result}
	if voidResp, ran := v.Void(); ran && !voidResp.Success() {
		g.dangling(ctx, held, voidResp, nil)
	}
	return v, nil
}

func (g *Gateway) dangling(ctx context.Context, authorization string, void *response.Response, err error) {
	g.voidFailures.Inc()
	fields := []zap.Field{zap.String("authorization", authorization)}
	if void != nil {
		fields = append(fields, zap.String("void_message", void.Message()))
	}
	if err != nil {
		fields = append(fields, zap.Error(err))
	}
	g.logger.Warn("verification authorization was not voided", fields...)
	if g.onDangling != nil {
		g.onDangling(ctx, authorization, void, err)
	}
}

func (g *Gateway) call(ctx context.Context, operation string, a action.Action, money *request.Money, reference string, req request.Request) (*response.Response, error) {
	resp, err := g.exec.Execute(ctx, a, req)

	entry := audit.Entry{
		ID:         uuid.NewString(),
		Operation:  operation,
		Action:     a.String(),
		Reference:  reference,
		RecordedAt: g.clock.Now(),
	}
	if money != nil {
		entry.Amount = money.Amount
		entry.Currency = money.Currency
	}
	if err != nil {
		entry.Error = err.Error()
	} else {
		entry.Success = resp.Success()
		entry.Message = resp.Message()
		entry.Test = resp.Test()
		entry.Authorization, _ = resp.Authorization()
		if kind, ok := resp.ErrorKind(); ok {
			entry.ErrorKind = string(kind)
		}
	}
	if rerr := g.recorder.Record(ctx, entry); rerr != nil {
		g.logger.Warn("audit record failed",
			zap.String("operation", operation), zap.String("action", a.String()), zap.Error(rerr))
	}
	return resp, err
}

func invalid(err error) error {
	return fmt.Errorf("%w: %w", ErrInvalidRequest, err)
}
