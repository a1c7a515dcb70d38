// Package executor performs one primitive gateway call and normalizes the
// gateway's reply into a response.Response.
package executor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/yourorg/payment-gateway/internal/action"
	"github.com/yourorg/payment-gateway/internal/classifier"
	"github.com/yourorg/payment-gateway/internal/codec"
	"github.com/yourorg/payment-gateway/internal/profile"
	"github.com/yourorg/payment-gateway/internal/request"
	"github.com/yourorg/payment-gateway/internal/response"
	"github.com/yourorg/payment-gateway/internal/transport"
)

// ErrUnsupportedAction is returned for an action the profile does not define.
var ErrUnsupportedAction = errors.New("action not supported by gateway profile")

// Parser decodes a raw response body into a field map.
type Parser interface {
	Parse(body []byte) (map[string]any, error)
}

// Option configures an Executor.
type Option func(*Executor)

// WithParser replaces the default JSON parser.
func WithParser(p Parser) Option {
	return func(e *Executor) { e.parser = p }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Executor) { e.logger = l }
}

// WithRegisterer registers the executor's collectors on reg instead of the
// default registry.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(e *Executor) { e.registerer = reg }
}

// WithTracerProvider sets where Executor.Execute spans are recorded.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(e *Executor) { e.tracer = tp.Tracer("executor") }
}

// WithTest marks every response as produced against the test environment.
// Without it the mode is taken from the transport when it reports one.
func WithTest(test bool) Option {
	return func(e *Executor) { e.test = &test }
}

// Executor is safe for concurrent use. It holds only the compiled profile and
// concurrency-safe collaborators.
type Executor struct {
	profile    *profile.Profile
	transport  transport.Transport
	classifier *classifier.Classifier
	parser     Parser
	test       *bool
	logger     *zap.Logger
	tracer     trace.Tracer
	registerer prometheus.Registerer
	metrics    *metrics
}

// New builds an Executor for the gateway described by p.
func New(p *profile.Profile, t transport.Transport, opts ...Option) (*Executor, error) {
	if p == nil {
		return nil, errors.New("executor: profile is required")
	}
	if t == nil {
		return nil, errors.New("executor: transport is required")
	}
	e := &Executor{
		profile:    p,
		transport:  t,
		classifier: classifier.New(p.ErrorCodes),
		parser:     codec.JSON{},
		logger:     zap.NewNop(),
		tracer:     otel.Tracer("executor"),
		registerer: prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.test == nil {
		test := false
		if tm, ok := t.(interface{ Test() bool }); ok {
			test = tm.Test()
		}
		e.test = &test
	}
	e.metrics = newMetrics(e.registerer)
	return e, nil
}

// Execute sends req for action a and returns the normalized response.
// Declines are responses with Success() == false. The returned error is
// always a *transport.Error, except ErrUnsupportedAction for an action the
// profile does not define.
func (e *Executor) Execute(ctx context.Context, a action.Action, req request.Request) (*response.Response, error) {
	spec, ok := e.profile.Action(a)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedAction, a)
	}

	ctx, span := e.tracer.Start(ctx, "Executor.Execute", trace.WithAttributes(
		attribute.String("gateway.name", e.profile.Name),
		attribute.String("gateway.action", a.String()),
		attribute.String("gateway.endpoint", spec.Endpoint),
	))
	defer span.End()

	start := time.Now()
	resp, err := e.execute(ctx, a, spec, req)
	e.metrics.observe(a, resp, err, time.Since(start))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		e.logger.Warn("gateway call failed",
			zap.String("action", a.String()), zap.String("endpoint", spec.Endpoint), zap.Error(err))
		return nil, err
	}

	span.SetAttributes(attribute.Bool("gateway.success", resp.Success()))
	if kind, ok := resp.ErrorKind(); ok {
		span.SetAttributes(attribute.String("gateway.error_kind", string(kind)))
	}
	e.logger.Debug("gateway call completed",
		zap.String("action", a.String()),
		zap.Bool("success", resp.Success()),
		zap.String("message", resp.Message()))
	return resp, nil
}

func (e *Executor) execute(ctx context.Context, a action.Action, spec profile.ActionSpec, req request.Request) (*response.Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, &transport.Error{Endpoint: spec.Endpoint, Err: fmt.Errorf("encode request: %w", err)}
	}

	reply, err := e.transport.Post(ctx, spec.Endpoint, body)
	if err != nil {
		var se *transport.StatusError
		if !errors.As(err, &se) {
			if transport.IsError(err) {
				return nil, err
			}
			return nil, &transport.Error{Endpoint: spec.Endpoint, Err: err}
		}
		// A non-2xx reply is a structured decline; its body is normalized
		// like any other.
		if reply == nil {
			reply = &transport.Reply{StatusCode: se.StatusCode, Body: se.Body}
		}
	}
	if reply == nil {
		return nil, &transport.Error{Endpoint: spec.Endpoint, Err: errors.New("no reply")}
	}

	fields, err := e.parser.Parse(reply.Body)
	if err != nil {
		return nil, &transport.Error{Endpoint: spec.Endpoint, Err: err}
	}
	return e.normalize(a, spec, fields), nil
}

func (e *Executor) normalize(a action.Action, spec profile.ActionSpec, fields map[string]any) *response.Response {
	success, err := spec.Success.Eval(fields)
	if err != nil {
		e.logger.Warn("success expression could not be evaluated, treating response as declined",
			zap.String("action", a.String()), zap.Error(err))
		success = false
	}

	opts := []response.Option{response.WithTest(*e.test)}
	if id := classifier.Code(fields[e.profile.AuthorizationField]); id != "" {
		opts = append(opts, response.WithAuthorization(id))
	}
	if !success && e.profile.ErrorCodeField != "" {
		if kind, ok := e.classifier.Classify(classifier.Code(fields[e.profile.ErrorCodeField])); ok {
			opts = append(opts, response.WithErrorKind(kind))
		}
	}
	return response.New(success, spec.Message(fields), fields, opts...)
}
