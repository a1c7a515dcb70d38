// Package orchestrator runs composed gateway operations: ordered sequences of
// primitive calls where each step may read the running result of the steps
// before it, and the first declined step ends the run.
//
// Runs do not compensate. When a later step declines or fails in transport,
// side effects of earlier steps (a held authorization, for instance) remain,
// and Result.Authorization gives the caller the handle to reverse them.
package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/yourorg/payment-gateway/internal/response"
)

// ErrNoSteps is returned by Run when called without steps.
var ErrNoSteps = errors.New("orchestrator: no steps to run")

// Step performs one primitive call. prior is nil for the first step and
// otherwise a snapshot of the run so far.
type Step func(ctx context.Context, prior *Result) (*response.Response, error)

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// WithRegisterer registers the run and step counters on reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *Orchestrator) { o.registerer = reg }
}

// WithTracerProvider sets where run and step spans are recorded.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *Orchestrator) { o.tracer = tp.Tracer("orchestrator") }
}

// Orchestrator holds no per-run state; one instance serves concurrent runs.
type Orchestrator struct {
	logger     *zap.Logger
	tracer     trace.Tracer
	registerer prometheus.Registerer
	metrics    *metrics
}

// New creates an Orchestrator.
func New(opts ...Option) *Orchestrator {
	o := &Orchestrator{
		logger:     zap.NewNop(),
		tracer:     otel.Tracer("orchestrator"),
		registerer: prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(o)
	}
	o.metrics = newMetrics(o.registerer)
	return o
}

// Run executes steps in order. It stops at the first response with
// Success() == false, which becomes the overall response. An error returned
// by a step aborts the run: Run returns that error unchanged and no Result.
func (o *Orchestrator) Run(ctx context.Context, name string, steps ...Step) (*Result, error) {
	if len(steps) == 0 {
		return nil, ErrNoSteps
	}

	ctx, span := o.tracer.Start(ctx, "Orchestrator.Run", trace.WithAttributes(
		attribute.String("operation", name),
		attribute.Int("steps", len(steps)),
	))
	defer span.End()

	result := &Result{}
	for i, step := range steps {
		var prior *Result
		if i > 0 {
			prior = result.snapshot()
		}

		resp, err := o.runStep(ctx, name, i, step, prior)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			o.metrics.runs.WithLabelValues(name, "error").Inc()
			o.logger.Warn("composed run aborted",
				zap.String("operation", name), zap.Int("step", i+1), zap.Error(err))
			return nil, err
		}

		result.record(resp)
		if !resp.Success() {
			o.logger.Info("composed run stopped at declined step",
				zap.String("operation", name),
				zap.Int("step", i+1),
				zap.Int("skipped", len(steps)-i-1),
				zap.String("message", resp.Message()))
			break
		}
	}

	outcome := "success"
	if !result.Success() {
		outcome = "declined"
	}
	span.SetAttributes(
		attribute.Bool("success", result.Success()),
		attribute.Int("executed", len(result.responses)),
	)
	o.metrics.runs.WithLabelValues(name, outcome).Inc()
	return result, nil
}

func (o *Orchestrator) runStep(ctx context.Context, name string, i int, step Step, prior *Result) (*response.Response, error) {
	ctx, span := o.tracer.Start(ctx, "Orchestrator.Step", trace.WithAttributes(
		attribute.String("operation", name),
		attribute.Int("step", i+1),
	))
	defer span.End()
	o.metrics.steps.WithLabelValues(name).Inc()

	resp, err := step(ctx, prior)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if resp == nil {
		err := fmt.Errorf("orchestrator: %s step %d returned no response", name, i+1)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Bool("success", resp.Success()))
	return resp, nil
}
