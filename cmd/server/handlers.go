package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"github.com/yourorg/payment-gateway/internal/audit"
	"github.com/yourorg/payment-gateway/internal/gateway"
	"github.com/yourorg/payment-gateway/internal/idempotency"
	"github.com/yourorg/payment-gateway/internal/monitor"
	"github.com/yourorg/payment-gateway/internal/orchestrator"
	"github.com/yourorg/payment-gateway/internal/reporting"
	"github.com/yourorg/payment-gateway/internal/request"
	"github.com/yourorg/payment-gateway/internal/response"
	"github.com/yourorg/payment-gateway/internal/transport"
)

const serviceName = "payment-gateway"

type paymentBody struct {
	Amount     string             `json:"amount"`
	Currency   string             `json:"currency"`
	Instrument request.Instrument `json:"instrument"`
	Options    request.Options    `json:"options"`
}

type modificationBody struct {
	Amount        string          `json:"amount"`
	Currency      string          `json:"currency"`
	Authorization string          `json:"authorization"`
	Options       request.Options `json:"options"`
}

type voidBody struct {
	Authorization string          `json:"authorization"`
	Options       request.Options `json:"options"`
}

type verifyBody struct {
	Instrument request.Instrument `json:"instrument"`
	Options    request.Options    `json:"options"`
}

type server struct {
	gw       *gateway.Gateway
	contract *monitor.ContractMonitor
	entries  *audit.MemoryStore
	reporter *reporting.RetrospectiveReporter
	logger   *zap.Logger
}

type routerDeps struct {
	idempotency    idempotency.Store
	idempotencyTTL time.Duration
	gatherer       prometheus.Gatherer
}

func setupRouter(s *server, deps routerDeps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(otelgin.Middleware(serviceName))

	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.gatherer, promhttp.HandlerOpts{})))
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": serviceName})
	})

	v1 := r.Group("/v1")
	v1.GET("/report", s.report)

	payments := v1.Group("")
	payments.Use(idempotency.Middleware(deps.idempotency, deps.idempotencyTTL, s.logger))
	{
		payments.POST("/authorize", s.authorize)
		payments.POST("/purchase", s.purchase)
		payments.POST("/capture", s.capture)
		payments.POST("/refund", s.refund)
		payments.POST("/void", s.void)
		payments.POST("/verify", s.verify)
	}
	return r
}

// bind validates the raw body against the operation contract and decodes it.
func (s *server) bind(c *gin.Context, op monitor.Operation, dst any) bool {
	raw, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format: " + err.Error()})
		return false
	}
	valid, violations, err := s.contract.Validate(op, raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format: " + err.Error()})
		return false
	}
	if !valid {
		c.JSON(http.StatusBadRequest, gin.H{"error": monitor.FormatErrors(violations)})
		return false
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format: " + err.Error()})
		return false
	}
	return true
}

func (s *server) money(c *gin.Context, amount, currency string) (request.Money, bool) {
	m, err := request.NewMoney(amount, currency)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return request.Money{}, false
	}
	return m, true
}

func (s *server) authorize(c *gin.Context) {
	var body paymentBody
	if !s.bind(c, monitor.Authorize, &body) {
		return
	}
	m, ok := s.money(c, body.Amount, body.Currency)
	if !ok {
		return
	}
	resp, err := s.gw.Authorize(c.Request.Context(), m, body.Instrument, body.Options)
	s.respond(c, "authorize", resp, err)
}

func (s *server) capture(c *gin.Context) {
	var body modificationBody
	if !s.bind(c, monitor.Capture, &body) {
		return
	}
	m, ok := s.money(c, body.Amount, body.Currency)
	if !ok {
		return
	}
	resp, err := s.gw.Capture(c.Request.Context(), m, body.Authorization, body.Options)
	s.respond(c, "capture", resp, err)
}

func (s *server) refund(c *gin.Context) {
	var body modificationBody
	if !s.bind(c, monitor.Refund, &body) {
		return
	}
	m, ok := s.money(c, body.Amount, body.Currency)
	if !ok {
		return
	}
	resp, err := s.gw.Refund(c.Request.Context(), m, body.Authorization, body.Options)
	s.respond(c, "refund", resp, err)
}

func (s *server) void(c *gin.Context) {
	var body voidBody
	if !s.bind(c, monitor.Void, &body) {
		return
	}
	resp, err := s.gw.Void(c.Request.Context(), body.Authorization, body.Options)
	s.respond(c, "void", resp, err)
}

func (s *server) purchase(c *gin.Context) {
	var body paymentBody
	if !s.bind(c, monitor.Purchase, &body) {
		return
	}
	m, ok := s.money(c, body.Amount, body.Currency)
	if !ok {
		return
	}
	result, err := s.gw.Purchase(c.Request.Context(), m, body.Instrument, body.Options)
	if err != nil {
		s.fail(c, "purchase", err)
		return
	}
	c.JSON(http.StatusOK, composed(result.Overall(), result))
}

func (s *server) verify(c *gin.Context) {
	var body verifyBody
	if !s.bind(c, monitor.Verify, &body) {
		return
	}
	v, err := s.gw.Verify(c.Request.Context(), body.Instrument, body.Options)
	if err != nil {
		s.fail(c, "verify", err)
		return
	}
	out := composed(v.Response, v.Steps())
	if void, ran := v.Void(); ran {
		out["void"] = void
	}
	c.JSON(http.StatusOK, out)
}

func (s *server) report(c *gin.Context) {
	rep, err := s.reporter.GenerateRetrospective(s.entries.Entries())
	if err != nil {
		s.logger.Error("report generation failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to generate report"})
		return
	}
	c.JSON(http.StatusOK, rep)
}

func composed(visible *response.Response, result *orchestrator.Result) gin.H {
	out := gin.H{"response": visible, "responses": result.Responses()}
	if id, ok := result.Authorization(); ok {
		out["authorization"] = id
	}
	return out
}

// respond writes a primitive operation's outcome. Declines are 200 with
// success false.
func (s *server) respond(c *gin.Context, op string, resp *response.Response, err error) {
	if err != nil {
		s.fail(c, op, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *server) fail(c *gin.Context, op string, err error) {
	status := httpStatus(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("operation failed", zap.String("operation", op), zap.Int("status", status), zap.Error(err))
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func httpStatus(err error) int {
	var te *transport.Error
	switch {
	case errors.Is(err, gateway.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.As(err, &te):
		if te.Timeout() {
			return http.StatusGatewayTimeout
		}
		return http.StatusBadGateway
	case errors.Is(err, gateway.ErrMissingAuthorization):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
