package gateway_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/zoobzio/clockz"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/yourorg/payment-gateway/internal/action"
	"github.com/yourorg/payment-gateway/internal/audit"
	"github.com/yourorg/payment-gateway/internal/gateway"
	"github.com/yourorg/payment-gateway/internal/mapping"
	"github.com/yourorg/payment-gateway/internal/request"
	"github.com/yourorg/payment-gateway/internal/response"
	"github.com/yourorg/payment-gateway/internal/transport"
)

// MockExecutor is a mock implementation of gateway.Executor.
type MockExecutor struct {
	mock.Mock
}

func (m *MockExecutor) Execute(ctx context.Context, a action.Action, req request.Request) (*response.Response, error) {
	args := m.Called(ctx, a, req)
	res, _ := args.Get(0).(*response.Response)
	return res, args.Error(1)
}

func withOriginalReference(id string) any {
	return mock.MatchedBy(func(req request.Request) bool {
		v, ok := req.Get("originalReference")
		return ok && v == id
	})
}

func withAmount(value int64) any {
	return mock.MatchedBy(func(req request.Request) bool {
		for _, key := range []string{"amount", "modificationAmount"} {
			if v, ok := req.Get(key); ok {
				return v.(map[string]any)["value"] == value
			}
		}
		return false
	})
}

type dangling struct {
	authorization string
	void          *response.Response
	err           error
}

type fixture struct {
	gw       *gateway.Gateway
	exec     *MockExecutor
	store    *audit.MemoryStore
	registry *prometheus.Registry
	logs     *observer.ObservedLogs
	clock    *clockz.FakeClock
	dangling []dangling
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	core, logs := observer.New(zapcore.InfoLevel)
	f := &fixture{
		exec:     new(MockExecutor),
		store:    audit.NewMemoryStore(0),
		registry: prometheus.NewRegistry(),
		logs:     logs,
		clock:    clockz.NewFakeClock(),
	}
	gw, err := gateway.New(f.exec, gateway.Config{
		Mapper:     mapping.Envelope{MerchantAccount: "AcmeCOM"},
		Recorder:   f.store,
		Logger:     zap.New(core),
		Registerer: f.registry,
		Clock:      f.clock,
		OnDanglingAuthorization: func(_ context.Context, id string, void *response.Response, err error) {
			f.dangling = append(f.dangling, dangling{authorization: id, void: void, err: err})
		},
	})
	require.NoError(t, err)
	f.gw = gw
	return f
}

func money(t *testing.T, amount string) request.Money {
	t.Helper()
	m, err := request.NewMoney(amount, "USD")
	require.NoError(t, err)
	return m
}

func card() request.Instrument {
	return request.Instrument{Card: &request.Card{
		Number: "4111111111111111", Month: 8, Year: 2030, Name: "John Smith", CVC: "737",
	}}
}

var opts = request.Options{Reference: "order-1"}

func authorised(id string) *response.Response {
	return response.New(true, "Authorised", map[string]any{"pspReference": id, "resultCode": "Authorised"},
		response.WithAuthorization(id))
}

func refused(id string) *response.Response {
	return response.New(false, "CVC Declined", map[string]any{"pspReference": id, "resultCode": "Refused"},
		response.WithAuthorization(id), response.WithErrorKind(response.IncorrectCVC))
}

func received(a, id string) *response.Response {
	return response.New(true, "["+a+"-received]", map[string]any{"pspReference": id, "response": "[" + a + "-received]"},
		response.WithAuthorization(id))
}

func rejected(message string) *response.Response {
	return response.New(false, message, map[string]any{"status": float64(422), "message": message})
}

func TestPurchase_AuthorizeThenCapture(t *testing.T) {
	f := newFixture(t)
	capture := received("capture", "C1")
	f.exec.On("Execute", mock.Anything, action.Authorize, withAmount(1000)).Return(authorised("A1"), nil).Once()
	f.exec.On("Execute", mock.Anything, action.Capture, mock.MatchedBy(func(req request.Request) bool {
		ref, _ := req.Get("originalReference")
		amount, _ := req.Get("modificationAmount")
		return ref == "A1" && amount.(map[string]any)["value"] == int64(1000)
	})).Return(capture, nil).Once()

	result, err := f.gw.Purchase(context.Background(), money(t, "10.00"), card(), opts)
	require.NoError(t, err)

	assert.Same(t, capture, result.Overall())
	id, ok := result.Authorization()
	assert.True(t, ok)
	assert.Equal(t, "A1", id)
	f.exec.AssertExpectations(t)
}

func TestPurchase_DeclinedAuthorizeSkipsCapture(t *testing.T) {
	f := newFixture(t)
	decline := refused("A2")
	f.exec.On("Execute", mock.Anything, action.Authorize, mock.Anything).Return(decline, nil).Once()

	result, err := f.gw.Purchase(context.Background(), money(t, "10.00"), card(), opts)
	require.NoError(t, err)

	assert.Same(t, decline, result.Overall())
	kind, ok := result.Overall().ErrorKind()
	assert.True(t, ok)
	assert.Equal(t, response.IncorrectCVC, kind)
	f.exec.AssertNumberOfCalls(t, "Execute", 1)
	f.exec.AssertNotCalled(t, "Execute", mock.Anything, action.Capture, mock.Anything)
}

func TestPurchase_CaptureTransportErrorLeavesAuthorization(t *testing.T) {
	f := newFixture(t)
	timeout := &transport.Error{Endpoint: "capture", Err: context.DeadlineExceeded}
	f.exec.On("Execute", mock.Anything, action.Authorize, mock.Anything).Return(authorised("A3"), nil).Once()
	f.exec.On("Execute", mock.Anything, action.Capture, withOriginalReference("A3")).Return(nil, timeout).Once()

	result, err := f.gw.Purchase(context.Background(), money(t, "10.00"), card(), opts)
	assert.Nil(t, result)
	assert.Same(t, timeout, err)
	f.exec.AssertNotCalled(t, "Execute", mock.Anything, action.Cancel, mock.Anything)

	entries := f.store.Entries()
	require.Len(t, entries, 2)
	assert.True(t, entries[0].Success)
	assert.Equal(t, "A3", entries[0].Authorization)
	assert.Contains(t, entries[1].Error, "deadline exceeded")
}

func TestPurchase_AuthorizeWithoutHandle(t *testing.T) {
	f := newFixture(t)
	f.exec.On("Execute", mock.Anything, action.Authorize, mock.Anything).
		Return(response.New(true, "Authorised", nil), nil).Once()

	_, err := f.gw.Purchase(context.Background(), money(t, "10.00"), card(), opts)
	assert.ErrorIs(t, err, gateway.ErrMissingAuthorization)
	f.exec.AssertNumberOfCalls(t, "Execute", 1)
}

func TestPurchase_InvalidInputNeverCallsGateway(t *testing.T) {
	f := newFixture(t)

	_, err := f.gw.Purchase(context.Background(), money(t, "10.00"), card(), request.Options{})
	assert.ErrorIs(t, err, gateway.ErrInvalidRequest)
	assert.ErrorIs(t, err, mapping.ErrReferenceRequired)

	_, err = f.gw.Purchase(context.Background(), money(t, "10.00"), request.Instrument{}, opts)
	assert.ErrorIs(t, err, gateway.ErrInvalidRequest)

	f.exec.AssertNotCalled(t, "Execute", mock.Anything, mock.Anything, mock.Anything)
}

func TestVerify_SurfacesAuthorizeAndVoids(t *testing.T) {
	f := newFixture(t)
	auth := authorised("A4")
	void := received("cancel", "V4")
	f.exec.On("Execute", mock.Anything, action.Authorize, withAmount(100)).Return(auth, nil).Once()
	f.exec.On("Execute", mock.Anything, action.Cancel, withOriginalReference("A4")).Return(void, nil).Once()

	v, err := f.gw.Verify(context.Background(), card(), opts)
	require.NoError(t, err)

	assert.Same(t, auth, v.Response)
	assert.True(t, v.Success())
	gotVoid, ran := v.Void()
	assert.True(t, ran)
	assert.Same(t, void, gotVoid)
	assert.Same(t, void, v.Steps().Overall())
	f.exec.AssertNumberOfCalls(t, "Execute", 2)
	assert.Empty(t, f.dangling)
}

func TestVerify_DeclineSkipsVoid(t *testing.T) {
	f := newFixture(t)
	decline := refused("A5")
	f.exec.On("Execute", mock.Anything, action.Authorize, mock.Anything).Return(decline, nil).Once()

	v, err := f.gw.Verify(context.Background(), card(), opts)
	require.NoError(t, err)

	assert.Same(t, decline, v.Response)
	_, ran := v.Void()
	assert.False(t, ran)
	f.exec.AssertNotCalled(t, "Execute", mock.Anything, action.Cancel, mock.Anything)
	assert.Empty(t, f.dangling)
}

func TestVerify_DeclinedVoidIsReportedNotSurfaced(t *testing.T) {
	f := newFixture(t)
	auth := authorised("A6")
	voidDecline := rejected("Original pspReference required for this operation")
	f.exec.On("Execute", mock.Anything, action.Authorize, mock.Anything).Return(auth, nil).Once()
	f.exec.On("Execute", mock.Anything, action.Cancel, withOriginalReference("A6")).Return(voidDecline, nil).Once()

	v, err := f.gw.Verify(context.Background(), card(), opts)
	require.NoError(t, err)

	assert.Same(t, auth, v.Response, "the verification still reads as the authorization")
	assert.True(t, v.Success())
	assert.False(t, v.Steps().Success())

	require.Len(t, f.dangling, 1)
	assert.Equal(t, "A6", f.dangling[0].authorization)
	assert.Same(t, voidDecline, f.dangling[0].void)
	assert.NoError(t, f.dangling[0].err)

	expected := `
# HELP gateway_verify_void_failures_total Verification authorizations whose void was declined or failed in transport.
# TYPE gateway_verify_void_failures_total counter
gateway_verify_void_failures_total 1
`
	assert.NoError(t, testutil.GatherAndCompare(f.registry, strings.NewReader(expected), "gateway_verify_void_failures_total"))
	logged := f.logs.FilterMessage("verification authorization was not voided").All()
	require.Len(t, logged, 1)
	assert.Equal(t, "A6", logged[0].ContextMap()["authorization"])
}

func TestVerify_VoidTransportErrorIsReportedAndReturned(t *testing.T) {
	f := newFixture(t)
	reset := &transport.Error{Endpoint: "cancel", Err: errors.New("connection reset by peer")}
	f.exec.On("Execute", mock.Anything, action.Authorize, mock.Anything).Return(authorised("A7"), nil).Once()
	f.exec.On("Execute", mock.Anything, action.Cancel, withOriginalReference("A7")).Return(nil, reset).Once()

	v, err := f.gw.Verify(context.Background(), card(), opts)
	assert.Nil(t, v)
	assert.Same(t, reset, err)

	require.Len(t, f.dangling, 1)
	assert.Equal(t, "A7", f.dangling[0].authorization)
	assert.Nil(t, f.dangling[0].void)
	assert.Same(t, reset, f.dangling[0].err)
}

func TestVerify_AuthorizeTransportErrorIsNotDangling(t *testing.T) {
	f := newFixture(t)
	refusedConn := &transport.Error{Endpoint: "authorise", Err: errors.New("connection refused")}
	f.exec.On("Execute", mock.Anything, action.Authorize, mock.Anything).Return(nil, refusedConn).Once()

	_, err := f.gw.Verify(context.Background(), card(), opts)
	assert.Same(t, refusedConn, err)
	assert.Empty(t, f.dangling)
}

func TestPrimitives(t *testing.T) {
	f := newFixture(t)
	f.exec.On("Execute", mock.Anything, action.Authorize, mock.Anything).Return(authorised("P1"), nil).Once()
	f.exec.On("Execute", mock.Anything, action.Capture, withOriginalReference("P1")).Return(received("capture", "P2"), nil).Once()
	f.exec.On("Execute", mock.Anything, action.Refund, withOriginalReference("P2")).Return(received("refund", "P3"), nil).Once()
	f.exec.On("Execute", mock.Anything, action.Cancel, withOriginalReference("P1")).Return(received("cancel", "P4"), nil).Once()

	ctx := context.Background()
	auth, err := f.gw.Authorize(ctx, money(t, "10.00"), card(), opts)
	require.NoError(t, err)
	assert.True(t, auth.Success())

	capture, err := f.gw.Capture(ctx, money(t, "10.00"), "P1", opts)
	require.NoError(t, err)
	assert.Equal(t, "[capture-received]", capture.Message())

	refund, err := f.gw.Refund(ctx, money(t, "4.00"), "P2", request.Options{})
	require.NoError(t, err)
	assert.Equal(t, "[refund-received]", refund.Message())

	void, err := f.gw.Void(ctx, "P1", request.Options{})
	require.NoError(t, err)
	assert.Equal(t, "[cancel-received]", void.Message())

	f.exec.AssertExpectations(t)

	_, err = f.gw.Capture(ctx, money(t, "1.00"), "", opts)
	assert.ErrorIs(t, err, mapping.ErrAuthorizationRequired)
	assert.ErrorIs(t, err, gateway.ErrInvalidRequest)
}

func TestAuditEntries(t *testing.T) {
	f := newFixture(t)
	start := f.clock.Now()
	f.exec.On("Execute", mock.Anything, action.Authorize, mock.Anything).Return(refused("A8"), nil).Once()
	f.exec.On("Execute", mock.Anything, action.Cancel, mock.Anything).Return(received("cancel", "A8"), nil).Once()

	_, err := f.gw.Purchase(context.Background(), money(t, "12.34"), card(), opts)
	require.NoError(t, err)
	f.clock.Advance(time.Minute)
	_, err = f.gw.Void(context.Background(), "A8", opts)
	require.NoError(t, err)

	entries := f.store.Entries()
	require.Len(t, entries, 2)

	assert.Equal(t, "purchase", entries[0].Operation)
	assert.Equal(t, "authorize", entries[0].Action)
	assert.Equal(t, "order-1", entries[0].Reference)
	assert.False(t, entries[0].Success)
	assert.Equal(t, "incorrect_cvc", entries[0].ErrorKind)
	assert.Equal(t, "12.34", entries[0].Amount.StringFixed(2))
	assert.Equal(t, "USD", entries[0].Currency)
	assert.Equal(t, start, entries[0].RecordedAt)
	assert.NotEmpty(t, entries[0].ID)

	assert.Equal(t, "void", entries[1].Operation)
	assert.Equal(t, "cancel", entries[1].Action)
	assert.True(t, entries[1].Amount.IsZero())
	assert.Equal(t, start.Add(time.Minute), entries[1].RecordedAt)
}

type brokenRecorder struct{}

func (brokenRecorder) Record(context.Context, audit.Entry) error { return errors.New("disk full") }

func TestRecorderFailureDoesNotFailPayment(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	exec := new(MockExecutor)
	exec.On("Execute", mock.Anything, action.Authorize, mock.Anything).Return(authorised("R1"), nil).Once()

	gw, err := gateway.New(exec, gateway.Config{
		Mapper:     mapping.Envelope{MerchantAccount: "AcmeCOM"},
		Recorder:   brokenRecorder{},
		Logger:     zap.New(core),
		Registerer: prometheus.NewRegistry(),
	})
	require.NoError(t, err)

	resp, err := gw.Authorize(context.Background(), money(t, "1.00"), card(), opts)
	require.NoError(t, err)
	assert.True(t, resp.Success())
	assert.Equal(t, 1, logs.FilterMessage("audit record failed").Len())
}

func TestNew_Validation(t *testing.T) {
	_, err := gateway.New(nil, gateway.Config{Mapper: mapping.Envelope{}})
	assert.ErrorContains(t, err, "executor is required")

	_, err = gateway.New(new(MockExecutor), gateway.Config{})
	assert.ErrorContains(t, err, "field mapper is required")

	_, err = gateway.New(new(MockExecutor), gateway.Config{
		Mapper:       mapping.Envelope{},
		VerifyAmount: request.Money{Currency: "DOLLARS"},
		Registerer:   prometheus.NewRegistry(),
	})
	assert.ErrorContains(t, err, "verify amount")
}
