package transport

import (
	"sync"
	"time"

	"github.com/zoobzio/clockz"
)

// State is the state of one endpoint's circuit.
type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

const (
	defaultFailureThreshold  = 3
	defaultOpenTimeout       = 30 * time.Second
	defaultHalfOpenSuccesses = 2
	defaultHalfOpenMaxCalls  = 1
)

// BreakerConfig tunes a Breaker. Zero values take the defaults.
type BreakerConfig struct {
	FailureThreshold  int
	OpenTimeout       time.Duration
	HalfOpenSuccesses int
	// HalfOpenMaxCalls bounds concurrent trial calls while half-open.
	HalfOpenMaxCalls int
	Clock            clockz.Clock
}

type endpointState struct {
	state                State
	consecutiveFailures  int
	consecutiveSuccesses int
	inFlight             int
	openUntil            time.Time
}

// Breaker tracks transport health per gateway endpoint and rejects calls to
// an endpoint whose circuit is open.
type Breaker struct {
	mu                sync.Mutex
	endpoints         map[string]*endpointState
	failureThreshold  int
	openTimeout       time.Duration
	halfOpenSuccesses int
	halfOpenMaxCalls  int
	clock             clockz.Clock
}

// NewBreaker creates a Breaker with every circuit closed.
func NewBreaker(cfg BreakerConfig) *Breaker {
	b := &Breaker{
		endpoints:         make(map[string]*endpointState),
		failureThreshold:  cfg.FailureThreshold,
		openTimeout:       cfg.OpenTimeout,
		halfOpenSuccesses: cfg.HalfOpenSuccesses,
		halfOpenMaxCalls:  cfg.HalfOpenMaxCalls,
		clock:             cfg.Clock,
	}
	if b.failureThreshold <= 0 {
		b.failureThreshold = defaultFailureThreshold
	}
	if b.openTimeout <= 0 {
		b.openTimeout = defaultOpenTimeout
	}
	if b.halfOpenSuccesses <= 0 {
		b.halfOpenSuccesses = defaultHalfOpenSuccesses
	}
	if b.halfOpenMaxCalls <= 0 {
		b.halfOpenMaxCalls = defaultHalfOpenMaxCalls
	}
	if b.clock == nil {
		b.clock = clockz.RealClock
	}
	return b
}

// caller holds b.mu
func (b *Breaker) endpoint(name string) *endpointState {
	es, ok := b.endpoints[name]
	if !ok {
		es = &endpointState{state: Closed}
		b.endpoints[name] = es
	}
	return es
}

// Allow reports whether a call to endpoint may proceed. An open circuit whose
// timeout has elapsed moves to half-open and lets a bounded number of trial
// calls through. Every allowed call must be followed by RecordSuccess or
// RecordFailure, which release its trial slot.
func (b *Breaker) Allow(endpoint string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	es := b.endpoint(endpoint)
	switch es.state {
	case Open:
		if b.clock.Now().Before(es.openUntil) {
			return false
		}
		es.state = HalfOpen
		es.consecutiveSuccesses = 0
		es.inFlight = 1
		return true
	case HalfOpen:
		if es.inFlight >= b.halfOpenMaxCalls {
			return false
		}
		es.inFlight++
		return true
	default:
		return true
	}
}

// RecordFailure counts a transport failure against endpoint.
func (b *Breaker) RecordFailure(endpoint string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	es := b.endpoint(endpoint)
	switch es.state {
	case Closed:
		es.consecutiveFailures++
		if es.consecutiveFailures >= b.failureThreshold {
			b.trip(es)
		}
	case HalfOpen:
		b.trip(es)
	}
}

// caller holds b.mu
func (es *endpointState) release() {
	if es.inFlight > 0 {
		es.inFlight--
	}
}

// RecordSuccess counts a completed round trip for endpoint.
func (b *Breaker) RecordSuccess(endpoint string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	es := b.endpoint(endpoint)
	switch es.state {
	case Closed:
		es.consecutiveFailures = 0
	case HalfOpen:
		es.release()
		es.consecutiveSuccesses++
		if es.consecutiveSuccesses >= b.halfOpenSuccesses {
			es.state = Closed
			es.consecutiveFailures = 0
			es.consecutiveSuccesses = 0
			es.inFlight = 0
		}
	}
}

// State returns the current state without transitioning it.
func (b *Breaker) State(endpoint string) State {
	b.mu.Lock()
	defer b.mu.Unlock()
	es, ok := b.endpoints[endpoint]
	if !ok {
		return Closed
	}
	return es.state
}

func (b *Breaker) trip(es *endpointState) {
	es.state = Open
	es.openUntil = b.clock.Now().Add(b.openTimeout)
	es.consecutiveFailures = 0
	es.consecutiveSuccesses = 0
	es.inFlight = 0
}
