// Package audit records every primitive gateway call made on behalf of a
// uniform operation. Recording is a side channel: a failing recorder never
// changes the outcome of the payment.
package audit

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// Entry describes one primitive call.
type Entry struct {
	ID            string          `json:"id"`
	Operation     string          `json:"operation"`
	Action        string          `json:"action"`
	Reference     string          `json:"reference,omitempty"`
	Success       bool            `json:"success"`
	Authorization string          `json:"authorization,omitempty"`
	ErrorKind     string          `json:"error_kind,omitempty"`
	Message       string          `json:"message,omitempty"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency,omitempty"`
	Test          bool            `json:"test"`
	// Error holds the transport failure when the call produced no response.
	Error      string    `json:"error,omitempty"`
	RecordedAt time.Time `json:"recorded_at"`
}

// Recorder persists or forwards entries.
type Recorder interface {
	Record(ctx context.Context, e Entry) error
}

// Nop discards entries.
type Nop struct{}

func (Nop) Record(context.Context, Entry) error { return nil }

// DefaultMemoryCapacity bounds a MemoryStore created with a non-positive capacity.
const DefaultMemoryCapacity = 10000

// MemoryStore keeps the most recent entries in process memory. Once full,
// each new entry evicts the oldest.
type MemoryStore struct {
	mu       sync.RWMutex
	capacity int
	entries  []Entry
	next     int
}

// NewMemoryStore creates an empty store holding at most capacity entries.
func NewMemoryStore(capacity int) *MemoryStore {
	if capacity <= 0 {
		capacity = DefaultMemoryCapacity
	}
	return &MemoryStore{capacity: capacity}
}

func (s *MemoryStore) Record(_ context.Context, e Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.entries) < s.capacity {
		s.entries = append(s.entries, e)
		return nil
	}
	s.entries[s.next] = e
	s.next = (s.next + 1) % s.capacity
	return nil
}

// Entries returns a copy of the retained entries, oldest first.
func (s *MemoryStore) Entries() []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Entry, 0, len(s.entries))
	out = append(out, s.entries[s.next:]...)
	return append(out, s.entries[:s.next]...)
}

// Fanout records to every recorder and joins their errors.
type Fanout []Recorder

func (f Fanout) Record(ctx context.Context, e Entry) error {
	var errs []error
	for _, r := range f {
		if err := r.Record(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
