// Package journal keeps an append-only record of every request sent to the
// upstream catalog.
package journal

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	ErrDuplicateCall = errors.New("journal: call already recorded")
	ErrInvalidCall   = errors.New("journal: call has no endpoint")
)

// Call is one upstream request and its outcome.
type Call struct {
	ID        uuid.UUID     `json:"id" db:"id"`
	Endpoint  string        `json:"endpoint" db:"endpoint"`
	Key       string        `json:"key" db:"cache_key"`
	Status    int           `json:"status" db:"status"`
	Error     string        `json:"error,omitempty" db:"error"`
	StartedAt time.Time     `json:"started_at" db:"started_at"`
	Duration  time.Duration `json:"duration" db:"duration_ms"`
}

// Succeeded reports whether the upstream answered with a 2xx status.
func (c Call) Succeeded() bool { return c.Error == "" && c.Status >= 200 && c.Status < 300 }

// Recorder persists calls.
type Recorder interface {
	Record(ctx context.Context, call Call) error
}

// Discard drops every call.
var Discard Recorder = discard{}

type discard struct{}

func (discard) Record(context.Context, Call) error { return nil }

// Memory is an in-process Recorder.
type Memory struct {
	mu    sync.Mutex
	calls []Call
	ids   map[uuid.UUID]struct{}
}

func NewMemory() *Memory {
	return &Memory{ids: make(map[uuid.UUID]struct{})}
}

func (m *Memory) Record(_ context.Context, call Call) error {
	if call.Endpoint == "" {
		return ErrInvalidCall
	}
	if call.ID == uuid.Nil {
		call.ID = uuid.New()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.ids[call.ID]; ok {
		return ErrDuplicateCall
	}
	m.ids[call.ID] = struct{}{}
	m.calls = append(m.calls, call)
	return nil
}

// Calls returns a copy of everything recorded so far, oldest first.
func (m *Memory) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Call, len(m.calls))
	copy(out, m.calls)
	return out
}

// Count returns how many calls hit endpoint. An empty endpoint counts all.
func (m *Memory) Count(endpoint string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if endpoint == "" {
		return len(m.calls)
	}
	n := 0
	for _, c := range m.calls {
		if c.Endpoint == endpoint {
			n++
		}
	}
	return n
}

// Summary aggregates calls per endpoint.
type Summary struct {
	Endpoint string `json:"endpoint"`
	Calls    int    `json:"calls"`
	Failures int    `json:"failures"`
}

// Summarize groups calls by endpoint in first-seen order.
func Summarize(calls []Call) []Summary {
	index := make(map[string]int)
	var out []Summary
	for _, c := range calls {
		i, ok := index[c.Endpoint]
		if !ok {
			i = len(out)
			index[c.Endpoint] = i
			out = append(out, Summary{Endpoint: c.Endpoint})
		}
		out[i].Calls++
		if !c.Succeeded() {
			out[i].Failures++
		}
	}
	return out
}
