package chaos

import (
	"io"
	"math/rand/v2"
	"net/http"
	"strings"
	"sync"
	"time"
)

// Transport injects latency and failures in front of an http.RoundTripper.
type Transport struct {
	Base http.RoundTripper
	// FailureRate is the fraction of requests, 0 to 1, answered with a
	// synthetic 503 instead of reaching Base.
	FailureRate float64
	// Latency is added before every request, failed or not.
	Latency time.Duration
	// Match limits injection to matching requests; nil matches everything.
	Match func(*http.Request) bool
	// Rand supplies the failure coin flips; nil uses a time-seeded source.
	Rand *rand.Rand

	mu       sync.Mutex
	injected int
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}
	if t.Match != nil && !t.Match(req) {
		return base.RoundTrip(req)
	}

	if t.Latency > 0 {
		timer := time.NewTimer(t.Latency)
		select {
		case <-req.Context().Done():
			timer.Stop()
			return nil, req.Context().Err()
		case <-timer.C:
		}
	}

	if t.shouldFail() {
		body := "chaos: injected failure"
		return &http.Response{
			Status:        "503 Service Unavailable",
			StatusCode:    http.StatusServiceUnavailable,
			Proto:         "HTTP/1.1",
			ProtoMajor:    1,
			ProtoMinor:    1,
			Header:        http.Header{"Content-Type": []string{"text/plain"}},
			Body:          io.NopCloser(strings.NewReader(body)),
			ContentLength: int64(len(body)),
			Request:       req,
		}, nil
	}

	return base.RoundTrip(req)
}

// PathSuffix matches requests whose URL path ends with suffix.
func PathSuffix(suffix string) func(*http.Request) bool {
	return func(req *http.Request) bool {
		return strings.HasSuffix(req.URL.Path, suffix)
	}
}

// Injected returns how many requests were failed so far.
func (t *Transport) Injected() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.injected
}

func (t *Transport) shouldFail() bool {
	if t.FailureRate <= 0 {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.Rand == nil {
		t.Rand = rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0))
	}
	if t.FailureRate >= 1 || t.Rand.Float64() < t.FailureRate {
		t.injected++
		return true
	}
	return false
}
