// internal/clients/catalog_client.go
package clients

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"gallery/internal/catalog"
	"gallery/internal/journal"
)

const (
	EndpointList = "list"
	EndpointInfo = "info"

	defaultTimeout = 10 * time.Second
	maxErrorBody   = 512
)

// CatalogClient talks to the public image catalog.
type CatalogClient struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	journal    journal.Recorder
	logger     *zap.Logger
	now        func() time.Time
}

// ClientOption configures a CatalogClient.
type ClientOption func(*CatalogClient)

// WithHTTPClient replaces the default client (10s timeout).
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *CatalogClient) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithTransport swaps the round tripper of the underlying client.
func WithTransport(rt http.RoundTripper) ClientOption {
	return func(c *CatalogClient) {
		if rt != nil {
			hc := *c.httpClient
			hc.Transport = rt
			c.httpClient = &hc
		}
	}
}

// WithRateLimit throttles outbound requests. A non-positive rps disables throttling.
func WithRateLimit(rps float64, burst int) ClientOption {
	return func(c *CatalogClient) {
		if rps <= 0 {
			c.limiter = rate.NewLimiter(rate.Inf, 0)
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithJournal records every upstream call.
func WithJournal(r journal.Recorder) ClientOption {
	return func(c *CatalogClient) {
		if r != nil {
			c.journal = r
		}
	}
}

// WithClientLogger attaches a structured logger.
func WithClientLogger(logger *zap.Logger) ClientOption {
	return func(c *CatalogClient) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func NewCatalogClient(baseURL string, opts ...ClientOption) *CatalogClient {
	c := &CatalogClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
		limiter:    rate.NewLimiter(rate.Inf, 0),
		journal:    journal.Discard,
		logger:     zap.NewNop(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// List fetches the full catalog listing.
func (c *CatalogClient) List(ctx context.Context) ([]catalog.Item, error) {
	var items []catalog.Item
	if err := c.get(ctx, EndpointList, "/list", &items); err != nil {
		return nil, err
	}
	return items, nil
}

// Info fetches one item's details.
func (c *CatalogClient) Info(ctx context.Context, id catalog.ItemID) (catalog.Item, error) {
	var item catalog.Item
	path := fmt.Sprintf("/id/%s/info", url.PathEscape(string(id)))
	if err := c.get(ctx, EndpointInfo, path, &item); err != nil {
		return catalog.Item{}, err
	}
	if item.ID == "" {
		item.ID = id
	}
	return item, nil
}

func (c *CatalogClient) get(ctx context.Context, endpoint, path string, out any) (err error) {
	call := journal.Call{
		ID:        uuid.New(),
		Endpoint:  endpoint,
		Key:       path,
		StartedAt: c.now(),
	}
	sent := false
	defer func() {
		call.Duration = c.now().Sub(call.StartedAt)
		if err != nil {
			call.Error = err.Error()
		}
		// Throttled or cancelled before sending; nothing reached the upstream.
		if !sent {
			return
		}
		if jerr := c.journal.Record(context.WithoutCancel(ctx), call); jerr != nil {
			c.logger.Warn("failed to journal upstream call",
				zap.String("endpoint", endpoint),
				zap.Error(jerr),
			)
		}
	}()

	if err := c.limiter.Wait(ctx); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		// The limiter refuses up front when the wait would outlive the deadline.
		return fmt.Errorf("throttled %s: %w", path, context.DeadlineExceeded)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return &catalog.FetchFailedError{Endpoint: path, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	sent = true

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return &catalog.FetchFailedError{Endpoint: path, Err: err}
	}
	defer resp.Body.Close()
	call.Status = resp.StatusCode

	switch {
	case resp.StatusCode == http.StatusNotFound && endpoint == EndpointInfo:
		return fmt.Errorf("%s: %w", path, catalog.ErrNotFound)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		var cause error
		if msg := strings.TrimSpace(string(body)); msg != "" {
			cause = errors.New(msg)
		}
		return &catalog.FetchFailedError{Endpoint: path, Status: resp.StatusCode, Err: cause}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return &catalog.FetchFailedError{
			Endpoint: path,
			Status:   resp.StatusCode,
			Err:      fmt.Errorf("decode response: %w", err),
		}
	}
	return nil
}
