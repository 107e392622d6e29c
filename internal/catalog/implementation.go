// internal/catalog/implementation.go
package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const (
	listingKey    = "list"
	itemKeyPrefix = "item:"
	maxIDLength   = 64
)

// service implements the Service interface.
type service struct {
	upstream    Upstream
	cache       *responseCache
	pageSize    int
	maxPageSize int
	now         func() time.Time
	logger      *zap.Logger
	tracer      trace.Tracer

	mu      sync.Mutex
	group   singleflight.Group
	flights map[string]*flight

	upstreamCalls metric.Int64Counter
	cacheHits     metric.Int64Counter
	cacheMisses   metric.Int64Counter
	coalesced     metric.Int64Counter
}

// flight is one upstream fetch shared by every caller that missed the cache
// for the same key while it was running.
type flight struct {
	token   string
	ctx     context.Context
	cancel  context.CancelFunc
	waiters int
}

// listingSnapshot is the cached upstream listing and when it was fetched.
type listingSnapshot struct {
	items     []Item
	fetchedAt time.Time
}

// Option configures the loader built by NewService.
type Option func(*service)

// WithFreshness sets how long upstream responses are served from cache.
// Zero disables caching; concurrent requests are still coalesced.
func WithFreshness(d time.Duration) Option {
	return func(s *service) {
		if d < 0 {
			d = 0
		}
		s.cache.ttl = d
	}
}

// WithClock overrides the time source used for cache expiry.
func WithClock(now func() time.Time) Option {
	return func(s *service) {
		if now != nil {
			s.now = now
			s.cache.now = now
		}
	}
}

// WithPageSize sets the page size used when a request gives no limit.
func WithPageSize(n int) Option {
	return func(s *service) {
		if n > 0 {
			s.pageSize = n
		}
	}
}

// WithMaxPageSize bounds ListingRequest.Limit.
func WithMaxPageSize(n int) Option {
	return func(s *service) {
		if n > 0 {
			s.maxPageSize = n
		}
	}
}

// WithLogger attaches a structured logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMeter records loader metrics on the given meter instead of the global one.
func WithMeter(meter metric.Meter) Option {
	return func(s *service) {
		if meter != nil {
			s.instrument(meter)
		}
	}
}

// NewService creates a loader over the given upstream catalog.
func NewService(upstream Upstream, opts ...Option) Service {
	s := &service{
		upstream:    upstream,
		cache:       newResponseCache(DefaultFreshness, time.Now),
		pageSize:    DefaultPageSize,
		maxPageSize: DefaultMaxPageSize,
		now:         time.Now,
		logger:      zap.NewNop(),
		tracer:      otel.Tracer("gallery/catalog"),
		flights:     make(map[string]*flight),
	}
	s.instrument(otel.Meter("gallery/catalog"))
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *service) instrument(meter metric.Meter) {
	s.upstreamCalls = counter(meter, "catalog.upstream.calls", "Upstream catalog requests issued by the loader")
	s.cacheHits = counter(meter, "catalog.cache.hits", "Loads answered from cache")
	s.cacheMisses = counter(meter, "catalog.cache.misses", "Loads that needed an upstream response")
	s.coalesced = counter(meter, "catalog.flight.coalesced", "Loads that joined an in-flight upstream request")
}

func counter(meter metric.Meter, name, desc string) metric.Int64Counter {
	c, err := meter.Int64Counter(name, metric.WithDescription(desc))
	if err != nil {
		return noop.Int64Counter{}
	}
	return c
}

// FetchListing returns one page of posts. The upstream listing is requested
// at most once per freshness window; every filter is applied locally.
func (s *service) FetchListing(ctx context.Context, req ListingRequest) (ListingResult, error) {
	ctx, span := s.tracer.Start(ctx, "catalog.fetch_listing",
		trace.WithAttributes(
			attribute.Int("request.limit", req.Limit),
			attribute.String("request.author", req.Author),
			attribute.String("request.search", req.Search),
			attribute.String("request.related_to", req.RelatedTo.String()),
		),
	)
	defer span.End()

	req, err := s.normalize(req)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return ListingResult{}, err
	}

	v, err := s.load(ctx, listingKey, func(ctx context.Context) (any, error) {
		items, err := s.upstream.List(ctx)
		if err != nil {
			return nil, err
		}
		return listingSnapshot{items: dedupe(items), fetchedAt: s.now()}, nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return ListingResult{}, err
	}

	snap := v.(listingSnapshot)
	result, err := buildListing(snap.items, req)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return ListingResult{}, err
	}
	result.FetchedAt = snap.fetchedAt

	span.SetAttributes(
		attribute.Int("result.items", len(result.Items)),
		attribute.Int("result.total", result.Total),
	)
	return result, nil
}

// FetchItem returns a single post from the item-detail endpoint. It never
// consults or populates the listing.
func (s *service) FetchItem(ctx context.Context, id ItemID) (Item, error) {
	ctx, span := s.tracer.Start(ctx, "catalog.fetch_item",
		trace.WithAttributes(attribute.String("item.id", id.String())),
	)
	defer span.End()

	if err := validateID("id", id); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return Item{}, err
	}

	v, err := s.load(ctx, itemKeyPrefix+string(id), func(ctx context.Context) (any, error) {
		item, err := s.upstream.Info(ctx, id)
		if err != nil {
			return nil, err
		}
		return item, nil
	})
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			span.RecordError(err)
		}
		span.SetStatus(codes.Error, err.Error())
		return Item{}, err
	}
	return v.(Item), nil
}

// load answers key from cache or joins/starts the single flight for it.
func (s *service) load(ctx context.Context, key string, fetch func(context.Context) (any, error)) (any, error) {
	attrs := metric.WithAttributes(attribute.String("key.kind", keyKind(key)))
	if v, ok := s.cache.get(key); ok {
		s.cacheHits.Add(ctx, 1, attrs)
		return v, nil
	}

	s.mu.Lock()
	// A flight may have stored the value between the read above and the lock.
	if v, ok := s.cache.get(key); ok {
		s.mu.Unlock()
		s.cacheHits.Add(ctx, 1, attrs)
		return v, nil
	}
	f, joined := s.flights[key]
	if !joined {
		fctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		f = &flight{token: uuid.NewString(), ctx: fctx, cancel: cancel}
		s.flights[key] = f
	}
	f.waiters++
	ch := s.group.DoChan(key+"#"+f.token, func() (any, error) {
		return s.runFlight(key, f, fetch)
	})
	s.mu.Unlock()

	if joined {
		s.coalesced.Add(ctx, 1, attrs)
	} else {
		s.cacheMisses.Add(ctx, 1, attrs)
	}

	select {
	case res := <-ch:
		s.release(key, f)
		return res.Val, res.Err
	case <-ctx.Done():
		s.release(key, f)
		s.logger.Debug("catalog load abandoned",
			zap.String("key", key),
			zap.String("flight", f.token),
			zap.Error(ctx.Err()),
		)
		return nil, ctx.Err()
	}
}

func (s *service) runFlight(key string, f *flight, fetch func(context.Context) (any, error)) (any, error) {
	ctx, span := s.tracer.Start(f.ctx, "catalog.flight",
		trace.WithAttributes(
			attribute.String("flight.key", key),
			attribute.String("flight.token", f.token),
		),
	)
	defer span.End()

	s.upstreamCalls.Add(ctx, 1, metric.WithAttributes(attribute.String("key.kind", keyKind(key))))
	start := s.now()
	v, err := fetch(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.flights[key] == f {
		delete(s.flights, key)
	}
	if err != nil {
		if !errors.Is(err, ErrNotFound) && f.ctx.Err() == nil {
			s.logger.Warn("catalog upstream fetch failed",
				zap.String("key", key),
				zap.Duration("elapsed", s.now().Sub(start)),
				zap.Error(err),
			)
		}
		return nil, err
	}
	// Every waiter left before the response arrived; the result is stale.
	if cerr := f.ctx.Err(); cerr != nil {
		span.AddEvent("flight.superseded")
		return nil, fmt.Errorf("catalog: flight %s superseded: %w", key, cerr)
	}
	s.cache.set(key, v)
	s.logger.Debug("catalog upstream fetch stored",
		zap.String("key", key),
		zap.Duration("elapsed", s.now().Sub(start)),
	)
	return v, nil
}

// release drops one waiter from the flight; the last one out cancels it.
func (s *service) release(key string, f *flight) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f.waiters--
	if f.waiters > 0 {
		return
	}
	f.cancel()
	if s.flights[key] == f {
		delete(s.flights, key)
	}
}

func (s *service) normalize(req ListingRequest) (ListingRequest, error) {
	switch {
	case req.Limit < 0:
		return req, invalid("limit", "must not be negative, got %d", req.Limit)
	case req.Limit == 0:
		req.Limit = min(s.pageSize, s.maxPageSize)
	case req.Limit > s.maxPageSize:
		return req, invalid("limit", "must be at most %d, got %d", s.maxPageSize, req.Limit)
	}
	req.Author = strings.TrimSpace(req.Author)
	req.Search = strings.TrimSpace(req.Search)
	if req.RelatedTo != "" {
		if err := validateID("related_to", req.RelatedTo); err != nil {
			return req, err
		}
	}
	return req, nil
}

func validateID(field string, id ItemID) error {
	if id == "" {
		return invalid(field, "must not be empty")
	}
	if len(id) > maxIDLength {
		return invalid(field, "longer than %d characters", maxIDLength)
	}
	for _, r := range id {
		ok := r == '-' || r == '_' ||
			(r >= '0' && r <= '9') ||
			(r >= 'a' && r <= 'z') ||
			(r >= 'A' && r <= 'Z')
		if !ok {
			return invalid(field, "unexpected character %q", r)
		}
	}
	return nil
}

func keyKind(key string) string {
	if strings.HasPrefix(key, itemKeyPrefix) {
		return "item"
	}
	return "listing"
}
