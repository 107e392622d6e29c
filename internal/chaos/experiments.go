package chaos

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"gallery/internal/catalog"
	"gallery/internal/clients"
	"gallery/internal/journal"
	"gallery/internal/pages"
)

// Target is the catalog the experiments run against.
type Target struct {
	BaseURL   string
	ItemID    catalog.ItemID
	Freshness time.Duration
	// Base is the transport beneath the injected faults; nil uses http.DefaultTransport.
	Base http.RoundTripper
}

func (t Target) loader(tr *Transport, j journal.Recorder) catalog.Service {
	if tr.Base == nil {
		tr.Base = t.Base
	}
	client := clients.NewCatalogClient(t.BaseURL,
		clients.WithTransport(tr),
		clients.WithJournal(j),
	)
	return catalog.NewService(client, catalog.WithFreshness(t.Freshness))
}

func boolMetric(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// RegisterExperiments registers all predefined experiments for target.
func (e *Engine) RegisterExperiments(t Target) {
	e.RegisterExperiment(ListingFailureIsolationExperiment(t))
	e.RegisterExperiment(CoalescingUnderLatencyExperiment(t, 16, 200*time.Millisecond))
	e.RegisterExperiment(AbandonedLoadExperiment(t, 300*time.Millisecond))
}

// ListingFailureIsolationExperiment breaks the listing endpoint and checks that
// a post page still renders its post and reports the listing failure as a value.
func ListingFailureIsolationExperiment(t Target) Experiment {
	return Experiment{
		Name:       "listing-failure-isolation",
		Hypothesis: "A post page still loads its post when the listing endpoint fails",
		Timeout:    30 * time.Second,
		Method: func(ctx context.Context) (Observations, error) {
			tr := &Transport{FailureRate: 1, Match: PathSuffix("/list")}
			svc := t.loader(tr, journal.Discard)

			_, listErr := svc.FetchListing(ctx, catalog.ListingRequest{})
			page, err := pages.NewBuilder(svc, "").Post(ctx, t.ItemID)
			if err != nil {
				return Observations{
					"listing_fetch_failed": boolMetric(errors.Is(listErr, catalog.ErrFetchFailed)),
					"post_loaded":          0,
				}, fmt.Errorf("load post %s: %w", t.ItemID, err)
			}
			return Observations{
				"listing_fetch_failed":   boolMetric(errors.Is(listErr, catalog.ErrFetchFailed)),
				"post_loaded":            boolMetric(page.Post.Item.ID == t.ItemID),
				"listing_error_reported": boolMetric(page.ListingError != ""),
			}, nil
		},
		Validation: []Assertion{
			{Metric: "listing_fetch_failed", Condition: func(v float64) bool { return v == 1 }, Message: "listing failure must surface as FetchFailed"},
			{Metric: "post_loaded", Condition: func(v float64) bool { return v == 1 }, Message: "post must load despite listing failure"},
			{Metric: "listing_error_reported", Condition: func(v float64) bool { return v == 1 }, Message: "listing failure must be reported on the page"},
		},
	}
}

// CoalescingUnderLatencyExperiment slows the upstream and fires concurrent
// identical loads; they must share one upstream request.
func CoalescingUnderLatencyExperiment(t Target, concurrency int, latency time.Duration) Experiment {
	return Experiment{
		Name:       "coalescing-under-latency",
		Hypothesis: fmt.Sprintf("%d concurrent listing loads under %s latency issue one upstream request", concurrency, latency),
		Timeout:    30 * time.Second,
		Method: func(ctx context.Context) (Observations, error) {
			j := journal.NewMemory()
			svc := t.loader(&Transport{Latency: latency}, j)

			var (
				wg     sync.WaitGroup
				mu     sync.Mutex
				failed int
			)
			for range concurrency {
				wg.Add(1)
				go func() {
					defer wg.Done()
					if _, err := svc.FetchListing(ctx, catalog.ListingRequest{}); err != nil {
						mu.Lock()
						failed++
						mu.Unlock()
					}
				}()
			}
			wg.Wait()
			return Observations{
				"upstream_list_calls": float64(j.Count(clients.EndpointList)),
				"failed_loads":        float64(failed),
			}, nil
		},
		Validation: []Assertion{
			{Metric: "upstream_list_calls", Condition: func(v float64) bool { return v == 1 }, Message: "loads must coalesce into one request"},
			{Metric: "failed_loads", Condition: func(v float64) bool { return v == 0 }, Message: "no load may fail"},
		},
	}
}

// AbandonedLoadExperiment abandons a slow load and checks that the next load
// goes upstream again instead of finding a result from the abandoned one.
func AbandonedLoadExperiment(t Target, latency time.Duration) Experiment {
	return Experiment{
		Name:       "abandoned-load-not-cached",
		Hypothesis: "A load abandoned before resolution never populates the cache",
		Timeout:    30 * time.Second,
		Method: func(ctx context.Context) (Observations, error) {
			j := journal.NewMemory()
			svc := t.loader(&Transport{Latency: latency}, j)

			short, cancel := context.WithTimeout(ctx, latency/6)
			_, abandonErr := svc.FetchListing(short, catalog.ListingRequest{})
			cancel()

			_, err := svc.FetchListing(ctx, catalog.ListingRequest{})
			return Observations{
				"first_load_abandoned": boolMetric(errors.Is(abandonErr, context.DeadlineExceeded)),
				"second_load_ok":       boolMetric(err == nil),
				"upstream_list_calls":  float64(j.Count(clients.EndpointList)),
			}, nil
		},
		Validation: []Assertion{
			{Metric: "first_load_abandoned", Condition: func(v float64) bool { return v == 1 }, Message: "first load must end with its own deadline"},
			{Metric: "second_load_ok", Condition: func(v float64) bool { return v == 1 }, Message: "second load must succeed"},
			{Metric: "upstream_list_calls", Condition: func(v float64) bool { return v >= 2 }, Message: "second load must reach the upstream"},
		},
	}
}
