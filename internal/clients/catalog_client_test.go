package clients

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"gallery/internal/catalog"
	"gallery/internal/journal"
)

const listBody = `[
	{"id":"0","author":"Alejandro Escamilla","width":5616,"height":3744,"url":"https://unsplash.com/photos/yC-Yzbqy7PY","download_url":"https://picsum.photos/id/0/5616/3744"},
	{"id":"1","author":"Alejandro Escamilla","width":5616,"height":3744,"url":"https://unsplash.com/photos/LNRyGwIJr5c","download_url":"https://picsum.photos/id/1/5616/3744"}
]`

func newCatalogServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func TestCatalogClientList(t *testing.T) {
	srv := newCatalogServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/list", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(listBody))
	})
	j := journal.NewMemory()
	c := NewCatalogClient(srv.URL+"/", WithJournal(j), WithClientLogger(zaptest.NewLogger(t)))

	items, err := c.List(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, catalog.ItemID("1"), items[1].ID)
	assert.Equal(t, "https://unsplash.com/photos/LNRyGwIJr5c", items[1].PostURL)

	calls := j.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, EndpointList, calls[0].Endpoint)
	assert.Equal(t, "/list", calls[0].Key)
	assert.Equal(t, http.StatusOK, calls[0].Status)
	assert.True(t, calls[0].Succeeded())
}

func TestCatalogClientInfo(t *testing.T) {
	srv := newCatalogServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/id/10/info":
			_, _ = w.Write([]byte(`{"id":"10","author":"Paul Jarvis","width":2500,"height":1667,"url":"https://unsplash.com/photos/6J--NXulQCs"}`))
		case "/id/11/info":
			_, _ = w.Write([]byte(`{"author":"No Id","width":1,"height":1}`))
		default:
			http.NotFound(w, r)
		}
	})
	c := NewCatalogClient(srv.URL)
	ctx := context.Background()

	item, err := c.Info(ctx, "10")
	require.NoError(t, err)
	assert.Equal(t, "Paul Jarvis", item.Author)
	assert.Equal(t, "https://unsplash.com/photos/6J--NXulQCs", item.PostURL)

	item, err = c.Info(ctx, "11")
	require.NoError(t, err)
	assert.Equal(t, catalog.ItemID("11"), item.ID)

	_, err = c.Info(ctx, "999")
	assert.ErrorIs(t, err, catalog.ErrNotFound)
	assert.NotErrorIs(t, err, catalog.ErrFetchFailed)
}

func TestCatalogClientFailures(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		call    func(*CatalogClient) error
		status  int
	}{
		{
			name: "listing not found is a fetch failure",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.NotFound(w, r)
			},
			call:   func(c *CatalogClient) error { _, err := c.List(context.Background()); return err },
			status: http.StatusNotFound,
		},
		{
			name: "server error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "upstream exploded", http.StatusInternalServerError)
			},
			call:   func(c *CatalogClient) error { _, err := c.Info(context.Background(), "1"); return err },
			status: http.StatusInternalServerError,
		},
		{
			name: "malformed body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"id":`))
			},
			call:   func(c *CatalogClient) error { _, err := c.List(context.Background()); return err },
			status: http.StatusOK,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newCatalogServer(t, tt.handler)
			j := journal.NewMemory()
			err := tt.call(NewCatalogClient(srv.URL, WithJournal(j)))

			require.ErrorIs(t, err, catalog.ErrFetchFailed)
			var fetchErr *catalog.FetchFailedError
			require.ErrorAs(t, err, &fetchErr)
			assert.Equal(t, tt.status, fetchErr.Status)

			calls := j.Calls()
			require.Len(t, calls, 1)
			assert.False(t, calls[0].Succeeded())
			assert.NotEmpty(t, calls[0].Error)
		})
	}
}

func TestCatalogClientUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewCatalogClient(url).List(context.Background())
	require.ErrorIs(t, err, catalog.ErrFetchFailed)
	var fetchErr *catalog.FetchFailedError
	require.ErrorAs(t, err, &fetchErr)
	assert.Zero(t, fetchErr.Status)
}

func TestCatalogClientReturnsContextErrors(t *testing.T) {
	release := make(chan struct{})
	srv := newCatalogServer(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := NewCatalogClient(srv.URL).List(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.NotErrorIs(t, err, catalog.ErrFetchFailed)
}

func TestCatalogClientRateLimit(t *testing.T) {
	var hits atomic.Int32
	srv := newCatalogServer(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte(`[]`))
	})
	j := journal.NewMemory()
	c := NewCatalogClient(srv.URL, WithRateLimit(1, 1), WithJournal(j))

	_, err := c.List(context.Background())
	require.NoError(t, err)

	// The second request would wait about a second for a token.
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = c.List(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.NotErrorIs(t, err, catalog.ErrFetchFailed)

	assert.Equal(t, int32(1), hits.Load())
	assert.Equal(t, 1, j.Count(EndpointList), "throttled requests never reach the journal")
}
