package journal

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestDB connects to the PostgreSQL database described by the standard
// PG* variables. It skips the test if the connection cannot be established.
func setupTestDB(t testing.TB) *sql.DB {
	t.Helper()

	env := func(key, fallback string) string {
		if v := os.Getenv(key); v != "" {
			return v
		}
		return fallback
	}
	connStr := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		env("PGHOST", "localhost"),
		env("PGPORT", "5432"),
		env("PGUSER", "user"),
		env("PGPASSWORD", "password"),
		env("PGDATABASE", "testdb"),
	)

	db, err := sql.Open("postgres", connStr)
	require.NoError(t, err)
	if err := db.Ping(); err != nil {
		db.Close()
		t.Skipf("skipping postgres journal tests: could not connect to postgres: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestPostgresJournal(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	p := NewPostgres(db)
	require.NoError(t, p.EnsureSchema(ctx))
	require.NoError(t, p.EnsureSchema(ctx), "schema creation must be idempotent")

	endpoint := "list-" + uuid.NewString()
	since := time.Now().Add(-time.Minute)
	call := Call{
		ID:        uuid.New(),
		Endpoint:  endpoint,
		Key:       "/list",
		Status:    200,
		StartedAt: time.Now(),
		Duration:  120 * time.Millisecond,
	}
	require.NoError(t, p.Record(ctx, call))
	require.NoError(t, p.Record(ctx, Call{Endpoint: endpoint, Key: "/list", Status: 503, Error: "unavailable", StartedAt: time.Now()}))

	assert.ErrorIs(t, p.Record(ctx, call), ErrDuplicateCall)
	assert.ErrorIs(t, p.Record(ctx, Call{}), ErrInvalidCall)

	n, err := p.CountSince(ctx, endpoint, since)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	recent, err := p.Recent(ctx, 1000)
	require.NoError(t, err)
	var found *Call
	for i := range recent {
		if recent[i].ID == call.ID {
			found = &recent[i]
		}
	}
	require.NotNil(t, found)
	assert.Equal(t, endpoint, found.Endpoint)
	assert.Equal(t, 120*time.Millisecond, found.Duration)
}
