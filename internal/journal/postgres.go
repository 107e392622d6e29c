package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const schema = `
	CREATE TABLE IF NOT EXISTS upstream_calls (
		id UUID PRIMARY KEY,
		endpoint TEXT NOT NULL,
		cache_key TEXT NOT NULL,
		status INT NOT NULL,
		error TEXT NOT NULL DEFAULT '',
		started_at TIMESTAMPTZ NOT NULL,
		duration_ms BIGINT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS upstream_calls_endpoint_started_idx
		ON upstream_calls (endpoint, started_at);
`

// Postgres stores calls in the upstream_calls table.
type Postgres struct {
	db     *sql.DB
	tracer trace.Tracer
}

// NewPostgres creates a journal backed by db.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{
		db:     db,
		tracer: otel.Tracer("gallery/journal"),
	}
}

// EnsureSchema creates the table and index when missing.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create journal schema: %w", err)
	}
	return nil
}

// Record appends a call.
func (p *Postgres) Record(ctx context.Context, call Call) error {
	if call.Endpoint == "" {
		return ErrInvalidCall
	}
	if call.ID == uuid.Nil {
		call.ID = uuid.New()
	}
	ctx, span := p.tracer.Start(ctx, "journal.record",
		trace.WithAttributes(
			attribute.String("call.id", call.ID.String()),
			attribute.String("call.endpoint", call.Endpoint),
			attribute.Int("call.status", call.Status),
		),
	)
	defer span.End()

	_, err := p.db.ExecContext(ctx, `
		INSERT INTO upstream_calls (id, endpoint, cache_key, status, error, started_at, duration_ms)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, call.ID, call.Endpoint, call.Key, call.Status, call.Error, call.StartedAt.UTC(), call.Duration.Milliseconds())
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return ErrDuplicateCall
		}
		span.RecordError(err)
		return fmt.Errorf("insert call %s: %w", call.ID, err)
	}
	return nil
}

// Recent returns up to limit calls, newest first.
func (p *Postgres) Recent(ctx context.Context, limit int) ([]Call, error) {
	ctx, span := p.tracer.Start(ctx, "journal.recent",
		trace.WithAttributes(attribute.Int("limit", limit)),
	)
	defer span.End()

	rows, err := p.db.QueryContext(ctx, `
		SELECT id, endpoint, cache_key, status, error, started_at, duration_ms
		FROM upstream_calls
		ORDER BY started_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query calls: %w", err)
	}
	defer rows.Close()

	var calls []Call
	for rows.Next() {
		var (
			call Call
			ms   int64
		)
		if err := rows.Scan(&call.ID, &call.Endpoint, &call.Key, &call.Status, &call.Error, &call.StartedAt, &ms); err != nil {
			return nil, fmt.Errorf("scan call: %w", err)
		}
		call.Duration = time.Duration(ms) * time.Millisecond
		calls = append(calls, call)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate calls: %w", err)
	}

	span.SetAttributes(attribute.Int("calls.loaded", len(calls)))
	return calls, nil
}

// CountSince returns how many calls hit endpoint at or after since.
func (p *Postgres) CountSince(ctx context.Context, endpoint string, since time.Time) (int, error) {
	ctx, span := p.tracer.Start(ctx, "journal.count_since",
		trace.WithAttributes(attribute.String("call.endpoint", endpoint)),
	)
	defer span.End()

	var n int
	err := p.db.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM upstream_calls
		WHERE endpoint = $1 AND started_at >= $2
	`, endpoint, since.UTC()).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count calls: %w", err)
	}
	return n, nil
}
