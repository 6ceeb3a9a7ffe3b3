package outbox

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// MaxRetries is how many failed deliveries an event gets before it is parked as failed.
const MaxRetries = 10

type Execer interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

// Insert writes e using ex, normally the transaction that changed the aggregate.
func Insert(ctx context.Context, ex Execer, e Event) error {
	query := `
		INSERT INTO outbox_events (aggregate_type, aggregate_id, event_type, payload, status)
		VALUES ($1, $2, $3, $4, $5)
	`
	if _, err := ex.Exec(ctx, query, e.AggregateType, e.AggregateID, e.Type, e.Payload, string(StatusPending)); err != nil {
		return fmt.Errorf("outbox: failed to insert %s event: %w", e.Type, err)
	}
	return nil
}

type Store interface {
	LockBatch(ctx context.Context, relayID string, batchSize int, lease time.Duration) ([]Event, error)
	MarkSent(ctx context.Context, ids []int64) error
	MarkFailed(ctx context.Context, id int64, errMsg string) error
	// Release drops the lease without counting a delivery attempt.
	Release(ctx context.Context, ids []int64) error
}

type postgresStore struct {
	db *pgxpool.Pool
}

func NewPostgresStore(db *pgxpool.Pool) Store {
	return &postgresStore{db: db}
}

// LockBatch leases up to batchSize pending events to relayID, oldest first.
// Events whose lease expired are picked up again.
func (s *postgresStore) LockBatch(ctx context.Context, relayID string, batchSize int, lease time.Duration) ([]Event, error) {
	query := `
		WITH locked AS (
			UPDATE outbox_events
			SET locked_by = $1, locked_until = now() + make_interval(secs => $2)
			WHERE id IN (
				SELECT id FROM outbox_events
				WHERE status = 'pending' AND (locked_until IS NULL OR locked_until < now())
				ORDER BY id
				LIMIT $3
				FOR UPDATE SKIP LOCKED
			)
			RETURNING id, aggregate_type, aggregate_id, event_type, payload, status, retry_count, last_error, created_at
		)
		SELECT id, aggregate_type, aggregate_id, event_type, payload, status, retry_count, last_error, created_at
		FROM locked
		ORDER BY id
	`
	rows, err := s.db.Query(ctx, query, relayID, lease.Seconds(), batchSize)
	if err != nil {
		return nil, fmt.Errorf("outbox: failed to lock batch: %w", err)
	}
	defer rows.Close()

	events := make([]Event, 0, batchSize)
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.ID, &e.AggregateType, &e.AggregateID, &e.Type, &e.Payload, &e.Status, &e.RetryCount, &e.LastError, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("outbox: failed to scan event: %w", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("outbox: failed iterating events: %w", err)
	}
	return events, nil
}

func (s *postgresStore) MarkSent(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	query := `
		UPDATE outbox_events
		SET status = 'sent', sent_at = now(), locked_by = NULL, locked_until = NULL
		WHERE id = ANY($1)
	`
	if _, err := s.db.Exec(ctx, query, ids); err != nil {
		return fmt.Errorf("outbox: failed to mark events sent: %w", err)
	}
	return nil
}

func (s *postgresStore) MarkFailed(ctx context.Context, id int64, errMsg string) error {
	query := `
		UPDATE outbox_events
		SET retry_count = retry_count + 1,
		    last_error = $2,
		    status = CASE WHEN retry_count + 1 >= $3 THEN 'failed' ELSE 'pending' END,
		    locked_by = NULL,
		    locked_until = NULL
		WHERE id = $1
	`
	if _, err := s.db.Exec(ctx, query, id, errMsg, MaxRetries); err != nil {
		return fmt.Errorf("outbox: failed to mark event %d failed: %w", id, err)
	}
	return nil
}

func (s *postgresStore) Release(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	query := `
		UPDATE outbox_events
		SET locked_by = NULL, locked_until = NULL
		WHERE id = ANY($1) AND status = 'pending'
	`
	if _, err := s.db.Exec(ctx, query, ids); err != nil {
		return fmt.Errorf("outbox: failed to release events: %w", err)
	}
	return nil
}
