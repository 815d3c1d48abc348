package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/CalebHite/trustlend/internal/events"
)

// OutboxRepository is the durable events.Outbox. ClaimPending uses
// SKIP LOCKED so concurrent dispatchers never double-claim an effect.
type OutboxRepository struct {
	pool *pgxpool.Pool
}

func NewOutboxRepository(pool *pgxpool.Pool) *OutboxRepository {
	return &OutboxRepository{pool: pool}
}

func (r *OutboxRepository) Enqueue(ctx context.Context, topic string, payload []byte) error {
	q := `INSERT INTO outbox_effects (topic, payload, status, available_at) VALUES ($1, $2::jsonb, 'pending', NOW())`
	_, err := r.pool.Exec(ctx, q, topic, payload)
	return err
}

func (r *OutboxRepository) ClaimPending(ctx context.Context, limit int32) ([]events.Effect, error) {
	q := `
WITH claimed AS (
  SELECT id FROM outbox_effects
  WHERE status = 'pending' AND available_at <= NOW()
  ORDER BY id
  LIMIT $1
  FOR UPDATE SKIP LOCKED
)
UPDATE outbox_effects o
SET status = 'processing', attempts = o.attempts + 1
FROM claimed
WHERE o.id = claimed.id
RETURNING o.id, o.topic, o.payload, o.attempts, o.last_error, o.available_at
`
	rows, err := r.pool.Query(ctx, q, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]events.Effect, 0)
	for rows.Next() {
		var e events.Effect
		var lastError *string
		if err := rows.Scan(&e.ID, &e.Topic, &e.Payload, &e.Attempts, &lastError, &e.AvailableAt); err != nil {
			return nil, err
		}
		if lastError != nil {
			e.LastError = *lastError
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *OutboxRepository) MarkDone(ctx context.Context, effectID int64) error {
	q := `UPDATE outbox_effects SET status = 'done', last_error = NULL WHERE id = $1`
	_, err := r.pool.Exec(ctx, q, effectID)
	return err
}

func (r *OutboxRepository) MarkRetry(ctx context.Context, effectID int64, nextAvailableAt time.Time, lastError string) error {
	q := `UPDATE outbox_effects SET status = 'pending', available_at = $2, last_error = $3 WHERE id = $1`
	_, err := r.pool.Exec(ctx, q, effectID, nextAvailableAt, lastError)
	return err
}

func (r *OutboxRepository) MarkFailed(ctx context.Context, effectID int64, lastError string) error {
	q := `UPDATE outbox_effects SET status = 'failed', last_error = $2 WHERE id = $1`
	_, err := r.pool.Exec(ctx, q, effectID, lastError)
	return err
}
