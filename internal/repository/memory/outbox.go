package memory

import (
	"context"
	"sync"
	"time"

	"github.com/CalebHite/trustlend/internal/events"
)

const (
	effectPending    = "pending"
	effectProcessing = "processing"
	effectDone       = "done"
	effectFailed     = "failed"
)

type outboxRow struct {
	effect events.Effect
	status string
}

// Outbox is the in-memory effect queue.
type Outbox struct {
	mu     sync.Mutex
	rows   map[int64]*outboxRow
	nextID int64
	now    func() time.Time
}

func NewOutbox() *Outbox {
	return &Outbox{
		rows: map[int64]*outboxRow{},
		now:  func() time.Time { return time.Now().UTC() },
	}
}

func (o *Outbox) Enqueue(_ context.Context, topic string, payload []byte) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.nextID++
	o.rows[o.nextID] = &outboxRow{
		effect: events.Effect{
			ID:          o.nextID,
			Topic:       topic,
			Payload:     payload,
			AvailableAt: o.now(),
		},
		status: effectPending,
	}
	return nil
}

func (o *Outbox) ClaimPending(_ context.Context, limit int32) ([]events.Effect, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	now := o.now()
	out := make([]events.Effect, 0)
	for id := int64(1); id <= o.nextID && int32(len(out)) < limit; id++ {
		row, ok := o.rows[id]
		if !ok || row.status != effectPending || row.effect.AvailableAt.After(now) {
			continue
		}
		row.status = effectProcessing
		row.effect.Attempts++
		out = append(out, row.effect)
	}
	return out, nil
}

func (o *Outbox) MarkDone(_ context.Context, effectID int64) error {
	return o.setStatus(effectID, effectDone, "", time.Time{})
}

func (o *Outbox) MarkRetry(_ context.Context, effectID int64, nextAvailableAt time.Time, lastError string) error {
	return o.setStatus(effectID, effectPending, lastError, nextAvailableAt)
}

func (o *Outbox) MarkFailed(_ context.Context, effectID int64, lastError string) error {
	return o.setStatus(effectID, effectFailed, lastError, time.Time{})
}

func (o *Outbox) setStatus(effectID int64, status, lastError string, availableAt time.Time) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	row, ok := o.rows[effectID]
	if !ok {
		return nil
	}
	row.status = status
	row.effect.LastError = lastError
	if !availableAt.IsZero() {
		row.effect.AvailableAt = availableAt
	}
	return nil
}
