// Package queue holds the durable outbound mutation queue and the
// dead-letter list for items that will never be dispatched again.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"deskline/internal/kvstore"
	"deskline/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const itemsKey = "queue:items"

// Outbox is an append-ordered log of not-yet-confirmed actions. Every
// mutation is persisted synchronously before the method returns, so a
// crash right after Enqueue never loses the action.
type Outbox struct {
	kv     kvstore.Store
	logger *zerolog.Logger
	mu     sync.Mutex
	now    func() time.Time
}

func NewOutbox(kv kvstore.Store, logger *zerolog.Logger) *Outbox {
	return &Outbox{kv: kv, logger: logger, now: time.Now}
}

// Enqueue validates the payload, appends the item, and persists the queue
// before returning. Durability precedes any network attempt.
func (q *Outbox) Enqueue(ctx context.Context, itemType models.QueueItemType, payload models.QueuePayload) (models.QueueItem, error) {
	if err := payload.Validate(); err != nil {
		return models.QueueItem{}, fmt.Errorf("enqueue: %w", err)
	}

	item := models.QueueItem{
		ID:        uuid.NewString(),
		Type:      itemType,
		Payload:   payload,
		Timestamp: q.now(),
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	items := q.load(ctx)
	items = append(items, item)
	if err := q.persist(ctx, items); err != nil {
		return models.QueueItem{}, err
	}
	return item, nil
}

// Items returns the queue oldest-first.
func (q *Outbox) Items(ctx context.Context) []models.QueueItem {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.load(ctx)
}

// Remove deletes the item and persists the shrunk queue. Removing an id
// that is no longer queued is a no-op.
func (q *Outbox) Remove(ctx context.Context, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	items := q.load(ctx)
	kept := items[:0]
	for _, item := range items {
		if item.ID != id {
			kept = append(kept, item)
		}
	}
	if len(kept) == len(items) {
		return nil
	}
	return q.persist(ctx, kept)
}

// Bump increments the retry counter of the item and persists the queue.
// The counter only ever increases.
func (q *Outbox) Bump(ctx context.Context, id string) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	items := q.load(ctx)
	for i := range items {
		if items[i].ID == id {
			items[i].RetryCount++
			if err := q.persist(ctx, items); err != nil {
				return 0, err
			}
			return items[i].RetryCount, nil
		}
	}
	return 0, fmt.Errorf("bump: queue item %s not found", id)
}

// Len reports the number of queued items.
func (q *Outbox) Len(ctx context.Context) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.load(ctx))
}

// Clear drops every queued item. Used on logout.
func (q *Outbox) Clear(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.kv.Remove(ctx, itemsKey)
}

// load reads the persisted queue. A corrupted log is treated as empty;
// the raw length is logged so the loss is at least visible in forensics.
func (q *Outbox) load(ctx context.Context) []models.QueueItem {
	raw, found, err := q.kv.Get(ctx, itemsKey)
	if err != nil {
		q.logger.Warn().Err(err).Msg("Queue read failed, treating as empty")
		return nil
	}
	if !found {
		return nil
	}

	var items []models.QueueItem
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		q.logger.Warn().Err(err).Int("raw_len", len(raw)).Msg("Queue log corrupted, treating as empty")
		return nil
	}
	return items
}

func (q *Outbox) persist(ctx context.Context, items []models.QueueItem) error {
	raw, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("encode queue: %w", err)
	}
	if err := q.kv.Set(ctx, itemsKey, string(raw)); err != nil {
		return fmt.Errorf("persist queue: %w", err)
	}
	return nil
}
