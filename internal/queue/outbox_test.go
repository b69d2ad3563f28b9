package queue

import (
	"context"
	"testing"

	"deskline/internal/kvstore"
	"deskline/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestOutbox(t *testing.T) (*Outbox, kvstore.Store) {
	t.Helper()
	kv := kvstore.NewMemory()
	logger := zerolog.Nop()
	return NewOutbox(kv, &logger), kv
}

func TestEnqueuePersistsBeforeReturn(t *testing.T) {
	outbox, kv := newTestOutbox(t)
	ctx := context.Background()

	item, err := outbox.Enqueue(ctx, models.QueueMessage, models.MessagePayload{
		TicketID: 7, TempID: "temp_1", Body: "Hello",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, item.ID)
	assert.Zero(t, item.RetryCount)

	// The action must be readable through a fresh Outbox over the same
	// store, simulating a crash immediately after enqueue.
	logger := zerolog.Nop()
	reloaded := NewOutbox(kv, &logger)
	items := reloaded.Items(ctx)
	require.Len(t, items, 1)
	assert.Equal(t, item.ID, items[0].ID)
	assert.Equal(t, models.MessagePayload{TicketID: 7, TempID: "temp_1", Body: "Hello"}, items[0].Payload)
}

func TestEnqueueRejectsInvalidPayload(t *testing.T) {
	outbox, _ := newTestOutbox(t)

	_, err := outbox.Enqueue(context.Background(), models.QueueMessage, models.MessagePayload{TicketID: 7})
	require.Error(t, err)
	assert.Zero(t, outbox.Len(context.Background()))
}

func TestItemsAreFIFO(t *testing.T) {
	outbox, _ := newTestOutbox(t)
	ctx := context.Background()

	a, err := outbox.Enqueue(ctx, models.QueueMessage, models.MessagePayload{TicketID: 1, TempID: "temp_a", Body: "A"})
	require.NoError(t, err)
	b, err := outbox.Enqueue(ctx, models.QueueMessage, models.MessagePayload{TicketID: 1, TempID: "temp_b", Body: "B"})
	require.NoError(t, err)

	items := outbox.Items(ctx)
	require.Len(t, items, 2)
	assert.Equal(t, a.ID, items[0].ID)
	assert.Equal(t, b.ID, items[1].ID)
}

func TestRemoveAndBump(t *testing.T) {
	outbox, _ := newTestOutbox(t)
	ctx := context.Background()

	item, err := outbox.Enqueue(ctx, models.QueueTicketUpdate, mustTicketUpdate(7, "closed"))
	require.NoError(t, err)

	count, err := outbox.Bump(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	count, err = outbox.Bump(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	items := outbox.Items(ctx)
	require.Len(t, items, 1)
	assert.Equal(t, 2, items[0].RetryCount)

	require.NoError(t, outbox.Remove(ctx, item.ID))
	assert.Zero(t, outbox.Len(ctx))

	// Removing twice is a no-op, bumping a gone item is not.
	require.NoError(t, outbox.Remove(ctx, item.ID))
	_, err = outbox.Bump(ctx, item.ID)
	require.Error(t, err)
}

func TestCorruptedQueueLoadsEmpty(t *testing.T) {
	outbox, kv := newTestOutbox(t)
	ctx := context.Background()

	require.NoError(t, kv.Set(ctx, "queue:items", "{{{"))
	assert.Empty(t, outbox.Items(ctx))

	// A fresh enqueue starts a clean log.
	_, err := outbox.Enqueue(ctx, models.QueueMessage, models.MessagePayload{TicketID: 1, TempID: "temp_x", Body: "x"})
	require.NoError(t, err)
	assert.Equal(t, 1, outbox.Len(ctx))
}

func mustTicketUpdate(id int64, status string) models.TicketUpdatePayload {
	return models.TicketUpdatePayload{TicketID: id, Patch: models.TicketPatch{Status: &status}}
}
