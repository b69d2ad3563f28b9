package queue

import (
	"context"
	"testing"
	"time"

	"deskline/internal/kvstore"
	"deskline/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleLetter(id string) models.DeadLetter {
	return models.DeadLetter{
		Item: models.QueueItem{
			ID:      id,
			Type:    models.QueueMessage,
			Payload: models.MessagePayload{TicketID: 1, TempID: "temp_" + id, Body: "x"},
		},
		Reason:   "gateway unreachable",
		Attempts: models.MaxDispatchAttempts,
		FailedAt: time.Now(),
	}
}

func TestDeadLettersRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	logger := zerolog.Nop()
	letters := NewDeadLetters(client, kvstore.NewMemory(), &logger)
	ctx := context.Background()

	letters.Add(ctx, sampleLetter("a"))
	letters.Add(ctx, sampleLetter("b"))

	list := letters.List(ctx)
	require.Len(t, list, 2)
	assert.Equal(t, "a", list[0].Item.ID)
	assert.Equal(t, "b", list[1].Item.ID)

	require.NoError(t, letters.Clear(ctx))
	assert.Empty(t, letters.List(ctx))
}

func TestDeadLettersLocalFallback(t *testing.T) {
	logger := zerolog.Nop()
	kv := kvstore.NewMemory()
	letters := NewDeadLetters(nil, kv, &logger)
	ctx := context.Background()

	letters.Add(ctx, sampleLetter("a"))

	list := letters.List(ctx)
	require.Len(t, list, 1)
	assert.Equal(t, "gateway unreachable", list[0].Reason)

	require.NoError(t, letters.Clear(ctx))
	assert.Empty(t, letters.List(ctx))
}

func TestDeadLettersFallBackWhenRedisDown(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	mr.Close()

	logger := zerolog.Nop()
	kv := kvstore.NewMemory()
	letters := NewDeadLetters(client, kv, &logger)
	ctx := context.Background()

	letters.Add(ctx, sampleLetter("a"))

	// The entry must survive in the local store even with redis gone.
	local := NewDeadLetters(nil, kv, &logger)
	require.Len(t, local.List(ctx), 1)
}
