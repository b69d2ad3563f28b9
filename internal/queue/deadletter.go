package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"deskline/internal/kvstore"
	"deskline/internal/models"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	deadLetterRedisKey = "deskline:deadletter"
	deadLetterKVKey    = "queue:deadletters"
)

// DeadLetters records items dropped after retry exhaustion or a permanent
// gateway error, so an operator or the UI can inspect them instead of the
// drop being silent. Redis is the primary list when configured; otherwise
// entries land in the local key-value store.
type DeadLetters struct {
	redis  *redis.Client
	kv     kvstore.Store
	logger *zerolog.Logger
}

func NewDeadLetters(redisClient *redis.Client, kv kvstore.Store, logger *zerolog.Logger) *DeadLetters {
	return &DeadLetters{redis: redisClient, kv: kv, logger: logger}
}

// Add appends the entry. Failures are logged, never propagated: a broken
// dead-letter sink must not break the sync pass that produced the entry.
func (d *DeadLetters) Add(ctx context.Context, letter models.DeadLetter) {
	raw, err := json.Marshal(letter)
	if err != nil {
		d.logger.Error().Err(err).Str("item_id", letter.Item.ID).Msg("Encode dead letter failed")
		return
	}

	if d.redis != nil {
		if err := d.redis.LPush(ctx, deadLetterRedisKey, raw).Err(); err == nil {
			return
		} else {
			d.logger.Error().Err(err).Str("item_id", letter.Item.ID).Msg("Redis dead letter push failed, falling back to local store")
		}
	}

	letters := d.loadLocal(ctx)
	letters = append(letters, letter)
	if err := d.persistLocal(ctx, letters); err != nil {
		d.logger.Error().Err(err).Str("item_id", letter.Item.ID).Msg("Persist dead letter failed")
	}
}

// List returns every recorded dead letter, oldest first.
func (d *DeadLetters) List(ctx context.Context) []models.DeadLetter {
	var letters []models.DeadLetter

	if d.redis != nil {
		raws, err := d.redis.LRange(ctx, deadLetterRedisKey, 0, -1).Result()
		if err != nil {
			d.logger.Error().Err(err).Msg("Redis dead letter read failed")
		}
		// LPush stores newest first.
		for i := len(raws) - 1; i >= 0; i-- {
			var letter models.DeadLetter
			if err := json.Unmarshal([]byte(raws[i]), &letter); err != nil {
				d.logger.Warn().Err(err).Msg("Skipping corrupted dead letter")
				continue
			}
			letters = append(letters, letter)
		}
	}

	return append(letters, d.loadLocal(ctx)...)
}

// Clear removes every dead letter from both sinks.
func (d *DeadLetters) Clear(ctx context.Context) error {
	if d.redis != nil {
		if err := d.redis.Del(ctx, deadLetterRedisKey).Err(); err != nil {
			return fmt.Errorf("clear redis dead letters: %w", err)
		}
	}
	return d.kv.Remove(ctx, deadLetterKVKey)
}

func (d *DeadLetters) loadLocal(ctx context.Context) []models.DeadLetter {
	raw, found, err := d.kv.Get(ctx, deadLetterKVKey)
	if err != nil || !found {
		return nil
	}
	var letters []models.DeadLetter
	if err := json.Unmarshal([]byte(raw), &letters); err != nil {
		d.logger.Warn().Err(err).Msg("Dead letter store corrupted, treating as empty")
		return nil
	}
	return letters
}

func (d *DeadLetters) persistLocal(ctx context.Context, letters []models.DeadLetter) error {
	raw, err := json.Marshal(letters)
	if err != nil {
		return err
	}
	return d.kv.Set(ctx, deadLetterKVKey, string(raw))
}
