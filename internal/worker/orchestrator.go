// Package worker contains the sync orchestrator: the control loop that
// drains the outbound mutation queue against the remote gateway.
package worker

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"deskline/internal/cache"
	"deskline/internal/events"
	"deskline/internal/gateway"
	"deskline/internal/metrics"
	"deskline/internal/models"
	"deskline/internal/queue"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Options tune the orchestrator. Zero values select the defaults.
type Options struct {
	// MaxAttempts bounds dispatches per item before it is dead-lettered.
	MaxAttempts int
	// TriggerRate caps how often passes may start, damping connectivity
	// flapping. Unset means unlimited.
	TriggerRate rate.Limit
	// TriggerBurst is the limiter burst when TriggerRate is set.
	TriggerBurst int
}

// Orchestrator walks the queue oldest-first, one item fully resolved before
// the next. A single-flight flag serializes passes: a trigger that arrives
// mid-pass is dropped, and the items it would have serviced stay queued for
// the next triggering event.
type Orchestrator struct {
	outbox      *queue.Outbox
	cache       *cache.Store
	gateway     gateway.Gateway
	deadLetters *queue.DeadLetters
	bus         *events.Bus
	logger      *zerolog.Logger

	maxAttempts int
	limiter     *rate.Limiter
	syncing     atomic.Bool
	now         func() time.Time
}

func NewOrchestrator(outbox *queue.Outbox, cacheStore *cache.Store, gw gateway.Gateway, deadLetters *queue.DeadLetters, bus *events.Bus, opts Options, logger *zerolog.Logger) *Orchestrator {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = models.MaxDispatchAttempts
	}
	if opts.TriggerRate <= 0 {
		opts.TriggerRate = rate.Inf
	}
	if opts.TriggerBurst <= 0 {
		opts.TriggerBurst = 1
	}

	return &Orchestrator{
		outbox:      outbox,
		cache:       cacheStore,
		gateway:     gw,
		deadLetters: deadLetters,
		bus:         bus,
		logger:      logger,
		maxAttempts: opts.MaxAttempts,
		limiter:     rate.NewLimiter(opts.TriggerRate, opts.TriggerBurst),
		now:         time.Now,
	}
}

// Syncing reports whether a pass is currently running.
func (o *Orchestrator) Syncing() bool {
	return o.syncing.Load()
}

// Trigger runs one sync pass. It is a no-op while another pass runs; the
// work is only deferred, never lost, because the queue is durable.
func (o *Orchestrator) Trigger(ctx context.Context) {
	if !o.syncing.CompareAndSwap(false, true) {
		o.logger.Debug().Msg("Sync pass already running, trigger ignored")
		return
	}
	defer o.syncing.Store(false)

	if err := o.limiter.Wait(ctx); err != nil {
		return
	}

	o.runPass(ctx)
}

func (o *Orchestrator) runPass(ctx context.Context) {
	_ = o.bus.PublishJSON(events.EventSyncStarted, nil)

	var stats events.SyncPassPayload

	// Snapshot the queue for this pass: each item gets at most one
	// dispatch attempt per pass, strictly in enqueue order.
	items := o.outbox.Items(ctx)
	for i := range items {
		if ctx.Err() != nil {
			o.logger.Warn().Err(ctx.Err()).Int("remaining", len(items)-i).Msg("Sync pass aborted, remaining items stay queued")
			return
		}
		o.processItem(ctx, &items[i], &stats)
	}

	stats.Remaining = o.outbox.Len(ctx)
	stats.CompletedAt = o.now()
	if err := o.cache.SetMeta(ctx, models.SyncMetadata{LastSyncTimestamp: stats.CompletedAt}); err != nil {
		o.logger.Warn().Err(err).Msg("Persist sync metadata failed")
	}

	metrics.IncSyncPass()
	metrics.SetQueueDepth(stats.Remaining)
	_ = o.bus.PublishJSON(events.EventSyncCompleted, stats)

	o.logger.Info().
		Int("processed", stats.Processed).
		Int("succeeded", stats.Succeeded).
		Int("dead_lettered", stats.DeadLettered).
		Int("remaining", stats.Remaining).
		Msg("Sync pass completed")
}

func (o *Orchestrator) processItem(ctx context.Context, item *models.QueueItem, stats *events.SyncPassPayload) {
	stats.Processed++
	attempt := item.RetryCount + 1

	// Success order: remove from the queue first, then reconcile the
	// cache with the authoritative record.
	reconcile, err := o.dispatch(ctx, item)
	if err == nil {
		if removeErr := o.outbox.Remove(ctx, item.ID); removeErr != nil {
			o.logger.Error().Err(removeErr).Str("item_id", item.ID).Msg("Remove dispatched item failed")
		}
		reconcile(ctx)
		stats.Succeeded++
		metrics.IncDispatch("success")
		_ = o.bus.PublishJSON(events.EventItemDispatched, events.DispatchPayload{
			ItemID: item.ID, Type: string(item.Type), Attempt: attempt, Result: "success",
		})
		return
	}

	if gateway.IsPermanent(err) || attempt >= o.maxAttempts {
		o.dropItem(ctx, item, attempt, err)
		stats.DeadLettered++
		return
	}

	if _, bumpErr := o.outbox.Bump(ctx, item.ID); bumpErr != nil {
		o.logger.Error().Err(bumpErr).Str("item_id", item.ID).Msg("Bump retry count failed")
	}
	metrics.IncDispatch("retry")
	o.logger.Warn().Err(err).Str("item_id", item.ID).Int("attempt", attempt).Msg("Dispatch failed, item stays queued")
}

// dispatch executes one item against the gateway. On success it returns
// the deferred cache reconciliation, keyed off the temp id so a replayed
// success is idempotent.
func (o *Orchestrator) dispatch(ctx context.Context, item *models.QueueItem) (func(context.Context), error) {
	switch payload := item.Payload.(type) {
	case models.MessagePayload:
		authoritative, err := o.gateway.SendMessage(ctx, payload.TicketID, payload.Body, payload.QuotedMessageID)
		if err != nil {
			return nil, err
		}
		return func(ctx context.Context) {
			o.reconcileMessage(ctx, payload.TicketID, payload.TempID, authoritative)
		}, nil

	case models.TicketUpdatePayload:
		authoritative, err := o.gateway.UpdateTicket(ctx, payload.TicketID, payload.Patch)
		if err != nil {
			return nil, err
		}
		return func(ctx context.Context) {
			if err := o.cache.ReconcileTicket(ctx, authoritative); err != nil {
				o.logger.Warn().Err(err).Int64("ticket_id", payload.TicketID).Msg("Ticket reconciliation failed")
			}
		}, nil

	case models.MediaUploadPayload:
		authoritative, err := o.gateway.SendMedia(ctx, payload.TicketID, payload)
		if err != nil {
			return nil, err
		}
		return func(ctx context.Context) {
			o.reconcileMessage(ctx, payload.TicketID, payload.TempID, authoritative)
		}, nil

	default:
		return nil, gateway.Permanent(fmt.Errorf("unknown queue item type: %q", item.Type))
	}
}

func (o *Orchestrator) reconcileMessage(ctx context.Context, ticketID int64, tempID string, authoritative models.CachedMessage) {
	if err := o.cache.ReconcileMessage(ctx, ticketID, tempID, authoritative); err != nil {
		o.logger.Warn().Err(err).Str("temp_id", tempID).Msg("Message reconciliation failed")
	}
}

func (o *Orchestrator) dropItem(ctx context.Context, item *models.QueueItem, attempt int, cause error) {
	if err := o.outbox.Remove(ctx, item.ID); err != nil {
		o.logger.Error().Err(err).Str("item_id", item.ID).Msg("Remove exhausted item failed")
	}

	o.deadLetters.Add(ctx, models.DeadLetter{
		Item:     *item,
		Reason:   cause.Error(),
		Attempts: attempt,
		FailedAt: o.now(),
	})

	metrics.IncDispatch("dead_letter")
	metrics.IncDeadLetter()
	_ = o.bus.PublishJSON(events.EventItemDeadLettered, events.DispatchPayload{
		ItemID: item.ID, Type: string(item.Type), Attempt: attempt, Result: "dead_letter",
	})
	o.logger.Warn().Err(cause).Str("item_id", item.ID).Int("attempts", attempt).Msg("Queue item dropped to dead letters")
}
