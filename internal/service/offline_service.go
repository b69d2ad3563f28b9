// Package service exposes the offline-first operations used by the rest of
// the application. One Offline instance is constructed at startup with
// injected dependencies; there is no package-level state.
package service

import (
	"context"
	"fmt"

	"deskline/internal/cache"
	"deskline/internal/connectivity"
	"deskline/internal/gateway"
	"deskline/internal/models"
	"deskline/internal/queue"

	"github.com/rs/zerolog"
)

// Syncer triggers a queue drain. Satisfied by worker.Orchestrator.
type Syncer interface {
	Trigger(ctx context.Context)
	Syncing() bool
}

type Offline struct {
	cache       *cache.Store
	outbox      *queue.Outbox
	deadLetters *queue.DeadLetters
	monitor     *connectivity.Monitor
	syncer      Syncer
	gateway     gateway.Gateway
	logger      *zerolog.Logger
}

func NewOffline(cacheStore *cache.Store, outbox *queue.Outbox, deadLetters *queue.DeadLetters, monitor *connectivity.Monitor, syncer Syncer, gw gateway.Gateway, logger *zerolog.Logger) *Offline {
	return &Offline{
		cache:       cacheStore,
		outbox:      outbox,
		deadLetters: deadLetters,
		monitor:     monitor,
		syncer:      syncer,
		gateway:     gw,
		logger:      logger,
	}
}

// SendMessageOffline writes the message into the cache immediately, appends
// a durable queue entry, and triggers a sync when the device is online. The
// returned record carries the temp id and pending flags for display.
func (s *Offline) SendMessageOffline(ctx context.Context, ticketID int64, body string, quotedMessageID int64) (models.CachedMessage, error) {
	msg, err := s.cache.AddOptimisticMessage(ctx, ticketID, cache.MessageDraft{
		Body:            body,
		QuotedMessageID: quotedMessageID,
	})
	if err != nil {
		return models.CachedMessage{}, fmt.Errorf("optimistic write: %w", err)
	}

	if _, err := s.outbox.Enqueue(ctx, models.QueueMessage, models.MessagePayload{
		TicketID:        ticketID,
		TempID:          msg.TempID,
		Body:            body,
		QuotedMessageID: quotedMessageID,
	}); err != nil {
		return models.CachedMessage{}, fmt.Errorf("enqueue message: %w", err)
	}

	s.triggerIfOnline(ctx)
	return msg, nil
}

// UpdateTicketOffline patches the cached ticket immediately and queues the
// update for dispatch.
func (s *Offline) UpdateTicketOffline(ctx context.Context, ticketID int64, patch models.TicketPatch) error {
	if err := s.cache.UpdateTicket(ctx, ticketID, patch); err != nil {
		return fmt.Errorf("optimistic write: %w", err)
	}

	if _, err := s.outbox.Enqueue(ctx, models.QueueTicketUpdate, models.TicketUpdatePayload{
		TicketID: ticketID,
		Patch:    patch,
	}); err != nil {
		return fmt.Errorf("enqueue ticket update: %w", err)
	}

	s.triggerIfOnline(ctx)
	return nil
}

// UploadMediaOffline caches an optimistic media message and queues the
// upload. The payload travels in the queue entry, so the upload survives a
// process restart.
func (s *Offline) UploadMediaOffline(ctx context.Context, ticketID int64, fileName, mimeType string, data []byte) (models.CachedMessage, error) {
	msg, err := s.cache.AddOptimisticMessage(ctx, ticketID, cache.MessageDraft{Body: fileName})
	if err != nil {
		return models.CachedMessage{}, fmt.Errorf("optimistic write: %w", err)
	}

	if _, err := s.outbox.Enqueue(ctx, models.QueueMediaUpload, models.MediaUploadPayload{
		TicketID: ticketID,
		TempID:   msg.TempID,
		FileName: fileName,
		MimeType: mimeType,
		Data:     data,
	}); err != nil {
		return models.CachedMessage{}, fmt.Errorf("enqueue media upload: %w", err)
	}

	s.triggerIfOnline(ctx)
	return msg, nil
}

// Tickets returns the cached ticket snapshot, optimistic updates included.
func (s *Offline) Tickets(ctx context.Context) []models.CachedTicket {
	return s.cache.Tickets(ctx)
}

// Messages returns the cached message list of one ticket.
func (s *Offline) Messages(ctx context.Context, ticketID int64) []models.CachedMessage {
	return s.cache.Messages(ctx, ticketID)
}

// IsOffline reports whether the device currently lacks connectivity.
func (s *Offline) IsOffline() bool {
	return !s.monitor.Online()
}

// Syncing reports whether a drain pass is currently running.
func (s *Offline) Syncing() bool {
	return s.syncer.Syncing()
}

// PendingQueueCount returns the number of not-yet-confirmed actions, for
// UI affordances such as a syncing badge.
func (s *Offline) PendingQueueCount(ctx context.Context) int {
	return s.outbox.Len(ctx)
}

// DeadLetters lists actions that were permanently dropped.
func (s *Offline) DeadLetters(ctx context.Context) []models.DeadLetter {
	return s.deadLetters.List(ctx)
}

// LastSync returns the completion time of the last orchestrator pass.
func (s *Offline) LastSync(ctx context.Context) models.SyncMetadata {
	return s.cache.Meta(ctx)
}

// RefreshTickets pulls the authoritative ticket list and replaces the
// cached snapshot wholesale.
func (s *Offline) RefreshTickets(ctx context.Context) error {
	tickets, err := s.gateway.ListTickets(ctx)
	if err != nil {
		return fmt.Errorf("refresh tickets: %w", err)
	}
	return s.cache.CacheTickets(ctx, tickets)
}

// RefreshMessages pulls the authoritative message list of one ticket and
// replaces the cached list wholesale.
func (s *Offline) RefreshMessages(ctx context.Context, ticketID int64) error {
	messages, err := s.gateway.ListMessages(ctx, ticketID)
	if err != nil {
		return fmt.Errorf("refresh messages: %w", err)
	}
	return s.cache.CacheMessages(ctx, ticketID, messages)
}

// ClearOfflineData wipes every piece of subsystem-owned persisted state:
// cached tickets and messages, the queue log, dead letters, and sync
// metadata. Used on logout.
func (s *Offline) ClearOfflineData(ctx context.Context) error {
	if err := s.outbox.Clear(ctx); err != nil {
		return fmt.Errorf("clear queue: %w", err)
	}
	if err := s.deadLetters.Clear(ctx); err != nil {
		return fmt.Errorf("clear dead letters: %w", err)
	}
	if err := s.cache.Clear(ctx); err != nil {
		return fmt.Errorf("clear cache: %w", err)
	}
	s.logger.Info().Msg("Offline data cleared")
	return nil
}

func (s *Offline) triggerIfOnline(ctx context.Context) {
	if s.monitor.Online() {
		s.syncer.Trigger(ctx)
	}
}
