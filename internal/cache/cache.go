// Package cache is the read-through mirror of the last known server state:
// tickets and per-ticket message lists, readable while offline. Collection
// writes replace the whole stored list; the last writer wins.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"deskline/internal/kvstore"
	"deskline/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	ticketsKey        = "cache:tickets"
	messagesKeyPrefix = "cache:messages:"
	metaKey           = "cache:meta"
)

func messagesKey(ticketID int64) string {
	return messagesKeyPrefix + strconv.FormatInt(ticketID, 10)
}

// MessageDraft is the user-supplied part of an optimistic message.
type MessageDraft struct {
	Body            string
	AuthorID        int64
	QuotedMessageID int64
}

type Store struct {
	kv     kvstore.Store
	logger *zerolog.Logger
	now    func() time.Time
}

func New(kv kvstore.Store, logger *zerolog.Logger) *Store {
	return &Store{kv: kv, logger: logger, now: time.Now}
}

// CacheTickets replaces the whole cached ticket collection with a
// server-confirmed snapshot and stamps the refresh time.
func (s *Store) CacheTickets(ctx context.Context, tickets []models.CachedTicket) error {
	now := s.now()
	for i := range tickets {
		tickets[i].Offline = false
		tickets[i].LastSync = now
	}
	return s.writeTickets(ctx, tickets)
}

// Tickets returns the most recently persisted ticket snapshot. Read and
// decode errors degrade to an empty list.
func (s *Store) Tickets(ctx context.Context) []models.CachedTicket {
	var tickets []models.CachedTicket
	s.read(ctx, ticketsKey, &tickets)
	return tickets
}

// UpdateTicket patches the matching cached row field-by-field and
// re-persists the collection. A ticket that is not cached yet gets an
// offline placeholder row so the optimistic update is visible immediately.
func (s *Store) UpdateTicket(ctx context.Context, id int64, patch models.TicketPatch) error {
	tickets := s.Tickets(ctx)

	found := false
	for i := range tickets {
		if tickets[i].ID == id {
			patch.Apply(&tickets[i])
			tickets[i].UpdatedAt = s.now()
			found = true
			break
		}
	}
	if !found {
		placeholder := models.CachedTicket{ID: id, UpdatedAt: s.now(), Offline: true}
		patch.Apply(&placeholder)
		tickets = append(tickets, placeholder)
	}

	return s.writeTickets(ctx, tickets)
}

// ReconcileTicket replaces the cached row with the authoritative server
// record after a successful dispatch and clears its offline marker.
func (s *Store) ReconcileTicket(ctx context.Context, authoritative models.CachedTicket) error {
	tickets := s.Tickets(ctx)
	authoritative.Offline = false
	authoritative.LastSync = s.now()

	found := false
	for i := range tickets {
		if tickets[i].ID == authoritative.ID {
			tickets[i] = authoritative
			found = true
			break
		}
	}
	if !found {
		tickets = append(tickets, authoritative)
	}

	return s.writeTickets(ctx, tickets)
}

// CacheMessages replaces the whole cached message list of one ticket.
func (s *Store) CacheMessages(ctx context.Context, ticketID int64, messages []models.CachedMessage) error {
	raw, err := json.Marshal(messages)
	if err != nil {
		return fmt.Errorf("encode messages: %w", err)
	}
	return s.kv.Set(ctx, messagesKey(ticketID), string(raw))
}

// Messages returns the cached message list of one ticket, empty on any
// read or decode error.
func (s *Store) Messages(ctx context.Context, ticketID int64) []models.CachedMessage {
	var messages []models.CachedMessage
	s.read(ctx, messagesKey(ticketID), &messages)
	return messages
}

// AddOptimisticMessage appends a locally created message with a fresh temp
// id, persists the list, and returns the record for immediate display.
func (s *Store) AddOptimisticMessage(ctx context.Context, ticketID int64, draft MessageDraft) (models.CachedMessage, error) {
	msg := models.CachedMessage{
		TicketID:        ticketID,
		Body:            draft.Body,
		AuthorID:        draft.AuthorID,
		QuotedMessageID: draft.QuotedMessageID,
		CreatedAt:       s.now(),
		Offline:         true,
		Pending:         true,
		TempID:          "temp_" + uuid.NewString(),
	}

	messages := append(s.Messages(ctx, ticketID), msg)
	if err := s.CacheMessages(ctx, ticketID, messages); err != nil {
		return models.CachedMessage{}, err
	}
	return msg, nil
}

// ReconcileMessage replaces the record matching tempID in place with the
// authoritative server record, keeping its list position and its temp id.
// Replayed acknowledgments overwrite the same record instead of creating a
// second one. A record missing entirely (cache wiped mid-flight) is
// appended so the acknowledged message is not lost.
func (s *Store) ReconcileMessage(ctx context.Context, ticketID int64, tempID string, authoritative models.CachedMessage) error {
	authoritative.TicketID = ticketID
	authoritative.TempID = tempID
	authoritative.Offline = false
	authoritative.Pending = false

	messages := s.Messages(ctx, ticketID)
	found := false
	for i := range messages {
		if messages[i].TempID == tempID {
			messages[i] = authoritative
			found = true
			break
		}
	}
	if !found {
		messages = append(messages, authoritative)
	}

	return s.CacheMessages(ctx, ticketID, messages)
}

// Meta returns the last-sync metadata, zero-valued when absent.
func (s *Store) Meta(ctx context.Context) models.SyncMetadata {
	var meta models.SyncMetadata
	s.read(ctx, metaKey, &meta)
	return meta
}

func (s *Store) SetMeta(ctx context.Context, meta models.SyncMetadata) error {
	raw, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("encode sync metadata: %w", err)
	}
	return s.kv.Set(ctx, metaKey, string(raw))
}

// Clear removes every cache-owned key. Used on logout.
func (s *Store) Clear(ctx context.Context) error {
	keys, err := s.kv.ListKeys(ctx, "cache:")
	if err != nil {
		return fmt.Errorf("list cache keys: %w", err)
	}
	for _, key := range keys {
		if err := s.kv.Remove(ctx, key); err != nil {
			return fmt.Errorf("remove %s: %w", key, err)
		}
	}
	return nil
}

func (s *Store) writeTickets(ctx context.Context, tickets []models.CachedTicket) error {
	raw, err := json.Marshal(tickets)
	if err != nil {
		return fmt.Errorf("encode tickets: %w", err)
	}
	return s.kv.Set(ctx, ticketsKey, string(raw))
}

func (s *Store) read(ctx context.Context, key string, out any) {
	raw, found, err := s.kv.Get(ctx, key)
	if err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("Cache read failed, returning empty")
		return
	}
	if !found {
		return
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("Cache entry corrupted, returning empty")
	}
}
