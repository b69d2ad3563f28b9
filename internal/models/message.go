package models

import "time"

// CachedMessage mirrors a server message plus local-only sync markers.
// TempID is assigned at local creation and kept for the lifetime of the
// record; it stays the reconciliation key even after the server id arrives.
type CachedMessage struct {
	ID              int64     `json:"id,omitempty"`
	TicketID        int64     `json:"ticket_id"`
	Body            string    `json:"body"`
	AuthorID        int64     `json:"author_id,omitempty"`
	QuotedMessageID int64     `json:"quoted_message_id,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	Offline         bool      `json:"_offline"`
	Pending         bool      `json:"_pending"`
	TempID          string    `json:"_temp_id,omitempty"`
}

// SyncMetadata records the completion time of the last orchestrator pass.
// Diagnostics only, never used for correctness.
type SyncMetadata struct {
	LastSyncTimestamp time.Time `json:"last_sync_timestamp"`
}
