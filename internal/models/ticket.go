package models

import "time"

// CachedTicket mirrors a server ticket plus local-only sync markers.
// Offline is true while the row has never been confirmed against the server.
type CachedTicket struct {
	ID         int64     `json:"id"`
	Subject    string    `json:"subject"`
	Status     string    `json:"status"`
	Priority   string    `json:"priority,omitempty"`
	AssigneeID int64     `json:"assignee_id,omitempty"`
	UpdatedAt  time.Time `json:"updated_at"`
	Offline    bool      `json:"_offline"`
	LastSync   time.Time `json:"_last_sync,omitempty"`
}

// TicketPatch is a field-level partial update; nil fields are left untouched.
type TicketPatch struct {
	Subject    *string `json:"subject,omitempty"`
	Status     *string `json:"status,omitempty"`
	Priority   *string `json:"priority,omitempty"`
	AssigneeID *int64  `json:"assignee_id,omitempty"`
}

// IsZero reports whether the patch carries no changes.
func (p TicketPatch) IsZero() bool {
	return p.Subject == nil && p.Status == nil && p.Priority == nil && p.AssigneeID == nil
}

// Apply writes the non-nil patch fields onto the ticket.
func (p TicketPatch) Apply(t *CachedTicket) {
	if p.Subject != nil {
		t.Subject = *p.Subject
	}
	if p.Status != nil {
		t.Status = *p.Status
	}
	if p.Priority != nil {
		t.Priority = *p.Priority
	}
	if p.AssigneeID != nil {
		t.AssigneeID = *p.AssigneeID
	}
}
