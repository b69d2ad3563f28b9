// Package gateway is the boundary to the server of record. One call
// executes one queued action; no retrying happens at this layer.
package gateway

import (
	"context"

	"deskline/internal/models"
)

// Gateway executes remote calls against the ticket service. Write calls
// return the authoritative record the server assigned; read calls back the
// cache refresh path.
type Gateway interface {
	SendMessage(ctx context.Context, ticketID int64, body string, quotedMessageID int64) (models.CachedMessage, error)
	UpdateTicket(ctx context.Context, ticketID int64, patch models.TicketPatch) (models.CachedTicket, error)
	SendMedia(ctx context.Context, ticketID int64, payload models.MediaUploadPayload) (models.CachedMessage, error)
	ListTickets(ctx context.Context) ([]models.CachedTicket, error)
	ListMessages(ctx context.Context, ticketID int64) ([]models.CachedMessage, error)
}
