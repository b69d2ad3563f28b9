package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

type QueueItemType string

const (
	QueueMessage      QueueItemType = "message"
	QueueTicketUpdate QueueItemType = "ticket_update"
	QueueMediaUpload  QueueItemType = "media_upload"
)

// MaxDispatchAttempts bounds how often a queue item is dispatched before it
// is moved to the dead-letter list.
const MaxDispatchAttempts = 3

// QueuePayload is the tagged-union payload of a QueueItem. Each variant
// validates itself at the deserialization boundary.
type QueuePayload interface {
	Validate() error
}

type MessagePayload struct {
	TicketID        int64  `json:"ticket_id"`
	TempID          string `json:"temp_id"`
	Body            string `json:"body"`
	QuotedMessageID int64  `json:"quoted_message_id,omitempty"`
}

func (p MessagePayload) Validate() error {
	if p.TicketID == 0 {
		return errors.New("message payload: ticket id is required")
	}
	if p.TempID == "" {
		return errors.New("message payload: temp id is required")
	}
	if p.Body == "" {
		return errors.New("message payload: body is required")
	}
	return nil
}

type TicketUpdatePayload struct {
	TicketID int64       `json:"ticket_id"`
	Patch    TicketPatch `json:"patch"`
}

func (p TicketUpdatePayload) Validate() error {
	if p.TicketID == 0 {
		return errors.New("ticket update payload: ticket id is required")
	}
	if p.Patch.IsZero() {
		return errors.New("ticket update payload: empty patch")
	}
	return nil
}

type MediaUploadPayload struct {
	TicketID int64  `json:"ticket_id"`
	TempID   string `json:"temp_id"`
	FileName string `json:"file_name"`
	MimeType string `json:"mime_type,omitempty"`
	Data     []byte `json:"data"`
}

func (p MediaUploadPayload) Validate() error {
	if p.TicketID == 0 {
		return errors.New("media payload: ticket id is required")
	}
	if p.FileName == "" {
		return errors.New("media payload: file name is required")
	}
	if len(p.Data) == 0 {
		return errors.New("media payload: data is empty")
	}
	return nil
}

// QueueItem is one durable entry of the outbound mutation queue.
// RetryCount only ever increases; an item leaves the queue exactly once.
type QueueItem struct {
	ID         string
	Type       QueueItemType
	Payload    QueuePayload
	Timestamp  time.Time
	RetryCount int
}

type queueItemEnvelope struct {
	ID         string          `json:"id"`
	Type       QueueItemType   `json:"type"`
	Payload    json.RawMessage `json:"payload"`
	Timestamp  time.Time       `json:"timestamp"`
	RetryCount int             `json:"retry_count"`
}

func (i QueueItem) MarshalJSON() ([]byte, error) {
	raw, err := json.Marshal(i.Payload)
	if err != nil {
		return nil, fmt.Errorf("encode queue payload: %w", err)
	}
	return json.Marshal(queueItemEnvelope{
		ID:         i.ID,
		Type:       i.Type,
		Payload:    raw,
		Timestamp:  i.Timestamp,
		RetryCount: i.RetryCount,
	})
}

func (i *QueueItem) UnmarshalJSON(data []byte) error {
	var env queueItemEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return err
	}

	payload, err := decodePayload(env.Type, env.Payload)
	if err != nil {
		return err
	}
	if err := payload.Validate(); err != nil {
		return fmt.Errorf("queue item %s: %w", env.ID, err)
	}

	i.ID = env.ID
	i.Type = env.Type
	i.Payload = payload
	i.Timestamp = env.Timestamp
	i.RetryCount = env.RetryCount
	return nil
}

func decodePayload(itemType QueueItemType, raw json.RawMessage) (QueuePayload, error) {
	switch itemType {
	case QueueMessage:
		var p MessagePayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("decode message payload: %w", err)
		}
		return p, nil
	case QueueTicketUpdate:
		var p TicketUpdatePayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("decode ticket update payload: %w", err)
		}
		return p, nil
	case QueueMediaUpload:
		var p MediaUploadPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("decode media payload: %w", err)
		}
		return p, nil
	default:
		return nil, fmt.Errorf("unknown queue item type: %q", itemType)
	}
}

// DeadLetter is the terminal record of a queue item that was dropped, either
// after exhausting its retry budget or on a permanent gateway error.
type DeadLetter struct {
	Item     QueueItem `json:"item"`
	Reason   string    `json:"reason"`
	Attempts int       `json:"attempts"`
	FailedAt time.Time `json:"failed_at"`
}
