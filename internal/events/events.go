package events

import (
	"encoding/json"
	"sync"
	"time"
)

const (
	EventNetworkOnline    = "network_online"
	EventNetworkOffline   = "network_offline"
	EventSyncStarted      = "sync_started"
	EventSyncCompleted    = "sync_completed"
	EventItemDispatched   = "item_dispatched"
	EventItemDeadLettered = "item_dead_lettered"
)

// SyncPassPayload summarizes one completed orchestrator pass.
type SyncPassPayload struct {
	Processed    int       `json:"processed"`
	Succeeded    int       `json:"succeeded"`
	DeadLettered int       `json:"dead_lettered"`
	Remaining    int       `json:"remaining"`
	CompletedAt  time.Time `json:"completed_at"`
}

// DispatchPayload describes the outcome of a single queue item dispatch.
type DispatchPayload struct {
	ItemID  string `json:"item_id"`
	Type    string `json:"type"`
	Attempt int    `json:"attempt"`
	Result  string `json:"result"`
}

// Event represents a lightweight domain event.
type Event struct {
	Type      string
	Payload   []byte
	CreatedAt time.Time
}

// Handler reacts to an event.
type Handler func(event *Event) error

// Bus provides in-process pub/sub for sync lifecycle events.
type Bus struct {
	subscribers map[string][]Handler
	mu          sync.RWMutex
}

func NewBus() *Bus {
	return &Bus{subscribers: make(map[string][]Handler)}
}

// Subscribe registers a handler for a given event type.
func (b *Bus) Subscribe(eventType string, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], handler)
}

// Publish notifies subscribers of the event type.
func (b *Bus) Publish(event *Event) {
	b.mu.RLock()
	handlers := append([]Handler(nil), b.subscribers[event.Type]...)
	b.mu.RUnlock()

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	for _, handler := range handlers {
		// Handlers run synchronously; caller decides concurrency model.
		_ = handler(event)
	}
}

// PublishJSON serializes the payload and publishes an event.
func (b *Bus) PublishJSON(eventType string, payload interface{}) error {
	if b == nil {
		return nil
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	b.Publish(&Event{Type: eventType, Payload: raw, CreatedAt: time.Now()})
	return nil
}
