package events

import (
	"encoding/json"
	"testing"
)

func TestBusPublishJSON(t *testing.T) {
	bus := NewBus()

	var received *Event
	var callCount int

	bus.Subscribe(EventSyncCompleted, func(event *Event) error {
		received = event
		callCount++
		return nil
	})

	payload := SyncPassPayload{Processed: 3, Succeeded: 2, DeadLettered: 1}
	if err := bus.PublishJSON(EventSyncCompleted, payload); err != nil {
		t.Fatalf("PublishJSON failed: %v", err)
	}

	if callCount != 1 {
		t.Errorf("expected 1 call, got %d", callCount)
	}
	if received.Type != EventSyncCompleted {
		t.Errorf("expected type %s, got %s", EventSyncCompleted, received.Type)
	}

	var decoded SyncPassPayload
	if err := json.Unmarshal(received.Payload, &decoded); err != nil {
		t.Fatalf("failed to decode payload: %v", err)
	}
	if decoded.Processed != 3 || decoded.DeadLettered != 1 {
		t.Errorf("unexpected payload: %+v", decoded)
	}
}

func TestBusMultipleSubscribers(t *testing.T) {
	bus := NewBus()
	var count1, count2 int

	bus.Subscribe(EventNetworkOnline, func(_ *Event) error { count1++; return nil })
	bus.Subscribe(EventNetworkOnline, func(_ *Event) error { count2++; return nil })
	bus.Subscribe(EventNetworkOffline, func(_ *Event) error { t.Error("wrong event type delivered"); return nil })

	bus.Publish(&Event{Type: EventNetworkOnline})

	if count1 != 1 || count2 != 1 {
		t.Errorf("expected both subscribers called once, got %d and %d", count1, count2)
	}
}

func TestNilBusPublishJSON(t *testing.T) {
	var bus *Bus
	if err := bus.PublishJSON(EventSyncStarted, nil); err != nil {
		t.Fatalf("nil bus should be a no-op, got %v", err)
	}
}
