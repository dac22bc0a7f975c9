package service

import "sync"

// EventType defines the type of event
type EventType string

const (
	EventObjectSaved      EventType = "object_saved"
	EventObjectDeleted    EventType = "object_deleted"
	EventObjectRenamed    EventType = "object_renamed"
	EventObjectLocked     EventType = "object_locked"
	EventObjectUnlocked   EventType = "object_unlocked"
	EventDirectoryCreated EventType = "directory_created"
	EventDirectoryDeleted EventType = "directory_deleted"
	EventDirectoryRenamed EventType = "directory_renamed"
	EventUserSaved        EventType = "user_saved"
	EventImportFinished   EventType = "import_finished"
	EventExportFinished   EventType = "export_finished"
)

// Event represents an event that occurred in the repository
type Event struct {
	Type    EventType `json:"type"`
	Payload any       `json:"payload,omitempty"`
}

// ObjectPayload identifies the object an event is about
type ObjectPayload struct {
	Kind      string `json:"kind"`
	ID        int64  `json:"id,omitempty"`
	Name      string `json:"name"`
	Directory string `json:"directory,omitempty"`
}

// EventBus allows publishing and subscribing to events
type EventBus struct {
	mu          sync.RWMutex
	subscribers []chan<- Event
}

// NewEventBus creates a new event bus
func NewEventBus() *EventBus {
	return &EventBus{
		subscribers: make([]chan<- Event, 0),
	}
}

// Subscribe adds a subscriber to receive events
func (eb *EventBus) Subscribe(ch chan<- Event) {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	eb.subscribers = append(eb.subscribers, ch)
}

// Unsubscribe removes a subscriber. The channel is not closed.
func (eb *EventBus) Unsubscribe(ch chan<- Event) {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	for i, sub := range eb.subscribers {
		if sub == ch {
			eb.subscribers = append(eb.subscribers[:i], eb.subscribers[i+1:]...)
			return
		}
	}
}

// Publish sends an event to all subscribers
func (eb *EventBus) Publish(event Event) {
	if eb == nil {
		return
	}
	eb.mu.RLock()
	defer eb.mu.RUnlock()
	for _, ch := range eb.subscribers {
		select {
		case ch <- event:
		default:
			// Subscriber is slow, skip
		}
	}
}
