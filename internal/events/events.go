// Package events provides the notification bus between the batch orchestrator
// and whatever front end is attached (CLI output, progress bars, tests).
package events

import (
	"sync"
	"sync/atomic"
	"time"
)

// EventType defines the types of events that can be emitted
type EventType string

const (
	// Batch lifecycle events. Exactly one of EventBatchCompleted,
	// EventBatchTimedOut or EventBatchCancelled is published per batch.
	// EventBatchError fires when a submission fails before polling starts.
	EventBatchStarted   EventType = "batch_started"
	EventBatchProgress  EventType = "batch_progress"
	EventBatchCompleted EventType = "batch_completed"
	EventBatchTimedOut  EventType = "batch_timed_out"
	EventBatchCancelled EventType = "batch_cancelled"
	EventBatchError     EventType = "batch_error"

	// EventItemUpdated fires whenever a single photo's processing status
	// changes, independent of the aggregate cycle.
	EventItemUpdated EventType = "item_updated"

	// EventLibraryRefresh asks listing views to re-render from the backend.
	// Published once when a batch reaches a terminal state.
	EventLibraryRefresh EventType = "library_refresh"
)

const (
	defaultBufferSize = 256
	maxBufferSize     = 4096
)

// Event is the base interface for all events
type Event interface {
	Type() EventType
	Timestamp() time.Time
}

// BaseEvent provides common event fields
type BaseEvent struct {
	EventType EventType
	Time      time.Time
}

func (e BaseEvent) Type() EventType      { return e.EventType }
func (e BaseEvent) Timestamp() time.Time { return e.Time }

// Counts is the aggregate progress snapshot carried by batch events.
type Counts struct {
	Queued     int
	Processing int
	Completed  int
	Failed     int
	Total      int
}

// Terminal returns the number of items that reached a terminal status.
func (c Counts) Terminal() int { return c.Completed + c.Failed }

// BatchEvent represents batch lifecycle and progress notifications.
type BatchEvent struct {
	BaseEvent
	JobID   string
	Message string
	Counts  Counts
}

// ItemEvent represents a single photo's status change.
type ItemEvent struct {
	BaseEvent
	JobID  string
	ItemID string
	Status string
}

// RefreshEvent asks listing views to reload from the backend.
type RefreshEvent struct {
	BaseEvent
	JobID string
}

// EventBus manages event subscriptions and publishing
type EventBus struct {
	subscribers   map[EventType][]chan Event
	all           []chan Event // Subscribers to all events
	mu            sync.RWMutex
	bufferSize    int
	closed        bool
	droppedEvents atomic.Int64 // Count of dropped events due to full buffers
}

// NewEventBus creates a new event bus with specified buffer size
func NewEventBus(bufferSize int) *EventBus {
	if bufferSize <= 0 {
		bufferSize = defaultBufferSize
	}
	if bufferSize > maxBufferSize {
		bufferSize = maxBufferSize
	}
	return &EventBus{
		subscribers: make(map[EventType][]chan Event),
		all:         make([]chan Event, 0),
		bufferSize:  bufferSize,
	}
}

// Subscribe creates a subscription to a specific event type
func (eb *EventBus) Subscribe(eventType EventType) <-chan Event {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.closed {
		ch := make(chan Event)
		close(ch)
		return ch
	}

	ch := make(chan Event, eb.bufferSize)
	eb.subscribers[eventType] = append(eb.subscribers[eventType], ch)
	return ch
}

// SubscribeAll creates a subscription to all events
func (eb *EventBus) SubscribeAll() <-chan Event {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.closed {
		ch := make(chan Event)
		close(ch)
		return ch
	}

	ch := make(chan Event, eb.bufferSize)
	eb.all = append(eb.all, ch)
	return ch
}

// Publish sends an event to all subscribers. Publish never blocks: if a
// subscriber's buffer is full the event is dropped for that subscriber and
// counted.
func (eb *EventBus) Publish(event Event) {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	if eb.closed {
		return
	}

	for _, ch := range eb.subscribers[event.Type()] {
		select {
		case ch <- event:
		default:
			eb.droppedEvents.Add(1)
		}
	}

	for _, ch := range eb.all {
		select {
		case ch <- event:
		default:
			eb.droppedEvents.Add(1)
		}
	}
}

// DroppedEvents returns the number of events dropped due to full buffers.
func (eb *EventBus) DroppedEvents() int64 {
	return eb.droppedEvents.Load()
}

// Close shuts down the event bus and closes all channels
func (eb *EventBus) Close() {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.closed {
		return
	}

	eb.closed = true

	for _, channels := range eb.subscribers {
		for _, ch := range channels {
			close(ch)
		}
	}

	for _, ch := range eb.all {
		close(ch)
	}
}
