// Package events provides the in-process event bus used to decouple the
// ingestion pipeline from the job queues that react to it.
package events

import (
	"sync"
	"time"
)

// EventType identifies a kind of event
type EventType string

const (
	// TransactionIngested fires after a raw transaction has been resolved,
	// linked, posted and classified.
	TransactionIngested EventType = "TransactionIngested"

	// BatchIngested fires after an ingestion batch completes, successful
	// or not.
	BatchIngested EventType = "BatchIngested"

	// ReconciliationDrift fires when a reconciliation run ends in drift.
	ReconciliationDrift EventType = "ReconciliationDrift"

	// ClassificationOverridden fires when a user locks a classification.
	ClassificationOverridden EventType = "ClassificationOverridden"
)

// Event is a published occurrence with optional payload data
type Event struct {
	Timestamp time.Time
	Data      map[string]any
	Type      EventType
}

// Handler processes a published event
type Handler func(event *Event)

// Bus is a synchronous in-process publish/subscribe bus. Handlers run on
// the publisher's goroutine, so they must be quick; anything slow should
// enqueue a job instead of doing the work inline.
type Bus struct {
	handlers map[EventType][]Handler
	mu       sync.RWMutex
}

// NewBus creates a new event bus
func NewBus() *Bus {
	return &Bus{
		handlers: make(map[EventType][]Handler),
	}
}

// Subscribe registers a handler for an event type
func (b *Bus) Subscribe(eventType EventType, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.handlers[eventType] = append(b.handlers[eventType], handler)
}

// Publish delivers an event to all handlers subscribed to its type
func (b *Bus) Publish(eventType EventType, data map[string]any) {
	event := &Event{
		Type:      eventType,
		Timestamp: time.Now(),
		Data:      data,
	}

	b.mu.RLock()
	handlers := make([]Handler, len(b.handlers[eventType]))
	copy(handlers, b.handlers[eventType])
	b.mu.RUnlock()

	for _, handler := range handlers {
		handler(event)
	}
}

// SubscriberCount returns the number of handlers for an event type
func (b *Bus) SubscriberCount(eventType EventType) int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return len(b.handlers[eventType])
}
