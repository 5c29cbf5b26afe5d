// Package annotations provides a clean, low-overhead annotation system
// for tracking update-manager batches, observer notifications, and
// query execution.
package annotations

import (
	"sync"
	"time"
)

// Event name constants following hierarchical naming pattern
const (
	// Update manager lifecycle
	UpdateRegistered = "update/registered"
	UpdateCoalesced  = "update/coalesced"
	BatchBegin       = "batch/begin"
	BatchApplied     = "batch/applied"
	BatchComplete    = "batch/completed"
	BatchLooped      = "batch/looped"

	// Observer protocol
	ObserverWillChange = "observer/will-change"
	ObserverDidChange  = "observer/did-change"
	ObserverDelta      = "observer/delta"
	ObserverContents   = "observer/contents"
	ObserverSkipped    = "observer/skipped"

	// Query execution
	QueryExecuted = "query/executed"
	QueryStreamed = "query/streamed"

	// Derivatives
	DerivativeBuilt   = "derivative/built"
	DerivativeCleared = "derivative/cleared"

	// Transactions
	TransactionBegin = "transaction/begin"
	TransactionEnd   = "transaction/end"
	SnapshotRestored = "snapshot/restored"

	// Errors
	ErrorMutation = "error/mutation"
	ErrorQuery    = "error/query"
	ErrorStorage  = "error/storage"
)

// Event represents a single annotation event.
type Event struct {
	Name    string                 // Event name using hierarchical constants above
	Start   time.Time              // Start timestamp
	End     time.Time              // End timestamp
	Latency time.Duration          // Duration (End - Start)
	Data    map[string]interface{} // Additional event-specific data
}

// Handler processes annotation events as they occur.
type Handler func(event Event)

// Collector accumulates events during engine activity.
type Collector struct {
	enabled bool
	handler Handler
	mu      sync.Mutex
	events  []Event
}

// NewCollector creates a new annotation collector. A nil handler
// disables collection entirely.
func NewCollector(handler Handler) *Collector {
	return &Collector{
		enabled: handler != nil,
		handler: handler,
		events:  make([]Event, 0, 128),
	}
}

// Enabled reports whether events are being recorded.
func (c *Collector) Enabled() bool {
	return c != nil && c.enabled
}

// Handler returns the underlying event handler.
func (c *Collector) Handler() Handler {
	return c.handler
}

// Add records a new event. Thread-safe for concurrent access.
func (c *Collector) Add(event Event) {
	if !c.Enabled() {
		return
	}

	c.mu.Lock()
	c.events = append(c.events, event)
	c.mu.Unlock()

	// Call handler outside the lock to avoid deadlocks
	if c.handler != nil {
		c.handler(event)
	}
}

// AddTiming records an event with timing information.
func (c *Collector) AddTiming(name string, start time.Time, data map[string]interface{}) {
	if !c.Enabled() {
		return
	}

	end := time.Now()
	c.Add(Event{
		Name:    name,
		Start:   start,
		End:     end,
		Latency: end.Sub(start),
		Data:    data,
	})
}

// Note records an event at the current instant.
func (c *Collector) Note(name string, data map[string]interface{}) {
	if !c.Enabled() {
		return
	}
	now := time.Now()
	c.Add(Event{Name: name, Start: now, End: now, Data: data})
}

// Events returns a copy of all collected events.
func (c *Collector) Events() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	eventsCopy := make([]Event, len(c.events))
	copy(eventsCopy, c.events)
	return eventsCopy
}

// Reset clears the collector for reuse.
func (c *Collector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = c.events[:0]
}
