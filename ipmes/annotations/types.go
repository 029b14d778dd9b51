// Package annotations provides a clean, low-overhead instrumentation system
// for tracking pipeline stage timing and diagnostic information as pattern
// matching runs.
package annotations

import (
	"sync"
	"time"
)

// Event name constants following a hierarchical naming pattern.
const (
	// Pattern preparation
	PatternParsed       = "pattern/parsed"
	PatternDecomposed   = "pattern/decomposed"
	StateTableBuilt     = "pattern/state-table.built"
	ErrorPatternParsing = "error/pattern.parsing"

	// Ingest
	BatchRead     = "ingest/batch.read"
	RecordSkipped = "ingest/record.skipped"
	ErrorDecode   = "error/input.decode"

	// Composition layer
	BatchConsumed       = "composition/batch.consumed"
	InstanceExtended    = "composition/instance.extended"
	InstanceEvicted     = "composition/instance.evicted"
	SubPatternMatchEmit = "composition/sub-pattern-match.emitted"

	// Join layer
	JoinTreeBuilt    = "join/tree.built"
	BufferMerged     = "join/buffer.merged"
	WindowEvicted    = "join/window.evicted"
	PatternMatchEmit = "join/pattern-match.emitted"
)

// Event represents a single annotation event during a pipeline run.
type Event struct {
	Name    string                 // Event name, using the hierarchical constants above
	Start   time.Time              // Start timestamp
	End     time.Time              // End timestamp
	Latency time.Duration          // Duration (End - Start)
	Data    map[string]interface{} // Event-specific data
}

// Handler processes annotation events as they occur.
type Handler func(event Event)

// Collector accumulates events during a run, optionally forwarding them to a Handler.
type Collector struct {
	enabled bool
	handler Handler
	events  []Event
	mu      sync.Mutex
}

// NewCollector creates a new annotation collector. A nil handler disables collection.
func NewCollector(handler Handler) *Collector {
	return &Collector{
		enabled: handler != nil,
		handler: handler,
		events:  make([]Event, 0, 128),
	}
}

// Handler returns the underlying event handler.
func (c *Collector) Handler() Handler {
	return c.handler
}

// Add records a new event.
func (c *Collector) Add(event Event) {
	if !c.enabled {
		return
	}
	c.mu.Lock()
	c.events = append(c.events, event)
	c.mu.Unlock()

	if c.handler != nil {
		c.handler(event)
	}
}

// AddTiming records an event with a start time, computing the latency from now.
func (c *Collector) AddTiming(name string, start time.Time, data map[string]interface{}) {
	if !c.enabled {
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

// Events returns a copy of all collected events.
func (c *Collector) Events() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Event, len(c.events))
	copy(out, c.events)
	return out
}

// Reset clears the collector for reuse, keeping its handler.
func (c *Collector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = c.events[:0]
}
