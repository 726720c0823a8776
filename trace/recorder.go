package trace

import "sync"

// Recorder receives events as the scheduler makes decisions. Implementations
// must be cheap; the scheduler calls Record synchronously.
type Recorder interface {
	Record(ev Event)
}

// Nop is a Recorder that drops every event.
type Nop struct{}

// Record implements Recorder.
func (Nop) Record(Event) {}

// Collector accumulates events into a RunTrace. It is safe for concurrent
// use so that handlers fanning out internally may share it.
type Collector struct {
	mu     sync.Mutex
	runID  string
	events []Event
}

// NewCollector creates a Collector for the given run ID.
func NewCollector(runID string) *Collector {
	return &Collector{runID: runID}
}

// Record implements Recorder.
func (c *Collector) Record(ev Event) {
	c.mu.Lock()
	c.events = append(c.events, ev)
	c.mu.Unlock()
}

// Trace returns a canonicalized copy of everything recorded so far.
func (c *Collector) Trace() *RunTrace {
	c.mu.Lock()
	events := make([]Event, len(c.events))
	copy(events, c.events)
	c.mu.Unlock()

	t := &RunTrace{RunID: c.runID, Events: events}
	t.Canonicalize()
	return t
}
