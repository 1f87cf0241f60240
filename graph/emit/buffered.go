package emit

import "sync"

// BufferedEmitter stores events in memory, organized by run ID.
//
// Intended for tests and post-run inspection; everything stays in memory,
// so long-running production deployments should prefer SlogEmitter or
// OTelEmitter.
//
// Example:
//
//	emitter := emit.NewBufferedEmitter()
//	engine := graph.New(reducer, st, emitter)
//	engine.Run(ctx, "run-001", initial)
//	retries := emitter.HistoryWithFilter("run-001", emit.HistoryFilter{Msg: "node_retry"})
type BufferedEmitter struct {
	mu     sync.RWMutex
	events map[string][]Event
}

// HistoryFilter selects events; set fields combine with AND.
type HistoryFilter struct {
	NodeID  string // filter by node ID (empty = any)
	Msg     string // filter by message (empty = any)
	MinStep *int   // minimum step (nil = no lower bound)
	MaxStep *int   // maximum step (nil = no upper bound)
}

// NewBufferedEmitter creates a BufferedEmitter. Safe for concurrent use.
func NewBufferedEmitter() *BufferedEmitter {
	return &BufferedEmitter{events: make(map[string][]Event)}
}

// Emit stores the event.
func (b *BufferedEmitter) Emit(event Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events[event.RunID] = append(b.events[event.RunID], event)
}

// History returns all events for a run in emission order. The returned
// slice is a copy.
func (b *BufferedEmitter) History(runID string) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	events := b.events[runID]
	result := make([]Event, len(events))
	copy(result, events)
	return result
}

// HistoryWithFilter returns the run's events matching the filter, in
// emission order.
func (b *BufferedEmitter) HistoryWithFilter(runID string, filter HistoryFilter) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	result := []Event{}
	for _, event := range b.events[runID] {
		if matchesFilter(event, filter) {
			result = append(result, event)
		}
	}
	return result
}

// Clear removes a run's events; an empty runID clears everything.
func (b *BufferedEmitter) Clear(runID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if runID == "" {
		b.events = make(map[string][]Event)
		return
	}
	delete(b.events, runID)
}

func matchesFilter(event Event, filter HistoryFilter) bool {
	if filter.NodeID != "" && event.NodeID != filter.NodeID {
		return false
	}
	if filter.Msg != "" && event.Msg != filter.Msg {
		return false
	}
	if filter.MinStep != nil && event.Step < *filter.MinStep {
		return false
	}
	if filter.MaxStep != nil && event.Step > *filter.MaxStep {
		return false
	}
	return true
}
