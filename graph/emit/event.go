package emit

// Event is one observability event from a run.
//
// The engine emits a small fixed vocabulary of messages:
//   - "run_started", "run_continued", "run_resumed"
//   - "node_start", "node_complete", "node_retry", "node_failed"
//   - "checkpoint_saved"
//   - "run_suspended", "run_completed"
type Event struct {
	// RunID identifies the run that emitted this event.
	RunID string `json:"run_id"`

	// Step is the superstep number (1-indexed). Zero for run-level
	// events emitted before the first superstep.
	Step int `json:"step"`

	// NodeID identifies the node, empty for run-level events.
	NodeID string `json:"node_id"`

	// Msg names the event.
	Msg string `json:"msg"`

	// Meta carries event-specific structured data. Common keys:
	//   - "error": failure details
	//   - "attempt": retry attempt number
	//   - "status": checkpoint status
	Meta map[string]any `json:"meta,omitempty"`
}
