// Package store provides durable checkpoint persistence for graph runs.
//
// A checkpoint is written at the end of every superstep and before every
// suspension; it is the sole durability boundary. Work between two
// checkpoints is not guaranteed to survive a crash and is re-executed on
// Continue, which is why nodes must be idempotent.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when no checkpoint exists for a run identifier.
var ErrNotFound = errors.New("not found")

// RunStatus is the lifecycle phase recorded in a checkpoint.
type RunStatus string

const (
	// StatusRunning: more frontier tasks remain.
	StatusRunning RunStatus = "running"

	// StatusAwaiting: suspended on an interrupt, waiting for a decision.
	StatusAwaiting RunStatus = "awaiting"

	// StatusCompleted: the frontier drained; State is the terminal state.
	StatusCompleted RunStatus = "completed"

	// StatusFailed: abandoned after a structural failure. The engine never
	// writes this itself; callers that track abandoned runs may.
	StatusFailed RunStatus = "failed"
)

// Task is one scheduled node invocation in the frontier. Each task carries
// its own input snapshot: for ordinary successors that is the merged state,
// for fan-out branches the state the Send supplied. Slice order is launch
// order, which fixes the merge order of append-discipline fields.
type Task[S any] struct {
	NodeID string `json:"node_id"`
	State  S      `json:"state"`
}

// PendingInterrupt records an outstanding suspension: the node awaiting
// resumption and the payload handed to the caller. At most one interrupt is
// outstanding per run.
//
// Completed lists the sibling nodes of the interrupted superstep whose
// deltas are already merged into State. Their successors are not scheduled
// until the awaiting node's own delta has merged; the engine re-evaluates
// edges for the whole split superstep after Resume, keeping the join
// barrier intact.
type PendingInterrupt struct {
	NodeID    string   `json:"node_id"`
	Payload   any      `json:"payload"`
	Completed []string `json:"completed,omitempty"`
}

// Checkpoint is an immutable snapshot of a run taken at a superstep
// boundary. Resume and Continue always read the latest checkpoint for the
// run; earlier checkpoints are retained as history.
type Checkpoint[S any] struct {
	RunID     string            `json:"run_id"`
	StepID    int               `json:"step_id"`
	State     S                 `json:"state"`
	Frontier  []Task[S]         `json:"frontier"`
	Interrupt *PendingInterrupt `json:"interrupt,omitempty"`
	Status    RunStatus         `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
}

// Store persists checkpoints keyed by run identifier.
//
// Implementations must guarantee that LoadLatest after Save returns the
// most recent write for the run, across process restarts for durable
// backends, and must be safe for concurrent use. Runs themselves are
// single-writer; the engine serializes advancement per run identifier.
//
// Saving the same (run, step) twice may happen when a superstep is
// re-executed after a crash between execution and commit; implementations
// overwrite in that case, which is safe because re-execution of an
// uncommitted superstep replays the same inputs.
type Store[S any] interface {
	// Save durably writes one checkpoint.
	Save(ctx context.Context, cp Checkpoint[S]) error

	// LoadLatest returns the checkpoint with the highest superstep counter
	// for the run, or ErrNotFound.
	LoadLatest(ctx context.Context, runID string) (Checkpoint[S], error)
}
