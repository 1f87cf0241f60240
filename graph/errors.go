package graph

import "errors"

// ErrMaxStepsExceeded indicates the run hit the optional MaxSteps guard
// without reaching an empty frontier. The engine itself does not bound
// revision loops; this guard exists for callers that want a ceiling.
var ErrMaxStepsExceeded = errors.New("execution exceeded maximum steps limit")

// ErrMaxAttemptsExceeded wraps the final error of a node whose retry policy
// has been exhausted. The failure is recorded, not propagated: the run
// continues to the node's normal successors.
var ErrMaxAttemptsExceeded = errors.New("max retry attempts exceeded")

// ErrRunActive is returned when Run, Resume, or Continue is called for a
// run identifier that another call is currently advancing. Runs are
// single-writer; concurrent advancement would let checkpoints diverge.
var ErrRunActive = errors.New("run is already being advanced")

// ErrNoPendingInterrupt is returned by Resume when the run's latest
// checkpoint records no outstanding interrupt. The run state is unchanged.
var ErrNoPendingInterrupt = errors.New("no pending interrupt for run")

// EngineError is a structural failure of the engine or graph definition:
// unknown node names, malformed configuration, interrupt-protocol misuse,
// or a checkpoint store that could not persist. Unlike node failures,
// structural errors propagate to the caller and abort the run.
type EngineError struct {
	Message string
	Code    string
	Err     error
}

func (e *EngineError) Error() string {
	if e.Code != "" {
		return e.Code + ": " + e.Message
	}
	return e.Message
}

func (e *EngineError) Unwrap() error { return e.Err }
