package graph

import (
	"context"
	"errors"
	"fmt"
)

// Interrupt suspends the run from inside a node and hands payload to the
// caller. On the first execution it returns a non-nil error that the node
// must return unchanged in NodeResult.Err; the engine then persists a
// checkpoint recording the payload and the awaiting node, and Run returns
// an *InterruptError to the caller.
//
// When the run is resumed, the awaiting node is re-executed from the top
// and the same Interrupt call returns the caller's decision value instead.
// Because resumption may cross a process restart, the node must reconstruct
// everything it needs from the state snapshot and the decision alone; no
// local variable from before the suspension survives.
//
// The payload must be JSON-serializable. After a reload from a durable
// store the decision arrives as decoded JSON (map[string]any etc.).
func Interrupt(ctx context.Context, payload any) (any, error) {
	if env, ok := ctx.Value(resumeCtxKey{}).(*resumeEnvelope); ok && env != nil && !env.consumed {
		env.consumed = true
		return env.decision, nil
	}
	return nil, &interruptSignal{payload: payload}
}

// InterruptError is returned by Run, Resume, and Continue when the run has
// suspended. It carries the payload the node handed to Interrupt and the
// name of the node awaiting resumption. The run stays suspended, with its
// checkpoint durably persisted, until Resume is called with a decision.
type InterruptError struct {
	RunID   string
	NodeID  string
	Payload any
}

func (e *InterruptError) Error() string {
	return fmt.Sprintf("run %s suspended at node %s awaiting decision", e.RunID, e.NodeID)
}

// AsInterrupt extracts the interrupt from an error returned by Run, Resume,
// or Continue. It reports false for ordinary errors.
func AsInterrupt(err error) (*InterruptError, bool) {
	var ie *InterruptError
	if errors.As(err, &ie) {
		return ie, true
	}
	return nil, false
}

// interruptSignal is the control-flow error Interrupt produces inside a
// node. It unwinds through NodeResult.Err to the executor, which turns it
// into a suspension instead of a node failure. Never retried.
type interruptSignal struct {
	payload any
}

func (s *interruptSignal) Error() string {
	return "node requested suspension"
}

// resumeEnvelope delivers the external decision to the awaiting node on
// re-execution. consumed guards against the decision being replayed if the
// node suspends again at a later point.
type resumeEnvelope struct {
	decision any
	consumed bool
}

type resumeCtxKey struct{}

func withResumeDecision(ctx context.Context, decision any) context.Context {
	return context.WithValue(ctx, resumeCtxKey{}, &resumeEnvelope{decision: decision})
}
