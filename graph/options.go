package graph

// Option configures an Engine at construction time. Options keep the
// constructor signature stable as configuration grows:
//
//	engine := graph.New(reducer, st, emitter,
//	    graph.WithMaxSteps[State](200),
//	    graph.WithMetrics[State](metrics),
//	)
type Option[S any] func(*Engine[S])

// WithMaxSteps caps the number of supersteps a run may execute. The default
// of 0 means unbounded: the engine deliberately does not limit revision
// loops, so callers that want a ceiling set one here. Exceeding the cap
// aborts the run with ErrMaxStepsExceeded.
func WithMaxSteps[S any](n int) Option[S] {
	return func(e *Engine[S]) {
		e.maxSteps = n
	}
}

// WithMetrics attaches a Prometheus metrics collector to the engine.
func WithMetrics[S any](m *Metrics) Option[S] {
	return func(e *Engine[S]) {
		e.metrics = m
	}
}

// WithErrorDelta supplies the partial update merged into the state when a
// node fails after its retries are exhausted. This is how a graph folds
// failures into an append-discipline error field instead of aborting:
//
//	graph.WithErrorDelta(func(nodeID string, err error) State {
//	    return State{ErrorLog: []string{nodeID + ": " + err.Error()}}
//	})
//
// Without the hook, failures are still swallowed (reported through the
// emitter and metrics only) and execution continues to the node's normal
// successors.
func WithErrorDelta[S any](f func(nodeID string, err error) S) Option[S] {
	return func(e *Engine[S]) {
		e.errorDelta = f
	}
}

// NodeOption configures a single node at registration time.
type NodeOption func(*nodeSpec)

// WithRetry attaches a retry policy to the node. Nodes without a policy
// execute exactly once per superstep.
func WithRetry(p RetryPolicy) NodeOption {
	return func(s *nodeSpec) {
		s.retry = &p
	}
}

// WithDecisionValidator attaches a validator for resume decisions to an
// interrupting node. Resume runs it before re-entering the graph; a
// rejection surfaces to the caller as an INVALID_DECISION error and leaves
// the interrupt outstanding, so the run can be resumed again with a
// well-formed decision.
func WithDecisionValidator(f func(decision any) error) NodeOption {
	return func(s *nodeSpec) {
		s.decisionValidator = f
	}
}

type nodeSpec struct {
	retry             *RetryPolicy
	decisionValidator func(decision any) error
}
