package graph

import "context"

// Node is a single unit of work in the pipeline graph.
//
// A node receives a private copy of the current state, performs its
// computation, and returns a partial state update (Delta) that the engine
// merges through the configured reducer. Nodes are stateless between
// invocations and must be safe to re-execute: retries and crash recovery
// both re-invoke a node with the same input.
//
// A node may also:
//   - return an error, which is handled by the node's retry policy and,
//     after exhaustion, recorded rather than aborting the run
//   - call Interrupt to suspend the run and wait for an external decision
//
// Type parameter S is the state type shared across the workflow.
type Node[S any] interface {
	// Run executes the node's logic against a snapshot of the state.
	Run(ctx context.Context, state S) NodeResult[S]
}

// NodeResult is the output of one node execution.
type NodeResult[S any] struct {
	// Delta is the partial state update produced by the node. It is merged
	// into the run state by the reducer, in launch order relative to any
	// sibling executions in the same superstep.
	Delta S

	// Err reports a node failure. An error returned from Interrupt must be
	// passed back here unchanged so the engine can suspend the run.
	Err error
}

// NodeFunc adapts a plain function to the Node interface.
//
//	scrape := graph.NodeFunc[State](func(ctx context.Context, s State) graph.NodeResult[State] {
//	    return graph.NodeResult[State]{Delta: State{CurrentStep: "scraped"}}
//	})
type NodeFunc[S any] func(ctx context.Context, state S) NodeResult[S]

// Run implements Node.
func (f NodeFunc[S]) Run(ctx context.Context, state S) NodeResult[S] {
	return f(ctx, state)
}

// Send is one target invocation produced by a dynamic fan-out edge.
// Each Send carries its own copy of the state; sibling sends execute
// concurrently and never observe each other's output within the superstep.
type Send[S any] struct {
	// Node is the name of the node to invoke.
	Node string

	// State is the input snapshot for this invocation.
	State S
}
