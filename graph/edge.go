// Package graph provides the superstep-based graph execution engine that
// drives the news pipeline: dependency-ordered scheduling, reducer-based
// state merging, durable checkpoints, retries, and human-in-the-loop
// interrupts.
package graph

// End is the designated terminal marker. A static edge to End, or a router
// returning End, removes the node's branch from the next frontier; the run
// completes when the frontier is empty.
const End = "__end__"

// Router is a decision function for a conditional edge. It inspects the
// merged state and returns the name of exactly one successor (or End).
// Routers should be pure: same state, same answer.
type Router[S any] func(state S) string

// Expander is a dynamic fan-out function. It returns zero or more Send
// values, each of which becomes a concurrent invocation in the next
// superstep with its own state copy.
type Expander[S any] func(state S) []Send[S]

// Edge is an outgoing connection from one node, in one of three forms:
//
//   - static: To is set; the successor always fires
//   - conditional: Route is set; the successor is whichever of Targets the
//     router selects for the merged state
//   - fan-out: Expand is set; each returned Send becomes one invocation
//
// Exactly one of To, Route, Expand is set. Edges are evaluated in
// registration order when computing the next frontier.
type Edge[S any] struct {
	From string

	To string

	Route   Router[S]
	Targets []string

	Expand Expander[S]
}
