package graph

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/Viraj97-SL/AI-News-Analyzer/graph/emit"
	"github.com/Viraj97-SL/AI-News-Analyzer/graph/store"
)

// Engine executes a workflow graph in supersteps.
//
// One superstep runs every node in the current frontier concurrently, each
// against its own copy of the state, waits for all of them (the join
// barrier), merges their partial updates through the reducer in launch
// order, durably checkpoints the result, and evaluates outgoing edges to
// build the next frontier. The run terminates when the frontier drains.
//
// Failures of individual nodes do not abort the run: after the retry policy
// is exhausted the error is folded into the state via the WithErrorDelta
// hook and execution continues to the node's normal successors. Only
// structural problems (unknown nodes, malformed graphs, interrupt-protocol
// misuse, a checkpoint store that cannot persist) surface as errors.
//
// A node may suspend the run by calling Interrupt; the engine persists a
// checkpoint recording the payload and returns an *InterruptError. Resume
// later re-enters the awaiting node with the external decision, even across
// a process restart.
//
// Type parameter S is the state type threaded through the workflow.
//
// Example:
//
//	engine := graph.New(pipeline.Reduce, store.NewMemStore[pipeline.State](), emit.NewNullEmitter())
//	engine.Add("summarize", summarizeNode)
//	engine.StartAt("summarize")
//	engine.Connect("summarize", graph.End)
//	final, err := engine.Run(ctx, "run-001", initial)
type Engine[S any] struct {
	mu sync.RWMutex

	reducer    Reducer[S]
	nodes      map[string]registeredNode[S]
	edges      []Edge[S]
	startNodes []string

	store   store.Store[S]
	emitter emit.Emitter

	maxSteps   int
	metrics    *Metrics
	errorDelta func(nodeID string, err error) S

	// active enforces single-writer advancement per run identifier.
	activeMu sync.Mutex
	active   map[string]struct{}
}

type registeredNode[S any] struct {
	node Node[S]
	spec nodeSpec
}

// New creates an Engine. The reducer and store are required before Run; the
// emitter may be nil to disable events.
func New[S any](reducer Reducer[S], st store.Store[S], emitter emit.Emitter, opts ...Option[S]) *Engine[S] {
	e := &Engine[S]{
		reducer: reducer,
		nodes:   make(map[string]registeredNode[S]),
		store:   st,
		emitter: emitter,
		active:  make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Add registers a node under a unique name, optionally with a retry policy:
//
//	engine.Add("scrape_rss", rssNode, graph.WithRetry(graph.RetryPolicy{
//	    MaxAttempts:     3,
//	    InitialInterval: 2 * time.Second,
//	    BackoffFactor:   2,
//	    Jitter:          true,
//	}))
func (e *Engine[S]) Add(nodeID string, node Node[S], opts ...NodeOption) error {
	if nodeID == "" {
		return &EngineError{Message: "node ID cannot be empty"}
	}
	if nodeID == End {
		return &EngineError{Message: "node ID conflicts with the end marker", Code: "RESERVED_NODE_ID"}
	}
	if node == nil {
		return &EngineError{Message: "node cannot be nil"}
	}

	var spec nodeSpec
	for _, opt := range opts {
		opt(&spec)
	}
	if spec.retry != nil {
		if err := spec.retry.Validate(); err != nil {
			return err
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, exists := e.nodes[nodeID]; exists {
		return &EngineError{Message: "duplicate node ID: " + nodeID, Code: "DUPLICATE_NODE"}
	}
	e.nodes[nodeID] = registeredNode[S]{node: node, spec: spec}
	return nil
}

// StartAt sets the entry frontier. Passing several nodes starts them
// concurrently in the first superstep (fan-out from the start).
func (e *Engine[S]) StartAt(nodeIDs ...string) error {
	if len(nodeIDs) == 0 {
		return &EngineError{Message: "at least one start node is required"}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	for _, id := range nodeIDs {
		if _, exists := e.nodes[id]; !exists {
			return &EngineError{Message: "start node does not exist: " + id, Code: "NODE_NOT_FOUND"}
		}
	}
	e.startNodes = slices.Clone(nodeIDs)
	return nil
}

// Connect adds a static edge. The successor always fires after from
// executes; use graph.End to terminate the branch.
func (e *Engine[S]) Connect(from, to string) error {
	if from == "" || to == "" {
		return &EngineError{Message: "edge endpoints cannot be empty"}
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.edges = append(e.edges, Edge[S]{From: from, To: to})
	return nil
}

// Branch adds a conditional edge: after from executes, route picks exactly
// one of targets (or graph.End) based on the merged state. A router answer
// outside the declared target set is a structural error at runtime.
func (e *Engine[S]) Branch(from string, route Router[S], targets ...string) error {
	if from == "" {
		return &EngineError{Message: "edge endpoints cannot be empty"}
	}
	if route == nil {
		return &EngineError{Message: "branch router cannot be nil"}
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.edges = append(e.edges, Edge[S]{From: from, Route: route, Targets: slices.Clone(targets)})
	return nil
}

// FanOut adds a dynamic fan-out edge: after from executes, expand produces
// zero or more Sends, each launched concurrently in the next superstep with
// the state snapshot the Send carries.
func (e *Engine[S]) FanOut(from string, expand Expander[S]) error {
	if from == "" {
		return &EngineError{Message: "edge endpoints cannot be empty"}
	}
	if expand == nil {
		return &EngineError{Message: "fan-out expander cannot be nil"}
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.edges = append(e.edges, Edge[S]{From: from, Expand: expand})
	return nil
}

// Run starts a new run from the entry frontier and drives it until the
// frontier is empty, a node suspends, or a structural error occurs.
//
// On suspension the returned error is an *InterruptError carrying the
// node's payload (extract with AsInterrupt); the run stays parked in the
// checkpoint store until Resume. A run identifier that already has
// checkpoints is rejected: use Continue or Resume for those.
func (e *Engine[S]) Run(ctx context.Context, runID string, initial S) (S, error) {
	var zero S
	if err := e.validate(runID); err != nil {
		return zero, err
	}
	if err := e.acquire(runID); err != nil {
		return zero, err
	}
	defer e.release(runID)

	_, err := e.store.LoadLatest(ctx, runID)
	switch {
	case err == nil:
		return zero, &EngineError{
			Message: "run already exists: " + runID + " (use Continue or Resume)",
			Code:    "RUN_EXISTS",
		}
	case !errors.Is(err, store.ErrNotFound):
		return zero, &EngineError{Message: "load checkpoint: " + err.Error(), Code: "STORE_ERROR", Err: err}
	}

	frontier := make([]store.Task[S], 0, len(e.startNodes))
	for _, id := range e.startNodes {
		frontier = append(frontier, store.Task[S]{NodeID: id, State: initial})
	}

	e.emitEvent(runID, 0, "", "run_started", nil)
	return e.loop(ctx, runID, initial, frontier, 0, nil)
}

// Resume delivers an external decision to a suspended run and continues it.
// The awaiting node re-executes from its start; its Interrupt call returns
// decision. Calling Resume for a run with no outstanding interrupt is an
// interrupt-protocol error and leaves the run untouched.
func (e *Engine[S]) Resume(ctx context.Context, runID string, decision any) (S, error) {
	var zero S
	if err := e.validate(runID); err != nil {
		return zero, err
	}
	if decision == nil {
		return zero, &EngineError{Message: "resume decision is required", Code: "INVALID_DECISION"}
	}
	if err := e.acquire(runID); err != nil {
		return zero, err
	}
	defer e.release(runID)

	cp, err := e.loadLatest(ctx, runID)
	if err != nil {
		return zero, err
	}
	if cp.Interrupt == nil {
		return zero, &EngineError{
			Message: "resume called for run " + runID + " with no outstanding interrupt",
			Code:    "NO_PENDING_INTERRUPT",
			Err:     ErrNoPendingInterrupt,
		}
	}

	// Reject a malformed decision before any superstep runs: the interrupt
	// stays outstanding and the checkpoint is untouched.
	e.mu.RLock()
	reg, ok := e.nodes[cp.Interrupt.NodeID]
	e.mu.RUnlock()
	if ok && reg.spec.decisionValidator != nil {
		if err := reg.spec.decisionValidator(decision); err != nil {
			return zero, &EngineError{
				Message: "invalid resume decision for node " + cp.Interrupt.NodeID + ": " + err.Error(),
				Code:    "INVALID_DECISION",
				Err:     err,
			}
		}
	}

	e.emitEvent(runID, cp.StepID, cp.Interrupt.NodeID, "run_resumed", nil)
	resume := &pendingResume{
		nodeID:    cp.Interrupt.NodeID,
		decision:  decision,
		completed: cp.Interrupt.Completed,
	}
	return e.loop(ctx, runID, cp.State, cp.Frontier, cp.StepID, resume)
}

// Continue picks a run back up from its latest checkpoint after a crash or
// deliberate shutdown. A completed run returns its terminal state; a
// suspended run returns its *InterruptError again (the decision is still
// owed through Resume).
func (e *Engine[S]) Continue(ctx context.Context, runID string) (S, error) {
	var zero S
	if err := e.validate(runID); err != nil {
		return zero, err
	}
	if err := e.acquire(runID); err != nil {
		return zero, err
	}
	defer e.release(runID)

	cp, err := e.loadLatest(ctx, runID)
	if err != nil {
		return zero, err
	}
	if cp.Interrupt != nil {
		return zero, &InterruptError{RunID: runID, NodeID: cp.Interrupt.NodeID, Payload: cp.Interrupt.Payload}
	}
	if cp.Status == store.StatusCompleted || len(cp.Frontier) == 0 {
		return cp.State, nil
	}

	e.emitEvent(runID, cp.StepID, "", "run_continued", nil)
	return e.loop(ctx, runID, cp.State, cp.Frontier, cp.StepID, nil)
}

// pendingResume carries the external decision into the first superstep
// after Resume, addressed to the awaiting node. completed is the set of
// sibling nodes whose deltas merged before the suspension; their edges are
// evaluated together with the resumed node's once its delta lands.
type pendingResume struct {
	nodeID    string
	decision  any
	completed []string
}

// taskResult is the outcome of one frontier task after retry wrapping.
type taskResult[S any] struct {
	delta     S
	err       error            // node failure after exhausted retries; recorded, not fatal
	interrupt *interruptSignal // suspension request
	abort     error            // structural failure or cancellation; fatal to the run
}

func (e *Engine[S]) loop(ctx context.Context, runID string, state S, frontier []store.Task[S], step int, resume *pendingResume) (S, error) {
	var zero S

	for len(frontier) > 0 {
		step++
		if e.maxSteps > 0 && step > e.maxSteps {
			return zero, &EngineError{
				Message: "run exceeded the configured superstep limit",
				Code:    "MAX_STEPS_EXCEEDED",
				Err:     ErrMaxStepsExceeded,
			}
		}
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		results := e.executeSuperstep(ctx, runID, step, frontier, resume)
		var priorCompleted []string
		if resume != nil {
			priorCompleted = resume.completed
		}
		resume = nil

		for _, r := range results {
			if r.abort != nil {
				return zero, r.abort
			}
		}

		// Join barrier passed: fold deltas in launch order. Interrupted
		// tasks contribute nothing and stay scheduled; failed tasks
		// contribute the error delta and still route to their successors.
		// Siblings that completed before a suspension in this same logical
		// superstep merged back then; they rejoin the edge evaluation here.
		merged := state
		var suspended []store.Task[S]
		var firstInterrupt *interruptSignal
		var interruptNode string
		executed := make([]string, 0, len(frontier)+len(priorCompleted))
		seen := make(map[string]bool, len(frontier)+len(priorCompleted))

		for _, id := range priorCompleted {
			if !seen[id] {
				seen[id] = true
				executed = append(executed, id)
			}
		}

		for i, r := range results {
			task := frontier[i]
			if r.interrupt != nil {
				suspended = append(suspended, task)
				if firstInterrupt == nil {
					firstInterrupt = r.interrupt
					interruptNode = task.NodeID
				}
				continue
			}
			if r.err != nil {
				if e.errorDelta != nil {
					merged = e.reducer(merged, e.errorDelta(task.NodeID, r.err))
				}
			} else {
				merged = e.reducer(merged, r.delta)
			}
			if !seen[task.NodeID] {
				seen[task.NodeID] = true
				executed = append(executed, task.NodeID)
			}
		}

		if firstInterrupt != nil {
			// Suspend: completed sibling deltas are committed, but their
			// successors are not scheduled yet. The join barrier holds
			// until the awaiting node's delta merges after Resume, at which
			// point edges are evaluated for the whole split superstep; the
			// Completed list carries the sibling node IDs across the
			// suspension (and across a process restart).
			cp := store.Checkpoint[S]{
				RunID:    runID,
				StepID:   step,
				State:    merged,
				Frontier: suspended,
				Interrupt: &store.PendingInterrupt{
					NodeID:    interruptNode,
					Payload:   firstInterrupt.payload,
					Completed: executed,
				},
				Status:    store.StatusAwaiting,
				Timestamp: time.Now().UTC(),
			}
			if err := e.saveCheckpoint(ctx, cp); err != nil {
				return zero, err
			}
			e.metrics.observeInterrupt()
			e.emitEvent(runID, step, interruptNode, "run_suspended", nil)
			return zero, &InterruptError{RunID: runID, NodeID: interruptNode, Payload: firstInterrupt.payload}
		}

		next, err := e.nextFrontier(executed, merged)
		if err != nil {
			return zero, err
		}

		status := store.StatusRunning
		if len(next) == 0 {
			status = store.StatusCompleted
		}
		cp := store.Checkpoint[S]{
			RunID:     runID,
			StepID:    step,
			State:     merged,
			Frontier:  next,
			Status:    status,
			Timestamp: time.Now().UTC(),
		}
		if err := e.saveCheckpoint(ctx, cp); err != nil {
			return zero, err
		}
		e.metrics.observeSuperstep()

		state, frontier = merged, next
	}

	e.emitEvent(runID, step, "", "run_completed", nil)
	return state, nil
}

// executeSuperstep launches every frontier task concurrently and waits for
// all of them. Result order equals launch order.
func (e *Engine[S]) executeSuperstep(ctx context.Context, runID string, step int, frontier []store.Task[S], resume *pendingResume) []taskResult[S] {
	resumeIdx := -1
	if resume != nil {
		for i, t := range frontier {
			if t.NodeID == resume.nodeID {
				resumeIdx = i
				break
			}
		}
	}

	results := make([]taskResult[S], len(frontier))
	var wg sync.WaitGroup
	for i := range frontier {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			taskCtx := ctx
			if i == resumeIdx {
				taskCtx = withResumeDecision(ctx, resume.decision)
			}
			results[i] = e.executeTask(taskCtx, runID, step, frontier[i])
		}(i)
	}
	wg.Wait()
	return results
}

// executeTask runs one node with retry wrapping. The attempt counter is
// local to this superstep invocation.
func (e *Engine[S]) executeTask(ctx context.Context, runID string, step int, task store.Task[S]) taskResult[S] {
	e.mu.RLock()
	reg, ok := e.nodes[task.NodeID]
	e.mu.RUnlock()
	if !ok {
		return taskResult[S]{abort: &EngineError{
			Message: "node not found during execution: " + task.NodeID,
			Code:    "NODE_NOT_FOUND",
		}}
	}

	attempts := 1
	if reg.spec.retry != nil {
		attempts = reg.spec.retry.MaxAttempts
	}

	e.metrics.nodeStarted()
	defer e.metrics.nodeFinished()
	start := time.Now()
	e.emitEvent(runID, step, task.NodeID, "node_start", nil)

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		input, err := deepCopy(task.State)
		if err != nil {
			return taskResult[S]{abort: &EngineError{
				Message: "copy state for node " + task.NodeID + ": " + err.Error(),
				Code:    "STATE_COPY_FAILED",
				Err:     err,
			}}
		}

		res := reg.node.Run(ctx, input)
		if res.Err == nil {
			e.metrics.observeNode(task.NodeID, "success", time.Since(start))
			e.emitEvent(runID, step, task.NodeID, "node_complete", nil)
			return taskResult[S]{delta: res.Delta}
		}

		var sig *interruptSignal
		if errors.As(res.Err, &sig) {
			e.metrics.observeNode(task.NodeID, "interrupted", time.Since(start))
			return taskResult[S]{interrupt: sig}
		}
		if ctx.Err() != nil {
			return taskResult[S]{abort: ctx.Err()}
		}

		lastErr = res.Err
		if attempt < attempts {
			e.metrics.observeRetry(task.NodeID)
			e.emitEvent(runID, step, task.NodeID, "node_retry", map[string]any{
				"attempt": attempt,
				"error":   res.Err.Error(),
			})
			if err := sleepCtx(ctx, reg.spec.retry.backoff(attempt)); err != nil {
				return taskResult[S]{abort: err}
			}
		}
	}

	if reg.spec.retry != nil {
		lastErr = fmt.Errorf("%w: %v", ErrMaxAttemptsExceeded, lastErr)
	}
	e.metrics.observeNode(task.NodeID, "failed", time.Since(start))
	e.emitEvent(runID, step, task.NodeID, "node_failed", map[string]any{"error": lastErr.Error()})
	return taskResult[S]{err: lastErr}
}

// nextFrontier evaluates the outgoing edges of every executed node, in
// launch order and then edge-registration order, against the merged state.
// Static and conditional successors are de-duplicated (two scrapers feeding
// one merge node schedule it once); fan-out Sends are not, since each Send
// is a distinct invocation with its own state.
func (e *Engine[S]) nextFrontier(executed []string, merged S) ([]store.Task[S], error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	var next []store.Task[S]
	scheduled := make(map[string]bool)

	addUnique := func(nodeID string) error {
		if nodeID == End {
			return nil
		}
		if _, ok := e.nodes[nodeID]; !ok {
			return &EngineError{Message: "edge leads to unknown node: " + nodeID, Code: "NODE_NOT_FOUND"}
		}
		if scheduled[nodeID] {
			return nil
		}
		scheduled[nodeID] = true
		next = append(next, store.Task[S]{NodeID: nodeID, State: merged})
		return nil
	}

	for _, nodeID := range executed {
		outgoing := 0
		for _, edge := range e.edges {
			if edge.From != nodeID {
				continue
			}
			outgoing++
			switch {
			case edge.Expand != nil:
				for _, send := range edge.Expand(merged) {
					if send.Node == End {
						continue
					}
					if _, ok := e.nodes[send.Node]; !ok {
						return nil, &EngineError{Message: "fan-out targets unknown node: " + send.Node, Code: "NODE_NOT_FOUND"}
					}
					next = append(next, store.Task[S]{NodeID: send.Node, State: send.State})
				}
			case edge.Route != nil:
				target := edge.Route(merged)
				if target == End {
					continue
				}
				if len(edge.Targets) > 0 && !slices.Contains(edge.Targets, target) {
					return nil, &EngineError{
						Message: "router for " + nodeID + " selected undeclared target: " + target,
						Code:    "INVALID_ROUTE",
					}
				}
				if err := addUnique(target); err != nil {
					return nil, err
				}
			default:
				if err := addUnique(edge.To); err != nil {
					return nil, err
				}
			}
		}
		if outgoing == 0 {
			return nil, &EngineError{Message: "no outgoing edges from node: " + nodeID, Code: "NO_ROUTE"}
		}
	}
	return next, nil
}

func (e *Engine[S]) validate(runID string) error {
	if runID == "" {
		return &EngineError{Message: "run ID cannot be empty", Code: "INVALID_RUN_ID"}
	}
	if e.reducer == nil {
		return &EngineError{Message: "reducer is required", Code: "MISSING_REDUCER"}
	}
	if e.store == nil {
		return &EngineError{Message: "store is required", Code: "MISSING_STORE"}
	}

	e.mu.RLock()
	defer e.mu.RUnlock()
	if len(e.startNodes) == 0 {
		return &EngineError{Message: "start nodes not set (call StartAt before Run)", Code: "NO_START_NODE"}
	}
	return nil
}

func (e *Engine[S]) loadLatest(ctx context.Context, runID string) (store.Checkpoint[S], error) {
	cp, err := e.store.LoadLatest(ctx, runID)
	if errors.Is(err, store.ErrNotFound) {
		return cp, &EngineError{Message: "run not found: " + runID, Code: "RUN_NOT_FOUND", Err: err}
	}
	if err != nil {
		return cp, &EngineError{Message: "load checkpoint: " + err.Error(), Code: "STORE_ERROR", Err: err}
	}
	return cp, nil
}

func (e *Engine[S]) saveCheckpoint(ctx context.Context, cp store.Checkpoint[S]) error {
	if err := e.store.Save(ctx, cp); err != nil {
		return &EngineError{
			Message: "failed to save checkpoint for run " + cp.RunID + ": " + err.Error(),
			Code:    "CHECKPOINT_SAVE_FAILED",
			Err:     err,
		}
	}
	e.metrics.observeCheckpoint()
	e.emitEvent(cp.RunID, cp.StepID, "", "checkpoint_saved", map[string]any{"status": string(cp.Status)})
	return nil
}

func (e *Engine[S]) acquire(runID string) error {
	e.activeMu.Lock()
	defer e.activeMu.Unlock()
	if _, busy := e.active[runID]; busy {
		return &EngineError{
			Message: "run " + runID + " is already being advanced by another call",
			Code:    "RUN_ACTIVE",
			Err:     ErrRunActive,
		}
	}
	e.active[runID] = struct{}{}
	return nil
}

func (e *Engine[S]) release(runID string) {
	e.activeMu.Lock()
	defer e.activeMu.Unlock()
	delete(e.active, runID)
}

func (e *Engine[S]) emitEvent(runID string, step int, nodeID, msg string, meta map[string]any) {
	if e.emitter == nil {
		return
	}
	e.emitter.Emit(emit.Event{RunID: runID, Step: step, NodeID: nodeID, Msg: msg, Meta: meta})
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
