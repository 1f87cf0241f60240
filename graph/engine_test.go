package graph

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Viraj97-SL/AI-News-Analyzer/graph/store"
)

// TestState is the shared state type for engine tests.
type TestState struct {
	Value   string   `json:"value"`
	Counter int      `json:"counter"`
	Trace   []string `json:"trace"`
}

func testReducer(prev, delta TestState) TestState {
	if delta.Value != "" {
		prev.Value = delta.Value
	}
	prev.Counter += delta.Counter
	prev.Trace = append(prev.Trace, delta.Trace...)
	return prev
}

func traceNode(name string) NodeFunc[TestState] {
	return func(ctx context.Context, s TestState) NodeResult[TestState] {
		return NodeResult[TestState]{Delta: TestState{Trace: []string{name}}}
	}
}

func newTestEngine(t *testing.T, opts ...Option[TestState]) (*Engine[TestState], *store.MemStore[TestState]) {
	t.Helper()
	st := store.NewMemStore[TestState]()
	return New(testReducer, st, nil, opts...), st
}

func mustAdd(t *testing.T, e *Engine[TestState], id string, n Node[TestState], opts ...NodeOption) {
	t.Helper()
	if err := e.Add(id, n, opts...); err != nil {
		t.Fatalf("Add(%s): %v", id, err)
	}
}

func mustConnect(t *testing.T, e *Engine[TestState], from, to string) {
	t.Helper()
	if err := e.Connect(from, to); err != nil {
		t.Fatalf("Connect(%s, %s): %v", from, to, err)
	}
}

func TestEngine_LinearRun(t *testing.T) {
	engine, st := newTestEngine(t)
	mustAdd(t, engine, "a", traceNode("a"))
	mustAdd(t, engine, "b", traceNode("b"))
	mustAdd(t, engine, "c", traceNode("c"))
	if err := engine.StartAt("a"); err != nil {
		t.Fatal(err)
	}
	mustConnect(t, engine, "a", "b")
	mustConnect(t, engine, "b", "c")
	mustConnect(t, engine, "c", End)

	final, err := engine.Run(context.Background(), "run-linear", TestState{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	want := []string{"a", "b", "c"}
	if len(final.Trace) != len(want) {
		t.Fatalf("trace = %v, want %v", final.Trace, want)
	}
	for i := range want {
		if final.Trace[i] != want[i] {
			t.Errorf("trace[%d] = %q, want %q", i, final.Trace[i], want[i])
		}
	}

	cp, err := st.LoadLatest(context.Background(), "run-linear")
	if err != nil {
		t.Fatalf("LoadLatest: %v", err)
	}
	if cp.Status != store.StatusCompleted {
		t.Errorf("status = %s, want %s", cp.Status, store.StatusCompleted)
	}
	if len(cp.Frontier) != 0 {
		t.Errorf("final frontier = %v, want empty", cp.Frontier)
	}
	if cp.StepID != 3 {
		t.Errorf("final step = %d, want 3", cp.StepID)
	}
}

func TestEngine_FanOutMergeOrder(t *testing.T) {
	// The slow branch launches first, so its delta must merge first even
	// though the fast branch finishes long before it.
	slow := NodeFunc[TestState](func(ctx context.Context, s TestState) NodeResult[TestState] {
		time.Sleep(50 * time.Millisecond)
		return NodeResult[TestState]{Delta: TestState{Trace: []string{"slow"}}}
	})
	fast := traceNode("fast")

	for i := 0; i < 5; i++ {
		engine, _ := newTestEngine(t)
		mustAdd(t, engine, "split", traceNode("split"))
		mustAdd(t, engine, "slow", slow)
		mustAdd(t, engine, "fast", fast)
		mustAdd(t, engine, "join", traceNode("join"))
		if err := engine.StartAt("split"); err != nil {
			t.Fatal(err)
		}
		if err := engine.FanOut("split", func(s TestState) []Send[TestState] {
			return []Send[TestState]{
				{Node: "slow", State: s},
				{Node: "fast", State: s},
			}
		}); err != nil {
			t.Fatal(err)
		}
		mustConnect(t, engine, "slow", "join")
		mustConnect(t, engine, "fast", "join")
		mustConnect(t, engine, "join", End)

		final, err := engine.Run(context.Background(), "run-fanout", TestState{})
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
		want := []string{"split", "slow", "fast", "join"}
		for j := range want {
			if final.Trace[j] != want[j] {
				t.Fatalf("iteration %d: trace = %v, want %v", i, final.Trace, want)
			}
		}
	}
}

func TestEngine_StaticSuccessorsDeduplicated(t *testing.T) {
	// Two branches feed one join; the join must run exactly once.
	var joinRuns int
	var mu sync.Mutex
	join := NodeFunc[TestState](func(ctx context.Context, s TestState) NodeResult[TestState] {
		mu.Lock()
		joinRuns++
		mu.Unlock()
		return NodeResult[TestState]{Delta: TestState{Trace: []string{"join"}}}
	})

	engine, _ := newTestEngine(t)
	mustAdd(t, engine, "split", traceNode("split"))
	mustAdd(t, engine, "left", traceNode("left"))
	mustAdd(t, engine, "right", traceNode("right"))
	mustAdd(t, engine, "join", join)
	if err := engine.StartAt("split"); err != nil {
		t.Fatal(err)
	}
	if err := engine.FanOut("split", func(s TestState) []Send[TestState] {
		return []Send[TestState]{{Node: "left", State: s}, {Node: "right", State: s}}
	}); err != nil {
		t.Fatal(err)
	}
	mustConnect(t, engine, "left", "join")
	mustConnect(t, engine, "right", "join")
	mustConnect(t, engine, "join", End)

	if _, err := engine.Run(context.Background(), "run-dedup", TestState{}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if joinRuns != 1 {
		t.Errorf("join ran %d times, want 1", joinRuns)
	}
}

func TestEngine_Branch(t *testing.T) {
	t.Run("routes on merged state", func(t *testing.T) {
		engine, _ := newTestEngine(t)
		mustAdd(t, engine, "decide", NodeFunc[TestState](func(ctx context.Context, s TestState) NodeResult[TestState] {
			return NodeResult[TestState]{Delta: TestState{Value: "left"}}
		}))
		mustAdd(t, engine, "left", traceNode("left"))
		mustAdd(t, engine, "right", traceNode("right"))
		if err := engine.StartAt("decide"); err != nil {
			t.Fatal(err)
		}
		if err := engine.Branch("decide", func(s TestState) string { return s.Value }, "left", "right"); err != nil {
			t.Fatal(err)
		}
		mustConnect(t, engine, "left", End)
		mustConnect(t, engine, "right", End)

		final, err := engine.Run(context.Background(), "run-branch", TestState{})
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
		if len(final.Trace) != 1 || final.Trace[0] != "left" {
			t.Errorf("trace = %v, want [left]", final.Trace)
		}
	})

	t.Run("undeclared target is a structural error", func(t *testing.T) {
		engine, _ := newTestEngine(t)
		mustAdd(t, engine, "decide", traceNode("decide"))
		mustAdd(t, engine, "left", traceNode("left"))
		if err := engine.StartAt("decide"); err != nil {
			t.Fatal(err)
		}
		if err := engine.Branch("decide", func(s TestState) string { return "elsewhere" }, "left"); err != nil {
			t.Fatal(err)
		}
		mustConnect(t, engine, "left", End)

		_, err := engine.Run(context.Background(), "run-badroute", TestState{})
		var ee *EngineError
		if !errors.As(err, &ee) || ee.Code != "INVALID_ROUTE" {
			t.Fatalf("err = %v, want INVALID_ROUTE", err)
		}
	})

	t.Run("router may answer End", func(t *testing.T) {
		engine, _ := newTestEngine(t)
		mustAdd(t, engine, "decide", traceNode("decide"))
		if err := engine.StartAt("decide"); err != nil {
			t.Fatal(err)
		}
		if err := engine.Branch("decide", func(s TestState) string { return End }); err != nil {
			t.Fatal(err)
		}

		final, err := engine.Run(context.Background(), "run-end", TestState{})
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
		if len(final.Trace) != 1 {
			t.Errorf("trace = %v, want just the decide node", final.Trace)
		}
	})
}

func TestEngine_StructuralErrors(t *testing.T) {
	t.Run("missing start node", func(t *testing.T) {
		engine, _ := newTestEngine(t)
		mustAdd(t, engine, "a", traceNode("a"))
		_, err := engine.Run(context.Background(), "run-nostart", TestState{})
		var ee *EngineError
		if !errors.As(err, &ee) || ee.Code != "NO_START_NODE" {
			t.Fatalf("err = %v, want NO_START_NODE", err)
		}
	})

	t.Run("node without outgoing edges", func(t *testing.T) {
		engine, _ := newTestEngine(t)
		mustAdd(t, engine, "a", traceNode("a"))
		if err := engine.StartAt("a"); err != nil {
			t.Fatal(err)
		}
		_, err := engine.Run(context.Background(), "run-noroute", TestState{})
		var ee *EngineError
		if !errors.As(err, &ee) || ee.Code != "NO_ROUTE" {
			t.Fatalf("err = %v, want NO_ROUTE", err)
		}
	})

	t.Run("edge to unknown node", func(t *testing.T) {
		engine, _ := newTestEngine(t)
		mustAdd(t, engine, "a", traceNode("a"))
		if err := engine.StartAt("a"); err != nil {
			t.Fatal(err)
		}
		mustConnect(t, engine, "a", "ghost")
		_, err := engine.Run(context.Background(), "run-ghost", TestState{})
		var ee *EngineError
		if !errors.As(err, &ee) || ee.Code != "NODE_NOT_FOUND" {
			t.Fatalf("err = %v, want NODE_NOT_FOUND", err)
		}
	})

	t.Run("duplicate node", func(t *testing.T) {
		engine, _ := newTestEngine(t)
		mustAdd(t, engine, "a", traceNode("a"))
		err := engine.Add("a", traceNode("a"))
		var ee *EngineError
		if !errors.As(err, &ee) || ee.Code != "DUPLICATE_NODE" {
			t.Fatalf("err = %v, want DUPLICATE_NODE", err)
		}
	})

	t.Run("rerun of existing run id", func(t *testing.T) {
		engine, _ := newTestEngine(t)
		mustAdd(t, engine, "a", traceNode("a"))
		if err := engine.StartAt("a"); err != nil {
			t.Fatal(err)
		}
		mustConnect(t, engine, "a", End)

		if _, err := engine.Run(context.Background(), "run-twice", TestState{}); err != nil {
			t.Fatal(err)
		}
		_, err := engine.Run(context.Background(), "run-twice", TestState{})
		var ee *EngineError
		if !errors.As(err, &ee) || ee.Code != "RUN_EXISTS" {
			t.Fatalf("err = %v, want RUN_EXISTS", err)
		}
	})
}

func TestEngine_MaxSteps(t *testing.T) {
	engine, _ := newTestEngine(t, WithMaxSteps[TestState](5))
	mustAdd(t, engine, "a", traceNode("a"))
	mustAdd(t, engine, "b", traceNode("b"))
	if err := engine.StartAt("a"); err != nil {
		t.Fatal(err)
	}
	mustConnect(t, engine, "a", "b")
	mustConnect(t, engine, "b", "a")

	_, err := engine.Run(context.Background(), "run-cycle", TestState{})
	if !errors.Is(err, ErrMaxStepsExceeded) {
		t.Fatalf("err = %v, want ErrMaxStepsExceeded", err)
	}
}

func TestEngine_NodeFailureIsNotFatal(t *testing.T) {
	engine, _ := newTestEngine(t, WithErrorDelta[TestState](func(nodeID string, err error) TestState {
		return TestState{Trace: []string{"error:" + nodeID}}
	}))
	failing := NodeFunc[TestState](func(ctx context.Context, s TestState) NodeResult[TestState] {
		return NodeResult[TestState]{Err: errors.New("boom")}
	})
	mustAdd(t, engine, "fail", failing)
	mustAdd(t, engine, "after", traceNode("after"))
	if err := engine.StartAt("fail"); err != nil {
		t.Fatal(err)
	}
	mustConnect(t, engine, "fail", "after")
	mustConnect(t, engine, "after", End)

	final, err := engine.Run(context.Background(), "run-fail", TestState{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	want := []string{"error:fail", "after"}
	if len(final.Trace) != 2 || final.Trace[0] != want[0] || final.Trace[1] != want[1] {
		t.Errorf("trace = %v, want %v", final.Trace, want)
	}
}

func TestEngine_NodeGetsStateCopy(t *testing.T) {
	// A node mutating its input slice must not leak into the merged state.
	mutator := NodeFunc[TestState](func(ctx context.Context, s TestState) NodeResult[TestState] {
		if len(s.Trace) > 0 {
			s.Trace[0] = "mutated"
		}
		return NodeResult[TestState]{}
	})

	engine, _ := newTestEngine(t)
	mustAdd(t, engine, "mutate", mutator)
	if err := engine.StartAt("mutate"); err != nil {
		t.Fatal(err)
	}
	mustConnect(t, engine, "mutate", End)

	final, err := engine.Run(context.Background(), "run-copy", TestState{Trace: []string{"original"}})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if final.Trace[0] != "original" {
		t.Errorf("state leaked node-local mutation: %v", final.Trace)
	}
}

func TestEngine_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	blocking := NodeFunc[TestState](func(ctx context.Context, s TestState) NodeResult[TestState] {
		<-ctx.Done()
		return NodeResult[TestState]{Err: ctx.Err()}
	})

	engine, _ := newTestEngine(t)
	mustAdd(t, engine, "block", blocking)
	if err := engine.StartAt("block"); err != nil {
		t.Fatal(err)
	}
	mustConnect(t, engine, "block", End)

	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	_, err := engine.Run(ctx, "run-cancel", TestState{})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestEngine_SingleWriterPerRun(t *testing.T) {
	// While one call is advancing a run, a second Run, Continue, or Resume
	// for the same identifier must bounce instead of racing the store.
	engine, _ := newTestEngine(t)
	started := make(chan struct{})
	release := make(chan struct{})
	mustAdd(t, engine, "hold", NodeFunc[TestState](func(ctx context.Context, s TestState) NodeResult[TestState] {
		close(started)
		<-release
		return NodeResult[TestState]{Delta: TestState{Trace: []string{"hold"}}}
	}))
	if err := engine.StartAt("hold"); err != nil {
		t.Fatal(err)
	}
	mustConnect(t, engine, "hold", End)

	done := make(chan error, 1)
	go func() {
		_, err := engine.Run(context.Background(), "run-solo", TestState{})
		done <- err
	}()
	<-started

	for name, call := range map[string]func() error{
		"Run": func() error {
			_, err := engine.Run(context.Background(), "run-solo", TestState{})
			return err
		},
		"Continue": func() error {
			_, err := engine.Continue(context.Background(), "run-solo")
			return err
		},
		"Resume": func() error {
			_, err := engine.Resume(context.Background(), "run-solo", "yes")
			return err
		},
	} {
		err := call()
		if !errors.Is(err, ErrRunActive) {
			t.Errorf("%s during active run: err = %v, want ErrRunActive", name, err)
		}
		var ee *EngineError
		if !errors.As(err, &ee) || ee.Code != "RUN_ACTIVE" {
			t.Errorf("%s during active run: err = %v, want code RUN_ACTIVE", name, err)
		}
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}

	// The guard releases with the call: the finished run is readable again.
	final, err := engine.Continue(context.Background(), "run-solo")
	if err != nil {
		t.Fatalf("Continue after release: %v", err)
	}
	if len(final.Trace) != 1 || final.Trace[0] != "hold" {
		t.Errorf("trace = %v, want [hold]", final.Trace)
	}
}

func TestEngineError_Format(t *testing.T) {
	err := &EngineError{Message: "node not found: x", Code: "NODE_NOT_FOUND"}
	if got := err.Error(); !strings.Contains(got, "NODE_NOT_FOUND") || !strings.Contains(got, "node not found: x") {
		t.Errorf("Error() = %q", got)
	}
}
