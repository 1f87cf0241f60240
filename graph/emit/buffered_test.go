package emit

import "testing"

func intPtr(v int) *int { return &v }

func seedEvents(b *BufferedEmitter) {
	b.Emit(Event{RunID: "run-1", Step: 1, NodeID: "scrape_rss", Msg: "node_start"})
	b.Emit(Event{RunID: "run-1", Step: 1, NodeID: "scrape_rss", Msg: "node_retry", Meta: map[string]any{"attempt": 1}})
	b.Emit(Event{RunID: "run-1", Step: 1, NodeID: "scrape_rss", Msg: "node_complete"})
	b.Emit(Event{RunID: "run-1", Step: 2, NodeID: "summarize", Msg: "node_complete"})
	b.Emit(Event{RunID: "run-2", Step: 1, NodeID: "plan_sources", Msg: "node_start"})
}

func TestBufferedEmitter_History(t *testing.T) {
	b := NewBufferedEmitter()
	seedEvents(b)

	events := b.History("run-1")
	if len(events) != 4 {
		t.Fatalf("len = %d, want 4", len(events))
	}
	if events[0].Msg != "node_start" || events[3].NodeID != "summarize" {
		t.Errorf("events out of emission order: %+v", events)
	}

	// History on an unknown run returns an empty slice.
	if got := b.History("nope"); len(got) != 0 {
		t.Errorf("unknown run history = %+v", got)
	}

	// History returns a copy.
	events[0].Msg = "tampered"
	if b.History("run-1")[0].Msg != "node_start" {
		t.Error("History shares memory with internal buffer")
	}
}

func TestBufferedEmitter_Filter(t *testing.T) {
	b := NewBufferedEmitter()
	seedEvents(b)

	tests := []struct {
		name   string
		filter HistoryFilter
		want   int
	}{
		{"by node", HistoryFilter{NodeID: "scrape_rss"}, 3},
		{"by msg", HistoryFilter{Msg: "node_complete"}, 2},
		{"node and msg", HistoryFilter{NodeID: "scrape_rss", Msg: "node_complete"}, 1},
		{"min step", HistoryFilter{MinStep: intPtr(2)}, 1},
		{"max step", HistoryFilter{MaxStep: intPtr(1)}, 3},
		{"step range", HistoryFilter{MinStep: intPtr(1), MaxStep: intPtr(1)}, 3},
		{"no match", HistoryFilter{NodeID: "ghost"}, 0},
		{"empty filter matches all", HistoryFilter{}, 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := b.HistoryWithFilter("run-1", tt.filter)
			if len(got) != tt.want {
				t.Errorf("got %d events, want %d", len(got), tt.want)
			}
		})
	}
}

func TestBufferedEmitter_Clear(t *testing.T) {
	b := NewBufferedEmitter()
	seedEvents(b)

	b.Clear("run-1")
	if len(b.History("run-1")) != 0 {
		t.Error("run-1 events survived Clear")
	}
	if len(b.History("run-2")) != 1 {
		t.Error("Clear removed another run's events")
	}

	b.Clear("")
	if len(b.History("run-2")) != 0 {
		t.Error("Clear(\"\") did not remove everything")
	}
}

func TestMultiEmitter(t *testing.T) {
	a := NewBufferedEmitter()
	b := NewBufferedEmitter()
	multi := NewMultiEmitter(a, nil, b)

	multi.Emit(Event{RunID: "run-1", Step: 1, Msg: "run_started"})

	if len(a.History("run-1")) != 1 || len(b.History("run-1")) != 1 {
		t.Error("event did not reach every emitter")
	}
}
