package emit

import (
	"context"
	"log/slog"
)

// SlogEmitter writes events through a structured logger.
//
// Each event becomes one log record at Info level, or Warn for the failure
// and retry messages, with the event fields as attributes:
//
//	INF node_complete run_id=run-001 step=3 node_id=summarize
//	WRN node_retry run_id=run-001 step=2 node_id=scrape_rss attempt=1 error="fetch feed: timeout"
type SlogEmitter struct {
	logger *slog.Logger
}

// NewSlogEmitter creates a SlogEmitter. A nil logger falls back to
// slog.Default().
func NewSlogEmitter(logger *slog.Logger) *SlogEmitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlogEmitter{logger: logger}
}

// Emit logs the event.
func (l *SlogEmitter) Emit(event Event) {
	attrs := make([]any, 0, 6+2*len(event.Meta))
	attrs = append(attrs, "run_id", event.RunID, "step", event.Step)
	if event.NodeID != "" {
		attrs = append(attrs, "node_id", event.NodeID)
	}
	for k, v := range event.Meta {
		attrs = append(attrs, k, v)
	}

	level := slog.LevelInfo
	switch event.Msg {
	case "node_retry", "node_failed":
		level = slog.LevelWarn
	}
	l.logger.Log(context.Background(), level, event.Msg, attrs...)
}
