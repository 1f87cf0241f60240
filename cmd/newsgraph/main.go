// Command newsgraph runs the AI news pipeline: scrape, analyze, summarize,
// generate content, and publish after human approval.
//
// Usage:
//
//	newsgraph run [-config config.yaml] [-run-id id] [-trigger manual]
//	newsgraph resume -run-id id -action approve
//	newsgraph resume -run-id id -action reject -feedback "shorter headlines"
//	newsgraph continue -run-id id
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Viraj97-SL/AI-News-Analyzer/graph"
	"github.com/Viraj97-SL/AI-News-Analyzer/graph/emit"
	"github.com/Viraj97-SL/AI-News-Analyzer/graph/store"
	"github.com/Viraj97-SL/AI-News-Analyzer/model"
	"github.com/Viraj97-SL/AI-News-Analyzer/model/anthropic"
	"github.com/Viraj97-SL/AI-News-Analyzer/model/google"
	"github.com/Viraj97-SL/AI-News-Analyzer/model/openai"
	"github.com/Viraj97-SL/AI-News-Analyzer/pipeline"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	cmd := os.Args[1]
	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	configPath := fs.String("config", "config.yaml", "path to YAML config")
	runID := fs.String("run-id", "", "run identifier (generated for run)")
	trigger := fs.String("trigger", "manual", "trigger type: manual or scheduled")
	action := fs.String("action", "", "approval decision: approve or reject")
	feedback := fs.String("feedback", "", "revision feedback when rejecting")
	metricsAddr := fs.String("metrics-addr", "", "serve Prometheus metrics on this address (e.g. :9090)")
	if err := fs.Parse(os.Args[2:]); err != nil {
		os.Exit(2)
	}

	cfg, err := pipeline.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := dispatch(ctx, cmd, cfg, logger, *runID, *trigger, *action, *feedback, *metricsAddr); err != nil {
		var ie *graph.InterruptError
		if errors.As(err, &ie) {
			printInterrupt(ie)
			return
		}
		logger.Error("run failed", "error", err)
		os.Exit(1)
	}
}

func dispatch(ctx context.Context, cmd string, cfg pipeline.Config, logger *slog.Logger, runID, trigger, action, feedback, metricsAddr string) error {
	st, err := store.NewSQLiteStore[pipeline.State](cfg.DatabasePath)
	if err != nil {
		return err
	}
	defer st.Close()

	var opts []graph.Option[pipeline.State]
	if metricsAddr != "" {
		reg := prometheus.NewRegistry()
		opts = append(opts, graph.WithMetrics[pipeline.State](graph.NewMetrics(reg)))
		go serveMetrics(metricsAddr, reg, logger)
	}

	engine, err := buildEngine(ctx, cfg, st, logger, opts...)
	if err != nil {
		return err
	}

	switch cmd {
	case "run":
		if runID == "" {
			runID = "run-" + uuid.NewString()[:8]
		}
		logger.Info("starting run", "run_id", runID, "trigger", trigger)
		final, err := engine.Run(ctx, runID, pipeline.State{
			RunID:          runID,
			TriggerType:    trigger,
			ApprovalStatus: "pending",
		})
		if err != nil {
			return err
		}
		printResult(final)
		return nil

	case "resume":
		if runID == "" {
			return errors.New("resume requires -run-id")
		}
		decision, err := parseDecision(action, feedback)
		if err != nil {
			return err
		}
		final, err := engine.Resume(ctx, runID, decision)
		if err != nil {
			return err
		}
		printResult(final)
		return nil

	case "continue":
		if runID == "" {
			return errors.New("continue requires -run-id")
		}
		final, err := engine.Continue(ctx, runID)
		if err != nil {
			return err
		}
		printResult(final)
		return nil

	default:
		usage()
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func buildEngine(ctx context.Context, cfg pipeline.Config, st store.Store[pipeline.State], logger *slog.Logger, opts ...graph.Option[pipeline.State]) (*graph.Engine[pipeline.State], error) {
	chat, err := newChatModel(ctx, cfg)
	if err != nil {
		return nil, err
	}

	// Always keep a local copy; add the delivery channels that have
	// credentials configured.
	publishers := pipeline.MultiPublisher{&pipeline.FilePublisher{Dir: cfg.OutputDir}}
	if cfg.ResendAPIKey != "" {
		publishers = append(publishers, &pipeline.ResendPublisher{
			APIKey: cfg.ResendAPIKey,
			From:   cfg.EmailFrom,
			To:     cfg.EmailTo,
			Logger: logger,
		})
	}
	if cfg.LinkedInAccessToken != "" && cfg.LinkedInAuthorURN != "" {
		publishers = append(publishers, &pipeline.LinkedInPublisher{
			AccessToken: cfg.LinkedInAccessToken,
			AuthorURN:   cfg.LinkedInAuthorURN,
			Logger:      logger,
		})
	}

	deps := pipeline.Deps{
		Scrapers: pipeline.NewScrapers(cfg, nil, logger),
		Analyzer: pipeline.NewAnalyzer(cfg, chat, chat, logger),
		Content: pipeline.NewContentGen(chat,
			&pipeline.HTMLCardRenderer{Dir: cfg.OutputDir + "/images"}, logger),
		Approval: pipeline.NewApproval(publishers, logger),
	}

	return pipeline.Build(deps, st, emit.NewSlogEmitter(logger), opts...)
}

func newChatModel(ctx context.Context, cfg pipeline.Config) (model.ChatModel, error) {
	switch cfg.Provider {
	case "anthropic":
		if cfg.AnthropicAPIKey == "" {
			return nil, errors.New("ANTHROPIC_API_KEY is not set")
		}
		return anthropic.NewChatModel(cfg.AnthropicAPIKey, cfg.ModelSummarizer), nil
	case "openai":
		if cfg.OpenAIAPIKey == "" {
			return nil, errors.New("OPENAI_API_KEY is not set")
		}
		return openai.NewChatModel(cfg.OpenAIAPIKey, cfg.ModelSummarizer), nil
	case "google":
		if cfg.GoogleAPIKey == "" {
			return nil, errors.New("GOOGLE_API_KEY is not set")
		}
		return google.NewChatModel(ctx, cfg.GoogleAPIKey, cfg.ModelSummarizer)
	default:
		return nil, fmt.Errorf("unknown provider %q (want anthropic, openai or google)", cfg.Provider)
	}
}

func parseDecision(action, feedback string) (pipeline.Decision, error) {
	switch action {
	case "approve":
		return pipeline.Decision{Action: "approve"}, nil
	case "reject":
		return pipeline.Decision{Action: "reject", Feedback: feedback}, nil
	default:
		return pipeline.Decision{}, fmt.Errorf("invalid -action %q (want approve or reject)", action)
	}
}

func printInterrupt(ie *graph.InterruptError) {
	fmt.Println("run suspended for approval")
	fmt.Println("  run:", ie.RunID)
	if payload, ok := ie.Payload.(pipeline.ApprovalPayload); ok {
		fmt.Printf("  summaries: %d  images: %d\n", payload.SummaryCount, payload.ImageCount)
		fmt.Println("  linkedin draft:")
		fmt.Println(indent(payload.LinkedInDraft, "    "))
	}
	fmt.Printf("\nresume with: newsgraph resume -run-id %s -action approve\n", ie.RunID)
}

func printResult(final pipeline.State) {
	fmt.Printf("run %s finished: step=%s summaries=%d tokens=%d revisions=%d\n",
		final.RunID, final.CurrentStep, len(final.Summaries), final.TotalTokens, final.RevisionCount)
	for _, msg := range final.ErrorLog {
		fmt.Println("  warning:", msg)
	}
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	w := os.Stderr
	if isatty.IsTerminal(w.Fd()) {
		return slog.New(tint.NewHandler(w, &tint.Options{
			Level:      lvl,
			TimeFormat: time.Kitchen,
		}))
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl}))
}

func serveMetrics(addr string, reg *prometheus.Registry, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Error("metrics server stopped", "error", err)
	}
}

func indent(s, prefix string) string {
	return prefix + strings.ReplaceAll(s, "\n", "\n"+prefix)
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: newsgraph <run|resume|continue> [flags]

commands:
  run       start a new pipeline run
  resume    deliver an approval decision to a suspended run
  continue  pick a run back up from its latest checkpoint`)
}
