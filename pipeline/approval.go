package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/Viraj97-SL/AI-News-Analyzer/graph"
)

// Node names for the approval and publishing stage.
const (
	NodeHumanApproval = "human_approval"
	NodePublish       = "publish"
	NodeRevise        = "revise"
)

// Decision is the human response to an approval interrupt.
type Decision struct {
	// Action is "approve" or "reject".
	Action string `json:"action"`

	// Feedback carries revision guidance when rejecting.
	Feedback string `json:"feedback,omitempty"`
}

// ApprovalPayload is what the approval interrupt surfaces to the caller
// for review.
type ApprovalPayload struct {
	LinkedInDraft     string `json:"linkedin_draft"`
	NewsletterPreview string `json:"newsletter_preview"`
	ImageCount        int    `json:"image_count"`
	SummaryCount      int    `json:"summary_count"`
	Message           string `json:"message"`
}

// Approval holds the human-in-the-loop and publishing nodes.
type Approval struct {
	publisher Publisher
	logger    *slog.Logger
}

// NewApproval creates the approval stage.
func NewApproval(publisher Publisher, logger *slog.Logger) *Approval {
	if logger == nil {
		logger = slog.Default()
	}
	return &Approval{publisher: publisher, logger: logger}
}

// Human suspends the run for review. On first execution it raises an
// interrupt carrying the content preview; after Resume it re-executes and
// receives the decision, recording the approval status and any feedback.
func (a *Approval) Human(ctx context.Context, state State) graph.NodeResult[State] {
	a.logger.Info("awaiting approval",
		"run_id", state.RunID,
		"linkedin_chars", len(state.LinkedInDraft),
		"images", len(state.ImagePaths))

	raw, err := graph.Interrupt(ctx, ApprovalPayload{
		LinkedInDraft:     state.LinkedInDraft,
		NewsletterPreview: truncate(state.NewsletterHTML, 500),
		ImageCount:        len(state.ImagePaths),
		SummaryCount:      len(state.Summaries),
		Message:           "Please review the content and approve or reject with feedback.",
	})
	if err != nil {
		return graph.NodeResult[State]{Err: err}
	}

	decision, err := coerceDecision(raw)
	if err != nil {
		return graph.NodeResult[State]{Err: err}
	}

	a.logger.Info("approval decision", "action", decision.Action, "has_feedback", decision.Feedback != "")

	if decision.Action == "approve" {
		return graph.NodeResult[State]{Delta: State{
			ApprovalStatus: "approved",
			CurrentStep:    "approved",
		}}
	}
	return graph.NodeResult[State]{Delta: State{
		ApprovalStatus: "rejected",
		Feedback:       decision.Feedback,
		CurrentStep:    "revision_requested",
	}}
}

// ValidateDecision checks a resume decision without applying it. Wired
// into the approval node via graph.WithDecisionValidator so the engine
// rejects malformed input before the interrupt is consumed.
func ValidateDecision(raw any) error {
	_, err := coerceDecision(raw)
	return err
}

// coerceDecision accepts either the typed Decision or the map shape an
// HTTP handler would hand over after JSON decoding.
func coerceDecision(raw any) (Decision, error) {
	switch d := raw.(type) {
	case Decision:
		return validateDecision(d)
	case *Decision:
		return validateDecision(*d)
	case map[string]any:
		out := Decision{}
		if action, ok := d["action"].(string); ok {
			out.Action = action
		}
		if feedback, ok := d["feedback"].(string); ok {
			out.Feedback = feedback
		}
		return validateDecision(out)
	default:
		return Decision{}, fmt.Errorf("unsupported decision type %T", raw)
	}
}

func validateDecision(d Decision) (Decision, error) {
	switch d.Action {
	case "approve", "reject":
		return d, nil
	default:
		return Decision{}, fmt.Errorf("invalid decision action %q (want approve or reject)", d.Action)
	}
}

// Route picks the successor after the approval node.
func (a *Approval) Route(state State) string {
	if state.ApprovalStatus == "approved" {
		return NodePublish
	}
	return NodeRevise
}

// Publish delivers the approved newsletter and LinkedIn post. Delivery
// failure is recorded, not fatal; the content is already durable in the
// checkpoint.
func (a *Approval) Publish(ctx context.Context, state State) graph.NodeResult[State] {
	a.logger.Info("publishing",
		"run_id", state.RunID,
		"summaries", len(state.Summaries),
		"linkedin_chars", len(state.LinkedInDraft))

	var errLog []string
	if a.publisher != nil {
		if err := a.publisher.Publish(ctx, state); err != nil {
			a.logger.Error("publish failed", "run_id", state.RunID, "error", err)
			errLog = append(errLog, "publish: "+err.Error())
		}
	}
	return graph.NodeResult[State]{Delta: State{ErrorLog: errLog, CurrentStep: "published"}}
}

// Revise records the rejection and counts the loop iteration before the
// pipeline circles back to the summarizer.
func (a *Approval) Revise(ctx context.Context, state State) graph.NodeResult[State] {
	a.logger.Info("revision requested", "run_id", state.RunID, "feedback", state.Feedback)
	return graph.NodeResult[State]{Delta: State{
		RevisionCount: 1,
		CurrentStep:   "revising",
	}}
}

// Publisher delivers the finished content somewhere: email, LinkedIn API,
// or just the local filesystem.
type Publisher interface {
	Publish(ctx context.Context, state State) error
}

// FilePublisher writes the newsletter and LinkedIn draft to a directory.
// The development default; swap in an email or LinkedIn implementation
// for production.
type FilePublisher struct {
	Dir string
}

// Publish writes newsletter_<run>.html and linkedin_<run>.txt.
func (p *FilePublisher) Publish(ctx context.Context, state State) error {
	if err := os.MkdirAll(p.Dir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	newsletter := filepath.Join(p.Dir, "newsletter_"+state.RunID+".html")
	if err := os.WriteFile(newsletter, []byte(state.NewsletterHTML), 0o644); err != nil {
		return fmt.Errorf("write newsletter: %w", err)
	}
	post := filepath.Join(p.Dir, "linkedin_"+state.RunID+".txt")
	if err := os.WriteFile(post, []byte(state.LinkedInDraft), 0o644); err != nil {
		return fmt.Errorf("write linkedin post: %w", err)
	}
	return nil
}
