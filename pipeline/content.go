package pipeline

import (
	"context"
	"fmt"
	"html/template"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/Viraj97-SL/AI-News-Analyzer/graph"
	"github.com/Viraj97-SL/AI-News-Analyzer/model"
)

// Node names for the content generation stage.
const (
	NodeLinkedInGen = "linkedin_gen"
	NodeImageGen    = "image_gen"
)

const linkedInMaxChars = 3000

const linkedInSystemPrompt = `You are a LinkedIn content strategist for an AI/ML thought leader.

Write a LinkedIn post summarising this week's top AI/ML news. Follow these rules strictly:

FORMAT:
- Total length: 1,200-1,800 characters (hard max: 3,000)
- First 210 characters = the HOOK (this is all people see before "see more")
- Use liberal whitespace between sections for mobile readability
- Use bullets for 3-5 key takeaways
- End with an engaging question to drive comments
- Add 3-5 relevant hashtags at the bottom

TONE:
- Authoritative but accessible
- Lead with the "so what": why should someone in tech care?
- Include specific numbers, names, or dates where possible
- No filler phrases like "In the ever-evolving landscape of AI..."

Output ONLY the post text, no explanations or markdown fences.`

var newsletterTemplate = template.Must(template.New("newsletter").Parse(`<!DOCTYPE html>
<html><head><meta charset="utf-8"></head>
<body style="font-family:-apple-system,BlinkMacSystemFont,sans-serif;max-width:640px;margin:0 auto;padding:24px;color:#111;">
	<h1 style="border-bottom:2px solid #0a66c2;padding-bottom:12px;">AI/ML Weekly Digest</h1>
	<p style="color:#666;font-size:13px;">Run ID: {{.RunID}}</p>
{{range .Summaries}}	<div style="border-left:4px solid #0a66c2;padding:12px 16px;margin-bottom:24px;">
		<span style="font-size:11px;color:#666;text-transform:uppercase;">{{.Category}}</span>
		<h2 style="margin:4px 0;font-size:18px;">{{.Headline}}</h2>
		<p style="color:#333;line-height:1.6;">{{.Body}}</p>
	</div>
{{end}}	<p style="color:#aaa;font-size:11px;margin-top:32px;">Generated by AI News Analyzer</p>
</body></html>
`))

var newsCardTemplate = template.Must(template.New("card").Parse(`<!DOCTYPE html>
<html><head><meta charset="utf-8"><style>
	body { width: 1200px; height: 627px; margin: 0; font-family: -apple-system, sans-serif;
	       background: linear-gradient(135deg, #0a66c2, #004182); color: #fff;
	       display: flex; flex-direction: column; justify-content: center; padding: 64px; box-sizing: border-box; }
	.category { font-size: 20px; text-transform: uppercase; letter-spacing: 2px; opacity: 0.8; }
	h1 { font-size: 48px; margin: 16px 0; line-height: 1.2; }
	p { font-size: 24px; line-height: 1.5; opacity: 0.9; }
	.footer { font-size: 16px; opacity: 0.6; margin-top: 32px; }
</style></head>
<body>
	<div class="category">{{.Category}}</div>
	<h1>{{.Headline}}</h1>
	<p>{{.Body}}</p>
	<div class="footer">Credibility {{printf "%.0f%%" .Credibility}} &middot; {{.RunID}}</div>
</body></html>
`))

// CardRenderer turns a rendered card document into a file on disk and
// returns its path. The default implementation writes the HTML itself;
// a headless-browser implementation can swap in to produce PNGs.
type CardRenderer interface {
	Render(name string, html []byte) (string, error)
}

// HTMLCardRenderer writes card documents as .html files under a directory.
type HTMLCardRenderer struct {
	Dir string
}

// Render writes the document and returns its path.
func (r *HTMLCardRenderer) Render(name string, html []byte) (string, error) {
	if err := os.MkdirAll(r.Dir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}
	path := filepath.Join(r.Dir, name+".html")
	if err := os.WriteFile(path, html, 0o644); err != nil {
		return "", fmt.Errorf("write card: %w", err)
	}
	return path, nil
}

// ContentGen holds the content generation nodes.
type ContentGen struct {
	chat     model.ChatModel
	renderer CardRenderer
	logger   *slog.Logger
}

// NewContentGen creates the content stage. A nil renderer disables card
// generation (the node still renders the newsletter).
func NewContentGen(chat model.ChatModel, renderer CardRenderer, logger *slog.Logger) *ContentGen {
	if logger == nil {
		logger = slog.Default()
	}
	return &ContentGen{chat: chat, renderer: renderer, logger: logger}
}

// LinkedIn drafts the LinkedIn post from the summaries, falling back to
// raw articles when summarization produced nothing.
func (c *ContentGen) LinkedIn(ctx context.Context, state State) graph.NodeResult[State] {
	if len(state.Summaries) == 0 && len(state.Deduplicated) == 0 {
		return graph.NodeResult[State]{Delta: State{ErrorLog: []string{"linkedin_gen: no content to work with"}}}
	}

	var sb strings.Builder
	if len(state.Summaries) > 0 {
		for i, s := range state.Summaries {
			if i >= 7 {
				break
			}
			if i > 0 {
				sb.WriteString("\n---\n")
			}
			fmt.Fprintf(&sb, "Headline: %s\nBody: %s\nCategory: %s", s.Headline, s.Body, s.Category)
		}
	} else {
		for i, a := range state.Deduplicated {
			if i >= 7 {
				break
			}
			if i > 0 {
				sb.WriteString("\n---\n")
			}
			fmt.Fprintf(&sb, "Title: %s\nContent: %s", a.Title, truncate(a.Content, 300))
		}
	}

	system := linkedInSystemPrompt
	if state.Feedback != "" {
		system += "\n\nRevision feedback: " + state.Feedback
	}

	out, err := c.chat.Chat(ctx, []model.Message{
		{Role: model.RoleSystem, Content: system},
		{Role: model.RoleUser, Content: "This week's top stories:\n\n" + sb.String()},
	})
	if err != nil {
		return graph.NodeResult[State]{Err: fmt.Errorf("linkedin draft: %w", err)}
	}

	draft := strings.TrimSpace(out.Text)
	if len(draft) > linkedInMaxChars {
		c.logger.Warn("linkedin post too long", "length", len(draft))
		draft = draft[:linkedInMaxChars-50] + "\n\n#AI #MachineLearning"
	}

	c.logger.Info("linkedin post generated", "chars", len(draft))
	return graph.NodeResult[State]{Delta: State{
		LinkedInDraft: draft,
		TotalTokens:   out.TokensUsed,
		TotalCost:     out.CostUSD,
		CurrentStep:   "linkedin_generated",
	}}
}

// Images renders the newsletter HTML plus branded news cards (1200x627,
// LinkedIn optimal) for the top stories.
func (c *ContentGen) Images(ctx context.Context, state State) graph.NodeResult[State] {
	if len(state.Summaries) == 0 {
		c.logger.Info("image generation skipped", "reason", "no summaries")
		return graph.NodeResult[State]{Delta: State{CurrentStep: "images_generated"}}
	}

	newsletter, err := renderNewsletter(state)
	if err != nil {
		return graph.NodeResult[State]{Err: err}
	}

	var paths []string
	if c.renderer != nil {
		for i, summary := range state.Summaries {
			if i >= 5 {
				break
			}
			var buf strings.Builder
			err := newsCardTemplate.Execute(&buf, map[string]any{
				"Category":    orDefault(summary.Category, "AI"),
				"Headline":    orDefault(summary.Headline, "AI News Update"),
				"Body":        truncate(summary.Body, 180),
				"Credibility": summary.CredibilityScore * 100,
				"RunID":       state.RunID,
			})
			if err != nil {
				return graph.NodeResult[State]{Err: fmt.Errorf("render card %d: %w", i, err)}
			}
			path, err := c.renderer.Render(fmt.Sprintf("card_%s_%d", state.RunID, i), []byte(buf.String()))
			if err != nil {
				return graph.NodeResult[State]{Err: err}
			}
			paths = append(paths, path)
		}
	}

	c.logger.Info("images generated", "count", len(paths))
	return graph.NodeResult[State]{Delta: State{
		NewsletterHTML: newsletter,
		ImagePaths:     paths,
		CurrentStep:    "images_generated",
	}}
}

func renderNewsletter(state State) (string, error) {
	var buf strings.Builder
	err := newsletterTemplate.Execute(&buf, map[string]any{
		"RunID":     state.RunID,
		"Summaries": state.Summaries,
	})
	if err != nil {
		return "", fmt.Errorf("render newsletter: %w", err)
	}
	return buf.String(), nil
}
