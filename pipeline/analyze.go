package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/Viraj97-SL/AI-News-Analyzer/graph"
	"github.com/Viraj97-SL/AI-News-Analyzer/model"
)

// Node names for the analysis stage.
const (
	NodeDeduplicate = "deduplicate"
	NodeCredibility = "credibility"
	NodeAnalyze     = "analyze"
	NodeSummarize   = "summarize"
)

// sourceReputation maps domains to 0-1 reputation scores, sourced from
// NewsGuard / MBFC / domain authority. Expand as sources are onboarded.
var sourceReputation = map[string]float64{
	// Tier 1: established tech journalism
	"techcrunch.com":       0.85,
	"venturebeat.com":      0.80,
	"theverge.com":         0.82,
	"wired.com":            0.85,
	"arstechnica.com":      0.88,
	"technologyreview.com": 0.90,
	// Tier 2: major news
	"reuters.com":        0.95,
	"bbc.com":            0.92,
	"nytimes.com":        0.90,
	"washingtonpost.com": 0.88,
	// Tier 3: tech blogs and aggregators
	"thenewstack.io":         0.72,
	"medium.com":             0.50,
	"towardsdatascience.com": 0.55,
	"dev.to":                 0.45,
	// Tier 4: research
	"arxiv.org":      0.80,
	"openreview.net": 0.82,
	"nature.com":     0.95,
	"science.org":    0.95,
}

const defaultReputation = 0.40

var validCategories = map[string]bool{
	"LLM": true, "Computer Vision": true, "Robotics": true,
	"AI Policy": true, "AI Startup": true, "Research Paper": true,
	"Industry News": true, "Other": true,
}

// Analyzer holds the analysis-stage nodes: deduplication, credibility
// scoring, topic classification and summarization.
type Analyzer struct {
	cfg        Config
	classifier model.ChatModel
	summarizer model.ChatModel
	logger     *slog.Logger
	now        func() time.Time
}

// NewAnalyzer creates the analysis stage. classifier and summarizer may be
// the same model; they are split so cheap classification can run on a
// smaller model.
func NewAnalyzer(cfg Config, classifier, summarizer model.ChatModel, logger *slog.Logger) *Analyzer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Analyzer{
		cfg:        cfg,
		classifier: classifier,
		summarizer: summarizer,
		logger:     logger,
		now:        time.Now,
	}
}

// Deduplicate removes duplicate articles by content hash and normalized
// title.
func (a *Analyzer) Deduplicate(ctx context.Context, state State) graph.NodeResult[State] {
	seenHashes := map[string]bool{}
	seenTitles := map[string]bool{}
	var unique []Article

	for _, article := range state.RawArticles {
		contentHash := hashContent(article.Content)
		titleKey := strings.ToLower(strings.TrimSpace(article.Title))

		if seenHashes[contentHash] || seenTitles[titleKey] {
			continue
		}
		seenHashes[contentHash] = true
		seenTitles[titleKey] = true
		unique = append(unique, article)
	}

	a.logger.Info("deduplication complete",
		"raw", len(state.RawArticles),
		"unique", len(unique),
		"removed", len(state.RawArticles)-len(unique))
	return graph.NodeResult[State]{Delta: State{Deduplicated: unique, CurrentStep: "deduplicated"}}
}

func hashContent(content string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(content)))
	return hex.EncodeToString(sum[:])
}

// Credibility scores each article with the three-layer composite:
// 0.4 * source reputation + 0.3 * cross-reference + 0.3 * factual
// consistency. Layer 1 is fully implemented; layers 2 and 3 currently
// contribute a neutral 0.5.
func (a *Analyzer) Credibility(ctx context.Context, state State) graph.NodeResult[State] {
	if len(state.Deduplicated) == 0 {
		return graph.NodeResult[State]{Delta: State{ErrorLog: []string{"credibility: no articles to score"}}}
	}

	scored := make([]Article, len(state.Deduplicated))
	for i, article := range state.Deduplicated {
		sourceScore := reputationFor(article.URL)
		crossRefScore := 0.5
		factualScore := 0.5

		article.CredibilityScore = round3(0.4*sourceScore + 0.3*crossRefScore + 0.3*factualScore)
		scored[i] = article
	}

	above := 0
	for _, s := range scored {
		if s.CredibilityScore >= 0.4 {
			above++
		}
	}
	a.logger.Info("credibility scored", "total", len(scored), "above_threshold", above)
	return graph.NodeResult[State]{Delta: State{Deduplicated: scored, CurrentStep: "credibility_scored"}}
}

// reputationFor looks up the domain score, falling back to the parent
// domain (blog.google -> google.com) and then the default.
func reputationFor(rawURL string) float64 {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return defaultReputation
	}
	domain := strings.TrimPrefix(strings.ToLower(u.Host), "www.")

	if score, ok := sourceReputation[domain]; ok {
		return score
	}
	parts := strings.Split(domain, ".")
	if len(parts) > 2 {
		parent := strings.Join(parts[len(parts)-2:], ".")
		if score, ok := sourceReputation[parent]; ok {
			return score
		}
	}
	return defaultReputation
}

func round3(f float64) float64 {
	return float64(int(f*1000+0.5)) / 1000
}

// Analyze categorizes articles and ranks their relevance using the
// classifier model, enriching each article with Category and
// RelevanceScore.
func (a *Analyzer) Analyze(ctx context.Context, state State) graph.NodeResult[State] {
	articles := state.Deduplicated
	if len(articles) == 0 {
		return graph.NodeResult[State]{Delta: State{ErrorLog: []string{"analyze: no articles to process"}}}
	}

	batch := articles
	if len(batch) > 50 {
		batch = batch[:50]
	}

	var sb strings.Builder
	for i, art := range batch {
		fmt.Fprintf(&sb, "[%d] %s — %s\n", i, art.Title, truncate(art.Content, 200))
	}

	out, err := a.classifier.Chat(ctx, []model.Message{
		{Role: model.RoleSystem, Content: "You are an AI/ML news analyst. For each article below, output a JSON array " +
			"where each element has: index (int), category (one of: LLM, Computer Vision, " +
			"Robotics, AI Policy, AI Startup, Research Paper, Industry News, Other), " +
			"and relevance_score (0.0-1.0, how important this is for AI practitioners). " +
			"Output ONLY valid JSON, no markdown fences."},
		{Role: model.RoleUser, Content: sb.String()},
	})
	if err != nil {
		return graph.NodeResult[State]{Err: fmt.Errorf("classification: %w", err)}
	}

	var parsed []struct {
		Index          int     `json:"index"`
		Category       string  `json:"category"`
		RelevanceScore float64 `json:"relevance_score"`
	}
	if err := json.Unmarshal([]byte(stripFences(out.Text)), &parsed); err != nil {
		return graph.NodeResult[State]{Err: fmt.Errorf("parse classification response: %w", err)}
	}

	enriched := make([]Article, len(articles))
	copy(enriched, articles)
	for _, item := range parsed {
		if item.Index < 0 || item.Index >= len(enriched) {
			continue
		}
		category := item.Category
		if !validCategories[category] {
			category = "Other"
		}
		enriched[item.Index].Category = category
		enriched[item.Index].RelevanceScore = item.RelevanceScore
	}

	a.logger.Info("analysis complete", "analyzed", len(batch), "enriched", len(parsed))
	return graph.NodeResult[State]{Delta: State{
		Deduplicated: enriched,
		TotalTokens:  out.TokensUsed,
		TotalCost:    out.CostUSD,
		CurrentStep:  "analyzed",
	}}
}

// rankScore is the composite ranking: 35% credibility + 40% relevance +
// 25% recency, with recency decaying linearly to zero over the lookback
// window.
func (a *Analyzer) rankScore(article Article) float64 {
	credibility := article.CredibilityScore
	relevance := article.RelevanceScore
	if relevance == 0 {
		relevance = 0.5
	}

	recency := 0.5
	if t, ok := parseFeedDate(article.PublishedAt); ok {
		ageDays := a.now().UTC().Sub(t).Hours() / 24
		recency = 1.0 - ageDays/float64(a.cfg.LookbackDays)
		if recency < 0 {
			recency = 0
		}
	}

	return 0.35*credibility + 0.40*relevance + 0.25*recency
}

const summarizeSystemPrompt = `You are a senior AI/ML journalist writing a weekly newsletter.
For each article provided, write a concise summary consisting of:
1. A compelling headline (max 80 chars)
2. A 2-3 sentence body capturing the key insight, why it matters, and any numbers/dates
3. Categorise as one of: LLM, Computer Vision, Robotics, AI Policy, AI Startup, Research, Industry

Output a JSON array with objects: {headline, body, category, source_url, credibility_score}.
Rank by importance — lead with the biggest story. Output ONLY valid JSON.`

// Summarize generates newsletter-ready summaries from the top-ranked
// articles. Revision feedback from a rejected draft is appended to the
// system prompt, which is how the revision loop changes the output.
func (a *Analyzer) Summarize(ctx context.Context, state State) graph.NodeResult[State] {
	articles := state.Deduplicated
	if len(articles) == 0 {
		return graph.NodeResult[State]{Delta: State{ErrorLog: []string{"summarize: no articles to process"}}}
	}

	ranked := make([]Article, len(articles))
	copy(ranked, articles)
	sort.SliceStable(ranked, func(i, j int) bool {
		return a.rankScore(ranked[i]) > a.rankScore(ranked[j])
	})
	if len(ranked) > a.cfg.MaxArticlesPerRun {
		ranked = ranked[:a.cfg.MaxArticlesPerRun]
	}

	var sb strings.Builder
	for i, art := range ranked {
		if i > 0 {
			sb.WriteString("\n---\n")
		}
		fmt.Fprintf(&sb, "Title: %s\nSource: %s\nURL: %s\nCredibility: %.2f\nContent: %s",
			art.Title, art.Source, art.URL, art.CredibilityScore, truncate(art.Content, 500))
	}

	system := summarizeSystemPrompt
	if state.Feedback != "" {
		system += "\n\nHuman feedback from previous draft: " + state.Feedback
	}

	out, err := a.summarizer.Chat(ctx, []model.Message{
		{Role: model.RoleSystem, Content: system},
		{Role: model.RoleUser, Content: "Here are today's articles:\n\n" + sb.String()},
	})
	if err != nil {
		return graph.NodeResult[State]{Err: fmt.Errorf("summarization: %w", err)}
	}

	var parsed []struct {
		Headline         string  `json:"headline"`
		Body             string  `json:"body"`
		Category         string  `json:"category"`
		SourceURL        string  `json:"source_url"`
		CredibilityScore float64 `json:"credibility_score"`
	}
	if err := json.Unmarshal([]byte(stripFences(out.Text)), &parsed); err != nil {
		return graph.NodeResult[State]{Err: fmt.Errorf("parse summaries: %w", err)}
	}

	summaries := make([]Summary, 0, len(parsed))
	for _, item := range parsed {
		summaries = append(summaries, Summary{
			Headline:         item.Headline,
			Body:             item.Body,
			Category:         orDefault(item.Category, "Industry"),
			SourceURLs:       []string{item.SourceURL},
			CredibilityScore: item.CredibilityScore,
		})
	}

	a.logger.Info("summarization complete", "input", len(ranked), "summaries", len(summaries))
	return graph.NodeResult[State]{Delta: State{
		Summaries:   summaries,
		TotalTokens: out.TokensUsed,
		TotalCost:   out.CostUSD,
		CurrentStep: "summarized",
	}}
}

// stripFences removes markdown code fences models sometimes wrap JSON in.
func stripFences(text string) string {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	return strings.TrimSpace(text)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
