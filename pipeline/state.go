// Package pipeline implements the AI news workflow: parallel scraping,
// deduplication, credibility scoring, LLM summarization, content
// generation, and human-approved publishing.
package pipeline

// Article is one scraped news item flowing through the pipeline.
type Article struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Source  string `json:"source"` // e.g. "tavily", "rss:techcrunch_ai", "arxiv", "serper"
	Content string `json:"content"`

	// PublishedAt is ISO-8601; kept as a string because feeds disagree
	// wildly on formats and only recency ranking interprets it.
	PublishedAt string `json:"published_at"`

	CredibilityScore float64 `json:"credibility_score"`
	Category         string  `json:"category,omitempty"`
	RelevanceScore   float64 `json:"relevance_score,omitempty"`
}

// Summary is one newsletter-ready story produced by the summarize node.
type Summary struct {
	Headline         string   `json:"headline"`
	Body             string   `json:"body"`
	Category         string   `json:"category"`
	SourceURLs       []string `json:"source_urls"`
	CredibilityScore float64  `json:"credibility_score"`
}

// State is the pipeline's workflow state. Nodes return partial State
// values (deltas) that Reduce folds into the run state; the zero value of
// a field means "no change", so a node only sets what it produced.
type State struct {
	RunID       string `json:"run_id"`
	TriggerType string `json:"trigger_type"` // "scheduled" or "manual"

	// RawArticles accumulates across the parallel scrapers (append
	// discipline). Everything else overwrites.
	RawArticles  []Article `json:"raw_articles"`
	Deduplicated []Article `json:"deduplicated_articles"`
	Summaries    []Summary `json:"summaries"`

	NewsletterHTML string   `json:"newsletter_html"`
	LinkedInDraft  string   `json:"linkedin_draft"`
	ImagePaths     []string `json:"image_paths"`

	ApprovalStatus string `json:"approval_status"` // "pending", "approved", "rejected"
	Feedback       string `json:"feedback"`

	// ErrorLog accumulates (append discipline); node failures land here
	// instead of aborting the run.
	ErrorLog []string `json:"error_log"`

	// TotalTokens, TotalCost, and RevisionCount accumulate: deltas carry
	// increments. TotalCost is LLM spend in USD.
	TotalTokens   int     `json:"total_tokens"`
	TotalCost     float64 `json:"total_cost"`
	RevisionCount int     `json:"revision_count"`
	CurrentStep   string  `json:"current_step"`
}

// Reduce merges a node's delta into the previous state. Used as the
// engine's reducer, so it runs once per completed task in launch order.
func Reduce(prev, delta State) State {
	next := prev

	if delta.RunID != "" {
		next.RunID = delta.RunID
	}
	if delta.TriggerType != "" {
		next.TriggerType = delta.TriggerType
	}

	next.RawArticles = append(next.RawArticles, delta.RawArticles...)
	if delta.Deduplicated != nil {
		next.Deduplicated = delta.Deduplicated
	}
	if delta.Summaries != nil {
		next.Summaries = delta.Summaries
	}

	if delta.NewsletterHTML != "" {
		next.NewsletterHTML = delta.NewsletterHTML
	}
	if delta.LinkedInDraft != "" {
		next.LinkedInDraft = delta.LinkedInDraft
	}
	if delta.ImagePaths != nil {
		next.ImagePaths = delta.ImagePaths
	}

	if delta.ApprovalStatus != "" {
		next.ApprovalStatus = delta.ApprovalStatus
	}
	if delta.Feedback != "" {
		next.Feedback = delta.Feedback
	}

	next.ErrorLog = append(next.ErrorLog, delta.ErrorLog...)
	next.TotalTokens += delta.TotalTokens
	next.TotalCost += delta.TotalCost
	next.RevisionCount += delta.RevisionCount
	if delta.CurrentStep != "" {
		next.CurrentStep = delta.CurrentStep
	}

	return next
}

// ErrorDelta records a node failure in the error log. Wired into the
// engine so exhausted retries become state instead of aborting the run.
func ErrorDelta(nodeID string, err error) State {
	return State{ErrorLog: []string{nodeID + ": " + err.Error()}}
}
