package pipeline

import (
	"time"

	"github.com/Viraj97-SL/AI-News-Analyzer/graph"
	"github.com/Viraj97-SL/AI-News-Analyzer/graph/emit"
	"github.com/Viraj97-SL/AI-News-Analyzer/graph/store"
)

// Deps are the wired stages the graph is built from. Construct with
// NewScrapers, NewAnalyzer, NewContentGen and NewApproval; tests swap in
// mocks per stage.
type Deps struct {
	Scrapers *Scrapers
	Analyzer *Analyzer
	Content  *ContentGen
	Approval *Approval
}

// ScraperRetry is the retry policy applied to every scraper node:
// transient network failures get three attempts with jittered exponential
// backoff.
var ScraperRetry = graph.RetryPolicy{
	MaxAttempts:     3,
	InitialInterval: 2 * time.Second,
	BackoffFactor:   2,
	Jitter:          true,
}

// Build wires the full pipeline:
//
//	plan_sources -> [scrape_tavily, scrape_rss, scrape_arxiv, scrape_serper]
//	             -> merge_results -> deduplicate -> credibility -> analyze
//	             -> summarize -> linkedin_gen -> image_gen
//	             -> human_approval -> (approve) publish -> end
//	                               -> (reject)  revise  -> summarize
func Build(deps Deps, st store.Store[State], emitter emit.Emitter, opts ...graph.Option[State]) (*graph.Engine[State], error) {
	opts = append([]graph.Option[State]{graph.WithErrorDelta[State](ErrorDelta)}, opts...)
	engine := graph.New(Reduce, st, emitter, opts...)

	nodes := []struct {
		id   string
		fn   graph.NodeFunc[State]
		opts []graph.NodeOption
	}{
		{NodePlanSources, deps.Scrapers.PlanSources, nil},
		{NodeScrapeTavily, deps.Scrapers.ScrapeTavily, []graph.NodeOption{graph.WithRetry(ScraperRetry)}},
		{NodeScrapeRSS, deps.Scrapers.ScrapeRSS, []graph.NodeOption{graph.WithRetry(ScraperRetry)}},
		{NodeScrapeArxiv, deps.Scrapers.ScrapeArxiv, []graph.NodeOption{graph.WithRetry(ScraperRetry)}},
		{NodeScrapeSerper, deps.Scrapers.ScrapeSerper, []graph.NodeOption{graph.WithRetry(ScraperRetry)}},
		{NodeMergeResults, deps.Scrapers.MergeResults, nil},
		{NodeDeduplicate, deps.Analyzer.Deduplicate, nil},
		{NodeCredibility, deps.Analyzer.Credibility, nil},
		{NodeAnalyze, deps.Analyzer.Analyze, nil},
		{NodeSummarize, deps.Analyzer.Summarize, nil},
		{NodeLinkedInGen, deps.Content.LinkedIn, nil},
		{NodeImageGen, deps.Content.Images, nil},
		{NodeHumanApproval, deps.Approval.Human, []graph.NodeOption{graph.WithDecisionValidator(ValidateDecision)}},
		{NodePublish, deps.Approval.Publish, nil},
		{NodeRevise, deps.Approval.Revise, nil},
	}
	for _, n := range nodes {
		if err := engine.Add(n.id, n.fn, n.opts...); err != nil {
			return nil, err
		}
	}

	if err := engine.StartAt(NodePlanSources); err != nil {
		return nil, err
	}

	if err := engine.FanOut(NodePlanSources, deps.Scrapers.FanOut); err != nil {
		return nil, err
	}
	for _, scraper := range []string{NodeScrapeTavily, NodeScrapeRSS, NodeScrapeArxiv, NodeScrapeSerper} {
		if err := engine.Connect(scraper, NodeMergeResults); err != nil {
			return nil, err
		}
	}

	sequential := [][2]string{
		{NodeMergeResults, NodeDeduplicate},
		{NodeDeduplicate, NodeCredibility},
		{NodeCredibility, NodeAnalyze},
		{NodeAnalyze, NodeSummarize},
		{NodeSummarize, NodeLinkedInGen},
		{NodeLinkedInGen, NodeImageGen},
		{NodeImageGen, NodeHumanApproval},
	}
	for _, edge := range sequential {
		if err := engine.Connect(edge[0], edge[1]); err != nil {
			return nil, err
		}
	}

	if err := engine.Branch(NodeHumanApproval, deps.Approval.Route, NodePublish, NodeRevise); err != nil {
		return nil, err
	}
	if err := engine.Connect(NodePublish, graph.End); err != nil {
		return nil, err
	}
	// Revision loop back to the summarizer. Unbounded: the human gates
	// every iteration, so WithMaxSteps is the only backstop.
	if err := engine.Connect(NodeRevise, NodeSummarize); err != nil {
		return nil, err
	}

	return engine, nil
}
