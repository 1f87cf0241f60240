package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/Viraj97-SL/AI-News-Analyzer/graph"
)

// Node names for the scraping stage.
const (
	NodePlanSources  = "plan_sources"
	NodeScrapeTavily = "scrape_tavily"
	NodeScrapeRSS    = "scrape_rss"
	NodeScrapeArxiv  = "scrape_arxiv"
	NodeScrapeSerper = "scrape_serper"
	NodeMergeResults = "merge_results"
)

const (
	defaultTavilyURL = "https://api.tavily.com/search"
	defaultSerperURL = "https://google.serper.dev/news"
	defaultArxivURL  = "http://export.arxiv.org/api/query"

	perFeedCap = 10
)

var tavilyQueries = []string{
	"artificial intelligence machine learning news",
	"large language model LLM new release",
	"AI startup funding product launch",
	"generative AI tools research breakthrough",
}

// Scrapers holds the shared dependencies of the scraping nodes. The URL
// fields exist so tests can point the scrapers at an httptest server.
type Scrapers struct {
	cfg    Config
	client *http.Client
	logger *slog.Logger

	TavilyURL string
	SerperURL string
	ArxivURL  string

	// now is stubbed in tests to pin the recency cutoff.
	now func() time.Time
}

// NewScrapers creates the scraping stage. A nil client gets a 20 second
// timeout default; a nil logger falls back to slog.Default().
func NewScrapers(cfg Config, client *http.Client, logger *slog.Logger) *Scrapers {
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scrapers{
		cfg:       cfg,
		client:    client,
		logger:    logger,
		TavilyURL: defaultTavilyURL,
		SerperURL: defaultSerperURL,
		ArxivURL:  defaultArxivURL,
		now:       time.Now,
	}
}

func (s *Scrapers) cutoff() time.Time {
	return s.now().UTC().AddDate(0, 0, -s.cfg.LookbackDays)
}

// PlanSources marks the run as started. It exists as the single entry
// node the fan-out expander hangs off.
func (s *Scrapers) PlanSources(ctx context.Context, state State) graph.NodeResult[State] {
	s.logger.Info("planning sources",
		"run_id", state.RunID,
		"tavily", s.cfg.TavilyAPIKey != "",
		"serper", s.cfg.SerperAPIKey != "",
		"rss_feeds", len(s.cfg.RSSFeeds))
	return graph.NodeResult[State]{Delta: State{CurrentStep: "planned"}}
}

// FanOut returns one Send per configured source. Sources without keys are
// skipped here rather than failing inside their node.
func (s *Scrapers) FanOut(state State) []graph.Send[State] {
	sends := []graph.Send[State]{
		{Node: NodeScrapeRSS, State: state},
		{Node: NodeScrapeArxiv, State: state},
	}
	if s.cfg.TavilyAPIKey != "" {
		sends = append(sends, graph.Send[State]{Node: NodeScrapeTavily, State: state})
	}
	if s.cfg.SerperAPIKey != "" {
		sends = append(sends, graph.Send[State]{Node: NodeScrapeSerper, State: state})
	}
	return sends
}

// ScrapeTavily searches AI/ML news through the Tavily REST API. One query
// failing is logged and skipped; the node errors only when the whole
// service is unreachable, which lets the retry policy engage.
func (s *Scrapers) ScrapeTavily(ctx context.Context, state State) graph.NodeResult[State] {
	var (
		articles []Article
		errLog   []string
		seen     = map[string]bool{}
		failed   int
	)

	for _, query := range tavilyQueries {
		results, err := s.tavilyQuery(ctx, query)
		if err != nil {
			s.logger.Warn("tavily query failed", "query", query, "error", err)
			errLog = append(errLog, fmt.Sprintf("tavily query %q: %v", query, err))
			failed++
			continue
		}
		for _, r := range results {
			if r.URL == "" || seen[r.URL] {
				continue
			}
			if tooOld(r.PublishedDate, s.cutoff()) {
				continue
			}
			seen[r.URL] = true
			published := r.PublishedDate
			if published == "" {
				published = s.now().UTC().Format(time.RFC3339)
			}
			articles = append(articles, Article{
				Title:       orUntitled(r.Title),
				URL:         r.URL,
				Source:      "tavily",
				Content:     r.Content,
				PublishedAt: published,
			})
		}
	}

	if failed == len(tavilyQueries) {
		return graph.NodeResult[State]{Err: fmt.Errorf("all %d tavily queries failed", failed)}
	}

	s.logger.Info("tavily scraped", "articles", len(articles))
	return graph.NodeResult[State]{Delta: State{RawArticles: articles, ErrorLog: errLog}}
}

type tavilyResult struct {
	Title         string `json:"title"`
	URL           string `json:"url"`
	Content       string `json:"content"`
	PublishedDate string `json:"published_date"`
}

func (s *Scrapers) tavilyQuery(ctx context.Context, query string) ([]tavilyResult, error) {
	body, err := json.Marshal(map[string]any{
		"api_key":        s.cfg.TavilyAPIKey,
		"query":          query,
		"search_depth":   "advanced",
		"topic":          "news",
		"days":           s.cfg.LookbackDays,
		"max_results":    8,
		"include_answer": false,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.TavilyURL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("tavily returned %s", resp.Status)
	}

	var payload struct {
		Results []tavilyResult `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode tavily response: %w", err)
	}
	return payload.Results, nil
}

// rssDocument covers both RSS 2.0 and Atom; unknown elements are ignored
// by encoding/xml, so one struct handles either shape.
type rssDocument struct {
	Channel struct {
		Items []rssItem `xml:"item"`
	} `xml:"channel"`
	Entries []atomEntry `xml:"entry"`
}

type rssItem struct {
	Title       string `xml:"title"`
	Link        string `xml:"link"`
	Description string `xml:"description"`
	PubDate     string `xml:"pubDate"`
}

type atomEntry struct {
	Title     string     `xml:"title"`
	Links     []atomLink `xml:"link"`
	Summary   string     `xml:"summary"`
	Content   string     `xml:"content"`
	Updated   string     `xml:"updated"`
	Published string     `xml:"published"`
	ID        string     `xml:"id"`
}

type atomLink struct {
	Href string `xml:"href,attr"`
	Rel  string `xml:"rel,attr"`
}

// ScrapeRSS parses the curated feed list. Individual feed failures are
// recorded and skipped; the node errors only when every feed fails.
func (s *Scrapers) ScrapeRSS(ctx context.Context, state State) graph.NodeResult[State] {
	var (
		articles []Article
		errLog   []string
		failed   int
	)

	for _, feed := range s.cfg.RSSFeeds {
		items, err := s.fetchFeed(ctx, feed.URL)
		if err != nil {
			s.logger.Warn("rss feed failed", "feed", feed.Name, "error", err)
			errLog = append(errLog, fmt.Sprintf("rss %s: %v", feed.Name, err))
			failed++
			continue
		}
		source := "rss:" + slugify(feed.Name)
		count := 0
		for _, item := range items {
			if count >= perFeedCap {
				break
			}
			if tooOld(item.PublishedAt, s.cutoff()) {
				continue
			}
			item.Source = source
			articles = append(articles, item)
			count++
		}
	}

	if len(s.cfg.RSSFeeds) > 0 && failed == len(s.cfg.RSSFeeds) {
		return graph.NodeResult[State]{Err: fmt.Errorf("all %d rss feeds failed", failed)}
	}

	s.logger.Info("rss scraped", "articles", len(articles), "feeds", len(s.cfg.RSSFeeds))
	return graph.NodeResult[State]{Delta: State{RawArticles: articles, ErrorLog: errLog}}
}

func (s *Scrapers) fetchFeed(ctx context.Context, url string) ([]Article, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("feed returned %s", resp.Status)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, err
	}

	var doc rssDocument
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}

	var articles []Article
	for _, item := range doc.Channel.Items {
		articles = append(articles, Article{
			Title:       orUntitled(item.Title),
			URL:         item.Link,
			Content:     item.Description,
			PublishedAt: normalizeDate(item.PubDate, s.now),
		})
	}
	for _, entry := range doc.Entries {
		published := entry.Published
		if published == "" {
			published = entry.Updated
		}
		content := entry.Summary
		if content == "" {
			content = entry.Content
		}
		articles = append(articles, Article{
			Title:       orUntitled(entry.Title),
			URL:         atomHref(entry),
			Content:     content,
			PublishedAt: normalizeDate(published, s.now),
		})
	}
	return articles, nil
}

// ScrapeArxiv fetches recent AI/ML papers from the arXiv Atom API.
func (s *Scrapers) ScrapeArxiv(ctx context.Context, state State) graph.NodeResult[State] {
	url := s.ArxivURL +
		"?search_query=cat:cs.AI+OR+cat:cs.LG+OR+cat:cs.CL+OR+cat:cs.CV" +
		"&sortBy=submittedDate&sortOrder=descending&max_results=10"

	items, err := s.fetchFeed(ctx, url)
	if err != nil {
		return graph.NodeResult[State]{Err: fmt.Errorf("arxiv query: %w", err)}
	}

	var articles []Article
	for _, item := range items {
		if tooOld(item.PublishedAt, s.cutoff()) {
			continue
		}
		item.Source = "arxiv"
		// arXiv papers are peer-adjacent; seed a baseline before the
		// credibility node rescoring.
		item.CredibilityScore = 0.8
		articles = append(articles, item)
	}

	s.logger.Info("arxiv scraped", "articles", len(articles))
	return graph.NodeResult[State]{Delta: State{RawArticles: articles}}
}

// ScrapeSerper searches Google News through Serper as a gap-filler.
func (s *Scrapers) ScrapeSerper(ctx context.Context, state State) graph.NodeResult[State] {
	body, err := json.Marshal(map[string]any{"q": "AI machine learning news", "num": 10})
	if err != nil {
		return graph.NodeResult[State]{Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.SerperURL, bytes.NewReader(body))
	if err != nil {
		return graph.NodeResult[State]{Err: err}
	}
	req.Header.Set("X-API-KEY", s.cfg.SerperAPIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return graph.NodeResult[State]{Err: fmt.Errorf("serper query: %w", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return graph.NodeResult[State]{Err: fmt.Errorf("serper returned %s", resp.Status)}
	}

	var payload struct {
		News []struct {
			Title   string `json:"title"`
			Link    string `json:"link"`
			Snippet string `json:"snippet"`
			Date    string `json:"date"`
		} `json:"news"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return graph.NodeResult[State]{Err: fmt.Errorf("decode serper response: %w", err)}
	}

	var articles []Article
	for _, item := range payload.News {
		published := item.Date
		if published == "" {
			published = s.now().UTC().Format(time.RFC3339)
		}
		articles = append(articles, Article{
			Title:       orUntitled(item.Title),
			URL:         item.Link,
			Source:      "serper",
			Content:     item.Snippet,
			PublishedAt: published,
		})
	}

	s.logger.Info("serper scraped", "articles", len(articles))
	return graph.NodeResult[State]{Delta: State{RawArticles: articles}}
}

// MergeResults logs fan-in stats; the actual merging already happened in
// the reducer's append discipline.
func (s *Scrapers) MergeResults(ctx context.Context, state State) graph.NodeResult[State] {
	sources := map[string]bool{}
	for _, a := range state.RawArticles {
		sources[a.Source] = true
	}
	s.logger.Info("articles merged", "total", len(state.RawArticles), "sources", len(sources))
	return graph.NodeResult[State]{Delta: State{CurrentStep: "merged"}}
}

func orUntitled(title string) string {
	if title == "" {
		return "Untitled"
	}
	return title
}

func atomHref(entry atomEntry) string {
	for _, l := range entry.Links {
		if l.Rel == "" || l.Rel == "alternate" {
			return l.Href
		}
	}
	if len(entry.Links) > 0 {
		return entry.Links[0].Href
	}
	return entry.ID
}

var feedDateLayouts = []string{
	time.RFC3339,
	time.RFC1123Z,
	time.RFC1123,
	"2006-01-02T15:04:05Z",
	"2006-01-02",
}

func parseFeedDate(raw string) (time.Time, bool) {
	for _, layout := range feedDateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// normalizeDate converts a feed date to RFC3339, falling back to now for
// unparseable values.
func normalizeDate(raw string, now func() time.Time) string {
	if t, ok := parseFeedDate(raw); ok {
		return t.Format(time.RFC3339)
	}
	return now().UTC().Format(time.RFC3339)
}

// tooOld reports whether the article predates the cutoff. Unparseable
// dates keep the article.
func tooOld(raw string, cutoff time.Time) bool {
	t, ok := parseFeedDate(raw)
	if !ok {
		return false
	}
	return t.Before(cutoff)
}

func slugify(name string) string {
	out := make([]rune, 0, len(name))
	for _, r := range name {
		switch {
		case r >= 'A' && r <= 'Z':
			out = append(out, r+('a'-'A'))
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			out = append(out, r)
		case r == ' ' || r == '-' || r == '_':
			out = append(out, '_')
		}
	}
	return string(out)
}
