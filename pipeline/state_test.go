package pipeline

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReduce_AppendsRawArticlesAndErrors(t *testing.T) {
	prev := State{
		RawArticles: []Article{{Title: "first"}},
		ErrorLog:    []string{"scrape_tavily: timeout"},
	}
	delta := State{
		RawArticles: []Article{{Title: "second"}, {Title: "third"}},
		ErrorLog:    []string{"scrape_rss: bad feed"},
	}

	next := Reduce(prev, delta)

	assert.Len(t, next.RawArticles, 3)
	assert.Equal(t, "first", next.RawArticles[0].Title)
	assert.Equal(t, "third", next.RawArticles[2].Title)
	assert.Equal(t, []string{"scrape_tavily: timeout", "scrape_rss: bad feed"}, next.ErrorLog)
}

func TestReduce_OverwritesSlicesWhenSet(t *testing.T) {
	prev := State{
		Deduplicated: []Article{{Title: "old"}},
		Summaries:    []Summary{{Headline: "old"}},
		ImagePaths:   []string{"old.html"},
	}
	delta := State{
		Deduplicated: []Article{{Title: "new"}},
	}

	next := Reduce(prev, delta)

	assert.Equal(t, "new", next.Deduplicated[0].Title)
	// A nil slice in the delta means "no change".
	assert.Equal(t, "old", next.Summaries[0].Headline)
	assert.Equal(t, []string{"old.html"}, next.ImagePaths)
}

func TestReduce_OverwritesStringsWhenNonEmpty(t *testing.T) {
	prev := State{
		RunID:          "run-1",
		LinkedInDraft:  "draft v1",
		ApprovalStatus: "pending",
		CurrentStep:    "summarized",
	}
	delta := State{
		LinkedInDraft: "draft v2",
		CurrentStep:   "linkedin_generated",
	}

	next := Reduce(prev, delta)

	assert.Equal(t, "run-1", next.RunID)
	assert.Equal(t, "draft v2", next.LinkedInDraft)
	assert.Equal(t, "pending", next.ApprovalStatus)
	assert.Equal(t, "linkedin_generated", next.CurrentStep)
}

func TestReduce_AccumulatesCounters(t *testing.T) {
	prev := State{TotalTokens: 1000, TotalCost: 0.02, RevisionCount: 1}
	delta := State{TotalTokens: 250, TotalCost: 0.005, RevisionCount: 1}

	next := Reduce(prev, delta)

	assert.Equal(t, 1250, next.TotalTokens)
	assert.InDelta(t, 0.025, next.TotalCost, 1e-9)
	assert.Equal(t, 2, next.RevisionCount)
}

func TestReduce_ZeroDeltaIsIdentity(t *testing.T) {
	prev := State{
		RunID:       "run-1",
		RawArticles: []Article{{Title: "a"}},
		TotalTokens: 42,
		Feedback:    "shorter",
	}

	next := Reduce(prev, State{})

	assert.Equal(t, prev, next)
}

func TestErrorDelta(t *testing.T) {
	delta := ErrorDelta("scrape_arxiv", errors.New("connection refused"))

	assert.Equal(t, []string{"scrape_arxiv: connection refused"}, delta.ErrorLog)
	assert.Empty(t, delta.RawArticles)
	assert.Zero(t, delta.TotalTokens)
}
