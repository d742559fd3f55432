package cycle

import (
	"sort"
	"unicode/utf8"

	"github.com/RobinCoderZhao/portal-autopost/internal/autoposter/analyzer"
	"github.com/RobinCoderZhao/portal-autopost/internal/autoposter/content"
	"github.com/RobinCoderZhao/portal-autopost/internal/autoposter/sources"
)

// Candidate is an analyzed item ready for selection.
type Candidate struct {
	Item     sources.Item
	Analysis *analyzer.Analysis
	Score    int
	Priority int
}

// Score computes the relevance heuristic of an analysis.
func Score(an *analyzer.Analysis) int {
	score := 0
	if an.IsUrgent {
		score += 100
	}
	if utf8.RuneCountInString(an.Title) > 30 {
		score += 10
	}
	if utf8.RuneCountInString(an.Excerpt) > 100 {
		score += 10
	}
	if utf8.RuneCountInString(an.Body) > 500 {
		score += 15
	}
	if content.IsImportant(an.Category) {
		score += 5
	}
	return score
}

// NewCandidate scores an analyzed item.
func NewCandidate(item sources.Item, an *analyzer.Analysis) Candidate {
	c := Candidate{Item: item, Analysis: an, Score: Score(an)}
	c.Priority = c.Score
	if an.IsUrgent {
		c.Priority = 100
	}
	return c
}

// Select orders candidates urgent first, then by descending score, keeping
// fetch order among equals, and returns the top one.
func Select(candidates []Candidate) (Candidate, bool) {
	if len(candidates) == 0 {
		return Candidate{}, false
	}
	ranked := make([]Candidate, len(candidates))
	copy(ranked, candidates)
	sort.SliceStable(ranked, func(i, j int) bool {
		ui, uj := ranked[i].Analysis.IsUrgent, ranked[j].Analysis.IsUrgent
		if ui != uj {
			return ui
		}
		return ranked[i].Score > ranked[j].Score
	})
	return ranked[0], true
}
