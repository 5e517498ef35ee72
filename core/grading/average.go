package grading

import (
	"math"
	"sort"

	"github.com/volatiletech/null/v8"
)

// CategoryAverage averages a student's entries in one category.
//
// Excused entries are skipped entirely. The remaining entries are ordered
// by percentage ascending — ties broken by creation time, then ID, so the
// same entries are always dropped — and the lowest cat.DropLowest of them
// are excluded. The second return is false when no entries survive, in
// which case the category must not contribute to the weighted sum.
func CategoryAverage(cat GradeCategory, entries []GradebookEntry) (float64, bool) {
	eligible := make([]GradebookEntry, 0, len(entries))
	for _, e := range entries {
		if e.IsExcused {
			continue
		}
		eligible = append(eligible, e)
	}

	sort.SliceStable(eligible, func(i, j int) bool {
		a, b := eligible[i], eligible[j]
		if a.Percentage != b.Percentage {
			return a.Percentage < b.Percentage
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})

	drop := cat.DropLowest
	if drop < 0 {
		drop = 0
	}
	if len(eligible) <= drop {
		return 0, false
	}
	eligible = eligible[drop:]

	var sum float64
	for _, e := range eligible {
		sum += e.Percentage
	}
	return sum / float64(len(eligible)), true
}

// WeightedAverage computes the single percentage for a set of categories
// and the student's entries in them (keyed by category ID).
//
// Categories with no surviving entries contribute to neither the weighted
// sum nor the total weight: they are excluded, not zeroed. The result is
// normalized by the weight actually present — never by the nominal 100 —
// so a partially populated gradebook still yields the mean of what exists.
// Returns an invalid Float64 ("no grade yet") when no category has any
// surviving entry.
func WeightedAverage(categories []GradeCategory, entriesByCategory map[string][]GradebookEntry) null.Float64 {
	var weightedSum, totalWeight float64
	for _, cat := range categories {
		avg, ok := CategoryAverage(cat, entriesByCategory[cat.ID])
		if !ok {
			continue
		}
		weightedSum += avg * cat.Weight / 100
		totalWeight += cat.Weight
	}
	if totalWeight == 0 {
		return null.Float64{}
	}
	return null.Float64From(round2(weightedSum / totalWeight * 100))
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}
