package grading

import (
	"testing"
	"time"

	"github.com/volatiletech/null/v8"
)

func entry(id string, pct float64, excused bool, createdAt time.Time) GradebookEntry {
	return GradebookEntry{ID: id, Percentage: pct, IsExcused: excused, CreatedAt: createdAt}
}

func TestCategoryAverage(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		cat     GradeCategory
		entries []GradebookEntry
		want    float64
		wantOK  bool
	}{
		{
			name:   "no entries",
			cat:    GradeCategory{DropLowest: 0},
			wantOK: false,
		},
		{
			name: "simple mean",
			cat:  GradeCategory{DropLowest: 0},
			entries: []GradebookEntry{
				entry("a", 80, false, now),
				entry("b", 90, false, now.Add(time.Hour)),
			},
			want:   85,
			wantOK: true,
		},
		{
			name: "drop lowest",
			cat:  GradeCategory{DropLowest: 1},
			entries: []GradebookEntry{
				entry("a", 50, false, now),
				entry("b", 80, false, now.Add(time.Hour)),
				entry("c", 90, false, now.Add(2*time.Hour)),
			},
			want:   85,
			wantOK: true,
		},
		{
			name: "drop two lowest",
			cat:  GradeCategory{DropLowest: 2},
			entries: []GradebookEntry{
				entry("a", 10, false, now),
				entry("b", 20, false, now.Add(time.Hour)),
				entry("c", 90, false, now.Add(2*time.Hour)),
				entry("d", 100, false, now.Add(3*time.Hour)),
			},
			want:   95,
			wantOK: true,
		},
		{
			name: "excused entries are skipped",
			cat:  GradeCategory{DropLowest: 0},
			entries: []GradebookEntry{
				entry("a", 0, true, now),
				entry("b", 90, false, now.Add(time.Hour)),
			},
			want:   90,
			wantOK: true,
		},
		{
			name: "all entries excused",
			cat:  GradeCategory{DropLowest: 0},
			entries: []GradebookEntry{
				entry("a", 80, true, now),
				entry("b", 90, true, now.Add(time.Hour)),
			},
			wantOK: false,
		},
		{
			name: "drop swallows all entries",
			cat:  GradeCategory{DropLowest: 2},
			entries: []GradebookEntry{
				entry("a", 80, false, now),
				entry("b", 90, false, now.Add(time.Hour)),
			},
			wantOK: false,
		},
		{
			name: "excused entry does not count against the drop",
			cat:  GradeCategory{DropLowest: 1},
			entries: []GradebookEntry{
				entry("a", 0, true, now),
				entry("b", 50, false, now.Add(time.Hour)),
				entry("c", 90, false, now.Add(2*time.Hour)),
			},
			want:   90,
			wantOK: true,
		},
		{
			name: "negative drop treated as zero",
			cat:  GradeCategory{DropLowest: -3},
			entries: []GradebookEntry{
				entry("a", 80, false, now),
				entry("b", 90, false, now.Add(time.Hour)),
			},
			want:   85,
			wantOK: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := CategoryAverage(tt.cat, tt.entries)
			if ok != tt.wantOK {
				t.Fatalf("CategoryAverage() ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && got != tt.want {
				t.Errorf("CategoryAverage() = %v, want %v", got, tt.want)
			}
		})
	}
}

// Equal percentages are dropped oldest-first, then by ID, so recomputing
// always drops the same entries.
func TestCategoryAverage_deterministicTieBreak(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	cat := GradeCategory{DropLowest: 1}

	entries := []GradebookEntry{
		entry("b", 50, false, now.Add(time.Hour)), // newer duplicate survives
		entry("a", 50, false, now),                // dropped
		entry("c", 100, false, now.Add(2*time.Hour)),
	}
	want := 75.0

	for i := 0; i < 5; i++ {
		got, ok := CategoryAverage(cat, entries)
		if !ok {
			t.Fatal("CategoryAverage() ok = false, want true")
		}
		if got != want {
			t.Errorf("CategoryAverage() = %v, want %v", got, want)
		}
	}

	// same percentage and creation time: lowest ID is dropped
	entries = []GradebookEntry{
		entry("y", 50, false, now),
		entry("x", 50, false, now), // dropped
		entry("z", 100, false, now),
	}
	got, _ := CategoryAverage(cat, entries)
	if got != want {
		t.Errorf("CategoryAverage() = %v, want %v", got, want)
	}
}

func TestWeightedAverage(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	homework := GradeCategory{ID: "hw", Name: "Homework", Weight: 40}
	exams := GradeCategory{ID: "ex", Name: "Exams", Weight: 60}
	quizzes := GradeCategory{ID: "qz", Name: "Quizzes", Weight: 20, DropLowest: 1}

	tests := []struct {
		name       string
		categories []GradeCategory
		entries    map[string][]GradebookEntry
		want       null.Float64
	}{
		{
			name:       "no categories",
			categories: nil,
			want:       null.Float64{},
		},
		{
			name:       "no entries at all",
			categories: []GradeCategory{homework, exams},
			want:       null.Float64{},
		},
		{
			name:       "full gradebook",
			categories: []GradeCategory{homework, exams},
			entries: map[string][]GradebookEntry{
				"hw": {entry("a", 100, false, now)},
				"ex": {entry("b", 80, false, now)},
			},
			// 100*0.4 + 80*0.6 = 88
			want: null.Float64From(88),
		},
		{
			name:       "empty category is excluded, not zeroed",
			categories: []GradeCategory{homework, exams},
			entries: map[string][]GradebookEntry{
				"hw": {entry("a", 90, false, now)},
			},
			// normalized by the 40 weight present, not by 100
			want: null.Float64From(90),
		},
		{
			name:       "drop lowest applies per category",
			categories: []GradeCategory{homework, quizzes},
			entries: map[string][]GradebookEntry{
				"hw": {entry("a", 80, false, now)},
				"qz": {
					entry("b", 0, false, now),
					entry("c", 100, false, now.Add(time.Hour)),
				},
			},
			// hw 80 * 40 + qz 100 * 20, over weight 60
			want: null.Float64From(86.67),
		},
		{
			name:       "category emptied by its drop is excluded",
			categories: []GradeCategory{homework, quizzes},
			entries: map[string][]GradebookEntry{
				"hw": {entry("a", 80, false, now)},
				"qz": {entry("b", 0, false, now)},
			},
			want: null.Float64From(80),
		},
		{
			name:       "result is rounded to 2 decimals",
			categories: []GradeCategory{homework, exams},
			entries: map[string][]GradebookEntry{
				"hw": {
					entry("a", 100, false, now),
					entry("b", 85, false, now.Add(time.Hour)),
					entry("c", 70, false, now.Add(2*time.Hour)),
				},
				"ex": {entry("d", 77, false, now)},
			},
			// hw 85 * 0.4 + ex 77 * 0.6 = 80.2
			want: null.Float64From(80.2),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := WeightedAverage(tt.categories, tt.entries)
			if got.Valid != tt.want.Valid {
				t.Fatalf("WeightedAverage() valid = %v, want %v", got.Valid, tt.want.Valid)
			}
			if got.Valid && got.Float64 != tt.want.Float64 {
				t.Errorf("WeightedAverage() = %v, want %v", got.Float64, tt.want.Float64)
			}
		})
	}
}
