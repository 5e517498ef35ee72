package grading

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/darasa/core"
)

// TermGradeStatus is the lifecycle of a computed term grade.
// The string values are part of the persisted contract.
type TermGradeStatus string

const (
	TermGradeInProgress TermGradeStatus = "in_progress"
	TermGradeCalculated TermGradeStatus = "calculated"
	TermGradeFinalized  TermGradeStatus = "finalized"
	TermGradePublished  TermGradeStatus = "published"
)

// termGradeTransitions is the central transition table; a finalized grade
// must be reverted to "calculated" before it can be recomputed.
var termGradeTransitions = map[TermGradeStatus][]TermGradeStatus{
	TermGradeInProgress: {TermGradeCalculated},
	TermGradeCalculated: {TermGradeCalculated, TermGradeFinalized},
	TermGradeFinalized:  {TermGradePublished, TermGradeCalculated},
	TermGradePublished:  {},
}

func (s TermGradeStatus) CanTransitionTo(next TermGradeStatus) bool {
	for _, allowed := range termGradeTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsFinal reports whether the grade is locked against recomputation.
func (s TermGradeStatus) IsFinal() bool {
	return s == TermGradeFinalized || s == TermGradePublished
}

// GradeCategory is a weighted bucket of assessments (e.g. "Homework")
// within a class/subject, optionally scoped to a term.
// Weights of the categories for one (class, subject, term) are expected to
// sum to 100 by convention; this is deliberately NOT enforced — the
// average normalizes by the weight actually present.
type GradeCategory struct {
	ID            string      `json:"id" db:"id"`
	SchoolID      string      `json:"school_id" db:"school_id"`
	ClassID       string      `json:"class_id" db:"class_id"`
	SubjectID     string      `json:"subject_id" db:"subject_id"`
	TermID        null.String `json:"term_id,omitempty" db:"term_id"`
	Name          string      `json:"name" db:"name"`
	Weight        float64     `json:"weight" db:"weight"`
	DropLowest    int         `json:"drop_lowest" db:"drop_lowest"`
	IsExtraCredit bool        `json:"is_extra_credit" db:"is_extra_credit"` // stored and exposed; not special-cased by the average
	CreatedAt     time.Time   `json:"created_at" db:"created_at"`           // UTC
	UpdatedAt     time.Time   `json:"updated_at" db:"updated_at"`           // UTC
}

// GradebookEntry is a single scored (or excused/missing) item for a
// student in a category. Percentage is derived from Score/MaxScore and
// stored redundantly; it is what the average consumes.
type GradebookEntry struct {
	ID           string      `json:"id" db:"id"`
	SchoolID     string      `json:"school_id" db:"school_id"`
	StudentID    string      `json:"student_id" db:"student_id"`
	CategoryID   string      `json:"category_id" db:"category_id"`
	AssessmentID null.String `json:"assessment_id,omitempty" db:"assessment_id"`
	Score        float64     `json:"score" db:"score"`
	MaxScore     float64     `json:"max_score" db:"max_score"`
	Percentage   float64     `json:"percentage" db:"percentage"`
	IsExcused    bool        `json:"is_excused" db:"is_excused"`
	IsMissing    bool        `json:"is_missing" db:"is_missing"`
	CreatedAt    time.Time   `json:"created_at" db:"created_at"` // UTC
	UpdatedAt    time.Time   `json:"updated_at" db:"updated_at"` // UTC
}

// GradingScale maps percentage bands to letter grades for a school.
// IsDefault marks the school's fallback scale.
type GradingScale struct {
	ID        string      `json:"id" db:"id"`
	SchoolID  string      `json:"school_id" db:"school_id"`
	Name      string      `json:"name" db:"name"`
	IsDefault bool        `json:"is_default" db:"is_default"`
	Config    ScaleConfig `json:"scale_config" db:"scale_config"`
	CreatedAt time.Time   `json:"created_at" db:"created_at"` // UTC
	UpdatedAt time.Time   `json:"updated_at" db:"updated_at"` // UTC
}

// TermGrade is the computed, cacheable grade snapshot for a student in a
// class/subject over a term.
type TermGrade struct {
	ID               string          `json:"id" db:"id"`
	SchoolID         string          `json:"school_id" db:"school_id"`
	StudentID        string          `json:"student_id" db:"student_id"`
	ClassID          string          `json:"class_id" db:"class_id"`
	SubjectID        string          `json:"subject_id" db:"subject_id"`
	TermID           string          `json:"term_id" db:"term_id"`
	WeightedAverage  null.Float64    `json:"weighted_average" db:"weighted_average"`
	FinalLetterGrade null.String     `json:"final_letter_grade" db:"final_letter_grade"`
	Status           TermGradeStatus `json:"status" db:"status"`
	CreatedAt        time.Time       `json:"created_at" db:"created_at"` // UTC
	UpdatedAt        time.Time       `json:"updated_at" db:"updated_at"` // UTC
}

// NewGradeCategory contains information needed to create a GradeCategory.
type NewGradeCategory struct {
	ClassID       string  `json:"class_id" validate:"required"`
	SubjectID     string  `json:"subject_id" validate:"required"`
	TermID        string  `json:"term_id" validate:"omitempty"`
	Name          string  `json:"name" validate:"required"`
	Weight        float64 `json:"weight" validate:"gte=0,lte=100"`
	DropLowest    int     `json:"drop_lowest" validate:"gte=0"`
	IsExtraCredit bool    `json:"is_extra_credit"`
}

func (nc *NewGradeCategory) Validate(validate *validator.Validate) error {
	nc.Name = core.CleanString(nc.Name)
	return validate.Struct(nc)
}

// NewGradebookEntry contains information needed to record a score.
type NewGradebookEntry struct {
	StudentID    string  `json:"student_id" validate:"required"`
	CategoryID   string  `json:"category_id" validate:"required"`
	AssessmentID string  `json:"assessment_id" validate:"omitempty"`
	Score        float64 `json:"score" validate:"gte=0"`
	MaxScore     float64 `json:"max_score" validate:"gt=0"`
	IsExcused    bool    `json:"is_excused"`
	IsMissing    bool    `json:"is_missing"`
}

func (ne *NewGradebookEntry) Validate(validate *validator.Validate) error {
	return validate.Struct(ne)
}

// Percentage derives the stored percentage from the raw score.
func (ne NewGradebookEntry) Percentage() float64 {
	if ne.MaxScore == 0 {
		return 0
	}
	return round2(ne.Score / ne.MaxScore * 100)
}

// NewGradingScale contains information needed to create a GradingScale.
// Overlapping bands are allowed (first match wins, in stored order); not
// overlapping them is the caller's responsibility.
type NewGradingScale struct {
	Name      string      `json:"name" validate:"required"`
	IsDefault bool        `json:"is_default"`
	Config    ScaleConfig `json:"scale_config" validate:"required,dive"`
}

func (ns *NewGradingScale) Validate(validate *validator.Validate) error {
	ns.Name = core.CleanString(ns.Name)
	return validate.Struct(ns)
}
