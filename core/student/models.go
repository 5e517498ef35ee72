package student

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/darasa/core"
)

// RiskCaseStatus is the lifecycle of a tracked at-risk-student issue.
// The string values are part of the persisted contract.
type RiskCaseStatus string

const (
	RiskCaseOpen       RiskCaseStatus = "open"
	RiskCaseInProgress RiskCaseStatus = "in_progress"
	RiskCaseResolved   RiskCaseStatus = "resolved"
	RiskCaseClosed     RiskCaseStatus = "closed"
)

var riskCaseTransitions = map[RiskCaseStatus][]RiskCaseStatus{
	RiskCaseOpen:       {RiskCaseInProgress, RiskCaseResolved, RiskCaseClosed},
	RiskCaseInProgress: {RiskCaseResolved, RiskCaseClosed},
	RiskCaseResolved:   {RiskCaseClosed},
	RiskCaseClosed:     {},
}

func (s RiskCaseStatus) CanTransitionTo(next RiskCaseStatus) bool {
	for _, allowed := range riskCaseTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// InterventionStatus is the lifecycle of a single remedial action. It is
// deliberately independent of its risk case: a case may be resolved while
// interventions are still pending.
type InterventionStatus string

const (
	InterventionPending    InterventionStatus = "pending"
	InterventionInProgress InterventionStatus = "in_progress"
	InterventionCompleted  InterventionStatus = "completed"
	InterventionCancelled  InterventionStatus = "cancelled"
)

var interventionTransitions = map[InterventionStatus][]InterventionStatus{
	InterventionPending:    {InterventionInProgress, InterventionCompleted, InterventionCancelled},
	InterventionInProgress: {InterventionCompleted, InterventionCancelled},
	InterventionCompleted:  {},
	InterventionCancelled:  {},
}

func (s InterventionStatus) CanTransitionTo(next InterventionStatus) bool {
	for _, allowed := range interventionTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Student is an enrolled student, school-scoped.
type Student struct {
	ID            string      `json:"id" db:"id"`
	SchoolID      string      `json:"school_id" db:"school_id"`
	Name          string      `json:"name" db:"name"`
	Email         null.String `json:"email" db:"email"`
	ClassID       null.String `json:"class_id" db:"class_id"`
	AdmissionDate null.Time   `json:"admission_date" db:"admission_date"`
	ApplicationID null.String `json:"application_id" db:"application_id"`
	IsActive      bool        `json:"is_active" db:"is_active"`
	CreatedAt     time.Time   `json:"created_at" db:"created_at"` // UTC
	UpdatedAt     time.Time   `json:"updated_at" db:"updated_at"` // UTC
}

// RiskCase tracks one at-risk-student issue.
type RiskCase struct {
	ID         string         `json:"id" db:"id"`
	SchoolID   string         `json:"school_id" db:"school_id"`
	StudentID  string         `json:"student_id" db:"student_id"`
	Summary    string         `json:"summary" db:"summary"`
	Status     RiskCaseStatus `json:"status" db:"status"`
	OpenedBy   string         `json:"opened_by" db:"opened_by"`
	ResolvedAt null.Time      `json:"resolved_at" db:"resolved_at"`
	CreatedAt  time.Time      `json:"created_at" db:"created_at"` // UTC
	UpdatedAt  time.Time      `json:"updated_at" db:"updated_at"` // UTC
}

// Intervention is one discrete remedial action against a risk case.
type Intervention struct {
	ID          string             `json:"id" db:"id"`
	SchoolID    string             `json:"school_id" db:"school_id"`
	RiskCaseID  string             `json:"risk_case_id" db:"risk_case_id"`
	Description string             `json:"description" db:"description"`
	Status      InterventionStatus `json:"status" db:"status"`
	AssignedTo  null.String        `json:"assigned_to" db:"assigned_to"`
	DueDate     null.Time          `json:"due_date" db:"due_date"`
	CompletedAt null.Time          `json:"completed_at" db:"completed_at"`
	CreatedAt   time.Time          `json:"created_at" db:"created_at"` // UTC
	UpdatedAt   time.Time          `json:"updated_at" db:"updated_at"` // UTC
}

// NewStudent contains information needed to create a Student directly
// (outside the admissions funnel, e.g. imports).
type NewStudent struct {
	Name          string    `json:"name" validate:"required"`
	Email         string    `json:"email" validate:"omitempty,email"`
	ClassID       string    `json:"class_id"`
	AdmissionDate null.Time `json:"admission_date"`
}

func (ns *NewStudent) Validate(validate *validator.Validate) error {
	ns.Name = core.CleanString(ns.Name)
	ns.Email = core.CleanString(ns.Email, true /* lower */)
	return validate.Struct(ns)
}

// NewRiskCase contains information needed to open a RiskCase.
type NewRiskCase struct {
	StudentID string `json:"student_id" validate:"required"`
	Summary   string `json:"summary" validate:"required"`
}

func (nr *NewRiskCase) Validate(validate *validator.Validate) error {
	nr.Summary = core.CleanString(nr.Summary)
	return validate.Struct(nr)
}

// NewIntervention contains information needed to add an Intervention.
type NewIntervention struct {
	RiskCaseID  string    `json:"risk_case_id" validate:"required"`
	Description string    `json:"description" validate:"required"`
	AssignedTo  string    `json:"assigned_to"`
	DueDate     null.Time `json:"due_date"`
}

func (ni *NewIntervention) Validate(validate *validator.Validate) error {
	ni.Description = core.CleanString(ni.Description)
	return validate.Struct(ni)
}
