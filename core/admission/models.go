package admission

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/darasa/core"
)

// Status is the admissions application funnel state.
// The string values are part of the persisted contract.
type Status string

const (
	StatusIncomplete  Status = "incomplete"
	StatusPending     Status = "pending"
	StatusUnderReview Status = "under_review"
	StatusApproved    Status = "approved"
	StatusDeclined    Status = "declined"
	StatusEnrolled    Status = "enrolled"
	StatusWithdrawn   Status = "withdrawn"
)

// transitions is the central table; illegal transitions are rejected here
// rather than by which UI actions happen to be exposed. Withdrawal is
// reachable from every non-terminal state.
var transitions = map[Status][]Status{
	StatusIncomplete:  {StatusPending, StatusWithdrawn},
	StatusPending:     {StatusUnderReview, StatusWithdrawn},
	StatusUnderReview: {StatusApproved, StatusDeclined, StatusWithdrawn},
	StatusApproved:    {StatusEnrolled, StatusWithdrawn},
	StatusDeclined:    {},
	StatusEnrolled:    {},
	StatusWithdrawn:   {},
}

func (s Status) CanTransitionTo(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

func (s Status) IsTerminal() bool {
	return len(transitions[s]) == 0
}

// Application is one admissions application, school-scoped.
type Application struct {
	ID             string      `json:"id" db:"id"`
	SchoolID       string      `json:"school_id" db:"school_id"`
	ApplicantName  string      `json:"applicant_name" db:"applicant_name"`
	Email          string      `json:"email" db:"email"`
	DateOfBirth    null.Time   `json:"date_of_birth" db:"date_of_birth"`
	GuardianName   string      `json:"guardian_name" db:"guardian_name"`
	GuardianPhone  string      `json:"guardian_phone" db:"guardian_phone"`
	Status         Status      `json:"status" db:"status"`
	ReviewerID     null.String `json:"reviewer_id" db:"reviewer_id"`
	DecisionBy     null.String `json:"decision_by" db:"decision_by"`
	DecisionAt     null.Time   `json:"decision_at" db:"decision_at"`
	DecisionReason null.String `json:"decision_reason" db:"decision_reason"`
	ClassID        null.String `json:"class_id" db:"class_id"`
	AdmissionDate  null.Time   `json:"admission_date" db:"admission_date"`
	StudentID      null.String `json:"student_id" db:"student_id"`
	CreatedAt      time.Time   `json:"created_at" db:"created_at"` // UTC
	UpdatedAt      time.Time   `json:"updated_at" db:"updated_at"` // UTC
}

// MissingFields lists the required fields still empty; an application can
// only leave "incomplete" once this is empty.
func (a Application) MissingFields() []string {
	var missing []string
	if core.CleanString(a.ApplicantName) == "" {
		missing = append(missing, "applicant_name")
	}
	if core.CleanString(a.Email) == "" {
		missing = append(missing, "email")
	}
	if !a.DateOfBirth.Valid {
		missing = append(missing, "date_of_birth")
	}
	if core.CleanString(a.GuardianName) == "" {
		missing = append(missing, "guardian_name")
	}
	return missing
}

// NewApplication contains information needed to open an application.
// Everything beyond the name and email may be filled in later; the
// application stays "incomplete" until submission.
type NewApplication struct {
	ApplicantName string    `json:"applicant_name" validate:"required"`
	Email         string    `json:"email" validate:"required,email"`
	DateOfBirth   null.Time `json:"date_of_birth"`
	GuardianName  string    `json:"guardian_name"`
	GuardianPhone string    `json:"guardian_phone"`
}

func (na *NewApplication) Validate(validate *validator.Validate) error {
	na.ApplicantName = core.CleanString(na.ApplicantName)
	na.Email = core.CleanString(na.Email, true /* lower */)
	na.GuardianName = core.CleanString(na.GuardianName)
	return validate.Struct(na)
}

// UpdateApplication defines what an applicant may change before review.
type UpdateApplication struct {
	ApplicantName string    `json:"applicant_name"`
	Email         string    `json:"email" validate:"omitempty,email"`
	DateOfBirth   null.Time `json:"date_of_birth"`
	GuardianName  string    `json:"guardian_name"`
	GuardianPhone string    `json:"guardian_phone"`
}

func (ua *UpdateApplication) Validate(orig Application, validate *validator.Validate) error {
	if name := core.CleanString(ua.ApplicantName); name != "" {
		ua.ApplicantName = name
	} else {
		ua.ApplicantName = orig.ApplicantName
	}
	if email := core.CleanString(ua.Email, true /* lower */); email != "" {
		ua.Email = email
	} else {
		ua.Email = orig.Email
	}
	if !ua.DateOfBirth.Valid {
		ua.DateOfBirth = orig.DateOfBirth
	}
	if g := core.CleanString(ua.GuardianName); g != "" {
		ua.GuardianName = g
	} else {
		ua.GuardianName = orig.GuardianName
	}
	if ua.GuardianPhone == "" {
		ua.GuardianPhone = orig.GuardianPhone
	}
	return validate.Struct(ua)
}

// QueryFilter filters application listings.
type QueryFilter struct {
	Status      Status    `query:"status"`
	Search      string    `query:"search"`
	CreatedFrom time.Time `query:"created_from"`
	CreatedTo   time.Time `query:"created_to"`
}

func (qf *QueryFilter) IsEmpty() bool {
	return qf.Status == "" && qf.Search == "" && qf.CreatedFrom.IsZero() && qf.CreatedTo.IsZero()
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
}
