package student

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/darasa/core/admission"
)

var (
	// errors
	ErrNotFound             = errors.New("student not found")
	ErrRiskCaseNotFound     = errors.New("risk case not found")
	ErrInterventionNotFound = errors.New("intervention not found")
	ErrInvalidTransition    = errors.New("invalid status transition")
)

type (
	Repository interface {
		CreateStudent(ctx context.Context, s Student) (Student, error)
		GetStudentByID(ctx context.Context, schoolID, id string) (Student, error)
		QueryStudents(ctx context.Context, schoolID string) ([]Student, error)
		CreateRiskCase(ctx context.Context, rc RiskCase) (RiskCase, error)
		GetRiskCaseByID(ctx context.Context, schoolID, id string) (RiskCase, error)
		QueryRiskCases(ctx context.Context, schoolID string, studentID null.String) ([]RiskCase, error)
		UpdateRiskCase(ctx context.Context, rc RiskCase) (RiskCase, error)
		CreateIntervention(ctx context.Context, iv Intervention) (Intervention, error)
		GetInterventionByID(ctx context.Context, schoolID, id string) (Intervention, error)
		QueryInterventions(ctx context.Context, schoolID, riskCaseID string) ([]Intervention, error)
		UpdateIntervention(ctx context.Context, iv Intervention) (Intervention, error)
	}

	Service interface {
		admission.StudentRegistry

		Create(ctx context.Context, schoolID string, ns NewStudent) (Student, error)
		GetByID(ctx context.Context, schoolID, id string) (Student, error)
		QueryAll(ctx context.Context, schoolID string) ([]Student, error)
		OpenRiskCase(ctx context.Context, schoolID, openedBy string, nr NewRiskCase) (RiskCase, error)
		QueryRiskCases(ctx context.Context, schoolID string, studentID null.String) ([]RiskCase, error)
		// SetRiskCaseStatus validates the transition centrally; it never
		// looks at the case's interventions — the two lifecycles are
		// deliberately uncoupled.
		SetRiskCaseStatus(ctx context.Context, schoolID, id string, status RiskCaseStatus) (RiskCase, error)
		AddIntervention(ctx context.Context, schoolID string, ni NewIntervention) (Intervention, error)
		QueryInterventions(ctx context.Context, schoolID, riskCaseID string) ([]Intervention, error)
		SetInterventionStatus(ctx context.Context, schoolID, id string, status InterventionStatus) (Intervention, error)
	}

	service struct {
		repo Repository
	}
)

func NewService(repo Repository) Service {
	return &service{repo: repo}
}

// RegisterApplicant creates the Student record for an approved admissions
// application; called by the admission module on enrollment.
func (svc *service) RegisterApplicant(ctx context.Context, es admission.EnrolledStudent) (string, error) {
	now := time.Now().UTC()
	s := Student{
		ID:            uuid.New().String(),
		SchoolID:      es.SchoolID,
		Name:          es.Name,
		Email:         null.NewString(es.Email, es.Email != ""),
		ClassID:       null.StringFrom(es.ClassID),
		AdmissionDate: null.TimeFrom(es.AdmissionDate),
		ApplicationID: null.StringFrom(es.ApplicationID),
		IsActive:      true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	s, err := svc.repo.CreateStudent(ctx, s)
	if err != nil {
		return "", errors.Wrap(err, "creating student from application")
	}
	return s.ID, nil
}

func (svc *service) Create(ctx context.Context, schoolID string, ns NewStudent) (Student, error) {
	now := time.Now().UTC()
	s := Student{
		ID:            uuid.New().String(),
		SchoolID:      schoolID,
		Name:          ns.Name,
		Email:         null.NewString(ns.Email, ns.Email != ""),
		ClassID:       null.NewString(ns.ClassID, ns.ClassID != ""),
		AdmissionDate: ns.AdmissionDate,
		IsActive:      true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	return svc.repo.CreateStudent(ctx, s)
}

func (svc *service) GetByID(ctx context.Context, schoolID, id string) (Student, error) {
	return svc.repo.GetStudentByID(ctx, schoolID, id)
}

func (svc *service) QueryAll(ctx context.Context, schoolID string) ([]Student, error) {
	return svc.repo.QueryStudents(ctx, schoolID)
}

func (svc *service) OpenRiskCase(ctx context.Context, schoolID, openedBy string, nr NewRiskCase) (RiskCase, error) {
	if _, err := svc.repo.GetStudentByID(ctx, schoolID, nr.StudentID); err != nil {
		return RiskCase{}, err
	}
	now := time.Now().UTC()
	rc := RiskCase{
		ID:        uuid.New().String(),
		SchoolID:  schoolID,
		StudentID: nr.StudentID,
		Summary:   nr.Summary,
		Status:    RiskCaseOpen,
		OpenedBy:  openedBy,
		CreatedAt: now,
		UpdatedAt: now,
	}
	return svc.repo.CreateRiskCase(ctx, rc)
}

func (svc *service) QueryRiskCases(ctx context.Context, schoolID string, studentID null.String) ([]RiskCase, error) {
	return svc.repo.QueryRiskCases(ctx, schoolID, studentID)
}

func (svc *service) SetRiskCaseStatus(ctx context.Context, schoolID, id string, status RiskCaseStatus) (RiskCase, error) {
	rc, err := svc.repo.GetRiskCaseByID(ctx, schoolID, id)
	if err != nil {
		return RiskCase{}, err
	}
	if !rc.Status.CanTransitionTo(status) {
		return RiskCase{}, ErrInvalidTransition
	}

	now := time.Now().UTC()
	rc.Status = status
	if status == RiskCaseResolved {
		rc.ResolvedAt = null.TimeFrom(now)
	}
	rc.UpdatedAt = now
	return svc.repo.UpdateRiskCase(ctx, rc)
}

func (svc *service) AddIntervention(ctx context.Context, schoolID string, ni NewIntervention) (Intervention, error) {
	if _, err := svc.repo.GetRiskCaseByID(ctx, schoolID, ni.RiskCaseID); err != nil {
		return Intervention{}, err
	}
	now := time.Now().UTC()
	iv := Intervention{
		ID:          uuid.New().String(),
		SchoolID:    schoolID,
		RiskCaseID:  ni.RiskCaseID,
		Description: ni.Description,
		Status:      InterventionPending,
		AssignedTo:  null.NewString(ni.AssignedTo, ni.AssignedTo != ""),
		DueDate:     ni.DueDate,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	return svc.repo.CreateIntervention(ctx, iv)
}

func (svc *service) QueryInterventions(ctx context.Context, schoolID, riskCaseID string) ([]Intervention, error) {
	return svc.repo.QueryInterventions(ctx, schoolID, riskCaseID)
}

func (svc *service) SetInterventionStatus(ctx context.Context, schoolID, id string, status InterventionStatus) (Intervention, error) {
	iv, err := svc.repo.GetInterventionByID(ctx, schoolID, id)
	if err != nil {
		return Intervention{}, err
	}
	if !iv.Status.CanTransitionTo(status) {
		return Intervention{}, ErrInvalidTransition
	}

	now := time.Now().UTC()
	iv.Status = status
	if status == InterventionCompleted {
		iv.CompletedAt = null.TimeFrom(now)
	}
	iv.UpdatedAt = now
	return svc.repo.UpdateIntervention(ctx, iv)
}
