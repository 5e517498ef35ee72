package student

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/darasa/core/admission"
)

type fakeRepository struct {
	students      map[string]Student
	riskCases     map[string]RiskCase
	interventions map[string]Intervention
}

var _ Repository = (*fakeRepository)(nil)

func newFakeRepository() *fakeRepository {
	return &fakeRepository{
		students:      make(map[string]Student),
		riskCases:     make(map[string]RiskCase),
		interventions: make(map[string]Intervention),
	}
}

func (repo *fakeRepository) CreateStudent(ctx context.Context, s Student) (Student, error) {
	repo.students[s.ID] = s
	return s, nil
}

func (repo *fakeRepository) GetStudentByID(ctx context.Context, schoolID, id string) (Student, error) {
	if s, ok := repo.students[id]; ok && s.SchoolID == schoolID {
		return s, nil
	}
	return Student{}, ErrNotFound
}

func (repo *fakeRepository) QueryStudents(ctx context.Context, schoolID string) ([]Student, error) {
	var students []Student
	for _, s := range repo.students {
		if s.SchoolID == schoolID {
			students = append(students, s)
		}
	}
	return students, nil
}

func (repo *fakeRepository) CreateRiskCase(ctx context.Context, rc RiskCase) (RiskCase, error) {
	repo.riskCases[rc.ID] = rc
	return rc, nil
}

func (repo *fakeRepository) GetRiskCaseByID(ctx context.Context, schoolID, id string) (RiskCase, error) {
	if rc, ok := repo.riskCases[id]; ok && rc.SchoolID == schoolID {
		return rc, nil
	}
	return RiskCase{}, ErrRiskCaseNotFound
}

func (repo *fakeRepository) QueryRiskCases(ctx context.Context, schoolID string, studentID null.String) ([]RiskCase, error) {
	var cases []RiskCase
	for _, rc := range repo.riskCases {
		if rc.SchoolID != schoolID {
			continue
		}
		if studentID.Valid && rc.StudentID != studentID.String {
			continue
		}
		cases = append(cases, rc)
	}
	return cases, nil
}

func (repo *fakeRepository) UpdateRiskCase(ctx context.Context, rc RiskCase) (RiskCase, error) {
	if _, ok := repo.riskCases[rc.ID]; !ok {
		return RiskCase{}, ErrRiskCaseNotFound
	}
	repo.riskCases[rc.ID] = rc
	return rc, nil
}

func (repo *fakeRepository) CreateIntervention(ctx context.Context, iv Intervention) (Intervention, error) {
	repo.interventions[iv.ID] = iv
	return iv, nil
}

func (repo *fakeRepository) GetInterventionByID(ctx context.Context, schoolID, id string) (Intervention, error) {
	if iv, ok := repo.interventions[id]; ok && iv.SchoolID == schoolID {
		return iv, nil
	}
	return Intervention{}, ErrInterventionNotFound
}

func (repo *fakeRepository) QueryInterventions(ctx context.Context, schoolID, riskCaseID string) ([]Intervention, error) {
	var ivs []Intervention
	for _, iv := range repo.interventions {
		if iv.SchoolID == schoolID && iv.RiskCaseID == riskCaseID {
			ivs = append(ivs, iv)
		}
	}
	return ivs, nil
}

func (repo *fakeRepository) UpdateIntervention(ctx context.Context, iv Intervention) (Intervention, error) {
	if _, ok := repo.interventions[iv.ID]; !ok {
		return Intervention{}, ErrInterventionNotFound
	}
	repo.interventions[iv.ID] = iv
	return iv, nil
}

const schoolID = "school-1"

func setup(t *testing.T) Service {
	t.Helper()
	return NewService(newFakeRepository())
}

func createStudent(t *testing.T, svc Service) Student {
	t.Helper()
	s, err := svc.Create(context.Background(), schoolID, NewStudent{Name: "Amani Kalume"})
	if err != nil {
		t.Fatalf("Create() failed, %v", err)
	}
	return s
}

func openCase(t *testing.T, svc Service, studentID string) RiskCase {
	t.Helper()
	rc, err := svc.OpenRiskCase(context.Background(), schoolID, "teacher-1", NewRiskCase{
		StudentID: studentID,
		Summary:   "slipping attendance",
	})
	if err != nil {
		t.Fatalf("OpenRiskCase() failed, %v", err)
	}
	return rc
}

func TestService_RegisterApplicant(t *testing.T) {
	svc := setup(t)
	ctx := context.Background()

	admissionDate := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	id, err := svc.RegisterApplicant(ctx, admission.EnrolledStudent{
		SchoolID:      schoolID,
		ApplicationID: "app-1",
		Name:          "Amani Kalume",
		Email:         "amani@test.cd",
		ClassID:       "class-1",
		AdmissionDate: admissionDate,
	})
	if err != nil {
		t.Fatalf("RegisterApplicant() failed, %v", err)
	}

	s, err := svc.GetByID(ctx, schoolID, id)
	if err != nil {
		t.Fatalf("GetByID() failed, %v", err)
	}
	if !s.IsActive {
		t.Error("IsActive = false, want true")
	}
	if !s.ApplicationID.Valid || s.ApplicationID.String != "app-1" {
		t.Errorf("ApplicationID = %v, want app-1", s.ApplicationID)
	}
	if !s.AdmissionDate.Valid || !s.AdmissionDate.Time.Equal(admissionDate) {
		t.Errorf("AdmissionDate = %v, want %v", s.AdmissionDate, admissionDate)
	}
}

func TestService_OpenRiskCase(t *testing.T) {
	svc := setup(t)
	ctx := context.Background()

	t.Run("unknown student", func(t *testing.T) {
		_, err := svc.OpenRiskCase(ctx, schoolID, "teacher-1", NewRiskCase{StudentID: "nope", Summary: "x"})
		if errors.Cause(err) != ErrNotFound {
			t.Errorf("OpenRiskCase() error = %v, want %v", err, ErrNotFound)
		}
	})

	t.Run("opens against an existing student", func(t *testing.T) {
		s := createStudent(t, svc)
		rc := openCase(t, svc, s.ID)
		if rc.Status != RiskCaseOpen {
			t.Errorf("Status = %s, want %s", rc.Status, RiskCaseOpen)
		}
		if rc.OpenedBy != "teacher-1" {
			t.Errorf("OpenedBy = %s, want teacher-1", rc.OpenedBy)
		}
	})

	t.Run("student from another school is invisible", func(t *testing.T) {
		s := createStudent(t, svc)
		_, err := svc.OpenRiskCase(ctx, "school-2", "teacher-1", NewRiskCase{StudentID: s.ID, Summary: "x"})
		if errors.Cause(err) != ErrNotFound {
			t.Errorf("OpenRiskCase() error = %v, want %v", err, ErrNotFound)
		}
	})
}

func TestService_SetRiskCaseStatus(t *testing.T) {
	svc := setup(t)
	ctx := context.Background()
	s := createStudent(t, svc)

	t.Run("resolve stamps ResolvedAt", func(t *testing.T) {
		rc := openCase(t, svc, s.ID)

		rc, err := svc.SetRiskCaseStatus(ctx, schoolID, rc.ID, RiskCaseResolved)
		if err != nil {
			t.Fatalf("SetRiskCaseStatus() failed, %v", err)
		}
		if rc.Status != RiskCaseResolved {
			t.Errorf("Status = %s, want %s", rc.Status, RiskCaseResolved)
		}
		if !rc.ResolvedAt.Valid {
			t.Error("ResolvedAt not set")
		}
	})

	t.Run("closed is terminal", func(t *testing.T) {
		rc := openCase(t, svc, s.ID)
		if _, err := svc.SetRiskCaseStatus(ctx, schoolID, rc.ID, RiskCaseClosed); err != nil {
			t.Fatalf("SetRiskCaseStatus() failed, %v", err)
		}
		if _, err := svc.SetRiskCaseStatus(ctx, schoolID, rc.ID, RiskCaseInProgress); errors.Cause(err) != ErrInvalidTransition {
			t.Errorf("SetRiskCaseStatus() error = %v, want %v", err, ErrInvalidTransition)
		}
	})

	t.Run("resolving a case with pending interventions is allowed", func(t *testing.T) {
		rc := openCase(t, svc, s.ID)
		iv, err := svc.AddIntervention(ctx, schoolID, NewIntervention{
			RiskCaseID:  rc.ID,
			Description: "weekly tutoring",
		})
		if err != nil {
			t.Fatalf("AddIntervention() failed, %v", err)
		}

		// the two lifecycles are uncoupled
		if _, err := svc.SetRiskCaseStatus(ctx, schoolID, rc.ID, RiskCaseResolved); err != nil {
			t.Fatalf("SetRiskCaseStatus() failed, %v", err)
		}

		refreshed, err := svc.QueryInterventions(ctx, schoolID, rc.ID)
		if err != nil {
			t.Fatalf("QueryInterventions() failed, %v", err)
		}
		if len(refreshed) != 1 || refreshed[0].ID != iv.ID || refreshed[0].Status != InterventionPending {
			t.Errorf("interventions = %+v, want pending %s", refreshed, iv.ID)
		}

		// and the pending intervention can still complete afterwards
		done, err := svc.SetInterventionStatus(ctx, schoolID, iv.ID, InterventionCompleted)
		if err != nil {
			t.Fatalf("SetInterventionStatus() failed, %v", err)
		}
		if done.Status != InterventionCompleted {
			t.Errorf("Status = %s, want %s", done.Status, InterventionCompleted)
		}
		if !done.CompletedAt.Valid {
			t.Error("CompletedAt not set")
		}
	})
}

func TestService_SetInterventionStatus(t *testing.T) {
	svc := setup(t)
	ctx := context.Background()
	s := createStudent(t, svc)
	rc := openCase(t, svc, s.ID)

	t.Run("unknown risk case", func(t *testing.T) {
		_, err := svc.AddIntervention(ctx, schoolID, NewIntervention{RiskCaseID: "nope", Description: "x"})
		if errors.Cause(err) != ErrRiskCaseNotFound {
			t.Errorf("AddIntervention() error = %v, want %v", err, ErrRiskCaseNotFound)
		}
	})

	t.Run("completed is terminal", func(t *testing.T) {
		iv, err := svc.AddIntervention(ctx, schoolID, NewIntervention{RiskCaseID: rc.ID, Description: "x"})
		if err != nil {
			t.Fatalf("AddIntervention() failed, %v", err)
		}
		if _, err := svc.SetInterventionStatus(ctx, schoolID, iv.ID, InterventionCompleted); err != nil {
			t.Fatalf("SetInterventionStatus() failed, %v", err)
		}
		if _, err := svc.SetInterventionStatus(ctx, schoolID, iv.ID, InterventionInProgress); errors.Cause(err) != ErrInvalidTransition {
			t.Errorf("SetInterventionStatus() error = %v, want %v", err, ErrInvalidTransition)
		}
	})

	t.Run("cancel from pending", func(t *testing.T) {
		iv, err := svc.AddIntervention(ctx, schoolID, NewIntervention{RiskCaseID: rc.ID, Description: "x"})
		if err != nil {
			t.Fatalf("AddIntervention() failed, %v", err)
		}
		got, err := svc.SetInterventionStatus(ctx, schoolID, iv.ID, InterventionCancelled)
		if err != nil {
			t.Fatalf("SetInterventionStatus() failed, %v", err)
		}
		if got.Status != InterventionCancelled {
			t.Errorf("Status = %s, want %s", got.Status, InterventionCancelled)
		}
		if got.CompletedAt.Valid {
			t.Error("CompletedAt set on cancellation")
		}
	})
}

func TestService_QueryRiskCases(t *testing.T) {
	svc := setup(t)
	ctx := context.Background()

	s1 := createStudent(t, svc)
	s2 := createStudent(t, svc)
	openCase(t, svc, s1.ID)
	openCase(t, svc, s1.ID)
	openCase(t, svc, s2.ID)

	all, err := svc.QueryRiskCases(ctx, schoolID, null.String{})
	if err != nil {
		t.Fatalf("QueryRiskCases() failed, %v", err)
	}
	if len(all) != 3 {
		t.Errorf("QueryRiskCases() = %d cases, want 3", len(all))
	}

	forS1, err := svc.QueryRiskCases(ctx, schoolID, null.StringFrom(s1.ID))
	if err != nil {
		t.Fatalf("QueryRiskCases() failed, %v", err)
	}
	if len(forS1) != 2 {
		t.Errorf("QueryRiskCases() = %d cases, want 2", len(forS1))
	}
}
