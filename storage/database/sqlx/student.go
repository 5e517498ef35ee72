package sqlxrepos

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/darasa/core/student"
)

type studentRepository struct {
	db *sqlx.DB
}

var _ student.Repository = (*studentRepository)(nil) // interface compliance check

func NewStudentRepository(db *sqlx.DB) *studentRepository {
	return &studentRepository{db: db}
}

func (repo studentRepository) CreateStudent(ctx context.Context, s student.Student) (student.Student, error) {
	q := `
INSERT INTO student (id, school_id, name, email, class_id, admission_date, application_id, is_active, created_at, updated_at)
VALUES (:id, :school_id, :name, :email, :class_id, :admission_date, :application_id, :is_active, :created_at, :updated_at)`
	if _, err := repo.db.NamedExecContext(ctx, q, s); err != nil {
		return student.Student{}, errors.Wrap(err, "inserting student")
	}
	return s, nil
}

func (repo studentRepository) GetStudentByID(ctx context.Context, schoolID, id string) (student.Student, error) {
	var s student.Student
	q := `SELECT * FROM student WHERE school_id = $1 AND id = $2`
	if err := repo.db.GetContext(ctx, &s, q, schoolID, id); err != nil {
		if err == sql.ErrNoRows {
			return student.Student{}, student.ErrNotFound
		}
		return student.Student{}, errors.Wrap(err, "finding student")
	}
	return s, nil
}

func (repo studentRepository) QueryStudents(ctx context.Context, schoolID string) ([]student.Student, error) {
	var students []student.Student
	q := `SELECT * FROM student WHERE school_id = $1 ORDER BY created_at, id`
	if err := repo.db.SelectContext(ctx, &students, q, schoolID); err != nil {
		return nil, errors.Wrap(err, "querying students")
	}
	return students, nil
}

func (repo studentRepository) CreateRiskCase(ctx context.Context, rc student.RiskCase) (student.RiskCase, error) {
	q := `
INSERT INTO risk_case (id, school_id, student_id, summary, status, opened_by, resolved_at, created_at, updated_at)
VALUES (:id, :school_id, :student_id, :summary, :status, :opened_by, :resolved_at, :created_at, :updated_at)`
	if _, err := repo.db.NamedExecContext(ctx, q, rc); err != nil {
		return student.RiskCase{}, errors.Wrap(err, "inserting risk case")
	}
	return rc, nil
}

func (repo studentRepository) GetRiskCaseByID(ctx context.Context, schoolID, id string) (student.RiskCase, error) {
	var rc student.RiskCase
	q := `SELECT * FROM risk_case WHERE school_id = $1 AND id = $2`
	if err := repo.db.GetContext(ctx, &rc, q, schoolID, id); err != nil {
		if err == sql.ErrNoRows {
			return student.RiskCase{}, student.ErrRiskCaseNotFound
		}
		return student.RiskCase{}, errors.Wrap(err, "finding risk case")
	}
	return rc, nil
}

func (repo studentRepository) QueryRiskCases(ctx context.Context, schoolID string, studentID null.String) ([]student.RiskCase, error) {
	q := `SELECT * FROM risk_case WHERE school_id = $1`
	args := []interface{}{schoolID}
	if studentID.Valid {
		q += ` AND student_id = $2`
		args = append(args, studentID.String)
	}
	q += ` ORDER BY created_at, id`

	var cases []student.RiskCase
	if err := repo.db.SelectContext(ctx, &cases, q, args...); err != nil {
		return nil, errors.Wrap(err, "querying risk cases")
	}
	return cases, nil
}

func (repo studentRepository) UpdateRiskCase(ctx context.Context, rc student.RiskCase) (student.RiskCase, error) {
	q := `
UPDATE risk_case SET summary = :summary, status = :status, resolved_at = :resolved_at, updated_at = :updated_at
WHERE school_id = :school_id AND id = :id`
	res, err := repo.db.NamedExecContext(ctx, q, rc)
	if err != nil {
		return student.RiskCase{}, errors.Wrap(err, "updating risk case")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return student.RiskCase{}, student.ErrRiskCaseNotFound
	}
	return rc, nil
}

func (repo studentRepository) CreateIntervention(ctx context.Context, iv student.Intervention) (student.Intervention, error) {
	q := `
INSERT INTO intervention (id, school_id, risk_case_id, description, status, assigned_to, due_date, completed_at, created_at, updated_at)
VALUES (:id, :school_id, :risk_case_id, :description, :status, :assigned_to, :due_date, :completed_at, :created_at, :updated_at)`
	if _, err := repo.db.NamedExecContext(ctx, q, iv); err != nil {
		return student.Intervention{}, errors.Wrap(err, "inserting intervention")
	}
	return iv, nil
}

func (repo studentRepository) GetInterventionByID(ctx context.Context, schoolID, id string) (student.Intervention, error) {
	var iv student.Intervention
	q := `SELECT * FROM intervention WHERE school_id = $1 AND id = $2`
	if err := repo.db.GetContext(ctx, &iv, q, schoolID, id); err != nil {
		if err == sql.ErrNoRows {
			return student.Intervention{}, student.ErrInterventionNotFound
		}
		return student.Intervention{}, errors.Wrap(err, "finding intervention")
	}
	return iv, nil
}

func (repo studentRepository) QueryInterventions(ctx context.Context, schoolID, riskCaseID string) ([]student.Intervention, error) {
	var ivs []student.Intervention
	q := `SELECT * FROM intervention WHERE school_id = $1 AND risk_case_id = $2 ORDER BY created_at, id`
	if err := repo.db.SelectContext(ctx, &ivs, q, schoolID, riskCaseID); err != nil {
		return nil, errors.Wrap(err, "querying interventions")
	}
	return ivs, nil
}

func (repo studentRepository) UpdateIntervention(ctx context.Context, iv student.Intervention) (student.Intervention, error) {
	q := `
UPDATE intervention SET description = :description, status = :status, assigned_to = :assigned_to,
	due_date = :due_date, completed_at = :completed_at, updated_at = :updated_at
WHERE school_id = :school_id AND id = :id`
	res, err := repo.db.NamedExecContext(ctx, q, iv)
	if err != nil {
		return student.Intervention{}, errors.Wrap(err, "updating intervention")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return student.Intervention{}, student.ErrInterventionNotFound
	}
	return iv, nil
}
