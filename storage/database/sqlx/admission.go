package sqlxrepos

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/darasa/core/admission"
)

type admissionRepository struct {
	db *sqlx.DB
}

var _ admission.Repository = (*admissionRepository)(nil) // interface compliance check

func NewAdmissionRepository(db *sqlx.DB) *admissionRepository {
	return &admissionRepository{db: db}
}

func (repo admissionRepository) CreateApplication(ctx context.Context, app admission.Application) (admission.Application, error) {
	q := `
INSERT INTO admission_application (id, school_id, applicant_name, email, date_of_birth, guardian_name, guardian_phone,
	status, reviewer_id, decision_by, decision_at, decision_reason, class_id, admission_date, student_id, created_at, updated_at)
VALUES (:id, :school_id, :applicant_name, :email, :date_of_birth, :guardian_name, :guardian_phone,
	:status, :reviewer_id, :decision_by, :decision_at, :decision_reason, :class_id, :admission_date, :student_id, :created_at, :updated_at)`
	if _, err := repo.db.NamedExecContext(ctx, q, app); err != nil {
		return admission.Application{}, errors.Wrap(err, "inserting application")
	}
	return app, nil
}

func (repo admissionRepository) GetApplicationByID(ctx context.Context, schoolID, id string) (admission.Application, error) {
	var app admission.Application
	q := `SELECT * FROM admission_application WHERE school_id = $1 AND id = $2`
	if err := repo.db.GetContext(ctx, &app, q, schoolID, id); err != nil {
		if err == sql.ErrNoRows {
			return admission.Application{}, admission.ErrNotFound
		}
		return admission.Application{}, errors.Wrap(err, "finding application")
	}
	return app, nil
}

func (repo admissionRepository) FilterApplications(ctx context.Context, schoolID string, filter admission.QueryFilter) ([]admission.Application, error) {
	where := `school_id = $1`
	args := []interface{}{schoolID}
	arg := func(val interface{}) string {
		args = append(args, val)
		return "$" + strconv.Itoa(len(args))
	}

	if filter.Status != "" {
		where += ` AND status = ` + arg(filter.Status)
	}
	if filter.Search != "" {
		p := arg("%" + filter.Search + "%")
		where += fmt.Sprintf(` AND (applicant_name ILIKE %[1]s OR email ILIKE %[1]s OR guardian_name ILIKE %[1]s)`, p)
	}
	if !filter.CreatedFrom.IsZero() {
		where += ` AND created_at >= ` + arg(filter.CreatedFrom.UTC())
	}
	if !filter.CreatedTo.IsZero() {
		where += ` AND created_at <= ` + arg(filter.CreatedTo.UTC())
	}

	var apps []admission.Application
	q := fmt.Sprintf(`SELECT * FROM admission_application WHERE %s ORDER BY created_at, id`, where)
	if err := repo.db.SelectContext(ctx, &apps, q, args...); err != nil {
		return nil, errors.Wrap(err, "filtering applications")
	}
	return apps, nil
}

func (repo admissionRepository) UpdateApplication(ctx context.Context, app admission.Application) (admission.Application, error) {
	q := `
UPDATE admission_application SET
	applicant_name  = :applicant_name,
	email           = :email,
	date_of_birth   = :date_of_birth,
	guardian_name   = :guardian_name,
	guardian_phone  = :guardian_phone,
	status          = :status,
	reviewer_id     = :reviewer_id,
	decision_by     = :decision_by,
	decision_at     = :decision_at,
	decision_reason = :decision_reason,
	class_id        = :class_id,
	admission_date  = :admission_date,
	student_id      = :student_id,
	updated_at      = :updated_at
WHERE school_id = :school_id AND id = :id`
	res, err := repo.db.NamedExecContext(ctx, q, app)
	if err != nil {
		return admission.Application{}, errors.Wrap(err, "updating application")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return admission.Application{}, admission.ErrNotFound
	}
	return app, nil
}
