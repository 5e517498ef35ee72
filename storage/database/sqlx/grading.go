package sqlxrepos

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/darasa/core/grading"
)

type gradingRepository struct {
	db *sqlx.DB
}

var _ grading.Repository = (*gradingRepository)(nil) // interface compliance check

func NewGradingRepository(db *sqlx.DB) *gradingRepository {
	return &gradingRepository{db: db}
}

func trapGradingNoRowsErr(err, notFound error, msg string) error {
	if err == sql.ErrNoRows {
		return notFound
	}
	return errors.Wrap(err, msg)
}

func (repo gradingRepository) CreateCategory(ctx context.Context, cat grading.GradeCategory) (grading.GradeCategory, error) {
	q := `
INSERT INTO grade_category (id, school_id, class_id, subject_id, term_id, name, weight, drop_lowest, is_extra_credit, created_at, updated_at)
VALUES (:id, :school_id, :class_id, :subject_id, :term_id, :name, :weight, :drop_lowest, :is_extra_credit, :created_at, :updated_at)`
	if _, err := repo.db.NamedExecContext(ctx, q, cat); err != nil {
		return grading.GradeCategory{}, errors.Wrap(err, "inserting grade category")
	}
	return cat, nil
}

func (repo gradingRepository) QueryCategories(ctx context.Context, schoolID, classID, subjectID string, termID null.String) ([]grading.GradeCategory, error) {
	q := `SELECT * FROM grade_category WHERE school_id = $1 AND class_id = $2 AND subject_id = $3`
	args := []interface{}{schoolID, classID, subjectID}
	if termID.Valid {
		// term-scoped categories plus term-agnostic ones
		q += ` AND (term_id = $4 OR term_id IS NULL)`
		args = append(args, termID.String)
	}
	q += ` ORDER BY created_at, id`

	var cats []grading.GradeCategory
	if err := repo.db.SelectContext(ctx, &cats, q, args...); err != nil {
		return nil, errors.Wrap(err, "querying grade categories")
	}
	return cats, nil
}

func (repo gradingRepository) CreateEntry(ctx context.Context, entry grading.GradebookEntry) (grading.GradebookEntry, error) {
	q := `
INSERT INTO gradebook_entry (id, school_id, student_id, category_id, assessment_id, score, max_score, percentage, is_excused, is_missing, created_at, updated_at)
VALUES (:id, :school_id, :student_id, :category_id, :assessment_id, :score, :max_score, :percentage, :is_excused, :is_missing, :created_at, :updated_at)`
	if _, err := repo.db.NamedExecContext(ctx, q, entry); err != nil {
		return grading.GradebookEntry{}, errors.Wrap(err, "inserting gradebook entry")
	}
	return entry, nil
}

func (repo gradingRepository) SetEntryExcused(ctx context.Context, schoolID, entryID string, excused bool) (grading.GradebookEntry, error) {
	var entry grading.GradebookEntry
	q := `UPDATE gradebook_entry SET is_excused = $3, updated_at = now() WHERE school_id = $1 AND id = $2 RETURNING *`
	if err := repo.db.GetContext(ctx, &entry, q, schoolID, entryID, excused); err != nil {
		return grading.GradebookEntry{}, trapGradingNoRowsErr(err, grading.ErrEntryNotFound, "excusing gradebook entry")
	}
	return entry, nil
}

func (repo gradingRepository) QueryStudentEntries(ctx context.Context, schoolID, studentID string, categoryIDs []string) ([]grading.GradebookEntry, error) {
	var entries []grading.GradebookEntry
	q := `
SELECT * FROM gradebook_entry
WHERE school_id = $1 AND student_id = $2 AND category_id = ANY($3)
ORDER BY created_at, id`
	if err := repo.db.SelectContext(ctx, &entries, q, schoolID, studentID, pq.Array(categoryIDs)); err != nil {
		return nil, errors.Wrap(err, "querying gradebook entries")
	}
	return entries, nil
}

func (repo gradingRepository) CreateScale(ctx context.Context, scale grading.GradingScale) (grading.GradingScale, error) {
	q := `
INSERT INTO grading_scale (id, school_id, name, is_default, scale_config, created_at, updated_at)
VALUES (:id, :school_id, :name, :is_default, :scale_config, :created_at, :updated_at)`
	if _, err := repo.db.NamedExecContext(ctx, q, scale); err != nil {
		return grading.GradingScale{}, errors.Wrap(err, "inserting grading scale")
	}
	return scale, nil
}

func (repo gradingRepository) GetScaleByID(ctx context.Context, schoolID, id string) (grading.GradingScale, error) {
	var scale grading.GradingScale
	q := `SELECT * FROM grading_scale WHERE school_id = $1 AND id = $2`
	if err := repo.db.GetContext(ctx, &scale, q, schoolID, id); err != nil {
		return grading.GradingScale{}, trapGradingNoRowsErr(err, grading.ErrScaleNotFound, "finding grading scale")
	}
	return scale, nil
}

func (repo gradingRepository) GetDefaultScale(ctx context.Context, schoolID string) (grading.GradingScale, error) {
	var scale grading.GradingScale
	q := `SELECT * FROM grading_scale WHERE school_id = $1 AND is_default`
	if err := repo.db.GetContext(ctx, &scale, q, schoolID); err != nil {
		return grading.GradingScale{}, trapGradingNoRowsErr(err, grading.ErrScaleNotFound, "finding default grading scale")
	}
	return scale, nil
}

func (repo gradingRepository) QueryScales(ctx context.Context, schoolID string) ([]grading.GradingScale, error) {
	var scales []grading.GradingScale
	q := `SELECT * FROM grading_scale WHERE school_id = $1 ORDER BY created_at, id`
	if err := repo.db.SelectContext(ctx, &scales, q, schoolID); err != nil {
		return nil, errors.Wrap(err, "querying grading scales")
	}
	return scales, nil
}

func (repo gradingRepository) GetTermGrade(ctx context.Context, schoolID, studentID, classID, subjectID, termID string) (grading.TermGrade, error) {
	var tg grading.TermGrade
	q := `
SELECT * FROM term_grade
WHERE school_id = $1 AND student_id = $2 AND class_id = $3 AND subject_id = $4 AND term_id = $5`
	if err := repo.db.GetContext(ctx, &tg, q, schoolID, studentID, classID, subjectID, termID); err != nil {
		return grading.TermGrade{}, trapGradingNoRowsErr(err, grading.ErrTermGradeNotFound, "finding term grade")
	}
	return tg, nil
}

func (repo gradingRepository) GetTermGradeByID(ctx context.Context, schoolID, id string) (grading.TermGrade, error) {
	var tg grading.TermGrade
	q := `SELECT * FROM term_grade WHERE school_id = $1 AND id = $2`
	if err := repo.db.GetContext(ctx, &tg, q, schoolID, id); err != nil {
		return grading.TermGrade{}, trapGradingNoRowsErr(err, grading.ErrTermGradeNotFound, "finding term grade by ID")
	}
	return tg, nil
}

func (repo gradingRepository) UpsertTermGrade(ctx context.Context, tg grading.TermGrade) (grading.TermGrade, error) {
	var out grading.TermGrade
	q := `
INSERT INTO term_grade (id, school_id, student_id, class_id, subject_id, term_id, weighted_average, final_letter_grade, status, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
ON CONFLICT (student_id, class_id, subject_id, term_id) DO UPDATE SET
	weighted_average   = EXCLUDED.weighted_average,
	final_letter_grade = EXCLUDED.final_letter_grade,
	status             = EXCLUDED.status,
	updated_at         = EXCLUDED.updated_at
RETURNING *`
	err := repo.db.GetContext(ctx, &out, q,
		tg.ID, tg.SchoolID, tg.StudentID, tg.ClassID, tg.SubjectID, tg.TermID,
		tg.WeightedAverage, tg.FinalLetterGrade, tg.Status, tg.CreatedAt, tg.UpdatedAt,
	)
	if err != nil {
		return grading.TermGrade{}, errors.Wrap(err, "upserting term grade")
	}
	return out, nil
}

func (repo gradingRepository) SetTermGradeStatus(ctx context.Context, schoolID, id string, status grading.TermGradeStatus) (grading.TermGrade, error) {
	var tg grading.TermGrade
	q := `UPDATE term_grade SET status = $3, updated_at = now() WHERE school_id = $1 AND id = $2 RETURNING *`
	if err := repo.db.GetContext(ctx, &tg, q, schoolID, id, status); err != nil {
		return grading.TermGrade{}, trapGradingNoRowsErr(err, grading.ErrTermGradeNotFound, "setting term grade status")
	}
	return tg, nil
}
