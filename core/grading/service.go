package grading

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/darasa/core"
)

var (
	// errors
	ErrCategoryNotFound    = errors.New("grade category not found")
	ErrScaleNotFound       = errors.New("grading scale not found")
	ErrEntryNotFound       = errors.New("gradebook entry not found")
	ErrTermGradeNotFound   = errors.New("term grade not found")
	ErrTermGradeFinalized  = errors.New("term grade is finalized and can no longer be recomputed")
	ErrInvalidStatusChange = errors.New("invalid term grade status change")
)

type (
	Repository interface {
		CreateCategory(ctx context.Context, cat GradeCategory) (GradeCategory, error)
		// QueryCategories returns the categories for (class, subject); a valid
		// termID narrows to that term plus term-agnostic categories.
		QueryCategories(ctx context.Context, schoolID, classID, subjectID string, termID null.String) ([]GradeCategory, error)
		CreateEntry(ctx context.Context, entry GradebookEntry) (GradebookEntry, error)
		SetEntryExcused(ctx context.Context, schoolID, entryID string, excused bool) (GradebookEntry, error)
		QueryStudentEntries(ctx context.Context, schoolID, studentID string, categoryIDs []string) ([]GradebookEntry, error)
		CreateScale(ctx context.Context, scale GradingScale) (GradingScale, error)
		GetScaleByID(ctx context.Context, schoolID, id string) (GradingScale, error)
		GetDefaultScale(ctx context.Context, schoolID string) (GradingScale, error)
		QueryScales(ctx context.Context, schoolID string) ([]GradingScale, error)
		GetTermGrade(ctx context.Context, schoolID, studentID, classID, subjectID, termID string) (TermGrade, error)
		GetTermGradeByID(ctx context.Context, schoolID, id string) (TermGrade, error)
		// UpsertTermGrade inserts or replaces the snapshot keyed on
		// (student, class, subject, term).
		UpsertTermGrade(ctx context.Context, tg TermGrade) (TermGrade, error)
		SetTermGradeStatus(ctx context.Context, schoolID, id string, status TermGradeStatus) (TermGrade, error)
	}

	Service interface {
		CreateCategory(ctx context.Context, schoolID string, nc NewGradeCategory) (GradeCategory, error)
		QueryCategories(ctx context.Context, schoolID, classID, subjectID string, termID null.String) ([]GradeCategory, error)
		RecordEntry(ctx context.Context, schoolID string, ne NewGradebookEntry) (GradebookEntry, error)
		ExcuseEntry(ctx context.Context, schoolID, entryID string, excused bool) (GradebookEntry, error)
		CreateScale(ctx context.Context, schoolID string, ns NewGradingScale) (GradingScale, error)
		QueryScales(ctx context.Context, schoolID string) ([]GradingScale, error)
		// LetterGradeFor resolves scaleID (then the school default, then the
		// fixed fallback) and maps pct through it.
		LetterGradeFor(ctx context.Context, schoolID string, pct float64, scaleID null.String) (string, error)
		// Average computes the weighted average on the fly without touching
		// any TermGrade snapshot. Invalid result means "no grade yet".
		Average(ctx context.Context, schoolID, studentID, classID, subjectID string, termID null.String) (null.Float64, error)
		// ComputeTermGrade recomputes and stores the snapshot for a term.
		// Rejected with ErrTermGradeFinalized once the snapshot is finalized
		// or published.
		ComputeTermGrade(ctx context.Context, schoolID, studentID, classID, subjectID, termID string) (TermGrade, error)
		GetTermGrade(ctx context.Context, schoolID, studentID, classID, subjectID, termID string) (TermGrade, error)
		FinalizeTermGrade(ctx context.Context, schoolID, actorID, termGradeID string) (TermGrade, error)
		PublishTermGrade(ctx context.Context, schoolID, actorID, termGradeID string) (TermGrade, error)
	}

	service struct {
		repo   Repository
		audit  core.AuditTrail
		logger core.Logger
	}
)

func NewService(repo Repository, audit core.AuditTrail, logger core.Logger) Service {
	return &service{repo: repo, audit: audit, logger: logger}
}

func (svc *service) CreateCategory(ctx context.Context, schoolID string, nc NewGradeCategory) (GradeCategory, error) {
	now := time.Now().UTC()
	cat := GradeCategory{
		ID:            uuid.New().String(),
		SchoolID:      schoolID,
		ClassID:       nc.ClassID,
		SubjectID:     nc.SubjectID,
		TermID:        null.NewString(nc.TermID, nc.TermID != ""),
		Name:          nc.Name,
		Weight:        nc.Weight,
		DropLowest:    nc.DropLowest,
		IsExtraCredit: nc.IsExtraCredit,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	return svc.repo.CreateCategory(ctx, cat)
}

func (svc *service) QueryCategories(ctx context.Context, schoolID, classID, subjectID string, termID null.String) ([]GradeCategory, error) {
	return svc.repo.QueryCategories(ctx, schoolID, classID, subjectID, termID)
}

func (svc *service) RecordEntry(ctx context.Context, schoolID string, ne NewGradebookEntry) (GradebookEntry, error) {
	now := time.Now().UTC()
	entry := GradebookEntry{
		ID:           uuid.New().String(),
		SchoolID:     schoolID,
		StudentID:    ne.StudentID,
		CategoryID:   ne.CategoryID,
		AssessmentID: null.NewString(ne.AssessmentID, ne.AssessmentID != ""),
		Score:        ne.Score,
		MaxScore:     ne.MaxScore,
		Percentage:   ne.Percentage(),
		IsExcused:    ne.IsExcused,
		IsMissing:    ne.IsMissing,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	return svc.repo.CreateEntry(ctx, entry)
}

func (svc *service) ExcuseEntry(ctx context.Context, schoolID, entryID string, excused bool) (GradebookEntry, error) {
	return svc.repo.SetEntryExcused(ctx, schoolID, entryID, excused)
}

func (svc *service) CreateScale(ctx context.Context, schoolID string, ns NewGradingScale) (GradingScale, error) {
	now := time.Now().UTC()
	scale := GradingScale{
		ID:        uuid.New().String(),
		SchoolID:  schoolID,
		Name:      ns.Name,
		IsDefault: ns.IsDefault,
		Config:    ns.Config,
		CreatedAt: now,
		UpdatedAt: now,
	}
	return svc.repo.CreateScale(ctx, scale)
}

func (svc *service) QueryScales(ctx context.Context, schoolID string) ([]GradingScale, error) {
	return svc.repo.QueryScales(ctx, schoolID)
}

// resolveScale returns nil when neither scaleID nor a school default
// resolves; the caller then applies the fixed fallback scale.
func (svc *service) resolveScale(ctx context.Context, schoolID string, scaleID null.String) (*GradingScale, error) {
	if scaleID.Valid {
		scale, err := svc.repo.GetScaleByID(ctx, schoolID, scaleID.String)
		switch errors.Cause(err) {
		case nil:
			return &scale, nil
		case ErrScaleNotFound:
			// fall through to the school default
		default:
			return nil, err
		}
	}
	scale, err := svc.repo.GetDefaultScale(ctx, schoolID)
	switch errors.Cause(err) {
	case nil:
		return &scale, nil
	case ErrScaleNotFound:
		return nil, nil
	default:
		return nil, err
	}
}

func (svc *service) LetterGradeFor(ctx context.Context, schoolID string, pct float64, scaleID null.String) (string, error) {
	scale, err := svc.resolveScale(ctx, schoolID, scaleID)
	if err != nil {
		return "", errors.Wrap(err, "resolving grading scale")
	}
	return LetterGrade(pct, scale), nil
}

func (svc *service) Average(ctx context.Context, schoolID, studentID, classID, subjectID string, termID null.String) (null.Float64, error) {
	cats, err := svc.repo.QueryCategories(ctx, schoolID, classID, subjectID, termID)
	if err != nil {
		return null.Float64{}, errors.Wrap(err, "querying grade categories")
	}
	if len(cats) == 0 {
		return null.Float64{}, nil
	}

	catIDs := make([]string, len(cats))
	for i, cat := range cats {
		catIDs[i] = cat.ID
	}
	entries, err := svc.repo.QueryStudentEntries(ctx, schoolID, studentID, catIDs)
	if err != nil {
		return null.Float64{}, errors.Wrap(err, "querying gradebook entries")
	}

	byCategory := make(map[string][]GradebookEntry, len(cats))
	for _, e := range entries {
		byCategory[e.CategoryID] = append(byCategory[e.CategoryID], e)
	}
	return WeightedAverage(cats, byCategory), nil
}

func (svc *service) ComputeTermGrade(ctx context.Context, schoolID, studentID, classID, subjectID, termID string) (TermGrade, error) {
	existing, err := svc.repo.GetTermGrade(ctx, schoolID, studentID, classID, subjectID, termID)
	switch errors.Cause(err) {
	case nil:
		if existing.Status.IsFinal() {
			return TermGrade{}, ErrTermGradeFinalized
		}
	case ErrTermGradeNotFound:
		existing = TermGrade{ID: uuid.New().String(), CreatedAt: time.Now().UTC()}
	default:
		return TermGrade{}, errors.Wrap(err, "fetching term grade")
	}

	avg, err := svc.Average(ctx, schoolID, studentID, classID, subjectID, null.StringFrom(termID))
	if err != nil {
		return TermGrade{}, err
	}

	var letter null.String
	if avg.Valid {
		scale, err := svc.resolveScale(ctx, schoolID, null.String{})
		if err != nil {
			return TermGrade{}, errors.Wrap(err, "resolving grading scale")
		}
		letter = null.StringFrom(LetterGrade(avg.Float64, scale))
	}

	tg := TermGrade{
		ID:               existing.ID,
		SchoolID:         schoolID,
		StudentID:        studentID,
		ClassID:          classID,
		SubjectID:        subjectID,
		TermID:           termID,
		WeightedAverage:  avg,
		FinalLetterGrade: letter,
		Status:           TermGradeCalculated,
		CreatedAt:        existing.CreatedAt,
		UpdatedAt:        time.Now().UTC(),
	}
	return svc.repo.UpsertTermGrade(ctx, tg)
}

func (svc *service) GetTermGrade(ctx context.Context, schoolID, studentID, classID, subjectID, termID string) (TermGrade, error) {
	return svc.repo.GetTermGrade(ctx, schoolID, studentID, classID, subjectID, termID)
}

func (svc *service) FinalizeTermGrade(ctx context.Context, schoolID, actorID, termGradeID string) (TermGrade, error) {
	return svc.setStatus(ctx, schoolID, actorID, termGradeID, TermGradeFinalized, "term_grade.finalize")
}

func (svc *service) PublishTermGrade(ctx context.Context, schoolID, actorID, termGradeID string) (TermGrade, error) {
	return svc.setStatus(ctx, schoolID, actorID, termGradeID, TermGradePublished, "term_grade.publish")
}

func (svc *service) setStatus(ctx context.Context, schoolID, actorID, termGradeID string, status TermGradeStatus, action string) (TermGrade, error) {
	tg, err := svc.repo.GetTermGradeByID(ctx, schoolID, termGradeID)
	if err != nil {
		return TermGrade{}, err
	}
	if !tg.Status.CanTransitionTo(status) {
		return TermGrade{}, ErrInvalidStatusChange
	}

	tg, err = svc.repo.SetTermGradeStatus(ctx, schoolID, termGradeID, status)
	if err != nil {
		return TermGrade{}, errors.Wrapf(err, "setting term grade status to %s", status)
	}

	if err := svc.audit.Record(ctx, core.AuditEntry{
		ID:         uuid.New().String(),
		SchoolID:   schoolID,
		ActorID:    actorID,
		Action:     action,
		ObjectType: "term_grade",
		ObjectID:   tg.ID,
		CreatedAt:  time.Now().UTC(),
	}); err != nil {
		svc.logger.Warn("recording term grade audit entry", err)
	}
	return tg, nil
}
