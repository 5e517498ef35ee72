package admission

import (
	"context"
	"fmt"
	"net/mail"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/darasa/core"
)

var (
	// errors
	ErrNotFound          = errors.New("application not found")
	ErrInvalidTransition = errors.New("invalid application status transition")
	ErrClassRequired     = errors.New("a class is required to enroll an applicant")
)

type (
	Repository interface {
		CreateApplication(ctx context.Context, app Application) (Application, error)
		GetApplicationByID(ctx context.Context, schoolID, id string) (Application, error)
		FilterApplications(ctx context.Context, schoolID string, filter QueryFilter) ([]Application, error)
		UpdateApplication(ctx context.Context, app Application) (Application, error)
	}

	// EnrolledStudent carries the data the student module needs to create
	// a Student record out of an approved application.
	EnrolledStudent struct {
		SchoolID      string
		ApplicationID string
		Name          string
		Email         string
		ClassID       string
		AdmissionDate time.Time
	}

	// StudentRegistry is implemented by the student module; enrollment is
	// the only admission transition with a side effect outside the
	// application row.
	StudentRegistry interface {
		RegisterApplicant(ctx context.Context, es EnrolledStudent) (studentID string, err error)
	}

	Service interface {
		Create(ctx context.Context, schoolID string, na NewApplication) (Application, error)
		GetByID(ctx context.Context, schoolID, id string) (Application, error)
		Filter(ctx context.Context, schoolID string, filter QueryFilter) ([]Application, error)
		Update(ctx context.Context, schoolID, id string, ua UpdateApplication) (Application, error)
		// Submit moves incomplete -> pending once all required fields are in.
		Submit(ctx context.Context, schoolID, id string) (Application, error)
		// StartReview moves pending -> under_review and claims the
		// application for reviewerID.
		StartReview(ctx context.Context, schoolID, id, reviewerID string) (Application, error)
		// Decide moves under_review -> approved|declined.
		Decide(ctx context.Context, schoolID, id, decidedBy string, approve bool, reason string) (Application, error)
		// Enroll moves approved -> enrolled, creating the Student record.
		Enroll(ctx context.Context, schoolID, id, enrolledBy, classID string, admissionDate time.Time) (Application, error)
		// Withdraw is allowed from any non-terminal state.
		Withdraw(ctx context.Context, schoolID, id string) (Application, error)
	}

	service struct {
		repo     Repository
		students StudentRegistry
		mailSvc  core.EmailService
		audit    core.AuditTrail
		logger   core.Logger
	}
)

func NewService(repo Repository, students StudentRegistry, mailSvc core.EmailService, audit core.AuditTrail, logger core.Logger) Service {
	return &service{
		repo:     repo,
		students: students,
		mailSvc:  mailSvc,
		audit:    audit,
		logger:   logger,
	}
}

func (svc *service) Create(ctx context.Context, schoolID string, na NewApplication) (Application, error) {
	now := time.Now().UTC()
	app := Application{
		ID:            uuid.New().String(),
		SchoolID:      schoolID,
		ApplicantName: na.ApplicantName,
		Email:         na.Email,
		DateOfBirth:   na.DateOfBirth,
		GuardianName:  na.GuardianName,
		GuardianPhone: na.GuardianPhone,
		Status:        StatusIncomplete,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	return svc.repo.CreateApplication(ctx, app)
}

func (svc *service) GetByID(ctx context.Context, schoolID, id string) (Application, error) {
	return svc.repo.GetApplicationByID(ctx, schoolID, id)
}

func (svc *service) Filter(ctx context.Context, schoolID string, filter QueryFilter) ([]Application, error) {
	return svc.repo.FilterApplications(ctx, schoolID, filter)
}

func (svc *service) Update(ctx context.Context, schoolID, id string, ua UpdateApplication) (Application, error) {
	app, err := svc.repo.GetApplicationByID(ctx, schoolID, id)
	if err != nil {
		return Application{}, err
	}
	// applications under review or decided are frozen for the applicant
	if app.Status != StatusIncomplete && app.Status != StatusPending {
		return Application{}, ErrInvalidTransition
	}

	app.ApplicantName = ua.ApplicantName
	app.Email = ua.Email
	app.DateOfBirth = ua.DateOfBirth
	app.GuardianName = ua.GuardianName
	app.GuardianPhone = ua.GuardianPhone
	app.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateApplication(ctx, app)
}

func (svc *service) Submit(ctx context.Context, schoolID, id string) (Application, error) {
	app, err := svc.repo.GetApplicationByID(ctx, schoolID, id)
	if err != nil {
		return Application{}, err
	}
	if !app.Status.CanTransitionTo(StatusPending) {
		return Application{}, ErrInvalidTransition
	}
	if missing := app.MissingFields(); len(missing) > 0 {
		flds := make([]core.FieldError, len(missing))
		for i, f := range missing {
			flds[i] = core.FieldError{Field: f, Error: "this field is required before submission"}
		}
		return Application{}, core.NewValidationError(errors.New("application is incomplete"), flds...)
	}

	app.Status = StatusPending
	app.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateApplication(ctx, app)
}

func (svc *service) StartReview(ctx context.Context, schoolID, id, reviewerID string) (Application, error) {
	app, err := svc.repo.GetApplicationByID(ctx, schoolID, id)
	if err != nil {
		return Application{}, err
	}
	if !app.Status.CanTransitionTo(StatusUnderReview) {
		return Application{}, ErrInvalidTransition
	}

	app.Status = StatusUnderReview
	app.ReviewerID = null.StringFrom(reviewerID)
	app.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateApplication(ctx, app)
}

func (svc *service) Decide(ctx context.Context, schoolID, id, decidedBy string, approve bool, reason string) (Application, error) {
	app, err := svc.repo.GetApplicationByID(ctx, schoolID, id)
	if err != nil {
		return Application{}, err
	}
	decision := StatusDeclined
	if approve {
		decision = StatusApproved
	}
	if !app.Status.CanTransitionTo(decision) {
		return Application{}, ErrInvalidTransition
	}

	now := time.Now().UTC()
	app.Status = decision
	app.DecisionBy = null.StringFrom(decidedBy)
	app.DecisionAt = null.TimeFrom(now)
	app.DecisionReason = null.NewString(reason, reason != "")
	app.UpdatedAt = now

	app, err = svc.repo.UpdateApplication(ctx, app)
	if err != nil {
		return Application{}, errors.Wrap(err, "recording decision")
	}

	svc.recordAudit(ctx, app, decidedBy, "application."+string(decision))
	svc.sendDecisionMail(app)
	return app, nil
}

func (svc *service) Enroll(ctx context.Context, schoolID, id, enrolledBy, classID string, admissionDate time.Time) (Application, error) {
	app, err := svc.repo.GetApplicationByID(ctx, schoolID, id)
	if err != nil {
		return Application{}, err
	}
	if !app.Status.CanTransitionTo(StatusEnrolled) {
		return Application{}, ErrInvalidTransition
	}
	// rejected with no state change: the class assignment is what turns an
	// applicant into a student
	if core.CleanString(classID) == "" {
		return Application{}, core.NewValidationError(ErrClassRequired, core.FieldError{Field: "class_id", Error: ErrClassRequired.Error()})
	}
	if admissionDate.IsZero() {
		admissionDate = time.Now().UTC()
	}

	studentID, err := svc.students.RegisterApplicant(ctx, EnrolledStudent{
		SchoolID:      schoolID,
		ApplicationID: app.ID,
		Name:          app.ApplicantName,
		Email:         app.Email,
		ClassID:       classID,
		AdmissionDate: admissionDate,
	})
	if err != nil {
		return Application{}, errors.Wrap(err, "registering student")
	}

	app.Status = StatusEnrolled
	app.ClassID = null.StringFrom(classID)
	app.AdmissionDate = null.TimeFrom(admissionDate)
	app.StudentID = null.StringFrom(studentID)
	app.UpdatedAt = time.Now().UTC()

	app, err = svc.repo.UpdateApplication(ctx, app)
	if err != nil {
		return Application{}, errors.Wrap(err, "recording enrollment")
	}

	svc.recordAudit(ctx, app, enrolledBy, "application.enrolled")
	svc.sendEnrolledMail(app)
	return app, nil
}

func (svc *service) Withdraw(ctx context.Context, schoolID, id string) (Application, error) {
	app, err := svc.repo.GetApplicationByID(ctx, schoolID, id)
	if err != nil {
		return Application{}, err
	}
	if !app.Status.CanTransitionTo(StatusWithdrawn) {
		return Application{}, ErrInvalidTransition
	}

	app.Status = StatusWithdrawn
	app.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateApplication(ctx, app)
}

func (svc *service) recordAudit(ctx context.Context, app Application, actorID, action string) {
	if err := svc.audit.Record(ctx, core.AuditEntry{
		ID:         uuid.New().String(),
		SchoolID:   app.SchoolID,
		ActorID:    actorID,
		Action:     action,
		ObjectType: "admissions_application",
		ObjectID:   app.ID,
		CreatedAt:  time.Now().UTC(),
	}); err != nil {
		svc.logger.Warn("recording application audit entry", err)
	}
}

func (svc *service) sendDecisionMail(app Application) {
	var body string
	switch app.Status {
	case StatusApproved:
		body = fmt.Sprintf("Dear %s,\n\nGood news! Your application has been approved. "+
			"We will be in touch shortly with enrollment details.", app.ApplicantName)
	case StatusDeclined:
		body = fmt.Sprintf("Dear %s,\n\nWe regret to inform you that your application was not successful.", app.ApplicantName)
		if app.DecisionReason.Valid {
			body += "\n\nReason: " + app.DecisionReason.String
		}
	default:
		return
	}
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:          []mail.Address{{Name: app.ApplicantName, Address: app.Email}},
		Subject:     "Your admission application",
		TextContent: body,
	})
}

func (svc *service) sendEnrolledMail(app Application) {
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:      []mail.Address{{Name: app.ApplicantName, Address: app.Email}},
		Subject: "Welcome aboard!",
		TextContent: fmt.Sprintf("Dear %s,\n\nYour enrollment is confirmed for %s. See you in class!",
			app.ApplicantName, app.AdmissionDate.Time.Format("Monday, 2 January 2006")),
	})
}
