package echoapi

import (
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/darasa/core/admission"
	"github.com/trezcool/darasa/core/user"
)

type admissionApi struct {
	svc      admission.Service
	validate *validator.Validate
}

func registerAdmissionAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps ServerDeps) {
	api := admissionApi{
		svc:      deps.AdmissionSvc,
		validate: deps.Validate,
	}

	ag := g.Group("/admissions", jwt)

	ag.POST("/applications", api.create, adminMiddleware(user.RoleAdminRegistrar, user.RoleAdminOwner, user.RoleAdminPrincipal))
	ag.GET("/applications", api.query, staffMiddleware())
	ag.GET("/applications/:id", api.retrieve, staffMiddleware())
	ag.PUT("/applications/:id", api.update, adminMiddleware())
	ag.POST("/applications/:id/submit", api.submit, adminMiddleware())
	ag.POST("/applications/:id/review", api.startReview, adminMiddleware())
	ag.POST("/applications/:id/decide", api.decide, adminMiddleware())
	ag.POST("/applications/:id/enroll", api.enroll, adminMiddleware())
	ag.POST("/applications/:id/withdraw", api.withdraw, adminMiddleware())
}

func (api *admissionApi) trapErr(err error, msg string) error {
	switch errors.Cause(err) {
	case admission.ErrNotFound:
		return errHttpNotFound
	case admission.ErrInvalidTransition:
		return errHttpConflict
	}
	return errors.Wrap(err, msg)
}

func (api *admissionApi) create(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	var data admission.NewApplication
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewApplication")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	app, err := api.svc.Create(ctx.Request().Context(), claims.SchoolID, data)
	if err != nil {
		return api.trapErr(err, "creating application")
	}
	return ctx.JSON(http.StatusCreated, app)
}

func (api *admissionApi) query(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	filter := new(admission.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []admission.Application{})
	}
	filter.Clean()

	apps, err := api.svc.Filter(ctx.Request().Context(), claims.SchoolID, *filter)
	if err != nil {
		return api.trapErr(err, "querying applications")
	}
	if apps == nil {
		apps = []admission.Application{}
	}
	return ctx.JSON(http.StatusOK, apps)
}

func (api *admissionApi) retrieve(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	app, err := api.svc.GetByID(ctx.Request().Context(), claims.SchoolID, ctx.Param("id"))
	if err != nil {
		return api.trapErr(err, "fetching application")
	}
	return ctx.JSON(http.StatusOK, app)
}

func (api *admissionApi) update(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	var data admission.UpdateApplication
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateApplication")
	}

	orig, err := api.svc.GetByID(ctx.Request().Context(), claims.SchoolID, ctx.Param("id"))
	if err != nil {
		return api.trapErr(err, "fetching application")
	}
	if err := data.Validate(orig, api.validate); err != nil {
		return err
	}

	app, err := api.svc.Update(ctx.Request().Context(), claims.SchoolID, ctx.Param("id"), data)
	if err != nil {
		return api.trapErr(err, "updating application")
	}
	return ctx.JSON(http.StatusOK, app)
}

func (api *admissionApi) submit(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	app, err := api.svc.Submit(ctx.Request().Context(), claims.SchoolID, ctx.Param("id"))
	if err != nil {
		return api.trapErr(err, "submitting application")
	}
	return ctx.JSON(http.StatusOK, app)
}

func (api *admissionApi) startReview(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	app, err := api.svc.StartReview(ctx.Request().Context(), claims.SchoolID, ctx.Param("id"), claims.Subject)
	if err != nil {
		return api.trapErr(err, "starting application review")
	}
	return ctx.JSON(http.StatusOK, app)
}

func (api *admissionApi) decide(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	var data DecisionRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to DecisionRequest")
	}

	app, err := api.svc.Decide(ctx.Request().Context(), claims.SchoolID, ctx.Param("id"), claims.Subject, data.Approve, data.Reason)
	if err != nil {
		return api.trapErr(err, "deciding application")
	}
	return ctx.JSON(http.StatusOK, app)
}

func (api *admissionApi) enroll(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	var data EnrollRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to EnrollRequest")
	}

	var admissionDate time.Time
	if data.AdmissionDate != nil {
		admissionDate = *data.AdmissionDate
	}

	app, err := api.svc.Enroll(ctx.Request().Context(), claims.SchoolID, ctx.Param("id"), claims.Subject, data.ClassID, admissionDate)
	if err != nil {
		return api.trapErr(err, "enrolling applicant")
	}
	return ctx.JSON(http.StatusOK, app)
}

func (api *admissionApi) withdraw(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	app, err := api.svc.Withdraw(ctx.Request().Context(), claims.SchoolID, ctx.Param("id"))
	if err != nil {
		return api.trapErr(err, "withdrawing application")
	}
	return ctx.JSON(http.StatusOK, app)
}

type (
	DecisionRequest struct {
		Approve bool   `json:"approve"`
		Reason  string `json:"reason"`
	}

	EnrollRequest struct {
		ClassID       string     `json:"class_id"`
		AdmissionDate *time.Time `json:"admission_date"`
	}
)
