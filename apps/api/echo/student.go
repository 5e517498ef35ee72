package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/darasa/core/student"
)

type studentApi struct {
	svc      student.Service
	validate *validator.Validate
}

func registerStudentAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps ServerDeps) {
	api := studentApi{
		svc:      deps.StudentSvc,
		validate: deps.Validate,
	}

	sg := g.Group("/students", jwt, staffMiddleware())

	sg.POST("", api.create, adminMiddleware())
	sg.GET("", api.query)
	sg.GET("/:id", api.retrieve)

	rg := g.Group("/risk-cases", jwt, staffMiddleware())
	rg.POST("", api.openRiskCase)
	rg.GET("", api.queryRiskCases)
	rg.PUT("/:id/status", api.setRiskCaseStatus)
	rg.POST("/:id/interventions", api.addIntervention)
	rg.GET("/:id/interventions", api.queryInterventions)

	ig := g.Group("/interventions", jwt, staffMiddleware())
	ig.PUT("/:id/status", api.setInterventionStatus)
}

func (api *studentApi) trapErr(err error, msg string) error {
	switch errors.Cause(err) {
	case student.ErrNotFound, student.ErrRiskCaseNotFound, student.ErrInterventionNotFound:
		return errHttpNotFound
	case student.ErrInvalidTransition:
		return errHttpConflict
	}
	return errors.Wrap(err, msg)
}

func (api *studentApi) create(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	var data student.NewStudent
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewStudent")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	s, err := api.svc.Create(ctx.Request().Context(), claims.SchoolID, data)
	if err != nil {
		return api.trapErr(err, "creating student")
	}
	return ctx.JSON(http.StatusCreated, s)
}

func (api *studentApi) query(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	students, err := api.svc.QueryAll(ctx.Request().Context(), claims.SchoolID)
	if err != nil {
		return api.trapErr(err, "querying students")
	}
	if students == nil {
		students = []student.Student{}
	}
	return ctx.JSON(http.StatusOK, students)
}

func (api *studentApi) retrieve(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	s, err := api.svc.GetByID(ctx.Request().Context(), claims.SchoolID, ctx.Param("id"))
	if err != nil {
		return api.trapErr(err, "fetching student")
	}
	return ctx.JSON(http.StatusOK, s)
}

func (api *studentApi) openRiskCase(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	var data student.NewRiskCase
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewRiskCase")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	rc, err := api.svc.OpenRiskCase(ctx.Request().Context(), claims.SchoolID, claims.Subject, data)
	if err != nil {
		return api.trapErr(err, "opening risk case")
	}
	return ctx.JSON(http.StatusCreated, rc)
}

func (api *studentApi) queryRiskCases(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	studentID := ctx.QueryParam("student_id")
	cases, err := api.svc.QueryRiskCases(ctx.Request().Context(), claims.SchoolID, null.NewString(studentID, studentID != ""))
	if err != nil {
		return api.trapErr(err, "querying risk cases")
	}
	if cases == nil {
		cases = []student.RiskCase{}
	}
	return ctx.JSON(http.StatusOK, cases)
}

func (api *studentApi) setRiskCaseStatus(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	var data RiskCaseStatusRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to RiskCaseStatusRequest")
	}

	rc, err := api.svc.SetRiskCaseStatus(ctx.Request().Context(), claims.SchoolID, ctx.Param("id"), data.Status)
	if err != nil {
		return api.trapErr(err, "setting risk case status")
	}
	return ctx.JSON(http.StatusOK, rc)
}

func (api *studentApi) addIntervention(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	var data student.NewIntervention
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewIntervention")
	}
	data.RiskCaseID = ctx.Param("id")
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	iv, err := api.svc.AddIntervention(ctx.Request().Context(), claims.SchoolID, data)
	if err != nil {
		return api.trapErr(err, "adding intervention")
	}
	return ctx.JSON(http.StatusCreated, iv)
}

func (api *studentApi) queryInterventions(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	ivs, err := api.svc.QueryInterventions(ctx.Request().Context(), claims.SchoolID, ctx.Param("id"))
	if err != nil {
		return api.trapErr(err, "querying interventions")
	}
	if ivs == nil {
		ivs = []student.Intervention{}
	}
	return ctx.JSON(http.StatusOK, ivs)
}

func (api *studentApi) setInterventionStatus(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	var data InterventionStatusRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to InterventionStatusRequest")
	}

	iv, err := api.svc.SetInterventionStatus(ctx.Request().Context(), claims.SchoolID, ctx.Param("id"), data.Status)
	if err != nil {
		return api.trapErr(err, "setting intervention status")
	}
	return ctx.JSON(http.StatusOK, iv)
}

type (
	RiskCaseStatusRequest struct {
		Status student.RiskCaseStatus `json:"status"`
	}

	InterventionStatusRequest struct {
		Status student.InterventionStatus `json:"status"`
	}
)
