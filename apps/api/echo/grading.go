package echoapi

import (
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/grading"
	"github.com/trezcool/darasa/services/metrics"
)

type gradingApi struct {
	svc      grading.Service
	validate *validator.Validate
}

func registerGradingAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps ServerDeps) {
	api := gradingApi{
		svc:      deps.GradingSvc,
		validate: deps.Validate,
	}

	gg := g.Group("/grading", jwt, staffMiddleware())

	gg.POST("/categories", api.createCategory)
	gg.GET("/categories", api.queryCategories)
	gg.POST("/entries", api.recordEntry)
	gg.PUT("/entries/:id/excuse", api.excuseEntry)
	gg.POST("/scales", api.createScale, adminMiddleware())
	gg.GET("/scales", api.queryScales)
	gg.GET("/letter-grade", api.letterGrade)
	gg.GET("/students/:studentID/average", api.average)
	gg.POST("/term-grades/compute", api.computeTermGrade)
	gg.GET("/term-grades", api.getTermGrade)
	gg.POST("/term-grades/:id/finalize", api.finalizeTermGrade, adminMiddleware())
	gg.POST("/term-grades/:id/publish", api.publishTermGrade, adminMiddleware())
}

// trapErr maps domain sentinels to their HTTP counterparts.
func (api *gradingApi) trapErr(err error, msg string) error {
	switch errors.Cause(err) {
	case grading.ErrCategoryNotFound, grading.ErrScaleNotFound, grading.ErrEntryNotFound, grading.ErrTermGradeNotFound:
		return errHttpNotFound
	case grading.ErrTermGradeFinalized, grading.ErrInvalidStatusChange:
		return errHttpConflict
	}
	return errors.Wrap(err, msg)
}

func (api *gradingApi) createCategory(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	var data grading.NewGradeCategory
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewGradeCategory")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	cat, err := api.svc.CreateCategory(ctx.Request().Context(), claims.SchoolID, data)
	if err != nil {
		return api.trapErr(err, "creating grade category")
	}
	return ctx.JSON(http.StatusCreated, cat)
}

func (api *gradingApi) queryCategories(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	termID := ctx.QueryParam("term_id")
	cats, err := api.svc.QueryCategories(
		ctx.Request().Context(), claims.SchoolID,
		ctx.QueryParam("class_id"), ctx.QueryParam("subject_id"),
		null.NewString(termID, termID != ""),
	)
	if err != nil {
		return api.trapErr(err, "querying grade categories")
	}
	if cats == nil {
		cats = []grading.GradeCategory{}
	}
	return ctx.JSON(http.StatusOK, cats)
}

func (api *gradingApi) recordEntry(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	var data grading.NewGradebookEntry
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewGradebookEntry")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	entry, err := api.svc.RecordEntry(ctx.Request().Context(), claims.SchoolID, data)
	if err != nil {
		return api.trapErr(err, "recording gradebook entry")
	}
	return ctx.JSON(http.StatusCreated, entry)
}

func (api *gradingApi) excuseEntry(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	var data ExcuseRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ExcuseRequest")
	}

	entry, err := api.svc.ExcuseEntry(ctx.Request().Context(), claims.SchoolID, ctx.Param("id"), data.Excused)
	if err != nil {
		return api.trapErr(err, "excusing gradebook entry")
	}
	return ctx.JSON(http.StatusOK, entry)
}

func (api *gradingApi) createScale(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	var data grading.NewGradingScale
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewGradingScale")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	scale, err := api.svc.CreateScale(ctx.Request().Context(), claims.SchoolID, data)
	if err != nil {
		return api.trapErr(err, "creating grading scale")
	}
	return ctx.JSON(http.StatusCreated, scale)
}

func (api *gradingApi) queryScales(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	scales, err := api.svc.QueryScales(ctx.Request().Context(), claims.SchoolID)
	if err != nil {
		return api.trapErr(err, "querying grading scales")
	}
	if scales == nil {
		scales = []grading.GradingScale{}
	}
	return ctx.JSON(http.StatusOK, scales)
}

func (api *gradingApi) letterGrade(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	pct, err := strconv.ParseFloat(ctx.QueryParam("pct"), 64)
	if err != nil {
		return core.NewValidationError(nil, core.FieldError{Field: "pct", Error: "a valid percentage is required"})
	}
	scaleID := ctx.QueryParam("scale_id")

	letter, err := api.svc.LetterGradeFor(ctx.Request().Context(), claims.SchoolID, pct, null.NewString(scaleID, scaleID != ""))
	if err != nil {
		return api.trapErr(err, "resolving letter grade")
	}
	return ctx.JSON(http.StatusOK, LetterGradeResponse{Percentage: pct, LetterGrade: letter})
}

func (api *gradingApi) average(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	termID := ctx.QueryParam("term_id")
	avg, err := api.svc.Average(
		ctx.Request().Context(), claims.SchoolID, ctx.Param("studentID"),
		ctx.QueryParam("class_id"), ctx.QueryParam("subject_id"),
		null.NewString(termID, termID != ""),
	)
	if err != nil {
		return api.trapErr(err, "computing average")
	}
	return ctx.JSON(http.StatusOK, AverageResponse{WeightedAverage: avg})
}

func (api *gradingApi) computeTermGrade(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	var data TermGradeRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to TermGradeRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	tg, err := api.svc.ComputeTermGrade(ctx.Request().Context(), claims.SchoolID, data.StudentID, data.ClassID, data.SubjectID, data.TermID)
	if err != nil {
		return api.trapErr(err, "computing term grade")
	}
	metrics.TermGradeComputations.Inc()
	return ctx.JSON(http.StatusOK, tg)
}

func (api *gradingApi) getTermGrade(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	tg, err := api.svc.GetTermGrade(
		ctx.Request().Context(), claims.SchoolID,
		ctx.QueryParam("student_id"), ctx.QueryParam("class_id"),
		ctx.QueryParam("subject_id"), ctx.QueryParam("term_id"),
	)
	if err != nil {
		return api.trapErr(err, "fetching term grade")
	}
	return ctx.JSON(http.StatusOK, tg)
}

func (api *gradingApi) finalizeTermGrade(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	tg, err := api.svc.FinalizeTermGrade(ctx.Request().Context(), claims.SchoolID, claims.Subject, ctx.Param("id"))
	if err != nil {
		return api.trapErr(err, "finalizing term grade")
	}
	return ctx.JSON(http.StatusOK, tg)
}

func (api *gradingApi) publishTermGrade(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	tg, err := api.svc.PublishTermGrade(ctx.Request().Context(), claims.SchoolID, claims.Subject, ctx.Param("id"))
	if err != nil {
		return api.trapErr(err, "publishing term grade")
	}
	return ctx.JSON(http.StatusOK, tg)
}

type (
	ExcuseRequest struct {
		Excused bool `json:"excused"`
	}

	LetterGradeResponse struct {
		Percentage  float64 `json:"percentage"`
		LetterGrade string  `json:"letter_grade"`
	}

	AverageResponse struct {
		WeightedAverage null.Float64 `json:"weighted_average"`
	}

	TermGradeRequest struct {
		StudentID string `json:"student_id" validate:"required"`
		ClassID   string `json:"class_id" validate:"required"`
		SubjectID string `json:"subject_id" validate:"required"`
		TermID    string `json:"term_id" validate:"required"`
	}
)

func (tr TermGradeRequest) Validate(validate *validator.Validate) error {
	return validate.Struct(tr)
}
