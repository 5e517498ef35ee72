package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/darasa/core/security"
)

type securityApi struct {
	svc      security.Service
	validate *validator.Validate
}

func registerSecurityAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps ServerDeps) {
	api := securityApi{
		svc:      deps.SecuritySvc,
		validate: deps.Validate,
	}

	sg := g.Group("/security", jwt, adminMiddleware())

	sg.GET("/lockouts/:email", api.getLockout)
	sg.POST("/lockouts/:email/unlock", api.unlock)
}

func (api *securityApi) getLockout(ctx echo.Context) error {
	locked, err := api.svc.IsLockedOut(ctx.Request().Context(), ctx.Param("email"))
	if err != nil {
		return errors.Wrap(err, "checking lockout")
	}

	count, err := api.svc.FailedLoginCount(ctx.Request().Context(), ctx.Param("email"))
	if err != nil {
		return errors.Wrap(err, "counting failed logins")
	}
	return ctx.JSON(http.StatusOK, LockoutResponse{Locked: locked, RecentFailures: count})
}

func (api *securityApi) unlock(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	err = api.svc.Unlock(ctx.Request().Context(), claims.Subject, ctx.Param("email"), security.LockoutAccount)
	switch errors.Cause(err) {
	case nil:
		return ctx.JSON(http.StatusOK, SuccessResponse{Success: "Account unlocked."})
	case security.ErrNotFound:
		return errHttpNotFound
	default:
		return errors.Wrap(err, "unlocking account")
	}
}

type LockoutResponse struct {
	Locked         bool `json:"locked"`
	RecentFailures int  `json:"recent_failures"`
}
