package user

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/darasa/core"
)

type serviceMock struct {
	service
}

func NewServiceMock(conf *core.Config, repo Repository, mailSvc core.EmailService, logger core.Logger) Service {
	secretKey = conf.SecretKey
	passwordResetTimeoutDelta = conf.Server.PasswordResetTimeoutDelta
	return &serviceMock{
		service: service{
			repo:            repo,
			mailSvc:         mailSvc,
			logger:          logger,
			frontendBaseURL: conf.FrontendBaseURL,
		},
	}
}

func (svc *serviceMock) RequestPasswordReset(ctx context.Context, email string) error {
	usr, err := svc.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	// run synchronously
	svc.sendPasswordResetMail(usr)
	return nil
}

func (svc *serviceMock) ResetPassword(ctx context.Context, rp ResetUserPassword) error {
	id, err := decodeUID(rp.UID)
	if err != nil {
		return core.NewValidationError(errInvalidToken)
	}
	usr, err := svc.repo.GetUserByID(ctx, id)
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return core.NewValidationError(errInvalidToken)
		}
		return err
	}
	if err := verifyToken(usr, rp.Token); err != nil {
		return core.NewValidationError(err)
	}

	if err := usr.SetPassword(rp.Password); err != nil {
		return err
	}
	usr.UpdatedAt = time.Now().UTC()
	if _, err := svc.repo.UpdateUser(ctx, usr, nil); err != nil {
		return errors.Wrap(err, "updating password")
	}
	// run synchronously
	svc.sendPasswordResetDoneMail(usr)
	return nil
}
