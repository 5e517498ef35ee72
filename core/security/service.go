package security

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/darasa/core"
)

// ErrNotFound is returned when no lockout row exists for a key.
var ErrNotFound = errors.New("lockout not found")

type (
	Repository interface {
		CreateLoginAttempt(ctx context.Context, attempt LoginAttempt) error
		// CountFailedAttempts counts success=false attempts for email since
		// the given instant. A flat count; no decay, no IP weighting.
		CountFailedAttempts(ctx context.Context, email string, since time.Time) (int, error)
		// UpsertLockout atomically creates or refreshes the single
		// (email, lockout_type) row: LockedUntil is replaced with `until`,
		// AttemptCount incremented and any manual unlock cleared. Relies on
		// the database's native ON CONFLICT semantics so concurrent failed
		// logins cannot double-create rows.
		UpsertLockout(ctx context.Context, email string, typ LockoutType, until time.Time) (Lockout, error)
		GetLockout(ctx context.Context, email string, typ LockoutType) (Lockout, error)
		// ReleaseLockout sets unlocked_at on the row (explicit unlock).
		ReleaseLockout(ctx context.Context, email string, typ LockoutType, at time.Time) error
	}

	Service interface {
		// IsLockedOut reports whether an active account lockout exists for
		// the email.
		IsLockedOut(ctx context.Context, email string) (bool, error)
		// RegisterAttempt logs one login attempt; a failure that pushes the
		// windowed count to the threshold locks the account and reports
		// locked=true.
		RegisterAttempt(ctx context.Context, email, ip string, success bool) (locked bool, err error)
		FailedLoginCount(ctx context.Context, email string) (int, error)
		Lock(ctx context.Context, email string, typ LockoutType) (Lockout, error)
		Unlock(ctx context.Context, actorID, email string, typ LockoutType) error
	}

	service struct {
		repo   Repository
		conf   core.SecurityConfig
		audit  core.AuditTrail
		logger core.Logger

		nowFunc func() time.Time // mockable
	}
)

func NewService(repo Repository, conf core.SecurityConfig, audit core.AuditTrail, logger core.Logger) Service {
	return &service{
		repo:    repo,
		conf:    conf,
		audit:   audit,
		logger:  logger,
		nowFunc: time.Now,
	}
}

func (svc *service) IsLockedOut(ctx context.Context, email string) (bool, error) {
	lockout, err := svc.repo.GetLockout(ctx, core.CleanString(email, true /* lower */), LockoutAccount)
	switch errors.Cause(err) {
	case nil:
		return lockout.Active(svc.nowFunc().UTC()), nil
	case ErrNotFound:
		return false, nil
	default:
		return false, errors.Wrap(err, "fetching lockout")
	}
}

func (svc *service) RegisterAttempt(ctx context.Context, email, ip string, success bool) (bool, error) {
	email = core.CleanString(email, true /* lower */)
	now := svc.nowFunc().UTC()

	if err := svc.repo.CreateLoginAttempt(ctx, LoginAttempt{
		ID:        uuid.New().String(),
		Email:     email,
		IP:        ip,
		Success:   success,
		CreatedAt: now,
	}); err != nil {
		return false, errors.Wrap(err, "logging login attempt")
	}
	if success {
		return false, nil
	}

	count, err := svc.repo.CountFailedAttempts(ctx, email, now.Add(-svc.conf.FailedLoginWindow))
	if err != nil {
		return false, errors.Wrap(err, "counting failed logins")
	}
	if count < svc.conf.FailedLoginThreshold {
		return false, nil
	}

	if _, err := svc.Lock(ctx, email, LockoutAccount); err != nil {
		return false, err
	}
	return true, nil
}

func (svc *service) FailedLoginCount(ctx context.Context, email string) (int, error) {
	email = core.CleanString(email, true /* lower */)
	since := svc.nowFunc().UTC().Add(-svc.conf.FailedLoginWindow)
	return svc.repo.CountFailedAttempts(ctx, email, since)
}

func (svc *service) Lock(ctx context.Context, email string, typ LockoutType) (Lockout, error) {
	email = core.CleanString(email, true /* lower */)
	until := svc.nowFunc().UTC().Add(svc.conf.LockoutDuration)
	lockout, err := svc.repo.UpsertLockout(ctx, email, typ, until)
	return lockout, errors.Wrap(err, "upserting lockout")
}

func (svc *service) Unlock(ctx context.Context, actorID, email string, typ LockoutType) error {
	email = core.CleanString(email, true /* lower */)
	now := svc.nowFunc().UTC()
	if err := svc.repo.ReleaseLockout(ctx, email, typ, now); err != nil {
		return errors.Wrap(err, "releasing lockout")
	}

	if err := svc.audit.Record(ctx, core.AuditEntry{
		ID:         uuid.New().String(),
		ActorID:    actorID,
		Action:     "lockout.release",
		ObjectType: "account_lockout",
		ObjectID:   email + ":" + string(typ),
		CreatedAt:  now,
	}); err != nil {
		svc.logger.Warn("recording lockout audit entry", err)
	}
	return nil
}
