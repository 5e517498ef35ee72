package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/darasa/core/security"
)

type securityRepository struct {
	db *sqlx.DB
}

var _ security.Repository = (*securityRepository)(nil) // interface compliance check

func NewSecurityRepository(db *sqlx.DB) *securityRepository {
	return &securityRepository{db: db}
}

func (repo securityRepository) CreateLoginAttempt(ctx context.Context, attempt security.LoginAttempt) error {
	q := `
INSERT INTO login_attempt (id, email, ip, success, created_at)
VALUES (:id, :email, :ip, :success, :created_at)`
	if _, err := repo.db.NamedExecContext(ctx, q, attempt); err != nil {
		return errors.Wrap(err, "inserting login attempt")
	}
	return nil
}

func (repo securityRepository) CountFailedAttempts(ctx context.Context, email string, since time.Time) (int, error) {
	var count int
	q := `SELECT COUNT(*) FROM login_attempt WHERE email = $1 AND NOT success AND created_at >= $2`
	if err := repo.db.GetContext(ctx, &count, q, email, since); err != nil {
		return 0, errors.Wrap(err, "counting failed login attempts")
	}
	return count, nil
}

// UpsertLockout leans on ON CONFLICT so concurrent failed logins land on the
// single (email, lockout_type) row instead of racing to create duplicates.
func (repo securityRepository) UpsertLockout(ctx context.Context, email string, typ security.LockoutType, until time.Time) (security.Lockout, error) {
	var lockout security.Lockout
	q := `
INSERT INTO account_lockout (id, email, lockout_type, locked_until, attempt_count, created_at, updated_at)
VALUES ($1, $2, $3, $4, 1, $5, $5)
ON CONFLICT (email, lockout_type) DO UPDATE SET
	locked_until  = EXCLUDED.locked_until,
	attempt_count = account_lockout.attempt_count + 1,
	unlocked_at   = NULL,
	updated_at    = EXCLUDED.updated_at
RETURNING *`
	now := time.Now().UTC()
	if err := repo.db.GetContext(ctx, &lockout, q, uuid.New().String(), email, typ, until, now); err != nil {
		return security.Lockout{}, errors.Wrap(err, "upserting lockout")
	}
	return lockout, nil
}

func (repo securityRepository) GetLockout(ctx context.Context, email string, typ security.LockoutType) (security.Lockout, error) {
	var lockout security.Lockout
	q := `SELECT * FROM account_lockout WHERE email = $1 AND lockout_type = $2`
	if err := repo.db.GetContext(ctx, &lockout, q, email, typ); err != nil {
		if err == sql.ErrNoRows {
			return security.Lockout{}, security.ErrNotFound
		}
		return security.Lockout{}, errors.Wrap(err, "finding lockout")
	}
	return lockout, nil
}

func (repo securityRepository) ReleaseLockout(ctx context.Context, email string, typ security.LockoutType, at time.Time) error {
	q := `UPDATE account_lockout SET unlocked_at = $3, updated_at = $3 WHERE email = $1 AND lockout_type = $2`
	res, err := repo.db.ExecContext(ctx, q, email, typ, at)
	if err != nil {
		return errors.Wrap(err, "releasing lockout")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return security.ErrNotFound
	}
	return nil
}
