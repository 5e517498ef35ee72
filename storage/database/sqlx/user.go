package sqlxrepos

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/darasa/core/user"
)

const selectUserCols = `id, school_id, name, COALESCE(username, '') AS username, email, is_active, roles,
password_hash, created_at, updated_at, COALESCE(last_login, '0001-01-01 00:00:00+00') AS last_login`

type userRepository struct {
	db *sqlx.DB
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(db *sqlx.DB) *userRepository {
	return &userRepository{db: db}
}

// userRow adds the array-typed roles column to the domain struct.
type userRow struct {
	user.User
	DBRoles pq.StringArray `db:"roles"`
}

func (r userRow) domain() user.User {
	usr := r.User
	usr.Roles = r.DBRoles
	return usr
}

func domainUsers(rows []userRow) []user.User {
	users := make([]user.User, 0, len(rows))
	for _, row := range rows {
		users = append(users, row.domain())
	}
	return users
}

// trapNoRowsErr maps psql "no rows" err to user.ErrNotFound
func trapUserNoRowsErr(err error, msg string) error {
	if err == sql.ErrNoRows {
		return user.ErrNotFound
	}
	return errors.Wrap(err, msg)
}

func (repo userRepository) CheckUsernameUniqueness(ctx context.Context, username, email string, excludedUsers ...user.User) error {
	exclIDs := make([]string, 0, len(excludedUsers))
	for _, u := range excludedUsers {
		exclIDs = append(exclIDs, u.ID)
	}

	var exists bool
	if username != "" {
		q := `SELECT EXISTS (SELECT 1 FROM "user" WHERE username = $1 AND id <> ALL($2))`
		if err := repo.db.GetContext(ctx, &exists, q, username, pq.Array(exclIDs)); err != nil {
			return errors.Wrap(err, "checking username uniqueness")
		}
		if exists {
			return user.ErrUsernameExists
		}
	}

	q := `SELECT EXISTS (SELECT 1 FROM "user" WHERE email = $1 AND id <> ALL($2))`
	if err := repo.db.GetContext(ctx, &exists, q, email, pq.Array(exclIDs)); err != nil {
		return errors.Wrap(err, "checking email uniqueness")
	}
	if exists {
		return user.ErrEmailExists
	}
	return nil
}

func (repo userRepository) CreateUser(ctx context.Context, usr user.User) (user.User, error) {
	q := `
INSERT INTO "user" (id, school_id, name, username, email, is_active, roles, password_hash, created_at, updated_at)
VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, $7, $8, $9, $10)`
	_, err := repo.db.ExecContext(ctx, q,
		usr.ID, usr.SchoolID, usr.Name, usr.Username, usr.Email, usr.IsActive,
		pq.Array(usr.Roles), usr.PasswordHash, usr.CreatedAt, usr.UpdatedAt,
	)
	if err != nil {
		return user.User{}, errors.Wrap(err, "inserting user")
	}
	return usr, nil
}

func (repo userRepository) QueryUsers(ctx context.Context, schoolID string) ([]user.User, error) {
	var rows []userRow
	q := fmt.Sprintf(`SELECT %s FROM "user" WHERE school_id = $1 ORDER BY created_at, id`, selectUserCols)
	if err := repo.db.SelectContext(ctx, &rows, q, schoolID); err != nil {
		return nil, errors.Wrap(err, "querying users")
	}
	return domainUsers(rows), nil
}

func (repo userRepository) GetUserByID(ctx context.Context, id string) (user.User, error) {
	var row userRow
	q := fmt.Sprintf(`SELECT %s FROM "user" WHERE id = $1`, selectUserCols)
	if err := repo.db.GetContext(ctx, &row, q, id); err != nil {
		return user.User{}, trapUserNoRowsErr(err, "finding user by ID")
	}
	return row.domain(), nil
}

func (repo userRepository) GetUserByUsername(ctx context.Context, username string) (user.User, error) {
	var row userRow
	q := fmt.Sprintf(`SELECT %s FROM "user" WHERE username = $1`, selectUserCols)
	if err := repo.db.GetContext(ctx, &row, q, username); err != nil {
		return user.User{}, trapUserNoRowsErr(err, "finding user by username")
	}
	return row.domain(), nil
}

func (repo userRepository) GetUserByEmail(ctx context.Context, email string) (user.User, error) {
	var row userRow
	q := fmt.Sprintf(`SELECT %s FROM "user" WHERE email = $1`, selectUserCols)
	if err := repo.db.GetContext(ctx, &row, q, email); err != nil {
		return user.User{}, trapUserNoRowsErr(err, "finding user by email")
	}
	return row.domain(), nil
}

func (repo userRepository) GetUserByUsernameOrEmail(ctx context.Context, username string) (user.User, error) {
	var row userRow
	q := fmt.Sprintf(`SELECT %s FROM "user" WHERE username = $1 OR email = $1`, selectUserCols)
	if err := repo.db.GetContext(ctx, &row, q, username); err != nil {
		return user.User{}, trapUserNoRowsErr(err, "finding user")
	}
	return row.domain(), nil
}

func (repo userRepository) FilterUsers(ctx context.Context, schoolID string, filter user.QueryFilter) ([]user.User, error) {
	where := `school_id = $1`
	args := []interface{}{schoolID}
	arg := func(val interface{}) string {
		args = append(args, val)
		return "$" + strconv.Itoa(len(args))
	}

	// users with Name, Username or Email matching the search keyword
	if filter.Search != "" {
		p := arg("%" + filter.Search + "%")
		where += fmt.Sprintf(` AND (name ILIKE %[1]s OR username ILIKE %[1]s OR email ILIKE %[1]s)`, p)
	}
	// users with any role that starts with any of the provided roles
	if len(filter.Roles) > 0 {
		prefixes := make([]string, 0, len(filter.Roles))
		for _, role := range filter.Roles {
			prefixes = append(prefixes, role+"%")
		}
		where += fmt.Sprintf(
			` AND id IN (SELECT id FROM "user", UNNEST(roles) user_role WHERE user_role ILIKE ANY(%s))`,
			arg(pq.Array(prefixes)))
	}
	if filter.IsActive != nil {
		where += ` AND is_active = ` + arg(*filter.IsActive)
	}
	if !filter.CreatedFrom.IsZero() {
		where += ` AND created_at >= ` + arg(filter.CreatedFrom.UTC())
	}
	if !filter.CreatedTo.IsZero() {
		where += ` AND created_at <= ` + arg(filter.CreatedTo.UTC())
	}

	var rows []userRow
	q := fmt.Sprintf(`SELECT %s FROM "user" WHERE %s ORDER BY created_at, id`, selectUserCols, where)
	if err := repo.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, errors.Wrap(err, "filtering users")
	}
	return domainUsers(rows), nil
}

func (repo userRepository) UpdateUser(ctx context.Context, usr user.User, isActive *bool) (user.User, error) {
	set := `updated_at = $2`
	args := []interface{}{usr.ID, usr.UpdatedAt}
	arg := func(val interface{}) string {
		args = append(args, val)
		return "$" + strconv.Itoa(len(args))
	}

	if usr.Name != "" {
		set += `, name = ` + arg(usr.Name)
	}
	if usr.Username != "" {
		set += `, username = ` + arg(usr.Username)
	}
	if usr.Email != "" {
		set += `, email = ` + arg(usr.Email)
	}
	if usr.Roles != nil {
		set += `, roles = ` + arg(pq.Array(usr.Roles))
	}
	if len(usr.PasswordHash) > 0 {
		set += `, password_hash = ` + arg(usr.PasswordHash)
	}
	if isActive != nil {
		set += `, is_active = ` + arg(*isActive)
	}

	var row userRow
	q := fmt.Sprintf(`UPDATE "user" SET %s WHERE id = $1 RETURNING %s`, set, selectUserCols)
	if err := repo.db.GetContext(ctx, &row, q, args...); err != nil {
		return user.User{}, trapUserNoRowsErr(err, "updating user")
	}
	return row.domain(), nil
}

func (repo userRepository) SetLastLogin(ctx context.Context, usr user.User) (user.User, error) {
	var row userRow
	q := fmt.Sprintf(`UPDATE "user" SET last_login = $2 WHERE id = $1 RETURNING %s`, selectUserCols)
	if err := repo.db.GetContext(ctx, &row, q, usr.ID, null.TimeFrom(usr.LastLogin.UTC())); err != nil {
		return user.User{}, trapUserNoRowsErr(err, "setting last login")
	}
	return row.domain(), nil
}

func (repo userRepository) DeleteUsersByID(ctx context.Context, ids ...string) error {
	if _, err := repo.db.ExecContext(ctx, `DELETE FROM "user" WHERE id = ANY($1)`, pq.Array(ids)); err != nil {
		return errors.Wrap(err, "deleting users")
	}
	return nil
}
