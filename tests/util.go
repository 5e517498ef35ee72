package testutil

import (
	"context"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/security"
	"github.com/trezcool/darasa/core/user"
)

// NopLogger discards everything; tests that care about log output
// should not be using it.
type NopLogger struct{}

func (NopLogger) Debug(msg string, args ...interface{}) {}
func (NopLogger) Info(msg string, args ...interface{})  {}
func (NopLogger) Warn(msg string, args ...interface{})  {}
func (NopLogger) Error(msg string, args ...interface{}) {}
func (NopLogger) Fatal(msg string, args ...interface{}) {}

// AuditTrail collects entries in memory.
type AuditTrail struct {
	Entries []core.AuditEntry
}

func (a *AuditTrail) Record(ctx context.Context, entry core.AuditEntry) error {
	a.Entries = append(a.Entries, entry)
	return nil
}

// UserRepository is an in-memory user.Repository.
type UserRepository struct {
	users map[string]user.User // keyed by ID
}

var _ user.Repository = (*UserRepository)(nil)

func NewUserRepository() *UserRepository {
	return &UserRepository{users: make(map[string]user.User)}
}

func (repo *UserRepository) Reset() {
	repo.users = make(map[string]user.User)
}

func (repo *UserRepository) CheckUsernameUniqueness(ctx context.Context, username, email string, excludedUsers ...user.User) error {
	excluded := func(usr user.User) bool {
		for _, ex := range excludedUsers {
			if usr.ID == ex.ID {
				return true
			}
		}
		return false
	}
	for _, usr := range repo.users {
		if excluded(usr) {
			continue
		}
		if username != "" && usr.Username == username {
			return user.ErrUsernameExists
		}
		if usr.Email == email {
			return user.ErrEmailExists
		}
	}
	return nil
}

func (repo *UserRepository) CreateUser(ctx context.Context, usr user.User) (user.User, error) {
	if usr.ID == "" {
		usr.ID = uuid.New().String()
	}
	repo.users[usr.ID] = usr
	return usr, nil
}

func (repo *UserRepository) QueryUsers(ctx context.Context, schoolID string) ([]user.User, error) {
	var users []user.User
	for _, usr := range repo.users {
		if usr.SchoolID == schoolID {
			users = append(users, usr)
		}
	}
	sortUsers(users)
	return users, nil
}

// sortUsers matches the `ORDER BY created_at, id` of the SQL repository.
func sortUsers(users []user.User) {
	sort.Slice(users, func(i, j int) bool {
		if users[i].CreatedAt.Equal(users[j].CreatedAt) {
			return users[i].ID < users[j].ID
		}
		return users[i].CreatedAt.Before(users[j].CreatedAt)
	})
}

func (repo *UserRepository) GetUserByID(ctx context.Context, id string) (user.User, error) {
	if usr, ok := repo.users[id]; ok {
		return usr, nil
	}
	return user.User{}, user.ErrNotFound
}

func (repo *UserRepository) GetUserByUsername(ctx context.Context, username string) (user.User, error) {
	for _, usr := range repo.users {
		if usr.Username == username {
			return usr, nil
		}
	}
	return user.User{}, user.ErrNotFound
}

func (repo *UserRepository) GetUserByEmail(ctx context.Context, email string) (user.User, error) {
	for _, usr := range repo.users {
		if usr.Email == email {
			return usr, nil
		}
	}
	return user.User{}, user.ErrNotFound
}

func (repo *UserRepository) GetUserByUsernameOrEmail(ctx context.Context, username string) (user.User, error) {
	for _, usr := range repo.users {
		if usr.Username == username || usr.Email == username {
			return usr, nil
		}
	}
	return user.User{}, user.ErrNotFound
}

func (repo *UserRepository) FilterUsers(ctx context.Context, schoolID string, filter user.QueryFilter) ([]user.User, error) {
	match := func(usr user.User) bool {
		if usr.SchoolID != schoolID {
			return false
		}
		if filter.Search != "" {
			s := strings.ToLower(filter.Search)
			if !(strings.Contains(strings.ToLower(usr.Name), s) ||
				strings.Contains(strings.ToLower(usr.Username), s) ||
				strings.Contains(strings.ToLower(usr.Email), s)) {
				return false
			}
		}
		if filter.Roles != nil {
			var found bool
			for _, role := range filter.Roles {
				for _, r := range usr.Roles {
					if r == role {
						found = true
						break
					}
				}
			}
			if !found {
				return false
			}
		}
		if filter.IsActive != nil && usr.IsActive != *filter.IsActive {
			return false
		}
		if !filter.CreatedFrom.IsZero() && usr.CreatedAt.Before(filter.CreatedFrom) {
			return false
		}
		if !filter.CreatedTo.IsZero() && usr.CreatedAt.After(filter.CreatedTo) {
			return false
		}
		return true
	}

	var users []user.User
	for _, usr := range repo.users {
		if match(usr) {
			users = append(users, usr)
		}
	}
	sortUsers(users)
	return users, nil
}

func (repo *UserRepository) UpdateUser(ctx context.Context, usr user.User, isActive *bool) (user.User, error) {
	orig, ok := repo.users[usr.ID]
	if !ok {
		return user.User{}, user.ErrNotFound
	}
	if isActive != nil {
		usr.IsActive = *isActive
	} else {
		usr.IsActive = orig.IsActive
	}
	if usr.SchoolID == "" {
		usr.SchoolID = orig.SchoolID
	}
	if len(usr.PasswordHash) == 0 {
		usr.PasswordHash = orig.PasswordHash
	}
	usr.CreatedAt = orig.CreatedAt
	usr.LastLogin = orig.LastLogin
	repo.users[usr.ID] = usr
	return usr, nil
}

func (repo *UserRepository) SetLastLogin(ctx context.Context, usr user.User) (user.User, error) {
	repo.users[usr.ID] = usr
	return usr, nil
}

func (repo *UserRepository) DeleteUsersByID(ctx context.Context, ids ...string) error {
	for _, id := range ids {
		delete(repo.users, id)
	}
	return nil
}

// SecurityRepository is an in-memory security.Repository; it honors the
// single-row-per-(email, type) lockout contract.
type SecurityRepository struct {
	attempts []security.LoginAttempt
	lockouts map[string]security.Lockout // keyed by email + ":" + type
}

var _ security.Repository = (*SecurityRepository)(nil)

func NewSecurityRepository() *SecurityRepository {
	return &SecurityRepository{lockouts: make(map[string]security.Lockout)}
}

func (repo *SecurityRepository) Reset() {
	repo.attempts = nil
	repo.lockouts = make(map[string]security.Lockout)
}

func lockoutKey(email string, typ security.LockoutType) string {
	return email + ":" + string(typ)
}

func (repo *SecurityRepository) CreateLoginAttempt(ctx context.Context, attempt security.LoginAttempt) error {
	repo.attempts = append(repo.attempts, attempt)
	return nil
}

func (repo *SecurityRepository) CountFailedAttempts(ctx context.Context, email string, since time.Time) (int, error) {
	var count int
	for _, a := range repo.attempts {
		if a.Email == email && !a.Success && !a.CreatedAt.Before(since) {
			count++
		}
	}
	return count, nil
}

func (repo *SecurityRepository) UpsertLockout(ctx context.Context, email string, typ security.LockoutType, until time.Time) (security.Lockout, error) {
	key := lockoutKey(email, typ)
	now := time.Now().UTC()
	lockout, ok := repo.lockouts[key]
	if !ok {
		lockout = security.Lockout{
			ID:          uuid.New().String(),
			Email:       email,
			LockoutType: typ,
			CreatedAt:   now,
		}
	}
	lockout.LockedUntil = until
	lockout.AttemptCount++
	lockout.UnlockedAt = null.Time{}
	lockout.UpdatedAt = now
	repo.lockouts[key] = lockout
	return lockout, nil
}

func (repo *SecurityRepository) GetLockout(ctx context.Context, email string, typ security.LockoutType) (security.Lockout, error) {
	if lockout, ok := repo.lockouts[lockoutKey(email, typ)]; ok {
		return lockout, nil
	}
	return security.Lockout{}, security.ErrNotFound
}

func (repo *SecurityRepository) ReleaseLockout(ctx context.Context, email string, typ security.LockoutType, at time.Time) error {
	key := lockoutKey(email, typ)
	lockout, ok := repo.lockouts[key]
	if !ok {
		return security.ErrNotFound
	}
	lockout.UnlockedAt = null.TimeFrom(at)
	repo.lockouts[key] = lockout
	return nil
}

// CreateUser persists a test user directly through the repository,
// bypassing service-level validation.
func CreateUser(
	t *testing.T,
	repo user.Repository,
	schoolID, name, uname, email, pwd string,
	roles []string,
	isActive bool,
	createdAt ...time.Time,
) user.User {
	t.Helper()

	tstamp := time.Now().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	usr := user.User{
		ID:        uuid.New().String(),
		SchoolID:  schoolID,
		Name:      name,
		Username:  uname,
		Email:     email,
		Roles:     roles,
		IsActive:  isActive,
		CreatedAt: tstamp,
		UpdatedAt: tstamp,
	}
	if pwd != "" {
		if err := usr.SetPassword(pwd); err != nil {
			t.Fatalf("CreateUser() failed: %v", err)
		}
	}
	usr, err := repo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}
	return usr
}
