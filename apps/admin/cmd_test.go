package main

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/trezcool/darasa/core/user"
)

// fakeUserRepo is an in-memory user.Repository; just enough for the CLI.
type fakeUserRepo struct {
	users map[string]user.User // keyed by ID
}

var _ user.Repository = (*fakeUserRepo)(nil)

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: make(map[string]user.User)}
}

func (repo *fakeUserRepo) CheckUsernameUniqueness(ctx context.Context, username, email string, excludedUsers ...user.User) error {
	return nil
}

func (repo *fakeUserRepo) CreateUser(ctx context.Context, usr user.User) (user.User, error) {
	repo.users[usr.ID] = usr
	return usr, nil
}

func (repo *fakeUserRepo) QueryUsers(ctx context.Context, schoolID string) ([]user.User, error) {
	var users []user.User
	for _, usr := range repo.users {
		if usr.SchoolID == schoolID {
			users = append(users, usr)
		}
	}
	return users, nil
}

func (repo *fakeUserRepo) GetUserByID(ctx context.Context, id string) (user.User, error) {
	if usr, ok := repo.users[id]; ok {
		return usr, nil
	}
	return user.User{}, user.ErrNotFound
}

func (repo *fakeUserRepo) GetUserByUsername(ctx context.Context, username string) (user.User, error) {
	for _, usr := range repo.users {
		if usr.Username == username {
			return usr, nil
		}
	}
	return user.User{}, user.ErrNotFound
}

func (repo *fakeUserRepo) GetUserByEmail(ctx context.Context, email string) (user.User, error) {
	for _, usr := range repo.users {
		if usr.Email == email {
			return usr, nil
		}
	}
	return user.User{}, user.ErrNotFound
}

func (repo *fakeUserRepo) GetUserByUsernameOrEmail(ctx context.Context, username string) (user.User, error) {
	for _, usr := range repo.users {
		if usr.Username == username || usr.Email == username {
			return usr, nil
		}
	}
	return user.User{}, user.ErrNotFound
}

func (repo *fakeUserRepo) FilterUsers(ctx context.Context, schoolID string, filter user.QueryFilter) ([]user.User, error) {
	return repo.QueryUsers(ctx, schoolID)
}

func (repo *fakeUserRepo) UpdateUser(ctx context.Context, usr user.User, isActive *bool) (user.User, error) {
	orig, ok := repo.users[usr.ID]
	if !ok {
		return user.User{}, user.ErrNotFound
	}
	if isActive != nil {
		usr.IsActive = *isActive
	} else {
		usr.IsActive = orig.IsActive
	}
	repo.users[usr.ID] = usr
	return usr, nil
}

func (repo *fakeUserRepo) SetLastLogin(ctx context.Context, usr user.User) (user.User, error) {
	usr.LastLogin = time.Now().UTC()
	repo.users[usr.ID] = usr
	return usr, nil
}

func (repo *fakeUserRepo) DeleteUsersByID(ctx context.Context, ids ...string) error {
	for _, id := range ids {
		delete(repo.users, id)
	}
	return nil
}

func setup(t *testing.T) (*commandLine, *fakeUserRepo) {
	t.Helper()
	repo := newFakeUserRepo()
	return &commandLine{db: &sqlx.DB{}, usrRepo: repo}, repo
}

func createUser(t *testing.T, repo *fakeUserRepo, uname, email, pwd string) user.User {
	t.Helper()
	usr := user.User{
		ID:       uuid.New().String(),
		SchoolID: uuid.New().String(),
		Username: uname,
		Email:    email,
		IsActive: true,
	}
	if err := usr.SetPassword(pwd); err != nil {
		t.Fatalf("SetPassword() failed, %v", err)
	}
	usr, err := repo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("CreateUser() failed, %v", err)
	}
	return usr
}

type cliTest struct {
	name       string
	args       []string // without program name
	wantErr    error
	wantErrStr string
	extra      interface{}
}

func Test_commandLine_migrate(t *testing.T) {
	cli, _ := setup(t)

	gooseRunFunc = func(command string, db *sql.DB, dir string, args ...string) error {
		switch command {
		case "up", "up-by-one", "down", "fix", "redo", "reset", "status", "version": // pass
		case "up-to", "down-to":
			if len(args) == 0 {
				return fmt.Errorf("%s requires a VERSION argument", command)
			}
			if _, err := strconv.ParseInt(args[0], 10, 64); err != nil {
				return fmt.Errorf("version must be a number (got '%s')", args[0])
			}
		case "create":
			if len(args) == 0 {
				return fmt.Errorf("create requires a NAME argument")
			}
		default:
			return fmt.Errorf("%q: no such command", command)
		}
		return nil
	}

	tests := []cliTest{
		{name: "no subcommand", args: []string{"migrate"}, wantErr: errHelp},
		{name: "unknown subcommand", args: []string{"migrate", "lol"}, wantErrStr: "\"lol\": no such command"},
		{name: "up-to: no args", args: []string{"migrate", "up-to"}, wantErrStr: "up-to requires a VERSION argument"},
		{name: "up-to: non-int arg", args: []string{"migrate", "up-to", "lol"}, wantErrStr: "version must be a number (got 'lol')"},
		{name: "down-to: no args", args: []string{"migrate", "down-to"}, wantErrStr: "down-to requires a VERSION argument"},
		{name: "up", args: []string{"migrate", "up"}},
		{name: "up-by-one", args: []string{"migrate", "up-by-one"}},
		{name: "up-to", args: []string{"migrate", "up-to", "2"}},
		{name: "down", args: []string{"migrate", "down"}},
		{name: "down-to", args: []string{"migrate", "down-to", "1"}},
		{name: "redo", args: []string{"migrate", "redo"}},
		{name: "reset", args: []string{"migrate", "reset"}},
		{name: "status", args: []string{"migrate", "status"}},
		{name: "version", args: []string{"migrate", "version"}},
		{name: "create", args: []string{"migrate", "create", "course", "sql"}},
		{name: "fix", args: []string{"migrate", "fix"}},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)

		t.Run(tt.name, func(t *testing.T) {
			if err := cli.run(args); err != nil {
				if tt.wantErr != nil {
					if err != tt.wantErr {
						t.Errorf("cli.run() error = %v, wantErr %v", err, tt.wantErr)
					}
				} else if tt.wantErrStr != "" {
					if err.Error() != tt.wantErrStr {
						t.Errorf("cli.run() error.Error() = %s, wantErrStr %s", err.Error(), tt.wantErrStr)
					}
				} else {
					t.Errorf("cli.run() unexpected error = %v", err)
				}
			}
		})
	}
}

func Test_commandLine_resetPassword(t *testing.T) {
	cli, repo := setup(t)

	usr := createUser(t, repo, "awe", "awe@test.cd", "mdr")

	type extra struct {
		pwd string
	}
	tests := []cliTest{
		{name: "no command", wantErr: errHelp},
		{name: "unknown command", args: []string{"lol"}, wantErr: errHelp},
		{name: "no args", args: []string{"resetpassword"}, wantErr: errHelp},
		{name: "username but no password", args: []string{"resetpassword", "-username", "lol"}, wantErr: errHelp},
		{name: "user not found", args: []string{"resetpassword", "-username", "lol"}, extra: extra{pwd: "lol"}, wantErr: user.ErrNotFound},
		{name: "reset with username", args: []string{"resetpassword", "-username", usr.Username}, extra: extra{pwd: "lol"}},
		{name: "reset with email", args: []string{"resetpassword", "-username", usr.Email}, extra: extra{pwd: "lmao"}},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)

		readPasswordFunc = func(fd int) ([]byte, error) {
			if extra, ok := tt.extra.(extra); ok {
				return []byte(extra.pwd), nil
			}
			return nil, nil
		}

		t.Run(tt.name, func(t *testing.T) {
			err := cli.run(args)
			if err == nil {
				refreshedUsr, err := repo.GetUserByID(context.Background(), usr.ID)
				if err != nil {
					t.Fatalf("GetUserByID() failed, %v", err)
				}
				if bytes.Equal(refreshedUsr.PasswordHash, usr.PasswordHash) {
					t.Error("failed to update new password")
				}
			} else if err != tt.wantErr {
				t.Errorf("cli.run() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func Test_commandLine_addUser(t *testing.T) {
	cli, repo := setup(t)

	schoolID := uuid.New().String()
	existing := createUser(t, repo, "kev", "kev@test.cd", "mdr")

	type extra struct {
		pwd string
	}
	tests := []cliTest{
		{name: "no args", args: []string{"adduser"}, wantErr: errHelp},
		{name: "missing email", args: []string{"adduser", "-school", schoolID}, wantErr: errHelp},
		{name: "missing school", args: []string{"adduser", "-email", "new@test.cd"}, wantErr: errHelp},
		{name: "email but no password", args: []string{"adduser", "-school", schoolID, "-email", "new@test.cd"}, wantErr: errHelp},
		{name: "create new user", args: []string{"adduser", "-school", schoolID, "-email", "new@test.cd"}, extra: extra{pwd: "lol"}},
		{name: "create new admin", args: []string{"adduser", "-school", schoolID, "-username", "boss", "-email", "boss@test.cd", "-admin"}, extra: extra{pwd: "lol"}},
		{name: "update existing user", args: []string{"adduser", "-school", schoolID, "-email", existing.Email, "-admin"}, extra: extra{pwd: "lol"}},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)

		readPasswordFunc = func(fd int) ([]byte, error) {
			if extra, ok := tt.extra.(extra); ok {
				return []byte(extra.pwd), nil
			}
			return nil, nil
		}

		t.Run(tt.name, func(t *testing.T) {
			if err := cli.run(args); err != tt.wantErr {
				t.Errorf("cli.run() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}

	t.Run("created admin has all roles", func(t *testing.T) {
		usr, err := repo.GetUserByEmail(context.Background(), "boss@test.cd")
		if err != nil {
			t.Fatalf("GetUserByEmail() failed, %v", err)
		}
		if len(usr.Roles) != len(user.AllRoles) {
			t.Errorf("Roles = %v, want %v", usr.Roles, user.AllRoles)
		}
	})

	t.Run("updated user keeps their ID", func(t *testing.T) {
		usr, err := repo.GetUserByEmail(context.Background(), existing.Email)
		if err != nil {
			t.Fatalf("GetUserByEmail() failed, %v", err)
		}
		if usr.ID != existing.ID {
			t.Errorf("ID = %s, want %s", usr.ID, existing.ID)
		}
		if bytes.Equal(usr.PasswordHash, existing.PasswordHash) {
			t.Error("failed to update password")
		}
	})
}
