package main

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/user"
)

// addUser updates or creates a user.User
func (cli *commandLine) addUser(schoolID, uname, email, pwd string, isAdmin bool) error {
	ctx := context.Background()
	uname = core.CleanString(uname, true /* lower */)
	email = core.CleanString(email, true /* lower */)

	lookup := uname
	if lookup == "" {
		lookup = email
	}

	usr, err := cli.usrRepo.GetUserByUsernameOrEmail(ctx, lookup)
	switch errors.Cause(err) {
	case nil:
	case user.ErrNotFound:
		now := time.Now().UTC()
		usr = user.User{
			ID:        uuid.New().String(),
			SchoolID:  schoolID,
			Username:  uname,
			Email:     email,
			IsActive:  true,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if isAdmin {
			usr.Roles = user.AllRoles
		}
		if err := usr.SetPassword(pwd); err != nil {
			return err
		}
		_, err = cli.usrRepo.CreateUser(ctx, usr)
		return err
	default:
		return err
	}

	if isAdmin {
		usr.Roles = user.AllRoles
	}
	if err := usr.SetPassword(pwd); err != nil {
		return err
	}
	isActive := true
	_, err = cli.usrRepo.UpdateUser(ctx, usr, &isActive)
	return err
}
