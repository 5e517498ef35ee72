package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/trezcool/darasa/core"
)

// createSchool bootstraps a new tenant; every other record hangs off it.
func (cli *commandLine) createSchool(name string) error {
	name = core.CleanString(name)
	slug := strings.ReplaceAll(strings.ToLower(name), " ", "-")
	id := uuid.New().String()

	_, err := cli.db.ExecContext(
		context.Background(),
		`INSERT INTO school (id, name, slug) VALUES ($1, $2, $3)`,
		id, name, slug,
	)
	if err != nil {
		return err
	}
	fmt.Printf("school %q created: %s\n", name, id)
	return nil
}
