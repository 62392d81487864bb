package database

import (
	"database/sql"

	"turf/pkg/database/migrations"

	"github.com/pressly/goose/v3"
)

// Migrate applies the embedded goose migrations.
func Migrate(db *sql.DB) error {
	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	return goose.Up(db, ".")
}
