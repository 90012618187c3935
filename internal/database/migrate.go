package database

import (
	"database/sql"
	"embed"
	"errors"

	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

func prepareGoose() error {
	goose.SetBaseFS(migrationsFS)
	goose.SetLogger(goose.NopLogger())
	return goose.SetDialect("mysql")
}

// UpMigrations applies every pending schema migration.
func UpMigrations(db *sql.DB) error {
	if err := prepareGoose(); err != nil {
		return err
	}
	err := goose.Up(db, "migrations")
	if err != nil && !errors.Is(err, goose.ErrNoNextVersion) {
		return err
	}
	return nil
}

// DownMigrations rolls back the most recent migration.
func DownMigrations(db *sql.DB) error {
	if err := prepareGoose(); err != nil {
		return err
	}
	err := goose.Down(db, "migrations")
	if err != nil && !errors.Is(err, goose.ErrNoCurrentVersion) {
		return err
	}
	return nil
}

// MigrationVersion reports the current schema version.
func MigrationVersion(db *sql.DB) (int64, error) {
	if err := prepareGoose(); err != nil {
		return 0, err
	}
	return goose.GetDBVersion(db)
}
