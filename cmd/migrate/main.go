// migrate applies the schema, the default grant matrix and, optionally,
// an environment's fixtures.
//
//	migrate [--dotenv .env] [--env dev] [--fixtures fixtures.yaml] [--down]
package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/pflag"

	"github.com/iliyamo/department-admin/internal/config"
	"github.com/iliyamo/department-admin/internal/database"
	"github.com/iliyamo/department-admin/internal/fixtures"
	"github.com/iliyamo/department-admin/internal/logger"
	"github.com/iliyamo/department-admin/internal/repository"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		dotenv       string
		env          string
		fixturesPath string
		down         bool
	)
	flagSet := pflag.NewFlagSet("migrate", pflag.ContinueOnError)
	flagSet.StringVar(&dotenv, "dotenv", ".env", "optional .env file to load before reading the environment")
	flagSet.StringVar(&env, "env", "", "fixture section to load (default: APP_ENV)")
	flagSet.StringVar(&fixturesPath, "fixtures", "", "YAML fixture file; empty skips fixtures")
	flagSet.BoolVar(&down, "down", false, "roll back the most recent migration and exit")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}

	cfg, err := config.New(dotenv)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if env == "" {
		env = cfg.Env
	}
	lg := logger.New(logger.ParseLevel(cfg.LogLevel))
	ctx := context.Background()

	db, err := database.Open(cfg.DSN())
	if err != nil {
		return fmt.Errorf("connect to mysql: %w", err)
	}
	defer db.Close()

	if down {
		if err := database.DownMigrations(db); err != nil {
			return fmt.Errorf("down migrations: %w", err)
		}
		return logVersion(ctx, db, lg, "rolled back")
	}

	if err := database.UpMigrations(db); err != nil {
		return fmt.Errorf("up migrations: %w", err)
	}
	if err := logVersion(ctx, db, lg, "migrated"); err != nil {
		return err
	}

	if err := repository.NewRoleRepo(db).Seed(ctx); err != nil {
		return fmt.Errorf("seed grants: %w", err)
	}
	lg.InfoContext(ctx, "default grants seeded")

	if fixturesPath == "" {
		return nil
	}
	set, err := fixtures.Load(fixturesPath, env)
	if err != nil {
		return err
	}
	loader := &fixtures.Loader{DB: db, Users: repository.NewUserRepo(db), Cost: cfg.BcryptCost, Log: lg.With("env", env)}
	_, err = loader.Apply(ctx, set)
	return err
}

func logVersion(ctx context.Context, db *sql.DB, lg *slog.Logger, msg string) error {
	v, err := database.MigrationVersion(db)
	if err != nil {
		return fmt.Errorf("migration version: %w", err)
	}
	lg.InfoContext(ctx, msg, "version", v)
	return nil
}
