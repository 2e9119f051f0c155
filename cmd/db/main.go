package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/obviouslynottop1/snedbot/internal/database"
	"github.com/obviouslynottop1/snedbot/internal/database/migrations"
	"github.com/obviouslynottop1/snedbot/internal/setup/config"
	"github.com/uptrace/bun/migrate"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
)

// ErrWrongArgs is returned when a command gets the wrong number of arguments.
var ErrWrongArgs = errors.New("wrong number of arguments")

func main() {
	if err := run(); err != nil {
		log.Printf("Error: %v", err)
		os.Exit(1)
	}
}

func run() error {
	db, logger, err := connect()
	if err != nil {
		return err
	}
	defer db.Close()

	migrator := migrate.NewMigrator(db.DB(), migrations.Migrations)

	app := &cli.Command{
		Name:  "db",
		Usage: "Manage the schema and stored guild settings",
		Commands: append(
			migrationCommands(migrator, logger),
			guildCommand(db.Model(), logger),
		),
	}

	return app.Run(context.Background(), os.Args)
}

// connect loads the shared config and opens the database without running
// migrations, which are this tool's job.
func connect() (database.Client, *zap.Logger, error) {
	cfg, _, err := config.LoadConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger, err := zap.NewDevelopment()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create logger: %w", err)
	}

	db, err := database.NewConnection(context.Background(), &cfg.Common.PostgreSQL, logger, false)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return db, logger, nil
}
