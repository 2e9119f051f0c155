package main

import (
	"context"

	"github.com/uptrace/bun/migrate"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
)

// migrationCommands returns the schema migration subcommands.
func migrationCommands(migrator *migrate.Migrator, logger *zap.Logger) []*cli.Command {
	return []*cli.Command{
		{
			Name:  "init",
			Usage: "Create the migration bookkeeping tables",
			Action: func(ctx context.Context, _ *cli.Command) error {
				return migrator.Init(ctx)
			},
		},
		{
			Name:  "migrate",
			Usage: "Apply pending migrations",
			Action: func(ctx context.Context, _ *cli.Command) error {
				if err := migrator.Init(ctx); err != nil {
					return err
				}

				return withLock(ctx, migrator, func() error {
					group, err := migrator.Migrate(ctx)
					if err != nil {
						return err
					}

					if group.IsZero() {
						logger.Info("Schema is up to date")
						return nil
					}

					logger.Info("Applied migrations", zap.String("group", group.String()))

					return nil
				})
			},
		},
		{
			Name:  "rollback",
			Usage: "Revert the last applied migration group",
			Action: func(ctx context.Context, _ *cli.Command) error {
				return withLock(ctx, migrator, func() error {
					group, err := migrator.Rollback(ctx)
					if err != nil {
						return err
					}

					if group.IsZero() {
						logger.Info("Nothing to roll back")
						return nil
					}

					logger.Info("Reverted migrations", zap.String("group", group.String()))

					return nil
				})
			},
		},
		{
			Name:  "status",
			Usage: "List applied and pending migrations",
			Action: func(ctx context.Context, _ *cli.Command) error {
				ms, err := migrator.MigrationsWithStatus(ctx)
				if err != nil {
					return err
				}

				logger.Info("Migration status",
					zap.String("all", ms.String()),
					zap.String("pending", ms.Unapplied().String()),
					zap.String("lastGroup", ms.LastGroup().String()))

				return nil
			},
		},
		{
			Name:      "create",
			Usage:     "Write a new Go migration file",
			ArgsUsage: "NAME",
			Action: func(ctx context.Context, c *cli.Command) error {
				if c.Args().Len() != 1 {
					return ErrWrongArgs
				}

				mf, err := migrator.CreateGoMigration(ctx, c.Args().First())
				if err != nil {
					return err
				}

				logger.Info("Created migration", zap.String("name", mf.Name), zap.String("path", mf.Path))

				return nil
			},
		},
	}
}

// withLock runs fn while holding the migration lock.
func withLock(ctx context.Context, migrator *migrate.Migrator, fn func() error) error {
	if err := migrator.Lock(ctx); err != nil {
		return err
	}
	defer migrator.Unlock(ctx) //nolint:errcheck // released with the session otherwise

	return fn()
}
