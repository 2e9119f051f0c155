package migrations

import (
	"context"
	"fmt"

	"github.com/obviouslynottop1/snedbot/internal/database/types"
	"github.com/uptrace/bun"
)

func init() {
	Migrations.MustRegister(func(ctx context.Context, db *bun.DB) error {
		// Fresh databases already got these columns from the model
		statements := []string{
			`ALTER TABLE tempbans ADD COLUMN IF NOT EXISTS attempts BIGINT NOT NULL DEFAULT 0`,
			`ALTER TABLE tempbans ADD COLUMN IF NOT EXISTS next_attempt_at TIMESTAMPTZ NOT NULL DEFAULT 'epoch'`,
			`DROP INDEX IF EXISTS idx_tempbans_expires_at`,
			`CREATE INDEX IF NOT EXISTS idx_tempbans_due
			ON tempbans (next_attempt_at, expires_at)`,
		}

		for _, statement := range statements {
			if _, err := db.NewRaw(statement).Exec(ctx); err != nil {
				return fmt.Errorf("failed to update tempbans: %w", err)
			}
		}

		_, err := db.NewCreateTable().Model((*types.TimeoutExtension)(nil)).IfNotExists().Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to create timeout_extensions: %w", err)
		}

		_, err = db.NewRaw(`CREATE INDEX IF NOT EXISTS idx_timeout_extensions_extend_at
			ON timeout_extensions (extend_at)`).Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}

		return nil
	}, func(ctx context.Context, db *bun.DB) error {
		_, err := db.NewDropTable().Model((*types.TimeoutExtension)(nil)).IfExists().Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to drop timeout_extensions: %w", err)
		}

		statements := []string{
			`DROP INDEX IF EXISTS idx_tempbans_due`,
			`ALTER TABLE tempbans DROP COLUMN IF EXISTS next_attempt_at`,
			`ALTER TABLE tempbans DROP COLUMN IF EXISTS attempts`,
			`CREATE INDEX IF NOT EXISTS idx_tempbans_expires_at ON tempbans (expires_at)`,
		}

		for _, statement := range statements {
			if _, err := db.NewRaw(statement).Exec(ctx); err != nil {
				return fmt.Errorf("failed to revert tempbans: %w", err)
			}
		}

		return nil
	})
}
