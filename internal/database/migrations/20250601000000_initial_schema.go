package migrations

import (
	"context"
	"fmt"

	"github.com/obviouslynottop1/snedbot/internal/database/types"
	"github.com/uptrace/bun"
)

func init() {
	Migrations.MustRegister(func(ctx context.Context, db *bun.DB) error {
		models := []any{
			(*types.ModConfig)(nil),
			(*types.GuildUser)(nil),
			(*types.AutomodAction)(nil),
			(*types.Tempban)(nil),
		}

		for _, model := range models {
			if _, err := db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
				return fmt.Errorf("failed to create table for %T: %w", model, err)
			}
		}

		indexes := []string{
			`CREATE INDEX IF NOT EXISTS idx_automod_actions_member
			ON automod_actions (guild_id, user_id, created_at DESC)`,
			`CREATE INDEX IF NOT EXISTS idx_tempbans_expires_at
			ON tempbans (expires_at)`,
		}

		for _, index := range indexes {
			if _, err := db.NewRaw(index).Exec(ctx); err != nil {
				return fmt.Errorf("failed to create index: %w", err)
			}
		}

		return nil
	}, func(ctx context.Context, db *bun.DB) error {
		models := []any{
			(*types.Tempban)(nil),
			(*types.AutomodAction)(nil),
			(*types.GuildUser)(nil),
			(*types.ModConfig)(nil),
		}

		for _, model := range models {
			if _, err := db.NewDropTable().Model(model).IfExists().Cascade().Exec(ctx); err != nil {
				return fmt.Errorf("failed to drop table for %T: %w", model, err)
			}
		}

		return nil
	})
}
