package models

import (
	"context"
	"fmt"

	"github.com/disgoorg/snowflake/v2"
	"github.com/obviouslynottop1/snedbot/internal/database/dbretry"
	"github.com/obviouslynottop1/snedbot/internal/database/types"
	"github.com/uptrace/bun"
	"go.uber.org/zap"
)

// AutomodActionModel handles database operations for the automod action log.
type AutomodActionModel struct {
	db     *bun.DB
	logger *zap.Logger
}

// NewAutomodAction creates an AutomodActionModel with database access.
func NewAutomodAction(db *bun.DB, logger *zap.Logger) *AutomodActionModel {
	return &AutomodActionModel{
		db:     db,
		logger: logger.Named("db_automod_action"),
	}
}

// LogAction stores an action carried out by the auto-moderator.
func (m *AutomodActionModel) LogAction(ctx context.Context, action *types.AutomodAction) error {
	err := dbretry.NoResult(ctx, func(ctx context.Context) error {
		_, err := m.db.NewInsert().Model(action).Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to log automod action: %w", err)
		}

		return nil
	})
	if err != nil {
		return err
	}

	m.logger.Debug("Logged automod action",
		zap.Uint64("guildID", uint64(action.GuildID)),
		zap.Uint64("userID", uint64(action.UserID)),
		zap.String("category", action.Category),
		zap.String("state", action.State))

	return nil
}

// GetRecentActions returns the latest actions taken against a member.
func (m *AutomodActionModel) GetRecentActions(
	ctx context.Context, guildID, userID snowflake.ID, limit int,
) ([]*types.AutomodAction, error) {
	return dbretry.Operation(ctx, func(ctx context.Context) ([]*types.AutomodAction, error) {
		var actions []*types.AutomodAction

		err := m.db.NewSelect().
			Model(&actions).
			Where("guild_id = ?", guildID).
			Where("user_id = ?", userID).
			Order("created_at DESC").
			Limit(limit).
			Scan(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to get automod actions: %w", err)
		}

		return actions, nil
	})
}
