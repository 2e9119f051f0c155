package models

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/obviouslynottop1/snedbot/internal/database/dbretry"
	"github.com/obviouslynottop1/snedbot/internal/database/types"
	"github.com/uptrace/bun"
	"go.uber.org/zap"
)

// TimeoutExtensionModel handles database operations for timeouts longer
// than a single Discord timeout.
type TimeoutExtensionModel struct {
	db     *bun.DB
	logger *zap.Logger
}

// NewTimeoutExtension creates a TimeoutExtensionModel with database access.
func NewTimeoutExtension(db *bun.DB, logger *zap.Logger) *TimeoutExtensionModel {
	return &TimeoutExtensionModel{
		db:     db,
		logger: logger.Named("db_timeout_extension"),
	}
}

// SaveTimeoutExtension stores or replaces a member's timeout extension.
func (m *TimeoutExtensionModel) SaveTimeoutExtension(ctx context.Context, extension *types.TimeoutExtension) error {
	return dbretry.NoResult(ctx, func(ctx context.Context) error {
		_, err := m.db.NewInsert().
			Model(extension).
			On("CONFLICT (guild_id, user_id) DO UPDATE").
			Set("expires_at = EXCLUDED.expires_at").
			Set("extend_at = EXCLUDED.extend_at").
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to save timeout extension: %w", err)
		}

		return nil
	})
}

// GetTimeoutExtension returns a member's timeout extension, or nil if the
// member has none.
func (m *TimeoutExtensionModel) GetTimeoutExtension(
	ctx context.Context, guildID, userID snowflake.ID,
) (*types.TimeoutExtension, error) {
	return dbretry.Operation(ctx, func(ctx context.Context) (*types.TimeoutExtension, error) {
		var extension types.TimeoutExtension

		err := m.db.NewSelect().
			Model(&extension).
			Where("guild_id = ?", guildID).
			Where("user_id = ?", userID).
			Scan(ctx)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}

		if err != nil {
			return nil, fmt.Errorf("failed to get timeout extension: %w", err)
		}

		return &extension, nil
	})
}

// GetDueTimeoutExtensions returns extensions whose applied timeout needs
// to be pushed at or before now, the most urgent first.
func (m *TimeoutExtensionModel) GetDueTimeoutExtensions(
	ctx context.Context, now time.Time, limit int,
) ([]*types.TimeoutExtension, error) {
	return dbretry.Operation(ctx, func(ctx context.Context) ([]*types.TimeoutExtension, error) {
		var extensions []*types.TimeoutExtension

		err := m.db.NewSelect().
			Model(&extensions).
			Where("extend_at <= ?", now).
			Order("extend_at ASC").
			Limit(limit).
			Scan(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to get due timeout extensions: %w", err)
		}

		return extensions, nil
	})
}

// RescheduleTimeoutExtension moves the next extension of a member's timeout.
func (m *TimeoutExtensionModel) RescheduleTimeoutExtension(
	ctx context.Context, guildID, userID snowflake.ID, extendAt time.Time,
) error {
	return dbretry.NoResult(ctx, func(ctx context.Context) error {
		_, err := m.db.NewUpdate().
			Model((*types.TimeoutExtension)(nil)).
			Set("extend_at = ?", extendAt).
			Where("guild_id = ?", guildID).
			Where("user_id = ?", userID).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to reschedule timeout extension: %w", err)
		}

		return nil
	})
}

// RemoveTimeoutExtension deletes a member's timeout extension.
func (m *TimeoutExtensionModel) RemoveTimeoutExtension(ctx context.Context, guildID, userID snowflake.ID) error {
	err := dbretry.NoResult(ctx, func(ctx context.Context) error {
		_, err := m.db.NewDelete().
			Model((*types.TimeoutExtension)(nil)).
			Where("guild_id = ?", guildID).
			Where("user_id = ?", userID).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to remove timeout extension: %w", err)
		}

		return nil
	})
	if err != nil {
		return err
	}

	m.logger.Debug("Removed timeout extension",
		zap.Uint64("guildID", uint64(guildID)),
		zap.Uint64("userID", uint64(userID)))

	return nil
}
