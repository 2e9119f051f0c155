package models

import (
	"context"
	"fmt"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/obviouslynottop1/snedbot/internal/database/dbretry"
	"github.com/obviouslynottop1/snedbot/internal/database/types"
	"github.com/uptrace/bun"
	"go.uber.org/zap"
)

// TempbanModel handles database operations for temporary bans.
type TempbanModel struct {
	db     *bun.DB
	logger *zap.Logger
}

// NewTempban creates a TempbanModel with database access.
func NewTempban(db *bun.DB, logger *zap.Logger) *TempbanModel {
	return &TempbanModel{
		db:     db,
		logger: logger.Named("db_tempban"),
	}
}

// SaveTempban stores or replaces the expiry of a member's tempban.
func (m *TempbanModel) SaveTempban(ctx context.Context, tempban *types.Tempban) error {
	return dbretry.NoResult(ctx, func(ctx context.Context) error {
		_, err := m.db.NewInsert().
			Model(tempban).
			On("CONFLICT (guild_id, user_id) DO UPDATE").
			Set("expires_at = EXCLUDED.expires_at").
			Set("reason = EXCLUDED.reason").
			Set("attempts = 0").
			Set("next_attempt_at = EXCLUDED.next_attempt_at").
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to save tempban: %w", err)
		}

		return nil
	})
}

// GetExpiredTempbans returns tempbans that expired at or before now and
// are not waiting for a retry, the longest waiting first.
func (m *TempbanModel) GetExpiredTempbans(ctx context.Context, now time.Time, limit int) ([]*types.Tempban, error) {
	return dbretry.Operation(ctx, func(ctx context.Context) ([]*types.Tempban, error) {
		var tempbans []*types.Tempban

		err := m.db.NewSelect().
			Model(&tempbans).
			Where("expires_at <= ?", now).
			Where("next_attempt_at <= ?", now).
			OrderExpr("next_attempt_at ASC, expires_at ASC").
			Limit(limit).
			Scan(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to get expired tempbans: %w", err)
		}

		return tempbans, nil
	})
}

// DeferTempban records a failed unban and holds the tempban back until
// nextAttemptAt.
func (m *TempbanModel) DeferTempban(
	ctx context.Context, guildID, userID snowflake.ID, attempts int, nextAttemptAt time.Time,
) error {
	return dbretry.NoResult(ctx, func(ctx context.Context) error {
		_, err := m.db.NewUpdate().
			Model((*types.Tempban)(nil)).
			Set("attempts = ?", attempts).
			Set("next_attempt_at = ?", nextAttemptAt).
			Where("guild_id = ?", guildID).
			Where("user_id = ?", userID).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to defer tempban: %w", err)
		}

		return nil
	})
}

// RemoveTempban deletes a member's tempban.
func (m *TempbanModel) RemoveTempban(ctx context.Context, guildID, userID snowflake.ID) error {
	err := dbretry.NoResult(ctx, func(ctx context.Context) error {
		_, err := m.db.NewDelete().
			Model((*types.Tempban)(nil)).
			Where("guild_id = ?", guildID).
			Where("user_id = ?", userID).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to remove tempban: %w", err)
		}

		return nil
	})
	if err != nil {
		return err
	}

	m.logger.Debug("Removed tempban",
		zap.Uint64("guildID", uint64(guildID)),
		zap.Uint64("userID", uint64(userID)))

	return nil
}
