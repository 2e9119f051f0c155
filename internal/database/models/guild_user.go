package models

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/disgoorg/snowflake/v2"
	"github.com/obviouslynottop1/snedbot/internal/database/dbretry"
	"github.com/obviouslynottop1/snedbot/internal/database/types"
	"github.com/uptrace/bun"
	"go.uber.org/zap"
)

// GuildUserModel handles database operations for per-member moderation state.
type GuildUserModel struct {
	db     *bun.DB
	logger *zap.Logger
}

// NewGuildUser creates a GuildUserModel with database access.
func NewGuildUser(db *bun.DB, logger *zap.Logger) *GuildUserModel {
	return &GuildUserModel{
		db:     db,
		logger: logger.Named("db_guild_user"),
	}
}

// GetGuildUser retrieves the moderation state of a member.
// Members without a stored row get an empty record.
func (m *GuildUserModel) GetGuildUser(ctx context.Context, guildID, userID snowflake.ID) (*types.GuildUser, error) {
	return dbretry.Operation(ctx, func(ctx context.Context) (*types.GuildUser, error) {
		user := &types.GuildUser{GuildID: guildID, UserID: userID}

		err := m.db.NewSelect().Model(user).WherePK().Scan(ctx)
		if errors.Is(err, sql.ErrNoRows) {
			return &types.GuildUser{GuildID: guildID, UserID: userID}, nil
		}

		if err != nil {
			return nil, fmt.Errorf("failed to get guild user: %w", err)
		}

		return user, nil
	})
}

// IncrementWarns adds one warning to a member and returns the new total.
func (m *GuildUserModel) IncrementWarns(ctx context.Context, guildID, userID snowflake.ID) (int, error) {
	warns, err := dbretry.Operation(ctx, func(ctx context.Context) (int, error) {
		user := &types.GuildUser{GuildID: guildID, UserID: userID, Warns: 1}

		_, err := m.db.NewInsert().
			Model(user).
			On("CONFLICT (guild_id, user_id) DO UPDATE").
			Set("warns = gu.warns + 1").
			Returning("warns").
			Exec(ctx)
		if err != nil {
			return 0, fmt.Errorf("failed to increment warns: %w", err)
		}

		return user.Warns, nil
	})
	if err != nil {
		return 0, err
	}

	m.logger.Debug("Incremented warns",
		zap.Uint64("guildID", uint64(guildID)),
		zap.Uint64("userID", uint64(userID)),
		zap.Int("warns", warns))

	return warns, nil
}

// AddNote appends a moderation note to a member.
func (m *GuildUserModel) AddNote(ctx context.Context, guildID, userID snowflake.ID, note string) error {
	return dbretry.NoResult(ctx, func(ctx context.Context) error {
		_, err := m.db.NewInsert().
			Model(&types.GuildUser{GuildID: guildID, UserID: userID, Notes: []string{note}}).
			On("CONFLICT (guild_id, user_id) DO UPDATE").
			Set("notes = array_append(gu.notes, ?)", note).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to add note: %w", err)
		}

		return nil
	})
}
