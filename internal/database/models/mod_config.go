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

// ModConfigModel handles database operations for guild moderation settings.
type ModConfigModel struct {
	db     *bun.DB
	logger *zap.Logger
}

// NewModConfig creates a ModConfigModel with database access.
func NewModConfig(db *bun.DB, logger *zap.Logger) *ModConfigModel {
	return &ModConfigModel{
		db:     db,
		logger: logger.Named("db_mod_config"),
	}
}

// GetModConfig retrieves the moderation settings of a guild.
// Guilds without a stored row get the default settings.
func (m *ModConfigModel) GetModConfig(ctx context.Context, guildID snowflake.ID) (*types.ModConfig, error) {
	return dbretry.Operation(ctx, func(ctx context.Context) (*types.ModConfig, error) {
		config := &types.ModConfig{GuildID: guildID}

		err := m.db.NewSelect().
			Model(config).
			WherePK().
			Scan(ctx)
		if errors.Is(err, sql.ErrNoRows) {
			return &types.ModConfig{
				GuildID:         guildID,
				DMUsersOnPunish: true,
			}, nil
		}

		if err != nil {
			return nil, fmt.Errorf("failed to get mod config: %w", err)
		}

		return config, nil
	})
}

// GetAutomodPolicies returns the stored policy document of a guild.
// The boolean is false when the guild never saved one.
func (m *ModConfigModel) GetAutomodPolicies(ctx context.Context, guildID snowflake.ID) ([]byte, bool, error) {
	config, err := m.GetModConfig(ctx, guildID)
	if err != nil {
		return nil, false, err
	}

	if config.AutomodPolicies == "" {
		return nil, false, nil
	}

	return []byte(config.AutomodPolicies), true, nil
}

// SaveAutomodPolicies stores the policy document of a guild.
func (m *ModConfigModel) SaveAutomodPolicies(ctx context.Context, guildID snowflake.ID, document []byte) error {
	err := dbretry.NoResult(ctx, func(ctx context.Context) error {
		_, err := m.db.NewInsert().
			Model(&types.ModConfig{
				GuildID:         guildID,
				AutomodPolicies: string(document),
				DMUsersOnPunish: true,
			}).
			On("CONFLICT (guild_id) DO UPDATE").
			Set("automod_policies = EXCLUDED.automod_policies").
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to save automod policies: %w", err)
		}

		return nil
	})
	if err != nil {
		return err
	}

	m.logger.Debug("Saved automod policies", zap.Uint64("guildID", uint64(guildID)))

	return nil
}

// SetFlagsChannel sets the channel that receives flagged-message notes.
func (m *ModConfigModel) SetFlagsChannel(ctx context.Context, guildID, channelID snowflake.ID) error {
	return dbretry.NoResult(ctx, func(ctx context.Context) error {
		_, err := m.db.NewInsert().
			Model(&types.ModConfig{
				GuildID:         guildID,
				DMUsersOnPunish: true,
				FlagsChannelID:  channelID,
			}).
			On("CONFLICT (guild_id) DO UPDATE").
			Set("flags_channel_id = EXCLUDED.flags_channel_id").
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to set flags channel: %w", err)
		}

		return nil
	})
}
