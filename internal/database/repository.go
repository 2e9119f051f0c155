package database

import (
	"github.com/obviouslynottop1/snedbot/internal/database/models"
	"github.com/uptrace/bun"
	"go.uber.org/zap"
)

// Repository provides access to all database models.
type Repository struct {
	modConfig     *models.ModConfigModel
	guildUser     *models.GuildUserModel
	automodAction *models.AutomodActionModel
	tempban       *models.TempbanModel
	timeoutExt    *models.TimeoutExtensionModel
}

// NewRepository creates a new repository instance with all models.
func NewRepository(db *bun.DB, logger *zap.Logger) *Repository {
	return &Repository{
		modConfig:     models.NewModConfig(db, logger),
		guildUser:     models.NewGuildUser(db, logger),
		automodAction: models.NewAutomodAction(db, logger),
		tempban:       models.NewTempban(db, logger),
		timeoutExt:    models.NewTimeoutExtension(db, logger),
	}
}

// ModConfig returns the guild moderation settings model.
func (r *Repository) ModConfig() *models.ModConfigModel {
	return r.modConfig
}

// GuildUser returns the member moderation state model.
func (r *Repository) GuildUser() *models.GuildUserModel {
	return r.guildUser
}

// AutomodAction returns the automod action log model.
func (r *Repository) AutomodAction() *models.AutomodActionModel {
	return r.automodAction
}

// Tempban returns the temporary ban model.
func (r *Repository) Tempban() *models.TempbanModel {
	return r.tempban
}

// TimeoutExtension returns the long timeout model.
func (r *Repository) TimeoutExtension() *models.TimeoutExtensionModel {
	return r.timeoutExt
}
