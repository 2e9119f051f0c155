// Package moderation carries out moderation actions against guild members
// through the Discord REST API and keeps the related database state.
package moderation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/rest"
	"github.com/disgoorg/snowflake/v2"
	"github.com/obviouslynottop1/snedbot/internal/database/types"
	"go.uber.org/zap"
)

// ErrSoftTempban is returned when a ban is both soft and temporary.
var ErrSoftTempban = errors.New("ban type cannot be soft when a duration is specified")

const (
	// MaxTimeout is the longest timeout Discord accepts.
	MaxTimeout = 28 * 24 * time.Hour
	// extendLead is how long before an applied timeout runs out that a
	// longer timeout is pushed further.
	extendLead = 24 * time.Hour

	// AuditReasonLength caps reasons sent to the audit log.
	AuditReasonLength = 512
	// EmbedReasonLength caps reasons shown in response embeds.
	EmbedReasonLength = 1000
	// LogReasonLength caps reasons shown in DMs and log embeds.
	LogReasonLength = 1500
	// NoteLength caps journal notes.
	NoteLength = 256
	// ContentLength caps message content quoted in log embeds.
	ContentLength = 2000

	ErrorColor = 0xFF0000
	WarnColor  = 0xFFCC4D
)

// REST is the part of the Discord REST API the executor needs.
type REST interface {
	UpdateMember(
		guildID, userID snowflake.ID, memberUpdate discord.MemberUpdate, opts ...rest.RequestOpt,
	) (*discord.Member, error)
	RemoveMember(guildID, userID snowflake.ID, opts ...rest.RequestOpt) error
	AddBan(guildID, userID snowflake.ID, deleteMessageDuration time.Duration, opts ...rest.RequestOpt) error
	DeleteBan(guildID, userID snowflake.ID, opts ...rest.RequestOpt) error
	CreateDMChannel(userID snowflake.ID, opts ...rest.RequestOpt) (*discord.DMChannel, error)
	CreateMessage(
		channelID snowflake.ID, messageCreate discord.MessageCreate, opts ...rest.RequestOpt,
	) (*discord.Message, error)
}

// SettingsStore provides guild moderation settings.
type SettingsStore interface {
	GetModConfig(ctx context.Context, guildID snowflake.ID) (*types.ModConfig, error)
}

// UserStore keeps per-member moderation state.
type UserStore interface {
	IncrementWarns(ctx context.Context, guildID, userID snowflake.ID) (int, error)
	AddNote(ctx context.Context, guildID, userID snowflake.ID, note string) error
}

// TempbanStore keeps temporary bans until they expire.
type TempbanStore interface {
	SaveTempban(ctx context.Context, tempban *types.Tempban) error
}

// TimeoutExtensionStore keeps timeouts that outlast a single Discord timeout.
type TimeoutExtensionStore interface {
	SaveTimeoutExtension(ctx context.Context, extension *types.TimeoutExtension) error
	RemoveTimeoutExtension(ctx context.Context, guildID, userID snowflake.ID) error
}

// User identifies a user in responses.
type User struct {
	ID   snowflake.ID
	Name string
}

// Target is the member an action is carried out against.
type Target struct {
	GuildID   snowflake.ID
	GuildName string
	User
}

// BanOptions configures a ban.
type BanOptions struct {
	// Duration makes the ban temporary when positive.
	Duration time.Duration
	// Soft unbans the member right away so that only their messages are removed.
	Soft bool
	// DaysToDelete is how many days of the member's messages Discord removes.
	DaysToDelete int
	Reason       string
}

// Executor carries out moderation actions.
type Executor struct {
	rest     REST
	settings SettingsStore
	users    UserStore
	tempbans TempbanStore
	timeouts TimeoutExtensionStore
	logger   *zap.Logger
	now      func() time.Time
}

// NewExecutor creates an Executor.
func NewExecutor(
	restClient REST,
	settings SettingsStore,
	users UserStore,
	tempbans TempbanStore,
	timeouts TimeoutExtensionStore,
	logger *zap.Logger,
) *Executor {
	return &Executor{
		rest:     restClient,
		settings: settings,
		users:    users,
		tempbans: tempbans,
		timeouts: timeouts,
		logger:   logger.Named("moderation"),
		now:      time.Now,
	}
}

// FormatReason attributes a reason to its moderator and truncates it.
func FormatReason(reason string, moderator *User, maxLength int) string {
	if reason == "" {
		reason = "No reason provided."
	}

	if moderator != nil {
		reason = fmt.Sprintf("%s (%d): %s", moderator.Name, moderator.ID, reason)
	}

	runes := []rune(reason)
	if len(runes) > maxLength {
		reason = string(runes[:maxLength-3]) + "..."
	}

	return reason
}

// formatTimestamp renders t as a Discord timestamp.
func formatTimestamp(t time.Time, style string) string {
	return fmt.Sprintf("<t:%d:%s>", t.Unix(), style)
}
