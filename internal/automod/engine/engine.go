// Package engine turns detected violations into punishments. Each policy
// state has its own handler; the escalate handler walks members up a ladder
// of notice, warning and finally the escalate category's own state.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/snowflake/v2"
	"github.com/google/uuid"
	"github.com/obviouslynottop1/snedbot/internal/automod/event"
	"github.com/obviouslynottop1/snedbot/internal/automod/policy"
	"github.com/obviouslynottop1/snedbot/internal/automod/ratelimit"
	"github.com/obviouslynottop1/snedbot/internal/database/types"
	"github.com/obviouslynottop1/snedbot/internal/moderation"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("automod/engine")

// Executor carries out moderation actions.
type Executor interface {
	Warn(ctx context.Context, target moderation.Target, moderator moderation.User, reason string) (discord.Embed, error)
	Timeout(
		ctx context.Context, target moderation.Target, moderator moderation.User, until time.Time, reason string,
	) (discord.Embed, error)
	Kick(ctx context.Context, target moderation.Target, moderator moderation.User, reason string) (discord.Embed, error)
	Ban(
		ctx context.Context, target moderation.Target, moderator moderation.User, opts moderation.BanOptions,
	) (discord.Embed, error)
	FlagUser(ctx context.Context, target moderation.Target, msg *event.Message, reason string) error
}

// Responder talks in the channel the violation happened in.
type Responder interface {
	Respond(ctx context.Context, channelID snowflake.ID, embed discord.Embed, mention *moderation.User) error
	DeleteMessage(ctx context.Context, channelID, messageID snowflake.ID, reason string) error
}

// Standing describes the bot's own position in guilds.
type Standing interface {
	// CanModerate reports whether the bot outranks the member and holds
	// the permissions needed to punish them.
	CanModerate(guildID snowflake.ID, member *event.Member) bool
	// Moderator returns the bot user that actions are attributed to.
	Moderator() moderation.User
}

// ActionLog records executed punishments.
type ActionLog interface {
	LogAction(ctx context.Context, action *types.AutomodAction) error
}

// Violation is a detected violation waiting to be punished.
type Violation struct {
	Message  *event.Message
	Category policy.Category
	Reason   string
	// OriginalCategory is set when the violation is the final step of an
	// escalation. Category is then always the escalate category.
	OriginalCategory policy.Category
}

// escalated reports whether the violation is an escalation follow-up.
func (v *Violation) escalated() bool {
	return v.OriginalCategory != ""
}

// handler punishes a violation for one state.
type handler func(ctx context.Context, v *Violation, policies policy.Policies, settings policy.CategoryPolicy) error

// Engine decides on and carries out punishments.
type Engine struct {
	executor  Executor
	responder Responder
	standing  Standing
	actions   ActionLog
	limiters  *ratelimit.Limiters
	handlers  map[policy.State]handler
	logger    *zap.Logger
	now       func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock replaces the time source used for punishment durations.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// New creates an Engine.
func New(
	executor Executor,
	responder Responder,
	standing Standing,
	actions ActionLog,
	limiters *ratelimit.Limiters,
	logger *zap.Logger,
	opts ...Option,
) *Engine {
	e := &Engine{
		executor:  executor,
		responder: responder,
		standing:  standing,
		actions:   actions,
		limiters:  limiters,
		logger:    logger.Named("engine"),
		now:       time.Now,
	}

	e.handlers = map[policy.State]handler{
		policy.StateDisabled: e.handleDisabled,
		policy.StateFlag:     e.handleFlag,
		policy.StateNotice:   e.handleNotice,
		policy.StateWarn:     e.handleWarn,
		policy.StateEscalate: e.handleEscalate,
		policy.StateTimeout:  e.handleTimeout,
		policy.StateKick:     e.handleKick,
		policy.StateSoftban:  e.handleSoftban,
		policy.StateTempban:  e.handleTempban,
		policy.StatePermaban: e.handlePermaban,
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Punish runs the violation through the state machine. Expected outcomes
// such as exclusions or cooldowns return nil; executor failures are
// returned unchanged apart from wrapping.
func (e *Engine) Punish(ctx context.Context, v Violation, policies policy.Policies) error {
	ctx, span := tracer.Start(ctx, "automod.punish", trace.WithAttributes(
		attribute.String("category", v.Category.String()),
		attribute.String("original_category", v.OriginalCategory.String()),
		attribute.Int64("guild_id", int64(v.Message.GuildID)), //nolint:gosec // snowflakes fit in int64
	))
	defer span.End()

	err := e.punish(ctx, &v, policies)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}

	return err
}

func (e *Engine) punish(ctx context.Context, v *Violation, policies policy.Policies) error {
	msg := v.Message
	offender := msg.Author
	settings := policies.Get(v.Category)
	logger := e.logger.With(
		zap.Uint64("guildID", uint64(msg.GuildID)),
		zap.Uint64("userID", uint64(offender.ID)),
		zap.String("category", v.Category.String()),
	)

	if !e.standing.CanModerate(msg.GuildID, offender) {
		logger.Debug("Cannot moderate member, skipping punishment")
		return nil
	}

	// Escalation follow-ups already passed the exclusions of the original category
	if !v.escalated() {
		if settings.ExcludesChannel(msg.ChannelID) || settings.ExcludesAnyRole(offender.RoleIDs) {
			logger.Debug("Violation is excluded by policy")
			return nil
		}
	}

	state := settings.State
	if state == policy.StateDisabled {
		return nil
	}

	silenced, err := e.recentlySilenced(ctx, state, policies, offender)
	if err != nil {
		return err
	}

	if silenced {
		logger.Debug("Member was punished recently, skipping", zap.String("state", state.String()))
		return nil
	}

	if !v.escalated() && settings.Delete && v.Category != policy.CategorySpam {
		if err := e.responder.DeleteMessage(ctx, msg.ChannelID, msg.ID, "Removed by auto-moderator."); err != nil {
			logger.Debug("Failed to delete offending message", zap.Error(err))
		}
	}

	handle, ok := e.handlers[state]
	if !ok {
		return fmt.Errorf("no handler for automod state %q", state)
	}

	return handle(ctx, v, policies, settings)
}

// recentlySilenced applies the punishment cooldown to silencing states.
// Silencers record a hit; escalate only looks, because the silencing step of
// an escalation records its own hit when it recurses.
func (e *Engine) recentlySilenced(
	ctx context.Context, state policy.State, policies policy.Policies, offender *event.Member,
) (bool, error) {
	key := ratelimit.MemberKey(offender.GuildID, offender.ID)

	switch {
	case state.Silences():
		return e.limiters.Punish.Hit(ctx, key)
	case state == policy.StateEscalate && policies.Get(policy.CategoryEscalate).State.Silences():
		return e.limiters.Punish.IsRateLimited(ctx, key)
	default:
		return false, nil
	}
}

// target builds the moderation target of the violation.
func target(msg *event.Message) moderation.Target {
	return moderation.Target{
		GuildID:   msg.GuildID,
		GuildName: msg.GuildName,
		User: moderation.User{
			ID:   msg.Author.ID,
			Name: msg.Author.Name(),
		},
	}
}

// record writes the executed punishment to the action log.
func (e *Engine) record(ctx context.Context, v *Violation, state policy.State, reason string) {
	if e.actions == nil {
		return
	}

	msg := v.Message

	err := e.actions.LogAction(ctx, &types.AutomodAction{
		ID:               uuid.New(),
		GuildID:          msg.GuildID,
		UserID:           msg.Author.ID,
		ChannelID:        msg.ChannelID,
		MessageID:        msg.ID,
		Category:         v.Category.String(),
		OriginalCategory: v.OriginalCategory.String(),
		State:            state.String(),
		Reason:           reason,
		CreatedAt:        e.now(),
	})
	if err != nil {
		e.logger.Warn("Failed to log automod action", zap.Error(err))
	}
}
