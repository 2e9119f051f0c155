package moderation

import (
	"context"
	"fmt"
	"time"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/rest"
	"github.com/disgoorg/json"
	"github.com/obviouslynottop1/snedbot/internal/automod/event"
	"github.com/obviouslynottop1/snedbot/internal/database/types"
	"go.uber.org/zap"
)

// Warn increments the member's warn counter.
func (e *Executor) Warn(ctx context.Context, target Target, moderator User, reason string) (discord.Embed, error) {
	warns, err := e.users.IncrementWarns(ctx, target.GuildID, target.ID)
	if err != nil {
		return discord.Embed{}, fmt.Errorf("failed to warn member: %w", err)
	}

	reason = FormatReason(reason, nil, EmbedReasonLength)

	embed := discord.NewEmbedBuilder().
		SetTitle("⚠️ Warning issued").
		SetDescriptionf("**%s** has been warned by **%s**.\n**Reason:** ```%s```", target.Name, moderator.Name, reason).
		SetColor(WarnColor)

	e.notify(ctx, target, ActionWarn, reason, embed)
	e.addNote(ctx, target, fmt.Sprintf("⚠️ **Warned by %s:** %s", moderator.Name, reason))

	e.logger.Info("Warned member",
		zap.Uint64("guildID", uint64(target.GuildID)),
		zap.Uint64("userID", uint64(target.ID)),
		zap.Int("warns", warns))

	return embed.Build(), nil
}

// Timeout disables communication for the member until the given time.
// Discord caps a single timeout, so a longer one is applied up to the cap
// and pushed further by the TimeoutSweeper.
func (e *Executor) Timeout(
	ctx context.Context, target Target, moderator User, until time.Time, reason string,
) (discord.Embed, error) {
	rawReason := FormatReason(reason, nil, LogReasonLength)
	auditReason := FormatReason(reason, &moderator, AuditReasonLength)

	now := e.now()
	applied := capTimeout(now, until)

	embed := discord.NewEmbedBuilder().
		SetTitle("🔇 User timed out").
		SetDescriptionf("**%s** has been timed out until %s.\n**Reason:** ```%s```",
			target.Name, formatTimestamp(until, "f"), rawReason).
		SetColor(ErrorColor)

	e.notify(ctx, target, ActionTimeout, rawReason, embed)

	_, err := e.rest.UpdateMember(target.GuildID, target.ID, discord.MemberUpdate{
		CommunicationDisabledUntil: json.NewNullablePtr(applied),
	}, rest.WithCtx(ctx), rest.WithReason(auditReason))
	if err != nil {
		return discord.Embed{}, fmt.Errorf("failed to time out member: %w", err)
	}

	if applied.Before(until) {
		err = e.timeouts.SaveTimeoutExtension(ctx, &types.TimeoutExtension{
			GuildID:   target.GuildID,
			UserID:    target.ID,
			ExpiresAt: until,
			ExtendAt:  applied.Add(-extendLead),
		})
	} else {
		// A shorter timeout replaces any extension still pending
		err = e.timeouts.RemoveTimeoutExtension(ctx, target.GuildID, target.ID)
	}

	if err != nil {
		return discord.Embed{}, fmt.Errorf("failed to schedule timeout extension: %w", err)
	}

	e.addNote(ctx, target, fmt.Sprintf("🔇 **Timed out by %s until %s:** %s",
		moderator.Name, formatTimestamp(until, "f"), rawReason))

	return embed.Build(), nil
}

// capTimeout returns the furthest point up to until that Discord accepts
// for a timeout starting at now.
func capTimeout(now, until time.Time) time.Time {
	if limit := now.Add(MaxTimeout); until.After(limit) {
		return limit
	}

	return until
}

// Kick removes the member from the guild.
func (e *Executor) Kick(ctx context.Context, target Target, moderator User, reason string) (discord.Embed, error) {
	rawReason := FormatReason(reason, nil, LogReasonLength)
	auditReason := FormatReason(reason, &moderator, AuditReasonLength)

	embed := discord.NewEmbedBuilder().
		SetTitle("🚪👈 User kicked").
		SetDescriptionf("**%s** has been kicked.\n**Reason:** ```%s```", target.Name, rawReason).
		SetColor(ErrorColor)

	e.notify(ctx, target, ActionKick, rawReason, embed)

	if err := e.rest.RemoveMember(target.GuildID, target.ID, rest.WithCtx(ctx), rest.WithReason(auditReason)); err != nil {
		return discord.Embed{}, fmt.Errorf("failed to kick member: %w", err)
	}

	e.addNote(ctx, target, fmt.Sprintf("🚪👈 **Kicked by %s:** %s", moderator.Name, rawReason))

	return embed.Build(), nil
}

// Ban bans the member. A soft ban is lifted right away, a temporary ban is
// lifted by the TempbanSweeper once it expires.
func (e *Executor) Ban(ctx context.Context, target Target, moderator User, opts BanOptions) (discord.Embed, error) {
	if opts.Duration > 0 && opts.Soft {
		return discord.Embed{}, ErrSoftTempban
	}

	reason := opts.Reason
	if reason == "" {
		reason = "No reason provided."
	}

	action := ActionBan
	expiresAt := e.now().Add(opts.Duration)

	switch {
	case opts.Duration > 0:
		action = ActionTempban
		reason = fmt.Sprintf("[TEMPBAN] Banned until: %s (UTC)  |  %s",
			expiresAt.UTC().Format(time.DateTime), reason)
	case opts.Soft:
		action = ActionSoftban
		reason = "[SOFTBAN] " + reason
	}

	rawReason := FormatReason(reason, nil, LogReasonLength)
	auditReason := FormatReason(reason, &moderator, AuditReasonLength)

	embed := discord.NewEmbedBuilder().
		SetTitle("🔨 User banned").
		SetDescriptionf("**%s** has been banned.\n**Reason:** ```%s```", target.Name, rawReason).
		SetColor(ErrorColor)

	e.notify(ctx, target, action, rawReason, embed)

	deleteDuration := time.Duration(opts.DaysToDelete) * 24 * time.Hour
	if err := e.rest.AddBan(target.GuildID, target.ID, deleteDuration,
		rest.WithCtx(ctx), rest.WithReason(auditReason)); err != nil {
		return discord.Embed{}, fmt.Errorf("failed to ban member: %w", err)
	}

	switch action {
	case ActionSoftban:
		if err := e.rest.DeleteBan(target.GuildID, target.ID,
			rest.WithCtx(ctx), rest.WithReason("Automatic unban by softban.")); err != nil {
			return discord.Embed{}, fmt.Errorf("failed to lift soft ban: %w", err)
		}
	case ActionTempban:
		if err := e.tempbans.SaveTempban(ctx, &types.Tempban{
			GuildID:       target.GuildID,
			UserID:        target.ID,
			ExpiresAt:     expiresAt,
			Reason:        rawReason,
			NextAttemptAt: expiresAt,
		}); err != nil {
			return discord.Embed{}, fmt.Errorf("failed to schedule tempban expiry: %w", err)
		}
	}

	e.addNote(ctx, target, fmt.Sprintf("🔨 **Banned by %s:** %s", moderator.Name, rawReason))

	return embed.Build(), nil
}

// FlagUser reports a suspicious message to the guild's flags channel.
// Guilds without a flags channel only get a debug log entry.
func (e *Executor) FlagUser(ctx context.Context, target Target, msg *event.Message, reason string) error {
	settings, err := e.settings.GetModConfig(ctx, target.GuildID)
	if err != nil {
		return fmt.Errorf("failed to get moderation settings: %w", err)
	}

	if settings.FlagsChannelID == 0 {
		e.logger.Debug("No flags channel configured, dropping flag",
			zap.Uint64("guildID", uint64(target.GuildID)),
			zap.Uint64("userID", uint64(target.ID)))

		return nil
	}

	content := "No content found."
	if msg.Content != "" {
		content = FormatReason(msg.Content, nil, ContentLength)
	}

	embed := discord.NewEmbedBuilder().
		SetTitle("❗🚩 Message flagged").
		SetDescriptionf("**%s** `(%d)` was flagged by auto-moderator for suspicious behaviour.\n"+
			"**Reason:**```%s```\n**Content:** ```%s```\n\n[Jump to message!](%s)",
			target.Name, target.ID, FormatReason(reason, nil, LogReasonLength), content, msg.JumpURL()).
		SetColor(ErrorColor).
		Build()

	_, err = e.rest.CreateMessage(settings.FlagsChannelID, discord.MessageCreate{
		Embeds:          []discord.Embed{embed},
		AllowedMentions: &discord.AllowedMentions{},
	}, rest.WithCtx(ctx))
	if err != nil {
		return fmt.Errorf("failed to post flag: %w", err)
	}

	return nil
}

// addNote appends a journal note to the member. The action already happened,
// so a failure is only logged.
func (e *Executor) addNote(ctx context.Context, target Target, note string) {
	note = fmt.Sprintf("%s: %s", formatTimestamp(e.now(), "d"), FormatReason(note, nil, NoteLength))

	if err := e.users.AddNote(ctx, target.GuildID, target.ID, note); err != nil {
		e.logger.Warn("Failed to add journal note",
			zap.Uint64("guildID", uint64(target.GuildID)),
			zap.Uint64("userID", uint64(target.ID)),
			zap.Error(err))
	}
}
