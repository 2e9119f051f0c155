package moderation

import (
	"context"
	"fmt"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/rest"
	"go.uber.org/zap"
)

// Action is the kind of moderation action a member is told about.
type Action int

const (
	ActionWarn Action = iota
	ActionTimeout
	ActionKick
	ActionBan
	ActionSoftban
	ActionTempban
)

// conjugation returns the phrase used in DMs, e.g. "kicked from".
func (a Action) conjugation() string {
	switch a {
	case ActionWarn:
		return "warned in"
	case ActionTimeout:
		return "timed out in"
	case ActionKick:
		return "kicked from"
	case ActionSoftban:
		return "soft-banned from"
	case ActionTempban:
		return "temp-banned from"
	case ActionBan:
		return "banned from"
	default:
		return "moderated in"
	}
}

// notify tells the member about an action before it happens, when the guild
// has that enabled. A failed DM only adds a footer to the response embed.
func (e *Executor) notify(
	ctx context.Context, target Target, action Action, reason string, response *discord.EmbedBuilder,
) {
	settings, err := e.settings.GetModConfig(ctx, target.GuildID)
	if err != nil {
		e.logger.Warn("Failed to get moderation settings", zap.Error(err))
		return
	}

	if !settings.DMUsersOnPunish {
		return
	}

	guildName := target.GuildName
	if guildName == "" {
		guildName = "Unknown server"
	}

	embed := discord.NewEmbedBuilder().
		SetTitle(fmt.Sprintf("❗ You have been %s **%s**", action.conjugation(), guildName)).
		SetDescriptionf("You have been %s **%s**.\n**Reason:** ```%s```", action.conjugation(), guildName, reason).
		SetColor(ErrorColor).
		Build()

	if err := e.sendDM(ctx, target, embed); err != nil {
		e.logger.Debug("Failed to DM member",
			zap.Uint64("userID", uint64(target.ID)),
			zap.Error(err))
		response.SetFooterText("Failed sending DM to user.")
	}
}

func (e *Executor) sendDM(ctx context.Context, target Target, embed discord.Embed) error {
	channel, err := e.rest.CreateDMChannel(target.ID, rest.WithCtx(ctx))
	if err != nil {
		return err
	}

	_, err = e.rest.CreateMessage(channel.ID(), discord.MessageCreate{
		Embeds: []discord.Embed{embed},
	}, rest.WithCtx(ctx))

	return err
}
