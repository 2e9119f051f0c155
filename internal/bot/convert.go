package bot

import (
	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/snowflake/v2"
	"github.com/obviouslynottop1/snedbot/internal/automod/event"
)

// ConvertMessage builds the pipeline's view of a gateway message. member is
// the author's guild membership and may be nil, in which case the message
// has no author and is ignored by the pipeline. Webhook messages and partial
// updates never have an author.
func ConvertMessage(
	msg discord.Message, guildID snowflake.ID, guildName string, member *discord.Member, edited bool,
) *event.Message {
	converted := &event.Message{
		ID:              msg.ID,
		GuildID:         guildID,
		GuildName:       guildName,
		ChannelID:       msg.ChannelID,
		Content:         msg.Content,
		Mentions:        make([]event.User, 0, len(msg.Mentions)),
		AttachmentCount: len(msg.Attachments),
		Edited:          edited,
	}

	for _, user := range msg.Mentions {
		converted.Mentions = append(converted.Mentions, event.User{ID: user.ID, Bot: user.Bot})
	}

	if msg.WebhookID != nil || msg.Author.ID == 0 || member == nil {
		return converted
	}

	author := &event.Member{
		ID:       msg.Author.ID,
		GuildID:  guildID,
		Username: msg.Author.Username,
		Bot:      msg.Author.Bot,
		RoleIDs:  member.RoleIDs,
	}

	switch {
	case member.Nick != nil && *member.Nick != "":
		author.DisplayName = *member.Nick
	case msg.Author.GlobalName != nil:
		author.DisplayName = *msg.Author.GlobalName
	}

	converted.Author = author

	return converted
}
