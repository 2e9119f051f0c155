package moderation

import (
	"context"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/rest"
	"github.com/disgoorg/snowflake/v2"
)

// MessageREST is the part of the Discord REST API used to talk in channels.
type MessageREST interface {
	CreateMessage(
		channelID snowflake.ID, messageCreate discord.MessageCreate, opts ...rest.RequestOpt,
	) (*discord.Message, error)
	DeleteMessage(channelID, messageID snowflake.ID, opts ...rest.RequestOpt) error
}

// Responder posts responses in the channel a violation happened in.
type Responder struct {
	rest MessageREST
}

// NewResponder creates a Responder.
func NewResponder(restClient MessageREST) *Responder {
	return &Responder{rest: restClient}
}

// Respond posts an embed. When mention is set the user is pinged with it.
func (r *Responder) Respond(ctx context.Context, channelID snowflake.ID, embed discord.Embed, mention *User) error {
	create := discord.MessageCreate{
		Embeds:          []discord.Embed{embed},
		AllowedMentions: &discord.AllowedMentions{},
	}

	if mention != nil {
		create.Content = discord.UserMention(mention.ID)
		create.AllowedMentions.Users = []snowflake.ID{mention.ID}
	}

	_, err := r.rest.CreateMessage(channelID, create, rest.WithCtx(ctx))

	return err
}

// DeleteMessage removes a message.
func (r *Responder) DeleteMessage(ctx context.Context, channelID, messageID snowflake.ID, reason string) error {
	return r.rest.DeleteMessage(channelID, messageID, rest.WithCtx(ctx), rest.WithReason(reason))
}
