// Package event holds the platform-neutral view of a guild message that the
// auto-moderation pipeline works on.
package event

import (
	"fmt"

	"github.com/disgoorg/snowflake/v2"
)

// User is a mentioned user.
type User struct {
	ID  snowflake.ID
	Bot bool
}

// Member is the author of a guild message.
type Member struct {
	ID          snowflake.ID
	GuildID     snowflake.ID
	Username    string
	DisplayName string
	Bot         bool
	RoleIDs     []snowflake.ID
}

// Name returns the name shown for the member in notices.
func (m Member) Name() string {
	if m.DisplayName != "" {
		return m.DisplayName
	}

	return m.Username
}

// Message is a message posted in a guild channel.
type Message struct {
	ID        snowflake.ID
	GuildID   snowflake.ID
	GuildName string
	ChannelID snowflake.ID
	Content   string
	// Author is nil when the message was not sent by a guild member,
	// for example by a webhook.
	Author          *Member
	Mentions        []User
	AttachmentCount int
	// Edited is set for message updates.
	Edited bool
}

// JumpURL returns the link that opens the message in a client.
func (m *Message) JumpURL() string {
	return fmt.Sprintf("https://discord.com/channels/%d/%d/%d", m.GuildID, m.ChannelID, m.ID)
}
