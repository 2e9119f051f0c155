package types

import (
	"github.com/disgoorg/snowflake/v2"
	"github.com/uptrace/bun"
)

// ModConfig stores the per-guild moderation configuration.
type ModConfig struct {
	bun.BaseModel `bun:"table:mod_config,alias:mc"`

	GuildID snowflake.ID `bun:",pk"`
	// AutomodPolicies holds the stored auto-moderation policy document as raw
	// JSON. It is resolved against the built-in defaults on every read.
	AutomodPolicies string `bun:",type:jsonb,nullzero"`
	// DMUsersOnPunish controls whether punished members receive a direct message.
	DMUsersOnPunish bool `bun:",notnull,default:true"`
	// FlagsChannelID is the channel that receives flagged-message notes.
	FlagsChannelID snowflake.ID `bun:",nullzero"`
}
