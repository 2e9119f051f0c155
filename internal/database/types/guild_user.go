package types

import (
	"github.com/disgoorg/snowflake/v2"
	"github.com/uptrace/bun"
)

// GuildUser stores moderation state tracked for a member of a guild.
type GuildUser struct {
	bun.BaseModel `bun:"table:guild_users,alias:gu"`

	GuildID snowflake.ID `bun:",pk"`
	UserID  snowflake.ID `bun:",pk"`
	Warns   int          `bun:",notnull,default:0"`
	Notes   []string     `bun:",array"`
}
