package types

import (
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/uptrace/bun"
)

// Tempban tracks a ban that should be lifted once it expires.
type Tempban struct {
	bun.BaseModel `bun:"table:tempbans,alias:tb"`

	GuildID   snowflake.ID `bun:",pk"`
	UserID    snowflake.ID `bun:",pk"`
	ExpiresAt time.Time    `bun:",notnull"`
	Reason    string       `bun:",notnull,default:''"`
	// Attempts counts failed unbans since the ban expired.
	Attempts int `bun:",notnull,default:0"`
	// NextAttemptAt holds back a failed unban until its retry is due.
	NextAttemptAt time.Time `bun:",notnull,default:'epoch'"`
}
