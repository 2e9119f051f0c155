package types

import (
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/uptrace/bun"
)

// TimeoutExtension tracks a timeout that runs longer than Discord allows in
// one request. The timeout is re-applied in steps until ExpiresAt.
type TimeoutExtension struct {
	bun.BaseModel `bun:"table:timeout_extensions,alias:te"`

	GuildID snowflake.ID `bun:",pk"`
	UserID  snowflake.ID `bun:",pk"`
	// ExpiresAt is when the member may talk again.
	ExpiresAt time.Time `bun:",notnull"`
	// ExtendAt is when the timeout currently applied on Discord has to be
	// pushed further.
	ExtendAt time.Time `bun:",notnull"`
}
