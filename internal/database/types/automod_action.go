package types

import (
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// AutomodAction records one punishment carried out by the auto-moderator.
type AutomodAction struct {
	bun.BaseModel `bun:"table:automod_actions,alias:aa"`

	ID        uuid.UUID    `bun:",pk,type:uuid"`
	GuildID   snowflake.ID `bun:",notnull"`
	UserID    snowflake.ID `bun:",notnull"`
	ChannelID snowflake.ID `bun:",notnull"`
	MessageID snowflake.ID `bun:",notnull"`
	// Category is the policy category the violation was detected under.
	Category string `bun:",notnull"`
	// OriginalCategory is set when the action was reached through escalation.
	OriginalCategory string    `bun:",nullzero"`
	State            string    `bun:",notnull"`
	Reason           string    `bun:",notnull"`
	CreatedAt        time.Time `bun:",notnull,default:current_timestamp"`
}
