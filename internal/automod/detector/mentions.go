package detector

import (
	"context"
	"fmt"

	"github.com/disgoorg/snowflake/v2"
	"github.com/obviouslynottop1/snedbot/internal/automod/event"
	"github.com/obviouslynottop1/snedbot/internal/automod/policy"
)

// MassMentions matches messages that ping too many people at once.
type MassMentions struct{}

// NewMassMentions creates a MassMentions detector.
func NewMassMentions() *MassMentions {
	return &MassMentions{}
}

// Category implements Detector.
func (d *MassMentions) Category() policy.Category {
	return policy.CategoryMassMentions
}

// RequiresContent implements Detector.
func (d *MassMentions) RequiresContent() bool {
	return false
}

// Detect counts the distinct humans mentioned, the author excluded.
func (d *MassMentions) Detect(_ context.Context, msg *event.Message, settings policy.CategoryPolicy) (Verdict, error) {
	if settings.Count <= 0 {
		return Verdict{}, nil
	}

	seen := make(map[snowflake.ID]struct{}, len(msg.Mentions))

	for _, user := range msg.Mentions {
		if user.Bot || user.ID == msg.Author.ID {
			continue
		}

		seen[user.ID] = struct{}{}
	}

	if len(seen) < settings.Count {
		return Verdict{}, nil
	}

	return match(fmt.Sprintf("spamming %d/%d mentions in a single message", len(seen), settings.Count)), nil
}
