// Package detector contains the checks that decide whether a guild message
// violates one of the auto-moderation categories.
package detector

import (
	"context"
	"fmt"

	"github.com/obviouslynottop1/snedbot/internal/automod/event"
	"github.com/obviouslynottop1/snedbot/internal/automod/policy"
	"github.com/obviouslynottop1/snedbot/internal/automod/ratelimit"
	"go.uber.org/zap"
)

// Verdict is the outcome of a single detector.
type Verdict struct {
	Matched bool
	// Reason describes the violation and is embedded into punishment reasons.
	Reason string
}

// match returns a matching verdict with the given reason.
func match(reason string) Verdict {
	return Verdict{Matched: true, Reason: reason}
}

// Detector checks a message against the settings of one category.
type Detector interface {
	// Category returns the category the detector reports violations for.
	Category() policy.Category
	// RequiresContent reports whether the detector only looks at messages
	// that carry text.
	RequiresContent() bool
	// Detect checks the message. Errors are only returned for failures of
	// shared infrastructure such as the rate-limit store.
	Detect(ctx context.Context, msg *event.Message, settings policy.CategoryPolicy) (Verdict, error)
}

// Match is a violation found by a Chain.
type Match struct {
	Category policy.Category
	Reason   string
}

// Chain runs detectors in priority order and stops at the first match.
type Chain struct {
	detectors []Detector
	logger    *zap.Logger
}

// New creates the detector chain in its fixed priority order. The toxicity
// detector is only part of the chain when a classifier is configured.
func New(limiters *ratelimit.Limiters, classifier Classifier, logger *zap.Logger) *Chain {
	detectors := []Detector{
		NewMassMentions(),
		NewSpam(limiters.Spam),
		NewAttachSpam(limiters.AttachSpam),
		NewCaps(),
		NewBadWords(),
		NewInvites(),
		NewLinkSpam(limiters.LinkSpam),
	}

	if classifier != nil {
		detectors = append(detectors, NewToxicity(classifier, logger))
	}

	return NewChain(logger, detectors...)
}

// NewChain creates a chain over the given detectors.
func NewChain(logger *zap.Logger, detectors ...Detector) *Chain {
	return &Chain{
		detectors: detectors,
		logger:    logger.Named("detector"),
	}
}

// Detectors returns the detectors in the order they run.
func (c *Chain) Detectors() []Detector {
	return c.detectors
}

// Scan runs every enabled detector against the message and returns the first
// violation, or nil when the message is clean.
func (c *Chain) Scan(ctx context.Context, msg *event.Message, policies policy.Policies) (*Match, error) {
	for _, detector := range c.detectors {
		if detector.RequiresContent() && msg.Content == "" {
			continue
		}

		category := detector.Category()

		settings := policies.Get(category)
		if settings.State == policy.StateDisabled {
			continue
		}

		verdict, err := detector.Detect(ctx, msg, settings)
		if err != nil {
			return nil, fmt.Errorf("%s detector failed: %w", category, err)
		}

		if verdict.Matched {
			c.logger.Debug("Message violates automod policy",
				zap.Uint64("guildID", uint64(msg.GuildID)),
				zap.Uint64("messageID", uint64(msg.ID)),
				zap.String("category", category.String()),
				zap.String("reason", verdict.Reason))

			return &Match{Category: category, Reason: verdict.Reason}, nil
		}
	}

	return nil, nil
}
