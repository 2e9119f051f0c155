package detector

import (
	"context"

	"github.com/obviouslynottop1/snedbot/internal/automod/event"
	"github.com/obviouslynottop1/snedbot/internal/automod/policy"
	"github.com/obviouslynottop1/snedbot/internal/automod/ratelimit"
)

// Spam matches members that send messages faster than the spam limiter allows.
type Spam struct {
	limiter *ratelimit.Limiter
}

// NewSpam creates a Spam detector.
func NewSpam(limiter *ratelimit.Limiter) *Spam {
	return &Spam{limiter: limiter}
}

// Category implements Detector.
func (d *Spam) Category() policy.Category {
	return policy.CategorySpam
}

// RequiresContent implements Detector.
func (d *Spam) RequiresContent() bool {
	return false
}

// Detect records the message and checks the member's cadence.
func (d *Spam) Detect(ctx context.Context, msg *event.Message, _ policy.CategoryPolicy) (Verdict, error) {
	limited, err := hitMember(ctx, d.limiter, msg)
	if err != nil || !limited {
		return Verdict{}, err
	}

	return match("spam"), nil
}

// AttachSpam matches members that post attachments in quick succession.
type AttachSpam struct {
	limiter *ratelimit.Limiter
}

// NewAttachSpam creates an AttachSpam detector.
func NewAttachSpam(limiter *ratelimit.Limiter) *AttachSpam {
	return &AttachSpam{limiter: limiter}
}

// Category implements Detector.
func (d *AttachSpam) Category() policy.Category {
	return policy.CategoryAttachSpam
}

// RequiresContent implements Detector.
func (d *AttachSpam) RequiresContent() bool {
	return false
}

// Detect only counts messages that carry attachments.
func (d *AttachSpam) Detect(ctx context.Context, msg *event.Message, _ policy.CategoryPolicy) (Verdict, error) {
	if msg.AttachmentCount == 0 {
		return Verdict{}, nil
	}

	limited, err := hitMember(ctx, d.limiter, msg)
	if err != nil || !limited {
		return Verdict{}, err
	}

	return match("posting images/attachments too quickly"), nil
}

// hitMember records one event for the message author and reports whether
// the author is over the limit as one store operation.
func hitMember(ctx context.Context, limiter *ratelimit.Limiter, msg *event.Message) (bool, error) {
	return limiter.Hit(ctx, ratelimit.MemberKey(msg.GuildID, msg.Author.ID))
}
