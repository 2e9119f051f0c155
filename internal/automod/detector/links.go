package detector

import (
	"context"
	"regexp"

	"github.com/obviouslynottop1/snedbot/internal/automod/event"
	"github.com/obviouslynottop1/snedbot/internal/automod/policy"
	"github.com/obviouslynottop1/snedbot/internal/automod/ratelimit"
)

// maxLinks is the number of links a single message may carry before it is
// treated as link spam on its own.
const maxLinks = 7

var (
	inviteRegex = regexp.MustCompile(`(?:https?://)?discord(?:app)?\.(?:com/invite|gg)/[a-zA-Z0-9]+/?`)
	linkRegex   = regexp.MustCompile(`https?://(?:[a-zA-Z]|[0-9]|[$-_@.&+]|[!*\(\),]|(?:%[0-9a-fA-F][0-9a-fA-F]))+`)
)

// Invites matches messages that advertise Discord servers.
type Invites struct{}

// NewInvites creates an Invites detector.
func NewInvites() *Invites {
	return &Invites{}
}

// Category implements Detector.
func (d *Invites) Category() policy.Category {
	return policy.CategoryInvites
}

// RequiresContent implements Detector.
func (d *Invites) RequiresContent() bool {
	return true
}

// Detect implements Detector.
func (d *Invites) Detect(_ context.Context, msg *event.Message, _ policy.CategoryPolicy) (Verdict, error) {
	if !inviteRegex.MatchString(msg.Content) {
		return Verdict{}, nil
	}

	return match("posting Discord invites"), nil
}

// LinkSpam matches messages with too many links and members that keep
// posting links.
type LinkSpam struct {
	limiter *ratelimit.Limiter
}

// NewLinkSpam creates a LinkSpam detector.
func NewLinkSpam(limiter *ratelimit.Limiter) *LinkSpam {
	return &LinkSpam{limiter: limiter}
}

// Category implements Detector.
func (d *LinkSpam) Category() policy.Category {
	return policy.CategoryLinkSpam
}

// RequiresContent implements Detector.
func (d *LinkSpam) RequiresContent() bool {
	return true
}

// Detect implements Detector.
func (d *LinkSpam) Detect(ctx context.Context, msg *event.Message, _ policy.CategoryPolicy) (Verdict, error) {
	links := linkRegex.FindAllString(msg.Content, maxLinks+1)
	if len(links) > maxLinks {
		return match("having too many links in a single message"), nil
	}

	if len(links) == 0 {
		return Verdict{}, nil
	}

	limited, err := hitMember(ctx, d.limiter, msg)
	if err != nil || !limited {
		return Verdict{}, err
	}

	return match("posting links too quickly"), nil
}
