package ratelimit

import (
	"strconv"
	"time"

	"github.com/disgoorg/snowflake/v2"
)

// Names of the auto-moderation limiters.
const (
	NameSpam            = "spam"
	NamePunish          = "punish"
	NameAttachSpam      = "attach_spam"
	NameLinkSpam        = "link_spam"
	NameEscalatePrewarn = "escalate_prewarn"
	NameEscalate        = "escalate"
)

// Retention is the longest window of any auto-moderation limiter.
const Retention = 30 * time.Second

// Limiters holds the independent limiters used by the auto-moderator.
// All of them are keyed per member with MemberKey.
type Limiters struct {
	// Spam trips when a member sends more than 8 messages in 10 seconds.
	Spam *Limiter
	// Punish keeps a member from being silenced twice within 30 seconds.
	Punish *Limiter
	// AttachSpam trips on a second message with attachments within 30 seconds.
	AttachSpam *Limiter
	// LinkSpam trips on a second message with links within 30 seconds.
	LinkSpam *Limiter
	// EscalatePrewarn trips on a second escalating violation within 30 seconds.
	EscalatePrewarn *Limiter
	// Escalate trips on a second warned escalation within 30 seconds.
	Escalate *Limiter
}

// NewLimiters creates the auto-moderation limiters on top of a shared store.
func NewLimiters(store Store, opts ...Option) *Limiters {
	return &Limiters{
		Spam:            New(NameSpam, 8, 10*time.Second, store, opts...),
		Punish:          New(NamePunish, 1, 30*time.Second, store, opts...),
		AttachSpam:      New(NameAttachSpam, 1, 30*time.Second, store, opts...),
		LinkSpam:        New(NameLinkSpam, 1, 30*time.Second, store, opts...),
		EscalatePrewarn: New(NameEscalatePrewarn, 1, 30*time.Second, store, opts...),
		Escalate:        New(NameEscalate, 1, 30*time.Second, store, opts...),
	}
}

// MemberKey returns the bucket key of a guild member.
func MemberKey(guildID, userID snowflake.ID) string {
	return strconv.FormatUint(uint64(guildID), 10) + ":" + strconv.FormatUint(uint64(userID), 10)
}
