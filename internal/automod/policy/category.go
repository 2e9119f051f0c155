package policy

import (
	"slices"
	"strings"
)

// Category identifies one auto-moderation rule.
type Category string

const (
	CategoryInvites      Category = "invites"
	CategorySpam         Category = "spam"
	CategoryMassMentions Category = "mass_mentions"
	CategoryAttachSpam   Category = "attach_spam"
	CategoryLinkSpam     Category = "link_spam"
	CategoryCaps         Category = "caps"
	CategoryBadWords     Category = "bad_words"
	CategoryEscalate     Category = "escalate"
	CategoryPerspective  Category = "perspective"
)

// Categories lists every category in document order.
var Categories = []Category{
	CategoryInvites,
	CategorySpam,
	CategoryMassMentions,
	CategoryAttachSpam,
	CategoryLinkSpam,
	CategoryCaps,
	CategoryBadWords,
	CategoryEscalate,
	CategoryPerspective,
}

// String returns the document key of the category.
func (c Category) String() string {
	return string(c)
}

// Label returns the upper-case form used in moderation reasons.
func (c Category) Label() string {
	return strings.ToUpper(string(c))
}

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	return slices.Contains(Categories, c)
}
