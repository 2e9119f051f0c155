package engine

import (
	"github.com/disgoorg/disgo/discord"
	"github.com/obviouslynottop1/snedbot/internal/automod/policy"
	"github.com/obviouslynottop1/snedbot/internal/moderation"
)

// notices completes "please refrain from ..." for every category.
var notices = map[policy.Category]string{
	policy.CategorySpam:         "spamming",
	policy.CategoryInvites:      "posting discord invites",
	policy.CategoryMassMentions: "mass mentioning people",
	policy.CategoryAttachSpam:   "spamming attachments",
	policy.CategoryLinkSpam:     "posting links too fast",
	policy.CategoryCaps:         "using excessive caps",
	policy.CategoryBadWords:     "using bad words",
	policy.CategoryEscalate:     "previously violating multiple rules",
	policy.CategoryPerspective:  "using toxic language",
}

// NoticeEmbed builds the public reminder shown to a member.
func NoticeEmbed(name string, category policy.Category) discord.Embed {
	notice, ok := notices[category]
	if !ok {
		notice = "breaking the rules"
	}

	return discord.NewEmbedBuilder().
		SetTitle("💬 Auto-Moderation Notice").
		SetDescriptionf("**%s**, please refrain from %s!", name, notice).
		SetColor(moderation.WarnColor).
		Build()
}
