package bot

import (
	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/snowflake/v2"
	"github.com/obviouslynottop1/snedbot/internal/automod/event"
	"github.com/obviouslynottop1/snedbot/internal/moderation"
)

// GuildState is the part of the gateway cache that standing checks read.
type GuildState interface {
	Guild(guildID snowflake.ID) (discord.Guild, bool)
	Role(guildID, roleID snowflake.ID) (discord.Role, bool)
	SelfMember(guildID snowflake.ID) (discord.Member, bool)
	SelfUser() (discord.OAuth2User, bool)
	MemberPermissions(member discord.Member) discord.Permissions
}

// Standing answers whether the bot may punish a member, using cached guild state.
type Standing struct {
	state GuildState
}

// NewStanding creates a Standing.
func NewStanding(state GuildState) *Standing {
	return &Standing{state: state}
}

// CanModerate reports whether the bot outranks the member and holds every
// permission auto-moderation needs. Missing cache entries mean no.
func (s *Standing) CanModerate(guildID snowflake.ID, member *event.Member) bool {
	guild, ok := s.state.Guild(guildID)
	if !ok {
		return false
	}

	self, ok := s.state.SelfMember(guildID)
	if !ok {
		return false
	}

	return moderation.CanHarm(guild.OwnerID, moderation.Rank{
		UserID:          self.User.ID,
		TopRolePosition: s.topRolePosition(guildID, self.RoleIDs),
		Permissions:     s.state.MemberPermissions(self),
	}, moderation.Rank{
		UserID:          member.ID,
		TopRolePosition: s.topRolePosition(guildID, member.RoleIDs),
	}, moderation.AutomodPermissions)
}

// Moderator returns the bot user.
func (s *Standing) Moderator() moderation.User {
	self, ok := s.state.SelfUser()
	if !ok {
		return moderation.User{Name: "auto-moderator"}
	}

	return moderation.User{ID: self.ID, Name: self.Username}
}

// topRolePosition returns the highest position among the roles, 0 being
// the position of @everyone.
func (s *Standing) topRolePosition(guildID snowflake.ID, roleIDs []snowflake.ID) int {
	top := 0

	for _, roleID := range roleIDs {
		if role, ok := s.state.Role(guildID, roleID); ok && role.Position > top {
			top = role.Position
		}
	}

	return top
}
