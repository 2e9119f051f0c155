package moderation

import (
	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/snowflake/v2"
)

// AutomodPermissions are the permissions the bot needs to punish members
// automatically.
const AutomodPermissions = discord.PermissionBanMembers |
	discord.PermissionModerateMembers |
	discord.PermissionManageMessages |
	discord.PermissionKickMembers

// Rank is a member's position in a guild's role hierarchy.
type Rank struct {
	UserID snowflake.ID
	// TopRolePosition is the position of the member's highest role.
	TopRolePosition int
	Permissions     discord.Permissions
}

// CanHarm reports whether self may act on target: self needs the required
// permissions and a higher top role, and nobody may act on the owner.
func CanHarm(ownerID snowflake.ID, self, target Rank, required discord.Permissions) bool {
	if target.UserID == ownerID {
		return false
	}

	if self.UserID == ownerID {
		return true
	}

	if !self.Permissions.Has(discord.PermissionAdministrator) && !self.Permissions.Has(required) {
		return false
	}

	return self.TopRolePosition > target.TopRolePosition
}
