package bot

import (
	"errors"

	"github.com/bwmarrin/discordgo"
)

var ErrMemberNotFound = errors.New("guild member not found")

type User struct {
	ID  string
	Tag string
}

type Role struct {
	ID   string
	Name string
}

// Platform is the slice of the chat platform the commands and the
// reconciler need. The production implementation wraps a discordgo session.
type Platform interface {
	GuildIDs() []string
	// MemberRoles returns ErrMemberNotFound when userID is not in the guild.
	MemberRoles(guildID, userID string) ([]string, error)
	Roles(guildID string) ([]Role, error)
	CreateRole(guildID, name string, color int) (Role, error)
	AddRole(guildID, userID, roleID string) error
	RemoveRole(guildID, userID, roleID string) error
	SendDM(userID string, embed *discordgo.MessageEmbed) error
}
