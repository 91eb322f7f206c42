package bot

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/bwmarrin/discordgo"
)

type DiscordPlatform struct {
	session *discordgo.Session
}

func NewDiscordPlatform(session *discordgo.Session) *DiscordPlatform {
	return &DiscordPlatform{session: session}
}

func (p *DiscordPlatform) GuildIDs() []string {
	p.session.State.RLock()
	defer p.session.State.RUnlock()
	ids := make([]string, 0, len(p.session.State.Guilds))
	for _, g := range p.session.State.Guilds {
		ids = append(ids, g.ID)
	}
	return ids
}

func (p *DiscordPlatform) MemberRoles(guildID, userID string) ([]string, error) {
	member, err := p.session.GuildMember(guildID, userID)
	if err != nil {
		if isNotFound(err) {
			return nil, ErrMemberNotFound
		}
		return nil, fmt.Errorf("fetch member %s: %w", userID, err)
	}
	return member.Roles, nil
}

func (p *DiscordPlatform) Roles(guildID string) ([]Role, error) {
	roles, err := p.session.GuildRoles(guildID)
	if err != nil {
		return nil, fmt.Errorf("list roles: %w", err)
	}
	out := make([]Role, 0, len(roles))
	for _, r := range roles {
		out = append(out, Role{ID: r.ID, Name: r.Name})
	}
	return out, nil
}

func (p *DiscordPlatform) CreateRole(guildID, name string, color int) (Role, error) {
	role, err := p.session.GuildRoleCreate(guildID, &discordgo.RoleParams{
		Name:  name,
		Color: &color,
	}, discordgo.WithAuditLogReason("License activation role"))
	if err != nil {
		return Role{}, fmt.Errorf("create role %q: %w", name, err)
	}
	return Role{ID: role.ID, Name: role.Name}, nil
}

func (p *DiscordPlatform) AddRole(guildID, userID, roleID string) error {
	return p.session.GuildMemberRoleAdd(guildID, userID, roleID)
}

func (p *DiscordPlatform) RemoveRole(guildID, userID, roleID string) error {
	return p.session.GuildMemberRoleRemove(guildID, userID, roleID)
}

func (p *DiscordPlatform) SendDM(userID string, embed *discordgo.MessageEmbed) error {
	ch, err := p.session.UserChannelCreate(userID)
	if err != nil {
		return fmt.Errorf("open dm channel: %w", err)
	}
	if _, err := p.session.ChannelMessageSendEmbed(ch.ID, embed); err != nil {
		return fmt.Errorf("send dm: %w", err)
	}
	return nil
}

func isNotFound(err error) bool {
	var restErr *discordgo.RESTError
	return errors.As(err, &restErr) && restErr.Response != nil && restErr.Response.StatusCode == http.StatusNotFound
}
