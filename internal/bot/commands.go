package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/bwmarrin/discordgo"
	"github.com/licensebot/licensebot/internal/observability"
	"github.com/licensebot/licensebot/internal/repository"
	"github.com/licensebot/licensebot/internal/service"
)

const licensesPageSize = 10

// Invocation is a slash command call stripped of gateway details.
type Invocation struct {
	Command string
	GuildID string
	User    User
	// Page is the /licenses page option, zero when omitted.
	Page int
	// Target is the /revoke user option.
	Target *User
}

type Commands struct {
	licenses *service.LicenseService
	roles    *MarkerRoles
	platform Platform
	log      *slog.Logger
}

func NewCommands(licenses *service.LicenseService, roles *MarkerRoles, platform Platform, log *slog.Logger) *Commands {
	if log == nil {
		log = slog.Default()
	}
	return &Commands{licenses: licenses, roles: roles, platform: platform, log: log}
}

// Definitions are registered per guild. /licenses and /revoke default to
// administrators only.
func Definitions() []*discordgo.ApplicationCommand {
	adminOnly := int64(discordgo.PermissionAdministrator)
	minPage := float64(1)
	return []*discordgo.ApplicationCommand{
		{
			Name:        "activate",
			Description: "Activate your license and get access to the tweaking utility",
		},
		{
			Name:                     "licenses",
			Description:              "View all licenses (Admin only)",
			DefaultMemberPermissions: &adminOnly,
			Options: []*discordgo.ApplicationCommandOption{{
				Type:        discordgo.ApplicationCommandOptionInteger,
				Name:        "page",
				Description: "Page number to view",
				MinValue:    &minPage,
			}},
		},
		{
			Name:                     "revoke",
			Description:              "Revoke a user's license (Admin only)",
			DefaultMemberPermissions: &adminOnly,
			Options: []*discordgo.ApplicationCommandOption{{
				Type:        discordgo.ApplicationCommandOptionUser,
				Name:        "user",
				Description: "The user whose license to revoke",
				Required:    true,
			}},
		},
	}
}

var errUnknownCommand = errors.New("unknown command")

// Execute runs one command and returns the embed for the deferred reply.
func (c *Commands) Execute(ctx context.Context, inv Invocation) (*discordgo.MessageEmbed, error) {
	var (
		embed *discordgo.MessageEmbed
		err   error
	)
	switch inv.Command {
	case "activate":
		embed, err = c.Activate(ctx, inv)
	case "licenses":
		embed, err = c.Licenses(ctx, inv)
	case "revoke":
		embed, err = c.Revoke(ctx, inv)
	default:
		return nil, errUnknownCommand
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	observability.RecordBotCommand(ctx, inv.Command, outcome)
	return embed, err
}

func (c *Commands) Activate(ctx context.Context, inv Invocation) (*discordgo.MessageEmbed, error) {
	res, err := c.licenses.Activate(ctx, inv.User.ID, inv.User.Tag)
	if err != nil {
		c.log.Error("license activation failed", "user_id", inv.User.ID, "error", err)
		return activationFailedEmbed(), nil
	}
	if res.Existing {
		return alreadyActivatedEmbed(res.License), nil
	}
	observability.AuditCommand(ctx, "license.activated", "activate", inv.User.ID, "guild_id", inv.GuildID)

	roleID, err := c.deliver(ctx, inv, res)
	if err != nil {
		// The license stays; the user gets the key in the reply instead.
		c.log.Warn("activation side effects failed", "user_id", inv.User.ID, "guild_id", inv.GuildID, "error", err)
		return partialActivationEmbed(res.License), nil
	}
	return activatedEmbed(roleID), nil
}

func (c *Commands) deliver(ctx context.Context, inv Invocation, res service.ActivationResult) (string, error) {
	var roleID string
	if inv.GuildID != "" {
		var err error
		roleID, err = c.roles.Ensure(ctx, inv.GuildID)
		if err != nil {
			return "", fmt.Errorf("ensure marker role: %w", err)
		}
		if err := c.platform.AddRole(inv.GuildID, inv.User.ID, roleID); err != nil {
			observability.RecordRoleSync(ctx, "add", "error")
			return "", fmt.Errorf("assign marker role: %w", err)
		}
		observability.RecordRoleSync(ctx, "add", "success")
	}
	if err := c.platform.SendDM(inv.User.ID, activationDMEmbed(res.License)); err != nil {
		return "", err
	}
	return roleID, nil
}

func (c *Commands) Licenses(ctx context.Context, inv Invocation) (*discordgo.MessageEmbed, error) {
	page := inv.Page
	if page < 1 {
		page = 1
	}
	res, err := c.licenses.List(ctx, page, licensesPageSize)
	if err != nil {
		return nil, err
	}
	if len(res.Items) == 0 {
		return noLicensesEmbed(), nil
	}
	return licenseDatabaseEmbed(res.Items, res.Total, page, res.TotalPages), nil
}

func (c *Commands) Revoke(ctx context.Context, inv Invocation) (*discordgo.MessageEmbed, error) {
	if inv.Target == nil {
		return nil, errors.New("revoke: missing user option")
	}
	target := *inv.Target

	lic, err := c.licenses.Revoke(service.WithRevocationSource(ctx, "discord"), target.ID, inv.User.ID)
	var already *service.AlreadyRevokedError
	switch {
	case errors.Is(err, repository.ErrLicenseNotFound):
		return licenseNotFoundEmbed(target), nil
	case errors.As(err, &already):
		return alreadyRevokedEmbed(target, already.License), nil
	case err != nil:
		return nil, err
	}
	observability.AuditCommand(ctx, "license.revoked", "revoke", inv.User.ID, "target_user_id", target.ID)

	if inv.GuildID != "" {
		if err := c.removeMarkerRole(ctx, inv.GuildID, target.ID); err != nil {
			c.log.Warn("remove marker role after revoke", "guild_id", inv.GuildID, "user_id", target.ID, "error", err)
		}
	}
	return revokedEmbed(target, inv.User, lic), nil
}

func (c *Commands) removeMarkerRole(ctx context.Context, guildID, userID string) error {
	roleID, found, err := c.roles.Resolve(ctx, guildID)
	if err != nil || !found {
		return err
	}
	held, err := c.platform.MemberRoles(guildID, userID)
	if err != nil {
		if errors.Is(err, ErrMemberNotFound) {
			return nil
		}
		return err
	}
	if !slices.Contains(held, roleID) {
		return nil
	}
	if err := c.platform.RemoveRole(guildID, userID, roleID); err != nil {
		observability.RecordRoleSync(ctx, "remove", "error")
		return err
	}
	observability.RecordRoleSync(ctx, "remove", "success")
	return nil
}
