package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/licensebot/licensebot/internal/repository"
	"golang.org/x/sync/singleflight"
)

// MarkerRoles tracks the role that mirrors an active license in each guild.
// The role id is persisted per guild; the name is only used to adopt a role
// that already exists when nothing is stored yet.
type MarkerRoles struct {
	platform Platform
	guilds   repository.GuildRepository
	name     string
	log      *slog.Logger
	group    singleflight.Group
}

func NewMarkerRoles(platform Platform, guilds repository.GuildRepository, name string, log *slog.Logger) *MarkerRoles {
	if log == nil {
		log = slog.Default()
	}
	return &MarkerRoles{platform: platform, guilds: guilds, name: name, log: log}
}

// Ensure returns the marker role id for guildID, creating the role when it
// does not exist. Concurrent callers for one guild share a single lookup so
// the role is created at most once.
func (m *MarkerRoles) Ensure(ctx context.Context, guildID string) (string, error) {
	v, err, _ := m.group.Do(guildID, func() (any, error) {
		roleID, found, err := m.resolve(ctx, guildID)
		if err != nil || found {
			return roleID, err
		}
		role, err := m.platform.CreateRole(guildID, m.name, colorGreen)
		if err != nil {
			return "", err
		}
		m.log.Info("marker role created", "guild_id", guildID, "role_id", role.ID, "name", m.name)
		if err := m.guilds.SaveMarkerRole(ctx, guildID, role.ID); err != nil {
			return "", fmt.Errorf("store marker role: %w", err)
		}
		return role.ID, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// Resolve returns the marker role id without creating one. found is false
// when the guild has no such role.
func (m *MarkerRoles) Resolve(ctx context.Context, guildID string) (roleID string, found bool, err error) {
	return m.resolve(ctx, guildID)
}

func (m *MarkerRoles) resolve(ctx context.Context, guildID string) (string, bool, error) {
	roles, err := m.platform.Roles(guildID)
	if err != nil {
		return "", false, err
	}

	stored, err := m.guilds.Find(ctx, guildID)
	switch {
	case err == nil:
		for _, r := range roles {
			if r.ID == stored.MarkerRoleID {
				return r.ID, true, nil
			}
		}
		m.log.Warn("stored marker role no longer exists", "guild_id", guildID, "role_id", stored.MarkerRoleID)
	case !errors.Is(err, repository.ErrGuildSettingsNotFound):
		return "", false, fmt.Errorf("load guild settings: %w", err)
	}

	for _, r := range roles {
		if r.Name == m.name {
			if err := m.guilds.SaveMarkerRole(ctx, guildID, r.ID); err != nil {
				return "", false, fmt.Errorf("store marker role: %w", err)
			}
			return r.ID, true, nil
		}
	}
	return "", false, nil
}
