package bot

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/licensebot/licensebot/internal/domain"
	"github.com/licensebot/licensebot/internal/repository"
	"github.com/licensebot/licensebot/internal/service"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type fakePlatform struct {
	mu          sync.Mutex
	guilds      []string
	roles       map[string][]Role
	members     map[string]map[string][]string // guild -> user -> role ids
	dms         map[string][]*discordgo.MessageEmbed
	createCalls int
	nextRole    int

	failAdd bool
	failDM  bool
}

func newFakePlatform(guilds ...string) *fakePlatform {
	p := &fakePlatform{
		guilds:  guilds,
		roles:   map[string][]Role{},
		members: map[string]map[string][]string{},
		dms:     map[string][]*discordgo.MessageEmbed{},
	}
	for _, g := range guilds {
		p.members[g] = map[string][]string{}
	}
	return p
}

func (p *fakePlatform) join(guildID, userID string, roleIDs ...string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.members[guildID][userID] = roleIDs
}

func (p *fakePlatform) hasRole(guildID, userID, roleID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Contains(p.members[guildID][userID], roleID)
}

func (p *fakePlatform) GuildIDs() []string { return p.guilds }

func (p *fakePlatform) MemberRoles(guildID, userID string) ([]string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	roles, ok := p.members[guildID][userID]
	if !ok {
		return nil, ErrMemberNotFound
	}
	return slices.Clone(roles), nil
}

func (p *fakePlatform) Roles(guildID string) ([]Role, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.roles[guildID]), nil
}

func (p *fakePlatform) CreateRole(guildID, name string, _ int) (Role, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.createCalls++
	p.nextRole++
	role := Role{ID: fmt.Sprintf("role-%d", p.nextRole), Name: name}
	p.roles[guildID] = append(p.roles[guildID], role)
	return role, nil
}

func (p *fakePlatform) AddRole(guildID, userID, roleID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failAdd {
		return errors.New("missing permissions")
	}
	if _, ok := p.members[guildID][userID]; !ok {
		return ErrMemberNotFound
	}
	if !slices.Contains(p.members[guildID][userID], roleID) {
		p.members[guildID][userID] = append(p.members[guildID][userID], roleID)
	}
	return nil
}

func (p *fakePlatform) RemoveRole(guildID, userID, roleID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.members[guildID][userID] = slices.DeleteFunc(p.members[guildID][userID], func(id string) bool { return id == roleID })
	return nil
}

func (p *fakePlatform) SendDM(userID string, embed *discordgo.MessageEmbed) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failDM {
		return errors.New("cannot send messages to this user")
	}
	p.dms[userID] = append(p.dms[userID], embed)
	return nil
}

type botFixture struct {
	platform *fakePlatform
	licenses *service.LicenseService
	guilds   repository.GuildRepository
	roles    *MarkerRoles
	commands *Commands
}

func newBotFixture(t *testing.T, guilds ...string) *botFixture {
	t.Helper()
	db := newSQLiteForTest(t)
	platform := newFakePlatform(guilds...)
	licenses := service.NewLicenseService(repository.NewLicenseRepository(db), nil)
	guildRepo := repository.NewGuildRepository(db)
	roles := NewMarkerRoles(platform, guildRepo, "Licensed User", nil)
	return &botFixture{
		platform: platform,
		licenses: licenses,
		guilds:   guildRepo,
		roles:    roles,
		commands: NewCommands(licenses, roles, platform, nil),
	}
}

func newSQLiteForTest(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(&domain.License{}, &domain.GuildSettings{}))
	return db
}
