package repository

import (
	"context"
	"errors"
	"time"

	"github.com/licensebot/licensebot/internal/domain"
	"github.com/licensebot/licensebot/internal/observability"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrGuildSettingsNotFound = errors.New("guild settings not found")

type GuildRepository interface {
	Find(ctx context.Context, guildID string) (*domain.GuildSettings, error)
	SaveMarkerRole(ctx context.Context, guildID, roleID string) error
}

type GormGuildRepository struct{ db *gorm.DB }

func NewGuildRepository(db *gorm.DB) GuildRepository { return &GormGuildRepository{db: db} }

func (r *GormGuildRepository) Find(ctx context.Context, guildID string) (*domain.GuildSettings, error) {
	var gs domain.GuildSettings
	err := r.db.WithContext(ctx).Where("guild_id = ?", guildID).First(&gs).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			observability.RecordRepositoryOperation(ctx, "guild", "find", "not_found")
			return nil, ErrGuildSettingsNotFound
		}
		observability.RecordRepositoryOperation(ctx, "guild", "find", "error")
		return nil, err
	}
	observability.RecordRepositoryOperation(ctx, "guild", "find", "success")
	return &gs, nil
}

func (r *GormGuildRepository) SaveMarkerRole(ctx context.Context, guildID, roleID string) error {
	gs := domain.GuildSettings{GuildID: guildID, MarkerRoleID: roleID, UpdatedAt: time.Now().UTC()}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "guild_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"marker_role_id", "updated_at"}),
	}).Create(&gs).Error
	if err != nil {
		observability.RecordRepositoryOperation(ctx, "guild", "save_marker_role", "error")
		return err
	}
	observability.RecordRepositoryOperation(ctx, "guild", "save_marker_role", "success")
	return nil
}
