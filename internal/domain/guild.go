package domain

import "time"

// GuildSettings stores per-guild bot state. MarkerRoleID is the id of the
// role mirrored onto licensed members.
type GuildSettings struct {
	GuildID      string    `gorm:"type:varchar(64);primaryKey" json:"guild_id"`
	MarkerRoleID string    `gorm:"type:varchar(64)" json:"marker_role_id"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (GuildSettings) TableName() string { return "guild_settings" }
