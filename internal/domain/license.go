package domain

import "time"

type LicenseStatus string

const (
	LicenseStatusActive  LicenseStatus = "active"
	LicenseStatusRevoked LicenseStatus = "revoked"
)

type License struct {
	ID          uint          `gorm:"primaryKey" json:"id"`
	LicenseKey  string        `gorm:"type:varchar(255);uniqueIndex;not null" json:"license_key"`
	UserID      string        `gorm:"type:varchar(255);uniqueIndex;not null" json:"user_id"`
	Username    string        `gorm:"type:varchar(255);not null" json:"username"`
	Status      LicenseStatus `gorm:"type:varchar(50);default:'active';index;not null" json:"status"`
	ActivatedAt time.Time     `gorm:"index;not null" json:"activated_at"`
	RevokedAt   *time.Time    `json:"revoked_at"`
	RevokedBy   *string       `gorm:"type:varchar(255)" json:"revoked_by"`
}

func (License) TableName() string { return "licenses" }

func (l *License) IsActive() bool { return l != nil && l.Status == LicenseStatusActive }

func (l *License) IsRevoked() bool { return l != nil && l.Status == LicenseStatusRevoked }

// LicenseStats is a point-in-time count over the whole registry.
type LicenseStats struct {
	Total   int64 `json:"total"`
	Active  int64 `json:"active"`
	Revoked int64 `json:"revoked"`
}
