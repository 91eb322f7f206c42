package domain

import "time"

// DashboardSession is a server-side admin login. The signed cookie only
// carries ID; revoking the row ends the login immediately.
type DashboardSession struct {
	ID            string     `gorm:"type:varchar(36);primaryKey"`
	CreatedAt     time.Time  `gorm:"not null"`
	ExpiresAt     time.Time  `gorm:"index;not null"`
	RevokedAt     *time.Time `gorm:"index"`
	RevokedReason *string    `gorm:"type:varchar(64)"`
}

func (DashboardSession) TableName() string { return "dashboard_sessions" }
