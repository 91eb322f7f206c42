package repository

import (
	"context"
	"errors"
	"time"

	"github.com/licensebot/licensebot/internal/domain"
	"github.com/licensebot/licensebot/internal/observability"

	"gorm.io/gorm"
)

var ErrSessionNotFound = errors.New("session not found")

type SessionRepository interface {
	Create(ctx context.Context, s *domain.DashboardSession) error
	FindActive(ctx context.Context, id string) (*domain.DashboardSession, error)
	Revoke(ctx context.Context, id, reason string) (bool, error)
	CleanupExpired(ctx context.Context) (int64, error)
	Ping(ctx context.Context) error
}

type GormSessionRepository struct{ db *gorm.DB }

func NewSessionRepository(db *gorm.DB) SessionRepository { return &GormSessionRepository{db: db} }

func (r *GormSessionRepository) Create(ctx context.Context, s *domain.DashboardSession) error {
	if err := r.db.WithContext(ctx).Create(s).Error; err != nil {
		observability.RecordRepositoryOperation(ctx, "session", "create", "error")
		return err
	}
	observability.RecordRepositoryOperation(ctx, "session", "create", "success")
	return nil
}

// FindActive returns ErrSessionNotFound for unknown, revoked and expired ids
// alike.
func (r *GormSessionRepository) FindActive(ctx context.Context, id string) (*domain.DashboardSession, error) {
	var s domain.DashboardSession
	err := r.db.WithContext(ctx).
		Where("id = ? AND revoked_at IS NULL AND expires_at > ?", id, time.Now().UTC()).
		First(&s).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			observability.RecordRepositoryOperation(ctx, "session", "find_active", "not_found")
			return nil, ErrSessionNotFound
		}
		observability.RecordRepositoryOperation(ctx, "session", "find_active", "error")
		return nil, err
	}
	observability.RecordRepositoryOperation(ctx, "session", "find_active", "success")
	return &s, nil
}

// Revoke reports whether a live session was revoked by this call.
func (r *GormSessionRepository) Revoke(ctx context.Context, id, reason string) (bool, error) {
	res := r.db.WithContext(ctx).Model(&domain.DashboardSession{}).
		Where("id = ? AND revoked_at IS NULL", id).
		Updates(map[string]any{"revoked_at": time.Now().UTC(), "revoked_reason": reason})
	if res.Error != nil {
		observability.RecordRepositoryOperation(ctx, "session", "revoke", "error")
		return false, res.Error
	}
	observability.RecordRepositoryOperation(ctx, "session", "revoke", "success")
	return res.RowsAffected > 0, nil
}

// CleanupExpired deletes rows past their expiry, revoked or not.
func (r *GormSessionRepository) CleanupExpired(ctx context.Context) (int64, error) {
	res := r.db.WithContext(ctx).Where("expires_at <= ?", time.Now().UTC()).Delete(&domain.DashboardSession{})
	if res.Error != nil {
		observability.RecordRepositoryOperation(ctx, "session", "cleanup_expired", "error")
		return res.RowsAffected, res.Error
	}
	observability.RecordRepositoryOperation(ctx, "session", "cleanup_expired", "success")
	return res.RowsAffected, nil
}

func (r *GormSessionRepository) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
