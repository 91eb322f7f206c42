package service

import (
	"context"
	"time"

	"github.com/licensebot/licensebot/internal/domain"
	"github.com/licensebot/licensebot/internal/repository"
)

type LicenseServiceInterface interface {
	Search(ctx context.Context, query repository.LicenseQuery) (repository.PageResult[domain.License], error)
	Stats(ctx context.Context) (domain.LicenseStats, error)
	Revoke(ctx context.Context, userID, revokedBy string) (*domain.License, error)
}

type SessionServiceInterface interface {
	Login(ctx context.Context, password string) (string, *Session, error)
	Logout(ctx context.Context, token string) error
	Authenticate(ctx context.Context, token string) (*Session, error)
	TTL() time.Duration
}

var (
	_ LicenseServiceInterface = (*LicenseService)(nil)
	_ SessionServiceInterface = (*SessionService)(nil)
)
