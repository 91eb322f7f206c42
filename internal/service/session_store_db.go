package service

import (
	"context"
	"errors"

	"github.com/licensebot/licensebot/internal/domain"
	"github.com/licensebot/licensebot/internal/repository"
)

// DatabaseSessionStore keeps sessions in the main database so logins
// survive restarts without Redis.
type DatabaseSessionStore struct {
	repo repository.SessionRepository
}

func NewDatabaseSessionStore(repo repository.SessionRepository) *DatabaseSessionStore {
	return &DatabaseSessionStore{repo: repo}
}

// Save also sweeps expired rows; logins are rare enough that this keeps the
// table small without a background job.
func (s *DatabaseSessionStore) Save(ctx context.Context, session Session) error {
	if _, err := s.repo.CleanupExpired(ctx); err != nil {
		return err
	}
	return s.repo.Create(ctx, &domain.DashboardSession{
		ID:        session.ID,
		CreatedAt: session.CreatedAt,
		ExpiresAt: session.ExpiresAt,
	})
}

func (s *DatabaseSessionStore) Get(ctx context.Context, id string) (*Session, error) {
	row, err := s.repo.FindActive(ctx, id)
	if errors.Is(err, repository.ErrSessionNotFound) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	return &Session{ID: row.ID, Authenticated: true, CreatedAt: row.CreatedAt, ExpiresAt: row.ExpiresAt}, nil
}

func (s *DatabaseSessionStore) Delete(ctx context.Context, id string) error {
	_, err := s.repo.Revoke(ctx, id, "logout")
	return err
}

func (s *DatabaseSessionStore) Ping(ctx context.Context) error { return s.repo.Ping(ctx) }
