package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/licensebot/licensebot/internal/domain"
	"github.com/licensebot/licensebot/internal/observability"
	"github.com/licensebot/licensebot/internal/repository"
	"github.com/licensebot/licensebot/internal/security"
)

// AlreadyRevokedError is returned by Revoke when the license was revoked
// earlier. License carries the stored record so callers can report who
// revoked it and when.
type AlreadyRevokedError struct {
	License *domain.License
}

func (e *AlreadyRevokedError) Error() string {
	if e.License == nil {
		return repository.ErrLicenseAlreadyRevoked.Error()
	}
	return fmt.Sprintf("license for user %s already revoked", e.License.UserID)
}

func (e *AlreadyRevokedError) Unwrap() error { return repository.ErrLicenseAlreadyRevoked }

type ActivationResult struct {
	License  *domain.License
	Existing bool
}

type LicenseService struct {
	repo   repository.LicenseRepository
	keygen func() (string, error)
	log    *slog.Logger
}

func NewLicenseService(repo repository.LicenseRepository, log *slog.Logger) *LicenseService {
	if log == nil {
		log = slog.Default()
	}
	return &LicenseService{repo: repo, keygen: security.GenerateLicenseKey, log: log}
}

// Activate issues a license for userID, or returns the one already on file.
// A freshly generated key that collides with an existing one is regenerated
// once; a second collision is reported as an error.
func (s *LicenseService) Activate(ctx context.Context, userID, username string) (ActivationResult, error) {
	existing, err := s.repo.FindByUserID(ctx, userID)
	switch {
	case err == nil:
		observability.RecordLicenseActivation(ctx, "existing")
		return ActivationResult{License: existing, Existing: true}, nil
	case !errors.Is(err, repository.ErrLicenseNotFound):
		observability.RecordLicenseActivation(ctx, "error")
		return ActivationResult{}, fmt.Errorf("lookup license: %w", err)
	}

	var lic *domain.License
	for attempt := 0; attempt < 2; attempt++ {
		key, kerr := s.keygen()
		if kerr != nil {
			observability.RecordLicenseActivation(ctx, "error")
			return ActivationResult{}, fmt.Errorf("generate license key: %w", kerr)
		}
		lic, err = s.repo.Create(ctx, userID, username, key)
		if !errors.Is(err, repository.ErrLicenseKeyCollision) {
			break
		}
		s.log.Warn("license key collision", "user_id", userID, "attempt", attempt+1)
	}

	switch {
	case err == nil:
		observability.RecordLicenseActivation(ctx, "created")
		return ActivationResult{License: lic}, nil
	case errors.Is(err, repository.ErrLicenseExists):
		// Lost a concurrent activation race; the winner's row is the answer.
		winner, ferr := s.repo.FindByUserID(ctx, userID)
		if ferr != nil {
			observability.RecordLicenseActivation(ctx, "error")
			return ActivationResult{}, fmt.Errorf("reload license after conflict: %w", ferr)
		}
		observability.RecordLicenseActivation(ctx, "existing")
		return ActivationResult{License: winner, Existing: true}, nil
	default:
		observability.RecordLicenseActivation(ctx, "error")
		return ActivationResult{}, fmt.Errorf("create license: %w", err)
	}
}

type revocationSourceKey struct{}

// WithRevocationSource labels revocations made with ctx ("discord", "api",
// "cli") for metrics.
func WithRevocationSource(ctx context.Context, source string) context.Context {
	return context.WithValue(ctx, revocationSourceKey{}, source)
}

func revocationSource(ctx context.Context) string {
	if v, ok := ctx.Value(revocationSourceKey{}).(string); ok && v != "" {
		return v
	}
	return "unknown"
}

// Revoke returns repository.ErrLicenseNotFound when the user has no license
// and *AlreadyRevokedError when it was revoked before.
func (s *LicenseService) Revoke(ctx context.Context, userID, revokedBy string) (*domain.License, error) {
	source := revocationSource(ctx)
	lic, err := s.repo.FindByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrLicenseNotFound) {
			observability.RecordLicenseRevocation(ctx, source, "not_found")
			return nil, err
		}
		observability.RecordLicenseRevocation(ctx, source, "error")
		return nil, fmt.Errorf("lookup license: %w", err)
	}
	if lic.IsRevoked() {
		observability.RecordLicenseRevocation(ctx, source, "already_revoked")
		return nil, &AlreadyRevokedError{License: lic}
	}

	revoked, err := s.repo.Revoke(ctx, userID, revokedBy)
	switch {
	case err == nil:
		observability.RecordLicenseRevocation(ctx, source, "revoked")
		return revoked, nil
	case errors.Is(err, repository.ErrLicenseAlreadyRevoked):
		observability.RecordLicenseRevocation(ctx, source, "already_revoked")
		return nil, &AlreadyRevokedError{License: revoked}
	case errors.Is(err, repository.ErrLicenseNotFound):
		observability.RecordLicenseRevocation(ctx, source, "not_found")
		return nil, err
	default:
		observability.RecordLicenseRevocation(ctx, source, "error")
		return nil, fmt.Errorf("revoke license: %w", err)
	}
}

func (s *LicenseService) Get(ctx context.Context, userID string) (*domain.License, error) {
	return s.repo.FindByUserID(ctx, userID)
}

// List pages through all licenses newest first. page is 1-based.
func (s *LicenseService) List(ctx context.Context, page, pageSize int) (repository.PageResult[domain.License], error) {
	req := repository.NormalizePageRequest(repository.PageRequest{Page: page, PageSize: pageSize})
	items, total, err := s.repo.List(ctx, req.PageSize, req.Offset())
	if err != nil {
		return repository.PageResult[domain.License]{}, fmt.Errorf("list licenses: %w", err)
	}
	if items == nil {
		items = []domain.License{}
	}
	return repository.PageResult[domain.License]{
		Items:      items,
		Page:       req.Page,
		PageSize:   req.PageSize,
		Total:      total,
		TotalPages: repository.CalcTotalPages(total, req.PageSize),
	}, nil
}

func (s *LicenseService) Search(ctx context.Context, query repository.LicenseQuery) (repository.PageResult[domain.License], error) {
	res, err := s.repo.Search(ctx, query)
	if err != nil {
		return repository.PageResult[domain.License]{}, fmt.Errorf("search licenses: %w", err)
	}
	return res, nil
}

func (s *LicenseService) ListByStatus(ctx context.Context, status domain.LicenseStatus) ([]domain.License, error) {
	licenses, err := s.repo.ListByStatus(ctx, status)
	if err != nil {
		return nil, fmt.Errorf("list %s licenses: %w", status, err)
	}
	return licenses, nil
}

func (s *LicenseService) Stats(ctx context.Context) (domain.LicenseStats, error) {
	stats, err := s.repo.Stats(ctx)
	if err != nil {
		return domain.LicenseStats{}, fmt.Errorf("license stats: %w", err)
	}
	return stats, nil
}
