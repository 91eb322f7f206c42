package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/licensebot/licensebot/internal/domain"
	"github.com/licensebot/licensebot/internal/observability"

	"gorm.io/gorm"
)

var (
	ErrLicenseNotFound       = errors.New("license not found")
	ErrLicenseExists         = errors.New("license already exists for user")
	ErrLicenseKeyCollision   = errors.New("license key already in use")
	ErrLicenseAlreadyRevoked = errors.New("license already revoked")
)

type LicenseQuery struct {
	PageRequest
	// Search is matched case-insensitively as a substring of username,
	// license_key and user_id. Empty means no filter.
	Search string
}

type LicenseRepository interface {
	Create(ctx context.Context, userID, username, licenseKey string) (*domain.License, error)
	FindByUserID(ctx context.Context, userID string) (*domain.License, error)
	List(ctx context.Context, limit, offset int) ([]domain.License, int64, error)
	ListByStatus(ctx context.Context, status domain.LicenseStatus) ([]domain.License, error)
	Search(ctx context.Context, query LicenseQuery) (PageResult[domain.License], error)
	Revoke(ctx context.Context, userID, revokedBy string) (*domain.License, error)
	Stats(ctx context.Context) (domain.LicenseStats, error)
}

type GormLicenseRepository struct{ db *gorm.DB }

func NewLicenseRepository(db *gorm.DB) LicenseRepository { return &GormLicenseRepository{db: db} }

// Create inserts a new active license. A unique violation is reported as
// ErrLicenseExists when the user already holds a license and as
// ErrLicenseKeyCollision otherwise.
func (r *GormLicenseRepository) Create(ctx context.Context, userID, username, licenseKey string) (*domain.License, error) {
	lic := &domain.License{
		LicenseKey:  licenseKey,
		UserID:      userID,
		Username:    username,
		Status:      domain.LicenseStatusActive,
		ActivatedAt: time.Now().UTC(),
	}
	err := r.db.WithContext(ctx).Create(lic).Error
	if err == nil {
		observability.RecordRepositoryOperation(ctx, "license", "create", "success")
		return lic, nil
	}
	if !isUniqueViolation(err) {
		observability.RecordRepositoryOperation(ctx, "license", "create", "error")
		return nil, err
	}

	var n int64
	if cerr := r.db.WithContext(ctx).Model(&domain.License{}).Where("user_id = ?", userID).Count(&n).Error; cerr != nil {
		observability.RecordRepositoryOperation(ctx, "license", "create", "error")
		return nil, cerr
	}
	if n > 0 {
		observability.RecordRepositoryOperation(ctx, "license", "create", "conflict_user")
		return nil, ErrLicenseExists
	}
	observability.RecordRepositoryOperation(ctx, "license", "create", "conflict_key")
	return nil, ErrLicenseKeyCollision
}

func (r *GormLicenseRepository) FindByUserID(ctx context.Context, userID string) (*domain.License, error) {
	var lic domain.License
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&lic).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			observability.RecordRepositoryOperation(ctx, "license", "find_by_user_id", "not_found")
			return nil, ErrLicenseNotFound
		}
		observability.RecordRepositoryOperation(ctx, "license", "find_by_user_id", "error")
		return nil, err
	}
	observability.RecordRepositoryOperation(ctx, "license", "find_by_user_id", "success")
	return &lic, nil
}

func (r *GormLicenseRepository) List(ctx context.Context, limit, offset int) ([]domain.License, int64, error) {
	if limit < 1 {
		limit = DefaultPageSize
	}
	if offset < 0 {
		offset = 0
	}
	var (
		licenses []domain.License
		total    int64
	)
	if err := r.db.WithContext(ctx).Model(&domain.License{}).Count(&total).Error; err != nil {
		observability.RecordRepositoryOperation(ctx, "license", "list", "error")
		return nil, 0, err
	}
	err := r.db.WithContext(ctx).
		Scopes(newestFirst).
		Offset(offset).
		Limit(limit).
		Find(&licenses).Error
	if err != nil {
		observability.RecordRepositoryOperation(ctx, "license", "list", "error")
		return nil, 0, err
	}
	observability.RecordRepositoryOperation(ctx, "license", "list", "success")
	return licenses, total, nil
}

func (r *GormLicenseRepository) ListByStatus(ctx context.Context, status domain.LicenseStatus) ([]domain.License, error) {
	var licenses []domain.License
	err := r.db.WithContext(ctx).
		Where("status = ?", status).
		Scopes(newestFirst).
		Find(&licenses).Error
	if err != nil {
		observability.RecordRepositoryOperation(ctx, "license", "list_by_status", "error")
		return nil, err
	}
	observability.RecordRepositoryOperation(ctx, "license", "list_by_status", "success")
	return licenses, nil
}

func (r *GormLicenseRepository) Search(ctx context.Context, query LicenseQuery) (PageResult[domain.License], error) {
	req := normalizePageRequest(query.PageRequest)
	result := PageResult[domain.License]{
		Items:    []domain.License{},
		Page:     req.Page,
		PageSize: req.PageSize,
	}
	filter := matchingSearch(query.Search)

	if err := r.db.WithContext(ctx).Model(&domain.License{}).Scopes(filter).Count(&result.Total).Error; err != nil {
		observability.RecordRepositoryOperation(ctx, "license", "search", "error")
		return PageResult[domain.License]{}, err
	}
	err := r.db.WithContext(ctx).
		Scopes(filter, newestFirst).
		Offset(req.Offset()).
		Limit(req.PageSize).
		Find(&result.Items).Error
	if err != nil {
		observability.RecordRepositoryOperation(ctx, "license", "search", "error")
		return PageResult[domain.License]{}, err
	}
	result.TotalPages = calcTotalPages(result.Total, req.PageSize)
	observability.RecordRepositoryOperation(ctx, "license", "search", "success")
	return result, nil
}

// Revoke transitions an active license to revoked, setting revoked_at and
// revoked_by in the same statement. A license that is already revoked is
// returned unchanged together with ErrLicenseAlreadyRevoked.
func (r *GormLicenseRepository) Revoke(ctx context.Context, userID, revokedBy string) (*domain.License, error) {
	now := time.Now().UTC()
	res := r.db.WithContext(ctx).Model(&domain.License{}).
		Where("user_id = ? AND status = ?", userID, domain.LicenseStatusActive).
		Updates(map[string]any{
			"status":     domain.LicenseStatusRevoked,
			"revoked_at": now,
			"revoked_by": revokedBy,
		})
	if res.Error != nil {
		observability.RecordRepositoryOperation(ctx, "license", "revoke", "error")
		return nil, res.Error
	}

	lic, err := r.FindByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrLicenseNotFound) {
			observability.RecordRepositoryOperation(ctx, "license", "revoke", "not_found")
		} else {
			observability.RecordRepositoryOperation(ctx, "license", "revoke", "error")
		}
		return nil, err
	}
	if res.RowsAffected == 0 {
		observability.RecordRepositoryOperation(ctx, "license", "revoke", "already_revoked")
		return lic, ErrLicenseAlreadyRevoked
	}
	observability.RecordRepositoryOperation(ctx, "license", "revoke", "success")
	return lic, nil
}

func (r *GormLicenseRepository) Stats(ctx context.Context) (domain.LicenseStats, error) {
	var rows []struct {
		Status domain.LicenseStatus
		Count  int64
	}
	err := r.db.WithContext(ctx).Model(&domain.License{}).
		Select("status, COUNT(*) AS count").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		observability.RecordRepositoryOperation(ctx, "license", "stats", "error")
		return domain.LicenseStats{}, err
	}
	var stats domain.LicenseStats
	for _, row := range rows {
		stats.Total += row.Count
		switch row.Status {
		case domain.LicenseStatusActive:
			stats.Active = row.Count
		case domain.LicenseStatusRevoked:
			stats.Revoked = row.Count
		}
	}
	observability.RecordRepositoryOperation(ctx, "license", "stats", "success")
	return stats, nil
}

func newestFirst(db *gorm.DB) *gorm.DB {
	return db.Order("activated_at DESC").Order("id DESC")
}

// matchingSearch lowercases the term in Go and the columns in SQL. Postgres
// LOWER() folds Unicode; SQLite's folds ASCII only, so accented capitals
// stay case-sensitive there.
func matchingSearch(term string) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if term == "" {
			return db
		}
		pattern := "%" + escapeLike(strings.ToLower(term)) + "%"
		return db.Where(
			`(LOWER(username) LIKE ? ESCAPE '\' OR LOWER(license_key) LIKE ? ESCAPE '\' OR LOWER(user_id) LIKE ? ESCAPE '\')`,
			pattern, pattern, pattern,
		)
	}
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string { return likeEscaper.Replace(s) }

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "duplicate key value violates unique constraint")
}
