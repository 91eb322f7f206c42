package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/licensebot/licensebot/internal/domain"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func TestLicenseRepositoryCreateAndDuplicateUser(t *testing.T) {
	repo, _ := newLicenseRepoForTest(t)
	ctx := context.Background()

	lic, err := repo.Create(ctx, "u1", "alice", "AAAAA-BBBBB-CCCCC-DDDDD")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if lic.ID == 0 || lic.Status != domain.LicenseStatusActive || lic.ActivatedAt.IsZero() {
		t.Fatalf("unexpected created license: %+v", lic)
	}
	if lic.RevokedAt != nil || lic.RevokedBy != nil {
		t.Fatalf("new license must not carry revocation metadata: %+v", lic)
	}

	if _, err := repo.Create(ctx, "u1", "alice", "EEEEE-FFFFF-00000-11111"); !errors.Is(err, ErrLicenseExists) {
		t.Fatalf("expected ErrLicenseExists for second activation, got %v", err)
	}

	got, err := repo.FindByUserID(ctx, "u1")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if got.LicenseKey != "AAAAA-BBBBB-CCCCC-DDDDD" {
		t.Fatalf("second create must not replace the key, got %q", got.LicenseKey)
	}
}

func TestLicenseRepositoryKeyCollisionIsDistinct(t *testing.T) {
	repo, _ := newLicenseRepoForTest(t)
	ctx := context.Background()

	if _, err := repo.Create(ctx, "u1", "alice", "AAAAA-BBBBB-CCCCC-DDDDD"); err != nil {
		t.Fatalf("create: %v", err)
	}
	_, err := repo.Create(ctx, "u2", "bob", "AAAAA-BBBBB-CCCCC-DDDDD")
	if !errors.Is(err, ErrLicenseKeyCollision) {
		t.Fatalf("expected ErrLicenseKeyCollision, got %v", err)
	}
	if _, err := repo.FindByUserID(ctx, "u2"); !errors.Is(err, ErrLicenseNotFound) {
		t.Fatalf("colliding create must not persist a row, got %v", err)
	}
}

func TestLicenseRepositoryConcurrentActivationSingleWinner(t *testing.T) {
	repo, _ := newLicenseRepoForTest(t)
	ctx := context.Background()

	const attempts = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		created   int
		conflicts int
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := repo.Create(ctx, "racer", "racer", fmt.Sprintf("K%04d-BBBBB-CCCCC-DDDDD", i))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				created++
			case errors.Is(err, ErrLicenseExists):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()
	if created != 1 || conflicts != attempts-1 {
		t.Fatalf("expected one winner and %d conflicts, got created=%d conflicts=%d", attempts-1, created, conflicts)
	}
}

func TestLicenseRepositoryRevokeIsConditional(t *testing.T) {
	repo, _ := newLicenseRepoForTest(t)
	ctx := context.Background()

	if _, err := repo.Create(ctx, "u1", "alice", "AAAAA-BBBBB-CCCCC-DDDDD"); err != nil {
		t.Fatalf("create: %v", err)
	}

	revoked, err := repo.Revoke(ctx, "u1", "admin1")
	if err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if revoked.Status != domain.LicenseStatusRevoked || revoked.RevokedAt == nil || revoked.RevokedBy == nil {
		t.Fatalf("revocation metadata must be set together: %+v", revoked)
	}
	if *revoked.RevokedBy != "admin1" {
		t.Fatalf("expected revoked_by admin1, got %q", *revoked.RevokedBy)
	}
	firstRevokedAt := *revoked.RevokedAt

	time.Sleep(5 * time.Millisecond)
	again, err := repo.Revoke(ctx, "u1", "admin2")
	if !errors.Is(err, ErrLicenseAlreadyRevoked) {
		t.Fatalf("expected ErrLicenseAlreadyRevoked, got %v", err)
	}
	if again == nil || *again.RevokedBy != "admin1" || !again.RevokedAt.Equal(firstRevokedAt) {
		t.Fatalf("second revoke must not rewrite metadata: %+v", again)
	}

	if _, err := repo.Revoke(ctx, "missing", "admin1"); !errors.Is(err, ErrLicenseNotFound) {
		t.Fatalf("expected ErrLicenseNotFound, got %v", err)
	}
}

func TestLicenseRepositoryListCoversEveryRowOnceNewestFirst(t *testing.T) {
	repo, db := newLicenseRepoForTest(t)
	ctx := context.Background()

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	const n = 23
	for i := 0; i < n; i++ {
		lic := &domain.License{
			LicenseKey:  fmt.Sprintf("K%04d-BBBBB-CCCCC-DDDDD", i),
			UserID:      fmt.Sprintf("u%02d", i),
			Username:    fmt.Sprintf("user%02d", i),
			Status:      domain.LicenseStatusActive,
			ActivatedAt: base.Add(time.Duration(i%5) * time.Hour),
		}
		if err := db.Create(lic).Error; err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	seen := map[string]int{}
	var previous *domain.License
	for offset := 0; offset < n; offset += 10 {
		page, total, err := repo.List(ctx, 10, offset)
		if err != nil {
			t.Fatalf("list offset %d: %v", offset, err)
		}
		if total != n {
			t.Fatalf("expected total %d, got %d", n, total)
		}
		for i := range page {
			cur := page[i]
			seen[cur.UserID]++
			if previous != nil && cur.ActivatedAt.After(previous.ActivatedAt) {
				t.Fatalf("rows not ordered by activated_at desc: %s after %s", cur.ActivatedAt, previous.ActivatedAt)
			}
			previous = &cur
		}
	}
	if len(seen) != n {
		t.Fatalf("expected %d distinct rows, got %d", n, len(seen))
	}
	for id, count := range seen {
		if count != 1 {
			t.Fatalf("row %s seen %d times", id, count)
		}
	}
}

func TestLicenseRepositorySearch(t *testing.T) {
	repo, _ := newLicenseRepoForTest(t)
	ctx := context.Background()

	seed := []struct{ user, name, key string }{
		{"100", "Alice#0001", "ABCDE-11111-22222-33333"},
		{"200", "bob_smith", "FFFFF-44444-55555-66666"},
		{"300", "carol", "ABC99-77777-88888-99999"},
		{"410", "dave%", "00000-AAAAA-BBBBB-CCCCC"},
	}
	for _, s := range seed {
		if _, err := repo.Create(ctx, s.user, s.name, s.key); err != nil {
			t.Fatalf("seed %s: %v", s.user, err)
		}
	}

	cases := []struct {
		name   string
		search string
		want   int64
	}{
		{name: "empty returns all", search: "", want: 4},
		{name: "username case-insensitive", search: "ALICE", want: 1},
		{name: "key substring lowercase", search: "abc", want: 2},
		{name: "user id substring", search: "10", want: 2},
		{name: "underscore is literal", search: "b_s", want: 1},
		{name: "percent is literal", search: "%", want: 1},
		{name: "no match", search: "zzz", want: 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res, err := repo.Search(ctx, LicenseQuery{Search: tc.search})
			if err != nil {
				t.Fatalf("search: %v", err)
			}
			if res.Total != tc.want || int64(len(res.Items)) != tc.want {
				t.Fatalf("search %q: total=%d items=%d want %d", tc.search, res.Total, len(res.Items), tc.want)
			}
		})
	}

	res, err := repo.Search(ctx, LicenseQuery{PageRequest: PageRequest{Page: 2, PageSize: 3}})
	if err != nil {
		t.Fatalf("paged search: %v", err)
	}
	if res.Total != 4 || len(res.Items) != 1 || res.TotalPages != 2 || res.Page != 2 {
		t.Fatalf("unexpected paged result: total=%d items=%d pages=%d page=%d", res.Total, len(res.Items), res.TotalPages, res.Page)
	}
}

func TestLicenseRepositorySearchPastLastPageIsEmpty(t *testing.T) {
	repo, _ := newLicenseRepoForTest(t)
	ctx := context.Background()
	if _, err := repo.Create(ctx, "100", "alice", "ABCDE-11111-22222-33333"); err != nil {
		t.Fatalf("seed: %v", err)
	}

	res, err := repo.Search(ctx, LicenseQuery{PageRequest: PageRequest{Page: 200000000000000000, PageSize: 50}})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(res.Items) != 0 || res.Total != 1 || res.TotalPages != 1 {
		t.Fatalf("expected an empty page past the end, got items=%d total=%d pages=%d", len(res.Items), res.Total, res.TotalPages)
	}
}

// SQLite's LOWER() and LIKE only fold ASCII, so on that driver non-ASCII
// capitals match only through their unaccented neighbours. Postgres folds
// the full range.
func TestLicenseRepositorySearchFoldsASCIIOnlyOnSQLite(t *testing.T) {
	repo, _ := newLicenseRepoForTest(t)
	ctx := context.Background()
	seed := []struct{ user, name, key string }{
		{"100", "éloïse", "ABCDE-11111-22222-33333"},
		{"200", "Élodie", "FFFFF-44444-55555-66666"},
	}
	for _, s := range seed {
		if _, err := repo.Create(ctx, s.user, s.name, s.key); err != nil {
			t.Fatalf("seed %s: %v", s.user, err)
		}
	}

	cases := []struct {
		search string
		want   int64
	}{
		{search: "ÉLOÏSE", want: 1},
		{search: "éloïse", want: 1},
		{search: "LODIE", want: 1},
		{search: "élodie", want: 0},
	}
	for _, tc := range cases {
		res, err := repo.Search(ctx, LicenseQuery{Search: tc.search})
		if err != nil {
			t.Fatalf("search %q: %v", tc.search, err)
		}
		if res.Total != tc.want {
			t.Fatalf("search %q: total=%d want %d", tc.search, res.Total, tc.want)
		}
	}
}

func TestLicenseRepositoryStatsAndListByStatus(t *testing.T) {
	repo, _ := newLicenseRepoForTest(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if _, err := repo.Create(ctx, fmt.Sprintf("u%d", i), "user", fmt.Sprintf("K%04d-BBBBB-CCCCC-DDDDD", i)); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	for _, id := range []string{"u1", "u3"} {
		if _, err := repo.Revoke(ctx, id, "admin"); err != nil {
			t.Fatalf("revoke %s: %v", id, err)
		}
	}

	stats, err := repo.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats != (domain.LicenseStats{Total: 5, Active: 3, Revoked: 2}) {
		t.Fatalf("unexpected stats %+v", stats)
	}

	revoked, err := repo.ListByStatus(ctx, domain.LicenseStatusRevoked)
	if err != nil {
		t.Fatalf("list by status: %v", err)
	}
	if len(revoked) != 2 {
		t.Fatalf("expected 2 revoked licenses, got %d", len(revoked))
	}
}

func TestEscapeLike(t *testing.T) {
	if got := escapeLike(`50%_off\`); got != `50\%\_off\\` {
		t.Fatalf("unexpected escape result %q", got)
	}
}

func newLicenseRepoForTest(t *testing.T) (LicenseRepository, *gorm.DB) {
	t.Helper()
	db := newSQLiteForTest(t)
	return NewLicenseRepository(db), db
}

func newSQLiteForTest(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_busy_timeout=5000", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	if err := db.AutoMigrate(&domain.License{}, &domain.GuildSettings{}, &domain.DashboardSession{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}
