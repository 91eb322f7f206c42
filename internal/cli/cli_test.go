package cli

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/licensebot/licensebot/internal/config"
	"github.com/licensebot/licensebot/internal/database"
	"github.com/licensebot/licensebot/internal/repository"
	"github.com/licensebot/licensebot/internal/security"
)

func useSQLite(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "licenses.db")
	t.Setenv("DATABASE_DRIVER", config.DriverSQLite)
	t.Setenv("DATABASE_URL", path)
	return path
}

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(append([]string{"--env-file", ""}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func seed(t *testing.T, path string, rows ...[3]string) {
	t.Helper()
	db, err := database.Open(config.DatabaseConfig{Driver: config.DriverSQLite, URL: path}, nil)
	require.NoError(t, err)
	defer func() { _ = database.Close(db) }()
	require.NoError(t, database.Migrate(db))
	repo := repository.NewLicenseRepository(db)
	for _, r := range rows {
		_, err := repo.Create(context.Background(), r[0], r[1], r[2])
		require.NoError(t, err)
	}
}

func TestMigrateRequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("DATABASE_DRIVER", config.DriverSQLite)
	_, err := execute(t, "", "migrate")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_URL is required")
}

func TestMigrateCreatesSchema(t *testing.T) {
	useSQLite(t)
	out, err := execute(t, "", "migrate")
	require.NoError(t, err)
	assert.Contains(t, out, "schema up to date")
}

func TestLicensesListAndRevoke(t *testing.T) {
	path := useSQLite(t)

	out, err := execute(t, "", "licenses", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "No licenses found.")

	seed(t, path,
		[3]string{"111", "alice", "AAAAA-BBBBB-CCCCC-DDDDD"},
		[3]string{"222", "bob", "EEEEE-FFFFF-00000-11111"},
	)

	out, err = execute(t, "", "licenses", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "alice")
	assert.Contains(t, out, "EEEEE-FFFFF-00000-11111")
	assert.Contains(t, out, "Page 1 of 1 (2 total)")

	out, err = execute(t, "", "licenses", "list", "--search", "ALI")
	require.NoError(t, err)
	assert.Contains(t, out, "alice")
	assert.NotContains(t, out, "bob")

	out, err = execute(t, "", "licenses", "revoke", "111", "--by", "ops")
	require.NoError(t, err)
	assert.Contains(t, out, "revoked alice (111)")

	_, err = execute(t, "", "licenses", "revoke", "111")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already revoked")

	_, err = execute(t, "", "licenses", "revoke", "999")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no license found")

	out, err = execute(t, "", "licenses", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "revoked")
	assert.Contains(t, out, "by ops")
}

func TestKeygen(t *testing.T) {
	out, err := execute(t, "", "keygen", "-n", "3")
	require.NoError(t, err)
	keys := strings.Fields(out)
	require.Len(t, keys, 3)
	for _, k := range keys {
		assert.True(t, security.IsLicenseKey(k), k)
	}

	_, err = execute(t, "", "keygen", "--count", "0")
	require.Error(t, err)
}

func TestHashPassword(t *testing.T) {
	out, err := execute(t, "hunter2\n", "hash-password")
	require.NoError(t, err)
	hash := strings.TrimSpace(out)
	assert.True(t, security.NewSecretVerifier(hash).Verify("hunter2"))

	_, err = execute(t, "", "hash-password")
	require.Error(t, err)
}

func TestServeAbortsWithoutBotToken(t *testing.T) {
	useSQLite(t)
	t.Setenv("ADMIN_PASSWORD", "hunter2")
	t.Setenv("SESSION_SECRET", strings.Repeat("s", 32))
	t.Setenv("DISCORD_BOT_TOKEN", "")
	t.Setenv("HTTP_ADDR", "127.0.0.1:0")

	_, err := execute(t, "", "serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DISCORD_BOT_TOKEN is required")
}
