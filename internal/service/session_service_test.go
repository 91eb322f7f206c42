package service

import (
	"context"
	"testing"
	"time"

	"github.com/licensebot/licensebot/internal/security"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const testSessionSecret = "abcdefghijklmnopqrstuvwxyz123456"

func newSessionServiceForTest(t *testing.T, store SessionStore, password string) *SessionService {
	t.Helper()
	return NewSessionService(
		store,
		security.NewJWTManager("licensebot", "licensebot-dashboard", testSessionSecret),
		security.NewSecretVerifier(password),
		time.Hour,
	)
}

func TestSessionServiceLoginAuthenticateLogout(t *testing.T) {
	ctx := context.Background()
	svc := newSessionServiceForTest(t, NewInMemorySessionStore(), "hunter2")

	_, _, err := svc.Login(ctx, "wrong")
	require.ErrorIs(t, err, ErrInvalidCredentials)

	token, session, err := svc.Login(ctx, "hunter2")
	require.NoError(t, err)
	require.NotEmpty(t, token)
	assert.True(t, session.Authenticated)

	got, err := svc.Authenticate(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, session.ID, got.ID)

	require.NoError(t, svc.Logout(ctx, token))
	_, err = svc.Authenticate(ctx, token)
	assert.ErrorIs(t, err, ErrUnauthenticated, "logout must invalidate the server-side session")
}

func TestSessionServiceRejectsForgedAndMissingTokens(t *testing.T) {
	ctx := context.Background()
	svc := newSessionServiceForTest(t, NewInMemorySessionStore(), "hunter2")

	_, err := svc.Authenticate(ctx, "")
	assert.ErrorIs(t, err, ErrUnauthenticated)

	token, _, err := svc.Login(ctx, "hunter2")
	require.NoError(t, err)
	_, err = svc.Authenticate(ctx, token+"x")
	assert.ErrorIs(t, err, ErrUnauthenticated)

	// A correctly signed token for a session the store never saw.
	foreign, err := security.NewJWTManager("licensebot", "licensebot-dashboard", testSessionSecret).
		SignSessionToken("never-created", time.Hour)
	require.NoError(t, err)
	_, err = svc.Authenticate(ctx, foreign)
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestSessionServiceLogoutWithoutSessionIsNoop(t *testing.T) {
	svc := newSessionServiceForTest(t, NewInMemorySessionStore(), "hunter2")
	assert.NoError(t, svc.Logout(context.Background(), ""))
	assert.NoError(t, svc.Logout(context.Background(), "garbage"))
}

func TestSessionServiceBcryptSecret(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("hunter2"), bcrypt.MinCost)
	require.NoError(t, err)
	svc := newSessionServiceForTest(t, NewInMemorySessionStore(), string(hash))

	_, _, err = svc.Login(context.Background(), "hunter2")
	assert.NoError(t, err)
	_, _, err = svc.Login(context.Background(), string(hash))
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestSessionServiceWithRedisStore(t *testing.T) {
	ctx := context.Background()
	server, client := newRedisClientForTest(t)
	svc := newSessionServiceForTest(t, NewRedisSessionStore(client, ""), "hunter2")

	token, session, err := svc.Login(ctx, "hunter2")
	require.NoError(t, err)
	assert.True(t, server.Exists("licensebot:session:"+session.ID))
	ttl := server.TTL("licensebot:session:" + session.ID)
	assert.True(t, ttl > 0 && ttl <= time.Hour, "unexpected ttl %s", ttl)

	_, err = svc.Authenticate(ctx, token)
	require.NoError(t, err)
	require.NoError(t, svc.Ping(ctx))

	require.NoError(t, svc.Logout(ctx, token))
	assert.False(t, server.Exists("licensebot:session:"+session.ID))
}
