package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/licensebot/licensebot/internal/observability"
	"github.com/licensebot/licensebot/internal/security"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUnauthenticated    = errors.New("unauthenticated")
)

type SessionService struct {
	store    SessionStore
	tokens   *security.JWTManager
	verifier *security.SecretVerifier
	ttl      time.Duration
}

func NewSessionService(store SessionStore, tokens *security.JWTManager, verifier *security.SecretVerifier, ttl time.Duration) *SessionService {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &SessionService{
		store:    store,
		tokens:   tokens,
		verifier: verifier,
		ttl:      ttl,
	}
}

func (s *SessionService) TTL() time.Duration { return s.ttl }

// Login checks password against the admin secret and, on success, opens a
// new authenticated session. The returned token is the cookie value.
func (s *SessionService) Login(ctx context.Context, password string) (string, *Session, error) {
	if !s.verifier.Verify(password) {
		observability.RecordAuthLogin(ctx, "invalid_password")
		return "", nil, ErrInvalidCredentials
	}
	now := time.Now().UTC()
	session := Session{
		ID:            uuid.NewString(),
		Authenticated: true,
		CreatedAt:     now,
		ExpiresAt:     now.Add(s.ttl),
	}
	if err := s.store.Save(ctx, session); err != nil {
		observability.RecordAuthLogin(ctx, "error")
		return "", nil, fmt.Errorf("save session: %w", err)
	}
	token, err := s.tokens.SignSessionToken(session.ID, s.ttl)
	if err != nil {
		_ = s.store.Delete(ctx, session.ID)
		observability.RecordAuthLogin(ctx, "error")
		return "", nil, fmt.Errorf("sign session token: %w", err)
	}
	observability.RecordAuthLogin(ctx, "success")
	return token, &session, nil
}

// Authenticate resolves a cookie value to its live session. Any failure to
// verify the token or find an authenticated session yields ErrUnauthenticated;
// store errors are returned as is.
func (s *SessionService) Authenticate(ctx context.Context, token string) (*Session, error) {
	if token == "" {
		observability.RecordSessionValidation(ctx, "missing")
		return nil, ErrUnauthenticated
	}
	id, err := s.tokens.ParseSessionToken(token)
	if err != nil {
		observability.RecordSessionValidation(ctx, "invalid_token")
		return nil, ErrUnauthenticated
	}
	session, err := s.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			observability.RecordSessionValidation(ctx, "unknown_session")
			return nil, ErrUnauthenticated
		}
		observability.RecordSessionValidation(ctx, "error")
		return nil, fmt.Errorf("load session: %w", err)
	}
	if !session.Authenticated {
		observability.RecordSessionValidation(ctx, "unauthenticated")
		return nil, ErrUnauthenticated
	}
	observability.RecordSessionValidation(ctx, "valid")
	return session, nil
}

// Logout deletes the session behind token. Logging out without a valid token
// is not an error.
func (s *SessionService) Logout(ctx context.Context, token string) error {
	if token == "" {
		observability.RecordAuthLogout(ctx, "no_session")
		return nil
	}
	id, err := s.tokens.ParseSessionToken(token)
	if err != nil {
		observability.RecordAuthLogout(ctx, "no_session")
		return nil
	}
	if err := s.store.Delete(ctx, id); err != nil {
		observability.RecordAuthLogout(ctx, "error")
		return fmt.Errorf("delete session: %w", err)
	}
	observability.RecordAuthLogout(ctx, "success")
	return nil
}

func (s *SessionService) Ping(ctx context.Context) error { return s.store.Ping(ctx) }
