package security

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const sessionTokenType = "dashboard_session"

// SessionClaims carry only the server-side session id (jti). Whether the
// session is authenticated is decided by the session store, not the token.
type SessionClaims struct {
	TokenType string `json:"token_type"`
	jwt.RegisteredClaims
}

type JWTManager struct {
	issuer   string
	audience string
	secret   []byte
}

func NewJWTManager(issuer, audience, secret string) *JWTManager {
	return &JWTManager{
		issuer:   issuer,
		audience: audience,
		secret:   []byte(secret),
	}
}

func (m *JWTManager) SignSessionToken(sessionID string, ttl time.Duration) (string, error) {
	if sessionID == "" {
		return "", errors.New("session id is required")
	}
	now := time.Now()
	claims := SessionClaims{
		TokenType: sessionTokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.issuer,
			Subject:   "admin",
			Audience:  []string{m.audience},
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        sessionID,
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
}

// ParseSessionToken verifies signature, issuer, audience and expiry and
// returns the embedded session id.
func (m *JWTManager) ParseSessionToken(raw string) (string, error) {
	claims := &SessionClaims{}
	tok, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (any, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing algorithm")
		}
		return m.secret, nil
	}, jwt.WithIssuer(m.issuer), jwt.WithAudience(m.audience), jwt.WithExpirationRequired())
	if err != nil {
		return "", err
	}
	if !tok.Valid {
		return "", errors.New("invalid token")
	}
	if claims.TokenType != sessionTokenType {
		return "", fmt.Errorf("unexpected token type: %s", claims.TokenType)
	}
	if claims.ID == "" {
		return "", errors.New("session token has no id")
	}
	return claims.ID, nil
}
