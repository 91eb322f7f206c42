package security

import (
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// SecretVerifier checks a submitted password against the configured admin
// secret. The secret may be given in plain text or as a bcrypt hash.
type SecretVerifier struct {
	plainDigest [sha256.Size]byte
	bcryptHash  []byte
}

func NewSecretVerifier(secret string) *SecretVerifier {
	if IsBcryptHash(secret) {
		return &SecretVerifier{bcryptHash: []byte(secret)}
	}
	return &SecretVerifier{plainDigest: sha256.Sum256([]byte(secret))}
}

// Verify runs in time independent of how much of the input matches. Plain
// secrets are compared through their digests so length is not leaked either.
func (v *SecretVerifier) Verify(candidate string) bool {
	if candidate == "" {
		return false
	}
	if v.bcryptHash != nil {
		return bcrypt.CompareHashAndPassword(v.bcryptHash, []byte(candidate)) == nil
	}
	digest := sha256.Sum256([]byte(candidate))
	return subtle.ConstantTimeCompare(digest[:], v.plainDigest[:]) == 1
}

func IsBcryptHash(s string) bool {
	return strings.HasPrefix(s, "$2a$") || strings.HasPrefix(s, "$2b$") || strings.HasPrefix(s, "$2y$")
}

// HashSecret produces a bcrypt hash suitable for ADMIN_PASSWORD.
func HashSecret(plain string) (string, error) {
	if plain == "" {
		return "", errors.New("secret must not be empty")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
