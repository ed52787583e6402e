package application

import (
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/ericfisherdev/certregistry/internal/domain/signing"
)

// PasswordHasher turns application passwords into stored hashes and checks
// candidates against them.
type PasswordHasher interface {
	Hash(secret string) (string, error)
	Matches(secret, hash string) bool
}

// SHA256Hasher stores passwords as an unsalted hex SHA-256 digest. It is the
// default because existing deployments hold hashes in this format.
type SHA256Hasher struct{}

// Hash returns the hex digest of secret.
func (SHA256Hasher) Hash(secret string) (string, error) {
	return signing.Digest(secret), nil
}

// Matches compares the digest of secret to hash in constant time.
func (SHA256Hasher) Matches(secret, hash string) bool {
	return signing.Equal(signing.Digest(secret), hash)
}

// BcryptHasher stores new passwords with bcrypt. It still accepts legacy
// SHA-256 hashes so that switching hashers does not lock anyone out; the
// legacy hash is replaced on the next password change.
type BcryptHasher struct {
	Cost int
}

// Hash returns a bcrypt hash of secret.
func (h BcryptHasher) Hash(secret string) (string, error) {
	cost := h.Cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	out, err := bcrypt.GenerateFromPassword([]byte(secret), cost)
	if err != nil {
		return "", fmt.Errorf("bcrypt hash: %w", err)
	}
	return string(out), nil
}

// Matches reports whether secret matches a bcrypt or legacy SHA-256 hash.
func (h BcryptHasher) Matches(secret, hash string) bool {
	if !strings.HasPrefix(hash, "$2") {
		return SHA256Hasher{}.Matches(secret, hash)
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret)) == nil
}

// NewPasswordHasher returns the hasher registered under name: "sha256"
// (or empty) and "bcrypt" are supported.
func NewPasswordHasher(name string) (PasswordHasher, error) {
	switch strings.ToLower(name) {
	case "", "sha256":
		return SHA256Hasher{}, nil
	case "bcrypt":
		return BcryptHasher{}, nil
	default:
		return nil, fmt.Errorf("unknown password hasher %q", name)
	}
}
