package identity

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"

	"github.com/go-faster/errors"
)

// Role determines which order operations a principal may perform.
type Role string

const (
	RoleUser        Role = "user"
	RoleDistributor Role = "distributor"
	RoleAdmin       Role = "admin"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleDistributor, RoleAdmin:
		return true
	}
	return false
}

// ErrKeyNotFound is returned when no active API key matches a hash.
var ErrKeyNotFound = errors.New("api key not found")

// Principal is the authenticated caller of a request. SubjectID is the user
// or distributor account the key acts for; empty for admin keys.
type Principal struct {
	ID        string
	Name      string
	Role      Role
	SubjectID string
}

// Key is the stored form of an issued API key. The raw key is never
// persisted; only its HMAC-SHA256 hash is.
type Key struct {
	ID        string
	KeyHash   string
	Name      string
	Role      Role
	SubjectID string
	Active    bool
}

// Repository provides lookup of API keys by their HMAC hash.
// Implementations return ErrKeyNotFound when no active key matches.
type Repository interface {
	FindByHash(ctx context.Context, hash string) (*Key, error)
}

// HashKey returns the hex-encoded HMAC-SHA256 of a raw API key under the
// given pepper. The same derivation runs at issue time and at request time,
// so a database leak alone is not enough to forge keys.
func HashKey(pepper []byte, raw string) string {
	mac := hmac.New(sha256.New, pepper)
	mac.Write([]byte(raw))
	return hex.EncodeToString(mac.Sum(nil))
}
