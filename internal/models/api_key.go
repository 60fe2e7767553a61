package models

import (
	"time"

	"github.com/google/uuid"
)

// APIKey is a dual-secret credential owned by one user. The public KeyID is
// presented in the api-key-id header; only a SHA-256 hash of the secret is
// stored. Keys are deactivated on revocation, never deleted, because usage
// history references them.
type APIKey struct {
	ID                 uuid.UUID  `db:"id"`
	KeyID              string     `db:"key_id"` // public identifier, "hsk_" prefix
	SecretHash         string     `db:"secret_hash"`
	UserID             uuid.UUID  `db:"user_id"`
	Name               string     `db:"name"`
	Active             bool       `db:"is_active"`
	RateLimitPerMinute int        `db:"rate_limit_per_minute"`
	CallCount          int64      `db:"call_count"`
	LastUsedAt         *time.Time `db:"last_used_at"`
	ExpiresAt          *time.Time `db:"expires_at"`
	CreatedAt          time.Time  `db:"created_at"`
	UpdatedAt          time.Time  `db:"updated_at"`
}

// IsExpired checks if the key has expired.
func (k *APIKey) IsExpired() bool {
	if k.ExpiresAt == nil {
		return false
	}
	return time.Now().After(*k.ExpiresAt)
}

// IsValid checks if the key may be used (active and not expired).
func (k *APIKey) IsValid() bool {
	return k.Active && !k.IsExpired()
}
