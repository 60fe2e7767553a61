package auth

import (
	"context"
	"fmt"

	"hashscope/internal/models"
)

// Credentials are the two opaque secrets presented on every metered request.
type Credentials struct {
	KeyID  string // api-key-id header
	Secret string // api-key-secret header
}

// KeyStore resolves a public key identifier into the stored API key.
// Implementations return ErrKeyNotFound when no key matches.
type KeyStore interface {
	Lookup(ctx context.Context, keyID string) (*models.APIKey, error)
}

// Validator checks dual-secret credentials against stored keys.
type Validator struct {
	keys KeyStore
}

func NewValidator(keys KeyStore) *Validator {
	return &Validator{keys: keys}
}

// Validate resolves and checks a credential pair. It returns
// ErrUnauthenticated for missing/unknown ids and secret mismatches, and
// ErrForbidden for keys that exist but are deactivated or expired.
// Validation itself has no side effects; usage tracking is the metering
// pipeline's job.
func (v *Validator) Validate(ctx context.Context, creds Credentials) (*models.APIKey, error) {
	if creds.KeyID == "" || creds.Secret == "" {
		return nil, ErrUnauthenticated
	}

	key, err := v.keys.Lookup(ctx, creds.KeyID)
	if err != nil {
		if err == ErrKeyNotFound {
			return nil, ErrUnauthenticated
		}
		return nil, fmt.Errorf("failed to look up API key: %w", err)
	}

	if !SecretMatches(creds.Secret, key.SecretHash) {
		return nil, ErrUnauthenticated
	}

	if !key.IsValid() {
		return nil, ErrForbidden
	}

	return key, nil
}
