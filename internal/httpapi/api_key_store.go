package httpapi

import (
	"context"
	"errors"
	"fmt"

	"hashscope/internal/auth"
	"hashscope/internal/models"
	"hashscope/internal/storage"
)

// DatabaseKeyStore implements auth.KeyStore over the API key repository.
type DatabaseKeyStore struct {
	repo *storage.APIKeyRepository
}

// NewDatabaseKeyStore creates a database-backed key store for the validator.
func NewDatabaseKeyStore(repo *storage.APIKeyRepository) *DatabaseKeyStore {
	return &DatabaseKeyStore{repo: repo}
}

// Lookup finds an API key by its public key id.
func (s *DatabaseKeyStore) Lookup(ctx context.Context, keyID string) (*models.APIKey, error) {
	key, err := s.repo.GetByKeyID(ctx, keyID)
	if err != nil {
		if errors.Is(err, storage.ErrAPIKeyNotFound) {
			return nil, auth.ErrKeyNotFound
		}
		return nil, fmt.Errorf("failed to lookup API key: %w", err)
	}
	return key, nil
}
