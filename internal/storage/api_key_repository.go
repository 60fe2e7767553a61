package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"hashscope/internal/models"
)

// APIKeyRepository handles API key database operations. Lookups by public
// key id go through the DB-level LRU cache since they sit on the hot path
// of every metered request.
type APIKeyRepository struct {
	db *DB
}

// NewAPIKeyRepository creates a new API key repository
func NewAPIKeyRepository(db *DB) *APIKeyRepository {
	return &APIKeyRepository{
		db: db,
	}
}

const apiKeyColumns = `
	id, key_id, secret_hash, user_id, name, is_active,
	rate_limit_per_minute, call_count, last_used_at, expires_at,
	created_at, updated_at
`

// GetByKeyID retrieves an API key by its public identifier, using the cache
func (r *APIKeyRepository) GetByKeyID(ctx context.Context, keyID string) (*models.APIKey, error) {
	cacheKey := "key_id:" + keyID
	if cached, found := r.db.apiKeyCache.Get(cacheKey); found {
		if key, ok := cached.(*models.APIKey); ok {
			return key, nil
		}
	}

	var key models.APIKey
	query := `SELECT ` + apiKeyColumns + ` FROM api_keys WHERE key_id = $1`

	err := r.db.conn.GetContext(ctx, &key, query, keyID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrAPIKeyNotFound
		}
		return nil, fmt.Errorf("failed to get API key: %w", err)
	}

	r.db.apiKeyCache.Set(cacheKey, &key)
	return &key, nil
}

// GetByID retrieves an API key by primary key
func (r *APIKeyRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.APIKey, error) {
	var key models.APIKey
	query := `SELECT ` + apiKeyColumns + ` FROM api_keys WHERE id = $1`

	err := r.db.conn.GetContext(ctx, &key, query, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrAPIKeyNotFound
		}
		return nil, fmt.Errorf("failed to get API key: %w", err)
	}

	return &key, nil
}

// ListByUser returns all keys owned by a user
func (r *APIKeyRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]*models.APIKey, error) {
	query := `SELECT ` + apiKeyColumns + ` FROM api_keys WHERE user_id = $1 ORDER BY created_at`

	var keys []*models.APIKey
	if err := r.db.conn.SelectContext(ctx, &keys, query, userID); err != nil {
		return nil, fmt.Errorf("failed to list API keys: %w", err)
	}

	return keys, nil
}

// Create creates a new API key
func (r *APIKeyRepository) Create(ctx context.Context, key *models.APIKey) error {
	query := `
		INSERT INTO api_keys (
			id, key_id, secret_hash, user_id, name, is_active,
			rate_limit_per_minute, expires_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, call_count, created_at, updated_at
	`

	if key.ID == uuid.Nil {
		key.ID = uuid.New()
	}

	err := r.db.conn.QueryRowContext(
		ctx, query,
		key.ID, key.KeyID, key.SecretHash, key.UserID, key.Name, key.Active,
		key.RateLimitPerMinute, key.ExpiresAt,
	).Scan(&key.ID, &key.CallCount, &key.CreatedAt, &key.UpdatedAt)

	if err != nil {
		return fmt.Errorf("failed to create API key: %w", err)
	}

	return nil
}

// Deactivate soft-revokes a key. The row is kept because usage history
// references it.
func (r *APIKeyRepository) Deactivate(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE api_keys
		SET is_active = FALSE, updated_at = NOW()
		WHERE id = $1
		RETURNING key_id
	`

	var keyID string
	err := r.db.conn.QueryRowContext(ctx, query, id).Scan(&keyID)
	if err != nil {
		if err == sql.ErrNoRows {
			return ErrAPIKeyNotFound
		}
		return fmt.Errorf("failed to deactivate API key: %w", err)
	}

	r.db.apiKeyCache.Delete("key_id:" + keyID)
	return nil
}

// Touch increments the lifetime call counter and stamps last_used_at.
func (r *APIKeyRepository) Touch(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE api_keys
		SET call_count = call_count + 1, last_used_at = NOW(), updated_at = NOW()
		WHERE id = $1
	`

	res, err := r.db.conn.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to track API key use: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrAPIKeyNotFound
	}

	return nil
}
