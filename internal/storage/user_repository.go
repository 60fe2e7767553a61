package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"hashscope/internal/models"
	"hashscope/internal/utils"
)

// UserRepository handles user database operations
type UserRepository struct {
	db *DB
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *DB) *UserRepository {
	return &UserRepository{
		db: db,
	}
}

// GetByWallet retrieves a user by wallet address. The address is normalized
// before lookup so mixed-case input resolves to the same user.
func (r *UserRepository) GetByWallet(ctx context.Context, wallet string) (*models.User, error) {
	var user models.User
	query := `
		SELECT id, wallet_address, balance, is_admin, nonce, created_at, updated_at
		FROM users
		WHERE wallet_address = $1
	`

	err := r.db.conn.GetContext(ctx, &user, query, utils.NormalizeAddress(wallet))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	return &user, nil
}

// GetByID retrieves a user by ID
func (r *UserRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	query := `
		SELECT id, wallet_address, balance, is_admin, nonce, created_at, updated_at
		FROM users
		WHERE id = $1
	`

	err := r.db.conn.GetContext(ctx, &user, query, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	return &user, nil
}

// Create creates a new user
func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	query := `
		INSERT INTO users (id, wallet_address, balance, is_admin, nonce)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at
	`

	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	if user.Balance == nil {
		user.Balance = models.WeiFromInt64(0)
	}
	user.WalletAddress = utils.NormalizeAddress(user.WalletAddress)

	err := r.db.conn.QueryRowContext(
		ctx, query,
		user.ID, user.WalletAddress, user.Balance, user.IsAdmin, user.Nonce,
	).Scan(&user.ID, &user.CreatedAt, &user.UpdatedAt)

	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}

	return nil
}

// UpdateNonce replaces the login nonce for a user. Called on every login
// attempt so a captured signature cannot be replayed.
func (r *UserRepository) UpdateNonce(ctx context.Context, id uuid.UUID, nonce string) error {
	query := `
		UPDATE users
		SET nonce = $2, updated_at = NOW()
		WHERE id = $1
	`

	res, err := r.db.conn.ExecContext(ctx, query, id, nonce)
	if err != nil {
		return fmt.Errorf("failed to update nonce: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrUserNotFound
	}

	return nil
}

// SetBalance overwrites the cached balance with a fresh on-chain value.
func (r *UserRepository) SetBalance(ctx context.Context, id uuid.UUID, balance *models.Wei) error {
	query := `
		UPDATE users
		SET balance = $2, updated_at = NOW()
		WHERE id = $1
	`

	res, err := r.db.conn.ExecContext(ctx, query, id, balance)
	if err != nil {
		return fmt.Errorf("failed to update balance: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrUserNotFound
	}

	return nil
}

// SetAdmin grants or revokes the admin flag.
func (r *UserRepository) SetAdmin(ctx context.Context, id uuid.UUID, isAdmin bool) error {
	query := `
		UPDATE users
		SET is_admin = $2, updated_at = NOW()
		WHERE id = $1
	`

	res, err := r.db.conn.ExecContext(ctx, query, id, isAdmin)
	if err != nil {
		return fmt.Errorf("failed to update admin flag: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrUserNotFound
	}

	return nil
}

// List returns users ordered by creation time
func (r *UserRepository) List(ctx context.Context, limit, offset int) ([]*models.User, error) {
	query := `
		SELECT id, wallet_address, balance, is_admin, nonce, created_at, updated_at
		FROM users
		ORDER BY created_at
		LIMIT $1 OFFSET $2
	`

	var users []*models.User
	if err := r.db.conn.SelectContext(ctx, &users, query, limit, offset); err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}

	return users, nil
}
