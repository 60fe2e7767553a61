package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"hashscope/internal/models"
	"hashscope/internal/utils"
)

// TransactionRepository handles settlement/deposit/withdraw transaction rows
type TransactionRepository struct {
	db *DB
}

// NewTransactionRepository creates a new transaction repository
func NewTransactionRepository(db *DB) *TransactionRepository {
	return &TransactionRepository{
		db: db,
	}
}

const txColumns = `
	id, user_wallet, tx_hash, amount, tx_type, status, recipient,
	created_at, updated_at
`

// Create inserts a transaction row. tx_hash carries a unique constraint, so
// replaying a deposit notification surfaces as ErrDuplicateTxHash.
func (r *TransactionRepository) Create(ctx context.Context, tx *models.Transaction) error {
	query := `
		INSERT INTO transactions (id, user_wallet, tx_hash, amount, tx_type, status, recipient)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at
	`

	if tx.ID == uuid.Nil {
		tx.ID = uuid.New()
	}
	tx.UserWallet = utils.NormalizeAddress(tx.UserWallet)
	tx.Recipient = utils.NormalizeAddress(tx.Recipient)

	err := r.db.conn.QueryRowContext(
		ctx, query,
		tx.ID, tx.UserWallet, tx.TxHash, tx.Amount, tx.Type, tx.Status, tx.Recipient,
	).Scan(&tx.ID, &tx.CreatedAt, &tx.UpdatedAt)

	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return ErrDuplicateTxHash
		}
		return fmt.Errorf("failed to create transaction: %w", err)
	}

	return nil
}

// GetByHash retrieves a transaction by its on-chain (or synthetic) hash
func (r *TransactionRepository) GetByHash(ctx context.Context, txHash string) (*models.Transaction, error) {
	var tx models.Transaction
	query := `SELECT ` + txColumns + ` FROM transactions WHERE tx_hash = $1`

	err := r.db.conn.GetContext(ctx, &tx, query, txHash)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrTransactionNotFound
		}
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}

	return &tx, nil
}

// UpdateStatus moves a transaction to a new status. Terminal rows are left
// untouched so a late receipt poll cannot regress confirmed -> pending.
func (r *TransactionRepository) UpdateStatus(ctx context.Context, txHash string, status models.TxStatus) error {
	query := `
		UPDATE transactions
		SET status = $2, updated_at = NOW()
		WHERE tx_hash = $1 AND status = 'pending'
	`

	res, err := r.db.conn.ExecContext(ctx, query, txHash, status)
	if err != nil {
		return fmt.Errorf("failed to update transaction status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		// Either unknown hash or already terminal; distinguish for callers.
		if _, err := r.GetByHash(ctx, txHash); err != nil {
			return err
		}
	}

	return nil
}

// ListByWallet returns a user's transactions, newest first
func (r *TransactionRepository) ListByWallet(ctx context.Context, wallet string, limit, offset int) ([]*models.Transaction, error) {
	query := `
		SELECT ` + txColumns + `
		FROM transactions
		WHERE user_wallet = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`

	var txs []*models.Transaction
	err := r.db.conn.SelectContext(ctx, &txs, query, utils.NormalizeAddress(wallet), limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}

	return txs, nil
}

// ListPending returns non-terminal transactions for receipt polling, oldest
// first. limit/offset page the result so adoption can walk an arbitrarily
// large backlog.
func (r *TransactionRepository) ListPending(ctx context.Context, limit, offset int) ([]*models.Transaction, error) {
	query := `
		SELECT ` + txColumns + `
		FROM transactions
		WHERE status = 'pending' AND tx_hash NOT LIKE 'failed-%'
		ORDER BY created_at
		LIMIT $1 OFFSET $2
	`

	var txs []*models.Transaction
	if err := r.db.conn.SelectContext(ctx, &txs, query, limit, offset); err != nil {
		return nil, fmt.Errorf("failed to list pending transactions: %w", err)
	}

	return txs, nil
}
