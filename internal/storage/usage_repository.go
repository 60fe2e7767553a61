package storage

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"hashscope/internal/models"
)

// UsageRepository handles usage record database operations
type UsageRepository struct {
	db *DB
}

// NewUsageRepository creates a new usage repository
func NewUsageRepository(db *DB) *UsageRepository {
	return &UsageRepository{
		db: db,
	}
}

// Create appends one unbilled usage record
func (r *UsageRepository) Create(ctx context.Context, usage *models.APIUsage) error {
	query := `
		INSERT INTO api_usages (id, api_key_id, endpoint, method, timestamp, cost_wei, is_billed)
		VALUES ($1, $2, $3, $4, $5, $6, FALSE)
		RETURNING id
	`

	if usage.ID == uuid.Nil {
		usage.ID = uuid.New()
	}

	err := r.db.conn.QueryRowContext(
		ctx, query,
		usage.ID, usage.APIKeyID, usage.Endpoint, usage.Method, usage.Timestamp, usage.CostWei,
	).Scan(&usage.ID)

	if err != nil {
		return fmt.Errorf("failed to create usage record: %w", err)
	}

	return nil
}

// CountUnbilled returns the number of unbilled records for a key
func (r *UsageRepository) CountUnbilled(ctx context.Context, apiKeyID uuid.UUID) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM api_usages WHERE api_key_id = $1 AND is_billed = FALSE`

	if err := r.db.conn.GetContext(ctx, &count, query, apiKeyID); err != nil {
		return 0, fmt.Errorf("failed to count unbilled usage: %w", err)
	}

	return count, nil
}

// ClaimUnbilled atomically claims the unbilled batch for a key: inside one
// database transaction it locks the unbilled rows, and if at least threshold
// rows exist, flips them all to billed and returns the claimed snapshot.
// Below the threshold nothing is claimed and an empty slice is returned.
//
// Because the flip happens in the same transaction as the read, two
// concurrent sweeps for the same key can never claim overlapping rows:
// the second one re-reads after the first commits and sees an empty batch.
func (r *UsageRepository) ClaimUnbilled(ctx context.Context, apiKeyID uuid.UUID, threshold int) ([]*models.APIUsage, error) {
	tx, err := r.db.conn.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin claim transaction: %w", err)
	}
	defer tx.Rollback()

	var batch []*models.APIUsage
	selectQuery := `
		SELECT id, api_key_id, endpoint, method, timestamp, cost_wei, is_billed
		FROM api_usages
		WHERE api_key_id = $1 AND is_billed = FALSE
		ORDER BY timestamp, id
		FOR UPDATE
	`
	if err := tx.SelectContext(ctx, &batch, selectQuery, apiKeyID); err != nil {
		return nil, fmt.Errorf("failed to read unbilled usage: %w", err)
	}

	if len(batch) < threshold {
		return nil, nil
	}

	ids := make([]uuid.UUID, len(batch))
	for i, usage := range batch {
		ids[i] = usage.ID
	}

	updateQuery := `UPDATE api_usages SET is_billed = TRUE WHERE id = ANY($1)`
	res, err := tx.ExecContext(ctx, updateQuery, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("failed to mark usage billed: %w", err)
	}
	if n, _ := res.RowsAffected(); n != int64(len(ids)) {
		return nil, fmt.Errorf("claimed %d usage rows, marked %d", len(ids), n)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit claim: %w", err)
	}

	for _, usage := range batch {
		usage.IsBilled = true
	}
	return batch, nil
}

// EndpointUsage aggregates calls per endpoint for one key
type EndpointUsage struct {
	Endpoint   string `db:"endpoint"`
	Method     string `db:"method"`
	CallCount  int64  `db:"call_count"`
	TotalCost  int64  `db:"total_cost"`
	LastUsedAt string `db:"last_used_at"`
}

// HistoryByKey returns per-endpoint aggregates for a key's usage history
func (r *UsageRepository) HistoryByKey(ctx context.Context, apiKeyID uuid.UUID) ([]*EndpointUsage, error) {
	query := `
		SELECT endpoint, method,
		       COUNT(*) AS call_count,
		       COALESCE(SUM(cost_wei), 0) AS total_cost,
		       MAX(timestamp)::text AS last_used_at
		FROM api_usages
		WHERE api_key_id = $1
		GROUP BY endpoint, method
		ORDER BY call_count DESC
	`

	var history []*EndpointUsage
	if err := r.db.conn.SelectContext(ctx, &history, query, apiKeyID); err != nil {
		return nil, fmt.Errorf("failed to load usage history: %w", err)
	}

	return history, nil
}
