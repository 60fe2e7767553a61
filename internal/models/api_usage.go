package models

import (
	"time"

	"github.com/google/uuid"
)

// APIUsage is one row per billable call. Rows are immutable once written
// except for IsBilled, which flips false -> true exactly once when a
// settlement sweep claims the row. Rows are never deleted (audit trail).
type APIUsage struct {
	ID        uuid.UUID `db:"id"`
	APIKeyID  uuid.UUID `db:"api_key_id"`
	Endpoint  string    `db:"endpoint"`
	Method    string    `db:"method"`
	Timestamp time.Time `db:"timestamp"`
	CostWei   int64     `db:"cost_wei"` // fixed per-call cost, wei
	IsBilled  bool      `db:"is_billed"`
}
