package models

import (
	"time"

	"github.com/google/uuid"
)

// TxType classifies a transaction row.
type TxType string

const (
	TxDeposit         TxType = "deposit"
	TxWithdraw        TxType = "withdraw"
	TxWithdrawRequest TxType = "withdraw_request"
	TxUsageDeduct     TxType = "usage_deduct"
)

// TxStatus is the settlement state of a transaction.
//
// pending -> confirmed or pending -> failed via receipt polling; a direct
// failed status (submission never reached the chain) is terminal immediately.
type TxStatus string

const (
	TxPending   TxStatus = "pending"
	TxConfirmed TxStatus = "confirmed"
	TxFailed    TxStatus = "failed"
)

// Terminal reports whether no further status change is expected.
func (s TxStatus) Terminal() bool {
	return s == TxConfirmed || s == TxFailed
}

// Transaction records one settlement attempt or deposit/withdraw event.
// TxHash is unique; when a submission never reached the chain a synthetic
// "failed-<uuid>" hash is recorded so the audit row can still be written.
type Transaction struct {
	ID         uuid.UUID `db:"id"`
	UserWallet string    `db:"user_wallet"` // normalized form
	TxHash     string    `db:"tx_hash"`
	Amount     *Wei      `db:"amount"`
	Type       TxType    `db:"tx_type"`
	Status     TxStatus  `db:"status"`
	Recipient  string    `db:"recipient"` // fee address for usage_deduct, else empty
	CreatedAt  time.Time `db:"created_at"`
	UpdatedAt  time.Time `db:"updated_at"`
}

// NewFailedTxHash returns a unique placeholder hash for a settlement attempt
// that never produced an on-chain transaction.
func NewFailedTxHash() string {
	return "failed-" + uuid.NewString()
}
