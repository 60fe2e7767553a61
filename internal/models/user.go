package models

import (
	"time"

	"github.com/google/uuid"
)

// User represents a wallet-identified account. The wallet address is stored
// in normalized (lower-case) form; Balance is an off-chain cache only, the
// authoritative balance lives in the deposit contract.
type User struct {
	ID            uuid.UUID `db:"id"`
	WalletAddress string    `db:"wallet_address"`
	Balance       *Wei      `db:"balance"`
	IsAdmin       bool      `db:"is_admin"`
	Nonce         string    `db:"nonce"` // single-use login nonce, rotated on every attempt
	CreatedAt     time.Time `db:"created_at"`
	UpdatedAt     time.Time `db:"updated_at"`
}
