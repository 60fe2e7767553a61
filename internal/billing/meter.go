package billing

import (
	"context"
	"errors"
	"math/big"
	"time"

	"github.com/google/uuid"

	"hashscope/internal/chain"
	"hashscope/internal/config"
	"hashscope/internal/models"
	"hashscope/internal/utils"
)

// UsageStore persists usage records and claims unbilled batches.
type UsageStore interface {
	Create(ctx context.Context, usage *models.APIUsage) error
	ClaimUnbilled(ctx context.Context, apiKeyID uuid.UUID, threshold int) ([]*models.APIUsage, error)
}

// KeyStore updates per-key call statistics.
type KeyStore interface {
	Touch(ctx context.Context, id uuid.UUID) error
}

// UserStore resolves the wallet behind an API key.
type UserStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// TransactionStore records settlement attempts.
type TransactionStore interface {
	Create(ctx context.Context, tx *models.Transaction) error
}

// Settler submits a usage deduction to the chain. *chain.Client satisfies it.
type Settler interface {
	DeductForUsage(ctx context.Context, wallet string, amount *big.Int) (string, error)
}

// Tracker follows a submitted hash until it reaches a terminal status.
// *chain.ReceiptWorker satisfies it; may be nil.
type Tracker interface {
	Track(ctx context.Context, txHash string) error
}

// Meter records billable API calls and settles them on chain once a key
// accumulates a full unbilled batch. Recording is synchronous and must
// succeed for the call to count; settlement is best-effort and its failures
// never surface to the caller: a claimed batch that fails to settle is
// written off as a failed transaction row, not retried.
type Meter struct {
	usage        UsageStore
	keys         KeyStore
	users        UserStore
	transactions TransactionStore
	settler      Settler
	tracker      Tracker
	cfg          config.BillingConfig
	feeRecipient string
	locks        *keyLocks
	logger       *utils.Logger
}

// NewMeter creates a usage meter. tracker may be nil when no receipt worker
// is running.
func NewMeter(
	usage UsageStore,
	keys KeyStore,
	users UserStore,
	transactions TransactionStore,
	settler Settler,
	tracker Tracker,
	cfg config.BillingConfig,
	feeRecipient string,
) *Meter {
	return &Meter{
		usage:        usage,
		keys:         keys,
		users:        users,
		transactions: transactions,
		settler:      settler,
		tracker:      tracker,
		cfg:          cfg,
		feeRecipient: utils.NormalizeAddress(feeRecipient),
		locks:        newKeyLocks(),
		logger:       utils.NewLogger("billing"),
	}
}

// Record books one billable call against key and, if the key's unbilled
// count reached the sweep threshold, settles the batch. A storage failure is
// returned so the caller can refuse the request; settlement problems are not.
func (m *Meter) Record(ctx context.Context, key *models.APIKey, endpoint, method string) error {
	usage := &models.APIUsage{
		APIKeyID:  key.ID,
		Endpoint:  endpoint,
		Method:    method,
		Timestamp: time.Now().UTC(),
		CostWei:   m.cfg.CostPerCallWei,
	}
	if err := m.usage.Create(ctx, usage); err != nil {
		return err
	}

	if err := m.keys.Touch(ctx, key.ID); err != nil {
		m.logger.Warn("Failed to update key statistics", "key_id", key.KeyID, "error", err)
	}

	m.Sweep(ctx, key)
	return nil
}

// Sweep claims the key's unbilled batch and settles it if it reached the
// threshold. Sweeps for the same key are serialized, so at most one
// settlement is in flight per batch even under concurrent requests.
func (m *Meter) Sweep(ctx context.Context, key *models.APIKey) {
	unlock := m.locks.acquire(key.ID)
	defer unlock()

	// Resolve the wallet before claiming. Every claimed batch must end in
	// a Transaction row, so nothing that can fail without producing one is
	// allowed to run after the claim; an unresolved wallet leaves the
	// batch unbilled for the next sweep.
	user, err := m.users.GetByID(ctx, key.UserID)
	if err != nil {
		m.logger.Error("Failed to resolve wallet for settlement",
			"key_id", key.KeyID, "user_id", key.UserID, "error", err)
		return
	}

	batch, err := m.usage.ClaimUnbilled(ctx, key.ID, m.cfg.SweepThreshold)
	if err != nil {
		m.logger.Error("Failed to claim unbilled usage", "key_id", key.KeyID, "error", err)
		return
	}
	if len(batch) == 0 {
		return
	}

	amount := big.NewInt(0)
	for _, usage := range batch {
		amount.Add(amount, big.NewInt(usage.CostWei))
	}

	hash, err := m.settler.DeductForUsage(ctx, user.WalletAddress, amount)
	status := models.TxPending
	if err != nil {
		status = models.TxFailed
		hash = models.NewFailedTxHash()
		if errors.Is(err, chain.ErrInsufficientFunds) {
			m.logger.Warn("Settlement skipped, wallet underfunded",
				"wallet", user.WalletAddress, "amount_wei", amount.String(), "records", len(batch))
		} else {
			m.logger.Error("Settlement submission failed",
				"wallet", user.WalletAddress, "amount_wei", amount.String(), "records", len(batch), "error", err)
		}
	}

	tx := &models.Transaction{
		UserWallet: user.WalletAddress,
		TxHash:     hash,
		Amount:     models.NewWei(amount),
		Type:       models.TxUsageDeduct,
		Status:     status,
		Recipient:  m.feeRecipient,
	}
	recorded := m.recordSettlement(ctx, tx) == nil

	if status == models.TxPending {
		if recorded {
			m.logger.Info("Usage batch settled",
				"wallet", user.WalletAddress, "amount_wei", amount.String(), "records", len(batch), "tx_hash", hash)
		}
		// Tracked even when the insert failed, so the receipt worker's
		// DLQ ends up holding the orphaned hash instead of nothing.
		if m.tracker != nil {
			if err := m.tracker.Track(ctx, hash); err != nil {
				m.logger.Warn("Failed to queue receipt tracking", "tx_hash", hash, "error", err)
			}
		}
	}
}

// settlementInsertAttempts bounds the retries for the Transaction insert
// that follows a settlement attempt.
const settlementInsertAttempts = 3

// recordSettlement inserts the Transaction row for a claimed batch. The row
// is what reconciliation and receipt polling key off, so transient insert
// failures are retried; if the insert still fails after an on-chain
// submission, every field needed to restore the row by hand is logged.
func (m *Meter) recordSettlement(ctx context.Context, tx *models.Transaction) error {
	var err error
	for attempt := 1; attempt <= settlementInsertAttempts; attempt++ {
		if err = m.transactions.Create(ctx, tx); err == nil {
			return nil
		}
		m.logger.Warn("Settlement ledger insert failed",
			"tx_hash", tx.TxHash, "attempt", attempt, "error", err)
	}
	m.logger.Error("Settlement has no ledger row, restore it manually",
		"tx_hash", tx.TxHash,
		"wallet", tx.UserWallet,
		"amount_wei", tx.Amount.BigInt().String(),
		"recipient", tx.Recipient,
		"tx_type", tx.Type,
		"status", tx.Status,
		"error", err)
	return err
}
