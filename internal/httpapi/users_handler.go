package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"hashscope/internal/chain"
	"hashscope/internal/config"
	"hashscope/internal/models"
	"hashscope/internal/storage"
	"hashscope/internal/utils"
)

// accountStore is the slice of the user repository the handler needs.
type accountStore interface {
	GetByWallet(ctx context.Context, wallet string) (*models.User, error)
	SetBalance(ctx context.Context, id uuid.UUID, balance *models.Wei) error
}

// txLedger records and lists a wallet's transactions.
type txLedger interface {
	Create(ctx context.Context, tx *models.Transaction) error
	ListByWallet(ctx context.Context, wallet string, limit, offset int) ([]*models.Transaction, error)
}

// chainReader is the slice of the chain client the handler needs.
type chainReader interface {
	GetBalance(ctx context.Context, wallet string) (*big.Int, error)
	VerifyDeposit(ctx context.Context, txHash string) (*chain.DepositEvent, error)
}

// UsersHandler serves the account surface: balances, deposits, withdrawals
// and transaction history. All endpoints require a wallet session.
type UsersHandler struct {
	users  accountStore
	txs    txLedger
	chain  chainReader
	cfg    *config.Config
	logger *utils.Logger
}

func NewUsersHandler(users accountStore, txs txLedger, chainClient chainReader, cfg *config.Config) *UsersHandler {
	return &UsersHandler{
		users:  users,
		txs:    txs,
		chain:  chainClient,
		cfg:    cfg,
		logger: utils.NewLogger("users-handler"),
	}
}

func (h *UsersHandler) currentUser(w http.ResponseWriter, r *http.Request) (*models.User, bool) {
	wallet, ok := walletFromContext(r.Context())
	if !ok {
		utils.RespondWithError(w, http.StatusUnauthorized, "Missing session")
		return nil, false
	}
	user, err := h.users.GetByWallet(r.Context(), wallet)
	if errors.Is(err, storage.ErrUserNotFound) {
		utils.RespondWithError(w, http.StatusUnauthorized, "Unknown account")
		return nil, false
	}
	if err != nil {
		h.logger.Error("Failed to load account", "wallet", wallet, "error", err)
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to load account")
		return nil, false
	}
	return user, true
}

// Me handles GET /api/v1/users/me with the cached balance.
func (h *UsersHandler) Me(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		utils.RespondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, map[string]interface{}{
		"wallet_address": user.WalletAddress,
		"balance_wei":    user.Balance,
		"is_admin":       user.IsAdmin,
		"created_at":     user.CreatedAt,
	})
}

// Balance handles GET /api/v1/users/balance: the live deposited balance read
// from the contract, which also refreshes the cached copy.
func (h *UsersHandler) Balance(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		utils.RespondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	balance, err := h.chain.GetBalance(r.Context(), user.WalletAddress)
	if err != nil {
		h.logger.Error("Failed to read on-chain balance", "wallet", user.WalletAddress, "error", err)
		utils.RespondWithError(w, http.StatusServiceUnavailable, "Failed to read on-chain balance")
		return
	}

	if err := h.users.SetBalance(r.Context(), user.ID, models.NewWei(balance)); err != nil {
		// The live read already succeeded; a stale cache is not worth a 500.
		h.logger.Warn("Failed to refresh cached balance", "wallet", user.WalletAddress, "error", err)
	}

	utils.RespondWithJSON(w, http.StatusOK, map[string]interface{}{
		"wallet_address": user.WalletAddress,
		"balance_wei":    models.NewWei(balance),
		"balance_hsk":    chain.WeiToHSK(balance),
	})
}

// DepositInfo handles GET /api/v1/users/deposit-info.
func (h *UsersHandler) DepositInfo(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		utils.RespondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if _, ok := h.currentUser(w, r); !ok {
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, map[string]interface{}{
		"contract_address": h.cfg.Chain.ContractAddress,
		"rpc_url":          h.cfg.Chain.RPCURL,
		"instructions":     "Send HSK to the deposit contract from your wallet, then notify with the transaction hash.",
	})
}

type depositNotifyRequest struct {
	TxHash string `json:"tx_hash"`
}

// DepositNotify handles POST /api/v1/users/deposit-notify: the caller reports
// a deposit transaction hash, the receipt is verified on chain, and the
// confirmed amount is credited to the cached balance. A hash can only be
// credited once.
func (h *UsersHandler) DepositNotify(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		utils.RespondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	var req depositNotifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.TxHash == "" {
		utils.RespondWithError(w, http.StatusBadRequest, "Transaction hash is required")
		return
	}

	event, err := h.chain.VerifyDeposit(r.Context(), req.TxHash)
	if err != nil {
		h.logger.Warn("Deposit verification failed", "tx_hash", req.TxHash, "error", err)
		utils.RespondWithError(w, http.StatusBadRequest, "Deposit could not be verified on chain")
		return
	}
	if utils.NormalizeAddress(event.Wallet) != user.WalletAddress {
		utils.RespondWithError(w, http.StatusForbidden, "Deposit was made by a different wallet")
		return
	}

	tx := &models.Transaction{
		UserWallet: user.WalletAddress,
		TxHash:     req.TxHash,
		Amount:     models.NewWei(event.Amount),
		Type:       models.TxDeposit,
		Status:     models.TxConfirmed,
	}
	if err := h.txs.Create(r.Context(), tx); err != nil {
		if errors.Is(err, storage.ErrDuplicateTxHash) {
			utils.RespondWithError(w, http.StatusConflict, "Deposit already credited")
			return
		}
		h.logger.Error("Failed to record deposit", "tx_hash", req.TxHash, "error", err)
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to record deposit")
		return
	}

	credited := new(big.Int).Set(event.Amount)
	if user.Balance != nil {
		credited.Add(credited, user.Balance.BigInt())
	}
	if err := h.users.SetBalance(r.Context(), user.ID, models.NewWei(credited)); err != nil {
		h.logger.Error("Failed to credit cached balance", "wallet", user.WalletAddress, "error", err)
	}

	h.logger.Info("Deposit credited",
		"wallet", user.WalletAddress, "tx_hash", req.TxHash, "amount", chain.FormatWei(event.Amount))
	utils.RespondWithJSON(w, http.StatusOK, map[string]interface{}{
		"status":      "credited",
		"tx_hash":     req.TxHash,
		"amount_wei":  models.NewWei(event.Amount),
		"balance_wei": models.NewWei(credited),
	})
}

type withdrawRequest struct {
	AmountWei string `json:"amount_wei"`
}

// Withdraw handles POST /api/v1/users/withdraw: records a withdrawal request
// for asynchronous processing by the contract authority.
func (h *UsersHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		utils.RespondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	var req withdrawRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	amount, valid := new(big.Int).SetString(req.AmountWei, 10)
	if !valid || amount.Sign() <= 0 {
		utils.RespondWithError(w, http.StatusBadRequest, "Amount must be a positive wei value")
		return
	}

	balance, err := h.chain.GetBalance(r.Context(), user.WalletAddress)
	if err != nil {
		h.logger.Error("Failed to read on-chain balance", "wallet", user.WalletAddress, "error", err)
		utils.RespondWithError(w, http.StatusServiceUnavailable, "Failed to read on-chain balance")
		return
	}
	if balance.Cmp(amount) < 0 {
		utils.RespondWithError(w, http.StatusBadRequest, "Requested amount exceeds deposited balance")
		return
	}

	tx := &models.Transaction{
		UserWallet: user.WalletAddress,
		TxHash:     "withdraw-request-" + uuid.NewString(),
		Amount:     models.NewWei(amount),
		Type:       models.TxWithdrawRequest,
		Status:     models.TxPending,
	}
	if err := h.txs.Create(r.Context(), tx); err != nil {
		h.logger.Error("Failed to record withdrawal request", "wallet", user.WalletAddress, "error", err)
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to record withdrawal request")
		return
	}

	h.logger.Info("Withdrawal requested", "wallet", user.WalletAddress, "amount", chain.FormatWei(amount))
	utils.RespondWithJSON(w, http.StatusAccepted, map[string]interface{}{
		"status":     "pending",
		"request_id": tx.TxHash,
		"amount_wei": models.NewWei(amount),
	})
}

// Transactions handles GET /api/v1/users/transactions.
func (h *UsersHandler) Transactions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		utils.RespondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 && parsed <= 200 {
			limit = parsed
		}
	}
	offset := 0
	if raw := r.URL.Query().Get("offset"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed >= 0 {
			offset = parsed
		}
	}

	txs, err := h.txs.ListByWallet(r.Context(), user.WalletAddress, limit, offset)
	if err != nil {
		h.logger.Error("Failed to list transactions", "wallet", user.WalletAddress, "error", err)
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to list transactions")
		return
	}

	type txResponse struct {
		TxHash    string      `json:"tx_hash"`
		Amount    *models.Wei `json:"amount_wei"`
		Type      string      `json:"type"`
		Status    string      `json:"status"`
		Recipient string      `json:"recipient,omitempty"`
		CreatedAt time.Time   `json:"created_at"`
	}
	out := make([]txResponse, 0, len(txs))
	for _, tx := range txs {
		out = append(out, txResponse{
			TxHash:    tx.TxHash,
			Amount:    tx.Amount,
			Type:      string(tx.Type),
			Status:    string(tx.Status),
			Recipient: tx.Recipient,
			CreatedAt: tx.CreatedAt,
		})
	}
	utils.RespondWithJSON(w, http.StatusOK, map[string]interface{}{"transactions": out})
}
