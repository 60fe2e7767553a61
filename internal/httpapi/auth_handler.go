package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"

	"hashscope/internal/auth"
	"hashscope/internal/config"
	"hashscope/internal/models"
	"hashscope/internal/storage"
	"hashscope/internal/utils"
)

// userAccounts is the slice of the user repository the auth handler needs.
type userAccounts interface {
	GetByWallet(ctx context.Context, wallet string) (*models.User, error)
	Create(ctx context.Context, user *models.User) error
	UpdateNonce(ctx context.Context, id uuid.UUID, nonce string) error
}

// AuthHandler implements the wallet signature login flow: the caller fetches
// a nonce bound to their wallet, signs the resulting message, and trades the
// signature for a session token. Accounts are created lazily on first nonce
// request.
type AuthHandler struct {
	users  userAccounts
	cfg    *config.Config
	logger *utils.Logger
}

func NewAuthHandler(users userAccounts, cfg *config.Config) *AuthHandler {
	return &AuthHandler{
		users:  users,
		cfg:    cfg,
		logger: utils.NewLogger("auth-handler"),
	}
}

type nonceRequest struct {
	WalletAddress string `json:"wallet_address"`
}

type nonceResponse struct {
	WalletAddress string `json:"wallet_address"`
	Nonce         string `json:"nonce"`
	Message       string `json:"message"`
}

// Nonce handles POST /api/v1/auth/nonce.
func (h *AuthHandler) Nonce(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		utils.RespondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req nonceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if !utils.IsValidAddress(req.WalletAddress) {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid wallet address")
		return
	}
	wallet := utils.NormalizeAddress(req.WalletAddress)

	nonce, err := auth.GenerateNonce()
	if err != nil {
		h.logger.Error("Failed to generate nonce", "error", err)
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to generate nonce")
		return
	}

	ctx := r.Context()
	user, err := h.users.GetByWallet(ctx, wallet)
	switch {
	case errors.Is(err, storage.ErrUserNotFound):
		user = &models.User{WalletAddress: wallet, Nonce: nonce}
		if err := h.users.Create(ctx, user); err != nil {
			h.logger.Error("Failed to create user", "wallet", wallet, "error", err)
			utils.RespondWithError(w, http.StatusInternalServerError, "Failed to create account")
			return
		}
	case err != nil:
		h.logger.Error("Failed to load user", "wallet", wallet, "error", err)
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to load account")
		return
	default:
		if err := h.users.UpdateNonce(ctx, user.ID, nonce); err != nil {
			h.logger.Error("Failed to rotate nonce", "wallet", wallet, "error", err)
			utils.RespondWithError(w, http.StatusInternalServerError, "Failed to issue nonce")
			return
		}
	}

	utils.RespondWithJSON(w, http.StatusOK, nonceResponse{
		WalletAddress: wallet,
		Nonce:         nonce,
		Message:       auth.AuthMessage(wallet, nonce),
	})
}

type verifyRequest struct {
	WalletAddress string `json:"wallet_address"`
	Signature     string `json:"signature"`
}

type verifyResponse struct {
	AccessToken   string `json:"access_token"`
	TokenType     string `json:"token_type"`
	ExpiresAt     int64  `json:"expires_at"`
	WalletAddress string `json:"wallet_address"`
}

// Verify handles POST /api/v1/auth/verify.
func (h *AuthHandler) Verify(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		utils.RespondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req verifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if !utils.IsValidAddress(req.WalletAddress) || req.Signature == "" {
		utils.RespondWithError(w, http.StatusBadRequest, "Wallet address and signature are required")
		return
	}
	wallet := utils.NormalizeAddress(req.WalletAddress)

	ctx := r.Context()
	user, err := h.users.GetByWallet(ctx, wallet)
	if errors.Is(err, storage.ErrUserNotFound) {
		utils.RespondWithError(w, http.StatusUnauthorized, "Unknown wallet, request a nonce first")
		return
	}
	if err != nil {
		h.logger.Error("Failed to load user", "wallet", wallet, "error", err)
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to load account")
		return
	}

	message := auth.AuthMessage(wallet, user.Nonce)
	ok, err := auth.VerifyWalletSignature(message, req.Signature, wallet)
	if err != nil || !ok {
		utils.RespondWithError(w, http.StatusUnauthorized, "Signature verification failed")
		return
	}

	// Burn the nonce so the signature cannot be replayed.
	newNonce, err := auth.GenerateNonce()
	if err == nil {
		err = h.users.UpdateNonce(ctx, user.ID, newNonce)
	}
	if err != nil {
		h.logger.Error("Failed to rotate nonce after login", "wallet", wallet, "error", err)
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to complete login")
		return
	}

	token, expiresAt, err := auth.GenerateJWT(wallet, h.cfg)
	if err != nil {
		h.logger.Error("Failed to issue session token", "wallet", wallet, "error", err)
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to issue session token")
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, verifyResponse{
		AccessToken:   token,
		TokenType:     "bearer",
		ExpiresAt:     expiresAt,
		WalletAddress: wallet,
	})
}
