package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"hashscope/internal/auth"
	"hashscope/internal/config"
	"hashscope/internal/models"
	"hashscope/internal/storage"
	"hashscope/internal/utils"
)

// keyManager is the slice of the API key repository the handler needs.
type keyManager interface {
	Create(ctx context.Context, key *models.APIKey) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.APIKey, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]*models.APIKey, error)
	Deactivate(ctx context.Context, id uuid.UUID) error
}

// usageHistory reads per-endpoint aggregates for a key.
type usageHistory interface {
	HistoryByKey(ctx context.Context, apiKeyID uuid.UUID) ([]*storage.EndpointUsage, error)
}

// walletAccounts resolves the session wallet to an account.
type walletAccounts interface {
	GetByWallet(ctx context.Context, wallet string) (*models.User, error)
}

// APIKeysHandler manages a wallet's API keys. All endpoints require a wallet
// session token; a key is only ever visible to the wallet that owns it.
type APIKeysHandler struct {
	keys   keyManager
	usage  usageHistory
	users  walletAccounts
	cfg    *config.Config
	logger *utils.Logger
}

func NewAPIKeysHandler(keys keyManager, usage usageHistory, users walletAccounts, cfg *config.Config) *APIKeysHandler {
	return &APIKeysHandler{
		keys:   keys,
		usage:  usage,
		users:  users,
		cfg:    cfg,
		logger: utils.NewLogger("api-keys-handler"),
	}
}

// currentUser resolves the wallet stored by the JWT middleware.
func (h *APIKeysHandler) currentUser(w http.ResponseWriter, r *http.Request) (*models.User, bool) {
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

type createKeyRequest struct {
	Name               string `json:"name"`
	RateLimitPerMinute int    `json:"rate_limit_per_minute,omitempty"`
}

// keyResponse never carries the secret; CreatedKeyResponse is the one
// exception, returned once at creation time.
type keyResponse struct {
	ID                 string     `json:"id"`
	KeyID              string     `json:"key_id"`
	Name               string     `json:"name"`
	Active             bool       `json:"active"`
	RateLimitPerMinute int        `json:"rate_limit_per_minute"`
	CallCount          int64      `json:"call_count"`
	LastUsedAt         *time.Time `json:"last_used_at,omitempty"`
	ExpiresAt          *time.Time `json:"expires_at,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
}

type createdKeyResponse struct {
	keyResponse
	Secret string `json:"secret"`
}

func toKeyResponse(key *models.APIKey) keyResponse {
	return keyResponse{
		ID:                 key.ID.String(),
		KeyID:              key.KeyID,
		Name:               key.Name,
		Active:             key.Active,
		RateLimitPerMinute: key.RateLimitPerMinute,
		CallCount:          key.CallCount,
		LastUsedAt:         key.LastUsedAt,
		ExpiresAt:          key.ExpiresAt,
		CreatedAt:          key.CreatedAt,
	}
}

// Handle routes /api/v1/keys and its subpaths.
func (h *APIKeysHandler) Handle(w http.ResponseWriter, r *http.Request) {
	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/v1/keys"), "/")

	switch {
	case rest == "" && r.Method == http.MethodGet:
		h.list(w, r)
	case rest == "" && r.Method == http.MethodPost:
		h.create(w, r)
	case strings.HasSuffix(rest, "/usage") && r.Method == http.MethodGet:
		h.history(w, r, strings.TrimSuffix(rest, "/usage"))
	case rest != "" && r.Method == http.MethodDelete:
		h.revoke(w, r, rest)
	default:
		utils.RespondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

func (h *APIKeysHandler) create(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	var req createKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Name == "" {
		utils.RespondWithError(w, http.StatusBadRequest, "Key name is required")
		return
	}
	rateLimit := req.RateLimitPerMinute
	if rateLimit <= 0 {
		rateLimit = h.cfg.Billing.DefaultRateLimit
	}

	pair, err := auth.NewKeyPair()
	if err != nil {
		h.logger.Error("Failed to generate key pair", "error", err)
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to generate API key")
		return
	}

	expiresAt := time.Now().UTC().AddDate(0, 0, h.cfg.Billing.KeyExpiryDays)
	key := &models.APIKey{
		KeyID:              pair.KeyID,
		SecretHash:         pair.SecretHash,
		UserID:             user.ID,
		Name:               req.Name,
		Active:             true,
		RateLimitPerMinute: rateLimit,
		ExpiresAt:          &expiresAt,
	}
	if err := h.keys.Create(r.Context(), key); err != nil {
		h.logger.Error("Failed to store API key", "wallet", user.WalletAddress, "error", err)
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to create API key")
		return
	}

	h.logger.Info("API key created", "wallet", user.WalletAddress, "key_id", key.KeyID)

	// The plaintext secret is shown exactly once; only its hash is stored.
	utils.RespondWithJSON(w, http.StatusCreated, createdKeyResponse{
		keyResponse: toKeyResponse(key),
		Secret:      pair.Secret,
	})
}

func (h *APIKeysHandler) list(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	keys, err := h.keys.ListByUser(r.Context(), user.ID)
	if err != nil {
		h.logger.Error("Failed to list API keys", "wallet", user.WalletAddress, "error", err)
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to list API keys")
		return
	}

	out := make([]keyResponse, 0, len(keys))
	for _, key := range keys {
		out = append(out, toKeyResponse(key))
	}
	utils.RespondWithJSON(w, http.StatusOK, map[string]interface{}{"keys": out})
}

// ownedKey loads a key by path id and enforces ownership.
func (h *APIKeysHandler) ownedKey(w http.ResponseWriter, r *http.Request, rawID string, user *models.User) (*models.APIKey, bool) {
	id, err := uuid.Parse(rawID)
	if err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid key id")
		return nil, false
	}

	key, err := h.keys.GetByID(r.Context(), id)
	if errors.Is(err, storage.ErrAPIKeyNotFound) {
		utils.RespondWithError(w, http.StatusNotFound, "API key not found")
		return nil, false
	}
	if err != nil {
		h.logger.Error("Failed to load API key", "id", rawID, "error", err)
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to load API key")
		return nil, false
	}
	if key.UserID != user.ID {
		// Do not reveal that the key exists.
		utils.RespondWithError(w, http.StatusNotFound, "API key not found")
		return nil, false
	}
	return key, true
}

func (h *APIKeysHandler) revoke(w http.ResponseWriter, r *http.Request, rawID string) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	key, ok := h.ownedKey(w, r, rawID, user)
	if !ok {
		return
	}

	if err := h.keys.Deactivate(r.Context(), key.ID); err != nil {
		h.logger.Error("Failed to revoke API key", "key_id", key.KeyID, "error", err)
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to revoke API key")
		return
	}

	h.logger.Info("API key revoked", "wallet", user.WalletAddress, "key_id", key.KeyID)
	utils.RespondWithJSON(w, http.StatusOK, map[string]string{"status": "revoked"})
}

func (h *APIKeysHandler) history(w http.ResponseWriter, r *http.Request, rawID string) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	key, ok := h.ownedKey(w, r, rawID, user)
	if !ok {
		return
	}

	history, err := h.usage.HistoryByKey(r.Context(), key.ID)
	if err != nil {
		h.logger.Error("Failed to load usage history", "key_id", key.KeyID, "error", err)
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to load usage history")
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, map[string]interface{}{
		"key_id": key.KeyID,
		"usage":  history,
	})
}
