package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hashscope/internal/config"
	"hashscope/internal/middleware"
	"hashscope/internal/models"
	"hashscope/internal/storage"
	"hashscope/internal/utils"
)

type fakeKeyManager struct {
	keys      map[uuid.UUID]*models.APIKey
	createErr error
}

func newFakeKeyManager() *fakeKeyManager {
	return &fakeKeyManager{keys: make(map[uuid.UUID]*models.APIKey)}
}

func (f *fakeKeyManager) Create(_ context.Context, key *models.APIKey) error {
	if f.createErr != nil {
		return f.createErr
	}
	if key.ID == uuid.Nil {
		key.ID = uuid.New()
	}
	key.CreatedAt = time.Now().UTC()
	copied := *key
	f.keys[key.ID] = &copied
	return nil
}

func (f *fakeKeyManager) GetByID(_ context.Context, id uuid.UUID) (*models.APIKey, error) {
	key, ok := f.keys[id]
	if !ok {
		return nil, storage.ErrAPIKeyNotFound
	}
	copied := *key
	return &copied, nil
}

func (f *fakeKeyManager) ListByUser(_ context.Context, userID uuid.UUID) ([]*models.APIKey, error) {
	var out []*models.APIKey
	for _, key := range f.keys {
		if key.UserID == userID {
			copied := *key
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (f *fakeKeyManager) Deactivate(_ context.Context, id uuid.UUID) error {
	key, ok := f.keys[id]
	if !ok {
		return storage.ErrAPIKeyNotFound
	}
	key.Active = false
	return nil
}

type fakeUsageHistory struct {
	history map[uuid.UUID][]*storage.EndpointUsage
}

func (f *fakeUsageHistory) HistoryByKey(_ context.Context, apiKeyID uuid.UUID) ([]*storage.EndpointUsage, error) {
	return f.history[apiKeyID], nil
}

func keysTestConfig() *config.Config {
	return &config.Config{
		JWTSecret: []byte("test-secret"),
		Billing: config.BillingConfig{
			DefaultRateLimit: 60,
			KeyExpiryDays:    365,
		},
	}
}

const testWallet = "0xf39fd6e51aad88f6f4ce6ab8827279cfffb92266"

func keysFixture(t *testing.T) (*APIKeysHandler, *fakeKeyManager, *fakeUsageHistory, *models.User) {
	t.Helper()
	users := newFakeUserAccounts()
	require.NoError(t, users.Create(context.Background(), &models.User{WalletAddress: testWallet}))
	user, err := users.GetByWallet(context.Background(), testWallet)
	require.NoError(t, err)

	keys := newFakeKeyManager()
	usage := &fakeUsageHistory{history: make(map[uuid.UUID][]*storage.EndpointUsage)}
	handler := NewAPIKeysHandler(keys, usage, users, keysTestConfig())
	return handler, keys, usage, user
}

// sessionRequest builds a request carrying the wallet the JWT middleware
// would have stored.
func sessionRequest(method, path string, body io.Reader, wallet string) *http.Request {
	req := httptest.NewRequest(method, path, body)
	ctx := context.WithValue(req.Context(), middleware.WalletKey, utils.NormalizeAddress(wallet))
	return req.WithContext(ctx)
}

func TestCreateKeyReturnsSecretOnce(t *testing.T) {
	handler, keys, _, user := keysFixture(t)

	body := bytes.NewBufferString(`{"name": "trading bot"}`)
	req := sessionRequest(http.MethodPost, "/api/v1/keys", body, testWallet)
	rec := httptest.NewRecorder()
	handler.Handle(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)

	var resp struct {
		ID                 string `json:"id"`
		KeyID              string `json:"key_id"`
		Name               string `json:"name"`
		Active             bool   `json:"active"`
		RateLimitPerMinute int    `json:"rate_limit_per_minute"`
		Secret             string `json:"secret"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, strings.HasPrefix(resp.KeyID, "hsk_"))
	assert.NotEmpty(t, resp.Secret)
	assert.Equal(t, "trading bot", resp.Name)
	assert.True(t, resp.Active)
	assert.Equal(t, 60, resp.RateLimitPerMinute, "default rate limit applies when none requested")

	// Only the hash is stored, never the plaintext secret.
	id, err := uuid.Parse(resp.ID)
	require.NoError(t, err)
	stored := keys.keys[id]
	require.NotNil(t, stored)
	assert.Equal(t, user.ID, stored.UserID)
	assert.NotEqual(t, resp.Secret, stored.SecretHash)
	assert.NotContains(t, stored.SecretHash, resp.Secret)
	require.NotNil(t, stored.ExpiresAt)
	assert.WithinDuration(t, time.Now().UTC().AddDate(0, 0, 365), *stored.ExpiresAt, time.Minute)
}

func TestCreateKeyRequiresName(t *testing.T) {
	handler, _, _, _ := keysFixture(t)

	req := sessionRequest(http.MethodPost, "/api/v1/keys", bytes.NewBufferString(`{}`), testWallet)
	rec := httptest.NewRecorder()
	handler.Handle(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListKeysOmitsSecrets(t *testing.T) {
	handler, keys, _, user := keysFixture(t)
	require.NoError(t, keys.Create(context.Background(), &models.APIKey{
		KeyID:      "hsk_listed",
		SecretHash: "secret-hash",
		UserID:     user.ID,
		Name:       "first",
		Active:     true,
	}))

	req := sessionRequest(http.MethodGet, "/api/v1/keys", nil, testWallet)
	rec := httptest.NewRecorder()
	handler.Handle(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "hsk_listed")
	assert.NotContains(t, rec.Body.String(), "secret-hash")
}

func TestRevokeKeyDeactivates(t *testing.T) {
	handler, keys, _, user := keysFixture(t)
	key := &models.APIKey{KeyID: "hsk_doomed", UserID: user.ID, Name: "doomed", Active: true}
	require.NoError(t, keys.Create(context.Background(), key))

	req := sessionRequest(http.MethodDelete, "/api/v1/keys/"+key.ID.String(), nil, testWallet)
	rec := httptest.NewRecorder()
	handler.Handle(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, keys.keys[key.ID].Active)
}

func TestRevokeOtherUsersKeyIsNotFound(t *testing.T) {
	handler, keys, _, _ := keysFixture(t)
	// Key owned by a different user.
	key := &models.APIKey{KeyID: "hsk_other", UserID: uuid.New(), Name: "other", Active: true}
	require.NoError(t, keys.Create(context.Background(), key))

	req := sessionRequest(http.MethodDelete, "/api/v1/keys/"+key.ID.String(), nil, testWallet)
	rec := httptest.NewRecorder()
	handler.Handle(rec, req)

	// Existence is not revealed to non-owners.
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.True(t, keys.keys[key.ID].Active)
}

func TestRevokeInvalidKeyID(t *testing.T) {
	handler, _, _, _ := keysFixture(t)

	req := sessionRequest(http.MethodDelete, "/api/v1/keys/not-a-uuid", nil, testWallet)
	rec := httptest.NewRecorder()
	handler.Handle(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUsageHistoryForOwnedKey(t *testing.T) {
	handler, keys, usage, user := keysFixture(t)
	key := &models.APIKey{KeyID: "hsk_used", UserID: user.ID, Name: "used", Active: true}
	require.NoError(t, keys.Create(context.Background(), key))
	usage.history[key.ID] = []*storage.EndpointUsage{
		{Endpoint: "/api/v1/crypto/btc/usd", Method: "GET", CallCount: 12, TotalCost: 1_200_000_000_000_000},
	}

	req := sessionRequest(http.MethodGet, "/api/v1/keys/"+key.ID.String()+"/usage", nil, testWallet)
	rec := httptest.NewRecorder()
	handler.Handle(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "/api/v1/crypto/btc/usd")
	assert.Contains(t, rec.Body.String(), "hsk_used")
}

func TestKeysRequireSession(t *testing.T) {
	handler, _, _, _ := keysFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/keys", nil)
	rec := httptest.NewRecorder()
	handler.Handle(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
