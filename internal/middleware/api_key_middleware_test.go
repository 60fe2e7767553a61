package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hashscope/internal/auth"
	"hashscope/internal/config"
	"hashscope/internal/models"
)

const (
	testKeyID  = "hsk_0123456789abcdef0123456789abcdef"
	testSecret = "sk_0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcd"
)

type fakeKeyStore struct {
	keys map[string]*models.APIKey
}

func (s *fakeKeyStore) Lookup(_ context.Context, keyID string) (*models.APIKey, error) {
	key, ok := s.keys[keyID]
	if !ok {
		return nil, auth.ErrKeyNotFound
	}
	return key, nil
}

type fakeLimiter struct {
	allowed   bool
	remaining int
	err       error
}

func (l *fakeLimiter) AllowWithDetails(context.Context, string, int) (bool, int, time.Time, error) {
	if l.err != nil {
		return false, 0, time.Time{}, l.err
	}
	return l.allowed, l.remaining, time.Now().Add(time.Minute), nil
}

type fakeMeter struct {
	calls []string
	err   error
}

func (m *fakeMeter) Record(_ context.Context, _ *models.APIKey, endpoint, method string) error {
	if m.err != nil {
		return m.err
	}
	m.calls = append(m.calls, method+" "+endpoint)
	return nil
}

func newTestValidator(t *testing.T, active bool, expiresAt time.Time) *auth.Validator {
	t.Helper()

	store := &fakeKeyStore{keys: map[string]*models.APIKey{
		testKeyID: {
			ID:                 uuid.New(),
			KeyID:              testKeyID,
			SecretHash:         auth.HashSecret(testSecret),
			UserID:             uuid.New(),
			Active:             active,
			RateLimitPerMinute: 60,
			ExpiresAt:          &expiresAt,
		},
	}}
	return auth.NewValidator(store)
}

func runMiddleware(validator *auth.Validator, limiter RateLimitChecker, meter UsageRecorder, keyID, secret string) (*httptest.ResponseRecorder, bool) {
	reachedHandler := false
	handler := APIKeyMiddleware(validator, limiter, meter)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, reachedHandler = GetAPIKeyRecord(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/crypto/price", nil)
	if keyID != "" {
		req.Header.Set(HeaderKeyID, keyID)
	}
	if secret != "" {
		req.Header.Set(HeaderSecret, secret)
	}
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr, reachedHandler
}

func TestAPIKeyMiddlewareValidCredentials(t *testing.T) {
	validator := newTestValidator(t, true, time.Now().Add(time.Hour))
	meter := &fakeMeter{}

	rr, reached := runMiddleware(validator, &fakeLimiter{allowed: true, remaining: 4}, meter, testKeyID, testSecret)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, reached, "handler must see the key record in context")
	assert.Equal(t, []string{"GET /api/v1/crypto/price"}, meter.calls)
	assert.Equal(t, "4", rr.Header().Get("X-RateLimit-Remaining"))
}

func TestAPIKeyMiddlewareRejectsBadCredentials(t *testing.T) {
	validator := newTestValidator(t, true, time.Now().Add(time.Hour))

	cases := []struct {
		name   string
		keyID  string
		secret string
	}{
		{"missing both", "", ""},
		{"missing secret", testKeyID, ""},
		{"unknown key id", "hsk_ffffffffffffffffffffffffffffffff", testSecret},
		{"wrong secret", testKeyID, "sk_wrong"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr, reached := runMiddleware(validator, nil, &fakeMeter{}, tc.keyID, tc.secret)
			assert.Equal(t, http.StatusUnauthorized, rr.Code)
			assert.False(t, reached)
		})
	}
}

func TestAPIKeyMiddlewareRejectsInactiveKey(t *testing.T) {
	validator := newTestValidator(t, false, time.Now().Add(time.Hour))

	rr, reached := runMiddleware(validator, nil, &fakeMeter{}, testKeyID, testSecret)
	assert.Equal(t, http.StatusForbidden, rr.Code)
	assert.False(t, reached)
}

func TestAPIKeyMiddlewareRejectsExpiredKey(t *testing.T) {
	validator := newTestValidator(t, true, time.Now().Add(-time.Hour))

	rr, reached := runMiddleware(validator, nil, &fakeMeter{}, testKeyID, testSecret)
	assert.Equal(t, http.StatusForbidden, rr.Code)
	assert.False(t, reached)
}

func TestAPIKeyMiddlewareRateLimited(t *testing.T) {
	validator := newTestValidator(t, true, time.Now().Add(time.Hour))
	meter := &fakeMeter{}

	rr, reached := runMiddleware(validator, &fakeLimiter{allowed: false}, meter, testKeyID, testSecret)

	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.False(t, reached)
	assert.Empty(t, meter.calls, "throttled calls must not be billed")
}

func TestAPIKeyMiddlewareFailsOpenOnLimiterError(t *testing.T) {
	validator := newTestValidator(t, true, time.Now().Add(time.Hour))

	rr, reached := runMiddleware(validator, &fakeLimiter{err: errors.New("redis down")}, &fakeMeter{}, testKeyID, testSecret)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, reached)
}

func TestAPIKeyMiddlewareRefusesWhenMeteringFails(t *testing.T) {
	validator := newTestValidator(t, true, time.Now().Add(time.Hour))

	rr, reached := runMiddleware(validator, nil, &fakeMeter{err: errors.New("db down")}, testKeyID, testSecret)

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.False(t, reached, "unmetered calls must not be served")
}

func TestWalletJWTMiddleware(t *testing.T) {
	cfg := &config.Config{JWTSecret: []byte("test-secret")}
	wallet := "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed"

	token, _, err := auth.GenerateJWT(wallet, cfg)
	require.NoError(t, err)

	var gotWallet string
	handler := WalletJWTMiddleware(cfg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotWallet, _ = GetWallet(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	t.Run("valid token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/users/me", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, "0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed", gotWallet)
	})

	t.Run("missing token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/users/me", nil)
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("garbage token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/users/me", nil)
		req.Header.Set("Authorization", "Bearer not.a.token")
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})
}
