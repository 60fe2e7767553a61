package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hashscope/internal/audit"
	"hashscope/internal/models"
)

func TestAuditMiddlewareRecordsMeteredCall(t *testing.T) {
	tempDir := t.TempDir()
	trail, err := audit.NewTrail(filepath.Join(tempDir, "calls-%s.jsonl"), 10*1024, 5, 100, 50*time.Millisecond)
	require.NoError(t, err)

	handler := AuditMiddleware(trail, 100_000_000_000_000)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	key := &models.APIKey{ID: uuid.New(), KeyID: "hsk_audited", UserID: uuid.New()}
	req := httptest.NewRequest(http.MethodGet, "/api/v1/crypto/btc/usd", nil)
	req = req.WithContext(context.WithValue(req.Context(), APIKeyRecordKey, key))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	trail.Shutdown()

	matches, err := filepath.Glob(filepath.Join(tempDir, "calls-*.jsonl"))
	require.NoError(t, err)
	require.Len(t, matches, 1)

	content, err := os.ReadFile(matches[0])
	require.NoError(t, err)
	assert.Contains(t, string(content), "hsk_audited")
	assert.Contains(t, string(content), "/api/v1/crypto/btc/usd")
}

func TestAuditMiddlewareNilTrailPassesThrough(t *testing.T) {
	handler := AuditMiddleware(nil, 0)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/crypto/prices", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
}
