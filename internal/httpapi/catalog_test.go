package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCatalogListSortsByCategoryThenName(t *testing.T) {
	catalog := NewCatalog()
	catalog.Register(CatalogEntry{Name: "prices", Category: "crypto", Path: "/api/v1/crypto/prices"})
	catalog.Register(CatalogEntry{Name: "btc-usd", Category: "crypto", Path: "/api/v1/crypto/btc/usd"})

	entries := catalog.List()
	require.Len(t, entries, 2)
	assert.Equal(t, "btc-usd", entries[0].Name)
	assert.Equal(t, "prices", entries[1].Name)
}

func TestCatalogHandlerListsEndpoints(t *testing.T) {
	catalog := NewCatalog()
	catalog.Register(CatalogEntry{
		Name:        "btc-usd",
		Category:    "crypto",
		Path:        "/api/v1/crypto/btc/usd",
		Method:      http.MethodGet,
		Description: "BTC price in USD from Binance",
		CostWei:     100_000_000_000_000,
	})
	handler := NewCatalogHandler(catalog)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/catalog", nil)
	rec := httptest.NewRecorder()
	handler.List(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		APIs []CatalogEntry `json:"apis"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.APIs, 1)
	assert.Equal(t, "/api/v1/crypto/btc/usd", resp.APIs[0].Path)
	assert.Equal(t, int64(100_000_000_000_000), resp.APIs[0].CostWei)
}

func TestCatalogHandlerRejectsNonGet(t *testing.T) {
	handler := NewCatalogHandler(NewCatalog())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/catalog", nil)
	rec := httptest.NewRecorder()
	handler.List(rec, req)

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
