package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hashscope/internal/market"
)

type fakeMarketData struct {
	price   *market.Price
	prices  *market.PriceList
	premium *market.Premium
	err     error
}

func (f *fakeMarketData) BTCUSD(context.Context) (*market.Price, error)        { return f.price, f.err }
func (f *fakeMarketData) BTCKRW(context.Context) (*market.Price, error)        { return f.price, f.err }
func (f *fakeMarketData) USDTKRW(context.Context) (*market.Price, error)       { return f.price, f.err }
func (f *fakeMarketData) Prices(context.Context) (*market.PriceList, error)    { return f.prices, f.err }
func (f *fakeMarketData) KimchiPremium(context.Context) (*market.Premium, error) {
	return f.premium, f.err
}

func TestMarketHandlerReturnsPrice(t *testing.T) {
	handler := NewMarketHandler(&fakeMarketData{
		price: &market.Price{Currency: "USD", Price: 50000},
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/crypto/btc/usd", nil)
	rec := httptest.NewRecorder()
	handler.BTCUSD(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp market.Price
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "USD", resp.Currency)
	assert.Equal(t, 50000.0, resp.Price)
}

func TestMarketHandlerUnavailableUpstream(t *testing.T) {
	handler := NewMarketHandler(&fakeMarketData{err: market.ErrUnavailable})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/crypto/btc/usd", nil)
	rec := httptest.NewRecorder()
	handler.BTCUSD(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "Binance")
}

func TestMarketHandlerSchemaDriftIsUnavailable(t *testing.T) {
	handler := NewMarketHandler(&fakeMarketData{
		err: &market.SchemaError{Source: "upbit", Detail: "trade_price missing"},
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/crypto/btc/krw", nil)
	rec := httptest.NewRecorder()
	handler.BTCKRW(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	// Upstream schema details never leak to the caller.
	assert.NotContains(t, rec.Body.String(), "trade_price")
}

func TestMarketHandlerPremiumMessage(t *testing.T) {
	handler := NewMarketHandler(&fakeMarketData{err: market.ErrUnavailable})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/crypto/kimchi-premium", nil)
	rec := httptest.NewRecorder()
	handler.KimchiPremium(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "Failed to retrieve necessary price information")
}
