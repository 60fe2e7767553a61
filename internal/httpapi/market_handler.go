package httpapi

import (
	"context"
	"errors"
	"net/http"

	"hashscope/internal/market"
	"hashscope/internal/utils"
)

// marketData is the slice of the market service the handler needs.
type marketData interface {
	BTCUSD(ctx context.Context) (*market.Price, error)
	BTCKRW(ctx context.Context) (*market.Price, error)
	USDTKRW(ctx context.Context) (*market.Price, error)
	Prices(ctx context.Context) (*market.PriceList, error)
	KimchiPremium(ctx context.Context) (*market.Premium, error)
}

// MarketHandler serves the billable market data endpoints. Authentication
// and metering happen in the API key middleware before these run.
type MarketHandler struct {
	data   marketData
	logger *utils.Logger
}

func NewMarketHandler(data marketData) *MarketHandler {
	return &MarketHandler{
		data:   data,
		logger: utils.NewLogger("market-handler"),
	}
}

// respond maps upstream failures to 503; the caller was already billed for
// the attempt, matching the settlement-independent response policy.
func (h *MarketHandler) respond(w http.ResponseWriter, payload interface{}, err error, unavailableMsg string) {
	if err != nil {
		var schemaErr *market.SchemaError
		switch {
		case errors.As(err, &schemaErr):
			h.logger.Error("Upstream schema drift", "error", err)
			utils.RespondWithError(w, http.StatusServiceUnavailable, unavailableMsg)
		case errors.Is(err, market.ErrUnavailable):
			utils.RespondWithError(w, http.StatusServiceUnavailable, unavailableMsg)
		default:
			h.logger.Error("Market data fetch failed", "error", err)
			utils.RespondWithError(w, http.StatusServiceUnavailable, unavailableMsg)
		}
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, payload)
}

// BTCUSD handles GET /api/v1/crypto/btc/usd.
func (h *MarketHandler) BTCUSD(w http.ResponseWriter, r *http.Request) {
	price, err := h.data.BTCUSD(r.Context())
	h.respond(w, price, err, "Failed to retrieve BTC price from Binance")
}

// BTCKRW handles GET /api/v1/crypto/btc/krw.
func (h *MarketHandler) BTCKRW(w http.ResponseWriter, r *http.Request) {
	price, err := h.data.BTCKRW(r.Context())
	h.respond(w, price, err, "Failed to retrieve BTC price from Upbit")
}

// USDTKRW handles GET /api/v1/crypto/usdt/krw.
func (h *MarketHandler) USDTKRW(w http.ResponseWriter, r *http.Request) {
	price, err := h.data.USDTKRW(r.Context())
	h.respond(w, price, err, "Failed to retrieve USDT price from Upbit")
}

// Prices handles GET /api/v1/crypto/prices.
func (h *MarketHandler) Prices(w http.ResponseWriter, r *http.Request) {
	prices, err := h.data.Prices(r.Context())
	h.respond(w, prices, err, "Failed to retrieve cryptocurrency prices")
}

// KimchiPremium handles GET /api/v1/crypto/kimchi-premium.
func (h *MarketHandler) KimchiPremium(w http.ResponseWriter, r *http.Request) {
	premium, err := h.data.KimchiPremium(r.Context())
	h.respond(w, premium, err, "Failed to retrieve necessary price information")
}
