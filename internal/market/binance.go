package market

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"hashscope/internal/config"
	"hashscope/internal/utils"
)

const defaultBinanceBaseURL = "https://api.binance.com"

// BinanceClient reads last-trade prices from the Binance spot API.
type BinanceClient struct {
	httpClient *http.Client
	baseURL    string
	cfg        config.MarketConfig
	logger     *utils.Logger
}

// NewBinanceClient creates a Binance client. baseURL is overridable for tests;
// empty means the public API.
func NewBinanceClient(cfg config.MarketConfig, baseURL string) *BinanceClient {
	if baseURL == "" {
		baseURL = defaultBinanceBaseURL
	}
	return &BinanceClient{
		httpClient: &http.Client{Timeout: cfg.RequestTimeout},
		baseURL:    baseURL,
		cfg:        cfg,
		logger:     utils.NewLogger("binance"),
	}
}

// binanceTrade is the slice of the /api/v3/trades entry this package reads.
// Binance serializes prices as decimal strings.
type binanceTrade struct {
	Price string `json:"price"`
}

// LastPrice returns the most recent trade price for a symbol like "BTCUSDT".
func (c *BinanceClient) LastPrice(ctx context.Context, symbol string) (float64, error) {
	return withRetries(ctx, c.cfg, c.logger, "binance", func(ctx context.Context) (float64, error) {
		return c.fetchLastTrade(ctx, symbol)
	})
}

func (c *BinanceClient) fetchLastTrade(ctx context.Context, symbol string) (float64, error) {
	endpoint := fmt.Sprintf("%s/api/v3/trades?%s", c.baseURL, url.Values{
		"symbol": {symbol},
		"limit":  {"1"},
	}.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: binance %s: %v", ErrUnavailable, symbol, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("%w: binance %s returned HTTP %d", ErrUnavailable, symbol, resp.StatusCode)
	}

	var trades []binanceTrade
	if err := json.NewDecoder(resp.Body).Decode(&trades); err != nil {
		return 0, &SchemaError{Source: "binance", Detail: fmt.Sprintf("not a trade array: %v", err)}
	}
	if len(trades) == 0 {
		return 0, fmt.Errorf("%w: binance has no trades for %s", ErrUnavailable, symbol)
	}
	if trades[0].Price == "" {
		return 0, &SchemaError{Source: "binance", Detail: "trade entry missing price field"}
	}

	price, err := strconv.ParseFloat(trades[0].Price, 64)
	if err != nil {
		return 0, &SchemaError{Source: "binance", Detail: fmt.Sprintf("price %q is not numeric", trades[0].Price)}
	}
	return price, nil
}
