package market

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"hashscope/internal/config"
	"hashscope/internal/utils"
)

const defaultUpbitBaseURL = "https://api.upbit.com"

// UpbitClient reads ticker prices from the Upbit API.
type UpbitClient struct {
	httpClient *http.Client
	baseURL    string
	cfg        config.MarketConfig
	logger     *utils.Logger
}

// NewUpbitClient creates an Upbit client. baseURL is overridable for tests;
// empty means the public API.
func NewUpbitClient(cfg config.MarketConfig, baseURL string) *UpbitClient {
	if baseURL == "" {
		baseURL = defaultUpbitBaseURL
	}
	return &UpbitClient{
		httpClient: &http.Client{Timeout: cfg.RequestTimeout},
		baseURL:    baseURL,
		cfg:        cfg,
		logger:     utils.NewLogger("upbit"),
	}
}

// upbitTicker is the slice of the /v1/ticker entry this package reads.
type upbitTicker struct {
	TradePrice *float64 `json:"trade_price"`
}

// TickerPrice returns the last trade price for a market code like "KRW-BTC".
func (c *UpbitClient) TickerPrice(ctx context.Context, marketCode string) (float64, error) {
	return withRetries(ctx, c.cfg, c.logger, "upbit", func(ctx context.Context) (float64, error) {
		return c.fetchTicker(ctx, marketCode)
	})
}

func (c *UpbitClient) fetchTicker(ctx context.Context, marketCode string) (float64, error) {
	endpoint := fmt.Sprintf("%s/v1/ticker?%s", c.baseURL, url.Values{
		"markets": {marketCode},
	}.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: upbit %s: %v", ErrUnavailable, marketCode, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("%w: upbit %s returned HTTP %d", ErrUnavailable, marketCode, resp.StatusCode)
	}

	var tickers []upbitTicker
	if err := json.NewDecoder(resp.Body).Decode(&tickers); err != nil {
		return 0, &SchemaError{Source: "upbit", Detail: fmt.Sprintf("not a ticker array: %v", err)}
	}
	if len(tickers) == 0 {
		return 0, fmt.Errorf("%w: upbit has no ticker for %s", ErrUnavailable, marketCode)
	}
	if tickers[0].TradePrice == nil {
		return 0, &SchemaError{Source: "upbit", Detail: "ticker entry missing trade_price field"}
	}
	return *tickers[0].TradePrice, nil
}
