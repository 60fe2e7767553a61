package market

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"hashscope/internal/config"
	"hashscope/internal/utils"
)

const defaultFXBaseURL = "https://open.er-api.com"

// FXClient reads the USD/KRW spot rate from an open exchange-rate API.
type FXClient struct {
	httpClient *http.Client
	baseURL    string
	cfg        config.MarketConfig
	logger     *utils.Logger
}

// NewFXClient creates an exchange-rate client. baseURL is overridable for
// tests; empty means the public API.
func NewFXClient(cfg config.MarketConfig, baseURL string) *FXClient {
	if baseURL == "" {
		baseURL = defaultFXBaseURL
	}
	return &FXClient{
		httpClient: &http.Client{Timeout: cfg.RequestTimeout},
		baseURL:    baseURL,
		cfg:        cfg,
		logger:     utils.NewLogger("fx"),
	}
}

// fxResponse is the slice of the rate API response this package reads.
type fxResponse struct {
	Result string              `json:"result"`
	Rates  map[string]*float64 `json:"rates"`
}

// USDKRW returns the current USD/KRW exchange rate.
func (c *FXClient) USDKRW(ctx context.Context) (float64, error) {
	return withRetries(ctx, c.cfg, c.logger, "fx", c.fetchRate)
}

func (c *FXClient) fetchRate(ctx context.Context) (float64, error) {
	endpoint := c.baseURL + "/v6/latest/USD"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: exchange rate: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("%w: exchange rate API returned HTTP %d", ErrUnavailable, resp.StatusCode)
	}

	var body fxResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, &SchemaError{Source: "fx", Detail: fmt.Sprintf("not a rate object: %v", err)}
	}
	if body.Result != "success" {
		return 0, fmt.Errorf("%w: exchange rate API result %q", ErrUnavailable, body.Result)
	}
	rate, ok := body.Rates["KRW"]
	if !ok || rate == nil {
		return 0, &SchemaError{Source: "fx", Detail: "response missing rates.KRW"}
	}
	return *rate, nil
}
