package market

import (
	"errors"
	"fmt"
	"time"
)

// ErrUnavailable means an upstream source could not produce a usable answer
// after retries. Handlers translate it to 503.
var ErrUnavailable = errors.New("market data unavailable")

// SchemaError reports that an upstream response did not have the shape this
// package was built against. It is deliberately distinct from transport
// errors: a schema change needs a code fix, not a retry.
type SchemaError struct {
	Source string
	Detail string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("%s response schema mismatch: %s", e.Source, e.Detail)
}

// Price is a single quote from one exchange.
type Price struct {
	Price     float64   `json:"price"`
	Currency  string    `json:"currency"`
	Timestamp time.Time `json:"timestamp"`
}

// PriceList holds quotes for several symbols in one currency.
type PriceList struct {
	Prices    map[string]float64 `json:"prices"`
	Currency  string             `json:"currency"`
	Timestamp time.Time          `json:"timestamp"`
}

// Premium is the Upbit/Binance kimchi premium with the inputs it was
// computed from.
type Premium struct {
	PremiumPercentage float64   `json:"premium_percentage"`
	BinancePriceUSD   float64   `json:"binance_price_usd"`
	UpbitPriceKRW     float64   `json:"upbit_price_krw"`
	ExchangeRate      float64   `json:"exchange_rate"`
	Timestamp         time.Time `json:"timestamp"`
}

// CalculatePremium returns the percentage by which the Upbit KRW price
// exceeds the Binance USD price converted at rate:
//
//	(upbitKRW - binanceUSD*rate) / (binanceUSD*rate) * 100
func CalculatePremium(binanceUSD, upbitKRW, rate float64) (float64, error) {
	if binanceUSD <= 0 || upbitKRW <= 0 || rate <= 0 {
		return 0, fmt.Errorf("premium inputs must be positive: binance=%v upbit=%v rate=%v",
			binanceUSD, upbitKRW, rate)
	}
	binanceKRW := binanceUSD * rate
	return (upbitKRW - binanceKRW) / binanceKRW * 100, nil
}
