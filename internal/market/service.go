package market

import (
	"context"
	"sync"
	"time"

	"hashscope/internal/utils"
)

// Service aggregates the upstream sources behind the market endpoints.
// Upstream calls that feed one response run in parallel.
type Service struct {
	binance *BinanceClient
	upbit   *UpbitClient
	fx      *FXClient
	logger  *utils.Logger
}

// NewService wires the three upstream clients into one market data service.
func NewService(binance *BinanceClient, upbit *UpbitClient, fx *FXClient) *Service {
	return &Service{
		binance: binance,
		upbit:   upbit,
		fx:      fx,
		logger:  utils.NewLogger("market"),
	}
}

// BTCUSD returns the BTC/USD price from Binance.
func (s *Service) BTCUSD(ctx context.Context) (*Price, error) {
	price, err := s.binance.LastPrice(ctx, "BTCUSDT")
	if err != nil {
		return nil, err
	}
	return &Price{Price: price, Currency: "USD", Timestamp: time.Now().UTC()}, nil
}

// BTCKRW returns the BTC/KRW price from Upbit.
func (s *Service) BTCKRW(ctx context.Context) (*Price, error) {
	price, err := s.upbit.TickerPrice(ctx, "KRW-BTC")
	if err != nil {
		return nil, err
	}
	return &Price{Price: price, Currency: "KRW", Timestamp: time.Now().UTC()}, nil
}

// USDTKRW returns the USDT/KRW price from Upbit.
func (s *Service) USDTKRW(ctx context.Context) (*Price, error) {
	price, err := s.upbit.TickerPrice(ctx, "KRW-USDT")
	if err != nil {
		return nil, err
	}
	return &Price{Price: price, Currency: "KRW", Timestamp: time.Now().UTC()}, nil
}

// ExchangeRate returns USD/KRW, falling back to the rate implied by the
// Upbit USDT/KRW market when the rate API is down.
func (s *Service) ExchangeRate(ctx context.Context) (float64, error) {
	rate, err := s.fx.USDKRW(ctx)
	if err == nil {
		return rate, nil
	}
	s.logger.Warn("Exchange rate API unavailable, using USDT/KRW as proxy", "error", err)
	return s.upbit.TickerPrice(ctx, "KRW-USDT")
}

// Prices returns BTC, ETH and XRP prices in USD. Symbols whose fetch failed
// are left out; only when every fetch fails is an error returned.
func (s *Service) Prices(ctx context.Context) (*PriceList, error) {
	symbols := map[string]string{
		"BTC": "BTCUSDT",
		"ETH": "ETHUSDT",
		"XRP": "XRPUSDT",
	}

	var (
		mu     sync.Mutex
		wg     sync.WaitGroup
		prices = make(map[string]float64)
	)
	var lastErr error
	for name, symbol := range symbols {
		wg.Add(1)
		go func(name, symbol string) {
			defer wg.Done()
			price, err := s.binance.LastPrice(ctx, symbol)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				lastErr = err
				return
			}
			prices[name] = price
		}(name, symbol)
	}
	wg.Wait()

	if len(prices) == 0 {
		return nil, lastErr
	}
	return &PriceList{Prices: prices, Currency: "USD", Timestamp: time.Now().UTC()}, nil
}

// KimchiPremium fetches the Binance BTC/USD price, the Upbit BTC/KRW price
// and the USD/KRW rate in parallel and computes the premium. All three
// inputs are required.
func (s *Service) KimchiPremium(ctx context.Context) (*Premium, error) {
	var (
		wg         sync.WaitGroup
		binanceUSD float64
		upbitKRW   float64
		rate       float64

		binanceErr error
		upbitErr   error
		rateErr    error
	)

	wg.Add(3)
	go func() {
		defer wg.Done()
		binanceUSD, binanceErr = s.binance.LastPrice(ctx, "BTCUSDT")
	}()
	go func() {
		defer wg.Done()
		upbitKRW, upbitErr = s.upbit.TickerPrice(ctx, "KRW-BTC")
	}()
	go func() {
		defer wg.Done()
		rate, rateErr = s.ExchangeRate(ctx)
	}()
	wg.Wait()

	for _, err := range []error{binanceErr, upbitErr, rateErr} {
		if err != nil {
			return nil, err
		}
	}

	premium, err := CalculatePremium(binanceUSD, upbitKRW, rate)
	if err != nil {
		return nil, err
	}
	return &Premium{
		PremiumPercentage: premium,
		BinancePriceUSD:   binanceUSD,
		UpbitPriceKRW:     upbitKRW,
		ExchangeRate:      rate,
		Timestamp:         time.Now().UTC(),
	}, nil
}
