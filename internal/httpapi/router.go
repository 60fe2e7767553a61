package httpapi

import (
	"context"
	"fmt"
	"net/http"

	"hashscope/internal/audit"
	"hashscope/internal/auth"
	"hashscope/internal/billing"
	"hashscope/internal/chain"
	"hashscope/internal/config"
	"hashscope/internal/market"
	"hashscope/internal/middleware"
	"hashscope/internal/queue"
	"hashscope/internal/ratelimit"
	"hashscope/internal/storage"
	"hashscope/internal/utils"
)

// Dependencies aggregates the services the HTTP layer owns, so main can
// shut them down in order.
type Dependencies struct {
	DB            *storage.DB
	Redis         *storage.RedisClient
	Chain         *chain.Client
	Meter         *billing.Meter
	ReceiptWorker *chain.ReceiptWorker
	AuditTrail    *audit.Trail
	Catalog       *Catalog
}

// Shutdown stops background workers and closes connections.
func (d *Dependencies) Shutdown(ctx context.Context) error {
	if d.ReceiptWorker != nil {
		if err := d.ReceiptWorker.Stop(); err != nil {
			return err
		}
	}
	if d.AuditTrail != nil {
		d.AuditTrail.Shutdown()
	}
	if d.Redis != nil {
		if err := d.Redis.Close(); err != nil {
			return err
		}
	}
	return d.DB.Close()
}

// NewRouter creates an HTTP router with all dependencies wired up
func NewRouter(cfg *config.Config) (*http.ServeMux, *Dependencies, error) {
	logger := utils.NewLogger("router")

	db, err := storage.NewDB(storage.DBConfig{
		DSN:             cfg.Database.URL,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.Database.ConnMaxIdleTime,
		APIKeyCacheSize: cfg.Cache.APIKeyCacheSize,
		APIKeyCacheTTL:  cfg.Cache.APIKeyCacheTTL,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	// Repositories
	userRepo := storage.NewUserRepository(db)
	apiKeyRepo := storage.NewAPIKeyRepository(db)
	usageRepo := storage.NewUsageRepository(db)
	txRepo := storage.NewTransactionRepository(db)

	// Redis is optional; without it rate limiting is disabled and the
	// receipt queue falls back to memory.
	var redisClient *storage.RedisClient
	var limiter middleware.RateLimitChecker
	if cfg.Redis.Enabled {
		redisClient, err = storage.NewRedisClient(storage.RedisConfig{
			Address:      cfg.Redis.Address,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			PoolSize:     cfg.Redis.PoolSize,
			MinIdleConns: cfg.Redis.MinIdleConns,
			DialTimeout:  cfg.Redis.DialTimeout,
			ReadTimeout:  cfg.Redis.ReadTimeout,
			WriteTimeout: cfg.Redis.WriteTimeout,
		})
		if err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("failed to initialize Redis: %w", err)
		}
		limiter = ratelimit.NewRateLimiter(redisClient.Client())
	} else {
		logger.Warn("Redis disabled, per-key rate limits are not enforced")
	}

	// Settlement client
	chainClient, err := chain.Dial(cfg.Chain, utils.NewLogger("chain"))
	if err != nil {
		if redisClient != nil {
			redisClient.Close()
		}
		db.Close()
		return nil, nil, fmt.Errorf("failed to initialize chain client: %w", err)
	}

	// Receipt polling queue
	receiptCfg := queue.DefaultConfig("receipts")
	receiptCfg.UseRedis = cfg.Redis.Enabled
	var receiptQueue queue.Queue
	var receiptDLQ queue.DeadLetterQueue
	if cfg.Redis.Enabled {
		receiptCfg.RedisAddr = cfg.Redis.Address
		receiptCfg.RedisPassword = cfg.Redis.Password
		receiptCfg.RedisDB = cfg.Redis.DB
		receiptQueue, err = queue.NewRedisQueue(receiptCfg)
		if err == nil {
			receiptDLQ, err = queue.NewRedisDeadLetterQueue(receiptCfg)
		}
		if err != nil {
			redisClient.Close()
			db.Close()
			return nil, nil, fmt.Errorf("failed to create receipt queue: %w", err)
		}
	} else {
		receiptQueue = queue.NewMemoryQueue(receiptCfg)
		receiptDLQ = queue.NewMemoryDeadLetterQueue()
	}

	receiptWorker := chain.NewReceiptWorker(receiptQueue, receiptDLQ, chainClient, txRepo, receiptCfg, cfg.Chain.ReceiptInterval)
	if err := receiptWorker.AdoptPending(context.Background()); err != nil {
		logger.Warn("Failed to adopt pending transactions", "error", err)
	}
	receiptWorker.Start(context.Background())

	// Usage metering and settlement
	meter := billing.NewMeter(usageRepo, apiKeyRepo, userRepo, txRepo, chainClient, receiptWorker, cfg.Billing, cfg.Chain.FeeRecipient)

	// Market data upstreams
	marketService := market.NewService(
		market.NewBinanceClient(cfg.Market, ""),
		market.NewUpbitClient(cfg.Market, ""),
		market.NewFXClient(cfg.Market, ""),
	)

	validator := auth.NewValidator(NewDatabaseKeyStore(apiKeyRepo))

	// Optional flat-file trail of metered calls
	var trail *audit.Trail
	if cfg.Audit.Enabled {
		trail, err = audit.NewTrail(cfg.Audit.FileTemplate, cfg.Audit.MaxFileSize,
			cfg.Audit.MaxFiles, cfg.Audit.BufferSize, cfg.Audit.FlushInterval)
		if err != nil {
			logger.Warn("Failed to open audit trail, continuing without it", "error", err)
		}
	}

	deps := &Dependencies{
		DB:            db,
		Redis:         redisClient,
		Chain:         chainClient,
		Meter:         meter,
		ReceiptWorker: receiptWorker,
		AuditTrail:    trail,
		Catalog:       NewCatalog(),
	}

	mux := http.NewServeMux()
	registerRoutes(mux, deps, cfg, routerServices{
		validator: validator,
		limiter:   limiter,
		users:     userRepo,
		keys:      apiKeyRepo,
		usage:     usageRepo,
		txs:       txRepo,
		market:    marketService,
	})

	return mux, deps, nil
}

// routerServices carries the wired services into route registration.
type routerServices struct {
	validator *auth.Validator
	limiter   middleware.RateLimitChecker
	users     *storage.UserRepository
	keys      *storage.APIKeyRepository
	usage     *storage.UsageRepository
	txs       *storage.TransactionRepository
	market    *market.Service
}

func registerRoutes(mux *http.ServeMux, deps *Dependencies, cfg *config.Config, svc routerServices) {
	// Health check endpoint - public
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	// Wallet login - public
	authHandler := NewAuthHandler(svc.users, cfg)
	mux.HandleFunc("/api/v1/auth/nonce", authHandler.Nonce)
	mux.HandleFunc("/api/v1/auth/verify", authHandler.Verify)

	// Account and key management - wallet session required
	session := middleware.WalletJWTMiddleware(cfg)

	keysHandler := NewAPIKeysHandler(svc.keys, svc.usage, svc.users, cfg)
	mux.Handle("/api/v1/keys", session(http.HandlerFunc(keysHandler.Handle)))
	mux.Handle("/api/v1/keys/", session(http.HandlerFunc(keysHandler.Handle)))

	usersHandler := NewUsersHandler(svc.users, svc.txs, deps.Chain, cfg)
	mux.Handle("/api/v1/users/me", session(http.HandlerFunc(usersHandler.Me)))
	mux.Handle("/api/v1/users/balance", session(http.HandlerFunc(usersHandler.Balance)))
	mux.Handle("/api/v1/users/deposit-info", session(http.HandlerFunc(usersHandler.DepositInfo)))
	mux.Handle("/api/v1/users/deposit-notify", session(http.HandlerFunc(usersHandler.DepositNotify)))
	mux.Handle("/api/v1/users/withdraw", session(http.HandlerFunc(usersHandler.Withdraw)))
	mux.Handle("/api/v1/users/transactions", session(http.HandlerFunc(usersHandler.Transactions)))

	// Billable data endpoints - API key credentials required
	metered := middleware.APIKeyMiddleware(svc.validator, svc.limiter, deps.Meter)
	audited := middleware.AuditMiddleware(deps.AuditTrail, cfg.Billing.CostPerCallWei)

	marketHandler := NewMarketHandler(svc.market)
	dataRoutes := []struct {
		entry   CatalogEntry
		handler http.HandlerFunc
	}{
		{
			CatalogEntry{Name: "btc-usd", Category: "crypto", Path: "/api/v1/crypto/btc/usd", Method: http.MethodGet,
				Description: "BTC price in USD from Binance", CostWei: cfg.Billing.CostPerCallWei},
			marketHandler.BTCUSD,
		},
		{
			CatalogEntry{Name: "btc-krw", Category: "crypto", Path: "/api/v1/crypto/btc/krw", Method: http.MethodGet,
				Description: "BTC price in KRW from Upbit", CostWei: cfg.Billing.CostPerCallWei},
			marketHandler.BTCKRW,
		},
		{
			CatalogEntry{Name: "usdt-krw", Category: "crypto", Path: "/api/v1/crypto/usdt/krw", Method: http.MethodGet,
				Description: "USDT price in KRW from Upbit", CostWei: cfg.Billing.CostPerCallWei},
			marketHandler.USDTKRW,
		},
		{
			CatalogEntry{Name: "prices", Category: "crypto", Path: "/api/v1/crypto/prices", Method: http.MethodGet,
				Description: "BTC, ETH and XRP prices in USD", CostWei: cfg.Billing.CostPerCallWei},
			marketHandler.Prices,
		},
		{
			CatalogEntry{Name: "kimchi-premium", Category: "crypto", Path: "/api/v1/crypto/kimchi-premium", Method: http.MethodGet,
				Description: "Upbit/Binance BTC premium percentage", CostWei: cfg.Billing.CostPerCallWei},
			marketHandler.KimchiPremium,
		},
	}
	for _, route := range dataRoutes {
		deps.Catalog.Register(route.entry)
		mux.Handle(route.entry.Path, metered(audited(route.handler)))
	}

	// Catalog - public
	catalogHandler := NewCatalogHandler(deps.Catalog)
	mux.HandleFunc("/api/v1/catalog", catalogHandler.List)
}
