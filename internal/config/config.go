package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds configuration for the gateway.
type Config struct {
	HTTPPort  string
	JWTSecret []byte
	Database  DatabaseConfig
	Cache     CacheConfig
	Redis     RedisConfig
	Chain     ChainConfig
	Billing   BillingConfig
	Market    MarketConfig
	Audit     AuditConfig
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// CacheConfig holds cache settings
type CacheConfig struct {
	APIKeyCacheSize int
	APIKeyCacheTTL  time.Duration
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Enabled      bool
	Address      string
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// ChainConfig holds the HSK node connection and settlement authority settings
type ChainConfig struct {
	RPCURL          string
	ContractAddress string
	AuthorityKeyHex string // server-held signing key for deductForUsage
	FeeRecipient    string
	GasLimit        uint64
	SubmitTimeout   time.Duration // bound on the submission round trip
	ReceiptInterval time.Duration // how often the receipt poller wakes up
}

// BillingConfig holds metering and settlement policy
type BillingConfig struct {
	CostPerCallWei   int64 // fixed cost of one billable call, wei
	SweepThreshold   int   // unbilled calls before an on-chain deduction
	KeyExpiryDays    int   // lifetime of newly issued API keys
	DefaultRateLimit int   // per-minute limit for new keys
}

// MarketConfig holds upstream market data settings
type MarketConfig struct {
	RequestTimeout time.Duration
	MaxRetries     int
	RetryDelay     time.Duration
}

// AuditConfig holds the flat-file call trail settings
type AuditConfig struct {
	Enabled       bool
	FileTemplate  string // must contain one %s for the rotation timestamp
	MaxFileSize   int64
	MaxFiles      int
	BufferSize    int
	FlushInterval time.Duration
}

func getEnvInt(key string, defaultValue int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}

	intVal, err := strconv.Atoi(val)
	if err != nil {
		return defaultValue
	}

	return intVal
}

func getEnvInt64(key string, defaultValue int64) int64 {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}
	intVal, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return defaultValue
	}
	return intVal
}

func getEnvUint64(key string, defaultValue uint64) uint64 {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}
	intVal, err := strconv.ParseUint(val, 10, 64)
	if err != nil {
		return defaultValue
	}
	return intVal
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}

	duration, err := time.ParseDuration(val)
	if err != nil {
		return defaultValue
	}

	return duration
}

func getEnvString(key string, defaultValue string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}
	return val
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	port := getEnvString("HTTP_PORT", "8080")
	jwtSecret := []byte(getEnvString("JWT_SECRET", "supersecretkey"))

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	cfg := &Config{
		HTTPPort:  port,
		JWTSecret: jwtSecret,
		Database: DatabaseConfig{
			URL:             dbURL,
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
			ConnMaxIdleTime: getEnvDuration("DB_CONN_MAX_IDLE_TIME", 1*time.Minute),
		},
		Cache: CacheConfig{
			APIKeyCacheSize: getEnvInt("CACHE_API_KEY_SIZE", 1000),
			APIKeyCacheTTL:  getEnvDuration("CACHE_API_KEY_TTL", 5*time.Minute),
		},
		Redis: RedisConfig{
			Enabled:      getEnvString("REDIS_ENABLED", "false") == "true",
			Address:      getEnvString("REDIS_ADDRESS", "localhost:6379"),
			Password:     getEnvString("REDIS_PASSWORD", ""),
			DB:           getEnvInt("REDIS_DB", 0),
			PoolSize:     getEnvInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: getEnvInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  getEnvDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  getEnvDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: getEnvDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Chain: ChainConfig{
			RPCURL:          getEnvString("HSK_RPC_URL", "https://mainnet.hsk.xyz"),
			ContractAddress: os.Getenv("DEPOSIT_CONTRACT_ADDRESS"),
			AuthorityKeyHex: os.Getenv("CONTRACT_OWNER_PRIVATE_KEY"),
			FeeRecipient:    getEnvString("FEE_RECIPIENT_ADDRESS", "0xf91aAB71fC16dA79c8ACFAD67aF7C9b39588B246"),
			GasLimit:        getEnvUint64("CHAIN_GAS_LIMIT", 200_000),
			SubmitTimeout:   getEnvDuration("CHAIN_SUBMIT_TIMEOUT", 30*time.Second),
			ReceiptInterval: getEnvDuration("CHAIN_RECEIPT_INTERVAL", 15*time.Second),
		},
		Billing: BillingConfig{
			CostPerCallWei:   getEnvInt64("BILLING_COST_PER_CALL_WEI", 100_000_000_000_000), // 0.0001 HSK
			SweepThreshold:   getEnvInt("BILLING_SWEEP_THRESHOLD", 10),
			KeyExpiryDays:    getEnvInt("BILLING_KEY_EXPIRY_DAYS", 365),
			DefaultRateLimit: getEnvInt("BILLING_DEFAULT_RATE_LIMIT", 60),
		},
		Market: MarketConfig{
			RequestTimeout: getEnvDuration("MARKET_REQUEST_TIMEOUT", 10*time.Second),
			MaxRetries:     getEnvInt("MARKET_MAX_RETRIES", 3),
			RetryDelay:     getEnvDuration("MARKET_RETRY_DELAY", 2*time.Second),
		},
		Audit: AuditConfig{
			Enabled:       getEnvString("AUDIT_ENABLED", "false") == "true",
			FileTemplate:  getEnvString("AUDIT_FILE_TEMPLATE", "/var/log/hashscope/calls-%s.jsonl"),
			MaxFileSize:   getEnvInt64("AUDIT_MAX_FILE_SIZE", 10*1024*1024),
			MaxFiles:      getEnvInt("AUDIT_MAX_FILES", 10),
			BufferSize:    getEnvInt("AUDIT_BUFFER_SIZE", 1000),
			FlushInterval: getEnvDuration("AUDIT_FLUSH_INTERVAL", 5*time.Second),
		},
	}

	return cfg, nil
}
