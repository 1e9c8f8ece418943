package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	// Application
	LogLevel string
	HTTPPort string

	// Storage
	StorageMode  string // "postgres", "sqlite" or "memory"
	PostgresHost string
	PostgresPort string
	PostgresUser string
	PostgresPass string
	PostgresDB   string
	PostgresSSL  string
	SQLitePath   string

	// Market data
	GammaAPIURL            string
	CLOBAPIURL             string
	MarketLimit            int
	AllowlistRefreshPeriod time.Duration
	PriceFetchTimeout      time.Duration

	// Capital and risk limits
	StartingCapital      float64
	DailyBudget          float64
	HourlyBudget         float64
	MaxPositionSize      float64 // per-trade cap, USD
	MaxTotalExposure     float64
	MaxDailyLossPct      float64
	MaxTotalLossPct      float64
	MaxPositions         int
	CooldownAfterLoss    time.Duration
	MinViableSize        float64
	MaxConsecutiveStops  int
	SingleTradeLossPct   float64
	CopyRatio            float64
	AllowedSources       []string
	IntentStaleThreshold time.Duration

	// Execution
	DryRun            bool
	MaxRetries        int
	RetryDelay        time.Duration
	IdempotencyWindow time.Duration
	MinOrderPrice     float64
	MaxOrderPrice     float64
	MinOrderSize      float64

	// Arbitrage detection
	ArbFeeRate            float64
	ArbGasPerLeg          float64
	ArbMinProfitPct       float64
	ArbMinTradeSize       float64
	ArbMaxTradeSize       float64
	ArbAsymmetricMaxPrice float64
	ArbScanInterval       time.Duration

	// Venue credentials (live mode only)
	PolymarketAPIKey     string
	PolymarketSecret     string
	PolymarketPassphrase string
	PolymarketPrivateKey string
	PolymarketProxyAddr  string
	PolygonRPCURL        string

	// Alerting
	AlertWebhookURL string
}

// LoadFromEnv loads configuration from environment variables with defaults.
func LoadFromEnv() (*Config, error) {
	cfg := &Config{
		// Application defaults
		LogLevel: getEnvOrDefault("LOG_LEVEL", "info"),
		HTTPPort: getEnvOrDefault("HTTP_PORT", "8080"),

		// Storage defaults
		StorageMode:  getEnvOrDefault("STORAGE_MODE", "sqlite"),
		PostgresHost: getEnvOrDefault("POSTGRES_HOST", "localhost"),
		PostgresPort: getEnvOrDefault("POSTGRES_PORT", "5432"),
		PostgresUser: getEnvOrDefault("POSTGRES_USER", "polysentry"),
		PostgresPass: getEnvOrDefault("POSTGRES_PASSWORD", ""),
		PostgresDB:   getEnvOrDefault("POSTGRES_DB", "polysentry"),
		PostgresSSL:  getEnvOrDefault("POSTGRES_SSLMODE", "disable"),
		SQLitePath:   getEnvOrDefault("SQLITE_PATH", "polysentry.db"),

		// Market data defaults
		GammaAPIURL:            getEnvOrDefault("POLYMARKET_GAMMA_API_URL", "https://gamma-api.polymarket.com"),
		CLOBAPIURL:             getEnvOrDefault("POLYMARKET_CLOB_API_URL", "https://clob.polymarket.com"),
		MarketLimit:            getIntOrDefault("MARKET_LIMIT", 50),
		AllowlistRefreshPeriod: getDurationOrDefault("ALLOWLIST_REFRESH_INTERVAL", 60*time.Second),
		PriceFetchTimeout:      getDurationOrDefault("PRICE_FETCH_TIMEOUT", 10*time.Second),

		// Capital and risk defaults
		StartingCapital:      getFloat64OrDefault("STARTING_CAPITAL", 1000.0),
		DailyBudget:          getFloat64OrDefault("DAILY_BUDGET", 500.0),
		HourlyBudget:         getFloat64OrDefault("HOURLY_BUDGET", 100.0),
		MaxPositionSize:      getFloat64OrDefault("MAX_POSITION_SIZE", 50.0),
		MaxTotalExposure:     getFloat64OrDefault("MAX_TOTAL_EXPOSURE", 500.0),
		MaxDailyLossPct:      getFloat64OrDefault("MAX_DAILY_LOSS_PCT", 5.0),
		MaxTotalLossPct:      getFloat64OrDefault("MAX_TOTAL_LOSS_PCT", 15.0),
		MaxPositions:         getIntOrDefault("MAX_POSITIONS", 10),
		CooldownAfterLoss:    time.Duration(getIntOrDefault("COOLDOWN_AFTER_LOSS_SECONDS", 300)) * time.Second,
		MinViableSize:        getFloat64OrDefault("MIN_VIABLE_SIZE", 1.0),
		MaxConsecutiveStops:  getIntOrDefault("MAX_CONSECUTIVE_DAILY_STOPS", 3),
		SingleTradeLossPct:   getFloat64OrDefault("SINGLE_TRADE_LOSS_KILL_PCT", 5.0),
		CopyRatio:            getFloat64OrDefault("COPY_RATIO", 0.10),
		AllowedSources:       getSliceOrDefault("ALLOWED_SOURCES", nil),
		IntentStaleThreshold: getDurationOrDefault("INTENT_STALE_THRESHOLD", 10*time.Second),

		// Execution defaults
		DryRun:            getBoolOrDefault("DRY_RUN", true),
		MaxRetries:        getIntOrDefault("MAX_RETRIES", 3),
		RetryDelay:        getDurationOrDefault("RETRY_DELAY", 500*time.Millisecond),
		IdempotencyWindow: time.Duration(getIntOrDefault("IDEMPOTENCY_WINDOW_HOURS", 24)) * time.Hour,
		MinOrderPrice:     getFloat64OrDefault("MIN_ORDER_PRICE", 0.01),
		MaxOrderPrice:     getFloat64OrDefault("MAX_ORDER_PRICE", 0.99),
		MinOrderSize:      getFloat64OrDefault("MIN_ORDER_SIZE", 1.0),

		// Arbitrage defaults
		ArbFeeRate:            getFloat64OrDefault("ARB_FEE_RATE", 0.02),
		ArbGasPerLeg:          getFloat64OrDefault("ARB_GAS_PER_LEG", 0.10),
		ArbMinProfitPct:       getFloat64OrDefault("ARB_MIN_PROFIT_PCT", 0.5),
		ArbMinTradeSize:       getFloat64OrDefault("ARB_MIN_TRADE_SIZE", 10.0),
		ArbMaxTradeSize:       getFloat64OrDefault("ARB_MAX_TRADE_SIZE", 100.0),
		ArbAsymmetricMaxPrice: getFloat64OrDefault("ARB_ASYMMETRIC_MAX_PRICE", 0.97),
		ArbScanInterval:       getDurationOrDefault("ARB_SCAN_INTERVAL", 30*time.Second),

		// Venue credentials
		PolymarketAPIKey:     os.Getenv("POLYMARKET_API_KEY"),
		PolymarketSecret:     os.Getenv("POLYMARKET_SECRET"),
		PolymarketPassphrase: os.Getenv("POLYMARKET_PASSPHRASE"),
		PolymarketPrivateKey: os.Getenv("POLYMARKET_PRIVATE_KEY"),
		PolymarketProxyAddr:  os.Getenv("POLYMARKET_PROXY_ADDRESS"),
		PolygonRPCURL:        getEnvOrDefault("POLYGON_RPC_URL", "https://polygon-rpc.com"),

		// Alerting
		AlertWebhookURL: os.Getenv("ALERT_WEBHOOK_URL"),
	}

	err := cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// Validate checks that configuration values are valid.
func (c *Config) Validate() error {
	if c.HTTPPort == "" {
		return fmt.Errorf("HTTP_PORT cannot be empty")
	}

	switch c.StorageMode {
	case "postgres", "sqlite", "memory":
	default:
		return fmt.Errorf("STORAGE_MODE must be 'postgres', 'sqlite' or 'memory', got %q", c.StorageMode)
	}

	if c.StartingCapital <= 0 {
		return fmt.Errorf("STARTING_CAPITAL must be positive, got %f", c.StartingCapital)
	}

	if c.MaxPositionSize <= 0 {
		return fmt.Errorf("MAX_POSITION_SIZE must be positive, got %f", c.MaxPositionSize)
	}

	if c.MaxTotalExposure < c.MaxPositionSize {
		return fmt.Errorf("MAX_TOTAL_EXPOSURE (%f) cannot be below MAX_POSITION_SIZE (%f)",
			c.MaxTotalExposure, c.MaxPositionSize)
	}

	if c.MaxDailyLossPct <= 0 || c.MaxDailyLossPct >= 100 {
		return fmt.Errorf("MAX_DAILY_LOSS_PCT must be between 0 and 100, got %f", c.MaxDailyLossPct)
	}

	if c.MaxTotalLossPct <= 0 || c.MaxTotalLossPct >= 100 {
		return fmt.Errorf("MAX_TOTAL_LOSS_PCT must be between 0 and 100, got %f", c.MaxTotalLossPct)
	}

	if c.MaxPositions <= 0 {
		return fmt.Errorf("MAX_POSITIONS must be positive, got %d", c.MaxPositions)
	}

	if c.MaxRetries < 0 {
		return fmt.Errorf("MAX_RETRIES cannot be negative, got %d", c.MaxRetries)
	}

	if c.MinOrderPrice <= 0 || c.MaxOrderPrice >= 1.0 || c.MinOrderPrice >= c.MaxOrderPrice {
		return fmt.Errorf("order price bounds must satisfy 0 < min < max < 1, got [%f, %f]",
			c.MinOrderPrice, c.MaxOrderPrice)
	}

	if !c.DryRun {
		if c.PolymarketAPIKey == "" || c.PolymarketSecret == "" || c.PolymarketPassphrase == "" {
			return fmt.Errorf("live mode requires POLYMARKET_API_KEY, POLYMARKET_SECRET and POLYMARKET_PASSPHRASE")
		}
		if c.PolymarketPrivateKey == "" {
			return fmt.Errorf("live mode requires POLYMARKET_PRIVATE_KEY")
		}
	}

	return nil
}

func getEnvOrDefault(key string, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	intVal, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}

	return intVal
}

func getFloat64OrDefault(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	floatVal, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return defaultValue
	}

	return floatVal
}

func getBoolOrDefault(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	boolVal, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}

	return boolVal
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	duration, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}

	return duration
}

func getSliceOrDefault(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
