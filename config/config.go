package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"llmTraderBot/internal/adapters/logger" // Import the logger package for LogLevel
)

// Exchange identifiers accepted by the EXCHANGE key.
const (
	ExchangeOKX     = "okx"
	ExchangeBinance = "binance"
)

// Config holds all application configuration.
type Config struct {
	// Exchange selection
	Exchange  string
	IsTestnet bool

	// OKX API
	OKXAPIKey     string
	OKXSecretKey  string
	OKXPassphrase string
	OKXBaseURL    string

	// Binance API
	BinanceAPIKey    string
	BinanceSecretKey string

	// Trading Parameters
	Instruments     []string      // Instruments traded, each on its own cycle
	CycleInterval   time.Duration // Time between decision cycles per instrument
	MaxTradesPerDay int           // Hard cap on opening orders per instrument per UTC day
	PriceTolerance  float64       // Relative drift tolerated between decision and execution price

	// Risk Parameters
	ShrinkFactor        float64 // Fraction removed from order size per margin retry
	MarginRetryLimit    int     // Retries after the initial placement attempt
	PerformanceModifier float64 // Static multiplier applied to the risk ratio
	RiskStagesPath      string  // Optional YAML overriding the built-in stage table

	// LLM Decision Provider
	LLMBaseURL string
	LLMAPIKey  string
	LLMModel   string
	LLMTimeout time.Duration

	// Database
	DBPath string

	// Logging
	LogLevel logger.LogLevel // Use the LogLevel type from the logger adapter

	// Metrics
	MetricsAddr string // Empty disables the /metrics listener

	// Connection Settings
	ReconnectDelay       time.Duration
	MaxReconnectAttempts int
}

// LoadConfig loads configuration from environment variables (.env file).
func LoadConfig() (*Config, error) {
	// Load .env file, but don't fail if it doesn't exist (allow pure env vars)
	_ = godotenv.Load()

	cfg := &Config{}
	var err error
	var errs []string // Collect validation errors

	// Exchange selection
	cfg.Exchange = strings.ToLower(getEnv("EXCHANGE", ExchangeOKX))
	if cfg.Exchange != ExchangeOKX && cfg.Exchange != ExchangeBinance {
		errs = append(errs, fmt.Sprintf("EXCHANGE must be %q or %q, got %q", ExchangeOKX, ExchangeBinance, cfg.Exchange))
	}
	cfg.IsTestnet = getEnvAsBool("IS_TESTNET", true) // Default to testnet for safety

	// OKX API
	cfg.OKXAPIKey = getEnv("OKX_API_KEY", "")
	cfg.OKXSecretKey = getEnv("OKX_API_SECRET", "")
	cfg.OKXPassphrase = getEnv("OKX_PASSPHRASE", "")
	cfg.OKXBaseURL = getEnv("OKX_BASE_URL", "https://www.okx.com")

	// Binance API
	cfg.BinanceAPIKey = getEnv("BINANCE_API_KEY", "")
	cfg.BinanceSecretKey = getEnv("BINANCE_API_SECRET", "")

	switch cfg.Exchange {
	case ExchangeOKX:
		if cfg.OKXAPIKey == "" {
			errs = append(errs, "OKX_API_KEY must be set")
		}
		if cfg.OKXSecretKey == "" {
			errs = append(errs, "OKX_API_SECRET must be set")
		}
		if cfg.OKXPassphrase == "" {
			errs = append(errs, "OKX_PASSPHRASE must be set")
		}
	case ExchangeBinance:
		if cfg.BinanceAPIKey == "" {
			errs = append(errs, "BINANCE_API_KEY must be set")
		}
		if cfg.BinanceSecretKey == "" {
			errs = append(errs, "BINANCE_API_SECRET must be set")
		}
	}

	// Trading Parameters
	instruments := getEnv("INSTRUMENTS", "ETH-USDT-SWAP")
	for _, inst := range strings.Split(instruments, ",") {
		inst = strings.TrimSpace(inst)
		if inst != "" {
			cfg.Instruments = append(cfg.Instruments, inst)
		}
	}
	if len(cfg.Instruments) == 0 {
		errs = append(errs, "INSTRUMENTS must name at least one instrument")
	}

	cycleSeconds := getEnvAsInt("CYCLE_INTERVAL_SECONDS", 300)
	if cycleSeconds <= 0 {
		errs = append(errs, "CYCLE_INTERVAL_SECONDS must be positive")
	}
	cfg.CycleInterval = time.Duration(cycleSeconds) * time.Second

	cfg.MaxTradesPerDay, err = getEnvAsIntRequired("MAX_TRADES_PER_DAY", 12)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid MAX_TRADES_PER_DAY: %v", err))
	} else if cfg.MaxTradesPerDay <= 0 {
		errs = append(errs, "MAX_TRADES_PER_DAY must be positive")
	}

	cfg.PriceTolerance, err = getEnvAsFloatRequired("PRICE_TOLERANCE", 0.002)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid PRICE_TOLERANCE: %v", err))
	} else if cfg.PriceTolerance < 0 || cfg.PriceTolerance >= 1.0 {
		errs = append(errs, "PRICE_TOLERANCE must be in [0.0, 1.0)")
	}

	// Risk Parameters
	cfg.ShrinkFactor, err = getEnvAsFloatRequired("SHRINK_FACTOR", 0.20)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid SHRINK_FACTOR: %v", err))
	} else if cfg.ShrinkFactor <= 0 || cfg.ShrinkFactor >= 1.0 {
		errs = append(errs, "SHRINK_FACTOR must be between 0.0 and 1.0 (exclusive)")
	}

	cfg.MarginRetryLimit, err = getEnvAsIntRequired("MARGIN_RETRY_LIMIT", 2)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid MARGIN_RETRY_LIMIT: %v", err))
	} else if cfg.MarginRetryLimit < 0 {
		errs = append(errs, "MARGIN_RETRY_LIMIT cannot be negative")
	}

	cfg.PerformanceModifier, err = getEnvAsFloatRequired("PERFORMANCE_MODIFIER", 1.0)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid PERFORMANCE_MODIFIER: %v", err))
	} else if cfg.PerformanceModifier <= 0 {
		errs = append(errs, "PERFORMANCE_MODIFIER must be positive")
	}

	cfg.RiskStagesPath = getEnv("RISK_STAGES_PATH", "")

	// LLM Decision Provider
	cfg.LLMBaseURL = getEnv("LLM_BASE_URL", "https://api.openai.com/v1")
	cfg.LLMAPIKey = getEnv("LLM_API_KEY", "")
	cfg.LLMModel = getEnv("LLM_MODEL", "gpt-4o")
	if cfg.LLMAPIKey == "" {
		errs = append(errs, "LLM_API_KEY must be set")
	}

	llmTimeoutSeconds := getEnvAsInt("LLM_TIMEOUT_SECONDS", 60)
	if llmTimeoutSeconds <= 0 {
		errs = append(errs, "LLM_TIMEOUT_SECONDS must be positive")
	}
	cfg.LLMTimeout = time.Duration(llmTimeoutSeconds) * time.Second

	// Database
	cfg.DBPath = getEnv("DB_PATH", "./data/trader_bot.db")
	if cfg.DBPath == "" {
		errs = append(errs, "DB_PATH must be set")
	}

	// Logging
	logLevelStr := getEnv("LOG_LEVEL", "INFO")
	cfg.LogLevel = logger.ParseLevel(logLevelStr) // Use the parser from the logger package

	// Metrics
	cfg.MetricsAddr = getEnv("METRICS_ADDR", "")

	// Connection Settings
	reconnectDelaySeconds := getEnvAsInt("RECONNECT_DELAY_SECONDS", 5)
	if reconnectDelaySeconds <= 0 {
		errs = append(errs, "RECONNECT_DELAY_SECONDS must be positive")
	}
	cfg.ReconnectDelay = time.Duration(reconnectDelaySeconds) * time.Second

	cfg.MaxReconnectAttempts = getEnvAsInt("MAX_RECONNECT_ATTEMPTS", 10)
	if cfg.MaxReconnectAttempts < 0 {
		errs = append(errs, "MAX_RECONNECT_ATTEMPTS cannot be negative")
	}

	// Combine validation errors
	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}

	return cfg, nil
}

// --- Env Var Helpers ---

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		// Log warning? For non-required fields, default is often acceptable.
		return defaultValue
	}
	return value
}

func getEnvAsIntRequired(key string, defaultValue int) (int, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		// Use default if env var is not set at all
		return defaultValue, nil
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		// Return error if env var is set but invalid
		return 0, fmt.Errorf("invalid integer value '%s' for key %s: %w", valueStr, key, err)
	}
	return value, nil
}

func getEnvAsFloatRequired(key string, defaultValue float64) (float64, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue, nil
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid float value '%s' for key %s: %w", valueStr, key, err)
	}
	return value, nil
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
