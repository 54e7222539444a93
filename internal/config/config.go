// Package config loads and validates the replica pipeline's configuration
// from the environment, following the getEnv* helper idiom used across this
// codebase. Invalid configuration fails loudly at startup with every
// violated constraint named in one error.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// CopyConfig controls which events are coalesced together and how.
type CopyConfig struct {
	SourceWallet      string
	CopyMode          string // intent_net | fill_by_fill
	CoalesceMs        int
	NetOppositeTrades bool
}

// SizingConfig controls how a net source notional is translated into the
// bot's own order size.
type SizingConfig struct {
	Mode                            string // fixed | proportional | capped_proportional
	FixedOrderNotionalUSD           decimal.Decimal
	SizeMultiplier                  decimal.Decimal
	MinOrderNotionalUSD             decimal.Decimal
	MaxNotionalPerOrderUSD          decimal.Decimal
	MaxNotionalPerMarketUSD         decimal.Decimal
	MaxDailyTradedVolumeUSD         decimal.Decimal
	MaxTotalNotionalPer15mWindowUSD decimal.Decimal
}

// ExecutionConfig controls order submission behavior.
type ExecutionConfig struct {
	OrderType                string // must be marketable_limit in v1
	MaxSlippageBps            int
	NearExpiryCutoffSeconds   int
	MaxSourceStalenessMs      int64
	FeeBps                    decimal.Decimal
	DryRun                    bool
	MaxRetries                int
	RequestTimeoutSeconds     int
}

// PolymarketConfig is the upstream API surface and signing credentials.
type PolymarketConfig struct {
	ClobURL       string
	DataAPIURL    string
	GammaAPIURL   string
	WSURL         string
	PrivateKey    string
	Funder        string
	APIKey        string
	APISecret     string
	APIPassphrase string
}

// AutoKillConfig is the hysteresis threshold set for the auto kill switch.
type AutoKillConfig struct {
	MaxErrorRate                    float64
	MaxP95LatencyMs                 float64
	RecoverMaxErrorRate              float64
	RecoverMaxP95LatencyMs           float64
	RecoveryConsecutiveSnapshots     int
}

// TelemetryConfig controls the snapshot cadence and output directory.
type TelemetryConfig struct {
	OutDir                 string
	SnapshotIntervalSeconds int
}

// TelegramConfig is optional; when BotToken is empty the notifier is a
// no-op.
type TelegramConfig struct {
	BotToken string
	ChatID   int64
}

// Config aggregates the full environment contract.
type Config struct {
	Copy       CopyConfig
	Sizing     SizingConfig
	Execution  ExecutionConfig
	Polymarket PolymarketConfig
	AutoKill   AutoKillConfig
	Telemetry  TelemetryConfig
	Telegram   TelegramConfig
	DatabaseDSN string
}

// Load reads the environment (after a .env file, if present, has already
// been loaded by the caller) into a Config and validates it.
func Load() (*Config, error) {
	cfg := &Config{
		Copy: CopyConfig{
			SourceWallet:      getEnv("COPY_SOURCE_WALLET", ""),
			CopyMode:          getEnv("COPY_MODE", "intent_net"),
			CoalesceMs:        getEnvInt("COPY_COALESCE_MS", 300),
			NetOppositeTrades: getEnvBool("COPY_NET_OPPOSITE_TRADES", true),
		},
		Sizing: SizingConfig{
			Mode:                            getEnv("SIZING_MODE", "capped_proportional"),
			FixedOrderNotionalUSD:           getEnvDecimal("SIZING_FIXED_ORDER_NOTIONAL_USD", decimal.NewFromFloat(10)),
			SizeMultiplier:                  getEnvDecimal("SIZING_SIZE_MULTIPLIER", decimal.NewFromFloat(1)),
			MinOrderNotionalUSD:             getEnvDecimal("SIZING_MIN_ORDER_NOTIONAL_USD", decimal.NewFromFloat(1)),
			MaxNotionalPerOrderUSD:          getEnvDecimal("SIZING_MAX_NOTIONAL_PER_ORDER_USD", decimal.NewFromFloat(25)),
			MaxNotionalPerMarketUSD:         getEnvDecimal("SIZING_MAX_NOTIONAL_PER_MARKET_USD", decimal.NewFromFloat(150)),
			MaxDailyTradedVolumeUSD:         getEnvDecimal("SIZING_MAX_DAILY_TRADED_VOLUME_USD", decimal.NewFromFloat(1500)),
			MaxTotalNotionalPer15mWindowUSD: getEnvDecimal("SIZING_MAX_TOTAL_NOTIONAL_PER_15M_WINDOW_USD", decimal.NewFromFloat(400)),
		},
		Execution: ExecutionConfig{
			OrderType:               getEnv("EXECUTION_ORDER_TYPE", "marketable_limit"),
			MaxSlippageBps:          getEnvInt("EXECUTION_MAX_SLIPPAGE_BPS", 120),
			NearExpiryCutoffSeconds: getEnvInt("EXECUTION_NEAR_EXPIRY_CUTOFF_SECONDS", 25),
			MaxSourceStalenessMs:    getEnvInt64("EXECUTION_MAX_SOURCE_STALENESS_MS", 4000),
			FeeBps:                  getEnvDecimal("EXECUTION_FEE_BPS", decimal.Zero),
			DryRun:                  getEnvBool("EXECUTION_DRY_RUN", true),
			MaxRetries:              getEnvInt("EXECUTION_MAX_RETRIES", 3),
			RequestTimeoutSeconds:   getEnvInt("EXECUTION_REQUEST_TIMEOUT_S", 3),
		},
		Polymarket: PolymarketConfig{
			ClobURL:       getEnv("POLYMARKET_CLOB_URL", "https://clob.polymarket.com"),
			DataAPIURL:    getEnv("POLYMARKET_DATA_API_URL", "https://data-api.polymarket.com"),
			GammaAPIURL:   getEnv("POLYMARKET_GAMMA_API_URL", "https://gamma-api.polymarket.com"),
			WSURL:         getEnv("POLYMARKET_WS_URL", "wss://ws-subscriptions-clob.polymarket.com/ws/"),
			PrivateKey:    os.Getenv("POLYMARKET_PRIVATE_KEY"),
			Funder:        os.Getenv("POLYMARKET_FUNDER"),
			APIKey:        os.Getenv("POLYMARKET_API_KEY"),
			APISecret:     os.Getenv("POLYMARKET_API_SECRET"),
			APIPassphrase: os.Getenv("POLYMARKET_API_PASSPHRASE"),
		},
		AutoKill: AutoKillConfig{
			MaxErrorRate:                 getEnvFloat("AUTO_KILL_MAX_ERROR_RATE", 0.2),
			MaxP95LatencyMs:              getEnvFloat("AUTO_KILL_MAX_P95_LATENCY_MS", 1200),
			RecoverMaxErrorRate:          getEnvFloat("AUTO_KILL_RECOVER_MAX_ERROR_RATE", 0.1),
			RecoverMaxP95LatencyMs:       getEnvFloat("AUTO_KILL_RECOVER_MAX_P95_LATENCY_MS", 800),
			RecoveryConsecutiveSnapshots: getEnvInt("AUTO_KILL_RECOVERY_CONSECUTIVE_SNAPSHOTS", 2),
		},
		Telemetry: TelemetryConfig{
			OutDir:                  getEnv("TELEMETRY_OUT_DIR", "runs/telemetry"),
			SnapshotIntervalSeconds: getEnvInt("SNAPSHOT_INTERVAL_SECONDS", 30),
		},
		Telegram: TelegramConfig{
			BotToken: os.Getenv("TELEGRAM_BOT_TOKEN"),
		},
		DatabaseDSN: getEnv("DATABASE_DSN", "data/coinbot.db"),
	}

	if chatID := os.Getenv("TELEGRAM_CHAT_ID"); chatID != "" {
		id, err := strconv.ParseInt(chatID, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid TELEGRAM_CHAT_ID: %w", err)
		}
		cfg.Telegram.ChatID = id
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func validate(cfg *Config) error {
	var problems []string
	add := func(ok bool, msg string) {
		if !ok {
			problems = append(problems, msg)
		}
	}

	add(strings.HasPrefix(cfg.Copy.SourceWallet, "0x") && len(cfg.Copy.SourceWallet) == 42,
		"COPY_SOURCE_WALLET must be a 42-char 0x address")
	add(cfg.Copy.CopyMode == "intent_net" || cfg.Copy.CopyMode == "fill_by_fill",
		"COPY_MODE must be one of: intent_net, fill_by_fill")
	add(cfg.Copy.CoalesceMs > 0, "COPY_COALESCE_MS must be > 0")

	add(cfg.Sizing.Mode == "fixed" || cfg.Sizing.Mode == "proportional" || cfg.Sizing.Mode == "capped_proportional",
		"SIZING_MODE must be fixed|proportional|capped_proportional")
	add(cfg.Sizing.FixedOrderNotionalUSD.IsPositive(), "SIZING_FIXED_ORDER_NOTIONAL_USD must be > 0")
	add(cfg.Sizing.SizeMultiplier.IsPositive(), "SIZING_SIZE_MULTIPLIER must be > 0")
	add(cfg.Sizing.MinOrderNotionalUSD.IsPositive(), "SIZING_MIN_ORDER_NOTIONAL_USD must be > 0")
	add(cfg.Sizing.MaxNotionalPerOrderUSD.GreaterThanOrEqual(cfg.Sizing.MinOrderNotionalUSD),
		"SIZING_MAX_NOTIONAL_PER_ORDER_USD must be >= min order notional")
	add(cfg.Sizing.MaxNotionalPerMarketUSD.IsPositive(), "SIZING_MAX_NOTIONAL_PER_MARKET_USD must be > 0")
	add(cfg.Sizing.MaxDailyTradedVolumeUSD.IsPositive(), "SIZING_MAX_DAILY_TRADED_VOLUME_USD must be > 0")
	add(cfg.Sizing.MaxTotalNotionalPer15mWindowUSD.IsPositive(), "SIZING_MAX_TOTAL_NOTIONAL_PER_15M_WINDOW_USD must be > 0")

	add(cfg.Execution.OrderType == "marketable_limit", "EXECUTION_ORDER_TYPE must be marketable_limit in v1")
	add(cfg.Execution.MaxSlippageBps > 0, "EXECUTION_MAX_SLIPPAGE_BPS must be > 0")
	add(cfg.Execution.NearExpiryCutoffSeconds >= 0, "EXECUTION_NEAR_EXPIRY_CUTOFF_SECONDS must be >= 0")
	add(cfg.Execution.FeeBps.GreaterThanOrEqual(decimal.Zero), "EXECUTION_FEE_BPS must be >= 0")

	if !cfg.Execution.DryRun {
		var missing []string
		if cfg.Polymarket.PrivateKey == "" {
			missing = append(missing, "POLYMARKET_PRIVATE_KEY")
		}
		if cfg.Polymarket.Funder == "" {
			missing = append(missing, "POLYMARKET_FUNDER")
		}
		if cfg.Polymarket.APIKey == "" {
			missing = append(missing, "POLYMARKET_API_KEY")
		}
		if cfg.Polymarket.APISecret == "" {
			missing = append(missing, "POLYMARKET_API_SECRET")
		}
		if cfg.Polymarket.APIPassphrase == "" {
			missing = append(missing, "POLYMARKET_API_PASSPHRASE")
		}
		if len(missing) > 0 {
			problems = append(problems, fmt.Sprintf("missing required Polymarket credentials in live mode: %s", strings.Join(missing, ",")))
		}
	}

	add(cfg.AutoKill.RecoverMaxErrorRate < cfg.AutoKill.MaxErrorRate,
		"AUTO_KILL_RECOVER_MAX_ERROR_RATE must be < AUTO_KILL_MAX_ERROR_RATE")
	add(cfg.AutoKill.RecoverMaxP95LatencyMs < cfg.AutoKill.MaxP95LatencyMs,
		"AUTO_KILL_RECOVER_MAX_P95_LATENCY_MS must be < AUTO_KILL_MAX_P95_LATENCY_MS")
	add(cfg.AutoKill.RecoveryConsecutiveSnapshots > 0,
		"AUTO_KILL_RECOVERY_CONSECUTIVE_SNAPSHOTS must be > 0")

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		switch strings.ToLower(value) {
		case "1", "true", "yes", "on":
			return true
		case "0", "false", "no", "off":
			return false
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDecimal(key string, defaultValue decimal.Decimal) decimal.Decimal {
	if value := os.Getenv(key); value != "" {
		if d, err := decimal.NewFromString(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
