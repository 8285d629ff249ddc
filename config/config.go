package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	EngineConfig       EngineConfig       `json:"engine"`
	RiskConfig         RiskConfig         `json:"risk"`
	ConfluenceConfig   ConfluenceConfig   `json:"confluence"`
	DetectorConfig     DetectorConfig     `json:"detector"`
	PositionConfig     PositionConfig     `json:"position"`
	MonteCarloConfig   MonteCarloConfig   `json:"monte_carlo"`
	MarketDataConfig   MarketDataConfig   `json:"market_data"`
	StorageConfig      StorageConfig      `json:"storage"`
	RedisConfig        RedisConfig        `json:"redis"`
	ServerConfig       ServerConfig       `json:"server"`
	CronConfig         CronConfig         `json:"cron"`
	NotificationConfig NotificationConfig `json:"notification"`
	LoggingConfig      LoggingConfig      `json:"logging"`
}

// EngineConfig drives the per-user cycle loop
type EngineConfig struct {
	Networks       []string      `json:"networks"`        // Active chains for discovery
	Users          []string      `json:"users"`           // User IDs processed by the internal ticker
	CycleInterval  time.Duration `json:"cycle_interval"`  // Default 15m
	TickerEnabled  bool          `json:"ticker_enabled"`  // Run cycles on an internal timer
	MaxConcurrency int           `json:"max_concurrency"` // Parallel user cycles
}

// RiskConfig holds the baseline gate rules per risk layer
type RiskConfig struct {
	InitialCapitalUSD           float64       `json:"initial_capital_usd"`
	CoreMaxRiskPerTradePct      float64       `json:"core_max_risk_per_trade_pct"`      // Percent of capital, default 0.5
	SatelliteMaxRiskPerTradePct float64       `json:"satellite_max_risk_per_trade_pct"` // Default 0.25
	MaxDailyLossPct             float64       `json:"max_daily_loss_pct"`               // Kill-switch, default 2.0
	MaxWeeklyLossPct            float64       `json:"max_weekly_loss_pct"`              // Kill-switch, default 6.0
	CoreMaxTradesPerDay         int           `json:"core_max_trades_per_day"`
	SatelliteMaxTradesPerDay    int           `json:"satellite_max_trades_per_day"`
	SatelliteConsecLossLimit    int           `json:"satellite_consec_loss_limit"`
	SatelliteCooldown           time.Duration `json:"satellite_cooldown"`
}

// ConfluenceConfig holds layer routing thresholds (overridable by the calibrator)
type ConfluenceConfig struct {
	CoreMinConfidence      float64 `json:"core_min_confidence"`      // Default 75
	SatelliteMinConfidence float64 `json:"satellite_min_confidence"` // Default 50
	EarlyCorePromotion     float64 `json:"early_core_promotion"`     // Early signals reach core only here, default 85
}

// DetectorConfig holds entry thresholds (overridable by the calibrator)
type DetectorConfig struct {
	MinMomentumScore float64 `json:"min_momentum_score"` // Default 55
	MinEarlyScore    float64 `json:"min_early_score"`    // Default 50
}

// PositionConfig holds exit rule tuning per layer
type PositionConfig struct {
	CoreTrailingStopPct      float64 `json:"core_trailing_stop_pct"`      // Default 0.05
	SatelliteTrailingStopPct float64 `json:"satellite_trailing_stop_pct"` // Default 0.10
	CoreMaxHoldHours         float64 `json:"core_max_hold_hours"`         // Default 48
	SatelliteMaxHoldHours    float64 `json:"satellite_max_hold_hours"`    // Default 168
	CoreTakeProfitPct        float64 `json:"core_take_profit_pct"`        // Default 0.15
	SatelliteTakeProfitPct   float64 `json:"satellite_take_profit_pct"`   // Default 0.80
	VolumeFadeRatio          float64 `json:"volume_fade_ratio"`           // Default 0.3
	LiquidityFloorUSD        float64 `json:"liquidity_floor_usd"`         // Default 30000
}

// MonteCarloConfig holds Forward Predictor inputs
type MonteCarloConfig struct {
	Simulations  int `json:"simulations"`    // Default 5000
	TradesPerDay int `json:"trades_per_day"` // Default 3
}

// MarketDataConfig holds the external feed endpoints and budgets
type MarketDataConfig struct {
	PoolFeedBaseURL     string        `json:"pool_feed_base_url"`
	PairLookupBaseURL   string        `json:"pair_lookup_base_url"`
	SentimentBaseURL    string        `json:"sentiment_base_url"`
	GlobalMarketBaseURL string        `json:"global_market_base_url"`
	RequestTimeout      time.Duration `json:"request_timeout"`
	RetryCount          int           `json:"retry_count"`
	PoolFeedRPS         float64       `json:"pool_feed_rps"`    // GeckoTerminal-style budget, default 0.5
	PairLookupRPS       float64       `json:"pair_lookup_rps"`  // DexScreener-style budget, default 2
	SentimentRPS        float64       `json:"sentiment_rps"`    // Default 1
	CacheTTL            time.Duration `json:"cache_ttl"`        // Redis response cache
}

// StorageConfig selects the persistence backend
type StorageConfig struct {
	Driver      string `json:"driver"` // "postgres" or "memory"
	DatabaseURL string `json:"database_url"`
	MaxConns    int    `json:"max_conns"`
}

// RedisConfig holds Redis configuration for market-data caching
type RedisConfig struct {
	Enabled  bool   `json:"enabled"`
	Address  string `json:"address"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	PoolSize int    `json:"pool_size"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Enabled         bool   `json:"enabled"`
	Port            int    `json:"port"`
	Host            string `json:"host"`
	AllowedOrigins  string `json:"allowed_origins"` // CORS allowed origins
	ReadTimeout     int    `json:"read_timeout"`    // Seconds
	WriteTimeout    int    `json:"write_timeout"`   // Seconds
	ShutdownTimeout int    `json:"shutdown_timeout"`
}

// CronConfig authorises cycle triggers from the scheduler collaborator
type CronConfig struct {
	Secret string `json:"secret"`
}

type NotificationConfig struct {
	Enabled  bool           `json:"enabled"`
	Telegram TelegramConfig `json:"telegram"`
	Discord  DiscordConfig  `json:"discord"`
}

type TelegramConfig struct {
	Enabled  bool   `json:"enabled"`
	BotToken string `json:"bot_token"`
	ChatID   string `json:"chat_id"`
}

type DiscordConfig struct {
	Enabled    bool   `json:"enabled"`
	WebhookURL string `json:"webhook_url"`
}

type LoggingConfig struct {
	Level       string `json:"level"`        // DEBUG, INFO, WARN, ERROR
	Output      string `json:"output"`       // stdout, stderr, or file path
	JSONFormat  bool   `json:"json_format"`  // Output as JSON
	IncludeFile bool   `json:"include_file"` // Include file and line number
}

func Load() (*Config, error) {
	// .env first so file and overrides both see it
	_ = godotenv.Load()

	cfg, err := loadFromFile("config.json")
	if err != nil {
		cfg = &Config{}
	}

	applyDefaults(cfg)
	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if len(cfg.EngineConfig.Networks) == 0 {
		cfg.EngineConfig.Networks = []string{"ethereum", "base", "solana"}
	}
	if cfg.EngineConfig.CycleInterval <= 0 {
		cfg.EngineConfig.CycleInterval = 15 * time.Minute
	}
	if cfg.EngineConfig.MaxConcurrency <= 0 {
		cfg.EngineConfig.MaxConcurrency = 4
	}

	if cfg.RiskConfig.InitialCapitalUSD <= 0 {
		cfg.RiskConfig.InitialCapitalUSD = 10000
	}
	if cfg.RiskConfig.CoreMaxRiskPerTradePct <= 0 {
		cfg.RiskConfig.CoreMaxRiskPerTradePct = 0.5
	}
	if cfg.RiskConfig.SatelliteMaxRiskPerTradePct <= 0 {
		cfg.RiskConfig.SatelliteMaxRiskPerTradePct = 0.25
	}
	if cfg.RiskConfig.MaxDailyLossPct <= 0 {
		cfg.RiskConfig.MaxDailyLossPct = 2.0
	}
	if cfg.RiskConfig.MaxWeeklyLossPct <= 0 {
		cfg.RiskConfig.MaxWeeklyLossPct = 6.0
	}
	if cfg.RiskConfig.CoreMaxTradesPerDay <= 0 {
		cfg.RiskConfig.CoreMaxTradesPerDay = 5
	}
	if cfg.RiskConfig.SatelliteMaxTradesPerDay <= 0 {
		cfg.RiskConfig.SatelliteMaxTradesPerDay = 2
	}
	if cfg.RiskConfig.SatelliteConsecLossLimit <= 0 {
		cfg.RiskConfig.SatelliteConsecLossLimit = 3
	}
	if cfg.RiskConfig.SatelliteCooldown <= 0 {
		cfg.RiskConfig.SatelliteCooldown = 24 * time.Hour
	}

	if cfg.ConfluenceConfig.CoreMinConfidence <= 0 {
		cfg.ConfluenceConfig.CoreMinConfidence = 75
	}
	if cfg.ConfluenceConfig.SatelliteMinConfidence <= 0 {
		cfg.ConfluenceConfig.SatelliteMinConfidence = 50
	}
	if cfg.ConfluenceConfig.EarlyCorePromotion <= 0 {
		cfg.ConfluenceConfig.EarlyCorePromotion = 85
	}

	if cfg.DetectorConfig.MinMomentumScore <= 0 {
		cfg.DetectorConfig.MinMomentumScore = 55
	}
	if cfg.DetectorConfig.MinEarlyScore <= 0 {
		cfg.DetectorConfig.MinEarlyScore = 50
	}

	if cfg.PositionConfig.CoreTrailingStopPct <= 0 {
		cfg.PositionConfig.CoreTrailingStopPct = 0.05
	}
	if cfg.PositionConfig.SatelliteTrailingStopPct <= 0 {
		cfg.PositionConfig.SatelliteTrailingStopPct = 0.10
	}
	if cfg.PositionConfig.CoreMaxHoldHours <= 0 {
		cfg.PositionConfig.CoreMaxHoldHours = 48
	}
	if cfg.PositionConfig.SatelliteMaxHoldHours <= 0 {
		cfg.PositionConfig.SatelliteMaxHoldHours = 168
	}
	if cfg.PositionConfig.CoreTakeProfitPct <= 0 {
		cfg.PositionConfig.CoreTakeProfitPct = 0.15
	}
	if cfg.PositionConfig.SatelliteTakeProfitPct <= 0 {
		cfg.PositionConfig.SatelliteTakeProfitPct = 0.80
	}
	if cfg.PositionConfig.VolumeFadeRatio <= 0 {
		cfg.PositionConfig.VolumeFadeRatio = 0.3
	}
	if cfg.PositionConfig.LiquidityFloorUSD <= 0 {
		cfg.PositionConfig.LiquidityFloorUSD = 30000
	}

	if cfg.MonteCarloConfig.Simulations <= 0 {
		cfg.MonteCarloConfig.Simulations = 5000
	}
	if cfg.MonteCarloConfig.TradesPerDay <= 0 {
		cfg.MonteCarloConfig.TradesPerDay = 3
	}

	if cfg.MarketDataConfig.PoolFeedBaseURL == "" {
		cfg.MarketDataConfig.PoolFeedBaseURL = "https://api.geckoterminal.com/api/v2"
	}
	if cfg.MarketDataConfig.PairLookupBaseURL == "" {
		cfg.MarketDataConfig.PairLookupBaseURL = "https://api.dexscreener.com"
	}
	if cfg.MarketDataConfig.SentimentBaseURL == "" {
		cfg.MarketDataConfig.SentimentBaseURL = "https://api.alternative.me"
	}
	if cfg.MarketDataConfig.GlobalMarketBaseURL == "" {
		cfg.MarketDataConfig.GlobalMarketBaseURL = "https://api.coingecko.com/api/v3"
	}
	if cfg.MarketDataConfig.RequestTimeout <= 0 {
		cfg.MarketDataConfig.RequestTimeout = 10 * time.Second
	}
	if cfg.MarketDataConfig.RetryCount <= 0 {
		cfg.MarketDataConfig.RetryCount = 2
	}
	if cfg.MarketDataConfig.PoolFeedRPS <= 0 {
		cfg.MarketDataConfig.PoolFeedRPS = 0.5
	}
	if cfg.MarketDataConfig.PairLookupRPS <= 0 {
		cfg.MarketDataConfig.PairLookupRPS = 2
	}
	if cfg.MarketDataConfig.SentimentRPS <= 0 {
		cfg.MarketDataConfig.SentimentRPS = 1
	}
	if cfg.MarketDataConfig.CacheTTL <= 0 {
		cfg.MarketDataConfig.CacheTTL = 60 * time.Second
	}

	if cfg.StorageConfig.Driver == "" {
		cfg.StorageConfig.Driver = "postgres"
	}
	if cfg.StorageConfig.MaxConns <= 0 {
		cfg.StorageConfig.MaxConns = 25
	}

	if cfg.ServerConfig.Port == 0 {
		cfg.ServerConfig.Port = 8080
	}
	if cfg.ServerConfig.Host == "" {
		cfg.ServerConfig.Host = "0.0.0.0"
	}
	if cfg.ServerConfig.AllowedOrigins == "" {
		cfg.ServerConfig.AllowedOrigins = "*"
	}
	if cfg.ServerConfig.ReadTimeout <= 0 {
		cfg.ServerConfig.ReadTimeout = 30
	}
	if cfg.ServerConfig.WriteTimeout <= 0 {
		cfg.ServerConfig.WriteTimeout = 30
	}
	if cfg.ServerConfig.ShutdownTimeout <= 0 {
		cfg.ServerConfig.ShutdownTimeout = 10
	}
}

// applyEnvOverrides applies environment variable overrides to the config
func applyEnvOverrides(cfg *Config) {
	// Engine config
	if networks := os.Getenv("ENGINE_NETWORKS"); networks != "" {
		cfg.EngineConfig.Networks = splitCSV(networks)
	}
	if users := os.Getenv("ENGINE_USERS"); users != "" {
		cfg.EngineConfig.Users = splitCSV(users)
	}
	cfg.EngineConfig.CycleInterval = getEnvDurationOrDefault("ENGINE_CYCLE_INTERVAL", cfg.EngineConfig.CycleInterval)
	cfg.EngineConfig.TickerEnabled = getEnvOrDefault("ENGINE_TICKER_ENABLED", boolString(cfg.EngineConfig.TickerEnabled)) == "true"
	cfg.EngineConfig.MaxConcurrency = getEnvIntOrDefault("ENGINE_MAX_CONCURRENCY", cfg.EngineConfig.MaxConcurrency)

	// Risk config
	cfg.RiskConfig.InitialCapitalUSD = getEnvFloatOrDefault("RISK_INITIAL_CAPITAL_USD", cfg.RiskConfig.InitialCapitalUSD)
	cfg.RiskConfig.CoreMaxRiskPerTradePct = getEnvFloatOrDefault("RISK_CORE_MAX_RISK_PCT", cfg.RiskConfig.CoreMaxRiskPerTradePct)
	cfg.RiskConfig.SatelliteMaxRiskPerTradePct = getEnvFloatOrDefault("RISK_SATELLITE_MAX_RISK_PCT", cfg.RiskConfig.SatelliteMaxRiskPerTradePct)
	cfg.RiskConfig.MaxDailyLossPct = getEnvFloatOrDefault("RISK_MAX_DAILY_LOSS_PCT", cfg.RiskConfig.MaxDailyLossPct)
	cfg.RiskConfig.MaxWeeklyLossPct = getEnvFloatOrDefault("RISK_MAX_WEEKLY_LOSS_PCT", cfg.RiskConfig.MaxWeeklyLossPct)

	// Detector and confluence thresholds
	cfg.DetectorConfig.MinMomentumScore = getEnvFloatOrDefault("DETECTOR_MIN_MOMENTUM_SCORE", cfg.DetectorConfig.MinMomentumScore)
	cfg.DetectorConfig.MinEarlyScore = getEnvFloatOrDefault("DETECTOR_MIN_EARLY_SCORE", cfg.DetectorConfig.MinEarlyScore)
	cfg.ConfluenceConfig.CoreMinConfidence = getEnvFloatOrDefault("CONFLUENCE_CORE_MIN", cfg.ConfluenceConfig.CoreMinConfidence)
	cfg.ConfluenceConfig.SatelliteMinConfidence = getEnvFloatOrDefault("CONFLUENCE_SATELLITE_MIN", cfg.ConfluenceConfig.SatelliteMinConfidence)

	// Market data config
	cfg.MarketDataConfig.PoolFeedBaseURL = getEnvOrDefault("MARKET_POOL_FEED_URL", cfg.MarketDataConfig.PoolFeedBaseURL)
	cfg.MarketDataConfig.PairLookupBaseURL = getEnvOrDefault("MARKET_PAIR_LOOKUP_URL", cfg.MarketDataConfig.PairLookupBaseURL)
	cfg.MarketDataConfig.SentimentBaseURL = getEnvOrDefault("MARKET_SENTIMENT_URL", cfg.MarketDataConfig.SentimentBaseURL)
	cfg.MarketDataConfig.GlobalMarketBaseURL = getEnvOrDefault("MARKET_GLOBAL_URL", cfg.MarketDataConfig.GlobalMarketBaseURL)

	// Storage config
	cfg.StorageConfig.Driver = getEnvOrDefault("STORAGE_DRIVER", cfg.StorageConfig.Driver)
	cfg.StorageConfig.DatabaseURL = getEnvOrDefault("DATABASE_URL", cfg.StorageConfig.DatabaseURL)
	cfg.StorageConfig.MaxConns = getEnvIntOrDefault("DATABASE_MAX_CONNS", cfg.StorageConfig.MaxConns)

	// Redis config
	cfg.RedisConfig.Enabled = getEnvOrDefault("REDIS_ENABLED", boolString(cfg.RedisConfig.Enabled)) == "true"
	cfg.RedisConfig.Address = getEnvOrDefault("REDIS_ADDRESS", cfg.RedisConfig.Address)
	cfg.RedisConfig.Password = getEnvOrDefault("REDIS_PASSWORD", cfg.RedisConfig.Password)
	cfg.RedisConfig.DB = getEnvIntOrDefault("REDIS_DB", cfg.RedisConfig.DB)
	cfg.RedisConfig.PoolSize = getEnvIntOrDefault("REDIS_POOL_SIZE", cfg.RedisConfig.PoolSize)

	// Server config
	cfg.ServerConfig.Enabled = getEnvOrDefault("SERVER_ENABLED", boolString(cfg.ServerConfig.Enabled)) == "true"
	cfg.ServerConfig.Port = getEnvIntOrDefault("SERVER_PORT", cfg.ServerConfig.Port)
	cfg.ServerConfig.Host = getEnvOrDefault("SERVER_HOST", cfg.ServerConfig.Host)
	cfg.ServerConfig.AllowedOrigins = getEnvOrDefault("SERVER_ALLOWED_ORIGINS", cfg.ServerConfig.AllowedOrigins)

	// Cron secret
	cfg.CronConfig.Secret = getEnvOrDefault("CRON_SECRET", cfg.CronConfig.Secret)

	// Notification config
	cfg.NotificationConfig.Enabled = getEnvOrDefault("NOTIFICATIONS_ENABLED", boolString(cfg.NotificationConfig.Enabled)) == "true"
	cfg.NotificationConfig.Telegram.Enabled = getEnvOrDefault("TELEGRAM_ENABLED", boolString(cfg.NotificationConfig.Telegram.Enabled)) == "true"
	cfg.NotificationConfig.Telegram.BotToken = getEnvOrDefault("TELEGRAM_BOT_TOKEN", cfg.NotificationConfig.Telegram.BotToken)
	cfg.NotificationConfig.Telegram.ChatID = getEnvOrDefault("TELEGRAM_CHAT_ID", cfg.NotificationConfig.Telegram.ChatID)
	cfg.NotificationConfig.Discord.Enabled = getEnvOrDefault("DISCORD_ENABLED", boolString(cfg.NotificationConfig.Discord.Enabled)) == "true"
	cfg.NotificationConfig.Discord.WebhookURL = getEnvOrDefault("DISCORD_WEBHOOK_URL", cfg.NotificationConfig.Discord.WebhookURL)

	// Logging config
	cfg.LoggingConfig.Level = getEnvOrDefault("LOG_LEVEL", defaultString(cfg.LoggingConfig.Level, "INFO"))
	cfg.LoggingConfig.Output = getEnvOrDefault("LOG_OUTPUT", defaultString(cfg.LoggingConfig.Output, "stdout"))
	cfg.LoggingConfig.JSONFormat = getEnvOrDefault("LOG_JSON", "true") == "true"
	cfg.LoggingConfig.IncludeFile = getEnvOrDefault("LOG_INCLUDE_FILE", "false") == "true"
}

// Validate checks the required settings for the selected run mode
func (c *Config) Validate() error {
	switch c.StorageConfig.Driver {
	case "postgres":
		if c.StorageConfig.DatabaseURL == "" {
			return fmt.Errorf("config: DATABASE_URL is required with the postgres storage driver")
		}
	case "memory":
	default:
		return fmt.Errorf("config: unknown storage driver %q", c.StorageConfig.Driver)
	}

	if c.ServerConfig.Enabled && c.CronConfig.Secret == "" {
		return fmt.Errorf("config: CRON_SECRET is required when the HTTP server is enabled")
	}

	if len(c.EngineConfig.Networks) == 0 {
		return fmt.Errorf("config: at least one network must be configured")
	}

	return nil
}

func loadFromFile(filename string) (*Config, error) {
	file, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var config Config
	if err := json.Unmarshal(file, &config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return &config, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func boolString(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

func defaultString(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}

// GenerateSampleConfig creates a sample configuration file
func GenerateSampleConfig(filename string) error {
	config := Config{
		EngineConfig: EngineConfig{
			Networks:       []string{"ethereum", "base", "solana"},
			Users:          []string{"demo"},
			CycleInterval:  15 * time.Minute,
			TickerEnabled:  true,
			MaxConcurrency: 4,
		},
		RiskConfig: RiskConfig{
			InitialCapitalUSD:           10000,
			CoreMaxRiskPerTradePct:      0.5,
			SatelliteMaxRiskPerTradePct: 0.25,
			MaxDailyLossPct:             2.0,
			MaxWeeklyLossPct:            6.0,
			CoreMaxTradesPerDay:         5,
			SatelliteMaxTradesPerDay:    2,
			SatelliteConsecLossLimit:    3,
			SatelliteCooldown:           24 * time.Hour,
		},
		ConfluenceConfig: ConfluenceConfig{
			CoreMinConfidence:      75,
			SatelliteMinConfidence: 50,
			EarlyCorePromotion:     85,
		},
		DetectorConfig: DetectorConfig{
			MinMomentumScore: 55,
			MinEarlyScore:    50,
		},
		PositionConfig: PositionConfig{
			CoreTrailingStopPct:      0.05,
			SatelliteTrailingStopPct: 0.10,
			CoreMaxHoldHours:         48,
			SatelliteMaxHoldHours:    168,
			CoreTakeProfitPct:        0.15,
			SatelliteTakeProfitPct:   0.80,
			VolumeFadeRatio:          0.3,
			LiquidityFloorUSD:        30000,
		},
		MonteCarloConfig: MonteCarloConfig{
			Simulations:  5000,
			TradesPerDay: 3,
		},
		StorageConfig: StorageConfig{
			Driver:   "postgres",
			MaxConns: 25,
		},
		ServerConfig: ServerConfig{
			Enabled:        true,
			Port:           8080,
			Host:           "0.0.0.0",
			AllowedOrigins: "*",
		},
		LoggingConfig: LoggingConfig{
			Level:      "INFO",
			Output:     "stdout",
			JSONFormat: true,
		},
	}

	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(filename, data, 0644)
}
