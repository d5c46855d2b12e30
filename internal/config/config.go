package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	App        AppConfig        `mapstructure:"app"`
	Engine     EngineConfig     `mapstructure:"engine"`
	Strategies StrategiesConfig `mapstructure:"strategies"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Vault      VaultConfig      `mapstructure:"vault"`
	Exchange   ExchangeConfig   `mapstructure:"exchange"`
	Monitoring MonitoringConfig `mapstructure:"monitoring"`
}

// AppConfig contains application-level settings
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"` // development, staging, production
	LogLevel    string `mapstructure:"log_level"`
	LogFormat   string `mapstructure:"log_format"` // "json" or "console"
}

// EngineConfig contains scheduler and market resolution settings
type EngineConfig struct {
	Symbol          string        `mapstructure:"symbol"`            // trading pair, e.g. "BTCUSDT"
	BaseAsset       string        `mapstructure:"base_asset"`        // e.g. "BTC"
	QuoteAsset      string        `mapstructure:"quote_asset"`       // e.g. "USDT"
	CycleInterval   time.Duration `mapstructure:"cycle_interval"`    // period between cycles
	CallTimeout     time.Duration `mapstructure:"call_timeout"`      // per gateway call
	SnapshotTTL     time.Duration `mapstructure:"snapshot_ttl"`      // max snapshot age before re-fetch
	MetadataTTL     time.Duration `mapstructure:"metadata_ttl"`      // tick/lot cache lifetime
	BuyCooldown     time.Duration `mapstructure:"buy_cooldown"`      // min gap between buys per agent
	SellCooldown    time.Duration `mapstructure:"sell_cooldown"`     // min gap between sells per agent
	TransferBuffer  float64       `mapstructure:"transfer_buffer"`   // quote units held back from transfers
	CandleInterval  string        `mapstructure:"candle_interval"`   // momentum candle interval, e.g. "3m"
	CandleLookback  int           `mapstructure:"candle_lookback"`   // candles fetched for momentum
	FundingHistSize int           `mapstructure:"funding_hist_size"` // funding history fallback depth
}

// StrategiesConfig contains per-profile strategy settings
type StrategiesConfig struct {
	MinNotional     float64            `mapstructure:"min_notional"`     // exchange minimum order value in quote units
	BalanceFraction float64            `mapstructure:"balance_fraction"` // fraction of available balance used for sizing
	Conservative    ConservativeConfig `mapstructure:"conservative"`
	Aggressive      AggressiveConfig   `mapstructure:"aggressive"`
	SpotDCA         SpotDCAConfig      `mapstructure:"spot_dca"`
}

// ConservativeConfig contains funding-rate arbitrage settings
type ConservativeConfig struct {
	FundingThreshold float64 `mapstructure:"funding_threshold"` // e.g. 0.0001 (0.01% per interval)
}

// AggressiveConfig contains momentum strategy settings
type AggressiveConfig struct {
	MomentumThreshold float64 `mapstructure:"momentum_threshold"` // percent, e.g. 0.5
	MomentumSpan      int     `mapstructure:"momentum_span"`      // candles between compared closes
}

// SpotDCAConfig contains accumulation and take-profit settings
type SpotDCAConfig struct {
	TakeProfitPct float64 `mapstructure:"take_profit_pct"` // e.g. 0.05 (5%)
	BuyNotional   float64 `mapstructure:"buy_notional"`    // fixed quote amount per accumulation buy
}

// DatabaseConfig contains PostgreSQL settings for the agent store
type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	SSLMode  string `mapstructure:"ssl_mode"`
	PoolSize int    `mapstructure:"pool_size"`
}

// RedisConfig contains the optional shared snapshot cache settings
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// VaultConfig contains HashiCorp Vault settings for the signer resolver
type VaultConfig struct {
	Address    string        `mapstructure:"address"`
	Token      string        `mapstructure:"token"`
	MountPath  string        `mapstructure:"mount_path"`  // KV v2 mount, default "secret"
	SecretRoot string        `mapstructure:"secret_root"` // base path for agent credentials
	CacheTTL   time.Duration `mapstructure:"cache_ttl"`
}

// ExchangeConfig contains exchange gateway settings
type ExchangeConfig struct {
	Name         string  `mapstructure:"name"` // "binance"
	Mode         string  `mapstructure:"mode"` // "paper" or "live"
	Testnet      bool    `mapstructure:"testnet"`
	RateLimitRPS float64 `mapstructure:"rate_limit_rps"` // gateway request budget per second
}

// MonitoringConfig contains monitoring settings
type MonitoringConfig struct {
	PrometheusPort int  `mapstructure:"prometheus_port"`
	EnableMetrics  bool `mapstructure:"enable_metrics"`
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set config file
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	// Enable environment variable overrides
	v.AutomaticEnv()
	v.SetEnvPrefix("ALPHAPILOT")

	// Set defaults
	setDefaults(v)

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found; using defaults and environment variables
	}

	// Unmarshal into struct
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// App defaults
	v.SetDefault("app.name", "AlphaPilot")
	v.SetDefault("app.version", "0.1.0")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.log_level", "info")
	v.SetDefault("app.log_format", "console")

	// Engine defaults
	v.SetDefault("engine.symbol", "BTCUSDT")
	v.SetDefault("engine.base_asset", "BTC")
	v.SetDefault("engine.quote_asset", "USDT")
	v.SetDefault("engine.cycle_interval", "60s")
	v.SetDefault("engine.call_timeout", "5s")
	v.SetDefault("engine.snapshot_ttl", "30s")
	v.SetDefault("engine.metadata_ttl", "5m")
	v.SetDefault("engine.buy_cooldown", "15m")
	v.SetDefault("engine.sell_cooldown", "5m")
	v.SetDefault("engine.transfer_buffer", 0.5)
	v.SetDefault("engine.candle_interval", "3m")
	v.SetDefault("engine.candle_lookback", 10)
	v.SetDefault("engine.funding_hist_size", 8)

	// Strategy defaults
	v.SetDefault("strategies.min_notional", 10.0)
	v.SetDefault("strategies.balance_fraction", 0.9)
	v.SetDefault("strategies.conservative.funding_threshold", 0.0001)
	v.SetDefault("strategies.aggressive.momentum_threshold", 0.5)
	v.SetDefault("strategies.aggressive.momentum_span", 3)
	v.SetDefault("strategies.spot_dca.take_profit_pct", 0.05)
	v.SetDefault("strategies.spot_dca.buy_notional", 10.0)

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.database", "alphapilot")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.pool_size", 10)

	// Redis defaults
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)

	// Vault defaults
	v.SetDefault("vault.address", "http://localhost:8200")
	v.SetDefault("vault.mount_path", "secret")
	v.SetDefault("vault.secret_root", "alphapilot/agents")
	v.SetDefault("vault.cache_ttl", "5m")

	// Exchange defaults
	v.SetDefault("exchange.name", "binance")
	v.SetDefault("exchange.mode", "paper")
	v.SetDefault("exchange.testnet", false)
	v.SetDefault("exchange.rate_limit_rps", 8.0)

	// Monitoring defaults
	v.SetDefault("monitoring.prometheus_port", 9100)
	v.SetDefault("monitoring.enable_metrics", true)
}

// Validate checks configuration invariants before the engine starts
func (c *Config) Validate() error {
	if c.Engine.Symbol == "" {
		return fmt.Errorf("engine.symbol must be set")
	}
	if c.Engine.CycleInterval <= 0 {
		return fmt.Errorf("engine.cycle_interval must be positive, got %s", c.Engine.CycleInterval)
	}
	if c.Engine.CallTimeout <= 0 {
		return fmt.Errorf("engine.call_timeout must be positive, got %s", c.Engine.CallTimeout)
	}
	if c.Engine.SnapshotTTL <= 0 || c.Engine.SnapshotTTL > 30*time.Second {
		return fmt.Errorf("engine.snapshot_ttl must be in (0s, 30s], got %s", c.Engine.SnapshotTTL)
	}
	if c.Engine.CandleLookback < 2 {
		return fmt.Errorf("engine.candle_lookback must be at least 2, got %d", c.Engine.CandleLookback)
	}
	if c.Strategies.MinNotional <= 0 {
		return fmt.Errorf("strategies.min_notional must be positive, got %f", c.Strategies.MinNotional)
	}
	if c.Strategies.BalanceFraction <= 0 || c.Strategies.BalanceFraction > 1 {
		return fmt.Errorf("strategies.balance_fraction must be in (0, 1], got %f", c.Strategies.BalanceFraction)
	}
	if c.Strategies.Aggressive.MomentumSpan < 1 {
		return fmt.Errorf("strategies.aggressive.momentum_span must be at least 1, got %d", c.Strategies.Aggressive.MomentumSpan)
	}
	if c.Strategies.SpotDCA.TakeProfitPct <= 0 {
		return fmt.Errorf("strategies.spot_dca.take_profit_pct must be positive, got %f", c.Strategies.SpotDCA.TakeProfitPct)
	}
	if c.Strategies.SpotDCA.BuyNotional < c.Strategies.MinNotional {
		return fmt.Errorf("strategies.spot_dca.buy_notional (%f) must be at least strategies.min_notional (%f)",
			c.Strategies.SpotDCA.BuyNotional, c.Strategies.MinNotional)
	}
	switch c.Exchange.Mode {
	case "paper", "live":
	default:
		return fmt.Errorf("exchange.mode must be \"paper\" or \"live\", got %q", c.Exchange.Mode)
	}
	if c.Exchange.Mode == "live" && c.Exchange.Name != "binance" {
		return fmt.Errorf("unsupported exchange: %s", c.Exchange.Name)
	}
	return nil
}

// GetDSN returns the PostgreSQL connection string
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// GetRedisAddr returns the Redis address
func (c *RedisConfig) GetRedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
