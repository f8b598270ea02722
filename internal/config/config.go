package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// Forecast horizons are limited to [7, 30] days and the seasonal period is weekly.
const (
	minHorizonDays     = 7
	maxHorizonDays     = 30
	seasonalPeriodDays = 7
)

// Config represents the complete application configuration
type Config struct {
	Flight   FlightConfig   `mapstructure:"flight"`
	Covid    CovidConfig    `mapstructure:"covid"`
	Forecast ForecastConfig `mapstructure:"forecast"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Server   ServerConfig   `mapstructure:"server"`
	Notify   NotifyConfig   `mapstructure:"notify"`
	Export   ExportConfig   `mapstructure:"export"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// FlightConfig holds the fare model data paths and training hyperparameters
type FlightConfig struct {
	TrainPath      string  `mapstructure:"train_path"`
	TestPath       string  `mapstructure:"test_path"`
	ModelPath      string  `mapstructure:"model_path"`
	ReportPath     string  `mapstructure:"report_path"`
	Trees          int     `mapstructure:"trees"`
	MaxDepth       int     `mapstructure:"max_depth"`
	MinSamplesLeaf int     `mapstructure:"min_samples_leaf"`
	FeatureRatio   float64 `mapstructure:"feature_ratio"`
	HoldoutRatio   float64 `mapstructure:"holdout_ratio"`
	Seed           int64   `mapstructure:"seed"`
}

// CovidConfig holds dataset retrieval configuration
type CovidConfig struct {
	DatasetURL      string        `mapstructure:"dataset_url"`
	Timeout         time.Duration `mapstructure:"timeout"`
	MaxRetries      int           `mapstructure:"max_retries"`
	RetryDelayBase  time.Duration `mapstructure:"retry_delay_base"`
	MinObservations int           `mapstructure:"min_observations"`
	DefaultRegion   string        `mapstructure:"default_region"`
	DefaultTarget   string        `mapstructure:"default_target"`
	CacheTTL        time.Duration `mapstructure:"cache_ttl"`
}

// ForecastConfig holds fallback chain configuration
type ForecastConfig struct {
	Strategies     []string `mapstructure:"strategies"`
	MinHorizon     int      `mapstructure:"min_horizon"`
	MaxHorizon     int      `mapstructure:"max_horizon"`
	DefaultHorizon int      `mapstructure:"default_horizon"`
	SeasonalPeriod int      `mapstructure:"seasonal_period"`
	ConfidenceZ    float64  `mapstructure:"confidence_z"`
	MaxIterations  int      `mapstructure:"max_iterations"`
	MaxOrder       int      `mapstructure:"max_order"`
}

// StorageConfig holds dataset cache configuration
type StorageConfig struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

// ServerConfig holds the dashboard server configuration
type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	RefreshSchedule string        `mapstructure:"refresh_schedule"`
	RefreshRegions  []string      `mapstructure:"refresh_regions"`
}

// NotifyConfig holds forecast digest delivery configuration
type NotifyConfig struct {
	Telegram TelegramConfig `mapstructure:"telegram"`
	Slack    SlackConfig    `mapstructure:"slack"`
}

// TelegramConfig holds Telegram notification configuration
type TelegramConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	BotToken       string        `mapstructure:"bot_token"`
	ChatID         string        `mapstructure:"chat_id"`
	MaxRetries     int           `mapstructure:"max_retries"`
	RetryDelayBase time.Duration `mapstructure:"retry_delay_base"`
}

// SlackConfig holds Slack notification configuration
type SlackConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	BotToken  string `mapstructure:"bot_token"`
	ChannelID string `mapstructure:"channel_id"`
}

// ExportConfig holds remote export destinations
type ExportConfig struct {
	KafkaBrokers []string `mapstructure:"kafka_brokers"`
	KafkaTopic   string   `mapstructure:"kafka_topic"`
	S3Region     string   `mapstructure:"s3_region"`
	S3Bucket     string   `mapstructure:"s3_bucket"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from file and environment variables.
// An empty path skips the file and uses defaults plus environment only.
func Load(path string) (*Config, error) {
	v := viper.New()

	// Set defaults
	setDefaults(v)

	// Enable environment variable override
	v.SetEnvPrefix("FORECASTKIT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Unmarshal into Config struct
	var cfg Config
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(&cfg, hook); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// setDefaults configures default values for all configuration options
func setDefaults(v *viper.Viper) {
	// Flight defaults
	v.SetDefault("flight.train_path", "data/Data_Train.xlsx")
	v.SetDefault("flight.test_path", "data/Test_set.xlsx")
	v.SetDefault("flight.model_path", "models/flight_price_model.gob.gz")
	v.SetDefault("flight.report_path", "models/flight_price_model.yaml")
	v.SetDefault("flight.trees", 100)
	v.SetDefault("flight.max_depth", 15)
	v.SetDefault("flight.min_samples_leaf", 2)
	v.SetDefault("flight.feature_ratio", 0.6)
	v.SetDefault("flight.holdout_ratio", 0.2)
	v.SetDefault("flight.seed", 42)

	// Covid defaults
	v.SetDefault("covid.dataset_url", "https://covid.ourworldindata.org/data/owid-covid-data.csv")
	v.SetDefault("covid.timeout", "2m")
	v.SetDefault("covid.max_retries", 3)
	v.SetDefault("covid.retry_delay_base", "1s")
	v.SetDefault("covid.min_observations", 30)
	v.SetDefault("covid.default_region", "India")
	v.SetDefault("covid.default_target", "new_cases_smoothed")
	v.SetDefault("covid.cache_ttl", "24h")

	// Forecast defaults
	v.SetDefault("forecast.strategies", []string{"seasonal", "auto", "naive"})
	v.SetDefault("forecast.min_horizon", 7)
	v.SetDefault("forecast.max_horizon", 30)
	v.SetDefault("forecast.default_horizon", 14)
	v.SetDefault("forecast.seasonal_period", 7)
	v.SetDefault("forecast.confidence_z", 1.96)
	v.SetDefault("forecast.max_iterations", 2000)
	v.SetDefault("forecast.max_order", 3)

	// Storage defaults
	v.SetDefault("storage.driver", "sqlite")
	v.SetDefault("storage.dsn", "data/forecastkit.db")

	// Server defaults
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "5m")
	v.SetDefault("server.refresh_schedule", "0 3 * * *")
	v.SetDefault("server.refresh_regions", []string{})

	// Notify defaults
	// Credentials have empty defaults so FORECASTKIT_* variables can supply them
	v.SetDefault("notify.telegram.enabled", false)
	v.SetDefault("notify.telegram.bot_token", "")
	v.SetDefault("notify.telegram.chat_id", "")
	v.SetDefault("notify.telegram.max_retries", 3)
	v.SetDefault("notify.telegram.retry_delay_base", "1s")
	v.SetDefault("notify.slack.enabled", false)
	v.SetDefault("notify.slack.bot_token", "")
	v.SetDefault("notify.slack.channel_id", "")

	// Export defaults
	v.SetDefault("export.kafka_brokers", []string{})
	v.SetDefault("export.kafka_topic", "forecasts")
	v.SetDefault("export.s3_region", "us-east-1")
	v.SetDefault("export.s3_bucket", "")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
}

// Validate checks that all configuration values are valid
func (c *Config) Validate() error {
	// Validate Flight config
	if c.Flight.ModelPath == "" {
		return fmt.Errorf("flight.model_path is required")
	}
	if c.Flight.Trees < 1 {
		return fmt.Errorf("flight.trees must be at least 1")
	}
	if c.Flight.MaxDepth < 1 {
		return fmt.Errorf("flight.max_depth must be at least 1")
	}
	if c.Flight.MinSamplesLeaf < 1 {
		return fmt.Errorf("flight.min_samples_leaf must be at least 1")
	}
	if c.Flight.FeatureRatio <= 0 || c.Flight.FeatureRatio > 1 {
		return fmt.Errorf("flight.feature_ratio must be in (0, 1]")
	}
	if c.Flight.HoldoutRatio < 0 || c.Flight.HoldoutRatio >= 1 {
		return fmt.Errorf("flight.holdout_ratio must be in [0, 1)")
	}

	// Validate Covid config
	if c.Covid.DatasetURL == "" {
		return fmt.Errorf("covid.dataset_url is required")
	}
	if c.Covid.Timeout <= 0 {
		return fmt.Errorf("covid.timeout must be positive")
	}
	if c.Covid.MinObservations < 1 {
		return fmt.Errorf("covid.min_observations must be at least 1")
	}

	// Validate Forecast config
	if len(c.Forecast.Strategies) == 0 {
		return fmt.Errorf("forecast.strategies must contain at least one strategy")
	}
	validStrategies := map[string]bool{"seasonal": true, "auto": true, "fourier": true, "naive": true}
	for _, s := range c.Forecast.Strategies {
		if !validStrategies[s] {
			return fmt.Errorf("forecast.strategies: unknown strategy %q", s)
		}
	}
	if c.Forecast.Strategies[len(c.Forecast.Strategies)-1] != "naive" {
		return fmt.Errorf("forecast.strategies must end with naive")
	}
	if c.Forecast.MinHorizon < minHorizonDays || c.Forecast.MaxHorizon > maxHorizonDays || c.Forecast.MaxHorizon < c.Forecast.MinHorizon {
		return fmt.Errorf("forecast horizon bounds must satisfy %d <= min_horizon <= max_horizon <= %d", minHorizonDays, maxHorizonDays)
	}
	if c.Forecast.DefaultHorizon < c.Forecast.MinHorizon || c.Forecast.DefaultHorizon > c.Forecast.MaxHorizon {
		return fmt.Errorf("forecast.default_horizon must be within [min_horizon, max_horizon]")
	}
	if c.Forecast.SeasonalPeriod != seasonalPeriodDays {
		return fmt.Errorf("forecast.seasonal_period must be %d (weekly)", seasonalPeriodDays)
	}
	if c.Forecast.ConfidenceZ <= 0 {
		return fmt.Errorf("forecast.confidence_z must be positive")
	}
	if c.Forecast.MaxOrder < 1 {
		return fmt.Errorf("forecast.max_order must be at least 1")
	}

	// Validate Storage config
	validDrivers := map[string]bool{"sqlite": true, "postgres": true}
	if !validDrivers[c.Storage.Driver] {
		return fmt.Errorf("storage.driver must be one of: sqlite, postgres")
	}
	if c.Storage.DSN == "" {
		return fmt.Errorf("storage.dsn is required")
	}

	// Validate Notify config
	if c.Notify.Telegram.Enabled {
		if c.Notify.Telegram.BotToken == "" {
			return fmt.Errorf("notify.telegram.bot_token is required when telegram is enabled")
		}
		if c.Notify.Telegram.ChatID == "" {
			return fmt.Errorf("notify.telegram.chat_id is required when telegram is enabled")
		}
	}
	if c.Notify.Slack.Enabled {
		if c.Notify.Slack.BotToken == "" {
			return fmt.Errorf("notify.slack.bot_token is required when slack is enabled")
		}
		if c.Notify.Slack.ChannelID == "" {
			return fmt.Errorf("notify.slack.channel_id is required when slack is enabled")
		}
	}

	// Validate Logging config
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	return nil
}
