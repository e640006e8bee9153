package config

import (
	"strings"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	Etoro    Etoro    `mapstructure:"etoro"`
	Advisor  Advisor  `mapstructure:"advisor"`
	Analysis Analysis `mapstructure:"analysis"`
	LLM      LLM      `mapstructure:"llm"`
	Report   Report   `mapstructure:"report"`
	Logger   Logger   `mapstructure:"logger"`
	Database Database `mapstructure:"database"`
}

// Etoro holds the configuration for the eToro public API.
type Etoro struct {
	ApiKey         string  `mapstructure:"api_key"`
	UserKey        string  `mapstructure:"user_key"`
	BaseURL        string  `mapstructure:"base_url"`
	RateLimit      float64 `mapstructure:"rate_limit"`
	RateLimitBurst int     `mapstructure:"rate_limit_burst"`
}

// Advisor holds the configuration for the run pipeline.
type Advisor struct {
	TrackedSymbols   []string `mapstructure:"tracked_symbols"`
	CandleInterval   string   `mapstructure:"candle_interval"`
	CandleCount      int      `mapstructure:"candle_count"`
	Timeframe        string   `mapstructure:"timeframe"`
	IncludePositions bool     `mapstructure:"include_positions"`
	StrongTrend      float64  `mapstructure:"strong_trend"`
}

// Analysis holds the tunable windows for the signal primitives.
type Analysis struct {
	ShortWindow      int `mapstructure:"short_window"`
	LongWindow       int `mapstructure:"long_window"`
	StrengthWindow   int `mapstructure:"strength_window"`
	MomentumLookback int `mapstructure:"momentum_lookback"`
	KeyLevelWindow   int `mapstructure:"key_level_window"`
}

// LLM holds the configuration for the commentary generator.
type LLM struct {
	ApiKey         string  `mapstructure:"api_key"`
	Model          string  `mapstructure:"model"`
	MaxTokens      int     `mapstructure:"max_tokens"`
	Temperature    float64 `mapstructure:"temperature"`
	TimeoutSeconds int     `mapstructure:"timeout_seconds"`
}

// Report holds the configuration for the report sink.
type Report struct {
	OutputDir string `mapstructure:"output_dir"`
}

// Logger holds the configuration for the logger.
type Logger struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Database holds the configuration for the database.
type Database struct {
	DSN string `mapstructure:"dsn"`
}

// LoadConfig reads configuration from file or environment variables.
func LoadConfig(path string) (config Config, err error) {
	viper.AddConfigPath(path)
	viper.SetConfigName("config") // name of config file (without extension)
	viper.SetConfigType("yml")    // or yaml, json

	// Allow environment variables to override config file
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Set default values
	viper.SetDefault("etoro.base_url", "https://public-api.etoro.com/api/v1")
	viper.SetDefault("etoro.rate_limit", 10) // requests per second
	viper.SetDefault("etoro.rate_limit_burst", 5)
	viper.SetDefault("advisor.candle_interval", "OneDay")
	viper.SetDefault("advisor.candle_count", 100)
	viper.SetDefault("advisor.timeframe", "1d")
	viper.SetDefault("advisor.include_positions", true)
	viper.SetDefault("advisor.strong_trend", 0.7)
	viper.SetDefault("analysis.short_window", 5)
	viper.SetDefault("analysis.long_window", 20)
	viper.SetDefault("analysis.strength_window", 10)
	viper.SetDefault("analysis.momentum_lookback", 10)
	viper.SetDefault("analysis.key_level_window", 20)
	viper.SetDefault("llm.model", "claude-sonnet-4-20250514")
	viper.SetDefault("llm.max_tokens", 4096)
	viper.SetDefault("llm.timeout_seconds", 120)
	viper.SetDefault("report.output_dir", "./reports")

	err = viper.ReadInConfig()
	if err != nil {
		return
	}

	err = viper.Unmarshal(&config)
	return
}
