package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/signalsfoundry/route-playback/core"
	"github.com/signalsfoundry/route-playback/internal/logging"
	"github.com/signalsfoundry/route-playback/internal/observability"
)

// Config is the service configuration, read from the environment and an
// optional config file. Environment variables take precedence.
type Config struct {
	HTTPAddr    string `mapstructure:"HTTP_ADDR"`
	GRPCAddr    string `mapstructure:"GRPC_ADDR"`
	MetricsAddr string `mapstructure:"METRICS_ADDR"`

	ConverterURL     string        `mapstructure:"CONVERTER_URL"`
	ConverterTimeout time.Duration `mapstructure:"CONVERTER_TIMEOUT"`
	CacheSize        int           `mapstructure:"CONVERTER_CACHE_SIZE"`
	CacheTTL         time.Duration `mapstructure:"CONVERTER_CACHE_TTL"`
	MaxUploadBytes   int64         `mapstructure:"MAX_UPLOAD_BYTES"`

	DBPath string `mapstructure:"DB_PATH"`

	ClockMultiplier float64       `mapstructure:"CLOCK_MULTIPLIER"`
	ClockTick       time.Duration `mapstructure:"CLOCK_TICK"`
	ModelURI        string        `mapstructure:"MODEL_URI"`
	ModelMinPixels  int           `mapstructure:"MODEL_MIN_PIXELS"`

	LogLevel  string `mapstructure:"LOG_LEVEL"`
	LogFormat string `mapstructure:"LOG_FORMAT"`
	LogFile   string `mapstructure:"LOG_FILE"`

	TracingExporter    string  `mapstructure:"TRACING_EXPORTER"`
	TracingEndpoint    string  `mapstructure:"TRACING_ENDPOINT"`
	TracingSampleRatio float64 `mapstructure:"TRACING_SAMPLE_RATIO"`

	Pipeline core.Settings `mapstructure:",squash"`
}

var defaults = map[string]any{
	"HTTP_ADDR":            ":8080",
	"GRPC_ADDR":            ":50051",
	"METRICS_ADDR":         ":9090",
	"CONVERTER_URL":        "http://localhost:8000",
	"CONVERTER_TIMEOUT":    "30s",
	"CONVERTER_CACHE_SIZE": 32,
	"CONVERTER_CACHE_TTL":  "10m",
	"MAX_UPLOAD_BYTES":     32 << 20,
	"DB_PATH":              "playback.db",
	"CLOCK_MULTIPLIER":     10,
	"CLOCK_TICK":           "100ms",
	"MODEL_URI":            "Models/CesiumDrone.glb",
	"MODEL_MIN_PIXELS":     64,
	"LOG_LEVEL":            "info",
	"LOG_FORMAT":           "text",
	"LOG_FILE":             "",
	"TRACING_EXPORTER":     "none",
	"TRACING_ENDPOINT":     "",
	"TRACING_SAMPLE_RATIO": 1.0,
	"MAX_VELOCITY":         core.DefaultMaxVelocity,
	"START_INDEX":          0,
	"END_INDEX":            0,
	"LEAD_TIME":            0,
	"TRAIL_TIME":           0,
}

// Load reads configuration from the environment and, when path is non-empty,
// from the config file at path.
func Load(path string) (Config, error) {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks values that would otherwise fail later at startup.
func (c Config) Validate() error {
	if c.ConverterURL == "" {
		return fmt.Errorf("CONVERTER_URL must be set")
	}
	if c.MaxUploadBytes <= 0 {
		return fmt.Errorf("MAX_UPLOAD_BYTES must be positive, got %d", c.MaxUploadBytes)
	}
	if c.CacheSize < 0 {
		return fmt.Errorf("CONVERTER_CACHE_SIZE must not be negative, got %d", c.CacheSize)
	}
	if c.ClockTick <= 0 {
		return fmt.Errorf("CLOCK_TICK must be positive, got %s", c.ClockTick)
	}
	if err := observability.ValidateExporter(c.TracingExporter); err != nil {
		return fmt.Errorf("TRACING_EXPORTER: %w", err)
	}
	if c.TracingSampleRatio < 0 || c.TracingSampleRatio > 1 {
		return fmt.Errorf("TRACING_SAMPLE_RATIO must be within [0, 1], got %g", c.TracingSampleRatio)
	}
	if err := c.Pipeline.Validate(); err != nil {
		return fmt.Errorf("pipeline settings: %w", err)
	}
	return nil
}

// Settings returns the initial pipeline settings.
func (c Config) Settings() core.Settings {
	return c.Pipeline
}

// Logging returns the logger configuration.
func (c Config) Logging() logging.Config {
	return logging.Config{
		Level:  c.LogLevel,
		Format: c.LogFormat,
		File:   c.LogFile,
	}
}

// Tracing returns the span export configuration.
func (c Config) Tracing() observability.TracingConfig {
	return observability.TracingConfig{
		Exporter:    c.TracingExporter,
		Endpoint:    c.TracingEndpoint,
		SampleRatio: c.TracingSampleRatio,
	}
}
