// Package config loads classroomd's process-wide configuration.
//
// Precedence (highest to lowest): environment variable > config file >
// default. The only value taken from the command line is the config file's
// path (--config). The external-facing environment variables (DATABASE_URL,
// KV_URL, ...) are bound directly by name, matching the variables a deployer
// already sets for the upstream services this server depends on; the
// ambient-stack fields (logging, telemetry, shutdown timeout) additionally
// accept a CLASSROOMD_ prefixed override.
package config

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/classroomlive/classroomd/internal/bytesize"
	"github.com/classroomlive/classroomd/internal/logger"
	"github.com/classroomlive/classroomd/internal/telemetry"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// Config is the root configuration struct, loaded via viper and validated
// with go-playground/validator struct tags.
type Config struct {
	Debug bool `mapstructure:"debug" yaml:"debug"`

	Listen ListenConfig `mapstructure:"listen" yaml:"listen"`

	Logging   LoggingConfig         `mapstructure:"logging" yaml:"logging"`
	Telemetry telemetry.Config      `mapstructure:"telemetry" yaml:"telemetry"`
	Profiling telemetry.ProfilingConfig `mapstructure:"profiling" yaml:"profiling"`

	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"required,gt=0" yaml:"shutdown_timeout"`

	Database DatabaseConfig `mapstructure:"database" yaml:"database"`
	KV       KVConfig       `mapstructure:"kv" yaml:"kv"`
	Cache    CacheConfig    `mapstructure:"cache" yaml:"cache"`
	Object   ObjectConfig   `mapstructure:"object" yaml:"object"`
	Auth     AuthConfig     `mapstructure:"auth" yaml:"auth"`
	Limits   LimitsConfig   `mapstructure:"limits" yaml:"limits"`

	SentryDSN string `mapstructure:"sentry_dsn" yaml:"sentry_dsn,omitempty"`
}

// ListenConfig configures the HTTP/WebSocket listener.
type ListenConfig struct {
	Address string `mapstructure:"address" validate:"required" yaml:"address"`
}

// LoggingConfig controls logging behavior, mirroring logger.Config.
type LoggingConfig struct {
	Level  string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error" yaml:"level"`
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`
	Output string `mapstructure:"output" validate:"required" yaml:"output"`
}

func (l LoggingConfig) ToLoggerConfig() logger.Config {
	return logger.Config{Level: l.Level, Format: l.Format, Output: l.Output}
}

// DatabaseConfig is the Postgres metadata store connection (DATABASE_URL).
type DatabaseConfig struct {
	URL string `mapstructure:"url" validate:"required" yaml:"url"`
}

// KVConfig is the Redis-backed hot tier (KV_URL/KV_DB). Every
// instance points at the same URL+DB so the hot tier is shared rather than
// per-process.
type KVConfig struct {
	URL string `mapstructure:"url" validate:"required" yaml:"url"`
	DB  int    `mapstructure:"db" yaml:"db"`
}

// CacheConfig is the ristretto-backed memoization cache (CACHE_DB).
type CacheConfig struct {
	DB         int   `mapstructure:"db" yaml:"db"`
	NumCounters int64 `mapstructure:"num_counters" yaml:"num_counters"`
	MaxCost     int64 `mapstructure:"max_cost" yaml:"max_cost"`
	TTL        time.Duration `mapstructure:"ttl" yaml:"ttl"`
}

// ObjectConfig is the S3-compatible cold tier (OBJECT_BUCKET).
type ObjectConfig struct {
	Bucket   string `mapstructure:"bucket" validate:"required" yaml:"bucket"`
	Region   string `mapstructure:"region" yaml:"region"`
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint,omitempty"`
}

// AuthConfig is the external token verifier endpoint plus the monitor API
// key (MONITOR_KEY).
type AuthConfig struct {
	VerifyURL  string `mapstructure:"verify_url" validate:"required" yaml:"verify_url"`
	MonitorKey string `mapstructure:"monitor_key" yaml:"monitor_key,omitempty"`
}

// LimitsConfig is the file store's size thresholds (PROJECT_SIZE_LIMIT,
// HOT_LIMIT).
type LimitsConfig struct {
	ProjectSizeLimit bytesize.ByteSize `mapstructure:"project_size_limit" yaml:"project_size_limit"`
	HotLimit         bytesize.ByteSize `mapstructure:"hot_limit" yaml:"hot_limit"`
}

// Load reads configuration from defaults, an optional file and environment
// variables: file values override defaults, and a matching environment
// variable, when set, overrides both.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setupViper(v, configPath)
	bindExternalEnv(v)

	if configPath != "" {
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %q: %w", configPath, err)
		}
	} else if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(decodeHooks())); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

func setupViper(v *viper.Viper, configPath string) {
	v.SetEnvPrefix("CLASSROOMD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		return
	}
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/classroomd")
	v.SetConfigName("config")
	v.SetConfigType("yaml")
}

// bindExternalEnv binds the flat, unprefixed environment variable names
// directly, so a deployer who already exports DATABASE_URL for other
// services in the stack doesn't need a CLASSROOMD_ variant.
func bindExternalEnv(v *viper.Viper) {
	_ = v.BindEnv("debug", "DEBUG")
	_ = v.BindEnv("database.url", "DATABASE_URL")
	_ = v.BindEnv("kv.url", "KV_URL")
	_ = v.BindEnv("kv.db", "KV_DB")
	_ = v.BindEnv("cache.db", "CACHE_DB")
	_ = v.BindEnv("object.bucket", "OBJECT_BUCKET")
	_ = v.BindEnv("limits.project_size_limit", "PROJECT_SIZE_LIMIT")
	_ = v.BindEnv("limits.hot_limit", "HOT_LIMIT")
	_ = v.BindEnv("auth.monitor_key", "MONITOR_KEY")
	_ = v.BindEnv("sentry_dsn", "SENTRY_DSN")
}

func decodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		byteSizeDecodeHook(),
		mapstructure.StringToTimeDurationHookFunc(),
	)
}

func byteSizeDecodeHook() mapstructure.DecodeHookFunc {
	return func(from, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(bytesize.ByteSize(0)) {
			return data, nil
		}
		switch v := data.(type) {
		case string:
			return bytesize.ParseByteSize(v)
		case int:
			return bytesize.ByteSize(v), nil
		case int64:
			return bytesize.ByteSize(v), nil
		case float64:
			return bytesize.ByteSize(v), nil
		default:
			return data, nil
		}
	}
}
