package config

import (
	"strings"
	"time"

	"github.com/classroomlive/classroomd/internal/bytesize"
	"github.com/classroomlive/classroomd/internal/telemetry"
)

// ApplyDefaults fills unspecified fields with sensible defaults
// (PROJECT_SIZE_LIMIT=512MiB, HOT_LIMIT=128MiB, 30s shutdown timeout).
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyTelemetryDefaults(&cfg.Telemetry)
	applyListenDefaults(&cfg.Listen)
	applyKVDefaults(&cfg.KV)
	applyCacheDefaults(&cfg.Cache)
	applyLimitsDefaults(&cfg.Limits)

	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
}

func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

func applyTelemetryDefaults(cfg *telemetry.Config) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "localhost:4317"
	}
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 1.0
	}
}

func applyListenDefaults(cfg *ListenConfig) {
	if cfg.Address == "" {
		cfg.Address = ":8080"
	}
}

func applyKVDefaults(cfg *KVConfig) {
	if cfg.URL == "" {
		cfg.URL = "redis://localhost:6379"
	}
}

func applyCacheDefaults(cfg *CacheConfig) {
	if cfg.NumCounters == 0 {
		cfg.NumCounters = 1e7
	}
	if cfg.MaxCost == 0 {
		cfg.MaxCost = 1 << 28 // 256 MiB of cache entries
	}
	if cfg.TTL == 0 {
		cfg.TTL = 30 * time.Second
	}
}

func applyLimitsDefaults(cfg *LimitsConfig) {
	if cfg.ProjectSizeLimit == 0 {
		cfg.ProjectSizeLimit = bytesize.ByteSize(512 << 20)
	}
	if cfg.HotLimit == 0 {
		cfg.HotLimit = bytesize.ByteSize(128 << 20)
	}
}
