package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"gopkg.in/yaml.v3"
)

func writeConfigFile(t *testing.T, doc map[string]any) string {
	t.Helper()
	data, err := yaml.Marshal(doc)
	if err != nil {
		t.Fatalf("marshal config yaml: %v", err)
	}
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write config file: %v", err)
	}
	return path
}

func TestLoad_FromFile(t *testing.T) {
	path := writeConfigFile(t, map[string]any{
		"debug": true,
		"listen": map[string]any{
			"address": ":9090",
		},
		"logging": map[string]any{
			"level":  "DEBUG",
			"format": "json",
			"output": "stderr",
		},
		"database": map[string]any{
			"url": "postgres://db.internal/classroomd",
		},
		"kv": map[string]any{
			"url": "redis://kv.internal:6379",
			"db":  2,
		},
		"object": map[string]any{
			"bucket": "classroom-files",
		},
		"auth": map[string]any{
			"verify_url":  "http://auth.internal/verify",
			"monitor_key": "s3cret",
		},
		"limits": map[string]any{
			"project_size_limit": "512MiB",
			"hot_limit":          "128MiB",
		},
		"shutdown_timeout": "15s",
	})

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if !cfg.Debug {
		t.Error("expected debug true")
	}
	if cfg.Listen.Address != ":9090" {
		t.Errorf("expected listen address :9090, got %q", cfg.Listen.Address)
	}
	if cfg.Logging.Level != "DEBUG" || cfg.Logging.Format != "json" {
		t.Errorf("unexpected logging config: %+v", cfg.Logging)
	}
	if cfg.Database.URL != "postgres://db.internal/classroomd" {
		t.Errorf("unexpected database url %q", cfg.Database.URL)
	}
	if cfg.KV.DB != 2 {
		t.Errorf("expected kv db 2, got %d", cfg.KV.DB)
	}
	if cfg.Auth.MonitorKey != "s3cret" {
		t.Errorf("unexpected monitor key %q", cfg.Auth.MonitorKey)
	}
	if cfg.Limits.ProjectSizeLimit != 512<<20 {
		t.Errorf("expected project size limit 512MiB, got %d", cfg.Limits.ProjectSizeLimit)
	}
	if cfg.Limits.HotLimit != 128<<20 {
		t.Errorf("expected hot limit 128MiB, got %d", cfg.Limits.HotLimit)
	}
	if cfg.ShutdownTimeout != 15*time.Second {
		t.Errorf("expected shutdown timeout 15s, got %v", cfg.ShutdownTimeout)
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfigFile(t, map[string]any{
		"listen":  map[string]any{"address": ":9090"},
		"logging": map[string]any{"level": "INFO", "format": "text", "output": "stdout"},
		"database": map[string]any{
			"url": "postgres://from-file/classroomd",
		},
		"kv":     map[string]any{"url": "redis://kv.internal:6379"},
		"object": map[string]any{"bucket": "classroom-files"},
		"auth":   map[string]any{"verify_url": "http://auth.internal/verify"},
	})

	t.Setenv("DATABASE_URL", "postgres://from-env/classroomd")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.Database.URL != "postgres://from-env/classroomd" {
		t.Errorf("expected env var to override file, got %q", cfg.Database.URL)
	}
}

func TestLoad_RejectsIncompleteConfig(t *testing.T) {
	path := writeConfigFile(t, map[string]any{
		"listen": map[string]any{"address": ":9090"},
		// database.url, kv.url, object.bucket, auth.verify_url missing
	})

	// Make sure a leaked env var from another test can't satisfy the
	// missing field.
	t.Setenv("DATABASE_URL", "")

	if _, err := Load(path); err == nil {
		t.Fatal("expected validation failure for incomplete config")
	}
}
