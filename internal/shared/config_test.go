package shared

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestConfig(t *testing.T) {
	t.Run("DefaultConfig", func(t *testing.T) {
		config := DefaultConfig()

		if config.Database.Path != "./cassette.db" {
			t.Errorf("expected database path ./cassette.db, got %s", config.Database.Path)
		}

		if config.Server.Port != 4747 {
			t.Errorf("expected server port 4747, got %d", config.Server.Port)
		}

		if config.Playback.Quality != "high" {
			t.Errorf("expected playback quality high, got %s", config.Playback.Quality)
		}

		if got := config.Playback.PersistInterval(); got != 1500*time.Millisecond {
			t.Errorf("expected persist interval 1.5s, got %v", got)
		}

		if config.KV.Backend != "sqlite" {
			t.Errorf("expected kv backend sqlite, got %s", config.KV.Backend)
		}

		if err := config.Validate(); err != nil {
			t.Errorf("default config should validate: %v", err)
		}
	})

	t.Run("CreateConfigFile", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "config.toml")

		if err := CreateConfigFile(configPath); err != nil {
			t.Fatalf("failed to create config file: %v", err)
		}

		if _, err := os.Stat(configPath); err != nil {
			t.Fatalf("config file should exist: %v", err)
		}

		config, err := LoadConfig(configPath)
		if err != nil {
			t.Fatalf("failed to load created config: %v", err)
		}

		if config.Database.Path != DefaultConfig().Database.Path {
			t.Errorf("created config database path doesn't match default")
		}

		if err := CreateConfigFile(configPath); err == nil {
			t.Error("creating config file again should fail")
		}
	})

	t.Run("LoadConfig", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "config.toml")

		testConfig := `[database]
path = "/custom/path.db"

[services]
downloads_url = "http://localhost:9999"

[playback]
quality = "lossless"
normalize = true

[cache]
max_entries = 16
`
		if err := os.WriteFile(configPath, []byte(testConfig), 0644); err != nil {
			t.Fatalf("failed to write test config: %v", err)
		}

		config, err := LoadConfig(configPath)
		if err != nil {
			t.Fatalf("failed to load config: %v", err)
		}

		if config.Database.Path != "/custom/path.db" {
			t.Errorf("expected database path /custom/path.db, got %s", config.Database.Path)
		}

		if config.Services.DownloadsURL != "http://localhost:9999" {
			t.Errorf("expected downloads url override, got %s", config.Services.DownloadsURL)
		}

		if !config.Playback.Normalize || config.Playback.Quality != "lossless" {
			t.Errorf("expected playback overrides, got %+v", config.Playback)
		}

		if config.Server.Port != 4747 {
			t.Errorf("expected unspecified keys to keep defaults, got port %d", config.Server.Port)
		}
	})

	t.Run("LoadConfig missing file", func(t *testing.T) {
		if _, err := LoadConfig(filepath.Join(t.TempDir(), "nope.toml")); err == nil {
			t.Error("expected error for missing config file")
		}
	})

	t.Run("ApplyEnv", func(t *testing.T) {
		config := DefaultConfig()
		env := map[string]string{
			EnvAPIToken:  "secret",
			EnvQuality:   "standard",
			EnvKVBackend: "redis",
			EnvRedisAddr: "127.0.0.1:6379",
		}
		config.ApplyEnv(func(k string) string { return env[k] })

		if config.Services.APIToken != "secret" {
			t.Errorf("expected api token from env, got %q", config.Services.APIToken)
		}
		if config.Playback.Quality != "standard" {
			t.Errorf("expected quality from env, got %q", config.Playback.Quality)
		}
		if config.KV.Backend != "redis" || config.KV.RedisAddr != "127.0.0.1:6379" {
			t.Errorf("expected redis kv from env, got %+v", config.KV)
		}
		if config.Services.DownloadsURL == "" {
			t.Error("unset variables must not clear values")
		}
	})

	t.Run("Validate", func(t *testing.T) {
		tests := []struct {
			name   string
			mutate func(*Config)
		}{
			{name: "unknown backend", mutate: func(c *Config) { c.KV.Backend = "etcd" }},
			{name: "redis without addr", mutate: func(c *Config) { c.KV.Backend = "redis"; c.KV.RedisAddr = "" }},
			{name: "negative cache size", mutate: func(c *Config) { c.Cache.MaxEntries = -1 }},
			{name: "port out of range", mutate: func(c *Config) { c.Server.Port = 70000 }},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				config := DefaultConfig()
				tt.mutate(config)
				if err := config.Validate(); !errors.Is(err, ErrInvalidConfig) {
					t.Errorf("expected ErrInvalidConfig, got %v", err)
				}
			})
		}
	})
}
