package shared

import (
	_ "embed"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

//go:embed config.example.toml
var exampleConf []byte

// Environment variables that override values loaded from the TOML file.
const (
	EnvAPIToken     = "CASSETTE_API_TOKEN"
	EnvDownloadsURL = "CASSETTE_DOWNLOADS_URL"
	EnvQuality      = "CASSETTE_QUALITY"
	EnvKVBackend    = "CASSETTE_KV_BACKEND"
	EnvRedisAddr    = "CASSETTE_REDIS_ADDR"
	EnvLogLevel     = "CASSETTE_LOG_LEVEL"
)

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Database  DatabaseConfig  `toml:"database"`
	Services  ServicesConfig  `toml:"services"`
	Playback  PlaybackConfig  `toml:"playback"`
	Cache     CacheConfig     `toml:"cache"`
	KV        KVConfig        `toml:"kv"`
	Server    ServerConfig    `toml:"server"`
	Downloads DownloadsConfig `toml:"downloads"`
	Log       LogConfig       `toml:"log"`
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Path         string `toml:"path"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// ServicesConfig points at the download daemon and the remote account API.
//
// An empty DownloadsURL means no download capability: only preview streams can play.
type ServicesConfig struct {
	DownloadsURL    string `toml:"downloads_url"`
	CapabilitiesURL string `toml:"capabilities_url"`
	APIToken        string `toml:"api_token"`
	TimeoutSeconds  int    `toml:"timeout_seconds"`
}

// PlaybackConfig contains engine defaults. Quality and Normalize are the fallback
// values for settings that were never written to the key/value store.
type PlaybackConfig struct {
	Quality             string  `toml:"quality"`
	Normalize           bool    `toml:"normalize"`
	PersistIntervalMS   int     `toml:"persist_interval_ms"`
	CapabilityDelayMS   int     `toml:"capability_delay_ms"`
	ProgressTickMS      int     `toml:"progress_tick_ms"`
	CompressorThreshold float64 `toml:"compressor_threshold_db"`
	CompressorRatio     float64 `toml:"compressor_ratio"`
	OutputGain          float64 `toml:"output_gain"`
}

// CacheConfig bounds the in-memory resolution cache.
type CacheConfig struct {
	MaxEntries int `toml:"max_entries"`
}

// KVConfig selects the durable key/value backend ("sqlite" or "redis").
type KVConfig struct {
	Backend       string `toml:"backend"`
	RedisAddr     string `toml:"redis_addr"`
	RedisPassword string `toml:"redis_password"`
	RedisDB       int    `toml:"redis_db"`
	Prefix        string `toml:"prefix"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// DownloadsConfig contains the directory managed by the download service.
type DownloadsConfig struct {
	Directory string `toml:"directory"`
	Watch     bool   `toml:"watch"`
}

// LogConfig contains log level and rotation settings for file logging.
type LogConfig struct {
	Level      string `toml:"level"`
	File       string `toml:"file"`
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days"`
	Compress   bool   `toml:"compress"`
}

// PersistInterval returns the resume snapshot throttle window.
func (p PlaybackConfig) PersistInterval() time.Duration {
	return time.Duration(p.PersistIntervalMS) * time.Millisecond
}

// CapabilityDelay returns how long startup waits before fetching capabilities.
func (p PlaybackConfig) CapabilityDelay() time.Duration {
	return time.Duration(p.CapabilityDelayMS) * time.Millisecond
}

// ProgressTick returns the interval between progress updates while playing.
func (p PlaybackConfig) ProgressTick() time.Duration {
	return time.Duration(p.ProgressTickMS) * time.Millisecond
}

// Timeout returns the HTTP client timeout for remote services.
func (s ServicesConfig) Timeout() time.Duration {
	return time.Duration(s.TimeoutSeconds) * time.Second
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
//
// Values from a .env file in the working directory and the process environment are applied on top.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	// godotenv.Load never overrides variables that are already set.
	_ = godotenv.Load()
	config.ApplyEnv(os.Getenv)

	return config, nil
}

// ApplyEnv overrides config values with non-empty environment variables read through getenv.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if v := getenv(EnvAPIToken); v != "" {
		c.Services.APIToken = v
	}
	if v := getenv(EnvDownloadsURL); v != "" {
		c.Services.DownloadsURL = v
	}
	if v := getenv(EnvQuality); v != "" {
		c.Playback.Quality = v
	}
	if v := getenv(EnvKVBackend); v != "" {
		c.KV.Backend = v
	}
	if v := getenv(EnvRedisAddr); v != "" {
		c.KV.RedisAddr = v
	}
	if v := getenv(EnvLogLevel); v != "" {
		c.Log.Level = v
	}
}

// Validate checks values that would otherwise fail later at runtime.
func (c *Config) Validate() error {
	switch c.KV.Backend {
	case "", "sqlite", "redis":
	default:
		return fmt.Errorf("%w: unknown kv backend %q", ErrInvalidConfig, c.KV.Backend)
	}
	if c.KV.Backend == "redis" && c.KV.RedisAddr == "" {
		return fmt.Errorf("%w: kv.redis_addr is required for the redis backend", ErrInvalidConfig)
	}
	if c.Cache.MaxEntries < 0 {
		return fmt.Errorf("%w: cache.max_entries must not be negative", ErrInvalidConfig)
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("%w: server.port out of range: %s", ErrInvalidConfig, strconv.Itoa(c.Server.Port))
	}
	return nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s: %w", path, err)
	}

	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
