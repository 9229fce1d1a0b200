// Package config loads ThreatSage settings from a YAML file, THREATSAGE_*
// environment variables and command-line flags via viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g. THREATSAGE_CACHE_TTL.
const EnvPrefix = "THREATSAGE"

// GeoConfig locates the geolocation service.
type GeoConfig struct {
	BaseURL string
	Timeout time.Duration
}

// CacheConfig selects the enrichment cache backend and its TTL. A non-empty
// RedisURL takes precedence over Path.
type CacheConfig struct {
	Path         string
	TTL          time.Duration
	PersistEvery int
	RedisURL     string
}

// NarrativeConfig locates the text generation service. An empty BaseURL
// disables it and the templated fallback is used.
type NarrativeConfig struct {
	BaseURL string
	Model   string
	Timeout time.Duration
}

// Config is the resolved runtime configuration.
type Config struct {
	Geo             GeoConfig
	Cache           CacheConfig
	MemoryPath      string
	ReputationTable string
	Narrative       NarrativeConfig
	DatabaseURL     string
	FeedURL         string
	MetricsAddr     string
	ReportsDir      string
	LogLevel        string
}

// ValidationError describes a setting that failed validation.
type ValidationError struct {
	Field  string
	Value  interface{}
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation error: %s = %v - %s", e.Field, e.Value, e.Reason)
}

// SetDefaults registers the default value of every key on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("geo.base_url", "http://ip-api.com")
	v.SetDefault("geo.timeout", "5s")
	v.SetDefault("cache.path", "./cache/ip_cache.json")
	v.SetDefault("cache.ttl", "1h")
	v.SetDefault("cache.persist_every", 10)
	v.SetDefault("cache.redis_url", "")
	v.SetDefault("memory.path", "memory_dump.txt")
	v.SetDefault("reputation.table", "")
	v.SetDefault("narrative.base_url", "")
	v.SetDefault("narrative.model", "gpt2")
	v.SetDefault("narrative.timeout", "30s")
	v.SetDefault("database.url", "")
	v.SetDefault("feed.url", "")
	v.SetDefault("metrics.addr", "")
	v.SetDefault("reports.dir", "reports")
	v.SetDefault("logging.level", "info")
}

// Init prepares v: defaults, config file lookup and environment binding.
// A missing config file is not an error; an unreadable one is.
func Init(v *viper.Viper, cfgFile string) error {
	SetDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/threatsage")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

// Load resolves the current values of v into a Config and validates them.
func Load(v *viper.Viper) (Config, error) {
	cfg := Config{
		Geo: GeoConfig{
			BaseURL: v.GetString("geo.base_url"),
			Timeout: v.GetDuration("geo.timeout"),
		},
		Cache: CacheConfig{
			Path:         v.GetString("cache.path"),
			TTL:          v.GetDuration("cache.ttl"),
			PersistEvery: v.GetInt("cache.persist_every"),
			RedisURL:     v.GetString("cache.redis_url"),
		},
		MemoryPath:      v.GetString("memory.path"),
		ReputationTable: v.GetString("reputation.table"),
		Narrative: NarrativeConfig{
			BaseURL: v.GetString("narrative.base_url"),
			Model:   v.GetString("narrative.model"),
			Timeout: v.GetDuration("narrative.timeout"),
		},
		DatabaseURL: v.GetString("database.url"),
		FeedURL:     v.GetString("feed.url"),
		MetricsAddr: v.GetString("metrics.addr"),
		ReportsDir:  v.GetString("reports.dir"),
		LogLevel:    strings.ToLower(v.GetString("logging.level")),
	}
	return cfg, cfg.Validate()
}

// Validate checks ranges that would otherwise fail later at runtime.
func (c Config) Validate() error {
	if c.Geo.Timeout <= 0 {
		return &ValidationError{Field: "geo.timeout", Value: c.Geo.Timeout, Reason: "must be positive"}
	}
	if c.Cache.TTL <= 0 {
		return &ValidationError{Field: "cache.ttl", Value: c.Cache.TTL, Reason: "must be positive"}
	}
	if c.Cache.PersistEvery < 1 {
		return &ValidationError{Field: "cache.persist_every", Value: c.Cache.PersistEvery, Reason: "must be at least 1"}
	}
	if c.Narrative.Timeout <= 0 {
		return &ValidationError{Field: "narrative.timeout", Value: c.Narrative.Timeout, Reason: "must be positive"}
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return &ValidationError{Field: "logging.level", Value: c.LogLevel, Reason: "must be debug, info, warn or error"}
	}
	return nil
}
