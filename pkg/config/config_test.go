package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	v := viper.New()
	SetDefaults(v)

	cfg, err := Load(v)
	require.NoError(t, err)

	assert.Equal(t, "http://ip-api.com", cfg.Geo.BaseURL)
	assert.Equal(t, 5*time.Second, cfg.Geo.Timeout)
	assert.Equal(t, "./cache/ip_cache.json", cfg.Cache.Path)
	assert.Equal(t, time.Hour, cfg.Cache.TTL)
	assert.Equal(t, 10, cfg.Cache.PersistEvery)
	assert.Empty(t, cfg.Cache.RedisURL)
	assert.Equal(t, "memory_dump.txt", cfg.MemoryPath)
	assert.Equal(t, "gpt2", cfg.Narrative.Model)
	assert.Equal(t, 30*time.Second, cfg.Narrative.Timeout)
	assert.Equal(t, "reports", cfg.ReportsDir)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestInit_FileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "threatsage.yaml")
	content := `cache:
  ttl: 30m
  redis_url: redis://localhost:6379
narrative:
  base_url: http://localhost:11434
logging:
  level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	t.Setenv("THREATSAGE_MEMORY_PATH", "/tmp/mem.json")

	v := viper.New()
	require.NoError(t, Init(v, path))

	cfg, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, 30*time.Minute, cfg.Cache.TTL)
	assert.Equal(t, "redis://localhost:6379", cfg.Cache.RedisURL)
	assert.Equal(t, "http://localhost:11434", cfg.Narrative.BaseURL)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "/tmp/mem.json", cfg.MemoryPath)
	assert.Equal(t, "gpt2", cfg.Narrative.Model, "unset keys keep defaults")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value interface{}
	}{
		{"zero geo timeout", "geo.timeout", "0s"},
		{"negative ttl", "cache.ttl", "-1m"},
		{"zero persist every", "cache.persist_every", 0},
		{"zero narrative timeout", "narrative.timeout", "0s"},
		{"unknown log level", "logging.level", "verbose"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := viper.New()
			SetDefaults(v)
			v.Set(tt.key, tt.value)

			_, err := Load(v)
			var verr *ValidationError
			require.True(t, errors.As(err, &verr), "want ValidationError, got %v", err)
			assert.Equal(t, tt.key, verr.Field)
		})
	}
}
