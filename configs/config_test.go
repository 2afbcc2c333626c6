package configs_test

import (
	"testing"
	"time"

	config "github.com/avatarctic/satcrack-offline/configs"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load()
	require.NoError(t, err)
	require.Equal(t, "badger", cfg.Storage.Backend)
	require.Equal(t, "memory", cfg.Generations.Backend)
	require.Equal(t, "sat-crack-v1.2", cfg.Offline.Version)
	require.Equal(t, 3*time.Second, cfg.Offline.APITimeout)
	require.Contains(t, cfg.Offline.CriticalAssets, "/index.html")
	require.Equal(t, []string{"api.jsonsilo.com"}, cfg.Offline.APIHosts)
	require.Contains(t, cfg.Database.DSN, "dbname=satcrack")
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("STORAGE_BACKEND", "memory")
	t.Setenv("OFFLINE_API_HOSTS", "api.one.example, ,api.two.example")
	t.Setenv("OFFLINE_API_TIMEOUT", "750ms")
	t.Setenv("RATE_LIMIT_BURST", "1.5")
	t.Setenv("REDIS_ENABLED", "not-a-bool")

	cfg, err := config.Load()
	require.NoError(t, err)
	require.Equal(t, "memory", cfg.Storage.Backend)
	require.Equal(t, []string{"api.one.example", "api.two.example"}, cfg.Offline.APIHosts)
	require.Equal(t, 750*time.Millisecond, cfg.Offline.APITimeout)
	require.InDelta(t, 1.5, cfg.RateLimit.BurstMultiplier, 1e-9)
	require.False(t, cfg.Redis.Enabled)
}

func TestLoad_RejectsInvalidCombinations(t *testing.T) {
	cases := map[string]map[string]string{
		"redis storage without redis": {"STORAGE_BACKEND": "redis"},
		"unknown storage":             {"STORAGE_BACKEND": "floppy"},
		"unknown generations":         {"GENERATIONS_BACKEND": "sqlite"},
		"origin without host":         {"OFFLINE_ORIGIN": "/relative"},
	}
	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			for k, v := range env {
				t.Setenv(k, v)
			}
			_, err := config.Load()
			require.Error(t, err)
		})
	}
}
