package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for key := range defaults {
		t.Setenv(EnvName(key), "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("DATABASE_URL", "postgres://localhost/aria")
	t.Setenv("JWT_SECRET", "secret")

	cfg, err := Load("", nil)
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, ":8080", cfg.HTTPAddress())
	assert.Equal(t, "aria-characters", cfg.JWTIssuer)
	assert.Equal(t, 7*24*time.Hour, cfg.JWTTTL)
	assert.Equal(t, []string{"*"}, cfg.CORSOrigins)
	assert.Equal(t, "token", cfg.CookieName)
	assert.Equal(t, 5*time.Second, cfg.DBConnectTimeout)
	assert.Equal(t, int64(10<<20), cfg.MaxBodyBytes)
	assert.Equal(t, 10, cfg.RateLimitAttempts)
	assert.Equal(t, 15*time.Minute, cfg.RateLimitWindow)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, StoragePostgres, cfg.Storage)
	assert.Empty(t, cfg.RedisURL)
}

func TestLoadRequiresSecrets(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{
			name: "missing database url",
			env:  map[string]string{"JWT_SECRET": "secret"},
			want: "DATABASE_URL is required",
		},
		{
			name: "missing jwt secret",
			env:  map[string]string{"DATABASE_URL": "postgres://localhost/aria"},
			want: "JWT_SECRET is required",
		},
		{
			name: "memory storage still needs a secret",
			env:  map[string]string{"STORAGE": "memory"},
			want: "JWT_SECRET is required",
		},
		{
			name: "unknown storage",
			env:  map[string]string{"STORAGE": "mongo", "JWT_SECRET": "secret"},
			want: "STORAGE must be",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load("", nil)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadMemoryStorageWithoutDatabase(t *testing.T) {
	clearEnv(t)
	t.Setenv("STORAGE", "memory")
	t.Setenv("JWT_SECRET", "secret")

	cfg, err := Load("", nil)
	require.NoError(t, err)
	assert.Equal(t, StorageMemory, cfg.Storage)
}

func TestLoadLayering(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
port: "9000"
database-url: postgres://file/aria
jwt-secret: from-file
jwt-ttl-minutes: 30
cors-allowed-origins:
  - https://app.example.com
  - https://admin.example.com
rate-limit-window: 1m
`), 0o600))

	t.Setenv("JWT_SECRET", "from-env")
	t.Setenv("LOG_FORMAT", "text")

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(fs)
	require.NoError(t, fs.Parse([]string{"--port", "9100"}))

	cfg, err := Load(path, fs)
	require.NoError(t, err)

	assert.Equal(t, "9100", cfg.Port, "flag beats file")
	assert.Equal(t, "postgres://file/aria", cfg.DatabaseURL, "unchanged flag keeps file value")
	assert.Equal(t, "from-env", cfg.JWTSecret, "env beats file")
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, 30*time.Minute, cfg.JWTTTL)
	assert.Equal(t, time.Minute, cfg.RateLimitWindow)
	assert.Equal(t, []string{"https://app.example.com", "https://admin.example.com"}, cfg.CORSOrigins)
}

func TestLoadMissingFile(t *testing.T) {
	clearEnv(t)
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"), nil)
	require.Error(t, err)
}

func TestParseCSV(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, parseCSV(" a, ,b "))
	assert.Equal(t, []string{"*"}, parseCSV(""))
	assert.Equal(t, []string{"https://x.dev"}, origins("https://x.dev"))
}

func TestEnvName(t *testing.T) {
	assert.Equal(t, "DATABASE_URL", EnvName("database-url"))
	assert.Equal(t, "PORT", EnvName("port"))
}

func TestReadSkipsValidation(t *testing.T) {
	clearEnv(t)
	t.Setenv("DATABASE_URL", "postgres://localhost/aria")

	cfg, err := Read("", nil)
	require.NoError(t, err)
	assert.Equal(t, "postgres://localhost/aria", cfg.DatabaseURL)
	assert.Empty(t, cfg.JWTSecret)
	assert.Error(t, cfg.Validate())
}
