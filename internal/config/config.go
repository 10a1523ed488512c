package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// Storage backends.
const (
	StoragePostgres = "postgres"
	StorageMemory   = "memory"
)

// Config holds runtime configuration.
type Config struct {
	Port        string
	DatabaseURL string
	JWTSecret   string
	JWTIssuer   string
	JWTTTL      time.Duration
	CORSOrigins []string

	CookieName       string
	DBConnectTimeout time.Duration
	MaxBodyBytes     int64

	RedisURL          string
	RateLimitAttempts int
	RateLimitWindow   time.Duration

	LogFormat string
	Storage   string
}

// Keys double as YAML keys and flag names. The environment variable of a
// key is its upper-cased, underscored form (database-url -> DATABASE_URL).
var defaults = map[string]any{
	"port":                 "8080",
	"database-url":         "",
	"jwt-secret":           "",
	"jwt-issuer":           "aria-characters",
	"jwt-ttl-minutes":      10080,
	"cors-allowed-origins": "*",
	"auth-cookie-name":     "token",
	"db-connect-timeout":   "5s",
	"max-body-bytes":       10 << 20,
	"redis-url":            "",
	"rate-limit-attempts":  10,
	"rate-limit-window":    "15m",
	"log-format":           "json",
	"storage":              StoragePostgres,
}

// RegisterFlags declares the command-line overrides on fs.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("port", "8080", "HTTP listen port")
	fs.String("database-url", "", "PostgreSQL connection string")
	fs.String("log-format", "json", "log format (json or text)")
	fs.String("storage", StoragePostgres, "storage backend (postgres or memory)")
	fs.String("redis-url", "", "Redis URL for auth rate limiting (empty = disabled)")
}

// Load reads the configuration and validates it.
func Load(path string, flags *pflag.FlagSet) (Config, error) {
	cfg, err := Read(path, flags)
	if err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Read layers defaults, the optional YAML file at path, environment
// variables and changed flags, in that order. It does not validate.
func Read(path string, flags *pflag.FlagSet) (Config, error) {
	k := koanf.New(".")
	for key, value := range defaults {
		if err := k.Set(key, value); err != nil {
			return Config{}, fmt.Errorf("set default %s: %w", key, err)
		}
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Config{}, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	for key := range defaults {
		if value, ok := os.LookupEnv(EnvName(key)); ok && strings.TrimSpace(value) != "" {
			if err := k.Set(key, strings.TrimSpace(value)); err != nil {
				return Config{}, fmt.Errorf("set %s from environment: %w", key, err)
			}
		}
	}

	// Unchanged flags are skipped because every key already exists.
	if flags != nil {
		if err := k.Load(posflag.Provider(flags, ".", k), nil); err != nil {
			return Config{}, fmt.Errorf("load flags: %w", err)
		}
	}

	cfg := Config{
		Port:              strings.TrimSpace(k.String("port")),
		DatabaseURL:       strings.TrimSpace(k.String("database-url")),
		JWTSecret:         strings.TrimSpace(k.String("jwt-secret")),
		JWTIssuer:         fallback(k.String("jwt-issuer"), "aria-characters"),
		CORSOrigins:       origins(k.Get("cors-allowed-origins")),
		CookieName:        fallback(k.String("auth-cookie-name"), "token"),
		DBConnectTimeout:  k.Duration("db-connect-timeout"),
		MaxBodyBytes:      k.Int64("max-body-bytes"),
		RedisURL:          strings.TrimSpace(k.String("redis-url")),
		RateLimitAttempts: k.Int("rate-limit-attempts"),
		RateLimitWindow:   k.Duration("rate-limit-window"),
		LogFormat:         fallback(k.String("log-format"), "json"),
		Storage:           strings.ToLower(fallback(k.String("storage"), StoragePostgres)),
	}

	if ttlMinutes := k.Int("jwt-ttl-minutes"); ttlMinutes > 0 {
		cfg.JWTTTL = time.Duration(ttlMinutes) * time.Minute
	} else {
		cfg.JWTTTL = 7 * 24 * time.Hour
	}
	if cfg.DBConnectTimeout <= 0 {
		cfg.DBConnectTimeout = 5 * time.Second
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 10 << 20
	}
	return cfg, nil
}

// Validate checks required settings.
func (c Config) Validate() error {
	switch c.Storage {
	case StoragePostgres:
		if c.DatabaseURL == "" {
			return errors.New("DATABASE_URL is required")
		}
	case StorageMemory:
	default:
		return fmt.Errorf("STORAGE must be %q or %q, got %q", StoragePostgres, StorageMemory, c.Storage)
	}
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}
	if c.Port == "" {
		return errors.New("PORT is required")
	}
	if c.LogFormat != "json" && c.LogFormat != "text" {
		return fmt.Errorf("LOG_FORMAT must be 'json' or 'text', got %q", c.LogFormat)
	}
	return nil
}

// HTTPAddress returns the host:port pair for the HTTP server to bind to.
func (c Config) HTTPAddress() string {
	return fmt.Sprintf(":%s", c.Port)
}

// EnvName maps a config key to its environment variable.
func EnvName(key string) string {
	return strings.ToUpper(strings.ReplaceAll(key, "-", "_"))
}

func fallback(value, def string) string {
	if strings.TrimSpace(value) == "" {
		return def
	}
	return strings.TrimSpace(value)
}

// origins accepts a CSV string (env, flags) or a YAML list.
func origins(value any) []string {
	switch v := value.(type) {
	case []any:
		parts := make([]string, 0, len(v))
		for _, p := range v {
			parts = append(parts, fmt.Sprint(p))
		}
		return parseCSV(strings.Join(parts, ","))
	case []string:
		return parseCSV(strings.Join(v, ","))
	case nil:
		return []string{"*"}
	default:
		return parseCSV(fmt.Sprint(v))
	}
}

func parseCSV(input string) []string {
	parts := strings.Split(input, ",")
	var out []string
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return []string{"*"}
	}
	return out
}
