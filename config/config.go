// Package config reads service settings from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/andiegogiap/AI-WORKFLOW/api"
	"github.com/andiegogiap/AI-WORKFLOW/board"
	"github.com/andiegogiap/AI-WORKFLOW/storage"
	"github.com/andiegogiap/AI-WORKFLOW/structurer"
)

// Config holds everything main needs to wire the service.
type Config struct {
	Debug      bool
	ListenAddr string

	Backend     storage.Backend
	SQLitePath  string
	DatabaseURL string
	RedisConn   string
	TableConn   string
	TableName   string
	CacheTTL    time.Duration

	GeminiAPIKey  string
	GeminiModel   string
	GeminiBaseURL string

	UndoWindow     time.Duration
	Persist        board.PersisterConfig
	IdempotencyTTL time.Duration

	Auth        api.AuthConfig
	CORSOrigins []string
}

// Load reads the environment, applying defaults. Malformed values are
// errors; main treats them as fatal.
func Load() (Config, error) {
	cfg := Config{
		ListenAddr:     ":8080",
		SQLitePath:     envOr("SQLITE_PATH", "workflow.db"),
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		RedisConn:      os.Getenv("REDIS_CONNECTION_STRING"),
		TableConn:      os.Getenv("STORAGE_CONNECTION_STRING"),
		TableName:      envOr("KV_TABLE", "workflowkv"),
		GeminiAPIKey:   os.Getenv("GEMINI_API_KEY"),
		GeminiModel:    envOr("GEMINI_MODEL", structurer.DefaultModel),
		GeminiBaseURL:  envOr("GEMINI_BASE_URL", structurer.DefaultBaseURL),
		Persist:        board.DefaultPersisterConfig,
		CORSOrigins:    splitList(envOr("CORS_ORIGIN", "*")),
		UndoWindow:     board.DefaultUndoWindow,
		CacheTTL:       10 * time.Minute,
		IdempotencyTTL: 24 * time.Hour,
	}
	if cfg.GeminiAPIKey == "" {
		cfg.GeminiAPIKey = os.Getenv("API_KEY")
	}

	var errs []error
	collect := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	if v := os.Getenv("DEBUG"); v != "" {
		dbg, err := strconv.ParseBool(v)
		if err != nil {
			collect(fmt.Errorf("invalid DEBUG: %w", err))
		}
		cfg.Debug = dbg
	}

	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	} else if v := os.Getenv("FUNCTIONS_CUSTOMHANDLER_PORT"); v != "" {
		cfg.ListenAddr = ":" + v
	}

	backend, err := storage.ParseBackend(os.Getenv("STORE_BACKEND"))
	collect(err)
	cfg.Backend = backend
	switch backend {
	case storage.BackendPostgres:
		if cfg.DatabaseURL == "" {
			collect(errors.New("STORE_BACKEND=postgres requires DATABASE_URL"))
		}
	case storage.BackendRedis:
		if cfg.RedisConn == "" {
			collect(errors.New("STORE_BACKEND=redis requires REDIS_CONNECTION_STRING"))
		}
	case storage.BackendTable:
		if cfg.TableConn == "" {
			collect(errors.New("STORE_BACKEND=table requires STORAGE_CONNECTION_STRING"))
		}
	}

	cfg.CacheTTL, err = envDuration("CACHE_TTL", cfg.CacheTTL, true)
	collect(err)
	cfg.UndoWindow, err = envDuration("UNDO_WINDOW", cfg.UndoWindow, false)
	collect(err)
	cfg.Persist.Buffer, err = envInt("PERSIST_BUFFER", cfg.Persist.Buffer)
	collect(err)
	cfg.Persist.HandoffTimeout, err = envDuration("PERSIST_HANDOFF_TIMEOUT", cfg.Persist.HandoffTimeout, false)
	collect(err)
	cfg.Persist.Timeout, err = envDuration("PERSIST_TIMEOUT", cfg.Persist.Timeout, false)
	collect(err)
	cfg.IdempotencyTTL, err = envDuration("IDEMPOTENCY_TTL", cfg.IdempotencyTTL, false)
	collect(err)

	mode, err := api.ParseAuthMode(os.Getenv("AUTH_MODE"))
	collect(err)
	cfg.Auth = api.AuthConfig{
		Mode:     mode,
		Secret:   os.Getenv("AUTH_SHARED_SECRET"),
		Domain:   os.Getenv("AUTH_DOMAIN"),
		Audience: os.Getenv("AUTH_AUDIENCE"),
	}
	cfg.Auth.CacheTTL, err = envDuration("JWKS_CACHE_TTL", 15*time.Minute, false)
	collect(err)
	switch mode {
	case api.AuthHS256:
		if cfg.Auth.Secret == "" {
			collect(errors.New("AUTH_MODE=hs256 requires AUTH_SHARED_SECRET"))
		}
	case api.AuthJWKS:
		if cfg.Auth.Domain == "" || cfg.Auth.Audience == "" {
			collect(errors.New("AUTH_MODE=jwks requires AUTH_DOMAIN and AUTH_AUDIENCE"))
		}
	}

	return cfg, errors.Join(errs...)
}

// StorageOptions maps the config onto storage.New options. The Redis client
// is created by the caller.
func (c Config) StorageOptions() storage.Options {
	return storage.Options{
		Backend:     c.Backend,
		SQLitePath:  c.SQLitePath,
		DatabaseURL: c.DatabaseURL,
		TableConn:   c.TableConn,
		TableName:   c.TableName,
		CacheTTL:    c.CacheTTL,
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def, fmt.Errorf("invalid %s: %w", key, err)
	}
	if n <= 0 {
		return def, fmt.Errorf("invalid %s: must be greater than zero", key)
	}
	return n, nil
}

// envDuration parses a Go duration. allowZero permits "0" to disable a
// feature such as the read cache.
func envDuration(key string, def time.Duration, allowZero bool) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def, fmt.Errorf("invalid %s: %w", key, err)
	}
	if d < 0 || d == 0 && !allowZero {
		return def, fmt.Errorf("invalid %s: must be greater than zero", key)
	}
	return d, nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
