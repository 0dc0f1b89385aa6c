package storage

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// Options selects and configures a backend.
type Options struct {
	Backend     Backend
	SQLitePath  string
	DatabaseURL string
	TableConn   string
	TableName   string

	// Redis is used as the store for BackendRedis and as a read cache in
	// front of every other backend when CacheTTL is positive.
	Redis    *redis.Client
	CacheTTL time.Duration
}

// New returns a store that connects on first use.
func New(opts Options) (KeyValueStore, error) {
	open, err := opener(opts)
	if err != nil {
		return nil, err
	}
	var s KeyValueStore = NewLazy(open)
	if opts.Backend != BackendRedis && opts.Redis != nil && opts.CacheTTL > 0 {
		s = NewCache(s, opts.Redis, opts.CacheTTL)
	}
	return s, nil
}

func opener(opts Options) (OpenFunc, error) {
	switch opts.Backend {
	case BackendSQLite, "":
		path := opts.SQLitePath
		if path == "" {
			path = "workflow.db"
		}
		return func(ctx context.Context) (KeyValueStore, error) {
			return OpenSQLite(ctx, path)
		}, nil
	case BackendPostgres:
		if opts.DatabaseURL == "" {
			return nil, errors.New("postgres backend requires DATABASE_URL")
		}
		return func(ctx context.Context) (KeyValueStore, error) {
			return OpenPostgres(ctx, opts.DatabaseURL)
		}, nil
	case BackendRedis:
		if opts.Redis == nil {
			return nil, errors.New("redis backend requires REDIS_CONNECTION_STRING")
		}
		return func(ctx context.Context) (KeyValueStore, error) {
			if err := opts.Redis.Ping(ctx).Err(); err != nil {
				return nil, err
			}
			return NewRedisStore(opts.Redis, ""), nil
		}, nil
	case BackendTable:
		if opts.TableConn == "" || opts.TableName == "" {
			return nil, errors.New("table backend requires STORAGE_CONNECTION_STRING and KV_TABLE")
		}
		return func(ctx context.Context) (KeyValueStore, error) {
			if err := ProvisionTable(ctx, opts.TableConn, opts.TableName); err != nil {
				return nil, err
			}
			return NewTableStore(opts.TableConn, opts.TableName)
		}, nil
	}
	return nil, errUnknownBackend
}
