package storage

import (
	"context"
	"crypto/tls"
	"errors"
	"strings"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps each collection in a Redis hash.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore uses client for storage. Hash keys are prefix + collection.
// The client stays owned by the caller, which may share it with the cache
// and the idempotency deduper.
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "workflow:"
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) hash(collection string) string {
	return s.prefix + collection
}

func (s *RedisStore) Get(ctx context.Context, collection, key string) ([]byte, bool, error) {
	data, err := s.client.HGet(ctx, s.hash(collection), key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return data, true, nil
}

func (s *RedisStore) Put(ctx context.Context, collection, key string, value []byte) error {
	return s.client.HSet(ctx, s.hash(collection), key, value).Err()
}

func (s *RedisStore) Delete(ctx context.Context, collection, key string) error {
	return s.client.HDel(ctx, s.hash(collection), key).Err()
}

func (s *RedisStore) GetAll(ctx context.Context, collection string) ([][]byte, error) {
	vals, err := s.client.HVals(ctx, s.hash(collection)).Result()
	if err != nil {
		return nil, err
	}
	out := make([][]byte, len(vals))
	for i, v := range vals {
		out[i] = []byte(v)
	}
	return out, nil
}

// ParseRedisOptions accepts either a redis:// URL or an Azure style
// "host:port,password=...,ssl=True" connection string.
func ParseRedisOptions(conn string) *redis.Options {
	if opts, err := redis.ParseURL(conn); err == nil {
		return opts
	}
	parts := strings.Split(conn, ",")
	opts := &redis.Options{Addr: parts[0]}
	for _, p := range parts[1:] {
		kv := strings.SplitN(p, "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch strings.ToLower(strings.TrimSpace(kv[0])) {
		case "password":
			opts.Password = kv[1]
		case "ssl":
			if strings.EqualFold(kv[1], "true") {
				opts.TLSConfig = &tls.Config{}
			}
		}
	}
	return opts
}
