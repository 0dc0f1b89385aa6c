package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Collections used by the workflow service.
const (
	CollectionBoard = "board"
	CollectionNotes = "notes"

	// BoardKey is the single key the current board is stored under.
	BoardKey = "current"
)

// KeyValueStore persists opaque values grouped into named collections.
// Get reports found=false for a missing key. GetAll returns the values of a
// collection in no particular order.
type KeyValueStore interface {
	Get(ctx context.Context, collection, key string) ([]byte, bool, error)
	Put(ctx context.Context, collection, key string, value []byte) error
	Delete(ctx context.Context, collection, key string) error
	GetAll(ctx context.Context, collection string) ([][]byte, error)
}

// Backend names a KeyValueStore implementation.
type Backend string

const (
	BackendSQLite   Backend = "sqlite"
	BackendPostgres Backend = "postgres"
	BackendRedis    Backend = "redis"
	BackendTable    Backend = "table"
)

var errUnknownBackend = errors.New("unknown store backend")

// ParseBackend validates a backend name.
func ParseBackend(s string) (Backend, error) {
	switch b := Backend(strings.ToLower(strings.TrimSpace(s))); b {
	case BackendSQLite, BackendPostgres, BackendRedis, BackendTable:
		return b, nil
	case "":
		return BackendSQLite, nil
	}
	return "", fmt.Errorf("%w: %q", errUnknownBackend, s)
}

// Close releases resources held by s when it owns any.
func Close(s KeyValueStore) error {
	if c, ok := s.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
