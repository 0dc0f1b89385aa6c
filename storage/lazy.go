package storage

import (
	"context"
	"sync"
)

// OpenFunc opens a KeyValueStore.
type OpenFunc func(ctx context.Context) (KeyValueStore, error)

// Lazy opens its store on first use and reuses the handle afterwards. A
// failed open is not cached; the next call tries again.
type Lazy struct {
	open OpenFunc

	mu    sync.Mutex
	store KeyValueStore
}

func NewLazy(open OpenFunc) *Lazy {
	return &Lazy{open: open}
}

func (l *Lazy) handle(ctx context.Context) (KeyValueStore, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.store != nil {
		return l.store, nil
	}
	s, err := l.open(ctx)
	if err != nil {
		return nil, err
	}
	l.store = s
	return s, nil
}

func (l *Lazy) Get(ctx context.Context, collection, key string) ([]byte, bool, error) {
	s, err := l.handle(ctx)
	if err != nil {
		return nil, false, err
	}
	return s.Get(ctx, collection, key)
}

func (l *Lazy) Put(ctx context.Context, collection, key string, value []byte) error {
	s, err := l.handle(ctx)
	if err != nil {
		return err
	}
	return s.Put(ctx, collection, key, value)
}

func (l *Lazy) Delete(ctx context.Context, collection, key string) error {
	s, err := l.handle(ctx)
	if err != nil {
		return err
	}
	return s.Delete(ctx, collection, key)
}

func (l *Lazy) GetAll(ctx context.Context, collection string) ([][]byte, error) {
	s, err := l.handle(ctx)
	if err != nil {
		return nil, err
	}
	return s.GetAll(ctx, collection)
}

// Close closes the opened store, if any.
func (l *Lazy) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.store == nil {
		return nil
	}
	err := Close(l.store)
	l.store = nil
	return err
}
