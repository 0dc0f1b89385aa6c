package main

import (
	"context"
	"path/filepath"
	"testing"

	log "github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/andiegogiap/AI-WORKFLOW/board"
	"github.com/andiegogiap/AI-WORKFLOW/storage"
)

func TestFlushPendingAfterShutdownDeadline(t *testing.T) {
	ctx := context.Background()
	store, err := storage.OpenSQLite(ctx, filepath.Join(t.TempDir(), "kv.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	logger, hook := test.NewNullLogger()
	persist := board.NewPersister(store, logger, board.DefaultPersisterConfig)
	t.Cleanup(persist.Close)

	// The HTTP shutdown budget is already spent when flushing starts.
	shutdownCtx, cancel := context.WithCancel(ctx)
	cancel()
	<-shutdownCtx.Done()

	persist.Save(storage.CollectionBoard, storage.BoardKey, []byte(`{"phases":[]}`))
	flushPending(persist, logger)

	for _, e := range hook.AllEntries() {
		if e.Level <= log.WarnLevel {
			t.Fatalf("unexpected %s log: %s", e.Level, e.Message)
		}
	}
	data, found, err := store.Get(ctx, storage.CollectionBoard, storage.BoardKey)
	if err != nil || !found || string(data) != `{"phases":[]}` {
		t.Fatalf("board not flushed: found=%v err=%v data=%s", found, err, data)
	}
}
