package storage

import (
	"bytes"
	"context"
	"errors"
	"sort"
	"strings"
	"testing"
)

func TestParseBackend(t *testing.T) {
	tests := []struct {
		in   string
		want Backend
	}{
		{in: "", want: BackendSQLite},
		{in: "sqlite", want: BackendSQLite},
		{in: " Postgres ", want: BackendPostgres},
		{in: "redis", want: BackendRedis},
		{in: "table", want: BackendTable},
	}
	for _, tt := range tests {
		got, err := ParseBackend(tt.in)
		if err != nil || got != tt.want {
			t.Fatalf("ParseBackend(%q) = %q, %v", tt.in, got, err)
		}
	}
	if _, err := ParseBackend("mongo"); !errors.Is(err, errUnknownBackend) {
		t.Fatalf("expected unknown backend error, got %v", err)
	}
}

func TestTableEntityRoundTrip(t *testing.T) {
	values := [][]byte{
		{},
		[]byte(`{"phases":[]}`),
		bytes.Repeat([]byte("é"), 3*tableChunkSize),
	}
	for _, v := range values {
		payload, err := encodeTableEntity(CollectionBoard, BoardKey, v)
		if err != nil {
			t.Fatalf("encode: %v", err)
		}
		if !strings.Contains(string(payload), `"PartitionKey":"board"`) {
			t.Fatalf("missing partition key: %s", payload)
		}
		got, err := decodeTableEntity(payload)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if !bytes.Equal(got, v) {
			t.Fatalf("round trip changed %d byte value", len(v))
		}
	}
}

func TestTableEntityTooLarge(t *testing.T) {
	big := make([]byte, tableChunkSize*tableMaxChunks)
	if _, err := encodeTableEntity(CollectionNotes, "n", big); !errors.Is(err, errValueTooLarge) {
		t.Fatalf("expected errValueTooLarge, got %v", err)
	}
}

func TestDecodeTableEntityMissingChunk(t *testing.T) {
	if _, err := decodeTableEntity([]byte(`{"Chunks":2,"Data0":"AA=="}`)); err == nil {
		t.Fatal("expected error for missing chunk")
	}
}

// exerciseStore runs the behaviour every backend must share.
func exerciseStore(t *testing.T, s KeyValueStore) {
	t.Helper()
	ctx := context.Background()

	if _, found, err := s.Get(ctx, CollectionBoard, BoardKey); err != nil || found {
		t.Fatalf("empty get: found=%v err=%v", found, err)
	}
	if err := s.Put(ctx, CollectionBoard, BoardKey, []byte("v1")); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := s.Put(ctx, CollectionBoard, BoardKey, []byte("v2")); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	data, found, err := s.Get(ctx, CollectionBoard, BoardKey)
	if err != nil || !found || string(data) != "v2" {
		t.Fatalf("get: %q found=%v err=%v", data, found, err)
	}

	for _, id := range []string{"n1", "n2", "n3"} {
		if err := s.Put(ctx, CollectionNotes, id, []byte(id)); err != nil {
			t.Fatalf("put note: %v", err)
		}
	}
	if err := s.Delete(ctx, CollectionNotes, "n2"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := s.Delete(ctx, CollectionNotes, "missing"); err != nil {
		t.Fatalf("delete missing: %v", err)
	}

	all, err := s.GetAll(ctx, CollectionNotes)
	if err != nil {
		t.Fatalf("get all: %v", err)
	}
	got := make([]string, len(all))
	for i, v := range all {
		got[i] = string(v)
	}
	sort.Strings(got)
	if strings.Join(got, ",") != "n1,n3" {
		t.Fatalf("unexpected notes: %v", got)
	}

	empty, err := s.GetAll(ctx, "unused")
	if err != nil || len(empty) != 0 {
		t.Fatalf("unexpected empty collection: %v %v", empty, err)
	}
}
