package board

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/andiegogiap/AI-WORKFLOW/domain"
)

// memStore is an in-memory KeyValueStore with optional failure and blocking.
type memStore struct {
	mu      sync.Mutex
	data    map[string]map[string][]byte
	puts    int
	failPut error
	block   chan struct{}
}

func newMemStore() *memStore {
	return &memStore{data: make(map[string]map[string][]byte)}
}

func (m *memStore) Get(ctx context.Context, collection, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[collection][key]
	return v, ok, nil
}

func (m *memStore) Put(ctx context.Context, collection, key string, value []byte) error {
	if m.block != nil {
		<-m.block
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.puts++
	if m.failPut != nil {
		return m.failPut
	}
	if m.data[collection] == nil {
		m.data[collection] = make(map[string][]byte)
	}
	m.data[collection][key] = append([]byte(nil), value...)
	return nil
}

func (m *memStore) Delete(ctx context.Context, collection, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data[collection], key)
	return nil
}

func (m *memStore) GetAll(ctx context.Context, collection string) ([][]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := [][]byte{}
	for _, v := range m.data[collection] {
		out = append(out, v)
	}
	return out, nil
}

func (m *memStore) value(collection, key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[collection][key]
	return v, ok
}

func newTestLogger() (*log.Logger, *test.Hook) {
	logger, hook := test.NewNullLogger()
	logger.SetLevel(log.DebugLevel)
	return logger, hook
}

func newTestPersister(t *testing.T, store *memStore) *Persister {
	t.Helper()
	logger, _ := newTestLogger()
	p := NewPersister(store, logger, PersisterConfig{Buffer: 16, HandoffTimeout: 5 * time.Millisecond, Timeout: time.Second})
	t.Cleanup(p.Close)
	return p
}

func flush(t *testing.T, p *Persister) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := p.Flush(ctx); err != nil {
		t.Fatalf("flush: %v", err)
	}
}

func testBoard() domain.Board {
	return domain.Board{Phases: []domain.Phase{
		{ID: "phase-1", Title: "Foundation", Steps: []domain.Step{
			{ID: "step-1", Title: "Repo", Activity: "Create the repo.", Considerations: "Monorepo?", Output: "A repo.", Status: domain.StatusToDo, Agent: domain.DefaultAgent, SubTasks: []domain.SubTask{}},
			{ID: "step-2", Title: "Backend", Activity: "Init node.", Status: domain.StatusToDo, Agent: domain.DefaultAgent, SubTasks: []domain.SubTask{}},
		}},
		{ID: "phase-2", Title: "API", Steps: []domain.Step{
			{ID: "step-3", Title: "Schema", Activity: "Design tables.", Status: domain.StatusToDo, Agent: domain.DefaultAgent, SubTasks: []domain.SubTask{}},
		}},
	}}
}

type fakeElaborator struct {
	suggestions []domain.Suggestion
	err         error
	calls       []string
}

func (f *fakeElaborator) Elaborate(ctx context.Context, field domain.Field, text string) ([]domain.Suggestion, error) {
	f.calls = append(f.calls, string(field)+":"+text)
	if f.err != nil {
		return nil, f.err
	}
	return f.suggestions, nil
}

var errBoom = errors.New("boom")
