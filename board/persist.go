package board

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/andiegogiap/AI-WORKFLOW/domain"
	"github.com/andiegogiap/AI-WORKFLOW/storage"
)

type persistJob struct {
	collection string
	key        string
	value      []byte
	delete     bool
	seq        uint64
	done       chan struct{}
}

// PersisterConfig tunes the background writer.
type PersisterConfig struct {
	Buffer         int
	HandoffTimeout time.Duration
	Timeout        time.Duration
}

// DefaultPersisterConfig matches the service defaults.
var DefaultPersisterConfig = PersisterConfig{
	Buffer:         256,
	HandoffTimeout: 15 * time.Millisecond,
	Timeout:        10 * time.Second,
}

// Persister writes store mutations in the background. Callers never wait
// for the store and never see its errors; failures are logged. A job that
// cannot be handed to the worker within the hand-off timeout runs inline.
// Writes carry a sequence number so a late write never replaces a newer one.
type Persister struct {
	store storage.KeyValueStore
	log   *log.Logger
	cfg   PersisterConfig

	jobs   chan persistJob
	wg     sync.WaitGroup
	mu     sync.RWMutex
	closed bool

	seqMu   sync.Mutex
	seq     uint64
	writeMu sync.Mutex
	applied map[string]uint64
}

// NewPersister starts the worker. Close stops it after draining.
func NewPersister(store storage.KeyValueStore, logger *log.Logger, cfg PersisterConfig) *Persister {
	if logger == nil {
		panic("Logger is not initialized")
	}
	if cfg.Buffer <= 0 {
		cfg.Buffer = DefaultPersisterConfig.Buffer
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultPersisterConfig.Timeout
	}
	p := &Persister{
		store:   store,
		log:     logger,
		cfg:     cfg,
		jobs:    make(chan persistJob, cfg.Buffer),
		applied: make(map[string]uint64),
	}
	p.wg.Add(1)
	go p.worker()
	logger.Infof("persister started, buffer: %d, timeout: %v, handoff: %v", cfg.Buffer, cfg.Timeout, cfg.HandoffTimeout)
	return p
}

// Store returns the underlying store for reads.
func (p *Persister) Store() storage.KeyValueStore {
	return p.store
}

// Save schedules an overwrite of collection/key with value.
func (p *Persister) Save(collection, key string, value []byte) {
	p.submit(persistJob{collection: collection, key: key, value: value, seq: p.nextSeq()})
}

// Delete schedules removal of collection/key.
func (p *Persister) Delete(collection, key string) {
	p.submit(persistJob{collection: collection, key: key, delete: true, seq: p.nextSeq()})
}

// Flush waits until every job scheduled before the call has been written
// or ctx is done.
func (p *Persister) Flush(ctx context.Context) error {
	done := make(chan struct{})
	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return nil
	}
	select {
	case p.jobs <- persistJob{done: done}:
	case <-ctx.Done():
		p.mu.RUnlock()
		return ctx.Err()
	}
	p.mu.RUnlock()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close drains pending jobs and stops the worker.
func (p *Persister) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.jobs)
	p.mu.Unlock()
	p.wg.Wait()
}

func (p *Persister) nextSeq() uint64 {
	p.seqMu.Lock()
	defer p.seqMu.Unlock()
	p.seq++
	return p.seq
}

func (p *Persister) worker() {
	defer p.wg.Done()
	for j := range p.jobs {
		if j.done != nil {
			close(j.done)
			continue
		}
		p.write(j)
	}
}

func (p *Persister) submit(j persistJob) {
	if p.tryEnqueue(j) {
		return
	}
	p.log.WithFields(log.Fields{"collection": j.collection, "key": j.key}).Debug("persist queue saturated, writing inline")
	p.write(j)
}

func (p *Persister) tryEnqueue(j persistJob) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return false
	}

	select {
	case p.jobs <- j:
		return true
	default:
	}

	if p.cfg.HandoffTimeout <= 0 {
		return false
	}

	timer := time.NewTimer(p.cfg.HandoffTimeout)
	defer timer.Stop()

	select {
	case p.jobs <- j:
		return true
	case <-timer.C:
		return false
	}
}

func (p *Persister) write(j persistJob) {
	id := j.collection + "/" + j.key

	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	if p.applied[id] >= j.seq {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.cfg.Timeout)
	defer cancel()

	op := "put"
	var err error
	if j.delete {
		op = "delete"
		err = p.store.Delete(ctx, j.collection, j.key)
	} else {
		err = p.store.Put(ctx, j.collection, j.key, j.value)
	}
	if err != nil {
		perr := &domain.PersistenceError{Op: op, Collection: j.collection, Key: j.key, Err: err}
		p.log.WithError(perr).Error("persist failed")
		return
	}
	p.applied[id] = j.seq
}
