package board

import (
	"context"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	log "github.com/sirupsen/logrus"

	"github.com/andiegogiap/AI-WORKFLOW/domain"
	"github.com/andiegogiap/AI-WORKFLOW/storage"
)

// NoteStore keeps notes in memory and mirrors every change to the store.
type NoteStore struct {
	persist *Persister
	log     *log.Logger

	mu    sync.RWMutex
	notes map[string]domain.Note
}

func NewNoteStore(persist *Persister, logger *log.Logger) *NoteStore {
	return &NoteStore{persist: persist, log: logger, notes: make(map[string]domain.Note)}
}

// Load reads every persisted note. Undecodable entries are skipped.
func (s *NoteStore) Load(ctx context.Context) error {
	values, err := s.persist.Store().GetAll(ctx, storage.CollectionNotes)
	if err != nil {
		return &domain.PersistenceError{Op: "get_all", Collection: storage.CollectionNotes, Err: err}
	}
	loaded := make(map[string]domain.Note, len(values))
	for _, v := range values {
		var n domain.Note
		if err := sonic.ConfigStd.Unmarshal(v, &n); err != nil || n.ID == "" {
			s.log.WithError(err).Warn("skipping undecodable note")
			continue
		}
		loaded[n.ID] = n
	}
	s.mu.Lock()
	s.notes = loaded
	s.mu.Unlock()
	return nil
}

// Add stores a new note and returns the full list, newest first.
func (s *NoteStore) Add(draft domain.NoteDraft) (domain.Note, []domain.Note, error) {
	if err := draft.Validate(); err != nil {
		return domain.Note{}, nil, err
	}
	ts := nextTimestamp()
	n := domain.Note{
		ID:        newNoteID(ts),
		Title:     draft.Title,
		Content:   draft.Content,
		CreatedAt: time.Unix(0, ts).UTC(),
		Source:    draft.Source,
	}

	s.mu.Lock()
	s.notes[n.ID] = n
	s.save(n)
	list := s.listLocked()
	s.mu.Unlock()
	return n, list, nil
}

// Update replaces the note with the same id. Unknown ids are ignored and
// reported with false. ID and CreatedAt are kept from the stored note.
func (s *NoteStore) Update(n domain.Note) (domain.Note, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.notes[n.ID]
	if !ok {
		return domain.Note{}, false
	}
	n.CreatedAt = cur.CreatedAt
	s.notes[n.ID] = n
	s.save(n)
	return n, true
}

// Delete removes the note if present.
func (s *NoteStore) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.notes[id]; !ok {
		return false
	}
	delete(s.notes, id)
	s.persist.Delete(storage.CollectionNotes, id)
	return true
}

func (s *NoteStore) Get(id string) (domain.Note, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.notes[id]
	return n, ok
}

// List returns all notes, newest first.
func (s *NoteStore) List() []domain.Note {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listLocked()
}

func (s *NoteStore) listLocked() []domain.Note {
	list := make([]domain.Note, 0, len(s.notes))
	for _, n := range s.notes {
		list = append(list, n)
	}
	domain.SortNotes(list)
	return list
}

func (s *NoteStore) save(n domain.Note) {
	data, err := sonic.ConfigStd.Marshal(n)
	if err != nil {
		s.log.WithError(err).WithField("note", n.ID).Error("encode note")
		return
	}
	s.persist.Save(storage.CollectionNotes, n.ID, data)
}
