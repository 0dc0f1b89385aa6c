package board

import (
	"context"
	"strings"
	"sync"

	"github.com/bytedance/sonic"
	log "github.com/sirupsen/logrus"

	"github.com/andiegogiap/AI-WORKFLOW/domain"
	"github.com/andiegogiap/AI-WORKFLOW/storage"
)

// ChangeKind tells listeners how the board changed.
type ChangeKind int

const (
	ChangeReplaced ChangeKind = iota
	ChangeStepUpdated
	ChangeCleared
)

// Change is delivered to listeners after every board mutation.
type Change struct {
	Kind  ChangeKind
	Board domain.Board
	// Present is false after Clear.
	Present bool
}

// BoardStore holds the single current board. Mutations build a new board
// value and swap it in under the lock, so readers always see a whole board.
type BoardStore struct {
	persist *Persister
	log     *log.Logger

	mu      sync.RWMutex
	board   domain.Board
	present bool
	resets  []func()

	lmu       sync.RWMutex
	listeners []func(Change)
}

func NewBoardStore(persist *Persister, logger *log.Logger) *BoardStore {
	return &BoardStore{persist: persist, log: logger}
}

// OnChange registers fn to run after each mutation, outside the store lock.
func (s *BoardStore) OnChange(fn func(Change)) {
	s.lmu.Lock()
	s.listeners = append(s.listeners, fn)
	s.lmu.Unlock()
}

// OnReset registers fn to run under the store lock whenever the board is
// replaced or cleared, before any later mutation can see the new board. fn
// must not call back into the store.
func (s *BoardStore) OnReset(fn func()) {
	s.mu.Lock()
	s.resets = append(s.resets, fn)
	s.mu.Unlock()
}

func (s *BoardStore) runResets() {
	for _, fn := range s.resets {
		fn()
	}
}

func (s *BoardStore) notify(c Change) {
	s.lmu.RLock()
	ls := s.listeners
	s.lmu.RUnlock()
	for _, fn := range ls {
		fn(c)
	}
}

// Load installs the persisted board, if any. It does not notify listeners.
func (s *BoardStore) Load(ctx context.Context) error {
	data, found, err := s.persist.Store().Get(ctx, storage.CollectionBoard, storage.BoardKey)
	if err != nil {
		return &domain.PersistenceError{Op: "get", Collection: storage.CollectionBoard, Key: storage.BoardKey, Err: err}
	}
	if !found {
		return nil
	}
	var b domain.Board
	if err := sonic.ConfigStd.Unmarshal(data, &b); err != nil {
		return &domain.PersistenceError{Op: "decode", Collection: storage.CollectionBoard, Key: storage.BoardKey, Err: err}
	}
	s.mu.Lock()
	s.board = b
	s.present = true
	s.mu.Unlock()
	return nil
}

// Current returns the current board. The value shares its slices with the
// store and must be treated as read-only.
func (s *BoardStore) Current() (domain.Board, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.board, s.present
}

// Replace installs b as the current board and schedules it for persistence.
func (s *BoardStore) Replace(b domain.Board) {
	b = cloneBoard(b)
	s.mu.Lock()
	s.board = b
	s.present = true
	s.runResets()
	s.save(b)
	s.mu.Unlock()
	s.notify(Change{Kind: ChangeReplaced, Board: b, Present: true})
}

// Clear drops the in-memory board. The persisted copy is left alone.
func (s *BoardStore) Clear() {
	s.mu.Lock()
	s.board = domain.Board{}
	s.present = false
	s.runResets()
	s.mu.Unlock()
	s.notify(Change{Kind: ChangeCleared})
}

// Step returns the addressed step.
func (s *BoardStore) Step(phaseIndex, stepIndex int) (domain.Step, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(phaseIndex, stepIndex); err != nil {
		return domain.Step{}, err
	}
	return s.board.Step(phaseIndex, stepIndex), nil
}

// Source snapshots the phase and step titles for a note.
func (s *BoardStore) Source(phaseIndex, stepIndex int) (domain.NoteSource, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(phaseIndex, stepIndex); err != nil {
		return domain.NoteSource{}, err
	}
	return domain.NoteSource{
		PhaseTitle: s.board.Phases[phaseIndex].Title,
		StepTitle:  s.board.Phases[phaseIndex].Steps[stepIndex].Title,
	}, nil
}

// UpdateStep merges patch over the addressed step.
func (s *BoardStore) UpdateStep(phaseIndex, stepIndex int, patch domain.StepPatch) (domain.Step, error) {
	return s.modifyStep(phaseIndex, stepIndex, func(domain.Step) (domain.StepPatch, error) {
		return patch, nil
	})
}

// AddSubTask appends a sub-task with the trimmed title.
func (s *BoardStore) AddSubTask(phaseIndex, stepIndex int, title string) (domain.Step, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return domain.Step{}, domain.ErrEmptySubTask
	}
	return s.modifyStep(phaseIndex, stepIndex, func(cur domain.Step) (domain.StepPatch, error) {
		subs := make([]domain.SubTask, 0, len(cur.SubTasks)+1)
		subs = append(subs, cur.SubTasks...)
		subs = append(subs, domain.SubTask{ID: newSubTaskID(), Title: title})
		return domain.StepPatch{SubTasks: subs}, nil
	})
}

// ToggleSubTask flips the completion flag of one sub-task.
func (s *BoardStore) ToggleSubTask(phaseIndex, stepIndex int, subTaskID string) (domain.Step, error) {
	return s.modifyStep(phaseIndex, stepIndex, func(cur domain.Step) (domain.StepPatch, error) {
		subs := append([]domain.SubTask(nil), cur.SubTasks...)
		for i := range subs {
			if subs[i].ID == subTaskID {
				subs[i].Completed = !subs[i].Completed
				return domain.StepPatch{SubTasks: subs}, nil
			}
		}
		return domain.StepPatch{}, domain.ErrSubTaskNotFound
	})
}

// modifyStep runs fn on the addressed step under the write lock and applies
// the returned patch. An empty patch leaves the board untouched.
func (s *BoardStore) modifyStep(phaseIndex, stepIndex int, fn func(domain.Step) (domain.StepPatch, error)) (domain.Step, error) {
	s.mu.Lock()
	if err := s.check(phaseIndex, stepIndex); err != nil {
		s.mu.Unlock()
		return domain.Step{}, err
	}
	cur := s.board.Step(phaseIndex, stepIndex)
	patch, err := fn(cur)
	if err != nil {
		s.mu.Unlock()
		return domain.Step{}, err
	}
	if patch.Empty() {
		s.mu.Unlock()
		return cur, nil
	}
	b := domain.UpdateStep(s.board, phaseIndex, stepIndex, patch)
	s.board = b
	s.save(b)
	s.mu.Unlock()

	s.notify(Change{Kind: ChangeStepUpdated, Board: b, Present: true})
	return b.Step(phaseIndex, stepIndex), nil
}

func (s *BoardStore) check(phaseIndex, stepIndex int) error {
	if !s.present {
		return domain.ErrNoBoard
	}
	if !s.board.HasStep(phaseIndex, stepIndex) {
		return domain.ErrStepOutOfRange
	}
	return nil
}

// save must run under s.mu so persisted order follows mutation order.
func (s *BoardStore) save(b domain.Board) {
	data, err := sonic.ConfigStd.Marshal(b)
	if err != nil {
		s.log.WithError(err).Error("encode board")
		return
	}
	s.persist.Save(storage.CollectionBoard, storage.BoardKey, data)
}

func cloneBoard(b domain.Board) domain.Board {
	phases := make([]domain.Phase, len(b.Phases))
	for i, p := range b.Phases {
		steps := make([]domain.Step, len(p.Steps))
		for j, st := range p.Steps {
			st.SubTasks = append([]domain.SubTask{}, st.SubTasks...)
			steps[j] = st
		}
		p.Steps = steps
		phases[i] = p
	}
	return domain.Board{Phases: phases}
}
