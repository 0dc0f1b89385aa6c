package board

import (
	"context"
	"sync"
	"time"

	"github.com/andiegogiap/AI-WORKFLOW/domain"
)

// DefaultUndoWindow is how long a suggestion merge can be undone.
const DefaultUndoWindow = 5 * time.Second

// Elaborator produces suggestions for one step section.
type Elaborator interface {
	Elaborate(ctx context.Context, field domain.Field, text string) ([]domain.Suggestion, error)
}

// Elaboration is a batch of suggestions and the request id that must be
// echoed back when applying them.
type Elaboration struct {
	RequestID   uint64              `json:"requestId"`
	Suggestions []domain.Suggestion `json:"suggestions"`
}

// Applied is the result of a suggestion merge.
type Applied struct {
	Step domain.Step
	// UndoExpiresAt is zero when nothing was merged.
	UndoExpiresAt time.Time
}

type undoEntry struct {
	field     domain.Field
	previous  string
	expiresAt time.Time
	timer     *time.Timer
}

// Session merges suggestions into steps and keeps one pending undo per step.
type Session struct {
	boards     *BoardStore
	elaborator Elaborator
	window     time.Duration
	now        func() time.Time

	mu       sync.Mutex
	undo     map[string]*undoEntry
	requests map[string]uint64
	seq      uint64
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithUndoWindow overrides DefaultUndoWindow.
func WithUndoWindow(d time.Duration) SessionOption {
	return func(s *Session) {
		if d > 0 {
			s.window = d
		}
	}
}

// WithClock replaces time.Now for merge timestamps and expiry checks.
func WithClock(now func() time.Time) SessionOption {
	return func(s *Session) { s.now = now }
}

func NewSession(boards *BoardStore, elaborator Elaborator, opts ...SessionOption) *Session {
	s := &Session{
		boards:     boards,
		elaborator: elaborator,
		window:     DefaultUndoWindow,
		now:        time.Now,
		undo:       make(map[string]*undoEntry),
		requests:   make(map[string]uint64),
	}
	for _, o := range opts {
		o(s)
	}
	boards.OnReset(s.reset)
	return s
}

// Elaborate asks the model for suggestions on one section of a step.
func (s *Session) Elaborate(ctx context.Context, phaseIndex, stepIndex int, field domain.Field) (Elaboration, error) {
	st, err := s.boards.Step(phaseIndex, stepIndex)
	if err != nil {
		return Elaboration{}, err
	}

	s.mu.Lock()
	s.seq++
	id := s.seq
	s.requests[requestKey(st.ID, field)] = id
	s.mu.Unlock()

	suggestions, err := s.elaborator.Elaborate(ctx, field, field.Value(st))
	if err != nil {
		return Elaboration{}, err
	}
	return Elaboration{RequestID: id, Suggestions: suggestions}, nil
}

// ApplySuggestions appends suggestions to a step field and arms the undo
// buffer for that step. A non-zero requestID older than the latest
// elaboration for the same step and field is rejected.
func (s *Session) ApplySuggestions(phaseIndex, stepIndex int, field domain.Field, suggestions []domain.Suggestion, requestID uint64) (Applied, error) {
	var expires time.Time
	st, err := s.boards.modifyStep(phaseIndex, stepIndex, func(cur domain.Step) (domain.StepPatch, error) {
		s.mu.Lock()
		defer s.mu.Unlock()

		if len(suggestions) == 0 {
			return domain.StepPatch{}, nil
		}
		if requestID != 0 && requestID < s.requests[requestKey(cur.ID, field)] {
			return domain.StepPatch{}, domain.ErrStaleElaboration
		}

		now := s.now()
		previous := field.Value(cur)
		expires = now.Add(s.window)
		s.arm(cur.ID, &undoEntry{field: field, previous: previous, expiresAt: expires})
		return field.Patch(domain.ApplySuggestions(previous, suggestions, now)), nil
	})
	if err != nil {
		return Applied{}, err
	}
	return Applied{Step: st, UndoExpiresAt: expires}, nil
}

// Undo restores the field captured by the last merge on the step if its
// window is still open. It reports whether anything was restored.
func (s *Session) Undo(phaseIndex, stepIndex int) (domain.Step, bool, error) {
	undone := false
	st, err := s.boards.modifyStep(phaseIndex, stepIndex, func(cur domain.Step) (domain.StepPatch, error) {
		s.mu.Lock()
		defer s.mu.Unlock()

		e, ok := s.undo[cur.ID]
		if !ok {
			return domain.StepPatch{}, nil
		}
		e.timer.Stop()
		delete(s.undo, cur.ID)
		if !s.now().Before(e.expiresAt) {
			return domain.StepPatch{}, nil
		}
		undone = true
		return e.field.Patch(e.previous), nil
	})
	return st, undone, err
}

// Pending reports whether the step has an unexpired undo entry.
func (s *Session) Pending(stepID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.undo[stepID]
	return ok && s.now().Before(e.expiresAt)
}

// arm replaces any pending entry for stepID. Callers hold s.mu.
func (s *Session) arm(stepID string, e *undoEntry) {
	if old, ok := s.undo[stepID]; ok {
		old.timer.Stop()
	}
	e.timer = time.AfterFunc(s.window, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.undo[stepID] == e {
			delete(s.undo, stepID)
		}
	})
	s.undo[stepID] = e
}

func (s *Session) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, e := range s.undo {
		e.timer.Stop()
		delete(s.undo, id)
	}
	clear(s.requests)
}

func requestKey(stepID string, field domain.Field) string {
	return stepID + "/" + string(field)
}
