package api

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/andiegogiap/AI-WORKFLOW/board"
	"github.com/andiegogiap/AI-WORKFLOW/domain"
)

type memStore struct {
	mu     sync.Mutex
	data   map[string][]byte
	getErr error
}

func newMemStore() *memStore { return &memStore{data: make(map[string][]byte)} }

func (m *memStore) Get(_ context.Context, col, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, false, m.getErr
	}
	v, ok := m.data[col+"/"+key]
	return v, ok, nil
}

func (m *memStore) Put(_ context.Context, col, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[col+"/"+key] = append([]byte(nil), value...)
	return nil
}

func (m *memStore) Delete(_ context.Context, col, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, col+"/"+key)
	return nil
}

func (m *memStore) GetAll(_ context.Context, col string) ([][]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out [][]byte
	for k, v := range m.data {
		if strings.HasPrefix(k, col+"/") {
			out = append(out, v)
		}
	}
	return out, nil
}

type fakeStructurer struct {
	mu    sync.Mutex
	board domain.Board
	err   error
	calls int
}

func (f *fakeStructurer) Structure(_ context.Context, rawText string) (domain.Board, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.board, f.err
}

type fakeElaborator struct {
	suggestions []domain.Suggestion
	err         error
}

func (f *fakeElaborator) Elaborate(context.Context, domain.Field, string) ([]domain.Suggestion, error) {
	return f.suggestions, f.err
}

type denyAuth struct{}

func (denyAuth) UserIDFromRequest(*http.Request) (string, error) {
	return "", errMissingAuthorization
}

type fixture struct {
	e          *echo.Echo
	store      *memStore
	boards     *board.BoardStore
	notes      *board.NoteStore
	structurer *fakeStructurer
	elaborator *fakeElaborator
	hook       *test.Hook
}

func sampleBoard() domain.Board {
	step := func(id, title string) domain.Step {
		return domain.Step{
			ID: id, Title: title, Activity: "Do " + title, Considerations: "Think", Output: "Result",
			Status: domain.StatusToDo, Agent: domain.DefaultAgent, SubTasks: []domain.SubTask{},
		}
	}
	return domain.Board{Phases: []domain.Phase{
		{ID: "phase-a", Title: "Foundation", Steps: []domain.Step{step("step-1", "Repo"), step("step-2", "Backend")}},
		{ID: "phase-b", Title: "API", Steps: []domain.Step{step("step-3", "Routes")}},
	}}
}

type fixtureOption func(*fixtureConfig)

type fixtureConfig struct {
	auth    Authenticator
	deduper Deduper
}

func withAuth(a Authenticator) fixtureOption { return func(c *fixtureConfig) { c.auth = a } }

func withDeduper(d Deduper) fixtureOption { return func(c *fixtureConfig) { c.deduper = d } }

func newFixture(t *testing.T, opts ...fixtureOption) *fixture {
	t.Helper()
	cfg := fixtureConfig{auth: anonymous{}}
	for _, o := range opts {
		o(&cfg)
	}

	logger, hook := test.NewNullLogger()
	store := newMemStore()
	persist := board.NewPersister(store, logger, board.DefaultPersisterConfig)
	t.Cleanup(persist.Close)

	boards := board.NewBoardStore(persist, logger)
	notes := board.NewNoteStore(persist, logger)
	elaborator := &fakeElaborator{suggestions: []domain.Suggestion{{Title: "Use Lerna", Description: "Manage packages."}}}
	session := board.NewSession(boards, elaborator)
	structurer := &fakeStructurer{board: sampleBoard()}

	e := echo.New()
	e.Use(GzipRequestMiddleware(maxBodySize))
	Register(e, Services{Store: store, Boards: boards, Notes: notes, Session: session, Structurer: structurer}, cfg.auth, cfg.deduper, logger)

	return &fixture{e: e, store: store, boards: boards, notes: notes, structurer: structurer, elaborator: elaborator, hook: hook}
}

func (f *fixture) do(t *testing.T, method, path, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	f.e.ServeHTTP(rec, req)
	return rec
}

func (f *fixture) visualize(t *testing.T) {
	t.Helper()
	if rec := f.do(t, http.MethodPost, "/api/board/visualize", `{"text":"Phase I: setup"}`); rec.Code != http.StatusOK {
		t.Fatalf("visualize: %d %s", rec.Code, rec.Body.String())
	}
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := sonic.ConfigStd.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %s: %v", rec.Body.String(), err)
	}
	return v
}

func TestVisualizeReplacesBoard(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/board/visualize", `{"text":"Phase I: setup"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d %s", rec.Code, rec.Body.String())
	}
	resp := decode[boardResponse](t, rec)
	if len(resp.Board.Phases) != 2 || resp.Progress.TotalSteps != 3 || resp.Progress.CompletedSteps != 0 {
		t.Fatalf("unexpected response: %#v", resp)
	}

	rec = f.do(t, http.MethodGet, "/api/board", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("get board: %d", rec.Code)
	}
	if got := decode[boardResponse](t, rec); got.Board.Phases[1].Steps[0].ID != "step-3" {
		t.Fatalf("unexpected board: %#v", got.Board)
	}
}

func TestVisualizeEmptyInputKeepsBoard(t *testing.T) {
	f := newFixture(t)
	f.visualize(t)

	rec := f.do(t, http.MethodPost, "/api/board/visualize", `{"text":"   "}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if got := decode[errorResponse](t, rec); got.Error != "Input text cannot be empty." || got.Field != "text" {
		t.Fatalf("unexpected error body: %#v", got)
	}
	if f.structurer.calls != 1 {
		t.Fatalf("structurer must not be called for empty input, calls=%d", f.structurer.calls)
	}
	if _, ok := f.boards.Current(); !ok {
		t.Fatal("board must survive a rejected input")
	}
}

func TestVisualizeFailureClearsBoard(t *testing.T) {
	f := newFixture(t)
	f.visualize(t)
	f.structurer.err = &domain.StructuringError{Err: errors.New("bad json")}

	rec := f.do(t, http.MethodPost, "/api/board/visualize", `{"text":"again"}`)
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", rec.Code)
	}
	if rec := f.do(t, http.MethodGet, "/api/board", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("expected no board after failure, got %d", rec.Code)
	}
	rec = f.do(t, http.MethodGet, "/api/board/progress", "")
	if got := decode[domain.Progress](t, rec); got != (domain.Progress{}) {
		t.Fatalf("expected zero progress, got %#v", got)
	}
	if entry := f.hook.LastEntry(); entry == nil || entry.Message != "observability.event" || entry.Level != log.WarnLevel && entry.Level != log.ErrorLevel {
		t.Fatalf("expected observability event for failed visualize, got %#v", entry)
	}
}

func TestVisualizeRejectsUnknownFields(t *testing.T) {
	f := newFixture(t)
	if rec := f.do(t, http.MethodPost, "/api/board/visualize", `{"text":"x","extra":1}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if rec := f.do(t, http.MethodPost, "/api/board/visualize", `{"text":`); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed body, got %d", rec.Code)
	}
}

func TestPatchStep(t *testing.T) {
	f := newFixture(t)
	f.visualize(t)

	tests := []struct {
		name string
		path string
		body string
		want int
	}{
		{name: "status", path: "/api/board/phases/0/steps/1", body: `{"status":"Done","agent":"Gemini"}`, want: http.StatusOK},
		{name: "invalid status", path: "/api/board/phases/0/steps/1", body: `{"status":"Later"}`, want: http.StatusBadRequest},
		{name: "sub-tasks not patchable", path: "/api/board/phases/0/steps/1", body: `{"subTasks":[]}`, want: http.StatusBadRequest},
		{name: "out of range", path: "/api/board/phases/0/steps/9", body: `{"title":"x"}`, want: http.StatusNotFound},
		{name: "non numeric", path: "/api/board/phases/a/steps/0", body: `{"title":"x"}`, want: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, http.MethodPatch, tt.path, tt.body)
			if rec.Code != tt.want {
				t.Fatalf("expected %d, got %d %s", tt.want, rec.Code, rec.Body.String())
			}
		})
	}

	b, _ := f.boards.Current()
	st := b.Phases[0].Steps[1]
	if st.Status != domain.StatusDone || st.Agent != "Gemini" || st.Title != "Backend" {
		t.Fatalf("unexpected step after patch: %#v", st)
	}
	if b.Phases[0].Steps[0].Status != domain.StatusToDo {
		t.Fatal("other steps must be untouched")
	}
	rec := f.do(t, http.MethodGet, "/api/board/progress", "")
	if got := decode[domain.Progress](t, rec); got.CompletedSteps != 1 || got.ProgressPercentage != 33 {
		t.Fatalf("unexpected progress: %#v", got)
	}
}

func TestSuggestionMergeAndUndo(t *testing.T) {
	f := newFixture(t)
	f.visualize(t)
	base := "/api/board/phases/0/steps/0"

	rec := f.do(t, http.MethodPost, base+"/elaborate", `{"field":"considerations"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("elaborate: %d %s", rec.Code, rec.Body.String())
	}
	elab := decode[board.Elaboration](t, rec)
	if elab.RequestID == 0 || len(elab.Suggestions) != 1 {
		t.Fatalf("unexpected elaboration: %#v", elab)
	}

	body, _ := sonic.ConfigStd.MarshalToString(suggestionsRequest{Field: "considerations", Suggestions: elab.Suggestions, RequestID: elab.RequestID})
	rec = f.do(t, http.MethodPost, base+"/suggestions", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("apply: %d %s", rec.Code, rec.Body.String())
	}
	applied := decode[appliedResponse](t, rec)
	if applied.UndoExpiresAt == nil || !strings.HasPrefix(applied.Step.Considerations, "Think\n\n> ✨ Suggestions from AI (") {
		t.Fatalf("unexpected merge: %#v", applied)
	}

	rec = f.do(t, http.MethodGet, base+"/sections", "")
	sections := decode[sectionsResponse](t, rec)
	if sections.Considerations.Original != "Think" || !strings.Contains(sections.Considerations.Appended, "**Use Lerna**") {
		t.Fatalf("unexpected sections: %#v", sections.Considerations)
	}
	if sections.Activity.Appended != "" {
		t.Fatalf("activity must have no appended part: %#v", sections.Activity)
	}

	rec = f.do(t, http.MethodPost, base+"/undo", "")
	undone := decode[undoResponse](t, rec)
	if !undone.Undone || undone.Step.Considerations != "Think" {
		t.Fatalf("unexpected undo: %#v", undone)
	}
	rec = f.do(t, http.MethodPost, base+"/undo", "")
	if got := decode[undoResponse](t, rec); got.Undone {
		t.Fatal("second undo must be a no-op")
	}
}

func TestStaleSuggestionsRejected(t *testing.T) {
	f := newFixture(t)
	f.visualize(t)
	base := "/api/board/phases/0/steps/0"

	first := decode[board.Elaboration](t, f.do(t, http.MethodPost, base+"/elaborate", `{"field":"output"}`))
	_ = f.do(t, http.MethodPost, base+"/elaborate", `{"field":"output"}`)

	body, _ := sonic.ConfigStd.MarshalToString(suggestionsRequest{Field: "output", Suggestions: first.Suggestions, RequestID: first.RequestID})
	if rec := f.do(t, http.MethodPost, base+"/suggestions", body); rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 for stale request, got %d", rec.Code)
	}
	if rec := f.do(t, http.MethodPost, base+"/elaborate", `{"field":"notes"}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad field, got %d", rec.Code)
	}
}

func TestElaborateFailure(t *testing.T) {
	f := newFixture(t)
	f.visualize(t)
	f.elaborator.err = &domain.ElaborationError{Section: "Activity", Err: errors.New("upstream")}

	rec := f.do(t, http.MethodPost, "/api/board/phases/0/steps/0/elaborate", `{"field":"activity"}`)
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", rec.Code)
	}
	if got := decode[errorResponse](t, rec); !strings.Contains(got.Error, `"Activity"`) {
		t.Fatalf("unexpected error: %#v", got)
	}
}

func TestSubTasks(t *testing.T) {
	f := newFixture(t)
	f.visualize(t)
	base := "/api/board/phases/1/steps/0/subtasks"

	rec := f.do(t, http.MethodPost, base, `{"title":"  write handler "}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("add: %d %s", rec.Code, rec.Body.String())
	}
	st := decode[stepResponse](t, rec).Step
	if len(st.SubTasks) != 1 || st.SubTasks[0].Title != "write handler" || st.SubTasks[0].Completed {
		t.Fatalf("unexpected sub-tasks: %#v", st.SubTasks)
	}

	rec = f.do(t, http.MethodPost, base+"/"+st.SubTasks[0].ID+"/toggle", "")
	if got := decode[stepResponse](t, rec).Step; !got.SubTasks[0].Completed {
		t.Fatalf("toggle did not complete: %#v", got.SubTasks)
	}
	if rec := f.do(t, http.MethodPost, base, `{"title":" "}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty title, got %d", rec.Code)
	}
	if rec := f.do(t, http.MethodPost, base+"/sub-missing/toggle", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown sub-task, got %d", rec.Code)
	}
}

func TestSaveSuggestionAsNote(t *testing.T) {
	f := newFixture(t)
	f.visualize(t)

	rec := f.do(t, http.MethodPost, "/api/board/phases/1/steps/0/notes", `{"title":"Use Lerna","description":"Manage packages."}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("save: %d %s", rec.Code, rec.Body.String())
	}
	n := decode[domain.Note](t, rec)
	if n.Source != (domain.NoteSource{PhaseTitle: "API", StepTitle: "Routes"}) || n.Content != "Manage packages." {
		t.Fatalf("unexpected note: %#v", n)
	}
	if !strings.HasPrefix(n.ID, "note-") || n.CreatedAt.IsZero() {
		t.Fatalf("note id/time not assigned: %#v", n)
	}
}

func TestNotesCRUD(t *testing.T) {
	f := newFixture(t)

	first := decode[domain.Note](t, f.do(t, http.MethodPost, "/api/notes", `{"title":"A","content":"one"}`))
	second := decode[domain.Note](t, f.do(t, http.MethodPost, "/api/notes", `{"title":"B","content":"two","source":{"phaseTitle":"P","stepTitle":"S"}}`))

	list := decode[notesResponse](t, f.do(t, http.MethodGet, "/api/notes", ""))
	if len(list.Notes) != 2 || list.Notes[0].ID != second.ID {
		t.Fatalf("expected newest first: %#v", list.Notes)
	}

	rec := f.do(t, http.MethodPut, "/api/notes/"+second.ID, `{"title":"B2","content":"edited"}`)
	updated := decode[domain.Note](t, rec)
	if updated.Title != "B2" || updated.Source.StepTitle != "S" || !updated.CreatedAt.Equal(second.CreatedAt) {
		t.Fatalf("unexpected update: %#v", updated)
	}
	if rec := f.do(t, http.MethodPut, "/api/notes/"+first.ID, `{"title":""}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty title, got %d", rec.Code)
	}

	if rec := f.do(t, http.MethodDelete, "/api/notes/"+first.ID, ""); rec.Code != http.StatusNoContent {
		t.Fatalf("delete: %d", rec.Code)
	}
	for _, path := range []string{"/api/notes/" + first.ID} {
		if rec := f.do(t, http.MethodGet, path, ""); rec.Code != http.StatusNotFound {
			t.Fatalf("expected 404 after delete, got %d", rec.Code)
		}
		if rec := f.do(t, http.MethodDelete, path, ""); rec.Code != http.StatusNotFound {
			t.Fatalf("expected 404 deleting twice, got %d", rec.Code)
		}
	}
	if rec := f.do(t, http.MethodPost, "/api/notes", `{"content":"no title"}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestCreateNoteIdempotency(t *testing.T) {
	deduper, _, _ := newTestDeduper(t)
	f := newFixture(t, withDeduper(deduper))

	first := f.do(t, http.MethodPost, "/api/notes", `{"title":"A"}`, headerIdempotencyKey, "key-1")
	if first.Code != http.StatusCreated {
		t.Fatalf("first create: %d", first.Code)
	}
	retry := f.do(t, http.MethodPost, "/api/notes", `{"title":"A"}`, headerIdempotencyKey, "key-1")
	if retry.Code != http.StatusOK {
		t.Fatalf("retry should replay, got %d", retry.Code)
	}
	if decode[domain.Note](t, first).ID != decode[domain.Note](t, retry).ID {
		t.Fatal("retry must return the same note")
	}
	if len(f.notes.List()) != 1 {
		t.Fatalf("expected a single note, got %d", len(f.notes.List()))
	}

	if ok, _ := deduper.Reserve(context.Background(), AnonymousUser, "key-2"); !ok {
		t.Fatal("reserve key-2")
	}
	if rec := f.do(t, http.MethodPost, "/api/notes", `{"title":"B"}`, headerIdempotencyKey, "key-2"); rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 while in flight, got %d", rec.Code)
	}
}

func TestAuthRequiredForAPI(t *testing.T) {
	f := newFixture(t, withAuth(denyAuth{}))
	if rec := f.do(t, http.MethodGet, "/api/board", ""); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if rec := f.do(t, http.MethodGet, "/healthz", ""); rec.Code != http.StatusOK {
		t.Fatalf("healthz must not require auth, got %d", rec.Code)
	}
}

func TestHealthzReportsStoreFailure(t *testing.T) {
	f := newFixture(t)
	f.store.mu.Lock()
	f.store.getErr = errors.New("down")
	f.store.mu.Unlock()
	if rec := f.do(t, http.MethodGet, "/healthz", ""); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}

func gzipped(t *testing.T, s string) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write([]byte(s)); err != nil {
		t.Fatalf("gzip: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("gzip close: %v", err)
	}
	return &buf
}

func TestGzipBodies(t *testing.T) {
	f := newFixture(t)

	req := httptest.NewRequest(http.MethodPost, "/api/notes", gzipped(t, `{"title":"zipped"}`))
	req.Header.Set(echo.HeaderContentEncoding, "gzip")
	rec := httptest.NewRecorder()
	f.e.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("gzip create: %d %s", rec.Code, rec.Body.String())
	}

	big := `{"title":"big","content":"` + strings.Repeat("a", maxBodySize) + `"}`
	req = httptest.NewRequest(http.MethodPost, "/api/notes", gzipped(t, big))
	req.Header.Set(echo.HeaderContentEncoding, "gzip")
	rec = httptest.NewRecorder()
	f.e.ServeHTTP(rec, req)
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413 for oversized inflated body, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/notes", strings.NewReader("not gzip"))
	req.Header.Set(echo.HeaderContentEncoding, "gzip")
	rec = httptest.NewRecorder()
	f.e.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid gzip, got %d", rec.Code)
	}
}

func TestPlainBodyTooLarge(t *testing.T) {
	f := newFixture(t)
	big := `{"title":"big","content":"` + strings.Repeat("a", maxBodySize) + `"}`
	if rec := f.do(t, http.MethodPost, "/api/notes", big); rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", rec.Code)
	}
}

func TestStreamSendsBoardOnChange(t *testing.T) {
	f := newFixture(t)
	srv := httptest.NewServer(f.e)
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/board/stream", nil)
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if ct := resp.Header.Get(echo.HeaderContentType); ct != "text/event-stream" {
		t.Fatalf("unexpected content type %q", ct)
	}

	lines := bufio.NewScanner(resp.Body)
	lines.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	nextData := func() string {
		for lines.Scan() {
			if data, ok := strings.CutPrefix(lines.Text(), "data: "); ok {
				return data
			}
		}
		t.Fatalf("stream ended: %v", lines.Err())
		return ""
	}

	if first := nextData(); first != "null" {
		t.Fatalf("expected empty board first, got %s", first)
	}
	f.boards.Replace(sampleBoard())
	var got boardResponse
	if err := sonic.ConfigStd.UnmarshalFromString(nextData(), &got); err != nil {
		t.Fatalf("decode event: %v", err)
	}
	if got.Progress.TotalSteps != 3 {
		t.Fatalf("unexpected streamed board: %#v", got)
	}
}
