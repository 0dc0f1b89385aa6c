package api

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"github.com/andiegogiap/AI-WORKFLOW/board"
	"github.com/andiegogiap/AI-WORKFLOW/domain"
	"github.com/andiegogiap/AI-WORKFLOW/storage"
)

const (
	ctxUserID       = "userID"
	ctxAuthDuration = "authDuration"

	healthTimeout = 3 * time.Second
)

var errBodyTooLarge = errors.New("request body too large")

// Services are the stores and collaborators behind the HTTP API.
type Services struct {
	Store      storage.KeyValueStore
	Boards     *board.BoardStore
	Notes      *board.NoteStore
	Session    *board.Session
	Structurer Structurer
}

// Register wires up all API routes on the provided Echo instance. deduper
// may be nil, in which case Idempotency-Key headers are ignored.
func Register(e *echo.Echo, svc Services, auth Authenticator, deduper Deduper, logger *log.Logger) {
	broker := newUpdateBroker()
	svc.Boards.OnChange(func(board.Change) { broker.notify() })

	e.GET("/healthz", healthz(svc.Store))

	g := e.Group("/api", authenticate(auth))
	g.POST("/board/visualize", visualize(svc.Boards, svc.Structurer, logger))
	g.GET("/board", getBoard(svc.Boards))
	g.GET("/board/progress", getProgress(svc.Boards))
	g.GET("/board/stream", streamBoard(svc.Boards, broker, logger))

	step := g.Group("/board/phases/:phase/steps/:step")
	step.PATCH("", patchStep(svc.Boards, svc.Session))
	step.GET("/sections", getSections(svc.Boards))
	step.POST("/subtasks", addSubTask(svc.Boards))
	step.POST("/subtasks/:id/toggle", toggleSubTask(svc.Boards))
	step.POST("/elaborate", elaborate(svc.Session, logger))
	step.POST("/suggestions", applySuggestions(svc.Session))
	step.POST("/undo", undo(svc.Session))
	step.POST("/notes", saveSuggestion(svc.Boards, svc.Notes))

	g.GET("/notes", listNotes(svc.Notes))
	g.POST("/notes", createNote(svc.Notes, deduper, logger))
	g.GET("/notes/:id", getNote(svc.Notes))
	g.PUT("/notes/:id", updateNote(svc.Notes))
	g.DELETE("/notes/:id", deleteNote(svc.Notes))
}

// authenticate resolves the caller once per request and records how long
// that took for the instrumented handlers.
func authenticate(auth Authenticator) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			userID, err := auth.UserIDFromRequest(c.Request())
			c.Set(ctxAuthDuration, time.Since(start))
			if err != nil {
				return writeJSONError(c, http.StatusUnauthorized, err.Error(), "")
			}
			c.Set(ctxUserID, userID)
			return next(c)
		}
	}
}

func userIDFrom(c echo.Context) string {
	id, _ := c.Get(ctxUserID).(string)
	return id
}

func authDurationFrom(c echo.Context) time.Duration {
	d, _ := c.Get(ctxAuthDuration).(time.Duration)
	return d
}

func healthz(store storage.KeyValueStore) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), healthTimeout)
		defer cancel()
		if _, _, err := store.Get(ctx, storage.CollectionBoard, storage.BoardKey); err != nil {
			c.Logger().Error(err)
			return writeJSONError(c, http.StatusServiceUnavailable, "store unavailable", "")
		}
		return c.NoContent(http.StatusOK)
	}
}

func visualize(boards *board.BoardStore, structurer Structurer, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		metrics, ctx := newRequestMetrics(c.Request().Context(), logger, visualizeEvent)
		c.SetRequest(c.Request().WithContext(ctx))
		metrics.ObserveAuth(authDurationFrom(c))
		var failure error
		defer func() {
			metrics.Log(c.Response().Status, failure)
		}()

		var req visualizeRequest
		if failure = decodeBody(c, &req); failure != nil {
			metrics.SetErrorStage("decode")
			return writeDecodeError(c, failure)
		}
		metrics.Set("workflow.board.input_bytes", len(req.Text))
		if strings.TrimSpace(req.Text) == "" {
			failure = domain.ErrEmptyInput
			metrics.SetErrorStage("validate")
			return writeError(c, failure)
		}

		boards.Clear()
		modelStart := time.Now()
		b, failure := structurer.Structure(ctx, req.Text)
		metrics.ObserveModel(time.Since(modelStart))
		if failure != nil {
			metrics.SetErrorStage("model")
			return writeError(c, failure)
		}

		boards.Replace(b)
		progress := progressOf(b)
		metrics.Set("workflow.board.phases_returned", len(b.Phases))
		metrics.Set("workflow.board.steps_returned", progress.TotalSteps)
		return c.JSON(http.StatusOK, boardResponse{Board: b, Progress: progress})
	}
}

func getBoard(boards *board.BoardStore) echo.HandlerFunc {
	return func(c echo.Context) error {
		b, ok := boards.Current()
		if !ok {
			return writeError(c, domain.ErrNoBoard)
		}
		return c.JSON(http.StatusOK, boardResponse{Board: b, Progress: progressOf(b)})
	}
}

func getProgress(boards *board.BoardStore) echo.HandlerFunc {
	return func(c echo.Context) error {
		b, _ := boards.Current()
		return c.JSON(http.StatusOK, progressOf(b))
	}
}

func patchStep(boards *board.BoardStore, session *board.Session) echo.HandlerFunc {
	return func(c echo.Context) error {
		p, s, err := stepIndices(c)
		if err != nil {
			return writeError(c, err)
		}
		var req stepPatchRequest
		if err := decodeBody(c, &req); err != nil {
			return writeDecodeError(c, err)
		}
		patch := domain.StepPatch{
			Title:          req.Title,
			Activity:       req.Activity,
			Considerations: req.Considerations,
			Output:         req.Output,
			Agent:          req.Agent,
		}
		if req.Status != nil {
			status, err := domain.ParseStatus(*req.Status)
			if err != nil {
				return writeError(c, err)
			}
			patch.Status = &status
		}
		st, err := boards.UpdateStep(p, s, patch)
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(http.StatusOK, stepResponse{Step: st, UndoPending: session.Pending(st.ID)})
	}
}

func getSections(boards *board.BoardStore) echo.HandlerFunc {
	return func(c echo.Context) error {
		p, s, err := stepIndices(c)
		if err != nil {
			return writeError(c, err)
		}
		st, err := boards.Step(p, s)
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(http.StatusOK, sectionsResponse{
			Activity:       domain.SplitProvenance(st.Activity),
			Considerations: domain.SplitProvenance(st.Considerations),
			Output:         domain.SplitProvenance(st.Output),
		})
	}
}

func addSubTask(boards *board.BoardStore) echo.HandlerFunc {
	return func(c echo.Context) error {
		p, s, err := stepIndices(c)
		if err != nil {
			return writeError(c, err)
		}
		var req subTaskRequest
		if err := decodeBody(c, &req); err != nil {
			return writeDecodeError(c, err)
		}
		st, err := boards.AddSubTask(p, s, req.Title)
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(http.StatusCreated, stepResponse{Step: st})
	}
}

func toggleSubTask(boards *board.BoardStore) echo.HandlerFunc {
	return func(c echo.Context) error {
		p, s, err := stepIndices(c)
		if err != nil {
			return writeError(c, err)
		}
		st, err := boards.ToggleSubTask(p, s, c.Param("id"))
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(http.StatusOK, stepResponse{Step: st})
	}
}

func elaborate(session *board.Session, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		metrics, ctx := newRequestMetrics(c.Request().Context(), logger, elaborateEvent)
		c.SetRequest(c.Request().WithContext(ctx))
		metrics.ObserveAuth(authDurationFrom(c))
		var failure error
		defer func() {
			metrics.Log(c.Response().Status, failure)
		}()

		p, s, failure := stepIndices(c)
		if failure != nil {
			metrics.SetErrorStage("path")
			return writeError(c, failure)
		}
		var req elaborateRequest
		if failure = decodeBody(c, &req); failure != nil {
			metrics.SetErrorStage("decode")
			return writeDecodeError(c, failure)
		}
		field, failure := domain.ParseField(req.Field)
		if failure != nil {
			metrics.SetErrorStage("validate")
			return writeError(c, failure)
		}
		metrics.Set("workflow.step.field", string(field))

		modelStart := time.Now()
		result, failure := session.Elaborate(ctx, p, s, field)
		metrics.ObserveModel(time.Since(modelStart))
		if failure != nil {
			metrics.SetErrorStage("model")
			return writeError(c, failure)
		}
		metrics.Set("workflow.step.suggestions_returned", len(result.Suggestions))
		return c.JSON(http.StatusOK, result)
	}
}

func applySuggestions(session *board.Session) echo.HandlerFunc {
	return func(c echo.Context) error {
		p, s, err := stepIndices(c)
		if err != nil {
			return writeError(c, err)
		}
		var req suggestionsRequest
		if err := decodeBody(c, &req); err != nil {
			return writeDecodeError(c, err)
		}
		field, err := domain.ParseField(req.Field)
		if err != nil {
			return writeError(c, err)
		}
		applied, err := session.ApplySuggestions(p, s, field, req.Suggestions, req.RequestID)
		if err != nil {
			return writeError(c, err)
		}
		resp := appliedResponse{Step: applied.Step}
		if !applied.UndoExpiresAt.IsZero() {
			at := applied.UndoExpiresAt.UTC()
			resp.UndoExpiresAt = &at
		}
		return c.JSON(http.StatusOK, resp)
	}
}

func undo(session *board.Session) echo.HandlerFunc {
	return func(c echo.Context) error {
		p, s, err := stepIndices(c)
		if err != nil {
			return writeError(c, err)
		}
		st, undone, err := session.Undo(p, s)
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(http.StatusOK, undoResponse{Undone: undone, Step: st})
	}
}

func saveSuggestion(boards *board.BoardStore, notes *board.NoteStore) echo.HandlerFunc {
	return func(c echo.Context) error {
		p, s, err := stepIndices(c)
		if err != nil {
			return writeError(c, err)
		}
		var req saveSuggestionRequest
		if err := decodeBody(c, &req); err != nil {
			return writeDecodeError(c, err)
		}
		src, err := boards.Source(p, s)
		if err != nil {
			return writeError(c, err)
		}
		n, _, err := notes.Add(domain.NoteDraft{Title: req.Title, Content: req.Description, Source: src})
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(http.StatusCreated, n)
	}
}

func progressOf(b domain.Board) domain.Progress {
	return domain.ProgressOf(b)
}

func stepIndices(c echo.Context) (int, int, error) {
	p, err := strconv.Atoi(c.Param("phase"))
	if err != nil {
		return 0, 0, &domain.InputValidationError{Field: "phase", Message: "phase index must be an integer"}
	}
	s, err := strconv.Atoi(c.Param("step"))
	if err != nil {
		return 0, 0, &domain.InputValidationError{Field: "step", Message: "step index must be an integer"}
	}
	return p, s, nil
}

// decodeBody reads at most maxBodySize bytes of JSON into v, rejecting
// unknown fields.
func decodeBody(c echo.Context, v any) error {
	body := c.Request().Body
	if body == nil {
		return io.EOF
	}
	data, err := io.ReadAll(io.LimitReader(body, maxBodySize+1))
	if err != nil {
		return err
	}
	if len(data) > maxBodySize {
		return errBodyTooLarge
	}
	dec := sonic.ConfigStd.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func writeDecodeError(c echo.Context, err error) error {
	if errors.Is(err, errBodyTooLarge) || errors.Is(err, errInflatedTooLarge) ||
		errors.Is(err, echo.ErrStatusRequestEntityTooLarge) {
		return writeJSONError(c, http.StatusRequestEntityTooLarge, errBodyTooLarge.Error(), "")
	}
	return writeJSONError(c, http.StatusBadRequest, "invalid body", "")
}

// writeError maps domain errors onto HTTP statuses.
func writeError(c echo.Context, err error) error {
	var (
		inputErr  *domain.InputValidationError
		structErr *domain.StructuringError
		elabErr   *domain.ElaborationError
	)
	switch {
	case errors.As(err, &inputErr):
		return writeJSONError(c, http.StatusBadRequest, inputErr.Message, inputErr.Field)
	case errors.Is(err, domain.ErrInvalidField), errors.Is(err, domain.ErrInvalidStatus):
		return writeJSONError(c, http.StatusBadRequest, err.Error(), "")
	case errors.Is(err, domain.ErrNoBoard), errors.Is(err, domain.ErrStepOutOfRange),
		errors.Is(err, domain.ErrSubTaskNotFound), errors.Is(err, domain.ErrNoteNotFound):
		return writeJSONError(c, http.StatusNotFound, err.Error(), "")
	case errors.Is(err, domain.ErrStaleElaboration):
		return writeJSONError(c, http.StatusConflict, err.Error(), "")
	case errors.As(err, &structErr), errors.As(err, &elabErr):
		return writeJSONError(c, http.StatusBadGateway, err.Error(), "")
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return writeJSONError(c, http.StatusGatewayTimeout, err.Error(), "")
	}
	c.Logger().Error(err)
	return writeJSONError(c, http.StatusInternalServerError, "internal error", "")
}

func writeJSONError(c echo.Context, status int, msg, field string) error {
	return c.JSON(status, errorResponse{Error: msg, Field: field})
}
