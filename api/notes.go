package api

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"github.com/andiegogiap/AI-WORKFLOW/board"
	"github.com/andiegogiap/AI-WORKFLOW/domain"
)

func listNotes(notes *board.NoteStore) echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.JSON(http.StatusOK, notesResponse{Notes: notes.List()})
	}
}

func getNote(notes *board.NoteStore) echo.HandlerFunc {
	return func(c echo.Context) error {
		n, ok := notes.Get(c.Param("id"))
		if !ok {
			return writeError(c, domain.ErrNoteNotFound)
		}
		return c.JSON(http.StatusOK, n)
	}
}

// createNote stores a note. With an Idempotency-Key header and a deduper,
// a retried request returns the note created by the first one.
func createNote(notes *board.NoteStore, deduper Deduper, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req noteRequest
		if err := decodeBody(c, &req); err != nil {
			return writeDecodeError(c, err)
		}
		draft := domain.NoteDraft{Title: req.Title, Content: req.Content}
		if req.Source != nil {
			draft.Source = *req.Source
		}
		if err := draft.Validate(); err != nil {
			return writeError(c, err)
		}

		ctx := c.Request().Context()
		userID := userIDFrom(c)
		key := strings.TrimSpace(c.Request().Header.Get(headerIdempotencyKey))
		reserved := false
		if key != "" && deduper != nil {
			ok, err := deduper.Reserve(ctx, userID, key)
			switch {
			case err != nil:
				logger.WithError(err).WithField("key", key).Warn("idempotency reserve failed; creating without dedupe")
			case !ok:
				id, err := deduper.Lookup(ctx, userID, key)
				if err != nil {
					logger.WithError(err).WithField("key", key).Error("idempotency lookup failed")
					return writeJSONError(c, http.StatusInternalServerError, "internal error", "")
				}
				if n, found := notes.Get(id); found {
					return c.JSON(http.StatusOK, n)
				}
				return writeJSONError(c, http.StatusConflict, "a request with this Idempotency-Key is in progress", "")
			default:
				reserved = true
			}
		}

		n, _, err := notes.Add(draft)
		if err != nil {
			if reserved {
				if rerr := deduper.Release(ctx, userID, key); rerr != nil {
					logger.WithError(rerr).WithField("key", key).Warn("idempotency release failed")
				}
			}
			return writeError(c, err)
		}
		if reserved {
			if err := deduper.Complete(ctx, userID, key, n.ID); err != nil {
				logger.WithError(err).WithField("key", key).Warn("idempotency complete failed")
			}
		}
		return c.JSON(http.StatusCreated, n)
	}
}

func updateNote(notes *board.NoteStore) echo.HandlerFunc {
	return func(c echo.Context) error {
		cur, ok := notes.Get(c.Param("id"))
		if !ok {
			return writeError(c, domain.ErrNoteNotFound)
		}
		var req noteRequest
		if err := decodeBody(c, &req); err != nil {
			return writeDecodeError(c, err)
		}
		draft := domain.NoteDraft{Title: req.Title, Content: req.Content, Source: cur.Source}
		if req.Source != nil {
			draft.Source = *req.Source
		}
		if err := draft.Validate(); err != nil {
			return writeError(c, err)
		}
		n, ok := notes.Update(domain.Note{ID: cur.ID, Title: draft.Title, Content: draft.Content, Source: draft.Source})
		if !ok {
			return writeError(c, domain.ErrNoteNotFound)
		}
		return c.JSON(http.StatusOK, n)
	}
}

func deleteNote(notes *board.NoteStore) echo.HandlerFunc {
	return func(c echo.Context) error {
		if !notes.Delete(c.Param("id")) {
			return writeError(c, domain.ErrNoteNotFound)
		}
		return c.NoContent(http.StatusNoContent)
	}
}
