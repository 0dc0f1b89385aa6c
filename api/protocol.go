package api

import (
	"time"

	"github.com/andiegogiap/AI-WORKFLOW/domain"
)

const maxBodySize = 256 * 1024 // 256 KiB

const headerIdempotencyKey = "Idempotency-Key"

type errorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

// POST /api/board/visualize
type visualizeRequest struct {
	Text string `json:"text"`
}

// GET /api/board and POST /api/board/visualize
type boardResponse struct {
	Board    domain.Board    `json:"board"`
	Progress domain.Progress `json:"progress"`
}

// PATCH /api/board/phases/:phase/steps/:step
type stepPatchRequest struct {
	Title          *string `json:"title,omitempty"`
	Activity       *string `json:"activity,omitempty"`
	Considerations *string `json:"considerations,omitempty"`
	Output         *string `json:"output,omitempty"`
	Status         *string `json:"status,omitempty"`
	Agent          *string `json:"agent,omitempty"`
}

type stepResponse struct {
	Step domain.Step `json:"step"`
	// UndoPending is set when a suggestion merge on the step can still be undone.
	UndoPending bool `json:"undoPending,omitempty"`
}

// GET .../sections
type sectionsResponse struct {
	Activity       domain.Sections `json:"activity"`
	Considerations domain.Sections `json:"considerations"`
	Output         domain.Sections `json:"output"`
}

// POST .../subtasks
type subTaskRequest struct {
	Title string `json:"title"`
}

// POST .../elaborate
type elaborateRequest struct {
	Field string `json:"field"`
}

// POST .../suggestions
type suggestionsRequest struct {
	Field       string              `json:"field"`
	Suggestions []domain.Suggestion `json:"suggestions"`
	RequestID   uint64              `json:"requestId,omitempty"`
}

type appliedResponse struct {
	Step          domain.Step `json:"step"`
	UndoExpiresAt *time.Time  `json:"undoExpiresAt,omitempty"`
}

// POST .../undo
type undoResponse struct {
	Undone bool        `json:"undone"`
	Step   domain.Step `json:"step"`
}

// POST .../notes saves a suggestion with the step as its source.
type saveSuggestionRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

// POST /api/notes, PUT /api/notes/:id
type noteRequest struct {
	Title   string             `json:"title"`
	Content string             `json:"content"`
	Source  *domain.NoteSource `json:"source,omitempty"`
}

type notesResponse struct {
	Notes []domain.Note `json:"notes"`
}
