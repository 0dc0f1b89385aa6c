package domain

import (
	"sort"
	"strings"
	"time"
)

// NoteSource names the phase and step a note was taken from. It is a snapshot,
// not a live reference.
type NoteSource struct {
	PhaseTitle string `json:"phaseTitle"`
	StepTitle  string `json:"stepTitle"`
}

// Note is a user-kept piece of text, usually a saved suggestion.
type Note struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Content   string     `json:"content"`
	CreatedAt time.Time  `json:"createdAt"`
	Source    NoteSource `json:"source"`
}

// NoteDraft is a note before it gets an id and creation time.
type NoteDraft struct {
	Title   string     `json:"title"`
	Content string     `json:"content"`
	Source  NoteSource `json:"source"`
}

// Validate rejects drafts without a title.
func (d NoteDraft) Validate() error {
	if strings.TrimSpace(d.Title) == "" {
		return &InputValidationError{Field: "title", Message: "note title cannot be empty"}
	}
	return nil
}

// SortNotes orders notes newest first. Equal creation times fall back to
// descending id so the order is total.
func SortNotes(notes []Note) {
	sort.SliceStable(notes, func(i, j int) bool {
		if !notes[i].CreatedAt.Equal(notes[j].CreatedAt) {
			return notes[i].CreatedAt.After(notes[j].CreatedAt)
		}
		return notes[i].ID > notes[j].ID
	})
}
