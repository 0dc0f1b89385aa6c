package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrStepOutOfRange is returned when phase/step indices do not address a
	// step of the current board.
	ErrStepOutOfRange = errors.New("step index out of range")

	// ErrNoBoard is returned when an operation needs a board and none is loaded.
	ErrNoBoard = errors.New("no board loaded")

	ErrInvalidField  = errors.New("invalid field")
	ErrInvalidStatus = errors.New("invalid status")

	// ErrStaleElaboration rejects suggestions from a superseded elaboration request.
	ErrStaleElaboration = errors.New("stale elaboration response")

	ErrNoteNotFound    = errors.New("note not found")
	ErrSubTaskNotFound = errors.New("sub-task not found")
)

var (
	// ErrEmptyInput is returned when plan text to structure is blank.
	ErrEmptyInput = &InputValidationError{Field: "text", Message: "Input text cannot be empty."}

	ErrEmptySubTask = &InputValidationError{Field: "title", Message: "sub-task title cannot be empty"}
)

// InputValidationError reports user input rejected before any external call.
type InputValidationError struct {
	Field   string
	Message string
}

func (e *InputValidationError) Error() string {
	if e == nil {
		return ""
	}
	return e.Message
}

// StructuringError wraps failures of the text structuring call.
type StructuringError struct {
	Err error
}

func (e *StructuringError) Error() string {
	return fmt.Sprintf("failed to parse workflow from text: %v", e.Err)
}

func (e *StructuringError) Unwrap() error { return e.Err }

// ElaborationError wraps failures of the elaboration call, including responses
// that do not match the suggestions shape.
type ElaborationError struct {
	Section string
	Err     error
}

func (e *ElaborationError) Error() string {
	return fmt.Sprintf("failed to get suggestions for %q: %v", e.Section, e.Err)
}

func (e *ElaborationError) Unwrap() error { return e.Err }

// PersistenceError wraps key-value store failures. These are logged only.
type PersistenceError struct {
	Op         string
	Collection string
	Key        string
	Err        error
}

func (e *PersistenceError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("persistence %s %s: %v", e.Op, e.Collection, e.Err)
	}
	return fmt.Sprintf("persistence %s %s/%s: %v", e.Op, e.Collection, e.Key, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
