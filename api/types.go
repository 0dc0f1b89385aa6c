package api

import (
	"context"
	"net/http"

	"github.com/andiegogiap/AI-WORKFLOW/domain"
)

// Structurer turns plan text into a board.
type Structurer interface {
	Structure(ctx context.Context, rawText string) (domain.Board, error)
}

// Authenticator resolves the caller of a request.
type Authenticator interface {
	UserIDFromRequest(r *http.Request) (string, error)
}

// Deduper remembers which note an idempotency key produced.
type Deduper interface {
	// Reserve claims key for userID. It returns false when the key was
	// already claimed.
	Reserve(ctx context.Context, userID, key string) (bool, error)
	// Complete records the note id created under a reserved key.
	Complete(ctx context.Context, userID, key, noteID string) error
	// Lookup returns the note id for a completed key, or "" while the first
	// request is still in flight.
	Lookup(ctx context.Context, userID, key string) (string, error)
	// Release drops a reservation so the client may retry.
	Release(ctx context.Context, userID, key string) error
}

