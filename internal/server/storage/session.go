package storage

import (
	"context"

	"github.com/iudanet/gophchat/internal/models"
)

// SessionStorage defines the conversation transcript repository.
// All methods are safe for concurrent use.
type SessionStorage interface {
	// CreateSession creates an empty transcript and returns its id.
	// owner is the subject that created the session, empty for anonymous.
	// Returns ErrSessionLimit if the store is full.
	CreateSession(ctx context.Context, owner string) (string, error)

	// GetSession returns a snapshot of the session.
	// Returns ErrUnknownSession if the id is unknown
	GetSession(ctx context.Context, id string) (*models.Session, error)

	// AppendTurn appends turn to the end of the transcript.
	// Returns ErrUnknownSession if the id is unknown
	AppendTurn(ctx context.Context, id string, turn models.Turn) error

	// GetContext returns the last maxTurns turns in transcript order.
	// maxTurns <= 0 returns the whole transcript. Never mutates.
	GetContext(ctx context.Context, id string, maxTurns int) ([]models.Turn, error)

	// Acquire takes the per-session exclusive lock used to serialize
	// conversation turns. The returned release func must be called exactly once.
	Acquire(ctx context.Context, id string) (release func(), err error)
}
