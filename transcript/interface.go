package transcript

import (
	"context"
	"errors"

	"vermithor/completion"
)

var ErrInvalidSessionID = errors.New("invalid session id")

// Store keeps the ordered transcript of each chat session.
// Messages are only ever appended; Reset empties a session but keeps it known.
type Store interface {
	// Load returns a copy of the transcript. The bool reports whether the
	// session has been seen before, which distinguishes a new session from
	// one that was reset.
	Load(ctx context.Context, sessionID string) ([]completion.Message, bool, error)
	Append(ctx context.Context, sessionID string, msgs ...completion.Message) error
	Reset(ctx context.Context, sessionID string) error
	Close() error
}
