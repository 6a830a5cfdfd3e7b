package ap

import "github.com/pkg/errors"

// ErrActorNotFound reports an inbox or actor request addressed to anyone
// but the local actor.
var ErrActorNotFound = errors.New("actor not found")

// ErrInvalidActivity reports a request body that is not a minimally valid
// activity (missing id, actor or type).
var ErrInvalidActivity = errors.New("invalid activity")

// ErrInvalidSyncStatus reports a sync request for a status bucket that is
// not reprocessable.
var ErrInvalidSyncStatus = errors.New("status bucket cannot be synced")

// EnsureActorError reports that a remote actor could not be resolved:
// unreachable, non-2xx or unparsable. It is never surfaced to the original
// HTTP caller; the dispatch boundary collapses it to entry status "error".
type EnsureActorError struct {
	Actor string
	Err   error
}

func (e *EnsureActorError) Error() string {
	return "ensure actor " + e.Actor + ": " + e.Err.Error()
}

func (e *EnsureActorError) Unwrap() error {
	return e.Err
}
