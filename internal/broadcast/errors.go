package broadcast

import "errors"

// Domain errors. The gateway and the REST handlers map these to a scoped
// error event / HTTP status; the messages are user-facing, so keep them
// short and specific.
var (
	ErrNotFound          = errors.New("broadcast not found")
	ErrAlreadyActive     = errors.New("you already have a live broadcast")
	ErrInactiveBroadcast = errors.New("this broadcast is no longer live")
	ErrNotCurator        = errors.New("only the curator can do that")
	ErrRateLimited       = errors.New("you're sending messages too fast, wait a moment")
	ErrMessageNotFound   = errors.New("message not found")
	ErrCannotDelete      = errors.New("only the author or the curator can delete a message")
)

// ValidationError carries the specific complaint (caption length, message
// length, empty content) back to the user.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// IsUserError reports whether err is one of the errors a client caused,
// as opposed to an infrastructure failure.
func IsUserError(err error) bool {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return true
	}
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrAlreadyActive) ||
		errors.Is(err, ErrInactiveBroadcast) ||
		errors.Is(err, ErrNotCurator) ||
		errors.Is(err, ErrRateLimited) ||
		errors.Is(err, ErrMessageNotFound) ||
		errors.Is(err, ErrCannotDelete)
}
