package coordinator

import (
	"errors"
	"fmt"

	"github.com/cory-johannsen/argos/internal/pin"
	"github.com/cory-johannsen/argos/internal/protocol"
)

// ErrPreconditionFailed marks a command issued by the wrong role, against the
// wrong state, or referencing an unknown pin, game or submission.
var ErrPreconditionFailed = errors.New("precondition failed")

func preconditionf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrPreconditionFailed, fmt.Sprintf(format, args...))
}

// ErrorKind classifies a rejected command for logging.
type ErrorKind string

const (
	KindNone               ErrorKind = ""
	KindPreconditionFailed ErrorKind = "precondition_failed"
	KindPoolExhausted      ErrorKind = "pool_exhausted"
	KindMalformedMessage   ErrorKind = "malformed_message"
	KindInternal           ErrorKind = "internal"
)

// Kind returns the class of err.
func Kind(err error) ErrorKind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrPreconditionFailed):
		return KindPreconditionFailed
	case errors.Is(err, pin.ErrExhausted):
		return KindPoolExhausted
	case errors.Is(err, protocol.ErrMalformed):
		return KindMalformedMessage
	default:
		return KindInternal
	}
}
