package executor

import (
	"context"
	"io/fs"
	"os/exec"

	"github.com/pkg/errors"
)

var (
	ErrTransportTimeout     = errors.New("transport timed out")
	ErrTransportUnavailable = errors.New("transport unavailable")
	ErrTransportError       = errors.New("transport failed")
)

// transportError tags cause with one of the sentinels while keeping the cause in the chain.
type transportError struct {
	kind  error
	cause error
}

func (e *transportError) Error() string {
	return e.kind.Error() + ": " + e.cause.Error()
}

func (e *transportError) Is(target error) bool {
	return target == e.kind
}

func (e *transportError) Unwrap() error {
	return e.cause
}

func newTransportError(kind, cause error) error {
	return &transportError{kind: kind, cause: cause}
}

// classify maps a client process start/wait failure onto the transport taxonomy.
func classify(ctx context.Context, err error) error {
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded):
		return newTransportError(ErrTransportTimeout, err)
	case errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist):
		return newTransportError(ErrTransportUnavailable, err)
	default:
		return newTransportError(ErrTransportError, err)
	}
}
