package executor

import (
	"context"
)

// Output is what a transport hands back for one remote script.
type Output struct {
	// Stdout is the combined remote stream: command stdout, delimiter line, captured stderr.
	Stdout []byte
	// Diagnostics is the transport's own error stream (client warnings, auth noise),
	// never the remote command's stderr.
	Diagnostics []byte
	// ExitCode is the remote script's exit status.
	ExitCode int
}

// Transport executes one remote script on the configured target.
// Failures to reach a result are reported as errors matching ErrTransportTimeout,
// ErrTransportUnavailable or ErrTransportError.
type Transport interface {
	Run(ctx context.Context, script string) (Output, error)
	Name() string
}
