package runner

import (
	"context"
)

// Runner executes one command on the configured target.
// Failures never escape as errors; they are folded into the Result.
type Runner interface {
	Run(ctx context.Context, command string, args []string) Result
}

// Result is the outcome of one remote command.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// ProcessExitCode is the code the local process should exit with.
func (r Result) ProcessExitCode() int {
	if r.ExitCode < 0 {
		return 1
	}
	return r.ExitCode
}
