package runner

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/mensylisir/xmrun/common"
	"github.com/mensylisir/xmrun/executor"
	"github.com/mensylisir/xmrun/logger"
	xmtime "github.com/mensylisir/xmrun/time"
	"github.com/mensylisir/xmrun/util"
)

const diagnosticsPreview = 512

// Options shape the remote script and bound the transport call.
type Options struct {
	Host         string
	ProfileFiles []string
	ExtraPath    []string
	TempDir      string
	Timeout      time.Duration
}

// cmdRunner implements the Runner interface on top of an executor.Transport.
type cmdRunner struct {
	transport  executor.Transport
	opts       Options
	newSession func(tempDir string) Session
}

// NewCmdRunner creates a Runner that sends every command through transport.
func NewCmdRunner(transport executor.Transport, opts Options) Runner {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	return &cmdRunner{transport: transport, opts: opts, newSession: NewSession}
}

func (r *cmdRunner) Run(ctx context.Context, command string, args []string) Result {
	line := BuildCommandLine(command, args)
	log := logger.Log.ForCommand(r.opts.Host, r.transport.Name(), line)

	if strings.TrimSpace(command) == "" {
		msg := "Error: empty command"
		log.Error(msg)
		return Result{Stderr: msg, ExitCode: common.ExitCodeTransportFailure}
	}

	session := r.newSession(r.opts.TempDir)
	script := WrapScript(Prologue(r.opts.ProfileFiles, r.opts.ExtraPath), line, session)
	log.Infof("Running command on %s: %s", r.opts.Host, line)
	log.Debugf("remote stderr capture file %s", session.TempFile)

	runCtx, cancel := context.WithTimeout(ctx, r.opts.Timeout)
	defer cancel()

	start := time.Now()
	out, err := r.transport.Run(runCtx, script)
	if len(out.Diagnostics) > 0 {
		log.Debugf("transport diagnostics: %s", util.TruncateString(strings.TrimSpace(string(out.Diagnostics)), diagnosticsPreview, "..."))
	}
	if err != nil {
		msg := r.failureMessage(err)
		log.WithError(err).Errorf("%s (after %s)", msg, xmtime.Elapsed(start))
		return Result{Stderr: msg, ExitCode: common.ExitCodeTransportFailure}
	}

	stdout, stderr, found := Demultiplex(FilterBanner(string(out.Stdout)), session.Delimiter)
	if !found {
		log.Warnf("stream delimiter not found in output, treating all %d bytes as stdout", len(stdout))
	}
	log.Debugf("remote command finished with exit code %d in %s", out.ExitCode, xmtime.Elapsed(start))
	return Result{Stdout: stdout, Stderr: stderr, ExitCode: out.ExitCode}
}

func (r *cmdRunner) failureMessage(err error) string {
	switch {
	case errors.Is(err, executor.ErrTransportTimeout):
		return fmt.Sprintf("Command timed out after %s", xmtime.ShortDur(r.opts.Timeout))
	case errors.Is(err, executor.ErrTransportUnavailable):
		return fmt.Sprintf("Error: %s transport is not available, ensure the SSH client is installed: %v", r.transport.Name(), err)
	default:
		return fmt.Sprintf("Error running command: %v", err)
	}
}
