package runner

import (
	"bytes"
	"context"
	"os/exec"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mensylisir/xmrun/common"
	"github.com/mensylisir/xmrun/config"
	"github.com/mensylisir/xmrun/connector"
	"github.com/mensylisir/xmrun/executor"
	"github.com/mensylisir/xmrun/tools/sshserv"
)

// shellTransport runs the script with the local /bin/sh, standing in for a remote host.
type shellTransport struct{}

func (shellTransport) Name() string { return "local-shell" }

func (shellTransport) Run(ctx context.Context, script string) (executor.Output, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, "/bin/sh", "-c", script)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	out := executor.Output{Stdout: stdout.Bytes(), Diagnostics: stderr.Bytes()}
	if ctx.Err() != nil {
		return executor.Output{ExitCode: common.ExitCodeTransportFailure}, errors.Wrap(executor.ErrTransportTimeout, ctx.Err().Error())
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		out.ExitCode = exitErr.ExitCode()
		return out, nil
	}
	if err != nil {
		return executor.Output{ExitCode: common.ExitCodeTransportFailure}, errors.Wrap(executor.ErrTransportError, err.Error())
	}
	return out, nil
}

// stubTransport returns a canned result and records the script it was given.
type stubTransport struct {
	out    executor.Output
	err    error
	block  bool
	calls  int
	script string
}

func (s *stubTransport) Name() string { return "stub" }

func (s *stubTransport) Run(ctx context.Context, script string) (executor.Output, error) {
	s.calls++
	s.script = script
	if s.block {
		<-ctx.Done()
		return executor.Output{ExitCode: common.ExitCodeTransportFailure}, errors.Wrap(executor.ErrTransportTimeout, ctx.Err().Error())
	}
	return s.out, s.err
}

func fixedSession(tempDir string) Session {
	return Session{Delimiter: testDelimiter, TempFile: TempFilePath(tempDir, "xmrun_stderr_fixed.txt")}
}

func newStubRunner(tr executor.Transport, timeout time.Duration) *cmdRunner {
	r := NewCmdRunner(tr, Options{Host: "mini", Timeout: timeout}).(*cmdRunner)
	r.newSession = fixedSession
	return r
}

func TestCmdRunner_LocalShell(t *testing.T) {
	tests := []struct {
		name    string
		command string
		args    []string
		want    Result
	}{
		{
			name:    "hello world",
			command: "echo",
			args:    []string{"Hello", "World"},
			want:    Result{Stdout: "Hello World"},
		},
		{
			name:    "bare command line with pipes",
			command: "printf 'a\\nb\\n' | wc -l | tr -d ' '",
			want:    Result{Stdout: "2"},
		},
		{
			name:    "quotes survive",
			command: "printf",
			args:    []string{"%s|%s", "it's", "a b"},
			want:    Result{Stdout: "it's|a b"},
		},
		{
			name:    "stderr and exit code",
			command: "sh",
			args:    []string{"-c", "echo out; echo err >&2; exit 3"},
			want:    Result{Stdout: "out", Stderr: "err", ExitCode: 3},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewCmdRunner(shellTransport{}, Options{Host: "localhost", TempDir: t.TempDir(), Timeout: 10 * time.Second})
			got := r.Run(context.Background(), tt.command, tt.args)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.want.ExitCode, got.ProcessExitCode())
		})
	}
}

func TestCmdRunner_ScriptShape(t *testing.T) {
	tr := &stubTransport{out: executor.Output{Stdout: []byte(testDelimiter + "\n")}}
	r := NewCmdRunner(tr, Options{
		Host:         "mini",
		ProfileFiles: config.DefaultProfileFiles,
		ExtraPath:    config.DefaultExtraPath,
		TempDir:      "/tmp/",
	}).(*cmdRunner)
	r.newSession = fixedSession

	r.Run(context.Background(), "echo", []string{"it's"})
	require.Equal(t, 1, tr.calls)
	assert.Contains(t, tr.script, "source ~/.zprofile >/dev/null 2>&1 || true; ")
	assert.Contains(t, tr.script, "source ~/.bash_profile >/dev/null 2>&1 || true; ")
	assert.Contains(t, tr.script, `export PATH=/opt/homebrew/bin:/usr/local/bin:"$PATH"; `)
	assert.Contains(t, tr.script, "{ echo 'it'\\''s'\n} 2>/tmp/xmrun_stderr_fixed.txt; ")
	assert.Contains(t, tr.script, "echo '"+testDelimiter+"'; ")
	assert.Contains(t, tr.script, "rm -f /tmp/xmrun_stderr_fixed.txt; ")
}

func TestCmdRunner_Output(t *testing.T) {
	tests := []struct {
		name string
		out  executor.Output
		want Result
	}{
		{
			name: "demultiplexed",
			out:  executor.Output{Stdout: []byte("A\n" + testDelimiter + "\nB\n"), ExitCode: 2},
			want: Result{Stdout: "A", Stderr: "B", ExitCode: 2},
		},
		{
			name: "banner filtered before demultiplexing",
			out: executor.Output{Stdout: []byte("Keyboard-interactive authentication prompts from server:\n" +
				"End of keyboard-interactive prompts from server\nHello World\n" + testDelimiter + "\n")},
			want: Result{Stdout: "Hello World"},
		},
		{
			name: "missing delimiter falls back to stdout",
			out:  executor.Output{Stdout: []byte("half a line"), ExitCode: 137},
			want: Result{Stdout: "half a line", ExitCode: 137},
		},
		{
			name: "diagnostics never reach the result",
			out:  executor.Output{Stdout: []byte("ok\n" + testDelimiter + "\n"), Diagnostics: []byte("Warning: Permanently added host\n")},
			want: Result{Stdout: "ok"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newStubRunner(&stubTransport{out: tt.out}, time.Second)
			assert.Equal(t, tt.want, r.Run(context.Background(), "true", nil))
		})
	}
}

func TestCmdRunner_TransportFailures(t *testing.T) {
	tests := []struct {
		name       string
		transport  *stubTransport
		timeout    time.Duration
		wantStderr string
	}{
		{
			name:       "timeout",
			transport:  &stubTransport{block: true},
			timeout:    50 * time.Millisecond,
			wantStderr: "Command timed out after 50ms",
		},
		{
			name:       "client missing",
			transport:  &stubTransport{err: errors.Wrap(executor.ErrTransportUnavailable, `exec: "plink": executable file not found in $PATH`)},
			timeout:    time.Second,
			wantStderr: "Error: stub transport is not available",
		},
		{
			name:       "other failure",
			transport:  &stubTransport{err: errors.Wrap(executor.ErrTransportError, "connection refused")},
			timeout:    time.Second,
			wantStderr: "Error running command: connection refused",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := newStubRunner(tt.transport, tt.timeout).Run(context.Background(), "uptime", nil)
			assert.Empty(t, got.Stdout)
			assert.Contains(t, got.Stderr, tt.wantStderr)
			assert.Equal(t, common.ExitCodeTransportFailure, got.ExitCode)
			assert.Equal(t, common.ExitCodeFailure, got.ProcessExitCode())
			assert.Equal(t, 1, tt.transport.calls, "exactly one transport call")
		})
	}
}

func TestCmdRunner_EmptyCommand(t *testing.T) {
	tr := &stubTransport{}
	got := newStubRunner(tr, time.Second).Run(context.Background(), "  ", []string{"x"})
	assert.Equal(t, common.ExitCodeTransportFailure, got.ExitCode)
	assert.NotEmpty(t, got.Stderr)
	assert.Zero(t, tr.calls)
}

func TestCmdRunner_Native(t *testing.T) {
	srv, err := sshserv.Start("ops", "pw")
	require.NoError(t, err)
	defer srv.Close()

	tr := executor.NewSSHTransport(nil, connector.Config{
		Username: "ops",
		Password: "pw",
		Address:  srv.Host,
		Port:     srv.Port,
		Timeout:  5 * time.Second,
	})
	r := NewCmdRunner(tr, Options{
		Host:         srv.Host,
		ProfileFiles: config.DefaultProfileFiles,
		ExtraPath:    config.DefaultExtraPath,
		TempDir:      t.TempDir(),
		Timeout:      10 * time.Second,
	})

	got := r.Run(context.Background(), "echo", []string{"Hello", "World"})
	assert.Equal(t, Result{Stdout: "Hello World"}, got)

	got = r.Run(context.Background(), "sh", []string{"-c", "echo partial; echo boom >&2; exit 5"})
	assert.Equal(t, Result{Stdout: "partial", Stderr: "boom", ExitCode: 5}, got)
}

func TestResult_ProcessExitCode(t *testing.T) {
	assert.Equal(t, 0, Result{}.ProcessExitCode())
	assert.Equal(t, 42, Result{ExitCode: 42}.ProcessExitCode())
	assert.Equal(t, 255, Result{ExitCode: 255}.ProcessExitCode())
	assert.Equal(t, 1, Result{ExitCode: -1}.ProcessExitCode())
}
