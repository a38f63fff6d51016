package executor

import (
	"context"

	"github.com/pkg/errors"

	"github.com/mensylisir/xmrun/common"
	"github.com/mensylisir/xmrun/connector"
	"github.com/mensylisir/xmrun/logger"
)

// SSHTransport runs the remote script over an in-process SSH connection.
type SSHTransport struct {
	dialer connector.Dialer
	cfg    connector.Config
}

var _ Transport = (*SSHTransport)(nil)

// NewSSHTransport creates a native transport. A nil dialer means the default SSH dialer.
func NewSSHTransport(dialer connector.Dialer, cfg connector.Config) *SSHTransport {
	if dialer == nil {
		dialer = connector.NewDialer()
	}
	return &SSHTransport{dialer: dialer, cfg: cfg}
}

func (t *SSHTransport) Name() string {
	return string(common.TransportNative)
}

func (t *SSHTransport) Run(ctx context.Context, script string) (Output, error) {
	conn, err := t.dialer.Dial(ctx, t.cfg)
	if err != nil {
		return Output{ExitCode: common.ExitCodeTransportFailure}, nativeError(ctx, err)
	}
	defer func() {
		if closeErr := conn.Close(); closeErr != nil {
			logger.Log.Debugf("closing ssh connection: %v", closeErr)
		}
	}()

	stdout, stderr, exitCode, err := conn.Exec(ctx, script)
	out := Output{Stdout: stdout, Diagnostics: stderr, ExitCode: exitCode}
	if err != nil {
		out.ExitCode = common.ExitCodeTransportFailure
		return out, nativeError(ctx, err)
	}
	return out, nil
}

func nativeError(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return newTransportError(ErrTransportTimeout, err)
	}
	return newTransportError(ErrTransportError, err)
}
