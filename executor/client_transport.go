package executor

import (
	"bytes"
	"context"
	"math"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/mensylisir/xmrun/common"
	"github.com/mensylisir/xmrun/config"
	"github.com/mensylisir/xmrun/logger"
)

const (
	defaultSSHPath     = "ssh"
	defaultPlinkPath   = "plink"
	defaultSSHPassPath = "sshpass"
	sshpassEnv         = "SSHPASS"
	plinkPasswordFile  = "xmrun_pw_"
	// clientWaitDelay bounds how long a killed client may keep its output pipes open.
	clientWaitDelay = 2 * time.Second
)

// ClientTarget holds what the external client needs to reach the host.
type ClientTarget struct {
	Host          string
	Port          int
	User          string
	Password      string
	Identity      string
	KnownHosts    string
	StrictHostKey bool
}

// ClientTransport runs the remote script through an external SSH client process.
type ClientTransport struct {
	flavor         common.ClientFlavor
	path           string
	sshpassPath    string
	target         ClientTarget
	connectTimeout time.Duration
	waitDelay      time.Duration
}

var _ Transport = (*ClientTransport)(nil)

// invocation is one fully resolved client command line.
type invocation struct {
	name string
	args []string
	env  []string
}

// NewClientTransport builds a client transport from the resolved configuration.
func NewClientTransport(cfg *config.Config, password string) *ClientTransport {
	t := &ClientTransport{
		flavor:      cfg.Transport.Client,
		path:        cfg.Transport.ClientPath,
		sshpassPath: defaultSSHPassPath,
		target: ClientTarget{
			Host:          strings.Trim(cfg.Target.Host, "[]"),
			Port:          cfg.Target.Port,
			User:          cfg.Target.User,
			Password:      password,
			Identity:      cfg.Target.Identity,
			KnownHosts:    cfg.Target.KnownHosts,
			StrictHostKey: cfg.Target.StrictHostKey,
		},
		connectTimeout: cfg.Timeout,
		waitDelay:      clientWaitDelay,
	}
	if t.path == "" {
		t.path = defaultSSHPath
		if t.flavor == common.ClientPlink {
			t.path = defaultPlinkPath
		}
	}
	return t
}

func (t *ClientTransport) Name() string {
	return string(common.TransportClient) + "/" + string(t.flavor)
}

func (t *ClientTransport) Run(ctx context.Context, script string) (Output, error) {
	inv, cleanup, err := t.command(script)
	if err != nil {
		return Output{ExitCode: common.ExitCodeTransportFailure}, newTransportError(ErrTransportError, err)
	}
	defer cleanup()

	cmd := exec.CommandContext(ctx, inv.name, inv.args...)
	cmd.Env = inv.env
	cmd.WaitDelay = t.waitDelay
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	logger.Log.Debugf("starting %s with %d arguments", inv.name, len(inv.args))
	err = cmd.Run()
	out := Output{Stdout: stdout.Bytes(), Diagnostics: stderr.Bytes(), ExitCode: common.ExitCodeTransportFailure}
	if err == nil {
		out.ExitCode = 0
		return out, nil
	}
	if ctx.Err() != nil {
		return out, classify(ctx, errors.Wrapf(ctx.Err(), "%s did not finish", inv.name))
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if code := exitErr.ExitCode(); code >= 0 {
			out.ExitCode = code
			return out, nil
		}
		return out, newTransportError(ErrTransportError, errors.Wrapf(err, "%s was terminated", inv.name))
	}
	return out, classify(ctx, errors.Wrapf(err, "failed to run %s", inv.name))
}

// command resolves the client argv. The password never appears in it: openssh gets it
// through sshpass and the SSHPASS variable, plink through a private temp file.
func (t *ClientTransport) command(script string) (invocation, func(), error) {
	noop := func() {}
	switch t.flavor {
	case common.ClientOpenSSH:
		return t.opensshCommand(script), noop, nil
	case common.ClientPlink:
		return t.plinkCommand(script)
	default:
		return invocation{}, noop, errors.Errorf("unsupported ssh client flavor %q", t.flavor)
	}
}

func (t *ClientTransport) opensshCommand(script string) invocation {
	strict := "no"
	if t.target.StrictHostKey {
		strict = "yes"
	}
	args := []string{
		"-T",
		"-p", strconv.Itoa(t.target.Port),
		"-o", "ConnectTimeout=" + strconv.Itoa(timeoutSeconds(t.connectTimeout)),
		"-o", "StrictHostKeyChecking=" + strict,
		"-o", "LogLevel=ERROR",
	}
	switch {
	case t.target.KnownHosts != "":
		args = append(args, "-o", "UserKnownHostsFile="+t.target.KnownHosts)
	case !t.target.StrictHostKey:
		args = append(args, "-o", "UserKnownHostsFile="+os.DevNull)
	}
	if t.target.Identity != "" {
		args = append(args, "-i", t.target.Identity)
	}
	if t.target.Password == "" {
		args = append(args, "-o", "BatchMode=yes")
	} else {
		args = append(args, "-o", "NumberOfPasswordPrompts=1")
	}
	args = append(args, t.target.User+"@"+t.target.Host, script)

	if t.target.Password == "" {
		return invocation{name: t.path, args: args}
	}
	return invocation{
		name: t.sshpassPath,
		args: append([]string{"-e", t.path}, args...),
		env:  append(os.Environ(), sshpassEnv+"="+t.target.Password),
	}
}

func (t *ClientTransport) plinkCommand(script string) (invocation, func(), error) {
	noop := func() {}
	args := []string{"-ssh", "-batch", "-P", strconv.Itoa(t.target.Port)}
	if t.target.Identity != "" {
		args = append(args, "-i", t.target.Identity)
	}
	// plink has no known_hosts support; pinned keys are passed as -hostkey fingerprints instead.
	if t.target.KnownHosts != "" {
		fingerprints, err := knownHostFingerprints(t.target.KnownHosts, t.target.Host, t.target.Port)
		if err != nil {
			return invocation{}, noop, err
		}
		if len(fingerprints) == 0 && t.target.StrictHostKey {
			return invocation{}, noop, errors.Errorf("no host key for %s in %s", t.target.Host, t.target.KnownHosts)
		}
		for _, fp := range fingerprints {
			args = append(args, "-hostkey", fp)
		}
	}

	cleanup := noop
	if t.target.Password != "" {
		f, err := os.CreateTemp("", plinkPasswordFile)
		if err != nil {
			return invocation{}, noop, errors.Wrap(err, "failed to create plink password file")
		}
		name := f.Name()
		cleanup = func() {
			if rmErr := os.Remove(name); rmErr != nil && !os.IsNotExist(rmErr) {
				logger.Log.Warnf("failed to remove plink password file %s: %v", name, rmErr)
			}
		}
		if err := f.Chmod(common.FileMode0600); err != nil {
			_ = f.Close()
			cleanup()
			return invocation{}, noop, errors.Wrap(err, "failed to restrict plink password file")
		}
		_, err = f.WriteString(t.target.Password)
		if closeErr := f.Close(); err == nil {
			err = closeErr
		}
		if err != nil {
			cleanup()
			return invocation{}, noop, errors.Wrap(err, "failed to write plink password file")
		}
		args = append(args, "-pwfile", name)
	}

	args = append(args, t.target.User+"@"+t.target.Host, script)
	return invocation{name: t.path, args: args}, cleanup, nil
}

func timeoutSeconds(d time.Duration) int {
	if d <= 0 {
		return int(config.DefaultTimeout / time.Second)
	}
	return int(math.Max(1, math.Ceil(d.Seconds())))
}
