package connector

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/mensylisir/xmrun/common"
	"github.com/mensylisir/xmrun/ip"
	"github.com/mensylisir/xmrun/logger"
)

type Config struct {
	Username      string
	Password      string
	Address       string
	Port          int
	PrivateKey    string
	KeyFile       string
	AgentSocket   string
	KnownHosts    string
	StrictHostKey bool
	Timeout       time.Duration
}

const socketEnvPrefix = "env:"

// killGrace bounds how long a cancelled session may take to report back after being signalled.
const killGrace = 250 * time.Millisecond

var _ Connection = (*connection)(nil)

type connection struct {
	mu         sync.Mutex
	sftpclient *sftp.Client
	sshclient  *ssh.Client
	config     Config

	agentSocketConn net.Conn
}

func NewConnection(ctx context.Context, cfg Config) (Connection, error) {
	var err error
	cfg, err = validateConfig(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "failed to validate ssh connection parameters")
	}

	authMethods := make([]ssh.AuthMethod, 0)
	conn := &connection{config: cfg}

	if len(cfg.Password) > 0 {
		authMethods = append(authMethods, ssh.Password(cfg.Password))
		authMethods = append(authMethods, ssh.KeyboardInteractive(answerAll(cfg.Password)))
	}

	if len(cfg.PrivateKey) > 0 {
		signer, parseErr := ssh.ParsePrivateKey([]byte(cfg.PrivateKey))
		if parseErr != nil {
			return nil, errors.Wrap(parseErr, "the given SSH key could not be parsed")
		}
		authMethods = append(authMethods, ssh.PublicKeys(signer))
	}

	if len(cfg.AgentSocket) > 0 {
		addr := cfg.AgentSocket
		if strings.HasPrefix(cfg.AgentSocket, socketEnvPrefix) {
			envName := strings.TrimPrefix(cfg.AgentSocket, socketEnvPrefix)
			if envAddr := os.Getenv(envName); len(envAddr) > 0 {
				addr = envAddr
			} else {
				logger.Log.Warnf("SSH Agent environment variable %s not found, using original socket string %s", envName, addr)
			}
		}

		agentConn, dialErr := net.Dial("unix", addr)
		switch {
		case dialErr == nil:
			conn.agentSocketConn = agentConn
			agentClient := agent.NewClient(agentConn)
			authMethods = append(authMethods, ssh.PublicKeysCallback(agentClient.Signers))
		case len(authMethods) > 0:
			logger.Log.Warnf("could not open SSH agent socket %q, continuing without it: %v", addr, dialErr)
		default:
			return nil, errors.Wrapf(dialErr, "could not open SSH agent socket %q", addr)
		}
	}

	hostKeyCallback, err := newHostKeyCallback(cfg)
	if err != nil {
		conn.cleanupAgentSocket()
		return nil, err
	}

	sshClientConfig := &ssh.ClientConfig{
		User:            cfg.Username,
		Timeout:         cfg.Timeout,
		Auth:            authMethods,
		HostKeyCallback: hostKeyCallback,
	}

	endpoint := ip.JoinHostPort(cfg.Address, cfg.Port)
	client, err := dialContext(ctx, endpoint, sshClientConfig)
	if err != nil {
		conn.cleanupAgentSocket()
		return nil, errors.Wrapf(err, "could not establish connection to %s", endpoint)
	}

	conn.sshclient = client
	return conn, nil
}

// dialContext dials and performs the SSH handshake, both bounded by ctx and the client timeout.
func dialContext(ctx context.Context, endpoint string, clientConfig *ssh.ClientConfig) (*ssh.Client, error) {
	d := net.Dialer{Timeout: clientConfig.Timeout}
	rawConn, err := d.DialContext(ctx, "tcp", endpoint)
	if err != nil {
		return nil, err
	}

	deadline := time.Now().Add(clientConfig.Timeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}
	_ = rawConn.SetDeadline(deadline)

	stop := context.AfterFunc(ctx, func() { _ = rawConn.Close() })
	defer stop()

	ncc, chans, reqs, err := ssh.NewClientConn(rawConn, endpoint, clientConfig)
	if err != nil {
		_ = rawConn.Close()
		if ctx.Err() != nil {
			return nil, errors.Wrap(ctx.Err(), err.Error())
		}
		return nil, err
	}
	_ = rawConn.SetDeadline(time.Time{})
	return ssh.NewClient(ncc, chans, reqs), nil
}

func newHostKeyCallback(cfg Config) (ssh.HostKeyCallback, error) {
	if !cfg.StrictHostKey {
		return ssh.InsecureIgnoreHostKey(), nil
	}
	if cfg.KnownHosts == "" {
		return nil, errors.New("strict host key checking requires a known_hosts file")
	}
	if _, err := os.Stat(cfg.KnownHosts); err != nil {
		return nil, errors.Wrapf(err, "known_hosts file not found at %s and strict host key checking is enabled", cfg.KnownHosts)
	}
	cb, err := knownhosts.New(cfg.KnownHosts)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load known_hosts %s", cfg.KnownHosts)
	}
	return cb, nil
}

// answerAll replies to every keyboard-interactive question with the password.
func answerAll(password string) ssh.KeyboardInteractiveChallenge {
	return func(user, instruction string, questions []string, echos []bool) ([]string, error) {
		answers := make([]string, len(questions))
		for i := range questions {
			answers[i] = password
		}
		return answers, nil
	}
}

func (c *connection) cleanupAgentSocket() {
	if c.agentSocketConn != nil {
		_ = c.agentSocketConn.Close()
		c.agentSocketConn = nil
	}
}

func validateConfig(cfg Config) (Config, error) {
	if len(cfg.Username) == 0 {
		return cfg, errors.New("no username specified for SSH connection")
	}
	if len(cfg.Address) == 0 {
		return cfg, errors.New("no address specified for SSH connection")
	}
	if len(cfg.Password) == 0 && len(cfg.PrivateKey) == 0 && len(cfg.KeyFile) == 0 && len(cfg.AgentSocket) == 0 {
		return cfg, errors.New("must specify at least one of password, private key, keyfile or agent socket")
	}

	if len(cfg.PrivateKey) == 0 && len(cfg.KeyFile) > 0 {
		content, err := os.ReadFile(cfg.KeyFile)
		if err != nil {
			return cfg, errors.Wrapf(err, "failed to read keyfile %q", cfg.KeyFile)
		}
		cfg.PrivateKey = string(content)
	}
	if cfg.Port <= 0 {
		cfg.Port = common.DefaultSSHPort
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return cfg, nil
}

func (c *connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sshclient == nil && c.sftpclient == nil && c.agentSocketConn == nil {
		return nil
	}

	var SFTPErr, SSHErr, AgentErr error
	if c.sftpclient != nil {
		SFTPErr = c.sftpclient.Close()
		c.sftpclient = nil
	}
	if c.sshclient != nil {
		SSHErr = c.sshclient.Close()
		c.sshclient = nil
	}
	if c.agentSocketConn != nil {
		AgentErr = c.agentSocketConn.Close()
		c.agentSocketConn = nil
	}

	var combinedErrors []string
	if SFTPErr != nil {
		combinedErrors = append(combinedErrors, fmt.Sprintf("sftp close error: %v", SFTPErr))
	}
	if SSHErr != nil {
		combinedErrors = append(combinedErrors, fmt.Sprintf("ssh close error: %v", SSHErr))
	}
	if AgentErr != nil {
		combinedErrors = append(combinedErrors, fmt.Sprintf("agent socket close error: %v", AgentErr))
	}
	if len(combinedErrors) > 0 {
		return errors.New(strings.Join(combinedErrors, "; "))
	}
	return nil
}

// newSession opens a plain exec session. No PTY is requested so the remote
// output keeps its own line endings and stderr stays a separate stream.
func (c *connection) newSession(ctx context.Context) (*ssh.Session, error) {
	c.mu.Lock()
	client := c.sshclient
	c.mu.Unlock()

	if client == nil {
		return nil, errors.New("ssh connection is closed or not initialized")
	}

	type result struct {
		sess *ssh.Session
		err  error
	}
	sessionDone := make(chan result, 1)
	go func() {
		s, e := client.NewSession()
		sessionDone <- result{s, e}
	}()

	select {
	case <-ctx.Done():
		go func() {
			if r := <-sessionDone; r.sess != nil {
				_ = r.sess.Close()
			}
		}()
		return nil, errors.Wrap(ctx.Err(), "failed to create ssh session (context cancelled)")
	case r := <-sessionDone:
		if r.err != nil {
			return nil, errors.Wrap(r.err, "failed to create ssh session")
		}
		return r.sess, nil
	}
}

func (c *connection) Exec(ctx context.Context, cmd string) (stdout []byte, stderr []byte, exitCode int, err error) {
	sess, err := c.newSession(ctx)
	if err != nil {
		return nil, nil, -1, errors.Wrap(err, "failed to create session for Exec")
	}
	defer sess.Close()

	var stdoutBuf, stderrBuf bytes.Buffer
	sess.Stdout = &stdoutBuf
	sess.Stderr = &stderrBuf

	if err = sess.Start(cmd); err != nil {
		return nil, nil, -1, errors.Wrap(err, "failed to start remote command")
	}

	waitDone := make(chan error, 1)
	go func() {
		waitDone <- sess.Wait()
	}()

	select {
	case <-ctx.Done():
		_ = sess.Signal(ssh.SIGKILL)
		_ = sess.Close()
		select {
		case <-waitDone:
			return stdoutBuf.Bytes(), stderrBuf.Bytes(), -1, errors.Wrap(ctx.Err(), "command execution cancelled")
		case <-time.After(killGrace):
			// the session goroutines may still write into the buffers
			return nil, nil, -1, errors.Wrap(ctx.Err(), "command execution cancelled")
		}

	case waitErr := <-waitDone:
		if waitErr == nil {
			return stdoutBuf.Bytes(), stderrBuf.Bytes(), 0, nil
		}
		var exitErr *ssh.ExitError
		if errors.As(waitErr, &exitErr) {
			return stdoutBuf.Bytes(), stderrBuf.Bytes(), exitErr.ExitStatus(), nil
		}
		return stdoutBuf.Bytes(), stderrBuf.Bytes(), -1, errors.Wrap(waitErr, "remote command did not report an exit status")
	}
}

func (c *connection) sftpClient() (*sftp.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sftpclient != nil {
		return c.sftpclient, nil
	}
	if c.sshclient == nil {
		return nil, errors.New("ssh connection is closed or not initialized")
	}
	client, err := sftp.NewClient(c.sshclient)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create SFTP client")
	}
	c.sftpclient = client
	return client, nil
}

func (c *connection) ListDir(ctx context.Context, dir string) ([]os.FileInfo, error) {
	client, err := c.sftpClient()
	if err != nil {
		return nil, err
	}
	entries, err := client.ReadDirContext(ctx, dir)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to list remote directory %s", dir)
	}
	return entries, nil
}

func (c *connection) Remove(ctx context.Context, remotePath string) error {
	if err := ctx.Err(); err != nil {
		return errors.Wrapf(err, "remove %s cancelled", remotePath)
	}
	client, err := c.sftpClient()
	if err != nil {
		return err
	}
	if err := client.Remove(remotePath); err != nil {
		return errors.Wrapf(err, "failed to remove remote file %s", remotePath)
	}
	return nil
}
