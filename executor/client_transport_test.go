package executor

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mensylisir/xmrun/common"
	"github.com/mensylisir/xmrun/config"
)

const testPassword = "hunter2 'quoted'"

func testConfig(flavor common.ClientFlavor) *config.Config {
	cfg := config.NewDefaultConfig()
	cfg.Target.Host = "172.17.5.114"
	cfg.Target.User = "rte"
	cfg.Transport.Client = flavor
	return cfg
}

// writeScript creates an executable shell script standing in for a client binary.
func writeScript(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0755))
	return path
}

func TestClientTransport_OpenSSHArgs(t *testing.T) {
	tests := []struct {
		name       string
		mutate     func(*config.Config)
		password   string
		wantName   string
		wantArgs   []string
		exact      bool
		wantNoArgs []string
	}{
		{
			name:     "password goes through sshpass",
			password: testPassword,
			wantName: "sshpass",
			wantArgs: []string{"-e", "ssh", "-T", "-p", "22", "-o", "ConnectTimeout=30", "-o", "StrictHostKeyChecking=no",
				"-o", "LogLevel=ERROR", "-o", "UserKnownHostsFile=" + os.DevNull, "-o", "NumberOfPasswordPrompts=1",
				"rte@172.17.5.114", "SCRIPT"},
			exact:      true,
			wantNoArgs: []string{"BatchMode=yes"},
		},
		{
			name: "key only uses batch mode",
			mutate: func(c *config.Config) {
				c.Target.Identity = "/keys/id_ed25519"
				c.Target.Port = 2222
				c.Timeout = 1500 * time.Millisecond
			},
			wantName: "ssh",
			wantArgs: []string{"-T", "-p", "2222", "-o", "ConnectTimeout=2", "-o", "StrictHostKeyChecking=no",
				"-o", "LogLevel=ERROR", "-o", "UserKnownHostsFile=" + os.DevNull, "-i", "/keys/id_ed25519",
				"-o", "BatchMode=yes", "rte@172.17.5.114", "SCRIPT"},
			exact: true,
		},
		{
			name: "strict host key with known hosts and custom path",
			mutate: func(c *config.Config) {
				c.Target.StrictHostKey = true
				c.Target.KnownHosts = "/etc/xmrun/known_hosts"
				c.Transport.ClientPath = "/opt/openssh/bin/ssh"
			},
			password: "pw",
			wantName: "sshpass",
			wantArgs: []string{"-e", "/opt/openssh/bin/ssh", "-o", "StrictHostKeyChecking=yes", "-o", "UserKnownHostsFile=/etc/xmrun/known_hosts"},
		},
		{
			name:     "bracketed IPv6 host",
			mutate:   func(c *config.Config) { c.Target.Host = "[2001:db8::1]" },
			password: "pw",
			wantName: "sshpass",
			wantArgs: []string{"rte@2001:db8::1", "SCRIPT"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(common.ClientOpenSSH)
			if tt.mutate != nil {
				tt.mutate(cfg)
			}
			tr := NewClientTransport(cfg, tt.password)
			inv, cleanup, err := tr.command("SCRIPT")
			require.NoError(t, err)
			defer cleanup()

			assert.Equal(t, tt.wantName, inv.name)
			assert.Subset(t, inv.args, tt.wantArgs)
			if tt.exact {
				assert.Equal(t, tt.wantArgs, inv.args)
			}
			for _, a := range tt.wantNoArgs {
				assert.NotContains(t, strings.Join(inv.args, " "), a)
			}
			if tt.password != "" {
				assert.NotContains(t, strings.Join(inv.args, " "), tt.password, "password must never be on the command line")
				assert.Contains(t, inv.env, "SSHPASS="+tt.password)
			} else {
				assert.Nil(t, inv.env)
			}
		})
	}
}

func TestClientTransport_PlinkPasswordFile(t *testing.T) {
	cfg := testConfig(common.ClientPlink)
	cfg.Target.Port = 2200
	tr := NewClientTransport(cfg, testPassword)

	inv, cleanup, err := tr.command("SCRIPT")
	require.NoError(t, err)

	assert.Equal(t, "plink", inv.name)
	assert.NotContains(t, strings.Join(inv.args, " "), testPassword)
	require.Len(t, inv.args, 8)
	assert.Equal(t, []string{"-ssh", "-batch", "-P", "2200", "-pwfile"}, inv.args[:5])
	assert.Equal(t, []string{"rte@172.17.5.114", "SCRIPT"}, inv.args[6:])

	pwFile := inv.args[5]
	info, err := os.Stat(pwFile)
	require.NoError(t, err)
	assert.Equal(t, common.FileMode0600, info.Mode().Perm())
	content, err := os.ReadFile(pwFile)
	require.NoError(t, err)
	assert.Equal(t, testPassword, string(content))

	cleanup()
	_, err = os.Stat(pwFile)
	assert.True(t, os.IsNotExist(err), "password file must be removed after the call")

	noPw := NewClientTransport(cfg, "")
	inv, cleanup, err = noPw.command("SCRIPT")
	require.NoError(t, err)
	defer cleanup()
	assert.NotContains(t, inv.args, "-pwfile")
}

func TestClientTransport_Run(t *testing.T) {
	dir := t.TempDir()
	argsLog := filepath.Join(dir, "args.log")
	envLog := filepath.Join(dir, "env.log")

	tests := []struct {
		name       string
		body       string
		password   string
		timeout    time.Duration
		wantStdout string
		wantDiag   string
		wantCode   int
		wantErr    error
	}{
		{
			name:       "stdout and diagnostics are kept apart",
			body:       `echo "remote out"; echo "client warning" >&2; exit 0`,
			wantStdout: "remote out\n",
			wantDiag:   "client warning\n",
			wantCode:   0,
		},
		{
			name:     "remote exit code is propagated",
			body:     `exit 7`,
			wantCode: 7,
		},
		{
			name:     "timeout",
			body:     `exec sleep 5`,
			timeout:  200 * time.Millisecond,
			wantCode: common.ExitCodeTransportFailure,
			wantErr:  ErrTransportTimeout,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(common.ClientOpenSSH)
			cfg.Transport.ClientPath = writeScript(t, dir, "ssh-"+strings.ReplaceAll(tt.name, " ", "-"), tt.body)
			tr := NewClientTransport(cfg, tt.password)

			ctx := context.Background()
			if tt.timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, tt.timeout)
				defer cancel()
			}

			start := time.Now()
			out, err := tr.Run(ctx, "echo hi")
			assert.Less(t, time.Since(start), 4*time.Second)
			assert.Equal(t, tt.wantCode, out.ExitCode)
			if tt.wantErr != nil {
				require.Error(t, err)
				assert.True(t, errors.Is(err, tt.wantErr), err.Error())
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantStdout, string(out.Stdout))
			assert.Equal(t, tt.wantDiag, string(out.Diagnostics))
		})
	}

	t.Run("sshpass receives the password through the environment", func(t *testing.T) {
		cfg := testConfig(common.ClientOpenSSH)
		cfg.Transport.ClientPath = "/usr/bin/ssh"
		tr := NewClientTransport(cfg, testPassword)
		tr.sshpassPath = writeScript(t, dir, "sshpass",
			`printf '%s\n' "$@" > `+argsLog+`; printf '%s' "$SSHPASS" > `+envLog+`; echo ok`)

		out, err := tr.Run(context.Background(), "uptime")
		require.NoError(t, err)
		assert.Equal(t, "ok\n", string(out.Stdout))

		args, err := os.ReadFile(argsLog)
		require.NoError(t, err)
		assert.NotContains(t, string(args), testPassword)
		assert.True(t, strings.HasPrefix(string(args), "-e\n/usr/bin/ssh\n"))
		assert.True(t, strings.HasSuffix(string(args), "rte@172.17.5.114\nuptime\n"))

		env, err := os.ReadFile(envLog)
		require.NoError(t, err)
		assert.Equal(t, testPassword, string(env))
	})
}

func TestClientTransport_Unavailable(t *testing.T) {
	tests := []struct {
		name string
		path string
	}{
		{"not on PATH", "xmrun-no-such-ssh-client"},
		{"absolute path missing", filepath.Join(t.TempDir(), "ssh")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(common.ClientPlink)
			cfg.Transport.ClientPath = tt.path
			out, err := NewClientTransport(cfg, "").Run(context.Background(), "true")
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrTransportUnavailable), err.Error())
			assert.False(t, errors.Is(err, ErrTransportError))
			assert.Equal(t, common.ExitCodeTransportFailure, out.ExitCode)
		})
	}
}

func TestClientTransport_Name(t *testing.T) {
	assert.Equal(t, "client/openssh", NewClientTransport(testConfig(common.ClientOpenSSH), "").Name())
	assert.Equal(t, "client/plink", NewClientTransport(testConfig(common.ClientPlink), "").Name())
}

func TestTimeoutSeconds(t *testing.T) {
	assert.Equal(t, 30, timeoutSeconds(0))
	assert.Equal(t, 1, timeoutSeconds(10*time.Millisecond))
	assert.Equal(t, 45, timeoutSeconds(45*time.Second))
}
