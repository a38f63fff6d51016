package connector

import (
	"context"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/mensylisir/xmrun/config"
	"github.com/mensylisir/xmrun/util"
)

const agentSocketEnv = "SSH_AUTH_SOCK"

// Dialer defines an interface for creating connections to the target.
type Dialer interface {
	Dial(ctx context.Context, cfg Config) (Connection, error)
}

type sshDialer struct{}

// NewDialer creates the default SSH dialer.
func NewDialer() Dialer {
	return &sshDialer{}
}

func (d *sshDialer) Dial(ctx context.Context, cfg Config) (Connection, error) {
	return NewConnection(ctx, cfg)
}

var _ Dialer = (*sshDialer)(nil)

// NewConfig derives the native connection settings from the run configuration.
// The agent is offered only when the environment advertises one.
func NewConfig(cfg *config.Config, password string) (Config, error) {
	if cfg == nil {
		return Config{}, errors.New("configuration cannot be nil")
	}
	target := cfg.Target
	c := Config{
		Username:      target.User,
		Password:      password,
		Address:       target.Host,
		Port:          target.Port,
		KeyFile:       target.Identity,
		KnownHosts:    target.KnownHosts,
		StrictHostKey: target.StrictHostKey,
		Timeout:       cfg.Timeout,
	}
	if os.Getenv(agentSocketEnv) != "" {
		c.AgentSocket = socketEnvPrefix + agentSocketEnv
	}
	if c.StrictHostKey && c.KnownHosts == "" {
		home, err := util.Home()
		if err != nil {
			return Config{}, errors.Wrap(err, "cannot locate default known_hosts")
		}
		c.KnownHosts = filepath.Join(home, ".ssh", "known_hosts")
	}
	return c, nil
}
