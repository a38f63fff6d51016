package config

import (
	"time"

	"github.com/mensylisir/xmrun/common"
)

const (
	DefaultAPIVersion = "xmrun.io/v1alpha1"
	DefaultKind       = "RunConfig"
	DefaultTimeout    = 30 * time.Second
	DefaultTempDir    = common.TmpDirBase
)

// DefaultProfileFiles are sourced best-effort before the command runs so a
// non-interactive shell sees the same environment as a login shell.
var DefaultProfileFiles = []string{"~/.zprofile", "~/.zshrc", "~/.bash_profile"}

// DefaultExtraPath holds package-manager bin dirs prepended to PATH on the remote side.
var DefaultExtraPath = []string{"/opt/homebrew/bin", "/usr/local/bin"}

// NewDefaultConfig returns a configuration with every default applied and no target.
func NewDefaultConfig() *Config {
	cfg := &Config{}
	SetDefaults(cfg)
	return cfg
}

// SetDefaults fills every zero field of cfg with its default. Fields already set are kept.
func SetDefaults(cfg *Config) {
	if cfg == nil {
		return
	}
	if cfg.APIVersion == "" {
		cfg.APIVersion = DefaultAPIVersion
	}
	if cfg.Kind == "" {
		cfg.Kind = DefaultKind
	}
	if cfg.Target.Port == 0 {
		cfg.Target.Port = common.DefaultSSHPort
	}

	cred := &cfg.Target.Credential
	if cred.Source == "" {
		cred.Source = common.CredentialEnv
	}
	if cred.Source == common.CredentialEnv && cred.Env == "" {
		cred.Env = common.DefaultPasswordEnv
	}

	if cfg.Transport.Kind == "" {
		cfg.Transport.Kind = common.TransportClient
	}
	if cfg.Transport.Client == "" {
		cfg.Transport.Client = common.ClientOpenSSH
	}

	if cfg.Shell.ProfileFiles == nil {
		cfg.Shell.ProfileFiles = append([]string(nil), DefaultProfileFiles...)
	}
	if cfg.Shell.ExtraPath == nil {
		cfg.Shell.ExtraPath = append([]string(nil), DefaultExtraPath...)
	}
	if cfg.Shell.TempDir == "" {
		cfg.Shell.TempDir = DefaultTempDir
	}

	if cfg.Output.StdoutFile == "" {
		cfg.Output.StdoutFile = common.DefaultStdoutFile
	}
	if cfg.Output.StderrFile == "" {
		cfg.Output.StderrFile = common.DefaultStderrFile
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
}
