package config

import (
	"time"

	"github.com/pkg/errors"

	"github.com/mensylisir/xmrun/common"
	"github.com/mensylisir/xmrun/ip"
)

// Config is the top-level configuration of one xmrun invocation.
type Config struct {
	APIVersion string        `yaml:"apiVersion"`
	Kind       string        `yaml:"kind"`
	Target     TargetSpec    `yaml:"target"`
	Transport  TransportSpec `yaml:"transport"`
	Shell      ShellSpec     `yaml:"shell"`
	Output     OutputSpec    `yaml:"output"`
	Timeout    time.Duration `yaml:"timeout,omitempty"`
}

// TargetSpec describes the single remote host commands are dispatched to.
type TargetSpec struct {
	Host          string         `yaml:"host"`
	Port          int            `yaml:"port,omitempty"`
	User          string         `yaml:"user"`
	Credential    CredentialSpec `yaml:"credential"`
	Identity      string         `yaml:"identity,omitempty"` // private key file
	KnownHosts    string         `yaml:"knownHosts,omitempty"`
	StrictHostKey bool           `yaml:"strictHostKey"`
}

// CredentialSpec says where the password comes from. The password itself is never part of the file.
type CredentialSpec struct {
	Source common.CredentialSource `yaml:"source"`
	Env    string                  `yaml:"env,omitempty"`  // for source env
	File   string                  `yaml:"file,omitempty"` // for source file and sealed
}

// TransportSpec selects how the remote script reaches the host.
type TransportSpec struct {
	Kind       common.TransportKind `yaml:"kind"`
	Client     common.ClientFlavor  `yaml:"client,omitempty"`
	ClientPath string               `yaml:"clientPath,omitempty"`
}

// ShellSpec controls the remote prologue and where the stderr capture file lives.
type ShellSpec struct {
	ProfileFiles []string `yaml:"profileFiles,omitempty"`
	ExtraPath    []string `yaml:"extraPath,omitempty"`
	TempDir      string   `yaml:"tempDir,omitempty"`
}

// OutputSpec names the two local result files.
type OutputSpec struct {
	Dir        string `yaml:"dir,omitempty"`
	StdoutFile string `yaml:"stdoutFile,omitempty"`
	StderrFile string `yaml:"stderrFile,omitempty"`
}

// Validate checks a defaulted configuration before any transport call is made.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("configuration is nil")
	}
	if err := ip.ValidateHost(c.Target.Host); err != nil {
		return errors.Wrap(err, "target.host")
	}
	if c.Target.Port <= 0 || c.Target.Port > 65535 {
		return errors.Errorf("target.port %d is out of range", c.Target.Port)
	}
	if c.Target.User == "" {
		return errors.New("target.user is required")
	}
	if err := c.Target.Credential.validate(c.Target.Identity); err != nil {
		return err
	}

	switch c.Transport.Kind {
	case common.TransportClient:
		switch c.Transport.Client {
		case common.ClientOpenSSH, common.ClientPlink:
		default:
			return errors.Errorf("transport.client %q is not one of %s, %s", c.Transport.Client, common.ClientOpenSSH, common.ClientPlink)
		}
	case common.TransportNative:
	default:
		return errors.Errorf("transport.kind %q is not one of %s, %s", c.Transport.Kind, common.TransportClient, common.TransportNative)
	}

	if c.Timeout <= 0 {
		return errors.Errorf("timeout must be positive, got %s", c.Timeout)
	}
	if c.Output.StdoutFile == "" || c.Output.StderrFile == "" {
		return errors.New("output.stdoutFile and output.stderrFile must be set")
	}
	if c.Output.StdoutFile == c.Output.StderrFile {
		return errors.Errorf("output.stdoutFile and output.stderrFile both point at %s", c.Output.StdoutFile)
	}
	return nil
}

func (c CredentialSpec) validate(identity string) error {
	switch c.Source {
	case common.CredentialNone:
		if identity == "" {
			return errors.New("target.credential.source is none and no identity is configured")
		}
	case common.CredentialEnv:
		if c.Env == "" {
			return errors.New("target.credential.env is required for source env")
		}
	case common.CredentialFile, common.CredentialSealed:
		if c.File == "" {
			return errors.Errorf("target.credential.file is required for source %s", c.Source)
		}
	default:
		return errors.Errorf("target.credential.source %q is unknown", c.Source)
	}
	return nil
}
