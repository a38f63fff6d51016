package config

import (
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cast"
	"github.com/spf13/viper"

	"github.com/mensylisir/xmrun/common"
	"github.com/mensylisir/xmrun/util"
)

// Keys shared by command-line flags and XMRUN_* environment variables.
const (
	KeyConfig         = "config"
	KeyHost           = "host"
	KeyPort           = "port"
	KeyUser           = "user"
	KeyPasswordEnv    = "password-env"
	KeyPasswordFile   = "password-file"
	KeySealedPassword = "sealed-password"
	KeyIdentity       = "identity"
	KeyKnownHosts     = "known-hosts"
	KeyStrictHostKey  = "strict-host-key"
	KeyTransport      = "transport"
	KeyClient         = "client"
	KeyClientPath     = "client-path"
	KeyTimeout        = "timeout"
	KeyStdoutFile     = "stdout-file"
	KeyStderrFile     = "stderr-file"
	KeyOutputDir      = "output-dir"
)

// NewViper returns a viper instance reading XMRUN_* variables, with dashes in keys mapped to underscores.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(common.EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	return v
}

// Resolve builds the effective configuration: the optional YAML file first, then
// environment variables and changed flags through v, then defaults and validation.
func Resolve(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if path := v.GetString(KeyConfig); path != "" {
		expanded, err := util.ExpandHome(path)
		if err != nil {
			return nil, err
		}
		loaded, err := NewLoader(expanded).Load()
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if err := Apply(cfg, v); err != nil {
		return nil, err
	}
	SetDefaults(cfg)
	if err := expandPaths(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}
	return cfg, nil
}

// Apply overlays every key set in v (environment or explicitly changed flag) onto cfg.
func Apply(cfg *Config, v *viper.Viper) error {
	if cfg == nil || v == nil {
		return errors.New("config and viper instance must not be nil")
	}

	if v.IsSet(KeyHost) {
		cfg.Target.Host = v.GetString(KeyHost)
	}
	if v.IsSet(KeyPort) {
		port, err := cast.ToIntE(v.Get(KeyPort))
		if err != nil {
			return errors.Wrapf(err, "invalid %s", KeyPort)
		}
		cfg.Target.Port = port
	}
	if v.IsSet(KeyUser) {
		cfg.Target.User = v.GetString(KeyUser)
	}
	if v.IsSet(KeyIdentity) {
		cfg.Target.Identity = v.GetString(KeyIdentity)
	}
	if v.IsSet(KeyKnownHosts) {
		cfg.Target.KnownHosts = v.GetString(KeyKnownHosts)
	}
	if v.IsSet(KeyStrictHostKey) {
		strict, err := cast.ToBoolE(v.Get(KeyStrictHostKey))
		if err != nil {
			return errors.Wrapf(err, "invalid %s", KeyStrictHostKey)
		}
		cfg.Target.StrictHostKey = strict
	}
	if err := applyCredential(&cfg.Target.Credential, v); err != nil {
		return err
	}

	if v.IsSet(KeyTransport) {
		cfg.Transport.Kind = common.TransportKind(strings.ToLower(v.GetString(KeyTransport)))
	}
	if v.IsSet(KeyClient) {
		cfg.Transport.Client = common.ClientFlavor(strings.ToLower(v.GetString(KeyClient)))
	}
	if v.IsSet(KeyClientPath) {
		cfg.Transport.ClientPath = v.GetString(KeyClientPath)
	}
	if v.IsSet(KeyTimeout) {
		timeout, err := cast.ToDurationE(v.Get(KeyTimeout))
		if err != nil {
			return errors.Wrapf(err, "invalid %s", KeyTimeout)
		}
		cfg.Timeout = timeout
	}

	if v.IsSet(KeyStdoutFile) {
		cfg.Output.StdoutFile = v.GetString(KeyStdoutFile)
	}
	if v.IsSet(KeyStderrFile) {
		cfg.Output.StderrFile = v.GetString(KeyStderrFile)
	}
	if v.IsSet(KeyOutputDir) {
		cfg.Output.Dir = v.GetString(KeyOutputDir)
	}
	return nil
}

func applyCredential(cred *CredentialSpec, v *viper.Viper) error {
	var set []string
	for _, key := range []string{KeyPasswordEnv, KeyPasswordFile, KeySealedPassword} {
		if v.IsSet(key) {
			set = append(set, key)
		}
	}
	if len(set) > 1 {
		return errors.Errorf("only one credential source may be given, got %s", strings.Join(set, ", "))
	}
	if len(set) == 0 {
		return nil
	}

	value := v.GetString(set[0])
	switch set[0] {
	case KeyPasswordEnv:
		*cred = CredentialSpec{Source: common.CredentialEnv, Env: value}
	case KeyPasswordFile:
		*cred = CredentialSpec{Source: common.CredentialFile, File: value}
	case KeySealedPassword:
		*cred = CredentialSpec{Source: common.CredentialSealed, File: value}
	}
	return nil
}

func expandPaths(cfg *Config) error {
	for _, p := range []*string{
		&cfg.Target.Identity,
		&cfg.Target.KnownHosts,
		&cfg.Target.Credential.File,
		&cfg.Transport.ClientPath,
		&cfg.Output.Dir,
	} {
		expanded, err := util.ExpandHome(*p)
		if err != nil {
			return err
		}
		*p = expanded
	}
	return nil
}
