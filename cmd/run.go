package cmd

import (
	"context"
	"time"
	"unicode/utf8"

	"github.com/spf13/cobra"

	"github.com/mensylisir/xmrun/common"
	"github.com/mensylisir/xmrun/config"
	"github.com/mensylisir/xmrun/connector"
	"github.com/mensylisir/xmrun/executor"
	"github.com/mensylisir/xmrun/file"
	"github.com/mensylisir/xmrun/logger"
	"github.com/mensylisir/xmrun/runner"
	xmtime "github.com/mensylisir/xmrun/time"
)

// newTransportFunc lets tests substitute the transport.
var newTransportFunc = newTransport

func newTransport(cfg *config.Config, password string) (executor.Transport, error) {
	if cfg.Transport.Kind == common.TransportNative {
		connCfg, err := connector.NewConfig(cfg, password)
		if err != nil {
			return nil, err
		}
		return executor.NewSSHTransport(nil, connCfg), nil
	}
	return executor.NewClientTransport(cfg, password), nil
}

func runRemote(cmd *cobra.Command, args []string) error {
	v, err := newViper(cmd)
	if err != nil {
		return err
	}
	cfg, err := config.Resolve(v)
	if err != nil {
		return err
	}
	password, err := cfg.Password()
	if err != nil {
		return err
	}
	transport, err := newTransportFunc(cfg, password)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	r := runner.NewCmdRunner(transport, runner.Options{
		Host:         cfg.Target.Host,
		ProfileFiles: cfg.Shell.ProfileFiles,
		ExtraPath:    cfg.Shell.ExtraPath,
		TempDir:      cfg.Shell.TempDir,
		Timeout:      cfg.Timeout,
	})

	start := time.Now()
	result := r.Run(ctx, args[0], args[1:])

	if err := file.NewResultWriter(nil, cfg.Output).Write(result.Stdout, result.Stderr); err != nil {
		return err
	}

	logger.Log.Infof("Command exit code: %d", result.ExitCode)
	logger.Log.Infof("stdout length: %d bytes, %d characters", len(result.Stdout), utf8.RuneCountInString(result.Stdout))
	logger.Log.Infof("stderr length: %d bytes, %d characters", len(result.Stderr), utf8.RuneCountInString(result.Stderr))
	logger.Log.Infof("elapsed: %s", xmtime.Elapsed(start))

	if code := result.ProcessExitCode(); code != 0 {
		return &exitError{code: code}
	}
	return nil
}
