package cmd

import (
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/mensylisir/xmrun/common"
	"github.com/mensylisir/xmrun/config"
	"github.com/mensylisir/xmrun/logger"
)

// Version is set via -ldflags at build time.
var Version = "0.1.0"

const (
	keyLogLevel = "log-level"
	keyVerbose  = "verbose"
	keyLogDir   = "log-dir"
)

// NewRootCommand builds the xmrun command tree. The root command itself runs the
// remote command; flag parsing stops at the first positional argument so that
// "xmrun ls -l" hands -l to the remote ls.
func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   common.AppName + " [flags] <command> [arg...]",
		Short: "Run one command on a remote host over SSH and save its output",
		Long: "Runs a single command on the configured target over SSH, writes the remote stdout and " +
			"stderr into two local files and exits with the remote exit code.",
		Example:           "  xmrun hostname\n  xmrun ls -l\n  xmrun echo Hello World\n  xmrun -- sweep   # a remote command named like a subcommand",
		Version:           Version,
		Args:              cobra.MinimumNArgs(1),
		SilenceErrors:     true,
		SilenceUsage:      true,
		PersistentPreRunE: initLogging,
		RunE:              runRemote,
	}
	root.CompletionOptions.DisableDefaultCmd = true
	root.Flags().SetInterspersed(false)
	addConfigFlags(root.PersistentFlags())

	root.AddCommand(newSweepCommand(), newSealCommand())
	return root
}

func addConfigFlags(fs *pflag.FlagSet) {
	fs.StringP(config.KeyConfig, "c", "", "Path to a RunConfig YAML file")
	fs.String(config.KeyHost, "", "Target host name or IP address")
	fs.IntP(config.KeyPort, "p", common.DefaultSSHPort, "Target SSH port")
	fs.StringP(config.KeyUser, "u", "", "SSH user")
	fs.String(config.KeyPasswordEnv, "", "Read the password from this environment variable (default "+common.DefaultPasswordEnv+")")
	fs.String(config.KeyPasswordFile, "", "Read the password from this file")
	fs.String(config.KeySealedPassword, "", "Read the password from a token file written by 'xmrun seal'")
	fs.StringP(config.KeyIdentity, "i", "", "Private key file")
	fs.String(config.KeyKnownHosts, "", "known_hosts file used for host key verification")
	fs.Bool(config.KeyStrictHostKey, false, "Reject unknown or mismatched host keys")
	fs.String(config.KeyTransport, string(common.TransportClient), "Transport: client or native")
	fs.String(config.KeyClient, string(common.ClientOpenSSH), "SSH client for the client transport: openssh or plink")
	fs.String(config.KeyClientPath, "", "Path to the SSH client binary")
	fs.DurationP(config.KeyTimeout, "t", config.DefaultTimeout, "Bound on the whole remote call")
	fs.String(config.KeyStdoutFile, common.DefaultStdoutFile, "File receiving the remote stdout")
	fs.String(config.KeyStderrFile, common.DefaultStderrFile, "File receiving the remote stderr")
	fs.String(config.KeyOutputDir, "", "Directory for relative output file names")

	fs.String(keyLogLevel, "info", "Log level (trace, debug, info, warn, error)")
	fs.BoolP(keyVerbose, "v", false, "Enable debug logging")
	fs.String(keyLogDir, "", "Also write logs to a daily rotated file in this directory")
}

// newViper binds every flag visible to cmd, inherited ones included.
func newViper(cmd *cobra.Command) (*viper.Viper, error) {
	v := config.NewViper()
	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return nil, errors.Wrap(err, "bind flags")
	}
	return v, nil
}

func initLogging(cmd *cobra.Command, _ []string) error {
	v, err := newViper(cmd)
	if err != nil {
		return err
	}
	level, err := logger.ParseLevel(v.GetString(keyLogLevel))
	if err != nil {
		return err
	}
	return logger.InitGlobalLogger(v.GetString(keyLogDir), v.GetBool(keyVerbose), level)
}
