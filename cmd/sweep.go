package cmd

import (
	"context"
	"os"
	"path"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/mensylisir/xmrun/common"
	"github.com/mensylisir/xmrun/config"
	"github.com/mensylisir/xmrun/connector"
	"github.com/mensylisir/xmrun/logger"
)

const (
	keyOlderThan = "older-than"
	keyDryRun    = "dry-run"
	keyDir       = "dir"
)

// dialer lets tests substitute the native connection.
var dialer = connector.NewDialer()

func newSweepCommand() *cobra.Command {
	c := &cobra.Command{
		Use:   "sweep",
		Short: "Remove stderr capture files left behind on the target",
		Long: "Connects natively over SSH, lists the remote temp directory over SFTP and removes " +
			"xmrun stderr capture files older than --older-than. Captures leak only when a remote " +
			"script dies before its own cleanup.",
		Args: cobra.NoArgs,
		RunE: runSweep,
	}
	c.Flags().Duration(keyOlderThan, time.Hour, "Only remove files last modified longer ago than this")
	c.Flags().Bool(keyDryRun, false, "List matching files without removing them")
	c.Flags().String(keyDir, "", "Remote directory to sweep (default shell.tempDir)")
	return c
}

func runSweep(cmd *cobra.Command, _ []string) error {
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
	connCfg, err := connector.NewConfig(cfg, password)
	if err != nil {
		return err
	}

	dir := cfg.Shell.TempDir
	if d := v.GetString(keyDir); d != "" {
		dir = d
	}
	olderThan := v.GetDuration(keyOlderThan)
	dryRun := v.GetBool(keyDryRun)

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	conn, err := dialer.Dial(ctx, connCfg)
	if err != nil {
		return errors.Wrapf(err, "connect to %s", cfg.Target.Host)
	}
	defer conn.Close()

	removed, err := sweep(ctx, conn, cfg.Target.Host, dir, time.Now().Add(-olderThan), dryRun)
	if err != nil {
		return err
	}
	verb := "removed"
	if dryRun {
		verb = "would remove"
	}
	logger.Log.ForHost(cfg.Target.Host).Infof("%s %d stale capture file(s) in %s", verb, len(removed), dir)
	return nil
}

// sweep removes capture files in dir last modified before cutoff and returns their paths.
func sweep(ctx context.Context, conn connector.FileOperator, host, dir string, cutoff time.Time, dryRun bool) ([]string, error) {
	entries, err := conn.ListDir(ctx, dir)
	if err != nil {
		return nil, errors.Wrapf(err, "list %s", dir)
	}
	var removed []string
	for _, entry := range entries {
		if !isStaleCapture(entry, cutoff) {
			continue
		}
		p := path.Join(dir, entry.Name())
		if dryRun {
			logger.Log.ForHost(host).Infof("would remove %s", p)
			removed = append(removed, p)
			continue
		}
		if err := conn.Remove(ctx, p); err != nil {
			logger.Log.ErrorfHost(host, err, "failed to remove %s", p)
			continue
		}
		logger.Log.ForHost(host).Debugf("removed %s", p)
		removed = append(removed, p)
	}
	return removed, nil
}

func isStaleCapture(entry os.FileInfo, cutoff time.Time) bool {
	name := entry.Name()
	return entry.Mode().IsRegular() &&
		strings.HasPrefix(name, common.TempFilePrefix) &&
		strings.HasSuffix(name, common.TempFileSuffix) &&
		entry.ModTime().Before(cutoff)
}
