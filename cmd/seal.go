package cmd

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/fernet/fernet-go"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/mensylisir/xmrun/common"
	"github.com/mensylisir/xmrun/config"
	"github.com/mensylisir/xmrun/file"
	"github.com/mensylisir/xmrun/logger"
	"github.com/mensylisir/xmrun/util"
)

const (
	keyOut         = "out"
	keyGenerateKey = "generate-key"
)

func newSealCommand() *cobra.Command {
	c := &cobra.Command{
		Use:   "seal --out FILE",
		Short: "Encrypt a password read from stdin for use with --sealed-password",
		Long: "Reads one line from stdin, encrypts it with the Fernet key in " + common.SealKeyEnv +
			" and writes the token to --out with mode 0600. With --generate-key a new key is " +
			"created and printed to stderr instead.",
		Args: cobra.NoArgs,
		RunE: runSeal,
	}
	c.Flags().String(keyOut, "", "File receiving the sealed token")
	c.Flags().Bool(keyGenerateKey, false, "Generate a new key and print it to stderr")
	_ = c.MarkFlagRequired(keyOut)
	return c
}

func runSeal(cmd *cobra.Command, _ []string) error {
	v, err := newViper(cmd)
	if err != nil {
		return err
	}
	out, err := util.ExpandHome(v.GetString(keyOut))
	if err != nil {
		return err
	}

	var key *fernet.Key
	if v.GetBool(keyGenerateKey) {
		generated, encoded, err := config.GenerateSealKey()
		if err != nil {
			return err
		}
		key = generated
		fmt.Fprintf(cmd.ErrOrStderr(), "export %s=%s\n", common.SealKeyEnv, encoded)
	} else {
		key, err = config.SealKeyFromEnv()
		if err != nil {
			return errors.Wrapf(err, "set %s or pass --%s", common.SealKeyEnv, keyGenerateKey)
		}
	}

	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && line == "" {
		return errors.Wrap(err, "read password from stdin")
	}
	password := strings.TrimRight(line, "\r\n")
	if password == "" {
		return errors.New("empty password on stdin")
	}

	token, err := config.Seal(password, key)
	if err != nil {
		return err
	}
	if err := file.WriteSecret(file.AppFs, out, []byte(token+"\n")); err != nil {
		return err
	}
	logger.Log.Infof("sealed password written to %s", out)
	return nil
}
