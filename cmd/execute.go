package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/mensylisir/xmrun/common"
	"github.com/mensylisir/xmrun/logger"
)

// exitFunc allows tests to stub process exit behavior.
var exitFunc = os.Exit

// exitError carries a non-zero process exit code that is not a failure of xmrun itself.
type exitError struct {
	code int
}

func (e *exitError) Error() string {
	return fmt.Sprintf("exit status %d", e.code)
}

// Execute runs the command tree and exits with the resulting code.
func Execute() {
	execute(NewRootCommand())
}

func execute(root *cobra.Command) {
	err := root.ExecuteContext(context.Background())
	if err == nil {
		return
	}
	var exitErr *exitError
	if errors.As(err, &exitErr) {
		exitFunc(exitErr.code)
		return
	}
	logger.Log.Error(err)
	exitFunc(common.ExitCodeFailure)
}
