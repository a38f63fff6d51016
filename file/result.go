package file

import (
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	"github.com/mensylisir/xmrun/config"
	"github.com/mensylisir/xmrun/logger"
)

// ResultWriter persists the two streams of a remote command.
type ResultWriter struct {
	fs         afero.Fs
	stdoutPath string
	stderrPath string
}

// NewResultWriter resolves the file names of out against out.Dir.
// A nil fs means AppFs.
func NewResultWriter(fs afero.Fs, out config.OutputSpec) *ResultWriter {
	if fs == nil {
		fs = AppFs
	}
	return &ResultWriter{
		fs:         fs,
		stdoutPath: resolve(out.Dir, out.StdoutFile),
		stderrPath: resolve(out.Dir, out.StderrFile),
	}
}

func resolve(dir, name string) string {
	if dir == "" || filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(dir, name)
}

// Paths returns where stdout and stderr are written.
func (w *ResultWriter) Paths() (stdout, stderr string) {
	return w.stdoutPath, w.stderrPath
}

// Write truncates both files and stores the streams, each ending in a newline
// when non-empty. The stderr file is written even when stderr is empty.
func (w *ResultWriter) Write(stdout, stderr string) error {
	if err := WriteFile(w.fs, w.stdoutPath, content(stdout)); err != nil {
		return &LocalWriteError{Path: w.stdoutPath, Err: err}
	}
	logger.Log.Infof("✓ stdout written to %s", w.stdoutPath)

	if err := WriteFile(w.fs, w.stderrPath, content(stderr)); err != nil {
		return &LocalWriteError{Path: w.stderrPath, Err: err}
	}
	if stderr != "" {
		logger.Log.Infof("✓ stderr written to %s", w.stderrPath)
	} else {
		logger.Log.Infof("✓ stderr file created (empty): %s", w.stderrPath)
	}
	return nil
}

// content makes non-empty text end in a newline without doubling an existing one.
func content(text string) []byte {
	if text == "" || strings.HasSuffix(text, "\n") {
		return []byte(text)
	}
	return []byte(text + "\n")
}
