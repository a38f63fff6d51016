package file

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/spf13/afero"

	"github.com/mensylisir/xmrun/common"
)

// AppFs is the filesystem every helper in this package goes through.
// Tests swap it for afero.NewMemMapFs().
var AppFs afero.Fs = afero.NewOsFs()

// LocalWriteError reports a result file that could not be written.
type LocalWriteError struct {
	Path string
	Err  error
}

func (e *LocalWriteError) Error() string {
	return fmt.Sprintf("failed to write %s: %v", e.Path, e.Err)
}

func (e *LocalWriteError) Unwrap() error {
	return e.Err
}

// IsDir checks if the given path is a directory.
func IsDir(fs afero.Fs, path string) (bool, error) {
	return afero.IsDir(fs, path)
}

// CreateDir creates a directory and all its parents if they don't exist.
// It uses common.FileMode0755 for directory permissions.
func CreateDir(fs afero.Fs, path string) error {
	info, err := fs.Stat(path)
	if err == nil {
		if info.IsDir() {
			return nil
		}
		return errors.Errorf("path %s exists but is not a directory", path)
	}
	if os.IsNotExist(err) {
		return fs.MkdirAll(path, common.FileMode0755)
	}
	return errors.Wrapf(err, "failed to check directory %s", path)
}

// CreateFileDir creates the full directory path for a given file name if it doesn't exist.
// e.g., for "./aa/bb/xxx.txt", it ensures "./aa/bb" exists.
func CreateFileDir(fs afero.Fs, filePath string) error {
	dir := filepath.Dir(filePath)
	if dir == "." || dir == "" {
		return nil
	}
	return CreateDir(fs, dir)
}

// WriteFile truncates or creates filePath with content, creating parent directories if necessary.
// It uses common.FileMode0755 for directories and common.FileMode0644 for the file.
func WriteFile(fs afero.Fs, filePath string, content []byte) error {
	if err := CreateFileDir(fs, filePath); err != nil {
		return errors.Wrapf(err, "failed to create directory for file %s", filePath)
	}
	if err := afero.WriteFile(fs, filePath, content, common.FileMode0644); err != nil {
		return errors.Wrapf(err, "failed to write file %s", filePath)
	}
	return nil
}

// WriteSecret writes content readable by the owner only.
func WriteSecret(fs afero.Fs, filePath string, content []byte) error {
	if err := CreateFileDir(fs, filePath); err != nil {
		return errors.Wrapf(err, "failed to create directory for file %s", filePath)
	}
	if err := afero.WriteFile(fs, filePath, content, common.FileMode0600); err != nil {
		return errors.Wrapf(err, "failed to write file %s", filePath)
	}
	// WriteFile keeps the mode of an existing file.
	return fs.Chmod(filePath, common.FileMode0600)
}
