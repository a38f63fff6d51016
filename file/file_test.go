package file

import (
	"os"
	"testing"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mensylisir/xmrun/common"
)

func TestCreateDir(t *testing.T) {
	fs := afero.NewMemMapFs()

	require.NoError(t, CreateDir(fs, "/a/b/c"))
	isDir, err := IsDir(fs, "/a/b/c")
	require.NoError(t, err)
	assert.True(t, isDir)

	require.NoError(t, CreateDir(fs, "/a/b/c"), "existing directory is fine")

	require.NoError(t, afero.WriteFile(fs, "/a/file", []byte("x"), common.FileMode0644))
	err = CreateDir(fs, "/a/file")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "is not a directory")
}

func TestCreateFileDir(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, CreateFileDir(fs, "out.txt"))
	require.NoError(t, CreateFileDir(fs, "/x/y/out.txt"))
	isDir, err := IsDir(fs, "/x/y")
	require.NoError(t, err)
	assert.True(t, isDir)
}

func TestWriteFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, WriteFile(fs, "/deep/dir/f.txt", []byte("first version")))
	require.NoError(t, WriteFile(fs, "/deep/dir/f.txt", []byte("v2")))

	got, err := afero.ReadFile(fs, "/deep/dir/f.txt")
	require.NoError(t, err)
	assert.Equal(t, "v2", string(got), "existing content must be truncated")

	info, err := fs.Stat("/deep/dir/f.txt")
	require.NoError(t, err)
	assert.Equal(t, common.FileMode0644, info.Mode().Perm())
}

func TestWriteFile_ReadOnlyFs(t *testing.T) {
	fs := afero.NewReadOnlyFs(afero.NewMemMapFs())
	err := WriteFile(fs, "/out.txt", []byte("x"))
	require.Error(t, err)
}

func TestWriteSecret(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/s/token", []byte("old"), 0644))
	require.NoError(t, WriteSecret(fs, "/s/token", []byte("sealed")))

	got, err := afero.ReadFile(fs, "/s/token")
	require.NoError(t, err)
	assert.Equal(t, "sealed", string(got))
	info, err := fs.Stat("/s/token")
	require.NoError(t, err)
	assert.Equal(t, common.FileMode0600, info.Mode().Perm())
}

func TestLocalWriteError(t *testing.T) {
	err := &LocalWriteError{Path: "/out.txt", Err: os.ErrPermission}
	assert.Equal(t, "failed to write /out.txt: permission denied", err.Error())
	assert.True(t, errors.Is(err, os.ErrPermission))
}
