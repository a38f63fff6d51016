package connector

import (
	"context"
	"os"
)

type Executor interface {
	Exec(ctx context.Context, cmd string) (stdout []byte, stderr []byte, exitCode int, err error)
}

type FileOperator interface {
	ListDir(ctx context.Context, dir string) ([]os.FileInfo, error)
	Remove(ctx context.Context, remotePath string) error
}

type Connection interface {
	Executor
	FileOperator
	Close() error
}
