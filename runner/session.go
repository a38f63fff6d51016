package runner

import (
	"strings"

	"github.com/google/uuid"

	"github.com/mensylisir/xmrun/common"
)

// Session is the per-invocation state shared with the remote script.
type Session struct {
	Delimiter string
	TempFile  string
}

// NewSession draws a fresh delimiter and stderr capture path under tempDir.
func NewSession(tempDir string) Session {
	return Session{
		Delimiter: common.DelimiterPrefix + newToken() + common.DelimiterSuffix,
		TempFile:  TempFilePath(tempDir, common.TempFilePrefix+newToken()+common.TempFileSuffix),
	}
}

func newToken() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:common.TokenLength]
}
