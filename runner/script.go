package runner

import (
	"path"
	"regexp"
	"strings"
)

// exitStatusVar holds the grouped command's status until the stderr capture is replayed.
const exitStatusVar = "__xmrun_rc"

var shellSafe = regexp.MustCompile(`^[A-Za-z0-9_@%+=:,./-]+$`)

// EscapeArg single-quotes arg for a POSIX shell; each embedded quote becomes '\''.
func EscapeArg(arg string) string {
	return "'" + strings.ReplaceAll(arg, "'", `'\''`) + "'"
}

// BuildCommandLine joins the bare command with its escaped arguments.
func BuildCommandLine(command string, args []string) string {
	if len(args) == 0 {
		return command
	}
	parts := make([]string, 0, len(args)+1)
	parts = append(parts, command)
	for _, arg := range args {
		parts = append(parts, EscapeArg(arg))
	}
	return strings.Join(parts, " ")
}

// quoteIfNeeded leaves plain words readable and escapes anything else.
func quoteIfNeeded(word string) string {
	if shellSafe.MatchString(word) {
		return word
	}
	return EscapeArg(word)
}

// remotePath quotes p while keeping a leading "~/" expandable by the remote shell.
func remotePath(p string) string {
	if strings.HasPrefix(p, "~/") {
		return "~/" + quoteIfNeeded(p[2:])
	}
	return quoteIfNeeded(p)
}

// Prologue sources each profile file if present and extends PATH. Every step
// tolerates failure; "source" is used so shells without it skip the file instead
// of aborting on a profile written for another shell.
func Prologue(profileFiles, extraPath []string) string {
	var b strings.Builder
	for _, f := range profileFiles {
		if f == "" {
			continue
		}
		p := remotePath(f)
		b.WriteString("[ -f " + p + " ] && source " + p + " >/dev/null 2>&1 || true; ")
	}
	var dirs []string
	for _, d := range extraPath {
		if d != "" {
			dirs = append(dirs, d)
		}
	}
	if len(dirs) > 0 {
		b.WriteString("export PATH=" + quoteIfNeeded(strings.Join(dirs, ":")) + `:"$PATH"; `)
	}
	return b.String()
}

// WrapScript builds the remote script. Stdout of line flows straight through, its
// stderr goes to the session temp file, which is replayed after the delimiter line
// and removed. The script exits with line's own status.
func WrapScript(prologue, line string, s Session) string {
	tmp := quoteIfNeeded(s.TempFile)
	return prologue +
		"{ " + line + "\n} 2>" + tmp + "; " +
		exitStatusVar + "=$?; " +
		"echo " + EscapeArg(s.Delimiter) + "; " +
		"cat " + tmp + " 2>/dev/null; " +
		"rm -f " + tmp + "; " +
		"exit $" + exitStatusVar
}

// TempFilePath places name inside the remote temp directory.
func TempFilePath(dir, name string) string {
	if dir == "" {
		dir = "/tmp"
	}
	return path.Join(dir, name)
}
