package runner

import (
	"strings"

	"github.com/mensylisir/xmrun/common"
)

// FilterBanner drops keyboard-interactive banners some clients print on stdout.
// A line with the begin marker opens a skipped region, a line with the end marker
// closes it; both marker lines are dropped. Everything else is kept in order.
func FilterBanner(output string) string {
	if !strings.Contains(output, common.BannerBeginMarker) && !strings.Contains(output, common.BannerEndMarker) {
		return output
	}
	lines := strings.Split(output, "\n")
	kept := make([]string, 0, len(lines))
	skip := false
	for _, line := range lines {
		switch {
		case strings.Contains(line, common.BannerBeginMarker):
			skip = true
		case strings.Contains(line, common.BannerEndMarker):
			skip = false
		case !skip:
			kept = append(kept, line)
		}
	}
	return strings.Join(kept, "\n")
}

// Demultiplex splits the combined stream at the first delimiter. Without a
// delimiter the whole text is stdout and found is false.
func Demultiplex(text, delimiter string) (stdout, stderr string, found bool) {
	idx := strings.Index(text, delimiter)
	if idx < 0 {
		return text, "", false
	}
	stdout = strings.TrimRight(text[:idx], "\n")

	rest := text[idx+len(delimiter):]
	if strings.HasPrefix(rest, "\r\n") {
		rest = rest[2:]
	} else {
		rest = strings.TrimPrefix(rest, "\n")
	}
	return stdout, strings.TrimRight(rest, "\n"), true
}
