// time.go
package time

import (
	"strings"
	"time"
)

// ShortDur shortens the string representation of a time.Duration from d.String().
func ShortDur(d time.Duration) string {
	s := d.String()
	if d == 0 {
		return "0s"
	}
	if strings.HasSuffix(s, "m0s") {
		s = s[:len(s)-2]
	}
	if strings.HasSuffix(s, "h0m") {
		s = s[:len(s)-2]
	}
	return s
}

// Elapsed reports the time since start rounded to milliseconds, in ShortDur form.
// Sub-millisecond durations are kept at microsecond precision so they never collapse to "0s".
func Elapsed(start time.Time) string {
	return ShortDur(round(time.Since(start)))
}

func round(d time.Duration) time.Duration {
	if d >= time.Millisecond {
		return d.Round(time.Millisecond)
	}
	return d.Round(time.Microsecond)
}
