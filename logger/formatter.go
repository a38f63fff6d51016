package logger

import (
	"bytes"
	"fmt"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	defaultFieldSeparator  = " "
	defaultTimestampFormat = time.RFC3339
)

// LevelNameDisplayMode selects which entries carry a "[LEVL]" tag.
type LevelNameDisplayMode int

const (
	// ShowAll tags every entry.
	ShowAll LevelNameDisplayMode = iota
	// ShowAboveWarn tags WARN and more severe entries only.
	ShowAboveWarn
)

// Formatter renders "TIME [LEVL] [Host:h Transport:t Command:c other:v] message (caller)".
type Formatter struct {
	TimestampFormat  string
	NoColors         bool
	DisplayLevelName LevelNameDisplayMode
	// FieldsDisplayWithOrder lists keys printed first, in this order. Remaining keys follow sorted.
	FieldsDisplayWithOrder []string
	FieldSeparator         string
	DisableCaller          bool
	// CustomCallerFormatter replaces the default "(file:line func)" caller suffix.
	CustomCallerFormatter func(*runtime.Frame) string
	// SensitiveKeys lists field keys, matched case-insensitively, whose values are masked.
	SensitiveKeys []string
}

// Format implements logrus.Formatter.
func (f *Formatter) Format(entry *logrus.Entry) ([]byte, error) {
	b := &bytes.Buffer{}

	timestampFormat := f.TimestampFormat
	if timestampFormat == "" {
		timestampFormat = defaultTimestampFormat
	}
	b.WriteString(entry.Time.Format(timestampFormat))
	b.WriteByte(' ')

	if f.DisplayLevelName == ShowAll || entry.Level <= logrus.WarnLevel {
		f.writeLevel(b, entry.Level)
	}

	if len(entry.Data) > 0 {
		b.WriteByte('[')
		f.writeFields(b, entry.Data)
		b.WriteString("] ")
	}

	b.WriteString(entry.Message)

	if !f.DisableCaller && entry.HasCaller() {
		b.WriteByte(' ')
		f.writeCaller(b, entry.Caller)
	}

	b.WriteByte('\n')
	return b.Bytes(), nil
}

func (f *Formatter) writeLevel(b *bytes.Buffer, level logrus.Level) {
	name := strings.ToUpper(level.String())
	if len(name) > 4 {
		name = name[:4]
	}
	if f.NoColors {
		fmt.Fprintf(b, "[%s] ", name)
		return
	}
	fmt.Fprintf(b, "\x1b[%dm[%s]\x1b[0m ", colorByLevel(level), name)
}

func (f *Formatter) writeFields(b *bytes.Buffer, data logrus.Fields) {
	separator := f.FieldSeparator
	if separator == "" {
		separator = defaultFieldSeparator
	}

	keys := make([]string, 0, len(data))
	seen := make(map[string]bool, len(f.FieldsDisplayWithOrder))
	for _, key := range f.FieldsDisplayWithOrder {
		if _, ok := data[key]; ok && !seen[key] {
			keys = append(keys, key)
			seen[key] = true
		}
	}
	rest := make([]string, 0, len(data)-len(keys))
	for key := range data {
		if !seen[key] {
			rest = append(rest, key)
		}
	}
	sort.Strings(rest)
	keys = append(keys, rest...)

	for i, key := range keys {
		if i > 0 {
			b.WriteString(separator)
		}
		value := fmt.Sprintf("%v", data[key])
		if f.isSensitive(key) {
			value = Mask(value)
		}
		fmt.Fprintf(b, "%s:%s", key, value)
	}
}

func (f *Formatter) writeCaller(b *bytes.Buffer, frame *runtime.Frame) {
	if f.CustomCallerFormatter != nil {
		b.WriteString(f.CustomCallerFormatter(frame))
		return
	}
	fn := filepath.Base(frame.Function)
	if i := strings.LastIndex(fn, "."); i >= 0 {
		fn = fn[i+1:]
	}
	fmt.Fprintf(b, "(%s:%d %s)", filepath.Base(frame.File), frame.Line, fn)
}

func (f *Formatter) isSensitive(key string) bool {
	for _, k := range f.SensitiveKeys {
		if strings.EqualFold(k, key) {
			return true
		}
	}
	return false
}

// Mask hides all but the last four characters of value.
func Mask(value string) string {
	if value == "" {
		return ""
	}
	if len(value) > 4 {
		return "****" + value[len(value)-4:]
	}
	return "****"
}

func colorByLevel(level logrus.Level) int {
	switch level {
	case logrus.DebugLevel:
		return colorBlue
	case logrus.WarnLevel:
		return colorYellow
	case logrus.ErrorLevel, logrus.FatalLevel, logrus.PanicLevel:
		return colorRed
	default:
		return colorGray
	}
}

const (
	colorRed    = 31
	colorYellow = 33
	colorBlue   = 36
	colorGray   = 37
)
