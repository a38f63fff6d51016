// logger.go
package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"time"

	rotatelogs "github.com/lestrrat-go/file-rotatelogs"
	"github.com/rifflock/lfshook"
	"github.com/sirupsen/logrus"
	"golang.org/x/term"

	"github.com/mensylisir/xmrun/common"
)

// Log is the global logger instance of XMLog.
// It starts as an info-level console logger and is replaced by InitGlobalLogger.
var Log *XMLog

func init() {
	Log = &XMLog{Logger: newConsoleLogger(os.Stderr, logrus.InfoLevel, false)}
}

// XMLog wraps logrus.Logger for application-specific logging.
type XMLog struct {
	*logrus.Logger
}

var defaultFieldsOrder = []string{
	common.HostName, common.TransportName, common.CommandName,
}

var sensitiveKeys = []string{"password", "credential", "secret"}

// consoleOutput is where console diagnostics go. The remote command's own output
// is never written here; it lands in the result files.
var consoleOutput io.Writer = os.Stderr

// isTerminal reports whether w is a file attached to a terminal. Colors are
// only emitted there so redirected diagnostics stay free of escape codes.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func newConsoleFormatter(out io.Writer, verbose bool) *Formatter {
	displayLevel := ShowAboveWarn
	if verbose {
		displayLevel = ShowAll
	}
	return &Formatter{
		TimestampFormat:        "15:04:05",
		NoColors:               !isTerminal(out),
		DisplayLevelName:       displayLevel,
		DisableCaller:          true,
		FieldsDisplayWithOrder: defaultFieldsOrder,
		SensitiveKeys:          sensitiveKeys,
	}
}

func newConsoleLogger(out io.Writer, level logrus.Level, verbose bool) *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(level)
	logger.SetFormatter(newConsoleFormatter(out, verbose))
	logger.SetOutput(out)
	return logger
}

// InitGlobalLogger initializes the global Log variable.
// Console output always goes to stderr. When outputPath is set, every enabled level is
// additionally written to a daily rotated file under outputPath.
func InitGlobalLogger(outputPath string, verbose bool, defaultLevel logrus.Level) error {
	currentLogLevel := defaultLevel
	if verbose {
		currentLogLevel = logrus.DebugLevel
	}
	logger := newConsoleLogger(consoleOutput, currentLogLevel, verbose)

	if outputPath != "" {
		if err := os.MkdirAll(outputPath, common.FileMode0755); err != nil {
			return fmt.Errorf("failed to create log output directory %s: %w", outputPath, err)
		}
		logFilePath := filepath.Join(outputPath, common.AppName+".log")

		writer, err := rotatelogs.New(
			logFilePath+".%Y%m%d",
			rotatelogs.WithLinkName(logFilePath),
			rotatelogs.WithMaxAge(7*24*time.Hour),
			rotatelogs.WithRotationTime(24*time.Hour),
		)
		if err != nil {
			return fmt.Errorf("failed to initialize rotatelogs for %s: %w", logFilePath, err)
		}

		logger.SetReportCaller(true)
		fileFormatter := &Formatter{
			TimestampFormat:        "2006-01-02 15:04:05.000 MST",
			NoColors:               true,
			DisplayLevelName:       ShowAll,
			FieldsDisplayWithOrder: defaultFieldsOrder,
			FieldSeparator:         " | ",
			SensitiveKeys:          sensitiveKeys,
			CustomCallerFormatter: func(frame *runtime.Frame) string {
				return fmt.Sprintf(" [%s:%d %s]", filepath.Base(frame.File), frame.Line, filepath.Base(frame.Function))
			},
		}

		logWriters := lfshook.WriterMap{}
		for _, level := range logrus.AllLevels {
			if logger.IsLevelEnabled(level) {
				logWriters[level] = writer
			}
		}
		if len(logWriters) > 0 {
			logger.Hooks.Add(lfshook.NewHook(logWriters, fileFormatter))
		}
	}

	Log = &XMLog{Logger: logger}
	return nil
}

// ParseLevel converts a level name, falling back to info on unknown names.
func ParseLevel(name string) (logrus.Level, error) {
	level, err := logrus.ParseLevel(name)
	if err != nil {
		return logrus.InfoLevel, fmt.Errorf("invalid log level %q: %w", name, err)
	}
	return level, nil
}

// ForCommand returns an entry scoped to one remote command on one host.
func (xl *XMLog) ForCommand(host, transport, command string) *logrus.Entry {
	return xl.Logger.WithFields(logrus.Fields{
		common.HostName:      host,
		common.TransportName: transport,
		common.CommandName:   command,
	})
}

// ForHost returns an entry scoped to a host, used by maintenance commands.
func (xl *XMLog) ForHost(host string) *logrus.Entry {
	return xl.Logger.WithField(common.HostName, host)
}

// ErrorfHost logs err against host at error level.
func (xl *XMLog) ErrorfHost(host string, err error, format string, args ...interface{}) {
	entry := xl.ForHost(host)
	if err != nil {
		entry = entry.WithError(err)
	}
	entry.Errorf(format, args...)
}
