package log

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync/atomic"
)

const prefix = "[stategraph] "

// LogLevel is the minimum severity a logger emits.
type LogLevel int

const (
	// LogLevelDebug adds per-superstep and per-node detail.
	LogLevelDebug LogLevel = iota
	// LogLevelInfo reports pauses and resumes of threads.
	LogLevelInfo
	// LogLevelWarn reports compile warnings and superseded interrupts.
	LogLevelWarn
	// LogLevelError reports failed supersteps.
	LogLevelError
	// LogLevelNone silences the logger.
	LogLevelNone
)

// Logger is what CompiledGraph and the stores log through. Messages are
// printf-style and may be emitted from concurrently running nodes.
type Logger interface {
	Debug(format string, v ...any)
	Info(format string, v ...any)
	Warn(format string, v ...any)
	Error(format string, v ...any)
}

// level is a LogLevel that can be changed while a graph is running.
type level struct{ v atomic.Int32 }

func (l *level) get() LogLevel { return LogLevel(l.v.Load()) }
func (l *level) set(lv LogLevel) { l.v.Store(int32(lv)) }
func (l *level) enabled(lv LogLevel) bool { return lv >= l.get() && lv < LogLevelNone }

// DefaultLogger writes through the standard library logger, one line per
// message tagged with its severity.
type DefaultLogger struct {
	logger *log.Logger
	level  level
}

// NewDefaultLogger logs to stderr.
func NewDefaultLogger(lv LogLevel) *DefaultLogger {
	return NewCustomLogger(os.Stderr, lv)
}

// NewCustomLogger logs to out.
func NewCustomLogger(out io.Writer, lv LogLevel) *DefaultLogger {
	l := &DefaultLogger{logger: log.New(out, prefix, log.LstdFlags)}
	l.level.set(lv)
	return l
}

func (l *DefaultLogger) printf(lv LogLevel, format string, v ...any) {
	if l.level.enabled(lv) {
		l.logger.Printf("["+lv.String()+"] "+format, v...)
	}
}

func (l *DefaultLogger) Debug(format string, v ...any) { l.printf(LogLevelDebug, format, v...) }
func (l *DefaultLogger) Info(format string, v ...any) { l.printf(LogLevelInfo, format, v...) }
func (l *DefaultLogger) Warn(format string, v ...any) { l.printf(LogLevelWarn, format, v...) }
func (l *DefaultLogger) Error(format string, v ...any) { l.printf(LogLevelError, format, v...) }

// Level returns the minimum level the logger emits.
func (l *DefaultLogger) Level() LogLevel {
	return l.level.get()
}

// SetLevel changes the minimum level. Safe to call during a run.
func (l *DefaultLogger) SetLevel(lv LogLevel) {
	l.level.set(lv)
}

// NoOpLogger discards everything. Tests compile graphs with it.
type NoOpLogger struct{}

func (*NoOpLogger) Debug(string, ...any) {}
func (*NoOpLogger) Info(string, ...any) {}
func (*NoOpLogger) Warn(string, ...any) {}
func (*NoOpLogger) Error(string, ...any) {}

func (l LogLevel) String() string {
	switch l {
	case LogLevelDebug:
		return "DEBUG"
	case LogLevelInfo:
		return "INFO"
	case LogLevelWarn:
		return "WARN"
	case LogLevelError:
		return "ERROR"
	case LogLevelNone:
		return "NONE"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", l)
	}
}

// ParseLevel converts a level name such as "debug" or "WARN" to a LogLevel.
// "off" and "disable" are accepted for LogLevelNone.
func ParseLevel(name string) (LogLevel, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return LogLevelDebug, nil
	case "info", "":
		return LogLevelInfo, nil
	case "warn", "warning":
		return LogLevelWarn, nil
	case "error":
		return LogLevelError, nil
	case "none", "off", "disable":
		return LogLevelNone, nil
	default:
		return LogLevelInfo, fmt.Errorf("unknown log level %q", name)
	}
}

type holder struct{ logger Logger }

// defaultLogger is what graphs compiled without WithLogger use.
var defaultLogger atomic.Pointer[holder]

func init() {
	defaultLogger.Store(&holder{logger: NewDefaultLogger(LogLevelInfo)})
}

// SetDefaultLogger replaces the package-level logger. Graphs pick it up at
// Compile, so set it before compiling. A nil logger disables logging.
func SetDefaultLogger(logger Logger) {
	if logger == nil {
		logger = &NoOpLogger{}
	}
	defaultLogger.Store(&holder{logger: logger})
}

// GetDefaultLogger returns the package-level logger.
func GetDefaultLogger() Logger {
	return defaultLogger.Load().logger
}

// SetLogLevel installs a stderr DefaultLogger at the given level.
func SetLogLevel(lv LogLevel) {
	SetDefaultLogger(NewDefaultLogger(lv))
}

func Debug(format string, v ...any) { GetDefaultLogger().Debug(format, v...) }
func Info(format string, v ...any) { GetDefaultLogger().Info(format, v...) }
func Warn(format string, v ...any) { GetDefaultLogger().Warn(format, v...) }
func Error(format string, v ...any) { GetDefaultLogger().Error(format, v...) }
