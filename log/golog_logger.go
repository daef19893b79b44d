package log

import (
	"github.com/kataras/golog"
)

// gologLevels maps each LogLevel to golog's level name.
var gologLevels = map[LogLevel]string{
	LogLevelDebug: "debug",
	LogLevelInfo:  "info",
	LogLevelWarn:  "warn",
	LogLevelError: "error",
	LogLevelNone:  "disable",
}

// GologLogger routes graph and store messages to a kataras/golog logger.
// Filtering happens on both sides so a shared golog.Logger can stay at a
// lower level for the rest of the application.
type GologLogger struct {
	logger *golog.Logger
	level  level
}

var _ Logger = (*GologLogger)(nil)

// NewGologLogger wraps logger at info level. A nil logger uses golog.Default.
func NewGologLogger(logger *golog.Logger) *GologLogger {
	if logger == nil {
		logger = golog.Default
	}
	l := &GologLogger{logger: logger}
	l.SetLevel(LogLevelInfo)
	return l
}

func (l *GologLogger) Debug(format string, v ...any) {
	if l.level.enabled(LogLevelDebug) {
		l.logger.Debugf(format, v...)
	}
}

func (l *GologLogger) Info(format string, v ...any) {
	if l.level.enabled(LogLevelInfo) {
		l.logger.Infof(format, v...)
	}
}

func (l *GologLogger) Warn(format string, v ...any) {
	if l.level.enabled(LogLevelWarn) {
		l.logger.Warnf(format, v...)
	}
}

func (l *GologLogger) Error(format string, v ...any) {
	if l.level.enabled(LogLevelError) {
		l.logger.Errorf(format, v...)
	}
}

// SetLevel sets the wrapper's level and the golog logger's to match.
// Unknown levels fall back to info.
func (l *GologLogger) SetLevel(lv LogLevel) {
	name, ok := gologLevels[lv]
	if !ok {
		lv, name = LogLevelInfo, "info"
	}
	l.level.set(lv)
	l.logger.SetLevel(name)
}

// Level returns the wrapper's current level.
func (l *GologLogger) Level() LogLevel {
	return l.level.get()
}
