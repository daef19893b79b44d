package log

import (
	"bytes"
	"testing"

	"github.com/kataras/golog"
	"github.com/stretchr/testify/assert"
)

func newBufferedGolog() (*golog.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	glogger := golog.New()
	glogger.SetOutput(&buf)
	return glogger, &buf
}

func TestNewGologLogger(t *testing.T) {
	logger := NewGologLogger(golog.New())

	assert.NotNil(t, logger)
	assert.Equal(t, LogLevelInfo, logger.Level())
}

func TestGologLogger_LevelControl(t *testing.T) {
	logger := NewGologLogger(golog.New())

	for _, level := range []LogLevel{LogLevelDebug, LogLevelWarn, LogLevelError, LogLevelNone} {
		logger.SetLevel(level)
		assert.Equal(t, level, logger.Level())
	}
}

func TestGologLogger_FormatsMessages(t *testing.T) {
	glogger, buf := newBufferedGolog()
	logger := NewGologLogger(glogger)
	logger.SetLevel(LogLevelDebug)

	logger.Debug("superstep %d", 3)
	logger.Info("node %s done", "draft")
	logger.Warn("thread %q superseded", "t-1")
	logger.Error("failed: %v", assert.AnError)

	out := buf.String()
	assert.Contains(t, out, "superstep 3")
	assert.Contains(t, out, "node draft done")
	assert.Contains(t, out, `thread "t-1" superseded`)
	assert.Contains(t, out, assert.AnError.Error())
}

func TestGologLogger_LevelFiltering(t *testing.T) {
	glogger, buf := newBufferedGolog()
	logger := NewGologLogger(glogger)
	logger.SetLevel(LogLevelError)

	logger.Debug("hidden debug")
	logger.Info("hidden info")
	logger.Warn("hidden warn")
	logger.Error("shown error")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "shown error")
}

func TestGologLogger_NilUsesDefault(t *testing.T) {
	logger := NewGologLogger(nil)
	assert.Same(t, golog.Default, logger.logger)
	assert.Equal(t, LogLevelInfo, logger.Level())
}

func TestGologLogger_UnknownLevel(t *testing.T) {
	logger := NewGologLogger(golog.New())
	logger.SetLevel(LogLevel(42))
	assert.Equal(t, LogLevelInfo, logger.Level())
}
