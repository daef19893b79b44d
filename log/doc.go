// Package log provides the small leveled logging interface used across stategraph.
//
// The graph runtime and stores only depend on the Logger interface. Three
// implementations ship with the package:
//
//   - DefaultLogger: the standard library logger with a "[stategraph] " prefix
//   - GologLogger: an adapter for github.com/kataras/golog
//   - NoOpLogger: discards everything
//
// Levels, in increasing severity, are LogLevelDebug, LogLevelInfo,
// LogLevelWarn and LogLevelError; LogLevelNone disables output. ParseLevel
// turns configuration strings into a LogLevel:
//
//	level, err := log.ParseLevel(os.Getenv("STATEGRAPH_LOG_LEVEL"))
//	if err != nil {
//		return err
//	}
//	logger := log.NewDefaultLogger(level)
//
// A package-level logger backs the Debug, Info, Warn and Error helpers and is
// what compiled graphs use unless graph.WithLogger is given.
package log
