// Package logger provides the leveled logging utility used across chunkbatch.
// It wraps the standard `log` package and filters messages by a global log level.
package logger

import (
	"fmt"
	"io"
	"log"
	"strings"
	"sync/atomic"
)

// LogLevel is a type representing the logging level.
type LogLevel int32

const (
	// LevelDebug is used for detailed debugging information.
	LevelDebug LogLevel = iota
	// LevelInfo is used for general informational messages.
	LevelInfo
	// LevelWarn is used for potential issues.
	LevelWarn
	// LevelError is used for error messages.
	LevelError
	// LevelFatal is used for messages that terminate the application.
	LevelFatal
	// LevelSilent suppresses every message except Fatalf.
	LevelSilent
)

// logLevel holds the current global level. Runs execute in parallel goroutines, so it is atomic.
var logLevel atomic.Int32

func init() {
	logLevel.Store(int32(LevelInfo))
}

// ParseLogLevel converts a level name ("DEBUG", "INFO", "WARN", "ERROR", "FATAL", "SILENT")
// into a LogLevel. The second result is false for unknown names.
func ParseLogLevel(level string) (LogLevel, bool) {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case "DEBUG":
		return LevelDebug, true
	case "INFO":
		return LevelInfo, true
	case "WARN", "WARNING":
		return LevelWarn, true
	case "ERROR":
		return LevelError, true
	case "FATAL":
		return LevelFatal, true
	case "SILENT":
		return LevelSilent, true
	default:
		return LevelInfo, false
	}
}

// SetLogLevel sets the global log level.
// An unknown value falls back to INFO and prints a notice.
func SetLogLevel(level string) {
	lv, ok := ParseLogLevel(level)
	if !ok {
		fmt.Printf("Unknown log level '%s' specified. Defaulting to INFO level.\n", level)
	}
	logLevel.Store(int32(lv))
}

// GetLogLevel returns the current global log level.
func GetLogLevel() LogLevel {
	return LogLevel(logLevel.Load())
}

// SetOutput redirects log output. Mainly used by tests.
func SetOutput(w io.Writer) {
	log.SetOutput(w)
}

func enabled(level LogLevel) bool {
	return GetLogLevel() <= level
}

// Debugf formats and outputs a DEBUG level log message.
func Debugf(format string, v ...interface{}) {
	if enabled(LevelDebug) {
		log.Printf("[DEBUG] "+format, v...)
	}
}

// Infof formats and outputs an INFO level log message.
func Infof(format string, v ...interface{}) {
	if enabled(LevelInfo) {
		log.Printf("[INFO] "+format, v...)
	}
}

// Warnf formats and outputs a WARN level log message.
func Warnf(format string, v ...interface{}) {
	if enabled(LevelWarn) {
		log.Printf("[WARN] "+format, v...)
	}
}

// Errorf formats and outputs an ERROR level log message.
func Errorf(format string, v ...interface{}) {
	if enabled(LevelError) {
		log.Printf("[ERROR] "+format, v...)
	}
}

// Fatalf outputs a FATAL level log message and terminates the program with os.Exit(1).
func Fatalf(format string, v ...interface{}) {
	log.Fatalf("[FATAL] "+format, v...)
}
