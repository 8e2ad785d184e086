package gorm

import (
	"fmt"
	"strings"
	"time"

	gormlogger "gorm.io/gorm/logger"

	"github.com/tigerroll/chunkbatch/pkg/batch/support/util/logger"
)

// NewGormLogger creates a GORM logger that writes through the batch logger.
// SQL traces appear only when the batch logger runs at DEBUG.
func NewGormLogger(level logger.LogLevel) gormlogger.Interface {
	var gormLevel gormlogger.LogLevel
	switch level {
	case logger.LevelDebug:
		gormLevel = gormlogger.Info
	case logger.LevelInfo, logger.LevelWarn:
		gormLevel = gormlogger.Warn
	case logger.LevelError, logger.LevelFatal:
		gormLevel = gormlogger.Error
	default:
		gormLevel = gormlogger.Silent
	}

	return gormlogger.New(
		NewGormWriter(),
		gormlogger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  gormLevel,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
}

// GormWriter redirects GORM log output to the batch logger.
type GormWriter struct{}

// NewGormWriter creates a new instance of GormWriter.
func NewGormWriter() *GormWriter {
	return &GormWriter{}
}

// Printf implements gormlogger.Writer. Statement traces go to DEBUG, the rest to WARN.
func (w *GormWriter) Printf(format string, v ...interface{}) {
	msg := strings.TrimSpace(fmt.Sprintf(format, v...))
	if isStatementTrace(msg) {
		logger.Debugf("[GORM] %s", msg)
		return
	}
	logger.Warnf("[GORM] %s", msg)
}

func isStatementTrace(msg string) bool {
	if !strings.Contains(msg, "[") || !strings.Contains(msg, "]") {
		return false
	}
	upper := strings.ToUpper(msg)
	for _, verb := range []string{"SELECT", "INSERT", "UPDATE", "DELETE", "SAVEPOINT", "ROLLBACK"} {
		if strings.Contains(upper, verb) {
			return true
		}
	}
	return false
}
