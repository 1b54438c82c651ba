package storage

import (
	"context"
	"time"

	gormlogger "gorm.io/gorm/logger"

	"devpipe/internal/logger"
)

// GormLogger bridges the application logger into GORM.
type GormLogger struct {
	logger.Logger
	LogLevel gormlogger.LogLevel
}

// NewGormLogger creates a GormLogger around the application logger.
func NewGormLogger(l logger.Logger) *GormLogger {
	return &GormLogger{
		Logger:   l,
		LogLevel: gormlogger.Warn,
	}
}

// LogMode returns a copy at the given level.
func (l *GormLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	newLogger := *l
	newLogger.LogLevel = level
	return &newLogger
}

// Info logs at info level.
func (l *GormLogger) Info(_ context.Context, msg string, data ...any) {
	if l.LogLevel >= gormlogger.Info {
		l.Logger.Info(msg, kvPairs(data)...)
	}
}

// Warn logs at warn level.
func (l *GormLogger) Warn(_ context.Context, msg string, data ...any) {
	if l.LogLevel >= gormlogger.Warn {
		l.Logger.Warn(msg, kvPairs(data)...)
	}
}

// Error logs at error level.
func (l *GormLogger) Error(_ context.Context, msg string, data ...any) {
	if l.LogLevel >= gormlogger.Error {
		l.Logger.Error(msg, kvPairs(data)...)
	}
}

// Trace logs executed SQL.
func (l *GormLogger) Trace(_ context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.LogLevel <= gormlogger.Silent {
		return
	}

	elapsed := time.Since(begin)
	sql, rows := fc()
	fields := []any{
		"sql", sql,
		"rows", rows,
		"timeMs", float64(elapsed.Nanoseconds()) / 1e6,
	}

	switch {
	case err != nil && l.LogLevel >= gormlogger.Error:
		l.Logger.Error("sql error", append(fields, "error", err)...)
	case elapsed > time.Second && l.LogLevel >= gormlogger.Warn:
		l.Logger.Warn("slow sql query", append(fields, "threshold", "1s")...)
	case l.LogLevel == gormlogger.Info:
		l.Logger.Debug("sql trace", fields...)
	}
}

func kvPairs(data []any) []any {
	if len(data)%2 != 0 {
		return append(data, "")
	}
	return data
}
