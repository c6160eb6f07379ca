package logger

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
	gormlogger "gorm.io/gorm/logger"
)

// gormSlowThreshold flags queries that should never be slow on two
// indexed tables of this size.
const gormSlowThreshold = 200 * time.Millisecond

// GormLogger routes gorm output through the request-scoped zap logger.
// It runs at Warn: the request middleware already logs every call, so
// only failed and slow queries surface here. Record-not-found is the
// normal miss path for account and intent lookups and is not an error.
type GormLogger struct {
	level gormlogger.LogLevel
}

func NewGormLogger() *GormLogger {
	return &GormLogger{level: gormlogger.Warn}
}

func (l *GormLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	clone := *l
	clone.level = level
	return &clone
}

func (l *GormLogger) Info(ctx context.Context, msg string, data ...interface{}) {
	if l.level >= gormlogger.Info {
		FromContext(ctx).Sugar().Infof(msg, data...)
	}
}

func (l *GormLogger) Warn(ctx context.Context, msg string, data ...interface{}) {
	if l.level >= gormlogger.Warn {
		FromContext(ctx).Sugar().Warnf(msg, data...)
	}
}

func (l *GormLogger) Error(ctx context.Context, msg string, data ...interface{}) {
	if l.level >= gormlogger.Error {
		FromContext(ctx).Sugar().Errorf(msg, data...)
	}
}

func (l *GormLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.level <= gormlogger.Silent {
		return
	}

	elapsed := time.Since(begin)
	switch {
	case err != nil && l.level >= gormlogger.Error && !errors.Is(err, gormlogger.ErrRecordNotFound):
		FromContext(ctx).Error("query failed", queryFields(fc, elapsed, err)...)
	case elapsed > gormSlowThreshold && l.level >= gormlogger.Warn:
		FromContext(ctx).Warn("slow query", queryFields(fc, elapsed, nil)...)
	case l.level >= gormlogger.Info:
		FromContext(ctx).Debug("query", queryFields(fc, elapsed, nil)...)
	}
}

func queryFields(fc func() (string, int64), elapsed time.Duration, err error) []zap.Field {
	sql, rows := fc()
	fields := []zap.Field{
		zap.String("component", "gorm"),
		zap.String("sql", strings.TrimSpace(sql)),
		zap.Int64("rows_affected", rows),
		zap.Int64("duration_ms", elapsed.Milliseconds()),
	}
	if err != nil {
		fields = append(fields, zap.Error(err))
	}
	return fields
}

var _ gormlogger.Interface = (*GormLogger)(nil)
