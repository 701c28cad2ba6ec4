// Package database provides the storage-backend abstraction shared by the
// queue, subscription registry and journal: a pluggable SQL connection
// manager on top of GORM, used by pkg/queue, pkg/subscription and
// pkg/journal for their durable row stores.
package database

import (
	"context"
	"time"

	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/nickmkk/Platibus/pkg/logger"
)

// Supported SQL drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// DB is implemented by each driver adapter (postgres, sqlite). It hands out
// a request-scoped *gorm.DB bound to ctx.
type DB interface {
	// Get returns the primary database connection, scoped to ctx.
	Get(ctx context.Context) *gorm.DB

	// GetShard returns the connection responsible for the given shard key.
	// The reference adapters are single-instance and simply return the
	// primary connection; the seam exists so a future sharded adapter
	// can be dropped in without touching callers.
	GetShard(ctx context.Context, key string) (*gorm.DB, error)

	// Close releases all database connections.
	Close() error
}

// gormLogAdapter bridges GORM's logger interface to pkg/logger's slog
// handler so every SQL statement is correlated with the calling trace.
type gormLogAdapter struct {
	slowThreshold time.Duration
}

// NewGORMLogger returns a GORM logger.Interface that writes through
// pkg/logger instead of GORM's default stdout writer.
func NewGORMLogger() gormlogger.Interface {
	return &gormLogAdapter{slowThreshold: 200 * time.Millisecond}
}

func (l *gormLogAdapter) LogMode(gormlogger.LogLevel) gormlogger.Interface { return l }

func (l *gormLogAdapter) Info(ctx context.Context, msg string, args ...interface{}) {
	logger.L().InfoContext(ctx, msg, "args", args)
}

func (l *gormLogAdapter) Warn(ctx context.Context, msg string, args ...interface{}) {
	logger.L().WarnContext(ctx, msg, "args", args)
}

func (l *gormLogAdapter) Error(ctx context.Context, msg string, args ...interface{}) {
	logger.L().ErrorContext(ctx, msg, "args", args)
}

func (l *gormLogAdapter) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	elapsed := time.Since(begin)
	sql, rows := fc()
	if err != nil {
		logger.L().ErrorContext(ctx, "sql error", "sql", sql, "rows", rows, "elapsed", elapsed, "error", err)
		return
	}
	if elapsed > l.slowThreshold {
		logger.L().WarnContext(ctx, "slow sql", "sql", sql, "rows", rows, "elapsed", elapsed)
		return
	}
	logger.L().DebugContext(ctx, "sql", "sql", sql, "rows", rows, "elapsed", elapsed)
}
