// Package database provides PostgreSQL connection management with lifecycle coordination.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/JaimeStill/curator/pkg/lifecycle"
)

// System manages database connections and lifecycle coordination.
type System interface {
	// Connection returns the underlying database connection pool.
	Connection() *sql.DB
	// Start registers startup and shutdown hooks with the lifecycle coordinator.
	// The startup hook retries the initial ping until the database answers.
	Start(lc *lifecycle.Coordinator) error
	// Ready reports whether the initial ping has succeeded.
	Ready() bool
}

type database struct {
	conn          *sql.DB
	logger        *slog.Logger
	connTimeout   time.Duration
	retryInterval time.Duration
	maxAttempts   int
	ready         atomic.Bool
}

// New creates a database system with the given configuration.
// sql.Open validates the DSN and configures the pool; no connection
// is made until Start runs its startup hook.
func New(cfg *Config, logger *slog.Logger) (System, error) {
	db, err := sql.Open("pgx", cfg.Dsn())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetimeDuration())

	return &database{
		conn:          db,
		logger:        logger.With("system", "database"),
		connTimeout:   cfg.ConnTimeoutDuration(),
		retryInterval: cfg.RetryIntervalDuration(),
		maxAttempts:   max(cfg.MaxAttempts, 1),
	}, nil
}

func (d *database) Connection() *sql.DB {
	return d.conn
}

func (d *database) Ready() bool {
	return d.ready.Load()
}

func (d *database) Start(lc *lifecycle.Coordinator) error {
	d.logger.Info("starting database connection")

	lc.OnStartup(func() {
		if err := d.waitAvailable(lc.Context()); err != nil {
			d.logger.Error("database unavailable", "error", err)
			return
		}
		d.ready.Store(true)
		d.logger.Info("database connection established")
	})

	lc.OnShutdown(func() {
		<-lc.Context().Done()
		d.logger.Info("closing database connection")

		if err := d.conn.Close(); err != nil {
			d.logger.Error("database close failed", "error", err)
			return
		}

		d.logger.Info("database connection closed")
	})

	return nil
}

func (d *database) waitAvailable(ctx context.Context) error {
	var err error
	for attempt := 1; attempt <= d.maxAttempts; attempt++ {
		pingCtx, cancel := context.WithTimeout(ctx, d.connTimeout)
		err = d.conn.PingContext(pingCtx)
		cancel()

		if err == nil {
			return nil
		}

		d.logger.Warn("waiting for database",
			"attempt", attempt,
			"max_attempts", d.maxAttempts,
			"error", err,
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(d.retryInterval):
		}
	}
	return fmt.Errorf("%w after %d attempts: %w", ErrNotReady, d.maxAttempts, err)
}
