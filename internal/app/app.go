// Package app wires configuration, storage and services together for the
// daemon and the MCP command.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/felixgeelhaar/progression/internal/config"
	"github.com/felixgeelhaar/progression/internal/ledger"
	"github.com/felixgeelhaar/progression/internal/practice"
	"github.com/felixgeelhaar/progression/internal/queue"
	"github.com/felixgeelhaar/progression/internal/storage/local"
	"github.com/felixgeelhaar/progression/internal/storage/postgres"
	"github.com/felixgeelhaar/progression/internal/storage/sqlite"
)

// App holds all application dependencies
type App struct {
	Config   *config.LocalConfig
	Ledger   *ledger.Service
	Practice *practice.Service

	// Health checks the backing store; nil when the driver is none.
	Health func(ctx context.Context) error

	logger   *slog.Logger
	conn     *queue.Connection
	consumer *queue.Consumer
	closers  []func() error
}

// stores is what a storage driver contributes to the App
type stores struct {
	ledger  ledger.Store
	history ledger.HistoryStore
	health  func(ctx context.Context) error
	close   func() error
}

// New opens the configured store and builds the ledger and practice
// services on top of it
func New(ctx context.Context, cfg *config.LocalConfig, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{Config: cfg, logger: logger}

	st, err := openStores(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if st.close != nil {
		a.closers = append(a.closers, st.close)
	}
	a.Health = st.health

	a.Ledger = ledger.NewService(st.ledger, st.history, ledger.Config{
		Retry: ledger.RetryConfig{
			MaxAttempts:  cfg.Ledger.MaxRetries,
			InitialDelay: cfg.Ledger.RetryInitial(),
			MaxDelay:     cfg.Ledger.RetryMax(),
		},
		OpTimeout: cfg.Ledger.OpTimeout(),
		Logger:    logger.With("component", "ledger"),
	})

	var history practice.HistoryReader
	if st.history != nil {
		history = st.history
	}
	a.Practice = practice.NewService(a.Ledger, history, practice.Config{
		HistoryWindow: cfg.Practice.HistoryWindow,
		Rotation:      cfg.Practice.Rotation,
		Logger:        logger.With("component", "practice"),
	})

	logger.Info("progression services ready",
		"storage", cfg.Storage.Driver,
		"configured", a.Ledger.Configured(),
		"max_retries", cfg.Ledger.MaxRetries,
	)
	return a, nil
}

func openStores(ctx context.Context, cfg *config.LocalConfig) (stores, error) {
	switch cfg.Storage.Driver {
	case config.DriverSQLite:
		path, err := cfg.SQLitePath()
		if err != nil {
			return stores{}, err
		}
		db, err := sqlite.Open(path)
		if err != nil {
			return stores{}, fmt.Errorf("open sqlite: %w", err)
		}
		if err := db.Migrate(ctx); err != nil {
			db.Close()
			return stores{}, fmt.Errorf("migrate sqlite: %w", err)
		}
		return stores{
			ledger:  sqlite.NewLedgerStore(db),
			history: sqlite.NewHistoryStore(db),
			health:  db.Health,
			close:   db.Close,
		}, nil

	case config.DriverPostgres:
		db, err := postgres.Connect(ctx, cfg.Storage.DatabaseURL, cfg.Storage.MaxConns)
		if err != nil {
			return stores{}, fmt.Errorf("connect postgres: %w", err)
		}
		if err := db.Migrate(ctx); err != nil {
			db.Close()
			return stores{}, fmt.Errorf("migrate postgres: %w", err)
		}
		return stores{
			ledger:  postgres.NewLedgerStore(db),
			history: postgres.NewHistoryStore(db),
			health:  db.Health,
			close: func() error {
				db.Close()
				return nil
			},
		}, nil

	case config.DriverLocal:
		path, err := cfg.LocalPath()
		if err != nil {
			return stores{}, err
		}
		store, err := local.NewStore(path)
		if err != nil {
			return stores{}, fmt.Errorf("open local store: %w", err)
		}
		return stores{
			ledger:  local.NewLedgerStore(store),
			history: local.NewHistoryStore(store),
		}, nil

	case config.DriverNone:
		return stores{}, nil
	}
	return stores{}, fmt.Errorf("%w: unknown storage driver %q", config.ErrInvalidConfig, cfg.Storage.Driver)
}

// StartQueue connects to RabbitMQ and starts the learning event consumer
// when the queue is enabled. Award notices are published back to the
// award queue.
func (a *App) StartQueue(ctx context.Context) error {
	if !a.Config.Queue.Enabled {
		return nil
	}

	conn, err := queue.NewConnection(a.Config.Queue.URL)
	if err != nil {
		return fmt.Errorf("connect queue: %w", err)
	}
	a.conn = conn

	dispatcher := queue.NewDispatcher(a.Ledger, queue.NewProducer(conn), a.logger.With("component", "dispatcher"))
	a.consumer = queue.NewConsumer(conn, dispatcher.Handle, queue.ConsumerConfig{
		Workers:  a.Config.Queue.Workers,
		Prefetch: a.Config.Queue.Prefetch,
	})
	if err := a.consumer.Start(ctx); err != nil {
		return fmt.Errorf("start consumer: %w", err)
	}
	return nil
}

// Close stops the consumer and releases storage handles
func (a *App) Close() error {
	var errs []error
	if a.consumer != nil {
		a.consumer.Stop()
	}
	if a.conn != nil {
		if err := a.conn.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close queue: %w", err))
		}
	}
	for _, c := range a.closers {
		if err := c(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
