package database

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Manager owns the sqlite connection and the repositories built on it.
type Manager struct {
	config Config
	log    *slog.Logger

	mutex     sync.RWMutex
	db        *sql.DB
	history   *HistoryRepository
	connected bool
}

// Open validates config, connects to the database and applies pending
// migrations.
func Open(ctx context.Context, config Config, logger *slog.Logger) (*Manager, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid database configuration: %w", err)
	}

	m := &Manager{
		config: config,
		log:    logger.With("component", "database"),
	}
	if err := m.connect(ctx); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Manager) connect(ctx context.Context) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	db, err := sql.Open("sqlite3", m.buildConnectionString())
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(m.config.MaxConnections)
	db.SetMaxIdleConns(max(m.config.MaxConnections/2, 1))
	db.SetConnMaxLifetime(time.Hour)

	pingCtx, cancel := context.WithTimeout(ctx, m.config.ConnectionTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	migrator := newMigrationManager(db, m.log)
	if err := migrator.Migrate(ctx); err != nil {
		db.Close()
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	m.db = db
	m.history = NewHistoryRepository(db)
	m.connected = true

	m.log.Info("database connected", "path", m.config.Path)
	return nil
}

// buildConnectionString builds the SQLite connection string with options
func (m *Manager) buildConnectionString() string {
	return fmt.Sprintf("file:%s?_journal_mode=WAL&_synchronous=%s&_busy_timeout=5000&_foreign_keys=on",
		m.config.Path, m.config.SynchronousMode)
}

// History returns the play history repository.
func (m *Manager) History() *HistoryRepository {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return m.history
}

// Stats reports row counts and the stored time range.
func (m *Manager) Stats(ctx context.Context) (*HistoryStats, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	if !m.connected {
		return nil, ErrDatabaseNotConnected
	}
	return m.history.Stats(ctx)
}

// Ping checks that the database is reachable.
func (m *Manager) Ping(ctx context.Context) error {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	if !m.connected {
		return ErrDatabaseNotConnected
	}
	return m.db.PingContext(ctx)
}

// Close closes the database connection.
func (m *Manager) Close() error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if !m.connected {
		return nil
	}
	m.connected = false
	if err := m.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	m.log.Info("database closed")
	return nil
}

// PruneHistory removes plays older than the configured retention.
func (m *Manager) PruneHistory(ctx context.Context, now time.Time) (int64, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	if !m.connected {
		return 0, ErrDatabaseNotConnected
	}

	removed, err := m.history.Prune(ctx, now.Add(-m.config.HistoryRetention))
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		m.log.Info("pruned play history", "removed", removed, "retention", m.config.HistoryRetention)
	}
	return removed, nil
}
