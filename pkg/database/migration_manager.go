package database

import (
	"context"
	"crypto/md5"
	"database/sql"
	"fmt"
	"log/slog"
	"time"
)

// migrationScript represents a single schema migration
type migrationScript struct {
	Version     int
	Name        string
	Description string
	SQL         string
}

// migrations are applied in order. Never edit an applied script; append a
// new version instead.
var migrations = []migrationScript{
	{
		Version:     1,
		Name:        "play_history",
		Description: "Tracks started in each voice channel",
		SQL: `
			CREATE TABLE IF NOT EXISTS play_history (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				guild_id TEXT NOT NULL,
				channel_id TEXT NOT NULL,
				title TEXT NOT NULL,
				artist TEXT NOT NULL DEFAULT '',
				locator TEXT NOT NULL,
				played_at DATETIME NOT NULL
			);
			CREATE INDEX IF NOT EXISTS idx_play_history_channel ON play_history(channel_id, played_at);
		`,
	},
	{
		Version:     2,
		Name:        "play_history_retention",
		Description: "Index for retention pruning",
		SQL: `
			CREATE INDEX IF NOT EXISTS idx_play_history_played_at ON play_history(played_at);
		`,
	},
}

// migrationManager applies the schema migrations and records them in
// schema_migrations.
type migrationManager struct {
	db         *sql.DB
	log        *slog.Logger
	migrations []migrationScript
}

func newMigrationManager(db *sql.DB, logger *slog.Logger) *migrationManager {
	return &migrationManager{db: db, log: logger, migrations: migrations}
}

// initializeMigrationTable creates the migration tracking table
func (mm *migrationManager) initializeMigrationTable(ctx context.Context) error {
	query := `
	CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		description TEXT,
		checksum TEXT NOT NULL,
		applied_at DATETIME NOT NULL
	)
	`
	if _, err := mm.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to create schema_migrations table: %w", err)
	}
	return nil
}

// CurrentVersion returns the current schema version
func (mm *migrationManager) CurrentVersion(ctx context.Context) (int, error) {
	var version int
	err := mm.db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("failed to get current version: %w", err)
	}
	return version, nil
}

// LatestVersion returns the latest available migration version
func (mm *migrationManager) LatestVersion() int {
	latest := 0
	for _, m := range mm.migrations {
		latest = max(latest, m.Version)
	}
	return latest
}

// Migrate verifies applied migrations and runs all pending ones
func (mm *migrationManager) Migrate(ctx context.Context) error {
	if err := mm.initializeMigrationTable(ctx); err != nil {
		return err
	}

	current, err := mm.CurrentVersion(ctx)
	if err != nil {
		return err
	}

	for _, m := range mm.migrations {
		if m.Version <= current {
			if err := mm.validateChecksum(ctx, m); err != nil {
				return err
			}
			continue
		}
		if err := mm.runMigration(ctx, m); err != nil {
			return fmt.Errorf("%w: version %d (%s): %v", ErrMigrationFailed, m.Version, m.Name, err)
		}
		mm.log.Info("applied migration", "version", m.Version, "name", m.Name)
	}

	if current >= mm.LatestVersion() {
		mm.log.Debug("database is up to date", "version", current)
	}
	return nil
}

// runMigration runs a single migration in a transaction
func (mm *migrationManager) runMigration(ctx context.Context, m migrationScript) error {
	tx, err := mm.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, m.SQL); err != nil {
		return fmt.Errorf("failed to execute migration SQL: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO schema_migrations (version, name, description, checksum, applied_at)
		VALUES (?, ?, ?, ?, ?)
	`, m.Version, m.Name, m.Description, checksum(m.SQL), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to update migration tracking: %w", err)
	}

	return tx.Commit()
}

func (mm *migrationManager) validateChecksum(ctx context.Context, m migrationScript) error {
	var stored string
	err := mm.db.QueryRowContext(ctx, "SELECT checksum FROM schema_migrations WHERE version = ?", m.Version).Scan(&stored)
	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read checksum for migration %d: %w", m.Version, err)
	}
	if stored != checksum(m.SQL) {
		return fmt.Errorf("%w: version %d (%s)", ErrChecksumMismatch, m.Version, m.Name)
	}
	return nil
}

// checksum calculates the MD5 checksum of migration SQL
func checksum(sql string) string {
	return fmt.Sprintf("%x", md5.Sum([]byte(sql)))
}
