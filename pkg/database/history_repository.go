package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// HistoryRepository stores the tracks played in each voice channel.
type HistoryRepository struct {
	db *sql.DB
}

// NewHistoryRepository creates a repository on an already migrated db.
func NewHistoryRepository(db *sql.DB) *HistoryRepository {
	return &HistoryRepository{db: db}
}

const insertPlayRecord = `
	INSERT INTO play_history (guild_id, channel_id, title, artist, locator, played_at)
	VALUES (?, ?, ?, ?, ?, ?)
`

// Record stores one play and returns its row id.
func (r *HistoryRepository) Record(ctx context.Context, rec PlayRecord) (int64, error) {
	res, err := r.db.ExecContext(ctx, insertPlayRecord,
		rec.GuildID, rec.ChannelID, rec.Title, rec.Artist, rec.Locator, rec.PlayedAt.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to record play: %w", err)
	}
	return res.LastInsertId()
}

// RecordBatch stores records in a single transaction.
func (r *HistoryRepository) RecordBatch(ctx context.Context, recs []PlayRecord) error {
	if len(recs) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, insertPlayRecord)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, rec := range recs {
		if _, err := stmt.ExecContext(ctx,
			rec.GuildID, rec.ChannelID, rec.Title, rec.Artist, rec.Locator, rec.PlayedAt.UTC()); err != nil {
			return fmt.Errorf("failed to record play: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit plays: %w", err)
	}
	return nil
}

// Recent returns up to limit plays in channelID, newest first.
func (r *HistoryRepository) Recent(ctx context.Context, channelID string, limit int) ([]PlayRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, guild_id, channel_id, title, artist, locator, played_at
		FROM play_history
		WHERE channel_id = ?
		ORDER BY played_at DESC, id DESC
		LIMIT ?
	`, channelID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var records []PlayRecord
	for rows.Next() {
		var rec PlayRecord
		if err := rows.Scan(&rec.ID, &rec.GuildID, &rec.ChannelID, &rec.Title, &rec.Artist, &rec.Locator, &rec.PlayedAt); err != nil {
			return nil, fmt.Errorf("failed to scan history row: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating history: %w", err)
	}
	return records, nil
}

// Prune deletes plays older than before and returns how many were removed.
func (r *HistoryRepository) Prune(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, "DELETE FROM play_history WHERE played_at < ?", before.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to prune history: %w", err)
	}
	return res.RowsAffected()
}

// Stats reports row counts and the stored time range.
func (r *HistoryRepository) Stats(ctx context.Context) (*HistoryStats, error) {
	stats := &HistoryStats{}
	var oldest, newest sql.NullString
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COUNT(DISTINCT channel_id), MIN(played_at), MAX(played_at)
		FROM play_history
	`).Scan(&stats.TotalPlays, &stats.Channels, &oldest, &newest)
	if err != nil {
		return nil, fmt.Errorf("failed to read history stats: %w", err)
	}
	stats.Oldest = parseTimestamp(oldest)
	stats.Newest = parseTimestamp(newest)
	return stats, nil
}

// parseTimestamp reads an aggregate over a DATETIME column, which sqlite
// returns as text rather than a typed time.
func parseTimestamp(s sql.NullString) *time.Time {
	if !s.Valid {
		return nil
	}
	for _, layout := range []string{"2006-01-02 15:04:05.999999999-07:00", "2006-01-02T15:04:05.999999999-07:00", "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s.String); err == nil {
			return &t
		}
	}
	return nil
}
