package database

import "errors"

// Database configuration errors
var (
	ErrInvalidDatabasePath      = errors.New("invalid database path")
	ErrInvalidMaxConnections    = errors.New("invalid max connections")
	ErrInvalidConnectionTimeout = errors.New("invalid connection timeout")
	ErrInvalidHistoryRetention  = errors.New("invalid history retention")
	ErrInvalidSynchronousMode   = errors.New("invalid synchronous mode")
	ErrInvalidBatchSize         = errors.New("invalid recorder batch size")
)

// Database operation errors
var (
	ErrDatabaseNotConnected = errors.New("database not connected")
	ErrMigrationFailed      = errors.New("migration failed")
	ErrChecksumMismatch     = errors.New("migration checksum mismatch")
)

// Recorder errors
var (
	ErrRecorderStopped    = errors.New("history recorder is stopped")
	ErrRecorderBufferFull = errors.New("history recorder buffer is full")
)
