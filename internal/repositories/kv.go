package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/cassette/internal/shared"
)

// KV is a durable key/value store of structured text.
//
// Get returns an error wrapping [shared.ErrKeyNotFound] for absent keys.
type KV interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// SQLiteKV implements [KV] on the kv table.
type SQLiteKV struct {
	db *sql.DB
}

// NewSQLiteKV creates a new SQLiteKV with the given database connection
func NewSQLiteKV(db *sql.DB) *SQLiteKV {
	return &SQLiteKV{db: db}
}

func (s *SQLiteKV) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("%w: %s", shared.ErrKeyNotFound, key)
	}
	if err != nil {
		return "", fmt.Errorf("failed to read key %s: %w", key, err)
	}
	return value, nil
}

func (s *SQLiteKV) Set(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, key, value, time.Now())
	if err != nil {
		return fmt.Errorf("failed to write key %s: %w", key, err)
	}
	return nil
}

func (s *SQLiteKV) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key); err != nil {
		return fmt.Errorf("failed to delete key %s: %w", key, err)
	}
	return nil
}

// OpenKV returns the backend selected by cfg. db is used for the sqlite backend.
func OpenKV(ctx context.Context, cfg shared.KVConfig, db *sql.DB, logger *log.Logger) (KV, error) {
	switch cfg.Backend {
	case "", "sqlite":
		return NewSQLiteKV(db), nil
	case "redis":
		kv := NewRedisKV(cfg)
		if err := kv.Ping(ctx); err != nil {
			return nil, err
		}
		if logger != nil {
			logger.Debug("connected to redis", "addr", cfg.RedisAddr, "db", cfg.RedisDB)
		}
		return kv, nil
	default:
		return nil, fmt.Errorf("%w: unknown kv backend %q", shared.ErrInvalidConfig, cfg.Backend)
	}
}
