package repositories

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/desertthunder/cassette/internal/models"
	"github.com/desertthunder/cassette/internal/shared"
)

// MaxRecentTracks bounds the listening history.
const MaxRecentTracks = 100

// RecentRepository stores the listening history.
type RecentRepository struct {
	db *sql.DB
}

// NewRecentRepository creates a new RecentRepository with the given database connection
func NewRecentRepository(db *sql.DB) *RecentRepository {
	return &RecentRepository{db: db}
}

// Add records a play and trims the history to [MaxRecentTracks] entries.
func (r *RecentRepository) Add(entry models.RecentTrack) error {
	if entry.TrackID <= 0 {
		return fmt.Errorf("%w: recent track requires a positive id", shared.ErrInvalidInput)
	}
	if entry.PlayedAt.IsZero() {
		entry.PlayedAt = time.Now()
	}

	sequence, err := NextSequence(r.db, "recent_tracks")
	if err != nil {
		return fmt.Errorf("failed to generate sequence: %w", err)
	}

	_, err = r.db.Exec(`
		INSERT INTO recent_tracks (id, sequence, track_id, title, artist, context_type, context_id, played_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, shared.GenerateID(), sequence, entry.TrackID, entry.Title, entry.Artist, string(entry.ContextType), entry.ContextID, entry.PlayedAt)
	if err != nil {
		return fmt.Errorf("failed to insert recent track: %w", err)
	}

	_, err = r.db.Exec(`
		DELETE FROM recent_tracks
		WHERE sequence <= (SELECT value FROM recent_tracks_sequence WHERE id = 1) - ?
	`, MaxRecentTracks)
	if err != nil {
		return fmt.Errorf("failed to trim recent tracks: %w", err)
	}
	return nil
}

// List returns up to limit entries, newest first. A non-positive limit returns everything kept.
func (r *RecentRepository) List(limit int) ([]models.RecentTrack, error) {
	if limit <= 0 {
		limit = MaxRecentTracks
	}

	rows, err := r.db.Query(`
		SELECT track_id, title, artist, context_type, context_id, played_at
		FROM recent_tracks
		ORDER BY sequence DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent tracks: %w", err)
	}
	defer rows.Close()

	var out []models.RecentTrack
	for rows.Next() {
		var (
			entry       models.RecentTrack
			contextType string
		)
		if err := rows.Scan(&entry.TrackID, &entry.Title, &entry.Artist, &contextType, &entry.ContextID, &entry.PlayedAt); err != nil {
			return nil, fmt.Errorf("failed to scan recent track: %w", err)
		}
		entry.ContextType = models.ContextType(contextType)
		out = append(out, entry)
	}
	return out, rows.Err()
}
