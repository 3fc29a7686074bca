package repositories

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/desertthunder/cassette/internal/models"
	"github.com/desertthunder/cassette/internal/shared"
)

// SavedTrackRepository implements models.Repository[*models.SavedTrack] for liked tracks.
//
// Rows are unique per track id. Saving a track that was previously unsaved restores the
// soft-deleted row instead of inserting a duplicate.
type SavedTrackRepository struct {
	db *sql.DB
}

// NewSavedTrackRepository creates a new SavedTrackRepository with the given database connection
func NewSavedTrackRepository(db *sql.DB) *SavedTrackRepository {
	return &SavedTrackRepository{db: db}
}

const savedTrackColumns = `id, sequence, track_id, title, artist, duration, cover_url, record, created_at, updated_at, deleted_at`

// Create inserts a new [models.SavedTrack] with generated ID and sequence, or restores the soft-deleted row for the same track.
func (r *SavedTrackRepository) Create(track *models.SavedTrack) error {
	if err := track.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	sequence, err := NextSequence(r.db, "saved_tracks")
	if err != nil {
		return fmt.Errorf("failed to generate sequence: %w", err)
	}

	record, err := json.Marshal(track.Record())
	if err != nil {
		return fmt.Errorf("failed to encode record: %w", err)
	}

	id := shared.GenerateID()
	track.SetID(id)
	track.SetSequence(sequence)

	query := `
		INSERT INTO saved_tracks (id, sequence, track_id, title, artist, duration, cover_url, record, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (track_id) DO UPDATE SET
			sequence = excluded.sequence,
			title = excluded.title,
			artist = excluded.artist,
			duration = excluded.duration,
			cover_url = excluded.cover_url,
			record = excluded.record,
			updated_at = excluded.updated_at,
			deleted_at = NULL
	`

	_, err = r.db.Exec(query,
		id,
		sequence,
		track.TrackID(),
		track.Title(),
		track.Artist(),
		track.Duration(),
		track.CoverURL(),
		string(record),
		track.CreatedAt(),
		track.UpdatedAt(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert saved track: %w", err)
	}

	existing, err := r.GetByTrackID(track.TrackID())
	if err != nil {
		return err
	}
	track.SetID(existing.ID())
	return nil
}

// Get retrieves a saved track by row ID, excluding soft-deleted rows
func (r *SavedTrackRepository) Get(id string) (*models.SavedTrack, error) {
	query := `SELECT ` + savedTrackColumns + ` FROM saved_tracks WHERE id = ? AND deleted_at IS NULL`
	return r.scan(r.db.QueryRow(query, id))
}

// GetByTrackID retrieves a saved track by its catalog track id
func (r *SavedTrackRepository) GetByTrackID(trackID int64) (*models.SavedTrack, error) {
	query := `SELECT ` + savedTrackColumns + ` FROM saved_tracks WHERE track_id = ? AND deleted_at IS NULL`
	return r.scan(r.db.QueryRow(query, trackID))
}

// Exists reports whether trackID is currently saved
func (r *SavedTrackRepository) Exists(trackID int64) (bool, error) {
	var n int
	err := r.db.QueryRow(`SELECT COUNT(*) FROM saved_tracks WHERE track_id = ? AND deleted_at IS NULL`, trackID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to query saved track: %w", err)
	}
	return n > 0, nil
}

// Delete soft-deletes a saved track by row ID
func (r *SavedTrackRepository) Delete(id string) error {
	return r.softDelete(`WHERE id = ? AND deleted_at IS NULL`, id)
}

// DeleteByTrackID soft-deletes a saved track by its catalog track id
func (r *SavedTrackRepository) DeleteByTrackID(trackID int64) error {
	return r.softDelete(`WHERE track_id = ? AND deleted_at IS NULL`, trackID)
}

func (r *SavedTrackRepository) softDelete(where string, arg any) error {
	result, err := r.db.Exec(`UPDATE saved_tracks SET deleted_at = ? `+where, time.Now(), arg)
	if err != nil {
		return fmt.Errorf("failed to delete saved track: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: saved track %v", shared.ErrTrackNotFound, arg)
	}

	return nil
}

// List retrieves saved tracks matching the given criteria, excluding soft-deleted rows.
//
// Supported criteria: "artist" (exact match) and "limit" (int).
func (r *SavedTrackRepository) List(criteria map[string]any) ([]*models.SavedTrack, error) {
	query := `SELECT ` + savedTrackColumns + ` FROM saved_tracks WHERE deleted_at IS NULL`
	args := []any{}

	if artist, ok := criteria["artist"].(string); ok && artist != "" {
		query += " AND artist = ?"
		args = append(args, artist)
	}

	query += " ORDER BY sequence DESC"

	if limit, ok := criteria["limit"].(int); ok && limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query saved tracks: %w", err)
	}
	defer rows.Close()

	var tracks []*models.SavedTrack
	for rows.Next() {
		track, err := r.scan(rows)
		if err != nil {
			return nil, err
		}
		tracks = append(tracks, track)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return tracks, nil
}

type scanner interface {
	Scan(dest ...any) error
}

// scan reads a single row into a [models.SavedTrack]
func (r *SavedTrackRepository) scan(row scanner) (*models.SavedTrack, error) {
	var (
		id        string
		sequence  int
		trackID   int64
		title     string
		artist    string
		duration  float64
		coverURL  string
		record    string
		createdAt time.Time
		updatedAt time.Time
		deletedAt sql.NullTime
	)

	err := row.Scan(&id, &sequence, &trackID, &title, &artist, &duration, &coverURL, &record, &createdAt, &updatedAt, &deletedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: saved track", shared.ErrTrackNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan saved track: %w", err)
	}

	raw := models.Record{}
	if record != "" {
		if err := json.Unmarshal([]byte(record), &raw); err != nil {
			return nil, fmt.Errorf("failed to decode record for track %d: %w", trackID, err)
		}
	}

	track := models.NewSavedTrack(sequence, models.Track{
		ID:       trackID,
		Title:    title,
		Artist:   artist,
		Duration: duration,
		CoverURL: coverURL,
		Raw:      raw,
	})
	track.SetID(id)
	track.SetCreatedAt(createdAt)
	track.SetUpdatedAt(updatedAt)
	if deletedAt.Valid {
		track.SetDeletedAt(&deletedAt.Time)
	}

	return track, nil
}
