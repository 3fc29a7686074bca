package repositories

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/desertthunder/cassette/internal/models"
	"github.com/desertthunder/cassette/internal/shared"
)

// DownloadRepository stores the two download record formats.
//
// track_downloads is the per-track record kept for saved tracks. downloaded_tracks is
// the older table that also carries the track metadata and the download uuid.
type DownloadRepository struct {
	db *sql.DB
}

// NewDownloadRepository creates a new DownloadRepository with the given database connection
func NewDownloadRepository(db *sql.DB) *DownloadRepository {
	return &DownloadRepository{db: db}
}

// UpsertTrackDownload writes the per-track download record. Last writer wins.
func (r *DownloadRepository) UpsertTrackDownload(d models.TrackDownload) error {
	if err := d.Validate(); err != nil {
		return fmt.Errorf("%w: %v", shared.ErrInvalidInput, err)
	}
	if d.UpdatedAt.IsZero() {
		d.UpdatedAt = time.Now()
	}

	query := `
		INSERT INTO track_downloads (track_id, file_url, download_path, quality, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (track_id) DO UPDATE SET
			file_url = excluded.file_url,
			download_path = excluded.download_path,
			quality = excluded.quality,
			updated_at = excluded.updated_at
	`

	if _, err := r.db.Exec(query, d.TrackID, d.FileURL, d.DownloadPath, string(d.Quality), d.UpdatedAt); err != nil {
		return fmt.Errorf("failed to upsert track download: %w", err)
	}
	return nil
}

// GetTrackDownload returns the per-track download record.
func (r *DownloadRepository) GetTrackDownload(trackID int64) (*models.TrackDownload, error) {
	var (
		d       models.TrackDownload
		quality string
	)
	err := r.db.QueryRow(`
		SELECT track_id, file_url, download_path, quality, updated_at
		FROM track_downloads WHERE track_id = ?
	`, trackID).Scan(&d.TrackID, &d.FileURL, &d.DownloadPath, &quality, &d.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: no download record for track %d", shared.ErrTrackNotFound, trackID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan track download: %w", err)
	}
	d.Quality = models.ParseQuality(quality)
	return &d, nil
}

// UpsertDownloadedTrack writes a row of the older downloaded-tracks table. Last writer wins.
func (r *DownloadRepository) UpsertDownloadedTrack(d models.DownloadedTrack) error {
	if err := d.Validate(); err != nil {
		return fmt.Errorf("%w: %v", shared.ErrInvalidInput, err)
	}
	if d.DownloadedAt.IsZero() {
		d.DownloadedAt = time.Now()
	}

	record, err := json.Marshal(d.Track.Raw)
	if err != nil {
		return fmt.Errorf("failed to encode record: %w", err)
	}

	query := `
		INSERT INTO downloaded_tracks (track_id, uuid, title, artist, record, file_url, download_path, quality, downloaded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (track_id) DO UPDATE SET
			uuid = excluded.uuid,
			title = excluded.title,
			artist = excluded.artist,
			record = excluded.record,
			file_url = excluded.file_url,
			download_path = excluded.download_path,
			quality = excluded.quality,
			downloaded_at = excluded.downloaded_at
	`

	_, err = r.db.Exec(query,
		d.Track.ID,
		d.UUID,
		d.Track.Title,
		d.Track.Artist,
		string(record),
		d.FileURL,
		d.DownloadPath,
		string(d.Quality),
		d.DownloadedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert downloaded track: %w", err)
	}
	return nil
}

// GetDownloadedTrack returns a row of the older downloaded-tracks table.
func (r *DownloadRepository) GetDownloadedTrack(trackID int64) (*models.DownloadedTrack, error) {
	var (
		d       models.DownloadedTrack
		record  string
		quality string
	)
	err := r.db.QueryRow(`
		SELECT track_id, uuid, title, artist, record, file_url, download_path, quality, downloaded_at
		FROM downloaded_tracks WHERE track_id = ?
	`, trackID).Scan(&d.Track.ID, &d.UUID, &d.Track.Title, &d.Track.Artist, &record, &d.FileURL, &d.DownloadPath, &quality, &d.DownloadedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: track %d is not in downloaded tracks", shared.ErrTrackNotFound, trackID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan downloaded track: %w", err)
	}

	d.Quality = models.ParseQuality(quality)
	if record != "" {
		raw := models.Record{}
		if err := json.Unmarshal([]byte(record), &raw); err == nil {
			d.Track.Raw = raw
		}
	}
	return &d, nil
}

// IsDownloaded reports whether either table holds a record for trackID.
func (r *DownloadRepository) IsDownloaded(trackID int64) (bool, error) {
	var n int
	err := r.db.QueryRow(`
		SELECT (SELECT COUNT(*) FROM track_downloads WHERE track_id = ?)
		     + (SELECT COUNT(*) FROM downloaded_tracks WHERE track_id = ?)
	`, trackID, trackID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to query downloads: %w", err)
	}
	return n > 0, nil
}

// Delete removes every download record of trackID and reports whether any existed.
func (r *DownloadRepository) Delete(trackID int64) (bool, error) {
	var total int64
	for _, table := range []string{"track_downloads", "downloaded_tracks"} {
		result, err := r.db.Exec(fmt.Sprintf("DELETE FROM %s WHERE track_id = ?", table), trackID)
		if err != nil {
			return false, fmt.Errorf("failed to delete from %s: %w", table, err)
		}
		n, _ := result.RowsAffected()
		total += n
	}
	return total > 0, nil
}

// TrackIDsForPath returns the ids of tracks whose download lives at path.
func (r *DownloadRepository) TrackIDsForPath(path string) ([]int64, error) {
	rows, err := r.db.Query(`
		SELECT track_id FROM track_downloads WHERE download_path = ?
		UNION
		SELECT track_id FROM downloaded_tracks WHERE download_path = ?
	`, path, path)
	if err != nil {
		return nil, fmt.Errorf("failed to query download paths: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan track id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
