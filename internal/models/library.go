package models

import (
	"fmt"
	"time"
)

// SavedTrack is a liked/favorited track in the library.
type SavedTrack struct {
	id        string
	sequence  int
	trackID   int64
	title     string
	artist    string
	duration  float64
	coverURL  string
	record    Record
	createdAt time.Time
	updatedAt time.Time
	deletedAt *time.Time
}

// NewSavedTrack creates a SavedTrack from a descriptor.
func NewSavedTrack(sequence int, t Track) *SavedTrack {
	now := time.Now()
	return &SavedTrack{
		sequence:  sequence,
		trackID:   t.ID,
		title:     t.Title,
		artist:    t.Artist,
		duration:  t.Duration,
		coverURL:  t.CoverURL,
		record:    t.Raw,
		createdAt: now,
		updatedAt: now,
	}
}

func (s *SavedTrack) ID() string                { return s.id }
func (s *SavedTrack) Sequence() int             { return s.sequence }
func (s *SavedTrack) TrackID() int64            { return s.trackID }
func (s *SavedTrack) Title() string             { return s.title }
func (s *SavedTrack) Artist() string            { return s.artist }
func (s *SavedTrack) Duration() float64         { return s.duration }
func (s *SavedTrack) CoverURL() string          { return s.coverURL }
func (s *SavedTrack) Record() Record            { return s.record }
func (s *SavedTrack) CreatedAt() time.Time      { return s.createdAt }
func (s *SavedTrack) UpdatedAt() time.Time      { return s.updatedAt }
func (s *SavedTrack) DeletedAt() *time.Time     { return s.deletedAt }
func (s *SavedTrack) SetID(id string)           { s.id = id }
func (s *SavedTrack) SetSequence(n int)         { s.sequence = n }
func (s *SavedTrack) SetCreatedAt(t time.Time)  { s.createdAt = t }
func (s *SavedTrack) SetUpdatedAt(t time.Time)  { s.updatedAt = t }
func (s *SavedTrack) SetDeletedAt(t *time.Time) { s.deletedAt = t }

// Validate requires a positive track id.
func (s *SavedTrack) Validate() error {
	if s.trackID <= 0 {
		return fmt.Errorf("saved track requires a positive track id, got %d", s.trackID)
	}
	return nil
}

// Track returns the descriptor stored with the row.
func (s *SavedTrack) Track() Track {
	return Track{
		ID:       s.trackID,
		Title:    s.title,
		Artist:   s.artist,
		Duration: s.duration,
		CoverURL: s.coverURL,
		Raw:      s.record,
	}
}

// TrackDownload is the per-track download record kept for saved tracks.
type TrackDownload struct {
	TrackID      int64     `json:"trackId"`
	FileURL      string    `json:"fileUrl"`
	DownloadPath string    `json:"downloadPath"`
	Quality      Quality   `json:"quality"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Validate requires a track id and a file URL.
func (d TrackDownload) Validate() error {
	if d.TrackID <= 0 {
		return fmt.Errorf("track download requires a positive track id")
	}
	if d.FileURL == "" {
		return fmt.Errorf("track download requires a file url")
	}
	return nil
}

// DownloadedTrack is a row of the older downloaded-tracks table.
type DownloadedTrack struct {
	Track        Track     `json:"track"`
	FileURL      string    `json:"fileUrl"`
	DownloadPath string    `json:"downloadPath"`
	Quality      Quality   `json:"quality"`
	UUID         string    `json:"uuid"`
	DownloadedAt time.Time `json:"downloadedAt"`
}

// Validate requires a track id and a file URL.
func (d DownloadedTrack) Validate() error {
	if !d.Track.HasID() {
		return fmt.Errorf("downloaded track requires a positive track id")
	}
	if d.FileURL == "" {
		return fmt.Errorf("downloaded track requires a file url")
	}
	return nil
}

// SavedCollection is a saved album or playlist shown in the library sidebar.
type SavedCollection struct {
	Kind      ContextType `json:"kind"`
	ID        int64       `json:"id"`
	Title     string      `json:"title"`
	CoverURL  string      `json:"coverUrl"`
	UpdatedAt time.Time   `json:"updatedAt"`
}

// RecentTrack is an entry of the listening history.
type RecentTrack struct {
	TrackID     int64       `json:"trackId"`
	Title       string      `json:"title"`
	Artist      string      `json:"artist"`
	ContextType ContextType `json:"contextType,omitempty"`
	ContextID   int64       `json:"contextId,omitempty"`
	PlayedAt    time.Time   `json:"playedAt"`
}
