package models

import (
	"fmt"
	"time"
)

// CacheKey returns the resolution cache key for a track at a quality.
func CacheKey(trackID int64, q Quality) string {
	return fmt.Sprintf("%d:%s", trackID, q)
}

// CacheEntry is a resolved source remembered by the resolution cache.
type CacheEntry struct {
	TrackID     int64     `json:"trackId"`
	Quality     Quality   `json:"quality"`
	SourceURL   string    `json:"sourceUrl"`
	StoragePath string    `json:"storagePath,omitempty"`
	Token       string    `json:"correlationToken,omitempty"`
	CachedAt    time.Time `json:"cachedAt"`
}

// Key returns the cache key of e.
func (e CacheEntry) Key() string { return CacheKey(e.TrackID, e.Quality) }

// TrackSnapshot is the minimal descriptor stored in a resume snapshot.
type TrackSnapshot struct {
	ID         int64   `json:"id,omitempty"`
	Title      string  `json:"title"`
	Artist     string  `json:"artist"`
	Duration   float64 `json:"duration"`
	CoverURL   string  `json:"coverUrl,omitempty"`
	PreviewURL string  `json:"previewUrl,omitempty"`
	AlbumID    int64   `json:"albumId,omitempty"`
	ArtistID   int64   `json:"artistId,omitempty"`
}

// ResumeSnapshot is the only piece of playback state that survives a restart.
type ResumeSnapshot struct {
	Track           TrackSnapshot `json:"track"`
	ProgressSeconds float64       `json:"progressSeconds"`
	DurationSeconds float64       `json:"durationSeconds"`
	UpdatedAt       time.Time     `json:"updatedAt"`
}
