package repositories

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/cassette/internal/events"
	"github.com/desertthunder/cassette/internal/models"
	"github.com/desertthunder/cassette/internal/shared"
)

// LibrarySnapshot is the full library as returned by [Library.Load].
type LibrarySnapshot struct {
	SavedTracks []*models.SavedTrack
	Albums      []models.SavedCollection
	Playlists   []models.SavedCollection
	Recent      []models.RecentTrack
}

// SavedTracks is the liked track store a [Library] is composed over.
type SavedTracks interface {
	models.Repository[*models.SavedTrack]
	Exists(trackID int64) (bool, error)
	DeleteByTrackID(trackID int64) error
}

// Library is the store consumed by the playback engine.
//
// Mutations publish [events.KindLibraryChanged]. Removing a saved track also drops its
// download records and publishes [events.KindTrackRemoved] so cached resolutions are evicted.
type Library struct {
	saved       SavedTracks
	collections *CollectionRepository
	downloads   *DownloadRepository
	recent      *RecentRepository
	events      events.Publisher
	logger      *log.Logger
}

// NewLibrary creates a Library over db. publisher may be nil.
func NewLibrary(db *sql.DB, publisher events.Publisher, logger *log.Logger) *Library {
	if logger == nil {
		logger = shared.NopLogger()
	}
	return &Library{
		saved:       NewSavedTrackRepository(db),
		collections: NewCollectionRepository(db),
		downloads:   NewDownloadRepository(db),
		recent:      NewRecentRepository(db),
		events:      publisher,
		logger:      logger,
	}
}

func (l *Library) publish(kind events.Kind, payload any) {
	if l.events != nil {
		l.events.Publish(kind, payload)
	}
}

// IsTrackSaved reports whether the track is liked.
func (l *Library) IsTrackSaved(trackID int64) (bool, error) {
	if trackID <= 0 {
		return false, nil
	}
	return l.saved.Exists(trackID)
}

// AddSavedTrack likes a track.
func (l *Library) AddSavedTrack(t models.Track) error {
	if err := l.saved.Create(models.NewSavedTrack(0, t)); err != nil {
		return err
	}
	l.publish(events.KindLibraryChanged, events.LibraryChanged{Reason: "track-saved"})
	return nil
}

// RemoveSavedTrack unlikes a track and forgets its downloads.
func (l *Library) RemoveSavedTrack(trackID int64) error {
	if err := l.saved.DeleteByTrackID(trackID); err != nil {
		return err
	}
	if _, err := l.downloads.Delete(trackID); err != nil {
		l.logger.Warn("failed to drop download records", "track", trackID, "error", err)
	}

	l.publish(events.KindTrackRemoved, events.TrackRemoved{TrackID: trackID})
	l.publish(events.KindLibraryChanged, events.LibraryChanged{Reason: "track-removed"})
	return nil
}

// UpsertTrackDownload writes the per-track download record.
func (l *Library) UpsertTrackDownload(d models.TrackDownload) error {
	return l.downloads.UpsertTrackDownload(d)
}

// UpsertDownloadedTrack writes a row of the older downloaded-tracks table.
func (l *Library) UpsertDownloadedTrack(d models.DownloadedTrack) error {
	if err := l.downloads.UpsertDownloadedTrack(d); err != nil {
		return err
	}
	l.publish(events.KindLibraryChanged, events.LibraryChanged{Reason: "track-downloaded"})
	return nil
}

// GetTrackDownload returns the per-track download record.
func (l *Library) GetTrackDownload(trackID int64) (*models.TrackDownload, error) {
	return l.downloads.GetTrackDownload(trackID)
}

// GetDownloadedTrack returns the downloaded-tracks row.
func (l *Library) GetDownloadedTrack(trackID int64) (*models.DownloadedTrack, error) {
	return l.downloads.GetDownloadedTrack(trackID)
}

// IsTrackDownloaded reports whether the library tracks a local download for trackID.
func (l *Library) IsTrackDownloaded(trackID int64) (bool, error) {
	if trackID <= 0 {
		return false, nil
	}
	return l.downloads.IsDownloaded(trackID)
}

// ForgetDownloadPath drops the download records pointing at path and returns the affected track ids.
func (l *Library) ForgetDownloadPath(path string) ([]int64, error) {
	ids, err := l.downloads.TrackIDsForPath(path)
	if err != nil {
		return nil, err
	}

	for _, id := range ids {
		if _, err := l.downloads.Delete(id); err != nil {
			return nil, err
		}
		l.publish(events.KindTrackRemoved, events.TrackRemoved{TrackID: id})
	}
	if len(ids) > 0 {
		l.publish(events.KindLibraryChanged, events.LibraryChanged{Reason: "download-removed"})
	}
	return ids, nil
}

// AddRecentTrack appends a play to the listening history.
func (l *Library) AddRecentTrack(t models.Track, ctx *models.PlayContext) error {
	entry := models.RecentTrack{TrackID: t.ID, Title: t.Title, Artist: t.Artist}
	if ctx.Valid() {
		entry.ContextType = ctx.Type
		entry.ContextID = ctx.ID
	}
	return l.recent.Add(entry)
}

// RecentTracks returns up to limit history entries, newest first.
func (l *Library) RecentTracks(limit int) ([]models.RecentTrack, error) {
	return l.recent.List(limit)
}

// IsPlaylistSaved reports whether the playlist is in the library.
func (l *Library) IsPlaylistSaved(id int64) (bool, error) {
	return l.isCollectionSaved(models.ContextPlaylist, id)
}

// IsAlbumSaved reports whether the album is in the library.
func (l *Library) IsAlbumSaved(id int64) (bool, error) {
	return l.isCollectionSaved(models.ContextAlbum, id)
}

// GetCollection returns a saved album or playlist.
func (l *Library) GetCollection(kind models.ContextType, id int64) (*models.SavedCollection, error) {
	return l.collections.Get(kind, id)
}

func (l *Library) isCollectionSaved(kind models.ContextType, id int64) (bool, error) {
	_, err := l.collections.Get(kind, id)
	if errors.Is(err, shared.ErrTrackNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// AddSavedPlaylist saves a playlist using the context-supplied title and cover.
func (l *Library) AddSavedPlaylist(c models.PlayContext) error {
	return l.addCollection(models.ContextPlaylist, c)
}

// AddSavedAlbum saves an album using the context-supplied title and cover.
func (l *Library) AddSavedAlbum(c models.PlayContext) error {
	return l.addCollection(models.ContextAlbum, c)
}

func (l *Library) addCollection(kind models.ContextType, c models.PlayContext) error {
	err := l.collections.Save(models.SavedCollection{Kind: kind, ID: c.ID, Title: c.Title, CoverURL: c.CoverURL})
	if err != nil {
		return err
	}
	l.publish(events.KindLibraryChanged, events.LibraryChanged{Reason: fmt.Sprintf("%s-saved", kind)})
	return nil
}

// Load reads the whole library.
func (l *Library) Load() (*LibrarySnapshot, error) {
	saved, err := l.saved.List(map[string]any{})
	if err != nil {
		return nil, err
	}
	albums, err := l.collections.List(models.ContextAlbum)
	if err != nil {
		return nil, err
	}
	playlists, err := l.collections.List(models.ContextPlaylist)
	if err != nil {
		return nil, err
	}
	recent, err := l.recent.List(0)
	if err != nil {
		return nil, err
	}
	return &LibrarySnapshot{SavedTracks: saved, Albums: albums, Playlists: playlists, Recent: recent}, nil
}
