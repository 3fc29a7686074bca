// package services defines the contracts for the download daemon and the account API
package services

import (
	"context"

	"github.com/desertthunder/cassette/internal/models"
)

// DownloadService requests and resolves downloads on the local download daemon.
type DownloadService interface {
	// DownloadTrack downloads a track at the given quality and returns where it was stored.
	DownloadTrack(ctx context.Context, req DownloadRequest) (*DownloadResult, error)

	// ResolveTrack reports whether the daemon already stores the track.
	ResolveTrack(ctx context.Context, id int64, quality models.Quality) (*ResolveResult, error)
}

// CapabilitiesService reads the account's streaming entitlements.
type CapabilitiesService interface {
	GetCapabilities(ctx context.Context) (models.Capabilities, error)
}

// AlbumRef identifies the album a download belongs to.
type AlbumRef struct {
	ID       int64  `json:"id"`
	Title    string `json:"title,omitempty"`
	CoverURL string `json:"cover,omitempty"`
}

// DownloadRequest is the body of POST /api/downloads.
//
// UUID carries the correlation token so progress events can be matched to the request.
type DownloadRequest struct {
	ID      int64          `json:"id"`
	Quality models.Quality `json:"quality"`
	UUID    string         `json:"uuid"`
	Track   models.Record  `json:"track,omitempty"`
	Album   *AlbumRef      `json:"album,omitempty"`
}

// DownloadResult is returned by the daemon once the file is stored.
type DownloadResult struct {
	OK           bool   `json:"ok"`
	FileURL      string `json:"fileUrl"`
	DownloadPath string `json:"downloadPath"`
	UUID         string `json:"uuid"`
	Error        string `json:"error,omitempty"`
}

// ResolveResult describes a stored track.
type ResolveResult struct {
	OK      bool           `json:"ok"`
	Exists  bool           `json:"exists"`
	FileURL string         `json:"fileUrl"`
	Quality models.Quality `json:"quality"`
}
