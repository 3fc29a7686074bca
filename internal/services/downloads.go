package services

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/desertthunder/cassette/internal/models"
	"github.com/desertthunder/cassette/internal/shared"
)

// DownloadClient implements [DownloadService] over the daemon's HTTP API.
type DownloadClient struct {
	client *Client
}

// NewDownloadClient creates a DownloadClient on top of client.
func NewDownloadClient(client *Client) *DownloadClient {
	return &DownloadClient{client: client}
}

// DownloadTrack calls POST /api/downloads.
func (d *DownloadClient) DownloadTrack(ctx context.Context, req DownloadRequest) (*DownloadResult, error) {
	if req.ID <= 0 {
		return nil, fmt.Errorf("%w: download requires a track id", shared.ErrInvalidInput)
	}

	var result DownloadResult
	if err := d.client.postJSON(ctx, "/api/downloads", req, &result); err != nil {
		return nil, err
	}
	if !result.OK || result.FileURL == "" {
		reason := result.Error
		if reason == "" {
			reason = "no file returned"
		}
		return &result, fmt.Errorf("%w: track %d: %s", shared.ErrDownloadFailed, req.ID, reason)
	}
	return &result, nil
}

// ResolveTrack calls GET /api/downloads/resolve.
func (d *DownloadClient) ResolveTrack(ctx context.Context, id int64, quality models.Quality) (*ResolveResult, error) {
	q := url.Values{}
	q.Set("id", strconv.FormatInt(id, 10))
	q.Set("quality", string(quality))

	var result ResolveResult
	if err := d.client.getJSON(ctx, "/api/downloads/resolve?"+q.Encode(), &result); err != nil {
		return nil, err
	}
	result.Quality = models.ParseQuality(string(result.Quality))
	return &result, nil
}
