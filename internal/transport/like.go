package transport

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/cassette/internal/models"
	"github.com/desertthunder/cassette/internal/playback"
	"github.com/desertthunder/cassette/internal/services"
	"github.com/desertthunder/cassette/internal/shared"
)

// LikeLibrary is the subset of the library store the like controller writes.
type LikeLibrary interface {
	AddSavedTrack(t models.Track) error
	RemoveSavedTrack(trackID int64) error
	UpsertTrackDownload(d models.TrackDownload) error
}

// LikeOptions configures a [LikeController].
type LikeOptions struct {
	State     *playback.State
	View      playback.View
	Library   LikeLibrary
	Downloads services.DownloadService // nil disables the background download
	// Quality returns the clamped quality used for the background download.
	Quality         func() models.Quality
	DownloadTimeout time.Duration
	Logger          *log.Logger
}

// LikeController saves and unsaves the current track.
//
// It works regardless of playback health, including while the transport is disabled.
type LikeController struct {
	state     *playback.State
	view      playback.View
	library   LikeLibrary
	downloads services.DownloadService
	quality   func() models.Quality
	timeout   time.Duration
	logger    *log.Logger
	wg        sync.WaitGroup
}

func NewLikeController(opts LikeOptions) *LikeController {
	lc := &LikeController{
		state:     opts.State,
		view:      opts.View,
		library:   opts.Library,
		downloads: opts.Downloads,
		quality:   opts.Quality,
		timeout:   opts.DownloadTimeout,
		logger:    opts.Logger,
	}
	if lc.view == nil {
		lc.view = playback.NopView{}
	}
	if lc.quality == nil {
		lc.quality = func() models.Quality { return models.QualityStandard }
	}
	if lc.timeout <= 0 {
		lc.timeout = 5 * time.Minute
	}
	if lc.logger == nil {
		lc.logger = shared.NopLogger()
	}
	return lc
}

// ToggleLike flips the liked flag right away and then saves or unsaves the track.
// A failed write puts the flag back. Liking also starts a download in the background.
func (lc *LikeController) ToggleLike(ctx context.Context) (bool, error) {
	track, ok := lc.state.Current()
	if !ok || !track.HasID() {
		return lc.state.Liked(), fmt.Errorf("%w: no track with an id is loaded", shared.ErrInvalidInput)
	}

	was := lc.state.Liked()
	next := !was
	lc.state.SetLiked(next)
	lc.view.Liked(next)

	var err error
	if next {
		err = lc.library.AddSavedTrack(track)
	} else {
		err = lc.library.RemoveSavedTrack(track.ID)
	}
	if err != nil {
		lc.logger.Warn("failed to persist like", "track", track.ID, "liked", next, "error", err)
		if cur, ok := lc.state.Current(); ok && cur.ID == track.ID {
			lc.state.SetLiked(was)
			lc.view.Liked(was)
		}
		return was, err
	}

	if next && lc.downloads != nil {
		lc.wg.Add(1)
		go lc.download(track, lc.state.Context())
	}
	return next, nil
}

func (lc *LikeController) download(track models.Track, pc *models.PlayContext) {
	defer lc.wg.Done()

	ctx, cancel := context.WithTimeout(context.Background(), lc.timeout)
	defer cancel()

	q := lc.quality()
	token := models.NewCorrelation(track.ID, q, pc).String()
	result, err := lc.downloads.DownloadTrack(ctx, services.DownloadRequest{
		ID:      track.ID,
		Quality: q,
		UUID:    token,
		Track:   track.Raw,
	})
	if err != nil {
		lc.logger.Warn("background download failed", "track", track.ID, "token", token, "error", err)
		return
	}

	err = lc.library.UpsertTrackDownload(models.TrackDownload{
		TrackID:      track.ID,
		FileURL:      result.FileURL,
		DownloadPath: result.DownloadPath,
		Quality:      q,
	})
	if err != nil {
		lc.logger.Debug("failed to record background download", "track", track.ID, "error", err)
	}
}

// Wait blocks until background downloads started by [LikeController.ToggleLike] finish.
func (lc *LikeController) Wait() { lc.wg.Wait() }
