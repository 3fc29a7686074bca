// package resolver turns a track descriptor into a playable source.
//
// Resolution walks an ordered list of tiers and the first playable source wins:
//
//  1. download info embedded in the raw record
//  2. the managed download store (only for tracks tracked as downloaded)
//  3. the saved-track download record
//  4. the older downloaded-tracks table
//  5. the resolution cache (only for tracks tracked as downloaded)
//  6. a fresh download tagged with a correlation token
//  7. the preview stream, only when no download capability exists
//
// The preferred quality is clamped against account capabilities once per call and every
// stored quality must match it exactly, otherwise the tier is a miss.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/cassette/internal/identity"
	"github.com/desertthunder/cassette/internal/models"
	"github.com/desertthunder/cassette/internal/services"
	"github.com/desertthunder/cassette/internal/shared"
)

// Tier names a resolution strategy.
type Tier string

const (
	TierEmbedded        Tier = "embedded"
	TierDownloadStore   Tier = "download-store"
	TierSavedDownload   Tier = "saved-download"
	TierDownloadedTable Tier = "downloaded-table"
	TierCache           Tier = "cache"
	TierFreshDownload   Tier = "fresh-download"
	TierPreview         Tier = "preview"
)

// Library is the subset of the library store the resolver reads and repairs.
type Library interface {
	IsTrackSaved(trackID int64) (bool, error)
	IsTrackDownloaded(trackID int64) (bool, error)
	GetTrackDownload(trackID int64) (*models.TrackDownload, error)
	GetDownloadedTrack(trackID int64) (*models.DownloadedTrack, error)
	UpsertTrackDownload(d models.TrackDownload) error
	UpsertDownloadedTrack(d models.DownloadedTrack) error
	GetCollection(kind models.ContextType, id int64) (*models.SavedCollection, error)
	AddSavedPlaylist(c models.PlayContext) error
	AddSavedAlbum(c models.PlayContext) error
}

// Request describes one resolution.
type Request struct {
	Track     models.Track
	Context   *models.PlayContext
	StartTime float64
	AutoPlay  bool
}

// Resolution is a playable source.
type Resolution struct {
	URL         string
	StoragePath string
	Token       string
	Correlation models.Correlation
	Quality     models.Quality
	Tier        Tier
	StartTime   float64
	AutoPlay    bool
}

// FailureKind distinguishes a failed resolution from an impossible one.
type FailureKind int

const (
	// Failed means every tier was tried and none produced a source.
	Failed FailureKind = iota
	// Unavailable means there is no download capability and no preview to fall back to.
	Unavailable
)

// Failure is returned when no tier produced a source.
type Failure struct {
	Kind       FailureKind
	Reason     string
	Diagnostic string
	Track      models.Track
	err        error
}

func (f *Failure) Error() string { return f.Reason }

func (f *Failure) Unwrap() error { return f.err }

// Options configures a [Resolver].
type Options struct {
	Library   Library
	Downloads services.DownloadService // nil means no download capability
	Cache     *Cache
	// Quality returns the preferred quality before clamping.
	Quality func() models.Quality
	// Capabilities returns the account entitlements used for clamping.
	Capabilities func() models.Capabilities
	Probe        Probe
	Logger       *log.Logger
}

// Resolver runs the tiered lookup.
type Resolver struct {
	library   Library
	downloads services.DownloadService
	cache     *Cache
	quality   func() models.Quality
	caps      func() models.Capabilities
	probe     Probe
	logger    *log.Logger
}

// New creates a Resolver from opts.
func New(opts Options) *Resolver {
	r := &Resolver{
		library:   opts.Library,
		downloads: opts.Downloads,
		cache:     opts.Cache,
		quality:   opts.Quality,
		caps:      opts.Capabilities,
		probe:     opts.Probe,
		logger:    opts.Logger,
	}
	if r.quality == nil {
		r.quality = func() models.Quality { return models.QualityStandard }
	}
	if r.caps == nil {
		r.caps = models.ConservativeCapabilities
	}
	if r.probe == nil {
		r.probe = ProbeLocal
	}
	if r.logger == nil {
		r.logger = shared.NopLogger()
	}
	if r.cache == nil {
		r.cache = NewCache(context.Background(), DefaultCacheSize, nil, r.logger)
	}
	return r
}

// CanDownload reports whether a download service is configured.
func (r *Resolver) CanDownload() bool { return r.downloads != nil }

// EffectiveQuality returns the preferred quality clamped against capabilities.
func (r *Resolver) EffectiveQuality() models.Quality {
	return models.Clamp(models.ParseQuality(string(r.quality())), r.caps())
}

// Cache returns the resolution cache.
func (r *Resolver) Cache() *Cache { return r.cache }

type attempt struct {
	req     Request
	quality models.Quality
	saved   bool
	// downloaded is computed lazily; the tracker is consulted only by tiers that need it.
	downloaded *bool
	lastErr    error
}

// Resolve returns a playable source for req.Track or a *[Failure].
func (r *Resolver) Resolve(ctx context.Context, req Request) (*Resolution, error) {
	a := &attempt{req: req, quality: r.EffectiveQuality()}
	track := req.Track
	logger := r.logger.With("track", track.ID, "quality", a.quality)

	if track.HasID() && r.library != nil {
		saved, err := r.library.IsTrackSaved(track.ID)
		if err != nil {
			logger.Debug("saved lookup failed", "error", err)
		}
		a.saved = saved
	}

	tiers := []struct {
		tier Tier
		fn   func(context.Context, *attempt) *Resolution
	}{
		{TierEmbedded, r.fromEmbedded},
		{TierDownloadStore, r.fromDownloadStore},
		{TierSavedDownload, r.fromSavedDownload},
		{TierDownloadedTable, r.fromDownloadedTable},
		{TierCache, r.fromCache},
		{TierFreshDownload, r.fromFreshDownload},
		{TierPreview, r.fromPreview},
	}

	for _, t := range tiers {
		if err := ctx.Err(); err != nil {
			return nil, r.fail(a, Failed, "resolution cancelled", err)
		}

		res := t.fn(ctx, a)
		if res == nil {
			continue
		}

		res.Tier = t.tier
		res.StartTime = req.StartTime
		res.AutoPlay = req.AutoPlay
		if res.Quality == "" {
			res.Quality = a.quality
		}
		logger.Debug("resolved", "tier", t.tier, "url", res.URL)
		return res, nil
	}

	if r.downloads == nil {
		return nil, r.fail(a, Unavailable, "This track is not available offline and has no preview", shared.ErrNoSource)
	}
	return nil, r.fail(a, Failed, "Could not load this track", a.lastErr)
}

func (r *Resolver) fail(a *attempt, kind FailureKind, reason string, err error) *Failure {
	f := &Failure{Kind: kind, Reason: reason, Track: a.req.Track, err: err}
	if err != nil {
		f.Diagnostic = err.Error()
	}
	r.logger.Warn("resolution failed", "track", a.req.Track.ID, "reason", reason, "error", err)
	return f
}

func (r *Resolver) isDownloaded(a *attempt) bool {
	if a.downloaded != nil {
		return *a.downloaded
	}
	downloaded := false
	if a.req.Track.HasID() && r.library != nil {
		ok, err := r.library.IsTrackDownloaded(a.req.Track.ID)
		if err != nil {
			r.logger.Debug("download tracker lookup failed", "track", a.req.Track.ID, "error", err)
		}
		downloaded = ok
	}
	a.downloaded = &downloaded
	return downloaded
}

// accept probes a stored source and records why it was rejected.
func (r *Resolver) accept(a *attempt, tier Tier, source string, stored models.Quality) bool {
	if source == "" {
		return false
	}
	if stored != "" && models.ParseQuality(string(stored)) != a.quality {
		r.logger.Debug("quality mismatch", "tier", tier, "track", a.req.Track.ID, "stored", stored, "want", a.quality)
		return false
	}
	if err := r.probe(source); err != nil {
		r.logger.Debug("source rejected", "tier", tier, "track", a.req.Track.ID, "error", err)
		a.lastErr = err
		return false
	}
	return true
}

// commit writes a resolved source to the cache and, for saved tracks, to the library.
func (r *Resolver) commit(ctx context.Context, a *attempt, res *Resolution, writeLibrary bool) {
	track := a.req.Track
	if !track.HasID() {
		return
	}

	r.cache.Put(ctx, models.CacheEntry{
		TrackID:     track.ID,
		Quality:     a.quality,
		SourceURL:   res.URL,
		StoragePath: res.StoragePath,
		Token:       res.Token,
	})

	if writeLibrary && a.saved && r.library != nil {
		err := r.library.UpsertTrackDownload(models.TrackDownload{
			TrackID:      track.ID,
			FileURL:      res.URL,
			DownloadPath: res.StoragePath,
			Quality:      a.quality,
		})
		if err != nil {
			r.logger.Debug("failed to upsert track download", "track", track.ID, "error", err)
		}
	}
}

func (r *Resolver) fromEmbedded(ctx context.Context, a *attempt) *Resolution {
	info, ok := a.req.Track.Raw["download"].(map[string]any)
	if !ok {
		return nil
	}

	fileURL, _ := info["fileUrl"].(string)
	path, _ := info["downloadPath"].(string)
	quality, _ := info["quality"].(string)
	if fileURL == "" && path != "" {
		fileURL = shared.FileURL(path)
	}
	if !r.accept(a, TierEmbedded, fileURL, models.Quality(quality)) {
		return nil
	}

	res := &Resolution{URL: fileURL, StoragePath: path}
	r.commit(ctx, a, res, true)
	return res
}

func (r *Resolver) fromDownloadStore(ctx context.Context, a *attempt) *Resolution {
	if r.downloads == nil || !a.req.Track.HasID() || !r.isDownloaded(a) {
		return nil
	}

	found, err := r.downloads.ResolveTrack(ctx, a.req.Track.ID, a.quality)
	if err != nil {
		r.logger.Debug("download store lookup failed", "track", a.req.Track.ID, "error", err)
		a.lastErr = err
		return nil
	}
	if !found.OK || !found.Exists {
		return nil
	}
	if !r.accept(a, TierDownloadStore, found.FileURL, found.Quality) {
		return nil
	}

	path, _ := shared.LocalPath(found.FileURL)
	res := &Resolution{URL: found.FileURL, StoragePath: path}
	r.commit(ctx, a, res, true)
	return res
}

func (r *Resolver) fromSavedDownload(ctx context.Context, a *attempt) *Resolution {
	if r.library == nil || !a.req.Track.HasID() {
		return nil
	}

	d, err := r.library.GetTrackDownload(a.req.Track.ID)
	if err != nil {
		return nil
	}
	if !r.accept(a, TierSavedDownload, d.FileURL, d.Quality) {
		return nil
	}

	res := &Resolution{URL: d.FileURL, StoragePath: d.DownloadPath}
	r.commit(ctx, a, res, false)
	return res
}

func (r *Resolver) fromDownloadedTable(ctx context.Context, a *attempt) *Resolution {
	if r.library == nil || !a.req.Track.HasID() {
		return nil
	}

	d, err := r.library.GetDownloadedTrack(a.req.Track.ID)
	if err != nil {
		return nil
	}
	if !r.accept(a, TierDownloadedTable, d.FileURL, d.Quality) {
		return nil
	}

	res := &Resolution{URL: d.FileURL, StoragePath: d.DownloadPath, Token: d.UUID}
	r.commit(ctx, a, res, true)
	return res
}

func (r *Resolver) fromCache(ctx context.Context, a *attempt) *Resolution {
	track := a.req.Track
	if !track.HasID() {
		return nil
	}

	entry, ok := r.cache.Get(track.ID, a.quality)
	if !ok {
		return nil
	}
	if !r.isDownloaded(a) || !r.accept(a, TierCache, entry.SourceURL, entry.Quality) {
		r.logger.Debug("evicting stale cache entry", "track", track.ID, "quality", a.quality)
		r.cache.Remove(ctx, track.ID, a.quality)
		return nil
	}

	res := &Resolution{URL: entry.SourceURL, StoragePath: entry.StoragePath, Token: entry.Token}
	if c, err := models.ParseCorrelation(entry.Token); err == nil {
		res.Correlation = c
	}
	return res
}

func (r *Resolver) fromFreshDownload(ctx context.Context, a *attempt) *Resolution {
	track := a.req.Track
	if r.downloads == nil || !track.HasID() {
		return nil
	}

	corr := models.NewCorrelation(track.ID, a.quality, a.req.Context)
	token := corr.String()

	result, err := r.downloads.DownloadTrack(ctx, services.DownloadRequest{
		ID:      track.ID,
		Quality: a.quality,
		UUID:    token,
		Track:   track.Raw,
		Album:   albumRef(track, a.req.Context),
	})
	if err != nil {
		r.logger.Warn("download failed", "track", track.ID, "token", token, "error", err)
		a.lastErr = err
		return nil
	}
	if !r.accept(a, TierFreshDownload, result.FileURL, "") {
		return nil
	}

	res := &Resolution{URL: result.FileURL, StoragePath: result.DownloadPath, Token: token, Correlation: corr}
	r.commit(ctx, a, res, true)

	if r.library != nil {
		uuid := result.UUID
		if uuid == "" {
			uuid = token
		}
		err := r.library.UpsertDownloadedTrack(models.DownloadedTrack{
			Track:        track,
			FileURL:      result.FileURL,
			DownloadPath: result.DownloadPath,
			Quality:      a.quality,
			UUID:         uuid,
		})
		if err != nil {
			r.logger.Debug("failed to record downloaded track", "track", track.ID, "error", err)
		}
		r.repairContext(a.req.Context)
	}
	return res
}

func (r *Resolver) fromPreview(_ context.Context, a *attempt) *Resolution {
	if r.downloads != nil {
		return nil
	}
	preview := strings.TrimSpace(a.req.Track.PreviewURL)
	if preview == "" {
		return nil
	}
	return &Resolution{URL: preview, Quality: models.QualityStandard}
}

// repairContext re-saves the playlist or album the download belongs to when the library
// has no entry for it, or when the stored entry lost its title.
func (r *Resolver) repairContext(pc *models.PlayContext) {
	if !pc.Valid() || strings.TrimSpace(pc.Title) == "" {
		return
	}

	existing, err := r.library.GetCollection(pc.Type, pc.ID)
	if err != nil && !errors.Is(err, shared.ErrTrackNotFound) {
		r.logger.Debug("collection lookup failed", "kind", pc.Type, "id", pc.ID, "error", err)
		return
	}
	if existing != nil && strings.TrimSpace(existing.Title) != "" {
		return
	}

	switch pc.Type {
	case models.ContextPlaylist:
		err = r.library.AddSavedPlaylist(*pc)
	case models.ContextAlbum:
		err = r.library.AddSavedAlbum(*pc)
	}
	if err != nil {
		r.logger.Debug("failed to repair collection", "kind", pc.Type, "id", pc.ID, "error", err)
		return
	}
	r.logger.Info("repaired saved collection", "kind", pc.Type, "id", pc.ID, "title", pc.Title)
}

func albumRef(track models.Track, pc *models.PlayContext) *services.AlbumRef {
	if pc.Valid() && pc.Type == models.ContextAlbum {
		return &services.AlbumRef{ID: pc.ID, Title: pc.Title, CoverURL: pc.CoverURL}
	}
	if id := identity.AlbumID(track); id > 0 {
		return &services.AlbumRef{ID: id, CoverURL: track.CoverURL}
	}
	return nil
}

// Describe renders a failure for logs and error reports.
func Describe(err error) string {
	var f *Failure
	if errors.As(err, &f) {
		if f.Diagnostic != "" {
			return fmt.Sprintf("%s (%s)", f.Reason, f.Diagnostic)
		}
		return f.Reason
	}
	if err == nil {
		return ""
	}
	return err.Error()
}
