package resolver

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/desertthunder/cassette/internal/events"
	"github.com/desertthunder/cassette/internal/models"
	"github.com/desertthunder/cassette/internal/repositories"
	"github.com/desertthunder/cassette/internal/shared"
	tu "github.com/desertthunder/cassette/internal/testing"
)

type fixture struct {
	db        *sql.DB
	bus       *events.Bus
	library   *repositories.Library
	kv        *tu.MemoryKV
	cache     *Cache
	downloads *tu.FakeDownloads
	quality   models.Quality
	caps      models.Capabilities
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db, err := shared.NewDatabase(":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	db.SetMaxOpenConns(1)
	if err := shared.RunMigrations(db); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	bus := events.NewBus(16)
	kv := tu.NewMemoryKV()
	cache := NewCache(context.Background(), 16, repositories.NewBestEffort(kv, nil), nil)
	bus.Handle(events.KindTrackRemoved, cache.HandleTrackRemoved)

	return &fixture{
		db:        db,
		bus:       bus,
		library:   repositories.NewLibrary(db, bus, nil),
		kv:        kv,
		cache:     cache,
		downloads: tu.NewFakeDownloads(),
		quality:   models.QualityStandard,
		caps:      models.ConservativeCapabilities(),
	}
}

func (f *fixture) resolver(withDownloads bool) *Resolver {
	opts := Options{
		Library:      f.library,
		Cache:        f.cache,
		Quality:      func() models.Quality { return f.quality },
		Capabilities: func() models.Capabilities { return f.caps },
	}
	if withDownloads {
		opts.Downloads = f.downloads
	}
	return New(opts)
}

func track(id int64) models.Track {
	return models.Track{
		ID:     id,
		Title:  "Track",
		Artist: "Artist",
		Raw:    models.Record{"id": float64(id), "title": "Track", "album": map[string]any{"id": float64(300)}},
	}
}

func audioFile(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	data := append([]byte("ID3\x03\x00\x00\x00\x00\x00\x00"), make([]byte, 256)...)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("failed to write audio file: %v", err)
	}
	return path
}

func TestResolve(t *testing.T) {
	ctx := context.Background()

	t.Run("embedded download on the record", func(t *testing.T) {
		f := newFixture(t)
		tr := track(1)
		tr.Raw["download"] = map[string]any{"fileUrl": "https://cdn.test/1.mp3", "quality": "standard"}

		res, err := f.resolver(true).Resolve(ctx, Request{Track: tr, StartTime: 12, AutoPlay: true})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if res.Tier != TierEmbedded || res.URL != "https://cdn.test/1.mp3" {
			t.Errorf("unexpected resolution %+v", res)
		}
		if res.StartTime != 12 || !res.AutoPlay {
			t.Errorf("expected start time and autoplay to pass through, got %+v", res)
		}
		if _, ok := f.cache.Get(1, models.QualityStandard); !ok {
			t.Error("expected resolution to be cached")
		}
	})

	t.Run("embedded download at another quality falls through", func(t *testing.T) {
		f := newFixture(t)
		tr := track(1)
		tr.Raw["download"] = map[string]any{"fileUrl": "https://cdn.test/1.flac", "quality": "lossless"}

		res, err := f.resolver(true).Resolve(ctx, Request{Track: tr})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if res.Tier != TierFreshDownload {
			t.Errorf("expected fresh download, got %s", res.Tier)
		}
	})

	t.Run("quality is clamped to capabilities", func(t *testing.T) {
		f := newFixture(t)
		f.quality = models.QualityHigh

		trackA, trackB := track(1), track(2)
		if err := f.library.UpsertDownloadedTrack(models.DownloadedTrack{Track: trackA, FileURL: "https://store.test/1.mp3", Quality: models.QualityStandard}); err != nil {
			t.Fatalf("failed to seed library: %v", err)
		}
		f.downloads.Store(1, models.QualityStandard, "https://store.test/1.mp3")

		r := f.resolver(true)
		if r.EffectiveQuality() != models.QualityStandard {
			t.Fatalf("expected standard, got %s", r.EffectiveQuality())
		}

		resA, err := r.Resolve(ctx, Request{Track: trackA})
		if err != nil {
			t.Fatalf("expected no error for track A, got %v", err)
		}
		if resA.Tier != TierDownloadStore || resA.Quality != models.QualityStandard {
			t.Errorf("expected download store at standard, got %s at %s", resA.Tier, resA.Quality)
		}
		if f.downloads.DownloadCount() != 0 {
			t.Errorf("expected no downloads for track A, got %d", f.downloads.DownloadCount())
		}

		resB, err := r.Resolve(ctx, Request{Track: trackB})
		if err != nil {
			t.Fatalf("expected no error for track B, got %v", err)
		}
		if resB.Tier != TierFreshDownload {
			t.Errorf("expected fresh download, got %s", resB.Tier)
		}
		if req := f.downloads.LastRequest(); req.ID != 2 || req.Quality != models.QualityStandard {
			t.Errorf("unexpected download request %+v", req)
		}
	})

	t.Run("download store skipped when not downloaded", func(t *testing.T) {
		f := newFixture(t)
		f.downloads.Store(3, models.QualityStandard, "https://store.test/3.mp3")

		res, err := f.resolver(true).Resolve(ctx, Request{Track: track(3)})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if f.downloads.ResolveCalls != 0 {
			t.Errorf("expected no store lookups, got %d", f.downloads.ResolveCalls)
		}
		if res.Tier != TierFreshDownload {
			t.Errorf("expected fresh download, got %s", res.Tier)
		}
	})

	t.Run("saved download record", func(t *testing.T) {
		f := newFixture(t)
		path := audioFile(t, "4.mp3")
		err := f.library.UpsertTrackDownload(models.TrackDownload{TrackID: 4, FileURL: shared.FileURL(path), DownloadPath: path, Quality: models.QualityStandard})
		if err != nil {
			t.Fatalf("failed to seed library: %v", err)
		}

		res, err := f.resolver(true).Resolve(ctx, Request{Track: track(4)})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if res.Tier != TierSavedDownload || res.StoragePath != path {
			t.Errorf("unexpected resolution %+v", res)
		}
	})

	t.Run("missing local file is a miss", func(t *testing.T) {
		f := newFixture(t)
		missing := filepath.Join(t.TempDir(), "gone.mp3")
		err := f.library.UpsertTrackDownload(models.TrackDownload{TrackID: 4, FileURL: shared.FileURL(missing), DownloadPath: missing, Quality: models.QualityStandard})
		if err != nil {
			t.Fatalf("failed to seed library: %v", err)
		}

		res, err := f.resolver(true).Resolve(ctx, Request{Track: track(4)})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if res.Tier != TierFreshDownload {
			t.Errorf("expected fresh download, got %s", res.Tier)
		}
	})

	t.Run("downloaded table", func(t *testing.T) {
		f := newFixture(t)
		path := audioFile(t, "5.mp3")
		err := f.library.UpsertDownloadedTrack(models.DownloadedTrack{Track: track(5), FileURL: shared.FileURL(path), DownloadPath: path, Quality: models.QualityStandard, UUID: "dl_5_1"})
		if err != nil {
			t.Fatalf("failed to seed library: %v", err)
		}

		res, err := f.resolver(true).Resolve(ctx, Request{Track: track(5)})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if res.Tier != TierDownloadedTable || res.Token != "dl_5_1" {
			t.Errorf("unexpected resolution %+v", res)
		}
	})

	t.Run("cache honored only when downloaded", func(t *testing.T) {
		f := newFixture(t)
		f.cache.Put(ctx, models.CacheEntry{TrackID: 6, Quality: models.QualityStandard, SourceURL: "https://cache.test/6.mp3", Token: "dl_6_1"})

		// a record at another quality keeps the track tracked as downloaded without matching tier 3
		if err := f.library.UpsertTrackDownload(models.TrackDownload{TrackID: 6, FileURL: "https://x.test/6.flac", Quality: models.QualityLossless}); err != nil {
			t.Fatalf("failed to seed library: %v", err)
		}

		res, err := f.resolver(true).Resolve(ctx, Request{Track: track(6)})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if res.Tier != TierCache || res.Correlation.TrackID != 6 {
			t.Errorf("unexpected resolution %+v", res)
		}
	})

	t.Run("stale cache entry is evicted", func(t *testing.T) {
		f := newFixture(t)
		f.cache.Put(ctx, models.CacheEntry{TrackID: 7, Quality: models.QualityStandard, SourceURL: "https://cache.test/7.mp3"})

		_, err := f.resolver(false).Resolve(ctx, Request{Track: track(7)})
		var failure *Failure
		if !errors.As(err, &failure) || failure.Kind != Unavailable {
			t.Fatalf("expected unavailable failure, got %v", err)
		}
		if _, ok := f.cache.Get(7, models.QualityStandard); ok {
			t.Error("expected stale entry to be evicted")
		}
	})

	t.Run("removing a saved track evicts its cached resolution", func(t *testing.T) {
		f := newFixture(t)
		tr := track(8)
		if err := f.library.AddSavedTrack(tr); err != nil {
			t.Fatalf("failed to save track: %v", err)
		}

		r := f.resolver(true)
		first, err := r.Resolve(ctx, Request{Track: tr})
		if err != nil || first.Tier != TierFreshDownload {
			t.Fatalf("expected fresh download, got %+v, %v", first, err)
		}
		if d, err := f.library.GetTrackDownload(8); err != nil || d.Quality != models.QualityStandard {
			t.Errorf("expected saved track download record, got %+v, %v", d, err)
		}

		if _, err := r.Resolve(ctx, Request{Track: tr}); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if f.downloads.DownloadCount() != 1 {
			t.Errorf("expected a single download, got %d", f.downloads.DownloadCount())
		}

		if err := f.library.RemoveSavedTrack(8); err != nil {
			t.Fatalf("failed to remove track: %v", err)
		}
		if _, ok := f.cache.Get(8, models.QualityStandard); ok {
			t.Error("expected removal to evict the cache entry")
		}

		again, err := r.Resolve(ctx, Request{Track: tr})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if again.Tier != TierFreshDownload || f.downloads.DownloadCount() != 2 {
			t.Errorf("expected a second fresh download, got %s with %d downloads", again.Tier, f.downloads.DownloadCount())
		}
	})

	t.Run("playlist context tags the download", func(t *testing.T) {
		f := newFixture(t)
		pc := &models.PlayContext{Type: models.ContextPlaylist, ID: 42, Title: "Night Drive", CoverURL: "p.jpg"}

		res, err := f.resolver(true).Resolve(ctx, Request{Track: track(9), Context: pc})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if res.Token != "playlist_42_track_9_1" {
			t.Errorf("unexpected token %q", res.Token)
		}
		if res.Correlation.ContextID != 42 || res.Correlation.ContextType != models.ContextPlaylist {
			t.Errorf("unexpected correlation %+v", res.Correlation)
		}

		saved, err := f.library.GetCollection(models.ContextPlaylist, 42)
		if err != nil {
			t.Fatalf("expected playlist to be repaired, got %v", err)
		}
		if saved.Title != "Night Drive" {
			t.Errorf("unexpected title %q", saved.Title)
		}
	})

	t.Run("album context", func(t *testing.T) {
		f := newFixture(t)
		f.quality = models.QualityLossless
		f.caps = models.Capabilities{CanStreamHQ: true}
		pc := &models.PlayContext{Type: models.ContextAlbum, ID: 300}

		res, err := f.resolver(true).Resolve(ctx, Request{Track: track(10), Context: pc})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if res.Token != "album_300_track_10_3" {
			t.Errorf("unexpected token %q", res.Token)
		}
		if req := f.downloads.LastRequest(); req.Album == nil || req.Album.ID != 300 {
			t.Errorf("expected album ref, got %+v", req.Album)
		}
		if ok, _ := f.library.IsAlbumSaved(300); ok {
			t.Error("untitled context must not be saved")
		}
	})

	t.Run("falls back to preview", func(t *testing.T) {
		f := newFixture(t)
		tr := track(11)
		tr.PreviewURL = "https://preview.test/11.mp3"

		res, err := f.resolver(false).Resolve(ctx, Request{Track: tr})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if res.Tier != TierPreview || res.URL != tr.PreviewURL {
			t.Errorf("unexpected resolution %+v", res)
		}
	})

	t.Run("preview not used with download capability", func(t *testing.T) {
		f := newFixture(t)
		f.downloads.DownloadErr = shared.ErrDownloadFailed
		tr := track(12)
		tr.PreviewURL = "https://preview.test/12.mp3"

		_, err := f.resolver(true).Resolve(ctx, Request{Track: tr})
		var failure *Failure
		if !errors.As(err, &failure) {
			t.Fatalf("expected failure, got %v", err)
		}
		if failure.Kind != Failed || !errors.Is(err, shared.ErrDownloadFailed) {
			t.Errorf("expected failed kind wrapping ErrDownloadFailed, got %+v", failure)
		}
		if !strings.Contains(Describe(err), "Could not load") {
			t.Errorf("unexpected description %q", Describe(err))
		}
	})

	t.Run("track without id", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.resolver(true).Resolve(ctx, Request{Track: models.Track{Title: "url only"}})
		var failure *Failure
		if !errors.As(err, &failure) || failure.Kind != Failed {
			t.Errorf("expected failed resolution, got %v", err)
		}
		if f.downloads.DownloadCount() != 0 {
			t.Error("anonymous tracks must not be downloaded")
		}
	})

	t.Run("cancelled context", func(t *testing.T) {
		f := newFixture(t)
		cctx, cancel := context.WithCancel(ctx)
		cancel()

		if _, err := f.resolver(true).Resolve(cctx, Request{Track: track(13)}); !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	})
}

func TestCache(t *testing.T) {
	ctx := context.Background()

	t.Run("persists and reloads", func(t *testing.T) {
		kv := tu.NewMemoryKV()
		store := repositories.NewBestEffort(kv, nil)

		c := NewCache(ctx, 4, store, nil)
		c.Put(ctx, models.CacheEntry{TrackID: 1, Quality: models.QualityHigh, SourceURL: "a"})
		c.Put(ctx, models.CacheEntry{TrackID: 1, Quality: models.QualityStandard, SourceURL: "b"})
		c.Put(ctx, models.CacheEntry{TrackID: 2, Quality: models.QualityHigh, SourceURL: "c"})

		if _, ok := kv.Value(CacheKey); !ok {
			t.Fatal("expected cache to be persisted")
		}

		reloaded := NewCache(ctx, 4, store, nil)
		if reloaded.Len() != 3 {
			t.Errorf("expected 3 entries, got %d", reloaded.Len())
		}

		if n := reloaded.EvictTrack(ctx, 1); n != 2 {
			t.Errorf("expected 2 evictions, got %d", n)
		}
		if _, ok := reloaded.Get(2, models.QualityHigh); !ok {
			t.Error("other tracks must survive eviction")
		}
	})

	t.Run("bounded by capacity", func(t *testing.T) {
		c := NewCache(ctx, 2, nil, nil)
		for i := int64(1); i <= 3; i++ {
			c.Put(ctx, models.CacheEntry{TrackID: i, Quality: models.QualityStandard, SourceURL: "x"})
		}
		if c.Len() != 2 {
			t.Errorf("expected 2 entries, got %d", c.Len())
		}
		if _, ok := c.Get(1, models.QualityStandard); ok {
			t.Error("expected the oldest entry to be evicted")
		}
	})

	t.Run("ignores invalid entries", func(t *testing.T) {
		c := NewCache(ctx, 2, nil, nil)
		c.Put(ctx, models.CacheEntry{Quality: models.QualityStandard, SourceURL: "x"})
		c.Put(ctx, models.CacheEntry{TrackID: 1, Quality: models.QualityStandard})
		if c.Len() != 0 {
			t.Errorf("expected empty cache, got %d", c.Len())
		}
	})

	t.Run("persistence failure is swallowed", func(t *testing.T) {
		kv := tu.NewMemoryKV()
		kv.Fail = true
		c := NewCache(ctx, 2, repositories.NewBestEffort(kv, nil), nil)
		c.Put(ctx, models.CacheEntry{TrackID: 1, Quality: models.QualityStandard, SourceURL: "x"})
		if c.Len() != 1 {
			t.Error("memory cache must keep working when persistence fails")
		}
		c.Clear(ctx)
		if c.Len() != 0 {
			t.Error("expected empty cache after clear")
		}
	})
}

func TestProbeLocal(t *testing.T) {
	t.Run("remote url", func(t *testing.T) {
		if err := ProbeLocal("https://cdn.test/a.mp3"); err != nil {
			t.Errorf("expected remote sources to pass, got %v", err)
		}
	})

	t.Run("existing local file", func(t *testing.T) {
		if err := ProbeLocal(shared.FileURL(audioFile(t, "a.mp3"))); err != nil {
			t.Errorf("expected no error, got %v", err)
		}
	})

	t.Run("missing local file", func(t *testing.T) {
		if err := ProbeLocal("/definitely/not/here.mp3"); !errors.Is(err, shared.ErrNoSource) {
			t.Errorf("expected ErrNoSource, got %v", err)
		}
	})

	t.Run("unsupported scheme", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "notes.txt")
		if err := os.WriteFile(path, []byte("hello, this is not audio"), 0o644); err != nil {
			t.Fatalf("failed to write file: %v", err)
		}
		if err := ProbeLocal(path); !errors.Is(err, shared.ErrUnsupportedAudio) {
			t.Errorf("expected ErrUnsupportedAudio, got %v", err)
		}
	})
}
