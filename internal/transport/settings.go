package transport

import (
	"context"
	"sync"

	"github.com/desertthunder/cassette/internal/models"
	"github.com/desertthunder/cassette/internal/shared"
)

// Keys for user settings kept in the durable key/value store.
const (
	QualityKey   = "settings.quality.v1"
	NormalizeKey = "settings.normalize.v1"
)

// Store is the best-effort JSON store settings are read from and written to.
type Store interface {
	LoadJSON(ctx context.Context, key string, v any) bool
	StoreJSON(ctx context.Context, key string, v any)
}

// Settings holds the preferred quality and the normalize toggle.
//
// Values written by the user win over the configured defaults. Reads are served from memory
// after [Settings.Load].
type Settings struct {
	store     Store
	mu        sync.RWMutex
	quality   models.Quality
	normalize bool
}

// NewSettings creates settings seeded from the playback config.
func NewSettings(store Store, conf shared.PlaybackConfig) *Settings {
	return &Settings{
		store:     store,
		quality:   models.ParseQuality(conf.Quality),
		normalize: conf.Normalize,
	}
}

// Load overlays stored values on the defaults.
func (s *Settings) Load(ctx context.Context) {
	if s.store == nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var q string
	if s.store.LoadJSON(ctx, QualityKey, &q) {
		s.quality = models.ParseQuality(q)
	}
	var n bool
	if s.store.LoadJSON(ctx, NormalizeKey, &n) {
		s.normalize = n
	}
}

// Quality returns the preferred quality before clamping.
func (s *Settings) Quality() models.Quality {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.quality
}

// SetQuality stores a new preferred quality.
func (s *Settings) SetQuality(ctx context.Context, q models.Quality) {
	q = models.ParseQuality(string(q))
	s.mu.Lock()
	s.quality = q
	s.mu.Unlock()
	if s.store != nil {
		s.store.StoreJSON(ctx, QualityKey, string(q))
	}
}

// Normalize reports whether loudness normalization is enabled.
func (s *Settings) Normalize() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.normalize
}

// SetNormalize stores the normalize toggle.
func (s *Settings) SetNormalize(ctx context.Context, enabled bool) {
	s.mu.Lock()
	s.normalize = enabled
	s.mu.Unlock()
	if s.store != nil {
		s.store.StoreJSON(ctx, NormalizeKey, enabled)
	}
}
