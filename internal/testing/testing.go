// package testing contains shared testing utilities
package testing

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"
	"testing"

	"github.com/desertthunder/cassette/internal/models"
	"github.com/desertthunder/cassette/internal/playback"
	"github.com/desertthunder/cassette/internal/services"
	"github.com/desertthunder/cassette/internal/shared"
)

// FakeSink is a test double for [playback.Sink].
//
// Events are delivered synchronously from the calling goroutine. With DeferMetadata set,
// Load leaves the sink unready until [FakeSink.EmitMetadata] is called.
type FakeSink struct {
	mu            sync.Mutex
	listener      func(playback.Event)
	url           string
	playing       bool
	ready         bool
	hasSource     bool
	position      float64
	duration      float64
	Loads         []string
	Seeks         []float64
	Plays         int
	DeferMetadata bool
	SourceLength  float64 // duration reported once metadata is available
	RejectPlay    error
	LoadErr       error
	// BeforeLoad runs before a source is taken and may block. An error rejects the load.
	BeforeLoad func(ctx context.Context, url string) error
}

func (s *FakeSink) emit(ev playback.Event) {
	s.mu.Lock()
	fn := s.listener
	s.mu.Unlock()
	if fn != nil {
		fn(ev)
	}
}

func (s *FakeSink) SetListener(fn func(playback.Event)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listener = fn
}

func (s *FakeSink) Load(ctx context.Context, url string) error {
	if s.BeforeLoad != nil {
		if err := s.BeforeLoad(ctx, url); err != nil {
			return err
		}
	}

	s.mu.Lock()
	s.Loads = append(s.Loads, url)
	if s.LoadErr != nil {
		err := s.LoadErr
		s.mu.Unlock()
		return err
	}
	s.url = url
	s.hasSource = true
	s.playing = false
	s.position = 0
	s.ready = !s.DeferMetadata
	if s.ready {
		s.duration = s.SourceLength
	} else {
		s.duration = 0
	}
	s.mu.Unlock()
	return nil
}

// EmitMetadata marks the source ready and notifies the listener.
func (s *FakeSink) EmitMetadata() {
	s.mu.Lock()
	s.ready = true
	s.duration = s.SourceLength
	s.mu.Unlock()
	s.emit(playback.Event{Kind: playback.EventMetadata})
}

// Finish simulates the source reaching its end.
func (s *FakeSink) Finish() {
	s.mu.Lock()
	s.playing = false
	s.position = s.duration
	s.mu.Unlock()
	s.emit(playback.Event{Kind: playback.EventEnded})
}

func (s *FakeSink) Play() error {
	s.mu.Lock()
	if s.RejectPlay != nil {
		err := s.RejectPlay
		s.mu.Unlock()
		return err
	}
	if !s.hasSource {
		s.mu.Unlock()
		return shared.ErrNoSource
	}
	s.playing = true
	s.Plays++
	s.mu.Unlock()
	s.emit(playback.Event{Kind: playback.EventPlay})
	return nil
}

func (s *FakeSink) Pause() {
	s.mu.Lock()
	wasPlaying := s.playing
	s.playing = false
	s.mu.Unlock()
	if wasPlaying {
		s.emit(playback.Event{Kind: playback.EventPause})
	}
}

func (s *FakeSink) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.url = ""
	s.playing = false
	s.hasSource = false
	s.ready = false
	s.position = 0
	s.duration = 0
}

func (s *FakeSink) Seek(seconds float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.hasSource {
		return shared.ErrNoSource
	}
	s.position = seconds
	s.Seeks = append(s.Seeks, seconds)
	return nil
}

// SetPosition moves the playhead without recording a seek.
func (s *FakeSink) SetPosition(seconds float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.position = seconds
}

func (s *FakeSink) Position() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.position
}

func (s *FakeSink) Duration() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.duration
}

func (s *FakeSink) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ready
}

func (s *FakeSink) HasSource() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hasSource
}

// URL returns the loaded source.
func (s *FakeSink) URL() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.url
}

// Playing reports whether output is running.
func (s *FakeSink) Playing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.playing
}

// FakeDownloads is a test double for [services.DownloadService].
//
// Downloads succeed with a remote URL and are remembered so later ResolveTrack calls
// find them. Before, when set, runs before every download and may block or fail it.
type FakeDownloads struct {
	mu           sync.Mutex
	stored       map[string]services.ResolveResult
	Requests     []services.DownloadRequest
	ResolveCalls int
	DownloadErr  error
	ResolveErr   error
	Before       func(ctx context.Context, req services.DownloadRequest) error
}

// NewFakeDownloads creates an empty FakeDownloads.
func NewFakeDownloads() *FakeDownloads {
	return &FakeDownloads{stored: make(map[string]services.ResolveResult)}
}

// Store marks a track as stored by the daemon at a quality.
func (f *FakeDownloads) Store(id int64, q models.Quality, fileURL string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stored[models.CacheKey(id, q)] = services.ResolveResult{OK: true, Exists: true, FileURL: fileURL, Quality: q}
}

// DownloadCount returns the number of DownloadTrack calls.
func (f *FakeDownloads) DownloadCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Requests)
}

// LastRequest returns the most recent download request.
func (f *FakeDownloads) LastRequest() services.DownloadRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.Requests) == 0 {
		return services.DownloadRequest{}
	}
	return f.Requests[len(f.Requests)-1]
}

func (f *FakeDownloads) DownloadTrack(ctx context.Context, req services.DownloadRequest) (*services.DownloadResult, error) {
	f.mu.Lock()
	f.Requests = append(f.Requests, req)
	before := f.Before
	f.mu.Unlock()

	if before != nil {
		if err := before(ctx, req); err != nil {
			return nil, err
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.DownloadErr != nil {
		return nil, f.DownloadErr
	}

	fileURL := fmt.Sprintf("https://downloads.test/%d.%s.mp3", req.ID, req.Quality)
	f.stored[models.CacheKey(req.ID, req.Quality)] = services.ResolveResult{OK: true, Exists: true, FileURL: fileURL, Quality: req.Quality}
	return &services.DownloadResult{
		OK:           true,
		FileURL:      fileURL,
		DownloadPath: fmt.Sprintf("/downloads/%d.mp3", req.ID),
		UUID:         req.UUID,
	}, nil
}

func (f *FakeDownloads) ResolveTrack(ctx context.Context, id int64, q models.Quality) (*services.ResolveResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ResolveCalls++
	if f.ResolveErr != nil {
		return nil, f.ResolveErr
	}
	if res, ok := f.stored[models.CacheKey(id, q)]; ok {
		return &res, nil
	}
	return &services.ResolveResult{OK: true, Exists: false}, nil
}

// MemoryKV is an in-memory key/value store. Fail makes every call return an error.
type MemoryKV struct {
	mu     sync.Mutex
	values map[string]string
	Writes int
	Fail   bool
}

// NewMemoryKV creates an empty MemoryKV.
func NewMemoryKV() *MemoryKV {
	return &MemoryKV{values: make(map[string]string)}
}

var errKVFailure = errors.New("kv unavailable")

func (m *MemoryKV) Get(ctx context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail {
		return "", errKVFailure
	}
	v, ok := m.values[key]
	if !ok {
		return "", fmt.Errorf("%w: %s", shared.ErrKeyNotFound, key)
	}
	return v, nil
}

func (m *MemoryKV) Set(ctx context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail {
		return errKVFailure
	}
	m.values[key] = value
	m.Writes++
	return nil
}

func (m *MemoryKV) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail {
		return errKVFailure
	}
	delete(m.values, key)
	return nil
}

// Value returns the raw stored value.
func (m *MemoryKV) Value(key string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[key]
	return v, ok
}

// WriteCount returns the number of successful writes.
func (m *MemoryKV) WriteCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Writes
}

// RecordingView is a [playback.View] that keeps the latest value of every update.
type RecordingView struct {
	mu             sync.Mutex
	Track          models.Track
	Playing        bool
	IsLiked        bool
	Position       float64
	Duration       float64
	IsDisabled     bool
	DisabledReason string
	Updates        int
}

func (v *RecordingView) NowPlaying(track models.Track) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.Track = track
	v.Updates++
}

func (v *RecordingView) PlayState(playing bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.Playing = playing
	v.Updates++
}

func (v *RecordingView) Liked(liked bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.IsLiked = liked
	v.Updates++
}

func (v *RecordingView) Progress(position, duration float64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.Position = position
	v.Duration = duration
	v.Updates++
}

func (v *RecordingView) Disabled(disabled bool, reason string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.IsDisabled = disabled
	v.DisabledReason = reason
	v.Updates++
}

// ViewState is a copy of the values held by a [RecordingView].
type ViewState struct {
	Track          models.Track
	Playing        bool
	IsLiked        bool
	Position       float64
	Duration       float64
	IsDisabled     bool
	DisabledReason string
	Updates        int
}

// Snapshot returns a copy of the recorded values.
func (v *RecordingView) Snapshot() ViewState {
	v.mu.Lock()
	defer v.mu.Unlock()
	return ViewState{
		Track:          v.Track,
		Playing:        v.Playing,
		IsLiked:        v.IsLiked,
		Position:       v.Position,
		Duration:       v.Duration,
		IsDisabled:     v.IsDisabled,
		DisabledReason: v.DisabledReason,
		Updates:        v.Updates,
	}
}

// FWriter always returns an error on Write
type FWriter struct{}

func (f *FWriter) Write(p []byte) (n int, err error) {
	return 0, errors.New("write failed")
}

// LimitedWriter fails after a certain number of writes
type LimitedWriter struct {
	maxWrites int
	written   int
	target    io.Writer
}

func (l *LimitedWriter) Write(p []byte) (n int, err error) {
	if l.written >= l.maxWrites {
		return 0, errors.New("write limit exceeded")
	}
	l.written++
	return l.target.Write(p)
}

func NewLimitedWriter(maxWrites, written int, target io.Writer) LimitedWriter {
	return LimitedWriter{maxWrites: maxWrites, written: written, target: target}
}

// MockRoundTripper allows custom HTTP responses for testing
type MockRoundTripper struct {
	response *http.Response
	err      error
}

func NewMockRoundTripper(r *http.Response, e error) *MockRoundTripper {
	return &MockRoundTripper{response: r, err: e}
}

func (m *MockRoundTripper) RoundTrip(*http.Request) (*http.Response, error) {
	return m.response, m.err
}

func AssertFileExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Errorf("File does not exist: %s", path)
	}
}

func MustReadFile(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read file %s: %v", path, err)
	}
	return string(content)
}
