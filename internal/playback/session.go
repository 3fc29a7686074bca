package playback

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/cassette/internal/identity"
	"github.com/desertthunder/cassette/internal/models"
	"github.com/desertthunder/cassette/internal/shared"
	"golang.org/x/time/rate"
)

// ResumeKey is the durable key holding the resume snapshot.
const ResumeKey = "player.resume.v1"

// DefaultPersistInterval is the resume snapshot throttle window.
const DefaultPersistInterval = 1500 * time.Millisecond

// Store is the best-effort durable store used for the resume snapshot.
type Store interface {
	LoadJSON(ctx context.Context, key string, v any) bool
	StoreJSON(ctx context.Context, key string, v any)
	Delete(ctx context.Context, key string)
}

// SessionOptions configures a [Session].
type SessionOptions struct {
	View            View
	Logger          *log.Logger
	PersistInterval time.Duration
	Now             func() time.Time
}

// SourceOptions controls how a loaded source starts.
type SourceOptions struct {
	StartTime float64
	AutoPlay  bool
	// Generation gates the call: a stale generation leaves the session untouched.
	// Zero disables the check.
	Generation uint64
}

// Session owns the single output sink.
//
// Sink events are mapped onto [State] transitions. The session never holds its own lock
// while calling into the sink, so sinks may deliver events synchronously.
type Session struct {
	state  *State
	sink   Sink
	store  Store
	view   View
	logger *log.Logger
	now    func() time.Time

	// loadMu is held from sink load to commit. Sinks must not deliver EventEnded
	// from inside Load or Play.
	loadMu sync.Mutex

	mu          sync.Mutex
	cancelLoad  context.CancelFunc
	loadSeq     uint64
	limiter     *rate.Limiter
	lastSecond  int
	pendingSeek *pendingSeek
	onEnded     func()
	onChange    func()
}

type pendingSeek struct {
	seconds    float64
	generation uint64
}

// NewSession creates a session and registers itself as the sink listener.
func NewSession(state *State, sink Sink, store Store, opts SessionOptions) *Session {
	if opts.View == nil {
		opts.View = NopView{}
	}
	if opts.Logger == nil {
		opts.Logger = shared.NopLogger()
	}
	if opts.PersistInterval <= 0 {
		opts.PersistInterval = DefaultPersistInterval
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	s := &Session{
		state:      state,
		sink:       sink,
		store:      store,
		view:       opts.View,
		logger:     opts.Logger,
		now:        opts.Now,
		limiter:    rate.NewLimiter(rate.Every(opts.PersistInterval), 1),
		lastSecond: -1,
	}
	sink.SetListener(s.handleEvent)
	return s
}

// State returns the session's state.
func (s *Session) State() *State { return s.state }

// View returns the view updates are sent to.
func (s *Session) View() View { return s.view }

// OnEnded registers the callback run when the sink reaches the end of a source.
func (s *Session) OnEnded(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onEnded = fn
}

// OnChange registers the callback run after every play, pause and track change.
func (s *Session) OnChange(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onChange = fn
}

func (s *Session) notify() {
	s.mu.Lock()
	fn := s.onChange
	s.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// SetSource loads url for track, persists a resume snapshot, seeks to the start time once
// metadata is available, and starts playback when AutoPlay is set.
//
// Loads are serialized. Starting a load cancels the one in flight, and a load whose
// generation went stale while the sink was busy is stopped rather than committed.
// A rejected play is not an error: the session settles in [PhasePaused].
func (s *Session) SetSource(ctx context.Context, url string, track models.Track, opts SourceOptions) error {
	if s.stale(opts.Generation) {
		return fmt.Errorf("%w: track %d", shared.ErrStaleSource, track.ID)
	}

	loadCtx, done := s.beginLoad(ctx)
	defer done()

	s.loadMu.Lock()
	defer s.loadMu.Unlock()

	if s.stale(opts.Generation) {
		return fmt.Errorf("%w: track %d", shared.ErrStaleSource, track.ID)
	}

	s.mu.Lock()
	s.pendingSeek = nil
	s.mu.Unlock()

	if err := s.sink.Load(loadCtx, url); err != nil {
		if s.stale(opts.Generation) {
			return fmt.Errorf("%w: track %d", shared.ErrStaleSource, track.ID)
		}
		s.logger.Warn("sink rejected source", "track", track.ID, "url", url, "error", err)
		return fmt.Errorf("%w: %v", shared.ErrAudioUnavailable, err)
	}

	if s.stale(opts.Generation) {
		s.sink.Stop()
		s.logger.Debug("discarded stale source", "track", track.ID, "url", url)
		return fmt.Errorf("%w: track %d", shared.ErrStaleSource, track.ID)
	}

	gen := opts.Generation
	if gen == 0 {
		gen = s.state.Generation()
	}
	s.state.SetCurrent(track)
	s.view.NowPlaying(track)

	start := math.Max(opts.StartTime, 0)
	s.PersistAt(true, start)

	if start > 0 {
		if s.sink.Ready() {
			if err := s.sink.Seek(start); err != nil {
				s.logger.Debug("initial seek failed", "seconds", start, "error", err)
			}
		} else {
			s.mu.Lock()
			s.pendingSeek = &pendingSeek{seconds: start, generation: gen}
			s.mu.Unlock()
		}
	}

	if !opts.AutoPlay {
		s.state.SetResumeOffset(start)
		s.state.SetPhase(PhasePaused)
		s.view.PlayState(false)
		s.notify()
		return nil
	}

	s.play()
	return nil
}

func (s *Session) stale(gen uint64) bool {
	return gen != 0 && !s.state.IsCurrent(gen)
}

// beginLoad cancels the load in flight and returns the context for the next one.
func (s *Session) beginLoad(ctx context.Context) (context.Context, func()) {
	loadCtx, cancel := context.WithCancel(ctx)

	s.mu.Lock()
	if s.cancelLoad != nil {
		s.cancelLoad()
	}
	s.loadSeq++
	seq := s.loadSeq
	s.cancelLoad = cancel
	s.mu.Unlock()

	return loadCtx, func() {
		s.mu.Lock()
		if s.loadSeq == seq {
			s.cancelLoad = nil
		}
		s.mu.Unlock()
		cancel()
	}
}

// play starts the sink. A rejection leaves the session paused.
func (s *Session) play() bool {
	if err := s.sink.Play(); err != nil {
		s.logger.Debug("playback rejected", "error", err)
		s.state.SetPlaying(false)
		s.state.SetPhase(PhasePaused)
		s.view.PlayState(false)
		s.notify()
		return false
	}
	return true
}

func (s *Session) handleEvent(ev Event) {
	switch ev.Kind {
	case EventMetadata:
		s.mu.Lock()
		pending := s.pendingSeek
		s.pendingSeek = nil
		s.mu.Unlock()

		if pending != nil && s.state.IsCurrent(pending.generation) {
			if err := s.sink.Seek(pending.seconds); err != nil {
				s.logger.Debug("deferred seek failed", "seconds", pending.seconds, "error", err)
			}
		}
		s.view.Progress(s.Position(), s.Duration())
	case EventPlay:
		s.state.SetPlaying(true)
		s.view.PlayState(true)
		s.notify()
	case EventPause:
		s.state.SetPlaying(false)
		s.view.PlayState(false)
		s.Persist(true)
		s.notify()
	case EventEnded:
		s.Persist(true)
		s.state.SetPhase(PhaseEnded)
		s.view.PlayState(false)
		s.notify()

		s.mu.Lock()
		fn := s.onEnded
		s.mu.Unlock()
		if fn != nil {
			fn()
		}
	case EventError:
		s.logger.Warn("sink error", "error", ev.Err)
		s.state.SetPlaying(false)
		s.view.PlayState(false)
		s.notify()
	}
}

// Position returns the playhead, or the pending resume offset when no source is loaded.
func (s *Session) Position() float64 {
	if s.sink.HasSource() {
		return s.sink.Position()
	}
	return s.state.ResumeOffset()
}

// Duration returns the sink-reported duration, falling back to the descriptor's duration.
func (s *Session) Duration() float64 {
	if s.sink.HasSource() {
		if d := s.sink.Duration(); d > 0 {
			return d
		}
	}
	if track, ok := s.state.Current(); ok {
		return track.Duration
	}
	return 0
}

// Persist writes the resume snapshot at the current position.
func (s *Session) Persist(force bool) {
	s.persist(force, s.Position())
}

// PersistAt writes the resume snapshot at seconds.
func (s *Session) PersistAt(force bool, seconds float64) {
	s.persist(force, seconds)
}

// persist writes when forced, when the rounded second changed, or once the throttle window
// has passed since the last write.
func (s *Session) persist(force bool, progress float64) {
	if s.store == nil {
		return
	}
	track, ok := s.state.Current()
	if !ok {
		return
	}

	progress = math.Max(progress, 0)
	second := int(math.Round(progress))
	now := s.now()

	s.mu.Lock()
	changed := second != s.lastSecond
	allowed := s.limiter.AllowN(now, 1)
	if !force && !changed && !allowed {
		s.mu.Unlock()
		return
	}
	s.lastSecond = second
	s.mu.Unlock()

	s.store.StoreJSON(context.Background(), ResumeKey, models.ResumeSnapshot{
		Track:           identity.Snapshot(track),
		ProgressSeconds: progress,
		DurationSeconds: s.Duration(),
		UpdatedAt:       now,
	})
}

// Restore loads the resume snapshot into the state without loading a source or playing.
func (s *Session) Restore(ctx context.Context) bool {
	if s.store == nil {
		return false
	}

	var snap models.ResumeSnapshot
	if !s.store.LoadJSON(ctx, ResumeKey, &snap) {
		return false
	}
	if snap.Track.ID <= 0 && snap.Track.Title == "" {
		return false
	}

	track := identity.FromSnapshot(snap.Track)
	if track.Duration <= 0 {
		track.Duration = snap.DurationSeconds
	}

	s.state.SetCurrent(track)
	s.state.SetResumeOffset(snap.ProgressSeconds)
	s.state.SetPhase(PhasePaused)

	s.mu.Lock()
	s.lastSecond = int(math.Round(snap.ProgressSeconds))
	s.mu.Unlock()

	s.view.NowPlaying(track)
	s.view.PlayState(false)
	s.view.Progress(snap.ProgressSeconds, s.Duration())
	s.logger.Debug("restored resume snapshot", "track", track.ID, "progress", snap.ProgressSeconds)
	return true
}

// ClearResume deletes the resume snapshot.
func (s *Session) ClearResume(ctx context.Context) {
	if s.store != nil {
		s.store.Delete(ctx, ResumeKey)
	}
}

// Tick pushes progress to the view and persists it, throttled.
func (s *Session) Tick() {
	if !s.sink.HasSource() {
		return
	}
	s.view.Progress(s.Position(), s.Duration())
	if s.state.Playing() {
		s.Persist(false)
	}
}

// Run calls [Session.Tick] every interval until ctx is done.
func (s *Session) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 250 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.Persist(true)
			return
		case <-ticker.C:
			s.Tick()
		}
	}
}

// HasSource reports whether the sink has a loaded source.
func (s *Session) HasSource() bool { return s.sink.HasSource() }

// Toggle pauses or resumes the loaded source. It returns false when nothing is loaded.
func (s *Session) Toggle() bool {
	if !s.sink.HasSource() {
		return false
	}
	if s.state.Playing() {
		s.sink.Pause()
		return true
	}
	s.play()
	return true
}

// Stop unloads the source.
func (s *Session) Stop() {
	s.mu.Lock()
	s.pendingSeek = nil
	s.mu.Unlock()

	s.sink.Stop()
	s.state.SetPlaying(false)
	s.view.PlayState(false)
}

// Seek moves the playhead. Without a loaded source it scrubs the pending resume offset
// and persists it, so the next play resumes from there.
func (s *Session) Seek(seconds float64) {
	seconds = math.Max(seconds, 0)
	if d := s.Duration(); d > 0 {
		seconds = math.Min(seconds, d)
	}

	if !s.sink.HasSource() {
		s.state.SetResumeOffset(seconds)
		s.PersistAt(true, seconds)
		s.view.Progress(seconds, s.Duration())
		return
	}

	if s.sink.Ready() {
		if err := s.sink.Seek(seconds); err != nil {
			s.logger.Debug("seek failed", "seconds", seconds, "error", err)
		}
	} else {
		s.mu.Lock()
		s.pendingSeek = &pendingSeek{seconds: seconds, generation: s.state.Generation()}
		s.mu.Unlock()
	}
	s.PersistAt(true, seconds)
	s.view.Progress(seconds, s.Duration())
}
