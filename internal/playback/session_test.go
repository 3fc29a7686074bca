package playback_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/desertthunder/cassette/internal/models"
	"github.com/desertthunder/cassette/internal/playback"
	"github.com/desertthunder/cassette/internal/repositories"
	"github.com/desertthunder/cassette/internal/shared"
	tu "github.com/desertthunder/cassette/internal/testing"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

type harness struct {
	state   *playback.State
	sink    *tu.FakeSink
	kv      *tu.MemoryKV
	view    *tu.RecordingView
	clock   *clock
	session *playback.Session
}

func newHarness(t *testing.T, kv *tu.MemoryKV) *harness {
	t.Helper()
	if kv == nil {
		kv = tu.NewMemoryKV()
	}
	h := &harness{
		state: playback.NewState(),
		sink:  &tu.FakeSink{SourceLength: 210},
		kv:    kv,
		view:  &tu.RecordingView{},
		clock: &clock{t: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)},
	}
	h.session = playback.NewSession(h.state, h.sink, repositories.NewBestEffort(kv, nil), playback.SessionOptions{
		View:            h.view,
		PersistInterval: 1500 * time.Millisecond,
		Now:             h.clock.now,
	})
	return h
}

func readResume(t *testing.T, kv *tu.MemoryKV) models.ResumeSnapshot {
	t.Helper()
	raw, ok := kv.Value(playback.ResumeKey)
	if !ok {
		t.Fatal("expected a resume snapshot to be stored")
	}
	var snap models.ResumeSnapshot
	if err := json.Unmarshal([]byte(raw), &snap); err != nil {
		t.Fatalf("failed to decode resume snapshot: %v", err)
	}
	return snap
}

var song = models.Track{ID: 42, Title: "Song", Artist: "Band", Duration: 210}

func TestSessionSetSource(t *testing.T) {
	t.Run("autoplay starts playback", func(t *testing.T) {
		h := newHarness(t, nil)
		gen := h.state.BeginTrack(0, song)

		err := h.session.SetSource(context.Background(), "https://cdn.test/42.mp3", song, playback.SourceOptions{AutoPlay: true, Generation: gen})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !h.state.Playing() || h.state.Phase() != playback.PhasePlaying {
			t.Errorf("expected playing phase, got %v", h.state.Phase())
		}
		if h.sink.URL() != "https://cdn.test/42.mp3" {
			t.Errorf("unexpected sink url %q", h.sink.URL())
		}
		view := h.view.Snapshot()
		if view.Track.ID != 42 || !view.Playing {
			t.Errorf("view was not updated: %+v", view)
		}
		if snap := readResume(t, h.kv); snap.Track.ID != 42 || snap.ProgressSeconds != 0 {
			t.Errorf("unexpected initial snapshot: %+v", snap)
		}
	})

	t.Run("without autoplay settles paused at start time", func(t *testing.T) {
		h := newHarness(t, nil)
		gen := h.state.BeginTrack(0, song)

		if err := h.session.SetSource(context.Background(), "u", song, playback.SourceOptions{StartTime: 12, Generation: gen}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if h.sink.Plays != 0 {
			t.Errorf("expected no play call, got %d", h.sink.Plays)
		}
		if h.state.Phase() != playback.PhasePaused {
			t.Errorf("expected paused, got %v", h.state.Phase())
		}
		if len(h.sink.Seeks) != 1 || h.sink.Seeks[0] != 12 {
			t.Errorf("expected an immediate seek to 12, got %v", h.sink.Seeks)
		}
		if h.state.ResumeOffset() != 12 {
			t.Errorf("expected resume offset 12, got %v", h.state.ResumeOffset())
		}
	})

	t.Run("rejected play leaves the session paused", func(t *testing.T) {
		h := newHarness(t, nil)
		h.sink.RejectPlay = shared.ErrPlaybackRejected
		gen := h.state.BeginTrack(0, song)

		err := h.session.SetSource(context.Background(), "u", song, playback.SourceOptions{AutoPlay: true, Generation: gen})
		if err != nil {
			t.Fatalf("rejection must not be an error, got %v", err)
		}
		if h.state.Playing() || h.state.Phase() != playback.PhasePaused {
			t.Errorf("expected paused, got %v", h.state.Phase())
		}
		if disabled, _ := h.state.Disabled(); disabled {
			t.Error("rejection must not disable the session")
		}
	})

	t.Run("stale generation is ignored", func(t *testing.T) {
		h := newHarness(t, nil)
		old := h.state.BeginTrack(0, song)
		h.state.BeginTrack(1, models.Track{ID: 7, Title: "Next"})

		err := h.session.SetSource(context.Background(), "u", song, playback.SourceOptions{Generation: old})
		if !errors.Is(err, shared.ErrStaleSource) {
			t.Fatalf("expected ErrStaleSource, got %v", err)
		}
		if len(h.sink.Loads) != 0 {
			t.Errorf("stale source must not reach the sink, got %v", h.sink.Loads)
		}
		if cur, _ := h.state.Current(); cur.ID != 7 {
			t.Errorf("current track was overwritten: %+v", cur)
		}
	})

	t.Run("source superseded during load is stopped", func(t *testing.T) {
		h := newHarness(t, nil)
		gen := h.state.BeginTrack(0, song)
		next := models.Track{ID: 7, Title: "Next"}
		h.sink.BeforeLoad = func(context.Context, string) error {
			h.state.BeginTrack(1, next)
			return nil
		}

		err := h.session.SetSource(context.Background(), "https://cdn.test/42.mp3", song, playback.SourceOptions{AutoPlay: true, Generation: gen})
		if !errors.Is(err, shared.ErrStaleSource) {
			t.Fatalf("expected ErrStaleSource, got %v", err)
		}
		if h.sink.HasSource() || h.sink.Plays != 0 {
			t.Errorf("superseded source was left installed: url=%q plays=%d", h.sink.URL(), h.sink.Plays)
		}
		if cur, _ := h.state.Current(); cur.ID != 7 {
			t.Errorf("current track was overwritten: %+v", cur)
		}
		if view := h.view.Snapshot(); view.Track.ID == 42 {
			t.Error("superseded track reached the view")
		}
		if _, ok := h.kv.Value(playback.ResumeKey); ok {
			t.Error("superseded track must not be persisted")
		}
	})

	t.Run("load is cancelled by the next one", func(t *testing.T) {
		h := newHarness(t, nil)
		entered := make(chan struct{})
		h.sink.BeforeLoad = func(ctx context.Context, url string) error {
			if url != "first" {
				return nil
			}
			close(entered)
			<-ctx.Done()
			return ctx.Err()
		}

		first := h.state.BeginTrack(0, song)
		errc := make(chan error, 1)
		go func() {
			errc <- h.session.SetSource(context.Background(), "first", song, playback.SourceOptions{AutoPlay: true, Generation: first})
		}()
		<-entered

		next := models.Track{ID: 7, Title: "Next"}
		gen := h.state.BeginTrack(1, next)
		if err := h.session.SetSource(context.Background(), "second", next, playback.SourceOptions{AutoPlay: true, Generation: gen}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if err := <-errc; !errors.Is(err, shared.ErrStaleSource) {
			t.Errorf("expected the first load to be discarded as stale, got %v", err)
		}
		if h.sink.URL() != "second" || !h.sink.Playing() {
			t.Errorf("expected the second source playing, got %q playing=%v", h.sink.URL(), h.sink.Playing())
		}
	})

	t.Run("load failure", func(t *testing.T) {
		h := newHarness(t, nil)
		h.sink.LoadErr = errors.New("decoder exploded")
		gen := h.state.BeginTrack(0, song)

		err := h.session.SetSource(context.Background(), "u", song, playback.SourceOptions{Generation: gen})
		if !errors.Is(err, shared.ErrAudioUnavailable) {
			t.Errorf("expected ErrAudioUnavailable, got %v", err)
		}
	})
}

func TestSessionDeferredSeek(t *testing.T) {
	t.Run("applied once metadata arrives", func(t *testing.T) {
		h := newHarness(t, nil)
		h.sink.DeferMetadata = true
		gen := h.state.BeginTrack(0, song)

		if err := h.session.SetSource(context.Background(), "u", song, playback.SourceOptions{StartTime: 42, Generation: gen}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(h.sink.Seeks) != 0 {
			t.Fatalf("seek must wait for metadata, got %v", h.sink.Seeks)
		}

		h.sink.EmitMetadata()
		if len(h.sink.Seeks) != 1 || h.sink.Seeks[0] != 42 {
			t.Errorf("expected deferred seek to 42, got %v", h.sink.Seeks)
		}

		h.sink.EmitMetadata()
		if len(h.sink.Seeks) != 1 {
			t.Errorf("deferred seek must apply once, got %v", h.sink.Seeks)
		}
	})

	t.Run("dropped when a newer track started", func(t *testing.T) {
		h := newHarness(t, nil)
		h.sink.DeferMetadata = true
		gen := h.state.BeginTrack(0, song)

		if err := h.session.SetSource(context.Background(), "u", song, playback.SourceOptions{StartTime: 42, Generation: gen}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		h.state.BeginTrack(1, models.Track{ID: 7, Title: "Next"})
		h.sink.EmitMetadata()

		if len(h.sink.Seeks) != 0 {
			t.Errorf("stale deferred seek was applied: %v", h.sink.Seeks)
		}
	})
}

func TestSessionResume(t *testing.T) {
	kv := tu.NewMemoryKV()
	first := newHarness(t, kv)
	gen := first.state.BeginTrack(0, song)
	if err := first.session.SetSource(context.Background(), "u", song, playback.SourceOptions{AutoPlay: true, Generation: gen}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	first.sink.SetPosition(73)
	if !first.session.Toggle() {
		t.Fatal("toggle should pause a loaded source")
	}

	snap := readResume(t, kv)
	if snap.ProgressSeconds != 73 || snap.DurationSeconds != 210 || snap.Track.Title != "Song" {
		t.Fatalf("unexpected snapshot after pause: %+v", snap)
	}

	second := newHarness(t, kv)
	if !second.session.Restore(context.Background()) {
		t.Fatal("expected restore to succeed")
	}

	track, ok := second.state.Current()
	if !ok || track.ID != 42 || track.Title != "Song" {
		t.Errorf("unexpected restored track: %+v", track)
	}
	if got := second.session.Position(); got != 73 {
		t.Errorf("expected position 73, got %v", got)
	}
	if got := second.session.Duration(); got != 210 {
		t.Errorf("expected duration 210, got %v", got)
	}
	if second.sink.Plays != 0 || len(second.sink.Loads) != 0 {
		t.Error("restore must not load or play")
	}
	if second.state.Phase() != playback.PhasePaused {
		t.Errorf("expected paused phase, got %v", second.state.Phase())
	}
	if view := second.view.Snapshot(); view.Position != 73 || view.Playing {
		t.Errorf("unexpected view after restore: %+v", view)
	}

	t.Run("nothing stored", func(t *testing.T) {
		h := newHarness(t, nil)
		if h.session.Restore(context.Background()) {
			t.Error("expected restore to report false")
		}
	})

	t.Run("clear", func(t *testing.T) {
		second.session.ClearResume(context.Background())
		if _, ok := kv.Value(playback.ResumeKey); ok {
			t.Error("expected resume snapshot to be removed")
		}
	})

	t.Run("store failures are ignored", func(t *testing.T) {
		failing := tu.NewMemoryKV()
		failing.Fail = true
		h := newHarness(t, failing)
		gen := h.state.BeginTrack(0, song)
		if err := h.session.SetSource(context.Background(), "u", song, playback.SourceOptions{Generation: gen}); err != nil {
			t.Fatalf("store failure leaked: %v", err)
		}
		if h.session.Restore(context.Background()) {
			t.Error("restore from a failing store should report false")
		}
	})
}

func TestSessionPersistThrottle(t *testing.T) {
	h := newHarness(t, nil)
	gen := h.state.BeginTrack(0, song)
	if err := h.session.SetSource(context.Background(), "u", song, playback.SourceOptions{AutoPlay: true, Generation: gen}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	writes := h.kv.WriteCount()

	h.clock.advance(200 * time.Millisecond)
	h.sink.SetPosition(0.2)
	h.session.Tick()
	if h.kv.WriteCount() != writes {
		t.Errorf("expected throttled tick to skip the write")
	}

	h.clock.advance(300 * time.Millisecond)
	h.sink.SetPosition(1.1)
	h.session.Tick()
	if h.kv.WriteCount() != writes+1 {
		t.Errorf("expected a write when the rounded second changes")
	}

	h.clock.advance(1600 * time.Millisecond)
	h.session.Tick()
	if h.kv.WriteCount() != writes+2 {
		t.Errorf("expected a write once the throttle window passed")
	}

	h.session.Persist(true)
	if h.kv.WriteCount() != writes+3 {
		t.Errorf("forced persist must always write")
	}
}

func TestSessionSeek(t *testing.T) {
	t.Run("without a source scrubs the resume offset", func(t *testing.T) {
		h := newHarness(t, nil)
		h.state.SetCurrent(song)

		h.session.Seek(30)
		if h.state.ResumeOffset() != 30 {
			t.Errorf("expected resume offset 30, got %v", h.state.ResumeOffset())
		}
		if snap := readResume(t, h.kv); snap.ProgressSeconds != 30 {
			t.Errorf("expected persisted progress 30, got %v", snap.ProgressSeconds)
		}
		if h.session.Toggle() {
			t.Error("toggle without a source should report false")
		}
	})

	t.Run("clamps to duration", func(t *testing.T) {
		h := newHarness(t, nil)
		gen := h.state.BeginTrack(0, song)
		if err := h.session.SetSource(context.Background(), "u", song, playback.SourceOptions{Generation: gen}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		h.session.Seek(500)
		if got := h.sink.Seeks[len(h.sink.Seeks)-1]; got != 210 {
			t.Errorf("expected seek clamped to 210, got %v", got)
		}
	})
}

func TestSessionEnded(t *testing.T) {
	h := newHarness(t, nil)
	ended := 0
	h.session.OnEnded(func() { ended++ })

	gen := h.state.BeginTrack(0, song)
	if err := h.session.SetSource(context.Background(), "u", song, playback.SourceOptions{AutoPlay: true, Generation: gen}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	h.sink.Finish()

	if ended != 1 {
		t.Errorf("expected ended callback once, got %d", ended)
	}
	if h.state.Phase() != playback.PhaseEnded || h.state.Playing() {
		t.Errorf("expected ended phase, got %v", h.state.Phase())
	}
	if snap := readResume(t, h.kv); snap.ProgressSeconds != 210 {
		t.Errorf("expected final progress persisted, got %v", snap.ProgressSeconds)
	}
}
