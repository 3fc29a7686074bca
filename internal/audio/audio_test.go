package audio

import (
	"context"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/desertthunder/cassette/internal/playback"
	"github.com/desertthunder/cassette/internal/shared"
	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/wav"
)

func constant(v float64) beep.Streamer {
	return beep.StreamerFunc(func(samples [][2]float64) (int, bool) {
		for i := range samples {
			samples[i] = [2]float64{v, v}
		}
		return len(samples), true
	})
}

func pull(s beep.Streamer, n int) [][2]float64 {
	buf := make([][2]float64, n)
	s.Stream(buf)
	return buf
}

func TestCompressor(t *testing.T) {
	t.Run("reduces loud input", func(t *testing.T) {
		c, err := NewCompressor(DefaultSampleRate, CompressorOptions{ThresholdDB: -24, Ratio: 4})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		c.Streamer = constant(1)

		out := pull(c, 44100)
		last := out[len(out)-1][0]
		// 24dB over the threshold at 4:1 leaves 6dB over, an 18dB reduction
		want := math.Pow(10, -18.0/20)
		if math.Abs(last-want) > 0.01 {
			t.Errorf("expected settled gain %.3f, got %.3f", want, last)
		}
	})

	t.Run("leaves quiet input alone", func(t *testing.T) {
		c, _ := NewCompressor(DefaultSampleRate, CompressorOptions{})
		c.Streamer = constant(0.01)

		out := pull(c, 4410)
		if out[len(out)-1][0] != 0.01 {
			t.Errorf("expected unity gain below threshold, got %v", out[len(out)-1][0])
		}
	})

	t.Run("invalid options", func(t *testing.T) {
		if _, err := NewCompressor(0, CompressorOptions{}); err == nil {
			t.Error("expected error for zero sample rate")
		}
		if _, err := NewCompressor(DefaultSampleRate, CompressorOptions{Ratio: 0.5}); err == nil {
			t.Error("expected error for ratio below 1")
		}
	})

	t.Run("silent without input", func(t *testing.T) {
		c, _ := NewCompressor(DefaultSampleRate, CompressorOptions{})
		n, ok := c.Stream(make([][2]float64, 8))
		if n != 8 || !ok {
			t.Errorf("expected silence, got %d %v", n, ok)
		}
	})
}

func TestGraphRouting(t *testing.T) {
	g := NewGraph(GraphOptions{})
	out := g.Output()
	g.SetSource(constant(1))

	if got := pull(out, 64)[63][0]; got != 1 {
		t.Fatalf("expected direct routing at unity, got %v", got)
	}

	for range 3 {
		if !g.ApplyNormalizeRouting(true) {
			t.Fatal("expected normalization to be available")
		}
	}
	if !g.Normalizing() {
		t.Error("expected normalizing to be reported")
	}

	buf := make([][2]float64, 44100)
	n, ok := out.Stream(buf)
	if n != len(buf) || !ok {
		t.Fatalf("toggling must not stop the stream, got %d %v", n, ok)
	}
	if buf[n-1][0] >= 0.5 {
		t.Errorf("expected compressed output, got %v", buf[n-1][0])
	}

	g.ApplyNormalizeRouting(false)
	if got := pull(out, 64)[63][0]; got != 1 {
		t.Errorf("expected direct routing restored, got %v", got)
	}

	t.Run("unavailable compressor passes audio through", func(t *testing.T) {
		g := NewGraph(GraphOptions{Compressor: CompressorOptions{Ratio: 0.5}})
		g.SetSource(constant(0.8))
		if g.ApplyNormalizeRouting(true) {
			t.Error("expected normalization to be unavailable")
		}
		if g.Available() || g.Normalizing() {
			t.Error("expected unavailable graph")
		}
		if got := pull(g.Output(), 16)[15][0]; got != 0.8 {
			t.Errorf("expected passthrough, got %v", got)
		}
	})

	t.Run("output gain", func(t *testing.T) {
		g := NewGraph(GraphOptions{OutputGain: 0.5})
		g.SetSource(constant(1))
		if got := pull(g.Output(), 4)[3][0]; got != 0.5 {
			t.Errorf("expected half gain, got %v", got)
		}
	})

	t.Run("exhausted source becomes silence", func(t *testing.T) {
		g := NewGraph(GraphOptions{})
		g.SetSource(beep.Take(4, constant(1)))
		buf := make([][2]float64, 8)
		n, ok := g.Output().Stream(buf)
		if n != 8 || !ok || buf[3][0] != 1 || buf[7][0] != 0 {
			t.Errorf("unexpected output %v (%d %v)", buf, n, ok)
		}
	})
}

type fakeOutput struct {
	sync.Mutex
	streamer beep.Streamer
	initErr  error
	inits    int
}

func (o *fakeOutput) Init(rate beep.SampleRate, bufferSize int) error {
	o.inits++
	return o.initErr
}

func (o *fakeOutput) Play(s beep.Streamer) { o.streamer = s }

func (o *fakeOutput) pull(n int) [][2]float64 {
	o.Lock()
	defer o.Unlock()
	return pull(o.streamer, n)
}

// writeWAV writes frames of a constant signal as a 16-bit stereo WAV file.
func writeWAV(t *testing.T, frames int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tone.wav")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("failed to create wav: %v", err)
	}
	defer f.Close()

	format := beep.Format{SampleRate: DefaultSampleRate, NumChannels: 2, Precision: 2}
	if err := wav.Encode(f, beep.Take(frames, constant(0.5)), format); err != nil {
		t.Fatalf("failed to encode wav: %v", err)
	}
	return path
}

func newTestSink(t *testing.T) (*Sink, *fakeOutput, chan playback.Event) {
	t.Helper()
	out := &fakeOutput{}
	s := NewSink(SinkOptions{Output: out})
	events := make(chan playback.Event, 16)
	s.SetListener(func(ev playback.Event) { events <- ev })
	return s, out, events
}

func waitFor(t *testing.T, events chan playback.Event, kind playback.EventKind) {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case ev := <-events:
			if ev.Kind == kind {
				return
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %s", kind)
		}
	}
}

func TestSink(t *testing.T) {
	ctx := context.Background()

	t.Run("local file lifecycle", func(t *testing.T) {
		s, out, events := newTestSink(t)
		path := writeWAV(t, 4410)

		if err := s.Load(ctx, shared.FileURL(path)); err != nil {
			t.Fatalf("load failed: %v", err)
		}
		waitFor(t, events, playback.EventMetadata)

		if !s.Ready() || !s.HasSource() {
			t.Error("expected a ready source")
		}
		if d := s.Duration(); math.Abs(d-0.1) > 1e-6 {
			t.Errorf("expected 0.1s duration, got %v", d)
		}
		if got := out.pull(16)[15][0]; got != 0 {
			t.Errorf("loaded source must start paused, got %v", got)
		}

		if err := s.Seek(0.05); err != nil {
			t.Fatalf("seek failed: %v", err)
		}
		if p := s.Position(); math.Abs(p-0.05) > 1e-3 {
			t.Errorf("expected position 0.05, got %v", p)
		}

		if err := s.Play(); err != nil {
			t.Fatalf("play failed: %v", err)
		}
		waitFor(t, events, playback.EventPlay)
		if got := out.pull(16)[15][0]; math.Abs(got-0.5) > 0.01 {
			t.Errorf("expected audio after play, got %v", got)
		}

		s.Pause()
		waitFor(t, events, playback.EventPause)
		s.Play()
		out.pull(8192)
		waitFor(t, events, playback.EventEnded)

		s.Stop()
		if s.HasSource() {
			t.Error("expected no source after stop")
		}
		if err := s.Seek(1); !errors.Is(err, shared.ErrNoSource) {
			t.Errorf("expected ErrNoSource, got %v", err)
		}
		if out.inits != 1 {
			t.Errorf("expected the output to be opened once, got %d", out.inits)
		}
	})

	t.Run("play and seek after the end start over", func(t *testing.T) {
		s, out, events := newTestSink(t)
		if err := s.Load(ctx, shared.FileURL(writeWAV(t, 441))); err != nil {
			t.Fatalf("load failed: %v", err)
		}
		s.Play()
		out.pull(8192)
		waitFor(t, events, playback.EventEnded)

		if err := s.Play(); err != nil {
			t.Fatalf("play after end failed: %v", err)
		}
		waitFor(t, events, playback.EventPlay)
		if got := out.pull(16)[15][0]; math.Abs(got-0.5) > 0.01 {
			t.Errorf("expected audio after replay, got %v", got)
		}

		out.pull(8192)
		waitFor(t, events, playback.EventEnded)

		if err := s.Seek(0.005); err != nil {
			t.Fatalf("seek after end failed: %v", err)
		}
		if p := s.Position(); math.Abs(p-0.005) > 1e-3 {
			t.Errorf("expected position 0.005, got %v", p)
		}
		if got := out.pull(16)[15][0]; got != 0 {
			t.Errorf("seek after end must leave the source paused, got %v", got)
		}
		if err := s.Play(); err != nil {
			t.Fatalf("play failed: %v", err)
		}
		if got := out.pull(16)[15][0]; math.Abs(got-0.5) > 0.01 {
			t.Errorf("expected audio from the seek position, got %v", got)
		}
	})

	t.Run("remote source", func(t *testing.T) {
		data, err := os.ReadFile(writeWAV(t, 441))
		if err != nil {
			t.Fatalf("failed to read wav: %v", err)
		}
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write(data)
		}))
		defer srv.Close()

		s, _, _ := newTestSink(t)
		if err := s.Load(ctx, srv.URL+"/stream"); err != nil {
			t.Fatalf("load failed: %v", err)
		}
		if d := s.Duration(); math.Abs(d-0.01) > 1e-6 {
			t.Errorf("expected 0.01s duration, got %v", d)
		}
	})

	t.Run("errors", func(t *testing.T) {
		s, _, _ := newTestSink(t)
		if err := s.Play(); !errors.Is(err, shared.ErrNoSource) {
			t.Errorf("expected ErrNoSource from play without source, got %v", err)
		}

		junk := filepath.Join(t.TempDir(), "notes.txt")
		os.WriteFile(junk, []byte("definitely not audio"), 0o644)
		if err := s.Load(ctx, junk); !errors.Is(err, shared.ErrUnsupportedAudio) {
			t.Errorf("expected ErrUnsupportedAudio, got %v", err)
		}
		if err := s.Load(ctx, filepath.Join(t.TempDir(), "missing.mp3")); !errors.Is(err, shared.ErrNoSource) {
			t.Errorf("expected ErrNoSource, got %v", err)
		}
	})

	t.Run("output failure", func(t *testing.T) {
		s := NewSink(SinkOptions{Output: &fakeOutput{initErr: errors.New("no device")}})
		if err := s.Load(ctx, "/dev/null"); !errors.Is(err, shared.ErrAudioUnavailable) {
			t.Errorf("expected ErrAudioUnavailable, got %v", err)
		}
	})
}
