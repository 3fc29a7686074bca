package audio

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/cassette/internal/playback"
	"github.com/desertthunder/cassette/internal/shared"
	"github.com/dhowden/tag"
	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/flac"
	"github.com/gopxl/beep/v2/mp3"
	"github.com/gopxl/beep/v2/speaker"
	"github.com/gopxl/beep/v2/vorbis"
	"github.com/gopxl/beep/v2/wav"
)

const (
	DefaultSampleRate = beep.SampleRate(44100)
	SpeakerBuffer     = 250 * time.Millisecond
	resampleQuality   = 4
	// remote sources are buffered in memory so they can seek
	maxRemoteBytes = 256 << 20
)

// Output is the device the graph is played on.
type Output interface {
	Init(rate beep.SampleRate, bufferSize int) error
	Play(s beep.Streamer)
	sync.Locker
}

// Speaker is the [Output] backed by the system audio device.
type Speaker struct{}

func (Speaker) Init(rate beep.SampleRate, bufferSize int) error {
	return speaker.Init(rate, bufferSize)
}
func (Speaker) Play(s beep.Streamer) { speaker.Play(s) }
func (Speaker) Lock()                { speaker.Lock() }
func (Speaker) Unlock()              { speaker.Unlock() }

// SinkOptions configures a [Sink].
type SinkOptions struct {
	Output     Output
	Graph      *Graph
	HTTPClient *http.Client
	Logger     *log.Logger
}

// Sink implements [playback.Sink] on top of beep.
//
// The output device is opened on the first Load and the graph output is played on it for
// the lifetime of the sink. Loading replaces the graph's source. Events are delivered
// without holding any lock, and "ended" arrives from its own goroutine because it is
// detected inside the output's streaming callback.
type Sink struct {
	output Output
	graph  *Graph
	client *http.Client
	logger *log.Logger

	initOnce sync.Once
	initErr  error

	mu       sync.Mutex
	listener func(playback.Event)
	stream   beep.StreamSeekCloser
	format   beep.Format
	ctrl     *beep.Ctrl
	playing  bool
	// finished is set once the graph has dropped a source that played to its end.
	finished bool
	loadID   uint64
}

func NewSink(opts SinkOptions) *Sink {
	if opts.Output == nil {
		opts.Output = Speaker{}
	}
	if opts.Graph == nil {
		opts.Graph = NewGraph(GraphOptions{Locker: opts.Output})
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 2 * time.Minute}
	}
	if opts.Logger == nil {
		opts.Logger = shared.NopLogger()
	}
	return &Sink{output: opts.Output, graph: opts.Graph, client: opts.HTTPClient, logger: opts.Logger}
}

// Graph returns the effects graph the sink plays through.
func (s *Sink) Graph() *Graph { return s.graph }

func (s *Sink) SetListener(fn func(playback.Event)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listener = fn
}

func (s *Sink) emit(ev playback.Event) {
	s.mu.Lock()
	fn := s.listener
	s.mu.Unlock()
	if fn != nil {
		fn(ev)
	}
}

func (s *Sink) init() error {
	s.initOnce.Do(func() {
		rate := s.graph.opts.SampleRate
		if err := s.output.Init(rate, rate.N(SpeakerBuffer)); err != nil {
			s.initErr = fmt.Errorf("%w: %v", shared.ErrAudioUnavailable, err)
			return
		}
		s.output.Play(s.graph.Output())
	})
	return s.initErr
}

// Load opens and decodes source and leaves it paused at the start.
func (s *Sink) Load(ctx context.Context, source string) error {
	if err := s.init(); err != nil {
		return err
	}

	rsc, name, err := s.open(ctx, source)
	if err != nil {
		return err
	}

	stream, format, err := decode(rsc, name)
	if err != nil {
		rsc.Close()
		return err
	}

	s.mu.Lock()
	s.loadID++
	id := s.loadID
	old := s.stream
	s.stream = stream
	s.format = format
	s.playing = false
	s.finished = false
	s.ctrl = s.chain(true)
	ctrl := s.ctrl
	s.mu.Unlock()

	s.install(ctrl, id)
	if old != nil {
		old.Close()
	}

	s.logger.Debug("source loaded", "source", source, "rate", format.SampleRate, "length", format.SampleRate.D(stream.Len()))
	s.emit(playback.Event{Kind: playback.EventMetadata})
	return nil
}

// chain builds the paused or running control for the loaded stream. Callers hold s.mu.
func (s *Sink) chain(paused bool) *beep.Ctrl {
	var resampled beep.Streamer = s.stream
	if rate := s.graph.opts.SampleRate; s.format.SampleRate != rate {
		resampled = beep.Resample(resampleQuality, s.format.SampleRate, rate, s.stream)
	}
	return &beep.Ctrl{Streamer: resampled, Paused: paused}
}

func (s *Sink) install(ctrl *beep.Ctrl, id uint64) {
	s.graph.SetSource(beep.Seq(ctrl, beep.Callback(func() { go s.ended(id) })))
}

// rearm puts a source that played to its end back on the graph at pos. Callers hold s.mu.
func (s *Sink) rearm(pos int, paused bool) error {
	s.output.Lock()
	err := s.stream.Seek(pos)
	s.output.Unlock()
	if err != nil {
		return err
	}

	s.ctrl = s.chain(paused)
	s.finished = false
	s.install(s.ctrl, s.loadID)
	return nil
}

func (s *Sink) ended(id uint64) {
	s.mu.Lock()
	if id != s.loadID || s.stream == nil {
		s.mu.Unlock()
		return
	}
	s.playing = false
	s.finished = true
	s.mu.Unlock()
	s.emit(playback.Event{Kind: playback.EventEnded})
}

// readSeekCloser lets an in-memory buffer stand in for a file.
type readSeekCloser struct {
	*bytes.Reader
}

func (readSeekCloser) Close() error { return nil }

type seekableReadCloser interface {
	io.ReadSeeker
	io.Closer
}

func (s *Sink) open(ctx context.Context, source string) (seekableReadCloser, string, error) {
	if path, ok := shared.LocalPath(source); ok {
		f, err := os.Open(path)
		if err != nil {
			return nil, "", fmt.Errorf("%w: %v", shared.ErrNoSource, err)
		}
		return f, path, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, source, nil)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", shared.ErrNoSource, err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", shared.ErrServiceUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("%w: status %d for %s", shared.ErrNoSource, resp.StatusCode, source)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxRemoteBytes))
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", shared.ErrNoSource, err)
	}
	return readSeekCloser{bytes.NewReader(data)}, req.URL.Path, nil
}

// container identifies the audio format from the header, falling back to the extension.
func container(r io.ReadSeeker, name string) string {
	defer r.Seek(0, io.SeekStart)

	if _, fileType, err := tag.Identify(r); err == nil {
		switch fileType {
		case tag.MP3:
			return ".mp3"
		case tag.FLAC:
			return ".flac"
		case tag.OGG:
			return ".ogg"
		}
	}

	head := make([]byte, 12)
	if _, err := r.Seek(0, io.SeekStart); err == nil {
		if n, _ := io.ReadFull(r, head); n == len(head) {
			switch {
			case string(head[0:4]) == "RIFF" && string(head[8:12]) == "WAVE":
				return ".wav"
			case head[0] == 0xFF && head[1]&0xE0 == 0xE0:
				return ".mp3"
			}
		}
	}
	return strings.ToLower(filepath.Ext(name))
}

func decode(rsc seekableReadCloser, name string) (beep.StreamSeekCloser, beep.Format, error) {
	var (
		stream beep.StreamSeekCloser
		format beep.Format
		err    error
	)

	switch ext := container(rsc, name); ext {
	case ".mp3":
		stream, format, err = mp3.Decode(rsc)
	case ".flac":
		stream, format, err = flac.Decode(rsc)
	case ".ogg", ".oga":
		stream, format, err = vorbis.Decode(rsc)
	case ".wav":
		stream, format, err = wav.Decode(rsc)
	default:
		return nil, beep.Format{}, fmt.Errorf("%w: %s", shared.ErrUnsupportedAudio, name)
	}
	if err != nil {
		return nil, beep.Format{}, fmt.Errorf("%w: %v", shared.ErrUnsupportedAudio, err)
	}
	return stream, format, nil
}

// Play resumes the source. A source that played to its end starts over.
func (s *Sink) Play() error {
	s.mu.Lock()
	if s.ctrl == nil {
		s.mu.Unlock()
		return shared.ErrNoSource
	}
	if s.finished {
		if err := s.rearm(0, true); err != nil {
			s.mu.Unlock()
			return fmt.Errorf("rewind: %w", err)
		}
	}
	ctrl := s.ctrl
	s.playing = true
	s.mu.Unlock()

	s.output.Lock()
	ctrl.Paused = false
	s.output.Unlock()

	s.emit(playback.Event{Kind: playback.EventPlay})
	return nil
}

func (s *Sink) Pause() {
	s.mu.Lock()
	if s.ctrl == nil || !s.playing {
		s.mu.Unlock()
		return
	}
	ctrl := s.ctrl
	s.playing = false
	s.mu.Unlock()

	s.output.Lock()
	ctrl.Paused = true
	s.output.Unlock()

	s.emit(playback.Event{Kind: playback.EventPause})
}

// Stop unloads the source without emitting events.
func (s *Sink) Stop() {
	s.mu.Lock()
	stream := s.stream
	s.stream = nil
	s.ctrl = nil
	s.playing = false
	s.finished = false
	s.loadID++
	s.mu.Unlock()

	s.graph.SetSource(nil)
	if stream != nil {
		stream.Close()
	}
}

// Seek moves the playhead. Seeking a source that played to its end leaves it paused at
// the new position.
func (s *Sink) Seek(seconds float64) error {
	s.mu.Lock()
	stream, format := s.stream, s.format
	if stream == nil {
		s.mu.Unlock()
		return shared.ErrNoSource
	}

	pos := format.SampleRate.N(time.Duration(seconds * float64(time.Second)))
	pos = max(0, min(pos, stream.Len()-1))

	if s.finished {
		err := s.rearm(pos, true)
		s.mu.Unlock()
		if err != nil {
			return fmt.Errorf("seek to %.1fs: %w", seconds, err)
		}
		return nil
	}
	s.mu.Unlock()

	s.output.Lock()
	defer s.output.Unlock()
	if err := stream.Seek(pos); err != nil {
		return fmt.Errorf("seek to %.1fs: %w", seconds, err)
	}
	return nil
}

func (s *Sink) Position() float64 {
	s.mu.Lock()
	stream, format := s.stream, s.format
	s.mu.Unlock()
	if stream == nil {
		return 0
	}

	s.output.Lock()
	defer s.output.Unlock()
	return format.SampleRate.D(stream.Position()).Seconds()
}

func (s *Sink) Duration() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stream == nil {
		return 0
	}
	return s.format.SampleRate.D(s.stream.Len()).Seconds()
}

func (s *Sink) Ready() bool { return s.HasSource() }

func (s *Sink) HasSource() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stream != nil
}

var _ playback.Sink = (*Sink)(nil)
