package playback

import "context"

// EventKind is a notification emitted by a [Sink].
type EventKind int

const (
	// EventMetadata fires once the loaded source reports its duration and accepts seeks.
	EventMetadata EventKind = iota
	EventPlay
	EventPause
	EventEnded
	EventError
)

func (k EventKind) String() string {
	switch k {
	case EventMetadata:
		return "metadata"
	case EventPlay:
		return "play"
	case EventPause:
		return "pause"
	case EventEnded:
		return "ended"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Event is delivered to the sink listener.
type Event struct {
	Kind EventKind
	Err  error
}

// Sink is the single audio output.
//
// Implementations deliver events to the listener from any goroutine and must not hold
// internal locks while doing so.
type Sink interface {
	// Load replaces the current source. Playback does not start until Play.
	Load(ctx context.Context, url string) error
	// Play starts or resumes output. It may be rejected by the platform.
	Play() error
	Pause()
	// Stop unloads the source.
	Stop()
	Seek(seconds float64) error
	// Position returns the playhead in seconds.
	Position() float64
	// Duration returns the source duration in seconds, or 0 before metadata is available.
	Duration() float64
	// Ready reports whether metadata is available for the loaded source.
	Ready() bool
	HasSource() bool
	SetListener(fn func(Event))
}
