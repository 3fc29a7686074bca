// package playback owns the playback state, the output sink lifecycle and resume persistence.
package playback

import (
	"sync"

	"github.com/desertthunder/cassette/internal/models"
)

// Phase is the playback state machine.
//
//	Idle → Loading → Playing ⇄ Paused → Ended
//
// Disabled is entered from any phase when resolution fails and left by starting a new track.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseLoading
	PhasePlaying
	PhasePaused
	PhaseEnded
	PhaseDisabled
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseLoading:
		return "loading"
	case PhasePlaying:
		return "playing"
	case PhasePaused:
		return "paused"
	case PhaseEnded:
		return "ended"
	case PhaseDisabled:
		return "disabled"
	default:
		return "unknown"
	}
}

// MarshalText encodes the phase by name.
func (p Phase) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

// Failure is the last resolution failure shown to the user.
type Failure struct {
	Reason     string `json:"reason"`
	Diagnostic string `json:"diagnostic,omitempty"`
}

// Snapshot is a read-only copy of [State].
type Snapshot struct {
	Queue          []models.Record     `json:"queue"`
	Index          int                 `json:"index"`
	Track          *models.Track       `json:"track,omitempty"`
	Playing        bool                `json:"playing"`
	Liked          bool                `json:"liked"`
	Context        *models.PlayContext `json:"context,omitempty"`
	Token          string              `json:"correlationToken,omitempty"`
	Correlation    models.Correlation  `json:"correlation"`
	Failure        *Failure            `json:"failure,omitempty"`
	Disabled       bool                `json:"disabled"`
	DisabledReason string              `json:"disabledReason,omitempty"`
	ResumeOffset   float64             `json:"resumeOffset"`
	Generation     uint64              `json:"generation"`
	Phase          Phase               `json:"phase"`
}

// State is the single playback state of the process.
//
// It is mutated by the transport controller, the session and the like controller and read
// everywhere else through [State.Snapshot].
type State struct {
	mu             sync.RWMutex
	queue          []models.Record
	index          int
	current        *models.Track
	playing        bool
	liked          bool
	context        *models.PlayContext
	token          string
	correlation    models.Correlation
	failure        *Failure
	disabled       bool
	disabledReason string
	resumeOffset   float64
	generation     uint64
	phase          Phase
}

// NewState creates an idle state with an empty queue.
func NewState() *State {
	return &State{index: -1}
}

// Snapshot returns a copy of the state.
func (s *State) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{
		Queue:          append([]models.Record(nil), s.queue...),
		Index:          s.index,
		Playing:        s.playing,
		Liked:          s.liked,
		Token:          s.token,
		Correlation:    s.correlation,
		Disabled:       s.disabled,
		DisabledReason: s.disabledReason,
		ResumeOffset:   s.resumeOffset,
		Generation:     s.generation,
		Phase:          s.phase,
	}
	if s.current != nil {
		t := *s.current
		snap.Track = &t
	}
	if s.context != nil {
		c := *s.context
		snap.Context = &c
	}
	if s.failure != nil {
		f := *s.failure
		snap.Failure = &f
	}
	return snap
}

// SetQueue replaces the queue and context and clears the disabled state and prior failure.
func (s *State) SetQueue(queue []models.Record, pc *models.PlayContext) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.queue = append([]models.Record(nil), queue...)
	s.index = -1
	s.context = nil
	if pc.Valid() {
		c := *pc
		s.context = &c
	}
	s.disabled = false
	s.disabledReason = ""
	s.failure = nil
}

// ResetQueue clears queue, index and context for ad hoc playback.
func (s *State) ResetQueue() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queue = nil
	s.index = -1
	s.context = nil
}

// AppendQueue adds records to the end of the queue.
func (s *State) AppendQueue(records ...models.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queue = append(s.queue, records...)
}

// SeedQueue turns the current ad hoc track into a one-entry queue when no queue exists.
// It reports whether the queue was seeded.
func (s *State) SeedQueue(record models.Record) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) > 0 || s.current == nil {
		return false
	}
	s.queue = []models.Record{record}
	s.index = 0
	return true
}

// Queue returns a copy of the queue and the current index.
func (s *State) Queue() ([]models.Record, int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.Record(nil), s.queue...), s.index
}

// Context returns the active play context.
func (s *State) Context() *models.PlayContext {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.context == nil {
		return nil
	}
	c := *s.context
	return &c
}

// BeginTrack selects a new current track and returns its generation.
//
// It resets the resume offset, clears the correlation token and the disabled state, and
// moves to [PhaseLoading]. Work started for an older generation must not mutate the
// session once a newer generation exists.
func (s *State) BeginTrack(index int, track models.Track) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.generation++
	s.index = index
	t := track
	s.current = &t
	s.resumeOffset = 0
	s.token = ""
	s.correlation = models.Correlation{}
	s.disabled = false
	s.disabledReason = ""
	s.failure = nil
	s.playing = false
	s.phase = PhaseLoading
	return s.generation
}

// Generation returns the current generation.
func (s *State) Generation() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.generation
}

// IsCurrent reports whether gen is still the latest generation.
func (s *State) IsCurrent(gen uint64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.generation == gen
}

// Current returns the current track.
func (s *State) Current() (models.Track, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return models.Track{}, false
	}
	return *s.current, true
}

// SetCurrent replaces the current track without starting a new generation.
func (s *State) SetCurrent(track models.Track) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := track
	s.current = &t
}

// SetPlaying updates the playing flag and moves between Playing and Paused.
func (s *State) SetPlaying(playing bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.playing = playing
	if s.disabled {
		return
	}
	if playing {
		s.phase = PhasePlaying
	} else if s.phase == PhasePlaying || s.phase == PhaseLoading {
		s.phase = PhasePaused
	}
}

// Playing reports whether audio is playing.
func (s *State) Playing() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.playing
}

// SetPhase forces a phase. Entering Idle or Ended clears the playing flag.
func (s *State) SetPhase(p Phase) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.phase = p
	if p == PhaseIdle || p == PhaseEnded || p == PhaseDisabled {
		s.playing = false
	}
}

// Phase returns the current phase.
func (s *State) Phase() Phase {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.phase
}

// SetLiked updates the liked flag.
func (s *State) SetLiked(liked bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.liked = liked
}

// Liked reports the liked flag.
func (s *State) Liked() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.liked
}

// SetToken records the correlation of the in-flight download.
func (s *State) SetToken(token string, c models.Correlation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
	s.correlation = c
}

// Disable marks the session unusable until a new track starts.
func (s *State) Disable(reason, diagnostic string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disabled = true
	s.disabledReason = reason
	s.failure = &Failure{Reason: reason, Diagnostic: diagnostic}
	s.playing = false
	s.phase = PhaseDisabled
}

// Disabled reports the disabled flag and reason.
func (s *State) Disabled() (bool, string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.disabled, s.disabledReason
}

// SetResumeOffset sets the position playback resumes from when no source is loaded.
func (s *State) SetResumeOffset(seconds float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if seconds < 0 {
		seconds = 0
	}
	s.resumeOffset = seconds
}

// ResumeOffset returns the pending resume position.
func (s *State) ResumeOffset() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.resumeOffset
}
