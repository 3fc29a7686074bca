// package events carries notifications between the playback engine and the rest of the app.
//
// Handlers registered with [Bus.Handle] run synchronously on the publisher's goroutine.
// Channels returned by [Bus.Subscribe] are buffered and never block the publisher: when a
// subscriber falls behind, events are dropped for that subscriber.
package events

import (
	"sync"
	"time"
)

// Kind identifies an event type.
type Kind string

const (
	KindPlayerStateChanged Kind = "player-state-changed"
	KindTrackRemoved       Kind = "track-removed"
	KindLibraryChanged     Kind = "library-changed"
)

// Event is a notification published on a [Bus].
type Event struct {
	Kind    Kind      `json:"kind"`
	At      time.Time `json:"at"`
	Payload any       `json:"payload"`
}

// PlayerStateChanged is broadcast on every play, pause and track change.
type PlayerStateChanged struct {
	TrackID   int64  `json:"trackId"`
	IsPlaying bool   `json:"isPlaying"`
	Title     string `json:"title"`
	Artist    string `json:"artist"`
}

// TrackRemoved is published when a track leaves the library or loses its local file.
type TrackRemoved struct {
	TrackID int64 `json:"trackId"`
}

// LibraryChanged is published after any library mutation.
type LibraryChanged struct {
	Reason string `json:"reason"`
}

// Handler receives events synchronously.
type Handler func(Event)

// Publisher is the write side of a [Bus].
type Publisher interface {
	Publish(kind Kind, payload any)
}

// Bus fans events out to handlers and channel subscribers.
type Bus struct {
	mu       sync.RWMutex
	handlers map[Kind][]Handler
	subs     map[int]chan Event
	nextSub  int
	buffer   int
}

// NewBus creates a bus whose subscriber channels hold up to buffer events.
func NewBus(buffer int) *Bus {
	if buffer <= 0 {
		buffer = 16
	}
	return &Bus{
		handlers: make(map[Kind][]Handler),
		subs:     make(map[int]chan Event),
		buffer:   buffer,
	}
}

// Handle registers fn for events of kind.
func (b *Bus) Handle(kind Kind, fn Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[kind] = append(b.handlers[kind], fn)
}

// Subscribe returns a channel receiving every event and a function that closes it.
func (b *Bus) Subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextSub
	b.nextSub++
	ch := make(chan Event, b.buffer)
	b.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.subs, id)
			close(ch)
		})
	}
}

// Publish delivers an event to handlers of its kind and to every subscriber.
// A nil bus discards the event.
func (b *Bus) Publish(kind Kind, payload any) {
	if b == nil {
		return
	}
	ev := Event{Kind: kind, At: time.Now(), Payload: payload}

	b.mu.RLock()
	handlers := append([]Handler(nil), b.handlers[kind]...)
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
		}
	}
	b.mu.RUnlock()

	for _, fn := range handlers {
		fn(ev)
	}
}
