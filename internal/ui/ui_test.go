package ui

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/desertthunder/cassette/internal/models"
	"github.com/desertthunder/cassette/internal/playback"
)

type fakeControls struct {
	mu        sync.Mutex
	snap      playback.Snapshot
	calls     []string
	seekTo    float64
	normalize bool
}

func (f *fakeControls) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakeControls) Snapshot() playback.Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snap
}

func (f *fakeControls) Progress() (float64, float64)        { return 30, 120 }
func (f *fakeControls) PlayNext(ctx context.Context)        { f.record("next") }
func (f *fakeControls) PlayPrev(ctx context.Context)        { f.record("prev") }
func (f *fakeControls) TogglePlayPause(ctx context.Context) { f.record("toggle") }
func (f *fakeControls) PlayIndex(ctx context.Context, i int) {
	f.record("play")
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snap.Index = i
}
func (f *fakeControls) Seek(seconds float64) {
	f.record("seek")
	f.seekTo = seconds
}
func (f *fakeControls) SetNormalize(ctx context.Context, enabled bool) bool {
	f.record("normalize")
	f.normalize = enabled
	return true
}

type fakeLiker struct{ err error }

func (f *fakeLiker) ToggleLike(ctx context.Context) (bool, error) { return f.err == nil, f.err }

func newTestModel() (*Model, *fakeControls) {
	controls := &fakeControls{snap: playback.Snapshot{
		Queue: []models.Record{
			{"id": float64(1), "title": "First", "artist": map[string]any{"name": "Band"}, "duration": float64(120)},
			{"id": float64(2), "title": "Second"},
		},
		Index:   0,
		Track:   &models.Track{ID: 1, Title: "First", Artist: "Band", Duration: 120},
		Playing: true,
	}}
	m := NewModel(context.Background(), controls, &fakeLiker{}, false)
	m.Update(tea.WindowSizeMsg{Width: 80, Height: 40})
	return m, controls
}

func press(m *Model, keys string) tea.Cmd {
	var msg tea.KeyMsg
	switch keys {
	case "space":
		msg = tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}}
	case "enter":
		msg = tea.KeyMsg{Type: tea.KeyEnter}
	case "right":
		msg = tea.KeyMsg{Type: tea.KeyRight}
	case "left":
		msg = tea.KeyMsg{Type: tea.KeyLeft}
	default:
		msg = tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(keys)}
	}
	_, cmd := m.Update(msg)
	return cmd
}

func TestModelRendering(t *testing.T) {
	m, _ := newTestModel()
	view := m.View()

	for _, want := range []string{"First", "Band", "0:30 / 2:00", "▶", "Second"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q:\n%s", want, view)
		}
	}
}

func TestModelEngineMessages(t *testing.T) {
	t.Run("now playing resets progress", func(t *testing.T) {
		m, _ := newTestModel()
		m.Update(nowPlayingMsg(models.Track{ID: 2, Title: "Second", Duration: 200}))
		if m.track.ID != 2 || m.position != 0 || m.duration != 200 {
			t.Errorf("unexpected model state: %+v %v %v", m.track, m.position, m.duration)
		}
	})

	t.Run("play state, liked and progress", func(t *testing.T) {
		m, _ := newTestModel()
		m.Update(playStateMsg(false))
		m.Update(likedMsg(true))
		m.Update(progressMsg(61, 120))

		if m.playing || !m.liked || m.position != 61 {
			t.Errorf("unexpected model state: playing=%v liked=%v position=%v", m.playing, m.liked, m.position)
		}
		view := m.View()
		if !strings.Contains(view, "⏸") || !strings.Contains(view, "♥") || !strings.Contains(view, "1:01 / 2:00") {
			t.Errorf("view does not reflect state:\n%s", view)
		}
	})

	t.Run("disabled banner gates transport keys", func(t *testing.T) {
		m, controls := newTestModel()
		m.Update(disabledMsg(true, "Track unavailable"))

		if !strings.Contains(m.View(), "Track unavailable") {
			t.Errorf("banner missing:\n%s", m.View())
		}
		if cmd := press(m, "n"); cmd != nil {
			cmd()
		}
		if len(controls.calls) != 0 {
			t.Errorf("transport keys should be disabled, got %v", controls.calls)
		}

		m.Update(disabledMsg(false, ""))
		if cmd := press(m, "n"); cmd != nil {
			cmd()
		}
		if len(controls.calls) != 1 || controls.calls[0] != "next" {
			t.Errorf("expected next after re-enable, got %v", controls.calls)
		}
	})

	t.Run("like failure shows a notice", func(t *testing.T) {
		m, _ := newTestModel()
		m.Update(likeFailedMsg(errors.New("disk full")))
		if !strings.Contains(m.View(), "disk full") {
			t.Errorf("notice missing:\n%s", m.View())
		}
	})
}

func TestModelKeys(t *testing.T) {
	tests := []struct {
		key  string
		want string
	}{
		{"space", "toggle"},
		{"n", "next"},
		{"p", "prev"},
		{"N", "normalize"},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			m, controls := newTestModel()
			cmd := press(m, tt.key)
			if cmd == nil {
				t.Fatal("expected a command")
			}
			cmd()
			if len(controls.calls) != 1 || controls.calls[0] != tt.want {
				t.Errorf("expected %s, got %v", tt.want, controls.calls)
			}
		})
	}

	t.Run("seek keys move from current position", func(t *testing.T) {
		m, controls := newTestModel()
		press(m, "right")()
		if controls.seekTo != 40 {
			t.Errorf("expected seek to 40, got %v", controls.seekTo)
		}

		m.position = 5
		press(m, "left")()
		if controls.seekTo != 0 {
			t.Errorf("seek should clamp at 0, got %v", controls.seekTo)
		}
	})

	t.Run("enter plays the selected entry", func(t *testing.T) {
		m, controls := newTestModel()
		press(m, "j")
		msg := press(m, "enter")()
		m.Update(msg)

		if controls.Snapshot().Index != 1 {
			t.Errorf("expected index 1 to play, got %d", controls.Snapshot().Index)
		}
	})

	t.Run("quit", func(t *testing.T) {
		m, _ := newTestModel()
		cmd := press(m, "q")
		if _, ok := cmd().(tea.QuitMsg); !ok {
			t.Error("expected quit")
		}
	})
}

type recordingSender struct {
	mu   sync.Mutex
	msgs []tea.Msg
}

func (r *recordingSender) Send(msg tea.Msg) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
}

func TestProgramView(t *testing.T) {
	v := NewProgramView()
	v.PlayState(true)

	sender := &recordingSender{}
	v.Bind(sender)
	v.NowPlaying(models.Track{ID: 3})
	v.PlayState(true)
	v.Liked(true)
	v.Progress(1, 2)
	v.Disabled(true, "nope")

	if len(sender.msgs) != 5 {
		t.Fatalf("expected 5 messages after binding, got %d", len(sender.msgs))
	}
	kinds := []MsgKind{MsgNowPlaying, MsgPlayState, MsgLiked, MsgProgress, MsgDisabled}
	for i, msg := range sender.msgs {
		if msg.(Msg).kind != kinds[i] {
			t.Errorf("message %d: expected kind %d, got %d", i, kinds[i], msg.(Msg).kind)
		}
	}
}
