package ui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/desertthunder/cassette/internal/models"
	"github.com/desertthunder/cassette/internal/playback"
	"github.com/desertthunder/cassette/internal/shared"
)

// Controls is the transport surface the player drives.
//
// Implemented by transport.Controller.
type Controls interface {
	Snapshot() playback.Snapshot
	Progress() (position, duration float64)
	PlayIndex(ctx context.Context, i int)
	PlayNext(ctx context.Context)
	PlayPrev(ctx context.Context)
	TogglePlayPause(ctx context.Context)
	Seek(seconds float64)
	SetNormalize(ctx context.Context, enabled bool) bool
}

// Liker toggles the favorite flag of the current track.
type Liker interface {
	ToggleLike(ctx context.Context) (bool, error)
}

// Model represents the player state on screen.
type Model struct {
	ctx       context.Context
	controls  Controls
	liker     Liker
	track     models.Track
	hasTrack  bool
	playing   bool
	liked     bool
	position  float64
	duration  float64
	disabled  bool
	reason    string
	normalize bool
	notice    string
	width     int
	height    int
	queue     list.Model
	bar       progress.Model
	help      help.Model
	keys      keyMap
}

// NewModel creates a player model. liker may be nil.
func NewModel(ctx context.Context, controls Controls, liker Liker, normalize bool) *Model {
	queue := list.New(nil, list.NewDefaultDelegate(), 0, 0)
	queue.Title = "Queue"
	queue.SetShowHelp(false)
	queue.SetFilteringEnabled(false)
	queue.SetShowStatusBar(false)
	queue.DisableQuitKeybindings()

	m := &Model{
		ctx:       ctx,
		controls:  controls,
		liker:     liker,
		normalize: normalize,
		queue:     queue,
		bar:       progress.New(progress.WithDefaultGradient(), progress.WithoutPercentage()),
		help:      help.New(),
		keys:      newKeyMap(),
	}
	m.apply(controls.Snapshot())
	m.position, m.duration = controls.Progress()
	return m
}

// Init starts the clock that keeps the queue highlight in sync.
func (m *Model) Init() tea.Cmd {
	return tick()
}

func tick() tea.Cmd {
	return tea.Tick(time.Second, func(time.Time) tea.Msg { return Msg{kind: MsgTick} })
}

// apply copies a state snapshot into the model.
func (m *Model) apply(snap playback.Snapshot) {
	if snap.Track != nil {
		m.track, m.hasTrack = *snap.Track, true
	}
	m.playing = snap.Playing
	m.liked = snap.Liked
	m.disabled = snap.Disabled
	m.reason = snap.DisabledReason
	m.keys.setDisabled(m.disabled)

	selected := m.queue.Index()
	m.queue.SetItems(queueItems(snap.Queue, snap.Index))
	if snap.Index >= 0 && selected == 0 {
		selected = snap.Index
	}
	if selected < len(snap.Queue) {
		m.queue.Select(selected)
	}
}

// Update handles incoming messages and updates the model state.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.bar.Width = max(msg.Width-4, 10)
		m.help.Width = msg.Width
		m.queue.SetSize(msg.Width-4, max(msg.Height-12, 4))
		return m, nil

	case tea.KeyMsg:
		return m.handleKeys(msg)

	case Msg:
		return m.handleEngine(msg)
	}
	return m, nil
}

func (m *Model) handleEngine(msg Msg) (tea.Model, tea.Cmd) {
	switch msg.kind {
	case MsgNowPlaying:
		m.track, m.hasTrack = msg.data.(models.Track), true
		m.position, m.duration = 0, m.track.Duration
		m.notice = ""
		return m, m.refresh()
	case MsgPlayState:
		m.playing = msg.data.(bool)
	case MsgLiked:
		m.liked = msg.data.(bool)
	case MsgProgress:
		p := msg.data.(progressData)
		m.position, m.duration = p.position, p.duration
	case MsgDisabled:
		d := msg.data.(disabledData)
		m.disabled, m.reason = d.disabled, d.reason
		m.keys.setDisabled(d.disabled)
	case MsgQueue:
		m.apply(msg.data.(playback.Snapshot))
	case MsgLikeFailed:
		m.notice = fmt.Sprintf("Could not update library: %v", msg.data)
	case MsgTick:
		return m, tea.Batch(m.refresh(), tick())
	}
	return m, nil
}

func (m *Model) handleKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.help):
		m.help.ShowAll = !m.help.ShowAll
	case key.Matches(msg, m.keys.toggle):
		return m, m.run(m.controls.TogglePlayPause)
	case key.Matches(msg, m.keys.next):
		return m, m.run(m.controls.PlayNext)
	case key.Matches(msg, m.keys.prev):
		return m, m.run(m.controls.PlayPrev)
	case key.Matches(msg, m.keys.forward):
		return m, m.seek(seekStep)
	case key.Matches(msg, m.keys.back):
		return m, m.seek(-seekStep)
	case key.Matches(msg, m.keys.like):
		return m, m.toggleLike()
	case key.Matches(msg, m.keys.normalize):
		m.normalize = !m.normalize
		enabled := m.normalize
		return m, func() tea.Msg {
			m.controls.SetNormalize(m.ctx, enabled)
			return nil
		}
	case key.Matches(msg, m.keys.up):
		m.queue.CursorUp()
	case key.Matches(msg, m.keys.down):
		m.queue.CursorDown()
	case key.Matches(msg, m.keys.enter):
		if item, ok := m.queue.SelectedItem().(queueItem); ok {
			index := item.index
			return m, m.run(func(ctx context.Context) { m.controls.PlayIndex(ctx, index) })
		}
	}
	return m, nil
}

// run executes a transport operation off the update loop and refreshes the queue afterwards.
//
// The engine reports back through the program, so it must never be called from Update.
func (m *Model) run(fn func(ctx context.Context)) tea.Cmd {
	return func() tea.Msg {
		fn(m.ctx)
		return queueMsg(m.controls.Snapshot())
	}
}

func (m *Model) seek(delta float64) tea.Cmd {
	target := max(m.position+delta, 0)
	return func() tea.Msg {
		m.controls.Seek(target)
		position, duration := m.controls.Progress()
		return progressMsg(position, duration)
	}
}

func (m *Model) toggleLike() tea.Cmd {
	if m.liker == nil {
		return nil
	}
	return func() tea.Msg {
		if _, err := m.liker.ToggleLike(m.ctx); err != nil {
			return likeFailedMsg(err)
		}
		return nil
	}
}

func (m *Model) refresh() tea.Cmd {
	return func() tea.Msg { return queueMsg(m.controls.Snapshot()) }
}

// View renders the player.
func (m *Model) View() string {
	var b strings.Builder

	b.WriteString(styles.title.Render("cassette"))
	b.WriteString("\n")
	b.WriteString(m.renderNowPlaying())
	b.WriteString("\n\n")

	if m.disabled {
		b.WriteString(styles.banner.Render(m.reason))
		b.WriteString("\n\n")
	}
	if m.notice != "" {
		b.WriteString(styles.warn.Render(m.notice))
		b.WriteString("\n\n")
	}

	if len(m.queue.Items()) > 0 {
		b.WriteString(m.queue.View())
		b.WriteString("\n")
	}
	b.WriteString(styles.help.Render(m.help.View(m.keys)))
	return b.String()
}

func (m *Model) renderNowPlaying() string {
	if !m.hasTrack {
		return styles.help.Render("Nothing playing")
	}

	state := "⏸"
	if m.playing {
		state = "▶"
	}
	heart := "♡"
	if m.liked {
		heart = styles.err.Render("♥")
	}
	title := m.track.Title
	if title == "" {
		title = "Unknown"
	}
	artist := m.track.Artist
	if artist == "" {
		artist = "Unknown artist"
	}

	percent := 0.0
	if m.duration > 0 {
		percent = min(m.position/m.duration, 1)
	}
	clock := fmt.Sprintf("%s / %s", shared.FormatDuration(m.position), shared.FormatDuration(m.duration))
	if m.normalize {
		clock += "  " + styles.ok.Render("normalized")
	}

	return fmt.Sprintf("%s %s  %s\n%s\n%s\n%s",
		state, styles.current.Render(title), heart,
		artist,
		m.bar.ViewAs(percent),
		clock,
	)
}
