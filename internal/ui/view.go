package ui

import (
	"sync/atomic"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/desertthunder/cassette/internal/models"
	"github.com/desertthunder/cassette/internal/playback"
)

// Sender delivers messages to a running program.
//
// Implemented by [tea.Program].
type Sender interface {
	Send(msg tea.Msg)
}

var _ playback.View = (*ProgramView)(nil)

// ProgramView implements the playback view by forwarding every update to a bubbletea program.
//
// The engine is built before the program exists, so the sender is bound late with [ProgramView.Bind].
// Updates sent before binding are dropped; the model reads a full snapshot on start.
type ProgramView struct {
	sender atomic.Pointer[Sender]
}

// NewProgramView creates an unbound view.
func NewProgramView() *ProgramView { return &ProgramView{} }

// Bind attaches the program that receives updates.
func (v *ProgramView) Bind(s Sender) { v.sender.Store(&s) }

func (v *ProgramView) send(msg tea.Msg) {
	if s := v.sender.Load(); s != nil {
		(*s).Send(msg)
	}
}

func (v *ProgramView) NowPlaying(track models.Track) { v.send(nowPlayingMsg(track)) }
func (v *ProgramView) PlayState(playing bool)        { v.send(playStateMsg(playing)) }
func (v *ProgramView) Liked(liked bool)              { v.send(likedMsg(liked)) }
func (v *ProgramView) Progress(position, duration float64) {
	v.send(progressMsg(position, duration))
}
func (v *ProgramView) Disabled(disabled bool, reason string) {
	v.send(disabledMsg(disabled, reason))
}
