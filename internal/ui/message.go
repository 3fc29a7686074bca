package ui

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/desertthunder/cassette/internal/models"
	"github.com/desertthunder/cassette/internal/playback"
)

// MsgKind enumerates all message types in the player.
type MsgKind int

// Msg represents all possible engine messages in the TUI (Elm-style message union).
type Msg struct {
	kind MsgKind
	data any
}

var (
	_ tea.Msg = Msg{}
)

const (
	MsgNowPlaying MsgKind = iota
	MsgPlayState
	MsgLiked
	MsgProgress
	MsgDisabled
	MsgQueue
	MsgLikeFailed
	MsgTick
)

type progressData struct {
	position float64
	duration float64
}

type disabledData struct {
	disabled bool
	reason   string
}

// nowPlayingMsg is the constructor for [MsgNowPlaying]
func nowPlayingMsg(track models.Track) Msg {
	return Msg{kind: MsgNowPlaying, data: track}
}

// playStateMsg is the constructor for [MsgPlayState]
func playStateMsg(playing bool) Msg {
	return Msg{kind: MsgPlayState, data: playing}
}

// likedMsg is the constructor for [MsgLiked]
func likedMsg(liked bool) Msg {
	return Msg{kind: MsgLiked, data: liked}
}

// progressMsg is the constructor for [MsgProgress]
func progressMsg(position, duration float64) Msg {
	return Msg{kind: MsgProgress, data: progressData{position, duration}}
}

// disabledMsg is the constructor for [MsgDisabled]
func disabledMsg(disabled bool, reason string) Msg {
	return Msg{kind: MsgDisabled, data: disabledData{disabled, reason}}
}

// queueMsg is the constructor for [MsgQueue]; it carries a fresh state snapshot.
func queueMsg(snap playback.Snapshot) Msg {
	return Msg{kind: MsgQueue, data: snap}
}

// likeFailedMsg is the constructor for [MsgLikeFailed]
func likeFailedMsg(err error) Msg {
	return Msg{kind: MsgLikeFailed, data: err}
}
