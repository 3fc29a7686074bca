package playback

import "github.com/desertthunder/cassette/internal/models"

// View receives engine output. The engine never reads from it.
type View interface {
	NowPlaying(track models.Track)
	PlayState(playing bool)
	Liked(liked bool)
	Progress(position, duration float64)
	Disabled(disabled bool, reason string)
}

// NopView discards every update.
type NopView struct{}

func (NopView) NowPlaying(models.Track)   {}
func (NopView) PlayState(bool)            {}
func (NopView) Liked(bool)                {}
func (NopView) Progress(float64, float64) {}
func (NopView) Disabled(bool, string)     {}
