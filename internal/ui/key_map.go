package ui

import "github.com/charmbracelet/bubbles/key"

// seekStep is how far the seek keys move the playhead, in seconds.
const seekStep = 10

// keyMap defines the [key.Binding] mapping for the player.
type keyMap struct {
	toggle    key.Binding
	next      key.Binding
	prev      key.Binding
	forward   key.Binding
	back      key.Binding
	like      key.Binding
	normalize key.Binding
	up        key.Binding
	down      key.Binding
	enter     key.Binding
	help      key.Binding
	quit      key.Binding
}

func newKeyMap() keyMap {
	return keyMap{
		toggle:    key.NewBinding(key.WithKeys(" ", "space"), key.WithHelp("space", "play/pause")),
		next:      key.NewBinding(key.WithKeys("n"), key.WithHelp("n", "next")),
		prev:      key.NewBinding(key.WithKeys("p"), key.WithHelp("p", "previous")),
		forward:   key.NewBinding(key.WithKeys("right", "l"), key.WithHelp("→/l", "+10s")),
		back:      key.NewBinding(key.WithKeys("left", "h"), key.WithHelp("←/h", "-10s")),
		like:      key.NewBinding(key.WithKeys("f"), key.WithHelp("f", "like")),
		normalize: key.NewBinding(key.WithKeys("N"), key.WithHelp("N", "normalize")),
		up:        key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up")),
		down:      key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down")),
		enter:     key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "play selected")),
		help:      key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "help")),
		quit:      key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.toggle, k.next, k.prev, k.like, k.help, k.quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.toggle, k.next, k.prev},
		{k.forward, k.back, k.like, k.normalize},
		{k.up, k.down, k.enter},
		{k.help, k.quit},
	}
}

// setDisabled greys out the transport keys while the player is disabled.
func (k *keyMap) setDisabled(disabled bool) {
	for _, b := range []*key.Binding{&k.toggle, &k.next, &k.prev, &k.forward, &k.back} {
		b.SetEnabled(!disabled)
	}
}
