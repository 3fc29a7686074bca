// Package ui implements the terminal player using bubbletea's Elm architecture.
//
// The screen has three parts:
//  1. Now playing : title, artist, play state, liked marker and a progress bar
//  2. Queue : the current queue with the playing entry highlighted, navigable with j/k
//  3. Status : the disabled banner when a track cannot be played, and contextual help
//
// The playback engine never touches the [Model] directly. It talks to a [ProgramView], which
// implements the playback view contract by sending messages into the running [tea.Program].
// Transport keys run the controller in [tea.Cmd] goroutines so a slow resolution never blocks
// rendering.
package ui
