package ui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/list"

	"github.com/desertthunder/cassette/internal/identity"
	"github.com/desertthunder/cassette/internal/models"
	"github.com/desertthunder/cassette/internal/shared"
)

var _ list.Item = queueItem{}

// queueItem wraps a normalized queue entry to implement [list.Item].
type queueItem struct {
	index   int
	track   models.Track
	current bool
}

func (i queueItem) FilterValue() string { return i.track.Title }
func (i queueItem) Title() string {
	title := i.track.Title
	if title == "" {
		title = "Unknown"
	}
	if i.current {
		return styles.current.Render("▶ " + title)
	}
	return title
}
func (i queueItem) Description() string {
	artist := i.track.Artist
	if artist == "" {
		artist = "Unknown artist"
	}
	return fmt.Sprintf("%s • %s", artist, shared.FormatDuration(i.track.Duration))
}

// queueItems normalizes the raw queue for display.
func queueItems(queue []models.Record, current int) []list.Item {
	items := make([]list.Item, 0, len(queue))
	for i, rec := range queue {
		track, _ := identity.Normalize(rec)
		items = append(items, queueItem{index: i, track: track, current: i == current})
	}
	return items
}
