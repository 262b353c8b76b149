package ui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/list"
	"github.com/desertthunder/subx/internal/formatter"
	"github.com/desertthunder/subx/internal/models"
)

var (
	_ list.Item = albumItem{}
	_ list.Item = trackItem{}
)

// albumItem wraps [models.Album] to implement [list.Item].
type albumItem struct {
	album models.Album
}

func (i albumItem) FilterValue() string { return i.album.Name + " " + i.album.Artist }
func (i albumItem) Title() string       { return i.album.Name }
func (i albumItem) Description() string {
	desc := i.album.Artist
	if i.album.Year > 0 {
		desc = fmt.Sprintf("%s • %d", desc, i.album.Year)
	}
	return fmt.Sprintf("%s • %d tracks", desc, i.album.SongCount)
}

// trackItem wraps [models.Track] to implement [list.Item]. current marks the playing queue entry.
type trackItem struct {
	track   models.Track
	current bool
}

func (i trackItem) FilterValue() string { return i.track.Title }
func (i trackItem) Title() string {
	if i.current {
		return "▶ " + i.track.Title
	}
	return i.track.Title
}
func (i trackItem) Description() string {
	desc := i.track.Artist
	if i.track.Album != "" {
		desc = fmt.Sprintf("%s • %s", desc, i.track.Album)
	}
	return fmt.Sprintf("%s • %s", desc, formatter.FormatDuration(i.track.Duration))
}

func albumItems(albums []models.Album) []list.Item {
	items := make([]list.Item, len(albums))
	for i, a := range albums {
		items[i] = albumItem{album: a}
	}
	return items
}

func trackItems(tracks []models.Track, current int) []list.Item {
	items := make([]list.Item, len(tracks))
	for i, t := range tracks {
		items[i] = trackItem{track: t, current: i == current}
	}
	return items
}
