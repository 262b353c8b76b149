package models

import (
	"net/url"
	"strconv"
)

// Track represents a playable song. Values are copied into the play queue, never shared with list state.
type Track struct {
	ID          string
	Title       string
	Artist      string
	Album       string
	AlbumID     string
	Duration    int    // Duration in seconds
	StreamPath  string // unsigned path relative to the API root, e.g. "stream?id=42"
	ArtworkPath string // unsigned path, empty when the track has no cover art
}

func (t Track) Key() string { return t.ID }

// Album represents an album summary from getAlbumList2 or getArtist.
type Album struct {
	ID          string
	Name        string
	Artist      string
	ArtistID    string
	Year        int
	SongCount   int
	Duration    int
	ArtworkPath string
}

func (a Album) Key() string { return a.ID }

// Playlist represents a server-side playlist.
type Playlist struct {
	ID          string
	Name        string
	Owner       string
	Comment     string
	SongCount   int
	Duration    int
	Public      bool
	ArtworkPath string
	Tracks      []Track
}

func (p Playlist) Key() string { return p.ID }

// Artist represents an artist with an optional discography.
type Artist struct {
	ID          string
	Name        string
	AlbumCount  int
	ArtworkPath string
	Albums      []Album
}

func (a Artist) Key() string { return a.ID }

// StreamPathFor builds the unsigned stream path for a song id.
func StreamPathFor(id string) string {
	return "stream?" + url.Values{"id": {id}}.Encode()
}

// ArtworkPathFor builds the unsigned cover art path, or "" when coverArt is empty.
func ArtworkPathFor(coverArt string, size int) string {
	if coverArt == "" {
		return ""
	}
	params := url.Values{"id": {coverArt}}
	if size > 0 {
		params.Set("size", strconv.Itoa(size))
	}
	return "getCoverArt?" + params.Encode()
}

// QueueSnapshot is a checkpoint of a play queue, stored per server so a restart can resume.
type QueueSnapshot struct {
	ServerID string  `json:"-"`
	Tracks   []Track `json:"tracks"`
	Original []Track `json:"original,omitempty"` // unshuffled order, set only when Shuffled
	Cursor   int     `json:"cursor"`
	Shuffled bool    `json:"shuffled"`
	Repeat   string  `json:"repeat"`
}
