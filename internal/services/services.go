// package services defines the [Library] interface for browsing a Subsonic server
package services

import (
	"context"
	"fmt"

	"github.com/desertthunder/subx/internal/models"
	"github.com/desertthunder/subx/internal/shared"
)

// Library is the read side of a Subsonic server used by the CLI, the UI and the paging engine.
type Library interface {
	// Ping checks connectivity and credentials.
	Ping(ctx context.Context) error

	// AlbumList returns one page of albums ordered by listType.
	AlbumList(ctx context.Context, listType AlbumListType, offset, size int) ([]models.Album, error)

	// Playlists returns every playlist visible to the user.
	Playlists(ctx context.Context) ([]models.Playlist, error)

	// Playlist returns a playlist with its tracks.
	Playlist(ctx context.Context, id string) (*models.Playlist, error)

	// Artists returns the artist index flattened into one slice.
	Artists(ctx context.Context) ([]models.Artist, error)

	// Artist returns an artist with its albums.
	Artist(ctx context.Context, id string) (*models.Artist, error)

	// AlbumTracks returns the songs of an album.
	AlbumTracks(ctx context.Context, id string) ([]models.Track, error)

	// Search finds artists, albums and songs matching query.
	Search(ctx context.Context, query string, limit int) (*SearchResult, error)
}

// AlbumListType is the ordering argument of getAlbumList2.
type AlbumListType string

const (
	AlbumsNewest     AlbumListType = "newest"
	AlbumsRecent     AlbumListType = "recent"
	AlbumsFrequent   AlbumListType = "frequent"
	AlbumsRandom     AlbumListType = "random"
	AlbumsByName     AlbumListType = "alphabeticalByName"
	AlbumsByArtist   AlbumListType = "alphabeticalByArtist"
	AlbumsStarred    AlbumListType = "starred"
	AlbumsHighest    AlbumListType = "highest"
	defaultAlbumList               = AlbumsNewest
)

// AlbumListTypes lists the supported orderings in display order.
var AlbumListTypes = []AlbumListType{
	AlbumsNewest, AlbumsRecent, AlbumsFrequent, AlbumsRandom, AlbumsByName, AlbumsByArtist, AlbumsStarred, AlbumsHighest,
}

// ParseAlbumListType validates s, returning the default ordering for "".
func ParseAlbumListType(s string) (AlbumListType, error) {
	if s == "" {
		return defaultAlbumList, nil
	}
	for _, t := range AlbumListTypes {
		if string(t) == s {
			return t, nil
		}
	}
	return "", fmt.Errorf("%w: unknown album list type %q", shared.ErrInvalidArgument, s)
}

// SearchResult groups search3 matches.
type SearchResult struct {
	Artists []models.Artist
	Albums  []models.Album
	Songs   []models.Track
}
