package services

import (
	"context"

	"github.com/desertthunder/subx/internal/models"
	"github.com/desertthunder/subx/internal/paging"
)

// AlbumPages pages getAlbumList2 on whichever server is active when each page is fetched.
func AlbumPages(clients ClientSource, listType AlbumListType) paging.FetchFunc[models.Album] {
	return paging.Sized(func(ctx context.Context, offset, size int) ([]models.Album, error) {
		client, err := clients.Get(ctx)
		if err != nil {
			return nil, err
		}
		return client.AlbumList(ctx, listType, offset, size)
	})
}

// PlaylistPages pages getPlaylists client-side.
func PlaylistPages(clients ClientSource) paging.FetchFunc[models.Playlist] {
	return paging.All(func(ctx context.Context) ([]models.Playlist, error) {
		client, err := clients.Get(ctx)
		if err != nil {
			return nil, err
		}
		return client.Playlists(ctx)
	})
}

// DiscographyPages pages an artist's albums client-side.
func DiscographyPages(clients ClientSource, artistID string) paging.FetchFunc[models.Album] {
	return paging.All(func(ctx context.Context) ([]models.Album, error) {
		client, err := clients.Get(ctx)
		if err != nil {
			return nil, err
		}
		artist, err := client.Artist(ctx, artistID)
		if err != nil {
			return nil, err
		}
		return artist.Albums, nil
	})
}
