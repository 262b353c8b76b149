package main

import (
	"context"

	"github.com/desertthunder/subx/internal/formatter"
	"github.com/desertthunder/subx/internal/models"
	"github.com/desertthunder/subx/internal/paging"
	"github.com/desertthunder/subx/internal/services"
	"github.com/urfave/cli/v3"
)

// Albums lists albums page by page until --limit albums are loaded or the list is exhausted.
func (r *Runner) Albums(ctx context.Context, cmd *cli.Command) error {
	f, err := r.format(cmd)
	if err != nil {
		return err
	}
	listType, err := services.ParseAlbumListType(cmd.String("type"))
	if err != nil {
		return err
	}

	pageSize := r.config.Client.PageSize
	limit := int(cmd.Int("limit"))
	if limit <= 0 {
		limit = pageSize
	}

	engine := paging.New(services.AlbumPages(r.provider, listType), pageSize, paging.WithLogger(r.logger))
	albums, err := collect(ctx, engine, limit)
	if err != nil {
		return err
	}
	return formatter.WriteAlbums(r.output, f, albums)
}

// collect drives engine until it holds limit items (0 for all) or is exhausted. A failing page ends the
// listing with what was loaded; it is returned only when nothing was.
func collect[T models.Identifiable](ctx context.Context, engine *paging.Engine[T], limit int) ([]T, error) {
	if err := engine.LoadInitial(ctx); err != nil && ctx.Err() != nil {
		return nil, err
	}
	for {
		state := engine.State()
		if state.Err != nil && len(state.Items) == 0 {
			return nil, state.Err
		}
		if state.Exhausted || state.Err != nil || (limit > 0 && len(state.Items) >= limit) {
			items := state.Items
			if limit > 0 && len(items) > limit {
				items = items[:limit]
			}
			return items, nil
		}
		if err := engine.LoadMore(ctx); err != nil && ctx.Err() != nil {
			return nil, err
		}
	}
}

// Playlists lists playlists.
func (r *Runner) Playlists(ctx context.Context, cmd *cli.Command) error {
	f, err := r.format(cmd)
	if err != nil {
		return err
	}

	engine := paging.New(services.PlaylistPages(r.provider), r.config.Client.PageSize, paging.WithLogger(r.logger))
	playlists, err := collect(ctx, engine, 0)
	if err != nil {
		return err
	}
	return formatter.WritePlaylists(r.output, f, playlists)
}

// Playlist prints a playlist's tracks, with a header in table format.
func (r *Runner) Playlist(ctx context.Context, cmd *cli.Command) error {
	f, err := r.format(cmd)
	if err != nil {
		return err
	}
	id, err := requireArg(cmd, "id")
	if err != nil {
		return err
	}

	client, err := r.provider.Get(ctx)
	if err != nil {
		return err
	}
	playlist, err := client.Playlist(ctx, id)
	if err != nil {
		return err
	}

	if f == formatter.FormatTable {
		r.writePlainHeader(playlist.Name)
		r.writePlain("%d tracks • %s\n\n", playlist.SongCount, formatter.FormatDuration(playlist.Duration))
	}
	return formatter.WriteTracks(r.output, f, playlist.Tracks)
}

// Artist prints an artist's discography.
func (r *Runner) Artist(ctx context.Context, cmd *cli.Command) error {
	f, err := r.format(cmd)
	if err != nil {
		return err
	}
	id, err := requireArg(cmd, "id")
	if err != nil {
		return err
	}

	engine := paging.New(services.DiscographyPages(r.provider, id), r.config.Client.PageSize, paging.WithLogger(r.logger))
	albums, err := collect(ctx, engine, int(cmd.Int("limit")))
	if err != nil {
		return err
	}

	if f == formatter.FormatTable && len(albums) > 0 {
		r.writePlainHeader(albums[0].Artist)
	}
	return formatter.WriteAlbums(r.output, f, albums)
}

// Search prints artists, albums and songs matching a query.
func (r *Runner) Search(ctx context.Context, cmd *cli.Command) error {
	f, err := r.format(cmd)
	if err != nil {
		return err
	}
	query, err := requireArg(cmd, "query")
	if err != nil {
		return err
	}

	client, err := r.provider.Get(ctx)
	if err != nil {
		return err
	}
	result, err := client.Search(ctx, query, int(cmd.Int("limit")))
	if err != nil {
		return err
	}

	switch f {
	case formatter.FormatJSON:
		return r.writeJSON(result, true)
	case formatter.FormatCSV:
		// one header row per file, so only songs
		return formatter.WriteTracks(r.output, f, result.Songs)
	}

	if len(result.Artists)+len(result.Albums)+len(result.Songs) == 0 {
		return r.writePlain("No results for %q\n", query)
	}
	sections := []struct {
		title string
		n     int
		write func() error
	}{
		{"Artists", len(result.Artists), func() error { return formatter.WriteArtists(r.output, f, result.Artists) }},
		{"Albums", len(result.Albums), func() error { return formatter.WriteAlbums(r.output, f, result.Albums) }},
		{"Songs", len(result.Songs), func() error { return formatter.WriteTracks(r.output, f, result.Songs) }},
	}
	for _, s := range sections {
		if s.n == 0 {
			continue
		}
		r.writePlain("%s\n", s.title)
		if err := s.write(); err != nil {
			return err
		}
	}
	return nil
}
