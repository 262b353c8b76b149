package main

import (
	"context"
	"fmt"

	"github.com/desertthunder/subx/internal/paging"
	"github.com/desertthunder/subx/internal/services"
	"github.com/desertthunder/subx/internal/shared"
	"github.com/desertthunder/subx/internal/tasks"
	"github.com/urfave/cli/v3"
)

// PrefetchArtwork warms cover art for an album list or for every playlist.
func (r *Runner) PrefetchArtwork(ctx context.Context, cmd *cli.Command) error {
	var jobs []tasks.ArtworkJob
	switch of := cmd.String("of"); of {
	case "albums":
		listType, err := services.ParseAlbumListType(cmd.String("type"))
		if err != nil {
			return err
		}
		engine := paging.New(services.AlbumPages(r.provider, listType), r.config.Client.PageSize, paging.WithLogger(r.logger))
		albums, err := collect(ctx, engine, int(cmd.Int("limit")))
		if err != nil {
			return err
		}
		jobs = tasks.AlbumArtwork(albums)
	case "playlists":
		client, err := r.provider.Get(ctx)
		if err != nil {
			return err
		}
		playlists, err := client.Playlists(ctx)
		if err != nil {
			return err
		}
		jobs = tasks.PlaylistArtwork(playlists)
	default:
		return fmt.Errorf("%w: --of must be albums or playlists, got %q", shared.ErrInvalidArgument, of)
	}

	r.writePlain("Prefetching %d covers...\n", len(jobs))

	progress := make(chan tasks.ProgressUpdate, 50)
	done := make(chan struct{})
	go r.printProgress(progress, done)

	result, err := r.engine.PrefetchArtwork(ctx, progress, jobs, tasks.PrefetchOpts{
		NumWorkers: int(cmd.Int("workers")),
		RateLimit:  cmd.Float("rate"),
		OutputDir:  cmd.String("output"),
		Thumbnail:  int(cmd.Int("thumbnail")),
	})
	close(progress)
	<-done
	if err != nil {
		return err
	}

	r.writePlain("\n")
	r.writePlainHeader("Prefetch Complete!")
	r.writePlain("Fetched: %d (%d KiB)\n", result.Fetched, result.Bytes/1024)
	r.writePlain("Skipped: %d without artwork\n", result.Skipped)
	r.writePlain("Failed: %d\n", result.Failed)
	for _, res := range result.Results {
		if res.Error != nil {
			r.writePlain("  - %s: %v\n", res.Job.Name, res.Error)
		}
	}
	return nil
}

// ExportPlaylists exports the given playlists, or all of them, to files.
func (r *Runner) ExportPlaylists(ctx context.Context, cmd *cli.Command) error {
	ids := cmd.Args().Slice()
	format := cmd.String("format")
	switch format {
	case "json", "csv", "markdown", "txt":
	default:
		return fmt.Errorf("%w: unknown export format %q (want json, csv, markdown or txt)", shared.ErrInvalidArgument, format)
	}

	progress := make(chan tasks.ProgressUpdate, 50)
	done := make(chan struct{})
	go r.printProgress(progress, done)

	result, err := r.engine.BulkExport(ctx, progress, ids, tasks.BulkExportOpts{
		Format:     format,
		OutputDir:  cmd.String("output"),
		NumWorkers: int(cmd.Int("workers")),
		RateLimit:  cmd.Float("rate"),
		Covers:     cmd.Bool("covers"),
	})
	close(progress)
	<-done
	if err != nil {
		return err
	}

	r.writePlain("\n")
	r.writePlainHeader("Export Complete!")
	r.writePlain("Exported: %d/%d playlists\n", result.SuccessfulExports, result.TotalPlaylists)
	r.writePlain("Output: %s\n", result.OutputDirectory)
	r.writePlain("Manifest: %s\n", result.ManifestPath)
	if result.FailedExports > 0 {
		r.writePlain("\nFailed to export %d playlists:\n", result.FailedExports)
		for _, res := range result.Results {
			if res.Error != nil {
				r.writePlain("  - %s: %v\n", res.PlaylistName, res.Error)
			}
		}
	}
	return nil
}
