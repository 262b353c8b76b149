package tasks

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/desertthunder/subx/internal/formatter"
	"github.com/desertthunder/subx/internal/models"
	"github.com/desertthunder/subx/internal/services"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// BulkExportOpts contains configuration for bulk playlist exports.
type BulkExportOpts struct {
	Format     string  // Export format: json, csv, markdown, txt
	OutputDir  string  // Base output directory (default: subx_export_{epoch})
	NumWorkers int     // Concurrent workers (default: 5)
	RateLimit  float64 // Requests per second (default: 5)
	Covers     bool    // Download playlist covers for markdown exports
}

// PlaylistExportJob is a fetched playlist waiting to be written.
type PlaylistExportJob struct {
	PlaylistID string
	Playlist   *models.Playlist
}

// PlaylistExportResult is the outcome of exporting one playlist.
type PlaylistExportResult struct {
	PlaylistID   string
	PlaylistName string
	Success      bool
	Files        []string
	Error        error
}

// BulkExportResult summarizes a bulk export.
type BulkExportResult struct {
	TotalPlaylists    int
	SuccessfulExports int
	FailedExports     int
	OutputDirectory   string
	ManifestPath      string
	Results           []PlaylistExportResult
}

// BulkExport exports playlists concurrently with rate limiting and progress tracking. An empty ids list
// exports every playlist on the server.
//
// Playlists are fetched one at a time under the limiter and written by a worker pool. Partial failures are
// recorded and summarized in export_manifest.json.
func (e *Engine) BulkExport(ctx context.Context, prog chan<- ProgressUpdate, ids []string, opts BulkExportOpts) (*BulkExportResult, error) {
	client, err := e.clients.Get(ctx)
	if err != nil {
		return nil, err
	}
	ctx = services.WithClient(ctx, client)

	if len(ids) == 0 {
		e.sendProgress(prog, fetchingPlaylistsUpdate(1, 1))
		playlists, err := client.Playlists(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list playlists: %w", err)
		}
		for _, p := range playlists {
			ids = append(ids, p.ID)
		}
	}

	if opts.Format == "" {
		opts.Format = "json"
	}
	if opts.OutputDir == "" {
		opts.OutputDir = fmt.Sprintf("subx_export_%d", time.Now().Unix())
	}
	if opts.NumWorkers <= 0 {
		opts.NumWorkers = 5
	}
	if opts.NumWorkers > 10 {
		opts.NumWorkers = 10
	}
	if opts.RateLimit <= 0 {
		opts.RateLimit = 5.0
	}

	if err := os.MkdirAll(opts.OutputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	result := &BulkExportResult{
		TotalPlaylists:  len(ids),
		OutputDirectory: opts.OutputDir,
		Results:         make([]PlaylistExportResult, 0, len(ids)),
	}

	limiter := rate.NewLimiter(rate.Limit(opts.RateLimit), 1)
	jobs := make(chan PlaylistExportJob, len(ids))
	results := make(chan PlaylistExportResult, len(ids))

	g, gctx := errgroup.WithContext(ctx)
	for range opts.NumWorkers {
		g.Go(func() error {
			for job := range jobs {
				results <- e.exportSinglePlaylist(gctx, client, job, opts)
			}
			return nil
		})
	}

	g.Go(func() error {
		defer close(jobs)
		for i, id := range ids {
			if err := limiter.Wait(gctx); err != nil {
				return err
			}

			pl, err := client.Playlist(gctx, id)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				results <- PlaylistExportResult{
					PlaylistID:   id,
					PlaylistName: fmt.Sprintf("Unknown (%s)", id),
					Error:        fmt.Errorf("failed to fetch playlist: %w", err),
				}
				continue
			}

			jobs <- PlaylistExportJob{PlaylistID: id, Playlist: pl}
			e.sendProgress(prog, exportingPlaylistUpdate(i+1, len(ids), pl))
		}
		return nil
	})

	var runErr error
	go func() {
		runErr = g.Wait()
		close(results)
	}()

	completed := 0
	for res := range results {
		completed++
		result.Results = append(result.Results, res)

		if res.Success {
			result.SuccessfulExports++
			e.sendProgress(prog, exportCompletedUpdate(completed, len(ids), res.PlaylistName, len(res.Files)))
		} else {
			result.FailedExports++
			e.sendProgress(prog, exportFailedUpdate(completed, len(ids), res.PlaylistName, res.Error))
		}
	}
	if runErr != nil {
		return result, runErr
	}

	manifest := &formatter.ExportManifest{
		Server:     client.Profile().DisplayName(),
		Format:     opts.Format,
		ExportedAt: time.Now().UTC(),
		Total:      result.TotalPlaylists,
		Successful: result.SuccessfulExports,
		Failed:     result.FailedExports,
	}
	for _, res := range result.Results {
		entry := formatter.ManifestPlaylist{ID: res.PlaylistID, Name: res.PlaylistName, Files: res.Files}
		if res.Error != nil {
			entry.Error = res.Error.Error()
		}
		manifest.Playlists = append(manifest.Playlists, entry)
	}

	manifestPath := filepath.Join(opts.OutputDir, "export_manifest.json")
	if err := formatter.WriteManifest(manifest, manifestPath); err != nil {
		return result, fmt.Errorf("export completed but failed to write manifest: %w", err)
	}
	result.ManifestPath = manifestPath

	e.logger.Info("bulk export complete", "dir", opts.OutputDir, "ok", result.SuccessfulExports, "failed", result.FailedExports)
	return result, nil
}

// exportSinglePlaylist writes one playlist in the requested format.
func (e *Engine) exportSinglePlaylist(ctx context.Context, client *services.SubsonicClient, j PlaylistExportJob, opts BulkExportOpts) PlaylistExportResult {
	result := PlaylistExportResult{
		PlaylistID:   j.PlaylistID,
		PlaylistName: j.Playlist.Name,
		Files:        []string{},
	}
	base := safeFilename(j.Playlist.ID)

	switch opts.Format {
	case "csv":
		csvRes, err := formatter.WriteCSVExport(j.Playlist, filepath.Join(opts.OutputDir, base))
		if err != nil {
			result.Error = fmt.Errorf("CSV export failed: %w", err)
			return result
		}
		result.Files = []string{csvRes.TracksFile, csvRes.MetadataFile}

	case "markdown":
		var cover []byte
		if opts.Covers && j.Playlist.ArtworkPath != "" {
			if _, body, err := e.download(ctx, client, j.Playlist.ArtworkPath); err != nil {
				e.logger.Warn("failed to download cover", "playlist", j.PlaylistID, "error", err)
			} else {
				cover = body
			}
		}

		mdRes, err := formatter.WriteMarkdownExport(j.Playlist, filepath.Join(opts.OutputDir, base), cover)
		if err != nil {
			result.Error = fmt.Errorf("markdown export failed: %w", err)
			return result
		}
		result.Files = mdRes.Files

	case "txt":
		path, err := formatter.WriteTextExport(j.Playlist, filepath.Join(opts.OutputDir, base+"_tracks.txt"))
		if err != nil {
			result.Error = fmt.Errorf("text export failed: %w", err)
			return result
		}
		result.Files = []string{path}

	case "json":
		fallthrough
	default:
		jsonPath := filepath.Join(opts.OutputDir, base+".json")
		data, err := formatter.MarshalJSON(j.Playlist, true)
		if err != nil {
			result.Error = fmt.Errorf("JSON marshal failed: %w", err)
			return result
		}
		if err := os.WriteFile(jsonPath, data, 0644); err != nil {
			result.Error = fmt.Errorf("JSON write failed: %w", err)
			return result
		}
		result.Files = []string{jsonPath}
	}

	result.Success = true
	return result
}
