package tasks

import (
	"bytes"
	"context"
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/desertthunder/subx/internal/models"
	"github.com/desertthunder/subx/internal/services"
	"github.com/desertthunder/subx/internal/shared"
	"github.com/disintegration/imaging"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// ArtworkJob is one cover to warm.
type ArtworkJob struct {
	ID   string // Owning album, playlist or artist id
	Name string // Display name for progress
	Path string // Unsigned resource path, e.g. "getCoverArt?id=al-1"
}

// ArtworkResult is the outcome of one [ArtworkJob].
type ArtworkResult struct {
	Job          ArtworkJob
	Size         int64
	CacheControl string // Cache-Control as seen by the caller after the transport rewrote it
	File         string // Written file, empty unless PrefetchOpts.OutputDir is set
	Error        error
}

// PrefetchOpts configures [Engine.PrefetchArtwork].
type PrefetchOpts struct {
	NumWorkers int     // Concurrent downloads (default: 4, max: 16)
	RateLimit  float64 // Requests per second (default: 8)
	OutputDir  string  // When set, covers are saved as {dir}/{id}.{ext}, ext following the served image type
	Thumbnail  int     // When positive, saved covers are scaled to fit a Thumbnail x Thumbnail square
}

// PrefetchResult summarizes an artwork prefetch run.
type PrefetchResult struct {
	Total   int
	Fetched int
	Failed  int
	Skipped int // Jobs without an artwork path
	Bytes   int64
	Results []ArtworkResult
}

// AlbumArtwork builds prefetch jobs for albums.
func AlbumArtwork(albums []models.Album) []ArtworkJob {
	jobs := make([]ArtworkJob, 0, len(albums))
	for _, a := range albums {
		jobs = append(jobs, ArtworkJob{ID: a.ID, Name: a.Name, Path: a.ArtworkPath})
	}
	return jobs
}

// PlaylistArtwork builds prefetch jobs for playlists.
func PlaylistArtwork(playlists []models.Playlist) []ArtworkJob {
	jobs := make([]ArtworkJob, 0, len(playlists))
	for _, p := range playlists {
		jobs = append(jobs, ArtworkJob{ID: p.ID, Name: p.Name, Path: p.ArtworkPath})
	}
	return jobs
}

// PrefetchArtwork downloads covers through the engine's signing HTTP client using a rate limited worker
// pool. Individual failures are recorded in the result; a missing server or a canceled ctx aborts the run.
func (e *Engine) PrefetchArtwork(ctx context.Context, progress chan<- ProgressUpdate, jobs []ArtworkJob, opts PrefetchOpts) (*PrefetchResult, error) {
	client, err := e.clients.Get(ctx)
	if err != nil {
		return nil, err
	}
	ctx = services.WithClient(ctx, client)

	if opts.NumWorkers <= 0 {
		opts.NumWorkers = 4
	}
	if opts.NumWorkers > 16 {
		opts.NumWorkers = 16
	}
	if opts.RateLimit <= 0 {
		opts.RateLimit = 8
	}
	if opts.OutputDir != "" {
		if err := os.MkdirAll(opts.OutputDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	result := &PrefetchResult{Total: len(jobs), Results: make([]ArtworkResult, 0, len(jobs))}
	pending := make([]ArtworkJob, 0, len(jobs))
	for _, job := range jobs {
		if job.Path == "" {
			result.Skipped++
			continue
		}
		pending = append(pending, job)
	}
	e.sendProgress(progress, prefetchStartUpdate(len(jobs), result.Skipped))

	limiter := rate.NewLimiter(rate.Limit(opts.RateLimit), 1)
	queue := make(chan ArtworkJob)
	results := make(chan ArtworkResult, len(pending))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(queue)
		for _, job := range pending {
			if err := limiter.Wait(gctx); err != nil {
				return err
			}
			select {
			case queue <- job:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})
	for range opts.NumWorkers {
		g.Go(func() error {
			for job := range queue {
				results <- e.fetchArtwork(gctx, client, job, opts)
			}
			return nil
		})
	}

	var runErr error
	go func() {
		runErr = g.Wait()
		close(results)
	}()

	completed := 0
	for res := range results {
		completed++
		result.Results = append(result.Results, res)
		if res.Error != nil {
			result.Failed++
			e.logger.Warn("artwork prefetch failed", "id", res.Job.ID, "error", res.Error)
			e.sendProgress(progress, artworkFailedUpdate(completed, len(pending), res))
			continue
		}
		result.Fetched++
		result.Bytes += res.Size
		e.sendProgress(progress, artworkFetchedUpdate(completed, len(pending), res))
	}

	if runErr != nil {
		return result, runErr
	}
	if err := ctx.Err(); err != nil {
		return result, err
	}

	e.logger.Info("artwork prefetch complete", "fetched", result.Fetched, "failed", result.Failed, "skipped", result.Skipped)
	return result, nil
}

func (e *Engine) fetchArtwork(ctx context.Context, client *services.SubsonicClient, job ArtworkJob, opts PrefetchOpts) ArtworkResult {
	res := ArtworkResult{Job: job}

	resp, body, err := e.download(ctx, client, job.Path)
	if err != nil {
		res.Error = err
		return res
	}
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		res.Error = fmt.Errorf("%w: server returned an error instead of an image", shared.ErrAPIRequest)
		return res
	}

	res.Size = int64(len(body))
	res.CacheControl = resp.Header.Get("Cache-Control")

	if opts.OutputDir != "" {
		ext := coverExt(resp.Header.Get("Content-Type"), body)
		if opts.Thumbnail > 0 {
			if body, err = thumbnail(body, opts.Thumbnail); err != nil {
				res.Error = err
				return res
			}
			ext = ".jpg"
		}
		file := filepath.Join(opts.OutputDir, safeFilename(job.ID)+ext)
		if err := os.WriteFile(file, body, 0644); err != nil {
			res.Error = fmt.Errorf("failed to write cover: %w", err)
			return res
		}
		res.File = file
	}
	return res
}

// thumbnail scales a cover to fit a size x size square and re-encodes it as JPEG.
func thumbnail(data []byte, size int) ([]byte, error) {
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode cover: %w", err)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, imaging.Fit(img, size, size, imaging.Lanczos), imaging.JPEG); err != nil {
		return nil, fmt.Errorf("failed to encode thumbnail: %w", err)
	}
	return buf.Bytes(), nil
}

// coverExt picks a file extension for a cover from its Content-Type, sniffing the bytes when the header
// names no known image type. Unrecognized data is saved as .bin.
func coverExt(contentType string, body []byte) string {
	if ext, ok := imageExt(contentType); ok {
		return ext
	}
	if ext, ok := imageExt(http.DetectContentType(body)); ok {
		return ext
	}
	return ".bin"
}

func imageExt(contentType string) (string, bool) {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return "", false
	}
	switch mediaType {
	case "image/jpeg", "image/jpg", "image/pjpeg":
		return ".jpg", true
	case "image/png":
		return ".png", true
	case "image/gif":
		return ".gif", true
	case "image/webp":
		return ".webp", true
	case "image/bmp":
		return ".bmp", true
	case "image/avif":
		return ".avif", true
	}
	return "", false
}

func safeFilename(id string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '_'
		}
		return r
	}, id)
}
