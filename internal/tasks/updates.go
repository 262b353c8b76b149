package tasks

import (
	"fmt"

	"github.com/desertthunder/subx/internal/models"
)

// ProgressUpdate represents a progress event during a long-running operation.
//
// Used to send real-time updates to the CLI or UI layer for display.
type ProgressUpdate struct {
	Phase   Phase  // Operation phase
	Step    int    // Current step number within phase
	Total   int    // Total steps in this phase
	Message string // Human-readable message for display
	Data    any    // Optional phase-specific data for advanced UIs
}

// Operation phase enumeration
type Phase int

const (
	FetchPing Phase = iota
	FetchArtists
	FetchAlbums
	FetchPlaylists
	FetchGenres
	FetchStarred
	PrefetchArtwork
	ExportPlaylist
)

func (p Phase) String() string {
	switch p {
	case FetchPing:
		return "fetch_ping"
	case FetchArtists:
		return "fetch_artists"
	case FetchAlbums:
		return "fetch_albums"
	case FetchPlaylists:
		return "fetch_playlists"
	case FetchGenres:
		return "fetch_genres"
	case FetchStarred:
		return "fetch_starred"
	case PrefetchArtwork:
		return "prefetch_artwork"
	case ExportPlaylist:
		return "export_playlist"
	default:
		return ""
	}
}

func operationUpdate(endpoint endpointOperation, step int, total int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   endpoint.phase,
		Step:    step,
		Total:   total,
		Message: endpoint.message,
	}
}

func prefetchStartUpdate(total, skipped int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   PrefetchArtwork,
		Step:    0,
		Total:   total,
		Message: fmt.Sprintf("Prefetching %d covers (%d without artwork)...", total-skipped, skipped),
	}
}

func artworkFetchedUpdate(step, total int, res ArtworkResult) ProgressUpdate {
	return ProgressUpdate{
		Phase:   PrefetchArtwork,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] ✓ %s (%d bytes)", step, total, res.Job.Name, res.Size),
		Data:    res,
	}
}

func artworkFailedUpdate(step, total int, res ArtworkResult) ProgressUpdate {
	return ProgressUpdate{
		Phase:   PrefetchArtwork,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] ✗ %s: %v", step, total, res.Job.Name, res.Error),
		Data:    res,
	}
}

func fetchingPlaylistsUpdate(step, total int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   FetchPlaylists,
		Step:    step,
		Total:   total,
		Message: "Fetching playlists...",
	}
}

func exportingPlaylistUpdate(step, total int, pl *models.Playlist) ProgressUpdate {
	return ProgressUpdate{
		Phase:   ExportPlaylist,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] Exporting: %s...", step, total, pl.Name),
	}
}

func exportCompletedUpdate(step, total int, name string, filesCount int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   ExportPlaylist,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] ✓ %s (%d files)", step, total, name, filesCount),
	}
}

func exportFailedUpdate(step, total int, name string, err error) ProgressUpdate {
	return ProgressUpdate{
		Phase:   ExportPlaylist,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] ✗ %s: %v", step, total, name, err),
	}
}
