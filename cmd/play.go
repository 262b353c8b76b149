package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/desertthunder/subx/internal/formatter"
	"github.com/desertthunder/subx/internal/models"
	"github.com/desertthunder/subx/internal/playback"
	"github.com/desertthunder/subx/internal/shared"
	"github.com/urfave/cli/v3"
)

// PlayAlbum plays an album from --start.
func (r *Runner) PlayAlbum(ctx context.Context, cmd *cli.Command) error {
	id, err := requireArg(cmd, "id")
	if err != nil {
		return err
	}
	client, err := r.provider.Get(ctx)
	if err != nil {
		return err
	}
	tracks, err := client.AlbumTracks(ctx, id)
	if err != nil {
		return err
	}
	return r.play(ctx, cmd, tracks)
}

// PlayPlaylist plays a playlist from --start.
func (r *Runner) PlayPlaylist(ctx context.Context, cmd *cli.Command) error {
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
	return r.play(ctx, cmd, playlist.Tracks)
}

// PlayResume continues the queue saved for the active server.
func (r *Runner) PlayResume(ctx context.Context, cmd *cli.Command) error {
	queue := playback.NewQueue(nil)
	active, err := r.registry.Active()
	if err != nil {
		return err
	}
	snap, err := r.snapshots.Load(active.ID())
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return r.writePlain("Nothing to resume on %s\n", active.DisplayName())
		}
		return err
	}
	if err := queue.Restore(*snap); err != nil {
		return err
	}
	return r.run(ctx, queue)
}

func (r *Runner) play(ctx context.Context, cmd *cli.Command, tracks []models.Track) error {
	if len(tracks) == 0 {
		return r.writePlain("Nothing to play\n")
	}
	repeat, err := playback.ParseRepeatMode(cmd.String("repeat"))
	if err != nil {
		return err
	}

	queue := playback.NewQueue(nil)
	queue.SetRepeat(repeat)
	if cmd.Bool("shuffle") {
		queue.Shuffle(true)
	}
	if err := queue.SetQueue(tracks, int(cmd.Int("start"))); err != nil {
		return err
	}
	return r.run(ctx, queue)
}

// run plays queue to the end, printing session events, and saves it for [Runner.PlayResume].
func (r *Runner) run(ctx context.Context, queue *playback.Queue) error {
	session := playback.NewSession(queue, r.provider, r.playerEngine(), r.logger)
	session.Follow(r.registry)

	events, cancel := session.Subscribe()
	done := make(chan struct{})
	go func() {
		defer close(done)
		for ev := range events {
			switch ev.Kind {
			case playback.EventStarted:
				r.writePlain("▶ %s • %s (%s)\n", ev.Track.Title, ev.Track.Artist, formatter.FormatDuration(ev.Track.Duration))
			case playback.EventPlaybackError:
				r.writePlain("✗ %s: %v\n", ev.Track.Title, ev.Err)
			case playback.EventServerChanged:
				r.writePlain("Server changed, next track plays from the new server\n")
			}
		}
	}()

	runErr := session.Run(ctx)
	cancel()
	<-done
	session.Close()

	r.saveQueue(queue)
	if runErr != nil {
		return fmt.Errorf("playback ended: %w", runErr)
	}
	return nil
}

func (r *Runner) saveQueue(queue *playback.Queue) {
	id := r.registry.ActiveID()
	if id == "" {
		return
	}
	snap := queue.Snapshot()
	snap.ServerID = id
	if err := r.snapshots.Save(snap); err != nil {
		r.logger.Warn("failed to save queue", "server", id, "error", err)
	}
}
