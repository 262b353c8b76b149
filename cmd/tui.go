package main

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/subx/internal/playback"
	"github.com/desertthunder/subx/internal/services"
	"github.com/desertthunder/subx/internal/shared"
	"github.com/desertthunder/subx/internal/ui"
	"github.com/urfave/cli/v3"
)

// TUI launches the interactive album browser and player.
func (r *Runner) TUI(ctx context.Context, cmd *cli.Command) error {
	listType, err := services.ParseAlbumListType(cmd.String("type"))
	if err != nil {
		return err
	}

	// Redirect logs to file to avoid interfering with TUI rendering
	fileLogger, err := shared.NewFileLogger(r.config.Log.File)
	if err != nil {
		return fmt.Errorf("failed to create file logger: %w", err)
	}
	fileLogger.SetLevel(shared.ParseLogLevel(r.config.Log.Level))
	r.SetLogger(fileLogger)

	if err := r.open(); err != nil {
		return err
	}

	session := playback.NewSession(playback.NewQueue(nil), r.provider, r.playerEngine(), r.logger)
	session.Follow(r.registry)
	defer session.Close()

	model := ui.NewModel(ctx, ui.Options{
		Clients:   r.provider,
		Session:   session,
		Snapshots: r.snapshots,
		ListType:  listType,
		PageSize:  r.config.Client.PageSize,
		Threshold: r.config.Client.BottomThreshold,
		Logger:    r.logger,
	})
	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("error running TUI: %w", err)
	}

	return nil
}
