package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/subx/internal/auth"
	"github.com/desertthunder/subx/internal/formatter"
	"github.com/desertthunder/subx/internal/playback"
	"github.com/desertthunder/subx/internal/registry"
	"github.com/desertthunder/subx/internal/repositories"
	"github.com/desertthunder/subx/internal/services"
	"github.com/desertthunder/subx/internal/shared"
	"github.com/desertthunder/subx/internal/tasks"
	"github.com/urfave/cli/v3"
	"golang.org/x/time/rate"
)

// Runner holds all dependencies for CLI commands and provides methods for each command action.
//
// The database and everything built on it are opened lazily by [Runner.open] so commands that never touch a
// server (setup, help) work without one.
type Runner struct {
	config     *shared.Config
	configPath string
	logger     *log.Logger
	output     io.Writer
	player     playback.Engine

	db         *sql.DB
	registry   *registry.Registry
	provider   *services.Provider
	httpClient *http.Client
	api        *services.APIService
	engine     *tasks.Engine
	snapshots  *repositories.QueueSnapshotRepository
}

// RunnerOpts contains configuration options for creating a Runner.
type RunnerOpts struct {
	Config     *shared.Config
	ConfigPath string
	Logger     *log.Logger
	Output     io.Writer
	Player     playback.Engine // defaults to the engine config.Player selects
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Config == nil {
		opts.Config = shared.DefaultConfig()
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}

	return &Runner{
		config:     opts.Config,
		configPath: opts.ConfigPath,
		logger:     opts.Logger,
		output:     opts.Output,
		player:     opts.Player,
	}
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		setupCommand, serverCommand, pingCommand, albumsCommand, playlistsCommand, playlistCommand, artistCommand,
		searchCommand, playCommand, signCommand, apiCommand, prefetchCommand, exportCommand, dumpCommand, tuiCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// open connects the database, loads the server registry and wires the client stack. It is a no-op once open.
func (r *Runner) open() error {
	if r.registry != nil {
		return nil
	}

	db, err := shared.NewDatabase(r.config.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	shared.ConfigureDatabase(db, r.config.Database.MaxOpenConns, r.config.Database.MaxIdleConns)
	if err := shared.RunMigrations(db); err != nil {
		db.Close()
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	reg := registry.New(repositories.NewServerRepository(db), r.logger)
	if err := reg.Init(); err != nil {
		db.Close()
		return fmt.Errorf("failed to load servers: %w", err)
	}

	var limiter *rate.Limiter
	if rl := r.config.Client.RateLimit; rl > 0 {
		limiter = rate.NewLimiter(rate.Limit(rl), 1)
	}
	base := &http.Client{Timeout: r.config.Client.Timeout()}
	signer := auth.NewSigner(r.config.Client.ID, r.config.Client.APIVersion, nil)
	provider := services.NewProvider(reg, services.NewClientFactory(signer, base, limiter, r.logger), r.logger)

	httpClient := services.NewHTTPClient(nil, provider, r.logger)
	httpClient.Timeout = r.config.Client.Timeout()
	api := services.NewAPIService(provider, httpClient)

	r.db = db
	r.registry = reg
	r.provider = provider
	r.httpClient = httpClient
	r.api = api
	r.engine = tasks.NewEngine(provider, api, httpClient, r.logger)
	r.snapshots = repositories.NewQueueSnapshotRepository(db)
	return nil
}

// connected wraps an action so it runs with the client stack open.
func (r *Runner) connected(action cli.ActionFunc) cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) error {
		if err := r.open(); err != nil {
			return err
		}
		return action(ctx, cmd)
	}
}

// Close releases the player, the provider and the database.
func (r *Runner) Close() error {
	if c, ok := r.player.(io.Closer); ok {
		if err := c.Close(); err != nil {
			r.logger.Warn("failed to close player", "error", err)
		}
	}
	if r.provider != nil {
		r.provider.Close()
	}
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// SetLogger replaces the logger, e.g. with a file logger while the TUI owns the terminal.
func (r *Runner) SetLogger(l *log.Logger) {
	r.logger = l
}

// playerEngine returns the configured playback engine.
func (r *Runner) playerEngine() playback.Engine {
	if r.player != nil {
		return r.player
	}

	switch p := r.config.Player; p.Backend {
	case "mpd":
		r.player = playback.NewMPDEngine(p.MPDAddress, p.MPDPassword, r.logger)
	default:
		r.player = playback.NewExecEngine(p.Command, p.Args, r.logger)
	}
	return r.player
}

func (r *Runner) format(cmd *cli.Command) (formatter.Format, error) {
	return formatter.ParseFormat(cmd.String("format"))
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	output, err := formatter.MarshalJSON(data, pretty)
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if _, err := r.output.Write(output); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	if _, err := r.output.Write([]byte("\n")); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	return nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainln(format string, args ...any) error {
	text := "\n" + fmt.Sprintf(format, args...) + "\n"
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainHeader(title string) {
	r.writePlain("═══════════════════════════════════════\n")
	r.writePlain("%v\n", title)
	r.writePlain("═══════════════════════════════════════\n")
}

// printProgress writes updates until progress is closed, then closes done.
func (r *Runner) printProgress(progress <-chan tasks.ProgressUpdate, done chan<- struct{}) {
	defer close(done)
	for update := range progress {
		if update.Total > 0 && update.Step > 0 {
			r.writePlain("  [%d/%d] %s\n", update.Step, update.Total, update.Message)
		} else {
			r.writePlain("%s\n", update.Message)
		}
	}
}
