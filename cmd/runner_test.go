package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/desertthunder/subx/internal/models"
	"github.com/desertthunder/subx/internal/playback"
	"github.com/desertthunder/subx/internal/shared"
	tu "github.com/desertthunder/subx/internal/testing"
	"github.com/urfave/cli/v3"
)

type fakePlayer struct {
	mu     sync.Mutex
	played []string
}

func (p *fakePlayer) Play(_ context.Context, streamURL string, _ models.Track) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.played = append(p.played, streamURL)
	return nil
}

func (p *fakePlayer) Stop() error                { return nil }
func (p *fakePlayer) Wait(context.Context) error { return nil }

func (p *fakePlayer) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.played)
}

type cliFixture struct {
	runner *Runner
	out    *bytes.Buffer
	fake   *tu.FakeSubsonic
	player *fakePlayer
	dir    string
}

func setupCLI(t *testing.T) *cliFixture {
	t.Helper()

	dir := t.TempDir()
	config := shared.DefaultConfig()
	config.Database.Path = filepath.Join(dir, "subx.db")
	config.Client.PageSize = 5
	config.Client.RateLimit = 0

	fake := tu.NewFakeSubsonic(t, "alice", "sesame")
	fake.Albums = tu.SampleAlbums(12)
	fake.Songs = tu.SampleTracks(3)
	fake.Playlists = []models.Playlist{
		{ID: "pl1", Name: "Mix", SongCount: 2, Tracks: tu.SampleTracks(2)},
		{ID: "pl2", Name: "Chill", SongCount: 1, Tracks: tu.SampleTracks(1)},
	}
	fake.Artists = []models.Artist{{ID: "ar1", Name: "Artist", AlbumCount: 2, Albums: tu.SampleAlbums(2)}}

	out := &bytes.Buffer{}
	player := &fakePlayer{}
	runner := NewRunner(RunnerOpts{Config: config, Logger: shared.NopLogger(), Output: out, Player: player})
	t.Cleanup(func() { runner.Close() })

	return &cliFixture{runner: runner, out: out, fake: fake, player: player, dir: dir}
}

func (f *cliFixture) run(args ...string) (string, error) {
	f.out.Reset()
	app := &cli.Command{Name: "subx", Commands: f.runner.register(), Writer: io.Discard, ErrWriter: io.Discard}
	err := app.Run(context.Background(), append([]string{"subx"}, args...))
	return f.out.String(), err
}

func (f *cliFixture) mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, err := f.run(args...)
	if err != nil {
		t.Fatalf("subx %s: %v", strings.Join(args, " "), err)
	}
	return out
}

func (f *cliFixture) addServer(t *testing.T, label, password string) string {
	t.Helper()
	f.mustRun(t, "server", "add", "--label", label, "--url", f.fake.URL, "--user", "alice", "--password", password)
	servers, err := f.runner.registry.List()
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	for _, s := range servers {
		if s.Label() == label {
			return s.ID()
		}
	}
	t.Fatalf("server %q not saved", label)
	return ""
}

func TestRunner(t *testing.T) {
	t.Run("NewRunner", func(t *testing.T) {
		t.Run("with all dependencies provided", func(t *testing.T) {
			config := shared.DefaultConfig()
			logger := shared.NewLogger(nil)
			output := &bytes.Buffer{}
			player := &fakePlayer{}

			runner := NewRunner(RunnerOpts{
				Config:     config,
				ConfigPath: "/test/path/config.toml",
				Logger:     logger,
				Output:     output,
				Player:     player,
			})

			if runner.config != config {
				t.Error("expected config to be set")
			}
			if runner.logger != logger {
				t.Error("expected logger to be set")
			}
			if runner.output != output {
				t.Error("expected output to be set")
			}
			if runner.playerEngine() != player {
				t.Error("expected player to be set")
			}
			if runner.configPath != "/test/path/config.toml" {
				t.Errorf("expected configPath to be set, got %s", runner.configPath)
			}
			if runner.registry != nil {
				t.Error("expected the database to open lazily")
			}
		})

		t.Run("with nil config uses defaults", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Config: nil})

			if runner.config == nil {
				t.Error("expected default config to be set")
			}
		})

		t.Run("with nil logger uses default", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Logger: nil})

			if runner.logger == nil {
				t.Error("expected default logger to be set")
			}
		})

		t.Run("with nil output uses stdout", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Output: nil})

			if runner.output != os.Stdout {
				t.Error("expected output to default to os.Stdout")
			}
		})

		t.Run("with nil player uses the configured backend", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{})
			if _, ok := runner.playerEngine().(*playback.ExecEngine); !ok {
				t.Error("expected an exec engine")
			}

			config := shared.DefaultConfig()
			config.Player.Backend = "mpd"
			runner = NewRunner(RunnerOpts{Config: config})
			engine := runner.playerEngine()
			if _, ok := engine.(*playback.MPDEngine); !ok {
				t.Errorf("expected an mpd engine, got %T", engine)
			}
			if runner.playerEngine() != engine {
				t.Error("expected the engine to be reused")
			}
			if err := runner.Close(); err != nil {
				t.Errorf("Close() error = %v", err)
			}
		})
	})

	t.Run("open", func(t *testing.T) {
		t.Run("is idempotent", func(t *testing.T) {
			f := setupCLI(t)
			if err := f.runner.open(); err != nil {
				t.Fatalf("open() error = %v", err)
			}
			reg := f.runner.registry
			if err := f.runner.open(); err != nil {
				t.Fatalf("open() error = %v", err)
			}
			if f.runner.registry != reg {
				t.Error("expected the same registry")
			}
		})

		t.Run("fails for an unusable database path", func(t *testing.T) {
			config := shared.DefaultConfig()
			config.Database.Path = filepath.Join(t.TempDir(), "missing", "dir", "subx.db")
			runner := NewRunner(RunnerOpts{Config: config, Logger: shared.NopLogger()})

			if err := runner.open(); err == nil {
				t.Fatal("expected an error")
			}
		})
	})

	t.Run("writeJSON", func(t *testing.T) {
		t.Run("writes formatted JSON successfully", func(t *testing.T) {
			output := &bytes.Buffer{}
			runner := NewRunner(RunnerOpts{Output: output})

			if err := runner.writeJSON(map[string]string{"key": "value"}, true); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}

			result := output.String()
			if !strings.Contains(result, `"key": "value"`) {
				t.Errorf("expected formatted JSON, got %s", result)
			}
			if !strings.HasSuffix(result, "\n") {
				t.Error("expected output to end with newline")
			}
		})

		t.Run("writes compact JSON successfully", func(t *testing.T) {
			output := &bytes.Buffer{}
			runner := NewRunner(RunnerOpts{Output: output})

			if err := runner.writeJSON(map[string]string{"key": "value"}, false); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}

			expected := `{"key":"value"}` + "\n"
			if result := output.String(); result != expected {
				t.Errorf("expected %q, got %q", expected, result)
			}
		})

		t.Run("handles marshal error with non-serializable data", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Output: &bytes.Buffer{}})

			err := runner.writeJSON(make(chan int), false)
			if err == nil || !strings.Contains(err.Error(), "failed to marshal JSON") {
				t.Errorf("expected marshal error, got %v", err)
			}
		})

		t.Run("handles write failure", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Output: &tu.FWriter{}})

			err := runner.writeJSON(map[string]string{"key": "value"}, false)
			if err == nil || !strings.Contains(err.Error(), "failed to write output") {
				t.Errorf("expected write error, got %v", err)
			}
		})

		t.Run("handles newline write failure", func(t *testing.T) {
			limitedWriter := tu.NewLimitedWriter(1, 0, &bytes.Buffer{})
			runner := NewRunner(RunnerOpts{Output: &limitedWriter})

			err := runner.writeJSON(map[string]string{"key": "value"}, false)
			if err == nil || !strings.Contains(err.Error(), "failed to write newline") {
				t.Errorf("expected newline write error, got %v", err)
			}
		})
	})

	t.Run("writePlain", func(t *testing.T) {
		t.Run("writes plain text successfully", func(t *testing.T) {
			output := &bytes.Buffer{}
			runner := NewRunner(RunnerOpts{Output: output})

			if err := runner.writePlain("hello %s", "world"); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if result := output.String(); result != "hello world" {
				t.Errorf("expected 'hello world', got %q", result)
			}
		})

		t.Run("handles write failure", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Output: &tu.FWriter{}})

			err := runner.writePlain("test")
			if err == nil || !strings.Contains(err.Error(), "failed to write output") {
				t.Errorf("expected write error, got %v", err)
			}
		})
	})

	t.Run("register", func(t *testing.T) {
		runner := NewRunner(RunnerOpts{})
		commands := runner.register()

		seen := map[string]bool{}
		for i, cmd := range commands {
			if cmd == nil {
				t.Fatalf("command at index %d is nil", i)
			}
			if seen[cmd.Name] {
				t.Errorf("duplicate command %q", cmd.Name)
			}
			seen[cmd.Name] = true
		}
		for _, name := range []string{"setup", "server", "ping", "albums", "play", "sign", "api", "prefetch", "export", "dump", "tui"} {
			if !seen[name] {
				t.Errorf("missing command %q", name)
			}
		}
	})
}

func TestSetupDatabase(t *testing.T) {
	dir := t.TempDir()
	tu.MustChdir(t, dir)

	out := &bytes.Buffer{}
	runner := NewRunner(RunnerOpts{Logger: shared.NopLogger(), Output: out})
	app := &cli.Command{Name: "subx", Commands: runner.register(), Writer: io.Discard}

	if err := app.Run(context.Background(), []string{"subx", "setup", "database", "--config", "config.toml"}); err != nil {
		t.Fatalf("setup database: %v", err)
	}

	tu.AssertFileExists(t, filepath.Join(dir, "config.toml"))
	tu.AssertFileExists(t, filepath.Join(dir, "subx.db"))
	if !strings.Contains(out.String(), "Database ready") {
		t.Errorf("output = %q", out.String())
	}
}

func TestServerCommands(t *testing.T) {
	t.Run("first server becomes active", func(t *testing.T) {
		f := setupCLI(t)
		out := f.mustRun(t, "server", "add", "--label", "home", "--url", f.fake.URL, "--user", "alice", "--password", "sesame")

		if !strings.Contains(out, "home is the active server") {
			t.Errorf("output = %q", out)
		}
	})

	t.Run("invalid profile is rejected", func(t *testing.T) {
		f := setupCLI(t)
		_, err := f.run("server", "add", "--url", "ftp://nope", "--user", "alice", "--password", "x")

		if !errors.Is(err, shared.ErrValidation) {
			t.Errorf("expected ErrValidation, got %v", err)
		}
	})

	t.Run("list never prints secrets", func(t *testing.T) {
		f := setupCLI(t)
		f.addServer(t, "home", "sesame")
		f.addServer(t, "work", "sesame")

		out := f.mustRun(t, "server", "list", "--format", "json")
		var views []map[string]any
		if err := json.Unmarshal([]byte(out), &views); err != nil {
			t.Fatalf("invalid JSON: %v\n%s", err, out)
		}
		if len(views) != 2 {
			t.Fatalf("servers = %d, want 2", len(views))
		}
		if strings.Contains(out, "sesame") {
			t.Error("secret leaked into output")
		}
	})

	t.Run("use switches and rm promotes", func(t *testing.T) {
		f := setupCLI(t)
		home := f.addServer(t, "home", "sesame")
		work := f.addServer(t, "work", "sesame")

		f.mustRun(t, "server", "use", work)
		if got := f.runner.registry.ActiveID(); got != work {
			t.Fatalf("active = %s, want %s", got, work)
		}

		out := f.mustRun(t, "server", "rm", work)
		if got := f.runner.registry.ActiveID(); got != home {
			t.Errorf("active = %s, want %s", got, home)
		}
		if !strings.Contains(out, "Active server: home") {
			t.Errorf("output = %q", out)
		}
	})

	t.Run("edit changes credentials", func(t *testing.T) {
		f := setupCLI(t)
		id := f.addServer(t, "home", "wrong")

		if _, err := f.run("ping"); !errors.Is(err, shared.ErrAuthFailed) {
			t.Fatalf("expected ErrAuthFailed, got %v", err)
		}
		f.mustRun(t, "server", "edit", "--password", "sesame", id)
		if out := f.mustRun(t, "ping"); !strings.Contains(out, "home is reachable") {
			t.Errorf("output = %q", out)
		}
	})

	t.Run("edit without flags", func(t *testing.T) {
		f := setupCLI(t)
		id := f.addServer(t, "home", "sesame")

		if _, err := f.run("server", "edit", id); !errors.Is(err, shared.ErrMissingArgument) {
			t.Errorf("expected ErrMissingArgument, got %v", err)
		}
	})

	t.Run("use requires an id", func(t *testing.T) {
		f := setupCLI(t)
		if _, err := f.run("server", "use"); !errors.Is(err, shared.ErrMissingArgument) {
			t.Errorf("expected ErrMissingArgument, got %v", err)
		}
	})
}

func TestLibraryCommands(t *testing.T) {
	t.Run("no active server", func(t *testing.T) {
		f := setupCLI(t)
		for _, args := range [][]string{{"albums"}, {"playlists"}, {"ping"}, {"sign", "stream?id=1"}} {
			if _, err := f.run(args...); !errors.Is(err, shared.ErrNoActiveServer) {
				t.Errorf("%v: expected ErrNoActiveServer, got %v", args, err)
			}
		}
	})

	t.Run("albums pages up to the limit", func(t *testing.T) {
		f := setupCLI(t)
		f.addServer(t, "home", "sesame")

		out := f.mustRun(t, "albums", "--format", "csv", "--limit", "7")
		lines := strings.Split(strings.TrimSpace(out), "\n")
		if len(lines) != 8 {
			t.Errorf("lines = %d, want header + 7", len(lines))
		}
		if got := f.fake.Hits("getAlbumList2"); got != 2 {
			t.Errorf("getAlbumList2 hits = %d, want 2 pages", got)
		}
	})

	t.Run("albums rejects unknown list types", func(t *testing.T) {
		f := setupCLI(t)
		f.addServer(t, "home", "sesame")

		if _, err := f.run("albums", "--type", "loudest"); !errors.Is(err, shared.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, got %v", err)
		}
	})

	t.Run("playlists table", func(t *testing.T) {
		f := setupCLI(t)
		f.addServer(t, "home", "sesame")

		out := f.mustRun(t, "playlists")
		for _, want := range []string{"Mix", "Chill"} {
			if !strings.Contains(out, want) {
				t.Errorf("output missing %q:\n%s", want, out)
			}
		}
	})

	t.Run("playlist tracks as JSON", func(t *testing.T) {
		f := setupCLI(t)
		f.addServer(t, "home", "sesame")

		out := f.mustRun(t, "playlist", "--format", "json", "pl1")
		var tracks []models.Track
		if err := json.Unmarshal([]byte(out), &tracks); err != nil {
			t.Fatalf("invalid JSON: %v\n%s", err, out)
		}
		if len(tracks) != 2 {
			t.Errorf("tracks = %d, want 2", len(tracks))
		}
	})

	t.Run("artist discography", func(t *testing.T) {
		f := setupCLI(t)
		f.addServer(t, "home", "sesame")

		out := f.mustRun(t, "artist", "ar1")
		if !strings.Contains(out, "Album 2") {
			t.Errorf("output = %q", out)
		}
	})

	t.Run("search", func(t *testing.T) {
		f := setupCLI(t)
		f.addServer(t, "home", "sesame")

		out := f.mustRun(t, "search", "track")
		if !strings.Contains(out, "Songs") || !strings.Contains(out, "Track 3") {
			t.Errorf("output = %q", out)
		}
		if out := f.mustRun(t, "search", "zzz"); !strings.Contains(out, "No results") {
			t.Errorf("output = %q", out)
		}
	})
}

func TestSignAndAPI(t *testing.T) {
	t.Run("sign prints a salted URL", func(t *testing.T) {
		f := setupCLI(t)
		f.addServer(t, "home", "sesame")

		out := strings.TrimSpace(f.mustRun(t, "sign", "stream?id=42"))
		if !strings.HasPrefix(out, f.fake.URL+"/rest/stream") {
			t.Errorf("url = %q", out)
		}
		for _, param := range []string{"id=42", "u=alice", "t=", "s=", "f=json"} {
			if !strings.Contains(out, param) {
				t.Errorf("url %q missing %q", out, param)
			}
		}
		if strings.Contains(out, "sesame") {
			t.Error("password leaked into url")
		}
	})

	t.Run("sign rejects escaping paths", func(t *testing.T) {
		f := setupCLI(t)
		f.addServer(t, "home", "sesame")

		if _, err := f.run("sign", "../admin"); !errors.Is(err, shared.ErrMalformedPath) {
			t.Errorf("expected ErrMalformedPath, got %v", err)
		}
	})

	t.Run("api prints the raw envelope", func(t *testing.T) {
		f := setupCLI(t)
		f.addServer(t, "home", "sesame")

		out := f.mustRun(t, "api", "getAlbumList2", "type=newest", "size=2")
		if !strings.Contains(out, "subsonic-response") || !strings.Contains(out, "Album 2") {
			t.Errorf("output = %q", out)
		}
	})

	t.Run("api rejects malformed params", func(t *testing.T) {
		f := setupCLI(t)
		f.addServer(t, "home", "sesame")

		if _, err := f.run("api", "ping", "oops"); !errors.Is(err, shared.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, got %v", err)
		}
	})

	t.Run("dump saves to a file", func(t *testing.T) {
		f := setupCLI(t)
		f.addServer(t, "home", "sesame")
		path := filepath.Join(f.dir, "dump.json")

		out := f.mustRun(t, "dump", "--save", path)
		if !strings.Contains(out, "Dump of home complete") {
			t.Errorf("output = %q", out)
		}
		tu.AssertFileExists(t, path)
	})
}

func TestPlayCommands(t *testing.T) {
	t.Run("album plays every track and saves the queue", func(t *testing.T) {
		f := setupCLI(t)
		id := f.addServer(t, "home", "sesame")

		out := f.mustRun(t, "play", "album", "al1")
		if got := f.player.count(); got != 3 {
			t.Errorf("played = %d, want 3", got)
		}
		if !strings.Contains(out, "▶ Track 1") {
			t.Errorf("output = %q", out)
		}

		snap, err := f.runner.snapshots.Load(id)
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if len(snap.Tracks) != 3 {
			t.Errorf("saved tracks = %d, want 3", len(snap.Tracks))
		}
	})

	t.Run("start and repeat flags", func(t *testing.T) {
		f := setupCLI(t)
		f.addServer(t, "home", "sesame")

		f.mustRun(t, "play", "playlist", "--start", "1", "pl1")
		if got := f.player.count(); got != 1 {
			t.Errorf("played = %d, want 1", got)
		}

		if _, err := f.run("play", "album", "--repeat", "forever", "al1"); !errors.Is(err, shared.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, got %v", err)
		}
		if _, err := f.run("play", "album", "--start", "9", "al1"); !errors.Is(err, shared.ErrIndex) {
			t.Errorf("expected ErrIndex, got %v", err)
		}
	})

	t.Run("resume continues the saved queue", func(t *testing.T) {
		f := setupCLI(t)
		f.addServer(t, "home", "sesame")

		if out := f.mustRun(t, "play", "resume"); !strings.Contains(out, "Nothing to resume") {
			t.Errorf("output = %q", out)
		}

		f.mustRun(t, "play", "album", "al1")
		f.mustRun(t, "play", "resume")
		if got := f.player.count(); got != 4 {
			t.Errorf("played = %d, want 3 + the last track again", got)
		}
	})
}

func TestTaskCommands(t *testing.T) {
	t.Run("prefetch playlist artwork", func(t *testing.T) {
		f := setupCLI(t)
		f.addServer(t, "home", "sesame")
		dir := filepath.Join(f.dir, "covers")

		out := f.mustRun(t, "prefetch", "artwork", "--of", "playlists", "--output", dir)
		if !strings.Contains(out, "Fetched: 2") {
			t.Errorf("output = %q", out)
		}
		tu.AssertFileExists(t, filepath.Join(dir, "pl1.jpg"))
	})

	t.Run("prefetch rejects unknown targets", func(t *testing.T) {
		f := setupCLI(t)
		f.addServer(t, "home", "sesame")

		if _, err := f.run("prefetch", "artwork", "--of", "songs"); !errors.Is(err, shared.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, got %v", err)
		}
	})

	t.Run("export selected playlists", func(t *testing.T) {
		f := setupCLI(t)
		f.addServer(t, "home", "sesame")
		dir := filepath.Join(f.dir, "export")

		out := f.mustRun(t, "export", "playlists", "--format", "txt", "--output", dir, "pl1")
		if !strings.Contains(out, "Exported: 1/1") {
			t.Errorf("output = %q", out)
		}
		tu.AssertFileExists(t, filepath.Join(dir, "pl1_tracks.txt"))
		tu.AssertFileExists(t, filepath.Join(dir, "export_manifest.json"))
	})

	t.Run("export rejects unknown formats", func(t *testing.T) {
		f := setupCLI(t)
		f.addServer(t, "home", "sesame")

		if _, err := f.run("export", "playlists", "--format", "xml"); !errors.Is(err, shared.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, got %v", err)
		}
	})
}
