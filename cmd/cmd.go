// submodule cmd contains command definitions
package main

import (
	"cmp"

	"github.com/urfave/cli/v3"
)

func formatFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "format",
		Aliases: []string{"f"},
		Usage:   "Output format: table, json or csv",
		Value:   "table",
	}
}

// setupCommand handles setup operations.
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "setup",
		Usage: "Setup and configuration commands",
		Commands: []*cli.Command{
			{
				Name:  "database",
				Usage: "Create the config file if missing, initialize the database and run migrations",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "config",
						Aliases: []string{"c"},
						Usage:   "Path to configuration file",
						Value:   cmp.Or(r.configPath, "config.toml"),
					},
				},
				Action: r.SetupDatabase,
			},
		},
	}
}

// serverCommand manages saved server profiles.
func serverCommand(r *Runner) *cli.Command {
	credentialFlags := []cli.Flag{
		&cli.StringFlag{Name: "label", Aliases: []string{"l"}, Usage: "Display name"},
		&cli.StringFlag{Name: "url", Usage: "Server base URL, e.g. https://music.example.com"},
		&cli.StringFlag{Name: "user", Aliases: []string{"u"}, Usage: "Username"},
		&cli.StringFlag{Name: "password", Aliases: []string{"p"}, Usage: "Password, or API key with --kind apikey"},
		&cli.StringFlag{Name: "kind", Usage: "Credential kind: password or apikey"},
	}

	return &cli.Command{
		Name:    "server",
		Aliases: []string{"servers"},
		Usage:   "Manage Subsonic server profiles",
		Commands: []*cli.Command{
			{
				Name:   "add",
				Usage:  "Save a server profile; the first one becomes active",
				Flags:  append(credentialFlags, &cli.BoolFlag{Name: "use", Usage: "Make the new server active"}),
				Action: r.connected(r.ServerAdd),
			},
			{
				Name:    "list",
				Aliases: []string{"ls"},
				Usage:   "List saved servers",
				Flags:   []cli.Flag{formatFlag()},
				Action:  r.connected(r.ServerList),
			},
			{
				Name:      "use",
				Usage:     "Switch the active server",
				Arguments: []cli.Argument{&cli.StringArg{Name: "id"}},
				Action:    r.connected(r.ServerUse),
			},
			{
				Name:      "edit",
				Usage:     "Change fields of a saved server",
				Arguments: []cli.Argument{&cli.StringArg{Name: "id"}},
				Flags:     credentialFlags,
				Action:    r.connected(r.ServerEdit),
			},
			{
				Name:      "rm",
				Aliases:   []string{"remove", "delete"},
				Usage:     "Delete a saved server",
				Arguments: []cli.Argument{&cli.StringArg{Name: "id"}},
				Action:    r.connected(r.ServerRemove),
			},
		},
	}
}

func pingCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "ping",
		Usage:  "Check the active server answers with the saved credentials",
		Action: r.connected(r.Ping),
	}
}

func albumsCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "albums",
		Usage: "List albums of the active server",
		Flags: []cli.Flag{
			formatFlag(),
			&cli.StringFlag{
				Name:    "type",
				Aliases: []string{"t"},
				Usage:   "List type: newest, recent, frequent, random, alphabeticalByName, alphabeticalByArtist, starred, highest",
				Value:   "newest",
			},
			&cli.IntFlag{Name: "limit", Aliases: []string{"n"}, Usage: "Maximum number of albums (default: one page)"},
		},
		Action: r.connected(r.Albums),
	}
}

func playlistsCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "playlists",
		Usage:  "List playlists of the active server",
		Flags:  []cli.Flag{formatFlag()},
		Action: r.connected(r.Playlists),
	}
}

func playlistCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:      "playlist",
		Usage:     "Show the tracks of a playlist",
		Arguments: []cli.Argument{&cli.StringArg{Name: "id"}},
		Flags:     []cli.Flag{formatFlag()},
		Action:    r.connected(r.Playlist),
	}
}

func artistCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:      "artist",
		Usage:     "Show an artist's discography",
		Arguments: []cli.Argument{&cli.StringArg{Name: "id"}},
		Flags:     []cli.Flag{formatFlag(), &cli.IntFlag{Name: "limit", Aliases: []string{"n"}, Usage: "Maximum number of albums (default: all)"}},
		Action:    r.connected(r.Artist),
	}
}

func searchCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:      "search",
		Usage:     "Search artists, albums and songs",
		Arguments: []cli.Argument{&cli.StringArg{Name: "query"}},
		Flags:     []cli.Flag{formatFlag(), &cli.IntFlag{Name: "limit", Aliases: []string{"n"}, Usage: "Maximum results per kind", Value: 20}},
		Action:    r.connected(r.Search),
	}
}

// playCommand plays albums and playlists through the configured player.
func playCommand(r *Runner) *cli.Command {
	flags := func() []cli.Flag {
		return []cli.Flag{
			&cli.BoolFlag{Name: "shuffle", Aliases: []string{"s"}, Usage: "Shuffle the queue, keeping the start track first"},
			&cli.StringFlag{Name: "repeat", Aliases: []string{"r"}, Usage: "Repeat mode: off, all or one", Value: "off"},
			&cli.IntFlag{Name: "start", Usage: "Zero-based track index to start from"},
		}
	}

	return &cli.Command{
		Name:  "play",
		Usage: "Play music with the configured player",
		Commands: []*cli.Command{
			{
				Name:      "album",
				Usage:     "Play an album",
				Arguments: []cli.Argument{&cli.StringArg{Name: "id"}},
				Flags:     flags(),
				Action:    r.connected(r.PlayAlbum),
			},
			{
				Name:      "playlist",
				Usage:     "Play a playlist",
				Arguments: []cli.Argument{&cli.StringArg{Name: "id"}},
				Flags:     flags(),
				Action:    r.connected(r.PlayPlaylist),
			},
			{
				Name:   "resume",
				Usage:  "Resume the queue saved for the active server",
				Action: r.connected(r.PlayResume),
			},
		},
	}
}

func signCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:      "sign",
		Usage:     "Print a signed URL for a resource path on the active server, e.g. stream?id=42",
		Arguments: []cli.Argument{&cli.StringArg{Name: "path"}},
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "json", Usage: "Output the signed request as JSON"},
		},
		Action: r.connected(r.Sign),
	}
}

// apiCommand handles raw API calls against the active server.
func apiCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:      "api",
		Usage:     "Direct GET of a Subsonic endpoint, prints the raw response",
		ArgsUsage: "<endpoint> [key=value ...]",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "pretty",
				Usage: "Pretty-print JSON output",
				Value: true,
			},
		},
		Action: r.connected(r.APIGet),
	}
}

func prefetchCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "prefetch",
		Usage: "Warm caches ahead of browsing",
		Commands: []*cli.Command{
			{
				Name:  "artwork",
				Usage: "Fetch cover art for albums or playlists through the caching transport",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "of", Usage: "What to fetch covers for: albums or playlists", Value: "albums"},
					&cli.StringFlag{Name: "type", Aliases: []string{"t"}, Usage: "Album list type", Value: "newest"},
					&cli.IntFlag{Name: "limit", Aliases: []string{"n"}, Usage: "Maximum number of albums", Value: 100},
					&cli.IntFlag{Name: "workers", Aliases: []string{"w"}, Usage: "Concurrent downloads", Value: 4},
					&cli.FloatFlag{Name: "rate", Usage: "Requests per second", Value: 8},
					&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Usage: "Save covers to this directory"},
					&cli.IntFlag{Name: "thumbnail", Usage: "Scale saved covers to fit this many pixels square"},
				},
				Action: r.connected(r.PrefetchArtwork),
			},
		},
	}
}

func exportCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "export",
		Usage: "Export library data to files",
		Commands: []*cli.Command{
			{
				Name:      "playlists",
				Usage:     "Export playlists (all when no ids are given)",
				ArgsUsage: "[id ...]",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "format", Aliases: []string{"f"}, Usage: "json, csv, markdown or txt", Value: "json"},
					&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Usage: "Output directory (default: subx_export_{epoch})"},
					&cli.IntFlag{Name: "workers", Aliases: []string{"w"}, Usage: "Concurrent writers", Value: 5},
					&cli.FloatFlag{Name: "rate", Usage: "Requests per second", Value: 5},
					&cli.BoolFlag{Name: "covers", Usage: "Download playlist covers for markdown exports"},
				},
				Action: r.connected(r.ExportPlaylists),
			},
		},
	}
}

func dumpCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "dump",
		Usage: "Dump the raw library endpoints of the active server",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "pretty",
				Usage: "Pretty-print output",
				Value: true,
			},
			&cli.StringFlag{
				Name:  "save",
				Usage: "Also save the dump to this file",
			},
		},
		Action: r.connected(r.Dump),
	}
}

// tuiCommand returns the top-level TUI command.
func tuiCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "tui",
		Aliases: []string{"interactive", "ui"},
		Usage:   "Launch the interactive album browser and player",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "type", Aliases: []string{"t"}, Usage: "Initial album list type", Value: "newest"},
		},
		Action: r.TUI,
	}
}
