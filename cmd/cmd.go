// submodule cmd contains command definitions
package main

import "github.com/urfave/cli/v3"

// setupCommand creates the config file if needed and migrates the database.
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "setup",
		Usage:  "Initialize config, database and run migrations",
		Action: r.Setup,
	}
}

// configCommand manages the configuration file
func configCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "Manage the configuration file",
		Commands: []*cli.Command{
			{
				Name:   "init",
				Usage:  "Write the default configuration file",
				Action: r.ConfigInit,
			},
			{
				Name:   "show",
				Usage:  "Print the effective configuration as TOML",
				Action: r.ConfigShow,
			},
		},
	}
}

// playCommand launches the interactive player.
func playCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "play",
		Usage: "Play a queue file, a URL or resume the last session",
		Arguments: []cli.Argument{
			&cli.StringArg{Name: "queue"},
		},
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "index",
				Aliases: []string{"i"},
				Usage:   "Queue index to start from",
			},
			&cli.StringFlag{
				Name:  "url",
				Usage: "Play a single stream or file URL instead of a queue",
			},
			&cli.StringFlag{
				Name:  "title",
				Usage: "Title shown for --url",
			},
		},
		Action: r.Play,
	}
}

// serveCommand runs the player headless behind the control API.
func serveCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the player headless with an HTTP control API",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "host",
				Usage: "Address to listen on (defaults to server.host)",
			},
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to listen on (defaults to server.port)",
			},
			&cli.BoolFlag{
				Name:  "fresh",
				Usage: "Start without restoring the resume snapshot",
			},
		},
		Action: r.Serve,
	}
}

// resumeCommand inspects the saved resume snapshot
func resumeCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "resume",
		Usage: "Inspect or clear the saved resume position",
		Commands: []*cli.Command{
			{
				Name:  "show",
				Usage: "Show the saved track and position",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output raw JSON",
					},
					&cli.BoolFlag{
						Name:  "pretty",
						Usage: "Pretty-print output",
						Value: true,
					},
				},
				Action: r.ResumeShow,
			},
			{
				Name:   "clear",
				Usage:  "Forget the saved resume position",
				Action: r.ResumeClear,
			},
		},
	}
}

// cacheCommand manages the resolution cache
func cacheCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "cache",
		Usage: "Inspect, clear or warm the resolution cache",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List cached resolutions",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "format",
						Aliases: []string{"f"},
						Usage:   "Output format (txt, csv, json)",
						Value:   "txt",
					},
				},
				Action: r.CacheList,
			},
			{
				Name:   "clear",
				Usage:  "Drop every cached resolution",
				Action: r.CacheClear,
			},
			{
				Name:  "warm",
				Usage: "Resolve every track of a queue file ahead of playback",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "queue"},
				},
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:    "workers",
						Aliases: []string{"w"},
						Usage:   "Number of concurrent resolutions",
						Value:   3,
					},
					&cli.FloatFlag{
						Name:  "rate",
						Usage: "Resolutions started per second",
						Value: 4,
					},
					&cli.StringFlag{
						Name:    "manifest",
						Aliases: []string{"o"},
						Usage:   "Write a JSON manifest of the results",
					},
				},
				Action: r.CacheWarm,
			},
		},
	}
}

// recentCommand prints the listening history
func recentCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "recent",
		Usage: "Show recently played tracks",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "limit",
				Aliases: []string{"n"},
				Usage:   "Maximum number of tracks",
				Value:   20,
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Output raw JSON",
			},
		},
		Action: r.Recent,
	}
}
