// submodule cmd contains command definitions
package main

import "github.com/urfave/cli/v3"

func configFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Path to configuration file",
		Value:   "config.toml",
		Sources: cli.EnvVars("MP3D_CONFIG"),
	}
}

// serveCommand runs the HTTP service
func serveCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the download service",
		Flags: []cli.Flag{
			configFlag(),
			&cli.StringFlag{
				Name:  "host",
				Usage: "Listen host (overrides config and HOST)",
			},
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Listen port (overrides config and PORT)",
			},
			&cli.StringFlag{
				Name:  "ffmpeg",
				Usage: "Path to the ffmpeg binary",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "debug, info, warn or error",
			},
		},
		Action: r.Serve,
	}
}

// resolveCommand resolves a request to a video without downloading it
func resolveCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "resolve",
		Usage: "Resolve a YouTube id, artist/title or Spotify id to a video and its metadata",
		Flags: []cli.Flag{
			configFlag(),
			&cli.StringFlag{
				Name:  "id",
				Usage: "YouTube video id",
			},
			&cli.StringFlag{
				Name:  "artist",
				Usage: "Artist name (with --title)",
			},
			&cli.StringFlag{
				Name:  "title",
				Usage: "Song title (with --artist)",
			},
			&cli.StringFlag{
				Name:  "spotify-id",
				Usage: "Spotify track id",
			},
			&cli.StringFlag{
				Name:    "youtube-key",
				Usage:   "YouTube Data API key",
				Sources: cli.EnvVars("YOUTUBE_API_KEY"),
			},
			&cli.StringFlag{
				Name:    "spotify-client-id",
				Usage:   "Spotify client id",
				Sources: cli.EnvVars("SPOTIFY_CLIENT_ID"),
			},
			&cli.StringFlag{
				Name:    "spotify-client-secret",
				Usage:   "Spotify client secret",
				Sources: cli.EnvVars("SPOTIFY_CLIENT_SECRET"),
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Output raw JSON",
			},
		},
		Action: r.Resolve,
	}
}

// setupCommand handles setup operations for configuration and dependencies.
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "setup",
		Usage: "Setup and configuration commands",
		Commands: []*cli.Command{
			{
				Name:  "config",
				Usage: "Write the example configuration file",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "path",
						Aliases: []string{"o"},
						Usage:   "Where to write the file",
						Value:   "config.toml",
					},
				},
				Action: r.SetupConfig,
			},
			{
				Name:   "check",
				Usage:  "Check that ffmpeg is installed and the config is valid",
				Flags:  []cli.Flag{configFlag()},
				Action: r.SetupCheck,
			},
		},
	}
}
