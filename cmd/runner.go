package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/mp3d/internal/resolver"
	"github.com/desertthunder/mp3d/internal/server"
	"github.com/desertthunder/mp3d/internal/services"
	"github.com/desertthunder/mp3d/internal/shared"
	"github.com/desertthunder/mp3d/internal/transcode"
	"github.com/urfave/cli/v3"
)

// Runner holds all dependencies for CLI commands and provides methods for each command action.
type Runner struct {
	config     *shared.Config
	httpClient *http.Client
	logger     *log.Logger
	output     io.Writer
}

// RunnerOpts contains configuration options for creating a Runner.
//
// A nil Config is loaded per command from --config, the environment, and flags.
type RunnerOpts struct {
	Config     *shared.Config
	HTTPClient *http.Client
	Logger     *log.Logger
	Output     io.Writer
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}

	return &Runner{
		config:     opts.Config,
		httpClient: opts.HTTPClient,
		logger:     opts.Logger,
		output:     opts.Output,
	}
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){serveCommand, resolveCommand, setupCommand} {
		commands = append(commands, fn(r))
	}

	return commands
}

// loadConfig resolves the effective configuration: file (or defaults), then environment, then flags.
func (r *Runner) loadConfig(cmd *cli.Command) (*shared.Config, error) {
	if r.config != nil {
		config := *r.config
		return &config, nil
	}

	config := shared.DefaultConfig()
	if path := cmd.String("config"); path != "" {
		if _, err := os.Stat(path); err == nil {
			loaded, err := shared.LoadConfig(path)
			if err != nil {
				return nil, err
			}
			config = loaded
			r.logger.Debug("config loaded", "path", path)
		} else if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to stat config: %w", err)
		} else if cmd.IsSet("config") {
			return nil, fmt.Errorf("%w: %s", shared.ErrMissingConfig, path)
		}
	}

	if err := config.ApplyEnv(); err != nil {
		return nil, err
	}

	if cmd.IsSet("host") {
		config.Server.Host = cmd.String("host")
	}
	if cmd.IsSet("port") {
		config.Server.Port = int(cmd.Int("port"))
	}
	if cmd.IsSet("ffmpeg") {
		config.Transcode.FFmpegPath = cmd.String("ffmpeg")
	}
	if cmd.IsSet("log-level") {
		config.Log.Level = cmd.String("log-level")
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	shared.SetLogLevel(r.logger, shared.ParseLogLevel(config.Log.Level))
	return config, nil
}

// clients builds the YouTube and Spotify API clients for config.
func (r *Runner) clients(config *shared.Config) (*services.YouTubeClient, *services.SpotifyClient) {
	youtube := services.NewYouTubeClient(services.Options{
		BaseURL:    config.Upstream.YouTubeAPIURL,
		HTTPClient: r.httpClient,
		Timeout:    config.Upstream.Timeout.Duration,
	})
	spotify := services.NewSpotifyClient(services.Options{
		BaseURL:    config.Upstream.SpotifyAPIURL,
		TokenURL:   config.Upstream.SpotifyTokenURL,
		HTTPClient: r.httpClient,
		Timeout:    config.Upstream.Timeout.Duration,
	})
	return youtube, spotify
}

// router wires the production services into the HTTP router.
func (r *Runner) router(config *shared.Config) http.Handler {
	youtube, spotify := r.clients(config)
	encoder := transcode.NewFFmpegEncoder(config.Transcode.FFmpegPath)

	return server.NewRouter(server.Options{
		Config:   *config,
		Resolver: resolver.New(youtube, spotify, r.logger),
		Metadata: youtube,
		Pipeline: transcode.NewPipeline(transcode.NewYouTubeSource(r.httpClient), encoder, r.logger),
		Encoder:  encoder,
		Logger:   r.logger,
	})
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	var output []byte
	var err error

	if pretty {
		output, err = json.MarshalIndent(data, "", "  ")
	} else {
		output, err = json.Marshal(data)
	}

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
