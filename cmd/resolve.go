package main

import (
	"context"
	"fmt"

	"github.com/desertthunder/mp3d/internal/models"
	"github.com/desertthunder/mp3d/internal/resolver"
	"github.com/desertthunder/mp3d/internal/shared"
	"github.com/desertthunder/mp3d/internal/ui"
	"github.com/urfave/cli/v3"
)

const watchURL = "https://www.youtube.com/watch?v="

// Resolution is the output of the resolve command.
type Resolution struct {
	Source   string `json:"source"`
	VideoID  string `json:"video_id"`
	Title    string `json:"title"`
	Author   string `json:"author"`
	Filename string `json:"filename"`
	URL      string `json:"url"`
}

// Resolve runs the identifier normalizer and metadata lookup and prints the result.
func (r *Runner) Resolve(ctx context.Context, cmd *cli.Command) error {
	config, err := r.loadConfig(cmd)
	if err != nil {
		return err
	}

	src, err := sourceFromFlags(cmd)
	if err != nil {
		return err
	}

	req := models.Request{
		Source:  src,
		Bitrate: config.Transcode.DefaultBitrate,
		Credentials: models.Credentials{
			YouTubeAPIKey:       cmd.String("youtube-key"),
			SpotifyClientID:     cmd.String("spotify-client-id"),
			SpotifyClientSecret: cmd.String("spotify-client-secret"),
		},
	}
	if err := req.Validate(); err != nil {
		return err
	}

	r.logger.Debug("resolving", "source", src.Kind(), "credentials", req.Credentials)

	youtube, spotify := r.clients(config)
	id, err := resolver.New(youtube, spotify, r.logger).Resolve(ctx, req)
	if err != nil {
		return fmt.Errorf("resolve failed: %w", err)
	}

	meta, err := youtube.VideoMetadata(ctx, req.Credentials.YouTubeAPIKey, id.VideoID)
	if err != nil {
		return fmt.Errorf("metadata failed: %w", shared.NewStageError(shared.StageMetadata, err))
	}

	res := Resolution{
		Source:   src.Kind(),
		VideoID:  id.VideoID,
		Title:    meta.Title,
		Author:   meta.Author,
		Filename: meta.Filename(),
		URL:      watchURL + id.VideoID,
	}

	if cmd.Bool("json") {
		return r.writeJSON(res, true)
	}
	return r.writeResolution(res)
}

func (r *Runner) writeResolution(res Resolution) error {
	return r.writePlain("%s", ui.Styles().Block("Resolved",
		ui.Row{Label: "Source", Value: res.Source},
		ui.Row{Label: "Video ID", Value: res.VideoID},
		ui.Row{Label: "Title", Value: res.Title},
		ui.Row{Label: "Author", Value: res.Author},
		ui.Row{Label: "Filename", Value: res.Filename},
		ui.Row{Label: "URL", Value: res.URL},
	))
}

// sourceFromFlags picks exactly one of --id, --artist/--title, or --spotify-id.
func sourceFromFlags(cmd *cli.Command) (models.Source, error) {
	id, spotifyID := cmd.String("id"), cmd.String("spotify-id")
	artist, title := cmd.String("artist"), cmd.String("title")

	var sources []models.Source
	if id != "" {
		sources = append(sources, models.VideoIDSource{VideoID: id})
	}
	if artist != "" || title != "" {
		sources = append(sources, models.ArtistTitleSource{Artist: artist, Title: title})
	}
	if spotifyID != "" {
		sources = append(sources, models.SpotifyTrackSource{TrackID: spotifyID})
	}

	switch len(sources) {
	case 0:
		return nil, fmt.Errorf("%w: one of --id, --artist/--title or --spotify-id", shared.ErrMissingParameter)
	case 1:
		return sources[0], nil
	default:
		return nil, fmt.Errorf("%w: --id, --artist/--title and --spotify-id are mutually exclusive", shared.ErrInvalidParameter)
	}
}
