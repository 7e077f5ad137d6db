// Package resolver normalizes the three download request forms into a single YouTube video id.
package resolver

import (
	"context"
	"fmt"
	"io"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/mp3d/internal/models"
	"github.com/desertthunder/mp3d/internal/services"
	"github.com/desertthunder/mp3d/internal/shared"
)

// Resolver dispatches on the [models.Source] variant.
type Resolver struct {
	search services.VideoSearcher
	tracks services.TrackLookup
	logger *log.Logger
}

// New creates a Resolver. A nil logger discards output.
func New(search services.VideoSearcher, tracks services.TrackLookup, logger *log.Logger) *Resolver {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Resolver{search: search, tracks: tracks, logger: logger}
}

// Resolve returns the video id for the request's source.
//
// Credentials are checked before any network call. Upstream failures are returned as-is, tagged with their stage.
func (r *Resolver) Resolve(ctx context.Context, req models.Request) (models.VideoIdentity, error) {
	src, creds := req.Source, req.Credentials
	if src == nil {
		return models.VideoIdentity{}, fmt.Errorf("%w: source", shared.ErrMissingParameter)
	}
	if err := models.RequiredCredentials(src, creds); err != nil {
		return models.VideoIdentity{}, err
	}

	switch s := src.(type) {
	case models.VideoIDSource:
		return models.VideoIdentity{VideoID: s.VideoID}, nil
	case models.ArtistTitleSource:
		return r.searchVideo(ctx, s, creds)
	case models.SpotifyTrackSource:
		track, err := r.tracks.LookupTrack(ctx, creds, s.TrackID)
		if err != nil {
			return models.VideoIdentity{}, err
		}
		r.logger.Debug("spotify track resolved", "track_id", s.TrackID, "artist", track.Artist, "title", track.Title)
		return r.searchVideo(ctx, track.Source(), creds)
	default:
		return models.VideoIdentity{}, fmt.Errorf("%w: unsupported source %T", shared.ErrInvalidParameter, src)
	}
}

func (r *Resolver) searchVideo(ctx context.Context, s models.ArtistTitleSource, creds models.Credentials) (models.VideoIdentity, error) {
	query := s.Query()
	id, err := r.search.SearchVideo(ctx, creds.YouTubeAPIKey, query)
	if err != nil {
		return models.VideoIdentity{}, shared.NewStageError(shared.StageSearch, err)
	}

	r.logger.Debug("search resolved", "query", query, "video_id", id)
	return models.VideoIdentity{VideoID: id}, nil
}
