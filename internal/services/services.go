// package services defines clients for the external HTTP APIs the download pipeline consults
//
// YouTube Data API v3, Spotify Web API
package services

import (
	"context"
	"net/http"
	"time"

	"github.com/desertthunder/mp3d/internal/models"
)

const defaultTimeout = 10 * time.Second

// MetadataFetcher returns the title and author of a video.
type MetadataFetcher interface {
	VideoMetadata(ctx context.Context, apiKey, videoID string) (*models.TrackMetadata, error)
}

// VideoSearcher returns the id of the best-matching video for a free-text query.
type VideoSearcher interface {
	SearchVideo(ctx context.Context, apiKey, query string) (string, error)
}

// TrackLookup resolves a Spotify track id to artist and title.
type TrackLookup interface {
	LookupTrack(ctx context.Context, creds models.Credentials, trackID string) (*models.SpotifyTrack, error)
}

// Options configures a client's base URLs, HTTP client, and per-call timeout.
type Options struct {
	BaseURL    string
	TokenURL   string // Spotify only
	HTTPClient *http.Client
	Timeout    time.Duration
}

func (o Options) client() *http.Client {
	if o.HTTPClient == nil {
		return http.DefaultClient
	}
	return o.HTTPClient
}

func (o Options) timeout() time.Duration {
	if o.Timeout <= 0 {
		return defaultTimeout
	}
	return o.Timeout
}
