// Spotify Web API client
//
// Spotify API response types based on https://developer.spotify.com/documentation/web-api/reference/
package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/desertthunder/mp3d/internal/models"
	"github.com/desertthunder/mp3d/internal/shared"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const (
	spotifyTokenURL = "https://accounts.spotify.com/api/token"
	spotifyBaseURL  = "https://api.spotify.com/v1"
)

// SpotifyArtist represents a simplified Spotify artist.
type SpotifyArtist struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	URI  string `json:"uri"`
}

// SpotifyAlbum represents a simplified Spotify album.
type SpotifyAlbum struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// SpotifyTrack represents a Spotify track.
type SpotifyTrack struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Artists    []SpotifyArtist `json:"artists"`
	Album      SpotifyAlbum    `json:"album"`
	DurationMS int             `json:"duration_ms"`
	URI        string          `json:"uri"`
}

// ArtistNames joins the artist names with ", ".
func (t SpotifyTrack) ArtistNames() string {
	names := make([]string, 0, len(t.Artists))
	for _, a := range t.Artists {
		if a.Name != "" {
			names = append(names, a.Name)
		}
	}
	return strings.Join(names, ", ")
}

// SpotifyClient implements [TrackLookup] using the client-credentials flow.
//
// It holds no credentials or tokens; both are per call.
type SpotifyClient struct {
	baseURL    string
	tokenURL   string
	httpClient *http.Client
	timeout    time.Duration
}

// NewSpotifyClient creates a client. Empty URLs select the public endpoints.
func NewSpotifyClient(opts Options) *SpotifyClient {
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = spotifyBaseURL
	}
	tokenURL := opts.TokenURL
	if tokenURL == "" {
		tokenURL = spotifyTokenURL
	}

	return &SpotifyClient{
		baseURL:    baseURL,
		tokenURL:   tokenURL,
		httpClient: opts.client(),
		timeout:    opts.timeout(),
	}
}

// LookupTrack exchanges the client credentials for an access token, then fetches the track.
func (s *SpotifyClient) LookupTrack(ctx context.Context, creds models.Credentials, trackID string) (*models.SpotifyTrack, error) {
	if !creds.HasSpotify() {
		return nil, fmt.Errorf("%w: spotify client id and secret", shared.ErrMissingCredentials)
	}

	token, err := s.exchange(ctx, creds)
	if err != nil {
		return nil, shared.NewStageError(shared.StageSpotifyToken, err)
	}

	track, err := s.track(ctx, token, trackID)
	if err != nil {
		return nil, shared.NewStageError(shared.StageSpotifyTrack, err)
	}

	artist := track.ArtistNames()
	if artist == "" || track.Name == "" {
		return nil, shared.NewStageError(shared.StageSpotifyTrack,
			fmt.Errorf("%w: track %s has no name or artists", shared.ErrUpstream, trackID))
	}

	return &models.SpotifyTrack{Artist: artist, Title: track.Name}, nil
}

// exchange performs exactly one client-credentials token request.
func (s *SpotifyClient) exchange(ctx context.Context, creds models.Credentials) (*oauth2.Token, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	ctx = context.WithValue(ctx, oauth2.HTTPClient, s.httpClient)

	config := &clientcredentials.Config{
		ClientID:     creds.SpotifyClientID,
		ClientSecret: creds.SpotifyClientSecret,
		TokenURL:     s.tokenURL,
		AuthStyle:    oauth2.AuthStyleInHeader,
	}

	token, err := config.Token(ctx)
	if err != nil {
		var rErr *oauth2.RetrieveError
		if errors.As(err, &rErr) {
			status := 0
			if rErr.Response != nil {
				status = rErr.Response.StatusCode
			}
			if rErr.ErrorCode != "" {
				return nil, fmt.Errorf("%w: token exchange rejected (status %d): %s", shared.ErrAuthFailed, status, rErr.ErrorCode)
			}
			return nil, fmt.Errorf("%w: token exchange rejected (status %d)", shared.ErrAuthFailed, status)
		}
		return nil, fmt.Errorf("%w: token exchange: %v", shared.ErrAuthFailed, err)
	}

	return token, nil
}

// track performs an authenticated GET /tracks/{id}.
func (s *SpotifyClient) track(ctx context.Context, token *oauth2.Token, trackID string) (*SpotifyTrack, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	apiURL := fmt.Sprintf("%s/tracks/%s", s.baseURL, url.PathEscape(trackID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	token.SetAuthHeader(req)
	req.Header.Set("Accept", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: request failed: %v", shared.ErrUpstream, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound, resp.StatusCode == http.StatusBadRequest:
		return nil, fmt.Errorf("%w: spotify track %s (status %d)", shared.ErrNotFound, trackID, resp.StatusCode)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
		return nil, fmt.Errorf("%w: spotify API error: status %d", shared.ErrUpstream, resp.StatusCode)
	}

	var track SpotifyTrack
	if err := json.NewDecoder(resp.Body).Decode(&track); err != nil {
		return nil, fmt.Errorf("%w: failed to decode response: %v", shared.ErrUpstream, err)
	}

	return &track, nil
}
