package models

import (
	"fmt"
	"strings"

	"github.com/desertthunder/mp3d/internal/shared"
)

// Source is the identifying part of a [Request]. The set of implementations is closed.
type Source interface {
	// Kind returns a short name for logs.
	Kind() string
	validate() error
}

// VideoIDSource identifies a YouTube video directly.
type VideoIDSource struct {
	VideoID string
}

// ArtistTitleSource identifies a song by free text.
type ArtistTitleSource struct {
	Artist string
	Title  string
}

// Query joins artist and title with a single space.
func (s ArtistTitleSource) Query() string {
	return s.Artist + " " + s.Title
}

// SpotifyTrackSource identifies a song by Spotify track id.
type SpotifyTrackSource struct {
	TrackID string
}

func (VideoIDSource) Kind() string      { return "youtube_id" }
func (ArtistTitleSource) Kind() string  { return "artist_title" }
func (SpotifyTrackSource) Kind() string { return "spotify_id" }

func (s VideoIDSource) validate() error {
	if strings.TrimSpace(s.VideoID) == "" {
		return fmt.Errorf("%w: id", shared.ErrMissingParameter)
	}
	return nil
}

func (s ArtistTitleSource) validate() error {
	var missing []string
	if strings.TrimSpace(s.Artist) == "" {
		missing = append(missing, "artist")
	}
	if strings.TrimSpace(s.Title) == "" {
		missing = append(missing, "title")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", shared.ErrMissingParameter, strings.Join(missing, ", "))
	}
	return nil
}

func (s SpotifyTrackSource) validate() error {
	if strings.TrimSpace(s.TrackID) == "" {
		return fmt.Errorf("%w: id", shared.ErrMissingParameter)
	}
	return nil
}

// Credentials are caller-supplied API keys. They are never persisted.
type Credentials struct {
	YouTubeAPIKey       string
	SpotifyClientID     string
	SpotifyClientSecret string
}

// String redacts every secret so credentials can't leak through %v.
func (c Credentials) String() string {
	return fmt.Sprintf("Credentials{youtube=%s spotify_id=%s spotify_secret=%s}",
		shared.Redact(c.YouTubeAPIKey), shared.Redact(c.SpotifyClientID), shared.Redact(c.SpotifyClientSecret))
}

// HasSpotify reports whether both Spotify client credentials are present.
func (c Credentials) HasSpotify() bool {
	return c.SpotifyClientID != "" && c.SpotifyClientSecret != ""
}

// Request is a validated download request.
type Request struct {
	Source      Source
	Bitrate     int
	Credentials Credentials
}

// Validate checks the source fields, then the credentials the source requires.
func (r Request) Validate() error {
	if r.Source == nil {
		return fmt.Errorf("%w: source", shared.ErrMissingParameter)
	}
	if err := r.Source.validate(); err != nil {
		return err
	}
	if r.Bitrate <= 0 {
		return fmt.Errorf("%w: bitrate must be positive", shared.ErrInvalidParameter)
	}
	return RequiredCredentials(r.Source, r.Credentials)
}

// Credential field names reported by [MissingCredentials].
const (
	FieldYouTubeAPIKey       = "youtube_api_key"
	FieldSpotifyClientID     = "spotify_client_id"
	FieldSpotifyClientSecret = "spotify_client_secret"
)

// MissingCredentials lists the credential fields src needs that creds lacks:
// a YouTube key always, Spotify client id and secret for [SpotifyTrackSource].
func MissingCredentials(src Source, creds Credentials) []string {
	var missing []string
	if creds.YouTubeAPIKey == "" {
		missing = append(missing, FieldYouTubeAPIKey)
	}
	if _, ok := src.(SpotifyTrackSource); ok {
		if creds.SpotifyClientID == "" {
			missing = append(missing, FieldSpotifyClientID)
		}
		if creds.SpotifyClientSecret == "" {
			missing = append(missing, FieldSpotifyClientSecret)
		}
	}
	return missing
}

// RequiredCredentials wraps [MissingCredentials] as an [shared.ErrMissingCredentials] error.
func RequiredCredentials(src Source, creds Credentials) error {
	if missing := MissingCredentials(src, creds); len(missing) > 0 {
		return fmt.Errorf("%w: %s", shared.ErrMissingCredentials, strings.Join(missing, ", "))
	}
	return nil
}

// VideoIdentity is the canonical handle for metadata and audio.
type VideoIdentity struct {
	VideoID string
}

// TrackMetadata describes a resolved video.
type TrackMetadata struct {
	Title  string
	Author string
}

// Filename returns "<title> - <author>.mp3".
func (m TrackMetadata) Filename() string {
	return fmt.Sprintf("%s - %s.mp3", m.Title, m.Author)
}

// SpotifyTrack is the artist/title pair returned by a track lookup.
// Multiple artists are joined with ", ".
type SpotifyTrack struct {
	Artist string
	Title  string
}

// Source converts the track into a search request.
func (t SpotifyTrack) Source() ArtistTitleSource {
	return ArtistTitleSource{Artist: t.Artist, Title: t.Title}
}
