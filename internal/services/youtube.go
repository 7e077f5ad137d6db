// YouTube Data API v3 client
//
// Endpoints: https://developers.google.com/youtube/v3/docs
package services

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/desertthunder/mp3d/internal/models"
	"github.com/desertthunder/mp3d/internal/shared"
	"github.com/tidwall/gjson"
)

const (
	defaultYouTubeAPIURL = "https://www.googleapis.com/youtube/v3"
	maxErrorBody         = 64 << 10
)

// YouTubeClient implements [MetadataFetcher] and [VideoSearcher] against the YouTube Data API.
type YouTubeClient struct {
	baseURL    string
	httpClient *http.Client
	timeout    time.Duration
}

// NewYouTubeClient creates a client. An empty base URL selects the public API.
func NewYouTubeClient(opts Options) *YouTubeClient {
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultYouTubeAPIURL
	}

	return &YouTubeClient{
		baseURL:    baseURL,
		httpClient: opts.client(),
		timeout:    opts.timeout(),
	}
}

// VideoMetadata returns the title and channel title of videoID.
//
// Calls GET /videos?part=snippet&id={videoID}.
func (y *YouTubeClient) VideoMetadata(ctx context.Context, apiKey, videoID string) (*models.TrackMetadata, error) {
	params := url.Values{}
	params.Set("part", "snippet")
	params.Set("id", videoID)

	body, err := y.get(ctx, "/videos", apiKey, params)
	if err != nil {
		return nil, err
	}

	snippet := gjson.GetBytes(body, "items.0.snippet")
	if !snippet.Exists() {
		return nil, fmt.Errorf("%w: video %s", shared.ErrNotFound, videoID)
	}

	title := snippet.Get("title")
	author := snippet.Get("channelTitle")
	if title.Type != gjson.String || author.Type != gjson.String {
		return nil, fmt.Errorf("%w: video %s has no title or channel", shared.ErrUpstream, videoID)
	}

	return &models.TrackMetadata{Title: title.Str, Author: author.Str}, nil
}

// SearchVideo returns the id of the first video matching query.
//
// Calls GET /search?part=snippet&type=video&maxResults=1&q={query}.
func (y *YouTubeClient) SearchVideo(ctx context.Context, apiKey, query string) (string, error) {
	params := url.Values{}
	params.Set("part", "snippet")
	params.Set("type", "video")
	params.Set("maxResults", "1")
	params.Set("q", query)

	body, err := y.get(ctx, "/search", apiKey, params)
	if err != nil {
		return "", err
	}

	id := gjson.GetBytes(body, "items.0.id.videoId")
	if !id.Exists() {
		return "", fmt.Errorf("%w: no results for %q", shared.ErrNotFound, query)
	}
	if id.Type != gjson.String || id.Str == "" {
		return "", fmt.Errorf("%w: unexpected video id %s", shared.ErrUpstream, id.Raw)
	}

	return id.Str, nil
}

// get performs a key-authenticated GET and returns the validated JSON body.
func (y *YouTubeClient) get(ctx context.Context, endpoint, apiKey string, params url.Values) ([]byte, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: youtube api key", shared.ErrMissingCredentials)
	}

	ctx, cancel := context.WithTimeout(ctx, y.timeout)
	defer cancel()

	params.Set("key", apiKey)
	apiURL := y.baseURL + endpoint + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := y.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: youtube %s: %v", shared.ErrUpstream, endpoint, redactKey(err, apiKey))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		if msg := gjson.GetBytes(data, "error.message"); msg.Type == gjson.String && msg.Str != "" {
			return nil, fmt.Errorf("%w: youtube API error (status %d): %s", shared.ErrUpstream, resp.StatusCode, msg.Str)
		}
		return nil, fmt.Errorf("%w: youtube API error: status %d", shared.ErrUpstream, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read response: %v", shared.ErrUpstream, err)
	}
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("%w: youtube %s returned invalid JSON", shared.ErrUpstream, endpoint)
	}

	return body, nil
}

// redactKey strips the API key from transport errors, which embed the request URL.
func redactKey(err error, apiKey string) string {
	return strings.ReplaceAll(err.Error(), url.QueryEscape(apiKey), shared.Redact(apiKey))
}
