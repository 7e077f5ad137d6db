package transcode

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/kkdai/youtube/v2"
)

// ErrNoAudioFormat indicates the video exposes no audio-only format.
var ErrNoAudioFormat = errors.New("no audio format available")

// YouTubeSource implements [Source] with [youtube.Client].
type YouTubeSource struct {
	client *youtube.Client
}

// NewYouTubeSource creates a source. A nil client uses [http.DefaultClient].
func NewYouTubeSource(httpClient *http.Client) *YouTubeSource {
	return &YouTubeSource{client: &youtube.Client{HTTPClient: httpClient}}
}

// Open resolves the video's formats and opens the highest-bitrate audio-only one.
func (s *YouTubeSource) Open(ctx context.Context, videoID string) (io.ReadCloser, error) {
	video, err := s.client.GetVideoContext(ctx, videoID)
	if err != nil {
		return nil, fmt.Errorf("failed to load video %s: %w", videoID, err)
	}

	format, err := pickAudioFormat(video.Formats)
	if err != nil {
		return nil, fmt.Errorf("video %s: %w", videoID, err)
	}

	stream, _, err := s.client.GetStreamContext(ctx, video, format)
	if err != nil {
		return nil, fmt.Errorf("failed to open audio stream (itag %d): %w", format.ItagNo, err)
	}

	return stream, nil
}

// pickAudioFormat returns the audio-only format with the highest bitrate.
func pickAudioFormat(formats youtube.FormatList) (*youtube.Format, error) {
	audio := formats.Type("audio").WithAudioChannels()
	if len(audio) == 0 {
		return nil, ErrNoAudioFormat
	}

	best := &audio[0]
	for i := range audio[1:] {
		if f := &audio[i+1]; f.Bitrate > best.Bitrate {
			best = f
		}
	}
	return best, nil
}
