// package testing contains shared testing utilities
package testing

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/desertthunder/mp3d/internal/models"
	"github.com/desertthunder/mp3d/internal/transcode"
)

// FakeSearcher is a test double for [services.VideoSearcher]
type FakeSearcher struct {
	VideoID string
	Err     error

	mu      sync.Mutex
	queries []string
}

func (f *FakeSearcher) SearchVideo(ctx context.Context, apiKey, query string) (string, error) {
	f.mu.Lock()
	f.queries = append(f.queries, query)
	f.mu.Unlock()

	if f.Err != nil {
		return "", f.Err
	}
	return f.VideoID, nil
}

// Queries returns every query received, in order.
func (f *FakeSearcher) Queries() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.queries...)
}

// FakeTrackLookup is a test double for [services.TrackLookup]
type FakeTrackLookup struct {
	Track models.SpotifyTrack
	Err   error

	mu    sync.Mutex
	calls int
}

func (f *FakeTrackLookup) LookupTrack(ctx context.Context, creds models.Credentials, trackID string) (*models.SpotifyTrack, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	if f.Err != nil {
		return nil, f.Err
	}
	track := f.Track
	return &track, nil
}

func (f *FakeTrackLookup) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// FakeMetadata is a test double for [services.MetadataFetcher]
//
// Delay holds each call back, or until ctx is done.
type FakeMetadata struct {
	Meta  models.TrackMetadata
	Err   error
	Delay time.Duration

	mu    sync.Mutex
	calls int
}

func (f *FakeMetadata) VideoMetadata(ctx context.Context, apiKey, videoID string) (*models.TrackMetadata, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	if f.Delay > 0 {
		select {
		case <-time.After(f.Delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if f.Err != nil {
		return nil, f.Err
	}
	meta := f.Meta
	return &meta, nil
}

func (f *FakeMetadata) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// FakeSource is a test double for [transcode.Source].
//
// It serves Data, then fails with FailErr when set. OpenErr fails the open itself.
// Stall makes the body block after Data until the open context is done, like a stalled download.
type FakeSource struct {
	Data    []byte
	FailErr error
	OpenErr error
	Stall   bool

	mu     sync.Mutex
	opens  int
	closed int
}

func (f *FakeSource) Open(ctx context.Context, videoID string) (io.ReadCloser, error) {
	f.mu.Lock()
	f.opens++
	f.mu.Unlock()

	if f.OpenErr != nil {
		return nil, f.OpenErr
	}

	var r io.Reader = bytes.NewReader(f.Data)
	switch {
	case f.FailErr != nil:
		r = io.MultiReader(r, &errReader{err: f.FailErr})
	case f.Stall:
		r = io.MultiReader(r, &stallReader{ctx: ctx})
	}
	return &fakeBody{Reader: r, onClose: f.markClosed}, nil
}

func (f *FakeSource) markClosed() {
	f.mu.Lock()
	f.closed++
	f.mu.Unlock()
}

// Opens returns how many times Open was called.
func (f *FakeSource) Opens() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.opens
}

// Closed returns how many opened bodies were closed.
func (f *FakeSource) Closed() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

type fakeBody struct {
	io.Reader
	onClose func()
}

func (b *fakeBody) Close() error {
	b.onClose()
	return nil
}

type errReader struct{ err error }

func (e *errReader) Read([]byte) (int, error) { return 0, e.err }

type stallReader struct{ ctx context.Context }

func (s *stallReader) Read([]byte) (int, error) {
	<-s.ctx.Done()
	return 0, s.ctx.Err()
}

// CopyEncoder is a test double for [transcode.Encoder] that copies input to output in ChunkSize pieces.
//
// It records the options of the last call. Err, when set, is returned after copying.
type CopyEncoder struct {
	ChunkSize int
	Err       error

	mu   sync.Mutex
	opts []transcode.Options
}

func (c *CopyEncoder) Encode(ctx context.Context, src io.Reader, dst io.Writer, opts transcode.Options) error {
	c.mu.Lock()
	c.opts = append(c.opts, opts)
	c.mu.Unlock()

	size := c.ChunkSize
	if size <= 0 {
		size = 4 << 10
	}

	buf := make([]byte, size)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := src.Read(buf)
		if n > 0 {
			if _, werr := dst.Write(buf[:n]); werr != nil {
				return werr
			}
		}
		if errors.Is(err, io.EOF) {
			return c.Err
		}
		if err != nil {
			return err
		}
	}
}

// Options returns the options of every Encode call, in order.
func (c *CopyEncoder) Options() []transcode.Options {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]transcode.Options(nil), c.opts...)
}

// FWriter always returns an error on Write
type FWriter struct{}

func (f *FWriter) Write(p []byte) (n int, err error) {
	return 0, errors.New("write failed")
}

// MockRoundTripper allows custom HTTP responses for testing
type MockRoundTripper struct {
	response *http.Response
	err      error
}

func NewMockRoundTripper(r *http.Response, e error) *MockRoundTripper {
	return &MockRoundTripper{response: r, err: e}
}

func (m *MockRoundTripper) RoundTrip(*http.Request) (*http.Response, error) {
	return m.response, m.err
}

// FCloser simulates a failure when reading response body
type FCloser struct{}

func (f *FCloser) Read(p []byte) (n int, err error) {
	return 0, errors.New("read failed")
}

func (f *FCloser) Close() error {
	return nil
}
