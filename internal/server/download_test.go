package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/desertthunder/mp3d/internal/models"
	"github.com/desertthunder/mp3d/internal/resolver"
	"github.com/desertthunder/mp3d/internal/services"
	"github.com/desertthunder/mp3d/internal/shared"
	tu "github.com/desertthunder/mp3d/internal/testing"
	"github.com/desertthunder/mp3d/internal/transcode"
)

// syncBuffer is a bytes.Buffer safe for the handler goroutine and the test to share.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type staticChecker bool

func (c staticChecker) Available() bool { return bool(c) }

type fixture struct {
	search  *tu.FakeSearcher
	tracks  *tu.FakeTrackLookup
	meta    *tu.FakeMetadata
	source  *tu.FakeSource
	encoder *tu.CopyEncoder
	logs    *syncBuffer
}

func newFixture() *fixture {
	return &fixture{
		search:  &tu.FakeSearcher{VideoID: "dQw4w9WgXcQ"},
		tracks:  &tu.FakeTrackLookup{Track: models.SpotifyTrack{Artist: "Queen, David Bowie", Title: "Under Pressure"}},
		meta:    &tu.FakeMetadata{Meta: models.TrackMetadata{Title: "Never Gonna Give You Up", Author: "Rick Astley"}},
		source:  &tu.FakeSource{Data: bytes.Repeat([]byte{0xff, 0xfb, 0x90, 0x64}, 16<<10)},
		encoder: &tu.CopyEncoder{ChunkSize: 4 << 10},
		logs:    &syncBuffer{},
	}
}

func (f *fixture) router(metadata services.MetadataFetcher, search services.VideoSearcher, tracks services.TrackLookup) http.Handler {
	logger := shared.NewLogger(f.logs)
	if metadata == nil {
		metadata = f.meta
	}
	if search == nil {
		search = f.search
	}
	if tracks == nil {
		tracks = f.tracks
	}

	return NewRouter(Options{
		Config:   *shared.DefaultConfig(),
		Resolver: resolver.New(search, tracks, logger),
		Metadata: metadata,
		Pipeline: transcode.NewPipeline(f.source, f.encoder, logger),
		Encoder:  staticChecker(true),
		Logger:   logger,
	})
}

func (f *fixture) handler() http.Handler {
	return f.router(nil, nil, nil)
}

func (f *fixture) upstreamCalls() int {
	return len(f.search.Queries()) + f.tracks.Calls() + f.meta.Calls() + f.source.Opens()
}

// eventually polls cond until it holds or two seconds pass.
func eventually(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal(msg)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func get(h http.Handler, target string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, body io.Reader) string {
	t.Helper()
	var resp errorResponse
	if err := json.NewDecoder(body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode error body: %v", err)
	}
	return resp.Error
}

var (
	ytHeaders  = map[string]string{HeaderYouTubeAPIKey: "yt-key"}
	allHeaders = map[string]string{
		HeaderYouTubeAPIKey:       "yt-key",
		HeaderSpotifyClientID:     "client-id",
		HeaderSpotifyClientSecret: "client-secret",
	}
)

func TestDownloadValidation(t *testing.T) {
	tests := []struct {
		name    string
		target  string
		headers map[string]string
		want    string
	}{
		{"missing id", RouteFromYouTubeID, ytHeaders, "id"},
		{"blank id", RouteFromYouTubeID + "?id=%20%20", ytHeaders, "id"},
		{"missing youtube key", RouteFromYouTubeID + "?id=dQw4w9WgXcQ", nil, HeaderYouTubeAPIKey},
		{"missing artist", RouteFromArtistTitle + "?title=Stan", ytHeaders, "artist"},
		{"missing title", RouteFromArtistTitle + "?artist=Eminem", ytHeaders, "title"},
		{"artist title without key", RouteFromArtistTitle + "?artist=Eminem&title=Stan", nil, HeaderYouTubeAPIKey},
		{"missing spotify id", RouteFromSpotifyID, allHeaders, "id"},
		{"missing spotify secret", RouteFromSpotifyID + "?id=0eGsygTp906u18L0Oimnem",
			map[string]string{HeaderYouTubeAPIKey: "yt-key", HeaderSpotifyClientID: "client-id"}, HeaderSpotifyClientSecret},
		{"missing spotify credentials", RouteFromSpotifyID + "?id=0eGsygTp906u18L0Oimnem", ytHeaders, HeaderSpotifyClientID},
		{"non-integer bitrate", RouteFromYouTubeID + "?id=dQw4w9WgXcQ&bitrate=loud", ytHeaders, "bitrate"},
		{"bitrate too low", RouteFromYouTubeID + "?id=dQw4w9WgXcQ&bitrate=32", ytHeaders, "bitrate"},
		{"bitrate too high", RouteFromYouTubeID + "?id=dQw4w9WgXcQ&bitrate=512", ytHeaders, "bitrate"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			rec := get(f.handler(), tt.target, tt.headers)

			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400 (body %s)", rec.Code, rec.Body.String())
			}
			if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
				t.Errorf("Content-Type = %q", ct)
			}
			if msg := decodeError(t, rec.Body); !strings.Contains(msg, tt.want) {
				t.Errorf("error %q does not mention %q", msg, tt.want)
			}
			if n := f.upstreamCalls(); n != 0 {
				t.Errorf("expected no upstream calls, got %d", n)
			}
		})
	}
}

func TestDownload(t *testing.T) {
	t.Run("from youtube id", func(t *testing.T) {
		f := newFixture()
		rec := get(f.handler(), RouteFromYouTubeID+"?id=dQw4w9WgXcQ", ytHeaders)

		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
		}
		if ct := rec.Header().Get("Content-Type"); ct != "audio/mpeg" {
			t.Errorf("Content-Type = %q", ct)
		}
		want := `attachment; filename="Never Gonna Give You Up - Rick Astley.mp3"`
		if cd := rec.Header().Get("Content-Disposition"); cd != want {
			t.Errorf("Content-Disposition = %q, want %q", cd, want)
		}
		if !bytes.Equal(rec.Body.Bytes(), f.source.Data) {
			t.Errorf("body has %d bytes, want %d", rec.Body.Len(), len(f.source.Data))
		}
		if len(f.search.Queries()) != 0 {
			t.Error("video id requests must not search")
		}
		if f.meta.Calls() != 1 || f.source.Opens() != 1 {
			t.Errorf("metadata calls = %d, source opens = %d", f.meta.Calls(), f.source.Opens())
		}
	})

	t.Run("from artist and title", func(t *testing.T) {
		f := newFixture()
		rec := get(f.handler(), RouteFromArtistTitle+"?artist=Rick+Astley&title=Never+Gonna+Give+You+Up", ytHeaders)

		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
		}
		queries := f.search.Queries()
		if len(queries) != 1 || queries[0] != "Rick Astley Never Gonna Give You Up" {
			t.Errorf("queries = %v", queries)
		}
	})

	t.Run("from spotify id", func(t *testing.T) {
		f := newFixture()
		rec := get(f.handler(), RouteFromSpotifyID+"?id=2fuCquhmrzHpu5xcA1ci9x", allHeaders)

		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
		}
		if f.tracks.Calls() != 1 {
			t.Errorf("lookups = %d, want 1", f.tracks.Calls())
		}
		queries := f.search.Queries()
		if len(queries) != 1 || queries[0] != "Queen, David Bowie Under Pressure" {
			t.Errorf("queries = %v", queries)
		}
	})

	t.Run("bitrate reaches the encoder", func(t *testing.T) {
		tests := []struct {
			query string
			want  int
		}{
			{"", 128},
			{"&bitrate=320", 320},
			{"&bitrate=64", 64},
		}

		for _, tt := range tests {
			f := newFixture()
			rec := get(f.handler(), RouteFromYouTubeID+"?id=dQw4w9WgXcQ"+tt.query, ytHeaders)
			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
			}

			opts := f.encoder.Options()
			if len(opts) != 1 || opts[0].Bitrate != tt.want {
				t.Errorf("query %q: encoder options = %+v, want bitrate %d", tt.query, opts, tt.want)
			}
		}
	})

	t.Run("no search results", func(t *testing.T) {
		f := newFixture()
		f.search.Err = shared.ErrNotFound
		rec := get(f.handler(), RouteFromArtistTitle+"?artist=zzzz&title=qqqq", ytHeaders)

		if rec.Code != http.StatusInternalServerError {
			t.Fatalf("status = %d, want 500", rec.Code)
		}
		if msg := decodeError(t, rec.Body); !strings.Contains(msg, shared.ErrNotFound.Error()) {
			t.Errorf("error = %q", msg)
		}
		if f.source.Opens() != 0 || f.meta.Calls() != 0 {
			t.Errorf("expected no stream or metadata, got opens=%d meta=%d", f.source.Opens(), f.meta.Calls())
		}
	})

	t.Run("spotify lookup failure", func(t *testing.T) {
		f := newFixture()
		f.tracks.Err = shared.NewStageError(shared.StageSpotifyToken, shared.ErrAuthFailed)
		rec := get(f.handler(), RouteFromSpotifyID+"?id=2fuCquhmrzHpu5xcA1ci9x", allHeaders)

		if rec.Code != http.StatusInternalServerError {
			t.Fatalf("status = %d, want 500", rec.Code)
		}
		if len(f.search.Queries()) != 0 {
			t.Error("search must not run after a failed lookup")
		}
	})

	t.Run("metadata failure before headers", func(t *testing.T) {
		f := newFixture()
		f.meta.Err = shared.ErrUpstream
		rec := get(f.handler(), RouteFromYouTubeID+"?id=dQw4w9WgXcQ", ytHeaders)

		if rec.Code != http.StatusInternalServerError {
			t.Fatalf("status = %d, want 500", rec.Code)
		}
		if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type = %q", ct)
		}
		if rec.Header().Get("Content-Disposition") != "" {
			t.Error("Content-Disposition must not be set on failure")
		}
		if f.source.Opens() != f.source.Closed() {
			t.Errorf("stream left open: opens=%d closed=%d", f.source.Opens(), f.source.Closed())
		}
		if !strings.Contains(f.logs.String(), "stage=metadata") {
			t.Errorf("expected metadata stage in logs, got %q", f.logs.String())
		}
	})

	t.Run("source failure before headers", func(t *testing.T) {
		f := newFixture()
		f.source.OpenErr = errors.New("video unavailable")
		rec := get(f.handler(), RouteFromYouTubeID+"?id=dQw4w9WgXcQ", ytHeaders)

		if rec.Code != http.StatusInternalServerError {
			t.Fatalf("status = %d, want 500", rec.Code)
		}
		if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type = %q, want JSON error only", ct)
		}
		if msg := decodeError(t, rec.Body); !strings.Contains(msg, shared.ErrPipeline.Error()) {
			t.Errorf("error = %q", msg)
		}
	})

	t.Run("encoder failure before headers", func(t *testing.T) {
		f := newFixture()
		f.source.Data = nil
		rec := get(f.handler(), RouteFromYouTubeID+"?id=dQw4w9WgXcQ", ytHeaders)

		if rec.Code != http.StatusInternalServerError {
			t.Fatalf("status = %d, want 500", rec.Code)
		}
		if !strings.Contains(f.logs.String(), "stage=encoder") {
			t.Errorf("expected encoder stage in logs, got %q", f.logs.String())
		}
	})

	t.Run("failure after headers aborts the connection", func(t *testing.T) {
		f := newFixture()
		f.source.FailErr = errors.New("connection reset by peer")

		server := httptest.NewServer(f.handler())
		defer server.Close()

		req, err := http.NewRequest(http.MethodGet, server.URL+RouteFromYouTubeID+"?id=dQw4w9WgXcQ", nil)
		if err != nil {
			t.Fatal(err)
		}
		req.Header.Set(HeaderYouTubeAPIKey, "yt-key")

		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			t.Fatalf("status = %d, want 200", resp.StatusCode)
		}

		if _, err := io.ReadAll(resp.Body); err == nil {
			t.Error("expected a truncated body")
		}

		logs := f.logs.String()
		if !strings.Contains(logs, "stream failed after headers") || !strings.Contains(logs, "stage=source") {
			t.Errorf("expected a log line naming the source stage, got %q", logs)
		}
	})

	t.Run("source failure while metadata is pending", func(t *testing.T) {
		f := newFixture()
		f.meta.Delay = 300 * time.Millisecond
		f.source.Data = bytes.Repeat([]byte{0xff}, 4096)
		f.source.FailErr = errors.New("network drop")
		rec := get(f.handler(), RouteFromYouTubeID+"?id=dQw4w9WgXcQ", ytHeaders)

		if rec.Code != http.StatusInternalServerError {
			t.Fatalf("status = %d, want 500", rec.Code)
		}
		if rec.Header().Get("Content-Disposition") != "" {
			t.Error("audio headers must not be committed")
		}
		if msg := decodeError(t, rec.Body); !strings.Contains(msg, shared.ErrPipeline.Error()) {
			t.Errorf("error = %q", msg)
		}
		if !strings.Contains(f.logs.String(), "stage=source") {
			t.Errorf("expected source stage in logs, got %q", f.logs.String())
		}
	})

	t.Run("server shutdown mid-stream aborts the connection", func(t *testing.T) {
		f := newFixture()
		f.source.Data = bytes.Repeat([]byte{0xff}, 8<<10)
		f.source.Stall = true

		base, cancelBase := context.WithCancel(context.Background())
		defer cancelBase()

		server := httptest.NewUnstartedServer(f.handler())
		server.Config.BaseContext = func(net.Listener) context.Context { return base }
		server.Start()
		defer server.Close()

		req, err := http.NewRequest(http.MethodGet, server.URL+RouteFromYouTubeID+"?id=dQw4w9WgXcQ", nil)
		if err != nil {
			t.Fatal(err)
		}
		req.Header.Set(HeaderYouTubeAPIKey, "yt-key")

		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			t.Fatalf("status = %d, want 200", resp.StatusCode)
		}
		if _, err := io.ReadFull(resp.Body, make([]byte, 1024)); err != nil {
			t.Fatalf("failed to read the start of the body: %v", err)
		}

		cancelBase()

		if _, err := io.ReadAll(resp.Body); err == nil {
			t.Error("a cancelled transfer must not end as a complete response")
		}
		eventually(t, func() bool { return f.source.Closed() == 1 }, "source was not closed")
	})

	t.Run("client disconnect tears the pipeline down", func(t *testing.T) {
		f := newFixture()
		f.source.Data = bytes.Repeat([]byte{0xff}, 8<<10)
		f.source.Stall = true

		server := httptest.NewServer(f.handler())
		defer server.Close()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, server.URL+RouteFromYouTubeID+"?id=dQw4w9WgXcQ", nil)
		if err != nil {
			t.Fatal(err)
		}
		req.Header.Set(HeaderYouTubeAPIKey, "yt-key")

		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		defer resp.Body.Close()

		if _, err := io.ReadFull(resp.Body, make([]byte, 1024)); err != nil {
			t.Fatalf("failed to read the start of the body: %v", err)
		}

		cancel()

		eventually(t, func() bool { return f.source.Closed() == 1 }, "source was not closed after disconnect")
		// The access log line is written after the handler's deferred Close has waited for the pipeline goroutine.
		eventually(t, func() bool { return strings.Contains(f.logs.String(), "request aborted") }, "handler did not finish")

		if !strings.Contains(f.logs.String(), "client went away") {
			t.Errorf("expected a relay log line, got %q", f.logs.String())
		}
		if f.source.Opens() != 1 {
			t.Errorf("source opens = %d, want 1", f.source.Opens())
		}
	})

	t.Run("method not allowed", func(t *testing.T) {
		f := newFixture()
		req := httptest.NewRequest(http.MethodPost, RouteFromYouTubeID+"?id=dQw4w9WgXcQ", nil)
		rec := httptest.NewRecorder()
		f.handler().ServeHTTP(rec, req)

		if rec.Code != http.StatusMethodNotAllowed {
			t.Errorf("status = %d, want 405", rec.Code)
		}
		if f.upstreamCalls() != 0 {
			t.Error("expected no upstream calls")
		}
	})
}

// upstreamStub plays the YouTube Data API and the Spotify accounts and web APIs.
type upstreamStub struct {
	tokenCalls  atomic.Int32
	trackCalls  atomic.Int32
	searchCalls atomic.Int32
	query       atomic.Value
}

func (s *upstreamStub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	switch r.URL.Path {
	case "/api/token":
		s.tokenCalls.Add(1)
		w.Write([]byte(`{"access_token":"token-123","token_type":"Bearer","expires_in":3600}`))
	case "/v1/tracks/2fuCquhmrzHpu5xcA1ci9x":
		s.trackCalls.Add(1)
		if r.Header.Get("Authorization") != "Bearer token-123" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Write([]byte(`{"name":"Under Pressure","artists":[{"name":"Queen"},{"name":"David Bowie"}]}`))
	case "/youtube/v3/search":
		s.searchCalls.Add(1)
		s.query.Store(r.URL.Query().Get("q"))
		w.Write([]byte(`{"items":[{"id":{"kind":"youtube#video","videoId":"a01QQZyl-_I"}}]}`))
	case "/youtube/v3/videos":
		w.Write([]byte(`{"items":[{"snippet":{"title":"Under Pressure","channelTitle":"Queen Official"}}]}`))
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func TestDownloadWithUpstreamClients(t *testing.T) {
	stub := &upstreamStub{}
	upstream := httptest.NewServer(stub)
	defer upstream.Close()

	youtube := services.NewYouTubeClient(services.Options{BaseURL: upstream.URL + "/youtube/v3"})
	spotify := services.NewSpotifyClient(services.Options{BaseURL: upstream.URL + "/v1", TokenURL: upstream.URL + "/api/token"})

	f := newFixture()
	rec := get(f.router(youtube, youtube, spotify), RouteFromSpotifyID+"?id=2fuCquhmrzHpu5xcA1ci9x&bitrate=320", allHeaders)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if got := stub.tokenCalls.Load(); got != 1 {
		t.Errorf("token exchanges = %d, want 1", got)
	}
	if got := stub.trackCalls.Load(); got != 1 {
		t.Errorf("track lookups = %d, want 1", got)
	}
	if got := stub.searchCalls.Load(); got != 1 {
		t.Errorf("searches = %d, want 1", got)
	}
	if q, _ := stub.query.Load().(string); q != "Queen, David Bowie Under Pressure" {
		t.Errorf("search query = %q", q)
	}

	want := `attachment; filename="Under Pressure - Queen Official.mp3"`
	if cd := rec.Header().Get("Content-Disposition"); cd != want {
		t.Errorf("Content-Disposition = %q, want %q", cd, want)
	}
	if opts := f.encoder.Options(); len(opts) != 1 || opts[0].Bitrate != 320 {
		t.Errorf("encoder options = %+v", opts)
	}
}

func TestBitrateRange(t *testing.T) {
	b := BitrateRange{Default: 128, Min: 64, Max: 320}

	tests := []struct {
		raw     string
		want    int
		wantErr bool
	}{
		{"", 128, false},
		{" 192 ", 192, false},
		{"64", 64, false},
		{"320", 320, false},
		{"63", 0, true},
		{"321", 0, true},
		{"-128", 0, true},
		{"128k", 0, true},
	}

	for _, tt := range tests {
		got, err := b.Parse(tt.raw)
		if tt.wantErr {
			if !errors.Is(err, shared.ErrInvalidParameter) {
				t.Errorf("Parse(%q) error = %v, want ErrInvalidParameter", tt.raw, err)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("Parse(%q) = %d, %v; want %d", tt.raw, got, err, tt.want)
		}
	}
}

func TestContentDisposition(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "Stan - Eminem.mp3", `attachment; filename="Stan - Eminem.mp3"`},
		{"quotes", `Say "Hi" - Band.mp3`, `attachment; filename="Say \"Hi\" - Band.mp3"`},
		{"separators", `AC/DC\Live - Band.mp3`, `attachment; filename="AC_DC_Live - Band.mp3"`},
		{"control characters", "Line\nBreak - Band.mp3", `attachment; filename="LineBreak - Band.mp3"`},
		{"non-ascii", "Café - Zoé.mp3", `attachment; filename="Caf_ - Zo_.mp3"; filename*=UTF-8''Caf%C3%A9%20-%20Zo%C3%A9.mp3`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := contentDisposition(tt.in); got != tt.want {
				t.Errorf("contentDisposition(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
