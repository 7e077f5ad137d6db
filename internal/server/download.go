package server

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"unicode"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/mp3d/internal/models"
	"github.com/desertthunder/mp3d/internal/services"
	"github.com/desertthunder/mp3d/internal/shared"
	"github.com/desertthunder/mp3d/internal/transcode"
	"golang.org/x/sync/errgroup"
)

const (
	RouteFromYouTubeID   = "/download/from-youtube-id"
	RouteFromArtistTitle = "/download/from-artist-title"
	RouteFromSpotifyID   = "/download/from-spotify-id"
)

// Credential headers. Credentials are read from every request and never stored.
const (
	HeaderYouTubeAPIKey       = "X-YouTube-API-Key"
	HeaderSpotifyClientID     = "X-Spotify-Client-ID"
	HeaderSpotifyClientSecret = "X-Spotify-Client-Secret"
)

var credentialHeaders = map[string]string{
	models.FieldYouTubeAPIKey:       HeaderYouTubeAPIKey,
	models.FieldSpotifyClientID:     HeaderSpotifyClientID,
	models.FieldSpotifyClientSecret: HeaderSpotifyClientSecret,
}

const relayBuffer = 32 << 10

// BitrateRange bounds the bitrate query parameter, in kbps.
type BitrateRange struct {
	Default int
	Min     int
	Max     int
}

// Parse returns Default for an empty value, else the value if it is an integer within [Min, Max].
func (b BitrateRange) Parse(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return b.Default, nil
	}

	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: bitrate %q is not an integer", shared.ErrInvalidParameter, raw)
	}
	if v < b.Min || v > b.Max {
		return 0, fmt.Errorf("%w: bitrate must be between %d and %d", shared.ErrInvalidParameter, b.Min, b.Max)
	}
	return v, nil
}

// DownloadHandler serves the three download routes.
//
// It writes no headers until the video is resolved, its metadata fetched, and the first encoded byte is ready.
// A failure after that point aborts the connection.
type DownloadHandler struct {
	resolver Resolver
	metadata services.MetadataFetcher
	pipeline Transcoder
	bitrates BitrateRange
	logger   *log.Logger
}

// NewDownloadHandler creates a DownloadHandler. A nil logger discards output.
func NewDownloadHandler(r Resolver, m services.MetadataFetcher, p Transcoder, bitrates BitrateRange, logger *log.Logger) *DownloadHandler {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &DownloadHandler{resolver: r, metadata: m, pipeline: p, bitrates: bitrates, logger: logger}
}

func (h *DownloadHandler) Routes() []string {
	return []string{RouteFromYouTubeID, RouteFromArtistTitle, RouteFromSpotifyID}
}

func (h *DownloadHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}

	req, err := h.parseRequest(r)
	if err != nil {
		writeErr(w, err)
		return
	}

	ctx := r.Context()
	logger := shared.WithLogger(h.logger, "request_id", RequestIDFrom(ctx), "source", req.Source.Kind(), "bitrate", req.Bitrate)

	id, err := h.resolver.Resolve(ctx, req)
	if err != nil {
		h.fail(w, logger, err)
		return
	}
	logger = shared.WithLogger(logger, "video_id", id.VideoID)

	var (
		meta   *models.TrackMetadata
		stream *transcode.Stream
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		m, err := h.metadata.VideoMetadata(gctx, req.Credentials.YouTubeAPIKey, id.VideoID)
		if err != nil {
			return shared.NewStageError(shared.StageMetadata, err)
		}
		meta = m
		return nil
	})
	g.Go(func() error {
		// The stream outlives the group, so it runs on the request context.
		s, err := h.pipeline.Open(ctx, id.VideoID, req.Bitrate)
		if err != nil {
			return err
		}
		stream = s
		return s.Prime(gctx)
	})

	if err := g.Wait(); err != nil {
		if stream != nil {
			stream.Close()
		}
		h.fail(w, logger, err)
		return
	}
	defer stream.Close()

	// The pipeline may have failed after priming while metadata was still pending.
	if err := stream.Err(); err != nil {
		h.fail(w, logger, err)
		return
	}

	w.Header().Set("Content-Type", "audio/mpeg")
	w.Header().Set("Content-Disposition", contentDisposition(meta.Filename()))
	w.WriteHeader(http.StatusOK)

	h.relay(w, r, stream, logger)
}

// relay copies the stream to the client, flushing each chunk.
//
// Any ending other than EOF aborts the connection, so a cut-off transfer never looks complete.
func (h *DownloadHandler) relay(w http.ResponseWriter, r *http.Request, stream io.Reader, logger *log.Logger) {
	rc := http.NewResponseController(w)
	buf := make([]byte, relayBuffer)

	var written int64
	for {
		n, rerr := stream.Read(buf)
		if n > 0 {
			if _, err := w.Write(buf[:n]); err != nil {
				clientGone(logger, written, err)
			}
			written += int64(n)
			if err := rc.Flush(); err != nil && !errors.Is(err, http.ErrNotSupported) {
				clientGone(logger, written, err)
			}
		}

		switch {
		case rerr == nil:
		case errors.Is(rerr, io.EOF):
			logger.Info("download complete", "bytes", written)
			return
		case r.Context().Err() != nil:
			clientGone(logger, written, r.Context().Err())
		default:
			logger.Error("stream failed after headers", "stage", shared.StageOf(rerr), "bytes", written, "error", rerr)
			panic(http.ErrAbortHandler)
		}
	}
}

func clientGone(logger *log.Logger, written int64, err error) {
	logger.Info("client went away", "stage", shared.StageRelay, "bytes", written, "error", err)
	panic(http.ErrAbortHandler)
}

// fail answers a pre-header failure with a JSON error.
func (h *DownloadHandler) fail(w http.ResponseWriter, logger *log.Logger, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		logger.Error("download failed", "stage", shared.StageOf(err), "error", err)
	} else {
		logger.Debug("download rejected", "error", err)
	}
	writeError(w, status, err.Error())
}

// parseRequest builds a validated [models.Request] from the route, query, and credential headers.
func (h *DownloadHandler) parseRequest(r *http.Request) (models.Request, error) {
	q := r.URL.Query()

	var src models.Source
	switch r.URL.Path {
	case RouteFromYouTubeID:
		src = models.VideoIDSource{VideoID: strings.TrimSpace(q.Get("id"))}
	case RouteFromArtistTitle:
		src = models.ArtistTitleSource{Artist: strings.TrimSpace(q.Get("artist")), Title: strings.TrimSpace(q.Get("title"))}
	case RouteFromSpotifyID:
		src = models.SpotifyTrackSource{TrackID: strings.TrimSpace(q.Get("id"))}
	default:
		return models.Request{}, fmt.Errorf("%w: unknown route %s", shared.ErrInvalidParameter, r.URL.Path)
	}

	bitrate, err := h.bitrates.Parse(q.Get("bitrate"))
	if err != nil {
		return models.Request{}, err
	}

	req := models.Request{
		Source:  src,
		Bitrate: bitrate,
		Credentials: models.Credentials{
			YouTubeAPIKey:       strings.TrimSpace(r.Header.Get(HeaderYouTubeAPIKey)),
			SpotifyClientID:     strings.TrimSpace(r.Header.Get(HeaderSpotifyClientID)),
			SpotifyClientSecret: strings.TrimSpace(r.Header.Get(HeaderSpotifyClientSecret)),
		},
	}

	if err := req.Validate(); err != nil {
		if errors.Is(err, shared.ErrMissingCredentials) {
			return models.Request{}, missingHeaders(req)
		}
		return models.Request{}, err
	}
	return req, nil
}

// missingHeaders reports missing credentials by header name.
func missingHeaders(req models.Request) error {
	fields := models.MissingCredentials(req.Source, req.Credentials)
	names := make([]string, 0, len(fields))
	for _, f := range fields {
		names = append(names, credentialHeaders[f])
	}
	return fmt.Errorf("%w: %s header required", shared.ErrMissingCredentials, strings.Join(names, ", "))
}

// contentDisposition builds an attachment header with a quoted filename.
//
// Non-ASCII names also get an RFC 5987 filename* parameter, with an ASCII fallback in filename.
func contentDisposition(name string) string {
	name = strings.Map(func(r rune) rune {
		switch {
		case unicode.IsControl(r):
			return -1
		case r == '/' || r == '\\':
			return '_'
		}
		return r
	}, name)

	fallback := strings.Map(func(r rune) rune {
		if r > unicode.MaxASCII {
			return '_'
		}
		return r
	}, name)
	ascii := fallback == name
	fallback = strings.ReplaceAll(fallback, `"`, `\"`)

	header := fmt.Sprintf(`attachment; filename="%s"`, fallback)
	if !ascii {
		header += "; filename*=UTF-8''" + url.PathEscape(name)
	}
	return header
}
