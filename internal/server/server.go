// package server contains the router, middleware & handlers for the mp3 download service
package server

import (
	"context"
	"io"
	"net/http"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/mp3d/internal/models"
	"github.com/desertthunder/mp3d/internal/services"
	"github.com/desertthunder/mp3d/internal/shared"
	"github.com/desertthunder/mp3d/internal/transcode"
)

// Middleware wraps an http.Handler and returns a new http.Handler with additional behavior.
type Middleware func(http.Handler) http.Handler

// Handler is an [http.Handler] that knows its own routes.
type Handler interface {
	http.Handler      // ServeHTTP handles the HTTP request and writes the response
	Routes() []string // Routes returns the path patterns this handler serves
}

// Router defines the interface for HTTP routing and middleware management.
type Router interface {
	Use(middleware ...Middleware)                     // Use adds middleware to the router's middleware stack
	Handle(method, path string, handler http.Handler) // Handle registers a handler for the specified method and path
	Handler(handler Handler)                          // Handler registers a custom Handler implementation
	ServeHTTP(w http.ResponseWriter, r *http.Request) // ServeHTTP implements http.Handler for the entire router
}

// Resolver turns a request into a video id. Implemented by [resolver.Resolver].
type Resolver interface {
	Resolve(ctx context.Context, req models.Request) (models.VideoIdentity, error)
}

// Transcoder opens an encoded audio stream. Implemented by [transcode.Pipeline].
type Transcoder interface {
	Open(ctx context.Context, videoID string, bitrate int) (*transcode.Stream, error)
}

// Options holds everything [NewRouter] wires together.
type Options struct {
	Config   shared.Config
	Resolver Resolver
	Metadata services.MetadataFetcher
	Pipeline Transcoder
	Encoder  Checker
	Logger   *log.Logger
}

// NewRouter builds the service router: middleware first, then the download and health routes.
func NewRouter(opts Options) *BasicRouter {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard)
	}
	cfg := opts.Config

	r := NewBasicRouter()
	r.Use(
		RequestID(),
		Logging(logger),
		CORS(cfg.Server.AllowedOrigins),
		RateLimit(cfg.Server.RateLimit, cfg.Server.RateBurst),
	)

	r.Handler(NewDownloadHandler(opts.Resolver, opts.Metadata, opts.Pipeline, BitrateRange{
		Default: cfg.Transcode.DefaultBitrate,
		Min:     cfg.Transcode.MinBitrate,
		Max:     cfg.Transcode.MaxBitrate,
	}, logger))
	r.Handle(http.MethodGet, RouteHealth, NewHealthHandler(opts.Encoder))

	return r
}
