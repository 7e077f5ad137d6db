// Package server provides HTTP routing, middleware, and the download handlers.
//
// # Router Infrastructure
//
// The [Router] interface defines HTTP routing with middleware support.
//
// [Middleware] wraps handlers in reverse order (last added executes first), following the standard Go pattern.
//
// The [BasicRouter] implementation uses [http.ServeMux] internally with method filtering.
// [NewRouter] assembles the full service: [RequestID], [Logging], [CORS], and [RateLimit], then the routes.
//
// # Download Routes
//
// [DownloadHandler] serves three GET routes that differ only in how the video is identified:
//
//	/download/from-youtube-id?id=...&bitrate=...
//	/download/from-artist-title?artist=...&title=...&bitrate=...
//	/download/from-spotify-id?id=...&bitrate=...
//
// Credentials travel in request headers ([HeaderYouTubeAPIKey], [HeaderSpotifyClientID],
// [HeaderSpotifyClientSecret]) and are never stored.
//
// A request moves through validation, resolution, then metadata and transcoding in parallel.
// Any failure up to that point is a JSON error: 400 for bad input, 500 otherwise.
// Once headers are written the body is streamed with a flush per chunk.
// A failure mid-stream is logged with its stage and the connection is aborted,
// so the client sees a truncated transfer instead of a corrupt file.
//
// # Handler Interface
//
// Custom handlers implement the [Handler] interface, which wraps the stdlib handler interface and adds routes,
// allowing handlers to register multiple routes to encapsulate route definitions within the implementation.
package server
