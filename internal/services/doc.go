// Package services implements the HTTP clients consulted while resolving a download.
//
// # YouTube Data API
//
// [YouTubeClient] implements [MetadataFetcher] (videos endpoint, snippet part) and [VideoSearcher] (search endpoint, one result).
// The API key is an argument of every call.
//
// Responses are read with gjson field paths. An absent path such as items.0.id.videoId is an ordinary outcome
// (the query matched nothing) and is reported as [shared.ErrNotFound].
//
// # Spotify Web API
//
// [SpotifyClient] implements [TrackLookup] with two calls: a client-credentials token exchange ([clientcredentials.Config])
// and a GET /tracks/{id} with the resulting bearer token.
// The token lives only for the duration of one lookup.
//
// # Error Handling
//
// Clients return wrapped sentinels from the shared package:
//   - [shared.ErrNotFound] : no search result, unknown video, or unknown track
//   - [shared.ErrAuthFailed] : the Spotify token exchange was rejected
//   - [shared.ErrUpstream] : non-2xx status, malformed payload, transport failure, or timeout
//
// Every call is bounded by [Options.Timeout]. Nothing is retried.
package services
