// Package models defines the per-request entities of the download pipeline.
//
// A [Request] pairs one [Source] variant with a bitrate and the caller's [Credentials]:
//   - [VideoIDSource] : a YouTube video id, used as-is
//   - [ArtistTitleSource] : free text resolved through YouTube search
//   - [SpotifyTrackSource] : a Spotify track id resolved to artist/title, then searched
//
// [Request.Validate] runs once at the HTTP boundary so the resolver only handles well-formed values.
// The resolver produces a [VideoIdentity]; the metadata client produces [TrackMetadata], which names the download.
//
// Nothing here is persisted or shared across requests.
package models
