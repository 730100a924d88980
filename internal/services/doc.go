// Package services implements the HTTP clients for the upstream music services.
//
// # Spotify
//
// [SpotifyService] covers the Web API calls the key pipeline needs (track metadata,
// bulk audio features, playlists, profile) and the accounts service token exchanges
// (authorization code, refresh token, client credentials) via [golang.org/x/oauth2].
// Bearer tokens are passed per call; the service itself holds no user state.
//
// # MusicBrainz
//
// [MusicBrainzService] searches recordings by exact-phrase title and artist and ranks
// the result set with [RankCandidates]. Calls share a [rate.Limiter].
//
// # AcousticBrainz
//
// [AcousticBrainzService] fetches high-level analysis documents. [DecodeAnalysis] detects
// which document shape it was given and probes an ordered list of paths per field with gjson.
//
// # Error Handling
//
// Non-2xx responses surface as [*shared.StatusError], which unwraps to
// [shared.ErrNotFound] for 404 and [shared.ErrAPIRequest] otherwise.
// Empty searches return [shared.ErrRecordingNotFound]; documents without a usable
// pitch label return [shared.ErrAnalysisNotFound] or [shared.ErrParseFailure].
package services
