// Package models defines the entities that flow through the key resolution pipeline.
//
// Persistent entities:
//   - [KeyRecord] : a resolved key/mode for a Spotify track, one row per track id
//   - [UserAccount] : a Spotify account binding holding the rotating refresh token
//
// Transient values:
//   - [CredentialToken] : a bearer token together with the [Origin] that produced it
//   - [CredentialInputs] : what a caller knows about the requesting user
//   - [CandidateMatch] : one scored MusicBrainz recording from a search
//   - [TrackMetadata], [KeyAnalysis], [FeatureRecord] : service responses mapped into the domain
//   - [Playlist], [PlaylistTrack] : playlist listings used by the report task
package models
