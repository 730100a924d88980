// Package tasks implements the key and audio-feature pipelines and the playlist report built on them.
//
// # Key Resolution
//
// [KeyResolver] is a cache-aside pipeline. A cached record is returned as-is and never
// expires. On a miss it resolves a credential, fetches the track's title/artist/duration
// from Spotify, searches MusicBrainz for the best matching recording, decodes the
// AcousticBrainz analysis and writes the record back with an upsert.
//
// Stages fail closed. "Not authenticated", "not found", unparseable analysis and upstream
// errors all end the request with no record and are never cached, so a later call retries
// every stage. Cache read and write failures are logged and otherwise ignored.
//
// # Audio Features
//
// [FeatureFetcher] calls the bulk audio-features endpoint in batches of [FeatureBatchSize].
// A 4xx response to the user's credential is retried once per batch with an application
// token. Ids the service does not return map to nil.
//
// # Playlist Reports
//
// [ReportEngine] lists a playlist and joins features and, optionally, keys.
// Keys are resolved one track at a time.
//
// # Progress Reporting
//
// Reports emit [ProgressUpdate] values on an optional channel. Sends use select with
// default so a slow or absent reader never blocks the work.
package tasks
