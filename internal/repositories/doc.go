// Package repositories implements persistence for the key cache and account bindings.
//
// Two backends are provided:
//   - SQLite via database/sql: [KeyCacheRepository], [AccountRepository]
//   - Postgres via pgx: [PostgresKeyCache], [PostgresAccounts]
//
// Both backends express the cache upsert as a single conflict-resolving write keyed on track_id,
// so concurrent resolutions of the same track converge on one row (last writer wins).
// Lookups of missing keys return errors wrapping [shared.ErrNotFound].
package repositories
