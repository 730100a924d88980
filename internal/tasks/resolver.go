package tasks

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/keyfinder/internal/models"
	"github.com/desertthunder/keyfinder/internal/shared"
)

// Resolution is a resolved key and whether it was served from the cache.
type Resolution struct {
	Record *models.KeyRecord
	Cached bool
}

// KeyResolver runs the cache-aside key pipeline:
// cache, credential, track metadata, recording search, analysis, cache write.
//
// Every stage fails closed: an expected miss or an upstream failure ends the
// resolution with no record and nothing is cached for it.
type KeyResolver struct {
	cache    KeyStore
	creds    CredentialResolver
	catalog  TrackCatalog
	search   RecordingSearcher
	analyzer Analyzer
	logger   *log.Logger
}

// NewKeyResolver wires the pipeline stages.
func NewKeyResolver(cache KeyStore, creds CredentialResolver, catalog TrackCatalog, search RecordingSearcher, analyzer Analyzer, logger *log.Logger) *KeyResolver {
	return &KeyResolver{
		cache:    cache,
		creds:    creds,
		catalog:  catalog,
		search:   search,
		analyzer: analyzer,
		logger:   shared.WithLogger(logger, "component", "resolver"),
	}
}

// ResolveKey returns the key for a track, or nil when none could be resolved.
//
// The error is non-nil only for an empty track id or a resolver missing a stage.
func (r *KeyResolver) ResolveKey(ctx context.Context, trackID string, in models.CredentialInputs) (*models.KeyRecord, error) {
	res, err := r.Resolve(ctx, trackID, in)
	if err != nil || res == nil {
		return nil, err
	}
	return res.Record, nil
}

// Lookup reads the cache only. Read failures are logged and reported as a miss.
func (r *KeyResolver) Lookup(ctx context.Context, trackID string) *models.KeyRecord {
	if r.cache == nil {
		return nil
	}

	rec, err := r.cache.Get(ctx, trackID)
	switch {
	case err == nil:
		return rec
	case errors.Is(err, shared.ErrNotFound):
		return nil
	default:
		r.logger.Warn("cache read failed, resolving live", "track_id", trackID, "err", err)
		return nil
	}
}

// Resolve is [KeyResolver.ResolveKey] that also reports whether the cache answered.
func (r *KeyResolver) Resolve(ctx context.Context, trackID string, in models.CredentialInputs) (*Resolution, error) {
	trackID = strings.TrimSpace(trackID)
	if trackID == "" {
		return nil, fmt.Errorf("%w: track id", shared.ErrMissingArgument)
	}
	if r.creds == nil || r.catalog == nil || r.search == nil || r.analyzer == nil {
		return nil, fmt.Errorf("%w: key resolver is not fully configured", shared.ErrMissingConfig)
	}

	logger := r.logger.With("track_id", trackID, "resolution_id", shared.GenerateID())

	if rec := r.Lookup(ctx, trackID); rec != nil {
		logger.Debug("cache hit")
		return &Resolution{Record: rec, Cached: true}, nil
	}

	token, err := r.creds.Resolve(ctx, in)
	if err != nil {
		logger.Debug("no credential", "err", err)
		return nil, nil
	}

	meta, err := r.catalog.TrackMetadata(ctx, token.Value, trackID)
	if err != nil {
		logger.Warn("track metadata fetch failed", "origin", token.Origin, "err", err)
		return nil, nil
	}
	if meta.Title == "" || meta.Artist == "" {
		logger.Debug("track metadata incomplete", "title", meta.Title, "artist", meta.Artist)
		return nil, nil
	}

	mbid, err := r.search.Search(ctx, meta.Title, meta.Artist, meta.DurationMs)
	if err != nil {
		logStageFailure(logger, "recording search", err)
		return nil, nil
	}

	analysis, err := r.analyzer.HighLevel(ctx, mbid)
	if err != nil {
		logStageFailure(logger, "analysis fetch", err, "mbid", mbid)
		return nil, nil
	}

	rec := &models.KeyRecord{
		TrackID:             trackID,
		Key:                 analysis.Key,
		Mode:                analysis.Mode,
		Confidence:          analysis.Confidence,
		Source:              models.SourceAcousticBrainz,
		ExternalRecordingID: mbid,
		Title:               meta.Title,
		Artist:              meta.Artist,
	}

	r.store(ctx, logger, rec)

	logger.Debug("resolved", "key", rec.Key, "mode", rec.Mode, "mbid", mbid)
	return &Resolution{Record: rec}, nil
}

// store writes the record back to the cache. A failure is logged and discarded.
func (r *KeyResolver) store(ctx context.Context, logger *log.Logger, rec *models.KeyRecord) {
	if r.cache == nil {
		return
	}
	if err := r.cache.Upsert(context.WithoutCancel(ctx), rec); err != nil {
		logger.Warn("cache write failed", "err", err)
	}
}

// logStageFailure logs expected misses at Debug and everything else at Warn.
func logStageFailure(logger *log.Logger, stage string, err error, kv ...any) {
	kv = append(kv, "err", err)
	if errors.Is(err, shared.ErrNotFound) || errors.Is(err, shared.ErrParseFailure) {
		logger.Debug(stage+" found nothing", kv...)
		return
	}
	logger.Warn(stage+" failed", kv...)
}
