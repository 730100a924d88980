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

// FeatureBatchSize is the number of ids sent per audio-features call.
const FeatureBatchSize = 100

// FeatureFetcher is a live pass-through to the bulk audio-features endpoint.
//
// Each batch is tried with the user's credential and, when that is rejected with a
// 4xx status, retried exactly once with an application token. It never touches the key cache.
type FeatureFetcher struct {
	creds  CredentialResolver
	source FeatureSource
	logger *log.Logger
}

// NewFeatureFetcher creates a FeatureFetcher.
func NewFeatureFetcher(creds CredentialResolver, source FeatureSource, logger *log.Logger) *FeatureFetcher {
	return &FeatureFetcher{
		creds:  creds,
		source: source,
		logger: shared.WithLogger(logger, "component", "features"),
	}
}

// FetchFeatures returns an entry for every requested id; ids the service did not
// return map to nil.
//
// When no user credential resolves the application token is used from the start
// and there is no retry. The error is non-nil only for an empty id list or a
// fetcher without collaborators.
func (f *FeatureFetcher) FetchFeatures(ctx context.Context, trackIDs []string, in models.CredentialInputs) (map[string]*models.FeatureRecord, error) {
	ids := uniqueIDs(trackIDs)
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: track ids", shared.ErrMissingArgument)
	}
	if f.creds == nil || f.source == nil {
		return nil, fmt.Errorf("%w: feature fetcher is not fully configured", shared.ErrMissingConfig)
	}

	result := make(map[string]*models.FeatureRecord, len(ids))
	for _, id := range ids {
		result[id] = nil
	}

	primary, err := f.creds.Resolve(ctx, in)
	if err != nil {
		f.logger.Debug("no user credential, using application token", "err", err)
		primary, err = f.creds.ServiceToken(ctx)
		if err != nil {
			f.logger.Warn("no credential for audio features", "err", err)
			return result, nil
		}
	}

	for start := 0; start < len(ids); start += FeatureBatchSize {
		end := min(start+FeatureBatchSize, len(ids))
		batch := ids[start:end]

		for _, feat := range f.fetchBatch(ctx, primary, batch) {
			if _, requested := result[feat.ID]; requested {
				result[feat.ID] = feat
			}
		}
	}

	return result, nil
}

// fetchBatch performs the primary call and at most one fallback retry.
func (f *FeatureFetcher) fetchBatch(ctx context.Context, primary *models.CredentialToken, batch []string) []*models.FeatureRecord {
	features, err := f.source.AudioFeatures(ctx, primary.Value, batch)
	if err == nil {
		return features
	}

	var statusErr *shared.StatusError
	if !errors.As(err, &statusErr) || !statusErr.ClientError() || primary.Origin == models.OriginServiceFallback {
		f.logger.Warn("audio features fetch failed", "origin", primary.Origin, "batch", len(batch), "err", err)
		return nil
	}

	f.logger.Debug("audio features rejected, retrying with application token", "status", statusErr.StatusCode)

	fallback, err := f.creds.ServiceToken(ctx)
	if err != nil {
		f.logger.Warn("application token unavailable", "err", err)
		return nil
	}

	features, err = f.source.AudioFeatures(ctx, fallback.Value, batch)
	if err != nil {
		f.logger.Warn("audio features retry failed", "batch", len(batch), "err", err)
		return nil
	}
	return features
}

// uniqueIDs trims ids and drops blanks and duplicates, keeping first-seen order.
func uniqueIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
