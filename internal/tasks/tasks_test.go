package tasks

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/keyfinder/internal/models"
	"github.com/desertthunder/keyfinder/internal/shared"
)

func quietLogger() *log.Logger { return shared.NewLogger(io.Discard) }

type fakeCreds struct {
	user       *models.CredentialToken
	userErr    error
	service    *models.CredentialToken
	serviceErr error

	resolves       int
	serviceFetches int
}

func (f *fakeCreds) Resolve(_ context.Context, in models.CredentialInputs) (*models.CredentialToken, error) {
	f.resolves++
	if f.userErr != nil {
		return nil, f.userErr
	}
	if f.user != nil {
		return f.user, nil
	}
	if in.LocalAccessToken != "" {
		return &models.CredentialToken{Value: in.LocalAccessToken, Origin: models.OriginLocalCookie}, nil
	}
	return nil, shared.ErrNotAuthenticated
}

func (f *fakeCreds) ServiceToken(context.Context) (*models.CredentialToken, error) {
	f.serviceFetches++
	if f.serviceErr != nil {
		return nil, f.serviceErr
	}
	if f.service == nil {
		return nil, shared.ErrNotAuthenticated
	}
	return f.service, nil
}

func userToken(v string) *models.CredentialToken {
	return &models.CredentialToken{Value: v, Origin: models.OriginStoredRefresh}
}

func serviceToken(v string) *models.CredentialToken {
	return &models.CredentialToken{Value: v, Origin: models.OriginServiceFallback}
}

type fakeCatalog struct {
	tracks map[string]*models.TrackMetadata
	err    error
	calls  int
}

func (f *fakeCatalog) TrackMetadata(_ context.Context, token, trackID string) (*models.TrackMetadata, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	meta, ok := f.tracks[trackID]
	if !ok {
		return nil, &shared.StatusError{Service: "spotify", StatusCode: 404}
	}
	return meta, nil
}

type fakeSearcher struct {
	mbid  string
	err   error
	calls int
}

func (f *fakeSearcher) Search(_ context.Context, title, artist string, durationMs int64) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	if f.mbid == "" {
		return "", fmt.Errorf("%w: %s", shared.ErrRecordingNotFound, title)
	}
	return f.mbid, nil
}

type fakeAnalyzer struct {
	analysis *models.KeyAnalysis
	err      error
	calls    int
}

func (f *fakeAnalyzer) HighLevel(_ context.Context, mbid string) (*models.KeyAnalysis, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if f.analysis == nil {
		return nil, shared.ErrAnalysisNotFound
	}
	return f.analysis, nil
}

// fakeFeatures answers per token: statuses maps a token to a failing status code.
type fakeFeatures struct {
	known    map[string]*models.FeatureRecord
	statuses map[string]int
	err      error
	tokens   []string
	batches  [][]string
}

func (f *fakeFeatures) AudioFeatures(_ context.Context, token string, ids []string) ([]*models.FeatureRecord, error) {
	f.tokens = append(f.tokens, token)
	f.batches = append(f.batches, ids)

	if code, ok := f.statuses[token]; ok {
		return nil, &shared.StatusError{Service: "spotify", StatusCode: code}
	}
	if f.err != nil {
		return nil, f.err
	}

	var out []*models.FeatureRecord
	for _, id := range ids {
		if feat, ok := f.known[id]; ok {
			out = append(out, feat)
		}
	}
	return out, nil
}

type fakePlaylists struct {
	tracks []models.PlaylistTrack
	err    error
}

func (f *fakePlaylists) PlaylistTracks(context.Context, string, string) ([]models.PlaylistTrack, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([]models.PlaylistTrack, len(f.tracks))
	copy(out, f.tracks)
	return out, nil
}

var errBoom = errors.New("boom")
