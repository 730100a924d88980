package tasks

import (
	"context"
	"errors"
	"testing"

	"github.com/desertthunder/keyfinder/internal/models"
	"github.com/desertthunder/keyfinder/internal/shared"
	tu "github.com/desertthunder/keyfinder/internal/testing"
)

type resolverFixture struct {
	cache    *tu.MemoryKeyStore
	creds    *fakeCreds
	catalog  *fakeCatalog
	search   *fakeSearcher
	analyzer *fakeAnalyzer
	resolver *KeyResolver
}

func newResolverFixture() *resolverFixture {
	conf := 0.66
	f := &resolverFixture{
		cache: tu.NewMemoryKeyStore(),
		creds: &fakeCreds{user: userToken("user")},
		catalog: &fakeCatalog{tracks: map[string]*models.TrackMetadata{
			"track-1": {ID: "track-1", Title: "Teardrop", Artist: "Massive Attack", DurationMs: 330773},
		}},
		search:   &fakeSearcher{mbid: "mbid-1"},
		analyzer: &fakeAnalyzer{analysis: &models.KeyAnalysis{Key: 9, Mode: models.ModeMinor, Confidence: &conf}},
	}
	f.resolver = NewKeyResolver(f.cache, f.creds, f.catalog, f.search, f.analyzer, quietLogger())
	return f
}

func TestKeyResolver(t *testing.T) {
	ctx := context.Background()
	in := models.CredentialInputs{AccountKey: "wizzler"}

	t.Run("resolves and caches", func(t *testing.T) {
		f := newResolverFixture()

		res, err := f.resolver.Resolve(ctx, "track-1", in)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if res == nil || res.Cached {
			t.Fatalf("expected a fresh resolution, got %+v", res)
		}

		rec := res.Record
		if rec.Key != 9 || rec.Mode != models.ModeMinor || rec.Source != models.SourceAcousticBrainz {
			t.Errorf("unexpected record %+v", rec)
		}
		if rec.ExternalRecordingID != "mbid-1" || rec.Title != "Teardrop" || rec.Artist != "Massive Attack" {
			t.Errorf("expected provenance to be captured, got %+v", rec)
		}
		if rec.Confidence == nil || *rec.Confidence != 0.66 {
			t.Errorf("expected confidence 0.66, got %v", rec.Confidence)
		}
		if f.cache.Len() != 1 {
			t.Errorf("expected 1 cached record, got %d", f.cache.Len())
		}
	})

	t.Run("second call is served from cache", func(t *testing.T) {
		f := newResolverFixture()

		first, err := f.resolver.ResolveKey(ctx, "track-1", in)
		if err != nil || first == nil {
			t.Fatalf("expected first resolution, got %v / %v", first, err)
		}

		res, err := f.resolver.Resolve(ctx, "track-1", in)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if !res.Cached {
			t.Error("expected second call to hit the cache")
		}
		if !res.Record.SameResolution(first) {
			t.Errorf("expected %+v, got %+v", first, res.Record)
		}
		if f.catalog.calls != 1 || f.search.calls != 1 || f.analyzer.calls != 1 {
			t.Errorf("expected one external call per stage, got catalog=%d search=%d analysis=%d",
				f.catalog.calls, f.search.calls, f.analyzer.calls)
		}
		if f.creds.resolves != 1 {
			t.Errorf("cache hit should not resolve credentials, got %d resolves", f.creds.resolves)
		}
	})

	t.Run("no credential returns nil", func(t *testing.T) {
		f := newResolverFixture()
		f.creds.user = nil
		f.creds.userErr = shared.ErrNotAuthenticated

		rec, err := f.resolver.ResolveKey(ctx, "track-1", in)
		if err != nil || rec != nil {
			t.Errorf("expected (nil, nil), got (%v, %v)", rec, err)
		}
		if f.catalog.calls != 0 {
			t.Error("metadata should not be fetched without a credential")
		}
	})

	t.Run("incomplete metadata is not cached", func(t *testing.T) {
		f := newResolverFixture()
		f.catalog.tracks["track-2"] = &models.TrackMetadata{ID: "track-2", Title: "", Artist: "Someone"}

		for range 2 {
			rec, err := f.resolver.ResolveKey(ctx, "track-2", in)
			if err != nil || rec != nil {
				t.Fatalf("expected (nil, nil), got (%v, %v)", rec, err)
			}
		}
		if f.catalog.calls != 2 {
			t.Errorf("expected a metadata fetch on every call, got %d", f.catalog.calls)
		}
		if f.search.calls != 0 {
			t.Errorf("search should not run without a title, got %d", f.search.calls)
		}
		if f.cache.Len() != 0 {
			t.Error("nothing should be cached for an unresolvable track")
		}
	})

	t.Run("stage failures return nil", func(t *testing.T) {
		tests := []struct {
			name  string
			setup func(f *resolverFixture)
		}{
			{"metadata error", func(f *resolverFixture) { f.catalog.err = errBoom }},
			{"unknown track", func(f *resolverFixture) { delete(f.catalog.tracks, "track-1") }},
			{"no recording", func(f *resolverFixture) { f.search.mbid = "" }},
			{"search error", func(f *resolverFixture) { f.search.err = &shared.StatusError{Service: "musicbrainz", StatusCode: 503} }},
			{"no analysis", func(f *resolverFixture) { f.analyzer.analysis = nil }},
			{"parse failure", func(f *resolverFixture) { f.analyzer.err = shared.ErrParseFailure }},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				f := newResolverFixture()
				tt.setup(f)

				rec, err := f.resolver.ResolveKey(ctx, "track-1", in)
				if err != nil || rec != nil {
					t.Errorf("expected (nil, nil), got (%v, %v)", rec, err)
				}
				if f.cache.Upserts != 0 {
					t.Error("failures must not be cached")
				}
			})
		}
	})

	t.Run("cache write failure is ignored", func(t *testing.T) {
		f := newResolverFixture()
		f.cache.UpsertErr = errors.New("disk full")

		rec, err := f.resolver.ResolveKey(ctx, "track-1", in)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if rec == nil || rec.Key != 9 {
			t.Errorf("expected resolved record despite write failure, got %+v", rec)
		}
		if f.cache.Upserts != 1 {
			t.Errorf("expected one write attempt, got %d", f.cache.Upserts)
		}
	})

	t.Run("cache read failure resolves live", func(t *testing.T) {
		f := newResolverFixture()
		f.cache.GetErr = errors.New("connection reset")

		rec, err := f.resolver.ResolveKey(ctx, "track-1", in)
		if err != nil || rec == nil {
			t.Fatalf("expected live resolution, got (%v, %v)", rec, err)
		}
		if f.catalog.calls != 1 {
			t.Errorf("expected a metadata fetch, got %d", f.catalog.calls)
		}
	})

	t.Run("write survives a cancelled request", func(t *testing.T) {
		f := newResolverFixture()
		cctx, cancel := context.WithCancel(ctx)
		defer cancel()

		rec, err := f.resolver.ResolveKey(cctx, "track-1", in)
		if err != nil || rec == nil {
			t.Fatalf("expected resolution, got (%v, %v)", rec, err)
		}
		if f.cache.Len() != 1 {
			t.Error("expected the record to be cached")
		}
	})

	t.Run("invalid input", func(t *testing.T) {
		f := newResolverFixture()

		if _, err := f.resolver.ResolveKey(ctx, "  ", in); !errors.Is(err, shared.ErrMissingArgument) {
			t.Errorf("expected ErrMissingArgument, got %v", err)
		}
	})

	t.Run("missing collaborators", func(t *testing.T) {
		r := NewKeyResolver(tu.NewMemoryKeyStore(), nil, nil, nil, nil, quietLogger())

		if _, err := r.ResolveKey(ctx, "track-1", in); !errors.Is(err, shared.ErrMissingConfig) {
			t.Errorf("expected ErrMissingConfig, got %v", err)
		}
	})

	t.Run("Lookup", func(t *testing.T) {
		f := newResolverFixture()
		if rec := f.resolver.Lookup(ctx, "track-1"); rec != nil {
			t.Errorf("expected miss, got %+v", rec)
		}

		if _, err := f.resolver.ResolveKey(ctx, "track-1", in); err != nil {
			t.Fatal(err)
		}
		if rec := f.resolver.Lookup(ctx, "track-1"); rec == nil {
			t.Error("expected hit after resolution")
		}
	})
}
