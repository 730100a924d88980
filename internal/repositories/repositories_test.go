package repositories

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/desertthunder/keyfinder/internal/models"
	"github.com/desertthunder/keyfinder/internal/shared"
)

// setupTestDB creates an in-memory SQLite database with migrations applied
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := shared.NewDatabase(":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}

	if _, err := shared.RunMigrations(db); err != nil {
		db.Close()
		t.Fatalf("failed to run migrations: %v", err)
	}

	t.Cleanup(func() { db.Close() })
	return db
}

func ptr(f float64) *float64 { return &f }

func sampleRecord(trackID string) *models.KeyRecord {
	return &models.KeyRecord{
		TrackID:             trackID,
		Key:                 9,
		Mode:                models.ModeMinor,
		Confidence:          ptr(0.72),
		Source:              models.SourceAcousticBrainz,
		ExternalRecordingID: "b1a9c0e9-d987-4042-ae91-78d6a3267d69",
		Title:               "Teardrop",
		Artist:              "Massive Attack",
	}
}

func TestKeyCacheRepository(t *testing.T) {
	ctx := context.Background()

	t.Run("Upsert and Get", func(t *testing.T) {
		repo := NewKeyCacheRepository(setupTestDB(t))
		rec := sampleRecord("67Hna13dNDkZvBpTXRIaOJ")

		if err := repo.Upsert(ctx, rec); err != nil {
			t.Fatalf("failed to upsert: %v", err)
		}
		if rec.UpdatedAt.IsZero() {
			t.Error("UpdatedAt should be stamped on upsert")
		}

		got, err := repo.Get(ctx, rec.TrackID)
		if err != nil {
			t.Fatalf("failed to get: %v", err)
		}

		if !got.SameResolution(rec) {
			t.Errorf("expected %+v, got %+v", rec, got)
		}
		if got.Confidence == nil || *got.Confidence != 0.72 {
			t.Errorf("expected confidence 0.72, got %v", got.Confidence)
		}
		if got.Title != "Teardrop" || got.Artist != "Massive Attack" {
			t.Errorf("unexpected title/artist: %q / %q", got.Title, got.Artist)
		}
	})

	t.Run("Get missing returns ErrNotFound", func(t *testing.T) {
		repo := NewKeyCacheRepository(setupTestDB(t))

		_, err := repo.Get(ctx, "nope")
		if !errors.Is(err, shared.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("Upsert overwrites existing row", func(t *testing.T) {
		repo := NewKeyCacheRepository(setupTestDB(t))
		rec := sampleRecord("track-1")
		if err := repo.Upsert(ctx, rec); err != nil {
			t.Fatalf("failed to upsert: %v", err)
		}

		updated := sampleRecord("track-1")
		updated.Key = 0
		updated.Mode = models.ModeMajor
		updated.Confidence = nil
		updated.ExternalRecordingID = "other-mbid"
		if err := repo.Upsert(ctx, updated); err != nil {
			t.Fatalf("failed to upsert: %v", err)
		}

		got, err := repo.Get(ctx, "track-1")
		if err != nil {
			t.Fatalf("failed to get: %v", err)
		}
		if got.Key != 0 || got.Mode != models.ModeMajor {
			t.Errorf("expected C major, got key=%d mode=%d", got.Key, got.Mode)
		}
		if got.Confidence != nil {
			t.Errorf("expected absent confidence, got %v", *got.Confidence)
		}
		if got.ExternalRecordingID != "other-mbid" {
			t.Errorf("expected mbid other-mbid, got %s", got.ExternalRecordingID)
		}

		n, err := repo.Count(ctx)
		if err != nil {
			t.Fatalf("failed to count: %v", err)
		}
		if n != 1 {
			t.Errorf("expected 1 row, got %d", n)
		}
	})

	t.Run("Upsert rejects invalid record", func(t *testing.T) {
		repo := NewKeyCacheRepository(setupTestDB(t))
		rec := sampleRecord("track-1")
		rec.Key = 12

		if err := repo.Upsert(ctx, rec); err == nil {
			t.Error("expected validation error for key 12")
		}
	})

	t.Run("List orders by most recent", func(t *testing.T) {
		repo := NewKeyCacheRepository(setupTestDB(t))
		base := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
		step := 0
		repo.now = func() time.Time {
			step++
			return base.Add(time.Duration(step) * time.Minute)
		}

		for _, id := range []string{"a", "b", "c"} {
			if err := repo.Upsert(ctx, sampleRecord(id)); err != nil {
				t.Fatalf("failed to upsert %s: %v", id, err)
			}
		}

		records, err := repo.List(ctx, 2, 0)
		if err != nil {
			t.Fatalf("failed to list: %v", err)
		}
		if len(records) != 2 {
			t.Fatalf("expected 2 records, got %d", len(records))
		}
		if records[0].TrackID != "c" || records[1].TrackID != "b" {
			t.Errorf("expected [c b], got [%s %s]", records[0].TrackID, records[1].TrackID)
		}

		rest, err := repo.List(ctx, 2, 2)
		if err != nil {
			t.Fatalf("failed to list: %v", err)
		}
		if len(rest) != 1 || rest[0].TrackID != "a" {
			t.Errorf("expected [a] on second page, got %d records", len(rest))
		}
	})

	t.Run("Delete", func(t *testing.T) {
		repo := NewKeyCacheRepository(setupTestDB(t))
		if err := repo.Upsert(ctx, sampleRecord("track-1")); err != nil {
			t.Fatalf("failed to upsert: %v", err)
		}

		if err := repo.Delete(ctx, "track-1"); err != nil {
			t.Fatalf("failed to delete: %v", err)
		}
		if _, err := repo.Get(ctx, "track-1"); !errors.Is(err, shared.ErrNotFound) {
			t.Errorf("expected ErrNotFound after delete, got %v", err)
		}
		if err := repo.Delete(ctx, "track-1"); !errors.Is(err, shared.ErrNotFound) {
			t.Errorf("expected ErrNotFound deleting twice, got %v", err)
		}
	})
}

func TestAccountRepository(t *testing.T) {
	ctx := context.Background()

	t.Run("Upsert and Get", func(t *testing.T) {
		repo := NewAccountRepository(setupTestDB(t))
		account := &models.UserAccount{ExternalUserID: "wizzler", RefreshToken: "refresh-1"}

		if err := repo.Upsert(ctx, account); err != nil {
			t.Fatalf("failed to upsert: %v", err)
		}

		got, err := repo.Get(ctx, "wizzler")
		if err != nil {
			t.Fatalf("failed to get: %v", err)
		}
		if got.RefreshToken != "refresh-1" {
			t.Errorf("expected refresh-1, got %s", got.RefreshToken)
		}
	})

	t.Run("Upsert replaces refresh token", func(t *testing.T) {
		repo := NewAccountRepository(setupTestDB(t))
		for _, token := range []string{"refresh-1", "refresh-2"} {
			if err := repo.Upsert(ctx, &models.UserAccount{ExternalUserID: "wizzler", RefreshToken: token}); err != nil {
				t.Fatalf("failed to upsert: %v", err)
			}
		}

		token, err := repo.RefreshToken(ctx, "wizzler")
		if err != nil {
			t.Fatalf("failed to read token: %v", err)
		}
		if token != "refresh-2" {
			t.Errorf("expected refresh-2, got %s", token)
		}
	})

	t.Run("RefreshToken for unknown account is empty", func(t *testing.T) {
		repo := NewAccountRepository(setupTestDB(t))

		token, err := repo.RefreshToken(ctx, "ghost")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if token != "" {
			t.Errorf("expected empty token, got %s", token)
		}
	})

	t.Run("SetRefreshToken", func(t *testing.T) {
		repo := NewAccountRepository(setupTestDB(t))
		if err := repo.Upsert(ctx, &models.UserAccount{ExternalUserID: "wizzler", RefreshToken: "old"}); err != nil {
			t.Fatalf("failed to upsert: %v", err)
		}

		if err := repo.SetRefreshToken(ctx, "wizzler", "rotated"); err != nil {
			t.Fatalf("failed to set token: %v", err)
		}

		token, _ := repo.RefreshToken(ctx, "wizzler")
		if token != "rotated" {
			t.Errorf("expected rotated, got %s", token)
		}

		if err := repo.SetRefreshToken(ctx, "ghost", "x"); !errors.Is(err, shared.ErrNotFound) {
			t.Errorf("expected ErrNotFound for unknown account, got %v", err)
		}
	})

	t.Run("Upsert requires spotify id", func(t *testing.T) {
		repo := NewAccountRepository(setupTestDB(t))

		err := repo.Upsert(ctx, &models.UserAccount{})
		if !errors.Is(err, shared.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
	})
}
