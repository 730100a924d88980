package repositories

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"

	"github.com/desertthunder/keyfinder/internal/models"
	"github.com/desertthunder/keyfinder/internal/shared"
)

var keyRowColumns = []string{"track_id", "source", "key", "mode", "confidence", "mbid", "title", "artist", "updated_at"}

func newMockPool(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()

	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create mock pool: %v", err)
	}
	t.Cleanup(mock.Close)
	return mock
}

func TestPostgresKeyCache(t *testing.T) {
	ctx := context.Background()

	t.Run("Get", func(t *testing.T) {
		mock := newMockPool(t)
		now := time.Now().UTC()
		rows := mock.NewRows(keyRowColumns).
			AddRow("track-1", "acousticbrainz", 9, 0, 0.72, "mbid-1", "Teardrop", "Massive Attack", now)
		mock.ExpectQuery(`SELECT (.+) FROM keys_cache WHERE track_id = \$1`).
			WithArgs("track-1").
			WillReturnRows(rows)

		got, err := NewPostgresKeyCache(mock).Get(ctx, "track-1")
		if err != nil {
			t.Fatalf("failed to get: %v", err)
		}
		if got.Key != 9 || got.Mode != models.ModeMinor || got.Source != models.SourceAcousticBrainz {
			t.Errorf("unexpected record: %+v", got)
		}
		if got.Confidence == nil || *got.Confidence != 0.72 {
			t.Errorf("expected confidence 0.72, got %v", got.Confidence)
		}
		if got.ExternalRecordingID != "mbid-1" {
			t.Errorf("expected mbid-1, got %s", got.ExternalRecordingID)
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Error(err)
		}
	})

	t.Run("Get missing returns ErrNotFound", func(t *testing.T) {
		mock := newMockPool(t)
		mock.ExpectQuery(`SELECT (.+) FROM keys_cache`).
			WithArgs("track-1").
			WillReturnError(pgx.ErrNoRows)

		_, err := NewPostgresKeyCache(mock).Get(ctx, "track-1")
		if !errors.Is(err, shared.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("Upsert", func(t *testing.T) {
		mock := newMockPool(t)
		rec := sampleRecord("track-1")
		mock.ExpectExec(`INSERT INTO keys_cache`).
			WithArgs("track-1", "acousticbrainz", 9, 0, 0.72,
				pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))

		if err := NewPostgresKeyCache(mock).Upsert(ctx, rec); err != nil {
			t.Fatalf("failed to upsert: %v", err)
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Error(err)
		}
	})

	t.Run("Upsert invalid record never reaches the database", func(t *testing.T) {
		mock := newMockPool(t)
		rec := sampleRecord("track-1")
		rec.Mode = 3

		if err := NewPostgresKeyCache(mock).Upsert(ctx, rec); err == nil {
			t.Error("expected validation error")
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Error(err)
		}
	})

	t.Run("Delete missing", func(t *testing.T) {
		mock := newMockPool(t)
		mock.ExpectExec(`DELETE FROM keys_cache WHERE track_id = \$1`).
			WithArgs("track-1").
			WillReturnResult(pgxmock.NewResult("DELETE", 0))

		err := NewPostgresKeyCache(mock).Delete(ctx, "track-1")
		if !errors.Is(err, shared.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("Count", func(t *testing.T) {
		mock := newMockPool(t)
		mock.ExpectQuery(`SELECT COUNT\(\*\) FROM keys_cache`).
			WillReturnRows(mock.NewRows([]string{"count"}).AddRow(4))

		n, err := NewPostgresKeyCache(mock).Count(ctx)
		if err != nil {
			t.Fatalf("failed to count: %v", err)
		}
		if n != 4 {
			t.Errorf("expected 4, got %d", n)
		}
	})
}

func TestPostgresAccounts(t *testing.T) {
	ctx := context.Background()

	t.Run("RefreshToken", func(t *testing.T) {
		mock := newMockPool(t)
		token := "refresh-1"
		mock.ExpectQuery(`SELECT spotify_id, refresh_token, updated_at FROM users WHERE spotify_id = \$1`).
			WithArgs("wizzler").
			WillReturnRows(mock.NewRows([]string{"spotify_id", "refresh_token", "updated_at"}).
				AddRow("wizzler", &token, time.Now()))

		got, err := NewPostgresAccounts(mock).RefreshToken(ctx, "wizzler")
		if err != nil {
			t.Fatalf("failed to read token: %v", err)
		}
		if got != "refresh-1" {
			t.Errorf("expected refresh-1, got %s", got)
		}
	})

	t.Run("RefreshToken unknown account", func(t *testing.T) {
		mock := newMockPool(t)
		mock.ExpectQuery(`SELECT spotify_id`).
			WithArgs("ghost").
			WillReturnError(pgx.ErrNoRows)

		got, err := NewPostgresAccounts(mock).RefreshToken(ctx, "ghost")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != "" {
			t.Errorf("expected empty token, got %s", got)
		}
	})

	t.Run("SetRefreshToken", func(t *testing.T) {
		mock := newMockPool(t)
		mock.ExpectExec(`UPDATE users SET refresh_token = \$1`).
			WithArgs("rotated", pgxmock.AnyArg(), "wizzler").
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		if err := NewPostgresAccounts(mock).SetRefreshToken(ctx, "wizzler", "rotated"); err != nil {
			t.Fatalf("failed to set token: %v", err)
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Error(err)
		}
	})

	t.Run("EnsureSchema", func(t *testing.T) {
		mock := newMockPool(t)
		mock.ExpectExec(`CREATE TABLE IF NOT EXISTS users`).
			WillReturnResult(pgxmock.NewResult("CREATE", 0))

		if err := EnsureSchema(ctx, mock); err != nil {
			t.Fatalf("failed to ensure schema: %v", err)
		}
	})
}
