package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/keyfinder/internal/models"
	"github.com/desertthunder/keyfinder/internal/shared"
)

// KeyCacheRepository persists [models.KeyRecord] rows in SQLite.
type KeyCacheRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewKeyCacheRepository creates a new KeyCacheRepository with the given database connection
func NewKeyCacheRepository(db *sql.DB) *KeyCacheRepository {
	return &KeyCacheRepository{db: db, now: time.Now}
}

// Get retrieves the cached key for a track.
func (r *KeyCacheRepository) Get(ctx context.Context, trackID string) (*models.KeyRecord, error) {
	query := `SELECT ` + keyColumns + ` FROM keys_cache WHERE track_id = ?`

	rec, err := scanKeyRecord(r.db.QueryRowContext(ctx, query, trackID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: key for track %s", shared.ErrNotFound, trackID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query key: %w", err)
	}
	return rec, nil
}

// Upsert inserts the record or overwrites every column but track_id on conflict.
//
// UpdatedAt is stamped on the record before writing.
func (r *KeyCacheRepository) Upsert(ctx context.Context, rec *models.KeyRecord) error {
	if err := rec.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	rec.UpdatedAt = r.now().UTC()

	query := `
		INSERT INTO keys_cache (` + keyColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (track_id) DO UPDATE SET
			source = excluded.source,
			key = excluded.key,
			mode = excluded.mode,
			confidence = excluded.confidence,
			mbid = excluded.mbid,
			title = excluded.title,
			artist = excluded.artist,
			updated_at = excluded.updated_at
	`

	args := append(keyArgs(rec), rec.UpdatedAt)
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to upsert key: %w", err)
	}
	return nil
}

// List returns cached keys, most recently updated first.
func (r *KeyCacheRepository) List(ctx context.Context, limit, offset int) ([]*models.KeyRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT ` + keyColumns + ` FROM keys_cache ORDER BY updated_at DESC, track_id ASC LIMIT ? OFFSET ?`

	rows, err := r.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query keys: %w", err)
	}
	defer rows.Close()

	var records []*models.KeyRecord
	for rows.Next() {
		rec, err := scanKeyRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan key: %w", err)
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return records, nil
}

// Delete removes the cached key for a track so the next lookup resolves it again.
func (r *KeyCacheRepository) Delete(ctx context.Context, trackID string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM keys_cache WHERE track_id = ?`, trackID)
	if err != nil {
		return fmt.Errorf("failed to delete key: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: key for track %s", shared.ErrNotFound, trackID)
	}
	return nil
}

// Count returns the number of cached keys.
func (r *KeyCacheRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM keys_cache`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count keys: %w", err)
	}
	return n, nil
}
