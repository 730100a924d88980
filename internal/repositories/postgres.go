package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/desertthunder/keyfinder/internal/models"
	"github.com/desertthunder/keyfinder/internal/shared"
)

// DBInterface is the subset of [pgxpool.Pool] the Postgres repositories need.
//
// pgxmock.PgxPoolIface satisfies it as well.
type DBInterface interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const postgresSchema = `
CREATE TABLE IF NOT EXISTS users (
	id BIGSERIAL PRIMARY KEY,
	spotify_id TEXT UNIQUE NOT NULL,
	refresh_token TEXT,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS keys_cache (
	track_id TEXT PRIMARY KEY,
	source TEXT NOT NULL,
	key INTEGER NOT NULL CHECK (key BETWEEN 0 AND 11),
	mode INTEGER NOT NULL CHECK (mode IN (0, 1)),
	confidence DOUBLE PRECISION,
	mbid TEXT,
	title TEXT,
	artist TEXT,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_keys_cache_updated_at ON keys_cache (updated_at);
`

// NewPostgresPool opens a connection pool for the hosted deployment and pings it.
func NewPostgresPool(ctx context.Context, url string, maxConns int) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("parsing connection string: %w", err)
	}

	if maxConns > 0 {
		config.MaxConns = int32(maxConns)
	}
	config.HealthCheckPeriod = 30 * time.Second
	config.ConnConfig.ConnectTimeout = 5 * time.Second

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("creating pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	return pool, nil
}

// EnsureSchema creates the users and keys_cache tables when missing.
func EnsureSchema(ctx context.Context, db DBInterface) error {
	if _, err := db.Exec(ctx, postgresSchema); err != nil {
		return fmt.Errorf("failed to ensure schema: %w", err)
	}
	return nil
}

// PostgresKeyCache is the hosted counterpart of [KeyCacheRepository].
type PostgresKeyCache struct {
	db  DBInterface
	now func() time.Time
}

// NewPostgresKeyCache creates a key cache backed by db.
func NewPostgresKeyCache(db DBInterface) *PostgresKeyCache {
	return &PostgresKeyCache{db: db, now: time.Now}
}

func (r *PostgresKeyCache) Get(ctx context.Context, trackID string) (*models.KeyRecord, error) {
	query := `SELECT ` + keyColumns + ` FROM keys_cache WHERE track_id = $1`

	rec, err := scanKeyRecord(r.db.QueryRow(ctx, query, trackID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: key for track %s", shared.ErrNotFound, trackID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query key: %w", err)
	}
	return rec, nil
}

func (r *PostgresKeyCache) Upsert(ctx context.Context, rec *models.KeyRecord) error {
	if err := rec.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	rec.UpdatedAt = r.now().UTC()

	query := `
		INSERT INTO keys_cache (` + keyColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (track_id) DO UPDATE SET
			source = EXCLUDED.source,
			key = EXCLUDED.key,
			mode = EXCLUDED.mode,
			confidence = EXCLUDED.confidence,
			mbid = EXCLUDED.mbid,
			title = EXCLUDED.title,
			artist = EXCLUDED.artist,
			updated_at = EXCLUDED.updated_at
	`

	args := append(keyArgs(rec), rec.UpdatedAt)
	if _, err := r.db.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to upsert key: %w", err)
	}
	return nil
}

func (r *PostgresKeyCache) List(ctx context.Context, limit, offset int) ([]*models.KeyRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT ` + keyColumns + ` FROM keys_cache ORDER BY updated_at DESC, track_id ASC LIMIT $1 OFFSET $2`

	rows, err := r.db.Query(ctx, query, limit, offset)
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

func (r *PostgresKeyCache) Delete(ctx context.Context, trackID string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM keys_cache WHERE track_id = $1`, trackID)
	if err != nil {
		return fmt.Errorf("failed to delete key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: key for track %s", shared.ErrNotFound, trackID)
	}
	return nil
}

func (r *PostgresKeyCache) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM keys_cache`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count keys: %w", err)
	}
	return n, nil
}

// PostgresAccounts is the hosted counterpart of [AccountRepository].
type PostgresAccounts struct {
	db  DBInterface
	now func() time.Time
}

// NewPostgresAccounts creates an account store backed by db.
func NewPostgresAccounts(db DBInterface) *PostgresAccounts {
	return &PostgresAccounts{db: db, now: time.Now}
}

func (r *PostgresAccounts) Get(ctx context.Context, spotifyID string) (*models.UserAccount, error) {
	var (
		account models.UserAccount
		refresh *string
	)

	err := r.db.QueryRow(ctx,
		`SELECT spotify_id, refresh_token, updated_at FROM users WHERE spotify_id = $1`, spotifyID,
	).Scan(&account.ExternalUserID, &refresh, &account.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: account %s", shared.ErrNotFound, spotifyID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query account: %w", err)
	}

	if refresh != nil {
		account.RefreshToken = *refresh
	}
	return &account, nil
}

func (r *PostgresAccounts) RefreshToken(ctx context.Context, spotifyID string) (string, error) {
	account, err := r.Get(ctx, spotifyID)
	if errors.Is(err, shared.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return account.RefreshToken, nil
}

func (r *PostgresAccounts) SetRefreshToken(ctx context.Context, spotifyID, token string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE users SET refresh_token = $1, updated_at = $2 WHERE spotify_id = $3`,
		token, r.now().UTC(), spotifyID,
	)
	if err != nil {
		return fmt.Errorf("failed to update refresh token: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: account %s", shared.ErrNotFound, spotifyID)
	}
	return nil
}

func (r *PostgresAccounts) Upsert(ctx context.Context, account *models.UserAccount) error {
	if account.ExternalUserID == "" {
		return fmt.Errorf("%w: spotify id is required", shared.ErrInvalidInput)
	}

	account.UpdatedAt = r.now().UTC()

	query := `
		INSERT INTO users (spotify_id, refresh_token, updated_at) VALUES ($1, $2, $3)
		ON CONFLICT (spotify_id) DO UPDATE SET
			refresh_token = EXCLUDED.refresh_token,
			updated_at = EXCLUDED.updated_at
	`

	if _, err := r.db.Exec(ctx, query, account.ExternalUserID, nullString(account.RefreshToken), account.UpdatedAt); err != nil {
		return fmt.Errorf("failed to upsert account: %w", err)
	}
	return nil
}
