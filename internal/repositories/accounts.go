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

// AccountRepository persists [models.UserAccount] bindings in SQLite.
type AccountRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewAccountRepository creates a new [AccountRepository] with the given database connection
func NewAccountRepository(db *sql.DB) *AccountRepository {
	return &AccountRepository{db: db, now: time.Now}
}

// Get retrieves an account by Spotify user id.
func (r *AccountRepository) Get(ctx context.Context, spotifyID string) (*models.UserAccount, error) {
	var (
		account models.UserAccount
		refresh sql.NullString
	)

	err := r.db.QueryRowContext(ctx,
		`SELECT spotify_id, refresh_token, updated_at FROM users WHERE spotify_id = ?`, spotifyID,
	).Scan(&account.ExternalUserID, &refresh, &account.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: account %s", shared.ErrNotFound, spotifyID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query account: %w", err)
	}

	account.RefreshToken = refresh.String
	return &account, nil
}

// RefreshToken returns the stored refresh token, or "" when the account is unknown or holds none.
func (r *AccountRepository) RefreshToken(ctx context.Context, spotifyID string) (string, error) {
	account, err := r.Get(ctx, spotifyID)
	if errors.Is(err, shared.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return account.RefreshToken, nil
}

// SetRefreshToken records a rotated refresh token for an existing account.
func (r *AccountRepository) SetRefreshToken(ctx context.Context, spotifyID, token string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE users SET refresh_token = ?, updated_at = ? WHERE spotify_id = ?`,
		token, r.now().UTC(), spotifyID,
	)
	if err != nil {
		return fmt.Errorf("failed to update refresh token: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: account %s", shared.ErrNotFound, spotifyID)
	}
	return nil
}

// Upsert creates the account on first authorization or replaces its refresh token.
func (r *AccountRepository) Upsert(ctx context.Context, account *models.UserAccount) error {
	if account.ExternalUserID == "" {
		return fmt.Errorf("%w: spotify id is required", shared.ErrInvalidInput)
	}

	account.UpdatedAt = r.now().UTC()

	query := `
		INSERT INTO users (spotify_id, refresh_token, updated_at) VALUES (?, ?, ?)
		ON CONFLICT (spotify_id) DO UPDATE SET
			refresh_token = excluded.refresh_token,
			updated_at = excluded.updated_at
	`

	if _, err := r.db.ExecContext(ctx, query, account.ExternalUserID, nullString(account.RefreshToken), account.UpdatedAt); err != nil {
		return fmt.Errorf("failed to upsert account: %w", err)
	}
	return nil
}
