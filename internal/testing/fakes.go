package testing

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/oauth2"

	"github.com/desertthunder/keyfinder/internal/models"
	"github.com/desertthunder/keyfinder/internal/shared"
)

// MemoryKeyStore is an in-memory key cache.
//
// GetErr and UpsertErr, when set, are returned instead of touching the map.
type MemoryKeyStore struct {
	mu      sync.Mutex
	records map[string]models.KeyRecord

	GetErr    error
	UpsertErr error
	Gets      int
	Upserts   int
}

func NewMemoryKeyStore() *MemoryKeyStore {
	return &MemoryKeyStore{records: make(map[string]models.KeyRecord)}
}

func (m *MemoryKeyStore) Get(_ context.Context, trackID string) (*models.KeyRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Gets++
	if m.GetErr != nil {
		return nil, m.GetErr
	}
	rec, ok := m.records[trackID]
	if !ok {
		return nil, fmt.Errorf("%w: key for track %s", shared.ErrNotFound, trackID)
	}
	return &rec, nil
}

func (m *MemoryKeyStore) Upsert(_ context.Context, rec *models.KeyRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Upserts++
	if m.UpsertErr != nil {
		return m.UpsertErr
	}
	if err := rec.Validate(); err != nil {
		return err
	}
	m.records[rec.TrackID] = *rec
	return nil
}

// Len returns the number of stored records.
func (m *MemoryKeyStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

// MemoryAccounts is an in-memory account store keyed by Spotify user id.
type MemoryAccounts struct {
	mu     sync.Mutex
	tokens map[string]string

	SetErr error
	Sets   int
}

func NewMemoryAccounts(tokens map[string]string) *MemoryAccounts {
	if tokens == nil {
		tokens = make(map[string]string)
	}
	return &MemoryAccounts{tokens: tokens}
}

func (m *MemoryAccounts) RefreshToken(_ context.Context, accountKey string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tokens[accountKey], nil
}

func (m *MemoryAccounts) SetRefreshToken(_ context.Context, accountKey, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Sets++
	if m.SetErr != nil {
		return m.SetErr
	}
	m.tokens[accountKey] = token
	return nil
}

func (m *MemoryAccounts) Upsert(_ context.Context, account *models.UserAccount) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens[account.ExternalUserID] = account.RefreshToken
	return nil
}

// Token returns the stored refresh token for assertions.
func (m *MemoryAccounts) Token(accountKey string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tokens[accountKey]
}

// FakeExchanger returns canned tokens from the authorization service.
type FakeExchanger struct {
	RefreshResult *oauth2.Token
	RefreshErr    error
	ServiceResult *oauth2.Token
	ServiceErr    error

	Refreshes      int
	ServiceFetches int
}

func (f *FakeExchanger) Refresh(_ context.Context, refreshToken string) (*oauth2.Token, error) {
	f.Refreshes++
	if f.RefreshErr != nil {
		return nil, f.RefreshErr
	}
	return f.RefreshResult, nil
}

func (f *FakeExchanger) ClientCredentials(_ context.Context) (*oauth2.Token, error) {
	f.ServiceFetches++
	if f.ServiceErr != nil {
		return nil, f.ServiceErr
	}
	return f.ServiceResult, nil
}
