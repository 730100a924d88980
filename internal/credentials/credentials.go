// Package credentials resolves a Spotify bearer token for a request.
//
// Resolution walks a fixed chain and the first success wins:
//  1. the account's stored refresh token, exchanged for a fresh access token
//  2. a client-held access token, used verbatim
//  3. an application token from the client-credentials grant ([Provider.ServiceToken])
//
// Step 3 is never part of [Provider.Resolve]; only callers that can work without user
// context (bulk audio features) ask for it.
package credentials

import (
	"context"
	"errors"
	"fmt"

	"github.com/charmbracelet/log"
	"golang.org/x/oauth2"

	"github.com/desertthunder/keyfinder/internal/models"
	"github.com/desertthunder/keyfinder/internal/shared"
)

// AccountStore reads and rotates stored refresh tokens.
type AccountStore interface {
	RefreshToken(ctx context.Context, accountKey string) (string, error)
	SetRefreshToken(ctx context.Context, accountKey, token string) error
}

// Exchanger talks to the authorization service.
type Exchanger interface {
	Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error)
	ClientCredentials(ctx context.Context) (*oauth2.Token, error)
}

// Provider implements the credential fallback chain.
type Provider struct {
	accounts  AccountStore
	exchanger Exchanger
	logger    *log.Logger
}

// NewProvider creates a Provider.
//
// A nil accounts store disables the stored-refresh step.
func NewProvider(accounts AccountStore, exchanger Exchanger, logger *log.Logger) *Provider {
	return &Provider{
		accounts:  accounts,
		exchanger: exchanger,
		logger:    shared.WithLogger(logger, "component", "credentials"),
	}
}

// Resolve returns a user-context token or an error wrapping [shared.ErrNotAuthenticated].
//
// Failures of the stored-refresh step are logged and fall through to the local token.
func (p *Provider) Resolve(ctx context.Context, in models.CredentialInputs) (*models.CredentialToken, error) {
	if in.AccountKey != "" {
		token, err := p.fromStoredRefresh(ctx, in.AccountKey)
		if err == nil {
			return token, nil
		}
		p.logger.Warn("stored refresh failed, falling through", "account", in.AccountKey, "err", err)
	}

	if in.LocalAccessToken != "" {
		p.logger.Debug("using client-held access token")
		return &models.CredentialToken{Value: in.LocalAccessToken, Origin: models.OriginLocalCookie}, nil
	}

	return nil, fmt.Errorf("%w: no usable credential", shared.ErrNotAuthenticated)
}

func (p *Provider) fromStoredRefresh(ctx context.Context, accountKey string) (*models.CredentialToken, error) {
	if p.accounts == nil || p.exchanger == nil {
		return nil, fmt.Errorf("%w: account store", shared.ErrMissingConfig)
	}

	stored, err := p.accounts.RefreshToken(ctx, accountKey)
	if err != nil {
		return nil, err
	}
	if stored == "" {
		return nil, shared.ErrNoRefreshToken
	}

	fresh, err := p.exchanger.Refresh(ctx, stored)
	if err != nil {
		return nil, err
	}
	if fresh.AccessToken == "" {
		return nil, fmt.Errorf("%w: empty access token", shared.ErrRefreshFailed)
	}

	if fresh.RefreshToken != "" && fresh.RefreshToken != stored {
		p.persistRotation(ctx, accountKey, fresh.RefreshToken)
	}

	p.logger.Debug("refreshed stored credential", "account", accountKey)
	return &models.CredentialToken{
		Value:       fresh.AccessToken,
		Origin:      models.OriginStoredRefresh,
		ExpiresHint: fresh.Expiry,
	}, nil
}

// persistRotation writes the rotated refresh token; a failure is logged and discarded.
func (p *Provider) persistRotation(ctx context.Context, accountKey, token string) {
	if err := p.accounts.SetRefreshToken(context.WithoutCancel(ctx), accountKey, token); err != nil {
		p.logger.Warn("failed to persist rotated refresh token", "account", accountKey, "err", err)
	}
}

// ServiceToken returns an application-level token with no associated account.
func (p *Provider) ServiceToken(ctx context.Context) (*models.CredentialToken, error) {
	if p.exchanger == nil {
		return nil, fmt.Errorf("%w: spotify client credentials", shared.ErrMissingConfig)
	}

	token, err := p.exchanger.ClientCredentials(ctx)
	if err != nil {
		return nil, errors.Join(shared.ErrNotAuthenticated, err)
	}
	if token.AccessToken == "" {
		return nil, fmt.Errorf("%w: empty service token", shared.ErrNotAuthenticated)
	}

	return &models.CredentialToken{
		Value:       token.AccessToken,
		Origin:      models.OriginServiceFallback,
		ExpiresHint: token.Expiry,
	}, nil
}
