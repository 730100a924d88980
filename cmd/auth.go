package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/urfave/cli/v3"
	"golang.org/x/oauth2"

	"github.com/desertthunder/keyfinder/internal/models"
	"github.com/desertthunder/keyfinder/internal/server"
	"github.com/desertthunder/keyfinder/internal/shared"
)

const authTimeout = 2 * time.Minute

// AuthLogin runs the authorization code flow and binds the refresh token to the user's Spotify id.
//
// Starts a local HTTP server on the redirect URI, opens the browser for user authorization,
// and exchanges the code for tokens.
func (r *Runner) AuthLogin(ctx context.Context, cmd *cli.Command) error {
	if err := r.pipeline(ctx); err != nil {
		return err
	}

	token, err := r.doOAuth(ctx)
	if err != nil {
		return err
	}
	if token.RefreshToken == "" {
		return fmt.Errorf("%w: no refresh token issued", shared.ErrAuthFailed)
	}

	user, err := r.spotify.Profile(ctx, token.AccessToken)
	if err != nil {
		return fmt.Errorf("failed to read profile: %w", err)
	}

	account := &models.UserAccount{ExternalUserID: user.ID, RefreshToken: token.RefreshToken}
	if err := r.store.accounts.Upsert(ctx, account); err != nil {
		return fmt.Errorf("failed to save account: %w", err)
	}

	r.logger.Info("account bound", "spotify_id", user.ID)
	r.writePlainln("✓ Logged in as %s", displayName(user.DisplayName, user.ID))
	r.writePlain("Use --account %s with key, features and playlist commands.\n", user.ID)
	return nil
}

// AuthStatus reports whether an account has a stored refresh token.
func (r *Runner) AuthStatus(ctx context.Context, cmd *cli.Command) error {
	accountKey := cmd.String("account")
	if accountKey == "" {
		return fmt.Errorf("%w: --account", shared.ErrMissingArgument)
	}

	s, err := r.openStore(ctx)
	if err != nil {
		return err
	}

	account, err := s.accounts.Get(ctx, accountKey)
	switch {
	case isNotFound(err):
		return r.writePlain("✗ No account bound for %s\n", accountKey)
	case err != nil:
		return err
	}

	if account.RefreshToken == "" {
		return r.writePlain("✗ %s has no refresh token; run 'keyfinder auth login'\n", accountKey)
	}
	return r.writePlain("✓ %s is bound (updated %s)\n", accountKey, account.UpdatedAt.Format(time.RFC3339))
}

// doOAuth executes the OAuth2 authorization flow with a local HTTP server
func (r *Runner) doOAuth(ctx context.Context) (*oauth2.Token, error) {
	state, err := shared.GenerateState()
	if err != nil {
		return nil, fmt.Errorf("failed to generate state token: %w", err)
	}

	redirect := r.config.Credentials.Spotify.RedirectURI
	authURL := r.spotify.AuthURL(state)
	oauthHandler := server.NewOAuthHandler(r.spotify, state, redirect)
	router := server.NewBasicRouter()
	router.Handler(oauthHandler)

	serverAddr := r.config.Server.Addr()
	if u, err := url.Parse(redirect); err == nil && u.Host != "" {
		if _, _, splitErr := net.SplitHostPort(u.Host); splitErr == nil {
			serverAddr = u.Host
		}
	}

	httpServer := &http.Server{
		Addr:              serverAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		r.logger.Infof("starting OAuth server at %v", serverAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrors <- err
		}
	}()

	time.Sleep(100 * time.Millisecond)

	r.writePlain("→ Opening browser for Spotify authorization...\n")
	if err := shared.OpenBrowser(authURL); err != nil {
		r.logger.Warnf("failed to open browser automatically %v", err)
		r.writePlainln("⚠ Could not open browser automatically.")
		r.writePlain("Please open this URL in your browser:\n%s\n\n", authURL)
	}

	r.writePlain("→ Waiting for authorization (2 minute timeout)...\n")

	timeout := time.NewTimer(authTimeout)
	defer timeout.Stop()

	var result server.OAuthResult

	select {
	case result = <-oauthHandler.Result():
	case err := <-serverErrors:
		return nil, fmt.Errorf("server error: %w", err)
	case <-timeout.C:
		return nil, fmt.Errorf("%w: authorization timed out after 2 minutes", shared.ErrTimeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		r.logger.Warn("error shutting down server", "error", err)
	}

	if result.Error() != nil {
		return nil, fmt.Errorf("authorization failed: %w", result.Error())
	}

	if result.Token == nil {
		return nil, fmt.Errorf("no token received")
	}

	return result.Token, nil
}

func displayName(name, id string) string {
	if name == "" {
		return id
	}
	return fmt.Sprintf("%s (%s)", name, id)
}

// authCommand handles Spotify account binding.
func authCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "auth",
		Usage: "Spotify account binding",
		Commands: []*cli.Command{
			{
				Name:   "login",
				Usage:  "Authorize with Spotify and store the refresh token",
				Action: r.AuthLogin,
			},
			{
				Name:  "status",
				Usage: "Check whether an account has a stored refresh token",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "account",
						Aliases:  []string{"a"},
						Usage:    "Spotify user id",
						Required: true,
					},
				},
				Action: r.AuthStatus,
			},
		},
	}
}
