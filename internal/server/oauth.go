package server

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/oauth2"

	"github.com/desertthunder/keyfinder/internal/models"
	"github.com/desertthunder/keyfinder/internal/services"
	"github.com/desertthunder/keyfinder/internal/shared"
)

// stateCookie carries the OAuth state between /auth/login and /auth/callback.
const stateCookie = "oauth_state"

// CodeExchanger trades an authorization code for tokens.
type CodeExchanger interface {
	Exchange(ctx context.Context, code string) (*oauth2.Token, error)
}

// Authenticator is the Spotify side of the login flow.
type Authenticator interface {
	CodeExchanger
	AuthURL(state string) string
	Profile(ctx context.Context, token string) (*services.SpotifyUser, error)
}

// AccountWriter binds a Spotify user id to its refresh token.
type AccountWriter interface {
	Upsert(ctx context.Context, account *models.UserAccount) error
}

// OAuthResult contains the result of an OAuth authorization flow.
type OAuthResult struct {
	Token *oauth2.Token
	err   error
}

func (o *OAuthResult) Error() error {
	return o.err
}

// OAuthHandler handles the single callback of a CLI login.
type OAuthHandler struct {
	exchanger   CodeExchanger
	state       string
	route       string
	resultChan  chan OAuthResult
	once        sync.Once
	callbackHit bool
	mu          sync.Mutex
}

// NewOAuthHandler creates a callback handler for the path of redirectURI.
//
// The state token should be cryptographically random.
func NewOAuthHandler(exchanger CodeExchanger, state, redirectURI string) *OAuthHandler {
	route := "/callback"
	if u, err := url.Parse(redirectURI); err == nil && u.Path != "" {
		route = u.Path
	}
	return &OAuthHandler{
		exchanger:  exchanger,
		state:      state,
		route:      route,
		resultChan: make(chan OAuthResult, 1),
	}
}

// Routes returns the HTTP routes this handler serves.
func (h *OAuthHandler) Routes() []string {
	return []string{h.route}
}

// ServeHTTP validates the state, exchanges the code and sends the result.
func (h *OAuthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	if h.callbackHit {
		h.mu.Unlock()
		http.Error(w, "Callback already processed", http.StatusBadRequest)
		return
	}
	h.callbackHit = true
	h.mu.Unlock()

	code, err := callbackCode(r, h.state)
	if err != nil {
		h.Send(OAuthResult{err: err})
		http.Error(w, "Authorization failed", http.StatusBadRequest)
		return
	}

	token, err := h.exchanger.Exchange(r.Context(), code)
	if err != nil {
		h.Send(OAuthResult{err: fmt.Errorf("token exchange failed: %w", err)})
		http.Error(w, "Token exchange failed", http.StatusInternalServerError)
		return
	}

	h.Send(OAuthResult{Token: token})

	w.Header().Set("Content-Type", "text/html")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, `<!DOCTYPE html>
<html>
<head><title>keyfinder</title></head>
<body style="font-family: sans-serif; text-align: center; margin-top: 20vh">
    <h1 style="color: #1DB954">Authorization Successful</h1>
    <p>You can close this window and return to the terminal.</p>
</body>
</html>
`)
}

// Send sends the OAuth result through the channel (only once).
func (h *OAuthHandler) Send(result OAuthResult) {
	h.once.Do(func() {
		h.resultChan <- result
		close(h.resultChan)
	})
}

// Result returns the result channel for receiving OAuth flow completion.
//
// Channel will receive exactly one result and then be closed.
func (h *OAuthHandler) Result() <-chan OAuthResult {
	return h.resultChan
}

// callbackCode checks the state parameter and returns the authorization code.
func callbackCode(r *http.Request, state string) (string, error) {
	q := r.URL.Query()
	if state == "" || q.Get("state") != state {
		return "", fmt.Errorf("%w: invalid state parameter", shared.ErrAuthFailed)
	}

	code := q.Get("code")
	if code == "" {
		return "", fmt.Errorf("%w: %s - %s", shared.ErrAuthFailed, q.Get("error"), q.Get("error_description"))
	}
	return code, nil
}

// WebAuth serves /auth/login and /auth/callback for browser sessions.
//
// A successful callback binds the user's refresh token to their Spotify id and sets
// the account cookie. Without an account store the access token itself is set as
// the local fallback cookie.
type WebAuth struct {
	auth     Authenticator
	accounts AccountWriter
	maxAge   time.Duration
	secure   bool
	logger   *log.Logger
}

// NewWebAuth creates the browser login handler. accounts may be nil.
func NewWebAuth(auth Authenticator, accounts AccountWriter, maxAge time.Duration, secure bool, logger *log.Logger) *WebAuth {
	return &WebAuth{
		auth:     auth,
		accounts: accounts,
		maxAge:   maxAge,
		secure:   secure,
		logger:   shared.WithLogger(logger, "component", "auth"),
	}
}

// Routes returns the HTTP routes this handler serves.
func (h *WebAuth) Routes() []string {
	return []string{"/auth/login", "/auth/callback"}
}

func (h *WebAuth) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	switch r.URL.Path {
	case "/auth/login":
		h.login(w, r)
	case "/auth/callback":
		h.callback(w, r)
	default:
		http.NotFound(w, r)
	}
}

func (h *WebAuth) login(w http.ResponseWriter, r *http.Request) {
	state, err := shared.GenerateState()
	if err != nil {
		h.logger.Error("failed to generate state", "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error")
		return
	}

	http.SetCookie(w, h.cookie(stateCookie, state, 10*time.Minute))
	http.Redirect(w, r, h.auth.AuthURL(state), http.StatusFound)
}

func (h *WebAuth) callback(w http.ResponseWriter, r *http.Request) {
	code, err := callbackCode(r, cookieValue(r, stateCookie))
	if err != nil {
		h.logger.Warn("callback rejected", "error", err)
		writeError(w, http.StatusBadRequest, "invalid_callback")
		return
	}
	http.SetCookie(w, h.cookie(stateCookie, "", -1))

	token, err := h.auth.Exchange(r.Context(), code)
	if err != nil {
		h.logger.Warn("code exchange failed", "error", err)
		writeError(w, http.StatusBadGateway, "exchange_failed")
		return
	}

	if h.accounts == nil {
		var ttl time.Duration
		if !token.Expiry.IsZero() {
			ttl = time.Until(token.Expiry)
		}
		http.SetCookie(w, h.cookie(AccessTokenCookie, token.AccessToken, ttl))
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}

	user, err := h.auth.Profile(r.Context(), token.AccessToken)
	if err != nil {
		h.logger.Warn("profile fetch failed", "error", err)
		writeError(w, http.StatusBadGateway, "profile_failed")
		return
	}

	account := &models.UserAccount{ExternalUserID: user.ID, RefreshToken: token.RefreshToken}
	if err := h.accounts.Upsert(r.Context(), account); err != nil {
		h.logger.Error("account upsert failed", "spotify_id", user.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error")
		return
	}

	h.logger.Info("account bound", "spotify_id", user.ID)
	http.SetCookie(w, h.cookie(AccountCookie, user.ID, h.maxAge))
	http.Redirect(w, r, "/", http.StatusFound)
}

// cookie builds an httpOnly cookie. A negative maxAge deletes it.
func (h *WebAuth) cookie(name, value string, maxAge time.Duration) *http.Cookie {
	c := &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteLaxMode,
	}
	switch {
	case maxAge < 0:
		c.MaxAge = -1
	case maxAge > 0:
		c.MaxAge = int(maxAge.Seconds())
	}
	return c
}
