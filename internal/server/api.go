package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/keyfinder/internal/models"
	"github.com/desertthunder/keyfinder/internal/music"
	"github.com/desertthunder/keyfinder/internal/services"
	"github.com/desertthunder/keyfinder/internal/shared"
	"github.com/desertthunder/keyfinder/internal/tasks"
)

const (
	// AccountCookie holds the Spotify user id bound to a stored refresh token.
	AccountCookie = "user_id"
	// LegacyAccountCookie is accepted when AccountCookie is absent.
	LegacyAccountCookie = "spotifyId"
	// AccessTokenCookie holds a client-side access token used as the local fallback.
	AccessTokenCookie = "access_token"
)

// KeyService resolves track keys.
type KeyService interface {
	Lookup(ctx context.Context, trackID string) *models.KeyRecord
	Resolve(ctx context.Context, trackID string, in models.CredentialInputs) (*tasks.Resolution, error)
}

// FeatureService fetches audio features in bulk.
type FeatureService interface {
	FetchFeatures(ctx context.Context, trackIDs []string, in models.CredentialInputs) (map[string]*models.FeatureRecord, error)
}

// ReportService builds playlist reports.
type ReportService interface {
	Report(ctx context.Context, playlistID string, in models.CredentialInputs, opts tasks.ReportOpts, progress chan<- tasks.ProgressUpdate) (*tasks.PlaylistReport, error)
}

// UserSource reads data that belongs to the authenticated user.
type UserSource interface {
	Profile(ctx context.Context, token string) (*services.SpotifyUser, error)
	Playlists(ctx context.Context, token string) ([]models.Playlist, error)
}

// API serves the JSON endpoints.
//
// Any collaborator may be nil; its routes then answer 503.
type API struct {
	Keys     KeyService
	Features FeatureService
	Reports  ReportService
	Users    UserSource
	Creds    tasks.CredentialResolver
	logger   *log.Logger
}

// NewAPI creates an API with a component logger.
func NewAPI(logger *log.Logger) *API {
	return &API{logger: shared.WithLogger(logger, "component", "api")}
}

// Register adds the API routes to router.
func (a *API) Register(router Router) {
	router.Handle(http.MethodGet, "/healthz", http.HandlerFunc(a.health))
	router.Handle(http.MethodGet, "/api/keys/{id}", http.HandlerFunc(a.key))
	router.Handle(http.MethodGet, "/api/audio-features", http.HandlerFunc(a.features))
	router.Handle(http.MethodGet, "/api/audio-features/{id}", http.HandlerFunc(a.feature))
	router.Handle(http.MethodGet, "/api/playlists", http.HandlerFunc(a.playlists))
	router.Handle(http.MethodGet, "/api/playlists/{id}/tracks", http.HandlerFunc(a.playlistTracks))
	router.Handle(http.MethodGet, "/api/me", http.HandlerFunc(a.me))
}

// CredentialInputs reads the account key and local access token from request cookies.
func CredentialInputs(r *http.Request) models.CredentialInputs {
	in := models.CredentialInputs{
		AccountKey:       cookieValue(r, AccountCookie),
		LocalAccessToken: cookieValue(r, AccessTokenCookie),
	}
	if in.AccountKey == "" {
		in.AccountKey = cookieValue(r, LegacyAccountCookie)
	}
	return in
}

func cookieValue(r *http.Request, name string) string {
	c, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return c.Value
}

func (a *API) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

type keyResponse struct {
	OK     bool `json:"ok"`
	Cached bool `json:"cached"`
	*models.KeyRecord
	Pitch string `json:"pitch"`
}

func newKeyResponse(rec *models.KeyRecord, cached bool) keyResponse {
	return keyResponse{OK: true, Cached: cached, KeyRecord: rec, Pitch: music.PitchName(rec.Key, rec.Mode)}
}

// key answers from the cache before looking at credentials, so cached keys are public.
func (a *API) key(w http.ResponseWriter, r *http.Request) {
	if a.Keys == nil {
		writeError(w, http.StatusServiceUnavailable, "unavailable")
		return
	}

	id := r.PathValue("id")
	if rec := a.Keys.Lookup(r.Context(), id); rec != nil {
		writeJSON(w, http.StatusOK, newKeyResponse(rec, true))
		return
	}

	in := CredentialInputs(r)
	if in.Empty() {
		writeError(w, http.StatusUnauthorized, "not_authenticated")
		return
	}

	res, err := a.Keys.Resolve(r.Context(), id, in)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if res == nil {
		writeError(w, http.StatusNotFound, "not_found")
		return
	}
	writeJSON(w, http.StatusOK, newKeyResponse(res.Record, res.Cached))
}

func (a *API) features(w http.ResponseWriter, r *http.Request) {
	ids := splitIDs(r.URL.Query().Get("ids"))
	if len(ids) == 0 {
		writeError(w, http.StatusBadRequest, "missing_ids")
		return
	}
	a.writeFeatures(w, r, ids, false)
}

func (a *API) feature(w http.ResponseWriter, r *http.Request) {
	a.writeFeatures(w, r, []string{r.PathValue("id")}, true)
}

func (a *API) writeFeatures(w http.ResponseWriter, r *http.Request, ids []string, single bool) {
	if a.Features == nil {
		writeError(w, http.StatusServiceUnavailable, "unavailable")
		return
	}

	in := CredentialInputs(r)
	if in.Empty() {
		writeError(w, http.StatusUnauthorized, "not_authenticated")
		return
	}

	found, err := a.Features.FetchFeatures(r.Context(), ids, in)
	if err != nil {
		a.fail(w, r, err)
		return
	}

	if single {
		f := found[ids[0]]
		if f == nil {
			writeError(w, http.StatusNotFound, "not_found")
			return
		}
		writeJSON(w, http.StatusOK, f)
		return
	}

	out := make([]*models.FeatureRecord, len(ids))
	for i, id := range ids {
		out[i] = found[id]
	}
	writeJSON(w, http.StatusOK, map[string]any{"audio_features": out})
}

func (a *API) playlists(w http.ResponseWriter, r *http.Request) {
	token, ok := a.userToken(w, r)
	if !ok {
		return
	}

	lists, err := a.Users.Playlists(r.Context(), token)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": lists})
}

func (a *API) playlistTracks(w http.ResponseWriter, r *http.Request) {
	if a.Reports == nil {
		writeError(w, http.StatusServiceUnavailable, "unavailable")
		return
	}

	in := CredentialInputs(r)
	if in.Empty() {
		writeError(w, http.StatusUnauthorized, "not_authenticated")
		return
	}

	opts := tasks.ReportOpts{WithKeys: truthy(r.URL.Query().Get("keys"))}
	report, err := a.Reports.Report(r.Context(), r.PathValue("id"), in, opts, nil)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (a *API) me(w http.ResponseWriter, r *http.Request) {
	token, ok := a.userToken(w, r)
	if !ok {
		return
	}

	user, err := a.Users.Profile(r.Context(), token)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// userToken resolves a user credential or writes the error response.
func (a *API) userToken(w http.ResponseWriter, r *http.Request) (string, bool) {
	if a.Users == nil || a.Creds == nil {
		writeError(w, http.StatusServiceUnavailable, "unavailable")
		return "", false
	}

	in := CredentialInputs(r)
	if in.Empty() {
		writeError(w, http.StatusUnauthorized, "not_authenticated")
		return "", false
	}

	token, err := a.Creds.Resolve(r.Context(), in)
	if err != nil {
		a.fail(w, r, err)
		return "", false
	}
	return token.Value, true
}

// fail maps an error onto a status code.
func (a *API) fail(w http.ResponseWriter, r *http.Request, err error) {
	var statusErr *shared.StatusError
	switch {
	case errors.Is(err, shared.ErrMissingArgument), errors.Is(err, shared.ErrInvalidArgument):
		writeError(w, http.StatusBadRequest, "invalid_request")
	case errors.Is(err, shared.ErrNotAuthenticated):
		writeError(w, http.StatusUnauthorized, "not_authenticated")
	case errors.Is(err, shared.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found")
	case errors.Is(err, shared.ErrMissingConfig), errors.Is(err, shared.ErrServiceUnavailable):
		writeError(w, http.StatusServiceUnavailable, "unavailable")
	case errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusUnauthorized:
		writeError(w, http.StatusUnauthorized, "not_authenticated")
	case errors.As(err, &statusErr):
		writeError(w, http.StatusBadGateway, "upstream_error")
	default:
		a.logger.Error("request failed", "path", r.URL.Path, "request_id", RequestID(r.Context()), "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error")
	}
}

func splitIDs(raw string) []string {
	var ids []string
	for _, id := range strings.Split(raw, ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

func truthy(v string) bool {
	switch strings.ToLower(v) {
	case "1", "true", "yes":
		return true
	}
	return false
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]any{"ok": false, "error": code})
}
