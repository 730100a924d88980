// Spotify Web API client
//
// Response types based on https://developer.spotify.com/documentation/web-api/reference/
package services

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/desertthunder/keyfinder/internal/models"
	"github.com/desertthunder/keyfinder/internal/shared"
)

const (
	spotifyAuthURL  = "https://accounts.spotify.com/authorize"
	spotifyTokenURL = "https://accounts.spotify.com/api/token"
	spotifyBaseURL  = "https://api.spotify.com/v1"

	// MaxFeatureBatch is the largest id list the audio-features endpoint accepts.
	MaxFeatureBatch = 100
)

// SpotifyUser represents a Spotify user profile.
type SpotifyUser struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Email       string `json:"email"`
	Country     string `json:"country"`
	Product     string `json:"product"`
}

// SpotifyArtist represents a simplified Spotify artist.
type SpotifyArtist struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// SpotifyTrack represents a Spotify track.
type SpotifyTrack struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Artists    []SpotifyArtist `json:"artists"`
	DurationMS int64           `json:"duration_ms"`
	URI        string          `json:"uri"`
}

// Metadata converts the track into the fields used for catalog search.
//
// Only the first credited artist is used.
func (t *SpotifyTrack) Metadata() *models.TrackMetadata {
	meta := &models.TrackMetadata{ID: t.ID, Title: t.Name, DurationMs: t.DurationMS}
	if len(t.Artists) > 0 {
		meta.Artist = t.Artists[0].Name
	}
	return meta
}

type owner struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
}

type simplePlaylistTracks struct {
	Total int `json:"total"`
}

// SpotifySimplePlaylist represents a simplified playlist object (used in lists).
type SpotifySimplePlaylist struct {
	ID     string               `json:"id"`
	Name   string               `json:"name"`
	Owner  owner                `json:"owner"`
	Public bool                 `json:"public"`
	Tracks simplePlaylistTracks `json:"tracks"`
}

// SpotifyPaginatedPlaylists represents a paginated response of playlists.
type SpotifyPaginatedPlaylists struct {
	Items  []SpotifySimplePlaylist `json:"items"`
	Total  int                     `json:"total"`
	Limit  int                     `json:"limit"`
	Offset int                     `json:"offset"`
	Next   *string                 `json:"next"`
}

// SpotifyPlaylistTrack represents a track within a playlist context.
//
// Track is nil for removed or local items.
type SpotifyPlaylistTrack struct {
	AddedAt string        `json:"added_at"`
	Track   *SpotifyTrack `json:"track"`
}

// SpotifyPaginatedPlaylistTracks is one page of /playlists/{id}/tracks.
type SpotifyPaginatedPlaylistTracks struct {
	Items  []SpotifyPlaylistTrack `json:"items"`
	Total  int                    `json:"total"`
	Limit  int                    `json:"limit"`
	Offset int                    `json:"offset"`
	Next   *string                `json:"next"`
}

// SpotifyService wraps the Spotify Web API and accounts service.
//
// Bearer tokens are supplied per call so one service can serve many users.
type SpotifyService struct {
	config     *oauth2.Config
	service    *clientcredentials.Config
	api        *APIClient
	httpClient *http.Client
}

// NewSpotifyService creates a Spotify client from the credentials config.
//
// A nil http client falls back to [http.DefaultClient].
func NewSpotifyService(cfg shared.SpotifyConfig, client *http.Client) (*SpotifyService, error) {
	if cfg.ClientID == "" {
		return nil, fmt.Errorf("%w: spotify client_id", shared.ErrMissingCredentials)
	}
	if cfg.ClientSecret == "" {
		return nil, fmt.Errorf("%w: spotify client_secret", shared.ErrMissingCredentials)
	}
	if client == nil {
		client = http.DefaultClient
	}

	tokenURL := cfg.TokenURL
	if tokenURL == "" {
		tokenURL = spotifyTokenURL
	}
	apiURL := strings.TrimRight(cfg.APIURL, "/")
	if apiURL == "" {
		apiURL = spotifyBaseURL
	}
	redirectURI := cfg.RedirectURI
	if redirectURI == "" {
		redirectURI = "http://127.0.0.1:3000/callback"
	}

	return &SpotifyService{
		config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  redirectURI,
			Scopes: []string{
				"user-read-private",
				"user-read-email",
				"playlist-read-private",
				"playlist-read-collaborative",
			},
			Endpoint: oauth2.Endpoint{
				AuthURL:   spotifyAuthURL,
				TokenURL:  tokenURL,
				AuthStyle: oauth2.AuthStyleInHeader,
			},
		},
		service: &clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     tokenURL,
			AuthStyle:    oauth2.AuthStyleInHeader,
		},
		api:        NewAPIClient("spotify", apiURL, "", client),
		httpClient: client,
	}, nil
}

func (s *SpotifyService) Name() string {
	return "Spotify"
}

// AuthURL returns the OAuth2 authorization URL for user login.
func (s *SpotifyService) AuthURL(state string) string {
	return s.config.AuthCodeURL(state, oauth2.AccessTypeOffline)
}

// withClient makes the oauth2 package use our http client for token endpoints.
func (s *SpotifyService) withClient(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, s.httpClient)
}

// Exchange trades an authorization code for an access and refresh token.
func (s *SpotifyService) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	token, err := s.config.Exchange(s.withClient(ctx), code)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", shared.ErrAuthFailed, err)
	}
	return token, nil
}

// Refresh exchanges a stored refresh token for a fresh access token.
//
// The returned token's RefreshToken is the rotated value when Spotify issued one,
// otherwise it echoes the input.
func (s *SpotifyService) Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	if refreshToken == "" {
		return nil, shared.ErrNoRefreshToken
	}

	src := s.config.TokenSource(s.withClient(ctx), &oauth2.Token{RefreshToken: refreshToken})
	token, err := src.Token()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", shared.ErrRefreshFailed, err)
	}
	return token, nil
}

// ClientCredentials requests an application-level token with no user context.
func (s *SpotifyService) ClientCredentials(ctx context.Context) (*oauth2.Token, error) {
	token, err := s.service.Token(s.withClient(ctx))
	if err != nil {
		return nil, fmt.Errorf("%w: client credentials: %w", shared.ErrAuthFailed, err)
	}
	return token, nil
}

// Profile retrieves the profile of the token's owner.
func (s *SpotifyService) Profile(ctx context.Context, token string) (*SpotifyUser, error) {
	var user SpotifyUser
	if err := s.api.GetJSON(ctx, "/me", nil, bearer(token), &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// Track retrieves a single track by ID.
func (s *SpotifyService) Track(ctx context.Context, token, trackID string) (*SpotifyTrack, error) {
	var track SpotifyTrack
	endpoint := "/tracks/" + url.PathEscape(trackID)
	if err := s.api.GetJSON(ctx, endpoint, nil, bearer(token), &track); err != nil {
		return nil, err
	}
	return &track, nil
}

// TrackMetadata retrieves the title, first artist and duration of a track.
func (s *SpotifyService) TrackMetadata(ctx context.Context, token, trackID string) (*models.TrackMetadata, error) {
	track, err := s.Track(ctx, token, trackID)
	if err != nil {
		return nil, err
	}
	return track.Metadata(), nil
}

// AudioFeatures retrieves audio features for up to [MaxFeatureBatch] tracks.
//
// Unindexed ids come back as null entries and are skipped.
// Non-2xx responses return a [*shared.StatusError].
func (s *SpotifyService) AudioFeatures(ctx context.Context, token string, trackIDs []string) ([]*models.FeatureRecord, error) {
	if len(trackIDs) == 0 {
		return nil, fmt.Errorf("%w: no track IDs provided", shared.ErrMissingArgument)
	}
	if len(trackIDs) > MaxFeatureBatch {
		return nil, fmt.Errorf("%w: maximum %d track IDs allowed", shared.ErrInvalidArgument, MaxFeatureBatch)
	}

	var response struct {
		AudioFeatures []*models.FeatureRecord `json:"audio_features"`
	}

	query := url.Values{"ids": {strings.Join(trackIDs, ",")}}
	if err := s.api.GetJSON(ctx, "/audio-features", query, bearer(token), &response); err != nil {
		return nil, err
	}

	features := make([]*models.FeatureRecord, 0, len(response.AudioFeatures))
	for _, f := range response.AudioFeatures {
		if f != nil && f.ID != "" {
			features = append(features, f)
		}
	}
	return features, nil
}

// UserPlaylists retrieves one page of the current user's playlists.
func (s *SpotifyService) UserPlaylists(ctx context.Context, token string, limit, offset int) (*SpotifyPaginatedPlaylists, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 50 {
		limit = 50
	}

	query := url.Values{"limit": {strconv.Itoa(limit)}, "offset": {strconv.Itoa(offset)}}

	var response SpotifyPaginatedPlaylists
	if err := s.api.GetJSON(ctx, "/me/playlists", query, bearer(token), &response); err != nil {
		return nil, err
	}
	return &response, nil
}

// Playlists retrieves every playlist of the current user.
func (s *SpotifyService) Playlists(ctx context.Context, token string) ([]models.Playlist, error) {
	var all []models.Playlist
	limit := 50
	offset := 0

	for {
		response, err := s.UserPlaylists(ctx, token, limit, offset)
		if err != nil {
			return nil, err
		}

		for _, sp := range response.Items {
			all = append(all, models.Playlist{
				ID:         sp.ID,
				Name:       sp.Name,
				Owner:      sp.Owner.DisplayName,
				TrackCount: sp.Tracks.Total,
				Public:     sp.Public,
			})
		}

		if response.Next == nil || len(response.Items) == 0 {
			break
		}
		offset += limit
	}

	return all, nil
}

// PlaylistTracks retrieves every track of a playlist, 100 per page.
//
// Removed and local items without a track id are skipped.
func (s *SpotifyService) PlaylistTracks(ctx context.Context, token, playlistID string) ([]models.PlaylistTrack, error) {
	var tracks []models.PlaylistTrack
	limit := 100
	offset := 0
	endpoint := "/playlists/" + url.PathEscape(playlistID) + "/tracks"

	for {
		query := url.Values{"limit": {strconv.Itoa(limit)}, "offset": {strconv.Itoa(offset)}}

		var page SpotifyPaginatedPlaylistTracks
		if err := s.api.GetJSON(ctx, endpoint, query, bearer(token), &page); err != nil {
			return nil, err
		}

		for _, item := range page.Items {
			if item.Track == nil || item.Track.ID == "" {
				continue
			}
			tracks = append(tracks, models.PlaylistTrack{
				TrackMetadata: *item.Track.Metadata(),
				AddedAt:       item.AddedAt,
			})
		}

		if page.Next == nil || len(page.Items) == 0 {
			break
		}
		offset += limit
	}

	return tracks, nil
}
