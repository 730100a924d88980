package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"
	"golang.org/x/text/unicode/norm"
	"golang.org/x/time/rate"

	"github.com/desertthunder/keyfinder/internal/models"
	"github.com/desertthunder/keyfinder/internal/shared"
)

const (
	musicBrainzBaseURL = "https://musicbrainz.org"
	defaultSearchLimit = 5
)

type mbRecording struct {
	ID     string  `json:"id"`
	Score  float64 `json:"score"`
	Length int64   `json:"length"`
	Title  string  `json:"title"`
}

type mbSearchResponse struct {
	Count      int           `json:"count"`
	Recordings []mbRecording `json:"recordings"`
}

// MusicBrainzService searches the MusicBrainz recording index.
//
// Requests are throttled by a shared limiter to honour the service's rate policy.
type MusicBrainzService struct {
	api     *APIClient
	limiter *rate.Limiter
	limit   int
	logger  *log.Logger
}

// NewMusicBrainzService creates a search client from config.
//
// A non-positive requests_per_second disables throttling.
func NewMusicBrainzService(cfg shared.MusicBrainzConfig, client *http.Client, logger *log.Logger) *MusicBrainzService {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = musicBrainzBaseURL
	}

	limit := cfg.Limit
	if limit <= 0 {
		limit = defaultSearchLimit
	}

	every := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		every = rate.Limit(cfg.RequestsPerSecond)
	}

	return &MusicBrainzService{
		api:     NewAPIClient("musicbrainz", baseURL, cfg.UserAgent, client),
		limiter: rate.NewLimiter(every, 1),
		limit:   limit,
		logger:  shared.WithLogger(logger, "component", "musicbrainz"),
	}
}

func (s *MusicBrainzService) Name() string {
	return "MusicBrainz"
}

// Query builds the Lucene query for an exact-phrase title and artist match.
//
// Both terms are NFC-normalised so composed and decomposed spellings search alike.
func Query(title, artist string) string {
	return fmt.Sprintf(`recording:"%s" AND artist:"%s"`, escapePhrase(title), escapePhrase(artist))
}

func escapePhrase(s string) string {
	s = norm.NFC.String(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `"`, `\"`)
}

// Candidates runs the recording search and returns the matches in service order.
func (s *MusicBrainzService) Candidates(ctx context.Context, title, artist string) ([]models.CandidateMatch, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	query := url.Values{
		"query": {Query(title, artist)},
		"fmt":   {"json"},
		"limit": {strconv.Itoa(s.limit)},
	}

	var response mbSearchResponse
	if err := s.api.GetJSON(ctx, "/ws/2/recording/", query, nil, &response); err != nil {
		return nil, err
	}

	candidates := make([]models.CandidateMatch, 0, len(response.Recordings))
	for _, r := range response.Recordings {
		candidates = append(candidates, models.CandidateMatch{
			ExternalID: r.ID,
			Score:      r.Score,
			DurationMs: r.Length,
		})
	}
	return candidates, nil
}

// Search returns the MusicBrainz recording id that best matches the track.
//
// durationMs of zero means unknown. An empty result returns [shared.ErrRecordingNotFound].
func (s *MusicBrainzService) Search(ctx context.Context, title, artist string, durationMs int64) (string, error) {
	candidates, err := s.Candidates(ctx, title, artist)
	if err != nil {
		return "", err
	}

	best, ok := RankCandidates(candidates, durationMs)
	if !ok || best.ExternalID == "" {
		s.logger.Debug("no recording matched", "title", title, "artist", artist)
		return "", fmt.Errorf("%w: %s by %s", shared.ErrRecordingNotFound, title, artist)
	}

	s.logger.Debug("recording matched", "mbid", best.ExternalID, "score", best.Score, "candidates", len(candidates))
	return best.ExternalID, nil
}

// RankCandidates picks the best candidate in service order.
//
// Without a target duration the first candidate wins. With one, a strictly higher
// score wins and equal scores go to the smaller duration delta; a candidate without
// a duration never wins a duration tie-break.
func RankCandidates(candidates []models.CandidateMatch, targetMs int64) (models.CandidateMatch, bool) {
	if len(candidates) == 0 {
		return models.CandidateMatch{}, false
	}

	best := candidates[0]
	if targetMs <= 0 {
		return best, true
	}

	bestDelta := durationDelta(best, targetMs)
	for _, c := range candidates[1:] {
		delta := durationDelta(c, targetMs)
		if c.Score > best.Score || (c.Score == best.Score && delta < bestDelta) {
			best, bestDelta = c, delta
		}
	}
	return best, true
}

func durationDelta(c models.CandidateMatch, targetMs int64) int64 {
	if c.DurationMs <= 0 {
		return math.MaxInt64
	}
	d := c.DurationMs - targetMs
	if d < 0 {
		d = -d
	}
	return d
}

// IsNotFound reports whether err means the lookup legitimately came back empty.
func IsNotFound(err error) bool {
	return errors.Is(err, shared.ErrNotFound) || errors.Is(err, shared.ErrParseFailure)
}
