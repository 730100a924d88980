package services

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/tidwall/gjson"

	"github.com/desertthunder/keyfinder/internal/models"
	"github.com/desertthunder/keyfinder/internal/music"
	"github.com/desertthunder/keyfinder/internal/shared"
)

const acousticBrainzBaseURL = "https://acousticbrainz.org"

// analysisSchema identifies where the tonal block lives in a high-level document.
type analysisSchema int

const (
	schemaUnknown   analysisSchema = iota
	schemaNested                   // highlevel.tonal
	schemaTonal                    // tonal at the root
	schemaHighLevel                // tonal fields directly under highlevel
)

var schemaRoots = []struct {
	schema analysisSchema
	path   string
}{
	{schemaNested, "highlevel.tonal"},
	{schemaTonal, "tonal"},
	{schemaHighLevel, "highlevel"},
}

func (s analysisSchema) String() string {
	switch s {
	case schemaNested:
		return "highlevel.tonal"
	case schemaTonal:
		return "tonal"
	case schemaHighLevel:
		return "highlevel"
	default:
		return "unknown"
	}
}

// Extraction rules, probed in order within the tonal block. The first present value wins.
var (
	pitchPaths      = []string{"key_key.value", "key_key", "chords_key", "key"}
	scalePaths      = []string{"key_scale.value", "key_scale", "chords_scale", "scale"}
	confidencePaths = []string{"key_key.probability", "key_scale.probability", "key_strength", "strength"}
)

// detectSchema returns the tonal block and which document shape it came from.
func detectSchema(doc gjson.Result) (gjson.Result, analysisSchema) {
	for _, root := range schemaRoots {
		if r := doc.Get(root.path); r.Exists() {
			return r, root.schema
		}
	}
	return gjson.Result{}, schemaUnknown
}

func firstString(block gjson.Result, paths []string) (string, bool) {
	for _, p := range paths {
		r := block.Get(p)
		if r.Type == gjson.String && strings.TrimSpace(r.Str) != "" {
			return r.Str, true
		}
	}
	return "", false
}

// firstConfidence returns the first numeric confidence, dropping values outside [0,1].
func firstConfidence(block gjson.Result, paths []string) *float64 {
	for _, p := range paths {
		r := block.Get(p)

		var (
			f  float64
			ok bool
		)
		switch r.Type {
		case gjson.Number:
			f, ok = r.Num, true
		case gjson.String:
			v, err := strconv.ParseFloat(strings.TrimSpace(r.Str), 64)
			f, ok = v, err == nil
		}
		if !ok {
			continue
		}

		if math.IsNaN(f) || math.IsInf(f, 0) || f < 0 || f > 1 {
			return nil
		}
		return &f
	}
	return nil
}

// DecodeAnalysis extracts key, mode and confidence from a high-level document.
//
// A document without a pitch label returns [shared.ErrAnalysisNotFound]; an
// unrecognised pitch label returns an error wrapping [shared.ErrParseFailure].
func DecodeAnalysis(body []byte) (*models.KeyAnalysis, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("%w: malformed analysis document", shared.ErrParseFailure)
	}

	block, schema := detectSchema(gjson.ParseBytes(body))
	if schema == schemaUnknown {
		return nil, fmt.Errorf("%w: no tonal block", shared.ErrAnalysisNotFound)
	}

	pitch, ok := firstString(block, pitchPaths)
	if !ok {
		return nil, fmt.Errorf("%w: no pitch label under %s", shared.ErrAnalysisNotFound, schema)
	}

	scale, ok := firstString(block, scalePaths)
	if !ok {
		scale = "major"
	}

	key, mode, err := music.ParseKey(pitch, scale)
	if err != nil {
		return nil, err
	}

	return &models.KeyAnalysis{
		Key:        key,
		Mode:       mode,
		Confidence: firstConfidence(block, confidencePaths),
	}, nil
}

// AcousticBrainzService fetches high-level analysis documents.
type AcousticBrainzService struct {
	api    *APIClient
	logger *log.Logger
}

// NewAcousticBrainzService creates an analysis client from config.
func NewAcousticBrainzService(cfg shared.AcousticBrainzConfig, client *http.Client, logger *log.Logger) *AcousticBrainzService {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = acousticBrainzBaseURL
	}

	return &AcousticBrainzService{
		api:    NewAPIClient("acousticbrainz", baseURL, cfg.UserAgent, client),
		logger: shared.WithLogger(logger, "component", "acousticbrainz"),
	}
}

func (s *AcousticBrainzService) Name() string {
	return "AcousticBrainz"
}

// HighLevel fetches and decodes the analysis for a MusicBrainz recording id.
func (s *AcousticBrainzService) HighLevel(ctx context.Context, mbid string) (*models.KeyAnalysis, error) {
	if mbid == "" {
		return nil, fmt.Errorf("%w: recording id", shared.ErrMissingArgument)
	}

	resp, err := s.api.Get(ctx, "/api/v1/"+url.PathEscape(mbid)+"/high-level", nil, nil)
	if err != nil {
		return nil, err
	}
	if !resp.OK() {
		return nil, &shared.StatusError{Service: "acousticbrainz", StatusCode: resp.StatusCode}
	}

	analysis, err := DecodeAnalysis(resp.Body)
	if err != nil {
		s.logger.Debug("analysis not usable", "mbid", mbid, "err", err)
		return nil, err
	}

	s.logger.Debug("analysis decoded", "mbid", mbid, "key", analysis.Key, "mode", analysis.Mode)
	return analysis, nil
}
