package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/desertthunder/keyfinder/internal/shared"
)

// APIClient performs JSON GET requests against a single upstream base URL.
type APIClient struct {
	service    string
	baseURL    string
	userAgent  string
	httpClient *http.Client
}

// NewAPIClient creates a client for the named service.
//
// A nil http client falls back to [http.DefaultClient].
func NewAPIClient(service, baseURL, userAgent string, client *http.Client) *APIClient {
	if client == nil {
		client = http.DefaultClient
	}

	return &APIClient{
		service:    service,
		baseURL:    baseURL,
		userAgent:  userAgent,
		httpClient: client,
	}
}

// APIResponse represents a raw API response with status and body.
type APIResponse struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
}

// OK reports whether the status is 2xx.
func (r *APIResponse) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Get performs a GET request to path with the given query and returns the raw response.
//
// Non-2xx statuses are not errors here; see [APIClient.GetJSON].
func (a *APIClient) Get(ctx context.Context, path string, query url.Values, header http.Header) (*APIResponse, error) {
	fullURL := a.baseURL + path
	if len(query) > 0 {
		fullURL += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Accept", "application/json")
	if a.userAgent != "" {
		req.Header.Set("User-Agent", a.userAgent)
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s request failed: %w", a.service, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	return &APIResponse{
		StatusCode: resp.StatusCode,
		Headers:    resp.Header,
		Body:       body,
	}, nil
}

// GetJSON performs a GET and decodes a 2xx body into result.
//
// Other statuses return a [*shared.StatusError].
func (a *APIClient) GetJSON(ctx context.Context, path string, query url.Values, header http.Header, result any) error {
	resp, err := a.Get(ctx, path, query, header)
	if err != nil {
		return err
	}

	if !resp.OK() {
		return &shared.StatusError{Service: a.service, StatusCode: resp.StatusCode}
	}

	if result != nil {
		if err := json.Unmarshal(resp.Body, result); err != nil {
			return fmt.Errorf("failed to decode %s response: %w", a.service, err)
		}
	}
	return nil
}

func bearer(token string) http.Header {
	return http.Header{"Authorization": {"Bearer " + token}}
}
