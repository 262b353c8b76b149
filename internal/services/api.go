// Raw API access for debugging Subsonic endpoints
package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

// ClientSource resolves the client for the active server. [Provider] implements it.
type ClientSource interface {
	Get(ctx context.Context) (*SubsonicClient, error)
}

// APIService performs raw GET requests against the active server through a signing [Transport].
type APIService struct {
	clients    ClientSource
	httpClient *http.Client
}

// NewAPIService creates a raw API service. httpClient must sign requests, typically via [NewHTTPClient].
func NewAPIService(clients ClientSource, httpClient *http.Client) *APIService {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &APIService{clients: clients, httpClient: httpClient}
}

// APIResponse represents a raw API response with status and body.
type APIResponse struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
	IsJSON     bool
	JSONData   any
}

// Get calls endpoint (e.g. "getGenres") with params on the active server and returns the raw response.
func (a *APIService) Get(ctx context.Context, endpoint string, params url.Values) (*APIResponse, error) {
	client, err := a.clients.Get(ctx)
	if err != nil {
		return nil, err
	}

	resource := endpoint
	if len(params) > 0 {
		resource += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, client.ResourceURL(resource), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", unwrapURLError(err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	apiResp := &APIResponse{
		StatusCode: resp.StatusCode,
		Headers:    resp.Header,
		Body:       body,
	}

	var jsonData any
	if err := json.Unmarshal(body, &jsonData); err == nil {
		apiResp.IsJSON = true
		apiResp.JSONData = jsonData
	}

	return apiResp, nil
}
