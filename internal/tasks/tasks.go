// package tasks implements long-running library operations against the active Subsonic server.
//
// Operations emit progress updates via channels for non-blocking status reporting to CLI/UI layers.
package tasks

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/subx/internal/services"
	"github.com/desertthunder/subx/internal/shared"
)

// EndpointResult represents the result of fetching data from a single API endpoint.
type EndpointResult struct {
	Endpoint string
	Data     any
	Error    error
}

// DumpResult contains the raw responses of the library endpoints.
type DumpResult struct {
	Server    string           // Display name of the server that answered
	Ping      any              // Ping response
	Artists   any              // Artist index
	Albums    any              // Newest albums
	Playlists any              // Playlists
	Genres    any              // Genres
	Starred   any              // Starred artists, albums and songs
	Errors    []EndpointResult // Failed endpoint fetches
}

// DumpData is the serializable form of a [DumpResult].
type DumpData struct {
	Server    string   `json:"server"`
	Ping      any      `json:"ping"`
	Artists   any      `json:"artists,omitempty"`
	Albums    any      `json:"albums,omitempty"`
	Playlists any      `json:"playlists,omitempty"`
	Genres    any      `json:"genres,omitempty"`
	Starred   any      `json:"starred,omitempty"`
	Errors    []string `json:"errors,omitempty"`
}

// Data converts the result for JSON output.
func (r *DumpResult) Data() DumpData {
	d := DumpData{
		Server:    r.Server,
		Ping:      r.Ping,
		Artists:   r.Artists,
		Albums:    r.Albums,
		Playlists: r.Playlists,
		Genres:    r.Genres,
		Starred:   r.Starred,
	}
	for _, e := range r.Errors {
		d.Errors = append(d.Errors, fmt.Sprintf("%s: %v", e.Endpoint, e.Error))
	}
	return d
}

type endpointOperation struct {
	endpoint string
	params   url.Values
	target   *any
	phase    Phase
	message  string
}

// APIClient performs raw endpoint calls. [services.APIService] implements it.
type APIClient interface {
	Get(ctx context.Context, endpoint string, params url.Values) (*services.APIResponse, error)
}

// Engine runs library tasks. Clients come from the provider so every task targets the server active when
// it starts; the client is pinned to the task's context with [services.WithClient], so api and httpClient
// (which is expected to sign requests) keep using it after a switch.
type Engine struct {
	clients    services.ClientSource
	api        APIClient
	httpClient *http.Client
	logger     *log.Logger
}

// NewEngine creates a new Engine with the provided dependencies.
func NewEngine(clients services.ClientSource, api APIClient, httpClient *http.Client, logger *log.Logger) *Engine {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if logger == nil {
		logger = shared.NopLogger()
	}
	return &Engine{
		clients:    clients,
		api:        api,
		httpClient: httpClient,
		logger:     shared.WithLogger(logger, "component", "tasks"),
	}
}

// sendProgress sends a progress update through the channel without blocking.
func (e *Engine) sendProgress(progress chan<- ProgressUpdate, update ProgressUpdate) {
	if progress == nil {
		return
	}
	select {
	case progress <- update:
	default:
	}
}

// Dump fetches the raw responses of the main library endpoints from the server active when it starts; a
// switch mid-dump does not mix servers. Endpoint failures are collected in [DumpResult.Errors]; only a missing
// server or a canceled ctx fails the whole dump.
func (e *Engine) Dump(ctx context.Context, progress chan<- ProgressUpdate) (*DumpResult, error) {
	if e.api == nil {
		return nil, fmt.Errorf("%w: API client not initialized", shared.ErrServiceDown)
	}

	client, err := e.clients.Get(ctx)
	if err != nil {
		return nil, err
	}
	ctx = services.WithClient(ctx, client)

	result := &DumpResult{Server: client.Profile().DisplayName(), Errors: []EndpointResult{}}
	endpoints := []endpointOperation{
		{endpoint: "ping", target: &result.Ping, phase: FetchPing, message: "Pinging server..."},
		{endpoint: "getArtists", target: &result.Artists, phase: FetchArtists, message: "Fetching artists..."},
		{endpoint: "getAlbumList2", params: url.Values{"type": {"newest"}, "size": {"500"}}, target: &result.Albums, phase: FetchAlbums, message: "Fetching albums..."},
		{endpoint: "getPlaylists", target: &result.Playlists, phase: FetchPlaylists, message: "Fetching playlists..."},
		{endpoint: "getGenres", target: &result.Genres, phase: FetchGenres, message: "Fetching genres..."},
		{endpoint: "getStarred2", target: &result.Starred, phase: FetchStarred, message: "Fetching starred items..."},
	}

	for i, op := range endpoints {
		e.sendProgress(progress, operationUpdate(op, i+1, len(endpoints)))

		resp, err := e.api.Get(ctx, op.endpoint, op.params)
		if err != nil {
			if ctx.Err() != nil {
				return result, ctx.Err()
			}
			result.Errors = append(result.Errors, EndpointResult{Endpoint: op.endpoint, Error: err})
			continue
		}

		data, err := subsonicPayload(resp)
		if err != nil {
			result.Errors = append(result.Errors, EndpointResult{Endpoint: op.endpoint, Data: resp.JSONData, Error: err})
			continue
		}
		*op.target = data
	}

	e.logger.Info("dump complete", "server", result.Server, "errors", len(result.Errors))
	return result, nil
}

// subsonicPayload unwraps the subsonic-response envelope of a raw response.
func subsonicPayload(resp *services.APIResponse) (any, error) {
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: status %d", shared.ErrAPIRequest, resp.StatusCode)
	}
	if !resp.IsJSON {
		return nil, fmt.Errorf("%w: response is not JSON", shared.ErrAPIRequest)
	}

	root, _ := resp.JSONData.(map[string]any)
	body, ok := root["subsonic-response"].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: missing subsonic-response", shared.ErrAPIRequest)
	}
	if status, _ := body["status"].(string); status != "ok" {
		msg := "unknown error"
		if e, ok := body["error"].(map[string]any); ok {
			if m, ok := e["message"].(string); ok {
				msg = m
			}
		}
		return nil, fmt.Errorf("%w: %s", shared.ErrAPIRequest, msg)
	}
	return body, nil
}

// download GETs a resource path of client's server through the engine's HTTP client.
func (e *Engine) download(ctx context.Context, client *services.SubsonicClient, path string) (*http.Response, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, client.ResourceURL(path), nil)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp, nil, fmt.Errorf("%w: failed to read response: %v", shared.ErrNetwork, err)
	}
	if resp.StatusCode != http.StatusOK {
		return resp, body, fmt.Errorf("%w: status %d", shared.ErrAPIRequest, resp.StatusCode)
	}
	return resp, body, nil
}
