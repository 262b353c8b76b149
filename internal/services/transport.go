package services

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/subx/internal/shared"
)

// ArtworkCacheControl is the cache policy forced onto artwork requests and responses.
const ArtworkCacheControl = "public, max-age=604800, no-transform"

// cacheHeaders are the cache directives removed from outgoing requests.
var cacheHeaders = []string{"Cache-Control", "Pragma", "Expires", "If-Modified-Since", "If-None-Match"}

// Step is one named rewrite in a [Pipeline]. Rewrite must not modify its input; it returns a new request.
type Step struct {
	Name    string
	Rewrite func(req *http.Request) (*http.Request, error)
}

// Pipeline applies steps in order.
type Pipeline []Step

// Apply runs every step over req and returns the final request.
func (p Pipeline) Apply(req *http.Request) (*http.Request, error) {
	out := req
	for _, step := range p {
		next, err := step.Rewrite(out)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", step.Name, err)
		}
		out = next
	}
	return out, nil
}

// Names lists the step names in order.
func (p Pipeline) Names() []string {
	names := make([]string, 0, len(p))
	for _, step := range p {
		names = append(names, step.Name)
	}
	return names
}

// URLSigner signs a URL for the active server. [Provider] implements it.
type URLSigner interface {
	AppendAuth(ctx context.Context, rawURL string) (string, error)
}

// DefaultPipeline strips cache headers, applies the artwork cache policy and signs the URL last, so the
// token is part of the URL used both for the network call and for any response cache key.
func DefaultPipeline(signer URLSigner) Pipeline {
	return Pipeline{StripCacheHeaders(), ApplyArtworkCachePolicy(), SignURL(signer)}
}

// StripCacheHeaders removes inbound cache directives.
func StripCacheHeaders() Step {
	return Step{Name: "strip-cache-headers", Rewrite: func(req *http.Request) (*http.Request, error) {
		out := req.Clone(req.Context())
		for _, h := range cacheHeaders {
			out.Header.Del(h)
		}
		return out, nil
	}}
}

// ApplyArtworkCachePolicy sets [ArtworkCacheControl] on artwork requests and leaves others alone.
func ApplyArtworkCachePolicy() Step {
	return Step{Name: "artwork-cache-policy", Rewrite: func(req *http.Request) (*http.Request, error) {
		if !IsArtwork(req.URL) {
			return req, nil
		}
		out := req.Clone(req.Context())
		out.Header.Set("Cache-Control", ArtworkCacheControl)
		return out, nil
	}}
}

// SignURL replaces the request URL with its signed form.
func SignURL(signer URLSigner) Step {
	return Step{Name: "sign-url", Rewrite: func(req *http.Request) (*http.Request, error) {
		signed, err := signer.AppendAuth(req.Context(), req.URL.String())
		if err != nil {
			return nil, err
		}
		u, err := url.Parse(signed)
		if err != nil {
			return nil, fmt.Errorf("%w: signed url: %v", shared.ErrMalformedPath, err)
		}

		out := req.Clone(req.Context())
		out.URL = u
		out.Host = u.Host
		return out, nil
	}}
}

// IsArtwork reports whether u addresses the getCoverArt endpoint.
func IsArtwork(u *url.URL) bool {
	if u == nil {
		return false
	}
	return strings.TrimSuffix(path.Base(u.Path), ".view") == "getCoverArt"
}

// Transport is an [http.RoundTripper] that runs a [Pipeline] before handing the request to Base.
//
// Artwork responses have their cache headers replaced with [ArtworkCacheControl] and lose Expires.
type Transport struct {
	Base     http.RoundTripper
	Pipeline Pipeline
	logger   *log.Logger
}

// NewTransport wraps base (http.DefaultTransport when nil) with the default pipeline.
func NewTransport(base http.RoundTripper, signer URLSigner, logger *log.Logger) *Transport {
	if base == nil {
		base = http.DefaultTransport
	}
	if logger == nil {
		logger = shared.NopLogger()
	}
	return &Transport{Base: base, Pipeline: DefaultPipeline(signer), logger: shared.WithLogger(logger, "component", "transport")}
}

// RoundTrip implements [http.RoundTripper].
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	out, err := t.Pipeline.Apply(req)
	if err != nil {
		if req.Body != nil {
			req.Body.Close()
		}
		return nil, err
	}

	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}
	resp, err := base.RoundTrip(out)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", shared.ErrNetwork, err)
	}

	if IsArtwork(out.URL) {
		resp.Header.Del("Expires")
		resp.Header.Del("Pragma")
		resp.Header.Set("Cache-Control", ArtworkCacheControl)
	}
	if t.logger != nil {
		t.logger.Debug("round trip", "path", out.URL.Path, "status", resp.StatusCode)
	}
	return resp, nil
}

// NewHTTPClient returns an http.Client using a [Transport] over base.
func NewHTTPClient(base http.RoundTripper, signer URLSigner, logger *log.Logger) *http.Client {
	return &http.Client{Transport: NewTransport(base, signer, logger)}
}
