// Package auth signs Subsonic resource paths for a server profile.
//
// Password profiles are signed with the salted token scheme (t = md5(password + s)), sampling a fresh salt from a
// [NonceSource] on every call, so two signatures for the same path differ while both authenticate. API-key
// profiles send the OpenSubsonic apiKey parameter unsalted; such URLs hold the key and must be treated as secrets.
package auth

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/desertthunder/subx/internal/models"
	"github.com/desertthunder/subx/internal/shared"
	"github.com/google/uuid"
)

const (
	DefaultClientID   = "subx"
	DefaultAPIVersion = "1.16.1"

	apiRoot = "/rest/"
)

// authParams are the query parameters owned by the signer. Stale values are removed before re-signing.
var authParams = []string{"u", "p", "t", "s", "apiKey", "v", "c", "f"}

// NonceSource supplies the per-call salt.
type NonceSource interface {
	Nonce() (string, error)
}

// NonceFunc adapts a function to [NonceSource].
type NonceFunc func() (string, error)

func (f NonceFunc) Nonce() (string, error) { return f() }

// UUIDNonce draws salts from random UUIDs.
var UUIDNonce NonceSource = NonceFunc(func() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	return strings.ReplaceAll(id.String(), "-", "")[:16], nil
})

// SignedRequest is a derived, never-persisted signature of one resource path.
type SignedRequest struct {
	Path   string
	Params url.Values
	Salt   string
	URL    string
}

// Signer builds [SignedRequest] values.
type Signer struct {
	clientID   string
	apiVersion string
	nonces     NonceSource
}

// NewSigner creates a signer. Empty clientID or apiVersion fall back to defaults; a nil nonce source uses [UUIDNonce].
func NewSigner(clientID, apiVersion string, nonces NonceSource) *Signer {
	if clientID == "" {
		clientID = DefaultClientID
	}
	if apiVersion == "" {
		apiVersion = DefaultAPIVersion
	}
	if nonces == nil {
		nonces = UUIDNonce
	}
	return &Signer{clientID: clientID, apiVersion: apiVersion, nonces: nonces}
}

// Sign resolves path against the profile's API root (<base>/rest/) and appends fresh auth parameters.
//
// path may carry its own query (e.g. "stream?id=1"). Absolute URLs, rooted paths and paths that climb out
// of the API root fail with [shared.ErrMalformedPath].
func (s *Signer) Sign(profile *models.ServerProfile, resource string) (*SignedRequest, error) {
	if profile == nil {
		return nil, shared.ErrNoActiveServer
	}

	ref, err := parseRelative(resource)
	if err != nil {
		return nil, err
	}
	return s.sign(profile, ref.Path, ref.Query())
}

// SignURL re-signs a URL produced for profile, replacing any stale auth parameters.
//
// rawURL may be absolute, in which case it must point under the profile's API root, or a relative resource path.
func (s *Signer) SignURL(profile *models.ServerProfile, rawURL string) (*SignedRequest, error) {
	if profile == nil {
		return nil, shared.ErrNoActiveServer
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrMalformedPath, err)
	}
	if !u.IsAbs() {
		return s.Sign(profile, rawURL)
	}

	rel, err := relativeToRoot(profile, u)
	if err != nil {
		return nil, err
	}
	return s.sign(profile, rel, u.Query())
}

// sign appends the auth parameters. OpenSubsonic only accepts an API key as the plain apiKey parameter, so
// API-key URLs carry the key itself and no salt; password secrets only ever leave as a salted token.
func (s *Signer) sign(profile *models.ServerProfile, rel string, params url.Values) (*SignedRequest, error) {
	for _, key := range authParams {
		params.Del(key)
	}

	var salt string
	switch profile.CredentialKind() {
	case models.CredentialAPIKey:
		params.Set("apiKey", profile.Secret())
	default:
		var err error
		if salt, err = s.nonces.Nonce(); err != nil {
			return nil, fmt.Errorf("failed to generate salt: %w", err)
		}
		params.Set("u", profile.Username())
		params.Set("t", Token(profile.Secret(), salt))
		params.Set("s", salt)
	}
	params.Set("v", s.apiVersion)
	params.Set("c", s.clientID)
	params.Set("f", "json")

	return &SignedRequest{
		Path:   rel,
		Params: params,
		Salt:   salt,
		URL:    profile.BaseURL() + apiRoot + rel + "?" + params.Encode(),
	}, nil
}

// Token computes the salted Subsonic token hex(md5(secret + salt)).
func Token(secret, salt string) string {
	sum := md5.Sum([]byte(secret + salt))
	return hex.EncodeToString(sum[:])
}

func parseRelative(resource string) (*url.URL, error) {
	if strings.TrimSpace(resource) == "" {
		return nil, fmt.Errorf("%w: empty path", shared.ErrMalformedPath)
	}

	ref, err := url.Parse(resource)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrMalformedPath, err)
	}
	if ref.IsAbs() || ref.Host != "" || ref.Opaque != "" {
		return nil, fmt.Errorf("%w: %q is not relative to the API root", shared.ErrMalformedPath, resource)
	}
	if strings.HasPrefix(ref.Path, "/") {
		return nil, fmt.Errorf("%w: %q is rooted", shared.ErrMalformedPath, resource)
	}
	if err := checkClean(ref.Path); err != nil {
		return nil, err
	}
	return ref, nil
}

func checkClean(p string) error {
	if p == "" {
		return fmt.Errorf("%w: missing endpoint", shared.ErrMalformedPath)
	}
	for seg := range strings.SplitSeq(p, "/") {
		if seg == ".." {
			return fmt.Errorf("%w: %q leaves the API root", shared.ErrMalformedPath, p)
		}
	}
	return nil
}

func relativeToRoot(profile *models.ServerProfile, u *url.URL) (string, error) {
	base, err := url.Parse(profile.BaseURL())
	if err != nil {
		return "", fmt.Errorf("%w: bad base url: %v", shared.ErrMalformedPath, err)
	}
	if !strings.EqualFold(u.Scheme, base.Scheme) || !strings.EqualFold(u.Host, base.Host) {
		return "", fmt.Errorf("%w: %s is not served by %s", shared.ErrMalformedPath, u.Redacted(), profile.BaseURL())
	}

	root := path.Clean(base.Path+apiRoot) + "/"
	if !strings.HasPrefix(u.Path, root) {
		return "", fmt.Errorf("%w: %s is outside %s", shared.ErrMalformedPath, u.Path, root)
	}
	rel := strings.TrimPrefix(u.Path, root)
	if err := checkClean(rel); err != nil {
		return "", err
	}
	return rel, nil
}
