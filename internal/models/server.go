package models

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/desertthunder/subx/internal/shared"
)

// CredentialKind selects how requests against a server are authenticated.
type CredentialKind string

const (
	// CredentialPassword signs requests with t=md5(password+salt) and s=salt.
	CredentialPassword CredentialKind = "password"
	// CredentialAPIKey signs requests with an OpenSubsonic apiKey.
	CredentialAPIKey CredentialKind = "apikey"
)

// Valid reports whether k is a known credential kind.
func (k CredentialKind) Valid() bool {
	return k == CredentialPassword || k == CredentialAPIKey
}

// ServerProfile is a saved Subsonic server.
//
// Profiles are owned by the server registry; other components hold only the id.
type ServerProfile struct {
	id        string
	sequence  int
	label     string
	baseURL   string
	username  string
	secret    string
	kind      CredentialKind
	active    bool
	createdAt time.Time
	updatedAt time.Time
}

// NewServerProfile creates an unsaved profile. The base URL is normalized by trimming a trailing slash.
func NewServerProfile(label, baseURL, username, secret string, kind CredentialKind) *ServerProfile {
	if kind == "" {
		kind = CredentialPassword
	}
	now := time.Now()
	return &ServerProfile{
		label:     strings.TrimSpace(label),
		baseURL:   strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		username:  strings.TrimSpace(username),
		secret:    secret,
		kind:      kind,
		createdAt: now,
		updatedAt: now,
	}
}

func (s *ServerProfile) ID() string                     { return s.id }
func (s *ServerProfile) Sequence() int                  { return s.sequence }
func (s *ServerProfile) Label() string                  { return s.label }
func (s *ServerProfile) BaseURL() string                { return s.baseURL }
func (s *ServerProfile) Username() string               { return s.username }
func (s *ServerProfile) Secret() string                 { return s.secret }
func (s *ServerProfile) CredentialKind() CredentialKind { return s.kind }
func (s *ServerProfile) Active() bool                   { return s.active }
func (s *ServerProfile) CreatedAt() time.Time           { return s.createdAt }
func (s *ServerProfile) UpdatedAt() time.Time           { return s.updatedAt }

func (s *ServerProfile) SetID(id string)             { s.id = id }
func (s *ServerProfile) SetSequence(seq int)         { s.sequence = seq }
func (s *ServerProfile) SetActive(active bool)       { s.active = active }
func (s *ServerProfile) SetCreatedAt(t time.Time)    { s.createdAt = t }
func (s *ServerProfile) SetUpdatedAt(t time.Time)    { s.updatedAt = t }
func (s *ServerProfile) SetLabel(label string)       { s.label = strings.TrimSpace(label) }
func (s *ServerProfile) SetUsername(username string) { s.username = strings.TrimSpace(username) }
func (s *ServerProfile) SetSecret(secret string)     { s.secret = secret }
func (s *ServerProfile) SetCredentialKind(k CredentialKind) {
	s.kind = k
}
func (s *ServerProfile) SetBaseURL(u string) {
	s.baseURL = strings.TrimRight(strings.TrimSpace(u), "/")
}

// DisplayName returns the label, falling back to the server host.
func (s *ServerProfile) DisplayName() string {
	if s.label != "" {
		return s.label
	}
	if u, err := url.Parse(s.baseURL); err == nil && u.Host != "" {
		return u.Host
	}
	return s.baseURL
}

// Clone returns an independent copy, so callers never share the registry's record.
func (s *ServerProfile) Clone() *ServerProfile {
	if s == nil {
		return nil
	}
	c := *s
	return &c
}

// Validate checks the base URL is an absolute http(s) URL and the credential fields are present.
func (s *ServerProfile) Validate() error {
	u, err := url.Parse(s.baseURL)
	if err != nil || s.baseURL == "" {
		return fmt.Errorf("%w: base url %q is not a valid URL", shared.ErrValidation, s.baseURL)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: base url %q must use http or https", shared.ErrValidation, s.baseURL)
	}
	if u.Host == "" {
		return fmt.Errorf("%w: base url %q has no host", shared.ErrValidation, s.baseURL)
	}
	if u.RawQuery != "" || u.Fragment != "" {
		return fmt.Errorf("%w: base url %q must not carry a query or fragment", shared.ErrValidation, s.baseURL)
	}
	if !s.kind.Valid() {
		return fmt.Errorf("%w: unknown credential kind %q", shared.ErrValidation, s.kind)
	}
	if s.kind == CredentialPassword && s.username == "" {
		return fmt.Errorf("%w: username is required", shared.ErrValidation)
	}
	if s.secret == "" {
		return fmt.Errorf("%w: credential is required", shared.ErrValidation)
	}
	return nil
}
