package auth

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"testing"

	"github.com/desertthunder/subx/internal/models"
	"github.com/desertthunder/subx/internal/shared"
	subxtest "github.com/desertthunder/subx/internal/testing"
)

func sequentialNonces() NonceSource {
	n := 0
	return NonceFunc(func() (string, error) {
		n++
		return fmt.Sprintf("salt%03d", n), nil
	})
}

func TestToken(t *testing.T) {
	// Example from the Subsonic API documentation.
	if got := Token("sesame", "c19b2d"); got != "26719a1196d2a940705a59634eb18eab" {
		t.Errorf("Token() = %s", got)
	}
}

func TestSign(t *testing.T) {
	profile := models.NewServerProfile("home", "https://music.example.com", "alice", "sesame", models.CredentialPassword)

	t.Run("Password credentials", func(t *testing.T) {
		signer := NewSigner("subx", "1.16.1", sequentialNonces())

		signed, err := signer.Sign(profile, "getAlbumList2?type=newest&size=10")
		if err != nil {
			t.Fatalf("Sign() error = %v", err)
		}

		if signed.Path != "getAlbumList2" {
			t.Errorf("expected path getAlbumList2, got %q", signed.Path)
		}
		if signed.Salt != "salt001" {
			t.Errorf("expected salt001, got %q", signed.Salt)
		}

		u, err := url.Parse(signed.URL)
		if err != nil {
			t.Fatalf("signed URL does not parse: %v", err)
		}
		if u.Path != "/rest/getAlbumList2" {
			t.Errorf("expected /rest/getAlbumList2, got %q", u.Path)
		}

		q := u.Query()
		want := map[string]string{
			"u": "alice", "t": Token("sesame", "salt001"), "s": "salt001",
			"v": "1.16.1", "c": "subx", "f": "json", "type": "newest", "size": "10",
		}
		for k, v := range want {
			if q.Get(k) != v {
				t.Errorf("param %s = %q, want %q", k, q.Get(k), v)
			}
		}
		if strings.Contains(signed.URL, "sesame") {
			t.Error("signed URL leaks the password")
		}
		if q.Has("p") || q.Has("apiKey") {
			t.Error("unexpected credential params")
		}
	})

	t.Run("API key credentials", func(t *testing.T) {
		signer := NewSigner("", "", sequentialNonces())
		keyed := models.NewServerProfile("key", "https://music.example.com", "", "k-123", models.CredentialAPIKey)

		signed, err := signer.Sign(keyed, "ping")
		if err != nil {
			t.Fatalf("Sign() error = %v", err)
		}
		q := signed.Params
		if q.Get("apiKey") != "k-123" {
			t.Errorf("expected apiKey param, got %q", q.Get("apiKey"))
		}
		if q.Has("u") || q.Has("t") || q.Has("s") || q.Has("p") {
			t.Errorf("api key signature must carry only apiKey, got %v", q)
		}
		if signed.Salt != "" {
			t.Errorf("api key signature should not draw a salt, got %q", signed.Salt)
		}
		if q.Get("c") != DefaultClientID || q.Get("v") != DefaultAPIVersion {
			t.Errorf("expected default client and version, got %q %q", q.Get("c"), q.Get("v"))
		}
	})

	t.Run("Fresh salt per call", func(t *testing.T) {
		signer := NewSigner("subx", "1.16.1", nil)

		a, err := signer.Sign(profile, "stream?id=1")
		if err != nil {
			t.Fatalf("Sign() error = %v", err)
		}
		b, err := signer.Sign(profile, "stream?id=1")
		if err != nil {
			t.Fatalf("Sign() error = %v", err)
		}
		if a.URL == b.URL || a.Salt == b.Salt {
			t.Error("expected two signatures for the same path to differ")
		}
	})

	t.Run("Base URL with a path prefix", func(t *testing.T) {
		signer := NewSigner("subx", "1.16.1", sequentialNonces())
		prefixed := models.NewServerProfile("p", "https://example.com/music/", "alice", "sesame", models.CredentialPassword)

		signed, err := signer.Sign(prefixed, "ping")
		if err != nil {
			t.Fatalf("Sign() error = %v", err)
		}
		if !strings.HasPrefix(signed.URL, "https://example.com/music/rest/ping?") {
			t.Errorf("unexpected URL %s", signed.URL)
		}
	})

	t.Run("Rejected inputs", func(t *testing.T) {
		signer := NewSigner("subx", "1.16.1", sequentialNonces())

		if _, err := signer.Sign(nil, "ping"); !errors.Is(err, shared.ErrNoActiveServer) {
			t.Errorf("expected ErrNoActiveServer, got %v", err)
		}

		tests := []struct {
			name string
			path string
		}{
			{"empty", ""},
			{"absolute URL", "https://evil.example.com/rest/ping"},
			{"scheme relative", "//evil.example.com/ping"},
			{"rooted", "/rest/ping"},
			{"parent segment", "../admin"},
			{"nested parent segment", "stream/../../etc"},
			{"query only", "?id=1"},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				if _, err := signer.Sign(profile, tt.path); !errors.Is(err, shared.ErrMalformedPath) {
					t.Errorf("Sign(%q) expected ErrMalformedPath, got %v", tt.path, err)
				}
			})
		}
	})

	t.Run("Nonce failure", func(t *testing.T) {
		boom := errors.New("entropy exhausted")
		signer := NewSigner("subx", "1.16.1", NonceFunc(func() (string, error) { return "", boom }))
		if _, err := signer.Sign(profile, "ping"); !errors.Is(err, boom) {
			t.Errorf("expected nonce error, got %v", err)
		}
	})
}

func TestSignURL(t *testing.T) {
	profile := models.NewServerProfile("home", "https://music.example.com", "alice", "sesame", models.CredentialPassword)
	signer := NewSigner("subx", "1.16.1", sequentialNonces())

	t.Run("Replaces stale auth params", func(t *testing.T) {
		stale := "https://music.example.com/rest/getCoverArt?id=al-1&size=300&u=bob&t=deadbeef&s=old&p=plain"

		signed, err := signer.SignURL(profile, stale)
		if err != nil {
			t.Fatalf("SignURL() error = %v", err)
		}
		q := signed.Params
		if q.Get("u") != "alice" || q.Get("s") == "old" || q.Has("p") {
			t.Errorf("stale params survived: %v", q)
		}
		if q.Get("id") != "al-1" || q.Get("size") != "300" {
			t.Errorf("resource params lost: %v", q)
		}
		if q.Get("t") != Token("sesame", q.Get("s")) {
			t.Error("token does not match salt")
		}
	})

	t.Run("Relative input", func(t *testing.T) {
		signed, err := signer.SignURL(profile, "getCoverArt?id=al-1")
		if err != nil {
			t.Fatalf("SignURL() error = %v", err)
		}
		if !strings.HasPrefix(signed.URL, "https://music.example.com/rest/getCoverArt?") {
			t.Errorf("unexpected URL %s", signed.URL)
		}
	})

	t.Run("Foreign host", func(t *testing.T) {
		_, err := signer.SignURL(profile, "https://other.example.com/rest/ping")
		if !errors.Is(err, shared.ErrMalformedPath) {
			t.Errorf("expected ErrMalformedPath, got %v", err)
		}
	})

	t.Run("Outside the API root", func(t *testing.T) {
		_, err := signer.SignURL(profile, "https://music.example.com/admin/users")
		if !errors.Is(err, shared.ErrMalformedPath) {
			t.Errorf("expected ErrMalformedPath, got %v", err)
		}
	})
}

func TestSignedRequestsAuthenticate(t *testing.T) {
	server := subxtest.NewFakeSubsonic(t, "alice", "sesame")
	server.APIKey = "k-123"

	signer := NewSigner("subx", "1.16.1", nil)
	profiles := []*models.ServerProfile{
		models.NewServerProfile("pw", server.URL, "alice", "sesame", models.CredentialPassword),
		models.NewServerProfile("key", server.URL, "", "k-123", models.CredentialAPIKey),
	}

	for _, profile := range profiles {
		t.Run(string(profile.CredentialKind()), func(t *testing.T) {
			a, err := signer.Sign(profile, "ping")
			if err != nil {
				t.Fatalf("Sign() error = %v", err)
			}
			b, err := signer.Sign(profile, "ping")
			if err != nil {
				t.Fatalf("Sign() error = %v", err)
			}
			if a.URL == b.URL {
				t.Fatal("expected distinct signed URLs")
			}

			for _, signed := range []*SignedRequest{a, b} {
				resp, err := http.Get(signed.URL)
				if err != nil {
					t.Fatalf("GET error = %v", err)
				}
				resp.Body.Close()
				if !server.Authenticate(signed.Params) {
					t.Errorf("server rejected %s", signed.URL)
				}
			}
			if got := server.Hits("ping"); got < 2 {
				t.Errorf("expected authenticated hits, got %d", got)
			}
		})
	}

	t.Run("Wrong password is rejected", func(t *testing.T) {
		wrong := models.NewServerProfile("pw", server.URL, "alice", "nope", models.CredentialPassword)
		signed, err := signer.Sign(wrong, "ping")
		if err != nil {
			t.Fatalf("Sign() error = %v", err)
		}
		if server.Authenticate(signed.Params) {
			t.Error("expected rejection")
		}
	})
}
