package models

import (
	"errors"
	"testing"

	"github.com/desertthunder/subx/internal/shared"
)

func TestServerProfileValidate(t *testing.T) {
	tc := []struct {
		name    string
		profile *ServerProfile
		wantErr bool
	}{
		{
			name:    "valid password profile",
			profile: NewServerProfile("home", "https://music.example.com/", "alice", "sesame", CredentialPassword),
		},
		{
			name:    "valid api key profile without username",
			profile: NewServerProfile("", "http://10.0.0.2:4533", "", "key-123", CredentialAPIKey),
		},
		{
			name:    "empty kind defaults to password",
			profile: NewServerProfile("", "http://localhost:4533", "bob", "pw", ""),
		},
		{
			name:    "missing scheme",
			profile: NewServerProfile("", "music.example.com", "alice", "sesame", CredentialPassword),
			wantErr: true,
		},
		{
			name:    "ftp scheme",
			profile: NewServerProfile("", "ftp://music.example.com", "alice", "sesame", CredentialPassword),
			wantErr: true,
		},
		{
			name:    "query in base url",
			profile: NewServerProfile("", "https://music.example.com/?u=alice", "alice", "sesame", CredentialPassword),
			wantErr: true,
		},
		{
			name:    "empty base url",
			profile: NewServerProfile("", "", "alice", "sesame", CredentialPassword),
			wantErr: true,
		},
		{
			name:    "empty username",
			profile: NewServerProfile("", "https://music.example.com", "  ", "sesame", CredentialPassword),
			wantErr: true,
		},
		{
			name:    "empty secret",
			profile: NewServerProfile("", "https://music.example.com", "alice", "", CredentialPassword),
			wantErr: true,
		},
		{
			name:    "unknown kind",
			profile: NewServerProfile("", "https://music.example.com", "alice", "pw", CredentialKind("jwt")),
			wantErr: true,
		},
	}

	for _, tt := range tc {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.profile.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, shared.ErrValidation) {
				t.Errorf("expected ErrValidation, got %v", err)
			}
		})
	}
}

func TestServerProfile(t *testing.T) {
	t.Run("normalizes base url", func(t *testing.T) {
		p := NewServerProfile("", " https://music.example.com/// ", "alice", "pw", CredentialPassword)
		if p.BaseURL() != "https://music.example.com" {
			t.Errorf("expected trailing slashes trimmed, got %q", p.BaseURL())
		}
	})

	t.Run("DisplayName falls back to host", func(t *testing.T) {
		p := NewServerProfile("", "https://music.example.com:4533", "alice", "pw", CredentialPassword)
		if p.DisplayName() != "music.example.com:4533" {
			t.Errorf("unexpected display name %q", p.DisplayName())
		}
		p.SetLabel("Home")
		if p.DisplayName() != "Home" {
			t.Errorf("expected label, got %q", p.DisplayName())
		}
	})

	t.Run("Clone is independent", func(t *testing.T) {
		p := NewServerProfile("a", "https://music.example.com", "alice", "pw", CredentialPassword)
		c := p.Clone()
		c.SetSecret("other")
		if p.Secret() != "pw" {
			t.Error("mutating clone changed the original")
		}
		var nilProfile *ServerProfile
		if nilProfile.Clone() != nil {
			t.Error("expected nil clone of nil profile")
		}
	})
}

func TestMediaPaths(t *testing.T) {
	if got := StreamPathFor("a b"); got != "stream?id=a+b" {
		t.Errorf("StreamPathFor() = %q", got)
	}
	if got := ArtworkPathFor("al-1", 300); got != "getCoverArt?id=al-1&size=300" {
		t.Errorf("ArtworkPathFor() = %q", got)
	}
	if got := ArtworkPathFor("", 300); got != "" {
		t.Errorf("expected empty artwork path, got %q", got)
	}
	if (Track{ID: "t1"}).Key() != "t1" || (Album{ID: "a1"}).Key() != "a1" {
		t.Error("unexpected Key() values")
	}
}
