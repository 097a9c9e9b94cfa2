package auth

import (
	"errors"
	"testing"

	"github.com/desertthunder/motifd/internal/shared"
)

func TestParseBearer(t *testing.T) {
	tc := []struct {
		name   string
		header string
		want   string
	}{
		{"empty", "", ""},
		{"whitespace only", "   ", ""},
		{"bearer prefix", "Bearer tok-123", "tok-123"},
		{"lowercase prefix", "bearer tok-123", "tok-123"},
		{"bare token", "tok-123", "tok-123"},
		{"padded", "  Bearer   tok-123  ", "tok-123"},
	}

	for _, tt := range tc {
		t.Run(tt.name, func(t *testing.T) {
			if got := ParseBearer(tt.header); got != tt.want {
				t.Errorf("ParseBearer(%q) = %q, want %q", tt.header, got, tt.want)
			}
		})
	}
}

func TestGateAuthenticate(t *testing.T) {
	tests := []struct {
		name      string
		required  bool
		header    string
		wantOwner string
		wantErr   bool
	}{
		{"known token", true, "Bearer alice-token", "alice-token", false},
		{"known bare token", true, "alice-token", "alice-token", false},
		{"unknown token", true, "Bearer stranger", "", true},
		{"missing token required", true, "", "", true},
		{"missing token not required", false, "", AnonymousOwner, false},
		{"unknown token still fails when not required", false, "Bearer stranger", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gate := NewGate(shared.AuthConfig{
				Required: tt.required,
				Tokens:   []string{"alice-token", "bob-token"},
			})

			owner, err := gate.Authenticate(tt.header)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Authenticate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, shared.ErrUnauthorized) {
				t.Errorf("expected ErrUnauthorized, got %v", err)
			}
			if owner != tt.wantOwner {
				t.Errorf("Authenticate() owner = %q, want %q", owner, tt.wantOwner)
			}
		})
	}
}

func TestGateExempt(t *testing.T) {
	gate := NewGate(shared.AuthConfig{
		Required:     true,
		Tokens:       []string{"pro-token", "free-token"},
		ExemptOwners: []string{"pro-token"},
	})

	if !gate.Exempt("pro-token") {
		t.Error("pro-token should be exempt")
	}
	if gate.Exempt("free-token") {
		t.Error("free-token should not be exempt")
	}
	if gate.Exempt(AnonymousOwner) {
		t.Error("anonymous owner should not be exempt")
	}
}
