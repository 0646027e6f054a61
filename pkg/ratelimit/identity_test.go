package ratelimit

import (
	"errors"
	"net/http/httptest"
	"testing"
)

func TestClientIdentity_HeaderPrecedence(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{
			name:    "forwarded-for wins",
			headers: map[string]string{"X-Forwarded-For": "198.51.100.1", "X-Real-IP": "198.51.100.2"},
			remote:  "10.0.0.1:1234",
			want:    "198.51.100.1",
		},
		{
			name:    "forwarded-for first entry of list",
			headers: map[string]string{"X-Forwarded-For": "198.51.100.1, 10.0.0.1, 10.0.0.2"},
			remote:  "10.0.0.1:1234",
			want:    "198.51.100.1",
		},
		{
			name:    "real-ip second",
			headers: map[string]string{"X-Real-IP": "198.51.100.2"},
			remote:  "10.0.0.1:1234",
			want:    "198.51.100.2",
		},
		{
			name:    "cdn header third",
			headers: map[string]string{"CF-Connecting-IP": "2001:db8::1"},
			remote:  "10.0.0.1:1234",
			want:    "2001:db8::1",
		},
		{
			name:   "remote addr fallback",
			remote: "192.0.2.9:4567",
			want:   "192.0.2.9",
		},
		{
			name:   "no parseable hint at all",
			remote: "@",
			want:   FallbackIdentity,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("POST", "/v1/analyze", nil)
			r.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}

			got, err := ClientIdentity(r)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestClientIdentity_UnparseableHeader(t *testing.T) {
	r := httptest.NewRequest("POST", "/v1/analyze", nil)
	r.Header.Set("X-Forwarded-For", "not-an-ip")

	_, err := ClientIdentity(r)
	if err == nil {
		t.Fatal("expected error for unparseable header value")
	}
	var iie *InvalidIdentityError
	if !errors.As(err, &iie) {
		t.Fatalf("expected InvalidIdentityError, got %T", err)
	}
	if iie.Header != "X-Forwarded-For" {
		t.Errorf("expected offending header recorded, got %q", iie.Header)
	}
}
