// Copyright 2025 The Doclens Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package admission

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/doclens/doclens/pkg/auth"
)

func gatedHandler(t *testing.T, fx *guardFixture, validator auth.TokenValidator) http.Handler {
	t.Helper()

	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := IdentityFromContext(r.Context())
		if !ok {
			t.Error("handler ran without identity in context")
		}
		if id.IsZero() {
			t.Error("handler ran with zero identity")
		}
		w.WriteHeader(http.StatusOK)
	})

	return Gate(testRoute, MiddlewareConfig{
		Guard:     fx.guard,
		Validator: validator,
	})(inner)
}

func decodeDenial(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()

	var body struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode denial body: %v", err)
	}
	if body.Error.Message == "" {
		t.Error("denial body has no message")
	}
	return body.Error.Code
}

func TestGateMintsGuestCookie(t *testing.T) {
	fx := newGuardFixture(t, 10, 3, 5)
	handler := gatedHandler(t, fx, nil)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/analyze", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var minted *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == DefaultGuestCookie {
			minted = c
		}
	}
	if minted == nil {
		t.Fatal("expected a guest cookie to be minted")
	}
	if minted.Value == "" || !minted.HttpOnly {
		t.Fatalf("bad guest cookie: %+v", minted)
	}
}

func TestGateReusesGuestCookie(t *testing.T) {
	fx := newGuardFixture(t, 100, 2, 5)
	handler := gatedHandler(t, fx, nil)

	send := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/v1/analyze", nil)
		req.AddCookie(&http.Cookie{Name: DefaultGuestCookie, Value: "guest-abc"})
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	for i := 0; i < 2; i++ {
		if rec := send(); rec.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d, want 200", i, rec.Code)
		}
		if _, err := fx.guard.ConsumeGuest(t.Context(), "guest-abc"); err != nil {
			t.Fatalf("ConsumeGuest: %v", err)
		}
	}

	rec := send()
	if rec.Code != http.StatusPaymentRequired {
		t.Fatalf("status = %d, want 402", rec.Code)
	}
	if code := decodeDenial(t, rec); code != string(CodeGuestQuotaExceeded) {
		t.Fatalf("code = %s, want %s", code, CodeGuestQuotaExceeded)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("quota denial should carry Retry-After")
	}
}

func TestGateBearerTokenSelectsRegisteredPath(t *testing.T) {
	fx := newGuardFixture(t, 10, 3, 5)
	fx.accounts.SetBalance("acct-1", 100)
	validator := auth.NewStaticValidator(map[string]string{"tok-1": "acct-1"})

	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, _ := IdentityFromContext(r.Context())
		if id.Class != ClassRegistered || id.AccountID != "acct-1" {
			t.Errorf("identity = %+v, want registered acct-1", id)
		}
		w.WriteHeader(http.StatusOK)
	})
	handler := Gate(testRoute, MiddlewareConfig{Guard: fx.guard, Validator: validator})(inner)

	req := httptest.NewRequest(http.MethodPost, "/v1/analyze", nil)
	req.Header.Set("Authorization", "Bearer tok-1")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if rec.Header().Get("X-RateLimit-Limit") == "" {
		t.Error("allowed response should carry rate limit headers")
	}
}

func TestGateInvalidTokenIs401(t *testing.T) {
	fx := newGuardFixture(t, 10, 3, 5)
	validator := auth.NewStaticValidator(map[string]string{"tok-1": "acct-1"})
	handler := gatedHandler(t, fx, validator)

	req := httptest.NewRequest(http.MethodPost, "/v1/analyze", nil)
	req.Header.Set("Authorization", "Bearer forged")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	if code := decodeDenial(t, rec); code != string(CodeInvalidToken) {
		t.Fatalf("code = %s, want %s", code, CodeInvalidToken)
	}

	// Invalid tokens never fall back to guest: no cookie minted.
	for _, c := range rec.Result().Cookies() {
		if c.Name == DefaultGuestCookie {
			t.Fatal("guest cookie minted for an invalid token")
		}
	}
}

func TestGateRateLimitIs429WithHeaders(t *testing.T) {
	fx := newGuardFixture(t, 1, 3, 5)
	handler := gatedHandler(t, fx, nil)

	send := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/v1/analyze", nil)
		req.Header.Set("X-Real-IP", "203.0.113.9")
		req.AddCookie(&http.Cookie{Name: DefaultGuestCookie, Value: "guest-abc"})
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	if rec := send(); rec.Code != http.StatusOK {
		t.Fatalf("first request: status = %d, want 200", rec.Code)
	}

	rec := send()
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}
	if code := decodeDenial(t, rec); code != string(CodeRateLimitExceeded) {
		t.Fatalf("code = %s, want %s", code, CodeRateLimitExceeded)
	}
	for _, h := range []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"} {
		if rec.Header().Get(h) == "" {
			t.Errorf("missing %s header on 429", h)
		}
	}
}

func TestGateInsufficientCreditsIs402(t *testing.T) {
	fx := newGuardFixture(t, 10, 3, 5)
	fx.accounts.SetBalance("acct-1", 2)
	validator := auth.NewStaticValidator(map[string]string{"tok-1": "acct-1"})
	handler := gatedHandler(t, fx, validator)

	req := httptest.NewRequest(http.MethodPost, "/v1/analyze", nil)
	req.Header.Set("Authorization", "Bearer tok-1")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusPaymentRequired {
		t.Fatalf("status = %d, want 402", rec.Code)
	}
	if code := decodeDenial(t, rec); code != string(CodeInsufficientCredits) {
		t.Fatalf("code = %s, want %s", code, CodeInsufficientCredits)
	}
}

func TestGateUnparseableForwardedForFailsOpen(t *testing.T) {
	fx := newGuardFixture(t, 1, 3, 5)
	handler := gatedHandler(t, fx, nil)

	// A garbage X-Forwarded-For would normally exhaust a 1/minute policy on
	// the second request; with no usable identity the limiter is skipped.
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/v1/analyze", nil)
		req.Header.Set("X-Forwarded-For", "not-an-address")
		req.RemoteAddr = "garbage"
		req.AddCookie(&http.Cookie{Name: DefaultGuestCookie, Value: "guest-abc"})
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d, want 200 (fail open)", i, rec.Code)
		}
	}
}

func TestGateDecisionCallback(t *testing.T) {
	fx := newGuardFixture(t, 10, 3, 5)

	var seen []Decision
	handler := Gate(testRoute, MiddlewareConfig{
		Guard:      fx.guard,
		OnDecision: func(d Decision) { seen = append(seen, d) },
	})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/analyze", nil))

	if len(seen) != 1 {
		t.Fatalf("decisions observed = %d, want 1", len(seen))
	}
	if !seen[0].Allowed {
		t.Fatalf("expected observed allow, got %s", seen[0].Code)
	}
}
