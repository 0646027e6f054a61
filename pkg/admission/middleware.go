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
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/doclens/doclens/pkg/auth"
	"github.com/doclens/doclens/pkg/ratelimit"
)

// DefaultGuestCookie is the cookie carrying the persisted anonymous marker.
const DefaultGuestCookie = "doclens_guest"

// guestCookieMaxAge outlives the quota period so a guest keeps one identity
// across resets.
const guestCookieMaxAge = 365 * 24 * time.Hour

// MiddlewareConfig configures the admission middleware.
type MiddlewareConfig struct {
	// Guard makes the admission decision. Required.
	Guard *Guard

	// Validator resolves bearer tokens to account ids. Optional; without
	// it every caller takes the guest path.
	Validator auth.TokenValidator

	// GuestCookie overrides the guest marker cookie name.
	GuestCookie string

	// OnDenied is called for denied requests. If nil, a JSON error with
	// the stable code field is sent.
	OnDenied func(w http.ResponseWriter, r *http.Request, d Decision)

	// OnDecision observes every decision, for metrics. Optional.
	OnDecision func(d Decision)

	// ReadOnly gates a route that only inspects state: identity and rate
	// limit apply, the balance check does not.
	ReadOnly bool
}

// Gate returns a middleware enforcing admission for the named route.
// It resolves the caller identity (bearer token or guest cookie, minting
// the cookie when absent), consults the guard, and on allow stashes the
// identity in the request context for the handler.
func Gate(route string, cfg MiddlewareConfig) func(http.Handler) http.Handler {
	cookieName := cfg.GuestCookie
	if cookieName == "" {
		cookieName = DefaultGuestCookie
	}
	onDenied := cfg.OnDenied
	if onDenied == nil {
		onDenied = denyJSON
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			clientID, err := ratelimit.ClientIdentity(r)
			if err != nil {
				// Intentional fail-open: availability wins over strict
				// limiting for malformed address hints.
				slog.Warn("unparseable client identity, skipping rate limit", "error", err)
				clientID = ""
			}

			identity, code := resolveIdentity(w, r, cfg.Validator, cookieName)
			if code != "" {
				d := Decision{Code: code}
				if cfg.OnDecision != nil {
					cfg.OnDecision(d)
				}
				onDenied(w, r, d)
				return
			}

			decision, err := cfg.Guard.Admit(r.Context(), Request{
				ClientID: clientID,
				Route:    route,
				Identity: identity,
				ReadOnly: cfg.ReadOnly,
			})
			if err != nil {
				slog.Error("admission check failed", "route", route, "error", err)
				http.Error(w, `{"error":{"code":"INTERNAL","message":"admission check failed"}}`, http.StatusInternalServerError)
				return
			}

			if cfg.OnDecision != nil {
				cfg.OnDecision(decision)
			}

			if !decision.Allowed {
				onDenied(w, r, decision)
				return
			}

			if decision.RateLimit != nil {
				decision.RateLimit.WriteHeaders(w)
			}

			next.ServeHTTP(w, r.WithContext(ContextWithIdentity(r.Context(), identity)))
		})
	}
}

// resolveIdentity determines the caller's identity class. A bearer token
// selects the registered path; otherwise the guest cookie is read or
// minted. A present-but-invalid token is an identity failure, not a
// fallback to guest.
func resolveIdentity(w http.ResponseWriter, r *http.Request, validator auth.TokenValidator, cookieName string) (Identity, Code) {
	header := r.Header.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		if validator == nil {
			return Identity{}, CodeInvalidToken
		}
		token := strings.TrimPrefix(header, "Bearer ")
		claims, err := validator.ValidateToken(r.Context(), token)
		if err != nil {
			slog.Debug("bearer token rejected", "error", err)
			return Identity{}, CodeInvalidToken
		}
		return Registered(claims.Subject), ""
	}

	if cookie, err := r.Cookie(cookieName); err == nil && cookie.Value != "" {
		return Guest(cookie.Value), ""
	}

	guestID := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     cookieName,
		Value:    guestID,
		Path:     "/",
		MaxAge:   int(guestCookieMaxAge.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return Guest(guestID), ""
}

// denyJSON writes the default denial response: proper status, back-off
// headers, and a JSON body with the stable code field.
func denyJSON(w http.ResponseWriter, r *http.Request, d Decision) {
	w.Header().Set("Content-Type", "application/json")

	if d.RateLimit != nil {
		d.RateLimit.WriteHeaders(w)
	}
	if d.RetryAfter > 0 {
		secs := int64(d.RetryAfter.Seconds())
		if secs < 1 {
			secs = 1
		}
		w.Header().Set("Retry-After", strconv.FormatInt(secs, 10))
	}

	w.WriteHeader(d.Code.HTTPStatus())

	body := map[string]interface{}{
		"error": map[string]interface{}{
			"code":    string(d.Code),
			"message": d.Code.Message(),
		},
	}
	if d.RetryAfter > 0 {
		body["retry_after_seconds"] = int64(d.RetryAfter.Seconds())
	}

	_ = json.NewEncoder(w).Encode(body)
}
