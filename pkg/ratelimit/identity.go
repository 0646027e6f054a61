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

package ratelimit

import (
	"fmt"
	"net"
	"net/http"
	"strings"
)

// FallbackIdentity is used when no address hint is present on the request.
// Requests without any hint share one bucket per route.
const FallbackIdentity = "unknown"

// identityHeaders, in preference order: load balancer, reverse proxy, CDN.
var identityHeaders = []string{
	"X-Forwarded-For",
	"X-Real-IP",
	"CF-Connecting-IP",
}

// InvalidIdentityError reports a caller address hint that is not a plausible
// IP address. Callers are expected to fail open on it: availability wins over
// strict limiting for the minority of malformed requests.
type InvalidIdentityError struct {
	Header string
	Value  string
}

func (e *InvalidIdentityError) Error() string {
	return fmt.Sprintf("unparseable client identity %q from %s header", e.Value, e.Header)
}

// ClientIdentity extracts the caller's network identity from the request.
// It prefers X-Forwarded-For (first entry of a comma-separated list), then
// X-Real-IP, then CF-Connecting-IP, and finally the connection's remote
// address. Candidates must parse as IPv4 or IPv6; a header candidate that
// does not parse yields an InvalidIdentityError so the caller can fail open.
func ClientIdentity(r *http.Request) (string, error) {
	for _, header := range identityHeaders {
		value := r.Header.Get(header)
		if value == "" {
			continue
		}
		candidate := strings.TrimSpace(strings.SplitN(value, ",", 2)[0])
		ip := net.ParseIP(candidate)
		if ip == nil {
			return "", &InvalidIdentityError{Header: header, Value: candidate}
		}
		return ip.String(), nil
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	if ip := net.ParseIP(host); ip != nil {
		return ip.String(), nil
	}

	return FallbackIdentity, nil
}
