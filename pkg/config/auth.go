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

package config

import (
	"fmt"
	"time"
)

// AuthConfig configures bearer token validation for registered accounts.
//
// When omitted, every caller is a guest. With static_tokens set, tokens
// are looked up in a fixed map (development only). With jwks_url set,
// tokens are JWTs validated against the provider's key set:
//
//	auth:
//	  jwks_url: "https://auth.example.com/.well-known/jwks.json"
//	  issuer: "https://auth.example.com"
//	  audience: "doclens-api"
type AuthConfig struct {
	// JWKSURL is the URL to fetch the JSON Web Key Set from.
	JWKSURL string `yaml:"jwks_url,omitempty"`

	// Issuer is the expected token issuer (iss claim).
	// Required when JWKSURL is set.
	Issuer string `yaml:"issuer,omitempty"`

	// Audience is the expected token audience (aud claim).
	// Required when JWKSURL is set.
	Audience string `yaml:"audience,omitempty"`

	// RefreshInterval is how often to refresh the JWKS.
	// Default: 15m
	RefreshInterval Duration `yaml:"refresh_interval,omitempty"`

	// StaticTokens maps fixed bearer tokens to account ids. Development
	// and test use only; mutually exclusive with JWKSURL.
	StaticTokens map[string]string `yaml:"static_tokens,omitempty"`
}

// SetDefaults applies default values to AuthConfig.
func (c *AuthConfig) SetDefaults() {
	if c.RefreshInterval == 0 {
		c.RefreshInterval = Duration(15 * time.Minute)
	}
}

// Validate checks the AuthConfig for errors.
func (c *AuthConfig) Validate() error {
	if c.JWKSURL != "" && len(c.StaticTokens) > 0 {
		return fmt.Errorf("jwks_url and static_tokens are mutually exclusive")
	}

	if c.JWKSURL != "" {
		if c.Issuer == "" {
			return fmt.Errorf("issuer is required when jwks_url is set")
		}
		if c.Audience == "" {
			return fmt.Errorf("audience is required when jwks_url is set")
		}
		if c.RefreshInterval.Std() < time.Minute {
			return fmt.Errorf("refresh_interval must be at least 1 minute")
		}
	}

	return nil
}

// IsEnabled reports whether any token validation is configured.
func (c *AuthConfig) IsEnabled() bool {
	return c != nil && (c.JWKSURL != "" || len(c.StaticTokens) > 0)
}
