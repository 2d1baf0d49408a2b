package gourdianauth

import (
	"fmt"
	"time"
)

const (
	MinSecretLength        = 32                 // Minimum HMAC secret length in bytes
	DefaultAccessTokenTTL  = 15 * time.Minute   // Access token lifetime
	DefaultRefreshTokenTTL = 7 * 24 * time.Hour // Refresh token lifetime
	DefaultStoreTimeout    = 2 * time.Second    // Per-call bound for networked stores
)

// Config holds the configuration for token issuance and validation.
//
// Fields:
//   - SigningSecret: HMAC-SHA256 secret shared by every instance (min 32 bytes)
//   - Issuer: Value of the "iss" claim in issued access tokens
//   - Audience: Value of the "aud" claim in issued access tokens
//   - ValidateIssuer: Reject access tokens whose issuer differs from Issuer
//   - ValidateAudience: Reject access tokens whose audience does not contain Audience
//   - AccessTokenTTL: Lifetime of access tokens
//   - RefreshTokenTTL: Lifetime of refresh tokens
//   - ClockSkew: Leeway applied to expiry checks (zero means exact)
//   - StoreTimeout: Bound applied to each networked refresh store call
//   - Policies: Policy name to the roles that satisfy it (any of)
type Config struct {
	SigningSecret    string
	Issuer           string
	Audience         string
	ValidateIssuer   bool
	ValidateAudience bool
	AccessTokenTTL   time.Duration
	RefreshTokenTTL  time.Duration
	ClockSkew        time.Duration
	StoreTimeout     time.Duration
	Policies         map[string][]string
}

// DefaultConfig returns a Config with the default lifetimes, issuer and
// audience validation enabled against "gourdianauth", and the built-in
// role policies.
func DefaultConfig(signingSecret string) Config {
	return Config{
		SigningSecret:    signingSecret,
		Issuer:           "gourdianauth",
		Audience:         "gourdianauth",
		ValidateIssuer:   true,
		ValidateAudience: true,
		AccessTokenTTL:   DefaultAccessTokenTTL,
		RefreshTokenTTL:  DefaultRefreshTokenTTL,
		StoreTimeout:     DefaultStoreTimeout,
		Policies: map[string][]string{
			PolicyRequireAdminRole:     {RoleAdmin},
			PolicyRequireModeratorRole: {RoleModerator},
		},
	}
}

// Validate checks the configuration for completeness. Every failure wraps
// ErrConfiguration.
func (c *Config) Validate() error {
	if c.SigningSecret == "" {
		return fmt.Errorf("%w: signing secret is required", ErrConfiguration)
	}
	if len(c.SigningSecret) < MinSecretLength {
		return fmt.Errorf("%w: signing secret must be at least %d bytes", ErrConfiguration, MinSecretLength)
	}
	if c.AccessTokenTTL <= 0 {
		return fmt.Errorf("%w: access token ttl must be positive", ErrConfiguration)
	}
	if c.RefreshTokenTTL <= 0 {
		return fmt.Errorf("%w: refresh token ttl must be positive", ErrConfiguration)
	}
	if c.ClockSkew < 0 {
		return fmt.Errorf("%w: clock skew cannot be negative", ErrConfiguration)
	}
	if c.StoreTimeout < 0 {
		return fmt.Errorf("%w: store timeout cannot be negative", ErrConfiguration)
	}
	if c.ValidateIssuer && c.Issuer == "" {
		return fmt.Errorf("%w: issuer validation enabled without an issuer", ErrConfiguration)
	}
	if c.ValidateAudience && c.Audience == "" {
		return fmt.Errorf("%w: audience validation enabled without an audience", ErrConfiguration)
	}
	for name, roles := range c.Policies {
		if name == "" {
			return fmt.Errorf("%w: policy name cannot be empty", ErrConfiguration)
		}
		if len(roles) == 0 {
			return fmt.Errorf("%w: policy %q requires at least one role", ErrConfiguration, name)
		}
	}
	return nil
}
