package gourdianauth

import (
	"time"

	"github.com/google/uuid"
)

// Principal is the identity a token is issued for.
//
// Fields:
//   - Subject: Stable identity reference (user ID or username), never empty once issued
//   - Roles: Role names granted to the principal
//   - Attributes: Custom string claims carried into access tokens
type Principal struct {
	Subject    string            `json:"sub"`
	Roles      []string          `json:"roles,omitempty"`
	Attributes map[string]string `json:"ext,omitempty"`
}

// ClaimSet is the materialized claim set of an access token.
//
// Fields:
//   - ID: Unique token ID (JWT ID)
//   - Subject: Principal subject
//   - Issuer: Token issuer
//   - Audience: Intended audience
//   - IssuedAt: Token issuance time (UTC, whole seconds)
//   - ExpiresAt: Token expiration time (UTC, whole seconds), always after IssuedAt
//   - Roles: Role names of the principal
//   - Custom: Custom claims copied from the principal's attributes
type ClaimSet struct {
	ID        string            `json:"jti"`
	Subject   string            `json:"sub"`
	Issuer    string            `json:"iss,omitempty"`
	Audience  string            `json:"aud,omitempty"`
	IssuedAt  time.Time         `json:"iat"`
	ExpiresAt time.Time         `json:"exp"`
	Roles     []string          `json:"roles,omitempty"`
	Custom    map[string]string `json:"ext,omitempty"`
}

// HasRole reports whether the claim set carries role.
func (c *ClaimSet) HasRole(role string) bool {
	for _, r := range c.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// ClaimsBuilder assembles claim sets for principals.
type ClaimsBuilder struct {
	now func() time.Time
}

// NewClaimsBuilder returns a ClaimsBuilder reading time from now. A nil now
// uses time.Now.
func NewClaimsBuilder(now func() time.Time) *ClaimsBuilder {
	if now == nil {
		now = time.Now
	}
	return &ClaimsBuilder{now: now}
}

// Build returns the claim set of p for the given issuer and audience,
// issued now and expiring after ttl. Roles and attributes are copied.
func (b *ClaimsBuilder) Build(p Principal, issuer, audience string, ttl time.Duration) ClaimSet {
	issuedAt := b.now().UTC().Truncate(time.Second)
	return ClaimSet{
		ID:        uuid.NewString(),
		Subject:   p.Subject,
		Issuer:    issuer,
		Audience:  audience,
		IssuedAt:  issuedAt,
		ExpiresAt: issuedAt.Add(ttl).Truncate(time.Second),
		Roles:     copyRoles(p.Roles),
		Custom:    copyAttributes(p.Attributes),
	}
}
