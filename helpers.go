package gourdianauth

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// accessTokenClaims is the wire form of a ClaimSet.
type accessTokenClaims struct {
	jwt.RegisteredClaims
	Roles  []string          `json:"roles,omitempty"`
	Custom map[string]string `json:"ext,omitempty"`
}

// toTokenClaims converts a ClaimSet to its wire form.
func toTokenClaims(c ClaimSet) accessTokenClaims {
	claims := accessTokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        c.ID,
			Subject:   c.Subject,
			Issuer:    c.Issuer,
			IssuedAt:  jwt.NewNumericDate(c.IssuedAt),
			ExpiresAt: jwt.NewNumericDate(c.ExpiresAt),
		},
		Roles:  c.Roles,
		Custom: c.Custom,
	}
	if c.Audience != "" {
		claims.Audience = jwt.ClaimStrings{c.Audience}
	}
	return claims
}

// fromTokenClaims converts decoded wire claims to a ClaimSet.
func fromTokenClaims(claims *accessTokenClaims) (*ClaimSet, error) {
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject claim", ErrMalformed)
	}
	if claims.ExpiresAt == nil {
		return nil, fmt.Errorf("%w: missing exp claim", ErrMalformed)
	}
	if len(claims.Audience) > 1 {
		return nil, fmt.Errorf("%w: multiple audiences are not supported", ErrMalformed)
	}

	set := &ClaimSet{
		ID:        claims.ID,
		Subject:   claims.Subject,
		Issuer:    claims.Issuer,
		ExpiresAt: numericToTime(claims.ExpiresAt),
		Roles:     copyRoles(claims.Roles),
		Custom:    copyAttributes(claims.Custom),
	}
	if claims.IssuedAt != nil {
		set.IssuedAt = numericToTime(claims.IssuedAt)
	}
	if len(claims.Audience) == 1 {
		set.Audience = claims.Audience[0]
	}
	return set, nil
}

// NormalizeClaims returns c the way TokenCodec.Decode reports it: UTC
// timestamps truncated to whole seconds, and nil in place of empty Roles or
// Custom.
func NormalizeClaims(c ClaimSet) ClaimSet {
	c.IssuedAt = c.IssuedAt.UTC().Truncate(time.Second)
	c.ExpiresAt = c.ExpiresAt.UTC().Truncate(time.Second)
	c.Roles = copyRoles(c.Roles)
	c.Custom = copyAttributes(c.Custom)
	return c
}

func numericToTime(d *jwt.NumericDate) time.Time {
	return time.Unix(d.Unix(), 0).UTC()
}

func copyRoles(roles []string) []string {
	if len(roles) == 0 {
		return nil
	}
	out := make([]string, len(roles))
	copy(out, roles)
	return out
}

func copyAttributes(attrs map[string]string) map[string]string {
	if len(attrs) == 0 {
		return nil
	}
	out := make(map[string]string, len(attrs))
	for k, v := range attrs {
		out[k] = v
	}
	return out
}

// hashToken returns the hex SHA-256 of token, used as a storage key so raw
// refresh tokens never reach the backend.
func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
