package gourdianauth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// CodecOptions configures the checks TokenCodec.Decode applies after the
// signature has been verified.
//
// Fields:
//   - Issuer: Expected "iss" claim (checked when ValidateIssuer is set)
//   - Audience: Expected "aud" claim (checked when ValidateAudience is set)
//   - ValidateIssuer: Enable issuer validation
//   - ValidateAudience: Enable audience validation
//   - Leeway: Clock skew tolerated on the expiry check
//   - Now: Clock used for time checks (defaults to time.Now)
type CodecOptions struct {
	Issuer           string
	Audience         string
	ValidateIssuer   bool
	ValidateAudience bool
	Leeway           time.Duration
	Now              func() time.Time
}

// TokenCodec encodes claim sets into compact HS256 JWTs and decodes them
// back, verifying signature, expiry, issuer and audience.
type TokenCodec struct {
	key       *SigningKey
	parser    *jwt.Parser
	validator *jwt.Validator
}

// NewTokenCodec returns a TokenCodec signing with key.
func NewTokenCodec(key *SigningKey, opts CodecOptions) *TokenCodec {
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	validatorOpts := []jwt.ParserOption{
		jwt.WithTimeFunc(now),
		jwt.WithLeeway(opts.Leeway),
		jwt.WithExpirationRequired(),
	}
	if opts.ValidateIssuer {
		validatorOpts = append(validatorOpts, jwt.WithIssuer(opts.Issuer))
	}
	if opts.ValidateAudience {
		validatorOpts = append(validatorOpts, jwt.WithAudience(opts.Audience))
	}

	return &TokenCodec{
		key:       key,
		parser:    jwt.NewParser(jwt.WithStrictDecoding()),
		validator: jwt.NewValidator(validatorOpts...),
	}
}

// Encode serializes claims into a signed header.payload.signature string.
func (c *TokenCodec) Encode(claims ClaimSet) (string, error) {
	if claims.Subject == "" {
		return "", fmt.Errorf("%w: subject is required", ErrInvalidClaims)
	}
	if !claims.ExpiresAt.After(claims.IssuedAt) {
		return "", fmt.Errorf("%w: expiry must be after issued-at", ErrInvalidClaims)
	}

	token := jwt.NewWithClaims(c.key.method, toTokenClaims(claims))
	signingString, err := token.SigningString()
	if err != nil {
		return "", fmt.Errorf("failed to encode access token: %w", err)
	}

	sig, err := c.key.Sign([]byte(signingString))
	if err != nil {
		return "", fmt.Errorf("failed to sign access token: %w", err)
	}

	return signingString + "." + token.EncodeSegment(sig), nil
}

// Decode verifies tokenString and returns its claims. The signature is
// checked before anything in the payload is trusted. An issued-at ahead of
// the local clock is not rejected; expiry is the only time check.
//
// Decoded claims are normalized: timestamps are UTC whole seconds, and
// empty Roles or Custom come back nil. Decode(Encode(c)) equals
// NormalizeClaims(c), which is c itself for claims from ClaimsBuilder.
func (c *TokenCodec) Decode(tokenString string) (*ClaimSet, error) {
	parts := strings.Split(tokenString, ".")
	if len(parts) != 3 {
		return nil, fmt.Errorf("%w: token must have three segments", ErrMalformed)
	}

	sig, err := c.parser.DecodeSegment(parts[2])
	if err != nil {
		return nil, fmt.Errorf("%w: undecodable signature segment", ErrInvalidSignature)
	}
	if !c.key.Verify([]byte(parts[0]+"."+parts[1]), sig) {
		return nil, ErrInvalidSignature
	}

	claims := &accessTokenClaims{}
	token, _, err := c.parser.ParseUnverified(tokenString, claims)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenUnverifiable) {
			return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if token.Method.Alg() != c.key.Algorithm() {
		return nil, fmt.Errorf("%w: unexpected signing method %q", ErrInvalidSignature, token.Method.Alg())
	}

	if err := c.validator.Validate(claims); err != nil {
		return nil, mapValidationError(err)
	}

	return fromTokenClaims(claims)
}

// mapValidationError translates jwt validation failures into error kinds.
// Expiry wins when several checks fail.
func mapValidationError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrExpired
	case errors.Is(err, jwt.ErrTokenInvalidIssuer):
		return ErrIssuerMismatch
	case errors.Is(err, jwt.ErrTokenInvalidAudience):
		return ErrAudienceMismatch
	default:
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
}
