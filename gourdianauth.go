// gourdianauth.go

package gourdianauth

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// TokenTypeBearer is the token type reported with issued access tokens.
const TokenTypeBearer = "Bearer"

// AccessTokenResponse contains the response after exchanging a refresh token.
type AccessTokenResponse struct {
	Token     string    `json:"accessToken"` // The signed JWT string
	TokenType string    `json:"tokenType"`   // Always "Bearer"
	Subject   string    `json:"sub"`         // Principal subject
	Roles     []string  `json:"roles,omitempty"`
	IssuedAt  time.Time `json:"iat"` // Issuance time
	ExpiresAt time.Time `json:"exp"` // Expiration time
}

// RefreshTokenResponse contains the response after issuing a refresh token.
type RefreshTokenResponse struct {
	Token     string    `json:"refreshToken"` // The opaque refresh token
	Subject   string    `json:"sub"`          // Principal subject
	IssuedAt  time.Time `json:"iat"`          // Issuance time
	ExpiresAt time.Time `json:"exp"`          // Expiration time
}

// PrincipalLookup resolves the current roles and attributes of a subject
// when an access token is minted.
type PrincipalLookup interface {
	LookupPrincipal(ctx context.Context, subject string) (Principal, error)
}

// PrincipalLookupFunc adapts a function to PrincipalLookup.
type PrincipalLookupFunc func(ctx context.Context, subject string) (Principal, error)

// LookupPrincipal implements PrincipalLookup.
func (f PrincipalLookupFunc) LookupPrincipal(ctx context.Context, subject string) (Principal, error) {
	return f(ctx, subject)
}

// StaticPrincipals returns a PrincipalLookup over a fixed subject to roles
// mapping. Unknown subjects resolve to a principal without roles.
func StaticPrincipals(roles map[string][]string) PrincipalLookup {
	table := make(map[string][]string, len(roles))
	for subject, r := range roles {
		table[subject] = copyRoles(r)
	}
	return PrincipalLookupFunc(func(_ context.Context, subject string) (Principal, error) {
		return Principal{Subject: subject, Roles: copyRoles(table[subject])}, nil
	})
}

// Option customizes a Service.
type Option func(*serviceOptions)

type serviceOptions struct {
	store    RefreshTokenStore
	lookup   PrincipalLookup
	logger   *zap.Logger
	now      func() time.Time
	policies map[string]Authorizer
}

// WithStore sets the refresh token store (default: a MemoryRefreshTokenStore).
func WithStore(store RefreshTokenStore) Option {
	return func(o *serviceOptions) { o.store = store }
}

// WithPrincipalLookup enriches exchanged access tokens with roles and
// attributes. Without it, tokens carry only the subject.
func WithPrincipalLookup(lookup PrincipalLookup) Option {
	return func(o *serviceOptions) { o.lookup = lookup }
}

// WithLogger sets the logger (default: zap.NewNop()).
func WithLogger(logger *zap.Logger) Option {
	return func(o *serviceOptions) { o.logger = logger }
}

// WithClock sets the time source for claims, validation and the default store.
func WithClock(now func() time.Time) Option {
	return func(o *serviceOptions) { o.now = now }
}

// WithPolicy registers a code policy, replacing any configured policy of the
// same name.
func WithPolicy(name string, policy Authorizer) Option {
	return func(o *serviceOptions) {
		if o.policies == nil {
			o.policies = make(map[string]Authorizer)
		}
		o.policies[name] = policy
	}
}

// Service issues refresh tokens, exchanges them for access tokens, validates
// access tokens and evaluates policies. It is safe for concurrent use.
type Service struct {
	config     Config
	builder    *ClaimsBuilder
	codec      *TokenCodec
	store      RefreshTokenStore
	refreshTTL time.Duration
	policies   *PolicyEvaluator
	lookup     PrincipalLookup
	logger     *zap.Logger
	now        func() time.Time
}

// NewService validates config and assembles a Service. Configuration
// problems are reported as ErrConfiguration.
func NewService(config Config, opts ...Option) (*Service, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	o := serviceOptions{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.now == nil {
		o.now = time.Now
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	if o.store == nil {
		memory := NewMemoryRefreshTokenStore(config.RefreshTokenTTL)
		memory.now = o.now
		o.store = memory
	}

	key, err := NewSigningKey([]byte(config.SigningSecret))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize signing key: %w", err)
	}

	refreshTTL := config.RefreshTokenTTL
	if reporter, ok := o.store.(TTLReporter); ok && reporter.TTL() > 0 {
		refreshTTL = reporter.TTL()
	}

	policies := PoliciesFromRoles(config.Policies)
	for name, policy := range o.policies {
		policies[name] = policy
	}

	return &Service{
		config:  config,
		builder: NewClaimsBuilder(o.now),
		codec: NewTokenCodec(key, CodecOptions{
			Issuer:           config.Issuer,
			Audience:         config.Audience,
			ValidateIssuer:   config.ValidateIssuer,
			ValidateAudience: config.ValidateAudience,
			Leeway:           config.ClockSkew,
			Now:              o.now,
		}),
		store:      o.store,
		refreshTTL: refreshTTL,
		policies:   NewPolicyEvaluator(policies),
		lookup:     o.lookup,
		logger:     o.logger,
		now:        o.now,
	}, nil
}

// IssueRefreshToken records a new refresh token for principal.
func (s *Service) IssueRefreshToken(ctx context.Context, principal Principal) (*RefreshTokenResponse, error) {
	issuedAt := s.now().UTC().Truncate(time.Second)

	tokenID, err := s.store.Issue(ctx, principal.Subject)
	if err != nil {
		s.logger.Warn("refresh token issuance failed", zap.String("subject", principal.Subject), zap.Error(err))
		return nil, err
	}

	s.logger.Debug("refresh token issued", zap.String("subject", principal.Subject))

	return &RefreshTokenResponse{
		Token:     tokenID,
		Subject:   principal.Subject,
		IssuedAt:  issuedAt,
		ExpiresAt: issuedAt.Add(s.refreshTTL),
	}, nil
}

// ExchangeForAccessToken mints an access token for the subject of
// refreshTokenID. Unknown, revoked and expired refresh tokens yield
// ErrInvalidRefreshToken; the refresh token stays valid after use.
func (s *Service) ExchangeForAccessToken(ctx context.Context, refreshTokenID string) (*AccessTokenResponse, error) {
	subject, err := s.store.Resolve(ctx, refreshTokenID)
	if err != nil {
		s.logger.Info("refresh token rejected", zap.Error(err))
		return nil, err
	}

	principal := Principal{Subject: subject}
	if s.lookup != nil {
		found, err := s.lookup.LookupPrincipal(ctx, subject)
		if err != nil {
			s.logger.Warn("principal lookup failed", zap.String("subject", subject), zap.Error(err))
			return nil, fmt.Errorf("failed to look up principal: %w", err)
		}
		principal = found
		principal.Subject = subject
	}

	claims := s.builder.Build(principal, s.config.Issuer, s.config.Audience, s.config.AccessTokenTTL)
	token, err := s.codec.Encode(claims)
	if err != nil {
		s.logger.Error("access token encoding failed", zap.String("subject", subject), zap.Error(err))
		return nil, err
	}

	s.logger.Debug("access token issued",
		zap.String("subject", subject),
		zap.String("jti", claims.ID),
		zap.Time("expires_at", claims.ExpiresAt),
	)

	return &AccessTokenResponse{
		Token:     token,
		TokenType: TokenTypeBearer,
		Subject:   claims.Subject,
		Roles:     copyRoles(claims.Roles),
		IssuedAt:  claims.IssuedAt,
		ExpiresAt: claims.ExpiresAt,
	}, nil
}

// ValidateAccessToken verifies tokenString and returns its claims, failing
// with ErrInvalidSignature, ErrMalformed, ErrExpired, ErrIssuerMismatch or
// ErrAudienceMismatch.
func (s *Service) ValidateAccessToken(ctx context.Context, tokenString string) (*ClaimSet, error) {
	claims, err := s.codec.Decode(tokenString)
	if err != nil {
		s.logger.Debug("access token rejected", zap.Error(err))
		return nil, err
	}
	return claims, nil
}

// RevokeRefreshToken invalidates refreshTokenID. It is idempotent.
func (s *Service) RevokeRefreshToken(ctx context.Context, refreshTokenID string) error {
	if err := s.store.Revoke(ctx, refreshTokenID); err != nil {
		s.logger.Warn("refresh token revocation failed", zap.Error(err))
		return err
	}
	return nil
}

// RevokeSubject invalidates every refresh token of subject.
func (s *Service) RevokeSubject(ctx context.Context, subject string) (int, error) {
	n, err := s.store.RevokeSubject(ctx, subject)
	if err != nil {
		s.logger.Warn("subject revocation failed", zap.String("subject", subject), zap.Error(err))
		return n, err
	}
	s.logger.Info("subject refresh tokens revoked", zap.String("subject", subject), zap.Int("count", n))
	return n, nil
}

// Evaluate reports whether claims satisfy the named policy. Unknown policies
// are denied.
func (s *Service) Evaluate(claims *ClaimSet, policy string) bool {
	return s.policies.Evaluate(claims, policy)
}

// Authorize returns ErrPolicyDenied when claims do not satisfy policy.
func (s *Service) Authorize(claims *ClaimSet, policy string) error {
	return s.policies.Authorize(claims, policy)
}

// Config returns a copy of the service configuration without the secret.
func (s *Service) Config() Config {
	c := s.config
	c.SigningSecret = ""
	return c
}
