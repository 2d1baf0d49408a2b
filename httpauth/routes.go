// Package httpauth exposes a gourdianauth.Service over HTTP: token issuance
// and exchange endpoints, bearer authentication and policy middleware, and
// Prometheus counters for both.
package httpauth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/gourdian25/gourdianauth"
)

// maxBodyBytes bounds request bodies of the token endpoints.
const maxBodyBytes = 1 << 16

// TokenService is the part of gourdianauth.Service the routes use.
type TokenService interface {
	Validator
	Evaluator
	IssueRefreshToken(ctx context.Context, principal gourdianauth.Principal) (*gourdianauth.RefreshTokenResponse, error)
	ExchangeForAccessToken(ctx context.Context, refreshTokenID string) (*gourdianauth.AccessTokenResponse, error)
	RevokeRefreshToken(ctx context.Context, refreshTokenID string) error
}

// Option customizes the router.
type Option func(*options)

type options struct {
	realm       string
	issuerKey   string
	metrics     *Metrics
	logger      *zap.Logger
	middlewares []func(http.Handler) http.Handler
}

// WithRealm sets the realm reported in WWW-Authenticate challenges.
func WithRealm(realm string) Option {
	return func(o *options) { o.realm = realm }
}

// WithIssuerKey requires key in the X-API-Key header of refresh token
// issuance requests.
func WithIssuerKey(key string) Option {
	return func(o *options) { o.issuerKey = key }
}

// WithMetrics records token and failure counters.
func WithMetrics(m *Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithLogger sets the logger (default: zap.NewNop()).
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithMiddlewares adds middlewares in front of every route.
func WithMiddlewares(mw ...func(http.Handler) http.Handler) Option {
	return func(o *options) { o.middlewares = append(o.middlewares, mw...) }
}

// AuthRoutes defines the token routes.
type AuthRoutes struct {
	service TokenService
	auth    *Middleware
	metrics *Metrics
	logger  *zap.Logger
}

type refreshTokenRequest struct {
	Subject string `json:"subject"`
}

type accessTokenRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// NewRouter mounts the token routes under /auth:
//
//	POST /auth/refresh-token  {"subject"}       issue a refresh token (issuer key)
//	POST /auth/access-token   {"refreshToken"}  exchange it for an access token
//	POST /auth/revoke         {"refreshToken"}  revoke a refresh token
//	GET  /auth/me             bearer            claims of the caller
//	GET  /auth/admin          bearer + RequireAdminRole
//
// Issuing a refresh token trusts the caller to name the subject. Without
// WithIssuerKey the router must sit behind an authenticator that only lets
// trusted callers reach /auth/refresh-token.
//
// Callers may add further routes to the returned router.
func NewRouter(service TokenService, opts ...Option) *chi.Mux {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}

	routes := AuthRoutes{
		service: service,
		auth:    NewMiddleware(service, service, o.realm, o.metrics, o.logger),
		metrics: o.metrics,
		logger:  o.logger,
	}

	r := chi.NewRouter()
	r.Use(o.middlewares...)

	r.Route("/auth", func(r chi.Router) {
		if o.issuerKey != "" {
			r.With(routes.auth.RequireAPIKey(o.issuerKey)).Post("/refresh-token", routes.issueRefreshToken)
		} else {
			r.Post("/refresh-token", routes.issueRefreshToken)
		}
		r.Post("/access-token", routes.exchangeAccessToken)
		r.Post("/revoke", routes.revokeRefreshToken)

		r.Group(func(r chi.Router) {
			r.Use(routes.auth.Authenticate)
			r.Get("/me", routes.me)
			r.With(routes.auth.RequirePolicy(gourdianauth.PolicyRequireAdminRole)).Get("/admin", routes.me)
		})
	})

	return r
}

func (s *AuthRoutes) issueRefreshToken(w http.ResponseWriter, r *http.Request) {
	var req refreshTokenRequest
	if err := decodeBody(w, r, &req); err != nil || req.Subject == "" {
		writeError(w, s.logger, http.StatusBadRequest, CodeInvalidRequest)
		return
	}

	resp, err := s.service.IssueRefreshToken(r.Context(), gourdianauth.Principal{Subject: req.Subject})
	if err != nil {
		s.fail(w, err)
		return
	}

	s.metrics.issued(kindRefresh)
	writeJSON(w, s.logger, http.StatusOK, resp)
}

func (s *AuthRoutes) exchangeAccessToken(w http.ResponseWriter, r *http.Request) {
	var req accessTokenRequest
	if err := decodeBody(w, r, &req); err != nil || req.RefreshToken == "" {
		writeError(w, s.logger, http.StatusBadRequest, CodeInvalidRequest)
		return
	}

	resp, err := s.service.ExchangeForAccessToken(r.Context(), req.RefreshToken)
	if err != nil {
		s.fail(w, err)
		return
	}

	s.metrics.issued(kindAccess)
	writeJSON(w, s.logger, http.StatusOK, resp)
}

func (s *AuthRoutes) revokeRefreshToken(w http.ResponseWriter, r *http.Request) {
	var req accessTokenRequest
	if err := decodeBody(w, r, &req); err != nil || req.RefreshToken == "" {
		writeError(w, s.logger, http.StatusBadRequest, CodeInvalidRequest)
		return
	}

	if err := s.service.RevokeRefreshToken(r.Context(), req.RefreshToken); err != nil {
		s.fail(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *AuthRoutes) me(w http.ResponseWriter, r *http.Request) {
	claims, _ := ClaimsFromContext(r.Context())
	writeJSON(w, s.logger, http.StatusOK, claims)
}

// fail maps a service error to its status and stable error code.
func (s *AuthRoutes) fail(w http.ResponseWriter, err error) {
	reason := failureReason(err)

	switch {
	case gourdianauth.IsUnauthorized(err):
		s.metrics.failed(reason)
		writeError(w, s.logger, http.StatusUnauthorized, CodeUnauthorized)
	case errors.Is(err, gourdianauth.ErrInvalidClaims):
		writeError(w, s.logger, http.StatusBadRequest, CodeInvalidRequest)
	case gourdianauth.IsStoreFailure(err):
		s.metrics.failed(reason)
		s.logger.Warn("refresh token store failure", zap.Error(err))
		writeError(w, s.logger, http.StatusServiceUnavailable, CodeUnavailable)
	default:
		s.metrics.failed(reason)
		s.logger.Error("token request failed", zap.Error(err))
		writeError(w, s.logger, http.StatusInternalServerError, CodeInternal)
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
