package httpauth

import (
	"context"
	"crypto/subtle"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/gourdian25/gourdianauth"
)

// APIKeyHeader carries the issuer API key.
const APIKeyHeader = "X-API-Key"

// ClaimsContextKey is the key used to store claims in the request context.
type ClaimsContextKey struct{}

// ClaimsFromContext returns the claims stored by Authenticate.
func ClaimsFromContext(ctx context.Context) (*gourdianauth.ClaimSet, bool) {
	claims, ok := ctx.Value(ClaimsContextKey{}).(*gourdianauth.ClaimSet)
	return claims, ok && claims != nil
}

// WithClaims stores claims in ctx.
func WithClaims(ctx context.Context, claims *gourdianauth.ClaimSet) context.Context {
	return context.WithValue(ctx, ClaimsContextKey{}, claims)
}

// Validator validates bearer tokens.
type Validator interface {
	ValidateAccessToken(ctx context.Context, token string) (*gourdianauth.ClaimSet, error)
}

// Evaluator evaluates named policies.
type Evaluator interface {
	Evaluate(claims *gourdianauth.ClaimSet, policy string) bool
}

// Middleware holds what the authentication middlewares share.
type Middleware struct {
	validator Validator
	evaluator Evaluator
	realm     string
	metrics   *Metrics
	logger    *zap.Logger
}

// NewMiddleware returns a Middleware. realm is reported in WWW-Authenticate
// challenges; metrics and logger may be nil.
func NewMiddleware(validator Validator, evaluator Evaluator, realm string, metrics *Metrics, logger *zap.Logger) *Middleware {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Middleware{
		validator: validator,
		evaluator: evaluator,
		realm:     realm,
		metrics:   metrics,
		logger:    logger,
	}
}

// challenge builds a RFC 6750 WWW-Authenticate value.
func (m *Middleware) challenge(invalidToken bool) string {
	var parts []string
	if m.realm != "" {
		parts = append(parts, fmt.Sprintf(`realm=%q`, m.realm))
	}
	if invalidToken {
		parts = append(parts, `error="invalid_token"`)
	}
	if len(parts) == 0 {
		return "Bearer"
	}
	return "Bearer " + strings.Join(parts, ", ")
}

// Authenticate requires a valid "Authorization: Bearer <token>" header and
// stores the token claims in the request context.
func (m *Middleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			m.metrics.failed(reasonMissingCredentials)
			w.Header().Set("WWW-Authenticate", m.challenge(false))
			writeError(w, m.logger, http.StatusUnauthorized, CodeUnauthorized)
			return
		}

		claims, err := m.validator.ValidateAccessToken(r.Context(), token)
		if err != nil {
			reason := failureReason(err)
			m.metrics.failed(reason)
			m.logger.Debug("bearer token rejected", zap.String("reason", reason))

			w.Header().Set("WWW-Authenticate", m.challenge(true))
			writeError(w, m.logger, http.StatusUnauthorized, CodeInvalidToken)
			return
		}

		next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
	})
}

// RequirePolicy rejects requests whose claims do not satisfy policy with
// 403. It must run after Authenticate; requests without claims get 401.
func (m *Middleware) RequirePolicy(policy string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := ClaimsFromContext(r.Context())
			if !ok {
				m.metrics.failed(reasonMissingCredentials)
				w.Header().Set("WWW-Authenticate", m.challenge(false))
				writeError(w, m.logger, http.StatusUnauthorized, CodeUnauthorized)
				return
			}

			if !m.evaluator.Evaluate(claims, policy) {
				m.metrics.failed(reasonPolicyDenied)
				m.logger.Info("policy denied",
					zap.String("subject", claims.Subject),
					zap.String("policy", policy),
				)
				writeError(w, m.logger, http.StatusForbidden, CodeForbidden)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RequireAPIKey rejects requests whose APIKeyHeader does not equal key with
// 401. It guards endpoints that trust the caller to name a subject.
func (m *Middleware) RequireAPIKey(key string) func(http.Handler) http.Handler {
	expected := []byte(key)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			provided := r.Header.Get(APIKeyHeader)
			if provided == "" {
				m.metrics.failed(reasonMissingCredentials)
				writeError(w, m.logger, http.StatusUnauthorized, CodeUnauthorized)
				return
			}
			if subtle.ConstantTimeCompare([]byte(provided), expected) != 1 {
				m.metrics.failed(reasonInvalidAPIKey)
				m.logger.Info("issuer api key rejected", zap.String("remote_addr", r.RemoteAddr))
				writeError(w, m.logger, http.StatusUnauthorized, CodeUnauthorized)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
