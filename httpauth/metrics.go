package httpauth

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/gourdian25/gourdianauth"
)

// Token kinds and failure reasons used as metric labels.
const (
	kindRefresh = "refresh"
	kindAccess  = "access"

	reasonMissingCredentials = "missing_credentials"
	reasonInvalidAPIKey      = "invalid_api_key"
	reasonInvalidRefresh     = "invalid_refresh_token"
	reasonInvalidSignature   = "invalid_signature"
	reasonMalformed          = "malformed"
	reasonExpired            = "expired"
	reasonIssuerMismatch     = "issuer_mismatch"
	reasonAudienceMismatch   = "audience_mismatch"
	reasonPolicyDenied       = "policy_denied"
	reasonStoreFailure       = "store_failure"
	reasonInternal           = "internal"
)

// Metrics counts issued tokens and authentication failures.
type Metrics struct {
	tokensIssued *prometheus.CounterVec
	authFailures *prometheus.CounterVec
}

// NewMetrics creates the counters and registers them with reg. A nil reg
// leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		tokensIssued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gourdianauth",
			Name:      "tokens_issued_total",
			Help:      "Number of tokens issued, by kind.",
		}, []string{"kind"}),
		authFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gourdianauth",
			Name:      "auth_failures_total",
			Help:      "Number of rejected authentication or authorization attempts, by reason.",
		}, []string{"reason"}),
	}
	if reg != nil {
		reg.MustRegister(m.tokensIssued, m.authFailures)
	}
	return m
}

func (m *Metrics) issued(kind string) {
	if m == nil {
		return
	}
	m.tokensIssued.WithLabelValues(kind).Inc()
}

func (m *Metrics) failed(reason string) {
	if m == nil {
		return
	}
	m.authFailures.WithLabelValues(reason).Inc()
}

// failureReason maps an error kind to its metric label and error code.
func failureReason(err error) string {
	switch {
	case errors.Is(err, gourdianauth.ErrInvalidRefreshToken):
		return reasonInvalidRefresh
	case errors.Is(err, gourdianauth.ErrInvalidSignature):
		return reasonInvalidSignature
	case errors.Is(err, gourdianauth.ErrMalformed):
		return reasonMalformed
	case errors.Is(err, gourdianauth.ErrExpired):
		return reasonExpired
	case errors.Is(err, gourdianauth.ErrIssuerMismatch):
		return reasonIssuerMismatch
	case errors.Is(err, gourdianauth.ErrAudienceMismatch):
		return reasonAudienceMismatch
	case errors.Is(err, gourdianauth.ErrPolicyDenied):
		return reasonPolicyDenied
	case gourdianauth.IsStoreFailure(err):
		return reasonStoreFailure
	default:
		return reasonInternal
	}
}
