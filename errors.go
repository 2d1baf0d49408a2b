package gourdianauth

import "errors"

// Error kinds returned by the service. Callers match them with errors.Is;
// concrete errors wrap one of these with additional context.
var (
	// ErrConfiguration reports an unusable configuration, e.g. a signing
	// secret shorter than 32 bytes. It is only returned at construction time.
	ErrConfiguration = errors.New("configuration error")

	// ErrInvalidRefreshToken reports an unknown, revoked or expired refresh token.
	ErrInvalidRefreshToken = errors.New("invalid refresh token")

	// ErrInvalidSignature reports an access token whose signature does not verify.
	ErrInvalidSignature = errors.New("invalid token signature")

	// ErrMalformed reports an access token that cannot be parsed.
	ErrMalformed = errors.New("malformed token")

	// ErrExpired reports an access token past its expiry.
	ErrExpired = errors.New("token expired")

	// ErrIssuerMismatch reports an access token issued by another issuer.
	ErrIssuerMismatch = errors.New("token issuer mismatch")

	// ErrAudienceMismatch reports an access token issued for another audience.
	ErrAudienceMismatch = errors.New("token audience mismatch")

	// ErrPolicyDenied reports claims that do not satisfy a named policy.
	ErrPolicyDenied = errors.New("policy denied")

	// ErrInvalidClaims reports a claim set that cannot be encoded.
	ErrInvalidClaims = errors.New("invalid claims")

	// ErrStoreTimeout reports a refresh token store call that exceeded its deadline.
	ErrStoreTimeout = errors.New("refresh token store timeout")

	// ErrStoreUnavailable reports any other refresh token store failure.
	ErrStoreUnavailable = errors.New("refresh token store unavailable")
)

var unauthorizedKinds = []error{
	ErrInvalidRefreshToken,
	ErrInvalidSignature,
	ErrMalformed,
	ErrExpired,
	ErrIssuerMismatch,
	ErrAudienceMismatch,
}

// IsUnauthorized reports whether err is one of the kinds surfaced to callers
// as unauthorized (401). ErrPolicyDenied is forbidden, not unauthorized.
func IsUnauthorized(err error) bool {
	if err == nil {
		return false
	}
	for _, kind := range unauthorizedKinds {
		if errors.Is(err, kind) {
			return true
		}
	}
	return false
}

// IsStoreFailure reports whether err originates from the refresh token
// backend rather than from the token presented.
func IsStoreFailure(err error) bool {
	return errors.Is(err, ErrStoreTimeout) || errors.Is(err, ErrStoreUnavailable)
}
