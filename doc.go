// Package gourdianauth provides a token issuance and validation service built on
// opaque refresh tokens and short-lived HMAC-signed access tokens.
//
// Features:
// - Issuance of opaque refresh tokens mapped to a subject (in-memory or Redis backed)
// - Exchange of refresh tokens for signed JWT access tokens (HS256)
// - Stateless access token validation (signature, expiry, issuer, audience)
// - Named authorization policies evaluated against validated claims
// - Typed error kinds that separate unauthorized from forbidden outcomes
package gourdianauth
