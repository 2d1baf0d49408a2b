package gourdianauth

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// SigningKey holds the symmetric secret used to sign and verify access
// tokens. It is immutable after construction and never printed.
type SigningKey struct {
	secret []byte
	method *jwt.SigningMethodHMAC
}

// NewSigningKey copies secret into a new SigningKey. Secrets shorter than
// MinSecretLength are rejected with ErrConfiguration.
func NewSigningKey(secret []byte) (*SigningKey, error) {
	if len(secret) == 0 {
		return nil, fmt.Errorf("%w: signing secret is required", ErrConfiguration)
	}
	if len(secret) < MinSecretLength {
		return nil, fmt.Errorf("%w: signing secret must be at least %d bytes, got %d", ErrConfiguration, MinSecretLength, len(secret))
	}

	key := make([]byte, len(secret))
	copy(key, secret)

	return &SigningKey{
		secret: key,
		method: jwt.SigningMethodHS256,
	}, nil
}

// Algorithm returns the JWS algorithm name of the key.
func (k *SigningKey) Algorithm() string {
	return k.method.Alg()
}

// Sign returns the HMAC-SHA256 of data.
func (k *SigningKey) Sign(data []byte) ([]byte, error) {
	sig, err := k.method.Sign(string(data), k.secret)
	if err != nil {
		return nil, fmt.Errorf("failed to sign: %w", err)
	}
	return sig, nil
}

// Verify reports whether sig is the HMAC-SHA256 of data. The comparison is
// constant time.
func (k *SigningKey) Verify(data, sig []byte) bool {
	return k.method.Verify(string(data), sig, k.secret) == nil
}

// String keeps the secret out of logs and fmt output.
func (k *SigningKey) String() string {
	return "SigningKey(" + k.method.Alg() + ", [redacted])"
}

// GoString keeps the secret out of %#v output.
func (k *SigningKey) GoString() string {
	return k.String()
}
