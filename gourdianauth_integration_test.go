// File: gourdianauth_integration_test.go

package gourdianauth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestServiceTokenLifecycle(t *testing.T) {
	ctx := context.Background()

	t.Run("Alice End To End", func(t *testing.T) {
		svc := newTestService(t)

		refresh, err := svc.IssueRefreshToken(ctx, Principal{Subject: "alice"})
		require.NoError(t, err)
		assert.Equal(t, "alice", refresh.Subject)
		assert.Equal(t, refresh.IssuedAt.Add(DefaultRefreshTokenTTL), refresh.ExpiresAt)

		access, err := svc.ExchangeForAccessToken(ctx, refresh.Token)
		require.NoError(t, err)
		assert.Equal(t, TokenTypeBearer, access.TokenType)
		assert.Equal(t, "alice", access.Subject)
		assert.Equal(t, access.IssuedAt.Add(DefaultAccessTokenTTL), access.ExpiresAt)

		claims, err := svc.ValidateAccessToken(ctx, access.Token)
		require.NoError(t, err)
		assert.Equal(t, "alice", claims.Subject)
		assert.Equal(t, "gourdianauth", claims.Issuer)
		assert.Equal(t, "gourdianauth", claims.Audience)
		assert.Equal(t, access.ExpiresAt, claims.ExpiresAt)
		assert.Empty(t, claims.Roles)
	})

	t.Run("Unknown Refresh Token", func(t *testing.T) {
		svc := newTestService(t)

		_, err := svc.ExchangeForAccessToken(ctx, "does-not-exist")
		assert.ErrorIs(t, err, ErrInvalidRefreshToken)
		assert.True(t, IsUnauthorized(err))
	})

	t.Run("Refresh Token Reusable Until Revoked", func(t *testing.T) {
		svc := newTestService(t)

		refresh, err := svc.IssueRefreshToken(ctx, Principal{Subject: "alice"})
		require.NoError(t, err)

		first, err := svc.ExchangeForAccessToken(ctx, refresh.Token)
		require.NoError(t, err)
		second, err := svc.ExchangeForAccessToken(ctx, refresh.Token)
		require.NoError(t, err)
		assert.NotEqual(t, first.Token, second.Token)

		require.NoError(t, svc.RevokeRefreshToken(ctx, refresh.Token))
		_, err = svc.ExchangeForAccessToken(ctx, refresh.Token)
		assert.ErrorIs(t, err, ErrInvalidRefreshToken)

		// Access tokens minted before revocation stay valid until expiry.
		_, err = svc.ValidateAccessToken(ctx, first.Token)
		assert.NoError(t, err)
	})

	t.Run("Expired One Second Ago", func(t *testing.T) {
		svc := newTestService(t)

		now := time.Now().UTC().Truncate(time.Second)
		token, err := svc.codec.Encode(ClaimSet{
			ID:        uuid.NewString(),
			Subject:   "alice",
			Issuer:    "gourdianauth",
			Audience:  "gourdianauth",
			IssuedAt:  now.Add(-time.Hour),
			ExpiresAt: now.Add(-time.Second),
		})
		require.NoError(t, err)

		_, err = svc.ValidateAccessToken(ctx, token)
		assert.ErrorIs(t, err, ErrExpired)
	})

	t.Run("Lifetimes Follow The Clock", func(t *testing.T) {
		clock := newFakeClock()
		svc := newTestService(t, WithClock(clock.Now))

		refresh, err := svc.IssueRefreshToken(ctx, Principal{Subject: "alice"})
		require.NoError(t, err)
		access, err := svc.ExchangeForAccessToken(ctx, refresh.Token)
		require.NoError(t, err)

		clock.Advance(DefaultAccessTokenTTL)
		_, err = svc.ValidateAccessToken(ctx, access.Token)
		assert.ErrorIs(t, err, ErrExpired)

		_, err = svc.ExchangeForAccessToken(ctx, refresh.Token)
		require.NoError(t, err)

		clock.Advance(DefaultRefreshTokenTTL)
		_, err = svc.ExchangeForAccessToken(ctx, refresh.Token)
		assert.ErrorIs(t, err, ErrInvalidRefreshToken)
	})

	t.Run("Expiry Follows The Store TTL", func(t *testing.T) {
		clock := newFakeClock()
		store := NewMemoryRefreshTokenStore(time.Hour)
		store.now = clock.Now
		svc := newTestService(t, WithClock(clock.Now), WithStore(store))

		refresh, err := svc.IssueRefreshToken(ctx, Principal{Subject: "alice"})
		require.NoError(t, err)
		assert.Equal(t, refresh.IssuedAt.Add(time.Hour), refresh.ExpiresAt)

		clock.Advance(time.Hour)
		_, err = svc.ExchangeForAccessToken(ctx, refresh.Token)
		assert.ErrorIs(t, err, ErrInvalidRefreshToken)
	})

	t.Run("Revoke Subject", func(t *testing.T) {
		svc := newTestService(t)

		var tokens []string
		for i := 0; i < 3; i++ {
			refresh, err := svc.IssueRefreshToken(ctx, Principal{Subject: "alice"})
			require.NoError(t, err)
			tokens = append(tokens, refresh.Token)
		}

		n, err := svc.RevokeSubject(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, 3, n)

		for _, token := range tokens {
			_, err := svc.ExchangeForAccessToken(ctx, token)
			assert.ErrorIs(t, err, ErrInvalidRefreshToken)
		}
	})

	t.Run("Empty Subject", func(t *testing.T) {
		svc := newTestService(t)

		_, err := svc.IssueRefreshToken(ctx, Principal{})
		assert.ErrorIs(t, err, ErrInvalidClaims)
	})
}

func TestServicePrincipalLookup(t *testing.T) {
	ctx := context.Background()

	t.Run("Static Principals", func(t *testing.T) {
		svc := newTestService(t, WithPrincipalLookup(StaticPrincipals(map[string][]string{
			"alice": {RoleAdmin},
			"bob":   {RoleModerator},
		})))

		for subject, wantAdmin := range map[string]bool{"alice": true, "bob": false, "carol": false} {
			refresh, err := svc.IssueRefreshToken(ctx, Principal{Subject: subject})
			require.NoError(t, err)
			access, err := svc.ExchangeForAccessToken(ctx, refresh.Token)
			require.NoError(t, err)
			claims, err := svc.ValidateAccessToken(ctx, access.Token)
			require.NoError(t, err)

			assert.Equal(t, wantAdmin, svc.Evaluate(claims, PolicyRequireAdminRole), "subject %s", subject)
		}
	})

	t.Run("Attributes Become Custom Claims", func(t *testing.T) {
		svc := newTestService(t, WithPrincipalLookup(PrincipalLookupFunc(func(_ context.Context, subject string) (Principal, error) {
			return Principal{
				Subject:    "ignored",
				Roles:      []string{"User"},
				Attributes: map[string]string{"tenant": "acme"},
			}, nil
		})))

		refresh, err := svc.IssueRefreshToken(ctx, Principal{Subject: "alice"})
		require.NoError(t, err)
		access, err := svc.ExchangeForAccessToken(ctx, refresh.Token)
		require.NoError(t, err)
		claims, err := svc.ValidateAccessToken(ctx, access.Token)
		require.NoError(t, err)

		assert.Equal(t, "alice", claims.Subject)
		assert.Equal(t, []string{"User"}, claims.Roles)
		assert.Equal(t, map[string]string{"tenant": "acme"}, claims.Custom)
	})

	t.Run("Lookup Failure", func(t *testing.T) {
		lookupErr := errors.New("directory offline")
		svc := newTestService(t, WithPrincipalLookup(PrincipalLookupFunc(func(context.Context, string) (Principal, error) {
			return Principal{}, lookupErr
		})))

		refresh, err := svc.IssueRefreshToken(ctx, Principal{Subject: "alice"})
		require.NoError(t, err)

		_, err = svc.ExchangeForAccessToken(ctx, refresh.Token)
		assert.ErrorIs(t, err, lookupErr)
		assert.False(t, IsUnauthorized(err))
	})
}

func TestServiceWithRedisStore(t *testing.T) {
	ctx := context.Background()
	server, client := testRedisClient(t)
	store := NewRedisRefreshTokenStoreWithClient(client, RedisStoreConfig{TTL: time.Hour})

	first := newTestService(t, WithStore(store))
	second := newTestService(t, WithStore(NewRedisRefreshTokenStoreWithClient(client, RedisStoreConfig{TTL: time.Hour})))

	refresh, err := first.IssueRefreshToken(ctx, Principal{Subject: "alice"})
	require.NoError(t, err)

	access, err := second.ExchangeForAccessToken(ctx, refresh.Token)
	require.NoError(t, err)

	_, err = first.ValidateAccessToken(ctx, access.Token)
	require.NoError(t, err)

	server.SetError("ERR backend failure")
	_, err = second.ExchangeForAccessToken(ctx, refresh.Token)
	assert.True(t, IsStoreFailure(err))
	assert.False(t, IsUnauthorized(err))
	server.SetError("")
}

func TestServiceNeverLogsSecrets(t *testing.T) {
	ctx := context.Background()
	core, logs := observer.New(zapcore.DebugLevel)
	svc := newTestService(t, WithLogger(zap.New(core)))

	refresh, err := svc.IssueRefreshToken(ctx, Principal{Subject: "alice"})
	require.NoError(t, err)
	access, err := svc.ExchangeForAccessToken(ctx, refresh.Token)
	require.NoError(t, err)
	_, err = svc.ValidateAccessToken(ctx, access.Token+"x")
	require.Error(t, err)
	_, err = svc.ExchangeForAccessToken(ctx, "does-not-exist")
	require.Error(t, err)
	require.NoError(t, svc.RevokeRefreshToken(ctx, refresh.Token))

	require.NotZero(t, logs.Len())
	for _, entry := range logs.All() {
		line := entry.Message + fmt.Sprint(entry.ContextMap())
		for _, secret := range []string{testSymmetricKey, refresh.Token, access.Token} {
			assert.False(t, strings.Contains(line, secret), "log entry %q leaks a secret", entry.Message)
		}
	}

	assert.Empty(t, svc.Config().SigningSecret)
}

func TestNewService(t *testing.T) {
	t.Run("Short Secret", func(t *testing.T) {
		svc, err := NewService(DefaultConfig("too-short"))
		assert.Nil(t, svc)
		assert.ErrorIs(t, err, ErrConfiguration)
	})

	t.Run("Defaults", func(t *testing.T) {
		svc := newTestService(t)
		assert.IsType(t, &MemoryRefreshTokenStore{}, svc.store)
		assert.NotNil(t, svc.logger)
	})
}
