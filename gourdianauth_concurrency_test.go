// File: gourdianauth_concurrency_test.go

package gourdianauth

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConcurrentRefreshIssuance(t *testing.T) {
	const workers = 100
	ctx := context.Background()

	for name, newHarness := range storeHarnesses(t) {
		t.Run(name, func(t *testing.T) {
			store := newHarness(t).store

			ids := make([]string, workers)
			errs := make([]error, workers)

			var wg sync.WaitGroup
			for i := 0; i < workers; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					ids[i], errs[i] = store.Issue(ctx, "alice")
				}(i)
			}
			wg.Wait()

			seen := make(map[string]struct{}, workers)
			for i := 0; i < workers; i++ {
				require.NoError(t, errs[i])
				_, dup := seen[ids[i]]
				require.False(t, dup, "duplicate identifier %s", ids[i])
				seen[ids[i]] = struct{}{}

				subject, err := store.Resolve(ctx, ids[i])
				require.NoError(t, err)
				assert.Equal(t, "alice", subject)
			}
		})
	}
}

func TestConcurrentServiceOperations(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, WithPrincipalLookup(StaticPrincipals(map[string][]string{
		"alice": {RoleAdmin},
	})))

	refresh, err := svc.IssueRefreshToken(ctx, Principal{Subject: "alice"})
	require.NoError(t, err)

	t.Run("Concurrent Exchange And Validation", func(t *testing.T) {
		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()

				access, err := svc.ExchangeForAccessToken(ctx, refresh.Token)
				if !assert.NoError(t, err) {
					return
				}
				claims, err := svc.ValidateAccessToken(ctx, access.Token)
				if !assert.NoError(t, err) {
					return
				}
				assert.True(t, svc.Evaluate(claims, PolicyRequireAdminRole))
			}()
		}
		wg.Wait()
	})

	t.Run("Revoke During Exchange", func(t *testing.T) {
		other, err := svc.IssueRefreshToken(ctx, Principal{Subject: "alice"})
		require.NoError(t, err)

		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := svc.ExchangeForAccessToken(ctx, other.Token)
				if err != nil {
					assert.ErrorIs(t, err, ErrInvalidRefreshToken)
				}
			}()
		}
		require.NoError(t, svc.RevokeRefreshToken(ctx, other.Token))
		wg.Wait()

		_, err = svc.ExchangeForAccessToken(ctx, other.Token)
		assert.ErrorIs(t, err, ErrInvalidRefreshToken)
	})
}
