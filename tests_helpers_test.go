// tests_helpers_test.go

package gourdianauth

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

var testSymmetricKey = "test-secret-32-bytes-long-1234567890"

// fakeClock is a settable time source for tests.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, time.March, 3, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func testConfig() Config {
	return DefaultConfig(testSymmetricKey)
}

func newTestService(t testing.TB, opts ...Option) *Service {
	t.Helper()

	svc, err := NewService(testConfig(), opts...)
	require.NoError(t, err)
	return svc
}

func newTestCodec(t testing.TB, clock *fakeClock) *TokenCodec {
	t.Helper()

	key, err := NewSigningKey([]byte(testSymmetricKey))
	require.NoError(t, err)

	cfg := testConfig()
	return NewTokenCodec(key, CodecOptions{
		Issuer:           cfg.Issuer,
		Audience:         cfg.Audience,
		ValidateIssuer:   true,
		ValidateAudience: true,
		Now:              clock.Now,
	})
}

func newTestMemoryStore(clock *fakeClock) *MemoryRefreshTokenStore {
	store := NewMemoryRefreshTokenStore(DefaultRefreshTokenTTL)
	store.now = clock.Now
	return store
}

// testRedisClient starts a miniredis server bound to the test lifetime.
func testRedisClient(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	_, err := client.Ping(context.Background()).Result()
	require.NoError(t, err)
	return server, client
}
