// File: gourdianauth.store.memory.imp.go

package gourdianauth

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// refreshEntry is a stored refresh token keyed by its hash. Revoked entries
// stay behind as tombstones until expiry so their identifier is never issued
// again.
type refreshEntry struct {
	subject   string
	expiresAt time.Time
	revoked   bool
}

// MemoryRefreshTokenStore is an in-memory implementation of RefreshTokenStore.
// Suitable for development, testing, or single-instance deployments; a
// process restart invalidates every outstanding token.
type MemoryRefreshTokenStore struct {
	mu        sync.RWMutex
	tokens    map[string]refreshEntry
	bySubject map[string]map[string]struct{}
	ttl       time.Duration
	now       func() time.Time
}

// NewMemoryRefreshTokenStore creates a new in-memory refresh token store.
// ttl is the lifetime of issued tokens (default: DefaultRefreshTokenTTL).
func NewMemoryRefreshTokenStore(ttl time.Duration) *MemoryRefreshTokenStore {
	if ttl <= 0 {
		ttl = DefaultRefreshTokenTTL
	}

	return &MemoryRefreshTokenStore{
		tokens:    make(map[string]refreshEntry),
		bySubject: make(map[string]map[string]struct{}),
		ttl:       ttl,
		now:       time.Now,
	}
}

// TTL returns the lifetime of issued tokens.
func (m *MemoryRefreshTokenStore) TTL() time.Duration {
	return m.ttl
}

// Issue records a new identifier for subject.
func (m *MemoryRefreshTokenStore) Issue(ctx context.Context, subject string) (string, error) {
	if err := validateSubject(subject); err != nil {
		return "", err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for attempt := 0; attempt < maxIssueAttempts; attempt++ {
		tokenID, err := newTokenID()
		if err != nil {
			return "", err
		}

		tokenHash := hashToken(tokenID)
		if _, exists := m.tokens[tokenHash]; exists {
			continue
		}

		m.tokens[tokenHash] = refreshEntry{
			subject:   subject,
			expiresAt: m.now().Add(m.ttl),
		}
		hashes, ok := m.bySubject[subject]
		if !ok {
			hashes = make(map[string]struct{})
			m.bySubject[subject] = hashes
		}
		hashes[tokenHash] = struct{}{}

		return tokenID, nil
	}

	return "", fmt.Errorf("failed to issue refresh token: identifier collision after %d attempts", maxIssueAttempts)
}

// Resolve returns the subject tokenID was issued for.
func (m *MemoryRefreshTokenStore) Resolve(ctx context.Context, tokenID string) (string, error) {
	if tokenID == "" {
		return "", ErrInvalidRefreshToken
	}

	tokenHash := hashToken(tokenID)

	m.mu.RLock()
	defer m.mu.RUnlock()

	entry, exists := m.tokens[tokenHash]
	if !exists || entry.revoked {
		return "", ErrInvalidRefreshToken
	}

	// Check if entry has expired
	if !m.now().Before(entry.expiresAt) {
		return "", ErrInvalidRefreshToken
	}

	return entry.subject, nil
}

// Revoke turns tokenID into a tombstone.
func (m *MemoryRefreshTokenStore) Revoke(ctx context.Context, tokenID string) error {
	if tokenID == "" {
		return nil
	}

	tokenHash := hashToken(tokenID)

	m.mu.Lock()
	defer m.mu.Unlock()

	m.revokeLocked(tokenHash)
	return nil
}

// RevokeSubject revokes every live token of subject.
func (m *MemoryRefreshTokenStore) RevokeSubject(ctx context.Context, subject string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	revoked := 0
	now := m.now()
	for tokenHash := range m.bySubject[subject] {
		entry := m.tokens[tokenHash]
		if !entry.revoked && now.Before(entry.expiresAt) {
			revoked++
		}
		m.revokeLocked(tokenHash)
	}
	return revoked, nil
}

func (m *MemoryRefreshTokenStore) revokeLocked(tokenHash string) {
	entry, exists := m.tokens[tokenHash]
	if !exists {
		return
	}
	entry.revoked = true
	m.tokens[tokenHash] = entry

	if hashes, ok := m.bySubject[entry.subject]; ok {
		delete(hashes, tokenHash)
		if len(hashes) == 0 {
			delete(m.bySubject, entry.subject)
		}
	}
}

// CleanupExpired removes expired entries, tombstones included.
func (m *MemoryRefreshTokenStore) CleanupExpired(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	now := m.now()
	for tokenHash, entry := range m.tokens {
		if now.Before(entry.expiresAt) {
			continue
		}
		delete(m.tokens, tokenHash)
		if hashes, ok := m.bySubject[entry.subject]; ok {
			delete(hashes, tokenHash)
			if len(hashes) == 0 {
				delete(m.bySubject, entry.subject)
			}
		}
		removed++
	}

	return removed, nil
}

// Stats returns statistics about the store
// Useful for monitoring and debugging
func (m *MemoryRefreshTokenStore) Stats() map[string]int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	active, revoked := 0, 0
	for _, entry := range m.tokens {
		if entry.revoked {
			revoked++
		} else {
			active++
		}
	}

	return map[string]int{
		"refresh_tokens":         active,
		"revoked_refresh_tokens": revoked,
		"subjects":               len(m.bySubject),
	}
}
