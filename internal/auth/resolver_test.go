package auth

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/rosterly/rosterly-be/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCredentialStore struct {
	mu      sync.Mutex
	tenants map[string]domain.Tenant // key hash -> tenant
	revoked map[string]bool          // tenant id -> revoked
	lookups int
}

func (s *fakeCredentialStore) LookupByKeyHash(_ context.Context, keyHash string) (domain.Tenant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lookups++
	tenant, ok := s.tenants[keyHash]
	if !ok || s.revoked[tenant.TenantID] {
		return domain.Tenant{}, ErrTenantNotFound
	}
	return tenant, nil
}

func (s *fakeCredentialStore) IsRevoked(_ context.Context, tenantID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.revoked[tenantID], nil
}

func (s *fakeCredentialStore) revoke(tenantID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.revoked[tenantID] = true
}

func newTestResolver(t *testing.T) (*Resolver, *fakeCredentialStore, *time.Time) {
	t.Helper()

	store := &fakeCredentialStore{
		tenants: map[string]domain.Tenant{
			HashCredential("key-alice"): {TenantID: "t-alice", Name: "alice", IsActive: true},
			HashCredential("key-bob"):   {TenantID: "t-bob", Name: "bob", IsActive: true},
		},
		revoked: map[string]bool{},
	}

	resolver := NewResolver(store, Config{
		PositiveTTL:   5 * time.Minute,
		RevocationTTL: time.Minute,
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))

	now := time.Date(2025, time.June, 2, 9, 0, 0, 0, time.UTC)
	resolver.now = func() time.Time { return now }

	return resolver, store, &now
}

func TestResolver_Resolve(t *testing.T) {
	resolver, _, _ := newTestResolver(t)
	ctx := context.Background()

	tenant, err := resolver.Resolve(ctx, "key-alice")
	require.NoError(t, err)
	assert.Equal(t, "t-alice", tenant.TenantID)

	_, err = resolver.Resolve(ctx, "no-such-key")
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	_, err = resolver.Resolve(ctx, "")
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestResolver_CachesPositiveLookups(t *testing.T) {
	resolver, store, _ := newTestResolver(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := resolver.Resolve(ctx, "key-alice")
		require.NoError(t, err)
	}

	assert.Equal(t, 1, store.lookups)
}

// A revoked tenant must fail resolution on the very next call, even while a
// cached positive result from before the revocation is still unexpired.
func TestResolver_RevocationBeatsCache(t *testing.T) {
	resolver, store, _ := newTestResolver(t)
	ctx := context.Background()

	_, err := resolver.Resolve(ctx, "key-alice")
	require.NoError(t, err)

	store.revoke("t-alice")
	resolver.Revoke("t-alice")

	_, err = resolver.Resolve(ctx, "key-alice")
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

// Without a local Revoke call (revocation performed by another process), the
// cached entry must still be re-validated once the revocation TTL elapses.
func TestResolver_StaleRevocationCheckHitsStore(t *testing.T) {
	resolver, store, now := newTestResolver(t)
	ctx := context.Background()

	_, err := resolver.Resolve(ctx, "key-alice")
	require.NoError(t, err)

	store.revoke("t-alice")

	// Inside the revocation TTL the cached result is still trusted.
	*now = now.Add(30 * time.Second)
	_, err = resolver.Resolve(ctx, "key-alice")
	require.NoError(t, err)

	// Past the revocation TTL the store is consulted and the entry dies.
	*now = now.Add(2 * time.Minute)
	_, err = resolver.Resolve(ctx, "key-alice")
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestResolver_RevocationDoesNotAffectOtherTenants(t *testing.T) {
	resolver, store, _ := newTestResolver(t)
	ctx := context.Background()

	store.revoke("t-alice")
	resolver.Revoke("t-alice")

	tenant, err := resolver.Resolve(ctx, "key-bob")
	require.NoError(t, err)
	assert.Equal(t, "t-bob", tenant.TenantID)
}

func TestResolver_ExpiredCacheEntryRefetches(t *testing.T) {
	resolver, store, now := newTestResolver(t)
	ctx := context.Background()

	_, err := resolver.Resolve(ctx, "key-alice")
	require.NoError(t, err)

	*now = now.Add(10 * time.Minute)
	_, err = resolver.Resolve(ctx, "key-alice")
	require.NoError(t, err)

	assert.Equal(t, 2, store.lookups)
}

func TestHashCredential(t *testing.T) {
	a := HashCredential("key-alice")
	b := HashCredential("key-bob")

	assert.Len(t, a, 64)
	assert.NotEqual(t, a, b)
	assert.Equal(t, a, HashCredential("key-alice"))
}
