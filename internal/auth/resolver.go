// Package auth maps opaque API credentials to tenant identities with a
// positive-lookup cache and an instant revocation list.
package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"sync"
	"time"

	"github.com/rosterly/rosterly-be/internal/domain"
	"golang.org/x/sync/singleflight"
)

// HashCredential hashes a raw API credential for storage and lookup.
func HashCredential(credential string) string {
	sum := sha256.Sum256([]byte(credential))
	return hex.EncodeToString(sum[:])
}

type cacheEntry struct {
	tenant              domain.Tenant
	expiresAt           time.Time
	revocationCheckedAt time.Time
}

type revocationEntry struct {
	revokedAt time.Time
	expiresAt time.Time
}

// Config holds resolver cache settings.
type Config struct {
	// PositiveTTL bounds how long a successful lookup may be served from
	// cache.
	PositiveTTL time.Duration
	// RevocationTTL bounds how stale a cached entry's revocation check may
	// be. Must not exceed PositiveTTL.
	RevocationTTL time.Duration
}

// Resolver resolves credentials to tenants. A tenant revoked at time T fails
// resolution for every request observed at or after T: the local revocation
// list is consulted before any cached positive result, and cached entries
// re-check the credential store at the (shorter) revocation TTL.
type Resolver struct {
	store         CredentialStore
	positiveTTL   time.Duration
	revocationTTL time.Duration
	logger        *slog.Logger
	now           func() time.Time

	group singleflight.Group

	mu      sync.RWMutex
	cache   map[string]cacheEntry      // key hash -> positive lookup
	revoked map[string]revocationEntry // tenant id -> revocation marker
}

// NewResolver creates a Resolver over the given credential store.
func NewResolver(store CredentialStore, cfg Config, logger *slog.Logger) *Resolver {
	if cfg.RevocationTTL <= 0 || cfg.RevocationTTL > cfg.PositiveTTL {
		cfg.RevocationTTL = cfg.PositiveTTL
	}
	return &Resolver{
		store:         store,
		positiveTTL:   cfg.PositiveTTL,
		revocationTTL: cfg.RevocationTTL,
		logger:        logger,
		now:           time.Now,
		cache:         make(map[string]cacheEntry),
		revoked:       make(map[string]revocationEntry),
	}
}

// Resolve maps a credential to its tenant. Every failure mode returns
// domain.ErrUnauthorized: unknown, malformed and revoked credentials are
// indistinguishable to the caller.
func (r *Resolver) Resolve(ctx context.Context, credential string) (domain.Tenant, error) {
	if credential == "" {
		return domain.Tenant{}, domain.ErrUnauthorized
	}

	keyHash := HashCredential(credential)
	now := r.now()

	if tenant, ok := r.fromCache(ctx, keyHash, now); ok {
		return tenant, nil
	}

	v, err, _ := r.group.Do(keyHash, func() (interface{}, error) {
		return r.store.LookupByKeyHash(ctx, keyHash)
	})
	if err != nil {
		r.logger.Warn("Credential lookup failed",
			slog.String("key_hash", keyHash[:8]),
			slog.String("error", err.Error()),
		)
		return domain.Tenant{}, domain.ErrUnauthorized
	}

	tenant := v.(domain.Tenant)
	if !tenant.IsActive || r.isLocallyRevoked(tenant.TenantID, now) {
		return domain.Tenant{}, domain.ErrUnauthorized
	}

	r.mu.Lock()
	r.cache[keyHash] = cacheEntry{
		tenant:              tenant,
		expiresAt:           now.Add(r.positiveTTL),
		revocationCheckedAt: now,
	}
	r.mu.Unlock()

	return tenant, nil
}

// fromCache serves a cached positive result, provided the entry has not
// expired, the tenant is not on the revocation list, and the entry's
// revocation check is fresh enough.
func (r *Resolver) fromCache(ctx context.Context, keyHash string, now time.Time) (domain.Tenant, bool) {
	r.mu.RLock()
	entry, ok := r.cache[keyHash]
	r.mu.RUnlock()

	if !ok || now.After(entry.expiresAt) {
		return domain.Tenant{}, false
	}

	if r.isLocallyRevoked(entry.tenant.TenantID, now) {
		r.evict(keyHash)
		return domain.Tenant{}, false
	}

	if now.Sub(entry.revocationCheckedAt) > r.revocationTTL {
		revoked, err := r.store.IsRevoked(ctx, entry.tenant.TenantID)
		if err != nil {
			// Cannot confirm the tenant is still valid; fall through to a
			// full lookup rather than trusting the stale entry.
			r.evict(keyHash)
			return domain.Tenant{}, false
		}
		if revoked {
			r.Revoke(entry.tenant.TenantID)
			return domain.Tenant{}, false
		}

		r.mu.Lock()
		if e, still := r.cache[keyHash]; still {
			e.revocationCheckedAt = now
			r.cache[keyHash] = e
		}
		r.mu.Unlock()
	}

	return entry.tenant, true
}

// Revoke records that the tenant was deactivated now. The marker lives at
// least as long as the positive cache TTL, so no cached positive result can
// outlive it. Concurrent revocations are last-writer-wins by timestamp.
func (r *Resolver) Revoke(tenantID string) {
	now := r.now()

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.revoked[tenantID]; ok && existing.revokedAt.After(now) {
		return
	}
	r.revoked[tenantID] = revocationEntry{
		revokedAt: now,
		expiresAt: now.Add(r.positiveTTL),
	}

	for keyHash, entry := range r.cache {
		if entry.tenant.TenantID == tenantID {
			delete(r.cache, keyHash)
		}
	}

	r.logger.Info("Tenant revoked",
		slog.String("tenant_id", tenantID),
	)
}

func (r *Resolver) isLocallyRevoked(tenantID string, now time.Time) bool {
	r.mu.RLock()
	entry, ok := r.revoked[tenantID]
	r.mu.RUnlock()

	if !ok {
		return false
	}
	if now.After(entry.expiresAt) {
		// The marker has outlived every cache entry that could predate it;
		// the store is authoritative again.
		r.mu.Lock()
		delete(r.revoked, tenantID)
		r.mu.Unlock()
		return false
	}
	return true
}

func (r *Resolver) evict(keyHash string) {
	r.mu.Lock()
	delete(r.cache, keyHash)
	r.mu.Unlock()
}
