package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/rosterly/rosterly-be/internal/domain"
)

// ErrTenantNotFound is internal to the auth package; the resolver collapses
// it into domain.ErrUnauthorized before anything reaches a caller.
var ErrTenantNotFound = errors.New("tenant not found")

// CredentialStore is the durable source of truth for tenant credentials.
type CredentialStore interface {
	LookupByKeyHash(ctx context.Context, keyHash string) (domain.Tenant, error)
	IsRevoked(ctx context.Context, tenantID string) (bool, error)
}

// PostgresCredentialStore implements CredentialStore over the tenants table.
type PostgresCredentialStore struct {
	db *sqlx.DB
}

// NewPostgresCredentialStore creates a credential store backed by Postgres.
func NewPostgresCredentialStore(db *sqlx.DB) *PostgresCredentialStore {
	return &PostgresCredentialStore{db: db}
}

// LookupByKeyHash returns the active tenant owning the credential hash.
func (s *PostgresCredentialStore) LookupByKeyHash(ctx context.Context, keyHash string) (domain.Tenant, error) {
	query := `
		SELECT tenant_id, name, display_name, key_hash, is_active, is_admin,
		       gemini_api_key, maps_api_key, sheet_ref, created_at, updated_at
		FROM tenants
		WHERE key_hash = $1 AND is_active = TRUE
	`

	var tenant domain.Tenant
	err := s.db.GetContext(ctx, &tenant, query, keyHash)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Tenant{}, ErrTenantNotFound
		}
		return domain.Tenant{}, fmt.Errorf("failed to look up credential: %w", err)
	}

	return tenant, nil
}

// IsRevoked reports whether the tenant has been deactivated. A tenant that
// no longer exists counts as revoked.
func (s *PostgresCredentialStore) IsRevoked(ctx context.Context, tenantID string) (bool, error) {
	query := `SELECT is_active FROM tenants WHERE tenant_id = $1`

	var active bool
	err := s.db.GetContext(ctx, &active, query, tenantID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return true, nil
		}
		return false, fmt.Errorf("failed to check revocation: %w", err)
	}

	return !active, nil
}

// Deactivate flips the tenant inactive. Callers must also call
// Resolver.Revoke so the change beats any cached positive lookup.
func (s *PostgresCredentialStore) Deactivate(ctx context.Context, tenantID string) error {
	query := `UPDATE tenants SET is_active = FALSE, updated_at = NOW() WHERE tenant_id = $1`

	result, err := s.db.ExecContext(ctx, query, tenantID)
	if err != nil {
		return fmt.Errorf("failed to deactivate tenant: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrTenantNotFound
	}

	return nil
}
