package domain

import (
	"database/sql"
	"time"
)

// Tenant is a named principal resolved from an API credential.
type Tenant struct {
	TenantID     string         `db:"tenant_id"`
	Name         string         `db:"name"`
	DisplayName  string         `db:"display_name"`
	KeyHash      string         `db:"key_hash"`
	IsActive     bool           `db:"is_active"`
	IsAdmin      bool           `db:"is_admin"`
	GeminiAPIKey sql.NullString `db:"gemini_api_key"`
	MapsAPIKey   sql.NullString `db:"maps_api_key"`
	SheetRef     sql.NullString `db:"sheet_ref"`
	CreatedAt    time.Time      `db:"created_at"`
	UpdatedAt    time.Time      `db:"updated_at"`
}
