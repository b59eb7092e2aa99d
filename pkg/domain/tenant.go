package domain

import (
	"time"
)

// TenantStatus is the lifecycle state of a school.
type TenantStatus string

const (
	TenantStatusProvisioning    TenantStatus = "PROVISIONING"
	TenantStatusActive          TenantStatus = "ACTIVE"
	TenantStatusSuspended       TenantStatus = "SUSPENDED"
	TenantStatusPendingDeletion TenantStatus = "PENDING_DELETION"
)

// Valid reports whether s is a known status.
func (s TenantStatus) Valid() bool {
	switch s {
	case TenantStatusProvisioning, TenantStatusActive, TenantStatusSuspended, TenantStatusPendingDeletion:
		return true
	}
	return false
}

// Tenant represents one school and its isolated database.
type Tenant struct {
	ID           string       `json:"id"`
	Name         string       `json:"name"`
	Subdomain    string       `json:"subdomain"`
	DatabaseName string       `json:"database_name"`
	Status       TenantStatus `json:"status"`
	ContactEmail string       `json:"contact_email"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

// IsActive returns true if the tenant may serve requests.
func (t *Tenant) IsActive() bool {
	return t.Status == TenantStatusActive
}

// AvailabilityError maps the tenant status to the error a caller sees
// when asking for the tenant's database. Nil means the tenant is usable.
func (t *Tenant) AvailabilityError() error {
	switch t.Status {
	case TenantStatusActive:
		return nil
	case TenantStatusSuspended:
		return ErrTenantSuspended
	case TenantStatusPendingDeletion:
		return ErrTenantPendingDeletion
	default:
		return ErrTenantNotProvisioned
	}
}
