package domain

import (
	"time"

	"github.com/google/uuid"
)

// PlatformRole is the role of an operator of the SaaS platform.
type PlatformRole string

const (
	PlatformRoleOwner   PlatformRole = "owner"
	PlatformRoleAdmin   PlatformRole = "admin"
	PlatformRoleSupport PlatformRole = "support"
)

// Valid reports whether r is a known platform role.
func (r PlatformRole) Valid() bool {
	return r == PlatformRoleOwner || r == PlatformRoleAdmin || r == PlatformRoleSupport
}

// PlatformUser is an operator account stored in the platform database.
type PlatformUser struct {
	ID                  uuid.UUID
	Email               string
	Name                string
	Role                PlatformRole
	PasswordHash        string
	MFAEnabled          bool
	MFASecretEncrypted  *string
	FailedLoginAttempts int
	LockedUntil         *time.Time
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// IsLocked returns true if the account is currently locked.
func (u *PlatformUser) IsLocked() bool {
	if u.LockedUntil == nil {
		return false
	}
	return time.Now().Before(*u.LockedUntil)
}

// MFASetupResponse contains data returned when setting up MFA
type MFASetupResponse struct {
	Secret        string // Base32 TOTP secret (for manual entry)
	QRCodeDataURI string // QR code as data:image/png;base64,...
}
