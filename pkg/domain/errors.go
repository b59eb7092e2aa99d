package domain

import "errors"

// Authentication errors
var (
	ErrUserNotFound       = errors.New("user not found")
	ErrUserAlreadyExists  = errors.New("user already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountLocked      = errors.New("account locked due to too many failed login attempts")
	ErrSessionNotFound    = errors.New("session not found")
	ErrSessionExpired     = errors.New("session expired")
	ErrSessionRevoked     = errors.New("session revoked")
	ErrSessionFingerprint = errors.New("session fingerprint mismatch - possible token theft")
	ErrInvalidToken       = errors.New("invalid token")
	ErrForbidden          = errors.New("forbidden")
)

// Validation errors
var (
	ErrInvalidEmail     = errors.New("invalid email address")
	ErrWeakPassword     = errors.New("password does not meet requirements")
	ErrInvalidSubdomain = errors.New("invalid subdomain")
	ErrInvalidInput     = errors.New("invalid input")
)

// MFA errors
var (
	ErrMFARequired       = errors.New("multi-factor authentication required")
	ErrMFANotEnabled     = errors.New("MFA is not enabled for this account")
	ErrMFANotSetup       = errors.New("MFA setup not initiated")
	ErrMFAAlreadyEnabled = errors.New("MFA is already enabled")
	ErrInvalidMFACode    = errors.New("invalid MFA code")
)

// Tenant errors
var (
	ErrTenantNotFound        = errors.New("tenant not found")
	ErrTenantExists          = errors.New("tenant subdomain already taken")
	ErrTenantNotProvisioned  = errors.New("tenant database not provisioned")
	ErrTenantSuspended       = errors.New("tenant suspended")
	ErrTenantPendingDeletion = errors.New("tenant pending deletion")
	ErrTenantNotPurgeable    = errors.New("tenant must be marked for deletion before purge")
	ErrTenantTransition      = errors.New("tenant status does not allow this change")
	ErrRouterClosed          = errors.New("tenant router closed")
)

// Record errors shared by platform and school stores
var (
	ErrNotFound          = errors.New("record not found")
	ErrConflict          = errors.New("record already exists")
	ErrInvalidReference  = errors.New("referenced record does not exist")
	ErrClassFull         = errors.New("class is at capacity")
	ErrBookUnavailable   = errors.New("no copies available")
	ErrBookAlreadyReturn = errors.New("book already returned")
)
