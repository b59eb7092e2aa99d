package auth

import (
	"github.com/google/uuid"
	"github.com/tendant/school-crm/pkg/domain"
)

// TenantScope is a tenant id that came out of a verified access token.
// Its fields are unexported so that code outside this package can only
// obtain one through SessionService.Authenticate; a tenant id read from a
// URL, body, or header cannot be turned into a TenantScope.
type TenantScope struct {
	tenantID string
}

// TenantID returns the trusted tenant identifier.
func (s TenantScope) TenantID() string {
	return s.tenantID
}

// IsZero reports whether the scope is empty.
func (s TenantScope) IsZero() bool {
	return s.tenantID == ""
}

// Principal is the authenticated caller of a request.
type Principal struct {
	UserID      uuid.UUID
	SessionID   string
	Kind        domain.SubjectKind
	Role        string
	Email       string
	Name        string
	MFAVerified bool
	tenant      TenantScope
}

// Tenant returns the school the principal belongs to. Platform users
// have no tenant.
func (p *Principal) Tenant() (TenantScope, bool) {
	if p.Kind != domain.SubjectSchool || p.tenant.IsZero() {
		return TenantScope{}, false
	}
	return p.tenant, true
}

// IsPlatform reports whether the principal is a platform operator.
func (p *Principal) IsPlatform() bool {
	return p.Kind == domain.SubjectPlatform
}

// HasRole reports whether the principal holds one of roles.
func (p *Principal) HasRole(roles ...string) bool {
	for _, r := range roles {
		if p.Role == r {
			return true
		}
	}
	return false
}

// Subject describes who a session is being issued for.
type Subject struct {
	UserID      uuid.UUID
	Kind        domain.SubjectKind
	Role        string
	TenantID    string
	Email       string
	Name        string
	MFAEnabled  bool
	MFAVerified bool
}

// PlatformSubject builds a Subject for a platform operator.
func PlatformSubject(u *domain.PlatformUser) Subject {
	return Subject{
		UserID:     u.ID,
		Kind:       domain.SubjectPlatform,
		Role:       string(u.Role),
		Email:      u.Email,
		Name:       u.Name,
		MFAEnabled: u.MFAEnabled,
	}
}

// SchoolSubject builds a Subject for a user of the given tenant. The tenant
// id must come from the tenant registry, never from the request.
func SchoolSubject(tenant *domain.Tenant, u *domain.SchoolUser) Subject {
	return Subject{
		UserID:   u.ID,
		Kind:     domain.SubjectSchool,
		Role:     string(u.Role),
		TenantID: tenant.ID,
		Email:    u.Email,
		Name:     u.Name,
	}
}
