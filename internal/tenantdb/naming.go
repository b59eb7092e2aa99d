package tenantdb

import (
	"regexp"
	"strings"

	"github.com/tendant/school-crm/pkg/domain"
)

// DatabasePrefix prefixes every school database name.
const DatabasePrefix = "school_"

// Subdomains are DNS labels short enough that the derived database name fits
// PostgreSQL's 63 byte identifier limit.
var subdomainPattern = regexp.MustCompile(`^[a-z0-9](?:[a-z0-9-]{0,54}[a-z0-9])?$`)

var reservedSubdomains = map[string]struct{}{
	"admin":    {},
	"api":      {},
	"app":      {},
	"mail":     {},
	"platform": {},
	"postgres": {},
	"status":   {},
	"www":      {},
}

// SanitizeSubdomain normalizes a requested subdomain and rejects values that
// are not valid DNS labels or are reserved.
func SanitizeSubdomain(s string) (string, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if !subdomainPattern.MatchString(s) {
		return "", domain.ErrInvalidSubdomain
	}
	if _, ok := reservedSubdomains[s]; ok {
		return "", domain.ErrInvalidSubdomain
	}
	return s, nil
}

// DatabaseName derives the database name for a school subdomain. It is the
// only place the naming rule lives: provisioning stores its result in the
// tenant registry and the router reads it back from there.
func DatabaseName(subdomain string) string {
	return DatabasePrefix + strings.ReplaceAll(strings.ToLower(subdomain), "-", "_")
}
