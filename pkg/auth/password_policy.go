package auth

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/tendant/school-crm/internal/config"
)

// PasswordPolicy defines password complexity requirements. The same policy
// applies to platform operators and school staff.
type PasswordPolicy struct {
	MinLength        int
	RequireUppercase bool
	RequireLowercase bool
	RequireNumber    bool
	RequireSpecial   bool
}

// NewPasswordPolicy creates a PasswordPolicy from config.
func NewPasswordPolicy(cfg config.PasswordPolicyConfig) *PasswordPolicy {
	return &PasswordPolicy{
		MinLength:        cfg.MinLength,
		RequireUppercase: cfg.RequireUppercase,
		RequireLowercase: cfg.RequireLowercase,
		RequireNumber:    cfg.RequireNumber,
		RequireSpecial:   cfg.RequireSpecial,
	}
}

type passwordRule struct {
	enabled bool
	label   string
	ok      func(string) bool
}

func (p *PasswordPolicy) rules() []passwordRule {
	return []passwordRule{
		{p.MinLength > 0, fmt.Sprintf("at least %d characters", p.MinLength), func(s string) bool {
			return utf8.RuneCountInString(s) >= p.MinLength
		}},
		{p.RequireUppercase, "one uppercase letter", containsRune(unicode.IsUpper)},
		{p.RequireLowercase, "one lowercase letter", containsRune(unicode.IsLower)},
		{p.RequireNumber, "one number", containsRune(unicode.IsDigit)},
		{p.RequireSpecial, "one special character", containsRune(isSpecial)},
	}
}

// ValidatePassword returns every requirement password fails, joined.
func (p *PasswordPolicy) ValidatePassword(password string) error {
	var errs []error
	for _, r := range p.rules() {
		if r.enabled && !r.ok(password) {
			errs = append(errs, fmt.Errorf("password must contain %s", r.label))
		}
	}
	return errors.Join(errs...)
}

// Requirements lists the enabled requirements in display order.
func (p *PasswordPolicy) Requirements() []string {
	var out []string
	for _, r := range p.rules() {
		if r.enabled {
			out = append(out, r.label)
		}
	}
	return out
}

// Describe returns a human-readable description of the policy.
func (p *PasswordPolicy) Describe() string {
	reqs := p.Requirements()
	if len(reqs) == 0 {
		return "No password requirements"
	}
	return "Password must contain " + strings.Join(reqs, ", ")
}

// HasRequirements returns true if the policy has any requirements.
func (p *PasswordPolicy) HasRequirements() bool {
	return len(p.Requirements()) > 0
}

func containsRune(pred func(rune) bool) func(string) bool {
	return func(s string) bool {
		return strings.IndexFunc(s, pred) >= 0
	}
}

func isSpecial(r rune) bool {
	return !unicode.IsLetter(r) && !unicode.IsDigit(r) && !unicode.IsSpace(r)
}
