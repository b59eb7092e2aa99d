package auth

import (
	"errors"
	"slices"
	"strings"
	"testing"

	"github.com/tendant/school-crm/internal/config"
	"github.com/tendant/school-crm/pkg/domain"
)

// loadPolicy builds the policy the server runs with for the given
// PASSWORD_* overrides.
func loadPolicy(t *testing.T, env map[string]string) *PasswordPolicy {
	t.Helper()
	t.Setenv("JWT_SECRET", "policy-test-secret")
	for _, k := range []string{
		"PASSWORD_MIN_LENGTH", "PASSWORD_REQUIRE_UPPERCASE", "PASSWORD_REQUIRE_LOWERCASE",
		"PASSWORD_REQUIRE_NUMBER", "PASSWORD_REQUIRE_SPECIAL",
	} {
		t.Setenv(k, env[k])
	}
	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("config.Load: %v", err)
	}
	return NewPasswordPolicy(cfg.PasswordPolicy)
}

func TestNewPasswordPolicy_Defaults(t *testing.T) {
	policy := loadPolicy(t, nil)

	want := []string{"at least 10 characters", "one number"}
	if got := policy.Requirements(); !slices.Equal(got, want) {
		t.Errorf("Requirements() = %v, want %v", got, want)
	}
	if got := policy.Describe(); got != "Password must contain at least 10 characters, one number" {
		t.Errorf("Describe() = %q", got)
	}
}

func TestPasswordPolicy_DefaultPolicy(t *testing.T) {
	policy := loadPolicy(t, nil)

	tests := []struct {
		name     string
		password string
		missing  []string
	}{
		{"school admin signup", "greenfield2026", nil},
		{"passphrase with spaces", "summer term 3", nil},
		{"ten characters, no digit", "Greenfield", []string{"one number"}},
		{"class code", "term1", []string{"at least 10 characters", "one number"}},
		{"accented, ten runes", "ñçéüñçéüñ1", nil},
		{"accented, nine runes", "ñçéüñçéü1", []string{"at least 10 characters"}},
		{"empty", "", []string{"at least 10 characters", "one number"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := policy.ValidatePassword(tt.password)
			if len(tt.missing) == 0 {
				if err != nil {
					t.Errorf("ValidatePassword(%q) = %v, want nil", tt.password, err)
				}
				return
			}
			if err == nil {
				t.Fatalf("ValidatePassword(%q) = nil, want failures %v", tt.password, tt.missing)
			}
			for _, m := range tt.missing {
				if !strings.Contains(err.Error(), m) {
					t.Errorf("error %q does not mention %q", err, m)
				}
			}
		})
	}
}

func TestPasswordPolicy_StrictDeployment(t *testing.T) {
	policy := loadPolicy(t, map[string]string{
		"PASSWORD_MIN_LENGTH":        "12",
		"PASSWORD_REQUIRE_UPPERCASE": "true",
		"PASSWORD_REQUIRE_LOWERCASE": "true",
		"PASSWORD_REQUIRE_SPECIAL":   "true",
	})

	want := []string{"at least 12 characters", "one uppercase letter", "one lowercase letter", "one number", "one special character"}
	if got := policy.Requirements(); !slices.Equal(got, want) {
		t.Fatalf("Requirements() = %v, want %v", got, want)
	}

	tests := []struct {
		password string
		wantErr  bool
	}{
		{"Registrar#2026", false},
		{"registrar#2026", true},
		{"REGISTRAR#2026", true},
		{"Registrar2026x", true},
		{"Reg#2026", true},
	}
	for _, tt := range tests {
		if err := policy.ValidatePassword(tt.password); (err != nil) != tt.wantErr {
			t.Errorf("ValidatePassword(%q) error = %v, wantErr %v", tt.password, err, tt.wantErr)
		}
	}
}

func TestPasswordPolicy_Disabled(t *testing.T) {
	policy := loadPolicy(t, map[string]string{
		"PASSWORD_MIN_LENGTH":     "0",
		"PASSWORD_REQUIRE_NUMBER": "false",
	})

	if policy.HasRequirements() {
		t.Errorf("HasRequirements() = true, requirements %v", policy.Requirements())
	}
	if got := policy.Describe(); got != "No password requirements" {
		t.Errorf("Describe() = %q", got)
	}
	if err := policy.ValidatePassword("x"); err != nil {
		t.Errorf("ValidatePassword() = %v", err)
	}
}

// Operators and school staff share one policy through HashNewPassword.
func TestPasswordService_DefaultPolicyRejectsWeak(t *testing.T) {
	svc := NewPasswordService(nil, loadPolicy(t, nil))

	_, err := svc.HashNewPassword("Greenfield")
	if !errors.Is(err, domain.ErrWeakPassword) {
		t.Fatalf("HashNewPassword() = %v, want ErrWeakPassword", err)
	}
	if !strings.Contains(err.Error(), "one number") {
		t.Errorf("error %q should name the missing requirement", err)
	}
	if _, err := svc.HashNewPassword("greenfield2026"); err != nil {
		t.Errorf("HashNewPassword() = %v", err)
	}
}
