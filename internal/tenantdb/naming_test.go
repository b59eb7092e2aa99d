package tenantdb

import (
	"errors"
	"strings"
	"testing"

	"github.com/tendant/school-crm/pkg/domain"
)

func TestDatabaseName(t *testing.T) {
	tests := []struct {
		subdomain string
		want      string
	}{
		{"demo", "school_demo"},
		{"green-field", "school_green_field"},
		{"StMarys", "school_stmarys"},
		{"42", "school_42"},
	}

	for _, tt := range tests {
		t.Run(tt.subdomain, func(t *testing.T) {
			if got := DatabaseName(tt.subdomain); got != tt.want {
				t.Errorf("DatabaseName(%q) = %q, want %q", tt.subdomain, got, tt.want)
			}
		})
	}
}

func TestSanitizeSubdomain(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{name: "plain", input: "demo", want: "demo"},
		{name: "mixed case and spaces", input: "  Green-Field ", want: "green-field"},
		{name: "digits", input: "school42", want: "school42"},
		{name: "empty", input: "", wantErr: true},
		{name: "leading hyphen", input: "-demo", wantErr: true},
		{name: "trailing hyphen", input: "demo-", wantErr: true},
		{name: "underscore", input: "green_field", wantErr: true},
		{name: "dot", input: "a.b", wantErr: true},
		{name: "reserved", input: "admin", wantErr: true},
		{name: "too long", input: strings.Repeat("a", 57), wantErr: true},
		{name: "longest allowed", input: strings.Repeat("a", 56), want: strings.Repeat("a", 56)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SanitizeSubdomain(tt.input)
			if tt.wantErr {
				if !errors.Is(err, domain.ErrInvalidSubdomain) {
					t.Errorf("err = %v, want ErrInvalidSubdomain", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("SanitizeSubdomain(%q) = %q, want %q", tt.input, got, tt.want)
			}
			if n := len(DatabaseName(got)); n > 63 {
				t.Errorf("database name length %d exceeds 63", n)
			}
		})
	}
}
