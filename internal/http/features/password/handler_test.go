package password

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/school-crm/internal/httputil"
	"github.com/tendant/school-crm/internal/tenantdb"
	"github.com/tendant/school-crm/pkg/auth"
	"github.com/tendant/school-crm/pkg/domain"
)

type fakeAuth struct {
	platform *domain.PlatformUser
	school   *domain.SchoolUser
	password string
}

func (f *fakeAuth) AuthenticatePlatform(_ context.Context, email, password string) (*domain.PlatformUser, error) {
	if email != f.platform.Email || password != f.password {
		return nil, domain.ErrInvalidCredentials
	}
	return f.platform, nil
}

func (f *fakeAuth) AuthenticateSchool(_ context.Context, store auth.SchoolCredentialStore, email, password string) (*domain.SchoolUser, error) {
	if store == nil {
		return nil, domain.ErrInvalidCredentials
	}
	if email != f.school.Email || password != f.password {
		return nil, domain.ErrInvalidCredentials
	}
	return f.school, nil
}

type fakeTOTP struct{ code string }

func (f fakeTOTP) VerifyTOTP(_ context.Context, _ *domain.PlatformUser, code string) (bool, error) {
	return code == f.code, nil
}

type fakeIssuer struct {
	subjects []auth.Subject
	opts     []auth.IssueSessionOpts
}

func (f *fakeIssuer) IssueSession(_ context.Context, s auth.Subject, opts auth.IssueSessionOpts) (*domain.TokenPair, error) {
	f.subjects = append(f.subjects, s)
	f.opts = append(f.opts, opts)
	return &domain.TokenPair{AccessToken: "access", RefreshToken: "refresh", TokenType: "Bearer", ExpiresIn: 900}, nil
}

func (f *fakeIssuer) AccessTokenTTL() time.Duration  { return 15 * time.Minute }
func (f *fakeIssuer) RefreshTokenTTL() time.Duration { return time.Hour }

type registry map[string]*domain.Tenant

func (r registry) GetByID(_ context.Context, id string) (*domain.Tenant, error) {
	for _, t := range r {
		if t.ID == id {
			cp := *t
			return &cp, nil
		}
	}
	return nil, domain.ErrTenantNotFound
}

func (r registry) GetBySubdomain(_ context.Context, sub string) (*domain.Tenant, error) {
	t, ok := r[sub]
	if !ok {
		return nil, domain.ErrTenantNotFound
	}
	cp := *t
	return &cp, nil
}

func newTestHandler(t *testing.T, mfa bool) (*Handler, *fakeIssuer) {
	t.Helper()
	router, err := tenantdb.NewRouter(registry{
		"greenfield": {ID: "t-green", Subdomain: "greenfield", DatabaseName: "school_greenfield", Status: domain.TenantStatusActive},
		"closed":     {ID: "t-closed", Subdomain: "closed", DatabaseName: "school_closed", Status: domain.TenantStatusSuspended},
	}, tenantdb.OpenerFunc(func(context.Context, *domain.Tenant) (*sqlx.DB, error) {
		return sqlx.Open("sqlite3", ":memory:")
	}), tenantdb.Config{})
	require.NoError(t, err)
	t.Cleanup(func() { router.Close() })

	issuer := &fakeIssuer{}
	h := NewHandler(Config{
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		Passwords: &fakeAuth{
			platform: &domain.PlatformUser{ID: uuid.New(), Email: "ops@schoolcrm.app", Role: domain.PlatformRoleOwner, MFAEnabled: mfa},
			school:   &domain.SchoolUser{ID: uuid.New(), Email: "head@greenfield.edu", Role: domain.SchoolRoleAdmin},
			password: "correct horse",
		},
		TOTP:         fakeTOTP{code: "123456"},
		Sessions:     issuer,
		Schools:      router,
		CookieConfig: httputil.DefaultCookieConfig(),
		RootDomain:   "schoolcrm.app",
	})
	return h, issuer
}

func post(h http.HandlerFunc, host, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Host = host
	req.Header.Set("X-Client-Type", "mobile")
	rec := httptest.NewRecorder()
	h(rec, req)
	return rec
}

func TestPlatformLogin(t *testing.T) {
	h, issuer := newTestHandler(t, false)

	rec := post(h.PlatformLogin, "", `{"email":"ops@schoolcrm.app","password":"wrong"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = post(h.PlatformLogin, "", `{"email":"ops@schoolcrm.app","password":"correct horse"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, issuer.subjects, 1)
	assert.Equal(t, domain.SubjectPlatform, issuer.subjects[0].Kind)
	assert.Empty(t, issuer.subjects[0].TenantID)
}

func TestPlatformLogin_MFA(t *testing.T) {
	h, issuer := newTestHandler(t, true)
	creds := `"email":"ops@schoolcrm.app","password":"correct horse"`

	rec := post(h.PlatformLogin, "", `{`+creds+`}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	var body map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, true, body["mfa_required"])

	rec = post(h.PlatformLogin, "", `{`+creds+`,"code":"000000"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = post(h.PlatformLogin, "", `{`+creds+`,"code":"123456"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, issuer.opts, 1)
	assert.True(t, issuer.opts[0].MFAVerified)
}

func TestSchoolLogin(t *testing.T) {
	tests := []struct {
		name       string
		host       string
		body       string
		wantStatus int
		wantTenant string
	}{
		{"subdomain in body", "api.schoolcrm.app", `{"subdomain":"greenfield","email":"head@greenfield.edu","password":"correct horse"}`, http.StatusOK, "t-green"},
		{"subdomain from host", "greenfield.schoolcrm.app", `{"email":"head@greenfield.edu","password":"correct horse"}`, http.StatusOK, "t-green"},
		{"no subdomain", "localhost:8080", `{"email":"head@greenfield.edu","password":"correct horse"}`, http.StatusBadRequest, ""},
		{"unknown school", "", `{"subdomain":"nowhere","email":"head@greenfield.edu","password":"correct horse"}`, http.StatusUnauthorized, ""},
		{"suspended school", "", `{"subdomain":"closed","email":"head@greenfield.edu","password":"correct horse"}`, http.StatusForbidden, ""},
		{"wrong password", "", `{"subdomain":"greenfield","email":"head@greenfield.edu","password":"nope"}`, http.StatusUnauthorized, ""},
		{"tenant id is not accepted", "", `{"tenant_id":"t-green","email":"head@greenfield.edu","password":"correct horse"}`, http.StatusBadRequest, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, issuer := newTestHandler(t, false)
			rec := post(h.SchoolLogin, tt.host, tt.body)
			assert.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			if tt.wantTenant != "" {
				require.Len(t, issuer.subjects, 1)
				assert.Equal(t, tt.wantTenant, issuer.subjects[0].TenantID)
				assert.Equal(t, domain.SubjectSchool, issuer.subjects[0].Kind)
			}
		})
	}
}

func TestSubdomainFromHost(t *testing.T) {
	tests := []struct {
		host, root, want string
	}{
		{"greenfield.schoolcrm.app", "schoolcrm.app", "greenfield"},
		{"Greenfield.SchoolCRM.app:443", "schoolcrm.app", "greenfield"},
		{"schoolcrm.app", "schoolcrm.app", ""},
		{"a.b.schoolcrm.app", "schoolcrm.app", ""},
		{"greenfield.example.com", "schoolcrm.app", ""},
		{"greenfield.schoolcrm.app", "", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SubdomainFromHost(tt.host, tt.root), tt.host)
	}
}
