package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/school-crm/pkg/auth"
	"github.com/tendant/school-crm/pkg/domain"
)

var sessions = auth.NewSessionService(auth.SessionConfig{JWTSecret: []byte("middleware-test-secret-0123456789ab")}, nil, nil)

func signToken(t *testing.T, subject auth.Subject) string {
	t.Helper()
	if subject.UserID == uuid.Nil {
		subject.UserID = uuid.New()
	}
	token, _, err := sessions.SignAccessToken(subject, uuid.NewString())
	require.NoError(t, err)
	return token
}

func schoolToken(t *testing.T, tenantID string, role domain.SchoolRole) string {
	return signToken(t, auth.Subject{Kind: domain.SubjectSchool, Role: string(role), TenantID: tenantID})
}

func platformToken(t *testing.T, mfaVerified bool) string {
	return signToken(t, auth.Subject{
		Kind:        domain.SubjectPlatform,
		Role:        string(domain.PlatformRoleOwner),
		MFAEnabled:  true,
		MFAVerified: mfaVerified,
	})
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func serve(h http.Handler, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestAuth(t *testing.T) {
	var got *auth.Principal
	h := Auth(sessions)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = PrincipalFrom(r.Context())
	}))

	assert.Equal(t, http.StatusUnauthorized, serve(h, "").Code)
	assert.Equal(t, http.StatusUnauthorized, serve(h, "not-a-jwt").Code)

	rec := serve(h, schoolToken(t, "t-1", domain.SchoolRoleTeacher))
	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, got)
	scope, ok := got.Tenant()
	require.True(t, ok)
	assert.Equal(t, "t-1", scope.TenantID())
}

func TestRequireKind(t *testing.T) {
	school := schoolToken(t, "t-1", domain.SchoolRoleAdmin)
	platform := platformToken(t, true)

	tests := []struct {
		name  string
		guard func(http.Handler) http.Handler
		token string
		want  int
	}{
		{"platform route, platform user", RequirePlatform(), platform, http.StatusOK},
		{"platform route, school user", RequirePlatform(), school, http.StatusForbidden},
		{"school route, school user", RequireSchool(), school, http.StatusOK},
		{"school route, platform user", RequireSchool(), platform, http.StatusForbidden},
		{"admin route, admin", RequireRole(string(domain.SchoolRoleAdmin)), school, http.StatusOK},
		{"admin route, teacher", RequireRole(string(domain.SchoolRoleAdmin)), schoolToken(t, "t-1", domain.SchoolRoleTeacher), http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := Auth(sessions)(tt.guard(okHandler()))
			assert.Equal(t, tt.want, serve(h, tt.token).Code)
		})
	}
}

func TestRequire_WithoutAuth(t *testing.T) {
	assert.Equal(t, http.StatusUnauthorized, serve(RequireSchool()(okHandler()), "").Code)
}

func TestRequireMFA(t *testing.T) {
	h := Auth(sessions)(RequireMFA()(okHandler()))

	assert.Equal(t, http.StatusForbidden, serve(h, platformToken(t, false)).Code)
	assert.Equal(t, http.StatusOK, serve(h, platformToken(t, true)).Code)
}
