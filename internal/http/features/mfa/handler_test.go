package mfa

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/school-crm/internal/http/middleware"
	"github.com/tendant/school-crm/pkg/auth"
	"github.com/tendant/school-crm/pkg/domain"
)

const goodCode = "123456"

type fakeTOTP struct {
	user *domain.PlatformUser
}

func (f *fakeTOTP) SetupTOTP(context.Context, uuid.UUID) (*domain.MFASetupResponse, error) {
	if f.user.MFAEnabled {
		return nil, domain.ErrMFAAlreadyEnabled
	}
	return &domain.MFASetupResponse{Secret: "JBSWY3DPEHPK3PXP", QRCodeDataURI: "data:image/png;base64,"}, nil
}

func (f *fakeTOTP) VerifyTOTPAndEnable(_ context.Context, _ uuid.UUID, code string) error {
	if code != goodCode {
		return domain.ErrInvalidMFACode
	}
	f.user.MFAEnabled = true
	return nil
}

func (f *fakeTOTP) VerifyTOTP(_ context.Context, u *domain.PlatformUser, code string) (bool, error) {
	if !u.MFAEnabled {
		return false, domain.ErrMFANotEnabled
	}
	return code == goodCode, nil
}

func (f *fakeTOTP) DisableMFA(context.Context, uuid.UUID) error {
	f.user.MFAEnabled = false
	return nil
}

type fakeOperators struct {
	user     *domain.PlatformUser
	password string
}

func (f *fakeOperators) GetPlatformUser(_ context.Context, id uuid.UUID) (*domain.PlatformUser, error) {
	if id != f.user.ID {
		return nil, domain.ErrUserNotFound
	}
	return f.user, nil
}

func (f *fakeOperators) AuthenticatePlatform(_ context.Context, email, password string) (*domain.PlatformUser, error) {
	if email != f.user.Email || password != f.password {
		return nil, domain.ErrInvalidCredentials
	}
	return f.user, nil
}

type revoker struct{ calls int }

func (r *revoker) RevokeAllSessions(context.Context, *auth.Principal) error {
	r.calls++
	return nil
}

func setup() (*Handler, *domain.PlatformUser, *revoker) {
	user := &domain.PlatformUser{ID: uuid.New(), Email: "ops@schoolcrm.app", Role: domain.PlatformRoleOwner}
	rev := &revoker{}
	h := NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)),
		&fakeTOTP{user: user}, &fakeOperators{user: user, password: "secret-pass"}, rev)
	return h, user, rev
}

func call(fn http.HandlerFunc, user *domain.PlatformUser, body string) int {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	if user != nil {
		p := &auth.Principal{UserID: user.ID, Kind: domain.SubjectPlatform, Role: string(user.Role)}
		req = req.WithContext(middleware.WithPrincipal(req.Context(), p))
	}
	rec := httptest.NewRecorder()
	fn(rec, req)
	return rec.Code
}

func TestSetup_RequiresAuthentication(t *testing.T) {
	h, _, _ := setup()
	assert.Equal(t, http.StatusUnauthorized, call(h.Setup, nil, `{"password":"secret-pass"}`))
}

func TestEnableFlow(t *testing.T) {
	h, user, _ := setup()

	assert.Equal(t, http.StatusBadRequest, call(h.Setup, user, `{}`))
	assert.Equal(t, http.StatusUnauthorized, call(h.Setup, user, `{"password":"wrong"}`))
	assert.Equal(t, http.StatusOK, call(h.Setup, user, `{"password":"secret-pass"}`))

	assert.Equal(t, http.StatusBadRequest, call(h.Enable, user, `{"code":"12"}`))
	assert.Equal(t, http.StatusBadRequest, call(h.Enable, user, `{"code":"654321"}`))
	assert.Equal(t, http.StatusOK, call(h.Enable, user, `{"code":"123456"}`))
	assert.True(t, user.MFAEnabled)

	assert.Equal(t, http.StatusConflict, call(h.Setup, user, `{"password":"secret-pass"}`))
}

func TestDisable(t *testing.T) {
	h, user, rev := setup()
	user.MFAEnabled = true

	tests := []struct {
		name string
		body string
		want int
	}{
		{"missing code", `{"password":"secret-pass"}`, http.StatusBadRequest},
		{"wrong password", `{"password":"nope","code":"123456"}`, http.StatusUnauthorized},
		{"wrong code", `{"password":"secret-pass","code":"000000"}`, http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, call(h.Disable, user, tt.body))
			assert.True(t, user.MFAEnabled)
		})
	}

	require.Equal(t, http.StatusOK, call(h.Disable, user, `{"password":"secret-pass","code":"123456"}`))
	assert.False(t, user.MFAEnabled)
	assert.Equal(t, 1, rev.calls)
}

func TestStatus(t *testing.T) {
	h, user, _ := setup()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(middleware.WithPrincipal(req.Context(), &auth.Principal{UserID: user.ID, Kind: domain.SubjectPlatform}))
	rec := httptest.NewRecorder()
	h.Status(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"enabled":false}`, rec.Body.String())
}
