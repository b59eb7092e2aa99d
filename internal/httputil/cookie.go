package httputil

import (
	"net/http"
	"strings"
	"time"
)

const (
	accessCookie  = "access_token"
	refreshCookie = "refresh_token"
)

// CookieConfig holds auth cookie attributes.
type CookieConfig struct {
	Domain   string
	Path     string
	Secure   bool
	SameSite http.SameSite
}

// DefaultCookieConfig returns cookies scoped to the whole site.
func DefaultCookieConfig() CookieConfig {
	return CookieConfig{
		Path:     "/",
		SameSite: http.SameSiteLaxMode,
	}
}

func (c CookieConfig) set(w http.ResponseWriter, name, value string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     c.Path,
		Domain:   c.Domain,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: c.SameSite,
	})
}

// SetAuthCookies stores the token pair in HttpOnly cookies.
func SetAuthCookies(w http.ResponseWriter, accessToken, refreshToken string, accessTTL, refreshTTL time.Duration, cfg CookieConfig) {
	cfg.set(w, accessCookie, accessToken, int(accessTTL.Seconds()))
	cfg.set(w, refreshCookie, refreshToken, int(refreshTTL.Seconds()))
}

// ClearAuthCookies expires both auth cookies.
func ClearAuthCookies(w http.ResponseWriter, cfg CookieConfig) {
	cfg.set(w, accessCookie, "", -1)
	cfg.set(w, refreshCookie, "", -1)
}

// RefreshTokenFromCookie returns the refresh token cookie, if any.
func RefreshTokenFromCookie(r *http.Request) (string, bool) {
	c, err := r.Cookie(refreshCookie)
	if err != nil || c.Value == "" {
		return "", false
	}
	return c.Value, true
}

// BearerToken returns the access token from the Authorization header,
// falling back to the access token cookie for browser clients.
func BearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
	}
	if c, err := r.Cookie(accessCookie); err == nil {
		return c.Value
	}
	return ""
}

// IsMobileClient reports whether the client asked for tokens in the body
// (X-Client-Type: mobile) instead of cookies.
func IsMobileClient(r *http.Request) bool {
	return r.Header.Get("X-Client-Type") == "mobile"
}
