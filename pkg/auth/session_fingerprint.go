package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"net"
	"net/http"
	"strings"

	"github.com/tendant/school-crm/pkg/domain"
)

// SessionFingerprint binds a refresh session to the client that opened it.
type SessionFingerprint struct {
	IPAddress string
	UserAgent string
	Hash      string
}

// GenerateFingerprint creates a fingerprint from request metadata.
func GenerateFingerprint(r *http.Request) *SessionFingerprint {
	ip := ClientIP(r)
	ua := r.UserAgent()
	return &SessionFingerprint{
		IPAddress: ip,
		UserAgent: ua,
		Hash:      hashFingerprint(ip, ua),
	}
}

// fingerprintFromMetadata restores the fingerprint saved with a session.
// It returns nil when the session was opened without one.
func fingerprintFromMetadata(m domain.SessionMetadata) *SessionFingerprint {
	if m.FingerprintHash == "" {
		return nil
	}
	return &SessionFingerprint{
		IPAddress: m.FingerprintIP,
		UserAgent: m.FingerprintUA,
		Hash:      m.FingerprintHash,
	}
}

func (f *SessionFingerprint) apply(m *domain.SessionMetadata) {
	m.FingerprintHash = f.Hash
	m.FingerprintIP = f.IPAddress
	m.FingerprintUA = f.UserAgent
}

// Matches reports whether r comes from the same client.
func (f *SessionFingerprint) Matches(r *http.Request) bool {
	return f.Hash == GenerateFingerprint(r).Hash
}

// Changed names the part of the fingerprint that differs for r, or "" if
// none does.
func (f *SessionFingerprint) Changed(r *http.Request) string {
	current := GenerateFingerprint(r)
	switch {
	case f.IPAddress != current.IPAddress:
		return "ip"
	case f.UserAgent != current.UserAgent:
		return "user_agent"
	}
	return ""
}

func hashFingerprint(ip, userAgent string) string {
	sum := sha256.Sum256([]byte(ip + "|" + userAgent))
	return hex.EncodeToString(sum[:])
}

// ClientIP returns the caller's address. X-Forwarded-For wins over
// X-Real-IP, which wins over RemoteAddr.
func ClientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		return strings.TrimSpace(first)
	}
	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return realIP
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
