package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/tendant/school-crm/pkg/domain"
)

func newFingerprintRequest(remoteAddr, ua string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/v1/auth/refresh", nil)
	req.RemoteAddr = remoteAddr
	req.Header.Set("User-Agent", ua)
	return req
}

func TestGenerateFingerprint(t *testing.T) {
	fp := GenerateFingerprint(newFingerprintRequest("192.168.1.1:12345", "Mozilla/5.0"))

	if fp.IPAddress != "192.168.1.1" {
		t.Errorf("IPAddress = %q, want 192.168.1.1", fp.IPAddress)
	}
	if fp.UserAgent != "Mozilla/5.0" {
		t.Errorf("UserAgent = %q", fp.UserAgent)
	}
	if len(fp.Hash) != 64 {
		t.Errorf("Hash length = %d, want 64", len(fp.Hash))
	}
}

func TestSessionFingerprint_MetadataRoundTrip(t *testing.T) {
	if fingerprintFromMetadata(domain.SessionMetadata{}) != nil {
		t.Fatal("empty metadata should carry no fingerprint")
	}

	fp := GenerateFingerprint(newFingerprintRequest("10.0.0.1:1", "curl/8"))
	var m domain.SessionMetadata
	fp.apply(&m)

	restored := fingerprintFromMetadata(m)
	if restored == nil || *restored != *fp {
		t.Errorf("restored = %+v, want %+v", restored, fp)
	}
}

func TestSessionFingerprint_Changed(t *testing.T) {
	fp := GenerateFingerprint(newFingerprintRequest("192.168.1.1:12345", "Mozilla/5.0"))

	tests := []struct {
		name      string
		req       *http.Request
		want      string
		wantMatch bool
	}{
		{
			name:      "same client different port",
			req:       newFingerprintRequest("192.168.1.1:54321", "Mozilla/5.0"),
			wantMatch: true,
		},
		{
			name: "ip changed",
			req:  newFingerprintRequest("10.0.0.1:12345", "Mozilla/5.0"),
			want: "ip",
		},
		{
			name: "user agent changed",
			req:  newFingerprintRequest("192.168.1.1:12345", "Chrome/120.0"),
			want: "user_agent",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := fp.Changed(tt.req); got != tt.want {
				t.Errorf("Changed() = %q, want %q", got, tt.want)
			}
			if got := fp.Matches(tt.req); got != tt.wantMatch {
				t.Errorf("Matches() = %v, want %v", got, tt.wantMatch)
			}
		})
	}
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{
			name:    "X-Forwarded-For",
			headers: map[string]string{"X-Forwarded-For": "203.0.113.1, 198.51.100.1"},
			remote:  "192.168.1.1:12345",
			want:    "203.0.113.1",
		},
		{
			name:    "X-Real-IP",
			headers: map[string]string{"X-Real-IP": "203.0.113.2"},
			remote:  "192.168.1.1:12345",
			want:    "203.0.113.2",
		},
		{
			name:   "RemoteAddr only",
			remote: "192.168.1.1:12345",
			want:   "192.168.1.1",
		},
		{
			name:   "IPv6 RemoteAddr",
			remote: "[::1]:8080",
			want:   "::1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			if got := ClientIP(req); got != tt.want {
				t.Errorf("ClientIP() = %q, want %q", got, tt.want)
			}
		})
	}
}
