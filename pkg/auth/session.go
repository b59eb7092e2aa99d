package auth

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/tendant/school-crm/pkg/domain"
	"github.com/tendant/school-crm/pkg/repository"
)

const (
	// Token lengths
	refreshTokenLen = 32

	// Default token lifetimes
	DefaultAccessTokenTTL  = 15 * time.Minute
	DefaultRefreshTokenTTL = 7 * 24 * time.Hour
)

// SessionConfig holds session configuration.
type SessionConfig struct {
	AccessTokenTTL     time.Duration
	RefreshTokenTTL    time.Duration
	JWTSecret          []byte
	Issuer             string
	FingerprintEnabled bool
	DetectReuseEnabled bool
}

// SessionService issues and verifies sessions for platform and school users.
type SessionService struct {
	config        SessionConfig
	sessions      *repository.SessionsRepository
	platformUsers *repository.PlatformUsersRepository
}

// NewSessionService creates a new session service.
func NewSessionService(config SessionConfig, sessions *repository.SessionsRepository, platformUsers *repository.PlatformUsersRepository) *SessionService {
	if config.AccessTokenTTL == 0 {
		config.AccessTokenTTL = DefaultAccessTokenTTL
	}
	if config.RefreshTokenTTL == 0 {
		config.RefreshTokenTTL = DefaultRefreshTokenTTL
	}
	return &SessionService{
		config:        config,
		sessions:      sessions,
		platformUsers: platformUsers,
	}
}

// AccessTokenTTL returns the access token TTL.
func (s *SessionService) AccessTokenTTL() time.Duration {
	return s.config.AccessTokenTTL
}

// RefreshTokenTTL returns the refresh token TTL.
func (s *SessionService) RefreshTokenTTL() time.Duration {
	return s.config.RefreshTokenTTL
}

// IssueSessionOpts holds options for session issuance.
type IssueSessionOpts struct {
	// IP address of the client
	IP string
	// User agent of the client
	UserAgent string
	// Request is the HTTP request (for fingerprinting)
	Request *http.Request
	// MFAVerified indicates whether MFA was verified for this session
	MFAVerified bool
}

// AccessTokenClaims represents the claims in an access token.
type AccessTokenClaims struct {
	jwt.RegisteredClaims
	Kind        domain.SubjectKind `json:"kind"`
	Role        string             `json:"role"`
	TenantID    string             `json:"tenant_id,omitempty"`
	Email       string             `json:"email,omitempty"`
	Name        string             `json:"name,omitempty"`
	MFAVerified bool               `json:"mfa_verified,omitempty"`
}

// sessionMetadata extends the stored metadata with the MFA state the
// session was opened with, so refreshes keep it.
type sessionMetadata struct {
	domain.SessionMetadata
	MFAVerified bool `json:"mfa_verified,omitempty"`
}

// IssueSession creates a refresh session and returns access/refresh tokens.
// All login paths use this.
func (s *SessionService) IssueSession(ctx context.Context, subject Subject, opts IssueSessionOpts) (*domain.TokenPair, error) {
	now := time.Now()

	refreshToken, err := GenerateToken(refreshTokenLen)
	if err != nil {
		return nil, err
	}

	mfaVerified := !subject.MFAEnabled || opts.MFAVerified
	session := &domain.Session{
		ID:        uuid.New(),
		UserID:    subject.UserID,
		Kind:      subject.Kind,
		Role:      subject.Role,
		Email:     subject.Email,
		Name:      subject.Name,
		TokenHash: HashToken(refreshToken),
		CreatedAt: now,
		ExpiresAt: now.Add(s.config.RefreshTokenTTL),
	}
	if subject.TenantID != "" {
		tenantID := subject.TenantID
		session.TenantID = &tenantID
	}

	metadata := sessionMetadata{
		SessionMetadata: domain.SessionMetadata{IP: opts.IP, UserAgent: opts.UserAgent},
		MFAVerified:     mfaVerified,
	}
	if s.config.FingerprintEnabled && opts.Request != nil {
		GenerateFingerprint(opts.Request).apply(&metadata.SessionMetadata)
	}
	session.Metadata, _ = json.Marshal(metadata)

	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, err
	}

	subject.MFAVerified = mfaVerified
	accessToken, expiresAt, err := s.SignAccessToken(subject, session.ID.String())
	if err != nil {
		return nil, err
	}

	return &domain.TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    int(s.config.AccessTokenTTL.Seconds()),
		ExpiresAt:    expiresAt,
	}, nil
}

// SignAccessToken signs an access token for subject. sessionID becomes the jti.
func (s *SessionService) SignAccessToken(subject Subject, sessionID string) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(s.config.AccessTokenTTL)
	claims := AccessTokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject.UserID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			Issuer:    s.config.Issuer,
			ID:        sessionID,
		},
		Kind:        subject.Kind,
		Role:        subject.Role,
		TenantID:    subject.TenantID,
		Email:       subject.Email,
		Name:        subject.Name,
		MFAVerified: subject.MFAVerified,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.config.JWTSecret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// RefreshSession issues a new access token for a live refresh token.
func (s *SessionService) RefreshSession(ctx context.Context, refreshToken string, opts IssueSessionOpts) (*domain.TokenPair, error) {
	session, err := s.sessions.GetByTokenHash(ctx, HashToken(refreshToken))
	if err != nil {
		return nil, err
	}

	if !session.IsValid() {
		if session.RevokedAt != nil {
			return nil, domain.ErrSessionRevoked
		}
		return nil, domain.ErrSessionExpired
	}

	var metadata sessionMetadata
	if len(session.Metadata) > 0 {
		_ = json.Unmarshal(session.Metadata, &metadata)
	}

	if fp := fingerprintFromMetadata(metadata.SessionMetadata); s.config.FingerprintEnabled && fp != nil && opts.Request != nil {
		if changed := fp.Changed(opts.Request); changed != "" {
			slog.Warn("refresh from a different client", "session_id", session.ID, "kind", session.Kind, "changed", changed)
			if s.config.DetectReuseEnabled {
				_ = s.sessions.Revoke(ctx, session.ID)
				return nil, domain.ErrSessionFingerprint
			}
		}
	}

	_ = s.sessions.UpdateLastSeen(ctx, session.ID)

	subject := Subject{
		UserID:      session.UserID,
		Kind:        session.Kind,
		Role:        session.Role,
		Email:       session.Email,
		Name:        session.Name,
		MFAVerified: metadata.MFAVerified,
	}
	if session.TenantID != nil {
		subject.TenantID = *session.TenantID
	}

	// Platform accounts are re-read so role changes and lockouts apply.
	if session.Kind == domain.SubjectPlatform {
		user, err := s.platformUsers.GetByID(ctx, session.UserID)
		if err != nil {
			return nil, err
		}
		if user.IsLocked() {
			return nil, domain.ErrAccountLocked
		}
		subject.Role = string(user.Role)
		subject.Email = user.Email
		subject.Name = user.Name
		subject.MFAVerified = !user.MFAEnabled || metadata.MFAVerified
	}

	accessToken, expiresAt, err := s.SignAccessToken(subject, session.ID.String())
	if err != nil {
		return nil, err
	}

	return &domain.TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken, // Return same refresh token
		TokenType:    "Bearer",
		ExpiresIn:    int(s.config.AccessTokenTTL.Seconds()),
		ExpiresAt:    expiresAt,
	}, nil
}

// RevokeSession revokes a session by refresh token.
func (s *SessionService) RevokeSession(ctx context.Context, refreshToken string) error {
	return s.sessions.RevokeByTokenHash(ctx, HashToken(refreshToken))
}

// RevokeAllSessions revokes all sessions of the principal's account.
func (s *SessionService) RevokeAllSessions(ctx context.Context, p *Principal) error {
	return s.sessions.RevokeAllByUser(ctx, p.Kind, p.UserID)
}

// RevokeTenantSessions revokes every session of a school.
func (s *SessionService) RevokeTenantSessions(ctx context.Context, tenantID string) error {
	return s.sessions.RevokeAllByTenant(ctx, tenantID)
}

// ValidateAccessToken validates an access token and returns the claims.
func (s *SessionService) ValidateAccessToken(tokenString string) (*AccessTokenClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &AccessTokenClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, domain.ErrInvalidToken
		}
		return s.config.JWTSecret, nil
	})
	if err != nil {
		return nil, domain.ErrInvalidToken
	}

	claims, ok := token.Claims.(*AccessTokenClaims)
	if !ok || !token.Valid {
		return nil, domain.ErrInvalidToken
	}

	return claims, nil
}

// Authenticate verifies an access token and returns the caller. This is
// the only constructor of a non-empty TenantScope.
func (s *SessionService) Authenticate(tokenString string) (*Principal, error) {
	claims, err := s.ValidateAccessToken(tokenString)
	if err != nil {
		return nil, err
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, domain.ErrInvalidToken
	}

	p := &Principal{
		UserID:      userID,
		SessionID:   claims.ID,
		Kind:        claims.Kind,
		Role:        claims.Role,
		Email:       claims.Email,
		Name:        claims.Name,
		MFAVerified: claims.MFAVerified,
	}

	switch claims.Kind {
	case domain.SubjectPlatform:
		if claims.TenantID != "" {
			return nil, domain.ErrInvalidToken
		}
	case domain.SubjectSchool:
		if claims.TenantID == "" {
			return nil, domain.ErrInvalidToken
		}
		p.tenant = TenantScope{tenantID: claims.TenantID}
	default:
		return nil, domain.ErrInvalidToken
	}

	return p, nil
}
