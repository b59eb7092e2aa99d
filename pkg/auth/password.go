package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tendant/school-crm/pkg/domain"
	"github.com/tendant/school-crm/pkg/repository"
	"golang.org/x/crypto/argon2"
)

// Argon2 parameters (OWASP recommended)
const (
	argon2Time    = 1
	argon2Memory  = 64 * 1024 // 64 MB
	argon2Threads = 4
	argon2KeyLen  = 32
	saltLen       = 16
)

// Lockout policy shared by platform and school accounts.
const (
	maxFailedAttempts = 5
	lockoutDuration   = 15 * time.Minute
)

// SchoolCredentialStore is the subset of a tenant's user store needed to
// check a school login.
type SchoolCredentialStore interface {
	GetByEmail(ctx context.Context, email string) (*domain.SchoolUser, error)
	IncrementFailedLoginAttempts(ctx context.Context, userID uuid.UUID, lockoutDuration time.Duration, maxAttempts int) error
	ResetFailedLoginAttempts(ctx context.Context, userID uuid.UUID) error
}

// PasswordService handles password authentication.
type PasswordService struct {
	platformUsers *repository.PlatformUsersRepository
	policy        *PasswordPolicy
}

// NewPasswordService creates a new password service.
func NewPasswordService(platformUsers *repository.PlatformUsersRepository, policy *PasswordPolicy) *PasswordService {
	return &PasswordService{
		platformUsers: platformUsers,
		policy:        policy,
	}
}

// NormalizeEmail lowercases and trims an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// HashNewPassword checks password against the policy and hashes it.
func (s *PasswordService) HashNewPassword(password string) (string, error) {
	if s.policy != nil {
		if err := s.policy.ValidatePassword(password); err != nil {
			return "", errors.Join(domain.ErrWeakPassword, err)
		}
	}
	return HashPassword(password)
}

// CreatePlatformUser registers a new platform operator.
func (s *PasswordService) CreatePlatformUser(ctx context.Context, email, name string, role domain.PlatformRole, password string) (*domain.PlatformUser, error) {
	if !role.Valid() {
		return nil, domain.ErrInvalidInput
	}
	hash, err := s.HashNewPassword(password)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	user := &domain.PlatformUser{
		ID:           uuid.New(),
		Email:        NormalizeEmail(email),
		Name:         SanitizeName(name),
		Role:         role,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.platformUsers.Create(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// AuthenticatePlatform verifies a platform operator's email and password.
// Implements account lockout after 5 failed attempts with 15-minute lockout duration.
func (s *PasswordService) AuthenticatePlatform(ctx context.Context, email, password string) (*domain.PlatformUser, error) {
	user, err := s.platformUsers.GetByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, domain.ErrInvalidCredentials
		}
		return nil, err
	}

	if user.IsLocked() {
		return nil, domain.ErrAccountLocked
	}

	if !VerifyPassword(password, user.PasswordHash) {
		_ = s.platformUsers.IncrementFailedLoginAttempts(ctx, user.ID, lockoutDuration, maxFailedAttempts)
		return nil, domain.ErrInvalidCredentials
	}

	if user.FailedLoginAttempts > 0 || user.LockedUntil != nil {
		_ = s.platformUsers.ResetFailedLoginAttempts(ctx, user.ID)
	}

	return user, nil
}

// AuthenticateSchool verifies a school user's email and password against
// that school's own database.
func (s *PasswordService) AuthenticateSchool(ctx context.Context, store SchoolCredentialStore, email, password string) (*domain.SchoolUser, error) {
	user, err := store.GetByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) || errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrInvalidCredentials
		}
		return nil, err
	}

	if user.IsLocked() {
		return nil, domain.ErrAccountLocked
	}

	if !VerifyPassword(password, user.PasswordHash) {
		_ = store.IncrementFailedLoginAttempts(ctx, user.ID, lockoutDuration, maxFailedAttempts)
		return nil, domain.ErrInvalidCredentials
	}

	if user.FailedLoginAttempts > 0 || user.LockedUntil != nil {
		_ = store.ResetFailedLoginAttempts(ctx, user.ID)
	}

	return user, nil
}

// GetPlatformUser retrieves a platform user by ID.
func (s *PasswordService) GetPlatformUser(ctx context.Context, userID uuid.UUID) (*domain.PlatformUser, error) {
	return s.platformUsers.GetByID(ctx, userID)
}

// HashPassword hashes a password using Argon2id.
func HashPassword(password string) (string, error) {
	salt := make([]byte, saltLen)
	if _, err := randomBytes(salt); err != nil {
		return "", err
	}

	hash := argon2.IDKey([]byte(password), salt, argon2Time, argon2Memory, argon2Threads, argon2KeyLen)

	return encodeArgon2Hash(hash, salt, argon2Time, argon2Memory, argon2Threads), nil
}

// VerifyPassword verifies a password against an Argon2id hash.
func VerifyPassword(password, encodedHash string) bool {
	hash, salt, time, memory, threads, err := decodeArgon2Hash(encodedHash)
	if err != nil {
		return false
	}

	computed := argon2.IDKey([]byte(password), salt, time, memory, threads, uint32(len(hash)))
	return constantTimeCompare(hash, computed)
}
