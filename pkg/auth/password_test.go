package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/tendant/school-crm/pkg/domain"
)

type fakeSchoolStore struct {
	users      map[string]*domain.SchoolUser
	increments int
	resets     int
}

func (f *fakeSchoolStore) GetByEmail(ctx context.Context, email string) (*domain.SchoolUser, error) {
	u, ok := f.users[email]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	return u, nil
}

func (f *fakeSchoolStore) IncrementFailedLoginAttempts(ctx context.Context, userID uuid.UUID, lockout time.Duration, maxAttempts int) error {
	f.increments++
	return nil
}

func (f *fakeSchoolStore) ResetFailedLoginAttempts(ctx context.Context, userID uuid.UUID) error {
	f.resets++
	return nil
}

func TestPasswordService_AuthenticateSchool(t *testing.T) {
	hash, err := HashPassword("Classroom#1")
	if err != nil {
		t.Fatalf("HashPassword failed: %v", err)
	}
	future := time.Now().Add(time.Hour)

	tests := []struct {
		name           string
		email          string
		password       string
		user           *domain.SchoolUser
		wantErr        error
		wantIncrements int
		wantResets     int
	}{
		{
			name:     "valid login",
			email:    "Teacher@School.test ",
			password: "Classroom#1",
			user:     &domain.SchoolUser{ID: uuid.New(), Email: "teacher@school.test", PasswordHash: hash},
		},
		{
			name:       "valid login clears failures",
			email:      "teacher@school.test",
			password:   "Classroom#1",
			user:       &domain.SchoolUser{ID: uuid.New(), Email: "teacher@school.test", PasswordHash: hash, FailedLoginAttempts: 2},
			wantResets: 1,
		},
		{
			name:           "wrong password",
			email:          "teacher@school.test",
			password:       "nope",
			user:           &domain.SchoolUser{ID: uuid.New(), Email: "teacher@school.test", PasswordHash: hash},
			wantErr:        domain.ErrInvalidCredentials,
			wantIncrements: 1,
		},
		{
			name:     "unknown user",
			email:    "ghost@school.test",
			password: "Classroom#1",
			user:     &domain.SchoolUser{ID: uuid.New(), Email: "teacher@school.test", PasswordHash: hash},
			wantErr:  domain.ErrInvalidCredentials,
		},
		{
			name:     "locked account",
			email:    "teacher@school.test",
			password: "Classroom#1",
			user:     &domain.SchoolUser{ID: uuid.New(), Email: "teacher@school.test", PasswordHash: hash, LockedUntil: &future},
			wantErr:  domain.ErrAccountLocked,
		},
	}

	svc := NewPasswordService(nil, nil)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &fakeSchoolStore{users: map[string]*domain.SchoolUser{tt.user.Email: tt.user}}

			user, err := svc.AuthenticateSchool(context.Background(), store, tt.email, tt.password)

			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
			} else {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if user.ID != tt.user.ID {
					t.Errorf("user = %v, want %v", user.ID, tt.user.ID)
				}
			}
			if store.increments != tt.wantIncrements {
				t.Errorf("increments = %d, want %d", store.increments, tt.wantIncrements)
			}
			if store.resets != tt.wantResets {
				t.Errorf("resets = %d, want %d", store.resets, tt.wantResets)
			}
		})
	}
}

func TestPasswordService_HashNewPassword_Policy(t *testing.T) {
	svc := NewPasswordService(nil, &PasswordPolicy{MinLength: 10, RequireNumber: true})

	if _, err := svc.HashNewPassword("short1"); !errors.Is(err, domain.ErrWeakPassword) {
		t.Errorf("expected ErrWeakPassword, got %v", err)
	}
	if _, err := svc.HashNewPassword("longenoughbutnodigits"); !errors.Is(err, domain.ErrWeakPassword) {
		t.Errorf("expected ErrWeakPassword, got %v", err)
	}
	hash, err := svc.HashNewPassword("longenough123")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !VerifyPassword("longenough123", hash) {
		t.Error("hash should verify")
	}
}

func TestPasswordService_Argon2Parameters(t *testing.T) {
	// Verify that Argon2 parameters are set correctly (OWASP recommended)
	if argon2Time != 1 {
		t.Errorf("argon2Time = %d, want 1", argon2Time)
	}
	if argon2Memory != 64*1024 {
		t.Errorf("argon2Memory = %d, want %d", argon2Memory, 64*1024)
	}
	if argon2Threads != 4 {
		t.Errorf("argon2Threads = %d, want 4", argon2Threads)
	}
	if argon2KeyLen != 32 {
		t.Errorf("argon2KeyLen = %d, want 32", argon2KeyLen)
	}
	if saltLen != 16 {
		t.Errorf("saltLen = %d, want 16", saltLen)
	}
}

func TestNormalizeEmail(t *testing.T) {
	tests := map[string]string{
		"Admin@Example.COM":   "admin@example.com",
		"  user@school.test ": "user@school.test",
		"":                    "",
	}
	for in, want := range tests {
		if got := NormalizeEmail(in); got != want {
			t.Errorf("NormalizeEmail(%q) = %q, want %q", in, got, want)
		}
	}
}
