package auth

import (
	"bytes"
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"image/png"
	"time"

	"github.com/google/uuid"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"github.com/tendant/school-crm/pkg/domain"
	"github.com/tendant/school-crm/pkg/repository"
)

const (
	// TOTP parameters
	totpPeriod = 30
	totpWindow = 1 // Allow ±30 seconds clock drift
)

// MFAConfig contains configuration for the MFA service
type MFAConfig struct {
	Issuer        string // e.g., "School CRM"
	EncryptionKey []byte // 32 bytes for AES-256
}

// MFAService manages TOTP for platform operators.
type MFAService struct {
	config MFAConfig
	users  *repository.PlatformUsersRepository
}

// NewMFAService creates a new MFA service
func NewMFAService(config MFAConfig, users *repository.PlatformUsersRepository) *MFAService {
	return &MFAService{
		config: config,
		users:  users,
	}
}

// SetupTOTP generates and stores a pending TOTP secret for a user.
// MFA is not enabled until VerifyTOTPAndEnable succeeds.
func (s *MFAService) SetupTOTP(ctx context.Context, userID uuid.UUID) (*domain.MFASetupResponse, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.MFAEnabled {
		return nil, domain.ErrMFAAlreadyEnabled
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      s.config.Issuer,
		AccountName: user.Email,
		Period:      totpPeriod,
		Digits:      otp.DigitsSix,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate TOTP key: %w", err)
	}

	var qrBuf bytes.Buffer
	img, err := key.Image(200, 200)
	if err != nil {
		return nil, fmt.Errorf("failed to generate QR code image: %w", err)
	}
	if err := png.Encode(&qrBuf, img); err != nil {
		return nil, fmt.Errorf("failed to encode QR code: %w", err)
	}
	qrDataURI := fmt.Sprintf("data:image/png;base64,%s", base64.StdEncoding.EncodeToString(qrBuf.Bytes()))

	encryptedSecret, err := s.encryptSecret(key.Secret())
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt TOTP secret: %w", err)
	}
	if err := s.users.SetMFASecret(ctx, userID, &encryptedSecret); err != nil {
		return nil, fmt.Errorf("failed to store MFA secret: %w", err)
	}

	return &domain.MFASetupResponse{
		Secret:        key.Secret(),
		QRCodeDataURI: qrDataURI,
	}, nil
}

// VerifyTOTPAndEnable verifies a TOTP code against the pending secret and enables MFA.
func (s *MFAService) VerifyTOTPAndEnable(ctx context.Context, userID uuid.UUID, code string) error {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if user.MFAEnabled {
		return domain.ErrMFAAlreadyEnabled
	}
	if user.MFASecretEncrypted == nil {
		return domain.ErrMFANotSetup
	}

	valid, err := s.validate(*user.MFASecretEncrypted, code)
	if err != nil {
		return err
	}
	if !valid {
		return domain.ErrInvalidMFACode
	}

	if err := s.users.UpdateMFAEnabled(ctx, userID, true); err != nil {
		return fmt.Errorf("failed to enable MFA: %w", err)
	}
	return nil
}

// VerifyTOTP checks a code for a user that has MFA enabled.
func (s *MFAService) VerifyTOTP(ctx context.Context, user *domain.PlatformUser, code string) (bool, error) {
	if !user.MFAEnabled || user.MFASecretEncrypted == nil {
		return false, domain.ErrMFANotEnabled
	}
	return s.validate(*user.MFASecretEncrypted, code)
}

// DisableMFA disables MFA for a user and removes the stored secret.
func (s *MFAService) DisableMFA(ctx context.Context, userID uuid.UUID) error {
	return s.users.UpdateMFAEnabled(ctx, userID, false)
}

func (s *MFAService) validate(encryptedSecret, code string) (bool, error) {
	secret, err := s.decryptSecret(encryptedSecret)
	if err != nil {
		return false, fmt.Errorf("failed to decrypt TOTP secret: %w", err)
	}

	valid, err := totp.ValidateCustom(code, secret, time.Now(), totp.ValidateOpts{
		Period:    totpPeriod,
		Skew:      totpWindow,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	if err != nil {
		// malformed codes are just wrong codes
		return false, nil
	}
	return valid, nil
}

// encryptSecret encrypts a plaintext secret using AES-256-GCM
func (s *MFAService) encryptSecret(plaintext string) (string, error) {
	block, err := aes.NewCipher(s.config.EncryptionKey)
	if err != nil {
		return "", fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("failed to create GCM: %w", err)
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	ciphertext := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

// decryptSecret decrypts an encrypted secret using AES-256-GCM
func (s *MFAService) decryptSecret(encrypted string) (string, error) {
	ciphertext, err := base64.StdEncoding.DecodeString(encrypted)
	if err != nil {
		return "", fmt.Errorf("failed to decode ciphertext: %w", err)
	}

	block, err := aes.NewCipher(s.config.EncryptionKey)
	if err != nil {
		return "", fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("failed to create GCM: %w", err)
	}

	if len(ciphertext) < gcm.NonceSize() {
		return "", errors.New("ciphertext too short")
	}

	nonce, ciphertext := ciphertext[:gcm.NonceSize()], ciphertext[gcm.NonceSize():]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt: %w", err)
	}

	return string(plaintext), nil
}
