package service

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/fpbe/auth-engine/internal/model"
)

const (
	minSubjectIDLength = 3
	minPasswordLength  = 8
)

// CredentialRepo is the record store for per-subject authentication
// state. UpdateCredentialAttempts must be a compare-and-swap on the
// record version.
type CredentialRepo interface {
	CreateCredential(ctx context.Context, subjectID, passwordHash string) (*model.CredentialRecord, error)
	GetCredential(ctx context.Context, subjectID string) (*model.CredentialRecord, error)
	UpdateCredentialAttempts(ctx context.Context, rec *model.CredentialRecord, expectedVersion int64) error
}

// AuthService drives the login control flow: load the credential
// record, check the lockout, verify the password or biometric, assess
// device trust, then issue tokens.
type AuthService struct {
	creds       CredentialRepo
	tokens      *TokenService
	lockout     LockoutPolicy
	devices     *DeviceTrustAssessor
	vault       *BiometricVault
	allowSignup bool
	now         func() time.Time
}

type AuthServiceConfig struct {
	Credentials CredentialRepo
	Tokens      *TokenService
	Lockout     LockoutPolicy
	Devices     *DeviceTrustAssessor
	Vault       *BiometricVault
	AllowSignup bool
	Now         func() time.Time
}

func NewAuthService(cfg AuthServiceConfig) *AuthService {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &AuthService{
		creds:       cfg.Credentials,
		tokens:      cfg.Tokens,
		lockout:     cfg.Lockout,
		devices:     cfg.Devices,
		vault:       cfg.Vault,
		allowSignup: cfg.AllowSignup,
		now:         cfg.Now,
	}
}

func (s *AuthService) AllowSignup() bool { return s.allowSignup }

func (s *AuthService) Register(ctx context.Context, subjectID, password string) error {
	if !s.allowSignup {
		return model.ErrPolicyDenied
	}
	if err := validateCredentials(subjectID, password); err != nil {
		return err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	_, err = s.creds.CreateCredential(ctx, subjectID, string(hash))
	return err
}

// Login authenticates with a password. The lockout gate runs before
// the bcrypt comparison: a locked account rejects without touching the
// password at all, so the lock consumes no attempt and leaks no
// timing.
func (s *AuthService) Login(ctx context.Context, subjectID, password, deviceID string, fp Fingerprint) (*TokenPair, error) {
	if err := validateCredentials(subjectID, password); err != nil {
		return nil, err
	}
	return s.login(ctx, subjectID, deviceID, fp, func(rec *model.CredentialRecord) (bool, error) {
		err := bcrypt.CompareHashAndPassword([]byte(rec.PasswordHash), []byte(password))
		return err == nil, nil
	})
}

// LoginBiometric authenticates with a presented biometric template.
// Vault-level errors (rate limit, liveness, integrity) pass through;
// an ordinary mismatch feeds the lockout counter like a wrong
// password.
func (s *AuthService) LoginBiometric(ctx context.Context, subjectID, template, deviceID string, fp Fingerprint) (*TokenPair, error) {
	if strings.TrimSpace(subjectID) == "" || strings.TrimSpace(template) == "" {
		return nil, model.ErrInvalidInput
	}
	return s.login(ctx, subjectID, deviceID, fp, func(rec *model.CredentialRecord) (bool, error) {
		return s.vault.Verify(ctx, subjectID, deviceID, template)
	})
}

func (s *AuthService) login(ctx context.Context, subjectID, deviceID string, fp Fingerprint, compare func(*model.CredentialRecord) (bool, error)) (*TokenPair, error) {
	rec, err := s.creds.GetCredential(ctx, subjectID)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return nil, model.ErrUnauthorized
		}
		return nil, err
	}

	now := s.now()
	if err := s.lockout.Check(rec, now); err != nil {
		return nil, err
	}

	ok, err := compare(rec)
	if err != nil {
		return nil, err
	}
	if !ok {
		if err := s.recordFailure(ctx, rec); err != nil {
			return nil, err
		}
		if s.lockout.State(rec, s.now()) == LockoutLocked {
			return nil, &model.AccountLockedError{RetryAfter: rec.LockedUntil.Sub(s.now())}
		}
		return nil, model.ErrUnauthorized
	}

	assessment := s.devices.Assess(fp)
	if assessment.TrustScore < s.devices.Threshold() {
		log.Printf("[auth] device trust rejected for subject=%s device=%s score=%.2f factors=%v",
			subjectID, deviceID, assessment.TrustScore, assessment.Factors)
		// Record the rejected device as an untrusted binding so later
		// refresh attempts from it are denied without a fingerprint.
		if err := s.devices.Bind(ctx, subjectID, deviceID, assessment.TrustScore); err != nil {
			log.Printf("[auth] failed to record untrusted binding for subject=%s device=%s: %v", subjectID, deviceID, err)
		}
		return nil, model.ErrDeviceTrustFailed
	}

	if err := s.recordSuccess(ctx, rec); err != nil {
		return nil, err
	}
	if err := s.devices.Bind(ctx, subjectID, deviceID, assessment.TrustScore); err != nil {
		return nil, err
	}

	return s.tokens.Issue(ctx, subjectID, deviceID, fp.Hash())
}

// Refresh verifies the refresh token, retires its session, and issues
// a fresh pair bound to the same device. A refresh carries no
// fingerprint to re-assess, so it requires the trusted binding the
// original login established.
func (s *AuthService) Refresh(ctx context.Context, refreshToken, deviceID string) (*TokenPair, error) {
	claims, err := s.tokens.Verify(ctx, refreshToken, deviceID, model.TokenKindRefresh)
	if err != nil {
		return nil, err
	}

	bound, err := s.devices.IsBound(ctx, claims.Subject, deviceID)
	if err != nil {
		return nil, err
	}
	if !bound {
		return nil, model.ErrDeviceTrustFailed
	}

	if err := s.tokens.Revoke(ctx, refreshToken); err != nil {
		return nil, err
	}

	return s.tokens.Issue(ctx, claims.Subject, deviceID, claims.FingerprintHash)
}

func (s *AuthService) Logout(ctx context.Context, token string) error {
	if strings.TrimSpace(token) == "" {
		return nil
	}
	return s.tokens.Revoke(ctx, token)
}

// recordFailure persists a counted failure through the CAS. On a
// conflict the record is re-read and the failure re-applied once, so a
// concurrent attempt cannot swallow this one.
func (s *AuthService) recordFailure(ctx context.Context, rec *model.CredentialRecord) error {
	now := s.now()
	s.lockout.OnFailure(rec, now)
	err := s.creds.UpdateCredentialAttempts(ctx, rec, rec.Version)
	if !errors.Is(err, model.ErrConflict) {
		return err
	}

	fresh, err := s.creds.GetCredential(ctx, rec.SubjectID)
	if err != nil {
		return err
	}
	if s.lockout.State(fresh, now) == LockoutExpired {
		fresh.FailedAttempts = 0
		fresh.LockedUntil = nil
	}
	s.lockout.OnFailure(fresh, now)
	if err := s.creds.UpdateCredentialAttempts(ctx, fresh, fresh.Version); err != nil {
		return err
	}
	*rec = *fresh
	return nil
}

func (s *AuthService) recordSuccess(ctx context.Context, rec *model.CredentialRecord) error {
	now := s.now()
	s.lockout.OnSuccess(rec, now)
	err := s.creds.UpdateCredentialAttempts(ctx, rec, rec.Version)
	if !errors.Is(err, model.ErrConflict) {
		return err
	}

	fresh, err := s.creds.GetCredential(ctx, rec.SubjectID)
	if err != nil {
		return err
	}
	s.lockout.OnSuccess(fresh, now)
	if err := s.creds.UpdateCredentialAttempts(ctx, fresh, fresh.Version); err != nil {
		return err
	}
	*rec = *fresh
	return nil
}

func validateCredentials(subjectID, password string) error {
	subjectID = strings.TrimSpace(subjectID)
	password = strings.TrimSpace(password)

	if len(subjectID) < minSubjectIDLength || len(subjectID) > 64 {
		return model.ErrInvalidInput
	}
	if len(password) < minPasswordLength || len(password) > 128 {
		return model.ErrInvalidInput
	}
	return nil
}
