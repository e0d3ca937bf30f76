package service

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/fpbe/auth-engine/internal/model"
)

const clockSkewLeeway = 30 * time.Second

// PolicyChecker gates token issuance on the subject's compliance or
// verification status. Implemented by surrounding infrastructure; a
// rejected subject must never receive tokens.
type PolicyChecker interface {
	CheckIssuance(ctx context.Context, subjectID string) error
}

type TokenPair struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    int64
}

// TokenService issues and verifies RS256-signed access/refresh pairs.
// Verification is a pure read: no state changes on success.
type TokenService struct {
	keys        *KeyManager
	revocations *RevocationStore
	policy      PolicyChecker
	accessTTL   time.Duration
	refreshTTL  time.Duration
	now         func() time.Time
}

type TokenServiceConfig struct {
	Keys        *KeyManager
	Revocations *RevocationStore
	Policy      PolicyChecker
	AccessTTL   time.Duration
	RefreshTTL  time.Duration
	Now         func() time.Time
}

func NewTokenService(cfg TokenServiceConfig) *TokenService {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &TokenService{
		keys:        cfg.Keys,
		revocations: cfg.Revocations,
		policy:      cfg.Policy,
		accessTTL:   cfg.AccessTTL,
		refreshTTL:  cfg.RefreshTTL,
		now:         cfg.Now,
	}
}

// Issue mints an access/refresh pair sharing one session correlator.
// The per-token IDs derive from it (":a"/":r" suffix) so revoking the
// session kills both. Session metadata is recorded with the refresh
// token's lifetime.
func (s *TokenService) Issue(ctx context.Context, subjectID, deviceID, fingerprintHash string) (*TokenPair, error) {
	if s.policy != nil {
		if err := s.policy.CheckIssuance(ctx, subjectID); err != nil {
			return nil, err
		}
	}

	sessionID := uuid.NewString()
	now := s.now()
	key := s.keys.ActiveKey()

	access, err := s.sign(key, model.SessionClaims{
		SessionID:       sessionID,
		DeviceID:        deviceID,
		FingerprintHash: fingerprintHash,
		Kind:            model.TokenKindAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subjectID,
			ID:        sessionID + ":a",
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.accessTTL)),
		},
	})
	if err != nil {
		return nil, err
	}

	refresh, err := s.sign(key, model.SessionClaims{
		SessionID:       sessionID,
		DeviceID:        deviceID,
		FingerprintHash: fingerprintHash,
		Kind:            model.TokenKindRefresh,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subjectID,
			ID:        sessionID + ":r",
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.refreshTTL)),
		},
	})
	if err != nil {
		return nil, err
	}

	meta := model.SessionMetadata{SubjectID: subjectID, DeviceID: deviceID, IssuedAt: now}
	if err := s.revocations.PutSession(ctx, sessionID, meta, s.refreshTTL); err != nil {
		return nil, err
	}

	return &TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    int64(s.accessTTL.Seconds()),
	}, nil
}

func (s *TokenService) sign(key *SigningKeyPair, claims model.SessionClaims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = key.ID
	return token.SignedString(key.PrivateKey)
}

// Verify checks, in order: key resolution, signature and temporal
// claims (30s leeway either way), token kind, revocation, device
// binding.
func (s *TokenService) Verify(ctx context.Context, tokenStr, deviceID string, kind model.TokenKind) (*model.SessionClaims, error) {
	claims := &model.SessionClaims{}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithLeeway(clockSkewLeeway),
		jwt.WithTimeFunc(s.now),
	)

	_, err := parser.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, model.ErrInvalidKey
		}
		return s.keys.Lookup(ctx, kid)
	})
	if err != nil {
		return nil, mapJWTError(err)
	}

	if claims.Kind != kind {
		return nil, model.ErrWrongTokenKind
	}

	revoked, err := s.revocations.IsRevoked(ctx, claims.SessionID)
	if err != nil {
		return nil, err
	}
	if revoked {
		return nil, model.ErrRevoked
	}

	if claims.DeviceID != deviceID {
		return nil, model.ErrDeviceMismatch
	}

	return claims, nil
}

// Revoke decodes without signature verification: a token must stay
// revocable after its key retires or its own expiry passes. The entry
// lives until the longer of the token's own expiry and the session's
// refresh horizon, so revoking the access token also buries the pair.
func (s *TokenService) Revoke(ctx context.Context, tokenStr string) error {
	claims := &model.SessionClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tokenStr, claims); err != nil {
		return model.ErrMalformed
	}
	if claims.SessionID == "" {
		return model.ErrMalformed
	}

	now := s.now()
	ttl := time.Duration(0)
	if claims.ExpiresAt != nil {
		ttl = claims.ExpiresAt.Time.Sub(now)
	}
	if meta, err := s.revocations.GetSession(ctx, claims.SessionID); err == nil {
		if remaining := meta.IssuedAt.Add(s.refreshTTL).Sub(now); remaining > ttl {
			ttl = remaining
		}
	}

	return s.revocations.Revoke(ctx, claims.SessionID, ttl)
}

func mapJWTError(err error) error {
	switch {
	case errors.Is(err, model.ErrInvalidKey):
		return model.ErrInvalidKey
	case errors.Is(err, model.ErrTransient):
		return err
	case errors.Is(err, jwt.ErrTokenExpired):
		return model.ErrExpired
	case errors.Is(err, jwt.ErrTokenNotValidYet):
		return model.ErrExpired
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return model.ErrInvalidSignature
	case errors.Is(err, jwt.ErrTokenMalformed):
		return model.ErrMalformed
	default:
		return model.ErrInvalidSignature
	}
}
