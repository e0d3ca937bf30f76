package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/fpbe/auth-engine/internal/kv"
	"github.com/fpbe/auth-engine/internal/model"
)

const (
	revokedKeyPrefix = "revoked:"
	sessionKeyPrefix = "session:"
)

// RevocationStore tracks revoked session correlators and session
// metadata in the key-value store. Entries self-expire at the original
// token's expiry, so nothing is retained beyond its useful life.
type RevocationStore struct {
	store    kv.Store
	timeout  time.Duration
	failOpen bool
}

func NewRevocationStore(store kv.Store, timeout time.Duration, failOpen bool) *RevocationStore {
	return &RevocationStore{store: store, timeout: timeout, failOpen: failOpen}
}

// Revoke inserts the session correlator with the given TTL. A
// non-positive TTL means the token already expired; that is a no-op.
func (s *RevocationStore) Revoke(ctx context.Context, sessionID string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	return s.store.Set(ctx, revokedKeyPrefix+sessionID, []byte("1"), ttl)
}

// IsRevoked checks the store under the configured timeout. A timeout
// is reported as transient (retryable by the caller), never as
// revoked; only the explicit fail-open policy downgrades it to a pass.
func (s *RevocationStore) IsRevoked(ctx context.Context, sessionID string) (bool, error) {
	checkCtx := ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		checkCtx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	_, err := s.store.Get(checkCtx, revokedKeyPrefix+sessionID)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, model.ErrNotFound) {
		return false, nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		if s.failOpen {
			log.Printf("[revocation] check timed out for session %s, failing open per config", sessionID)
			return false, nil
		}
		return false, fmt.Errorf("%w: revocation check timed out", model.ErrTransient)
	}
	return false, fmt.Errorf("%w: revocation check failed: %v", model.ErrTransient, err)
}

func (s *RevocationStore) PutSession(ctx context.Context, sessionID string, meta model.SessionMetadata, ttl time.Duration) error {
	data, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	return s.store.Set(ctx, sessionKeyPrefix+sessionID, data, ttl)
}

func (s *RevocationStore) GetSession(ctx context.Context, sessionID string) (*model.SessionMetadata, error) {
	data, err := s.store.Get(ctx, sessionKeyPrefix+sessionID)
	if err != nil {
		return nil, err
	}
	var meta model.SessionMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}
